package hubconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcphub/internal/huberrors"
)

const sampleConfig = `{ "mcpServers": {
    "local-search": {
      "command": "${BIN}/mcp-search",
      "args": ["--token", "${cmd: op read op://vault/search}"],
      "env": { "BIN": "/usr/local/bin", "API_KEY": null },
      "disabled": false
    },
    "remote-notes": {
      "url": "https://${NOTES_HOST}/mcp",
      "headers": { "Authorization": "Bearer ${cmd: op read op://vault/notes}" }
    }
} }`

func TestLoadBytes_ParsesBothKinds(t *testing.T) {
	s := NewMemoryStore()
	res, err := s.LoadBytes([]byte(sampleConfig))
	require.NoError(t, err)

	require.Contains(t, res.Config, "local-search")
	require.Contains(t, res.Config, "remote-notes")
	assert.Equal(t, KindStdio, res.Config["local-search"].Kind)
	assert.Equal(t, KindRemote, res.Config["remote-notes"].Kind)
}

func TestLoadBytes_RejectsBothCommandAndURL(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.LoadBytes([]byte(`{"mcpServers": {"bad": {"command": "x", "url": "http://y"}}}`))
	require.Error(t, err)
	assert.Equal(t, huberrors.ConfigInvalid, huberrors.CodeOf(err))
}

func TestLoadBytes_RejectsNeitherCommandNorURL(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.LoadBytes([]byte(`{"mcpServers": {"bad": {}}}`))
	require.Error(t, err)
}

func TestLoadBytes_DevRequiresAbsoluteCwd(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.LoadBytes([]byte(`{"mcpServers": {"a": {"command": "x", "dev": {"enabled": true, "cwd": "relative"}}}}`))
	require.Error(t, err)
}

func TestLoadBytes_AllowsComments(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.LoadBytes([]byte(`{
		// comment
		"mcpServers": {
			"a": { "command": "x", }, // trailing comma
		},
	}`))
	require.NoError(t, err)
}

func TestComputeDiff_HotReloadScenario(t *testing.T) {
	before := map[string]ServerConfig{
		"a": {Name: "a", Command: "cmd-a"},
		"b": {Name: "b", Command: "cmd-b", Disabled: true},
	}
	after := map[string]ServerConfig{
		"b": {Name: "b", Command: "cmd-b", Disabled: false},
		"c": {Name: "c", Command: "cmd-c"},
	}

	diff := ComputeDiff(before, after)
	assert.ElementsMatch(t, []string{"c"}, diff.Added)
	assert.ElementsMatch(t, []string{"a"}, diff.Removed)
	assert.ElementsMatch(t, []string{"b"}, diff.Modified)
	assert.Contains(t, diff.Details["b"].ModifiedFields, "disabled")
}

func TestComputeDiff_InsignificantChangeYieldsEmptyModified(t *testing.T) {
	before := map[string]ServerConfig{"a": {Name: "a", Command: "cmd-a", Description: "old"}}
	after := map[string]ServerConfig{"a": {Name: "a", Command: "cmd-a", Description: "new"}}

	diff := ComputeDiff(before, after)
	assert.Empty(t, diff.Modified)
	assert.False(t, diff.IsSignificant())
	assert.ElementsMatch(t, []string{"a"}, diff.Unchanged)
}

func TestSequentialLoad_DiffsAgainstPreviousSnapshot(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.LoadBytes([]byte(`{"mcpServers": {"a": {"command": "x"}}}`))
	require.NoError(t, err)

	res, err := s.LoadBytes([]byte(`{"mcpServers": {"a": {"command": "x"}, "b": {"command": "y"}}}`))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b"}, res.Diff.Added)
}
