package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcphub/internal/huberrors"
	"github.com/giantswarm/mcphub/internal/hubconfig"
	"github.com/giantswarm/mcphub/internal/transport"
)

func newTestSupervisor(t *testing.T, cfg hubconfig.ServerConfig) *Supervisor {
	t.Helper()
	return New(Config{Name: "test-server", Server: cfg})
}

func TestNew_DisabledStaysDisabled(t *testing.T) {
	s := newTestSupervisor(t, hubconfig.ServerConfig{Kind: hubconfig.KindStdio, Disabled: true})
	assert.Equal(t, StateDisabled, s.Info().State)

	info := s.Start(context.Background())
	assert.Equal(t, StateDisabled, info.State)
}

func TestCallTool_NotInitializedWhenNoClient(t *testing.T) {
	s := newTestSupervisor(t, hubconfig.ServerConfig{Kind: hubconfig.KindStdio})

	_, err := s.CallTool(context.Background(), "anything", nil)
	require.Error(t, err)
	assert.Equal(t, huberrors.NotInitialized, huberrors.CodeOf(err))
}

func TestGuardDispatch_NotConnectedWhenNotYetConnected(t *testing.T) {
	s := newTestSupervisor(t, hubconfig.ServerConfig{Kind: hubconfig.KindStdio})
	s.mu.Lock()
	s.client = &transport.Client{}
	s.state = StateConnecting
	s.mu.Unlock()

	_, err := s.ReadResource(context.Background(), "notes://abc")
	require.Error(t, err)
	assert.Equal(t, huberrors.NotConnected, huberrors.CodeOf(err))
}

func TestGuardDispatch_RejectsUnknownArgsShape(t *testing.T) {
	s := newTestSupervisor(t, hubconfig.ServerConfig{Kind: hubconfig.KindStdio})
	s.mu.Lock()
	s.client = &transport.Client{}
	s.state = StateConnected
	s.caps.Tools = []ToolInfo{{Name: "echo"}}
	s.mu.Unlock()

	_, err := s.guardDispatch("callTool", "not-a-mapping-or-sequence", func() bool { return true }, huberrors.ToolNotFound, s.toolNames)
	require.Error(t, err)
	assert.Equal(t, huberrors.InvalidArguments, huberrors.CodeOf(err))
}

func TestHasResource_MatchesLiteralAndTemplate(t *testing.T) {
	s := newTestSupervisor(t, hubconfig.ServerConfig{Kind: hubconfig.KindRemote})
	s.caps.Resources = []ResourceInfo{{URI: "notes://fixed"}}
	s.caps.ResourceTemplates = []ResourceTemplateInfo{{URITemplate: "notes://{id}"}}

	assert.True(t, s.hasResource("notes://fixed"))
	assert.True(t, s.hasResource("notes://abc123"))
	assert.False(t, s.hasResource("notes://abc/def"))
	assert.False(t, s.hasResource("other://abc"))
}

func TestStop_DisableSetsDisabledState(t *testing.T) {
	s := newTestSupervisor(t, hubconfig.ServerConfig{Kind: hubconfig.KindStdio})
	info := s.Stop(true)
	assert.Equal(t, StateDisabled, info.State)

	info = s.Stop(false)
	assert.Equal(t, StateDisconnected, info.State)
}

func TestToStringArgs(t *testing.T) {
	out, err := toStringArgs(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = toStringArgs(map[string]any{"a": 1, "b": "two"})
	require.NoError(t, err)
	assert.Equal(t, "1", out["a"])
	assert.Equal(t, "two", out["b"])

	_, err = toStringArgs([]any{"a", "b"})
	assert.Error(t, err)
}
