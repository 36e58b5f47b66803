package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcphub/internal/eventbus"
	"github.com/giantswarm/mcphub/internal/huberrors"
	"github.com/giantswarm/mcphub/internal/hubconfig"
)

const disabledServerDoc = `{
  "mcpServers": {
    "disabled-one": { "command": "does-not-matter", "disabled": true }
  }
}`

func newTestHub(t *testing.T, doc string) *Hub {
	t.Helper()
	store := hubconfig.NewMemoryStore()
	_, err := store.LoadBytes([]byte(doc))
	require.NoError(t, err)
	return New(Config{Store: store, Bus: eventbus.New(16)})
}

func TestInitialize_DisabledServerNeverStarts(t *testing.T) {
	h := newTestHub(t, disabledServerDoc)
	require.NoError(t, h.Initialize(context.Background()))

	statuses := h.GetAllServerStatuses()
	require.Contains(t, statuses, "disabled-one")
	assert.Equal(t, "disabled", string(statuses["disabled-one"].State))
}

func TestStartServer_UnknownNameIsServerNotFound(t *testing.T) {
	h := newTestHub(t, disabledServerDoc)
	require.NoError(t, h.Initialize(context.Background()))

	_, err := h.StartServer(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, huberrors.ServerNotFound, huberrors.CodeOf(err))
}

func TestCallTool_UnknownServerIsServerNotFound(t *testing.T) {
	h := newTestHub(t, disabledServerDoc)
	require.NoError(t, h.Initialize(context.Background()))

	_, err := h.CallTool(context.Background(), "missing", "echo", nil)
	require.Error(t, err)
	assert.Equal(t, huberrors.ServerNotFound, huberrors.CodeOf(err))
}

func TestOnConfigChanged_AddedAndRemovedServers(t *testing.T) {
	h := newTestHub(t, disabledServerDoc)
	require.NoError(t, h.Initialize(context.Background()))

	result, err := h.store.LoadBytes([]byte(`{
  "mcpServers": {
    "new-one": { "command": "does-not-matter", "disabled": true }
  }
}`))
	require.NoError(t, err)
	require.True(t, result.Diff.IsSignificant())

	h.onConfigChanged(result)

	statuses := h.GetAllServerStatuses()
	assert.NotContains(t, statuses, "disabled-one")
	assert.Contains(t, statuses, "new-one")
}

func TestOnlyDisabledChanged(t *testing.T) {
	assert.True(t, onlyDisabledChanged(hubconfig.FieldDiff{ModifiedFields: []string{"disabled"}}))
	assert.False(t, onlyDisabledChanged(hubconfig.FieldDiff{ModifiedFields: []string{"disabled", "command"}}))
	assert.False(t, onlyDisabledChanged(hubconfig.FieldDiff{ModifiedFields: []string{"command"}}))
}
