package oauthprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChallenge_RealmAndResourceMetadata(t *testing.T) {
	c, err := ParseChallenge(`Bearer realm="https://auth.example.com", resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", c.Scheme)
	assert.Equal(t, "https://auth.example.com", c.Realm)
	assert.Equal(t, "https://auth.example.com", c.Issuer)
	assert.Equal(t, "https://mcp.example.com/.well-known/oauth-protected-resource", c.ResourceMetadataURL)
}

func TestParseChallenge_SchemeOnly(t *testing.T) {
	c, err := ParseChallenge("Bearer")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", c.Scheme)
	assert.Empty(t, c.Realm)
}

func TestParseChallenge_Empty(t *testing.T) {
	_, err := ParseChallenge("")
	require.Error(t, err)
}
