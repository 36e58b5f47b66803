package oauthprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestAuthServer stands in for a real authorization server: it serves
// metadata, dynamic client registration, and the token endpoint, and hands
// back deterministic values the tests assert against.
func newTestAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	var issuer string
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/authorize",
			"token_endpoint":         issuer + "/token",
			"registration_endpoint":  issuer + "/register",
		})
	})
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"client_id": "test-client-id"})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.FormValue("grant_type") {
		case "authorization_code":
			assert.Equal(t, "test-code", r.FormValue("code"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
		case "refresh_token":
			assert.Equal(t, "refresh-1", r.FormValue("refresh_token"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-2",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		default:
			http.Error(w, "unsupported grant_type", http.StatusBadRequest)
		}
	})

	srv := httptest.NewServer(mux)
	issuer = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, issuer string) *Provider {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return New(Config{
		Server:      "remote-notes",
		Issuer:      issuer,
		RedirectURI: "http://127.0.0.1:9876/oauth/callback/remote-notes",
		Scopes:      []string{"mcp"},
		Store:       store,
	})
}

func TestAuthorize_RegistersClientAndBuildsURL(t *testing.T) {
	srv := newTestAuthServer(t)
	p := newTestProvider(t, srv.URL)

	authURL, err := p.Authorize(context.Background())
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "test-client-id", q.Get("client_id"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("state"))
	assert.Equal(t, authURL, p.GeneratedAuthURL())
}

// stateFromAuthURL extracts the "state" query parameter a redirect handler
// would receive back from the authorization server, mirroring what a real
// callback request carries.
func stateFromAuthURL(t *testing.T, authURL string) string {
	t.Helper()
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	return parsed.Query().Get("state")
}

func TestHandleAuthCallback_ExchangesCodeAndPersistsToken(t *testing.T) {
	srv := newTestAuthServer(t)
	p := newTestProvider(t, srv.URL)

	authURL, err := p.Authorize(context.Background())
	require.NoError(t, err)

	err = p.HandleAuthCallback(context.Background(), stateFromAuthURL(t, authURL), "test-code")
	require.NoError(t, err)

	assert.True(t, p.HasToken())
	assert.Equal(t, "Bearer access-1", p.BearerToken())
	assert.Empty(t, p.GeneratedAuthURL(), "authorize state should be cleared after a successful callback")
}

func TestHandleAuthCallback_WithoutAuthorizeFails(t *testing.T) {
	srv := newTestAuthServer(t)
	p := newTestProvider(t, srv.URL)

	err := p.HandleAuthCallback(context.Background(), "any-state", "test-code")
	require.Error(t, err)
}

func TestHandleAuthCallback_StateMismatchIsRejected(t *testing.T) {
	srv := newTestAuthServer(t)
	p := newTestProvider(t, srv.URL)

	_, err := p.Authorize(context.Background())
	require.NoError(t, err)

	err = p.HandleAuthCallback(context.Background(), "wrong-state", "test-code")
	require.Error(t, err)
	assert.False(t, p.HasToken())
	assert.NotEmpty(t, p.GeneratedAuthURL(), "a forged callback must not consume the legitimate pending flow")
}

func TestRefresh_RotatesAccessTokenKeepingRefreshToken(t *testing.T) {
	srv := newTestAuthServer(t)
	p := newTestProvider(t, srv.URL)

	authURL, err := p.Authorize(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.HandleAuthCallback(context.Background(), stateFromAuthURL(t, authURL), "test-code"))

	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, "Bearer access-2", p.BearerToken())
	assert.True(t, p.HasRefreshToken(), "refresh response carried no refresh_token, so refresh-1 must be kept")
}

func TestStore_ClientRegistrationSurvivesReload(t *testing.T) {
	srv := newTestAuthServer(t)
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	p1 := New(Config{Server: "s", Issuer: srv.URL, RedirectURI: "http://x/cb", Store: store})
	_, err = p1.Authorize(context.Background())
	require.NoError(t, err)

	store2, err := NewStore(dir)
	require.NoError(t, err)
	p2 := New(Config{Server: "s", Issuer: srv.URL, RedirectURI: "http://x/cb", Store: store2})
	require.NoError(t, p2.Load())

	client, issuer, err := store2.LoadClient("s")
	require.NoError(t, err)
	assert.Equal(t, "test-client-id", client.ClientID)
	assert.Equal(t, srv.URL, issuer)
}
