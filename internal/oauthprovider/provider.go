// Package oauthprovider implements the PKCE authorization flow the
// supervisor drives when a remote server answers with 401: dynamic client
// registration, authorization URL construction, code-for-token exchange,
// and refresh, per server, with all persistent state serialized through a
// Store.
package oauthprovider

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	mcptransport "github.com/mark3labs/mcp-go/client/transport"

	"github.com/giantswarm/mcphub/pkg/logging"
)

// DefaultHTTPTimeout bounds every discovery/registration/exchange request
// this package issues.
const DefaultHTTPTimeout = 30 * time.Second

// pendingFlow is the state kept between authorize() constructing the
// authorization URL and handleAuthCallback() completing it.
type pendingFlow struct {
	pkce     *PKCE
	state    string
	metadata *Metadata
	client   *ClientCredentials
}

// Provider is one server's OAuth relationship: its registered client, its
// current token, and any in-flight authorization attempt. Supervisors own
// one Provider per remote connection and discard it on reconnect.
type Provider struct {
	server      string
	issuer      string
	redirectURI string
	scopes      []string
	httpClient  *http.Client
	store       *Store

	mu           sync.Mutex
	token        Token
	client       *ClientCredentials
	pending      *pendingFlow
	generatedURL string
}

// Config configures a new Provider.
type Config struct {
	Server      string
	Issuer      string
	RedirectURI string
	Scopes      []string
	Store       *Store
	HTTPClient  *http.Client
}

// New creates a Provider for one server's remote connection.
func New(cfg Config) *Provider {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Provider{
		server:      cfg.Server,
		issuer:      cfg.Issuer,
		redirectURI: cfg.RedirectURI,
		scopes:      cfg.Scopes,
		httpClient:  httpClient,
		store:       cfg.Store,
	}
}

// Load reads any previously persisted client registration and token for
// this server, so a restarted hub doesn't re-register or re-authorize
// needlessly.
func (p *Provider) Load() error {
	client, issuer, err := p.store.LoadClient(p.server)
	if err != nil {
		return err
	}
	tok, err := p.store.LoadToken(p.server)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
	if issuer != "" {
		p.issuer = issuer
	}
	p.token = tok
	return nil
}

// HasToken reports whether a non-expired token is already available,
// letting a supervisor skip straight to connecting.
func (p *Provider) HasToken() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.token.Expired()
}

// SetIssuer overrides the authorization server this provider discovers
// metadata against, letting a caller that just parsed a 401's
// WWW-Authenticate challenge correct an assumed issuer (§4.4's "the server
// is its own authorization server" default) before Authorize runs.
func (p *Provider) SetIssuer(issuer string) {
	if issuer == "" {
		return
	}
	p.mu.Lock()
	p.issuer = issuer
	p.mu.Unlock()
}

// HasRefreshToken reports whether a refresh token is available to try
// before falling back to a full interactive authorization.
func (p *Provider) HasRefreshToken() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token.RefreshToken != ""
}

// Authorize begins (or resumes) authorization: it ensures a client is
// registered, generates a fresh PKCE pair and state, builds the
// authorization URL, and returns it as generatedAuthUrl (§4.4 step 2). It
// does not open a browser; the caller decides whether and when to.
func (p *Provider) Authorize(ctx context.Context) (string, error) {
	md, err := DiscoverMetadata(ctx, p.httpClient, p.issuer)
	if err != nil {
		return "", fmt.Errorf("discover authorization server metadata: %w", err)
	}

	client, err := p.ensureClient(ctx, md)
	if err != nil {
		return "", err
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return "", err
	}
	state, err := GenerateState()
	if err != nil {
		return "", err
	}

	authURL := p.oauth2Config(md, client).AuthCodeURL(state, oauth2.S256ChallengeOption(pkce.CodeVerifier))

	p.mu.Lock()
	p.pending = &pendingFlow{pkce: pkce, state: state, metadata: md, client: client}
	p.generatedURL = authURL
	p.mu.Unlock()

	logging.Info("OAuthProvider", "generated authorization url for server %s", p.server)
	return authURL, nil
}

// GeneratedAuthURL returns the URL from the most recent Authorize call, or
// "" if authorization hasn't been started (or already completed).
func (p *Provider) GeneratedAuthURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generatedURL
}

// ensureClient registers a client with md's authorization server the first
// time this server is seen, and reuses the persisted registration
// afterwards (§4.4 step 1).
func (p *Provider) ensureClient(ctx context.Context, md *Metadata) (*ClientCredentials, error) {
	p.mu.Lock()
	existing := p.client
	p.mu.Unlock()
	if existing != nil {
		return existing, nil
	}

	creds, err := RegisterClient(ctx, p.httpClient, md, p.redirectURI)
	if err != nil {
		return nil, fmt.Errorf("dynamic client registration: %w", err)
	}
	if err := p.store.SaveClient(p.server, md.Issuer, creds); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.client = creds
	p.mu.Unlock()
	return creds, nil
}

// oauth2Config builds the golang.org/x/oauth2 client configuration for one
// authorization attempt against md, using creds for the client identity.
func (p *Provider) oauth2Config(md *Metadata, creds *ClientCredentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  md.AuthorizationEndpoint,
			TokenURL: md.TokenEndpoint,
		},
		RedirectURL: p.redirectURI,
		Scopes:      p.scopes,
	}
}

func (p *Provider) contextWithHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// HandleAuthCallback exchanges the authorization code from the redirect for
// tokens using the stored verifier, and persists them (§4.4 step 3). state
// must match the value generated for this flow by Authorize — the CSRF
// check the redirect handler cannot skip by trusting the query string
// alone. A mismatch leaves the pending flow intact, since it's the forged
// request that's rejected, not the legitimate one still in flight. A
// matching callback clears the pending flow whether the exchange
// ultimately succeeds or fails, since a code can only be redeemed once.
func (p *Provider) HandleAuthCallback(ctx context.Context, state, code string) error {
	p.mu.Lock()
	pending := p.pending
	if pending == nil {
		p.mu.Unlock()
		return fmt.Errorf("no authorization flow in progress for server %s", p.server)
	}
	if pending.state != state {
		p.mu.Unlock()
		return fmt.Errorf("state mismatch for server %s: possible CSRF attempt", p.server)
	}
	p.pending = nil
	p.generatedURL = ""
	p.mu.Unlock()

	tok, err := p.exchangeCode(ctx, pending, code)
	if err != nil {
		logging.Warn("OAuthProvider", "token exchange failed for server %s: %v", p.server, err)
		return err
	}

	if err := p.store.SaveToken(p.server, tok); err != nil {
		return err
	}

	logging.Info("OAuthProvider", "completed token exchange for server %s: %v", p.server, tok)

	p.mu.Lock()
	p.token = tok
	p.mu.Unlock()
	return nil
}

func (p *Provider) exchangeCode(ctx context.Context, pending *pendingFlow, code string) (Token, error) {
	cfg := p.oauth2Config(pending.metadata, pending.client)
	tok, err := cfg.Exchange(p.contextWithHTTPClient(ctx), code, oauth2.VerifierOption(pending.pkce.CodeVerifier))
	if err != nil {
		return Token{}, fmt.Errorf("exchange code: %w", err)
	}
	return fromOAuth2Token(tok), nil
}

// Refresh exchanges the stored refresh token for a new access token, per
// §4.4 step 4's "on 401, attempt one refresh". It delegates the actual
// refresh_token grant to golang.org/x/oauth2's TokenSource.
func (p *Provider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	refreshToken := p.token.RefreshToken
	client := p.client
	issuer := p.issuer
	p.mu.Unlock()

	if refreshToken == "" {
		return fmt.Errorf("no refresh token available for server %s", p.server)
	}
	if client == nil {
		return fmt.Errorf("no registered client for server %s", p.server)
	}

	md, err := DiscoverMetadata(ctx, p.httpClient, issuer)
	if err != nil {
		return fmt.Errorf("discover authorization server metadata: %w", err)
	}

	cfg := p.oauth2Config(md, client)
	src := cfg.TokenSource(p.contextWithHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	refreshed, err := src.Token()
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}

	tok := fromOAuth2Token(refreshed)
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}

	if err := p.store.SaveToken(p.server, tok); err != nil {
		return err
	}

	p.mu.Lock()
	p.token = tok
	p.mu.Unlock()
	return nil
}

func fromOAuth2Token(tok *oauth2.Token) Token {
	return Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

// BearerToken implements transport.AuthTokenSource for internal/transport,
// letting a supervisor's remote client inject the current access token
// without knowing anything about registration or refresh.
func (p *Provider) BearerToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token.Bearer()
}

// GetToken implements mcp-go's transport.TokenStore, for callers that wire
// the provider directly into transport.WithHTTPOAuth instead of manual
// header injection.
func (p *Provider) GetToken(ctx context.Context) (*mcptransport.Token, error) {
	p.mu.Lock()
	tok := p.token
	p.mu.Unlock()

	if tok.AccessToken == "" {
		return nil, mcptransport.ErrNoToken
	}
	return &mcptransport.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// SaveToken implements mcp-go's transport.TokenStore, persisting tokens
// mcp-go itself refreshes.
func (p *Provider) SaveToken(ctx context.Context, tok *mcptransport.Token) error {
	if tok == nil {
		return nil
	}
	saved := Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.ExpiresAt,
	}
	if err := p.store.SaveToken(p.server, saved); err != nil {
		return err
	}
	p.mu.Lock()
	p.token = saved
	p.mu.Unlock()
	return nil
}

var _ mcptransport.TokenStore = (*Provider)(nil)
