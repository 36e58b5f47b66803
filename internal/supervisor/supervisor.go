// Package supervisor drives a single managed server through its connection
// lifecycle: resolving its configuration, picking and building a transport,
// discovering its capabilities, and forwarding tool/resource/prompt
// requests once connected. Each Supervisor is logically single-threaded
// from its own perspective — every lifecycle operation (start, stop,
// connect, disconnect, auth callback, dev-watch restart) serializes on opMu,
// so a connect in progress can't race a concurrent disconnect or reconnect.
// Dispatch and capability refreshes take only mu.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcphub/internal/eventbus"
	"github.com/giantswarm/mcphub/internal/huberrors"
	"github.com/giantswarm/mcphub/internal/hubconfig"
	"github.com/giantswarm/mcphub/internal/oauthprovider"
	"github.com/giantswarm/mcphub/internal/placeholder"
	"github.com/giantswarm/mcphub/internal/transport"
	"github.com/giantswarm/mcphub/pkg/logging"
)

// Notification methods this supervisor recognizes. The protocol defines
// list-changed notifications for tools, resources, and prompts; resource
// templates ride along with a resources change since the wire protocol
// does not give them a notification of their own.
const (
	notifyToolsChanged     = "notifications/tools/list_changed"
	notifyResourcesChanged = "notifications/resources/list_changed"
	notifyPromptsChanged   = "notifications/prompts/list_changed"
)

// authRateLimitWindow and authRateLimitMax bound how often handleAuthCallback
// can be driven per server, the same sliding-window shape and defaults as
// an auth rate limiter guarding an authentication callback endpoint.
const (
	authRateLimitWindow = time.Minute
	authRateLimitMax    = 10
)

// allowAuthAttempt records an OAuth callback attempt and reports whether it
// falls within the rate limit, evicting attempts outside the window as it
// goes.
func (s *Supervisor) allowAuthAttempt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-authRateLimitWindow)
	recent := make([]time.Time, 0, len(s.authAttempts))
	for _, t := range s.authAttempts {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= authRateLimitMax {
		s.authAttempts = recent
		logging.Warn(s.name, "oauth callback rate limit exceeded (%d attempts in %s)", len(recent), authRateLimitWindow)
		return false
	}

	s.authAttempts = append(recent, now)
	return true
}

// resetAuthAttempts clears the rate limit counter after a successful
// callback, so a legitimate re-authorization later isn't penalized by
// earlier failed attempts.
func (s *Supervisor) resetAuthAttempts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authAttempts = nil
}

// OAuthConfig is the hub-wide OAuth wiring every remote supervisor shares:
// where its Provider persists state and how its per-server redirect URI is
// built.
type OAuthConfig struct {
	RedirectBaseURL string
	Scopes          []string
	Store           *oauthprovider.Store
}

func (c OAuthConfig) redirectURI(server string) string {
	if c.RedirectBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/oauth/%s/callback", c.RedirectBaseURL, server)
}

// Config constructs a Supervisor.
type Config struct {
	Name     string
	Server   hubconfig.ServerConfig
	Bus      *eventbus.Bus
	Resolver *placeholder.Resolver
	OAuth    OAuthConfig
}

// Supervisor owns one managed server's connection: its config, state,
// transport, protocol client, last-discovered capabilities, and optional
// OAuth provider.
type Supervisor struct {
	name     string
	bus      *eventbus.Bus
	resolver *placeholder.Resolver
	oauth    OAuthConfig

	opMu sync.Mutex // serializes start/stop/connect/disconnect/auth callback

	mu           sync.Mutex // guards the fields below
	cfg          hubconfig.ServerConfig
	state        State
	errMsg       string
	startTime    time.Time
	caps         Capabilities
	client       *transport.Client
	provider     *oauthprovider.Provider
	dev          *devWatcher
	generation   uint64
	authAttempts []time.Time
}

// New creates a Supervisor in the disabled or disconnected state depending
// on cfg.Disabled.
func New(cfg Config) *Supervisor {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = placeholder.New(placeholder.Options{Mode: placeholder.Strict})
	}

	s := &Supervisor{
		name:     cfg.Name,
		bus:      cfg.Bus,
		resolver: resolver,
		oauth:    cfg.OAuth,
		cfg:      cfg.Server,
	}
	if cfg.Server.Disabled {
		s.state = StateDisabled
	} else {
		s.state = StateDisconnected
	}
	return s
}

// Info returns a point-in-time snapshot.
func (s *Supervisor) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Supervisor) snapshotLocked() Info {
	info := Info{
		Name:      s.name,
		State:     s.state,
		Error:     s.errMsg,
		StartTime: s.startTime,
		Capabilities: Capabilities{
			Tools:             append([]ToolInfo(nil), s.caps.Tools...),
			Resources:         append([]ResourceInfo(nil), s.caps.Resources...),
			ResourceTemplates: append([]ResourceTemplateInfo(nil), s.caps.ResourceTemplates...),
			Prompts:           append([]PromptInfo(nil), s.caps.Prompts...),
		},
	}
	if s.provider != nil {
		info.AuthorizationURL = s.provider.GeneratedAuthURL()
	}
	return info
}

// Start brings a non-disabled supervisor up, per the start() contract:
// it never returns an error, instead surfacing a failed connect as a
// disconnected snapshot with Error set.
func (s *Supervisor) Start(ctx context.Context) Info {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	disabled := s.state == StateDisabled
	s.mu.Unlock()
	if disabled {
		return s.Info()
	}

	if _, err := s.connectLocked(ctx, nil); err != nil {
		logging.Warn(s.name, "start: %v", err)
	}
	return s.Info()
}

// Stop tears the connection down and, if disable is true, moves the
// supervisor to the disabled state so Start becomes a no-op until a
// caller flips it back.
func (s *Supervisor) Stop(disable bool) Info {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.disconnectLocked("stop requested")

	s.mu.Lock()
	if disable {
		s.state = StateDisabled
	} else {
		s.state = StateDisconnected
	}
	s.mu.Unlock()

	return s.Info()
}

// Connect runs the full connect algorithm (§4.5), optionally replacing the
// server config first.
func (s *Supervisor) Connect(ctx context.Context, cfg *hubconfig.ServerConfig) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	_, err := s.connectLocked(ctx, cfg)
	return err
}

// connectLocked assumes opMu is held.
func (s *Supervisor) connectLocked(ctx context.Context, cfg *hubconfig.ServerConfig) (Info, error) {
	s.mu.Lock()
	if s.state == StateDisabled {
		s.mu.Unlock()
		return Info{}, huberrors.New(huberrors.ConnectionFailed, "connect", s.name).WithData("reason", "disabled")
	}
	if cfg != nil {
		s.cfg = *cfg
	}
	s.state = StateConnecting
	s.errMsg = ""
	s.generation++
	gen := s.generation
	cfg2 := s.cfg
	s.mu.Unlock()

	resolved, err := s.resolveConfig(ctx, cfg2)
	if err != nil {
		return s.failConnect(err)
	}
	if dump, dumpErr := resolved.DumpYAML(); dumpErr == nil {
		logging.Debug("Supervisor", "resolved config for %s:\n%s", s.name, dump)
	}

	var cli *transport.Client
	var provider *oauthprovider.Provider
	var state State

	switch cfg2.Kind {
	case hubconfig.KindStdio:
		cli, err = transport.NewStdio(resolved)
		if err != nil {
			return s.failConnect(huberrors.Wrap(huberrors.ConnectionFailed, "connect", s.name, err))
		}
		state = StateConnected
	case hubconfig.KindRemote:
		cli, provider, state, err = s.connectRemote(ctx, cfg2, resolved)
		if err != nil {
			return s.failConnect(huberrors.Wrap(huberrors.ConnectionFailed, "connect", s.name, err))
		}
	default:
		return s.failConnect(huberrors.New(huberrors.ConnectionFailed, "connect", s.name).WithData("kind", cfg2.Kind))
	}

	if state == StateUnauthorized {
		s.mu.Lock()
		s.state = StateUnauthorized
		s.provider = provider
		s.mu.Unlock()
		return s.Info(), nil
	}

	if _, err := cli.Initialize(ctx); err != nil {
		cli.Close()
		return s.failConnect(huberrors.Wrap(huberrors.ConnectionFailed, "connect", s.name, err))
	}

	caps, err := discoverCapabilities(ctx, cli)
	if err != nil {
		cli.Close()
		return s.failConnect(huberrors.Wrap(huberrors.ConnectionFailed, "connect", s.name, err))
	}

	cli.OnNotification(s.notificationHandler(gen))

	s.mu.Lock()
	if s.generation != gen {
		// A newer connect/disconnect already superseded this attempt.
		s.mu.Unlock()
		cli.Close()
		return Info{}, huberrors.New(huberrors.ConnectionFailed, "connect", s.name).WithData("reason", "superseded")
	}
	s.client = cli
	s.provider = provider
	s.caps = caps
	s.state = StateConnected
	s.startTime = time.Now()
	s.errMsg = ""
	info := s.snapshotLocked()
	s.mu.Unlock()

	s.startDevWatch(cfg2)

	return info, nil
}

func (s *Supervisor) failConnect(err error) (Info, error) {
	s.disconnectLocked(err.Error())
	s.mu.Lock()
	s.state = StateDisconnected
	s.errMsg = err.Error()
	info := s.snapshotLocked()
	s.mu.Unlock()
	return info, err
}

// connectRemote implements §4.5 step 2's remote branch: streaming HTTP
// first through a fresh provider, falling back to SSE (also through a
// fresh provider) on any non-authorization error. Per §8 scenario 3, the
// fallback re-resolves cfg from scratch rather than reusing the streaming
// attempt's resolved config, so a "${cmd: ...}" placeholder that reads
// something time-varying (a rotating token, a fresh nonce) is evaluated
// once per connection attempt, not once per connect() call.
func (s *Supervisor) connectRemote(ctx context.Context, cfg hubconfig.ServerConfig, resolved hubconfig.ResolvedServerConfig) (*transport.Client, *oauthprovider.Provider, State, error) {
	provider := s.newProvider(resolved.URL)
	if err := provider.Load(); err != nil {
		logging.Warn(s.name, "load oauth state: %v", err)
	}

	cli, err := transport.NewStreamableHTTP(ctx, resolved, provider)
	if err == nil {
		return cli, provider, StateConnected, nil
	}
	if transport.IsAuthorizationError(err) {
		return s.recoverFromAuthorizationError(ctx, provider, resolved.URL, err, func() (*transport.Client, error) {
			return transport.NewStreamableHTTP(ctx, resolved, provider)
		})
	}
	logging.Warn(s.name, "streaming http failed, falling back to sse: %v", err)

	resolvedSSE, err := s.resolveConfig(ctx, cfg)
	if err != nil {
		return nil, nil, StateDisconnected, err
	}

	sseProvider := s.newProvider(resolvedSSE.URL)
	if err := sseProvider.Load(); err != nil {
		logging.Warn(s.name, "load oauth state: %v", err)
	}

	cli, err = transport.NewSSE(ctx, resolvedSSE, sseProvider)
	if err == nil {
		return cli, sseProvider, StateConnected, nil
	}
	if transport.IsAuthorizationError(err) {
		return s.recoverFromAuthorizationError(ctx, sseProvider, resolvedSSE.URL, err, func() (*transport.Client, error) {
			return transport.NewSSE(ctx, resolvedSSE, sseProvider)
		})
	}
	return nil, nil, StateDisconnected, err
}

// recoverFromAuthorizationError implements §4.4 step 4: a 401 tries exactly
// one silent refresh before falling back to a fresh interactive PKCE flow.
// reconnect rebuilds the same transport against provider, whose token has
// just been refreshed in place, so a successful refresh yields a connected
// client instead of dropping to the unauthorized state.
func (s *Supervisor) recoverFromAuthorizationError(ctx context.Context, provider *oauthprovider.Provider, probeURL string, cause error, reconnect func() (*transport.Client, error)) (*transport.Client, *oauthprovider.Provider, State, error) {
	if provider.HasRefreshToken() {
		if err := provider.Refresh(ctx); err != nil {
			logging.Warn(s.name, "token refresh failed: %v", err)
		} else if cli, err := reconnect(); err == nil {
			return cli, provider, StateConnected, nil
		} else {
			logging.Warn(s.name, "reconnect after token refresh failed: %v", err)
		}
	}
	return s.awaitAuthorization(ctx, provider, probeURL, cause)
}

// awaitAuthorization treats a 401 as a successful wait for human action: it
// probes the server directly to recover the WWW-Authenticate challenge a
// real 401 response carries (mcp-go's own client doesn't surface the raw
// response through its typed authorization error), corrects the provider's
// assumed issuer from it per RFC 9728, kicks off the PKCE flow, and returns
// the unauthorized state rather than an error.
func (s *Supervisor) awaitAuthorization(ctx context.Context, provider *oauthprovider.Provider, probeURL string, cause error) (*transport.Client, *oauthprovider.Provider, State, error) {
	if challenge := probeChallenge(ctx, probeURL); challenge != nil && challenge.Issuer != "" {
		provider.SetIssuer(challenge.Issuer)
	}
	if _, err := provider.Authorize(ctx); err != nil {
		return nil, nil, StateDisconnected, fmt.Errorf("%w (authorization also failed: %v)", cause, err)
	}
	return nil, provider, StateUnauthorized, nil
}

// probeChallenge issues a bare unauthenticated GET against url to recover
// the WWW-Authenticate header a protected resource's 401 response carries,
// the same direct-probe technique used to detect authentication
// requirements ahead of the protocol handshake. Best-effort: any failure
// (network error, non-401 response, unparsable header) just means the
// provider keeps its already-assumed issuer.
func probeChallenge(ctx context.Context, url string) *oauthprovider.Challenge {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	cli := &http.Client{Timeout: 5 * time.Second}
	resp, err := cli.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	return oauthprovider.ChallengeFromResponse(resp)
}

// newProvider builds a fresh Provider for one connection attempt. issuer is
// the remote server's own URL: absent a WWW-Authenticate challenge to
// inspect before a transport exists, the resource server doubles as its
// own authorization server issuer, and Load() will override it with a
// previously persisted issuer if registration already happened.
func (s *Supervisor) newProvider(issuer string) *oauthprovider.Provider {
	return oauthprovider.New(oauthprovider.Config{
		Server:      s.name,
		Issuer:      issuer,
		RedirectURI: s.oauth.redirectURI(s.name),
		Scopes:      s.oauth.Scopes,
		Store:       s.oauth.Store,
	})
}

func discoverCapabilities(ctx context.Context, cli *transport.Client) (Capabilities, error) {
	tools, err := cli.ListTools(ctx)
	if err != nil {
		return Capabilities{}, err
	}
	resources, err := cli.ListResources(ctx)
	if err != nil {
		return Capabilities{}, err
	}
	templates, err := cli.ListResourceTemplates(ctx)
	if err != nil {
		return Capabilities{}, err
	}
	prompts, err := cli.ListPrompts(ctx)
	if err != nil {
		return Capabilities{}, err
	}

	caps := Capabilities{}
	for _, t := range tools {
		caps.Tools = append(caps.Tools, ToolInfo{Name: t.Name, Raw: t})
	}
	for _, r := range resources {
		caps.Resources = append(caps.Resources, ResourceInfo{URI: r.URI, Raw: r})
	}
	for _, tpl := range templates {
		caps.ResourceTemplates = append(caps.ResourceTemplates, ResourceTemplateInfo{URITemplate: tpl.URITemplate.Raw(), Raw: tpl})
	}
	for _, p := range prompts {
		caps.Prompts = append(caps.Prompts, PromptInfo{Name: p.Name, Raw: p})
	}
	return caps, nil
}

// notificationHandler routes the three list-changed notifications to a
// partial capability refresh, discarding results from a superseded
// generation (one that has since disconnected or reconnected).
func (s *Supervisor) notificationHandler(gen uint64) func(mcp.JSONRPCNotification) {
	return func(n mcp.JSONRPCNotification) {
		var kind string
		switch n.Method {
		case notifyToolsChanged:
			kind = "tools"
		case notifyResourcesChanged:
			kind = "resources"
		case notifyPromptsChanged:
			kind = "prompts"
		default:
			logging.Debug(s.name, "notification: %s", n.Method)
			return
		}
		go s.handleListChanged(gen, kind)
	}
}

func (s *Supervisor) handleListChanged(gen uint64, kind string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.updateCapabilitiesGen(ctx, gen, kind); err != nil {
		logging.Warn(s.name, "refresh %s after list_changed: %v", kind, err)
		return
	}

	var subtype eventbus.Subtype
	switch kind {
	case "tools":
		subtype = eventbus.SubtypeToolListChanged
	case "resources":
		subtype = eventbus.SubtypeResourceListChanged
	case "prompts":
		subtype = eventbus.SubtypePromptListChanged
	default:
		return
	}
	if s.bus != nil {
		s.bus.PublishSubscription(subtype, s.name, nil)
	}
}

// UpdateCapabilities re-fetches the given kinds (or all four when none are
// given), silently doing nothing for a kind it doesn't recognize.
func (s *Supervisor) UpdateCapabilities(ctx context.Context, kinds ...string) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	if len(kinds) == 0 {
		kinds = []string{"tools", "resources", "resourceTemplates", "prompts"}
	}
	for _, kind := range kinds {
		if err := s.updateCapabilitiesGen(ctx, gen, kind); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) updateCapabilitiesGen(ctx context.Context, gen uint64, kind string) error {
	s.mu.Lock()
	cli := s.client
	connected := s.state == StateConnected
	s.mu.Unlock()
	if !connected || cli == nil {
		return nil
	}

	var apply func()
	switch kind {
	case "tools":
		tools, err := cli.ListTools(ctx)
		if err != nil {
			return err
		}
		out := make([]ToolInfo, 0, len(tools))
		for _, t := range tools {
			out = append(out, ToolInfo{Name: t.Name, Raw: t})
		}
		apply = func() { s.caps.Tools = out }
	case "resources", "resourceTemplates":
		resources, err := cli.ListResources(ctx)
		if err != nil {
			return err
		}
		templates, err := cli.ListResourceTemplates(ctx)
		if err != nil {
			return err
		}
		outR := make([]ResourceInfo, 0, len(resources))
		for _, r := range resources {
			outR = append(outR, ResourceInfo{URI: r.URI, Raw: r})
		}
		outT := make([]ResourceTemplateInfo, 0, len(templates))
		for _, tpl := range templates {
			outT = append(outT, ResourceTemplateInfo{URITemplate: tpl.URITemplate.Raw(), Raw: tpl})
		}
		apply = func() { s.caps.Resources = outR; s.caps.ResourceTemplates = outT }
	case "prompts":
		prompts, err := cli.ListPrompts(ctx)
		if err != nil {
			return err
		}
		out := make([]PromptInfo, 0, len(prompts))
		for _, p := range prompts {
			out = append(out, PromptInfo{Name: p.Name, Raw: p})
		}
		apply = func() { s.caps.Prompts = out }
	default:
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil // superseded; discard
	}
	apply()
	return nil
}

// CallTool dispatches a tool invocation after the shared capability guard.
func (s *Supervisor) CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error) {
	cli, err := s.guardDispatch("callTool", args, func() bool { return s.hasTool(name) }, huberrors.ToolNotFound, s.toolNames)
	if err != nil {
		return nil, err
	}
	res, err := cli.CallTool(ctx, name, args)
	if err != nil {
		return nil, huberrors.Wrap(huberrors.ToolExecutionFailed, "callTool", s.name, err).WithData("tool", name)
	}
	return res, nil
}

// ReadResource dispatches a resource read after the shared capability
// guard, matching resourceTemplates when uri isn't a literal resource.
func (s *Supervisor) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	cli, err := s.guardDispatch("readResource", nil, func() bool { return s.hasResource(uri) }, huberrors.ResourceNotFound, s.resourceNames)
	if err != nil {
		return nil, err
	}
	res, err := cli.ReadResource(ctx, uri)
	if err != nil {
		return nil, huberrors.Wrap(huberrors.ResourceReadFailed, "readResource", s.name, err).WithData("uri", uri)
	}
	return res, nil
}

// GetPrompt dispatches a prompt render after the shared capability guard.
// Prompt arguments are string-keyed per the protocol; a sequence is
// rejected here even though the generic guard admits it.
func (s *Supervisor) GetPrompt(ctx context.Context, name string, args any) (*mcp.GetPromptResult, error) {
	cli, err := s.guardDispatch("getPrompt", args, func() bool { return s.hasPrompt(name) }, huberrors.PromptNotFound, s.promptNames)
	if err != nil {
		return nil, err
	}
	strArgs, err := toStringArgs(args)
	if err != nil {
		return nil, huberrors.New(huberrors.InvalidArguments, "getPrompt", s.name)
	}
	res, err := cli.GetPrompt(ctx, name, strArgs)
	if err != nil {
		return nil, huberrors.Wrap(huberrors.PromptExecutionFailed, "getPrompt", s.name, err).WithData("prompt", name)
	}
	return res, nil
}

func toStringArgs(args any) (map[string]string, error) {
	switch v := args.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return v, nil
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[k] = fmt.Sprint(val)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("prompt arguments must be a mapping or null")
	}
}

// guardDispatch enforces the shared sequence from §4.5's capability
// dispatch: connected, the target exists, and args has an acceptable
// shape. Per §7, a not-found error is a caller error and includes the
// names actually available, from available().
func (s *Supervisor) guardDispatch(op string, args any, exists func() bool, notFoundCode huberrors.Code, available func() []string) (*transport.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, huberrors.New(huberrors.NotInitialized, op, s.name)
	}
	if s.state != StateConnected {
		return nil, huberrors.New(huberrors.NotConnected, op, s.name)
	}
	if !exists() {
		return nil, huberrors.New(notFoundCode, op, s.name).WithData("available", available())
	}
	switch args.(type) {
	case nil, map[string]any, []any:
	default:
		return nil, huberrors.New(huberrors.InvalidArguments, op, s.name)
	}
	return s.client, nil
}

func (s *Supervisor) toolNames() []string {
	names := make([]string, 0, len(s.caps.Tools))
	for _, t := range s.caps.Tools {
		names = append(names, t.Name)
	}
	return names
}

func (s *Supervisor) resourceNames() []string {
	names := make([]string, 0, len(s.caps.Resources)+len(s.caps.ResourceTemplates))
	for _, r := range s.caps.Resources {
		names = append(names, r.URI)
	}
	for _, t := range s.caps.ResourceTemplates {
		names = append(names, t.URITemplate)
	}
	return names
}

func (s *Supervisor) promptNames() []string {
	names := make([]string, 0, len(s.caps.Prompts))
	for _, p := range s.caps.Prompts {
		names = append(names, p.Name)
	}
	return names
}

func (s *Supervisor) hasTool(name string) bool {
	for _, t := range s.caps.Tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

func (s *Supervisor) hasResource(uri string) bool {
	for _, r := range s.caps.Resources {
		if r.URI == uri {
			return true
		}
	}
	for _, t := range s.caps.ResourceTemplates {
		if matchURITemplate(t.URITemplate, uri) {
			return true
		}
	}
	return false
}

func (s *Supervisor) hasPrompt(name string) bool {
	for _, p := range s.caps.Prompts {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Authorize returns the URL generated by the most recent unauthorized
// connect attempt, per the authorize() contract entry.
func (s *Supervisor) Authorize() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider == nil {
		return "", huberrors.New(huberrors.Unauthorized, "authorize", s.name).WithData("reason", "no oauth flow in progress")
	}
	url := s.provider.GeneratedAuthURL()
	if url == "" {
		return "", huberrors.New(huberrors.Unauthorized, "authorize", s.name).WithData("reason", "no authorization url available")
	}
	return url, nil
}

// HandleAuthCallback completes the PKCE flow and reconnects using the
// freshly obtained token. state is the redirect's own "state" query
// parameter, checked by the provider against the value generated for this
// flow. The callback path is rate-limited (authRateLimitMax attempts per
// authRateLimitWindow) so a client cannot hammer it with guessed codes.
func (s *Supervisor) HandleAuthCallback(ctx context.Context, state, code string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.allowAuthAttempt() {
		return huberrors.New(huberrors.Unauthorized, "handleAuthCallback", s.name).WithData("reason", "rate limited")
	}

	s.mu.Lock()
	provider := s.provider
	s.mu.Unlock()
	if provider == nil {
		return huberrors.New(huberrors.Unauthorized, "handleAuthCallback", s.name).WithData("reason", "no oauth flow in progress")
	}

	if err := provider.HandleAuthCallback(ctx, state, code); err != nil {
		return huberrors.Wrap(huberrors.Unauthorized, "handleAuthCallback", s.name, err)
	}
	s.resetAuthAttempts()

	if _, err := s.connectLocked(ctx, nil); err != nil {
		return err
	}
	return nil
}

// GetServerInfo returns the current snapshot, per the getServerInfo()
// contract entry.
func (s *Supervisor) GetServerInfo() Info {
	return s.Info()
}

// disconnectLocked assumes opMu is held; it is idempotent and best-effort.
func (s *Supervisor) disconnectLocked(reason string) {
	s.stopDevWatch()

	s.mu.Lock()
	cli := s.client
	s.client = nil
	s.provider = nil
	s.caps = Capabilities{}
	s.generation++
	s.mu.Unlock()

	if cli != nil {
		if err := cli.Close(); err != nil {
			logging.Warn(s.name, "disconnect (%s): close failed: %v", reason, err)
		}
	}
}

// Disconnect tears the transport down without changing the disabled flag,
// leaving the supervisor in state disconnected.
func (s *Supervisor) Disconnect(reason string) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.disconnectLocked(reason)
	s.mu.Lock()
	if s.state != StateDisabled {
		s.state = StateDisconnected
	}
	s.mu.Unlock()
}

func (s *Supervisor) resolveConfig(ctx context.Context, cfg hubconfig.ServerConfig) (hubconfig.ResolvedServerConfig, error) {
	fields := placeholder.Fields{
		Env:     cfg.Env,
		Args:    cfg.Args,
		Headers: cfg.Headers,
		URL:     cfg.URL,
		Command: cfg.Command,
	}
	result, err := s.resolver.Resolve(ctx, s.name, fields)
	if err != nil {
		return hubconfig.ResolvedServerConfig{}, err
	}
	for _, w := range result.Warnings {
		logging.Warn(s.name, "%s", w)
	}
	return hubconfig.ResolvedServerConfig{
		Name:    s.name,
		Kind:    cfg.Kind,
		Command: result.Command,
		Args:    result.Args,
		Env:     result.Env,
		URL:     result.URL,
		Headers: result.Headers,
	}, nil
}

func (s *Supervisor) startDevWatch(cfg hubconfig.ServerConfig) {
	if cfg.Kind != hubconfig.KindStdio || cfg.Dev == nil || !cfg.Dev.Enabled {
		return
	}
	w := newDevWatcher(cfg.Dev, func() {
		logging.Info(s.name, "dev watch: change detected, restarting")
		s.opMu.Lock()
		defer s.opMu.Unlock()
		s.disconnectLocked("dev watch restart")
		if _, err := s.connectLocked(context.Background(), nil); err != nil {
			logging.Warn(s.name, "dev watch restart failed: %v", err)
		}
	})
	if err := w.start(); err != nil {
		logging.Warn(s.name, "dev watch: %v", err)
		return
	}
	s.mu.Lock()
	s.dev = w
	s.mu.Unlock()
}

func (s *Supervisor) stopDevWatch() {
	s.mu.Lock()
	w := s.dev
	s.dev = nil
	s.mu.Unlock()
	if w != nil {
		w.stop()
	}
}
