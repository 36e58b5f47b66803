// Package transport builds the three flavors of MCP client connection the
// hub can supervise — stdio child process, streaming HTTP, and the
// server-sent-events fallback — behind one façade so the supervisor never
// branches on transport kind after connect time.
package transport

import (
	"context"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcphub/internal/hubconfig"
)

// Flavor names the concrete wire transport in use, mostly for logging.
type Flavor string

const (
	FlavorStdio           Flavor = "stdio"
	FlavorStreamableHTTP  Flavor = "streamable_http"
	FlavorSSE             Flavor = "sse"
)

// AuthTokenSource is implemented by the OAuth provider (§4.4) and injected
// into the SSE transport as a static bearer header; streaming HTTP uses the
// richer transport.TokenStore wiring in NewStreamableHTTP instead, since
// mcp-go only exposes an OAuth transport option for that flavor.
type AuthTokenSource interface {
	// BearerToken returns the current "Bearer <token>" header value, or ""
	// if no token is held yet.
	BearerToken() string
}

// Client is the common façade every transport flavor exposes to the
// supervisor: everything needed to drive the MCP protocol plus close() and
// an optional stderr stream, per §4.3/§4.5.
type Client struct {
	Flavor Flavor

	inner     client.MCPClient
	sessionID string
	stderr    io.Reader
}

// sessionTerminator is implemented by transports that expose a remote
// session id and a way to end it explicitly, distinct from Close().
type sessionTerminator interface {
	TerminateSession(ctx context.Context) error
}

// Close tears the transport down. It calls TerminateSession first only when
// sessionID is set, and no constructor in this package sets it, so Close
// itself sends no separate session-termination request; any session
// teardown is whatever the underlying mcp-go client's Close does.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	if c.sessionID != "" {
		if terminator, ok := c.inner.(sessionTerminator); ok {
			_ = terminator.TerminateSession(context.Background())
		}
	}
	return c.inner.Close()
}

// Stderr returns the stdio child's stderr stream, if this is a stdio
// transport.
func (c *Client) Stderr() (io.Reader, bool) {
	if c == nil || c.stderr == nil {
		return nil, false
	}
	return c.stderr, true
}

// Raw exposes the underlying mcp-go client for protocol calls this façade
// does not wrap; the supervisor itself uses the wrapper methods below. Kept
// as a method rather than an embedded field so Client can add
// transport-agnostic behavior later without changing call sites.
func (c *Client) Raw() client.MCPClient { return c.inner }

// NewStdio launches the resolved command as a child process and speaks
// line-delimited JSON-RPC over its stdio, per §4.3.
func NewStdio(resolved hubconfig.ResolvedServerConfig) (*Client, error) {
	envStrings := make([]string, 0, len(resolved.Env))
	for k, v := range resolved.Env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := client.NewStdioMCPClient(resolved.Command, envStrings, resolved.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdio transport: %w", err)
	}

	var stderr io.Reader
	if r, ok := client.GetStderr(mcpClient); ok {
		stderr = r
	}

	return &Client{Flavor: FlavorStdio, inner: mcpClient, stderr: stderr}, nil
}

// NewStreamableHTTP opens a single long-lived HTTP request per session
// against resolved.URL, with resolved.Headers passed verbatim. Auth is
// delegated to mcp-go's own OAuth handler via tokenStore rather than a
// one-time header snapshot: it calls tokenStore.GetToken on every request,
// so a token refreshed after this client was built is still picked up, and
// it returns a typed OAuthAuthorizationRequiredError on 401 instead of a
// plain HTTP error, per §4.3/§4.4. tokenStore is nil-able; a nil tokenStore
// leaves the connection unauthenticated.
func NewStreamableHTTP(ctx context.Context, resolved hubconfig.ResolvedServerConfig, tokenStore transport.TokenStore) (*Client, error) {
	opts := []transport.StreamableHTTPCOption{
		transport.WithHTTPHeaders(resolved.Headers),
	}
	if tokenStore != nil {
		opts = append(opts, transport.WithHTTPOAuth(transport.OAuthConfig{TokenStore: tokenStore}))
	}

	mcpClient, err := client.NewStreamableHttpClient(resolved.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create streamable http transport: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		mcpClient.Close()
		return nil, err
	}

	return &Client{Flavor: FlavorStreamableHTTP, inner: mcpClient}, nil
}

// NewSSE opens the server-sent-events fallback with resolved.Headers plus
// the provider's current bearer token. It sets no reconnect or retry
// policy of its own; reconnect behavior is mcp-go's SSE client default.
func NewSSE(ctx context.Context, resolved hubconfig.ResolvedServerConfig, tokenSource AuthTokenSource) (*Client, error) {
	opts := []transport.ClientOption{
		transport.WithHeaders(headersWithAuth(resolved.Headers, tokenSource)),
	}

	mcpClient, err := client.NewSSEMCPClient(resolved.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sse transport: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		mcpClient.Close()
		return nil, err
	}

	return &Client{Flavor: FlavorSSE, inner: mcpClient}, nil
}

func headersWithAuth(headers map[string]string, tokenSource AuthTokenSource) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	if tokenSource != nil {
		if bearer := tokenSource.BearerToken(); bearer != "" {
			out["Authorization"] = bearer
		}
	}
	return out
}

// IsAuthorizationError reports whether err represents an HTTP 401 / typed
// unauthorized failure from the underlying transport, the trigger for the
// unauthorized state transition in §4.5.
func IsAuthorizationError(err error) bool {
	if err == nil {
		return false
	}
	var oauthErr *transport.OAuthAuthorizationRequiredError
	if ok := asOAuthError(err, &oauthErr); ok {
		return true
	}
	return isHTTP401(err)
}

func asOAuthError(err error, target **transport.OAuthAuthorizationRequiredError) bool {
	for err != nil {
		if oe, ok := err.(*transport.OAuthAuthorizationRequiredError); ok {
			*target = oe
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func isHTTP401(err error) bool {
	// mcp-go's non-typed HTTP errors surface as plain fmt.Errorf-wrapped
	// strings, so classifying a 401 falls back to a substring check.
	msg := err.Error()
	return containsStatus401(msg)
}

func containsStatus401(msg string) bool {
	const marker = "401"
	for i := 0; i+len(marker) <= len(msg); i++ {
		if msg[i:i+len(marker)] == marker {
			return true
		}
	}
	return false
}

// ListTools/ListResources/ListResourceTemplates/ListPrompts wrap the
// four best-effort discovery calls per §4.5 step 4: "method not found" is
// an empty list, not an error.

func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	res, err := c.inner.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		if isMethodNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return res.Tools, nil
}

func (c *Client) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	res, err := c.inner.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		if isMethodNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return res.Resources, nil
}

func (c *Client) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	res, err := c.inner.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})
	if err != nil {
		if isMethodNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return res.ResourceTemplates, nil
}

func (c *Client) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	res, err := c.inner.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		if isMethodNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return res.Prompts, nil
}

// protocolVersion is the MCP protocol revision this hub speaks when
// initializing a connection.
const protocolVersion = "2024-11-05"

// Initialize performs the MCP handshake on the chosen transport,
// identifying the hub as the client.
func (c *Client) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = protocolVersion
	req.Params.ClientInfo = mcp.Implementation{Name: "mcphub", Version: "1.0.0"}
	return c.inner.Initialize(ctx, req)
}

// CallTool invokes a tool by name. args is passed through verbatim so the
// supervisor's mapping-or-sequence-or-null guard controls its shape.
func (c *Client) CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return c.inner.CallTool(ctx, req)
}

// ReadResource fetches the payload at uri.
func (c *Client) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return c.inner.ReadResource(ctx, req)
}

// GetPrompt renders a prompt by name with string-keyed arguments, the only
// shape the protocol itself accepts for prompt invocation.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return c.inner.GetPrompt(ctx, req)
}

// OnNotification registers handler for every notification the server
// sends on this transport, per §4.5 step 5.
func (c *Client) OnNotification(handler func(mcp.JSONRPCNotification)) {
	c.inner.OnNotification(handler)
}

func isMethodNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsMethodNotFound(msg)
}

func containsMethodNotFound(msg string) bool {
	const marker = "method not found"
	if len(msg) < len(marker) {
		return false
	}
	for i := 0; i+len(marker) <= len(msg); i++ {
		match := true
		for j := 0; j < len(marker); j++ {
			a, b := msg[i+j], marker[j]
			if a >= 'A' && a <= 'Z' {
				a += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
