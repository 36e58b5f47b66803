package supervisor

import "time"

// State is a position in the connection lifecycle a supervisor drives a
// single managed server through.
type State string

const (
	StateDisabled     State = "disabled"
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateUnauthorized State = "unauthorized"
	StateConnected    State = "connected"
)

// Capabilities is the last-discovered set of things a server exposes.
type Capabilities struct {
	Tools             []ToolInfo
	Resources         []ResourceInfo
	ResourceTemplates []ResourceTemplateInfo
	Prompts           []PromptInfo
}

// ToolInfo, ResourceInfo, ResourceTemplateInfo, and PromptInfo are the
// opaque, name/uri-identified records the hub forwards to clients without
// interpreting further; Raw carries the underlying mcp-go type for callers
// that need the full record.
type ToolInfo struct {
	Name string
	Raw  any
}

type ResourceInfo struct {
	URI string
	Raw any
}

type ResourceTemplateInfo struct {
	URITemplate string
	Raw         any
}

type PromptInfo struct {
	Name string
	Raw  any
}

// Info is the point-in-time snapshot returned from start/stop/connect and
// exposed via getServerInfo().
type Info struct {
	Name             string
	State            State
	Error            string
	StartTime        time.Time
	AuthorizationURL string
	Capabilities     Capabilities
}
