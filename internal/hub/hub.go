// Package hub owns the map of supervised servers: it loads the
// configuration store, starts every enabled server in parallel, reacts to
// config changes by adding/removing/reconnecting supervisors, and exposes
// thin forwarders for the operations a caller drives per server.
package hub

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcphub/internal/eventbus"
	"github.com/giantswarm/mcphub/internal/huberrors"
	"github.com/giantswarm/mcphub/internal/hubconfig"
	"github.com/giantswarm/mcphub/internal/placeholder"
	"github.com/giantswarm/mcphub/internal/supervisor"
	"github.com/giantswarm/mcphub/pkg/logging"
)

// HubState labels the hub's process-wide phase (§3), published on the
// HUB_STATE topic every time it changes. The hub core never emits
// "stopping" or "stopped": the shutdown accountant publishes "stopping" when
// its timer fires, and nothing in this module publishes "stopped".
type HubState string

const (
	HubStateStarting   HubState = "starting"
	HubStateReady      HubState = "ready"
	HubStateRestarting HubState = "restarting"
	HubStateRestarted  HubState = "restarted"
	HubStateError      HubState = "error"
)

// Config constructs a Hub.
type Config struct {
	Store    *hubconfig.Store
	Bus      *eventbus.Bus
	Resolver *placeholder.Resolver
	OAuth    supervisor.OAuthConfig
	// Watch enables the config-file watcher; ignored for memory-backed
	// stores.
	Watch bool
}

// Hub owns the supervisor map and reacts to configuration changes.
type Hub struct {
	store    *hubconfig.Store
	bus      *eventbus.Bus
	resolver *placeholder.Resolver
	oauth    supervisor.OAuthConfig
	watch    bool

	mu          sync.RWMutex
	supervisors map[string]*supervisor.Supervisor
	state       HubState

	watcher *hubconfig.Watcher
}

// New creates a Hub. Call Initialize to load the configuration and start
// servers.
func New(cfg Config) *Hub {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = placeholder.New(placeholder.Options{Mode: placeholder.Strict})
	}
	return &Hub{
		store:       cfg.Store,
		bus:         cfg.Bus,
		resolver:    resolver,
		oauth:       cfg.OAuth,
		watch:       cfg.Watch,
		supervisors: make(map[string]*supervisor.Supervisor),
	}
}

// Initialize loads the configuration, optionally starts the file watcher,
// and starts a supervisor per enabled server in parallel, per §4.6.
func (h *Hub) Initialize(ctx context.Context) error {
	h.setHubState(HubStateStarting)

	result, err := h.store.Load()
	if err != nil {
		h.setHubState(HubStateError)
		return err
	}

	if h.watch && h.store.Path() != "" {
		h.watcher = hubconfig.NewWatcher(h.store, 0, h.onConfigChanged)
		if err := h.watcher.Start(); err != nil {
			logging.Warn("hub", "failed to start config watcher: %v", err)
		}
	}

	h.mu.Lock()
	for name, cfg := range result.Config {
		h.supervisors[name] = h.newSupervisorLocked(name, cfg)
	}
	names := make([]string, 0, len(h.supervisors))
	for name := range h.supervisors {
		names = append(names, name)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			sup := h.get(name)
			if sup == nil {
				return
			}
			info := sup.Start(ctx)
			if info.Error != "" {
				logging.Warn("hub", "server %s failed to start: %s", name, info.Error)
			}
		}(name)
	}
	wg.Wait()

	h.setHubState(HubStateReady)
	return nil
}

func (h *Hub) newSupervisorLocked(name string, cfg hubconfig.ServerConfig) *supervisor.Supervisor {
	return supervisor.New(supervisor.Config{
		Name:     name,
		Server:   cfg,
		Bus:      h.bus,
		Resolver: h.resolver,
		OAuth:    h.oauth,
	})
}

// HubState returns the hub's current process-wide phase.
func (h *Hub) HubState() HubState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// setHubState updates the phase and publishes a HUB_STATE snapshot; the
// zero-value transition (never set before) still emits, since a fresh
// subscriber has never seen it.
func (h *Hub) setHubState(state HubState) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()

	if h.bus != nil {
		h.bus.PublishHubState(string(state))
	}
}

func (h *Hub) get(name string) *supervisor.Supervisor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.supervisors[name]
}

// onConfigChanged implements §4.6's configChanged handling: it always
// announces detection, bails out on an insignificant diff, and otherwise
// applies added/removed/modified concurrently before announcing
// completion.
func (h *Hub) onConfigChanged(result *hubconfig.LoadResult) {
	h.publishSubscription(eventbus.SubtypeConfigChanged, "", result.Diff)

	if !result.Diff.IsSignificant() {
		return
	}

	h.setHubState(HubStateRestarting)
	h.publishSubscription(eventbus.SubtypeServersUpdating, "", result.Diff)

	ctx := context.Background()
	var wg sync.WaitGroup

	for _, name := range result.Diff.Added {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			h.addServer(ctx, name, result.Config[name])
		}(name)
	}
	for _, name := range result.Diff.Removed {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			h.dropServer(name)
		}(name)
	}
	for _, name := range result.Diff.Modified {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			h.applyModification(ctx, name, result.Config[name], result.Diff.Details[name])
		}(name)
	}

	wg.Wait()
	h.setHubState(HubStateRestarted)
	h.publishSubscription(eventbus.SubtypeServersUpdated, "", result.Diff)
	h.setHubState(HubStateReady)
}

func (h *Hub) addServer(ctx context.Context, name string, cfg hubconfig.ServerConfig) {
	h.mu.Lock()
	sup := h.newSupervisorLocked(name, cfg)
	h.supervisors[name] = sup
	h.mu.Unlock()

	if info := sup.Start(ctx); info.Error != "" {
		logging.Warn("hub", "added server %s failed to start: %s", name, info.Error)
	}
}

func (h *Hub) dropServer(name string) {
	h.mu.Lock()
	sup := h.supervisors[name]
	delete(h.supervisors, name)
	h.mu.Unlock()

	if sup != nil {
		sup.Stop(true)
	}
}

// applyModification handles one modified server: a disabled-only flip is
// a plain start/stop, everything else disconnects and reconnects with the
// new config, preserving the "disconnect strictly precedes connect"
// ordering §5 requires.
func (h *Hub) applyModification(ctx context.Context, name string, cfg hubconfig.ServerConfig, diff hubconfig.FieldDiff) {
	sup := h.get(name)
	if sup == nil {
		h.addServer(ctx, name, cfg)
		return
	}

	if onlyDisabledChanged(diff) {
		if cfg.Disabled {
			sup.Stop(true)
		} else {
			// Leave the disabled state first; Start is a no-op while disabled.
			sup.Stop(false)
			if info := sup.Start(ctx); info.Error != "" {
				logging.Warn("hub", "server %s failed to restart: %s", name, info.Error)
			}
		}
		return
	}

	sup.Disconnect("configuration modified")
	if err := sup.Connect(ctx, &cfg); err != nil {
		logging.Warn("hub", "server %s failed to reconnect after modification: %v", name, err)
	}
}

func onlyDisabledChanged(diff hubconfig.FieldDiff) bool {
	return len(diff.ModifiedFields) == 1 && diff.ModifiedFields[0] == "disabled"
}

func (h *Hub) publishSubscription(subtype eventbus.Subtype, server string, data any) {
	if h.bus == nil {
		return
	}
	h.bus.PublishSubscription(subtype, server, data)
}

// StartServer, StopServer, RefreshServer, RefreshAllServers, CallTool,
// ReadResource, GetPrompt, and GetAllServerStatuses are thin forwarders
// per §4.6; each returns ServerNotFound when name is unknown.

func (h *Hub) StartServer(ctx context.Context, name string) (supervisor.Info, error) {
	sup := h.get(name)
	if sup == nil {
		return supervisor.Info{}, huberrors.New(huberrors.ServerNotFound, "startServer", name)
	}
	return sup.Start(ctx), nil
}

func (h *Hub) StopServer(name string, disable bool) (supervisor.Info, error) {
	sup := h.get(name)
	if sup == nil {
		return supervisor.Info{}, huberrors.New(huberrors.ServerNotFound, "stopServer", name)
	}
	return sup.Stop(disable), nil
}

func (h *Hub) RefreshServer(ctx context.Context, name string, kinds ...string) error {
	sup := h.get(name)
	if sup == nil {
		return huberrors.New(huberrors.ServerNotFound, "refreshServer", name)
	}
	return sup.UpdateCapabilities(ctx, kinds...)
}

func (h *Hub) RefreshAllServers(ctx context.Context) {
	for _, name := range h.serverNames() {
		if err := h.RefreshServer(ctx, name); err != nil {
			logging.Warn("hub", "refresh %s: %v", name, err)
		}
	}
}

func (h *Hub) CallTool(ctx context.Context, server, tool string, args any) (*mcp.CallToolResult, error) {
	sup := h.get(server)
	if sup == nil {
		return nil, huberrors.New(huberrors.ServerNotFound, "callTool", server)
	}
	return sup.CallTool(ctx, tool, args)
}

func (h *Hub) ReadResource(ctx context.Context, server, uri string) (*mcp.ReadResourceResult, error) {
	sup := h.get(server)
	if sup == nil {
		return nil, huberrors.New(huberrors.ServerNotFound, "readResource", server)
	}
	return sup.ReadResource(ctx, uri)
}

func (h *Hub) GetPrompt(ctx context.Context, server, name string, args any) (*mcp.GetPromptResult, error) {
	sup := h.get(server)
	if sup == nil {
		return nil, huberrors.New(huberrors.ServerNotFound, "getPrompt", server)
	}
	return sup.GetPrompt(ctx, name, args)
}

func (h *Hub) Authorize(server string) (string, error) {
	sup := h.get(server)
	if sup == nil {
		return "", huberrors.New(huberrors.ServerNotFound, "authorize", server)
	}
	return sup.Authorize()
}

func (h *Hub) HandleAuthCallback(ctx context.Context, server, state, code string) error {
	sup := h.get(server)
	if sup == nil {
		return huberrors.New(huberrors.ServerNotFound, "handleAuthCallback", server)
	}
	return sup.HandleAuthCallback(ctx, state, code)
}

func (h *Hub) GetAllServerStatuses() map[string]supervisor.Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]supervisor.Info, len(h.supervisors))
	for name, sup := range h.supervisors {
		out[name] = sup.GetServerInfo()
	}
	return out
}

func (h *Hub) serverNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.supervisors))
	for name := range h.supervisors {
		names = append(names, name)
	}
	return names
}

// Shutdown disconnects every supervisor concurrently with allSettled
// semantics (§5): one slow server never blocks the others.
func (h *Hub) Shutdown() {
	if h.watcher != nil {
		h.watcher.Stop()
	}
	names := h.serverNames()
	var wg sync.WaitGroup
	for _, name := range names {
		sup := h.get(name)
		if sup == nil {
			continue
		}
		wg.Add(1)
		go func(sup *supervisor.Supervisor) {
			defer wg.Done()
			sup.Stop(false)
		}(sup)
	}
	wg.Wait()
}
