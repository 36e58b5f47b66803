// Package shutdown tracks how many subscribers the hub currently has and,
// when auto-shutdown is enabled and that count drops to zero, arms a grace
// timer that requests process termination if no one reconnects in time.
package shutdown

import (
	"sync"
	"time"

	"github.com/giantswarm/mcphub/internal/eventbus"
	"github.com/giantswarm/mcphub/pkg/logging"
)

// Requester is called once the grace timer fires with nothing having
// cancelled it. cmd/mcphubd wires this to cancelling its serve context.
type Requester func()

// Accountant maintains the active-subscriber set and the auto-shutdown
// grace timer over it, per §4.8.
type Accountant struct {
	bus       *eventbus.Bus
	delay     time.Duration
	enabled   bool
	requester Requester

	mu      sync.Mutex
	active  map[string]struct{}
	timer   *time.Timer
	stopped bool
}

// Config configures a new Accountant.
type Config struct {
	Bus           *eventbus.Bus
	Enabled       bool
	ShutdownDelay time.Duration
	Requester     Requester
}

// New creates an Accountant. If Enabled is false, the timer is never armed
// and never fires.
func New(cfg Config) *Accountant {
	return &Accountant{
		bus:       cfg.Bus,
		delay:     cfg.ShutdownDelay,
		enabled:   cfg.Enabled,
		requester: cfg.Requester,
		active:    make(map[string]struct{}),
	}
}

// Register adds a subscriber to the active set, cancelling any armed
// shutdown timer.
func (a *Accountant) Register(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active[id] = struct{}{}
	a.cancelLocked()
}

// Unregister removes a subscriber from the active set. If it was the last
// one and auto-shutdown is enabled, arms the grace timer.
func (a *Accountant) Unregister(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, id)
	if len(a.active) == 0 {
		a.armLocked()
	}
}

// Count returns the number of currently active subscribers.
func (a *Accountant) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.active)
}

func (a *Accountant) armLocked() {
	if !a.enabled || a.stopped || a.timer != nil {
		return
	}
	logging.Info("Shutdown", "no active subscribers, arming shutdown timer for %s", a.delay)
	a.timer = time.AfterFunc(a.delay, a.fire)
}

func (a *Accountant) cancelLocked() {
	if a.timer == nil {
		return
	}
	a.timer.Stop()
	a.timer = nil
	logging.Info("Shutdown", "subscriber reconnected, shutdown timer cancelled")
}

func (a *Accountant) fire() {
	a.mu.Lock()
	if len(a.active) != 0 {
		// A subscriber slipped in between the timer firing and this
		// goroutine acquiring the lock; Register's cancelLocked already
		// stopped a *future* timer.AfterFunc but this one already fired,
		// so just bail without requesting shutdown.
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()

	logging.Info("Shutdown", "shutdown timer expired with no subscribers, stopping")
	if a.bus != nil {
		a.bus.PublishHubState("stopping")
	}
	if a.requester != nil {
		a.requester()
	}
}

// Stop disarms any pending timer without requesting shutdown, for use when
// the hub is torn down through another path (e.g. SIGTERM).
func (a *Accountant) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	a.cancelLocked()
}
