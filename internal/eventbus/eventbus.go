// Package eventbus is the hub's single-producer, multi-consumer fanout: the
// hub core, supervisors, and pkg/logging all emit onto it, and every
// subscriber (an aggregator session, a CLI watch command) gets its own
// bounded, FIFO queue. A slow subscriber is dropped rather than allowed to
// block a producer, so one stalled consumer never backs up the rest.
package eventbus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/giantswarm/mcphub/pkg/logging"
)

// Topic names the three event families the bus carries. Ad-hoc topic
// strings are not permitted; every producer picks one of these.
type Topic string

const (
	TopicHubState    Topic = "HUB_STATE"
	TopicSubscription Topic = "SUBSCRIPTION_EVENT"
	TopicLog         Topic = "LOG"
)

// Subtype enumerates SUBSCRIPTION_EVENT's payload kinds.
type Subtype string

const (
	SubtypeConfigChanged      Subtype = "CONFIG_CHANGED"
	SubtypeServersUpdating    Subtype = "SERVERS_UPDATING"
	SubtypeServersUpdated     Subtype = "SERVERS_UPDATED"
	SubtypeToolListChanged    Subtype = "TOOL_LIST_CHANGED"
	SubtypeResourceListChanged Subtype = "RESOURCE_LIST_CHANGED"
	SubtypePromptListChanged  Subtype = "PROMPT_LIST_CHANGED"
)

// Event is what travels through a subscriber's queue. Payload's concrete
// type depends on Topic: a hub-state snapshot for TopicHubState, a
// SubscriptionEvent for TopicSubscription, a logging.Record for TopicLog.
type Event struct {
	Topic   Topic
	Subtype Subtype // set only for TopicSubscription
	Payload any
}

// SubscriptionEvent is the TopicSubscription payload shape.
type SubscriptionEvent struct {
	Subtype Subtype
	Server  string
	Data    any
}

// DefaultQueueSize bounds each subscriber's backlog before it is dropped.
const DefaultQueueSize = 256

// Subscriber is a live registration: Events delivers the FIFO stream, and
// the bus closes it (and Done fires) if the subscriber is dropped for
// backpressure or unregistered.
type Subscriber struct {
	ID      string
	Events  <-chan Event
	Done    <-chan struct{}
	filter  map[Subtype]bool
	events  chan Event
	done    chan struct{}
	closeMu sync.Once
}

func (s *Subscriber) wants(topic Topic, subtype Subtype) bool {
	if topic != TopicSubscription || s.filter == nil {
		return true
	}
	return s.filter[subtype]
}

func (s *Subscriber) close() {
	s.closeMu.Do(func() {
		close(s.done)
		close(s.events)
	})
}

// Bus is the hub-wide event fanout. The zero value is not usable; use New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	queueSize   int
}

// New creates a Bus whose subscriber queues hold queueSize events before
// backpressure kicks in. queueSize <= 0 uses DefaultQueueSize.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{subscribers: make(map[string]*Subscriber), queueSize: queueSize}
}

// Subscribe registers a new subscriber. subtypes, if non-empty, restricts
// which SUBSCRIPTION_EVENT subtypes it receives; HUB_STATE and LOG are
// always delivered regardless of filter.
func (b *Bus) Subscribe(subtypes ...Subtype) *Subscriber {
	events := make(chan Event, b.queueSize)
	done := make(chan struct{})

	var filter map[Subtype]bool
	if len(subtypes) > 0 {
		filter = make(map[Subtype]bool, len(subtypes))
		for _, st := range subtypes {
			filter[st] = true
		}
	}

	sub := &Subscriber{
		ID:     uuid.NewString(),
		Events: events,
		Done:   done,
		filter: filter,
		events: events,
		done:   done,
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once or after the subscriber was already dropped.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Count returns the number of currently registered subscribers. The
// shutdown Accountant keeps its own subscriber set and does not read it.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish delivers event to every subscriber whose filter accepts it,
// never blocking on a slow one: a subscriber whose queue is full is
// dropped and its channel closed instead.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	targets := make([]*Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.wants(event.Topic, event.Subtype) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	var overflowed []string
	for _, sub := range targets {
		select {
		case sub.events <- event:
		default:
			overflowed = append(overflowed, sub.ID)
		}
	}

	for _, id := range overflowed {
		logging.Warn("EventBus", "subscriber %s exceeded queue size %d, dropping", id, b.queueSize)
		b.Unsubscribe(id)
	}
}

// PublishHubState emits a HUB_STATE snapshot.
func (b *Bus) PublishHubState(snapshot any) {
	b.Publish(Event{Topic: TopicHubState, Payload: snapshot})
}

// PublishSubscription emits a SUBSCRIPTION_EVENT of the given subtype.
func (b *Bus) PublishSubscription(subtype Subtype, server string, data any) {
	b.Publish(Event{
		Topic:   TopicSubscription,
		Subtype: subtype,
		Payload: SubscriptionEvent{Subtype: subtype, Server: server, Data: data},
	})
}

// LogSink returns a logging.Sink that republishes every log record onto
// TopicLog, wiring pkg/logging's output into the bus per §4.7.
func (b *Bus) LogSink() logging.Sink {
	return func(rec logging.Record) {
		b.Publish(Event{Topic: TopicLog, Payload: rec})
	}
}
