package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcphub/pkg/logging"
)

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	bus := New(4)
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.PublishHubState("connected")

	assert.Equal(t, Event{Topic: TopicHubState, Payload: "connected"}, <-a.Events)
	assert.Equal(t, Event{Topic: TopicHubState, Payload: "connected"}, <-b.Events)
}

func TestPublish_FiltersSubscriptionSubtypes(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe(SubtypeToolListChanged)

	bus.PublishSubscription(SubtypeResourceListChanged, "srv", nil)
	bus.PublishSubscription(SubtypeToolListChanged, "srv", nil)

	got := <-sub.Events
	assert.Equal(t, SubtypeToolListChanged, got.Subtype)

	select {
	case extra := <-sub.Events:
		t.Fatalf("unexpected second delivery: %+v", extra)
	default:
	}
}

func TestPublish_HubStateBypassesSubscriptionFilter(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe(SubtypeToolListChanged)

	bus.PublishHubState("connecting")
	got := <-sub.Events
	assert.Equal(t, TopicHubState, got.Topic)
}

func TestPublish_DropsSlowSubscriberOnOverflow(t *testing.T) {
	bus := New(2)
	slow := bus.Subscribe()
	fast := bus.Subscribe()

	for i := 0; i < 3; i++ {
		bus.PublishHubState(i)
		<-fast.Events // fast keeps draining, so it never overflows
	}

	select {
	case <-slow.Done:
	default:
		t.Fatal("slow subscriber should have been dropped")
	}
	assert.Equal(t, 1, bus.Count())
}

func TestUnsubscribe_ClosesChannelAndUpdatesCount(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()
	require.Equal(t, 1, bus.Count())

	bus.Unsubscribe(sub.ID)
	assert.Equal(t, 0, bus.Count())

	_, ok := <-sub.Done
	assert.False(t, ok)
}

func TestLogSink_RepublishesOnLogTopic(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()
	sink := bus.LogSink()

	sink(logging.Record{Subsystem: "test", Message: "hello"})
	got := <-sub.Events
	assert.Equal(t, TopicLog, got.Topic)
}
