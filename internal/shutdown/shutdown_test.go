package shutdown

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcphub/internal/eventbus"
)

func TestAccountant_FiresAfterLastSubscriberLeaves(t *testing.T) {
	var fired int32
	a := New(Config{
		Enabled:       true,
		ShutdownDelay: 20 * time.Millisecond,
		Requester:     func() { atomic.AddInt32(&fired, 1) },
	})

	a.Register("s1")
	a.Unregister("s1")

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 1
	}, time.Second, time.Millisecond)
}

func TestAccountant_NewSubscriberCancelsTimer(t *testing.T) {
	var fired int32
	a := New(Config{
		Enabled:       true,
		ShutdownDelay: 20 * time.Millisecond,
		Requester:     func() { atomic.AddInt32(&fired, 1) },
	})

	a.Register("s1")
	a.Unregister("s1")
	a.Register("s2")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	assert.Equal(t, 1, a.Count())
}

func TestAccountant_DisabledNeverFires(t *testing.T) {
	var fired int32
	a := New(Config{
		Enabled:       false,
		ShutdownDelay: time.Millisecond,
		Requester:     func() { atomic.AddInt32(&fired, 1) },
	})

	a.Register("s1")
	a.Unregister("s1")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestAccountant_PublishesStoppingHubState(t *testing.T) {
	bus := eventbus.New(4)
	sub := bus.Subscribe()

	a := New(Config{
		Bus:           bus,
		Enabled:       true,
		ShutdownDelay: 10 * time.Millisecond,
		Requester:     func() {},
	})
	a.Register("s1")
	a.Unregister("s1")

	select {
	case evt := <-sub.Events:
		assert.Equal(t, eventbus.TopicHubState, evt.Topic)
		assert.Equal(t, "stopping", evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stopping event")
	}
}
