package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBus_PublishSubscribe verifies basic fan-out to multiple subscribers
// on the same topic.
func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(4, nil)
	defer bus.Close()

	sub1 := bus.Subscribe(TopicCollectorData)
	sub2 := bus.Subscribe(TopicCollectorData)

	delivered := bus.Publish(TopicCollectorData, "payload")
	assert.Equal(t, 2, delivered)

	assert.Equal(t, "payload", <-sub1.C())
	assert.Equal(t, "payload", <-sub2.C())
}

// TestBus_TopicIsolation verifies that topics do not leak into each other.
func TestBus_TopicIsolation(t *testing.T) {
	bus := NewBus(4, nil)
	defer bus.Close()

	raw := bus.Subscribe(TopicCollectorData)
	processed := bus.Subscribe(TopicProcessedData)

	bus.Publish(TopicCollectorData, "raw-only")

	assert.Equal(t, "raw-only", <-raw.C())
	select {
	case msg := <-processed.C():
		t.Fatalf("processed topic received unexpected message: %v", msg)
	case <-time.After(20 * time.Millisecond):
		// expected: nothing delivered
	}
}

// TestBus_DropOnFullBuffer verifies that a publisher never blocks and that
// overflow is counted per topic.
func TestBus_DropOnFullBuffer(t *testing.T) {
	bus := NewBus(1, nil)
	defer bus.Close()

	sub := bus.Subscribe(TopicStorageInfluxDB)

	// First publish fills the single-slot buffer; the second must drop.
	assert.Equal(t, 1, bus.Publish(TopicStorageInfluxDB, "first"))
	assert.Equal(t, 0, bus.Publish(TopicStorageInfluxDB, "second"))

	assert.Equal(t, uint64(1), bus.Dropped(TopicStorageInfluxDB))
	assert.Equal(t, "first", <-sub.C())
}

// TestBus_PublishWithoutSubscribers verifies that publishing into the void
// is a harmless no-op.
func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(4, nil)
	defer bus.Close()

	assert.Equal(t, 0, bus.Publish(TopicSystemMetrics, "unheard"))
	assert.Equal(t, uint64(0), bus.Dropped(TopicSystemMetrics))
	assert.Equal(t, uint64(0), bus.Delivered(TopicSystemMetrics))
}

// TestBus_DeliveredCounter verifies the per-topic delivery tally used to
// detect a settled pipeline.
func TestBus_DeliveredCounter(t *testing.T) {
	bus := NewBus(4, nil)
	defer bus.Close()

	sub1 := bus.Subscribe(TopicProcessedData)
	sub2 := bus.Subscribe(TopicProcessedData)
	defer sub1.Cancel()
	defer sub2.Cancel()

	bus.Publish(TopicProcessedData, "a")
	bus.Publish(TopicProcessedData, "b")

	// Two subscribers, two publishes: four deliveries.
	assert.Equal(t, uint64(4), bus.Delivered(TopicProcessedData))
	assert.Equal(t, uint64(0), bus.Delivered(TopicCollectorData))
}

// TestSubscription_Cancel verifies that a cancelled subscription stops
// receiving and its channel closes.
func TestSubscription_Cancel(t *testing.T) {
	bus := NewBus(4, nil)
	defer bus.Close()

	sub := bus.Subscribe(TopicCollectorData)
	require.Equal(t, 1, bus.SubscriberCount(TopicCollectorData))

	sub.Cancel()
	assert.Equal(t, 0, bus.SubscriberCount(TopicCollectorData))

	_, open := <-sub.C()
	assert.False(t, open, "cancelled subscription channel should be closed")

	// Cancel must be idempotent.
	sub.Cancel()
}

// TestBus_Close verifies shutdown semantics: channels close, later
// publishes and subscribes are inert.
func TestBus_Close(t *testing.T) {
	bus := NewBus(4, nil)

	sub := bus.Subscribe(TopicProcessedData)
	bus.Publish(TopicProcessedData, "before-close")

	bus.Close()
	bus.Close() // idempotent

	// Buffered message is still readable, then the channel closes.
	assert.Equal(t, "before-close", <-sub.C())
	_, open := <-sub.C()
	assert.False(t, open)

	assert.Equal(t, 0, bus.Publish(TopicProcessedData, "after-close"))

	late := bus.Subscribe(TopicProcessedData)
	_, open = <-late.C()
	assert.False(t, open, "subscription on a closed bus should be closed immediately")
}

// TestBus_ConcurrentPublish exercises the bus under parallel publishers
// and a draining subscriber; run with -race this doubles as a race check.
// The buffer exceeds the total message count so no drop can occur and the
// receive count is deterministic.
func TestBus_ConcurrentPublish(t *testing.T) {
	const publishers = 8
	const perPublisher = 50

	bus := NewBus(publishers*perPublisher, nil)
	defer bus.Close()

	sub := bus.Subscribe(TopicCollectorData)

	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range sub.C() {
			received++
			if received == publishers*perPublisher {
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				bus.Publish(TopicCollectorData, i)
			}
		}()
	}

	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("drain timed out: received %d of %d", received, publishers*perPublisher)
	}
	assert.Equal(t, uint64(0), bus.Dropped(TopicCollectorData))
}
