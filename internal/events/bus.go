package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Topic names a message stream on the bus.
type Topic string

// The four streams wired through the daemon.
const (
	// TopicCollectorData carries raw *model.Message values straight from
	// the collectors, before validation or enrichment.
	TopicCollectorData Topic = "collector.data"

	// TopicProcessedData carries *model.Message values that passed the
	// processor: validated and enriched with station metadata.
	TopicProcessedData Topic = "collector.processed"

	// TopicStorageInfluxDB carries *model.StoragePayload values ready to
	// be written as line protocol points.
	TopicStorageInfluxDB Topic = "storage.influxdb"

	// TopicSystemMetrics carries *model.MetricsPayload counters emitted by
	// collectors and the HTTP fetch helper.
	TopicSystemMetrics Topic = "system.metrics"
)

// Bus is a topic-based fan-out over buffered channels. Safe for
// concurrent use. Publish never blocks; slow subscribers lose messages
// instead of stalling the pipeline, since a wedged storage backend must
// not stop UDP packets from being parsed.
type Bus struct {
	mu         sync.RWMutex
	bufferSize int
	subs       map[Topic][]*Subscription
	closed     bool
	logger     *logrus.Entry

	// counters have their own lock so concurrent publishers can update
	// them while holding only the subscriber read lock.
	countersMu sync.Mutex
	dropped    map[Topic]uint64
	delivered  map[Topic]uint64
}

// Subscription is one subscriber's handle on a topic. Receive from C();
// call Cancel() to detach. The channel is closed by Cancel or Bus.Close,
// so a `for range sub.C()` loop terminates cleanly on shutdown.
type Subscription struct {
	topic Topic
	ch    chan any
	once  sync.Once
	bus   *Bus
}

// NewBus creates a bus whose subscriber channels hold bufferSize pending
// messages each.
func NewBus(bufferSize int, logger *logrus.Entry) *Bus {
	return &Bus{
		bufferSize: bufferSize,
		subs:       make(map[Topic][]*Subscription),
		dropped:    make(map[Topic]uint64),
		delivered:  make(map[Topic]uint64),
		logger:     logger,
	}
}

// Subscribe registers a new subscriber on a topic. Subscribing to a
// closed bus returns a subscription whose channel is already closed.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan any, b.bufferSize),
		bus:   b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}

	b.subs[topic] = append(b.subs[topic], sub)
	return sub
}

// C returns the receive channel for this subscription.
func (s *Subscription) C() <-chan any {
	return s.ch
}

// Cancel detaches the subscription and closes its channel. Messages
// already buffered are still readable until the channel drains.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.topic]
	for i, candidate := range list {
		if candidate == sub {
			b.subs[sub.topic] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every current subscriber of topic. It
// returns the number of subscribers that received the message; full
// subscriber buffers count as drops, not deliveries.
func (b *Bus) Publish(topic Topic, payload any) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	delivered := 0
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			total := b.countDrop(topic)
			if b.logger != nil {
				b.logger.WithFields(logrus.Fields{
					"topic":   string(topic),
					"dropped": total,
				}).Warn("subscriber buffer full, message dropped")
			}
		}
	}

	if delivered > 0 {
		b.countersMu.Lock()
		b.delivered[topic] += uint64(delivered)
		b.countersMu.Unlock()
	}

	return delivered
}

func (b *Bus) countDrop(topic Topic) uint64 {
	b.countersMu.Lock()
	defer b.countersMu.Unlock()
	b.dropped[topic]++
	return b.dropped[topic]
}

// Dropped reports how many messages have been dropped on a topic across
// all subscribers since the bus was created.
func (b *Bus) Dropped(topic Topic) uint64 {
	b.countersMu.Lock()
	defer b.countersMu.Unlock()
	return b.dropped[topic]
}

// Delivered reports how many messages have been handed to subscriber
// buffers on a topic since the bus was created. One-shot pipelines poll
// this to detect that in-flight work has settled before shutting down.
func (b *Bus) Delivered(topic Topic) uint64 {
	b.countersMu.Lock()
	defer b.countersMu.Unlock()
	return b.delivered[topic]
}

// SubscriberCount reports the current number of subscribers on a topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close shuts the bus down: all subscriber channels are closed and
// subsequent publishes become no-ops. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, list := range b.subs {
		for _, sub := range list {
			sub.once.Do(func() {
				close(sub.ch)
			})
		}
	}
	b.subs = make(map[Topic][]*Subscription)
}
