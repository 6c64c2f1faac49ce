package events

import (
	"sync"
	"sync/atomic"
)

const (
	// DefaultSubscriberBuffer is the per-subscription channel capacity.
	DefaultSubscriberBuffer = 256

	// DefaultStagingLimit caps the bus staging queue. Publishers block
	// once staging is full, providing backpressure against a stalled bus.
	DefaultStagingLimit = 4096
)

// Bus is the in-process pub/sub hub. One goroutine drains the staging
// queue and fans events out to subscribers, so per-topic publish order is
// preserved end to end.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}

	bufferSize int
	staging    chan Event

	closed   atomic.Bool
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewBus creates a started bus with default buffer sizes.
func NewBus() *Bus {
	return newBus(DefaultSubscriberBuffer, DefaultStagingLimit)
}

func newBus(bufferSize, stagingLimit int) *Bus {
	b := &Bus{
		subscribers: make(map[string]map[*Subscription]struct{}),
		bufferSize:  bufferSize,
		staging:     make(chan Event, stagingLimit),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers a new subscription on topic. The caller must drain
// C() promptly or accept lagged markers, and must call Unsubscribe when
// done.
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		topic: topic,
		bus:   b,
		ch:    make(chan Event, b.bufferSize),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[*Subscription]struct{})
	}
	b.subscribers[topic][sub] = struct{}{}
	return sub
}

// Publish stages one event for delivery to topic subscribers. It returns
// immediately unless the staging queue is at its hard limit, in which case
// it blocks until the bus frees a slot or shuts down. Publishing to a
// closed bus is a no-op.
func (b *Bus) Publish(topic string, eventType string, payload any) {
	if b.closed.Load() {
		return
	}
	ev := Event{Topic: topic, Type: eventType, Payload: payload}
	select {
	case b.staging <- ev:
	case <-b.quit:
	}
}

// SubscriberCount reports the number of active subscriptions on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Close stops the bus after draining already-staged events. Subscriptions
// are closed so consumers ranging over C() terminate. Safe to call more
// than once.
func (b *Bus) Close() {
	b.stopOnce.Do(func() {
		b.closed.Store(true)
		close(b.quit)
		<-b.done

		b.mu.Lock()
		subs := make([]*Subscription, 0)
		for _, set := range b.subscribers {
			for s := range set {
				subs = append(subs, s)
			}
		}
		b.subscribers = make(map[string]map[*Subscription]struct{})
		b.mu.Unlock()

		for _, s := range subs {
			s.close()
		}
	})
}

// run is the single drain goroutine. On shutdown it delivers whatever is
// already staged before exiting.
func (b *Bus) run() {
	defer close(b.done)
	for {
		select {
		case ev := <-b.staging:
			b.dispatch(ev)
		case <-b.quit:
			for {
				select {
				case ev := <-b.staging:
					b.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

// dispatch fans one event out to the topic's subscribers. The lock is
// released before delivery so a slow consumer never blocks Subscribe.
func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	set := b.subscribers[ev.Topic]
	subs := make([]*Subscription, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.offer(ev)
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subscribers[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subscribers, sub.topic)
		}
	}
}

// Subscription is one consumer's handle on a topic.
type Subscription struct {
	topic string
	bus   *Bus
	ch    chan Event

	// mu guards closed and dropped against the bus drain goroutine.
	mu      sync.Mutex
	closed  bool
	dropped int

	once sync.Once
}

// C returns the delivery channel. It is closed by Unsubscribe or bus
// shutdown.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Unsubscribe detaches from the bus and closes the delivery channel. Safe
// to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)
	s.close()
}

func (s *Subscription) close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// offer delivers one event without ever blocking the bus. On overflow the
// oldest undelivered events are dropped and the gap is surfaced as a
// single coalesced lagged marker placed ahead of the newest event.
func (s *Subscription) offer(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	// Fast path: no gap pending and the event fits.
	if s.dropped == 0 {
		select {
		case s.ch <- ev:
			return
		default:
		}
	}

	// Overflow: drop oldest undelivered events until the coalesced marker
	// and the new event both fit. The bus goroutine is the only sender, so
	// the freed slots cannot be stolen. An old marker already in the
	// buffer is absorbed into the count rather than counted as dropped.
	for i := 0; i < 2 && len(s.ch) > cap(s.ch)-2; i++ {
		select {
		case old := <-s.ch:
			if old.Type == EventTypeLagged {
				if p, ok := old.Payload.(LaggedPayload); ok {
					s.dropped += p.Dropped
				}
			} else {
				s.dropped++
			}
		default:
		}
	}

	if s.dropped > 0 {
		marker := Event{
			Topic:   s.topic,
			Type:    EventTypeLagged,
			Payload: LaggedPayload{Dropped: s.dropped},
		}
		select {
		case s.ch <- marker:
			s.dropped = 0
		default:
			s.dropped++
			return
		}
	}

	select {
	case s.ch <- ev:
	default:
		s.dropped++
	}
}
