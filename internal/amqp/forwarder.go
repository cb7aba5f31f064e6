package amqp

import (
	"context"
	"sync"
	"sync/atomic"

	"watchbook/internal/events"
	"watchbook/internal/log"
)

// Publisher sends one event message.
type Publisher interface {
	PublishEvent(ctx context.Context, msg *EventMessage) error
}

// DefaultTopics are the bus patterns forwarded when none are given.
var DefaultTopics = []string{
	"order:*",
	"client:*",
	"expense:*",
	"inventory:*",
	events.SettingsUpdated,
	events.StoreImported,
}

const DefaultQueueSize = 256

// Forwarder copies bus events to a Publisher. Bus handlers only enqueue;
// Run drains the queue so a slow broker never blocks a mutation. Events
// arriving while the queue is full are dropped.
type Forwarder struct {
	pub    Publisher
	bus    *events.Bus
	topics []string
	logger *log.Logger
	queue  chan *EventMessage

	mu     sync.Mutex
	unsubs []func()

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewForwarder(pub Publisher, bus *events.Bus, topics []string, queueSize int, logger *log.Logger) *Forwarder {
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Forwarder{
		pub:    pub,
		bus:    bus,
		topics: topics,
		logger: logger.WithComponent(log.ComponentAMQP),
		queue:  make(chan *EventMessage, queueSize),
	}
}

// Subscribe starts queueing matching events.
func (f *Forwarder) Subscribe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.topics {
		f.unsubs = append(f.unsubs, f.bus.Subscribe(t, f.enqueue))
	}
}

// Unsubscribe stops queueing; queued events are still delivered by Run.
func (f *Forwarder) Unsubscribe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.unsubs {
		u()
	}
	f.unsubs = nil
}

func (f *Forwarder) enqueue(ev events.Event) {
	msg, err := NewEventMessage(ev.Topic, ev.Payload, ev.At)
	if err != nil {
		f.logger.Warn("Event not forwardable",
			log.FieldTopic, ev.Topic,
			log.FieldError, err)
		f.failed.Add(1)
		return
	}
	select {
	case f.queue <- msg:
	default:
		f.dropped.Add(1)
		f.logger.Warn("Forward queue full, event dropped", log.FieldTopic, ev.Topic)
	}
}

// Run publishes queued events until ctx ends, then flushes what is left
// with a short deadline.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			f.flush()
			return nil
		case msg := <-f.queue:
			f.publish(ctx, msg)
		}
	}
}

func (f *Forwarder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for {
		select {
		case msg := <-f.queue:
			f.publish(ctx, msg)
		default:
			return
		}
	}
}

func (f *Forwarder) publish(ctx context.Context, msg *EventMessage) {
	if err := f.pub.PublishEvent(ctx, msg); err != nil {
		f.failed.Add(1)
		f.logger.WarnContext(ctx, "Event forward failed",
			log.FieldTopic, msg.Topic,
			log.FieldError, err)
		return
	}
	f.sent.Add(1)
}

// Stats reports sent, dropped and failed counts.
func (f *Forwarder) Stats() (sent, dropped, failed int64) {
	return f.sent.Load(), f.dropped.Load(), f.failed.Load()
}

// Pending is the number of queued events.
func (f *Forwarder) Pending() int { return len(f.queue) }

