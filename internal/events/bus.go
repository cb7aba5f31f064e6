// Package events provides the synchronous publish/subscribe bus that couples
// domain modules, reports and notifications.
package events

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"watchbook/internal/log"
)

// Topics.
const (
	OrderCreated = "order:created"
	OrderUpdated = "order:updated"
	OrderDeleted = "order:deleted"

	ClientCreated = "client:created"
	ClientUpdated = "client:updated"
	ClientDeleted = "client:deleted"

	ExpenseCreated     = "expense:created"
	ExpenseUpdated     = "expense:updated"
	ExpenseDeleted     = "expense:deleted"
	ExpenseInitialized = "expense:initialized"

	InventoryCreated = "inventory:created"
	InventoryUpdated = "inventory:updated"
	InventoryDeleted = "inventory:deleted"

	SettingsUpdated = "settings:updated"

	RouteChange      = "route:change"
	ModalOpen        = "modal:open"
	NotificationShow = "notification:show"
	StoreImported    = "store:imported"

	HistoryUndo = "history:undo"
	HistoryRedo = "history:redo"
)

// StateChanged returns the topic emitted when a state key is replaced.
func StateChanged(key string) string {
	return "state:" + key + ":changed"
}

// Event is one delivery.
type Event struct {
	Topic   string
	Payload any
	At      time.Time
}

// Handler receives events synchronously on the publisher's goroutine.
type Handler func(Event)

type subscription struct {
	id      uint64
	pattern string
	fn      Handler
}

// Bus fans every event out to matching subscribers in registration order.
// A panicking subscriber is logged and skipped; the others still receive
// the event.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *log.Logger
	now    func() time.Time
}

func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{logger: logger.WithComponent(log.ComponentEvents), now: time.Now}
}

// Subscribe registers fn for pattern. A pattern is an exact topic, a
// "prefix:*" wildcard or "*" for everything. The returned function removes
// the subscription.
func (b *Bus) Subscribe(pattern string, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, pattern: pattern, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event before returning.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if Match(s.pattern, topic) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	ev := Event{Topic: topic, Payload: payload, At: b.now()}
	for _, s := range targets {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Subscriber failed",
				log.FieldTopic, ev.Topic,
				"pattern", s.pattern,
				log.FieldError, fmt.Sprint(r))
		}
	}()
	s.fn(ev)
}

// Match reports whether topic matches pattern.
func Match(pattern, topic string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, ":*"):
		return strings.HasPrefix(topic, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == topic
	}
}

// Notification is the payload of NotificationShow.
type Notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// Notification levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notify publishes a NotificationShow event.
func (b *Bus) Notify(level, kind, message string) {
	b.Publish(NotificationShow, Notification{Level: level, Kind: kind, Message: message})
}
