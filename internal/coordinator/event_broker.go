package coordinator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tsantana84/codex-http/internal/agent"
)

// Event types published for a session
const (
	EventItem       = "item"
	EventLoading    = "loading"
	EventResponseID = "response_id"
	EventTerminated = "terminated"
)

// Event is a session notification delivered to subscribers
type Event struct {
	Type       string      `json:"type"`
	SessionID  string      `json:"sessionId"`
	Item       *agent.Item `json:"item,omitempty"`
	Loading    *bool       `json:"loading,omitempty"`
	ResponseID string      `json:"responseId,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Subscription receives the events of one session. Events is closed when the
// subscription is removed or the session terminates.
type Subscription struct {
	ID        string
	SessionID string
	Events    <-chan Event
	ch        chan Event
}

// EventBroker fans session events out to live subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type EventBroker struct {
	subscriptions map[string]map[string]*Subscription // sessionID -> subscriptionID -> sub
	mu            sync.RWMutex
	buffer        int
	logger        *slog.Logger
}

// NewEventBroker creates a broker whose subscriptions buffer up to buffer
// events each
func NewEventBroker(buffer int, logger *slog.Logger) *EventBroker {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroker{
		subscriptions: make(map[string]map[string]*Subscription),
		buffer:        buffer,
		logger:        logger,
	}
}

// Subscribe registers a subscriber for sessionID
func (b *EventBroker) Subscribe(sessionID string) *Subscription {
	ch := make(chan Event, b.buffer)
	sub := &Subscription{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Events:    ch,
		ch:        ch,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscriptions[sessionID] == nil {
		b.subscriptions[sessionID] = make(map[string]*Subscription)
	}
	b.subscriptions[sessionID][sub.ID] = sub

	b.logger.Debug("event subscriber added", "session_id", sessionID, "subscription_id", sub.ID)
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call after
// the session was closed.
func (b *EventBroker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscriptions[sub.SessionID]
	if _, ok := subs[sub.ID]; !ok {
		return
	}
	delete(subs, sub.ID)
	close(sub.ch)
	if len(subs) == 0 {
		delete(b.subscriptions, sub.SessionID)
	}
}

// Publish delivers event to every subscriber of its session
func (b *EventBroker) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscriptions[event.SessionID] {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("event subscriber buffer full, dropping event",
				"session_id", event.SessionID,
				"subscription_id", sub.ID,
				"type", event.Type)
		}
	}
}

// CloseSession closes and removes every subscription of sessionID
func (b *EventBroker) CloseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscriptions[sessionID] {
		close(sub.ch)
	}
	delete(b.subscriptions, sessionID)
}

// SubscriberCount returns the number of subscribers of sessionID
func (b *EventBroker) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions[sessionID])
}
