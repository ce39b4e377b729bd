// ABOUTME: In-memory fan-out of conversation change events
// ABOUTME: Subscribers watch every conversation or a single conversation id

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// allConversations is the subscription key for observers of every change.
	allConversations = ""
)

// ChangeKind tags what happened to a conversation.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeAppended ChangeKind = "appended"
)

// ChangeEvent is published after a mutation of the store's observable state.
// It is a hint to re-fetch: observers read the current state through
// ListConversations or GetConversation rather than applying deltas.
type ChangeEvent struct {
	Kind           ChangeKind
	ConversationID string
	At             time.Time
}

// ChangeBroadcaster provides in-memory pub/sub for ChangeEvents.
type ChangeBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan ChangeEvent // conversationID ("" = all) -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewChangeBroadcaster creates a broadcaster. Pass nil logger for default.
func NewChangeBroadcaster(logger *slog.Logger) *ChangeBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeBroadcaster{
		subscribers: make(map[string]map[string]chan ChangeEvent),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers an observer of every change. The subscription is
// removed and its channel closed when ctx is cancelled.
func (b *ChangeBroadcaster) Subscribe(ctx context.Context) (<-chan ChangeEvent, string) {
	return b.subscribe(ctx, allConversations)
}

// SubscribeConversation registers an observer of a single conversation.
func (b *ChangeBroadcaster) SubscribeConversation(ctx context.Context, conversationID string) (<-chan ChangeEvent, string) {
	return b.subscribe(ctx, conversationID)
}

func (b *ChangeBroadcaster) subscribe(ctx context.Context, key string) (<-chan ChangeEvent, string) {
	subID := uuid.New().String()
	ch := make(chan ChangeEvent, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[string]chan ChangeEvent)
	}
	b.subscribers[key][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"conversation_id", key,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(key, subID)
	}()

	return ch, subID
}

// Publish delivers ev to observers of every change and to observers of
// ev.ConversationID. Non-blocking: events are dropped for subscribers whose
// channels are full.
func (b *ChangeBroadcaster) Publish(ev ChangeEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	targets := make([]chan ChangeEvent, 0, len(b.subscribers[allConversations])+len(b.subscribers[ev.ConversationID]))
	for _, ch := range b.subscribers[allConversations] {
		targets = append(targets, ch)
	}
	if ev.ConversationID != allConversations {
		for _, ch := range b.subscribers[ev.ConversationID] {
			targets = append(targets, ch)
		}
	}

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send; every send is non-blocking.
	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"conversation_id", ev.ConversationID,
				"kind", ev.Kind)
		}
	}
	b.mu.RUnlock()
}

// Unsubscribe removes a subscription and closes its channel.
func (b *ChangeBroadcaster) Unsubscribe(key, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[key]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, key)
	}

	b.logger.Debug("subscriber removed",
		"conversation_id", key,
		"sub_id", subID)
}

// SubscriberCount returns the number of live subscriptions.
func (b *ChangeBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// Close shuts down the broadcaster and closes all subscriber channels.
// Later subscriptions receive an already-closed channel.
func (b *ChangeBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for key, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}

	b.logger.Debug("broadcaster closed")
}
