// ABOUTME: Store owns every conversation in memory and mediates remote replies
// ABOUTME: Structural lock for membership, per-conversation lock for appends, no lock across the network call

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/completion"
)

// Mode selects how assistant turns are produced.
type Mode string

const (
	// ModeDirect appends assistant text supplied by the caller.
	ModeDirect Mode = "direct"
	// ModeRemote asks the completion client for the assistant's reply.
	ModeRemote Mode = "remote"
)

// DefaultInstructions is the system instruction sent with every remote request
// unless Options.Instructions overrides it.
const DefaultInstructions = "You are an AI assistant that only talks about food based on the user's mood. " +
	"Remember the user's mood from earlier in the conversation and offer it again if they ask. " +
	"Remember personal details the user shares, like their name."

// DefaultReplyTimeout bounds a single remote completion call.
const DefaultReplyTimeout = 60 * time.Second

// ErrNoPrompt is reported when a reply is requested before any user message.
var ErrNoPrompt = errors.New("conversation has no user message to reply to")

// ErrNoCompleter is reported when a reply is requested but no completion client is configured.
var ErrNoCompleter = errors.New("no completion client configured")

// Options configures a Store.
type Options struct {
	Mode         Mode
	Completer    completion.Client // required for ModeRemote
	Instructions string
	ReplyTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time // clock override for tests
}

// entry is the store's private, mutable record of one conversation.
type entry struct {
	mu     sync.Mutex
	conv   Conversation
	titled bool
	// deleted is set under mu once the entry leaves the collection, so
	// in-flight operations holding a stale pointer can detect it.
	deleted bool
	// turn serializes reply generation for this conversation. It is held
	// across the remote call; mu never is.
	turn chan struct{}
}

// Store is a thread-safe, memory-resident conversation store.
type Store struct {
	mu     sync.RWMutex
	byID   map[string]*entry
	byUser map[string]*entry

	mode         Mode
	completer    completion.Client
	instructions string
	replyTimeout time.Duration
	now          func() time.Time
	events       *ChangeBroadcaster
	logger       *slog.Logger
}

// NewStore creates an empty Store.
func NewStore(opts Options) (*Store, error) {
	if opts.Mode == "" {
		opts.Mode = ModeRemote
	}
	if opts.Mode != ModeDirect && opts.Mode != ModeRemote {
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}
	if opts.Mode == ModeRemote && opts.Completer == nil {
		return nil, fmt.Errorf("remote mode: %w", ErrNoCompleter)
	}
	if opts.Instructions == "" {
		opts.Instructions = DefaultInstructions
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = DefaultReplyTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Store{
		byID:         make(map[string]*entry),
		byUser:       make(map[string]*entry),
		mode:         opts.Mode,
		completer:    opts.Completer,
		instructions: opts.Instructions,
		replyTimeout: opts.ReplyTimeout,
		now:          opts.Now,
		events:       NewChangeBroadcaster(opts.Logger),
		logger:       opts.Logger.With("component", "conversation"),
	}, nil
}

// Mode reports how this store produces assistant turns.
func (s *Store) Mode() Mode {
	return s.mode
}

// ListConversations returns every conversation, most recently active first.
// Ties are broken by creation time and then id so one snapshot is stable.
func (s *Store) ListConversations() []Conversation {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.byID))
	for _, e := range s.byID {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	convs := make([]Conversation, 0, len(entries))
	for _, e := range entries {
		if c, ok := e.snapshot(); ok {
			convs = append(convs, c)
		}
	}

	sort.Slice(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return convs
}

// GetConversation looks up a conversation by id.
func (s *Store) GetConversation(id string) (Conversation, bool) {
	e := s.lookup(id)
	if e == nil {
		return Conversation{}, false
	}
	return e.snapshot()
}

// CreateOrGetConversation returns the conversation owned by userName,
// creating it when none exists. created reports whether this call created it.
func (s *Store) CreateOrGetConversation(userName string) (conv Conversation, created bool) {
	s.mu.Lock()
	e, ok := s.byUser[userName]
	if !ok {
		now := s.now()
		e = &entry{
			conv: Conversation{
				ID:            uuid.New().String(),
				UserName:      userName,
				Title:         DefaultTitle,
				CreatedAt:     now,
				LastMessageAt: now,
			},
			turn: make(chan struct{}, 1),
		}
		s.byID[e.conv.ID] = e
		s.byUser[userName] = e
		created = true
	}
	s.mu.Unlock()

	conv, _ = e.snapshot()
	if created {
		s.logger.Debug("conversation created",
			"conversation_id", conv.ID,
			"user_name", userName)
		s.events.Publish(ChangeEvent{Kind: ChangeCreated, ConversationID: conv.ID, At: conv.CreatedAt})
	}
	return conv, created
}

// AddMessage is the single entry point used by callers that drive both
// phases of a turn through one method. A user message is always recorded
// as-is. For an assistant turn, ModeDirect appends text verbatim while
// ModeRemote ignores text and generates the reply remotely.
//
// In ModeDirect the appended message is returned. In ModeRemote the most
// recent message of the conversation after the operation is returned. The
// bool is false for an unknown id.
func (s *Store) AddMessage(ctx context.Context, id, text string, isFromUser bool) (Message, bool) {
	if isFromUser {
		return s.AppendUserMessage(id, text)
	}
	if s.mode == ModeRemote {
		return s.GenerateReply(ctx, id)
	}
	return s.AppendAssistantMessage(id, text)
}

// AppendUserMessage records a user-authored message. The first one ever
// recorded derives the conversation title.
func (s *Store) AppendUserMessage(id, text string) (Message, bool) {
	return s.append(id, text, true)
}

// AppendAssistantMessage records assistant text supplied by the caller.
func (s *Store) AppendAssistantMessage(id, text string) (Message, bool) {
	return s.append(id, text, false)
}

func (s *Store) append(id, text string, fromUser bool) (Message, bool) {
	e := s.lookup(id)
	if e == nil {
		return Message{}, false
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return Message{}, false
	}
	msg := s.newMessage(id, text, fromUser)
	e.appendLocked(msg)
	e.mu.Unlock()

	s.events.Publish(ChangeEvent{Kind: ChangeAppended, ConversationID: id, At: msg.Timestamp})
	return msg, true
}

// GenerateReply completes the current turn: the latest user message is sent
// to the completion client together with the conversation's chaining token.
// A non-empty reply is appended and its response id becomes the new token.
//
// Failures (timeout, cancellation, provider error, empty reply, nothing to
// reply to) are logged and leave the conversation untouched. The most recent
// message is returned either way; the bool is false when the conversation is
// unknown, was deleted while the reply was in flight, or has no messages.
func (s *Store) GenerateReply(ctx context.Context, id string) (Message, bool) {
	e := s.lookup(id)
	if e == nil {
		return Message{}, false
	}
	if s.completer == nil {
		s.logReplyFailure(id, "", ErrNoCompleter)
		return e.latest()
	}

	select {
	case e.turn <- struct{}{}:
	case <-ctx.Done():
		s.logReplyFailure(id, "", ctx.Err())
		return e.latest()
	}
	defer func() { <-e.turn }()

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return Message{}, false
	}
	prompt, hasPrompt := latestUserMessage(e.conv.Messages)
	previousID := e.conv.PreviousResponseID
	e.mu.Unlock()

	if !hasPrompt {
		s.logReplyFailure(id, previousID, ErrNoPrompt)
		return e.latest()
	}

	result, err := s.complete(ctx, prompt.Text, previousID)
	if err != nil {
		s.logReplyFailure(id, previousID, err)
		return e.latest()
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		s.logger.Warn("discarding reply for deleted conversation",
			"conversation_id", id,
			"response_id", result.ResponseID)
		return Message{}, false
	}
	msg := s.newMessage(id, result.Text, false)
	e.appendLocked(msg)
	if result.ResponseID != "" {
		e.conv.PreviousResponseID = result.ResponseID
	}
	latest, _ := latestMessage(e.conv.Messages)
	e.mu.Unlock()

	s.logger.Debug("reply appended",
		"conversation_id", id,
		"message_id", msg.ID,
		"response_id", result.ResponseID)
	s.events.Publish(ChangeEvent{Kind: ChangeAppended, ConversationID: id, At: msg.Timestamp})
	return latest, true
}

// complete performs the bounded remote call. No store lock is held here.
func (s *Store) complete(ctx context.Context, prompt, previousID string) (*completion.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	defer cancel()

	start := s.now()
	result, err := s.completer.Complete(callCtx, &completion.Request{
		Turns:              []completion.Turn{{Role: completion.RoleUser, Text: prompt}},
		PreviousResponseID: previousID,
		Instructions:       s.instructions,
	})
	if err != nil {
		return nil, err
	}
	if result == nil || result.Text == "" {
		return nil, completion.ErrEmptyReply
	}

	s.logger.Debug("completion received",
		"response_id", result.ResponseID,
		"duration_ms", s.now().Sub(start).Milliseconds())
	return result, nil
}

func (s *Store) logReplyFailure(id, previousID string, err error) {
	s.logger.Error("reply generation failed",
		"conversation_id", id,
		"previous_response_id", previousID,
		"error", err)
}

// DeleteConversation removes a conversation and all its messages.
// It reports whether anything was removed.
func (s *Store) DeleteConversation(id string) bool {
	s.mu.Lock()
	e, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.byID, id)
	if s.byUser[e.conv.UserName] == e {
		delete(s.byUser, e.conv.UserName)
	}
	s.mu.Unlock()

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()

	s.logger.Debug("conversation deleted", "conversation_id", id)
	s.events.Publish(ChangeEvent{Kind: ChangeDeleted, ConversationID: id, At: s.now()})
	return true
}

// Subscribe registers for every change event until ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context) (<-chan ChangeEvent, string) {
	return s.events.Subscribe(ctx)
}

// SubscribeConversation registers for change events of one conversation.
func (s *Store) SubscribeConversation(ctx context.Context, id string) (<-chan ChangeEvent, string) {
	return s.events.SubscribeConversation(ctx, id)
}

// Close releases all subscribers.
func (s *Store) Close() {
	s.events.Close()
}

func (s *Store) lookup(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

func (s *Store) newMessage(conversationID, text string, fromUser bool) Message {
	return Message{
		ID:             uuid.New().String(),
		Text:           text,
		IsFromUser:     fromUser,
		ConversationID: conversationID,
		Timestamp:      s.now(),
	}
}

// appendLocked adds msg and derives the title once. Must be called with mu held.
func (e *entry) appendLocked(msg Message) {
	e.conv.Messages = append(e.conv.Messages, msg)
	e.conv.LastMessageAt = msg.Timestamp
	if msg.IsFromUser && !e.titled {
		e.conv.Title = DeriveTitle(msg.Text)
		e.titled = true
	}
}

// snapshot returns a deep copy, or false once the entry is deleted.
func (e *entry) snapshot() (Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return Conversation{}, false
	}
	c := e.conv
	c.Messages = make([]Message, len(e.conv.Messages))
	copy(c.Messages, e.conv.Messages)
	return c, true
}

func (e *entry) latest() (Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return Message{}, false
	}
	return latestMessage(e.conv.Messages)
}
