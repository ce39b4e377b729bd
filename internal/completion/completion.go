// ABOUTME: Remote completion client contract shared by all provider backends
// ABOUTME: Defines Request/Result types, provider errors, and the New factory

package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrEmptyReply is returned when the provider answered without any text.
var ErrEmptyReply = errors.New("empty reply from provider")

// ErrUnknownResponse is returned when a request chains onto a response id
// the client cannot continue from (never issued, or expired).
var ErrUnknownResponse = errors.New("unknown previous response id")

// Role constants for Turn.Role
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider names accepted by New
const (
	ProviderResponses = "responses"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Turn is one prompt entry sent to the provider.
type Turn struct {
	Role string
	Text string
}

// Request carries everything needed for one completion.
type Request struct {
	Turns              []Turn
	PreviousResponseID string // continue server-side context when non-empty
	Instructions       string // system instruction
}

// Result is a successful completion. ResponseID identifies this turn so a
// later Request can chain onto it.
type Result struct {
	Text       string
	ResponseID string
}

// Client is the remote completion capability consumed by the conversation store.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Result, error)
}

// APIError is a non-success response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// Config selects and configures a provider backend.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int

	// Replay settings for providers without server-side chaining
	ReplayTTL        time.Duration
	ReplayMaxEntries int
}

const (
	defaultMaxTokens        = 1024
	defaultReplayTTL        = time.Hour
	defaultReplayMaxEntries = 1000
)

// New creates the Client for cfg.Provider. Pass nil logger for default.
func New(cfg Config, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.ReplayTTL <= 0 {
		cfg.ReplayTTL = defaultReplayTTL
	}
	if cfg.ReplayMaxEntries <= 0 {
		cfg.ReplayMaxEntries = defaultReplayMaxEntries
	}

	switch cfg.Provider {
	case ProviderResponses, "":
		return NewResponsesClient(cfg, logger), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg, logger), nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
