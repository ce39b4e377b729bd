// ABOUTME: Anthropic Messages backend built on anthropic-sdk-go
// ABOUTME: Chains turns through the replay cache since the API is stateless

package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	chain     *chainer
	logger    *slog.Logger
}

// NewAnthropicClient creates a Messages API client. Extra request options are
// applied after the configured key and base URL. Pass nil logger for default.
func NewAnthropicClient(cfg Config, logger *slog.Logger, opts ...option.RequestOption) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	var clientOpts []option.RequestOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return &AnthropicClient{
		client:    anthropic.NewClient(clientOpts...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: int64(cfg.MaxTokens),
		chain:     newChainer(cfg.ReplayTTL, cfg.ReplayMaxEntries),
		logger:    logger.With("component", "completion", "provider", ProviderAnthropic),
	}
}

// Complete replays the chained transcript plus req.Turns and records the reply
// under the message id.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Result, error) {
	turns, err := c.chain.extend(req.PreviousResponseID, req.Turns)
	if err != nil {
		return nil, err
	}

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Text)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  messages,
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &APIError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
		}
		return nil, fmt.Errorf("creating message: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	text := sb.String()
	if text == "" {
		return nil, ErrEmptyReply
	}

	c.chain.record(msg.ID, turns, text)
	c.logger.Debug("message created",
		"response_id", msg.ID,
		"previous_response_id", req.PreviousResponseID,
		"replayed_turns", len(turns))

	return &Result{Text: text, ResponseID: msg.ID}, nil
}

// Close stops the replay cache sweep.
func (c *AnthropicClient) Close() {
	c.chain.close()
}
