// ABOUTME: OpenAI Chat Completions backend built on go-openai
// ABOUTME: Chains turns through the replay cache since the API is stateless

package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
	chain     *chainer
	logger    *slog.Logger
}

// NewOpenAIClient creates a chat completions client. Pass nil logger for default.
func NewOpenAIClient(cfg Config, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		chain:     newChainer(cfg.ReplayTTL, cfg.ReplayMaxEntries),
		logger:    logger.With("component", "completion", "provider", ProviderOpenAI),
	}
}

// Complete replays the chained transcript plus req.Turns and records the reply
// under the completion id.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Result, error) {
	turns, err := c.chain.extend(req.PreviousResponseID, req.Turns)
	if err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if req.Instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instructions,
		})
	}
	for _, turn := range turns {
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Text})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("creating chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyReply
	}
	text := resp.Choices[0].Message.Content

	c.chain.record(resp.ID, turns, text)
	c.logger.Debug("chat completion created",
		"response_id", resp.ID,
		"previous_response_id", req.PreviousResponseID,
		"replayed_turns", len(turns))

	return &Result{Text: text, ResponseID: resp.ID}, nil
}

// Close stops the replay cache sweep.
func (c *OpenAIClient) Close() {
	c.chain.close()
}
