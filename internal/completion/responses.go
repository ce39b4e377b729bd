// ABOUTME: OpenAI Responses API backend with native previous_response_id chaining
// ABOUTME: Builds request bodies with sjson and reads replies with gjson

package completion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"

	// maxResponseBytes caps how much of a provider response is read.
	maxResponseBytes = 4 << 20
)

// ResponsesClient talks to the OpenAI Responses API. The provider keeps the
// conversation state; the returned response id is the chaining token.
type ResponsesClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	logger     *slog.Logger
}

// inputItem is one message entry of the request's input array.
type inputItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewResponsesClient creates a Responses API client. Pass nil logger for default.
func NewResponsesClient(cfg Config, logger *slog.Logger) *ResponsesClient {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &ResponsesClient{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		logger:     logger.With("component", "completion", "provider", ProviderResponses),
	}
}

// Complete creates one response, chained onto req.PreviousResponseID when set.
func (c *ResponsesClient) Complete(ctx context.Context, req *Request) (*Result, error) {
	body, err := c.buildBody(req)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(data, "error.message").String(),
		}
	}

	parsed := gjson.ParseBytes(data)
	if parsed.Get("status").String() == "failed" {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    parsed.Get("error.message").String(),
		}
	}

	text := outputText(parsed)
	if text == "" {
		return nil, ErrEmptyReply
	}

	responseID := parsed.Get("id").String()
	c.logger.Debug("response created",
		"response_id", responseID,
		"previous_response_id", req.PreviousResponseID,
		"output_tokens", parsed.Get("usage.output_tokens").Int())

	return &Result{Text: text, ResponseID: responseID}, nil
}

// buildBody renders the JSON request for req.
func (c *ResponsesClient) buildBody(req *Request) ([]byte, error) {
	body := []byte(`{}`)
	var err error

	if body, err = sjson.SetBytes(body, "model", c.model); err != nil {
		return nil, err
	}
	if req.Instructions != "" {
		if body, err = sjson.SetBytes(body, "instructions", req.Instructions); err != nil {
			return nil, err
		}
	}
	if c.maxTokens > 0 {
		if body, err = sjson.SetBytes(body, "max_output_tokens", c.maxTokens); err != nil {
			return nil, err
		}
	}
	if req.PreviousResponseID != "" {
		if body, err = sjson.SetBytes(body, "previous_response_id", req.PreviousResponseID); err != nil {
			return nil, err
		}
	}

	if body, err = sjson.SetRawBytes(body, "input", []byte(`[]`)); err != nil {
		return nil, err
	}
	for _, turn := range req.Turns {
		partType := "input_text"
		if turn.Role == RoleAssistant {
			partType = "output_text"
		}
		item := inputItem{
			Type:    "message",
			Role:    turn.Role,
			Content: []contentPart{{Type: partType, Text: turn.Text}},
		}
		if body, err = sjson.SetBytes(body, "input.-1", item); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// outputText prefers the aggregated output_text field and falls back to
// concatenating the output_text parts of every message output item.
func outputText(parsed gjson.Result) string {
	if text := parsed.Get("output_text").String(); text != "" {
		return text
	}

	var sb strings.Builder
	parsed.Get("output").ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() != "message" {
			return true
		}
		item.Get("content").ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "output_text" {
				sb.WriteString(part.Get("text").String())
			}
			return true
		})
		return true
	})
	return sb.String()
}
