// Package completion provides clients for remote conversational-AI
// completion endpoints.
//
// # Contract
//
// Every backend implements Client:
//
//	result, err := client.Complete(ctx, &completion.Request{
//		Turns:              []completion.Turn{{Role: completion.RoleUser, Text: "I'm tired"}},
//		PreviousResponseID: conv.PreviousResponseID,
//		Instructions:       "You only talk about food.",
//	})
//
// Result.ResponseID is an opaque token. Passing it back as
// PreviousResponseID continues the same context on the next turn.
//
// # Backends
//
//   - ResponsesClient: OpenAI Responses API. Chaining is native
//     (previous_response_id).
//   - OpenAIClient: OpenAI-compatible chat completions via go-openai.
//   - AnthropicClient: Anthropic Messages via anthropic-sdk-go.
//
// The chat completions and Messages APIs are stateless, so those clients
// keep each issued transcript in a replay cache and resend it when a request
// chains onto its id. Transcripts expire after Config.ReplayTTL without use;
// chaining onto an expired id fails with ErrUnknownResponse.
//
// # Errors
//
// Provider rejections are *APIError, an answer without text is
// ErrEmptyReply, and transport failures wrap the underlying error.
package completion
