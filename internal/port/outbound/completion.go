// Package outbound defines the outbound port interfaces for external
// services: the completion provider and object storage.
package outbound

import (
	"context"
	"errors"
)

// ErrProviderUnavailable is returned when the completion provider cannot
// be reached, including when the circuit breaker is open.
var ErrProviderUnavailable = errors.New("completion provider unavailable")

// CompletionMessage is one turn of conversation history sent to the provider.
type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a chat completion call.
type CompletionRequest struct {
	Model       string
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float64
}

// CompletionResponse is the provider's answer with its usage accounting.
type CompletionResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	FinishReason string
	// UsageReported is false when the provider omitted the usage block
	// and token counts must be estimated by the caller.
	UsageReported bool
}

// StreamChunk is one incremental piece of a streamed completion.
type StreamChunk struct {
	// Delta is the new content fragment, possibly empty on the final chunk.
	Delta string
	// Done marks the terminal chunk; Response is only set on it.
	Done bool
	// Response carries the final accounting once Done is true.
	Response *CompletionResponse
}

// CompletionClient is the outbound port for the LLM completion provider.
// Adapters implement this for OpenRouter-compatible APIs.
type CompletionClient interface {
	// Complete performs a non-streaming chat completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream performs a streaming chat completion, calling fn for each
	// chunk in order. The final chunk has Done set and carries the
	// response accounting. Stream returns after the final chunk or on
	// the first error; fn must not be called after an error.
	Stream(ctx context.Context, req CompletionRequest, fn func(StreamChunk) error) error
}
