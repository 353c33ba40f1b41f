// Package llm defines the Provider interface for the chat-completion backends
// behind the ask-a-teacher feature.
//
// A provider wraps a remote or local model API (OpenAI, Azure OpenAI, or any
// backend reachable through any-llm-go) and exposes a uniform completion
// interface without coupling callers to a specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FinishReasonError marks a stream chunk that carries a mid-stream failure in
// its Text field.
const FinishReasonError = "error"

// ErrNoMessages is returned for a request without messages.
var ErrNoMessages = errors.New("llm: request has no messages")

// Message is one turn of a conversation. The JSON shape is the one exchanged
// with the browser client.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Validate reports an error for unknown roles.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		return nil
	default:
		return fmt.Errorf("llm: unknown message role %q", m.Role)
	}
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
type CompletionRequest struct {
	// Messages is the ordered conversation history. Must be non-empty.
	Messages []Message

	// Temperature controls randomness in [0, 2]. Zero uses the provider
	// default.
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int

	// SystemPrompt, when set, is sent before Messages as a system turn.
	SystemPrompt string
}

// Validate checks the request before it is sent.
func (r CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	var errs []error
	for _, m := range r.Messages {
		if err := m.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm: temperature %v out of range [0, 2]", r.Temperature))
	}
	return errors.Join(errs...)
}

// Chunk is a fragment of a streaming completion.
type Chunk struct {
	// Text is the incremental content. For a chunk with FinishReason
	// [FinishReasonError] it holds the error message.
	Text string

	// FinishReason is set on the final chunk ("stop", "length", "error").
	FinishReason string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// StreamCompletion sends req and returns a channel of chunks that is
	// closed when generation ends or ctx is cancelled. Failures that prevent
	// the stream from starting are returned as an error; later failures
	// arrive as a chunk with FinishReason [FinishReasonError].
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Collect drains a stream into a single response. A chunk with FinishReason
// [FinishReasonError] is returned as an error along with the text received
// before it.
func Collect(ch <-chan Chunk) (*CompletionResponse, error) {
	var resp CompletionResponse
	for c := range ch {
		if c.FinishReason == FinishReasonError {
			return &resp, fmt.Errorf("llm: stream: %s", c.Text)
		}
		resp.Content += c.Text
	}
	return &resp, nil
}
