// Package teacher answers music theory questions through an LLM in the
// voice of a guitar teacher.
package teacher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MrWong99/chordcoord/internal/observe"
	"github.com/MrWong99/chordcoord/internal/resilience"
	"github.com/MrWong99/chordcoord/pkg/provider/llm"
)

// DefaultPersona is the system prompt used when a conversation has none.
const DefaultPersona = "You are a professor of music theory. " +
	"Frame your responses in the context of answering a guitar student."

// DefaultTemperature is the sampling temperature for answers.
const DefaultTemperature = 0.9

// ErrEmptyAnswer is returned when the model replies with no content.
var ErrEmptyAnswer = errors.New("teacher: empty answer")

// ErrInvalidRequest wraps problems with the caller's conversation, such as
// an unknown role or no non-system message.
var ErrInvalidRequest = errors.New("teacher: invalid request")

// Option configures a [Teacher].
type Option func(*Teacher)

// WithPersona replaces [DefaultPersona].
func WithPersona(p string) Option { return func(t *Teacher) { t.persona = p } }

// WithTemperature replaces [DefaultTemperature].
func WithTemperature(v float64) Option { return func(t *Teacher) { t.temperature = v } }

// WithMaxTokens caps the answer length.
func WithMaxTokens(n int) Option { return func(t *Teacher) { t.maxTokens = n } }

// WithBreaker sets the circuit breaker around the provider.
func WithBreaker(cb *resilience.CircuitBreaker) Option { return func(t *Teacher) { t.breaker = cb } }

// WithMetrics sets the metrics instruments.
func WithMetrics(m *observe.Metrics) Option { return func(t *Teacher) { t.metrics = m } }

// WithProviderName labels metrics with the backend name.
func WithProviderName(name string) Option { return func(t *Teacher) { t.providerName = name } }

// Teacher wraps an [llm.Provider]. It is safe for concurrent use.
type Teacher struct {
	provider     llm.Provider
	providerName string
	persona      string
	temperature  float64
	maxTokens    int
	breaker      *resilience.CircuitBreaker
	metrics      *observe.Metrics
}

// New returns a Teacher answering through p.
func New(p llm.Provider, opts ...Option) *Teacher {
	t := &Teacher{
		provider:     p,
		providerName: "llm",
		persona:      DefaultPersona,
		temperature:  DefaultTemperature,
	}
	for _, o := range opts {
		o(t)
	}
	if t.breaker == nil {
		t.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "teacher"})
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	return t
}

// Ask sends the conversation and returns it with the assistant's reply
// appended. The persona is prepended if the conversation has no system
// message. The input slice is not modified.
func (t *Teacher) Ask(ctx context.Context, messages []llm.Message) (_ []llm.Message, err error) {
	ctx, span := observe.StartSpan(ctx, "teacher.ask")
	defer func() { observe.EndSpan(span, err) }()

	req, err := t.request(messages)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := resilience.Do(t.breaker, func() (*llm.CompletionResponse, error) {
		return t.provider.Complete(ctx, req)
	})
	t.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		t.metrics.RecordProviderError(ctx, t.providerName, "llm")
		t.metrics.RecordProviderRequest(ctx, t.providerName, "llm", "error")
		return nil, fmt.Errorf("teacher: ask: %w", err)
	}
	t.metrics.RecordProviderRequest(ctx, t.providerName, "llm", "ok")
	if resp == nil || resp.Content == "" {
		return nil, ErrEmptyAnswer
	}

	out := slices.Clone(req.Messages)
	return append(out, llm.Message{Role: llm.RoleAssistant, Content: resp.Content}), nil
}

// Stream is like Ask but returns the reply as it is generated.
func (t *Teacher) Stream(ctx context.Context, messages []llm.Message) (<-chan llm.Chunk, error) {
	req, err := t.request(messages)
	if err != nil {
		return nil, err
	}
	ch, err := resilience.Do(t.breaker, func() (<-chan llm.Chunk, error) {
		return t.provider.StreamCompletion(ctx, req)
	})
	if err != nil {
		t.metrics.RecordProviderError(ctx, t.providerName, "llm")
		return nil, fmt.Errorf("teacher: stream: %w", err)
	}
	t.metrics.RecordProviderRequest(ctx, t.providerName, "llm", "ok")
	return ch, nil
}

// Question wraps a single question as a conversation.
func Question(q string) []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: q}}
}

func (t *Teacher) request(messages []llm.Message) (llm.CompletionRequest, error) {
	msgs := slices.Clone(messages)
	hasSystem := slices.ContainsFunc(msgs, func(m llm.Message) bool { return m.Role == llm.RoleSystem })
	if !hasSystem && t.persona != "" {
		msgs = append([]llm.Message{{Role: llm.RoleSystem, Content: t.persona}}, msgs...)
	}
	req := llm.CompletionRequest{
		Messages:    msgs,
		Temperature: t.temperature,
		MaxTokens:   t.maxTokens,
	}
	if !slices.ContainsFunc(msgs, func(m llm.Message) bool { return m.Role != llm.RoleSystem }) {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, llm.ErrNoMessages)
	}
	if err := req.Validate(); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return req, nil
}
