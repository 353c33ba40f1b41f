package chord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/chordcoord/internal/observe"
	"github.com/MrWong99/chordcoord/internal/resilience"
)

// ErrNotFound is returned by [Service.Notes] for unknown chord names.
var ErrNotFound = errors.New("chord: not found")

// Service identifies chords and reverse-looks-up chord names.
type Service interface {
	Identify(ctx context.Context, notes []string) (Result, error)
	Notes(ctx context.Context, name string) ([]string, error)
}

// Local answers from the built-in chord tables.
type Local struct {
	metrics *observe.Metrics
}

var _ Service = (*Local)(nil)

// NewLocal returns a Local service. A nil metrics uses the default
// instruments.
func NewLocal(m *observe.Metrics) *Local {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Local{metrics: m}
}

// Identify implements [Service].
func (l *Local) Identify(ctx context.Context, notes []string) (Result, error) {
	_, span := observe.StartSpan(ctx, "chord.identify")
	defer span.End()

	res := Identify(notes)
	l.metrics.RecordChordRequest(ctx, "local", foundLabel(res.Found))
	return res, nil
}

// Notes implements [Service].
func (l *Local) Notes(_ context.Context, name string) ([]string, error) {
	notes := Notes(name)
	if notes == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return notes, nil
}

func foundLabel(found bool) string {
	if found {
		return "found"
	}
	return "not_found"
}

// ─── Remote client ───────────────────────────────────────────────────────────

const (
	identifyEndpoint = "/api/identify"
	chordEndpoint    = "/api/chord/"
	defaultTimeout   = 5 * time.Second
	maxResponseBytes = 1 << 20
)

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout. Defaults to 5 s.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithBreaker sets the circuit breaker guarding the remote service.
func WithBreaker(cb *resilience.CircuitBreaker) ClientOption {
	return func(c *Client) { c.breaker = cb }
}

// WithClientMetrics sets the metrics instruments.
func WithClientMetrics(m *observe.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// Client talks to a remote chord service speaking the same HTTP API this
// module serves.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics
}

var _ Service = (*Client)(nil)

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "chord-api"})
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

type identifyRequest struct {
	Notes []string `json:"notes"`
}

type notesResponse struct {
	Notes []string `json:"notes"`
}

// Identify implements [Service].
func (c *Client) Identify(ctx context.Context, notes []string) (_ Result, err error) {
	ctx, span := observe.StartSpan(ctx, "chord.identify.remote")
	defer func() { observe.EndSpan(span, err) }()

	body, err := json.Marshal(identifyRequest{Notes: notes})
	if err != nil {
		return Result{}, fmt.Errorf("chord: encode request: %w", err)
	}

	res, err := resilience.Do(c.breaker, func() (Result, error) {
		var res Result
		err := c.do(ctx, http.MethodPost, identifyEndpoint, body, &res)
		return res, err
	})
	if err != nil {
		c.metrics.RecordChordRequest(ctx, "remote", "error")
		return Result{}, err
	}
	c.metrics.RecordChordRequest(ctx, "remote", foundLabel(res.Found))
	return res, nil
}

// Notes implements [Service]. A 404 from the server maps to [ErrNotFound]
// and does not count against the breaker.
func (c *Client) Notes(ctx context.Context, name string) ([]string, error) {
	var out notesResponse
	_, err := resilience.Do(c.breaker, func() (struct{}, error) {
		err := c.do(ctx, http.MethodGet, chordEndpoint+url.PathEscape(name), nil, &out)
		if errors.Is(err, ErrNotFound) {
			// Recorded as a success; the service is healthy.
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if err != nil {
		return nil, err
	}
	if out.Notes == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return out.Notes, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("chord: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chord: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("chord: %s %s returned status %d", method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("chord: decode %s response: %w", path, err)
	}
	return nil
}
