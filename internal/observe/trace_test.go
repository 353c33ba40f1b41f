package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useRecorder installs an in-memory tracer provider as the global one for
// the duration of the test. Tests using it must not run in parallel.
func useRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs points the default logger at a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

var traceIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestCorrelationID(t *testing.T) {
	useRecorder(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("outside a span = %q, want empty", got)
	}

	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "chord.identify")
		id := CorrelationID(ctx)
		span.End()
		if !traceIDPattern.MatchString(id) {
			t.Fatalf("trace id %q is not 32 hex digits", id)
		}
		if seen[id] {
			t.Fatalf("trace id %s reused", id)
		}
		seen[id] = true
	}
}

func TestStartSpan_NestsUnderParent(t *testing.T) {
	exp := useRecorder(t)

	ctx, parent := StartSpan(context.Background(), "teacher.ask")
	_, child := StartSpan(ctx, "chord.identify.remote")
	child.End()
	parent.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	c, p := spans[0], spans[1]
	if c.Name != "chord.identify.remote" || p.Name != "teacher.ask" {
		t.Fatalf("span names = %q, %q", c.Name, p.Name)
	}
	if c.Parent.SpanID() != p.SpanContext.SpanID() {
		t.Error("child span not parented to the outer span")
	}
	if c.InstrumentationScope.Name != scope {
		t.Errorf("scope = %q, want %q", c.InstrumentationScope.Name, scope)
	}
}

func TestEndSpan(t *testing.T) {
	exp := useRecorder(t)

	_, ok := StartSpan(context.Background(), "ok")
	EndSpan(ok, nil)
	_, bad := StartSpan(context.Background(), "bad")
	EndSpan(bad, errors.New("upstream timeout"))

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Unset || len(spans[0].Events) != 0 {
		t.Errorf("successful span status = %v, events = %d", spans[0].Status, len(spans[0].Events))
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "upstream timeout" {
		t.Errorf("failed span status = %+v", spans[1].Status)
	}
	if len(spans[1].Events) != 1 || spans[1].Events[0].Name != "exception" {
		t.Errorf("failed span events = %+v, want one exception", spans[1].Events)
	}
}

func TestLogger(t *testing.T) {
	useRecorder(t)
	logs := captureLogs(t)

	Logger(context.Background()).Info("tempo saved")
	if strings.Contains(logs.String(), "trace_id") {
		t.Errorf("log outside a span carries a trace id: %s", logs)
	}

	logs.Reset()
	ctx, span := StartSpan(context.Background(), "store.save_tempo")
	defer span.End()
	Logger(ctx).Info("tempo saved", "bpm", 96)

	out := logs.String()
	for _, want := range []string{"trace_id=" + CorrelationID(ctx), "span_id=", "bpm=96"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}
