package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// chordMux is a small stand-in for the API routes.
func chordMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chord/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") == "Z Major" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/llm/ask", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return mux
}

func middlewareSetup(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := useRecorder(t)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return Middleware(m)(chordMux()), reader, exp
}

func TestMiddleware_Spans(t *testing.T) {
	tests := []struct {
		method, path string
		wantStatus   int
		wantName     string
		wantError    bool
	}{
		{method: "GET", path: "/api/chord/C%20Major", wantStatus: 200, wantName: "GET /api/chord/{name}"},
		{method: "GET", path: "/api/chord/Z%20Major", wantStatus: 404, wantName: "GET /api/chord/{name}"},
		{method: "POST", path: "/api/llm/ask", wantStatus: 502, wantName: "POST /api/llm/ask", wantError: true},
		{method: "GET", path: "/nowhere", wantStatus: 404, wantName: "GET /nowhere"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			h, _, exp := middlewareSetup(t)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("recorded %d spans, want 1", len(spans))
			}
			s := spans[0]
			if s.Name != tt.wantName {
				t.Errorf("span name = %q, want %q", s.Name, tt.wantName)
			}
			if got := s.Status.Code == codes.Error; got != tt.wantError {
				t.Errorf("span failed = %v, want %v", got, tt.wantError)
			}
			var status int64
			for _, a := range s.Attributes {
				if a.Key == "http.response.status_code" {
					status = a.Value.AsInt64()
				}
			}
			if status != int64(tt.wantStatus) {
				t.Errorf("status attribute = %d", status)
			}
			if got := rec.Header().Get("X-Correlation-ID"); got != s.SpanContext.TraceID().String() {
				t.Errorf("X-Correlation-ID = %q, want the span's trace id", got)
			}
		})
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	h, _, exp := middlewareSetup(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest("GET", "/api/chord/A%20Minor", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
	if spans := exp.GetSpans(); len(spans) != 1 || spans[0].Parent.SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("span not parented to the incoming span: %+v", spans)
	}
}

func TestMiddleware_DurationByRoute(t *testing.T) {
	h, reader, _ := middlewareSetup(t)

	for _, name := range []string{"C%20Major", "A%20Minor", "G%20Sus4"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/chord/"+name, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/llm/ask", nil))

	met := findMetric(collect(t, reader), "chordcoord.http.request.duration")
	if met == nil {
		t.Fatal("duration histogram not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data type %T", met.Data)
	}
	counts := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		path, _ := dp.Attributes.Value("path")
		status, _ := dp.Attributes.Value("status")
		counts[path.AsString()+" "+status.AsString()] += dp.Count
	}
	if counts["GET /api/chord/{name} 200"] != 3 {
		t.Errorf("chord route samples = %v", counts)
	}
	if counts["POST /api/llm/ask 502"] != 1 {
		t.Errorf("ask route samples = %v", counts)
	}
}

func TestStatusRecorder_Passthrough(t *testing.T) {
	t.Parallel()

	inner := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: inner, statusCode: http.StatusOK}
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("Hijack on a recorder: want error")
	}
	rec.Flush()
	if !inner.Flushed {
		t.Error("Flush not forwarded")
	}
	if rec.Unwrap() != inner {
		t.Error("Unwrap does not return the wrapped writer")
	}
}
