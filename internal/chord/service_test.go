package chord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/chordcoord/internal/resilience"
)

// fakeServer serves the chord API from the local tables.
func fakeServer(t *testing.T, fail *atomic.Bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/identify", func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		var req identifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(Identify(req.Notes))
	})
	mux.HandleFunc("GET /api/chord/{name}", func(w http.ResponseWriter, r *http.Request) {
		notes := Notes(r.PathValue("name"))
		if notes == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Chord not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(notesResponse{Notes: notes})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLocal(t *testing.T) {
	t.Parallel()

	l := NewLocal(nil)
	res, err := l.Identify(context.Background(), []string{"E", "G", "B"})
	if err != nil || res.Primary == nil || res.Primary.Name != "E Minor" {
		t.Fatalf("Identify = %+v, %v", res, err)
	}
	if _, err := l.Notes(context.Background(), "C Blah"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Notes err = %v, want ErrNotFound", err)
	}
}

func TestClient_Identify(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	srv := fakeServer(t, &fail)
	c := NewClient(srv.URL + "/")

	res, err := c.Identify(context.Background(), []string{"A", "C", "E", "G"})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res.Primary == nil || res.Primary.Name != "A Minor 7th" || len(res.Alternatives) != 1 {
		t.Errorf("result = %+v", res)
	}

	res, err = c.Identify(context.Background(), []string{"C"})
	if err != nil || res.Found || res.Message != MsgTooFewNotes {
		t.Errorf("too few = %+v, %v", res, err)
	}
}

func TestClient_Notes(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	srv := fakeServer(t, &fail)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "chord-api", MaxFailures: 1})
	c := NewClient(srv.URL, WithBreaker(cb))

	notes, err := c.Notes(context.Background(), "F# Minor")
	if err != nil || !slices.Equal(notes, []string{"F#", "A", "C#"}) {
		t.Fatalf("Notes = %v, %v", notes, err)
	}

	_, err = c.Notes(context.Background(), "F# Nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if cb.State() != resilience.StateClosed {
		t.Errorf("breaker %v after 404, want closed", cb.State())
	}
}

func TestClient_BreakerOpens(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	fail.Store(true)
	srv := fakeServer(t, &fail)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "chord-api", MaxFailures: 2})
	c := NewClient(srv.URL, WithBreaker(cb))

	for range 2 {
		_, err := c.Identify(context.Background(), []string{"C", "E", "G"})
		if err == nil || !strings.Contains(err.Error(), "status 500") {
			t.Fatalf("err = %v, want status 500", err)
		}
	}
	fail.Store(false)
	if _, err := c.Identify(context.Background(), []string{"C", "E", "G"}); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url)
	if _, err := c.Identify(context.Background(), []string{"C", "E", "G"}); err == nil {
		t.Fatal("expected error from closed server")
	}
}
