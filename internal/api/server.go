// Package api exposes chordcoord over HTTP: the JSON routes used by the
// browser client, the tuner and metronome WebSockets, health probes and
// Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/chordcoord/internal/chord"
	"github.com/MrWong99/chordcoord/internal/eventloop"
	"github.com/MrWong99/chordcoord/internal/health"
	"github.com/MrWong99/chordcoord/internal/observe"
	"github.com/MrWong99/chordcoord/internal/store"
	"github.com/MrWong99/chordcoord/internal/teacher"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// AudioSettings are the per-session parameters of the tuner and metronome
// sockets. They can be swapped at runtime with [Server.SetAudioSettings];
// running sessions keep the settings they started with.
type AudioSettings struct {
	SampleRate int
	FrameSize  int
	UseFFT     bool
	HoldLast   bool

	BPM           int
	Lookahead     time.Duration
	ScheduleAhead time.Duration
}

// DefaultAudioSettings mirrors the config defaults.
func DefaultAudioSettings() AudioSettings {
	return AudioSettings{
		SampleRate:    44100,
		FrameSize:     2048,
		BPM:           120,
		Lookahead:     25 * time.Millisecond,
		ScheduleAhead: 100 * time.Millisecond,
	}
}

// Server holds the dependencies of every route. Build it with [New] and
// mount [Server.Handler].
type Server struct {
	chords    chord.Service
	store     store.Store
	loop      *eventloop.Loop
	health    *health.Handler
	metrics   *observe.Metrics
	origins   []string
	staticDir string

	teacher atomic.Pointer[teacher.Teacher]
	audio   atomic.Pointer[AudioSettings]
}

// Option configures a [Server].
type Option func(*Server)

// WithChordService replaces the local chord identifier.
func WithChordService(s chord.Service) Option { return func(srv *Server) { srv.chords = s } }

// WithTeacher enables /api/llm/ask.
func WithTeacher(t *teacher.Teacher) Option { return func(srv *Server) { srv.teacher.Store(t) } }

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option { return func(srv *Server) { srv.health = h } }

// WithMetrics sets the metrics instruments.
func WithMetrics(m *observe.Metrics) Option { return func(srv *Server) { srv.metrics = m } }

// WithAllowedOrigins sets the CORS and WebSocket origin allow-list. "*"
// allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(srv *Server) { srv.origins = origins }
}

// WithStaticDir serves the browser client from dir at /.
func WithStaticDir(dir string) Option { return func(srv *Server) { srv.staticDir = dir } }

// WithAudioSettings sets the initial socket session parameters.
func WithAudioSettings(a AudioSettings) Option { return func(srv *Server) { srv.audio.Store(&a) } }

// New returns a server persisting to st and running audio sessions on loop.
func New(st store.Store, loop *eventloop.Loop, opts ...Option) *Server {
	s := &Server{store: st, loop: loop, origins: []string{"*"}}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.chords == nil {
		s.chords = chord.NewLocal(s.metrics)
	}
	if s.audio.Load() == nil {
		a := DefaultAudioSettings()
		s.audio.Store(&a)
	}
	return s
}

// SetTeacher swaps the LLM-backed teacher; nil disables /api/llm/ask.
func (s *Server) SetTeacher(t *teacher.Teacher) { s.teacher.Store(t) }

// SetAudioSettings applies to sessions started afterwards.
func (s *Server) SetAudioSettings(a AudioSettings) { s.audio.Store(&a) }

// AudioSettings returns the current session parameters.
func (s *Server) AudioSettings() AudioSettings { return *s.audio.Load() }

// Handler returns the complete route tree wrapped in CORS and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/identify", s.handleIdentify)
	mux.HandleFunc("GET /api/chords", s.handleChords)
	mux.HandleFunc("GET /api/chord/{name}", s.handleChord)
	mux.HandleFunc("GET /api/tuner/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/llm/ask", s.handleAsk)
	mux.HandleFunc("GET /api/settings/tempo", s.handleGetTempo)
	mux.HandleFunc("PUT /api/settings/tempo", s.handlePutTempo)
	mux.HandleFunc("GET /api/favorites", s.handleListFavorites)
	mux.HandleFunc("POST /api/favorites", s.handleAddFavorite)
	mux.HandleFunc("POST /api/favorites/lookup", s.handleLookupFavorite)
	mux.HandleFunc("PATCH /api/favorites/{id}", s.handleRenameFavorite)
	mux.HandleFunc("DELETE /api/favorites/{id}", s.handleRemoveFavorite)

	mux.HandleFunc("GET /ws/tuner", s.handleTunerSocket)
	mux.HandleFunc("GET /ws/metronome", s.handleMetronomeSocket)

	if s.health != nil {
		s.health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}

	return s.cors(observe.Middleware(s.metrics)(mux))
}

// ─── CORS ────────────────────────────────────────────────────────────────────

func (s *Server) allowOrigin(origin string) bool {
	return slices.Contains(s.origins, "*") || slices.Contains(s.origins, origin)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.allowOrigin(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
					h.Set("Access-Control-Allow-Headers", req)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// originPatterns converts the allow-list to websocket accept patterns, which
// match on host only.
func (s *Server) originPatterns() (patterns []string, any bool) {
	for _, o := range s.origins {
		if o == "*" {
			return nil, true
		}
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		patterns = append(patterns, o)
	}
	return patterns, false
}

// ─── JSON helpers ────────────────────────────────────────────────────────────

// errorBody is the error shape the browser client expects.
type errorBody struct {
	Detail     string `json:"detail"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// decodeJSON reads a single JSON object from r into v, rejecting unknown
// fields and trailing data.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
