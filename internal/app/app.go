// Package app wires the chordcoord subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds and connects every
// subsystem from the config, Run serves HTTP and drives the event loop, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore, WithLLM,
// WithListener, etc.). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chordcoord/internal/api"
	"github.com/MrWong99/chordcoord/internal/chord"
	"github.com/MrWong99/chordcoord/internal/config"
	"github.com/MrWong99/chordcoord/internal/eventloop"
	"github.com/MrWong99/chordcoord/internal/health"
	"github.com/MrWong99/chordcoord/internal/observe"
	"github.com/MrWong99/chordcoord/internal/resilience"
	"github.com/MrWong99/chordcoord/internal/store"
	"github.com/MrWong99/chordcoord/internal/teacher"
	"github.com/MrWong99/chordcoord/pkg/provider/llm"
)

// readHeaderTimeout bounds slow clients before a handler runs.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	mu  sync.Mutex
	cfg *config.Config

	registry *config.Registry
	level    *slog.LevelVar
	metrics  *observe.Metrics

	// Subsystems. Initialised in New, torn down in Shutdown.
	store    store.Store
	chords   chord.Service
	provider llm.Provider
	loop     *eventloop.Loop
	api      *api.Server
	server   *http.Server
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of opening the configured backend.
func WithStore(s store.Store) Option { return func(a *App) { a.store = s } }

// WithChordService injects a chord service instead of the configured one.
func WithChordService(s chord.Service) Option { return func(a *App) { a.chords = s } }

// WithLLM injects the teacher's provider instead of building it through the
// registry.
func WithLLM(p llm.Provider) Option { return func(a *App) { a.provider = p } }

// WithRegistry sets the registry used to construct LLM providers.
func WithRegistry(r *config.Registry) Option { return func(a *App) { a.registry = r } }

// WithLevelVar lets hot reload change the level of the caller's logger.
func WithLevelVar(v *slog.LevelVar) Option { return func(a *App) { a.level = v } }

// WithMetrics sets the metrics instruments.
func WithMetrics(m *observe.Metrics) Option { return func(a *App) { a.metrics = m } }

// WithListener serves on ln instead of listening on server.listen_addr.
func WithListener(ln net.Listener) Option { return func(a *App) { a.listener = ln } }

// WithLoop injects the event loop. Run still drives it.
func WithLoop(l *eventloop.Loop) Option { return func(a *App) { a.loop = l } }

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. cfg must already be
// validated.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(Level(cfg.Server.LogLevel))
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Chord service ─────────────────────────────────────────────────
	a.initChords()

	// ── 3. LLM provider ──────────────────────────────────────────────────
	if err := a.initProvider(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	// ── 4. Event loop ────────────────────────────────────────────────────
	if a.loop == nil {
		a.loop = eventloop.New()
	}

	// ── 5. HTTP surface ──────────────────────────────────────────────────
	apiOpts := []api.Option{
		api.WithChordService(a.chords),
		api.WithHealth(health.New(a.checkers())),
		api.WithMetrics(a.metrics),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
		api.WithStaticDir(cfg.Server.StaticDir),
		api.WithAudioSettings(AudioSettings(cfg)),
	}
	if t := a.buildTeacher(cfg); t != nil {
		apiOpts = append(apiOpts, api.WithTeacher(t))
	}
	a.api = api.New(a.store, a.loop, apiOpts...)
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	slog.Info("app initialised",
		"storage", cfg.Storage.Backend,
		"remote_chords", cfg.Chord.RemoteURL != "",
		"teacher", a.provider != nil,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	st := a.cfg.Storage
	switch st.Backend {
	case config.StorageMemory:
		a.store = store.NewMemoryStore()
	case config.StoragePostgres:
		pool, err := store.Connect(ctx, st.PostgresDSN)
		if err != nil {
			return err
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return err
		}
		a.store = pg
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
	default:
		fs, err := store.NewFileStore(st.Path)
		if err != nil {
			return err
		}
		a.store = fs
	}
	return nil
}

func (a *App) initChords() {
	if a.chords != nil {
		return
	}
	c := a.cfg.Chord
	if c.RemoteURL == "" {
		a.chords = chord.NewLocal(a.metrics)
		return
	}
	a.chords = chord.NewClient(c.RemoteURL,
		chord.WithTimeout(c.Timeout),
		chord.WithBreaker(newBreaker("chord-api", c.Breaker)),
		chord.WithClientMetrics(a.metrics),
	)
}

// initProvider builds the primary LLM and wraps it with the configured
// fallbacks. No configured primary leaves the teacher disabled.
func (a *App) initProvider() error {
	if a.provider != nil {
		return nil
	}
	pc := a.cfg.Providers
	if pc.LLM.Name == "" {
		return nil
	}
	primary, err := a.registry.CreateLLM(pc.LLM)
	if err != nil {
		return fmt.Errorf("llm %q: %w", pc.LLM.Name, err)
	}
	if len(pc.LLMFallbacks) == 0 {
		a.provider = primary
		return nil
	}

	fb := resilience.NewLLMFallback(primary, pc.LLM.Name, resilience.FallbackConfig{
		CircuitBreaker: breakerConfig("", a.cfg.Teacher.Breaker),
	})
	for _, entry := range pc.LLMFallbacks {
		p, err := a.registry.CreateLLM(entry)
		if err != nil {
			return fmt.Errorf("llm fallback %q: %w", entry.Name, err)
		}
		fb.AddFallback(entry.Name, p)
	}
	slog.Info("llm fallbacks configured", "backends", fb.Backends())
	a.provider = fb
	return nil
}

// buildTeacher returns nil when no provider is configured.
func (a *App) buildTeacher(cfg *config.Config) *teacher.Teacher {
	if a.provider == nil {
		return nil
	}
	tc := cfg.Teacher
	opts := []teacher.Option{
		teacher.WithBreaker(newBreaker("teacher", tc.Breaker)),
		teacher.WithMetrics(a.metrics),
		teacher.WithProviderName(providerName(cfg)),
		teacher.WithMaxTokens(tc.MaxTokens),
	}
	if tc.Persona != "" {
		opts = append(opts, teacher.WithPersona(tc.Persona))
	}
	if tc.Temperature != nil {
		opts = append(opts, teacher.WithTemperature(*tc.Temperature))
	}
	return teacher.New(a.provider, opts...)
}

func (a *App) checkers() []health.Checker {
	checks := []health.Checker{{
		Name: "store",
		Check: func(ctx context.Context) error {
			_, err := a.store.Tempo(ctx)
			return err
		},
	}}
	if a.cfg.Chord.RemoteURL != "" {
		checks = append(checks, health.Checker{
			Name:     "chord-api",
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := a.chords.Notes(ctx, "C Major")
				return err
			},
		})
	}
	return checks
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and drives the event loop until ctx is cancelled or the
// server fails. A cancelled ctx is a clean exit.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
	}
	slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.loop.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: event loop: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(sctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		return nil
	})

	return g.Wait()
}

// Handler returns the HTTP handler, for mounting in tests.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Store returns the active store.
func (a *App) Store() store.Store { return a.store }

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// WatchConfig polls path and applies every valid change. The watcher is
// stopped by Shutdown.
func (a *App) WatchConfig(path string, opts ...config.WatcherOption) error {
	w, err := config.NewWatcher(path, func(_, next *config.Config) { a.Apply(next) }, opts...)
	if err != nil {
		return fmt.Errorf("app: watch config: %w", err)
	}
	a.closers = append(a.closers, func() error { w.Stop(); return nil })
	return nil
}

// Apply hot-swaps the settings of next that can change at runtime. Fields
// that need a restart are logged and otherwise ignored.
func (a *App) Apply(next *config.Config) config.ConfigDiff {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := config.Diff(a.cfg, next)
	if !d.Changed() {
		return d
	}

	if d.LogLevelChanged {
		a.level.Set(Level(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PitchChanged || d.MetronomeChanged {
		settings := AudioSettings(next)
		settings.SampleRate = a.api.AudioSettings().SampleRate
		a.api.SetAudioSettings(settings)
		slog.Info("audio settings changed", "pitch", d.PitchChanged, "metronome", d.MetronomeChanged)
	}
	if d.TeacherChanged {
		a.api.SetTeacher(a.buildTeacher(next))
		slog.Info("teacher settings changed")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config change requires restart", "fields", d.RestartRequired)
	}

	// Restart-only fields keep their running values.
	applied := *next
	applied.Server.ListenAddr = a.cfg.Server.ListenAddr
	applied.Audio.SampleRate = a.cfg.Audio.SampleRate
	applied.Storage = a.cfg.Storage
	applied.Chord = a.cfg.Chord
	applied.Providers = a.cfg.Providers
	a.cfg = &applied
	return d
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// Level converts a config log level to its slog equivalent.
func Level(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AudioSettings extracts the socket session parameters from cfg.
func AudioSettings(cfg *config.Config) api.AudioSettings {
	return api.AudioSettings{
		SampleRate:    cfg.Audio.SampleRate,
		FrameSize:     cfg.Audio.FrameSize,
		UseFFT:        cfg.Audio.Estimator == config.EstimatorFFT,
		HoldLast:      cfg.Audio.HoldLast,
		BPM:           cfg.Metronome.BPM,
		Lookahead:     cfg.Metronome.Lookahead,
		ScheduleAhead: cfg.Metronome.ScheduleAhead,
	}
}

func breakerConfig(name string, b config.BreakerConfig) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		Name:         name,
		MaxFailures:  b.MaxFailures,
		ResetTimeout: b.ResetTimeout,
		HalfOpenMax:  b.HalfOpenMax,
	}
}

func newBreaker(name string, b config.BreakerConfig) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(breakerConfig(name, b))
}

func providerName(cfg *config.Config) string {
	if n := cfg.Providers.LLM.Name; n != "" {
		return n
	}
	return "llm"
}

// ─── Standalone builders ─────────────────────────────────────────────────────

// NewTeacher builds the teacher the way [New] does for the server. It
// returns nil, nil when no LLM provider is configured.
func NewTeacher(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*teacher.Teacher, error) {
	if reg == nil {
		reg = config.NewRegistry()
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	a := &App{cfg: cfg, registry: reg, metrics: m}
	if err := a.initProvider(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}
	return a.buildTeacher(cfg), nil
}

// NewChordService returns the local identifier or the remote client,
// following cfg.Chord.
func NewChordService(cfg *config.Config, m *observe.Metrics) chord.Service {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	a := &App{cfg: cfg, metrics: m}
	a.initChords()
	return a.chords
}

// OpenStore opens the configured storage backend. The returned close
// function releases any connection pool.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	a := &App{cfg: cfg}
	if err := a.initStore(ctx); err != nil {
		return nil, nil, fmt.Errorf("app: init store: %w", err)
	}
	return a.store, a.closeAll, nil
}
