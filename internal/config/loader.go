package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known LLM provider names. Used by [Validate] to
// warn about unrecognised names.
var ValidProviderNames = []string{
	"openai", "azure", "anthropic", "ollama", "gemini", "deepseek",
	"mistral", "groq", "llamacpp", "llamafile",
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8000"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSampleRate      = 44100
	DefaultFrameSize       = 2048
	DefaultOutputBuffer    = 100 * time.Millisecond
	DefaultBPM             = 120
	DefaultLookahead       = 25 * time.Millisecond
	DefaultScheduleAhead   = 100 * time.Millisecond
	DefaultChordTimeout    = 5 * time.Second
	DefaultStoragePath     = "data/chordcoord.json"

	// minFrameSize keeps the pitch lag search range non-empty.
	minFrameSize = 128
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero fields of cfg.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.AllowedOrigins == nil {
		s.AllowedOrigins = []string{"*"}
	}

	a := &cfg.Audio
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.FrameSize == 0 {
		a.FrameSize = DefaultFrameSize
	}
	if a.Estimator == "" {
		a.Estimator = EstimatorDirect
	}
	if a.OutputBuffer == 0 {
		a.OutputBuffer = DefaultOutputBuffer
	}

	m := &cfg.Metronome
	if m.BPM == 0 {
		m.BPM = DefaultBPM
	}
	if m.Lookahead == 0 {
		m.Lookahead = DefaultLookahead
	}
	if m.ScheduleAhead == 0 {
		m.ScheduleAhead = DefaultScheduleAhead
	}

	if cfg.Chord.Timeout == 0 {
		cfg.Chord.Timeout = DefaultChordTimeout
	}

	st := &cfg.Storage
	if st.Backend == "" {
		st.Backend = StorageFile
	}
	if st.Backend == StorageFile && st.Path == "" {
		st.Path = DefaultStoragePath
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %v must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize != 0 && cfg.Audio.FrameSize < minFrameSize {
		errs = append(errs, fmt.Errorf("audio.frame_size %d is below the minimum of %d", cfg.Audio.FrameSize, minFrameSize))
	}
	if cfg.Audio.Estimator != "" && !cfg.Audio.Estimator.IsValid() {
		errs = append(errs, fmt.Errorf("audio.estimator %q is invalid; valid values: direct, fft", cfg.Audio.Estimator))
	}

	// Metronome
	m := cfg.Metronome
	if m.BPM < 0 {
		errs = append(errs, fmt.Errorf("metronome.bpm %d must be positive", m.BPM))
	}
	if m.Lookahead < 0 || m.ScheduleAhead < 0 {
		errs = append(errs, errors.New("metronome.lookahead and metronome.schedule_ahead must not be negative"))
	}
	if m.Lookahead > 0 && m.ScheduleAhead > 0 && m.ScheduleAhead <= m.Lookahead {
		errs = append(errs, fmt.Errorf("metronome.schedule_ahead %v must exceed metronome.lookahead %v", m.ScheduleAhead, m.Lookahead))
	}

	// Chord
	if raw := cfg.Chord.RemoteURL; raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("chord.remote_url %q must be an absolute http(s) URL", raw))
		}
	}
	errs = append(errs, validateBreaker("chord.breaker", cfg.Chord.Breaker)...)

	// Storage
	st := cfg.Storage
	if st.Backend != "" && !st.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: file, postgres, memory", st.Backend))
	}
	if st.Backend == StoragePostgres && st.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.backend is postgres"))
	}
	if st.Backend == StorageFile && st.Path == "" {
		errs = append(errs, errors.New("storage.path is required when storage.backend is file"))
	}

	// Providers
	validateProviderName(cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName(fb.Name)
	}
	if cfg.Providers.LLM.Name == "" {
		if len(cfg.Providers.LLMFallbacks) > 0 {
			errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
		}
		slog.Debug("no LLM provider configured; ask-a-teacher is disabled")
	}

	// Teacher
	if t := cfg.Teacher.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("teacher.temperature %.2f is out of range [0, 2]", *t))
	}
	if cfg.Teacher.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("teacher.max_tokens %d must not be negative", cfg.Teacher.MaxTokens))
	}
	errs = append(errs, validateBreaker("teacher.breaker", cfg.Teacher.Breaker)...)

	return errors.Join(errs...)
}

func validateBreaker(prefix string, b BreakerConfig) []error {
	var errs []error
	if b.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("%s.max_failures %d must not be negative", prefix, b.MaxFailures))
	}
	if b.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("%s.half_open_max %d must not be negative", prefix, b.HalfOpenMax))
	}
	if b.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("%s.reset_timeout %v must not be negative", prefix, b.ResetTimeout))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and unknown.
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", "llm",
		"name", name,
		"known", ValidProviderNames,
	)
}
