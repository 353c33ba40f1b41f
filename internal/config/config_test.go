package config_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/chordcoord/internal/config"
	"github.com/MrWong99/chordcoord/pkg/provider/llm"
	"github.com/MrWong99/chordcoord/pkg/provider/llm/mock"
)

const validYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
  allowed_origins: ["http://localhost:5173"]
audio:
  sample_rate: 48000
  frame_size: 4096
  estimator: fft
  hold_last: true
metronome:
  bpm: 90
chord:
  remote_url: "http://chords.local:8000"
  timeout: 2s
  breaker:
    max_failures: 3
storage:
  backend: postgres
  postgres_dsn: "postgres://localhost/chordcoord"
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  llm_fallbacks:
    - name: ollama
      base_url: "http://localhost:11434"
      model: llama3
teacher:
  temperature: 0.5
  max_tokens: 512
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.FrameSize != 4096 || cfg.Audio.Estimator != config.EstimatorFFT || !cfg.Audio.HoldLast {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Metronome.BPM != 90 || cfg.Metronome.Lookahead != config.DefaultLookahead {
		t.Errorf("metronome = %+v", cfg.Metronome)
	}
	if cfg.Chord.Timeout != 2*time.Second || cfg.Chord.Breaker.MaxFailures != 3 {
		t.Errorf("chord = %+v", cfg.Chord)
	}
	if cfg.Storage.Backend != config.StoragePostgres || cfg.Storage.Path != "" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Providers.LLM.Name != "openai" || len(cfg.Providers.LLMFallbacks) != 1 {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if cfg.Teacher.Temperature == nil || *cfg.Teacher.Temperature != 0.5 {
		t.Errorf("teacher.temperature = %v", cfg.Teacher.Temperature)
	}
}

func TestLoadFromReader_EmptyIsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
	want := config.Default()
	if cfg.Server.ListenAddr != want.Server.ListenAddr || cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Audio != want.Audio || cfg.Metronome != want.Metronome || cfg.Storage != want.Storage {
		t.Errorf("defaults differ: %+v", cfg)
	}
	if cfg.Storage.Backend != config.StorageFile || cfg.Storage.Path != config.DefaultStoragePath {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("allowed_origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Teacher.Temperature != nil {
		t.Errorf("teacher.temperature = %v, want nil", *cfg.Teacher.Temperature)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":1\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/nonexistent/chordcoord.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	neg := -0.1
	hot := 2.5
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*config.Config) {}},
		{
			name:    "log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "verbose" },
			wantErr: "server.log_level",
		},
		{
			name:    "tls without key",
			mutate:  func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "cert.pem"} },
			wantErr: "server.tls",
		},
		{
			name:    "frame size too small",
			mutate:  func(c *config.Config) { c.Audio.FrameSize = 64 },
			wantErr: "audio.frame_size",
		},
		{
			name:    "estimator",
			mutate:  func(c *config.Config) { c.Audio.Estimator = "yin" },
			wantErr: "audio.estimator",
		},
		{
			name:    "negative bpm",
			mutate:  func(c *config.Config) { c.Metronome.BPM = -1 },
			wantErr: "metronome.bpm",
		},
		{
			name: "schedule ahead not past lookahead",
			mutate: func(c *config.Config) {
				c.Metronome.Lookahead = 100 * time.Millisecond
				c.Metronome.ScheduleAhead = 100 * time.Millisecond
			},
			wantErr: "metronome.schedule_ahead",
		},
		{
			name:    "relative remote url",
			mutate:  func(c *config.Config) { c.Chord.RemoteURL = "chords.local" },
			wantErr: "chord.remote_url",
		},
		{
			name:    "negative breaker failures",
			mutate:  func(c *config.Config) { c.Chord.Breaker.MaxFailures = -1 },
			wantErr: "chord.breaker.max_failures",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *config.Config) { c.Storage.Backend = "sqlite" },
			wantErr: "storage.backend",
		},
		{
			name: "postgres without dsn",
			mutate: func(c *config.Config) {
				c.Storage = config.StorageConfig{Backend: config.StoragePostgres}
			},
			wantErr: "storage.postgres_dsn",
		},
		{
			name: "fallbacks without primary",
			mutate: func(c *config.Config) {
				c.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "ollama"}}
			},
			wantErr: "requires providers.llm",
		},
		{
			name: "fallback without name",
			mutate: func(c *config.Config) {
				c.Providers.LLM = config.ProviderEntry{Name: "openai"}
				c.Providers.LLMFallbacks = []config.ProviderEntry{{Model: "llama3"}}
			},
			wantErr: "llm_fallbacks[0].name",
		},
		{
			name:    "unknown provider only warns",
			mutate:  func(c *config.Config) { c.Providers.LLM = config.ProviderEntry{Name: "my-llm"} },
			wantErr: "",
		},
		{
			name:    "negative temperature",
			mutate:  func(c *config.Config) { c.Teacher.Temperature = &neg },
			wantErr: "teacher.temperature",
		},
		{
			name:    "temperature too high",
			mutate:  func(c *config.Config) { c.Teacher.Temperature = &hot },
			wantErr: "teacher.temperature",
		},
		{
			name:    "negative max tokens",
			mutate:  func(c *config.Config) { c.Teacher.MaxTokens = -5 },
			wantErr: "teacher.max_tokens",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Audio.Estimator = "yin"
	cfg.Storage.Backend = "sqlite"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"server.log_level", "audio.estimator", "storage.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var got config.ProviderEntry
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		got = e
		return &mock.Provider{}, nil
	})
	reg.RegisterLLM("azure", func(config.ProviderEntry) (llm.Provider, error) { return &mock.Provider{}, nil })

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || got.Model != "gpt-4o-mini" {
		t.Errorf("factory saw %+v", got)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Errorf("mock Complete: %v", err)
	}

	names := reg.LLMNames()
	if len(names) != 2 || names[0] != "azure" || names[1] != "openai" {
		t.Errorf("LLMNames = %v", names)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("missing api key")
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai"}); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got %v", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.Providers.LLM.Name != "ollama" || cfg.Storage.Backend != config.StorageFile {
		t.Errorf("providers.llm = %q, storage = %q", cfg.Providers.LLM.Name, cfg.Storage.Backend)
	}
	if cfg.Metronome.ScheduleAhead <= cfg.Metronome.Lookahead {
		t.Errorf("schedule_ahead %v must exceed lookahead %v", cfg.Metronome.ScheduleAhead, cfg.Metronome.Lookahead)
	}
}
