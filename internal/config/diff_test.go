package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/chordcoord/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if d := config.Diff(cfg, cfg); d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	temp := 0.4
	tests := []struct {
		name        string
		mutate      func(*config.Config)
		check       func(config.ConfigDiff) bool
		wantRestart []string
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(d config.ConfigDiff) bool {
				return d.LogLevelChanged && d.NewLogLevel == config.LogDebug
			},
		},
		{
			name:   "metronome bpm",
			mutate: func(c *config.Config) { c.Metronome.BPM = 60 },
			check:  func(d config.ConfigDiff) bool { return d.MetronomeChanged && !d.PitchChanged },
		},
		{
			name:   "estimator",
			mutate: func(c *config.Config) { c.Audio.Estimator = config.EstimatorFFT },
			check:  func(d config.ConfigDiff) bool { return d.PitchChanged },
		},
		{
			name:   "hold last",
			mutate: func(c *config.Config) { c.Audio.HoldLast = true },
			check:  func(d config.ConfigDiff) bool { return d.PitchChanged },
		},
		{
			name:   "teacher temperature",
			mutate: func(c *config.Config) { c.Teacher.Temperature = &temp },
			check:  func(d config.ConfigDiff) bool { return d.TeacherChanged },
		},
		{
			name:   "teacher persona",
			mutate: func(c *config.Config) { c.Teacher.Persona = "You are a jazz guitarist." },
			check:  func(d config.ConfigDiff) bool { return d.TeacherChanged },
		},
		{
			name:        "listen addr",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":9999" },
			check:       func(d config.ConfigDiff) bool { return !d.LogLevelChanged },
			wantRestart: []string{"server.listen_addr"},
		},
		{
			name:        "sample rate",
			mutate:      func(c *config.Config) { c.Audio.SampleRate = 48000 },
			check:       func(d config.ConfigDiff) bool { return !d.PitchChanged },
			wantRestart: []string{"audio.sample_rate"},
		},
		{
			name: "storage and provider",
			mutate: func(c *config.Config) {
				c.Storage.Backend = config.StorageMemory
				c.Providers.LLM = config.ProviderEntry{Name: "openai"}
			},
			check:       func(config.ConfigDiff) bool { return true },
			wantRestart: []string{"storage", "providers"},
		},
		{
			name: "fallback model",
			mutate: func(c *config.Config) {
				c.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "ollama", Model: "mistral"}}
			},
			check:       func(config.ConfigDiff) bool { return true },
			wantRestart: []string{"providers"},
		},
		{
			name:        "remote chord service",
			mutate:      func(c *config.Config) { c.Chord.RemoteURL = "http://chords:8000" },
			check:       func(config.ConfigDiff) bool { return true },
			wantRestart: []string{"chord.remote_url"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			new := config.Default()
			tt.mutate(new)

			d := config.Diff(old, new)
			if !d.Changed() {
				t.Fatal("expected a change")
			}
			if !tt.check(d) {
				t.Errorf("unexpected diff %+v", d)
			}
			if !slices.Equal(d.RestartRequired, tt.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.wantRestart)
			}
		})
	}
}

func TestDiff_SameFallbacks(t *testing.T) {
	t.Parallel()
	old := config.Default()
	old.Providers.LLM = config.ProviderEntry{Name: "openai", Model: "gpt-4o"}
	old.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "ollama"}}
	new := config.Default()
	new.Providers.LLM = config.ProviderEntry{Name: "openai", Model: "gpt-4o"}
	new.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "ollama"}}

	if d := config.Diff(old, new); d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}
