package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be applied without a restart are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MetronomeChanged is set when the default tempo or scheduler timing
	// changed. Timing applies from the next Start.
	MetronomeChanged bool

	// PitchChanged is set when estimator, frame size or hold-last changed.
	// It applies to tuner sessions started afterwards.
	PitchChanged bool

	// TeacherChanged is set when persona, temperature or max tokens changed.
	TeacherChanged bool

	// RestartRequired lists changed fields that only take effect after a
	// restart (listen address, storage, providers).
	RestartRequired []string
}

// Changed reports whether anything at all differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.MetronomeChanged || d.PitchChanged || d.TeacherChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.MetronomeChanged = old.Metronome != new.Metronome

	oa, na := old.Audio, new.Audio
	d.PitchChanged = oa.Estimator != na.Estimator || oa.FrameSize != na.FrameSize || oa.HoldLast != na.HoldLast

	d.TeacherChanged = old.Teacher.Persona != new.Teacher.Persona ||
		!equalFloatPtr(old.Teacher.Temperature, new.Teacher.Temperature) ||
		old.Teacher.MaxTokens != new.Teacher.MaxTokens

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if oa.SampleRate != na.SampleRate {
		d.RestartRequired = append(d.RestartRequired, "audio.sample_rate")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Chord.RemoteURL != new.Chord.RemoteURL {
		d.RestartRequired = append(d.RestartRequired, "chord.remote_url")
	}
	if !equalEntry(old.Providers.LLM, new.Providers.LLM) || len(old.Providers.LLMFallbacks) != len(new.Providers.LLMFallbacks) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	} else {
		for i := range old.Providers.LLMFallbacks {
			if !equalEntry(old.Providers.LLMFallbacks[i], new.Providers.LLMFallbacks[i]) {
				d.RestartRequired = append(d.RestartRequired, "providers")
				break
			}
		}
	}

	return d
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// equalEntry ignores Options; changing only provider options is not detected.
func equalEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
