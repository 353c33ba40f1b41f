package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		failing  map[string]bool
		want     string
		wantErr  bool
		attempts []string
	}{
		{name: "primary succeeds", want: "chord-api", attempts: []string{"chord-api"}},
		{name: "fallback succeeds", failing: map[string]bool{"chord-api": true}, want: "local", attempts: []string{"chord-api", "local"}},
		{name: "all fail", failing: map[string]bool{"chord-api": true, "local": true}, wantErr: true, attempts: []string{"chord-api", "local"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fg := NewFallbackGroup("chord-api", "chord-api", FallbackConfig{
				CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
			})
			fg.AddFallback("local", "local")

			var attempts []string
			got, err := ExecuteWithResult(fg, func(v string) (string, error) {
				attempts = append(attempts, v)
				if tt.failing[v] {
					return "", errTest
				}
				return v, nil
			})
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping errTest", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if len(attempts) != len(tt.attempts) {
				t.Fatalf("attempts = %v, want %v", attempts, tt.attempts)
			}
			for i := range attempts {
				if attempts[i] != tt.attempts[i] {
					t.Errorf("attempt %d = %q, want %q", i, attempts[i], tt.attempts[i])
				}
			}
		})
	}
}

func TestFallbackGroup_OpenCircuitIsSkipped(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	fg := NewFallbackGroup("chord-api", "chord-api", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, Now: clk.Now},
	})
	fg.AddFallback("local", "local")

	_ = fg.Execute(func(v string) error {
		if v == "chord-api" {
			return errTest
		}
		return nil
	})
	if got := fg.Breaker("chord-api").State(); got != StateOpen {
		t.Fatalf("primary state = %v, want open", got)
	}

	var calls []string
	if err := fg.Execute(func(v string) error {
		calls = append(calls, v)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 || calls[0] != "local" {
		t.Errorf("calls = %v, want only local", calls)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup(1, "openai", FallbackConfig{})
	fg.AddFallback("ollama", 2)
	names := fg.Names()
	if len(names) != 2 || names[0] != "openai" || names[1] != "ollama" {
		t.Errorf("Names = %v", names)
	}
	if fg.Breaker("ollama").Name() != "ollama" {
		t.Error("breaker not named after entry")
	}
	if fg.Breaker("missing") != nil {
		t.Error("Breaker(missing) != nil")
	}
}
