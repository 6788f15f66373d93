package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sells-group/leads-cli/internal/config"
)

var errUpstream = NewTransientError("jina", errors.New("503 from upstream"), 503)

func fail(_ context.Context) (int, error) { return 0, errUpstream }
func succeed(_ context.Context) (int, error) { return 1, nil }

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := NewBreaker("jina", BreakerSettings{})

	v, err := Call(context.Background(), b, succeed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("jina", BreakerSettings{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, _ = Call(context.Background(), b, fail)
	}
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	_, err := Call(context.Background(), b, func(_ context.Context) (int, error) {
		t.Error("provider called while open")
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_NonTransientErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker("anthropic", BreakerSettings{FailureThreshold: 2})

	for i := 0; i < 5; i++ {
		_, _ = Call(context.Background(), b, func(_ context.Context) (int, error) {
			return 0, errors.New("invalid request")
		})
	}
	if b.State() != Closed {
		t.Errorf("expected closed after permanent errors, got %s", b.State())
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("jina", BreakerSettings{FailureThreshold: 3})

	_, _ = Call(context.Background(), b, fail)
	_, _ = Call(context.Background(), b, fail)
	_, _ = Call(context.Background(), b, succeed)
	_, _ = Call(context.Background(), b, fail)
	_, _ = Call(context.Background(), b, fail)

	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker("jina", BreakerSettings{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	b.now = func() time.Time { return now }

	_, _ = Call(context.Background(), b, fail)
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(11 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}

	if _, err := Call(context.Background(), b, succeed); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("expected closed after probe, got %s", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("jina", BreakerSettings{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	b.now = func() time.Time { return now }

	_, _ = Call(context.Background(), b, fail)
	now = now.Add(11 * time.Second)
	_, _ = Call(context.Background(), b, fail)

	if b.State() != Open {
		t.Errorf("expected open after failed probe, got %s", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker("jina", BreakerSettings{FailureThreshold: 1})
	_, _ = Call(context.Background(), b, fail)
	b.Reset()
	if b.State() != Closed {
		t.Errorf("expected closed after reset, got %s", b.State())
	}
}

func TestBreaker_Concurrent(t *testing.T) {
	b := NewBreaker("jina", BreakerSettings{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = Call(context.Background(), b, fail)
				return
			}
			_, _ = Call(context.Background(), b, succeed)
		}(i)
	}
	wg.Wait()
	if b.State() == Open {
		t.Error("breaker should not open below threshold")
	}
}

func TestBreakers_GetAndStates(t *testing.T) {
	r := NewBreakers(BreakerSettings{FailureThreshold: 1})
	if r.Get("jina") != r.Get("jina") {
		t.Error("expected the same breaker for the same name")
	}
	_, _ = Call(context.Background(), r.Get("perplexity"), fail)

	states := r.States()
	if states["jina"] != Closed || states["perplexity"] != Open {
		t.Errorf("unexpected states: %v", states)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(config.CircuitConfig{})
	if s.FailureThreshold != 5 || s.ResetTimeout != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", s)
	}
	s = SettingsFromConfig(config.CircuitConfig{FailureThreshold: 2, ResetTimeoutSecs: 4})
	if s.FailureThreshold != 2 || s.ResetTimeout != 4*time.Second {
		t.Errorf("unexpected settings: %+v", s)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{Closed: "closed", Open: "open", HalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
