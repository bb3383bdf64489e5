package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

type observerFake struct {
	mu      sync.Mutex
	retries map[string]int
	states  []string
}

func (o *observerFake) DependencyRetried(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.retries == nil {
		o.retries = map[string]int{}
	}
	o.retries[op]++
}

func (o *observerFake) BreakerStateChanged(op, state string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, op+":"+state)
}

func quietConfig(obs Observer) Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer:            obs,
	}
}

var errUnavailable = errors.New("ollama unavailable")

func retryUnavailable(err error) ErrorClassification {
	return ErrorClassification{Retryable: errors.Is(err, errUnavailable), RecordFailure: true}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	obs := &observerFake{}
	exec := NewExecutor(quietConfig(obs))

	attempts := 0
	err := exec.Execute(context.Background(), "ollama.embed", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errUnavailable
		}
		return nil
	}, retryUnavailable)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if obs.retries["ollama.embed"] != 2 {
		t.Fatalf("expected 2 observed retries, got %v", obs.retries)
	}
}

func TestExecuteStopsOnPermanentFailure(t *testing.T) {
	exec := NewExecutor(quietConfig(nil))

	attempts := 0
	errBadRequest := errors.New("qdrant 400")
	err := exec.Execute(context.Background(), "qdrant.search", func(context.Context) error {
		attempts++
		return errBadRequest
	}, retryUnavailable)
	if !errors.Is(err, errBadRequest) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensBreakerPerOperation(t *testing.T) {
	obs := &observerFake{}
	cfg := quietConfig(obs)
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	cfg.BreakerHalfOpenMaxCalls = 1
	exec := NewExecutor(cfg)

	fail := func(context.Context) error { return errUnavailable }
	for i := 0; i < 2; i++ {
		if err := exec.Execute(context.Background(), "nats.publish", fail, retryUnavailable); !errors.Is(err, errUnavailable) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
		t.Fatal("open breaker must not call the operation")
		return nil
	}, retryUnavailable)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if len(obs.states) != 1 || obs.states[0] != "nats.publish:open" {
		t.Fatalf("expected one open transition, got %v", obs.states)
	}

	if err := exec.Execute(context.Background(), "qdrant.search", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("other operations keep their own breaker, got %v", err)
	}
}

func TestExecuteAppliesCallTimeoutPerAttempt(t *testing.T) {
	cfg := quietConfig(nil)
	cfg.RetryMaxAttempts = 2
	cfg.CallTimeout = 20 * time.Millisecond
	exec := NewExecutor(cfg)

	attempts := 0
	err := exec.Execute(context.Background(), "ollama.embed", func(ctx context.Context) error {
		attempts++
		if _, ok := ctx.Deadline(); !ok {
			t.Fatal("expected a per-call deadline")
		}
		<-ctx.Done()
		return ctx.Err()
	}, func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, context.DeadlineExceeded), RecordFailure: true}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("each attempt should get a fresh deadline, got %d attempts", attempts)
	}
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	exec := NewExecutor(quietConfig(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Execute(ctx, "ollama.embed", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation before the call, got err=%v called=%v", err, called)
	}
}

func TestCallReturnsValue(t *testing.T) {
	exec := NewExecutor(quietConfig(nil))

	attempts := 0
	vec, err := Call(context.Background(), exec, "ollama.embed", func(context.Context) ([]float32, error) {
		attempts++
		if attempts == 1 {
			return nil, errUnavailable
		}
		return []float32{0.5, 0.25}, nil
	}, retryUnavailable)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := Config{
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     300 * time.Millisecond,
		RetryMultiplier:     2,
	}.normalize()

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := cfg.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := Config{RetryMaxBackoff: time.Millisecond, RetryInitialBackoff: 50 * time.Millisecond, CallTimeout: -1}.normalize()
	if cfg.RetryMaxAttempts != 3 {
		t.Fatalf("expected default attempts, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.RetryMaxBackoff != 50*time.Millisecond {
		t.Fatalf("max backoff must not be below the initial one, got %v", cfg.RetryMaxBackoff)
	}
	if cfg.CallTimeout != 0 {
		t.Fatalf("negative call timeout should disable it, got %v", cfg.CallTimeout)
	}
	if cfg.Logger == nil || cfg.Observer == nil {
		t.Fatal("expected logger and observer defaults")
	}
}
