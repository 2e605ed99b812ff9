package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("503"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(5), func(_ context.Context) error {
		calls++
		return errors.New("bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	retries := 0
	cfg := fastRetry(4)
	cfg.OnRetry = func(int, error) { retries++ }
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("429"), 429)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 || retries != 3 {
		t.Errorf("calls=%d retries=%d", calls, retries)
	}
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetry(10), func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("timeout"), 0)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	v, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Errorf("got (%d, %v)", v, err)
	}
}

func TestBackoff_CappedAndNonNegative(t *testing.T) {
	cfg := withRetryDefaults(RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second})
	cfg.JitterFraction = 0
	if d := backoff(0, cfg); d != time.Second {
		t.Errorf("attempt 0: %v", d)
	}
	if d := backoff(5, cfg); d != 3*time.Second {
		t.Errorf("attempt 5 should cap: %v", d)
	}
}

func TestPolicyCall_BreakerStopsRetries(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	p := Policy{Service: "jina", Retry: fastRetry(5), Breaker: cb}

	calls := 0
	_, err := Call(context.Background(), p, "read", func(_ context.Context) (string, error) {
		calls++
		return "", NewTransientError(errors.New("502"), 502)
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls before the circuit opened, got %d", calls)
	}
}

func TestFromConfig(t *testing.T) {
	rc := FromRetryConfig(5, 100, 0)
	if rc.MaxAttempts != 5 || rc.InitialBackoff != 100*time.Millisecond || rc.MaxBackoff != 30*time.Second {
		t.Errorf("unexpected retry config: %+v", rc)
	}
	cc := FromCircuitConfig(0, 60)
	if cc.FailureThreshold != 5 || cc.ResetTimeout != time.Minute {
		t.Errorf("unexpected circuit config: %+v", cc)
	}
}
