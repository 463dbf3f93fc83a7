package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), 3, time.Millisecond, func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), 5, time.Millisecond, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryReturnsLastErrorAfterExhaustingAttempts(t *testing.T) {
	wantErr := errors.New("still broken")
	calls := 0
	_, err := Retry(context.Background(), 3, time.Millisecond, func() (int, error) {
		calls++
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryZeroAttemptsReturnsZeroValue(t *testing.T) {
	got, err := Retry(context.Background(), 0, time.Millisecond, func() (int, error) {
		t.Fatal("fn should never be called with attempts <= 0")
		return 0, nil
	})
	if err != nil {
		t.Errorf("err = %v, want nil", err)
	}
	if got != 0 {
		t.Errorf("got = %d, want 0", got)
	}
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Retry(ctx, 5, time.Hour, func() (int, error) {
		calls++
		return 0, errors.New("always fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (should stop after the first failed attempt's sleep is cancelled)", calls)
	}
}

func TestCircuitBreakerOpensAfterFailureRateThreshold(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 1, 1, 0.5, time.Hour, 1)
	if !cb.Allow() {
		t.Fatal("breaker should start closed")
	}
	cb.RecordResult(false)
	if cb.Allow() {
		t.Fatal("breaker should be open after exceeding the failure rate with enough samples")
	}
}

func TestCircuitBreakerStaysClosedBelowMinSamples(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 1, 10, 0.1, time.Hour, 1)
	cb.RecordResult(false)
	cb.RecordResult(false)
	if !cb.Allow() {
		t.Fatal("breaker should stay closed while sample count is below minSamples")
	}
}

func TestCircuitBreakerHalfOpensAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 1, 1, 0.1, 10*time.Millisecond, 1)
	cb.RecordResult(false)
	if cb.Allow() {
		t.Fatal("breaker should be open immediately after crossing threshold")
	}
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker should allow a half-open probe once the cooldown elapses")
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 1, 1, 0.1, 10*time.Millisecond, 2)
	cb.RecordResult(false)
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("expected a half-open probe to be allowed")
	}
	cb.RecordResult(false)
	if cb.Allow() {
		t.Fatal("a failed half-open probe should reopen the breaker")
	}
}

func TestCircuitBreakerHalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 1, 1, 0.1, 10*time.Millisecond, 1)
	cb.RecordResult(false)
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("expected a half-open probe to be allowed")
	}
	cb.RecordResult(true)
	if !cb.Allow() {
		t.Fatal("breaker should be closed again after enough successful half-open probes")
	}
}

func TestRateLimiterAllowsUpToCapacity(t *testing.T) {
	rl := NewRateLimiter(3, 0, time.Minute, 0)
	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() #%d should succeed within capacity", i)
		}
	}
	if rl.Allow() {
		t.Fatal("Allow() should fail once the bucket is empty and fillRate is 0")
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(1, 1000, time.Minute, 0)
	if !rl.Allow() {
		t.Fatal("first Allow() should succeed")
	}
	if rl.Allow() {
		t.Fatal("second Allow() should fail before any refill")
	}
	time.Sleep(5 * time.Millisecond)
	if !rl.Allow() {
		t.Fatal("Allow() should succeed after the bucket refills")
	}
}

func TestRateLimiterEnforcesWindowCap(t *testing.T) {
	rl := NewRateLimiter(100, 0, time.Minute, 2)
	if !rl.Allow() || !rl.Allow() {
		t.Fatal("first two Allow() calls should succeed within the window cap")
	}
	if rl.Allow() {
		t.Fatal("third Allow() should fail once the window cap is reached")
	}
}

func TestRateLimiterAllowNRejectsLargeRequest(t *testing.T) {
	rl := NewRateLimiter(5, 0, time.Minute, 0)
	if rl.AllowN(10) {
		t.Fatal("AllowN should reject a request larger than capacity")
	}
}

func TestRateLimiterReserveAfterZeroWhenAvailable(t *testing.T) {
	rl := NewRateLimiter(5, 1, time.Minute, 0)
	if d := rl.ReserveAfter(1); d != 0 {
		t.Errorf("ReserveAfter = %v, want 0 when tokens are available", d)
	}
}

func TestRateLimiterReserveAfterPositiveWhenDry(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Minute, 0)
	rl.Allow()
	if d := rl.ReserveAfter(1); d <= 0 {
		t.Errorf("ReserveAfter = %v, want > 0 once the bucket is dry", d)
	}
}

func TestHybridRateLimiterAllowsWithinBurstCapacity(t *testing.T) {
	rl := NewHybridRateLimiter(2, 0, 1, time.Hour)
	defer rl.Stop()

	ctx := context.Background()
	if !rl.Allow(ctx) {
		t.Fatal("first Allow should succeed within burst capacity")
	}
	if !rl.Allow(ctx) {
		t.Fatal("second Allow should succeed within burst capacity")
	}
	if rl.Allow(ctx) {
		t.Fatal("third Allow should fail once burst capacity is exhausted")
	}
}

func TestHybridRateLimiterWaitQueuesAndReleases(t *testing.T) {
	rl := NewHybridRateLimiter(0, 0, 1, 5*time.Millisecond)
	defer rl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestHybridRateLimiterWaitRejectsWhenQueueFull(t *testing.T) {
	rl := NewHybridRateLimiter(0, 0, 1, time.Hour)
	defer rl.Stop()

	ctx := context.Background()
	go rl.Wait(context.Background())
	time.Sleep(10 * time.Millisecond)

	if err := rl.Wait(ctx); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("err = %v, want ErrRateLimitExceeded", err)
	}
}

func TestHybridRateLimiterAllowOrWaitFallsBackToQueue(t *testing.T) {
	rl := NewHybridRateLimiter(0, 0, 1, 5*time.Millisecond)
	defer rl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rl.AllowOrWait(ctx); err != nil {
		t.Fatalf("AllowOrWait: %v", err)
	}
}

func TestHybridRateLimiterStopIsSafeToCallOnce(t *testing.T) {
	rl := NewHybridRateLimiter(1, 1, 1, time.Millisecond)
	rl.Stop()
}
