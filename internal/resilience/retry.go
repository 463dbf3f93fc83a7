// Package resilience provides the fleet-operations primitives layered
// above the synchronous scanning core: retry with backoff for NATS
// ruleset publishing, and a circuit breaker guarding the daemon's /scan
// endpoint under overload.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
)

// Retry runs fn up to attempts times with exponential backoff and full
// jitter, starting from delay and capping the backoff at 60s. It returns
// as soon as fn succeeds, or the last error once attempts are exhausted.
// A cancelled ctx aborts immediately between attempts.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, nil
	}
	meter := otel.Meter("sigscan")
	attemptCounter, _ := meter.Int64Counter("sigscan_resilience_retry_attempts_total")
	successCounter, _ := meter.Int64Counter("sigscan_resilience_retry_successes_total")
	failCounter, _ := meter.Int64Counter("sigscan_resilience_retry_failures_total")

	cur := delay
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fn()
		attemptCounter.Add(ctx, 1)
		if err == nil {
			successCounter.Add(ctx, 1)
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if cur > 60*time.Second {
			cur = 60 * time.Second
		}
		sleep := time.Duration(rand.Int63n(int64(cur) + 1))
		select {
		case <-ctx.Done():
			failCounter.Add(ctx, 1)
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		cur *= 2
	}
	failCounter.Add(ctx, 1)
	return zero, lastErr
}
