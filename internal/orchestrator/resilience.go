package orchestrator

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// BackoffConfig configures the optional retry backoff policy. The default
// contract is immediate requeue; backoff is a configurable extension.
type BackoffConfig struct {
	// Enabled turns delayed requeue on. Off means immediate requeue.
	Enabled bool
	// InitialInterval is the delay before the first retry (default 100ms).
	InitialInterval time.Duration
	// MaxInterval caps the delay between retries (default 10s).
	MaxInterval time.Duration
	// Multiplier grows the delay per attempt (default 2.0).
	Multiplier float64
}

// DefaultBackoffConfig returns the default (disabled) backoff configuration.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Enabled:         false,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
	}
}

// Delay returns the requeue delay for the given retry attempt (0-based).
// Returns zero when backoff is disabled.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if !c.Enabled {
		return 0
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.InitialInterval
	policy.MaxInterval = c.MaxInterval
	policy.Multiplier = c.Multiplier
	policy.RandomizationFactor = 0 // deterministic delays per attempt
	policy.MaxElapsedTime = 0
	policy.Reset()

	delay := policy.NextBackOff()
	for i := 0; i < attempt; i++ {
		delay = policy.NextBackOff()
	}
	if delay == backoff.Stop {
		return c.MaxInterval
	}
	return delay
}

// BreakerSet maintains a circuit breaker per worker around dispatch
// delivery. Consecutive delivery failures trip the breaker, which removes
// the worker from candidate selection until the breaker half-opens.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	// onTrip is notified when a worker's breaker opens.
	onTrip func(workerID string)
}

// NewBreakerSet creates an empty breaker set. onTrip may be nil.
func NewBreakerSet(onTrip func(workerID string)) *BreakerSet {
	return &BreakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		onTrip:   onTrip,
	}
}

// get returns the breaker for a worker, creating it on first use.
func (b *BreakerSet) get(workerID string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[workerID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        workerID,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			debugLog("[breaker] worker %s: %s -> %s", name, from, to)
			if to == gobreaker.StateOpen && b.onTrip != nil {
				b.onTrip(name)
			}
		},
	})
	b.breakers[workerID] = cb
	return cb
}

// Allow reports whether dispatches to the worker are currently permitted.
func (b *BreakerSet) Allow(workerID string) bool {
	return b.get(workerID).State() != gobreaker.StateOpen
}

// Deliver runs fn through the worker's breaker.
func (b *BreakerSet) Deliver(workerID string, fn func() error) error {
	_, err := b.get(workerID).Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// Forget drops the breaker state for a deregistered worker.
func (b *BreakerSet) Forget(workerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.breakers, workerID)
}
