package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/relaydesk/switchboard/pkg/types"
)

// GuardConfig holds the failure policy for store access.
type GuardConfig struct {
	// Timeout is the per-call deadline. Expiry counts as store-unavailable.
	// Default: 5 seconds.
	Timeout time.Duration

	// RetryDelay is the fixed backoff before the single retry.
	// Default: 500 milliseconds.
	RetryDelay time.Duration

	// MaxFailures is the number of consecutive failures that trip the
	// circuit. Default: 3.
	MaxFailures uint32

	// OpenTimeout is how long the circuit stays open before allowing a
	// probe request. Default: 30 seconds.
	OpenTimeout time.Duration

	// RetryRate bounds how often retries may fire across all calls, so a
	// failing store isn't hammered with doubled traffic. Default: 1/s with
	// a burst of 5.
	RetryRate rate.Limit
	RetryBurst int
}

func (c *GuardConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.RetryRate == 0 {
		c.RetryRate = rate.Limit(1)
	}
	if c.RetryBurst == 0 {
		c.RetryBurst = 5
	}
}

// Guarded wraps a SemanticStore with the engine's failure policy: a per-call
// timeout, at most one retry with fixed backoff, and a circuit breaker so a
// dead store fails fast instead of stacking timeouts. Every failure surfaces
// as ErrStoreUnavailable; ErrNotFound and ErrInvalidInput pass through
// untouched and do not count against the breaker.
type Guarded struct {
	inner   SemanticStore
	breaker *gobreaker.CircuitBreaker
	retries *rate.Limiter
	cfg     GuardConfig
}

// NewGuarded wraps the given store with the failure policy in cfg.
func NewGuarded(inner SemanticStore, cfg GuardConfig) *Guarded {
	cfg.applyDefaults()

	settings := gobreaker.Settings{
		Name:    "semantic-store",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Data-level errors are not store health problems.
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("store: circuit breaker %s -> %s", from, to)
		},
	}

	return &Guarded{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		retries: rate.NewLimiter(cfg.RetryRate, cfg.RetryBurst),
		cfg:     cfg,
	}
}

// run executes fn under the breaker with a per-call timeout, retrying once
// after a fixed backoff when the first attempt fails for store-level reasons.
func (g *Guarded) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
		_, err := g.breaker.Execute(func() (interface{}, error) {
			return nil, fn(callCtx)
		})
		return err
	}

	err := attempt()
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Breaker open: fail fast, no retry.
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open (%s)", ErrStoreUnavailable, op)
	}

	// One retry with fixed backoff, rate-limited across all calls.
	if g.retries.Allow() {
		select {
		case <-time.After(g.cfg.RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if err = attempt(); err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
			return err
		}
	}

	log.Printf("ERROR: store: %s failed after retry: %v", op, err)
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// Put implements SemanticStore.
func (g *Guarded) Put(ctx context.Context, fragment *types.ConversationFragment) error {
	return g.run(ctx, "put", func(ctx context.Context) error {
		return g.inner.Put(ctx, fragment)
	})
}

// GetByCustomer implements SemanticStore.
func (g *Guarded) GetByCustomer(ctx context.Context, customerID string, opts FetchOptions) ([]*types.ConversationFragment, error) {
	var out []*types.ConversationFragment
	err := g.run(ctx, "get_by_customer", func(ctx context.Context) error {
		var innerErr error
		out, innerErr = g.inner.GetByCustomer(ctx, customerID, opts)
		return innerErr
	})
	return out, err
}

// NearestNeighbors implements SemanticStore.
func (g *Guarded) NearestNeighbors(ctx context.Context, embedding []float32, customerID string, k int, minSimilarity float64) ([]ScoredFragment, error) {
	var out []ScoredFragment
	err := g.run(ctx, "nearest_neighbors", func(ctx context.Context) error {
		var innerErr error
		out, innerErr = g.inner.NearestNeighbors(ctx, embedding, customerID, k, minSimilarity)
		return innerErr
	})
	return out, err
}

// UpdateCustomerIdentity implements SemanticStore.
func (g *Guarded) UpdateCustomerIdentity(ctx context.Context, fragmentID, newCustomerID string) error {
	return g.run(ctx, "update_customer_identity", func(ctx context.Context) error {
		return g.inner.UpdateCustomerIdentity(ctx, fragmentID, newCustomerID)
	})
}

// CountByCustomer implements SemanticStore.
func (g *Guarded) CountByCustomer(ctx context.Context, customerID string) (int, error) {
	var out int
	err := g.run(ctx, "count_by_customer", func(ctx context.Context) error {
		var innerErr error
		out, innerErr = g.inner.CountByCustomer(ctx, customerID)
		return innerErr
	})
	return out, err
}

// DeleteOlderThan implements SemanticStore.
func (g *Guarded) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var out int
	err := g.run(ctx, "delete_older_than", func(ctx context.Context) error {
		var innerErr error
		out, innerErr = g.inner.DeleteOlderThan(ctx, cutoff)
		return innerErr
	})
	return out, err
}

// Close implements SemanticStore.
func (g *Guarded) Close() error {
	return g.inner.Close()
}

// Ensure Guarded satisfies the interface.
var _ SemanticStore = (*Guarded)(nil)
