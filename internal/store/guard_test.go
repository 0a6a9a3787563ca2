package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/switchboard/pkg/types"
)

// scriptedStore fails a configurable number of times before succeeding.
type scriptedStore struct {
	failures int
	calls    int
	failWith error
	lastFrag *types.ConversationFragment
}

func (s *scriptedStore) do() error {
	s.calls++
	if s.calls <= s.failures {
		if s.failWith != nil {
			return s.failWith
		}
		return errors.New("transient failure")
	}
	return nil
}

func (s *scriptedStore) Put(_ context.Context, f *types.ConversationFragment) error {
	if err := s.do(); err != nil {
		return err
	}
	s.lastFrag = f
	return nil
}

func (s *scriptedStore) GetByCustomer(context.Context, string, FetchOptions) ([]*types.ConversationFragment, error) {
	return nil, s.do()
}

func (s *scriptedStore) NearestNeighbors(context.Context, []float32, string, int, float64) ([]ScoredFragment, error) {
	return nil, s.do()
}

func (s *scriptedStore) UpdateCustomerIdentity(context.Context, string, string) error {
	return s.do()
}

func (s *scriptedStore) CountByCustomer(context.Context, string) (int, error) {
	return 0, s.do()
}

func (s *scriptedStore) DeleteOlderThan(context.Context, time.Time) (int, error) {
	return 0, s.do()
}

func (s *scriptedStore) Close() error { return nil }

func testGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:    time.Second,
		RetryDelay: time.Millisecond,
	}
}

func TestGuardedRetriesOnceThenSucceeds(t *testing.T) {
	inner := &scriptedStore{failures: 1}
	g := NewGuarded(inner, testGuardConfig())

	err := g.Put(context.Background(), &types.ConversationFragment{ID: "frag:1"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestGuardedMapsPersistentFailure(t *testing.T) {
	inner := &scriptedStore{failures: 100}
	g := NewGuarded(inner, testGuardConfig())

	err := g.Put(context.Background(), &types.ConversationFragment{ID: "frag:1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 2, inner.calls, "exactly one retry")
}

func TestGuardedPassesThroughDataErrors(t *testing.T) {
	inner := &scriptedStore{failures: 100, failWith: fmt.Errorf("wrapped: %w", ErrNotFound)}
	g := NewGuarded(inner, testGuardConfig())

	err := g.UpdateCustomerIdentity(context.Background(), "frag:missing", "cust:x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 1, inner.calls, "data errors are not retried")
}

func TestGuardedBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &scriptedStore{failures: 1000}
	g := NewGuarded(inner, GuardConfig{
		Timeout:     time.Second,
		RetryDelay:  time.Millisecond,
		MaxFailures: 3,
		OpenTimeout: time.Minute,
		RetryBurst:  100,
	})
	ctx := context.Background()

	// Each call makes two attempts, so the breaker trips within two calls.
	for i := 0; i < 3; i++ {
		_ = g.Put(ctx, &types.ConversationFragment{ID: "frag:1"})
	}
	callsBefore := inner.calls

	err := g.Put(ctx, &types.ConversationFragment{ID: "frag:1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, callsBefore, inner.calls, "an open breaker fails fast without touching the store")
}

func TestGuardedHonorsContextCancellation(t *testing.T) {
	inner := &scriptedStore{failures: 100}
	g := NewGuarded(inner, testGuardConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Put(ctx, &types.ConversationFragment{ID: "frag:1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGuardedSuccessPassesResults(t *testing.T) {
	inner := &scriptedStore{}
	g := NewGuarded(inner, testGuardConfig())

	frag := &types.ConversationFragment{ID: "frag:1", CustomerID: "cust:a"}
	require.NoError(t, g.Put(context.Background(), frag))
	assert.Equal(t, frag, inner.lastFrag)
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-6)
		})
	}
}
