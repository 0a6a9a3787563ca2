package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/switchboard/internal/store"
	"github.com/relaydesk/switchboard/pkg/types"
)

func newFragment(id, customerID string, age time.Duration, embedding []float32) *types.ConversationFragment {
	return &types.ConversationFragment{
		ID:         id,
		CustomerID: customerID,
		Channel:    types.ChannelSMS,
		Direction:  types.DirectionInbound,
		Timestamp:  time.Now().UTC().Add(-age),
		Text:       "test fragment " + id,
		Embedding:  embedding,
	}
}

func TestPutAndGetByCustomer(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newFragment("frag:1", "cust:a", 3*time.Hour, nil)))
	require.NoError(t, s.Put(ctx, newFragment("frag:2", "cust:a", time.Hour, nil)))
	require.NoError(t, s.Put(ctx, newFragment("frag:3", "cust:b", 2*time.Hour, nil)))

	frags, err := s.GetByCustomer(ctx, "cust:a", store.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "frag:2", frags[0].ID, "results are newest first")
	assert.Equal(t, "frag:1", frags[1].ID)
}

func TestPutValidation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, nil), store.ErrInvalidInput)
	assert.ErrorIs(t, s.Put(ctx, &types.ConversationFragment{}), store.ErrInvalidInput)
}

func TestGetByCustomerSinceAndLimit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Put(ctx, newFragment(
			fmt.Sprintf("frag:%d", i), "cust:a", time.Duration(i)*24*time.Hour, nil)))
	}

	frags, err := s.GetByCustomer(ctx, "cust:a", store.FetchOptions{
		Since: time.Now().Add(-3*24*time.Hour - time.Minute),
	})
	require.NoError(t, err)
	assert.Len(t, frags, 3)

	frags, err = s.GetByCustomer(ctx, "cust:a", store.FetchOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "frag:1", frags[0].ID)
}

func TestNearestNeighbors(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newFragment("frag:close", "cust:a", time.Hour, []float32{1, 0})))
	require.NoError(t, s.Put(ctx, newFragment("frag:far", "cust:a", time.Hour, []float32{0, 1})))
	require.NoError(t, s.Put(ctx, newFragment("frag:noemb", "cust:a", time.Hour, nil)))
	require.NoError(t, s.Put(ctx, newFragment("frag:other", "cust:b", time.Hour, []float32{1, 0})))

	scored, err := s.NearestNeighbors(ctx, []float32{1, 0.1}, "cust:a", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, scored, 1, "the orthogonal and embedding-less fragments are filtered out")
	assert.Equal(t, "frag:close", scored[0].Fragment.ID)
	assert.Greater(t, scored[0].Similarity, 0.9)

	_, err = s.NearestNeighbors(ctx, nil, "cust:a", 10, 0)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestUpdateCustomerIdentity(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newFragment("frag:1", "cust:a", time.Hour, nil)))

	require.NoError(t, s.UpdateCustomerIdentity(ctx, "frag:1", "cust:b"))
	// Rewriting to the current owner is a no-op, keeping merges resumable.
	require.NoError(t, s.UpdateCustomerIdentity(ctx, "frag:1", "cust:b"))

	assert.ErrorIs(t, s.UpdateCustomerIdentity(ctx, "frag:missing", "cust:b"), store.ErrNotFound)

	moved, err := s.GetByCustomer(ctx, "cust:b", store.FetchOptions{})
	require.NoError(t, err)
	assert.Len(t, moved, 1)

	old, err := s.GetByCustomer(ctx, "cust:a", store.FetchOptions{})
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestCountByCustomer(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newFragment("frag:1", "cust:a", time.Hour, nil)))
	require.NoError(t, s.Put(ctx, newFragment("frag:2", "cust:a", time.Hour, nil)))

	n, err := s.CountByCustomer(ctx, "cust:a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountByCustomer(ctx, "cust:unknown")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteOlderThan(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, newFragment("frag:old", "cust:a", 400*24*time.Hour, nil)))
	require.NoError(t, s.Put(ctx, newFragment("frag:new", "cust:a", time.Hour, nil)))

	n, err := s.DeleteOlderThan(ctx, time.Now().Add(-365*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	frags, err := s.GetByCustomer(ctx, "cust:a", store.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "frag:new", frags[0].ID)
}

func TestPutReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	original := newFragment("frag:1", "cust:a", time.Hour, nil)
	require.NoError(t, s.Put(ctx, original))
	original.Text = "mutated after put"

	frags, err := s.GetByCustomer(ctx, "cust:a", store.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "test fragment frag:1", frags[0].Text)

	frags[0].Text = "mutated after get"
	again, err := s.GetByCustomer(ctx, "cust:a", store.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "test fragment frag:1", again[0].Text)
}
