package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/switchboard/internal/store"
	"github.com/relaydesk/switchboard/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fragment(id, customerID string, age time.Duration) *types.ConversationFragment {
	return &types.ConversationFragment{
		ID:         id,
		CustomerID: customerID,
		Channel:    types.ChannelSMS,
		Direction:  types.DirectionInbound,
		Timestamp:  time.Now().UTC().Add(-age),
		Text:       "fragment " + id,
		Metadata: types.FragmentMetadata{
			Intent:    "service_request",
			Sentiment: types.SentimentNeutral,
			Urgency:   types.UrgencyNormal,
			Tags:      []string{"test"},
		},
		Embedding: []float32{0.5, 0.5},
	}
}

func TestPutAndGetByCustomerRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := fragment("frag:1", "cust:a", time.Hour)
	require.NoError(t, s.Put(ctx, want))

	frags, err := s.GetByCustomer(ctx, "cust:a", store.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, frags, 1)

	got := frags[0]
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Channel, got.Channel)
	assert.Equal(t, want.Direction, got.Direction)
	assert.Equal(t, want.Text, got.Text)
	assert.Equal(t, want.Metadata, got.Metadata)
	assert.Equal(t, want.Embedding, got.Embedding)
	assert.WithinDuration(t, want.Timestamp, got.Timestamp, time.Millisecond)
}

func TestPutUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := fragment("frag:1", "cust:a", time.Hour)
	require.NoError(t, s.Put(ctx, f))

	f.CustomerID = "cust:b"
	require.NoError(t, s.Put(ctx, f))

	moved, err := s.GetByCustomer(ctx, "cust:b", store.FetchOptions{})
	require.NoError(t, err)
	assert.Len(t, moved, 1)

	old, err := s.GetByCustomer(ctx, "cust:a", store.FetchOptions{})
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestGetByCustomerOrderingAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, fragment("frag:old", "cust:a", 72*time.Hour)))
	require.NoError(t, s.Put(ctx, fragment("frag:mid", "cust:a", 48*time.Hour)))
	require.NoError(t, s.Put(ctx, fragment("frag:new", "cust:a", 24*time.Hour)))

	frags, err := s.GetByCustomer(ctx, "cust:a", store.FetchOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "frag:new", frags[0].ID)
	assert.Equal(t, "frag:mid", frags[1].ID)

	since, err := s.GetByCustomer(ctx, "cust:a", store.FetchOptions{
		Since: time.Now().UTC().Add(-36 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "frag:new", since[0].ID)
}

func TestNearestNeighbors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := fragment("frag:a", "cust:a", time.Hour)
	a.Embedding = []float32{1, 0}
	b := fragment("frag:b", "cust:a", time.Hour)
	b.Embedding = []float32{0, 1}
	require.NoError(t, s.Put(ctx, a))
	require.NoError(t, s.Put(ctx, b))

	scored, err := s.NearestNeighbors(ctx, []float32{1, 0.05}, "cust:a", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, "frag:a", scored[0].Fragment.ID)

	_, err = s.NearestNeighbors(ctx, nil, "cust:a", 10, 0)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestUpdateCustomerIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, fragment("frag:1", "cust:a", time.Hour)))

	require.NoError(t, s.UpdateCustomerIdentity(ctx, "frag:1", "cust:b"))
	require.NoError(t, s.UpdateCustomerIdentity(ctx, "frag:1", "cust:b"), "rewrite to the current owner is a no-op")
	assert.ErrorIs(t, s.UpdateCustomerIdentity(ctx, "frag:missing", "cust:b"), store.ErrNotFound)

	n, err := s.CountByCustomer(ctx, "cust:b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, fragment("frag:old", "cust:a", 400*24*time.Hour)))
	require.NoError(t, s.Put(ctx, fragment("frag:new", "cust:a", time.Hour)))

	n, err := s.DeleteOlderThan(ctx, time.Now().UTC().Add(-365*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := s.CountByCustomer(ctx, "cust:a")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}
