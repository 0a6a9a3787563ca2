// Package store defines the semantic store contract the engine consumes.
//
// The store owns conversation fragments: key/value access plus
// vector-similarity search over embeddings. Backends are composable; the
// Guarded wrapper adds the timeout/retry/circuit-breaker policy every caller
// relies on.
package store

import (
	"context"
	"time"

	"github.com/relaydesk/switchboard/pkg/types"
)

// SemanticStore is the fragment storage contract.
type SemanticStore interface {
	// Put inserts a fragment. Re-putting the same ID is upsert.
	Put(ctx context.Context, fragment *types.ConversationFragment) error

	// GetByCustomer retrieves a customer's fragments newest-first, bounded
	// by opts.Since (zero means unbounded) and opts.Limit.
	GetByCustomer(ctx context.Context, customerID string, opts FetchOptions) ([]*types.ConversationFragment, error)

	// NearestNeighbors returns up to k fragments most similar to the given
	// embedding, with similarity >= minSimilarity. When customerID is
	// non-empty results are restricted to that customer.
	NearestNeighbors(ctx context.Context, embedding []float32, customerID string, k int, minSimilarity float64) ([]ScoredFragment, error)

	// UpdateCustomerIdentity rewrites a fragment's owning identity. Setting
	// the same identity twice is a no-op, which keeps merges idempotent and
	// safe to resume after a crash.
	UpdateCustomerIdentity(ctx context.Context, fragmentID, newCustomerID string) error

	// CountByCustomer returns the number of fragments owned by the customer.
	CountByCustomer(ctx context.Context, customerID string) (int, error)

	// DeleteOlderThan removes fragments older than the cutoff and returns
	// how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder maps text to a fixed-length vector. It is a black-box collaborator
// supplied by the embedding application.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// FetchOptions bounds a chronological fetch.
type FetchOptions struct {
	// Since excludes fragments older than this timestamp. Zero means no bound.
	Since time.Time

	// Limit caps the number of returned fragments. Zero or negative means
	// the backend default (200).
	Limit int
}

// ScoredFragment pairs a fragment with its raw vector similarity.
type ScoredFragment struct {
	Fragment   *types.ConversationFragment
	Similarity float64
}
