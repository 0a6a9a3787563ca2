// Package memory provides an in-memory SemanticStore. It backs tests and
// embedded single-process deployments; similarity search is a linear cosine
// scan, which is fine at the fragment counts a single customer base produces.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/relaydesk/switchboard/internal/store"
	"github.com/relaydesk/switchboard/pkg/types"
)

// Store is a mutex-guarded in-memory fragment store.
type Store struct {
	mu         sync.RWMutex
	fragments  map[string]*types.ConversationFragment // fragment ID -> fragment
	byCustomer map[string][]string                    // customer ID -> fragment IDs
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		fragments:  make(map[string]*types.ConversationFragment),
		byCustomer: make(map[string][]string),
	}
}

// Put implements store.SemanticStore.
func (s *Store) Put(ctx context.Context, fragment *types.ConversationFragment) error {
	if fragment == nil || fragment.ID == "" {
		return fmt.Errorf("memory: %w: fragment ID is required", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.fragments[fragment.ID]; ok {
		// Upsert: drop the old customer index entry if ownership changed.
		if prev.CustomerID != fragment.CustomerID {
			s.removeFromCustomer(prev.CustomerID, fragment.ID)
			s.byCustomer[fragment.CustomerID] = append(s.byCustomer[fragment.CustomerID], fragment.ID)
		}
	} else {
		s.byCustomer[fragment.CustomerID] = append(s.byCustomer[fragment.CustomerID], fragment.ID)
	}

	cp := *fragment
	s.fragments[fragment.ID] = &cp
	return nil
}

// GetByCustomer implements store.SemanticStore.
func (s *Store) GetByCustomer(ctx context.Context, customerID string, opts store.FetchOptions) ([]*types.ConversationFragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultFetchLimit
	}

	var out []*types.ConversationFragment
	for _, id := range s.byCustomer[customerID] {
		f := s.fragments[id]
		if f == nil {
			continue
		}
		if !opts.Since.IsZero() && f.Timestamp.Before(opts.Since) {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}

	// Newest first.
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// NearestNeighbors implements store.SemanticStore.
func (s *Store) NearestNeighbors(ctx context.Context, embedding []float32, customerID string, k int, minSimilarity float64) ([]store.ScoredFragment, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("memory: %w: embedding is required", store.ErrInvalidInput)
	}
	if k <= 0 {
		k = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []store.ScoredFragment
	for _, f := range s.fragments {
		if customerID != "" && f.CustomerID != customerID {
			continue
		}
		if len(f.Embedding) == 0 {
			continue
		}
		sim := store.Cosine(embedding, f.Embedding)
		if sim < minSimilarity {
			continue
		}
		cp := *f
		scored = append(scored, store.ScoredFragment{Fragment: &cp, Similarity: sim})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Fragment.ID < scored[j].Fragment.ID
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// UpdateCustomerIdentity implements store.SemanticStore. Rewriting to the
// current owner is a no-op, so merge resumption is idempotent.
func (s *Store) UpdateCustomerIdentity(ctx context.Context, fragmentID, newCustomerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.fragments[fragmentID]
	if !ok {
		return fmt.Errorf("memory: %w: %s", store.ErrNotFound, fragmentID)
	}
	if f.CustomerID == newCustomerID {
		return nil
	}

	s.removeFromCustomer(f.CustomerID, fragmentID)
	f.CustomerID = newCustomerID
	s.byCustomer[newCustomerID] = append(s.byCustomer[newCustomerID], fragmentID)
	return nil
}

// CountByCustomer implements store.SemanticStore.
func (s *Store) CountByCustomer(ctx context.Context, customerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byCustomer[customerID]), nil
}

// DeleteOlderThan implements store.SemanticStore.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, f := range s.fragments {
		if f.Timestamp.Before(cutoff) {
			s.removeFromCustomer(f.CustomerID, id)
			delete(s.fragments, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close implements store.SemanticStore.
func (s *Store) Close() error {
	return nil
}

// removeFromCustomer drops one fragment ID from a customer's index.
// Caller must hold the write lock.
func (s *Store) removeFromCustomer(customerID, fragmentID string) {
	ids := s.byCustomer[customerID]
	for i, id := range ids {
		if id == fragmentID {
			s.byCustomer[customerID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

var _ store.SemanticStore = (*Store)(nil)
