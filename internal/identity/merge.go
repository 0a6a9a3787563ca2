package identity

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/relaydesk/switchboard/internal/store"
	"github.com/relaydesk/switchboard/pkg/types"
)

// mergePageSize bounds each fragment-rewrite batch during a merge.
const mergePageSize = 200

// highConfidence marks link evidence strong enough that two disagreeing
// values of the same kind constitute a merge conflict.
const highConfidence = 0.9

// MergeIdentities merges two identities into one and rewrites the losing
// identity's fragments in the semantic store. It returns the surviving
// identity ID.
//
// Survivor selection: more linked identifiers wins; on a tie, higher
// aggregate link confidence; on a further tie, the lexicographically smaller
// ID. Merging an identity with itself (or re-running a completed merge) is a
// no-op returning the survivor.
//
// The merge is not atomic across the fragment set: each fragment rewrite is
// independently idempotent, so a crash mid-merge is resumed safely by calling
// MergeIdentities again. Merges for the same identity pair are serialized;
// disjoint pairs proceed concurrently.
func (r *Resolver) MergeIdentities(ctx context.Context, st store.SemanticStore, aID, bID string) (string, error) {
	a := r.Canonical(aID)
	b := r.Canonical(bID)
	if a == b {
		return a, nil // already merged
	}

	lock := r.pairLock(a, b)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the pair lock; a concurrent merge may have won.
	a = r.Canonical(a)
	b = r.Canonical(b)
	if a == b {
		return a, nil
	}

	survivorID, absorbedID := r.applyRegistryMerge(a, b)

	// Rewrite fragment ownership in pages until the losing identity has no
	// fragments left. Individual failures are logged and retried on the next
	// merge attempt; a dead store aborts with the registry merge already
	// durable in process, which is safe to resume.
	rewritten := 0
	for {
		frags, err := st.GetByCustomer(ctx, absorbedID, store.FetchOptions{Limit: mergePageSize})
		if err != nil {
			r.notifyMerge(survivorID, absorbedID)
			return survivorID, fmt.Errorf("identity: merge fragment fetch for %s: %w", absorbedID, err)
		}
		if len(frags) == 0 {
			break
		}
		for _, f := range frags {
			if err := st.UpdateCustomerIdentity(ctx, f.ID, survivorID); err != nil {
				log.Printf("Warning: identity: failed to rewrite fragment %s during merge: %v", f.ID, err)
			} else {
				rewritten++
			}
		}
		if ctx.Err() != nil {
			r.notifyMerge(survivorID, absorbedID)
			return survivorID, ctx.Err()
		}
	}

	log.Printf("identity: merged %s into %s (%d fragments rewritten)", absorbedID, survivorID, rewritten)
	r.notifyMerge(survivorID, absorbedID)
	return survivorID, nil
}

// LinkIdentities links two raw identifiers (and optionally a display name)
// into one identity, creating identities for unclaimed identifiers as needed,
// then merging when they belong to different identities. Identifiers
// containing "@" are treated as emails, anything else as phones. Idempotent:
// linking an already-linked pair returns the existing identity.
func (r *Resolver) LinkIdentities(ctx context.Context, st store.SemanticStore, rawA, rawB, displayName string) (*types.CustomerIdentity, error) {
	idA := r.claimIdentifier(rawA, displayName)
	idB := r.claimIdentifier(rawB, displayName)

	survivor, err := r.MergeIdentities(ctx, st, idA, idB)
	if err != nil {
		return r.Get(survivor), err
	}
	return r.Get(survivor), nil
}

// claimIdentifier finds the identity owning the raw identifier, creating one
// when it is unclaimed, and returns the identity ID.
func (r *Resolver) claimIdentifier(raw, displayName string) string {
	var norm string
	var isEmail bool
	if strings.ContainsRune(raw, '@') {
		norm = NormalizeEmail(raw)
		isEmail = true
	} else {
		norm = NormalizePhone(raw, r.cfg.DefaultCountryCode)
	}

	if owner := r.OwnerOf(norm); owner != "" {
		if displayName != "" {
			r.Enrich(owner, "", "", displayName)
		}
		return owner
	}
	if isEmail {
		return r.Create("", raw, displayName).ID
	}
	return r.Create(raw, "", displayName).ID
}

// applyRegistryMerge performs the in-registry half of the merge: picks the
// survivor, unions links and names, flags conflicts, and redirects the
// absorbed ID. Returns (survivorID, absorbedID).
func (r *Resolver) applyRegistryMerge(a, b string) (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identA := r.identities[a]
	identB := r.identities[b]
	if identA == nil || identB == nil {
		// One side vanished (only possible via misuse); prefer the live one.
		if identA == nil {
			return b, a
		}
		return a, b
	}

	survivor, absorbed := identA, identB
	switch {
	case identA.LinkCount() != identB.LinkCount():
		if identB.LinkCount() > identA.LinkCount() {
			survivor, absorbed = identB, identA
		}
	case identA.AggregateConfidence() != identB.AggregateConfidence():
		if identB.AggregateConfidence() > identA.AggregateConfidence() {
			survivor, absorbed = identB, identA
		}
	default:
		if identB.ID < identA.ID {
			survivor, absorbed = identB, identA
		}
	}

	// Conflict check: both sides carrying different high-confidence values
	// of the same kind means the evidence is mutually exclusive. Keep both
	// identifiers and flag for manual review rather than dropping either.
	if hasConflictingLinks(survivor, absorbed) {
		survivor.NeedsReview = true
	}

	now := time.Now().UTC()
	for _, l := range absorbed.Links {
		survivor.AddLink(l)
		r.byIdentifier[l.Value] = survivor.ID
	}
	for _, n := range absorbed.Names() {
		survivor.AddName(n)
	}
	survivor.NeedsReview = survivor.NeedsReview || absorbed.NeedsReview
	survivor.UpdatedAt = now

	r.mergedInto[absorbed.ID] = survivor.ID
	return survivor.ID, absorbed.ID
}

// hasConflictingLinks reports whether the two identities carry different
// high-confidence values for the same identifier kind (phone or email).
func hasConflictingLinks(a, b *types.CustomerIdentity) bool {
	for _, la := range a.Links {
		if la.Confidence < highConfidence || la.Kind == types.IdentifierName {
			continue
		}
		for _, lb := range b.Links {
			if lb.Kind == la.Kind && lb.Confidence >= highConfidence && lb.Value != la.Value {
				// Same-kind disagreement; suffix-equivalent phones are the
				// same subscriber, not a conflict.
				if la.Kind == types.IdentifierPhone && PhonesMatch(la.Value, lb.Value) {
					continue
				}
				return true
			}
		}
	}
	return false
}

// pairLock returns the mutex serializing merges for an identity pair.
// The key is order-independent.
func (r *Resolver) pairLock(a, b string) *sync.Mutex {
	if b < a {
		a, b = b, a
	}
	key := a + "|" + b

	r.mergeMu.Lock()
	defer r.mergeMu.Unlock()
	if l, ok := r.mergeLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.mergeLocks[key] = l
	return l
}

func (r *Resolver) notifyMerge(survivorID, absorbedID string) {
	if r.onMerge != nil {
		r.onMerge(survivorID, absorbedID)
	}
}
