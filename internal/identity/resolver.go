package identity

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/relaydesk/switchboard/pkg/types"
)

// Signal-level match confidences. Email is the strongest evidence, a gateway
// suffix match slightly weaker than an exact phone match, and a name alone is
// never enough to cross the default threshold.
const (
	confEmailExact  = 0.95
	confPhoneExact  = 0.9
	confPhoneSuffix = 0.85
	confNameCap     = 0.7
)

// signalBoost is added per additional independent signal source agreeing on
// the same identity.
const signalBoost = 0.1

// Config holds resolver tuning.
type Config struct {
	// DefaultCountryCode is applied when normalizing 10-digit phone numbers.
	DefaultCountryCode string

	// Threshold is the minimum combined confidence for Resolve to report a
	// match. Callers may override per call via ResolveWithThreshold.
	Threshold float64

	// NameMatchFloor is the minimum similarity ratio (0-100) for name
	// evidence to be admitted.
	NameMatchFloor int
}

func (c *Config) applyDefaults() {
	if c.DefaultCountryCode == "" {
		c.DefaultCountryCode = "1"
	}
	if c.Threshold == 0 {
		c.Threshold = 0.8
	}
	if c.NameMatchFloor == 0 {
		c.NameMatchFloor = 75
	}
}

// Resolver owns the in-process identity registry: every known identity, an
// index from normalized identifier to owning identity, and the merge history.
// The registry enforces the invariant that an identifier maps to at most one
// identity at any instant.
type Resolver struct {
	cfg Config

	mu           sync.RWMutex
	identities   map[string]*types.CustomerIdentity
	byIdentifier map[string]string // normalized identifier value -> identity ID
	mergedInto   map[string]string // absorbed identity ID -> survivor ID

	// onMerge is invoked after a merge completes so the owner can invalidate
	// profile caches for both sides.
	onMerge func(survivorID, absorbedID string)

	// mergeLocks serializes merges per identity pair (see merge.go).
	mergeMu    sync.Mutex
	mergeLocks map[string]*sync.Mutex
}

// NewResolver creates an empty resolver.
func NewResolver(cfg Config) *Resolver {
	cfg.applyDefaults()
	return &Resolver{
		cfg:          cfg,
		identities:   make(map[string]*types.CustomerIdentity),
		byIdentifier: make(map[string]string),
		mergedInto:   make(map[string]string),
		mergeLocks:   make(map[string]*sync.Mutex),
	}
}

// SetOnMerge registers the merge notification hook. Must be called before
// concurrent use.
func (r *Resolver) SetOnMerge(fn func(survivorID, absorbedID string)) {
	r.onMerge = fn
}

// match is one signal-level candidate.
type match struct {
	identityID string
	confidence float64
	kind       types.IdentifierKind
}

// Resolve resolves a (phone, email, name) tuple to a customer identity using
// the resolver's default threshold. Any subset of signals may be empty.
// When no candidate reaches the threshold it returns (nil, bestConfidence):
// below-threshold resolution is not an error, the caller decides whether to
// create a new identity.
func (r *Resolver) Resolve(phone, email, name string) (*types.CustomerIdentity, float64) {
	return r.ResolveWithThreshold(phone, email, name, r.cfg.Threshold)
}

// ResolveWithThreshold is Resolve with a caller-supplied threshold.
func (r *Resolver) ResolveWithThreshold(phone, email, name string, threshold float64) (*types.CustomerIdentity, float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := r.collectMatches(phone, email, name)
	if len(matches) == 0 {
		return nil, 0
	}

	// Group matches by canonical identity and combine: mean confidence plus
	// a boost per extra independent signal source, capped at 1.
	type group struct {
		sum     float64
		n       int
		sources map[types.IdentifierKind]bool
	}
	groups := make(map[string]*group)
	for _, m := range matches {
		id := r.canonicalLocked(m.identityID)
		g := groups[id]
		if g == nil {
			g = &group{sources: make(map[types.IdentifierKind]bool)}
			groups[id] = g
		}
		g.sum += m.confidence
		g.n++
		g.sources[m.kind] = true
	}

	bestID := ""
	bestConf := 0.0
	for id, g := range groups {
		conf := g.sum/float64(g.n) + signalBoost*float64(len(g.sources)-1)
		if conf > 1.0 {
			conf = 1.0
		}
		// Deterministic tie-break on identity ID.
		if conf > bestConf || (conf == bestConf && (bestID == "" || id < bestID)) {
			bestID, bestConf = id, conf
		}
	}

	if bestConf < threshold {
		return nil, bestConf
	}
	return r.copyLocked(bestID), bestConf
}

// collectMatches gathers signal-level candidates. Caller holds at least the
// read lock.
func (r *Resolver) collectMatches(phone, email, name string) []match {
	var matches []match

	if phone != "" {
		normPhone := NormalizePhone(phone, r.cfg.DefaultCountryCode)
		matches = append(matches, r.phoneMatchesLocked(normPhone)...)
	}

	if email != "" {
		normEmail := NormalizeEmail(email)
		if id, ok := r.byIdentifier[normEmail]; ok {
			matches = append(matches, match{identityID: id, confidence: confEmailExact, kind: types.IdentifierEmail})
		}
		// A gateway address carries phone evidence too.
		if extracted := ExtractPhoneFromGatewayEmail(normEmail, r.cfg.DefaultCountryCode); extracted != "" {
			matches = append(matches, r.phoneMatchesLocked(extracted)...)
		}
	}

	if name != "" {
		matches = append(matches, r.nameMatchesLocked(name)...)
	}

	return matches
}

// phoneMatchesLocked returns candidates for a normalized phone: exact index
// hits at full confidence, suffix hits (gateway local parts without country
// or area code) slightly lower.
func (r *Resolver) phoneMatchesLocked(normPhone string) []match {
	if id, ok := r.byIdentifier[normPhone]; ok {
		return []match{{identityID: id, confidence: confPhoneExact, kind: types.IdentifierPhone}}
	}

	var out []match
	seen := make(map[string]bool)
	// Suffix scan over known phone identifiers, deterministic order.
	values := make([]string, 0)
	for value, id := range r.byIdentifier {
		if r.identityHasKindLocked(id, value, types.IdentifierPhone) {
			values = append(values, value)
		}
	}
	sort.Strings(values)
	for _, value := range values {
		if PhonesMatch(normPhone, value) {
			id := r.byIdentifier[value]
			if !seen[id] {
				seen[id] = true
				out = append(out, match{identityID: id, confidence: confPhoneSuffix, kind: types.IdentifierPhone})
			}
		}
	}
	return out
}

// nameMatchesLocked scores the name against every known display name using a
// Levenshtein ratio in [0,100]. Only ratios at or above the admission floor
// are kept, scaled to at most confNameCap since a name alone is weak evidence.
func (r *Resolver) nameMatchesLocked(name string) []match {
	norm := NormalizeName(name)
	if norm == "" {
		return nil
	}

	ids := make([]string, 0, len(r.identities))
	for id := range r.identities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []match
	for _, id := range ids {
		best := 0
		for _, known := range r.identities[id].Names() {
			ratio := similarityRatio(norm, NormalizeName(known))
			if ratio > best {
				best = ratio
			}
		}
		if best >= r.cfg.NameMatchFloor {
			out = append(out, match{
				identityID: id,
				confidence: float64(best) / 100.0 * confNameCap,
				kind:       types.IdentifierName,
			})
		}
	}
	return out
}

// similarityRatio is a deterministic string-similarity ratio in [0,100] based
// on Levenshtein edit distance.
func similarityRatio(a, b string) int {
	if a == b {
		return 100
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	ratio := 100 - (100*dist)/maxLen
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

// identityHasKindLocked reports whether the identity's link for value has the
// given kind.
func (r *Resolver) identityHasKindLocked(identityID, value string, kind types.IdentifierKind) bool {
	ident := r.identities[r.canonicalLocked(identityID)]
	if ident == nil {
		return false
	}
	for _, l := range ident.Links {
		if l.Value == value && l.Kind == kind {
			return true
		}
	}
	return false
}

// Create registers a new identity carrying the given signals. Empty signals
// are skipped. Already-claimed identifiers are not re-claimed; the invariant
// that an identifier maps to one identity is preserved.
func (r *Resolver) Create(phone, email, name string) *types.CustomerIdentity {
	now := time.Now().UTC()
	ident := &types.CustomerIdentity{
		ID:        "cust:" + uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.identities[ident.ID] = ident
	if phone != "" {
		r.attachLocked(ident, NormalizePhone(phone, r.cfg.DefaultCountryCode), types.IdentifierPhone, confPhoneExact, now)
	}
	if email != "" {
		normEmail := NormalizeEmail(email)
		r.attachLocked(ident, normEmail, types.IdentifierEmail, confEmailExact, now)
		if extracted := ExtractPhoneFromGatewayEmail(normEmail, r.cfg.DefaultCountryCode); extracted != "" {
			r.attachLocked(ident, extracted, types.IdentifierPhone, confPhoneExact, now)
		}
	}
	if name != "" {
		ident.AddName(strings.TrimSpace(name))
	}
	return r.copyLocked(ident.ID)
}

// Enrich attaches any new signals to an existing identity. Unknown identity
// IDs are a no-op. Returns the updated identity copy.
func (r *Resolver) Enrich(identityID, phone, email, name string) *types.CustomerIdentity {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.canonicalLocked(identityID)
	ident := r.identities[id]
	if ident == nil {
		return nil
	}
	if phone != "" {
		r.attachLocked(ident, NormalizePhone(phone, r.cfg.DefaultCountryCode), types.IdentifierPhone, confPhoneExact, now)
	}
	if email != "" {
		normEmail := NormalizeEmail(email)
		r.attachLocked(ident, normEmail, types.IdentifierEmail, confEmailExact, now)
	}
	if name != "" {
		ident.AddName(strings.TrimSpace(name))
	}
	ident.UpdatedAt = now
	return r.copyLocked(id)
}

// attachLocked links an identifier to the identity unless another identity
// already owns it. Caller holds the write lock.
func (r *Resolver) attachLocked(ident *types.CustomerIdentity, value string, kind types.IdentifierKind, confidence float64, now time.Time) {
	if value == "" {
		return
	}
	if owner, ok := r.byIdentifier[value]; ok && r.canonicalLocked(owner) != ident.ID {
		// Claimed elsewhere; linking identities is a merge decision, made
		// explicitly via MergeIdentities, never implicitly here.
		return
	}
	ident.AddLink(types.IdentifierLink{Value: value, Kind: kind, Confidence: confidence, LinkedAt: now})
	r.byIdentifier[value] = ident.ID
	ident.UpdatedAt = now
}

// Get returns a copy of the identity, following merge redirects.
// Returns nil when unknown.
func (r *Resolver) Get(identityID string) *types.CustomerIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyLocked(r.canonicalLocked(identityID))
}

// Canonical returns the surviving identity ID after any merges.
func (r *Resolver) Canonical(identityID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonicalLocked(identityID)
}

// OwnerOf returns the identity owning the given normalized identifier, or ""
// when unclaimed.
func (r *Resolver) OwnerOf(normalizedValue string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byIdentifier[normalizedValue]; ok {
		return r.canonicalLocked(id)
	}
	return ""
}

// Snapshot returns a copy of all live identities, for diagnostics.
func (r *Resolver) Snapshot() []*types.CustomerIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.CustomerIdentity, 0, len(r.identities))
	for id := range r.identities {
		if r.canonicalLocked(id) == id {
			out = append(out, r.copyLocked(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// canonicalLocked follows the merge chain to the surviving identity ID.
func (r *Resolver) canonicalLocked(id string) string {
	for {
		next, ok := r.mergedInto[id]
		if !ok {
			return id
		}
		id = next
	}
}

// copyLocked returns a deep copy of the identity so callers can't mutate
// registry state. Caller holds at least the read lock.
func (r *Resolver) copyLocked(id string) *types.CustomerIdentity {
	ident := r.identities[id]
	if ident == nil {
		return nil
	}
	cp := *ident
	cp.Links = append([]types.IdentifierLink(nil), ident.Links...)
	cp.AlternateNames = append([]string(nil), ident.AlternateNames...)
	return &cp
}
