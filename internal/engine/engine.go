// Package engine orchestrates the switchboard pipeline: identity resolution,
// fragment ingestion, and context retrieval combining profiles, ranked
// history, threads and interaction signals.
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/switchboard/internal/config"
	"github.com/relaydesk/switchboard/internal/identity"
	"github.com/relaydesk/switchboard/internal/keywords"
	"github.com/relaydesk/switchboard/internal/profile"
	"github.com/relaydesk/switchboard/internal/scoring"
	"github.com/relaydesk/switchboard/internal/store"
	"github.com/relaydesk/switchboard/internal/threading"
	"github.com/relaydesk/switchboard/pkg/types"
)

// RawInteraction is one inbound or outbound message before identity
// resolution. At least one of Phone, Email or Name must be present.
type RawInteraction struct {
	Phone     string
	Email     string
	Name      string
	Channel   types.Channel
	Direction types.Direction
	Timestamp time.Time
	Text      string
	Metadata  types.FragmentMetadata
}

// RetrieveOptions tunes one GetContext call. Zero values fall back to the
// engine's configured defaults.
type RetrieveOptions struct {
	// MaxItems caps the ranked items returned.
	MaxItems int

	// WindowDays bounds the chronological candidate fetch.
	WindowDays int

	// ForceRefresh bypasses the profile cache.
	ForceRefresh bool
}

// Engine is the top-level orchestrator. Safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	store    store.SemanticStore
	embedder store.Embedder
	resolver *identity.Resolver
	scorer   *scoring.Scorer
	threader *threading.Threader
	builder  *profile.Builder
	cache    *profile.Cache
	kw       *keywords.Table
}

// New wires an Engine from its parts. The raw store is wrapped with the
// failure policy (timeout, single retry, circuit breaker); embedder may be
// nil, in which case fragments are stored without embeddings and retrieval
// runs chronologically.
func New(cfg *config.Config, raw store.SemanticStore, embedder store.Embedder) (*Engine, error) {
	if cfg == nil {
		cfg = config.LoadConfig()
	}

	kw := keywords.Default()
	if cfg.Retrieval.KeywordsPath != "" {
		loaded, err := keywords.Load(cfg.Retrieval.KeywordsPath)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		kw = loaded
	}

	guarded := store.NewGuarded(raw, store.GuardConfig{
		Timeout:    cfg.Store.Timeout,
		RetryDelay: cfg.Store.RetryDelay,
	})

	resolver := identity.NewResolver(identity.Config{
		DefaultCountryCode: cfg.Identity.DefaultCountryCode,
		Threshold:          cfg.Identity.ResolveThreshold,
		NameMatchFloor:     cfg.Identity.NameMatchFloor,
	})

	cache := profile.NewCache(cfg.Profile.CacheSize, cfg.Retrieval.ProfileTTL)

	// Merges move fragments between identities; both sides' cached profiles
	// are stale the moment one happens.
	resolver.SetOnMerge(func(survivorID, absorbedID string) {
		cache.Invalidate(survivorID)
		cache.Invalidate(absorbedID)
	})

	e := &Engine{
		cfg:      cfg,
		store:    guarded,
		embedder: embedder,
		resolver: resolver,
		scorer:   scoring.NewScorer(kw, time.Duration(cfg.Retrieval.DecayWindowDays)*24*time.Hour),
		threader: threading.NewThreader(kw, time.Duration(cfg.Retrieval.ThreadWindowDays)*24*time.Hour),
		builder:  profile.NewBuilder(kw),
		cache:    cache,
		kw:       kw,
	}
	return e, nil
}

// Resolver exposes the identity registry for direct resolution and merging.
func (e *Engine) Resolver() *identity.Resolver {
	return e.resolver
}

// ResolveIdentity resolves raw contact signals to an existing identity, or
// returns (nil, confidence) when no identity clears the threshold.
func (e *Engine) ResolveIdentity(phone, email, name string) (*types.CustomerIdentity, float64) {
	return e.resolver.Resolve(phone, email, name)
}

// LinkIdentities explicitly links two identifiers into one identity, merging
// their fragment histories. Idempotent.
func (e *Engine) LinkIdentities(ctx context.Context, identifierA, identifierB, displayName string) (*types.CustomerIdentity, error) {
	return e.resolver.LinkIdentities(ctx, e.store, identifierA, identifierB, displayName)
}

// Ingest resolves the interaction's identity (creating one when nothing
// matches), embeds the text on a best-effort basis and persists the fragment.
// A gateway email carrying a phone number that matches a different existing
// identity triggers an automatic merge.
func (e *Engine) Ingest(ctx context.Context, raw RawInteraction) (*types.ConversationFragment, error) {
	if raw.Text == "" {
		return nil, fmt.Errorf("engine: %w: interaction text is required", store.ErrInvalidInput)
	}
	if raw.Phone == "" && raw.Email == "" && raw.Name == "" {
		return nil, fmt.Errorf("engine: %w: at least one identifier is required", store.ErrInvalidInput)
	}
	ts := raw.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	ident, _ := e.resolver.Resolve(raw.Phone, raw.Email, raw.Name)
	if ident == nil {
		ident = e.resolver.Create(raw.Phone, raw.Email, raw.Name)
		log.Printf("engine: created identity %s for unresolved interaction", ident.ID)
	} else {
		e.resolver.Enrich(ident.ID, raw.Phone, raw.Email, raw.Name)
	}

	// Gateway addresses embed the sender's phone number; when that number
	// belongs to another identity the two records are the same person.
	if raw.Email != "" {
		if ph := identity.ExtractPhoneFromGatewayEmail(raw.Email, e.cfg.Identity.DefaultCountryCode); ph != "" {
			if owner := e.ownerOfPhone(ph); owner != "" && owner != e.resolver.Canonical(ident.ID) {
				survivor, err := e.resolver.MergeIdentities(ctx, e.store, ident.ID, owner)
				if err != nil {
					log.Printf("Warning: engine: gateway auto-link merge failed: %v", err)
				} else {
					ident = e.resolver.Get(survivor)
				}
			}
		}
	}

	frag := &types.ConversationFragment{
		ID:         "frag:" + uuid.New().String(),
		CustomerID: e.resolver.Canonical(ident.ID),
		Channel:    raw.Channel,
		Direction:  raw.Direction,
		Timestamp:  ts.UTC(),
		Text:       raw.Text,
		Metadata:   raw.Metadata,
	}

	if e.embedder != nil {
		emb, err := e.embedder.Embed(ctx, raw.Text)
		if err != nil {
			log.Printf("Warning: engine: embedding failed for fragment %s, storing without: %v", frag.ID, err)
		} else {
			frag.Embedding = emb
		}
	}

	if err := e.store.Put(ctx, frag); err != nil {
		return nil, fmt.Errorf("engine: failed to store fragment: %w", err)
	}
	e.cache.Invalidate(frag.CustomerID)
	return frag, nil
}

// ownerOfPhone returns the identity owning a phone identifier, trying an
// exact registry hit first and suffix equivalence second.
func (e *Engine) ownerOfPhone(normPhone string) string {
	if owner := e.resolver.OwnerOf(normPhone); owner != "" {
		return owner
	}
	for _, ident := range e.resolver.Snapshot() {
		for _, l := range ident.Links {
			if l.Kind == types.IdentifierPhone && identity.PhonesMatch(l.Value, normPhone) {
				return ident.ID
			}
		}
	}
	return ""
}

// GetContext assembles the full context summary for a customer and their
// current message. It is total: store failures degrade the summary (profile
// only, or empty profile with Degraded set) instead of returning an error.
func (e *Engine) GetContext(ctx context.Context, customerID, text string, channel types.Channel, opts RetrieveOptions) *types.ContextSummary {
	now := time.Now().UTC()
	customerID = e.resolver.Canonical(customerID)

	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = e.cfg.Retrieval.MaxItems
	}
	windowDays := opts.WindowDays
	if windowDays <= 0 {
		windowDays = e.cfg.Retrieval.WindowDays
	}

	candidates, similarities, degraded := e.fetchCandidates(ctx, customerID, text, windowDays)

	var prof *types.CustomerProfile
	if degraded {
		// The store is unreachable; do not cache the empty result or it
		// would mask real history for the TTL after recovery.
		prof = types.EmptyProfile(customerID)
		if ident := e.resolver.Get(customerID); ident != nil {
			prof.DisplayName = ident.DisplayName
			prof.AlternateNames = ident.AlternateNames
			prof.Identifiers = ident.Links
		}
	} else {
		prof = e.profileFor(ctx, customerID, candidates, opts.ForceRefresh, now)
	}

	items := e.rank(text, channel, candidates, similarities, now)
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	threadPtrs := e.threader.BuildThreads(customerID, candidates, now)
	threads := make([]types.ConversationThread, 0, len(threadPtrs))
	for _, t := range threadPtrs {
		threads = append(threads, *t)
	}

	summary := &types.ContextSummary{
		Profile:  prof,
		Items:    items,
		Threads:  threads,
		Signals:  e.analyze(text, prof.Preferences.CommunicationStyle),
		Degraded: degraded,
	}
	summary.OneLine = renderOneLine(summary)
	summary.Fields = renderFields(summary)
	summary.PromptBlock = renderPromptBlock(summary)
	return summary
}

// fetchCandidates gathers the candidate fragment set: the chronological
// window plus nearest neighbors of the query text, de-duplicated. Returns the
// per-fragment vector similarity where known and whether the store was
// unreachable.
func (e *Engine) fetchCandidates(ctx context.Context, customerID, text string, windowDays int) ([]*types.ConversationFragment, map[string]float64, bool) {
	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	chrono, err := e.store.GetByCustomer(ctx, customerID, store.FetchOptions{
		Since: since,
		Limit: e.cfg.Retrieval.FetchLimit,
	})
	if err != nil {
		log.Printf("ERROR: engine: chronological fetch failed for %s: %v", customerID, err)
		return nil, nil, true
	}

	similarities := make(map[string]float64)
	seen := make(map[string]bool, len(chrono))
	out := make([]*types.ConversationFragment, 0, len(chrono))
	for _, f := range chrono {
		if f == nil || !f.Valid() || seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		out = append(out, f)
	}

	if e.embedder != nil && text != "" {
		emb, err := e.embedder.Embed(ctx, text)
		if err != nil {
			log.Printf("Warning: engine: query embedding failed, ranking without vector similarity: %v", err)
			return out, similarities, false
		}
		scored, err := e.store.NearestNeighbors(ctx, emb, customerID, e.cfg.Retrieval.NeighborK, e.cfg.Retrieval.MinSimilarity)
		if err != nil {
			log.Printf("Warning: engine: neighbor fetch failed, using chronological candidates only: %v", err)
			return out, similarities, false
		}
		for _, sf := range scored {
			similarities[sf.Fragment.ID] = sf.Similarity
			if sf.Fragment.Valid() && !seen[sf.Fragment.ID] {
				seen[sf.Fragment.ID] = true
				out = append(out, sf.Fragment)
			}
		}
	}

	return out, similarities, false
}

// profileFor returns the cached or freshly built profile, degrading to an
// empty profile when nothing can be built.
func (e *Engine) profileFor(ctx context.Context, customerID string, candidates []*types.ConversationFragment, force bool, now time.Time) *types.CustomerProfile {
	ident := e.resolver.Get(customerID)

	p, err := e.cache.Get(ctx, customerID, force, func(buildCtx context.Context) (*types.CustomerProfile, error) {
		id := ident
		if id == nil {
			id = &types.CustomerIdentity{ID: customerID}
		}
		built := e.builder.Build(id, candidates, now)
		// Candidates are window-limited; report the full stored history size
		// when it is larger.
		if total, countErr := e.store.CountByCustomer(buildCtx, customerID); countErr == nil && total > built.FragmentCount {
			built.FragmentCount = total
		}
		return built, nil
	})
	if err != nil {
		log.Printf("Warning: engine: profile build failed for %s: %v", customerID, err)
		p = types.EmptyProfile(customerID)
		if ident != nil {
			p.DisplayName = ident.DisplayName
			p.Identifiers = ident.Links
		}
	}
	return p
}

// rank scores every candidate and orders them best first, breaking score
// ties by recency and then ID for stable output.
func (e *Engine) rank(text string, channel types.Channel, candidates []*types.ConversationFragment, similarities map[string]float64, now time.Time) []types.ContextItem {
	items := make([]types.ContextItem, 0, len(candidates))
	for _, f := range candidates {
		items = append(items, e.scorer.Score(text, channel, f, similarities[f.ID], now))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].FinalScore != items[j].FinalScore {
			return items[i].FinalScore > items[j].FinalScore
		}
		if !items[i].Fragment.Timestamp.Equal(items[j].Fragment.Timestamp) {
			return items[i].Fragment.Timestamp.After(items[j].Fragment.Timestamp)
		}
		return items[i].Fragment.ID < items[j].Fragment.ID
	})
	return items
}

// analyze derives the interaction signals for the current message. Tone
// precedence: a customer who communicates casually gets a friendly tone even
// when annoyed; otherwise mood, then urgency, decide.
func (e *Engine) analyze(text, communicationStyle string) types.InteractionSignals {
	sig := types.InteractionSignals{
		Topic:   e.kw.TopicOf(text),
		Mood:    "neutral",
		Urgency: "normal",
	}

	if keywords.MatchesAny(text, e.kw.NegativeWords) {
		sig.Mood = "negative"
	} else if keywords.MatchesAny(text, e.kw.PositiveWords) {
		sig.Mood = "positive"
	}

	if keywords.MatchesAny(text, e.kw.EmergencyWords) {
		sig.Urgency = "critical"
	} else if keywords.MatchesAny(text, e.kw.UrgencyWords) {
		sig.Urgency = "high"
	}

	switch {
	case communicationStyle == "casual":
		sig.SuggestedTone = "friendly"
	case sig.Mood == "negative":
		sig.SuggestedTone = "empathetic"
	case sig.Urgency == "critical" || sig.Urgency == "high":
		sig.SuggestedTone = "responsive"
	default:
		sig.SuggestedTone = "professional"
	}
	return sig
}

// CleanupOlderThan deletes fragments older than the given number of days and
// purges the profile cache, since any cached profile may have been built from
// now-deleted history.
func (e *Engine) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	n, err := e.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("engine: cleanup: %w", err)
	}
	e.cache.Purge()
	log.Printf("engine: cleanup removed %d fragments older than %s", n, cutoff.Format(time.RFC3339))
	return n, nil
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}
