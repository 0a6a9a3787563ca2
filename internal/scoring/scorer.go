// Package scoring ranks conversation fragments for context retrieval using a
// weighted blend of semantic similarity, recency decay, intrinsic importance
// and channel affinity.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/relaydesk/switchboard/internal/keywords"
	"github.com/relaydesk/switchboard/pkg/types"
)

// Blend weights. They sum to 1.0 so the final score stays in [0, 1].
const (
	weightSimilarity = 0.4
	weightRecency    = 0.3
	weightImportance = 0.2
	weightChannel    = 0.1
)

// keywordOverlapBoost is added on top of raw vector similarity, scaled by the
// token overlap between query and fragment. It compensates for embeddings
// that miss exact-term matches (part numbers, names).
const keywordOverlapBoost = 0.2

// recencyFloor is the minimum recency score for any fragment inside the
// retrieval window; even old context keeps a small pulse.
const recencyFloor = 0.1

// DefaultDecayWindow is how long it takes recency to decay to the floor.
const DefaultDecayWindow = 30 * 24 * time.Hour

// Scorer computes relevance scores for fragments against a query.
type Scorer struct {
	kw          *keywords.Table
	decayWindow time.Duration
}

// NewScorer builds a Scorer. A nil table falls back to the built-in taxonomy;
// a non-positive window falls back to DefaultDecayWindow.
func NewScorer(kw *keywords.Table, decayWindow time.Duration) *Scorer {
	if kw == nil {
		kw = keywords.Default()
	}
	if decayWindow <= 0 {
		decayWindow = DefaultDecayWindow
	}
	return &Scorer{kw: kw, decayWindow: decayWindow}
}

// Score computes the blended relevance of a fragment for the given query text
// and channel. rawSimilarity is the vector similarity from the store (0 when
// no embedding was available); it is boosted by keyword overlap before
// blending. All sub-scores and the final score are in [0, 1].
func (s *Scorer) Score(queryText string, queryChannel types.Channel, frag *types.ConversationFragment, rawSimilarity float64, now time.Time) types.ContextItem {
	sim := s.similarity(queryText, frag.Text, rawSimilarity)
	rec := s.recency(frag.Age(now))
	imp := s.importance(frag)
	ch := s.channelRelevance(queryChannel, frag.Channel)

	final := weightSimilarity*sim + weightRecency*rec + weightImportance*imp + weightChannel*ch

	return types.ContextItem{
		Fragment:         frag,
		Similarity:       sim,
		Recency:          rec,
		Importance:       imp,
		ChannelRelevance: ch,
		FinalScore:       clamp01(final),
	}
}

// similarity blends vector similarity with token overlap between the query
// and fragment text, capped at 1.0.
func (s *Scorer) similarity(query, text string, raw float64) float64 {
	if raw < 0 {
		raw = 0
	}
	return clamp01(raw + keywordOverlapBoost*tokenOverlap(query, text))
}

// recency decays exponentially with fragment age, from 1.0 at zero age down
// to the floor at the end of the decay window.
func (s *Scorer) recency(age time.Duration) float64 {
	if age <= 0 {
		return 1.0
	}
	if age >= s.decayWindow {
		return recencyFloor
	}
	// Time constant of a third of the window puts the score near the floor
	// as age approaches the window edge.
	tau := s.decayWindow.Seconds() / 3
	score := math.Exp(-age.Seconds() / tau)
	if score < recencyFloor {
		return recencyFloor
	}
	return score
}

// importance rates a fragment on its own merits, independent of the query:
// intent category, urgency, sentiment and direction.
func (s *Scorer) importance(frag *types.ConversationFragment) float64 {
	score := 0.5

	switch frag.Metadata.Intent {
	case "complaint", "escalation", "emergency":
		score += 0.4
	case "service_request", "appointment":
		score += 0.3
	case "feedback", "question":
		score += 0.1
	}

	switch frag.Metadata.Urgency {
	case types.UrgencyCritical:
		score += 0.3
	case types.UrgencyHigh:
		score += 0.2
	case types.UrgencyLow:
		score -= 0.1
	}

	switch frag.Metadata.Sentiment {
	case types.SentimentNegative:
		score += 0.2
	case types.SentimentPositive:
		score += 0.1
	}

	// Outbound messages record commitments the business made.
	if frag.Direction == types.DirectionOutbound {
		score += 0.1
	}

	return clamp01(score)
}

// channelRelevance scores how transferable a fragment is to the query's
// channel: same channel 1.0, same group 0.8, different groups 0.3, and 0.5
// when either channel is unrecognized.
func (s *Scorer) channelRelevance(query, frag types.Channel) float64 {
	if query == frag {
		return 1.0
	}
	qg := s.kw.ChannelGroup(query)
	fg := s.kw.ChannelGroup(frag)
	if qg == "" || fg == "" {
		return 0.5
	}
	if qg == fg {
		return 0.8
	}
	return 0.3
}

// tokenOverlap is the Jaccard index of the lower-cased token sets of the two
// texts. Returns 0 when either text has no tokens.
func tokenOverlap(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(text string) map[string]bool {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		tok := strings.Trim(f, ".,!?;:\"'()[]")
		if len(tok) > 2 {
			set[tok] = true
		}
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
