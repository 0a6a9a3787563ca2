// Package threading groups a customer's conversation fragments into coherent
// threads spanning channels, using time proximity plus topic or intent
// agreement.
package threading

import (
	"log"
	"sort"
	"time"

	"github.com/relaydesk/switchboard/internal/keywords"
	"github.com/relaydesk/switchboard/pkg/types"
)

// DefaultWindow is how far back from a thread's seed fragment other
// fragments may join.
const DefaultWindow = 7 * 24 * time.Hour

// activeCutoff is how recent a thread's last activity must be to count as
// active rather than inactive.
const activeCutoff = 3 * 24 * time.Hour

// statusSampleSize is how many of a thread's most recent fragments are
// inspected when classifying its status.
const statusSampleSize = 3

// standaloneIntents are intents important enough to form a single-fragment
// thread on their own.
var standaloneIntents = map[string]bool{
	"service_request": true,
	"complaint":       true,
}

// sharedIntents are intents under which two fragments are considered part of
// the same conversation even without a keyword topic in common.
var sharedIntents = map[string]bool{
	"service_request": true,
	"complaint":       true,
	"appointment":     true,
}

// Threader builds conversation threads from fragment sets.
type Threader struct {
	kw     *keywords.Table
	window time.Duration
}

// NewThreader builds a Threader. A nil table falls back to the built-in
// taxonomy; a non-positive window falls back to DefaultWindow.
func NewThreader(kw *keywords.Table, window time.Duration) *Threader {
	if kw == nil {
		kw = keywords.Default()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Threader{kw: kw, window: window}
}

// BuildThreads groups the fragments into threads, newest thread first.
// Fragments join a thread when they fall within the window before the
// thread's seed and share either a keyword topic or a conversation-bearing
// intent with it. Invalid fragments are skipped with a warning. A grouping of
// one fragment is emitted only when its intent stands on its own.
func (t *Threader) BuildThreads(customerID string, frags []*types.ConversationFragment, now time.Time) []*types.ConversationThread {
	candidates := make([]*types.ConversationFragment, 0, len(frags))
	for _, f := range frags {
		if f == nil || !f.Valid() {
			log.Printf("Warning: threading: skipping invalid fragment for customer %s", customerID)
			continue
		}
		candidates = append(candidates, f)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].Timestamp.Equal(candidates[j].Timestamp) {
			return candidates[i].Timestamp.After(candidates[j].Timestamp)
		}
		return candidates[i].ID < candidates[j].ID
	})

	assigned := make(map[string]bool, len(candidates))
	var threads []*types.ConversationThread

	for i, seed := range candidates {
		if assigned[seed.ID] {
			continue
		}
		assigned[seed.ID] = true
		members := []*types.ConversationFragment{seed}
		earliest := seed.Timestamp.Add(-t.window)

		for _, other := range candidates[i+1:] {
			if assigned[other.ID] {
				continue
			}
			if other.Timestamp.Before(earliest) {
				// Candidates are newest-first, so everything after is
				// outside the window too.
				break
			}
			if t.belongTogether(seed, other) {
				assigned[other.ID] = true
				members = append(members, other)
			}
		}

		if len(members) == 1 && !standaloneIntents[seed.Metadata.Intent] {
			continue
		}
		threads = append(threads, t.assemble(customerID, seed, members, now))
	}

	return threads
}

// belongTogether reports whether two fragments are part of the same
// conversation: a shared keyword topic other than "general", or both carrying
// the same conversation-bearing intent.
func (t *Threader) belongTogether(a, b *types.ConversationFragment) bool {
	ta := t.kw.TopicOf(a.Text)
	tb := t.kw.TopicOf(b.Text)
	if ta != "general" && ta == tb {
		return true
	}
	if a.Metadata.Intent != "" && a.Metadata.Intent == b.Metadata.Intent && sharedIntents[a.Metadata.Intent] {
		return true
	}
	return false
}

// assemble turns a member set (newest first) into a thread.
func (t *Threader) assemble(customerID string, seed *types.ConversationFragment, members []*types.ConversationFragment, now time.Time) *types.ConversationThread {
	topic := t.kw.TopicOf(seed.Text)
	if topic == "general" && sharedIntents[seed.Metadata.Intent] {
		topic = seed.Metadata.Intent
	}

	ids := make([]string, 0, len(members))
	var channels []types.Channel
	seenChannels := make(map[types.Channel]bool)
	for _, m := range members {
		ids = append(ids, m.ID)
		if !seenChannels[m.Channel] {
			seenChannels[m.Channel] = true
			channels = append(channels, m.Channel)
		}
	}

	startedAt := members[len(members)-1].Timestamp
	lastActivity := members[0].Timestamp

	return &types.ConversationThread{
		ID:           "thr:" + seed.ID,
		CustomerID:   customerID,
		Topic:        topic,
		Channels:     channels,
		StartedAt:    startedAt,
		LastActivity: lastActivity,
		FragmentIDs:  ids,
		Status:       t.classify(members, lastActivity, now),
	}
}

// classify derives thread status from its most recent fragments: escalation
// language wins, then resolution language paired with positive sentiment,
// then recency of last activity.
func (t *Threader) classify(members []*types.ConversationFragment, lastActivity time.Time, now time.Time) types.ThreadStatus {
	sample := members
	if len(sample) > statusSampleSize {
		sample = sample[:statusSampleSize]
	}

	for _, m := range sample {
		if keywords.MatchesAny(m.Text, t.kw.Escalation) {
			return types.ThreadEscalated
		}
	}
	for _, m := range sample {
		if keywords.MatchesAny(m.Text, t.kw.Resolution) && m.Metadata.Sentiment == types.SentimentPositive {
			return types.ThreadResolved
		}
	}
	if now.Sub(lastActivity) <= activeCutoff {
		return types.ThreadActive
	}
	return types.ThreadInactive
}
