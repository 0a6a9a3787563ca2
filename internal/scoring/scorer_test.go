package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/relaydesk/switchboard/pkg/types"
)

func newFragment(age time.Duration, now time.Time) *types.ConversationFragment {
	return &types.ConversationFragment{
		ID:        "frag:test",
		Channel:   types.ChannelSMS,
		Direction: types.DirectionInbound,
		Timestamp: now.Add(-age),
		Text:      "the kitchen faucet is leaking again",
	}
}

func TestScoreBounds(t *testing.T) {
	s := NewScorer(nil, 0)
	now := time.Now().UTC()

	frag := newFragment(24*time.Hour, now)
	frag.Metadata = types.FragmentMetadata{
		Intent:    "complaint",
		Urgency:   types.UrgencyCritical,
		Sentiment: types.SentimentNegative,
	}
	frag.Direction = types.DirectionOutbound

	item := s.Score("faucet leaking", types.ChannelSMS, frag, 1.5, now)
	assert.LessOrEqual(t, item.Similarity, 1.0)
	assert.LessOrEqual(t, item.Importance, 1.0)
	assert.LessOrEqual(t, item.FinalScore, 1.0)
	assert.GreaterOrEqual(t, item.FinalScore, 0.0)
}

func TestRecencyDecay(t *testing.T) {
	s := NewScorer(nil, 30*24*time.Hour)
	now := time.Now().UTC()

	fresh := s.Score("", types.ChannelSMS, newFragment(0, now), 0, now)
	week := s.Score("", types.ChannelSMS, newFragment(7*24*time.Hour, now), 0, now)
	month := s.Score("", types.ChannelSMS, newFragment(30*24*time.Hour, now), 0, now)
	ancient := s.Score("", types.ChannelSMS, newFragment(365*24*time.Hour, now), 0, now)

	assert.Equal(t, 1.0, fresh.Recency)
	assert.Greater(t, fresh.Recency, week.Recency)
	assert.Greater(t, week.Recency, month.Recency)
	assert.Equal(t, 0.1, month.Recency, "window edge hits the floor")
	assert.Equal(t, 0.1, ancient.Recency, "recency never drops below the floor")
}

func TestImportance(t *testing.T) {
	s := NewScorer(nil, 0)
	now := time.Now().UTC()

	tests := []struct {
		name string
		meta types.FragmentMetadata
		dir  types.Direction
		want float64
	}{
		{"baseline", types.FragmentMetadata{}, types.DirectionInbound, 0.5},
		{"complaint", types.FragmentMetadata{Intent: "complaint"}, types.DirectionInbound, 0.9},
		{"service request", types.FragmentMetadata{Intent: "service_request"}, types.DirectionInbound, 0.8},
		{"question", types.FragmentMetadata{Intent: "question"}, types.DirectionInbound, 0.6},
		{"critical urgency", types.FragmentMetadata{Urgency: types.UrgencyCritical}, types.DirectionInbound, 0.8},
		{"low urgency discounts", types.FragmentMetadata{Urgency: types.UrgencyLow}, types.DirectionInbound, 0.4},
		{"negative sentiment", types.FragmentMetadata{Sentiment: types.SentimentNegative}, types.DirectionInbound, 0.7},
		{"outbound commitment", types.FragmentMetadata{}, types.DirectionOutbound, 0.6},
		{"stacked signals clamp at one", types.FragmentMetadata{
			Intent:    "complaint",
			Urgency:   types.UrgencyCritical,
			Sentiment: types.SentimentNegative,
		}, types.DirectionOutbound, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag := newFragment(time.Hour, now)
			frag.Metadata = tt.meta
			frag.Direction = tt.dir
			item := s.Score("", types.ChannelEmail, frag, 0, now)
			assert.InDelta(t, tt.want, item.Importance, 1e-9)
		})
	}
}

func TestChannelRelevance(t *testing.T) {
	s := NewScorer(nil, 0)
	now := time.Now().UTC()

	tests := []struct {
		name  string
		query types.Channel
		frag  types.Channel
		want  float64
	}{
		{"same channel", types.ChannelSMS, types.ChannelSMS, 1.0},
		{"same group", types.ChannelSMS, types.Channel("chat"), 0.8},
		{"different groups", types.ChannelSMS, types.ChannelEmail, 0.3},
		{"voice vs text", types.ChannelVoice, types.ChannelSMS, 0.3},
		{"unknown channel", types.ChannelSMS, types.Channel("carrier-pigeon"), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFragment(time.Hour, now)
			f.Channel = tt.frag
			item := s.Score("", tt.query, f, 0, now)
			assert.InDelta(t, tt.want, item.ChannelRelevance, 1e-9)
		})
	}
}

func TestSimilarityKeywordBoost(t *testing.T) {
	s := NewScorer(nil, 0)
	now := time.Now().UTC()
	frag := newFragment(time.Hour, now)

	overlapping := s.Score("kitchen faucet leaking", types.ChannelSMS, frag, 0.5, now)
	unrelated := s.Score("invoice for last month", types.ChannelSMS, frag, 0.5, now)
	assert.Greater(t, overlapping.Similarity, unrelated.Similarity)
	assert.InDelta(t, 0.5, unrelated.Similarity, 1e-9, "no token overlap leaves raw similarity untouched")

	// Negative raw similarity is clamped before blending.
	clamped := s.Score("invoice", types.ChannelSMS, frag, -0.4, now)
	assert.GreaterOrEqual(t, clamped.Similarity, 0.0)
}

func TestFinalScoreWeighting(t *testing.T) {
	s := NewScorer(nil, 0)
	now := time.Now().UTC()
	frag := newFragment(0, now)

	item := s.Score("", types.ChannelSMS, frag, 0, now)
	want := 0.4*item.Similarity + 0.3*item.Recency + 0.2*item.Importance + 0.1*item.ChannelRelevance
	assert.InDelta(t, want, item.FinalScore, 1e-9)
}
