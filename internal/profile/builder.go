// Package profile builds structured customer profiles from conversation
// history and caches them with a TTL so repeated retrievals within the
// freshness window are cheap.
package profile

import (
	"sort"
	"time"

	"github.com/relaydesk/switchboard/internal/keywords"
	"github.com/relaydesk/switchboard/pkg/types"
)

// satisfactionRiskSample is how many of the most recent fragments feed the
// satisfaction-risk ratio.
const satisfactionRiskSample = 5

// Builder derives customer profiles from fragment history.
type Builder struct {
	kw *keywords.Table
}

// NewBuilder builds a Builder. A nil table falls back to the built-in
// taxonomy.
func NewBuilder(kw *keywords.Table) *Builder {
	if kw == nil {
		kw = keywords.Default()
	}
	return &Builder{kw: kw}
}

// Build derives a full profile for the identity from its fragments. The
// fragment slice may be in any order. With no fragments the result is an
// empty profile carrying the identity's names and identifiers.
func (b *Builder) Build(identity *types.CustomerIdentity, frags []*types.ConversationFragment, now time.Time) *types.CustomerProfile {
	p := types.EmptyProfile(identity.ID)
	p.DisplayName = identity.DisplayName
	p.AlternateNames = identity.AlternateNames
	p.Identifiers = identity.Links
	p.NeedsReview = identity.NeedsReview
	p.CreatedAt = identity.CreatedAt
	p.UpdatedAt = now

	valid := make([]*types.ConversationFragment, 0, len(frags))
	for _, f := range frags {
		if f != nil && f.Valid() {
			valid = append(valid, f)
		}
	}
	if len(valid) == 0 {
		return p
	}
	sort.Slice(valid, func(i, j int) bool {
		return valid[i].Timestamp.After(valid[j].Timestamp)
	})

	p.FragmentCount = len(valid)
	p.LastInteraction = valid[0].Timestamp
	p.Preferences = b.preferences(valid)
	p.History = b.history(valid)
	p.Traits = b.traits(valid)
	p.Value = b.value(valid, now)
	p.Risk = b.risk(valid, now)
	p.ConfidenceScore = confidence(len(valid))

	return p
}

// preferences derives the modal channel, top contact hours and days, and the
// customer's communication style.
func (b *Builder) preferences(frags []*types.ConversationFragment) types.ContactPreferences {
	channelCounts := make(map[types.Channel]int)
	hourCounts := make(map[int]int)
	dayCounts := make(map[string]int)

	for _, f := range frags {
		channelCounts[f.Channel]++
		hourCounts[f.Timestamp.Hour()]++
		dayCounts[f.Timestamp.Weekday().String()]++
	}

	return types.ContactPreferences{
		PreferredChannel:   modalChannel(channelCounts),
		PreferredHours:     topHours(hourCounts, 3),
		PreferredDays:      frequentDays(dayCounts, len(frags)),
		CommunicationStyle: b.style(frags),
	}
}

// style classifies inbound language by comparing politeness and casual
// keyword counts: formal when politeness dominates, casual when the reverse,
// friendly on a tie.
func (b *Builder) style(frags []*types.ConversationFragment) string {
	var polite, casual, inbound int
	for _, f := range frags {
		if f.Direction != types.DirectionInbound {
			continue
		}
		inbound++
		polite += keywords.CountMatches(f.Text, b.kw.Politeness)
		casual += keywords.CountMatches(f.Text, b.kw.Casual)
	}
	if inbound == 0 {
		return ""
	}
	switch {
	case polite > casual:
		return "formal"
	case casual > polite:
		return "casual"
	default:
		return "friendly"
	}
}

// history tallies service requests per category and collects satisfaction
// samples from completion and dissatisfaction language.
func (b *Builder) history(frags []*types.ConversationFragment) types.ServiceHistory {
	h := types.ServiceHistory{Categories: make(map[string]int)}

	for _, f := range frags {
		if f.Metadata.Intent == "service_request" || keywords.MatchesAny(f.Text, b.kw.ServiceWords) {
			h.TotalRequests++
			h.Categories[b.category(f.Text)]++
		}
		if f.Metadata.Sentiment == types.SentimentPositive && keywords.MatchesAny(f.Text, b.kw.CompletionWords) {
			h.SatisfactionSamples = append(h.SatisfactionSamples, 0.9)
		}
		if f.Metadata.Sentiment == types.SentimentNegative && keywords.MatchesAny(f.Text, b.kw.DissatisfactionWords) {
			h.SatisfactionSamples = append(h.SatisfactionSamples, 0.3)
		}
	}

	if len(h.SatisfactionSamples) > 0 {
		var sum float64
		for _, s := range h.SatisfactionSamples {
			sum += s
		}
		h.AverageSatisfaction = sum / float64(len(h.SatisfactionSamples))
	}
	if len(h.Categories) == 0 {
		h.Categories = nil
	}
	return h
}

// category maps fragment text to a service category; topics outside the
// trade taxonomy fold into "general".
func (b *Builder) category(text string) string {
	switch topic := b.kw.TopicOf(text); topic {
	case "plumbing", "electrical", "hardware":
		return topic
	default:
		return "general"
	}
}

// traits scores personality dimensions as keyword hit rates over inbound
// fragments.
func (b *Builder) traits(frags []*types.ConversationFragment) types.PersonalityTraits {
	var polite, urgent, detail, tech, inbound int
	for _, f := range frags {
		if f.Direction != types.DirectionInbound {
			continue
		}
		inbound++
		if keywords.MatchesAny(f.Text, b.kw.Politeness) {
			polite++
		}
		if keywords.MatchesAny(f.Text, b.kw.UrgencyWords) || f.Metadata.Urgency == types.UrgencyCritical || f.Metadata.Urgency == types.UrgencyHigh {
			urgent++
		}
		// Long messages signal detail orientation even without precision
		// language.
		if keywords.MatchesAny(f.Text, b.kw.DetailWords) || len(f.Text) > 200 {
			detail++
		}
		if keywords.MatchesAny(f.Text, b.kw.TechWords) {
			tech++
		}
	}
	if inbound == 0 {
		return types.PersonalityTraits{Patience: 1}
	}

	t := types.PersonalityTraits{
		Politeness:        float64(polite) / float64(inbound),
		UrgencyProneness:  float64(urgent) / float64(inbound),
		DetailOrientation: float64(detail) / float64(inbound),
		TechSavviness:     float64(tech) / float64(inbound),
	}
	t.Patience = 1 - t.UrgencyProneness
	return t
}

// value estimates engagement from message volume and length, and loyalty from
// positive-sentiment ratio plus a volume bonus.
func (b *Builder) value(frags []*types.ConversationFragment, now time.Time) types.ValueIndicators {
	oldest := frags[len(frags)-1].Timestamp
	months := now.Sub(oldest).Hours() / (24 * 30)
	if months < 1 {
		months = 1
	}
	freq := float64(len(frags)) / months

	var positive, totalLen int
	for _, f := range frags {
		if f.Metadata.Sentiment == types.SentimentPositive {
			positive++
		}
		totalLen += len(f.Text)
	}
	posRatio := float64(positive) / float64(len(frags))
	avgLen := totalLen / len(frags)

	volumeBonus := float64(len(frags)) / 100
	if volumeBonus > 0.3 {
		volumeBonus = 0.3
	}
	loyalty := posRatio + volumeBonus
	if loyalty > 1 {
		loyalty = 1
	}

	level := "low"
	switch {
	case len(frags) >= 10 && avgLen >= 40:
		level = "high"
	case len(frags) >= 3 || avgLen >= 120:
		level = "medium"
	}

	return types.ValueIndicators{
		ConversationFrequency: freq,
		EngagementLevel:       level,
		LoyaltyScore:          loyalty,
	}
}

// risk tiers churn by days since last interaction and measures satisfaction
// risk as the negative ratio over the most recent fragments.
func (b *Builder) risk(frags []*types.ConversationFragment, now time.Time) types.RiskFactors {
	days := now.Sub(frags[0].Timestamp).Hours() / 24
	churn := 0.2
	switch {
	case days > 90:
		churn = 0.8
	case days > 30:
		churn = 0.6
	}

	recent := frags
	if len(recent) > satisfactionRiskSample {
		recent = recent[:satisfactionRiskSample]
	}
	var negative int
	for _, f := range recent {
		if f.Metadata.Sentiment == types.SentimentNegative {
			negative++
		}
	}

	return types.RiskFactors{
		ChurnRisk:        churn,
		SatisfactionRisk: float64(negative) / float64(len(recent)),
	}
}

// confidence grows with observed history and saturates at 0.95.
func confidence(n int) float64 {
	c := 0.3 + float64(n)*0.05
	if c > 0.95 {
		c = 0.95
	}
	return c
}

func modalChannel(counts map[types.Channel]int) types.Channel {
	var best types.Channel
	bestN := 0
	for ch, n := range counts {
		if n > bestN || (n == bestN && string(ch) < string(best)) {
			best, bestN = ch, n
		}
	}
	return best
}

func topHours(counts map[int]int, k int) []int {
	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if counts[hours[i]] != counts[hours[j]] {
			return counts[hours[i]] > counts[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if len(hours) > k {
		hours = hours[:k]
	}
	sort.Ints(hours)
	return hours
}

// frequentDays returns the observed weekdays when weekday traffic dominates
// weekend traffic, otherwise every observed day. Ordered Monday first.
func frequentDays(counts map[string]int, total int) []string {
	if total == 0 {
		return nil
	}
	weekdayCount := total - counts["Saturday"] - counts["Sunday"]
	weekdaysOnly := weekdayCount > counts["Saturday"]+counts["Sunday"]

	order := []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	var out []string
	for _, day := range order {
		if counts[day] == 0 {
			continue
		}
		if weekdaysOnly && (day == "Saturday" || day == "Sunday") {
			continue
		}
		out = append(out, day)
	}
	return out
}
