package types

// ContextItem is a conversation fragment annotated with relevance sub-scores
// against a query. Items are constructed per retrieval request and never
// persisted.
type ContextItem struct {
	// Fragment is the underlying historical fragment.
	Fragment *ConversationFragment `json:"fragment"`

	// Similarity is the vector similarity boosted by token overlap (0-1).
	Similarity float64 `json:"similarity"`

	// Recency is the exponential time-decay score (0-1, floor 0.1).
	Recency float64 `json:"recency"`

	// Importance reflects intent, urgency, sentiment and direction (0-1).
	Importance float64 `json:"importance"`

	// ChannelRelevance reflects channel-group affinity with the query (0-1).
	ChannelRelevance float64 `json:"channel_relevance"`

	// FinalScore is the weighted combination:
	// 0.4*similarity + 0.3*recency + 0.2*importance + 0.1*channelRelevance.
	FinalScore float64 `json:"final_score"`
}

// InteractionSignals carries the derived read on the current message.
type InteractionSignals struct {
	// Topic is the keyword-table topic of the current message ("general"
	// when nothing matched).
	Topic string `json:"topic"`

	// Mood is "positive", "negative" or "neutral".
	Mood string `json:"mood"`

	// Urgency is "critical", "high", "normal" or "low".
	Urgency string `json:"urgency"`

	// SuggestedTone is the recommended response tone: "friendly",
	// "empathetic", "responsive" or "professional".
	SuggestedTone string `json:"suggested_tone"`
}

// SummaryField is one labeled line of the multi-field rendered view.
// A slice keeps rendering order deterministic.
type SummaryField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ContextSummary is the engine's output for one retrieval request: the
// customer profile, the ranked relevant history, derived threads, signals on
// the current interaction, and three rendered views for downstream prompt
// assembly. Transient, produced per request.
type ContextSummary struct {
	// Profile is the customer profile (possibly empty when degraded).
	Profile *CustomerProfile `json:"profile"`

	// Items is the ranked relevant history, bounded by maxItems.
	Items []ContextItem `json:"items"`

	// Threads lists the derived conversation threads over the candidate set.
	Threads []ConversationThread `json:"threads"`

	// Signals is the derived read on the current message.
	Signals InteractionSignals `json:"signals"`

	// OneLine is a single-sentence rendering of the summary.
	OneLine string `json:"one_line"`

	// Fields is the multi-field rendering, ordered.
	Fields []SummaryField `json:"fields"`

	// PromptBlock is a structured plain-text block for prompt assembly.
	PromptBlock string `json:"prompt_block"`

	// Degraded is set when the summary was produced on a failure path
	// (store unreachable) and carries no history.
	Degraded bool `json:"degraded,omitempty"`
}

// ActiveThreads returns only threads whose status is active or escalated.
func (s *ContextSummary) ActiveThreads() []ConversationThread {
	var out []ConversationThread
	for _, t := range s.Threads {
		if t.Status == ThreadActive || t.Status == ThreadEscalated {
			out = append(out, t)
		}
	}
	return out
}
