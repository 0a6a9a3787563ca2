package types

import "time"

// ContactPreferences captures how and when a customer prefers to communicate,
// learned from their fragment history.
type ContactPreferences struct {
	// PreferredChannel is the modal channel across all fragments.
	PreferredChannel Channel `json:"preferred_channel,omitempty"`

	// PreferredHours lists the top-3 most frequent hours-of-day (0-23).
	PreferredHours []int `json:"preferred_hours,omitempty"`

	// PreferredDays lists weekday names the customer tends to reach out on.
	PreferredDays []string `json:"preferred_days,omitempty"`

	// CommunicationStyle is "formal", "casual" or "friendly".
	CommunicationStyle string `json:"communication_style,omitempty"`
}

// ServiceHistory summarizes the customer's past service interactions.
type ServiceHistory struct {
	// TotalRequests counts fragments classified as service requests.
	TotalRequests int `json:"total_requests"`

	// Categories counts requests per service category
	// (plumbing, electrical, hardware, general).
	Categories map[string]int `json:"categories,omitempty"`

	// SatisfactionSamples holds per-fragment satisfaction observations
	// (0.9 for positive completions, 0.3 for negative dissatisfaction).
	SatisfactionSamples []float64 `json:"satisfaction_samples,omitempty"`

	// AverageSatisfaction is the mean of SatisfactionSamples, 0 when empty.
	AverageSatisfaction float64 `json:"average_satisfaction"`
}

// PersonalityTraits holds behavioral scores in [0,1] derived from
// per-conversation keyword hit rates.
type PersonalityTraits struct {
	Politeness        float64 `json:"politeness"`
	UrgencyProneness  float64 `json:"urgency_proneness"`
	DetailOrientation float64 `json:"detail_orientation"`
	TechSavviness     float64 `json:"tech_savviness"`

	// Patience is defined as 1 - UrgencyProneness.
	Patience float64 `json:"patience"`
}

// ValueIndicators estimates how engaged and valuable the customer is.
type ValueIndicators struct {
	// ConversationFrequency is fragments per month over the observed span.
	ConversationFrequency float64 `json:"conversation_frequency"`

	// EngagementLevel is "high", "medium" or "low".
	EngagementLevel string `json:"engagement_level,omitempty"`

	// LoyaltyScore combines positive-sentiment ratio with a volume bonus.
	LoyaltyScore float64 `json:"loyalty_score"`
}

// RiskFactors flags customers at risk of churn or dissatisfaction.
type RiskFactors struct {
	// ChurnRisk is tiered by days since last interaction.
	ChurnRisk float64 `json:"churn_risk"`

	// SatisfactionRisk is the negative-sentiment ratio over the most
	// recent 5 fragments.
	SatisfactionRisk float64 `json:"satisfaction_risk"`
}

// CustomerProfile is the learned, structured view of one customer. Profiles
// are built on demand from fragment history and cached with a 1-hour TTL.
type CustomerProfile struct {
	// CustomerID is the owning identity.
	CustomerID string `json:"customer_id"`

	// DisplayName is the primary name for the customer.
	DisplayName string `json:"display_name,omitempty"`

	// AlternateNames lists other names the customer has been seen under.
	AlternateNames []string `json:"alternate_names,omitempty"`

	// Identifiers lists all linked identifiers with confidences.
	Identifiers []IdentifierLink `json:"identifiers,omitempty"`

	Preferences ContactPreferences `json:"preferences"`
	History     ServiceHistory     `json:"history"`
	Traits      PersonalityTraits  `json:"traits"`
	Value       ValueIndicators    `json:"value"`
	Risk        RiskFactors        `json:"risk"`

	// NeedsReview mirrors the identity flag set by conflicted merges.
	NeedsReview bool `json:"needs_review,omitempty"`

	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	LastInteraction time.Time `json:"last_interaction,omitempty"`

	// ConfidenceScore is the [0,1] confidence in the profile overall,
	// growing with the amount of observed history.
	ConfidenceScore float64 `json:"confidence_score"`

	// FragmentCount is the customer's stored fragment history size (at least
	// the number of fragments the profile was built from).
	FragmentCount int `json:"fragment_count"`
}

// Empty reports whether the profile carries no learned history. Degraded
// retrieval paths return an empty profile bearing only the customer ID.
func (p *CustomerProfile) Empty() bool {
	return p.FragmentCount == 0
}

// EmptyProfile returns a minimal profile for the given identity, used when
// the store is unreachable or the customer has no history.
func EmptyProfile(customerID string) *CustomerProfile {
	now := time.Now().UTC()
	return &CustomerProfile{
		CustomerID: customerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
