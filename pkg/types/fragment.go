package types

import "time"

// Channel identifies the communication channel a fragment arrived on.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
)

// Direction distinguishes customer messages from our own.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Sentiment is the derived emotional tone of a fragment.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Urgency is the derived urgency level of a fragment.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyNormal   Urgency = "normal"
	UrgencyLow      Urgency = "low"
)

// FragmentMetadata holds the derived signals attached to a fragment at ingest
// time. The fields are closed and typed so scoring logic stays exhaustive;
// anything that doesn't fit goes in Tags.
type FragmentMetadata struct {
	// Intent is the classified purpose of the message
	// (e.g. "service_request", "complaint", "appointment", "question").
	Intent string `json:"intent,omitempty"`

	// Sentiment is the classified tone of the message.
	Sentiment Sentiment `json:"sentiment,omitempty"`

	// Urgency is the classified urgency of the message.
	Urgency Urgency `json:"urgency,omitempty"`

	// Tags is a free-form label list for anything the closed fields miss.
	Tags []string `json:"tags,omitempty"`
}

// ConversationFragment is one inbound or outbound message or utterance.
// Fragments are immutable once written except for CustomerID, which may be
// rewritten while merging identities.
type ConversationFragment struct {
	// ID uniquely identifies the fragment (format: frag:<uuid>).
	ID string `json:"id"`

	// CustomerID is the owning CustomerIdentity. Rewritten during merges.
	CustomerID string `json:"customer_id"`

	// Channel the fragment arrived on.
	Channel Channel `json:"channel"`

	// Direction of the message relative to us.
	Direction Direction `json:"direction"`

	// Timestamp is when the message occurred, in UTC.
	Timestamp time.Time `json:"timestamp"`

	// Text is the raw message content.
	Text string `json:"text"`

	// Metadata holds the derived classification signals.
	Metadata FragmentMetadata `json:"metadata"`

	// Embedding is the vector representation of Text. May be empty when the
	// embedding function was unavailable at ingest time.
	Embedding []float32 `json:"embedding,omitempty"`
}

// Valid reports whether the fragment carries the minimum fields needed for
// scoring and threading. Malformed fragments are skipped, never fatal.
func (f *ConversationFragment) Valid() bool {
	return f != nil && f.ID != "" && !f.Timestamp.IsZero()
}

// Age returns how old the fragment is relative to now.
func (f *ConversationFragment) Age(now time.Time) time.Duration {
	return now.Sub(f.Timestamp)
}
