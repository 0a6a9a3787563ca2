package types

import "time"

// ThreadStatus is the lifecycle state of a conversation thread.
type ThreadStatus string

const (
	// ThreadActive means the thread saw activity within the last 3 days.
	ThreadActive ThreadStatus = "active"

	// ThreadResolved means resolution language with positive sentiment
	// appeared in the thread's most recent fragments.
	ThreadResolved ThreadStatus = "resolved"

	// ThreadEscalated means escalation language appeared in the thread's
	// most recent fragments.
	ThreadEscalated ThreadStatus = "escalated"

	// ThreadInactive means the thread has gone quiet without resolution.
	ThreadInactive ThreadStatus = "inactive"
)

// ConversationThread is a derived, time- and topic-bounded grouping of a
// customer's fragments. Threads are recomputed on each retrieval call and
// never persisted.
type ConversationThread struct {
	// ID is deterministic per seed fragment (format: thr:<seed fragment uuid>).
	ID string `json:"id"`

	// CustomerID is the identity the thread belongs to.
	CustomerID string `json:"customer_id"`

	// Topic is the main topic label (e.g. "plumbing", or the shared intent
	// when no keyword topic matched).
	Topic string `json:"topic"`

	// Channels lists the distinct channels involved, in first-seen order.
	Channels []Channel `json:"channels"`

	// StartedAt is the timestamp of the oldest fragment in the thread.
	StartedAt time.Time `json:"started_at"`

	// LastActivity is the timestamp of the newest fragment in the thread.
	LastActivity time.Time `json:"last_activity"`

	// FragmentIDs lists member fragments ordered newest-first.
	FragmentIDs []string `json:"fragment_ids"`

	// Status is the derived lifecycle status.
	Status ThreadStatus `json:"status"`
}

// Size returns the number of fragments in the thread.
func (t *ConversationThread) Size() int {
	return len(t.FragmentIDs)
}
