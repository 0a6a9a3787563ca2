package types

import (
	"sort"
	"time"
)

// IdentifierKind classifies what a normalized identifier was derived from.
type IdentifierKind string

const (
	// IdentifierPhone is a normalized phone number (E.164-like, "+" plus digits).
	IdentifierPhone IdentifierKind = "phone"

	// IdentifierEmail is a lower-cased, trimmed email address.
	IdentifierEmail IdentifierKind = "email"

	// IdentifierName is a normalized display name. Name evidence is weak and
	// never links identities on its own above 0.7 confidence.
	IdentifierName IdentifierKind = "name"
)

// IdentifierLink associates a normalized identifier with the confidence that
// it belongs to the owning identity.
type IdentifierLink struct {
	// Value is the normalized identifier (see identity.NormalizePhone and friends).
	Value string `json:"value"`

	// Kind classifies the identifier (phone, email, name).
	Kind IdentifierKind `json:"kind"`

	// Confidence is the [0,1] certainty that this identifier belongs here.
	Confidence float64 `json:"confidence"`

	// LinkedAt records when the link was first established.
	LinkedAt time.Time `json:"linked_at"`
}

// CustomerIdentity is the stable internal record representing one real
// customer across channels. Identities are created the first time any
// identifier is seen and are never deleted, only merged.
type CustomerIdentity struct {
	// ID is the opaque, stable identifier (format: cust:<uuid>).
	ID string `json:"id"`

	// DisplayName is the primary name shown for this customer.
	DisplayName string `json:"display_name,omitempty"`

	// AlternateNames holds other names this customer has been seen under.
	AlternateNames []string `json:"alternate_names,omitempty"`

	// Links is the set of identifiers attached to this identity.
	Links []IdentifierLink `json:"links"`

	// NeedsReview is set when a merge found mutually exclusive high-confidence
	// evidence (e.g. one phone linked to two emails via different paths).
	NeedsReview bool `json:"needs_review,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasIdentifier reports whether the identity already carries the given
// normalized identifier value.
func (c *CustomerIdentity) HasIdentifier(value string) bool {
	for _, l := range c.Links {
		if l.Value == value {
			return true
		}
	}
	return false
}

// AddLink attaches an identifier to the identity. Re-adding an existing value
// is a no-op except that the stored confidence is raised to the higher of the
// two, which keeps merges idempotent.
func (c *CustomerIdentity) AddLink(link IdentifierLink) {
	for i, l := range c.Links {
		if l.Value == link.Value {
			if link.Confidence > l.Confidence {
				c.Links[i].Confidence = link.Confidence
			}
			return
		}
	}
	c.Links = append(c.Links, link)
}

// AddName records an alternate name, skipping duplicates and the current
// display name.
func (c *CustomerIdentity) AddName(name string) {
	if name == "" || name == c.DisplayName {
		return
	}
	if c.DisplayName == "" {
		c.DisplayName = name
		return
	}
	for _, n := range c.AlternateNames {
		if n == name {
			return
		}
	}
	c.AlternateNames = append(c.AlternateNames, name)
}

// Names returns the display name plus all alternates.
func (c *CustomerIdentity) Names() []string {
	names := make([]string, 0, len(c.AlternateNames)+1)
	if c.DisplayName != "" {
		names = append(names, c.DisplayName)
	}
	names = append(names, c.AlternateNames...)
	return names
}

// LinkCount returns the number of linked identifiers.
func (c *CustomerIdentity) LinkCount() int {
	return len(c.Links)
}

// AggregateConfidence sums the confidence of all links. Used as the merge
// tie-breaker when two identities have the same number of identifiers.
func (c *CustomerIdentity) AggregateConfidence() float64 {
	var sum float64
	for _, l := range c.Links {
		sum += l.Confidence
	}
	return sum
}

// SortedLinkValues returns the identifier values in lexicographic order.
// Useful for deterministic comparisons in tests and diagnostics.
func (c *CustomerIdentity) SortedLinkValues() []string {
	values := make([]string, len(c.Links))
	for i, l := range c.Links {
		values[i] = l.Value
	}
	sort.Strings(values)
	return values
}
