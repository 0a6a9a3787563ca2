// Package keywords holds the shared, versioned keyword tables used by the
// relevance scorer, the conversation threader and the profile builder.
// Consolidating them here means taxonomy changes are made once.
//
// The built-in tables can be overridden from a YAML file (see Load), which is
// how deployments version their taxonomy without a rebuild.
package keywords

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/relaydesk/switchboard/pkg/types"
)

// Table is the full keyword taxonomy. All matching is case-insensitive
// substring matching over the lower-cased fragment text.
type Table struct {
	// Version identifies the taxonomy revision in use.
	Version string `yaml:"version"`

	// Topics maps a topic label to the keywords that indicate it.
	Topics map[string][]string `yaml:"topics"`

	// ChannelGroups maps a group label to the channels it contains.
	// Channels in the same group score 0.8 affinity; different known
	// groups score 0.3; unknown channels score 0.5.
	ChannelGroups map[string][]string `yaml:"channel_groups"`

	// Resolution keywords mark a thread as resolved when paired with
	// positive sentiment.
	Resolution []string `yaml:"resolution"`

	// Escalation keywords mark a thread as escalated.
	Escalation []string `yaml:"escalation"`

	// Politeness and Casual drive the communication-style classification.
	Politeness []string `yaml:"politeness"`
	Casual     []string `yaml:"casual"`

	// UrgencyWords drive the urgency-proneness trait and message analysis.
	UrgencyWords []string `yaml:"urgency_words"`

	// EmergencyWords escalate analyzed urgency to critical.
	EmergencyWords []string `yaml:"emergency_words"`

	// DetailWords indicate detail orientation (precision language).
	DetailWords []string `yaml:"detail_words"`

	// TechWords indicate tech savviness.
	TechWords []string `yaml:"tech_words"`

	// ServiceWords mark a fragment as service-related absent an explicit
	// service_request intent.
	ServiceWords []string `yaml:"service_words"`

	// CompletionWords paired with positive sentiment yield a 0.9
	// satisfaction sample.
	CompletionWords []string `yaml:"completion_words"`

	// DissatisfactionWords paired with negative sentiment yield a 0.3
	// satisfaction sample.
	DissatisfactionWords []string `yaml:"dissatisfaction_words"`

	// PositiveWords and NegativeWords drive mood analysis of the current
	// message when no sentiment metadata is available.
	PositiveWords []string `yaml:"positive_words"`
	NegativeWords []string `yaml:"negative_words"`
}

// topicOrder fixes the evaluation order of the built-in topics so TopicOf is
// deterministic when a text matches more than one topic.
var topicOrder = []string{"plumbing", "electrical", "hardware", "appointment", "payment", "complaint"}

// Default returns the built-in taxonomy.
func Default() *Table {
	return &Table{
		Version: "2026-02",
		Topics: map[string][]string{
			"plumbing":    {"faucet", "leak", "pipe", "drain", "toilet", "water heater", "sink", "clog"},
			"electrical":  {"outlet", "breaker", "wiring", "light switch", "power", "circuit", "fuse"},
			"hardware":    {"door", "lock", "window", "hinge", "cabinet", "shelf", "fence"},
			"appointment": {"appointment", "schedule", "reschedule", "booking", "available", "time slot"},
			"payment":     {"invoice", "bill", "payment", "charge", "refund", "quote", "estimate", "price"},
			"complaint":   {"complaint", "unhappy", "disappointed", "terrible", "unacceptable", "poor service"},
		},
		ChannelGroups: map[string][]string{
			"text":     {"sms", "chat", "whatsapp"},
			"voice":    {"phone", "voicemail", "call", "voice"},
			"email":    {"email"},
			"inPerson": {"visit", "appointment"},
		},
		Resolution:           []string{"completed", "fixed", "resolved", "done", "thank you"},
		Escalation:           []string{"manager", "supervisor", "escalate", "unacceptable"},
		Politeness:           []string{"please", "thank you", "thanks", "appreciate", "kindly", "would you"},
		Casual:               []string{"hey", "yeah", "gonna", "wanna", "cool", "lol", "np"},
		UrgencyWords:         []string{"urgent", "asap", "immediately", "right away", "now", "today"},
		EmergencyWords:       []string{"emergency", "flooding", "sparking", "gas leak", "no power", "burst"},
		DetailWords:          []string{"specifically", "exactly", "precisely", "model", "serial", "part number", "measurements"},
		TechWords:            []string{"app", "website", "online", "portal", "link", "login", "email me"},
		ServiceWords:         []string{"fix", "repair", "install", "replace", "broken", "not working", "leaking"},
		CompletionWords:      []string{"great job", "perfect", "excellent", "works now", "all set", "thank you"},
		DissatisfactionWords: []string{"unhappy", "disappointed", "terrible", "awful", "still broken", "worse"},
		PositiveWords:        []string{"thanks", "great", "perfect", "awesome", "appreciate", "happy"},
		NegativeWords:        []string{"angry", "frustrated", "unhappy", "terrible", "awful", "ridiculous", "worst"},
	}
}

// Load reads a taxonomy from a YAML file. Fields left empty in the file fall
// back to the built-in defaults so partial overrides are safe.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keywords: failed to read %s: %w", path, err)
	}

	t := Default()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("keywords: failed to parse %s: %w", path, err)
	}
	if t.Version == "" {
		t.Version = Default().Version
	}
	return t, nil
}

// TopicOf returns the first topic whose keyword set matches the text, or
// "general" when nothing matches. Built-in topics are checked in a fixed
// order; topics added via YAML are checked after them.
func (t *Table) TopicOf(text string) string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool, len(topicOrder))
	for _, topic := range topicOrder {
		seen[topic] = true
		if containsAny(lower, t.Topics[topic]) {
			return topic
		}
	}
	for topic, words := range t.Topics {
		if !seen[topic] && containsAny(lower, words) {
			return topic
		}
	}
	return "general"
}

// ChannelGroup returns the group label for a channel, or "" if unrecognized.
func (t *Table) ChannelGroup(ch types.Channel) string {
	name := strings.ToLower(string(ch))
	for group, members := range t.ChannelGroups {
		for _, m := range members {
			if m == name {
				return group
			}
		}
	}
	return ""
}

// MatchesAny reports whether the text contains any of the words
// (case-insensitive).
func MatchesAny(text string, words []string) bool {
	return containsAny(strings.ToLower(text), words)
}

// CountMatches returns how many of the words appear in the text
// (case-insensitive).
func CountMatches(text string, words []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
