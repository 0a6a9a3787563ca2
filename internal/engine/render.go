package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/relaydesk/switchboard/pkg/types"
)

// renderOneLine produces a single-sentence summary of the customer and the
// current interaction.
func renderOneLine(s *types.ContextSummary) string {
	name := s.Profile.DisplayName
	if name == "" {
		name = s.Profile.CustomerID
	}
	if s.Degraded {
		return fmt.Sprintf("%s: history unavailable; message reads %s/%s urgency about %s.",
			name, s.Signals.Mood, s.Signals.Urgency, s.Signals.Topic)
	}
	if s.Profile.Empty() {
		return fmt.Sprintf("%s: new customer, no prior history; message is about %s.",
			name, s.Signals.Topic)
	}

	line := fmt.Sprintf("%s: %d prior interactions", name, s.Profile.FragmentCount)
	if active := s.ActiveThreads(); len(active) > 0 {
		line += fmt.Sprintf(", open %s thread", active[0].Topic)
	}
	line += fmt.Sprintf("; current message is about %s with %s mood.", s.Signals.Topic, s.Signals.Mood)
	return line
}

// renderFields produces the labeled multi-field view in a fixed order.
func renderFields(s *types.ContextSummary) []types.SummaryField {
	fields := []types.SummaryField{
		{Label: "Customer", Value: displayName(s.Profile)},
		{Label: "Topic", Value: s.Signals.Topic},
		{Label: "Mood", Value: s.Signals.Mood},
		{Label: "Urgency", Value: s.Signals.Urgency},
		{Label: "Suggested tone", Value: s.Signals.SuggestedTone},
	}

	if s.Degraded {
		fields = append(fields, types.SummaryField{Label: "History", Value: "unavailable"})
		return fields
	}

	fields = append(fields, types.SummaryField{
		Label: "History",
		Value: fmt.Sprintf("%d interactions, %d relevant", s.Profile.FragmentCount, len(s.Items)),
	})
	if s.Profile.Preferences.PreferredChannel != "" {
		fields = append(fields, types.SummaryField{
			Label: "Preferred channel",
			Value: string(s.Profile.Preferences.PreferredChannel),
		})
	}
	if active := s.ActiveThreads(); len(active) > 0 {
		topics := make([]string, 0, len(active))
		for _, t := range active {
			topics = append(topics, fmt.Sprintf("%s (%s)", t.Topic, t.Status))
		}
		fields = append(fields, types.SummaryField{
			Label: "Open threads",
			Value: strings.Join(topics, ", "),
		})
	}
	if s.Profile.Risk.ChurnRisk >= 0.6 {
		fields = append(fields, types.SummaryField{
			Label: "Churn risk",
			Value: fmt.Sprintf("%.1f", s.Profile.Risk.ChurnRisk),
		})
	}
	if s.Profile.NeedsReview {
		fields = append(fields, types.SummaryField{Label: "Identity", Value: "needs review"})
	}
	return fields
}

// renderPromptBlock produces a structured plain-text block for prompt
// assembly: profile header, open threads, then the ranked history.
func renderPromptBlock(s *types.ContextSummary) string {
	var b strings.Builder

	b.WriteString("## Customer\n")
	fmt.Fprintf(&b, "Name: %s\n", displayName(s.Profile))
	if s.Degraded {
		b.WriteString("History: unavailable (store unreachable)\n")
	} else {
		fmt.Fprintf(&b, "Interactions: %d\n", s.Profile.FragmentCount)
		if s.Profile.Preferences.PreferredChannel != "" {
			fmt.Fprintf(&b, "Preferred channel: %s\n", s.Profile.Preferences.PreferredChannel)
		}
		if s.Profile.Preferences.CommunicationStyle != "" {
			fmt.Fprintf(&b, "Style: %s\n", s.Profile.Preferences.CommunicationStyle)
		}
	}

	b.WriteString("\n## Current message\n")
	fmt.Fprintf(&b, "Topic: %s | Mood: %s | Urgency: %s | Tone: %s\n",
		s.Signals.Topic, s.Signals.Mood, s.Signals.Urgency, s.Signals.SuggestedTone)

	if len(s.Threads) > 0 {
		b.WriteString("\n## Threads\n")
		for _, t := range s.Threads {
			fmt.Fprintf(&b, "- %s [%s] %d messages, last %s\n",
				t.Topic, t.Status, t.Size(), t.LastActivity.Format("2006-01-02"))
		}
	}

	if len(s.Items) > 0 {
		b.WriteString("\n## Relevant history\n")
		for _, item := range s.Items {
			f := item.Fragment
			fmt.Fprintf(&b, "- [%s %s %s] %s\n",
				f.Timestamp.Format(time.DateOnly), f.Channel, f.Direction, truncate(f.Text, 160))
		}
	}

	return b.String()
}

func displayName(p *types.CustomerProfile) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.CustomerID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
