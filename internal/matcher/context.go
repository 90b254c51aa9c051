package matcher

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var counts = message.NewPrinter(language.English)

// VendorContext renders a vendor match as one sentence for the classifier
// prompt. Returns nil for a nil match.
func VendorContext(m *VendorMatch) *string {
	if m == nil {
		return nil
	}
	s := fmt.Sprintf("Historical precedent (%s match): Vendor '%s' has %d historical cases with %s refund success rate. Typical basis: %s",
		m.Type, m.Record.VendorName, m.Record.SampleCount, Percent(m.Record.SuccessRate), m.Record.TypicalBasis)
	if m.Type == MatchFuzzy {
		s += fmt.Sprintf(" (Matched on keywords: %s)", strings.Join(m.OverlapKeywords, ", "))
	}
	return &s
}

// PatternContext renders a pattern match as one sentence for the classifier
// prompt. Returns nil for a nil match.
func PatternContext(m *PatternMatch) *string {
	if m == nil {
		return nil
	}
	s := fmt.Sprintf("Matched historical pattern: %s cases with %s success rate. Typical basis: %s. (Matched on: %s)",
		counts.Sprintf("%d", m.Record.SampleCount), Percent(m.Record.SuccessRate), m.Record.TypicalBasis,
		strings.Join(m.OverlapKeywords, ", "))
	return &s
}

// Percent formats a rate in [0,1] as a whole percentage, e.g. 0.92 -> "92%".
func Percent(rate float64) string {
	return fmt.Sprintf("%.0f%%", rate*100)
}
