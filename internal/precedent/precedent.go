// Package precedent merges independent vendor and pattern matches into the
// historical evidence handed to the eligibility classifier and the report
// exporter.
package precedent

import (
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/refundmatch/internal/matcher"
)

// NoHistoryMessage is shown when neither matcher found precedent, whatever
// the reason.
const NoHistoryMessage = "No historical data (novel vendor/product)"

// maxSummaryRunes bounds the summary written to a spreadsheet cell.
const maxSummaryRunes = 500

// strongRate is the success rate both matches must exceed for StrengthStrong.
const strongRate = 0.85

// Precedent is the historical evidence for one transaction. Any field may be
// nil; the two matches are never combined or discounted here.
type Precedent struct {
	VendorMatch    *matcher.VendorMatch  `json:"vendor_match"`
	PatternMatch   *matcher.PatternMatch `json:"pattern_match"`
	VendorContext  *string               `json:"vendor_context"`
	PatternContext *string               `json:"pattern_context"`
}

// IsNovel reports whether neither matcher found anything.
func (p *Precedent) IsNovel() bool {
	return p == nil || (p.VendorMatch == nil && p.PatternMatch == nil)
}

// Summary joins the available context sentences, or returns NoHistoryMessage.
func (p *Precedent) Summary() string {
	if p.IsNovel() {
		return NoHistoryMessage
	}
	parts := make([]string, 0, 2)
	if p.VendorContext != nil {
		parts = append(parts, *p.VendorContext)
	}
	if p.PatternContext != nil {
		parts = append(parts, *p.PatternContext)
	}
	return strings.Join(parts, " ")
}

// Strength buckets the evidence for the classifier's confidence policy.
type Strength string

const (
	// StrengthStrong: both matched, each above 85% success.
	StrengthStrong Strength = "strong"
	// StrengthModerate: at least one matched, not strong.
	StrengthModerate Strength = "moderate"
	// StrengthNone: no precedent; rely on legal analysis alone.
	StrengthNone Strength = "none"
)

// Strength reports the evidence bucket without altering either match.
func (p *Precedent) Strength() Strength {
	switch {
	case p.IsNovel():
		return StrengthNone
	case p.VendorMatch != nil && p.PatternMatch != nil &&
		p.VendorMatch.Record.SuccessRate > strongRate &&
		p.PatternMatch.Record.SuccessRate > strongRate:
		return StrengthStrong
	default:
		return StrengthModerate
	}
}

// ReportFields are the six precedent columns of the review export.
type ReportFields struct {
	VendorMatchType    string `json:"vendor_match_type"`
	VendorCaseCount    int    `json:"vendor_case_count"`
	VendorSuccessRate  string `json:"vendor_success_rate"`
	PatternMatchType   string `json:"pattern_match_type"`
	PatternSuccessRate string `json:"pattern_success_rate"`
	Summary            string `json:"precedent_summary"`
}

// ReportHeader names the ReportFields columns in Row order.
var ReportHeader = []string{
	"vendor_match_type",
	"vendor_case_count",
	"vendor_success_rate",
	"pattern_match_type",
	"pattern_success_rate",
	"precedent_summary",
}

// ReportFields flattens the precedent for export. Missing matches report
// match type "none" and empty rates.
func (p *Precedent) ReportFields() ReportFields {
	f := ReportFields{
		VendorMatchType:  matcher.MatchNone.String(),
		PatternMatchType: matcher.MatchNone.String(),
		Summary:          truncateRunes(p.Summary(), maxSummaryRunes),
	}
	if p == nil {
		return f
	}
	if v := p.VendorMatch; v != nil {
		f.VendorMatchType = v.Type.String()
		f.VendorCaseCount = v.Record.SampleCount
		f.VendorSuccessRate = matcher.Percent(v.Record.SuccessRate)
	}
	if pm := p.PatternMatch; pm != nil {
		f.PatternMatchType = pm.Type.String()
		f.PatternSuccessRate = matcher.Percent(pm.Record.SuccessRate)
	}
	return f
}

// Row returns the fields as strings in ReportHeader order.
func (f ReportFields) Row() []string {
	return []string{
		f.VendorMatchType,
		strconv.Itoa(f.VendorCaseCount),
		f.VendorSuccessRate,
		f.PatternMatchType,
		f.PatternSuccessRate,
		f.Summary,
	}
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
