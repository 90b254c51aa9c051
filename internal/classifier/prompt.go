package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/refundmatch/internal/legal"
	"github.com/fyrsmithlabs/refundmatch/internal/precedent"
)

var strengthGuidance = map[precedent.Strength]string{
	precedent.StrengthStrong:   "Both vendor and product precedent show high refund success. Confidence may be very high if the law agrees.",
	precedent.StrengthModerate: "Partial precedent exists. Give it moderate weight.",
	precedent.StrengthNone:     "No precedent exists. Rely on the legal text alone and keep confidence moderate.",
}

// BuildPrompt renders the classification request.
func BuildPrompt(tx Transaction, passages []legal.Passage, p *precedent.Precedent) string {
	var b strings.Builder

	b.WriteString("You review Washington State use tax paid on vendor invoices and decide whether a refund is available.\n\n")

	b.WriteString("TRANSACTION\n")
	fmt.Fprintf(&b, "Vendor: %s\n", tx.Vendor)
	fmt.Fprintf(&b, "Description: %s\n", tx.Description)
	if tx.Amount != 0 {
		fmt.Fprintf(&b, "Amount: %.2f\n", tx.Amount)
	}
	if tx.InvoiceNumber != "" {
		fmt.Fprintf(&b, "Invoice: %s\n", tx.InvoiceNumber)
	}

	b.WriteString("\nLEGAL CONTEXT\n")
	if len(passages) == 0 {
		b.WriteString("(none retrieved)\n")
	}
	for _, ps := range passages {
		fmt.Fprintf(&b, "[%s] %s\n", ps.Citation, ps.Text)
	}

	b.WriteString("\nHISTORICAL PRECEDENT\n")
	b.WriteString(p.Summary())
	b.WriteString("\n")
	b.WriteString(strengthGuidance[p.Strength()])
	b.WriteString("\n")

	b.WriteString("\nRespond with only a JSON object: ")
	b.WriteString(`{"eligible": bool, "refund_basis": string, "confidence": number 0-1, "reasoning": string, "citations": [string]}`)
	b.WriteString("\n")

	return b.String()
}

// ParseVerdict extracts the JSON verdict from a model response, tolerating
// surrounding prose or code fences. Confidence is clamped to [0,1].
func ParseVerdict(text string) (*Verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidVerdict)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}
	if v.Eligible && strings.TrimSpace(v.RefundBasis) == "" {
		return nil, fmt.Errorf("%w: eligible verdict without refund basis", ErrInvalidVerdict)
	}

	switch {
	case v.Confidence < 0:
		v.Confidence = 0
	case v.Confidence > 1:
		v.Confidence = 1
	}
	return &v, nil
}
