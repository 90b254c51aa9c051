package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/refundmatch/internal/feedback"
	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/fyrsmithlabs/refundmatch/internal/keywords"
)

const maxIngestKeywords = 10

func init() {
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.json>",
	Short: "Load vendor and pattern history from JSON",
	Long: `Upsert vendor and pattern records from a JSON document:

  {
    "vendors":  [{"vendor_name": "Crown Castle", "historical_sample_count": 42, ...}],
    "patterns": [{"description": "tower antenna lease", "success_rate": 0.9, ...}]
  }

Vendor names are normalized and their keywords computed when missing.
Patterns may give "keywords" or a "description" to derive them from; a
pattern without an id gets a random one.

Examples:
  refundctl ingest history.json
  cat history.json | refundctl ingest -`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

// ingestDocument is the ingest file format.
type ingestDocument struct {
	Vendors  []history.VendorRecord `json:"vendors"`
	Patterns []ingestPattern        `json:"patterns"`
}

// ingestPattern allows deriving keywords from a free-text description.
type ingestPattern struct {
	history.PatternRecord
	Description string `json:"description,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	doc, err := readIngestDocument(cmd, args[0])
	if err != nil {
		return err
	}
	if err := prepareIngest(doc, time.Now().UTC(), uuid.NewString); err != nil {
		return err
	}

	ctx := cmd.Context()
	reg, _, _, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	store := reg.Store()
	for _, v := range doc.Vendors {
		if err := store.UpsertVendor(ctx, v); err != nil {
			return fmt.Errorf("storing vendor %s: %w", v.VendorName, err)
		}
	}
	for _, p := range doc.Patterns {
		if err := store.UpsertPattern(ctx, p.PatternRecord); err != nil {
			return fmt.Errorf("storing pattern %s: %w", p.ID, err)
		}
	}

	out := cmd.OutOrStdout()
	if outputJSONFlag {
		return outputJSON(out, map[string]int{
			"vendors":  len(doc.Vendors),
			"patterns": len(doc.Patterns),
		})
	}
	fmt.Fprintln(out, goodStyle.Render(fmt.Sprintf("Ingested %d vendor(s) and %d pattern(s)", len(doc.Vendors), len(doc.Patterns))))
	return nil
}

func readIngestDocument(cmd *cobra.Command, path string) (*ingestDocument, error) {
	var doc ingestDocument
	if path == "-" {
		if err := json.NewDecoder(cmd.InOrStdin()).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding stdin: %w", err)
		}
		return &doc, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &doc, nil
}

// prepareIngest normalizes and validates every record in place.
func prepareIngest(doc *ingestDocument, now time.Time, newID func() string) error {
	for i := range doc.Vendors {
		v := &doc.Vendors[i]
		v.VendorName = history.NormalizeVendorName(v.VendorName)
		v.VendorKeywords = normalizeKeywords(v.VendorKeywords, keywords.ProfileVendor)
		if len(v.VendorKeywords) == 0 {
			v.VendorKeywords = keywords.ExtractSlice(v.VendorName, keywords.ProfileVendor)
		}
		v.DescriptionKeywords = normalizeKeywords(v.DescriptionKeywords, keywords.ProfileDescription)
		v.DescriptionKeywordCounts = normalizeCounts(v.DescriptionKeywordCounts)
		if len(v.DescriptionKeywords) == 0 && len(v.DescriptionKeywordCounts) > 0 {
			v.DescriptionKeywords = feedback.TopKeywords(v.DescriptionKeywordCounts, maxIngestKeywords)
		}
		if v.TypicalBasis == "" && len(v.BasisCounts) > 0 {
			v.TypicalBasis = history.MostCommonBasis(v.BasisCounts)
		}
		if v.UpdatedAt.IsZero() {
			v.UpdatedAt = now
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("vendor %d: %w", i, err)
		}
	}

	for i := range doc.Patterns {
		p := &doc.Patterns[i]
		p.Keywords = normalizeKeywords(p.Keywords, keywords.ProfileDescription)
		if len(p.Keywords) == 0 && p.Description != "" {
			p.Keywords = keywords.ExtractSlice(p.Description, keywords.ProfileDescription)
		}
		if p.ID == "" {
			p.ID = newID()
		}
		if p.TypicalBasis == "" && len(p.BasisCounts) > 0 {
			p.TypicalBasis = history.MostCommonBasis(p.BasisCounts)
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("pattern %d: %w", i, err)
		}
	}
	return nil
}

// normalizeKeywords runs supplied keywords through the same extraction used
// at match time, so stored and queried keywords compare equal.
func normalizeKeywords(kws []string, profile keywords.Profile) []string {
	if len(kws) == 0 {
		return nil
	}
	return keywords.ExtractSlice(strings.Join(kws, " "), profile)
}

func normalizeCounts(counts map[string]int) map[string]int {
	if len(counts) == 0 {
		return counts
	}
	out := make(map[string]int, len(counts))
	for k, n := range counts {
		for _, tok := range keywords.Extract(k, keywords.ProfileDescription).Sorted() {
			out[tok] += n
		}
	}
	return out
}
