package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/refundmatch/internal/matcher"
)

var (
	matchMinOverlap int
)

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.AddCommand(matchVendorCmd)
	matchCmd.AddCommand(matchPatternCmd)

	matchCmd.PersistentFlags().IntVar(&matchMinOverlap, "min-overlap", 0, "Minimum keyword overlap for a fuzzy match (0 uses config)")
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Run a single matcher",
	Long: `Run the vendor or the pattern matcher on its own.

Examples:
  # Exact or fuzzy vendor lookup
  refundctl match vendor "Crown Castle International Corp"

  # Product description pattern lookup
  refundctl match pattern "fiber optic cable installation" --min-overlap 3`,
}

var matchVendorCmd = &cobra.Command{
	Use:   "vendor <name>",
	Short: "Match a vendor name against vendor history",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMatchVendor,
}

var matchPatternCmd = &cobra.Command{
	Use:   "pattern <description>",
	Short: "Match a product description against pattern history",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMatchPattern,
}

func runMatchVendor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, cfg, _, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	minOverlap := matchMinOverlap
	if minOverlap == 0 {
		minOverlap = cfg.Matcher.VendorMinOverlap
	}
	m := reg.Vendors().Match(ctx, strings.Join(args, " "), minOverlap)

	out := cmd.OutOrStdout()
	if outputJSONFlag {
		return outputJSON(out, m)
	}
	if m == nil {
		fmt.Fprintln(out, mutedStyle.Render("No vendor history matched"))
		return nil
	}
	printMatch(out, m.Type, m.Score, m.OverlapKeywords)
	field(out, "Vendor", m.Record.VendorName)
	field(out, "Cases", fmt.Sprintf("%d", m.Record.SampleCount))
	field(out, "Success rate", matcher.Percent(m.Record.SuccessRate))
	if m.Record.TypicalBasis != "" {
		field(out, "Typical basis", m.Record.TypicalBasis)
	}
	return nil
}

func runMatchPattern(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, cfg, _, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	minOverlap := matchMinOverlap
	if minOverlap == 0 {
		minOverlap = cfg.Matcher.PatternMinOverlap
	}
	m := reg.Patterns().Match(ctx, strings.Join(args, " "), minOverlap)

	out := cmd.OutOrStdout()
	if outputJSONFlag {
		return outputJSON(out, m)
	}
	if m == nil {
		fmt.Fprintln(out, mutedStyle.Render("No pattern history matched"))
		return nil
	}
	printMatch(out, m.Type, m.Score, m.OverlapKeywords)
	field(out, "Pattern", m.Record.ID)
	field(out, "Keywords", strings.Join(m.Record.Keywords, ", "))
	field(out, "Cases", fmt.Sprintf("%d", m.Record.SampleCount))
	field(out, "Success rate", matcher.Percent(m.Record.SuccessRate))
	if m.Record.TypicalBasis != "" {
		field(out, "Typical basis", m.Record.TypicalBasis)
	}
	return nil
}

func printMatch(w io.Writer, t matcher.MatchType, score int, overlap []string) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s match", t)))
	field(w, "Score", fmt.Sprintf("%d", score))
	if len(overlap) > 0 {
		field(w, "Overlap", strings.Join(overlap, ", "))
	}
}
