package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/fyrsmithlabs/refundmatch/internal/matcher"
)

var (
	patMinRate    float64
	patMinSamples int
)

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.Flags().Float64Var(&patMinRate, "min-rate", -1, "Minimum success rate, 0-1 (default from config)")
	patternsCmd.Flags().IntVar(&patMinSamples, "min-samples", -1, "Minimum sample count (default from config)")
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List high-confidence description patterns",
	Long: `List patterns whose success rate and sample count reach the thresholds,
best first.

Examples:
  refundctl patterns
  refundctl patterns --min-rate 0.9 --min-samples 25`,
	RunE: runPatterns,
}

func runPatterns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, cfg, _, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	rate := cfg.Matcher.HighConfidenceRate
	if patMinRate >= 0 {
		if patMinRate > 1 {
			return fmt.Errorf("--min-rate must be between 0 and 1, got %v", patMinRate)
		}
		rate = patMinRate
	}
	samples := cfg.Matcher.HighConfidenceSamples
	if patMinSamples >= 0 {
		samples = patMinSamples
	}

	patterns, err := reg.Patterns().HighConfidencePatterns(ctx, rate, samples)
	if err != nil {
		return fmt.Errorf("listing patterns: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSONFlag {
		if patterns == nil {
			patterns = []history.PatternRecord{}
		}
		return outputJSON(out, patterns)
	}
	if len(patterns) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No patterns meet the thresholds"))
		return nil
	}

	fmt.Fprintln(out, patternTable(patterns).Render())
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d pattern(s) with success rate >= %s and >= %d samples",
		len(patterns), matcher.Percent(rate), samples)))
	return nil
}

func patternTable(patterns []history.PatternRecord) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "KEYWORDS", "SUCCESS", "SAMPLES", "BASIS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, p := range patterns {
		t.Row(
			truncate(p.ID, 12),
			truncate(strings.Join(p.Keywords, ", "), 40),
			matcher.Percent(p.SuccessRate),
			strconv.Itoa(p.SampleCount),
			p.TypicalBasis,
		)
	}
	return t
}
