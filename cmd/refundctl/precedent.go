package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/refundmatch/internal/precedent"
)

var (
	precVendor      string
	precDescription string
)

func init() {
	rootCmd.AddCommand(precedentCmd)
	precedentCmd.Flags().StringVar(&precVendor, "vendor", "", "Vendor name")
	precedentCmd.Flags().StringVar(&precDescription, "description", "", "Product description")
}

var precedentCmd = &cobra.Command{
	Use:   "precedent",
	Short: "Build the historical precedent for a transaction",
	Long: `Run both matchers for a vendor and description and print the combined
precedent, its strength and the report columns.

Examples:
  refundctl precedent --vendor "American Tower Co" --description "tower antenna lease"
  refundctl precedent --description "office chairs" --json`,
	RunE: runPrecedent,
}

// precedentOutput is the --json shape of the precedent command.
type precedentOutput struct {
	Precedent *precedent.Precedent   `json:"precedent"`
	Strength  precedent.Strength     `json:"strength"`
	Summary   string                 `json:"summary"`
	Report    precedent.ReportFields `json:"report"`
}

func runPrecedent(cmd *cobra.Command, args []string) error {
	if precVendor == "" && precDescription == "" {
		return fmt.Errorf("--vendor or --description is required")
	}

	ctx := cmd.Context()
	reg, _, _, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	p := reg.Precedent().Build(ctx, precVendor, precDescription)
	out := cmd.OutOrStdout()
	if outputJSONFlag {
		return outputJSON(out, precedentOutput{
			Precedent: p,
			Strength:  p.Strength(),
			Summary:   p.Summary(),
			Report:    p.ReportFields(),
		})
	}

	strength := p.Strength()
	style := mutedStyle
	switch strength {
	case precedent.StrengthStrong:
		style = goodStyle
	case precedent.StrengthModerate:
		style = warnStyle
	}
	fmt.Fprintln(out, titleStyle.Render("Precedent"))
	field(out, "Strength", style.Render(string(strength)))
	f := p.ReportFields()
	field(out, "Vendor match", fmt.Sprintf("%s (%d cases, %s)", f.VendorMatchType, f.VendorCaseCount, orDash(f.VendorSuccessRate)))
	field(out, "Pattern match", fmt.Sprintf("%s (%s)", f.PatternMatchType, orDash(f.PatternSuccessRate)))
	fmt.Fprintln(out)
	fmt.Fprintln(out, p.Summary())
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
