package main

import (
	"fmt"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/refundmatch/internal/feedback"
	"github.com/fyrsmithlabs/refundmatch/internal/matcher"
)

var (
	corrVendor      string
	corrDescription string
	corrApproved    bool
	corrDenied      bool
	corrBasis       string
	corrReviewer    string
)

func init() {
	rootCmd.AddCommand(correctCmd)
	correctCmd.Flags().StringVar(&corrVendor, "vendor", "", "Vendor name (required)")
	correctCmd.Flags().StringVar(&corrDescription, "description", "", "Product description")
	correctCmd.Flags().BoolVar(&corrApproved, "approved", false, "Refund was approved")
	correctCmd.Flags().BoolVar(&corrDenied, "denied", false, "Refund was denied")
	correctCmd.Flags().StringVar(&corrBasis, "basis", "", "Refund basis cited on approval")
	correctCmd.Flags().StringVar(&corrReviewer, "reviewer", "", "Reviewer (defaults to the current user)")
	_ = correctCmd.MarkFlagRequired("vendor")
	correctCmd.MarkFlagsMutuallyExclusive("approved", "denied")
	correctCmd.MarkFlagsOneRequired("approved", "denied")
}

var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "Record a reviewer decision into history",
	Long: `Fold a reviewer's final decision on a transaction into vendor and
pattern history.

Examples:
  refundctl correct --vendor "Crown Castle" --description "tower antenna lease" \
    --approved --basis "MPU"

  refundctl correct --vendor "Office Depot" --description "office chairs" --denied`,
	RunE: runCorrect,
}

func runCorrect(cmd *cobra.Command, args []string) error {
	reviewer := corrReviewer
	if reviewer == "" {
		if u, err := user.Current(); err == nil {
			reviewer = u.Username
		}
	}
	c := feedback.Correction{
		Vendor:      corrVendor,
		Description: corrDescription,
		Approved:    corrApproved && !corrDenied,
		RefundBasis: corrBasis,
		Reviewer:    reviewer,
		ReviewedAt:  time.Now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	reg, _, _, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	outcome, err := reg.Learner().Apply(ctx, c)
	if err != nil {
		return fmt.Errorf("applying correction: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSONFlag {
		return outputJSON(out, outcome)
	}
	v := outcome.Vendor
	fmt.Fprintln(out, goodStyle.Render("Correction applied"))
	field(out, "Vendor", fmt.Sprintf("%s (%d cases, %s)", v.VendorName, v.SampleCount, matcher.Percent(v.SuccessRate)))
	if p := outcome.Pattern; p != nil {
		state := "updated"
		if outcome.NewPattern {
			state = "created"
		}
		field(out, "Pattern", fmt.Sprintf("%s %s (%d cases, %s)", p.ID, state, p.SampleCount, matcher.Percent(p.SuccessRate)))
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render("Description too sparse for pattern history"))
	}
	return nil
}
