package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/refundmatch/internal/pipeline"
)

func init() {
	rootCmd.AddCommand(batchCmd)
}

var batchCmd = &cobra.Command{
	Use:   "batch <input.csv> <output.csv>",
	Short: "Run a CSV of transactions through the pipeline",
	Long: `Read transactions (vendor, description, amount, invoice_number), attach
precedent to each row, retrieve legal passages and classify when those are
enabled, and write one output row per input row.

Rows that fail keep their input columns and carry the error in the last
column; the batch itself only fails on unreadable input or output.

Examples:
  refundctl batch invoices.csv review.csv
  refundctl batch invoices.csv - > review.csv`,
	Args: cobra.ExactArgs(2),
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer in.Close()

	txs, err := pipeline.ReadTransactionsCSV(in)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	reg, _, _, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	results := reg.Runner().Run(ctx, txs)

	if args[1] == "-" {
		if err := pipeline.WriteResultsCSV(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		out, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", args[1], err)
		}
		if err := pipeline.WriteResultsCSV(out, results); err != nil {
			_ = out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", args[1], err)
		}
	}

	stats := pipeline.Summarize(results)
	if outputJSONFlag {
		return outputJSON(cmd.ErrOrStderr(), stats)
	}
	summary := fmt.Sprintf("%d row(s): %d failed, %d novel, %d eligible",
		stats.Total, stats.Failed, stats.Novel, stats.Eligible)
	style := goodStyle
	if stats.Failed > 0 {
		style = warnStyle
	}
	fmt.Fprintln(cmd.ErrOrStderr(), style.Render(summary))
	return nil
}
