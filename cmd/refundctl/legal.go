package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/refundmatch/internal/config"
	"github.com/fyrsmithlabs/refundmatch/internal/legal"
	"github.com/fyrsmithlabs/refundmatch/internal/services"
)

var (
	legalTopK int
)

func init() {
	rootCmd.AddCommand(legalCmd)
	legalCmd.AddCommand(legalIndexCmd)
	legalCmd.AddCommand(legalSearchCmd)
	legalSearchCmd.Flags().IntVarP(&legalTopK, "k", "k", 0, "Number of passages (0 uses config)")
}

var legalCmd = &cobra.Command{
	Use:   "legal",
	Short: "Manage the statute passage corpus",
	Long: `Index and search the WAC/RCW passages retrieved for the classifier.
These commands work whether or not legal.enabled is set, so the corpus can
be built before the pipeline uses it.

Examples:
  refundctl legal index passages.json
  refundctl legal search "manufacturing machinery exemption" -k 3`,
}

var legalIndexCmd = &cobra.Command{
	Use:   "index <passages.json>",
	Short: "Index passages from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE:  runLegalIndex,
}

var legalSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed passages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLegalSearch,
}

func runLegalIndex(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	passages, err := legal.ReadPassages(f)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	corpus, err := openCorpus(cfg)
	if err != nil {
		return err
	}
	if err := corpus.Index(cmd.Context(), passages); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSONFlag {
		return outputJSON(out, map[string]int{"indexed": len(passages), "total": corpus.Count()})
	}
	fmt.Fprintln(out, goodStyle.Render(fmt.Sprintf("Indexed %d passage(s), %d total", len(passages), corpus.Count())))
	return nil
}

func runLegalSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	k := legalTopK
	if k == 0 {
		k = cfg.Legal.TopK
	}

	corpus, err := openCorpus(cfg)
	if err != nil {
		return err
	}
	passages, err := corpus.Search(cmd.Context(), strings.Join(args, " "), k)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSONFlag {
		return outputJSON(out, passages)
	}
	if len(passages) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No passages indexed"))
		return nil
	}
	for i, p := range passages {
		fmt.Fprintf(out, "%s %s\n", titleStyle.Render(fmt.Sprintf("%d. %s", i+1, p.Citation)), mutedStyle.Render(fmt.Sprintf("(%.3f)", p.Score)))
		if p.Title != "" {
			fmt.Fprintln(out, labelStyle.Render(p.Title))
		}
		fmt.Fprintln(out, truncate(p.Text, 400))
		fmt.Fprintln(out)
	}
	return nil
}

func openCorpus(cfg *config.Config) (*legal.Corpus, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return services.OpenCorpus(cfg.Legal, logger.Underlying())
}
