// Package main implements refundctl, the operator CLI for refundmatch: match
// lookups, history ingestion, reviewer corrections, batch runs and the legal
// passage corpus.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/refundmatch/internal/config"
	"github.com/fyrsmithlabs/refundmatch/internal/logging"
	"github.com/fyrsmithlabs/refundmatch/internal/services"
)

var (
	// configPath overrides ~/.config/refundmatch/config.yaml
	configPath string
	// outputJSONFlag switches every command to JSON output
	outputJSONFlag bool
	// verbose enables debug logging to stderr
	verbose bool

	version = "dev"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "refundctl",
	Short: "Operate the refundmatch precedent engine",
	Long: `refundctl looks up historical refund precedent for use-tax transactions,
loads and corrects the history it is built from, and runs CSV batches through
the eligibility pipeline.

Commands that touch history open the configured store directly; only
"health" talks to a running refundd.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/refundmatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&outputJSONFlag, "json", false, "Output results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
}

// loadConfig loads configuration honoring --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger logs to stderr at warn, or debug with --verbose.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logCfg.Format = "console"
	logCfg.Output = "stderr"
	logCfg.Caller = false
	logCfg.Level = zapcore.WarnLevel
	if verbose {
		logCfg.Level = zapcore.DebugLevel
	}
	return logging.NewLogger(logCfg)
}

// openRegistry loads config and wires the services. The caller closes it.
func openRegistry(ctx context.Context) (services.Registry, *config.Config, *logging.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	reg, err := services.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return reg, cfg, logger, nil
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// field renders one "label: value" line.
func field(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label+":"), value)
}

// truncate shortens s to maxLen runes, ending in "...".
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
