// Command copyforge runs the catalog copy-generation pipeline: fetching
// evidence, generating section decks through the two-tier model service,
// validating them against the guardrail rules and journaling the results
// with crash-safe checkpoints.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"copyforge/internal/config"
	"copyforge/internal/logging"
)

var (
	flagConfig  string
	flagWorkDir string
	flagVerbose bool
	flagQuiet   bool

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "copyforge",
		Short:         "Batch generator for structured catalog copy",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			if flagWorkDir != "" {
				cfg.WorkDir = flagWorkDir
			}
			if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
				return fmt.Errorf("create work dir: %w", err)
			}
			logger, err = logging.Setup(logging.Options{
				Dir:     cfg.WorkDir,
				Verbose: flagVerbose,
				Quiet:   flagQuiet,
			})
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "copyforge.yaml", "config file path")
	root.PersistentFlags().StringVar(&flagWorkDir, "work-dir", "", "override the work directory")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug console output")
	root.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "warnings and errors only")

	root.AddCommand(
		newRunCmd(),
		newProbeCmd(),
		newRecoverCmd(),
		newStatsCmd(),
		newUnlockCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
