package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"braid/internal/config"
	"braid/internal/exp"
	"braid/internal/logging"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "braid",
	Short: "braid - stash-backed experiment runner",
	Long: `braid stages experiment snapshots in a stash-backed ledger and runs
them in isolated workspaces, publishing results as refs in the repository
itself.

A staged experiment captures the workspace (or a chosen revision) plus any
parameter overrides without touching the current checkout. Batches run with
bounded parallelism; results land under refs/braid/ and the staged entries
are pruned.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			workspace = wd
		}

		config := zap.NewProductionConfig()
		config.Encoding = "console"
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := logging.Initialize(workspace); err != nil {
			return err
		}
		if verbose {
			logging.SetConsole(logger)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Operation timeout (0 = none)")

	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(nameCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cmdContext returns the context commands run under, honoring --timeout.
func cmdContext() (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(context.Background(), timeout)
	}
	return context.WithCancel(context.Background())
}

// openExperiments loads workspace configuration and opens the repository.
func openExperiments(ctx context.Context) (*exp.Experiments, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	return exp.Open(ctx, workspace, cfg)
}
