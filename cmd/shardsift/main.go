package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gophersatwork/shardsift"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "shardsift",
		Short: "Ingest credential dumps into a prefix-sharded store",
		Long: `shardsift walks INPUT_DIR for .txt credential dumps, hashes emails under
EMAIL_HASH_KEY and appends each record to its prefix shard under SHARD_DIR.

Interrupted runs resume where they left off. Create a STOP_INGESTION file in
the working directory, or send SIGINT/SIGTERM, to stop gracefully.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "optional YAML config file (environment wins)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "shardsift: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := shardsift.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ing, err := shardsift.New(cfg, shardsift.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return ing.Run(ctx)
}

// buildLogger maps the configured level onto a production zap logger.
func buildLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	switch level {
	case "DEBUG":
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "ERROR":
		config.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return config.Build()
}
