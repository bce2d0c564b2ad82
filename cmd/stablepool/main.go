package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "stablepool",
		Short:        "Stableswap pool engine, indexer and analytics",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(
		newSimulateCmd(),
		newQuoteCmd(),
		newSnapshotCmd(),
		newFetchCmd(),
		newDecodeCmd(),
		newAggregateCmd(),
	)
	return root
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("state", "", "pool snapshot JSON; overrides the parameter flags")
	cmd.Flags().String("pool", "", "pool address used in events")
	cmd.Flags().Uint64("chain-id", 0, "chain id used in events")
	cmd.Flags().StringSlice("tokens", nil, "pooled tokens as address:decimals[:symbol] (comma-separated)")
	cmd.Flags().Uint64("a", 200, "amplification coefficient")
	cmd.Flags().Uint64("swap-fee", 4_000_000, "swap fee, scaled by 1e10")
	cmd.Flags().Uint64("admin-fee", 0, "admin share of fees, scaled by 1e10")
	cmd.Flags().Bool("paused", false, "start paused")
}

func addRPCFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
}

func addLogFlag(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func configFile(cmd *cobra.Command) string {
	cfgFile, _ := cmd.Flags().GetString("config")
	return cfgFile
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
