package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"stablePool/internal/chain"
	"stablePool/internal/config"
	"stablePool/internal/indexer"
	"stablePool/internal/storage"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch pool event logs from a node",
		RunE:  runFetch,
	}
	addRPCFlags(cmd)
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().StringSlice("address", nil, "pool addresses (comma-separated)")
	cmd.Flags().StringSlice("topic0", nil, "event names or topic0 hashes (comma-separated), default every pool event")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	cmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	cmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	addLogFlag(cmd)
	return cmd
}

func runFetch(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := config.LoadFetch(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	addresses, err := indexer.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("address list is required")
	}
	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	client, err := chain.Dial(ctx, cfg.RPC.URL, chain.Options{
		MaxRetries:   cfg.RPC.MaxRetries,
		RetryBackoff: cfg.RPC.RetryBackoff,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	out := storage.NewJsonlStorage(cfg.Out, true)
	defer func() { err = multierr.Append(err, out.Close()) }()

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Addresses:         addresses,
		Topic0:            topic0,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
	}, client, out, logger)

	logger.Info("fetch start",
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("addresses", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	started := time.Now()
	written, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("fetch complete", zap.Int("logs", written), zap.Duration("elapsed", time.Since(started)))
	return nil
}
