package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stablePool/internal/aggregate"
	"stablePool/internal/chain"
	"stablePool/internal/config"
	"stablePool/internal/dex"
	"stablePool/internal/storage"
	"stablePool/internal/storage/postgres"
)

func newAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate pool events into window metrics",
		RunE:  runAggregate,
	}
	addRPCFlags(cmd)
	cmd.Flags().String("in", "", "input pool events JSONL")
	cmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	cmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	cmd.Flags().String("state-name", "aggregate", "progress key in the indexer_state table")
	cmd.Flags().String("state", "", "pool snapshot whose token decimals are used for display amounts")
	cmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	addLogFlag(cmd)
	return cmd
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadAggregate(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	windowSeconds := uint64(cfg.Window.Seconds())

	ctx, stop := signalContext()
	defer stop()

	static := make(map[common.Address]uint8)
	if cfg.PoolState != "" {
		snapshot, err := storage.LoadSnapshot(cfg.PoolState)
		if err != nil {
			return err
		}
		for _, token := range snapshot.Tokens {
			static[common.HexToAddress(strings.TrimSpace(token.Address))] = token.Decimals
		}
	}
	var caller dex.ContractCaller
	if cfg.RPC.URL != "" {
		client, err := chain.Dial(ctx, cfg.RPC.URL, chain.Options{
			MaxRetries:   cfg.RPC.MaxRetries,
			RetryBackoff: cfg.RPC.RetryBackoff,
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer client.Close()
		caller = client
	}
	tokenCache, err := dex.NewTokenMetaCache(0)
	if err != nil {
		return err
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	var stateStore aggregate.StateStore
	if cfg.StateFile != "" {
		stateStore = &aggregate.FileStateStore{Path: cfg.StateFile}
	} else {
		stateStore = &aggregate.DBStateStore{Store: store, Name: fmt.Sprintf("%s:%d", cfg.StateName, windowSeconds)}
	}

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: cfg.RecomputeFrom,
		StateStore:    stateStore,
	}, store, aggregate.NewDecimalsResolver(static, caller, tokenCache), logger)

	logger.Info("aggregate start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", cfg.RecomputeFrom),
		zap.Int("known_decimals", len(static)),
	)

	_, err = agg.Run(ctx, cfg.Input)
	return err
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
