package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"stablePool/internal/config"
	"stablePool/internal/metrics"
	"stablePool/internal/sim"
	"stablePool/internal/storage"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a JSONL operation script against a pool",
		RunE:  runSimulate,
	}
	addPoolFlags(cmd)
	cmd.Flags().String("ops", "", "input operations JSONL")
	cmd.Flags().String("events", "./data/events.jsonl", "output pool events JSONL")
	cmd.Flags().String("logs", "", "optional output of events encoded as raw logs JSONL")
	cmd.Flags().String("errors", "./data/op_errors.jsonl", "rejected operations JSONL")
	cmd.Flags().String("state-out", "", "write the final pool snapshot here")
	cmd.Flags().String("metrics-out", "", "write Prometheus text metrics here")
	addLogFlag(cmd)
	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := config.LoadSimulate(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Ops == "" {
		return fmt.Errorf("ops path is required")
	}
	if cfg.Events == "" {
		return fmt.Errorf("events path is required")
	}

	snapshot, err := cfg.Pool.Snapshot()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	events := storage.NewJsonlStorage(cfg.Events, false)
	defer func() { err = multierr.Append(err, events.Close()) }()
	errWriter := storage.NewJsonlStorage(cfg.Errors, false)
	defer func() { err = multierr.Append(err, errWriter.Close()) }()

	sinks := storage.MultiSink{events}
	if cfg.Logs != "" {
		logs := storage.NewJsonlStorage(cfg.Logs, false)
		defer func() { err = multierr.Append(err, logs.Close()) }()
		sinks = append(sinks, storage.LogSink{Out: logs})
	}

	m := metrics.New()
	simulator, err := sim.New(snapshot, m.Sink(sinks), m, logger)
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.String("pool", snapshot.Address),
		zap.Int("tokens", len(snapshot.Tokens)),
		zap.String("ops", cfg.Ops),
		zap.String("events", cfg.Events),
		zap.String("logs", cfg.Logs),
		zap.String("errors", cfg.Errors),
	)

	stats, err := simulator.Run(ctx, cfg.Ops, errWriter)
	if err != nil {
		return err
	}

	final := simulator.Snapshot()
	if cfg.StateOut != "" {
		if err := storage.SaveSnapshot(cfg.StateOut, final); err != nil {
			return err
		}
	}
	if cfg.MetricsOut != "" {
		if err := m.WriteTextfile(cfg.MetricsOut); err != nil {
			return err
		}
	}

	logger.Info("simulate complete",
		zap.Int("total", stats.Total),
		zap.Int("applied", stats.Applied),
		zap.Int("rejected", stats.Rejected),
		zap.Int("failed", stats.Failed),
		zap.Uint64("sequence", final.Sequence),
		zap.String("virtual_price", final.VirtualPrice),
	)
	return nil
}
