package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"stablePool/internal/model"
)

// LogSource is the chain access the runner needs. *chain.Client satisfies it.
type LogSource interface {
	ChainID(ctx context.Context) (uint64, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// LogWriter receives fetched log batches.
type LogWriter interface {
	PutLogBatch(logs []model.LogRecord) error
}

// RunConfig holds runtime settings for a fetch.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Addresses         []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
}

// Runner pulls pool logs block range by block range and hands them to a writer.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	writer     LogWriter
	logger     *zap.Logger
	filter     logFilter
	seen       map[string]struct{}
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner. An empty Topic0 filter is left to the caller;
// cmd fills it with the pool event topics.
func NewRunner(cfg RunConfig, source LogSource, writer LogWriter, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		writer:     writer,
		logger:     logger,
		filter:     newLogFilter(cfg.Addresses, cfg.Topic0),
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run fetches every configured range and returns the number of logs written.
func (r *Runner) Run(ctx context.Context) (int, error) {
	if r.source == nil {
		return 0, fmt.Errorf("log source is nil")
	}
	if r.writer == nil {
		return 0, fmt.Errorf("log writer is nil")
	}
	if r.cfg.BatchSize == 0 {
		return 0, fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return 0, fmt.Errorf("at least one pool address is required")
	}

	chainID, err := r.source.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}

	from, to, err := r.bounds(ctx)
	if err != nil {
		return 0, err
	}
	if from > to {
		r.logger.Info("nothing to fetch", zap.Uint64("from", from), zap.Uint64("to", to))
		return 0, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		logs, err := r.source.FilterLogs(ctx, blockRange.From, blockRange.To, r.cfg.Addresses, r.cfg.Topic0)
		if err != nil {
			return total, fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		records := make([]model.LogRecord, 0, len(logs))
		skipped := 0
		for _, log := range logs {
			if reason := r.filter.skipReason(log); reason != "" {
				skipped++
				r.logger.Debug("skip log", zap.String("reason", reason), zap.String("address", log.Address.Hex()), zap.Uint64("block", log.BlockNumber))
				continue
			}
			if r.isDuplicate(log) {
				continue
			}
			ts, err := r.source.BlockTimestamp(ctx, log.BlockNumber)
			if err != nil {
				return total, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			records = append(records, buildLogRecord(chainID, log, ts))
		}

		if err := r.writer.PutLogBatch(records); err != nil {
			return total, fmt.Errorf("store logs: %w", err)
		}
		total += len(records)

		if err := r.checkpoint.Save(blockRange.To, time.Now()); err != nil {
			return total, err
		}

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Int("skipped", skipped), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return total, nil
}

// bounds resolves the effective range, resuming after the checkpoint and
// defaulting the end to the chain head.
func (r *Runner) bounds(ctx context.Context) (uint64, uint64, error) {
	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.source.LatestBlockNumber(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return 0, 0, err
	}
	if ok && cp.LastProcessedBlock >= from {
		from = cp.LastProcessedBlock + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}
	return from, to, nil
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
