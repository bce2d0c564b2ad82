package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stablePool/internal/model"
	"stablePool/internal/storage"
)

const (
	feeMethodVirtualPrice = "virtual_price_growth"
	feeMethodNone         = "unavailable"
)

// MetricsStore persists pools and window metrics. *postgres.Store satisfies it.
type MetricsStore interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// DecimalsSource resolves token decimals for display amounts.
type DecimalsSource interface {
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Stats summarises one run.
type Stats struct {
	Total   int
	Windows int
	Skipped int
	Failed  int
}

// Aggregator folds pool events into per-window metrics.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	decimals     DecimalsSource
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.Pool
}

func NewAggregator(cfg Config, store MetricsStore, decimals DecimalsSource, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:          cfg,
		store:        store,
		decimals:     decimals,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.Pool),
	}
}

// Run aggregates a pool events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) (Stats, error) {
	var stats Stats
	if a.store == nil {
		return stats, fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return stats, fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return stats, err
	}

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 16)
	maxTs := startTs

	err = storage.ReadJSONL(inputPath, func(line int, raw []byte) error {
		stats.Total++

		var record model.PoolEventRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			stats.Failed++
			a.logger.Warn("decode pool event", zap.Int("line", line), zap.Error(err))
			return nil
		}
		if record.Timestamp <= startTs {
			stats.Skipped++
			return nil
		}

		windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		key := poolKey(record.Pool)
		acc := a.accumulators[key]
		if acc != nil && acc.WindowStart != windowStart {
			metrics, pool := a.flushAccumulator(ctx, acc)
			batch = append(batch, metrics)
			if pool != nil {
				pools = append(pools, *pool)
			}
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[key] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			stats.Failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Pool), zap.String("event", record.EventName))
			return nil
		}
		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			stats.Windows += len(batch)
			batch = batch[:0]
			pools = pools[:0]
			return a.saveState(ctx)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	for _, acc := range a.accumulators {
		metrics, pool := a.flushAccumulator(ctx, acc)
		batch = append(batch, metrics)
		if pool != nil {
			pools = append(pools, *pool)
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if err := a.flushBatches(ctx, batch, pools); err != nil {
		return stats, err
	}
	stats.Windows += len(batch)

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return stats, err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", stats.Total),
		zap.Int("windows", stats.Windows),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState never records past the start of a window still open, so a rerun
// recomputes it in full.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs--
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if err := a.store.UpsertPools(ctx, pools); err != nil {
		return fmt.Errorf("upsert pools: %w", err)
	}
	if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
		return fmt.Errorf("upsert window metrics: %w", err)
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) (model.PoolWindowMetrics, *model.Pool) {
	metrics := model.PoolWindowMetrics{
		ChainID:           acc.ChainID,
		PoolAddress:       acc.PoolAddress,
		WindowSizeSecs:    int64(a.cfg.WindowSeconds),
		WindowStart:       time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:         time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:         acc.SwapCount,
		AddCount:          acc.AddCount,
		RemoveCount:       acc.RemoveCount,
		Volumes:           formatAll(acc.Volumes),
		Fees:              formatAll(acc.Fees),
		VolumesDisplay:    a.displayVolumes(ctx, acc),
		LPTotalSupply:     acc.LPTotalSupply,
		VirtualPriceOpen:  optional(acc.VirtualPriceOpen),
		VirtualPriceClose: optional(acc.VirtualPriceClose),
		FeeMethod:         feeMethodNone,
	}
	if growth, ok := computeGrowth(acc.VirtualPriceOpen, acc.VirtualPriceClose); ok {
		val := growth.StringFixed(ratioScale)
		metrics.VirtualPriceGrowth = &val
		metrics.APR = computeAPR(growth, a.cfg.WindowSeconds)
		metrics.FeeMethod = feeMethodVirtualPrice
	}
	return metrics, a.registerPool(acc)
}

// displayVolumes returns nil unless every token's decimals are known.
func (a *Aggregator) displayVolumes(ctx context.Context, acc *Accumulator) []string {
	if a.decimals == nil || len(acc.PoolMeta.Tokens) != len(acc.Volumes) {
		return nil
	}
	out := make([]string, len(acc.Volumes))
	for i, token := range acc.PoolMeta.Tokens {
		if !common.IsHexAddress(token) {
			return nil
		}
		decimals, err := a.decimals.TokenDecimals(ctx, common.HexToAddress(token))
		if err != nil {
			a.logger.Warn("token decimals", zap.String("token", token), zap.Error(err))
			return nil
		}
		out[i] = formatTokenAmount(acc.Volumes[i], decimals)
	}
	return out
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	if len(acc.PoolMeta.Tokens) == 0 {
		return nil
	}
	key := poolKey(acc.PoolAddress)
	pool := model.Pool{
		ChainID:        acc.ChainID,
		Address:        acc.PoolAddress,
		Tokens:         acc.PoolMeta.Tokens,
		A:              acc.PoolMeta.A,
		SwapFee:        acc.PoolMeta.SwapFee,
		AdminFee:       acc.PoolMeta.AdminFee,
		FirstSeenBlock: acc.FirstBlock,
	}
	if existing, ok := a.poolSeen[key]; ok && existing.FirstSeenBlock <= pool.FirstSeenBlock {
		return nil
	}
	a.poolSeen[key] = pool
	return &pool
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
