package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"stablePool/internal/chain"
	"stablePool/internal/config"
	"stablePool/internal/dex"
	"stablePool/internal/model"
	"stablePool/internal/storage"
)

type decodeStats struct {
	Total   int
	Decoded int
	Skipped int
	Failed  int
}

type recordWriter interface {
	Write(value interface{}) error
}

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw pool logs into pool events",
		RunE:  runDecode,
	}
	addRPCFlags(cmd)
	cmd.Flags().String("in", "", "input raw logs JSONL")
	cmd.Flags().String("out", "./data/events.jsonl", "output pool events JSONL")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	cmd.Flags().String("state", "", "pool snapshot used as metadata when no RPC is given")
	cmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	addLogFlag(cmd)
	return cmd
}

func runDecode(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := config.LoadDecode(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ctx, stop := signalContext()
	defer stop()

	decoder, err := dex.NewPoolDecoder(dex.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}
	tokenCache, err := dex.NewTokenMetaCache(0)
	if err != nil {
		return err
	}
	decodeCtx := dex.DecodeContext{
		Context:        ctx,
		PoolMetaCache:  dex.NewPoolMetaCache(),
		TokenMetaCache: tokenCache,
		Logger:         logger,
	}

	if cfg.State != "" {
		snapshot, err := storage.LoadSnapshot(cfg.State)
		if err != nil {
			return err
		}
		if err := seedPoolMeta(decodeCtx.PoolMetaCache, snapshot); err != nil {
			return err
		}
	}
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
		decodeCtx.Caller = client
	}

	out := storage.NewJsonlStorage(cfg.Out, false)
	defer func() { err = multierr.Append(err, out.Close()) }()
	errWriter := storage.NewJsonlStorage(cfg.Errors, false)
	defer func() { err = multierr.Append(err, errWriter.Close()) }()

	logger.Info("decode start",
		zap.Bool("rpc", cfg.RPC.URL != ""),
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.String("state", cfg.State),
	)

	stats, err := decodeLogs(ctx, cfg.In, decoder, decodeCtx, out, errWriter)
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", stats.Total),
		zap.Int("decoded", stats.Decoded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return nil
}

func decodeLogs(ctx context.Context, in string, decoder dex.Decoder, decodeCtx dex.DecodeContext, out, errWriter recordWriter) (decodeStats, error) {
	var stats decodeStats
	err := storage.ReadJSONL(in, func(_ int, line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Failed++
			writeDecodeError(errWriter, model.DecodeError{Error: err.Error()})
			return nil
		}
		if len(record.Topics) == 0 {
			stats.Failed++
			writeDecodeError(errWriter, decodeErrorFromRecord(record, fmt.Errorf("missing topic0")))
			return nil
		}
		if !decoder.CanDecode(record.Topics[0]) {
			stats.Skipped++
			return nil
		}

		event, err := decoder.Decode(record, decodeCtx)
		if err != nil {
			stats.Failed++
			writeDecodeError(errWriter, decodeErrorFromRecord(record, err))
			return nil
		}
		if err := out.Write(event); err != nil {
			return err
		}
		stats.Decoded++
		return nil
	})
	return stats, err
}

// seedPoolMeta makes a snapshot's parameters available to the decoder
// without contract calls. Supply and virtual price change per event, so they
// are left for the aggregator to derive.
func seedPoolMeta(cache *dex.PoolMetaCache, snapshot model.PoolSnapshot) error {
	if !common.IsHexAddress(snapshot.Address) {
		return fmt.Errorf("snapshot has invalid pool address %q", snapshot.Address)
	}
	tokens := snapshot.TokenAddresses()
	for i, token := range tokens {
		tokens[i] = common.HexToAddress(strings.TrimSpace(token)).Hex()
	}
	cache.Set(common.HexToAddress(snapshot.Address), model.PoolMeta{
		Tokens:   tokens,
		A:        snapshot.A,
		SwapFee:  snapshot.SwapFee,
		AdminFee: snapshot.AdminFee,
	})
	return nil
}

func decodeErrorFromRecord(record model.LogRecord, err error) model.DecodeError {
	topic0 := ""
	if len(record.Topics) > 0 {
		topic0 = record.Topics[0]
	}

	return model.DecodeError{
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      topic0,
		Error:       err.Error(),
	}
}

func writeDecodeError(writer recordWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
