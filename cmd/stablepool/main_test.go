package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"stablePool/internal/config"
	"stablePool/internal/dex"
	"stablePool/internal/model"
	"stablePool/internal/sim"
	"stablePool/internal/storage"
)

const (
	ownerHex = "0x0000000000000000000000000000000000000001"
	userHex  = "0x0000000000000000000000000000000000000002"
	e18      = "1000000000000000000"
	e17      = "100000000000000000"
)

type collector struct {
	values []interface{}
}

func (c *collector) Write(value interface{}) error {
	c.values = append(c.values, value)
	return nil
}

type recordingSink struct {
	events []model.PoolEvent
}

func (s *recordingSink) Record(event model.PoolEvent) error {
	s.events = append(s.events, event)
	return nil
}

func seededSnapshot() model.PoolSnapshot {
	return model.PoolSnapshot{
		ChainID: 56,
		Address: "0x5000000000000000000000000000000000000005",
		Tokens: []model.TokenMeta{
			{Address: "0x0000000000000000000000000000000000001000", Decimals: 18, Symbol: "TA"},
			{Address: "0x0000000000000000000000000000000000001001", Decimals: 18, Symbol: "TB"},
		},
		Balances:      []string{e18, e18},
		A:             50,
		SwapFee:       10_000_000,
		LPTotalSupply: "2000000000000000000",
		LPBalances:    map[string]string{ownerHex: "2000000000000000000"},
	}
}

func TestQuote(t *testing.T) {
	s, err := sim.New(seededSnapshot(), nil, nil, nil)
	require.NoError(t, err)

	result, err := quote(s.Pool(), config.QuoteConfig{Op: model.OpSwap, From: 0, To: 1, Amount: e17})
	require.NoError(t, err)
	require.Equal(t, []string{"99702611562565289"}, result.Amounts)
	require.Equal(t, []string{"0.099702611562565289"}, result.Display)

	result, err = quote(s.Pool(), config.QuoteConfig{Op: model.OpRemoveLiquidity, Amount: "200000000000000000"})
	require.NoError(t, err)
	require.Equal(t, []string{e17, e17}, result.Amounts)

	result, err = quote(s.Pool(), config.QuoteConfig{Op: opVirtualPrice})
	require.NoError(t, err)
	require.Equal(t, []string{"1.000000000000000000"}, result.Display)

	_, err = quote(s.Pool(), config.QuoteConfig{Op: model.OpSwap, From: 0, To: 5, Amount: e17})
	require.Error(t, err)
	_, err = quote(s.Pool(), config.QuoteConfig{Op: "flash_loan"})
	require.Error(t, err)
}

func TestSimulatedLogsDecodeBack(t *testing.T) {
	dir := t.TempDir()
	logsPath := filepath.Join(dir, "logs.jsonl")

	logs := storage.NewJsonlStorage(logsPath, false)
	recorded := &recordingSink{}
	s, err := sim.New(seededSnapshot(), storage.MultiSink{recorded, storage.LogSink{Out: logs}}, nil, nil)
	require.NoError(t, err)

	ops := []model.Operation{
		{Op: model.OpFund, Caller: userHex, Index: 0, Amount: e18},
		{Op: model.OpSwap, Caller: userHex, From: 0, To: 1, Amount: e17, Timestamp: 1_700_000_000},
		{Op: model.OpAddLiquidity, Caller: userHex, Amounts: []string{e17, "0"}},
		{Op: model.OpRemoveLiquidityOneToken, Caller: ownerHex, Amount: e17, Index: 1},
		{Op: model.OpRemoveLiquidity, Caller: ownerHex, Amount: e17},
	}
	for _, op := range ops {
		require.NoError(t, s.Apply(op), op.Op)
	}
	require.NoError(t, logs.Close())
	require.Len(t, recorded.events, 4)

	// a foreign log and a log without topics
	f, err := os.OpenFile(logsPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"address":"0x5000000000000000000000000000000000000005","topics":["0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"],"data":"0x"}` + "\n")
	require.NoError(t, err)
	_, err = f.WriteString(`{"address":"0x5000000000000000000000000000000000000005","topics":[]}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	decoder, err := dex.NewPoolDecoder(dex.DecoderConfig{})
	require.NoError(t, err)
	decodeCtx := dex.DecodeContext{Context: context.Background(), PoolMetaCache: dex.NewPoolMetaCache()}
	require.NoError(t, seedPoolMeta(decodeCtx.PoolMetaCache, s.Snapshot()))

	out, errs := &collector{}, &collector{}
	stats, err := decodeLogs(context.Background(), logsPath, decoder, decodeCtx, out, errs)
	require.NoError(t, err)
	require.Equal(t, decodeStats{Total: 6, Decoded: 4, Skipped: 1, Failed: 1}, stats)
	require.Len(t, errs.values, 1)

	for i, value := range out.values {
		event := value.(*model.PoolEvent)
		want := recorded.events[i]
		require.Equal(t, want.EventName, event.EventName)
		require.Equal(t, want.Sequence, event.Sequence)
		require.Equal(t, want.Caller, event.Caller)
		require.Equal(t, want.Decoded, event.Decoded)
		require.Equal(t, want.PoolMeta.Tokens, event.PoolMeta.Tokens)
		require.Equal(t, want.PoolMeta.A, event.PoolMeta.A)
	}
}

func TestRootCommandWiresSubcommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	require.ElementsMatch(t, []string{"simulate", "quote", "snapshot", "fetch", "decode", "aggregate"}, names)
}
