package indexer

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"stablePool/internal/dex"
	"stablePool/internal/model"
)

func TestSplitRange(t *testing.T) {
	cases := []struct {
		name      string
		from, to  uint64
		batchSize uint64
		want      []BlockRange
	}{
		{"even", 100, 105, 2, []BlockRange{{100, 101}, {102, 103}, {104, 105}}},
		{"ragged", 1, 5, 2, []BlockRange{{1, 2}, {3, 4}, {5, 5}}},
		{"single", 5, 5, 10, []BlockRange{{5, 5}}},
	}
	for _, tc := range cases {
		got, err := SplitRange(tc.from, tc.to, tc.batchSize)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: ranges mismatch: %+v != %+v", tc.name, got, tc.want)
		}
	}

	if _, err := SplitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

type fakeSource struct {
	head    uint64
	logs    []types.Log
	queries []BlockRange
}

func (f *fakeSource) ChainID(context.Context) (uint64, error) { return 10, nil }

func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number, nil
}

func (f *fakeSource) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	f.queries = append(f.queries, BlockRange{From: from, To: to})
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

type memoryWriter struct {
	records []model.LogRecord
}

func (m *memoryWriter) PutLogBatch(logs []model.LogRecord) error {
	m.records = append(m.records, logs...)
	return nil
}

func TestRunnerFetchesAndResumes(t *testing.T) {
	pool := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	topic := common.HexToHash("0x01")
	log := func(block uint64, index uint) types.Log {
		return types.Log{Address: pool, Topics: []common.Hash{topic}, BlockNumber: block, Index: index, Data: []byte{0x01}}
	}
	source := &fakeSource{
		head: 20,
		logs: []types.Log{log(3, 0), log(3, 0), log(7, 1), {BlockNumber: 8, Removed: true}, log(12, 2)},
	}
	writer := &memoryWriter{}
	cfg := RunConfig{
		FromBlock:         1,
		Addresses:         []common.Address{pool},
		BatchSize:         5,
		CheckpointPath:    filepath.Join(t.TempDir(), "cp", "fetch.json"),
		CheckpointEnabled: true,
	}

	written, err := NewRunner(cfg, source, writer, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, written)
	require.Equal(t, []BlockRange{{1, 5}, {6, 10}, {11, 15}, {16, 20}}, source.queries)
	require.Equal(t, uint64(10), writer.records[0].ChainID)
	require.Equal(t, uint64(1_700_000_007), writer.records[1].Timestamp)
	require.Equal(t, pool.Hex(), writer.records[2].Address)
	require.Equal(t, "0x01", writer.records[2].Data)

	source.head = 25
	source.queries = nil
	written, err = NewRunner(cfg, source, writer, nil).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, written)
	require.Equal(t, []BlockRange{{21, 25}}, source.queries)
}

func TestRunnerRejectsMissingInputs(t *testing.T) {
	_, err := NewRunner(RunConfig{BatchSize: 1}, &fakeSource{}, &memoryWriter{}, nil).Run(context.Background())
	require.Error(t, err)
	_, err = NewRunner(RunConfig{BatchSize: 1}, nil, &memoryWriter{}, nil).Run(context.Background())
	require.Error(t, err)
}

func TestParseTopic0(t *testing.T) {
	known, err := dex.PoolEventTopics()
	require.NoError(t, err)

	all, err := ParseTopic0(nil)
	require.NoError(t, err)
	require.Len(t, all, len(known))

	picked, err := ParseTopic0([]string{"tokenswap", known[model.EventAddLiquidity].Hex()})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{known[model.EventTokenSwap], known[model.EventAddLiquidity]}, picked)

	_, err = ParseTopic0([]string{"Sync"})
	require.Error(t, err)
	_, err = ParseTopic0([]string{"0x1234"})
	require.Error(t, err)
}

func TestParseAddresses(t *testing.T) {
	addrs, err := ParseAddresses([]string{" 0x00000000000000000000000000000000000000aa ", ""})
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	_, err = ParseAddresses([]string{"pool"})
	require.Error(t, err)
}

func TestLogFilterSkipReasons(t *testing.T) {
	pool := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	swap := common.HexToHash("0x01")
	transfer := common.HexToHash("0x02")

	tracked := newLogFilter([]common.Address{pool}, []common.Hash{swap})
	every := newLogFilter([]common.Address{pool}, nil)
	cases := []struct {
		name   string
		filter logFilter
		log    types.Log
		want   string
	}{
		{"kept", tracked, types.Log{Address: pool, Topics: []common.Hash{swap}}, ""},
		{"removed", tracked, types.Log{Address: pool, Topics: []common.Hash{swap}, Removed: true}, skipRemoved},
		{"foreign pool", tracked, types.Log{Address: other, Topics: []common.Hash{swap}}, skipForeignPool},
		{"no topic", tracked, types.Log{Address: pool}, skipNoTopic},
		{"untracked topic", tracked, types.Log{Address: pool, Topics: []common.Hash{transfer}}, skipUntrackedTopic},
		{"any topic", every, types.Log{Address: pool, Topics: []common.Hash{transfer}}, ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.filter.skipReason(tc.log), tc.name)
	}
}

func TestRunnerSkipsLogsFromOtherContracts(t *testing.T) {
	pool := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	swap := common.HexToHash("0x01")
	source := &fakeSource{
		head: 10,
		logs: []types.Log{
			{Address: pool, Topics: []common.Hash{swap}, BlockNumber: 2, Index: 0},
			{Address: other, Topics: []common.Hash{swap}, BlockNumber: 2, Index: 1},
			{Address: pool, Topics: []common.Hash{common.HexToHash("0x02")}, BlockNumber: 4, Index: 0},
		},
	}
	writer := &memoryWriter{}
	cfg := RunConfig{FromBlock: 1, Addresses: []common.Address{pool}, Topic0: []common.Hash{swap}, BatchSize: 10}

	written, err := NewRunner(cfg, source, writer, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, written)
	require.Equal(t, pool.Hex(), writer.records[0].Address)
	require.Equal(t, uint64(2), writer.records[0].BlockNumber)
}
