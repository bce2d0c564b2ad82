package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"stablePool/internal/model"
)

const (
	testPool   = "0x00000000000000000000000000000000000000AA"
	testCaller = "0x0000000000000000000000000000000000001111"
)

func swapEvent(seq uint64) model.PoolEvent {
	return model.PoolEvent{
		Pool:      testPool,
		Sequence:  seq,
		EventName: model.EventTokenSwap,
		Caller:    testCaller,
		Timestamp: 1700000000 + seq,
		Decoded: model.TokenSwapData{
			Buyer: testCaller, TokensSold: "100", TokensBought: "99", SoldID: 0, BoughtID: 1,
		},
	}
}

func TestJsonlStorageAppendsAndReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	store := NewJsonlStorage(path, true)
	require.NoError(t, store.Record(swapEvent(1)))
	require.NoError(t, store.Record(swapEvent(2)))
	require.NoError(t, store.Close())

	// reopening appends
	store = NewJsonlStorage(path, true)
	require.NoError(t, store.PutLogBatch([]model.LogRecord{{LogIndex: 3}}))
	require.NoError(t, store.PutLogBatch(nil))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	var lines []int
	var records []model.PoolEventRecord
	err := ReadJSONL(path, func(line int, raw []byte) error {
		lines = append(lines, line)
		if line == 3 {
			return nil
		}
		var record model.PoolEventRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, lines)
	require.Len(t, records, 2)
	require.Equal(t, uint64(2), records[1].Sequence)
	require.JSONEq(t, `{"buyer":"`+testCaller+`","tokens_sold":"100","tokens_bought":"99","sold_id":0,"bought_id":1}`, string(records[0].Decoded))

	// without append mode the file starts over
	store = NewJsonlStorage(path, false)
	require.NoError(t, store.Write(map[string]int{"x": 1}))
	require.NoError(t, store.Close())
	count := 0
	require.NoError(t, ReadJSONL(path, func(int, []byte) error { count++; return nil }))
	require.Equal(t, 1, count)
}

func TestReadJSONLSkipsBlankLinesAndStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n\n  \n{}\n{}\n"), 0o644))

	stop := errors.New("stop")
	seen := 0
	err := ReadJSONL(path, func(line int, _ []byte) error {
		seen++
		if line == 4 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 2, seen)

	require.Error(t, ReadJSONL(filepath.Join(t.TempDir(), "missing.jsonl"), func(int, []byte) error { return nil }))
}

type recorderFunc func(model.PoolEvent) error

func (f recorderFunc) Record(event model.PoolEvent) error { return f(event) }

func TestMultiSinkReachesEveryRecorder(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	calls := 0
	sink := MultiSink{
		recorderFunc(func(model.PoolEvent) error { calls++; return first }),
		nil,
		recorderFunc(func(model.PoolEvent) error { calls++; return nil }),
		recorderFunc(func(model.PoolEvent) error { calls++; return second }),
	}
	err := sink.Record(swapEvent(1))
	require.Equal(t, 3, calls)
	require.Len(t, multierr.Errors(err), 2)
	require.ErrorIs(t, err, first)
	require.ErrorIs(t, err, second)
}

type memoryLogs struct {
	logs []model.LogRecord
}

func (m *memoryLogs) PutLogBatch(logs []model.LogRecord) error {
	m.logs = append(m.logs, logs...)
	return nil
}

func TestLogSinkEncodesEvents(t *testing.T) {
	out := &memoryLogs{}
	sink := LogSink{Out: out}
	require.NoError(t, sink.Record(swapEvent(7)))
	require.Len(t, out.logs, 1)
	require.Equal(t, uint64(7), out.logs[0].LogIndex)
	require.Len(t, out.logs[0].Topics, 2)

	bad := swapEvent(8)
	bad.Decoded = model.RemoveLiquidityData{}
	require.Error(t, sink.Record(bad))
	require.Len(t, out.logs, 1)
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "pool.json")
	snapshot := model.PoolSnapshot{
		Address:       testPool,
		Tokens:        []model.TokenMeta{{Address: "0x01", Decimals: 18, Symbol: "DAI"}, {Address: "0x02", Decimals: 6}},
		Balances:      []string{"1", "2"},
		A:             100,
		SwapFee:       4_000_000,
		LPTotalSupply: "3",
		LPBalances:    map[string]string{testCaller: "3"},
	}
	require.NoError(t, SaveSnapshot(path, snapshot))
	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, snapshot, loaded)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))

	require.Error(t, SaveSnapshot("", snapshot))
	_, err = LoadSnapshot(filepath.Join(t.TempDir(), "none.json"))
	require.Error(t, err)
}
