package indexer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"stablePool/internal/model"
)

const (
	skipRemoved        = "removed"
	skipForeignPool    = "foreign_pool"
	skipNoTopic        = "no_topic"
	skipUntrackedTopic = "untracked_topic"
)

// logFilter keeps logs emitted by one of the configured pools whose first
// topic is a tracked pool event. An empty topic set tracks every event.
type logFilter struct {
	pools  map[common.Address]struct{}
	topics map[common.Hash]struct{}
}

func newLogFilter(pools []common.Address, topics []common.Hash) logFilter {
	f := logFilter{
		pools:  make(map[common.Address]struct{}, len(pools)),
		topics: make(map[common.Hash]struct{}, len(topics)),
	}
	for _, pool := range pools {
		f.pools[pool] = struct{}{}
	}
	for _, topic := range topics {
		f.topics[topic] = struct{}{}
	}
	return f
}

// skipReason returns why log is dropped, or "" when it is kept.
func (f logFilter) skipReason(log types.Log) string {
	if log.Removed {
		return skipRemoved
	}
	if _, ok := f.pools[log.Address]; !ok {
		return skipForeignPool
	}
	if len(log.Topics) == 0 {
		return skipNoTopic
	}
	if len(f.topics) > 0 {
		if _, ok := f.topics[log.Topics[0]]; !ok {
			return skipUntrackedTopic
		}
	}
	return ""
}

func buildLogRecord(chainID uint64, log types.Log, timestamp uint64) model.LogRecord {
	topics := make([]string, len(log.Topics))
	for i, topic := range log.Topics {
		topics[i] = topic.Hex()
	}
	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
	}
}
