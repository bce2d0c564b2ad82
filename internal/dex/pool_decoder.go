package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"stablePool/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map maps extra topic0 values onto pool event names, for forks
	// that renamed an event but kept its layout.
	Topic0Map map[string]string
}

// PoolDecoder decodes stableswap pool events.
type PoolDecoder struct {
	poolABI     abi.ABI
	topicToName map[string]string
}

func NewPoolDecoder(cfg DecoderConfig) (*PoolDecoder, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(poolEventNames)+len(cfg.Topic0Map))
	for _, name := range poolEventNames {
		topicToName[strings.ToLower(poolABI.Events[name].ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &PoolDecoder{
		poolABI:     poolABI,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *PoolDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a PoolEvent. The log index doubles as the
// event sequence.
func (d *PoolDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.PoolEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}

	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}
	pool := common.HexToAddress(log.Address)

	event := d.poolABI.Events[name]
	caller, err := parseCaller(event, log.Topics)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	switch name {
	case model.EventTokenSwap:
		decoded, err = decodeTokenSwap(caller, values)
	case model.EventAddLiquidity:
		var data model.AddLiquidityData
		data, err = decodeLiquidityWithFees(caller, values)
		decoded = data
	case model.EventRemoveLiquidityImbalance:
		var data model.AddLiquidityData
		data, err = decodeLiquidityWithFees(caller, values)
		decoded = model.RemoveLiquidityImbalanceData(data)
	case model.EventRemoveLiquidity:
		decoded, err = decodeRemoveLiquidity(caller, values)
	case model.EventRemoveLiquidityOne:
		decoded, err = decodeRemoveLiquidityOne(caller, values)
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	poolMeta, err := getPoolMeta(ctx, pool)
	if err != nil {
		return nil, err
	}
	return buildPoolEvent(log, pool, name, caller, decoded, poolMeta), nil
}

func normalizeEventName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, known := range poolEventNames {
		if strings.ToLower(known) == key {
			return known
		}
	}
	return ""
}

// getPoolMeta prefers the cache and falls back to chain calls. Without a
// caller an unknown pool decodes with empty metadata.
func getPoolMeta(ctx DecodeContext, pool common.Address) (model.PoolMeta, error) {
	if ctx.PoolMetaCache != nil {
		if meta, ok := ctx.PoolMetaCache.Get(pool); ok {
			return meta, nil
		}
	}
	if ctx.Caller == nil {
		return model.PoolMeta{}, nil
	}

	callCtx := ctx.Context
	if callCtx == nil {
		callCtx = context.Background()
	}
	meta, err := FetchPoolMeta(callCtx, ctx.Caller, pool, ctx.TokenMetaCache, ctx.Logger)
	if err != nil {
		return model.PoolMeta{}, err
	}
	if ctx.PoolMetaCache != nil {
		ctx.PoolMetaCache.Set(pool, meta)
	}
	return meta, nil
}

func buildPoolEvent(log model.LogRecord, pool common.Address, name string, caller common.Address, decoded interface{}, meta model.PoolMeta) *model.PoolEvent {
	return &model.PoolEvent{
		ChainID:     log.ChainID,
		Pool:        pool.Hex(),
		Sequence:    log.LogIndex,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		EventName:   name,
		Caller:      caller.Hex(),
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		PoolMeta:    meta,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}
}

func decodeTokenSwap(caller common.Address, values []interface{}) (model.TokenSwapData, error) {
	if len(values) != 4 {
		return model.TokenSwapData{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}
	amounts, err := bigStrings(values[:2])
	if err != nil {
		return model.TokenSwapData{}, err
	}
	soldID, err := asBigInt(values[2])
	if err != nil {
		return model.TokenSwapData{}, err
	}
	boughtID, err := asBigInt(values[3])
	if err != nil {
		return model.TokenSwapData{}, err
	}
	if !soldID.IsUint64() || !boughtID.IsUint64() {
		return model.TokenSwapData{}, fmt.Errorf("token index out of range")
	}
	return model.TokenSwapData{
		Buyer:        caller.Hex(),
		TokensSold:   amounts[0],
		TokensBought: amounts[1],
		SoldID:       soldID.Uint64(),
		BoughtID:     boughtID.Uint64(),
	}, nil
}

// decodeLiquidityWithFees handles AddLiquidity and RemoveLiquidityImbalance,
// which share a layout.
func decodeLiquidityWithFees(caller common.Address, values []interface{}) (model.AddLiquidityData, error) {
	if len(values) != 4 {
		return model.AddLiquidityData{}, fmt.Errorf("unexpected liquidity values: %d", len(values))
	}
	amounts, err := bigSliceStrings(values[0])
	if err != nil {
		return model.AddLiquidityData{}, err
	}
	fees, err := bigSliceStrings(values[1])
	if err != nil {
		return model.AddLiquidityData{}, err
	}
	scalars, err := bigStrings(values[2:])
	if err != nil {
		return model.AddLiquidityData{}, err
	}
	return model.AddLiquidityData{
		Provider:      caller.Hex(),
		TokenAmounts:  amounts,
		Fees:          fees,
		Invariant:     scalars[0],
		LPTokenSupply: scalars[1],
	}, nil
}

func decodeRemoveLiquidity(caller common.Address, values []interface{}) (model.RemoveLiquidityData, error) {
	if len(values) != 2 {
		return model.RemoveLiquidityData{}, fmt.Errorf("unexpected remove values: %d", len(values))
	}
	amounts, err := bigSliceStrings(values[0])
	if err != nil {
		return model.RemoveLiquidityData{}, err
	}
	supply, err := asBigInt(values[1])
	if err != nil {
		return model.RemoveLiquidityData{}, err
	}
	return model.RemoveLiquidityData{
		Provider:      caller.Hex(),
		TokenAmounts:  amounts,
		LPTokenSupply: supply.String(),
	}, nil
}

func decodeRemoveLiquidityOne(caller common.Address, values []interface{}) (model.RemoveLiquidityOneData, error) {
	if len(values) != 4 {
		return model.RemoveLiquidityOneData{}, fmt.Errorf("unexpected remove one values: %d", len(values))
	}
	scalars, err := bigStrings([]interface{}{values[0], values[1], values[3]})
	if err != nil {
		return model.RemoveLiquidityOneData{}, err
	}
	boughtID, err := asBigInt(values[2])
	if err != nil {
		return model.RemoveLiquidityOneData{}, err
	}
	if !boughtID.IsUint64() {
		return model.RemoveLiquidityOneData{}, fmt.Errorf("token index out of range")
	}
	return model.RemoveLiquidityOneData{
		Provider:      caller.Hex(),
		LPTokenAmount: scalars[0],
		LPTokenSupply: scalars[1],
		BoughtID:      boughtID.Uint64(),
		TokensBought:  scalars[2],
	}, nil
}

func bigStrings(values []interface{}) ([]string, error) {
	out := make([]string, len(values))
	for i, value := range values {
		v, err := asBigInt(value)
		if err != nil {
			return nil, err
		}
		out[i] = v.String()
	}
	return out, nil
}

func bigSliceStrings(value interface{}) ([]string, error) {
	items, ok := value.([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unsupported array type %T", value)
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.String()
	}
	return out, nil
}

// parseCaller extracts the single indexed address every pool event carries.
func parseCaller(event abi.Event, topics []string) (common.Address, error) {
	indexedTopics, err := parseIndexedTopics(event, topics)
	if err != nil {
		return common.Address{}, err
	}
	indexed := make(map[string]interface{}, 1)
	if err := abi.ParseTopicsIntoMap(indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return common.Address{}, fmt.Errorf("parse topics: %w", err)
	}
	for _, value := range indexed {
		return asAddress(value)
	}
	return common.Address{}, fmt.Errorf("no indexed caller")
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
