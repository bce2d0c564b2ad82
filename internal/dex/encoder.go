package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"stablePool/internal/model"
)

// EncodeEvent renders an engine event as the log a pool contract would emit.
// Sequence becomes the log index so PoolDecoder restores it.
func EncodeEvent(event model.PoolEvent) (model.LogRecord, error) {
	parsed, err := PoolABI()
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("parse pool abi: %w", err)
	}
	abiEvent, ok := parsed.Events[event.EventName]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("unsupported event name: %s", event.EventName)
	}
	if !common.IsHexAddress(event.Pool) {
		return model.LogRecord{}, fmt.Errorf("invalid pool address: %s", event.Pool)
	}
	if !common.IsHexAddress(event.Caller) {
		return model.LogRecord{}, fmt.Errorf("invalid caller address: %s", event.Caller)
	}

	name, values, err := eventValues(event.Decoded)
	if err != nil {
		return model.LogRecord{}, err
	}
	if name != event.EventName {
		return model.LogRecord{}, fmt.Errorf("payload %s does not match event %s", name, event.EventName)
	}
	data, err := abiEvent.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", name, err)
	}

	caller := common.HexToAddress(event.Caller)
	return model.LogRecord{
		ChainID:     event.ChainID,
		BlockNumber: event.BlockNumber,
		TxHash:      event.TxHash,
		LogIndex:    event.Sequence,
		Address:     common.HexToAddress(event.Pool).Hex(),
		Topics:      []string{abiEvent.ID.Hex(), common.BytesToHash(caller.Bytes()).Hex()},
		Data:        hexutil.Encode(data),
		Timestamp:   event.Timestamp,
	}, nil
}

func eventValues(decoded interface{}) (string, []interface{}, error) {
	switch data := decoded.(type) {
	case model.TokenSwapData:
		amounts, err := parseBigs([]string{data.TokensSold, data.TokensBought})
		if err != nil {
			return "", nil, err
		}
		return model.EventTokenSwap, []interface{}{
			amounts[0], amounts[1],
			new(big.Int).SetUint64(data.SoldID), new(big.Int).SetUint64(data.BoughtID),
		}, nil
	case model.AddLiquidityData:
		values, err := liquidityWithFeesValues(data.TokenAmounts, data.Fees, data.Invariant, data.LPTokenSupply)
		return model.EventAddLiquidity, values, err
	case model.RemoveLiquidityImbalanceData:
		values, err := liquidityWithFeesValues(data.TokenAmounts, data.Fees, data.Invariant, data.LPTokenSupply)
		return model.EventRemoveLiquidityImbalance, values, err
	case model.RemoveLiquidityData:
		amounts, err := parseBigs(data.TokenAmounts)
		if err != nil {
			return "", nil, err
		}
		supply, err := parseBig(data.LPTokenSupply)
		if err != nil {
			return "", nil, err
		}
		return model.EventRemoveLiquidity, []interface{}{amounts, supply}, nil
	case model.RemoveLiquidityOneData:
		scalars, err := parseBigs([]string{data.LPTokenAmount, data.LPTokenSupply, data.TokensBought})
		if err != nil {
			return "", nil, err
		}
		return model.EventRemoveLiquidityOne, []interface{}{
			scalars[0], scalars[1], new(big.Int).SetUint64(data.BoughtID), scalars[2],
		}, nil
	default:
		return "", nil, fmt.Errorf("unsupported payload type %T", decoded)
	}
}

func liquidityWithFeesValues(amounts, fees []string, invariant, supply string) ([]interface{}, error) {
	amountValues, err := parseBigs(amounts)
	if err != nil {
		return nil, err
	}
	feeValues, err := parseBigs(fees)
	if err != nil {
		return nil, err
	}
	scalars, err := parseBigs([]string{invariant, supply})
	if err != nil {
		return nil, err
	}
	return []interface{}{amountValues, feeValues, scalars[0], scalars[1]}, nil
}

func parseBig(value string) (*big.Int, error) {
	out, ok := new(big.Int).SetString(value, 10)
	if !ok || out.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return out, nil
}

func parseBigs(values []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i, value := range values {
		v, err := parseBig(value)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
