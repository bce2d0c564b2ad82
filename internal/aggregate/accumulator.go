package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"

	"stablePool/internal/model"
)

const (
	feeDenominator = 10_000_000_000
	maxTokens      = 32
)

// Accumulator holds aggregate values for one pool window. Per-token slices
// follow pool token order in raw token units.
type Accumulator struct {
	ChainID     uint64
	PoolAddress string
	PoolMeta    model.PoolMeta
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	AddCount    uint64
	RemoveCount uint64
	Volumes     []*big.Int
	Fees        []*big.Int

	LPTotalSupply     string
	VirtualPriceOpen  string
	VirtualPriceClose string

	FirstBlock uint64
	LastBlock  uint64
	LastTS     uint64
}

func NewAccumulator(record model.PoolEventRecord, windowStart, windowEnd uint64) *Accumulator {
	acc := &Accumulator{
		ChainID:     record.ChainID,
		PoolAddress: record.Pool,
		PoolMeta:    record.PoolMeta,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		FirstBlock:  record.BlockNumber,
		LastBlock:   record.BlockNumber,
		LastTS:      record.Timestamp,
	}
	acc.grow(len(record.PoolMeta.Tokens))
	return acc
}

// AddEvent folds one event into the window.
func (a *Accumulator) AddEvent(record model.PoolEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}
	if a.FirstBlock == 0 || (record.BlockNumber > 0 && record.BlockNumber < a.FirstBlock) {
		a.FirstBlock = record.BlockNumber
	}
	if len(record.PoolMeta.Tokens) > 0 {
		a.PoolMeta = record.PoolMeta
		a.grow(len(record.PoolMeta.Tokens))
	}

	var supply string
	var err error
	switch record.EventName {
	case model.EventTokenSwap:
		err = a.applySwap(record.Decoded)
	case model.EventAddLiquidity:
		supply, err = a.applyLiquidityWithFees(record.Decoded)
		a.AddCount++
	case model.EventRemoveLiquidityImbalance:
		supply, err = a.applyLiquidityWithFees(record.Decoded)
		a.RemoveCount++
	case model.EventRemoveLiquidity:
		var data model.RemoveLiquidityData
		if err = json.Unmarshal(record.Decoded, &data); err == nil {
			supply = data.LPTokenSupply
			err = a.addVolumes(data.TokenAmounts)
		}
		a.RemoveCount++
	case model.EventRemoveLiquidityOne:
		supply, err = a.applyOneTokenExit(record.Decoded)
		a.RemoveCount++
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", record.EventName, err)
	}

	if record.PoolMeta.LPTotalSupply != "" {
		supply = record.PoolMeta.LPTotalSupply
	}
	if supply != "" {
		a.LPTotalSupply = supply
	}
	if vp := record.PoolMeta.VirtualPrice; vp != "" {
		if a.VirtualPriceOpen == "" {
			a.VirtualPriceOpen = vp
		}
		a.VirtualPriceClose = vp
	}
	return nil
}

// applySwap counts swap volume on the sold token and infers the swap fee on the
// bought token: the event reports output after fee, so
// fee = out * swapFee / (1e10 - swapFee).
func (a *Accumulator) applySwap(raw json.RawMessage) error {
	var swap model.TokenSwapData
	if err := json.Unmarshal(raw, &swap); err != nil {
		return err
	}
	sold, err := parseBigInt(swap.TokensSold)
	if err != nil {
		return err
	}
	bought, err := parseBigInt(swap.TokensBought)
	if err != nil {
		return err
	}
	if swap.SoldID >= maxTokens || swap.BoughtID >= maxTokens {
		return fmt.Errorf("token index out of range: %d/%d", swap.SoldID, swap.BoughtID)
	}
	a.grow(int(max(swap.SoldID, swap.BoughtID)) + 1)
	a.Volumes[swap.SoldID].Add(a.Volumes[swap.SoldID], sold)
	a.SwapCount++

	feeRate := a.PoolMeta.SwapFee
	if feeRate == 0 || feeRate >= feeDenominator {
		return nil
	}
	fee := new(big.Int).Mul(bought, new(big.Int).SetUint64(feeRate))
	fee.Div(fee, new(big.Int).SetUint64(feeDenominator-feeRate))
	a.Fees[swap.BoughtID].Add(a.Fees[swap.BoughtID], fee)
	return nil
}

// applyLiquidityWithFees handles AddLiquidity and RemoveLiquidityImbalance,
// whose fees are reported per token.
func (a *Accumulator) applyLiquidityWithFees(raw json.RawMessage) (string, error) {
	var data model.AddLiquidityData
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", err
	}
	if err := a.addVolumes(data.TokenAmounts); err != nil {
		return "", err
	}
	a.grow(len(data.Fees))
	for i, value := range data.Fees {
		fee, err := parseBigInt(value)
		if err != nil {
			return "", err
		}
		a.Fees[i].Add(a.Fees[i], fee)
	}
	return data.LPTokenSupply, nil
}

// addVolumes adds per-token deposit or withdrawal amounts.
func (a *Accumulator) addVolumes(amounts []string) error {
	if len(amounts) > maxTokens {
		return fmt.Errorf("%d token amounts exceed %d", len(amounts), maxTokens)
	}
	a.grow(len(amounts))
	for i, value := range amounts {
		amount, err := parseBigInt(value)
		if err != nil {
			return err
		}
		a.Volumes[i].Add(a.Volumes[i], amount)
	}
	return nil
}

// applyOneTokenExit counts the withdrawn token and converts the event's
// pre-burn supply to the post-burn value.
func (a *Accumulator) applyOneTokenExit(raw json.RawMessage) (string, error) {
	var data model.RemoveLiquidityOneData
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", err
	}
	if data.BoughtID >= maxTokens {
		return "", fmt.Errorf("token index out of range: %d", data.BoughtID)
	}
	bought, err := parseBigInt(data.TokensBought)
	if err != nil {
		return "", err
	}
	a.grow(int(data.BoughtID) + 1)
	a.Volumes[data.BoughtID].Add(a.Volumes[data.BoughtID], bought)

	before, err := parseBigInt(data.LPTokenSupply)
	if err != nil {
		return "", err
	}
	burned, err := parseBigInt(data.LPTokenAmount)
	if err != nil {
		return "", err
	}
	if before.Cmp(burned) < 0 {
		return "", fmt.Errorf("burn %s exceeds supply %s", burned, before)
	}
	return before.Sub(before, burned).String(), nil
}

func (a *Accumulator) grow(n int) {
	for len(a.Volumes) < n {
		a.Volumes = append(a.Volumes, new(big.Int))
		a.Fees = append(a.Fees, new(big.Int))
	}
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}
