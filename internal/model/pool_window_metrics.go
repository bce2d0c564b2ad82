package model

import "time"

// PoolWindowMetrics stores aggregated metrics for a pool window. Per-token
// slices follow the pool's token order and hold raw token units.
type PoolWindowMetrics struct {
	ChainID            uint64
	PoolAddress        string
	WindowSizeSecs     int64
	WindowStart        time.Time
	WindowEnd          time.Time
	SwapCount          uint64
	AddCount           uint64
	RemoveCount        uint64
	Volumes            []string
	Fees               []string
	VolumesDisplay     []string
	LPTotalSupply      string
	VirtualPriceOpen   *string
	VirtualPriceClose  *string
	VirtualPriceGrowth *string
	APR                *string
	FeeMethod          string
}
