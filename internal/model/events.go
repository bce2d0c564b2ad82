package model

// Pool event names, matching the on-chain event identifiers.
const (
	EventTokenSwap                = "TokenSwap"
	EventAddLiquidity             = "AddLiquidity"
	EventRemoveLiquidity          = "RemoveLiquidity"
	EventRemoveLiquidityOne       = "RemoveLiquidityOne"
	EventRemoveLiquidityImbalance = "RemoveLiquidityImbalance"
)

// TokenSwapData is the TokenSwap event payload.
type TokenSwapData struct {
	Buyer        string `json:"buyer"`
	TokensSold   string `json:"tokens_sold"`
	TokensBought string `json:"tokens_bought"`
	SoldID       uint64 `json:"sold_id"`
	BoughtID     uint64 `json:"bought_id"`
}

// AddLiquidityData is the AddLiquidity event payload.
type AddLiquidityData struct {
	Provider      string   `json:"provider"`
	TokenAmounts  []string `json:"token_amounts"`
	Fees          []string `json:"fees"`
	Invariant     string   `json:"invariant"`
	LPTokenSupply string   `json:"lp_token_supply"`
}

// RemoveLiquidityData is the RemoveLiquidity event payload.
type RemoveLiquidityData struct {
	Provider      string   `json:"provider"`
	TokenAmounts  []string `json:"token_amounts"`
	LPTokenSupply string   `json:"lp_token_supply"`
}

// RemoveLiquidityOneData is the RemoveLiquidityOne event payload. LPTokenSupply
// is the supply before the burn.
type RemoveLiquidityOneData struct {
	Provider      string `json:"provider"`
	LPTokenAmount string `json:"lp_token_amount"`
	LPTokenSupply string `json:"lp_token_supply"`
	BoughtID      uint64 `json:"bought_id"`
	TokensBought  string `json:"tokens_bought"`
}

// RemoveLiquidityImbalanceData is the RemoveLiquidityImbalance event payload.
type RemoveLiquidityImbalanceData struct {
	Provider      string   `json:"provider"`
	TokenAmounts  []string `json:"token_amounts"`
	Fees          []string `json:"fees"`
	Invariant     string   `json:"invariant"`
	LPTokenSupply string   `json:"lp_token_supply"`
}
