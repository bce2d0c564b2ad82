package model

// Operation kinds accepted by the simulator.
const (
	OpSwap                     = "swap"
	OpAddLiquidity             = "add_liquidity"
	OpRemoveLiquidity          = "remove_liquidity"
	OpRemoveLiquidityImbalance = "remove_liquidity_imbalance"
	OpRemoveLiquidityOneToken  = "remove_liquidity_one_token"
	OpPause                    = "pause"
	OpUnpause                  = "unpause"
	OpFund                     = "fund"
)

// Operation is one line of a simulation script. Amounts are base-10 raw token
// units. Which fields apply depends on Op:
//
//	swap                        from, to, amount, min
//	add_liquidity               amounts, min
//	remove_liquidity            amount, min_amounts
//	remove_liquidity_imbalance  amounts, max
//	remove_liquidity_one_token  amount, index, min
//	fund                        index, amount (credits caller's token balance)
type Operation struct {
	Op         string   `json:"op"`
	Caller     string   `json:"caller"`
	From       int      `json:"from,omitempty"`
	To         int      `json:"to,omitempty"`
	Index      int      `json:"index,omitempty"`
	Amount     string   `json:"amount,omitempty"`
	Amounts    []string `json:"amounts,omitempty"`
	Min        string   `json:"min,omitempty"`
	MinAmounts []string `json:"min_amounts,omitempty"`
	Max        string   `json:"max,omitempty"`
	Timestamp  uint64   `json:"timestamp,omitempty"`
}

// OperationError records a rejected simulation operation.
type OperationError struct {
	Line   int    `json:"line"`
	Op     string `json:"op"`
	Caller string `json:"caller"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// DecodeError records a decode failure for a log line.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Error       string `json:"error"`
}
