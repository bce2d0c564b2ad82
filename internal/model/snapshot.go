package model

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
}

// PoolSnapshot is the persisted form of a pool: everything needed to rebuild
// the engine state plus the LP share holders.
type PoolSnapshot struct {
	ChainID       uint64            `json:"chain_id,omitempty"`
	Address       string            `json:"address"`
	LPToken       string            `json:"lp_token,omitempty"`
	Tokens        []TokenMeta       `json:"tokens"`
	Balances      []string          `json:"balances"`
	AdminBalances []string          `json:"admin_balances,omitempty"`
	A             uint64            `json:"a"`
	SwapFee       uint64            `json:"swap_fee"`
	AdminFee      uint64            `json:"admin_fee"`
	LPTotalSupply string            `json:"lp_total_supply"`
	LPBalances    map[string]string `json:"lp_balances,omitempty"`
	Paused        bool              `json:"paused"`
	VirtualPrice  string            `json:"virtual_price,omitempty"`
	BlockNumber   uint64            `json:"block_number,omitempty"`
	Sequence      uint64            `json:"sequence,omitempty"`
	TakenAt       string            `json:"taken_at,omitempty"`
}

// TokenAddresses returns the token addresses in pool order.
func (s PoolSnapshot) TokenAddresses() []string {
	out := make([]string, len(s.Tokens))
	for i, token := range s.Tokens {
		out[i] = token.Address
	}
	return out
}
