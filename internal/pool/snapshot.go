package pool

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stablePool/internal/mathutil"
	"stablePool/internal/model"
)

// Snapshot renders the pool for persistence. LP holders are owned by the
// share ledger and are not included.
func (p *Pool) Snapshot() model.PoolSnapshot {
	snapshot := p.state.Snapshot()
	snapshot.ChainID = p.cfg.ChainID
	snapshot.Address = p.cfg.Address.Hex()
	snapshot.Sequence = p.seq
	if vp, err := p.state.virtualPrice(); err == nil {
		snapshot.VirtualPrice = mathutil.Format(vp)
	}
	return snapshot
}

// Snapshot renders the state alone.
func (s *State) Snapshot() model.PoolSnapshot {
	tokens := make([]model.TokenMeta, s.N())
	for i, token := range s.Tokens {
		tokens[i] = model.TokenMeta{Address: token.Hex(), Decimals: s.Decimals[i]}
		if i < len(s.Symbols) {
			tokens[i].Symbol = s.Symbols[i]
		}
	}
	return model.PoolSnapshot{
		Tokens:        tokens,
		Balances:      mathutil.FormatAll(s.Balances),
		AdminBalances: mathutil.FormatAll(s.AdminBalances),
		A:             s.A.Uint64(),
		SwapFee:       s.SwapFee.Uint64(),
		AdminFee:      s.AdminFee.Uint64(),
		LPTotalSupply: mathutil.Format(s.LPTotalSupply),
		Paused:        s.Paused,
	}
}

// StateFromSnapshot rebuilds a State, validating parameters and amounts.
func StateFromSnapshot(snapshot model.PoolSnapshot) (*State, error) {
	params := Params{
		Tokens:   make([]common.Address, len(snapshot.Tokens)),
		Decimals: make([]uint8, len(snapshot.Tokens)),
		Symbols:  make([]string, len(snapshot.Tokens)),
		A:        snapshot.A,
		SwapFee:  snapshot.SwapFee,
		AdminFee: snapshot.AdminFee,
		Paused:   snapshot.Paused,
	}
	for i, token := range snapshot.Tokens {
		addr := strings.TrimSpace(token.Address)
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: token %d: invalid address %q", ErrValidation, i, token.Address)
		}
		params.Tokens[i] = common.HexToAddress(addr)
		params.Decimals[i] = token.Decimals
		params.Symbols[i] = token.Symbol
	}
	state, err := NewState(params)
	if err != nil {
		return nil, err
	}

	if len(snapshot.Balances) != state.N() {
		return nil, fmt.Errorf("%w: got %d balances for %d tokens", ErrValidation, len(snapshot.Balances), state.N())
	}
	if state.Balances, err = mathutil.ParseAll(snapshot.Balances); err != nil {
		return nil, fmt.Errorf("%w: balances: %w", ErrValidation, err)
	}
	if len(snapshot.AdminBalances) > 0 {
		if len(snapshot.AdminBalances) != state.N() {
			return nil, fmt.Errorf("%w: got %d admin balances for %d tokens", ErrValidation, len(snapshot.AdminBalances), state.N())
		}
		if state.AdminBalances, err = mathutil.ParseAll(snapshot.AdminBalances); err != nil {
			return nil, fmt.Errorf("%w: admin balances: %w", ErrValidation, err)
		}
	}
	if state.LPTotalSupply, err = mathutil.Parse(snapshot.LPTotalSupply); err != nil {
		return nil, fmt.Errorf("%w: lp total supply: %w", ErrValidation, err)
	}
	if !state.LPTotalSupply.IsZero() && allZero(state.Balances) {
		return nil, fmt.Errorf("%w: supply %s backed by empty reserves", ErrValidation, snapshot.LPTotalSupply)
	}
	return state, nil
}

// Holdings returns the pool's custody of each token: LP balances plus
// withheld admin fees.
func (s *State) Holdings() []*uint256.Int {
	out := make([]*uint256.Int, s.N())
	for i := range out {
		out[i] = new(uint256.Int).Add(s.Balances[i], s.AdminBalances[i])
	}
	return out
}
