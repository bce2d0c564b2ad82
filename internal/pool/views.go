package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// GetA returns the amplification coefficient.
func (p *Pool) GetA() *uint256.Int {
	return p.state.A.Clone()
}

func (p *Pool) GetToken(i int) (common.Address, error) {
	if err := p.state.checkIndex(i); err != nil {
		return common.Address{}, err
	}
	return p.state.Tokens[i], nil
}

func (p *Pool) GetTokenIndex(token common.Address) (int, error) {
	for i, candidate := range p.state.Tokens {
		if candidate == token {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: token %s is not in the pool", ErrValidation, token.Hex())
}

// GetTokenBalance returns the LP-owned balance of token i in raw units.
func (p *Pool) GetTokenBalance(i int) (*uint256.Int, error) {
	if err := p.state.checkIndex(i); err != nil {
		return nil, err
	}
	return p.state.Balances[i].Clone(), nil
}

// GetAdminBalance returns the admin fees withheld in token i.
func (p *Pool) GetAdminBalance(i int) (*uint256.Int, error) {
	if err := p.state.checkIndex(i); err != nil {
		return nil, err
	}
	return p.state.AdminBalances[i].Clone(), nil
}

func (p *Pool) Paused() bool {
	return p.state.Paused
}

// GetVirtualPrice returns D*1e18/supply, or 0 for an empty pool.
func (p *Pool) GetVirtualPrice() (*uint256.Int, error) {
	return p.state.virtualPrice()
}

// CalculateSwap quotes the output of selling dx of token i for token j.
func (p *Pool) CalculateSwap(i, j int, dx *uint256.Int) (*uint256.Int, error) {
	quote, err := p.state.calculateSwap(i, j, dx)
	if err != nil {
		return nil, err
	}
	return quote.dy, nil
}

// CalculateTokenAmount estimates the shares minted by a deposit or burned by
// a withdrawal of amounts. It ignores fees.
func (p *Pool) CalculateTokenAmount(amounts []*uint256.Int, deposit bool) (*uint256.Int, error) {
	return p.state.calculateTokenAmount(amounts, deposit)
}

func (p *Pool) CalculateRemoveLiquidity(lpAmount *uint256.Int) ([]*uint256.Int, error) {
	return p.state.calculateRemoveLiquidity(lpAmount)
}

func (p *Pool) CalculateRemoveLiquidityOneToken(lpAmount *uint256.Int, idx int) (*uint256.Int, error) {
	quote, err := p.state.calculateRemoveOneToken(lpAmount, idx)
	if err != nil {
		return nil, err
	}
	return quote.dy, nil
}

// State returns a copy of the current pool state.
func (p *Pool) State() *State {
	return p.state.Clone()
}
