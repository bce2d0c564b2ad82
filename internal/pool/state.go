package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/multierr"

	"stablePool/internal/curve"
	"stablePool/internal/mathutil"
)

const (
	// PoolPrecisionDecimals is the fixed point every token is normalised to.
	PoolPrecisionDecimals = 18
	// FeeDenominator is the scale of SwapFee and AdminFee.
	FeeDenominator = 10_000_000_000
	MaxA           = 1_000_000
	MaxSwapFee     = 100_000_000
	MaxAdminFee    = FeeDenominator
)

var (
	one            = uint256.NewInt(1)
	feeDenominator = uint256.NewInt(FeeDenominator)
	precisionUnit  = uint256.NewInt(1_000_000_000_000_000_000)
)

// Params describes a pool at creation.
type Params struct {
	Tokens   []common.Address
	Decimals []uint8
	Symbols  []string
	A        uint64
	SwapFee  uint64
	AdminFee uint64
	Paused   bool
}

// State is the single mutable record every pool operation transforms.
// Balances hold raw token units; normalised balances are derived through
// PrecisionMultipliers. AdminBalances hold the admin share of collected fees,
// which the pool keeps in custody but excludes from Balances.
type State struct {
	Tokens               []common.Address
	Decimals             []uint8
	Symbols              []string
	PrecisionMultipliers []*uint256.Int
	Balances             []*uint256.Int
	AdminBalances        []*uint256.Int
	A                    *uint256.Int
	SwapFee              *uint256.Int
	AdminFee             *uint256.Int
	LPTotalSupply        *uint256.Int
	Paused               bool
}

// NewState validates params and returns an empty pool state.
func NewState(p Params) (*State, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(p.Tokens)
	state := &State{
		Tokens:               append([]common.Address(nil), p.Tokens...),
		Decimals:             append([]uint8(nil), p.Decimals...),
		Symbols:              make([]string, n),
		PrecisionMultipliers: make([]*uint256.Int, n),
		Balances:             make([]*uint256.Int, n),
		AdminBalances:        make([]*uint256.Int, n),
		A:                    uint256.NewInt(p.A),
		SwapFee:              uint256.NewInt(p.SwapFee),
		AdminFee:             uint256.NewInt(p.AdminFee),
		LPTotalSupply:        new(uint256.Int),
		Paused:               p.Paused,
	}
	copy(state.Symbols, p.Symbols)
	for i, decimals := range p.Decimals {
		state.PrecisionMultipliers[i] = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(PoolPrecisionDecimals-decimals)))
		state.Balances[i] = new(uint256.Int)
		state.AdminBalances[i] = new(uint256.Int)
	}
	return state, nil
}

// Validate reports every problem with p at once.
func (p Params) Validate() error {
	var errs error
	n := len(p.Tokens)
	if n < 2 {
		errs = multierr.Append(errs, fmt.Errorf("pool needs at least 2 tokens, got %d", n))
	}
	if len(p.Decimals) != n {
		errs = multierr.Append(errs, fmt.Errorf("decimals length %d does not match %d tokens", len(p.Decimals), n))
	}
	if len(p.Symbols) > n {
		errs = multierr.Append(errs, fmt.Errorf("got %d symbols for %d tokens", len(p.Symbols), n))
	}
	seen := make(map[common.Address]int, n)
	for i, token := range p.Tokens {
		if token == (common.Address{}) {
			errs = multierr.Append(errs, fmt.Errorf("token %d: zero address", i))
			continue
		}
		if prev, ok := seen[token]; ok {
			errs = multierr.Append(errs, fmt.Errorf("token %d: duplicate of token %d (%s)", i, prev, token.Hex()))
			continue
		}
		seen[token] = i
	}
	for i, decimals := range p.Decimals {
		if decimals > PoolPrecisionDecimals {
			errs = multierr.Append(errs, fmt.Errorf("token %d: decimals %d exceed %d", i, decimals, PoolPrecisionDecimals))
		}
	}
	if p.A == 0 || p.A > MaxA {
		errs = multierr.Append(errs, fmt.Errorf("a must be in [1, %d], got %d", MaxA, p.A))
	}
	if p.SwapFee > MaxSwapFee {
		errs = multierr.Append(errs, fmt.Errorf("swap fee %d exceeds %d", p.SwapFee, MaxSwapFee))
	}
	if p.AdminFee > MaxAdminFee {
		errs = multierr.Append(errs, fmt.Errorf("admin fee %d exceeds %d", p.AdminFee, MaxAdminFee))
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", ErrValidation, errs)
	}
	return nil
}

// N returns the number of pooled tokens.
func (s *State) N() int {
	return len(s.Tokens)
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	return &State{
		Tokens:               append([]common.Address(nil), s.Tokens...),
		Decimals:             append([]uint8(nil), s.Decimals...),
		Symbols:              append([]string(nil), s.Symbols...),
		PrecisionMultipliers: mathutil.CloneAll(s.PrecisionMultipliers),
		Balances:             mathutil.CloneAll(s.Balances),
		AdminBalances:        mathutil.CloneAll(s.AdminBalances),
		A:                    s.A.Clone(),
		SwapFee:              s.SwapFee.Clone(),
		AdminFee:             s.AdminFee.Clone(),
		LPTotalSupply:        s.LPTotalSupply.Clone(),
		Paused:               s.Paused,
	}
}

// Invariant returns D of the current balances.
func (s *State) Invariant() (*uint256.Int, error) {
	return s.invariantOf(s.Balances)
}

func (s *State) xpOf(balances []*uint256.Int) ([]*uint256.Int, error) {
	var c mathutil.Checked
	xp := make([]*uint256.Int, len(balances))
	for i, balance := range balances {
		xp[i] = c.Mul(balance, s.PrecisionMultipliers[i])
	}
	if err := c.Err(); err != nil {
		return nil, solverError(err)
	}
	return xp, nil
}

func (s *State) invariantOf(balances []*uint256.Int) (*uint256.Int, error) {
	xp, err := s.xpOf(balances)
	if err != nil {
		return nil, err
	}
	d, err := curve.ComputeD(xp, s.A)
	if err != nil {
		return nil, solverError(err)
	}
	return d, nil
}

// feePerToken scales the swap fee to the imbalance fee charged per token.
func (s *State) feePerToken() *uint256.Int {
	n := uint64(s.N())
	fee := new(uint256.Int).Mul(s.SwapFee, uint256.NewInt(n))
	return fee.Div(fee, uint256.NewInt(4*(n-1)))
}

func (s *State) checkIndex(i int) error {
	if i < 0 || i >= s.N() {
		return fmt.Errorf("%w: token index %d out of range [0, %d)", ErrValidation, i, s.N())
	}
	return nil
}

func (s *State) checkAmounts(amounts []*uint256.Int) error {
	if len(amounts) != s.N() {
		return fmt.Errorf("%w: got %d amounts for %d tokens", ErrValidation, len(amounts), s.N())
	}
	for i, amount := range amounts {
		if amount == nil {
			return fmt.Errorf("%w: amount %d is missing", ErrValidation, i)
		}
	}
	return nil
}

func allZero(xs []*uint256.Int) bool {
	for _, x := range xs {
		if !x.IsZero() {
			return false
		}
	}
	return true
}
