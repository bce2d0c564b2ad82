package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"stablePool/internal/curve"
	"stablePool/internal/mathutil"
)

type swapQuote struct {
	dy       *uint256.Int // output in raw units of the bought token, after fee
	fee      *uint256.Int // normalised fee
	adminFee *uint256.Int // raw units withheld for the admin
}

type liquidityQuote struct {
	shares    *uint256.Int
	fees      []*uint256.Int
	adminFees []*uint256.Int
	invariant *uint256.Int
	balances  []*uint256.Int
}

type oneTokenQuote struct {
	dy       *uint256.Int
	fee      *uint256.Int
	adminFee *uint256.Int
}

func (s *State) calculateSwap(i, j int, dx *uint256.Int) (swapQuote, error) {
	if err := s.checkIndex(i); err != nil {
		return swapQuote{}, err
	}
	if err := s.checkIndex(j); err != nil {
		return swapQuote{}, err
	}
	if i == j {
		return swapQuote{}, fmt.Errorf("%w: cannot swap token %d with itself", ErrValidation, i)
	}
	if dx == nil || dx.IsZero() {
		return swapQuote{}, fmt.Errorf("%w: swap amount must be positive", ErrValidation)
	}
	if s.LPTotalSupply.IsZero() {
		return swapQuote{}, fmt.Errorf("%w: pool is empty", ErrValidation)
	}
	xp, err := s.xpOf(s.Balances)
	if err != nil {
		return swapQuote{}, err
	}

	var c mathutil.Checked
	x := c.Add(c.Mul(dx, s.PrecisionMultipliers[i]), xp[i])
	if err := c.Err(); err != nil {
		return swapQuote{}, solverError(err)
	}
	y, err := curve.ComputeY(i, j, x, xp, s.A)
	if err != nil {
		return swapQuote{}, solverError(err)
	}
	if !xp[j].Gt(new(uint256.Int).Add(y, one)) {
		return swapQuote{}, fmt.Errorf("%w: swap of %s yields no output", ErrValidation, mathutil.Format(dx))
	}
	dy := c.Sub(c.Sub(xp[j], y), one)
	fee := c.Div(c.Mul(dy, s.SwapFee), feeDenominator)
	out := c.Div(c.Sub(dy, fee), s.PrecisionMultipliers[j])
	adminFee := c.Div(c.Div(c.Mul(fee, s.AdminFee), feeDenominator), s.PrecisionMultipliers[j])
	debit := c.Add(out, adminFee)
	if err := c.Err(); err != nil {
		return swapQuote{}, solverError(err)
	}
	if debit.Gt(s.Balances[j]) {
		return swapQuote{}, fmt.Errorf("%w: token %d", ErrWithdrawExceedsReserves, j)
	}
	return swapQuote{dy: out, fee: fee, adminFee: adminFee}, nil
}

// imbalanceFees charges the per-token imbalance fee of moving from old to
// updated, where d0 and d1 are their invariants. It returns the fees, the
// admin portions, the balances to store and the fee-adjusted balances.
func (s *State) imbalanceFees(old, updated []*uint256.Int, d0, d1 *uint256.Int) (fees, adminFees, stored, accounted []*uint256.Int, err error) {
	n := s.N()
	fees = make([]*uint256.Int, n)
	adminFees = make([]*uint256.Int, n)
	stored = make([]*uint256.Int, n)
	accounted = make([]*uint256.Int, n)
	perToken := s.feePerToken()

	var c mathutil.Checked
	for i := range updated {
		ideal := c.MulDiv(d1, old[i], d0)
		fees[i] = c.Div(c.Mul(perToken, mathutil.AbsDiff(ideal, updated[i])), feeDenominator)
		adminFees[i] = c.Div(c.Mul(fees[i], s.AdminFee), feeDenominator)
		if fees[i].Gt(updated[i]) {
			return nil, nil, nil, nil, fmt.Errorf("%w: fee on token %d exceeds its balance", ErrWithdrawExceedsReserves, i)
		}
		stored[i] = c.Sub(updated[i], adminFees[i])
		accounted[i] = c.Sub(updated[i], fees[i])
	}
	if err := c.Err(); err != nil {
		return nil, nil, nil, nil, solverError(err)
	}
	return fees, adminFees, stored, accounted, nil
}

func (s *State) calculateAddLiquidity(amounts []*uint256.Int) (liquidityQuote, error) {
	if err := s.checkAmounts(amounts); err != nil {
		return liquidityQuote{}, err
	}
	initial := s.LPTotalSupply.IsZero()
	if initial {
		for i, amount := range amounts {
			if amount.IsZero() {
				return liquidityQuote{}, fmt.Errorf("%w: token %d", ErrZeroDeposit, i)
			}
		}
	} else if allZero(amounts) {
		return liquidityQuote{}, fmt.Errorf("%w: deposit is empty", ErrValidation)
	}

	d0 := new(uint256.Int)
	if !initial {
		var err error
		if d0, err = s.invariantOf(s.Balances); err != nil {
			return liquidityQuote{}, err
		}
	}

	var c mathutil.Checked
	updated := make([]*uint256.Int, s.N())
	for i := range updated {
		updated[i] = c.Add(s.Balances[i], amounts[i])
	}
	if err := c.Err(); err != nil {
		return liquidityQuote{}, solverError(err)
	}
	d1, err := s.invariantOf(updated)
	if err != nil {
		return liquidityQuote{}, err
	}
	if !d1.Gt(d0) {
		return liquidityQuote{}, fmt.Errorf("%w: deposit does not increase the invariant", ErrValidation)
	}

	if initial {
		return liquidityQuote{
			shares:    d1,
			fees:      zeros(s.N()),
			adminFees: zeros(s.N()),
			invariant: d1,
			balances:  updated,
		}, nil
	}

	fees, adminFees, stored, accounted, err := s.imbalanceFees(s.Balances, updated, d0, d1)
	if err != nil {
		return liquidityQuote{}, err
	}
	d2, err := s.invariantOf(accounted)
	if err != nil {
		return liquidityQuote{}, err
	}
	minted := c.MulDiv(s.LPTotalSupply, c.Sub(d2, d0), d0)
	if err := c.Err(); err != nil {
		return liquidityQuote{}, solverError(err)
	}
	return liquidityQuote{
		shares:    minted,
		fees:      fees,
		adminFees: adminFees,
		invariant: d1,
		balances:  stored,
	}, nil
}

func (s *State) calculateRemoveLiquidity(lpAmount *uint256.Int) ([]*uint256.Int, error) {
	if err := s.checkShares(lpAmount); err != nil {
		return nil, err
	}
	var c mathutil.Checked
	out := make([]*uint256.Int, s.N())
	for i, balance := range s.Balances {
		out[i] = c.MulDiv(balance, lpAmount, s.LPTotalSupply)
	}
	if err := c.Err(); err != nil {
		return nil, solverError(err)
	}
	return out, nil
}

func (s *State) calculateRemoveImbalance(amounts []*uint256.Int) (liquidityQuote, error) {
	if err := s.checkAmounts(amounts); err != nil {
		return liquidityQuote{}, err
	}
	if s.LPTotalSupply.IsZero() {
		return liquidityQuote{}, fmt.Errorf("%w: pool is empty", ErrValidation)
	}
	reduced := make([]*uint256.Int, s.N())
	for i, amount := range amounts {
		if amount.Gt(s.Balances[i]) {
			return liquidityQuote{}, fmt.Errorf("%w: token %d: %s > %s", ErrWithdrawExceedsReserves, i, mathutil.Format(amount), mathutil.Format(s.Balances[i]))
		}
		reduced[i] = new(uint256.Int).Sub(s.Balances[i], amount)
	}

	d0, err := s.invariantOf(s.Balances)
	if err != nil {
		return liquidityQuote{}, err
	}
	d1, err := s.invariantOf(reduced)
	if err != nil {
		return liquidityQuote{}, err
	}
	fees, adminFees, stored, accounted, err := s.imbalanceFees(s.Balances, reduced, d0, d1)
	if err != nil {
		return liquidityQuote{}, err
	}
	d2, err := s.invariantOf(accounted)
	if err != nil {
		return liquidityQuote{}, err
	}

	var c mathutil.Checked
	burned := c.MulDiv(c.Sub(d0, d2), s.LPTotalSupply, d0)
	if err := c.Err(); err != nil {
		return liquidityQuote{}, solverError(err)
	}
	if burned.IsZero() {
		return liquidityQuote{}, fmt.Errorf("%w: withdrawal burns no shares", ErrValidation)
	}
	if burned.Gt(s.LPTotalSupply) {
		return liquidityQuote{}, fmt.Errorf("%w: burn exceeds supply", ErrWithdrawExceedsReserves)
	}
	return liquidityQuote{
		shares:    burned,
		fees:      fees,
		adminFees: adminFees,
		invariant: d1,
		balances:  stored,
	}, nil
}

func (s *State) calculateRemoveOneToken(lpAmount *uint256.Int, idx int) (oneTokenQuote, error) {
	if err := s.checkIndex(idx); err != nil {
		return oneTokenQuote{}, err
	}
	if err := s.checkShares(lpAmount); err != nil {
		return oneTokenQuote{}, err
	}
	xp, err := s.xpOf(s.Balances)
	if err != nil {
		return oneTokenQuote{}, err
	}
	d0, err := curve.ComputeD(xp, s.A)
	if err != nil {
		return oneTokenQuote{}, solverError(err)
	}

	var c mathutil.Checked
	d1 := c.Sub(d0, c.MulDiv(lpAmount, d0, s.LPTotalSupply))
	if err := c.Err(); err != nil {
		return oneTokenQuote{}, solverError(err)
	}
	newY, err := curve.ComputeYGivenD(s.A, idx, xp, d1)
	if err != nil {
		return oneTokenQuote{}, solverError(err)
	}

	perToken := s.feePerToken()
	reduced := make([]*uint256.Int, len(xp))
	for k, x := range xp {
		var expected *uint256.Int
		if k == idx {
			expected = c.Sub(c.MulDiv(x, d1, d0), newY)
		} else {
			expected = c.Sub(x, c.MulDiv(x, d1, d0))
		}
		reduced[k] = c.Sub(x, c.Div(c.Mul(expected, perToken), feeDenominator))
	}
	if err := c.Err(); err != nil {
		return oneTokenQuote{}, solverError(err)
	}
	reducedY, err := curve.ComputeYGivenD(s.A, idx, reduced, d1)
	if err != nil {
		return oneTokenQuote{}, solverError(err)
	}
	if !reduced[idx].Gt(reducedY) {
		return oneTokenQuote{}, fmt.Errorf("%w: withdrawal yields no output", ErrValidation)
	}
	mult := s.PrecisionMultipliers[idx]
	dy := c.Div(c.Sub(c.Sub(reduced[idx], reducedY), one), mult)
	fee := c.Sub(c.Div(c.Sub(xp[idx], newY), mult), dy)
	adminFee := c.Div(c.Mul(fee, s.AdminFee), feeDenominator)
	debit := c.Add(dy, adminFee)
	if err := c.Err(); err != nil {
		return oneTokenQuote{}, solverError(err)
	}
	if debit.Gt(s.Balances[idx]) {
		return oneTokenQuote{}, fmt.Errorf("%w: token %d", ErrWithdrawExceedsReserves, idx)
	}
	return oneTokenQuote{dy: dy, fee: fee, adminFee: adminFee}, nil
}

func (s *State) calculateTokenAmount(amounts []*uint256.Int, deposit bool) (*uint256.Int, error) {
	if err := s.checkAmounts(amounts); err != nil {
		return nil, err
	}
	d0, err := s.invariantOf(s.Balances)
	if err != nil {
		return nil, err
	}
	var c mathutil.Checked
	updated := make([]*uint256.Int, s.N())
	for i, amount := range amounts {
		if deposit {
			updated[i] = c.Add(s.Balances[i], amount)
			continue
		}
		if amount.Gt(s.Balances[i]) {
			return nil, fmt.Errorf("%w: token %d", ErrWithdrawExceedsReserves, i)
		}
		updated[i] = c.Sub(s.Balances[i], amount)
	}
	if err := c.Err(); err != nil {
		return nil, solverError(err)
	}
	d1, err := s.invariantOf(updated)
	if err != nil {
		return nil, err
	}
	if s.LPTotalSupply.IsZero() {
		if !deposit {
			return nil, fmt.Errorf("%w: pool is empty", ErrValidation)
		}
		return d1, nil
	}
	var diff *uint256.Int
	if deposit {
		diff = c.Sub(d1, d0)
	} else {
		diff = c.Sub(d0, d1)
	}
	amount := c.MulDiv(diff, s.LPTotalSupply, d0)
	if err := c.Err(); err != nil {
		return nil, solverError(err)
	}
	return amount, nil
}

func (s *State) virtualPrice() (*uint256.Int, error) {
	if s.LPTotalSupply.IsZero() {
		return new(uint256.Int), nil
	}
	d, err := s.invariantOf(s.Balances)
	if err != nil {
		return nil, err
	}
	vp, err := mathutil.MulDiv(d, precisionUnit, s.LPTotalSupply)
	if err != nil {
		return nil, solverError(err)
	}
	return vp, nil
}

func (s *State) checkShares(lpAmount *uint256.Int) error {
	if lpAmount == nil || lpAmount.IsZero() {
		return fmt.Errorf("%w: share amount must be positive", ErrValidation)
	}
	if lpAmount.Gt(s.LPTotalSupply) {
		return fmt.Errorf("%w: share amount %s exceeds supply %s", ErrValidation, mathutil.Format(lpAmount), mathutil.Format(s.LPTotalSupply))
	}
	return nil
}

func zeros(n int) []*uint256.Int {
	out := make([]*uint256.Int, n)
	for i := range out {
		out[i] = new(uint256.Int)
	}
	return out
}
