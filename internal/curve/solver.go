package curve

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"stablePool/internal/mathutil"
)

// MaxIterations bounds every Newton loop in this package.
const MaxIterations = 256

// maxIterations is the bound in force; tests lower it.
var maxIterations = MaxIterations

var (
	ErrNotConverged  = errors.New("invariant did not converge")
	ErrZeroBalance   = errors.New("zero balance in invariant")
	ErrIndex         = errors.New("invalid token index")
	ErrAmplification = errors.New("amplification must be positive")
)

// ComputeD returns the stableswap invariant of the normalised balances xp.
// amp is stored premultiplied by n^(n-1), so the iteration uses Ann = amp*n.
func ComputeD(xp []*uint256.Int, amp *uint256.Int) (*uint256.Int, error) {
	if amp == nil || amp.IsZero() {
		return nil, ErrAmplification
	}
	var c mathutil.Checked
	sum := c.Sum(xp)
	if err := c.Err(); err != nil {
		return nil, err
	}
	if sum.IsZero() {
		return new(uint256.Int), nil
	}
	for i, x := range xp {
		if x.IsZero() {
			return nil, fmt.Errorf("%w: token %d", ErrZeroBalance, i)
		}
	}

	n := uint256.NewInt(uint64(len(xp)))
	nPlusOne := uint256.NewInt(uint64(len(xp) + 1))
	ann := c.Mul(amp, n)
	annMinusOne := c.Sub(ann, uint256.NewInt(1))
	annSum := c.Mul(ann, sum)

	d := sum.Clone()
	for iter := 0; iter < maxIterations; iter++ {
		dP := d.Clone()
		for _, x := range xp {
			dP = c.MulDiv(dP, d, c.Mul(x, n))
		}
		prev := d
		numerator := c.Add(annSum, c.Mul(dP, n))
		denominator := c.Add(c.Mul(annMinusOne, d), c.Mul(nPlusOne, dP))
		d = c.MulDiv(numerator, d, denominator)
		if err := c.Err(); err != nil {
			return nil, err
		}
		if mathutil.Within1(d, prev) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: D after %d iterations", ErrNotConverged, maxIterations)
}

// ComputeY returns the new balance of token `to` once token `from` moves to
// the normalised balance x, keeping the invariant of xp constant.
func ComputeY(from, to int, x *uint256.Int, xp []*uint256.Int, amp *uint256.Int) (*uint256.Int, error) {
	n := len(xp)
	if from == to || from < 0 || to < 0 || from >= n || to >= n {
		return nil, fmt.Errorf("%w: from %d to %d of %d", ErrIndex, from, to, n)
	}
	d, err := ComputeD(xp, amp)
	if err != nil {
		return nil, err
	}
	others := make([]*uint256.Int, 0, n-1)
	for i := range xp {
		switch i {
		case from:
			others = append(others, x)
		case to:
		default:
			others = append(others, xp[i])
		}
	}
	return solveY(amp, d, others, n)
}

// ComputeYGivenD returns the balance of token idx that keeps the invariant at
// d with every other balance of xp unchanged. xp[idx] is ignored.
func ComputeYGivenD(amp *uint256.Int, idx int, xp []*uint256.Int, d *uint256.Int) (*uint256.Int, error) {
	n := len(xp)
	if idx < 0 || idx >= n {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndex, idx, n)
	}
	if amp == nil || amp.IsZero() {
		return nil, ErrAmplification
	}
	others := make([]*uint256.Int, 0, n-1)
	for i := range xp {
		if i != idx {
			others = append(others, xp[i])
		}
	}
	return solveY(amp, d, others, n)
}

func solveY(amp, d *uint256.Int, others []*uint256.Int, n int) (*uint256.Int, error) {
	var c mathutil.Checked
	nInt := uint256.NewInt(uint64(n))
	ann := c.Mul(amp, nInt)

	cc := d.Clone()
	sum := new(uint256.Int)
	for i, x := range others {
		if x.IsZero() {
			return nil, fmt.Errorf("%w: counterpart %d", ErrZeroBalance, i)
		}
		sum = c.Add(sum, x)
		cc = c.MulDiv(cc, d, c.Mul(x, nInt))
	}
	cc = c.MulDiv(cc, d, c.Mul(ann, nInt))
	b := c.Add(sum, c.Div(d, ann))
	if err := c.Err(); err != nil {
		return nil, err
	}

	y := d.Clone()
	for iter := 0; iter < maxIterations; iter++ {
		prev := y
		numerator := c.Add(c.Mul(y, y), cc)
		denominator := c.Sub(c.Add(c.Add(y, y), b), d)
		y = c.Div(numerator, denominator)
		if err := c.Err(); err != nil {
			return nil, err
		}
		if mathutil.Within1(y, prev) {
			return y, nil
		}
	}
	return nil, fmt.Errorf("%w: y after %d iterations", ErrNotConverged, maxIterations)
}
