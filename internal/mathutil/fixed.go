package mathutil

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("uint256 overflow")
	ErrUnderflow      = errors.New("uint256 underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

var one = uint256.NewInt(1)

// AbsDiff returns |a-b|.
func AbsDiff(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return new(uint256.Int).Sub(a, b)
	}
	return new(uint256.Int).Sub(b, a)
}

// Within1 reports whether a and b differ by at most one unit.
func Within1(a, b *uint256.Int) bool {
	return !AbsDiff(a, b).Gt(one)
}

// Checked chains uint256 arithmetic and keeps the first error. Once an error
// is recorded every further call returns zero, so a sequence of operations
// can be written inline and inspected once with Err.
type Checked struct {
	err error
}

// Err returns the first error seen.
func (c *Checked) Err() error {
	return c.err
}

func (c *Checked) fail(err error, op string, a, b *uint256.Int) *uint256.Int {
	if c.err == nil {
		c.err = fmt.Errorf("%w: %s(%s, %s)", err, op, Format(a), Format(b))
	}
	return new(uint256.Int)
}

func (c *Checked) Add(a, b *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return c.fail(ErrOverflow, "add", a, b)
	}
	return z
}

func (c *Checked) Sub(a, b *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return c.fail(ErrUnderflow, "sub", a, b)
	}
	return z
}

func (c *Checked) Mul(a, b *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return c.fail(ErrOverflow, "mul", a, b)
	}
	return z
}

func (c *Checked) Div(a, b *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	if b.IsZero() {
		return c.fail(ErrDivisionByZero, "div", a, b)
	}
	return new(uint256.Int).Div(a, b)
}

// MulDiv returns a*b/d using a 512-bit intermediate product.
func (c *Checked) MulDiv(a, b, d *uint256.Int) *uint256.Int {
	if c.err != nil {
		return new(uint256.Int)
	}
	if d.IsZero() {
		return c.fail(ErrDivisionByZero, "muldiv", a, b)
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return c.fail(ErrOverflow, "muldiv", a, b)
	}
	return z
}

// Sum adds every value in xs.
func (c *Checked) Sum(xs []*uint256.Int) *uint256.Int {
	total := new(uint256.Int)
	for _, x := range xs {
		total = c.Add(total, x)
	}
	return total
}

// MulDiv is the single-shot form of Checked.MulDiv.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	var c Checked
	z := c.MulDiv(a, b, d)
	return z, c.Err()
}

// Parse reads a base-10 unsigned integer.
func Parse(value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty amount")
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", value)
	}
	z, overflow := uint256.FromBig(parsed)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrOverflow, value)
	}
	return z, nil
}

// ParseAll parses every value, reporting the index of the first bad entry.
func ParseAll(values []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(values))
	for i, value := range values {
		parsed, err := Parse(value)
		if err != nil {
			return nil, fmt.Errorf("amount %d: %w", i, err)
		}
		out[i] = parsed
	}
	return out, nil
}

// Format renders x in base 10; nil renders as "0".
func Format(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.ToBig().String()
}

// FormatAll renders every value in base 10.
func FormatAll(xs []*uint256.Int) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = Format(x)
	}
	return out
}

// CloneAll deep-copies a vector.
func CloneAll(xs []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(xs))
	for i, x := range xs {
		if x == nil {
			out[i] = new(uint256.Int)
			continue
		}
		out[i] = x.Clone()
	}
	return out
}
