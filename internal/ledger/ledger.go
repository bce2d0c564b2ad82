package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stablePool/internal/mathutil"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrZeroAddress         = errors.New("zero address")
)

// book is an address-keyed balance map with a running supply.
type book struct {
	mu       sync.RWMutex
	balances map[common.Address]*uint256.Int
	supply   *uint256.Int
}

func (b *book) init() {
	b.balances = make(map[common.Address]*uint256.Int)
	b.supply = new(uint256.Int)
}

func (b *book) BalanceOf(holder common.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if balance, ok := b.balances[holder]; ok {
		return balance.Clone()
	}
	return new(uint256.Int)
}

func (b *book) TotalSupply() *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.supply.Clone()
}

func (b *book) credit(holder common.Address, amount *uint256.Int) error {
	if holder == (common.Address{}) {
		return ErrZeroAddress
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	supply, overflow := new(uint256.Int).AddOverflow(b.supply, amount)
	if overflow {
		return mathutil.ErrOverflow
	}
	current := b.balances[holder]
	if current == nil {
		current = new(uint256.Int)
	}
	b.balances[holder] = new(uint256.Int).Add(current, amount)
	b.supply = supply
	return nil
}

func (b *book) debit(holder common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.balances[holder]
	if current == nil || current.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, holder.Hex(), mathutil.Format(current), mathutil.Format(amount))
	}
	b.balances[holder] = new(uint256.Int).Sub(current, amount)
	b.supply = new(uint256.Int).Sub(b.supply, amount)
	return nil
}

func (b *book) move(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.balances[from]
	if current == nil || current.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), mathutil.Format(current), mathutil.Format(amount))
	}
	b.balances[from] = new(uint256.Int).Sub(current, amount)
	dest := b.balances[to]
	if dest == nil {
		dest = new(uint256.Int)
	}
	b.balances[to] = new(uint256.Int).Add(dest, amount)
	return nil
}

// Holders returns every non-zero balance keyed by hex address.
func (b *book) Holders() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.balances))
	for holder, balance := range b.balances {
		if balance.IsZero() {
			continue
		}
		out[holder.Hex()] = mathutil.Format(balance)
	}
	return out
}

// HolderAddresses returns the holders with a non-zero balance in a stable order.
func (b *book) HolderAddresses() []common.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]common.Address, 0, len(b.balances))
	for holder, balance := range b.balances {
		if !balance.IsZero() {
			out = append(out, holder)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Token is an in-memory fungible token ledger.
type Token struct {
	book
	address common.Address
	symbol  string
}

func NewToken(address common.Address, symbol string) *Token {
	t := &Token{address: address, symbol: symbol}
	t.init()
	return t
}

func (t *Token) Address() common.Address { return t.address }

func (t *Token) Symbol() string { return t.symbol }

// Mint credits holder with freshly issued tokens.
func (t *Token) Mint(holder common.Address, amount *uint256.Int) error {
	return t.credit(holder, amount)
}

// TransferFrom moves amount out of from. There is no allowance model: the
// pool is trusted to pull what the caller asked it to.
func (t *Token) TransferFrom(from, to common.Address, amount *uint256.Int) error {
	if err := t.move(from, to, amount); err != nil {
		return fmt.Errorf("%s transferFrom: %w", t.symbol, err)
	}
	return nil
}

func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	if err := t.move(from, to, amount); err != nil {
		return fmt.Errorf("%s transfer: %w", t.symbol, err)
	}
	return nil
}

// Shares is an in-memory LP share ledger.
type Shares struct {
	book
}

func NewShares() *Shares {
	s := &Shares{}
	s.init()
	return s
}

func (s *Shares) Mint(holder common.Address, amount *uint256.Int) error {
	return s.credit(holder, amount)
}

func (s *Shares) BurnFrom(holder common.Address, amount *uint256.Int) error {
	return s.debit(holder, amount)
}

// LoadShares rebuilds a share ledger from a holder map as produced by Holders.
func LoadShares(holders map[string]string) (*Shares, error) {
	shares := NewShares()
	for holder, value := range holders {
		if !common.IsHexAddress(holder) {
			return nil, fmt.Errorf("invalid holder address %q", holder)
		}
		amount, err := mathutil.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("holder %s: %w", holder, err)
		}
		if err := shares.Mint(common.HexToAddress(holder), amount); err != nil {
			return nil, fmt.Errorf("holder %s: %w", holder, err)
		}
	}
	return shares, nil
}
