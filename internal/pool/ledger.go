package pool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stablePool/internal/model"
)

// TokenLedger moves one pooled token between holders.
type TokenLedger interface {
	TransferFrom(from, to common.Address, amount *uint256.Int) error
	Transfer(from, to common.Address, amount *uint256.Int) error
	BalanceOf(holder common.Address) *uint256.Int
}

// ShareLedger tracks the pool's LP shares.
type ShareLedger interface {
	Mint(holder common.Address, amount *uint256.Int) error
	BurnFrom(holder common.Address, amount *uint256.Int) error
	TotalSupply() *uint256.Int
	BalanceOf(holder common.Address) *uint256.Int
}

// EventSink receives one record per committed operation.
type EventSink interface {
	Record(event model.PoolEvent) error
}
