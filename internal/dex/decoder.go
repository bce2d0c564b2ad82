package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"

	"stablePool/internal/model"
)

// ContractCaller executes read-only contract calls. *chain.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.PoolEvent, error)
}

// DecodeContext provides shared dependencies for decoders.
type DecodeContext struct {
	Context        context.Context
	Caller         ContractCaller
	PoolMetaCache  *PoolMetaCache
	TokenMetaCache *TokenMetaCache
	Logger         *zap.Logger
}
