package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stablePool/internal/model"
)

const (
	// maxPoolTokens bounds token discovery; getToken reverts past the last index.
	maxPoolTokens = 32

	defaultTokenCacheSize = 1024
	fetchConcurrency      = 8
)

// PoolMetaCache caches pool metadata by address.
type PoolMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.PoolMeta
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{data: make(map[common.Address]model.PoolMeta)}
}

func (c *PoolMetaCache) Get(address common.Address) (model.PoolMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PoolMetaCache) Set(address common.Address, meta model.PoolMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// TokenMetaCache is a bounded cache of token metadata by address.
type TokenMetaCache struct {
	cache *lru.Cache[common.Address, model.TokenMeta]
}

// NewTokenMetaCache builds a cache holding at most size entries; size <= 0
// selects the default.
func NewTokenMetaCache(size int) (*TokenMetaCache, error) {
	if size <= 0 {
		size = defaultTokenCacheSize
	}
	cache, err := lru.New[common.Address, model.TokenMeta](size)
	if err != nil {
		return nil, fmt.Errorf("token meta cache: %w", err)
	}
	return &TokenMetaCache{cache: cache}, nil
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	return c.cache.Get(address)
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.cache.Add(address, meta)
}

// FetchPoolMeta loads pool parameters and token list from chain.
func FetchPoolMeta(ctx context.Context, caller ContractCaller, pool common.Address, tokenCache *TokenMetaCache, logger *zap.Logger) (model.PoolMeta, error) {
	snapshot, err := FetchPoolState(ctx, caller, pool, nil, tokenCache, logger)
	if err != nil {
		return model.PoolMeta{}, err
	}
	return model.PoolMeta{
		Tokens:        snapshot.TokenAddresses(),
		A:             snapshot.A,
		SwapFee:       snapshot.SwapFee,
		AdminFee:      snapshot.AdminFee,
		VirtualPrice:  snapshot.VirtualPrice,
		LPTotalSupply: snapshot.LPTotalSupply,
	}, nil
}

// FetchPoolState reads a full pool snapshot at block (nil for latest). LP
// holder balances are not enumerable on chain and are left empty.
func FetchPoolState(ctx context.Context, caller ContractCaller, pool common.Address, block *big.Int, tokenCache *TokenMetaCache, logger *zap.Logger) (model.PoolSnapshot, error) {
	if caller == nil {
		return model.PoolSnapshot{}, fmt.Errorf("contract caller is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	poolABI, err := PoolABI()
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("parse pool abi: %w", err)
	}

	tokens, err := discoverTokens(ctx, caller, pool, poolABI, block)
	if err != nil {
		return model.PoolSnapshot{}, err
	}

	snapshot := model.PoolSnapshot{
		Address:       pool.Hex(),
		Tokens:        make([]model.TokenMeta, len(tokens)),
		Balances:      make([]string, len(tokens)),
		AdminBalances: make([]string, len(tokens)),
	}
	if block != nil {
		snapshot.BlockNumber = block.Uint64()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	g.Go(func() error {
		values, err := callPoolMethod(gctx, caller, pool, poolABI, "getA", block)
		if err != nil {
			return err
		}
		a, err := asBigInt(values[0])
		if err != nil {
			return fmt.Errorf("getA: %w", err)
		}
		snapshot.A = a.Uint64()
		return nil
	})
	g.Go(func() error {
		values, err := callPoolMethod(gctx, caller, pool, poolABI, "swapStorage", block)
		if err != nil {
			return err
		}
		if len(values) != 7 {
			return fmt.Errorf("swapStorage: unexpected values: %d", len(values))
		}
		swapFee, err := asBigInt(values[4])
		if err != nil {
			return fmt.Errorf("swapStorage fee: %w", err)
		}
		adminFee, err := asBigInt(values[5])
		if err != nil {
			return fmt.Errorf("swapStorage admin fee: %w", err)
		}
		lpToken, err := asAddress(values[6])
		if err != nil {
			return fmt.Errorf("swapStorage lp token: %w", err)
		}
		snapshot.SwapFee = swapFee.Uint64()
		snapshot.AdminFee = adminFee.Uint64()
		snapshot.LPToken = lpToken.Hex()

		supply, err := callERC20(gctx, caller, lpToken, "totalSupply", block)
		if err != nil {
			return err
		}
		total, err := asBigInt(supply[0])
		if err != nil {
			return fmt.Errorf("lp totalSupply: %w", err)
		}
		snapshot.LPTotalSupply = total.String()
		return nil
	})
	g.Go(func() error {
		values, err := callPoolMethod(gctx, caller, pool, poolABI, "getVirtualPrice", block)
		if err != nil {
			// reverts on an empty pool
			logger.Debug("virtual price unavailable", zap.String("pool", pool.Hex()), zap.Error(err))
			return nil
		}
		price, err := asBigInt(values[0])
		if err != nil {
			return fmt.Errorf("getVirtualPrice: %w", err)
		}
		snapshot.VirtualPrice = price.String()
		return nil
	})
	g.Go(func() error {
		values, err := callPoolMethod(gctx, caller, pool, poolABI, "paused", block)
		if err != nil {
			return err
		}
		paused, ok := values[0].(bool)
		if !ok {
			return fmt.Errorf("paused: unsupported type %T", values[0])
		}
		snapshot.Paused = paused
		return nil
	})

	for i, token := range tokens {
		i, token := i, token
		g.Go(func() error {
			values, err := callPoolMethod(gctx, caller, pool, poolABI, "getTokenBalance", block, uint8(i))
			if err != nil {
				return err
			}
			balance, err := asBigInt(values[0])
			if err != nil {
				return fmt.Errorf("getTokenBalance(%d): %w", i, err)
			}
			snapshot.Balances[i] = balance.String()

			values, err = callPoolMethod(gctx, caller, pool, poolABI, "getAdminBalance", block, big.NewInt(int64(i)))
			if err != nil {
				return err
			}
			admin, err := asBigInt(values[0])
			if err != nil {
				return fmt.Errorf("getAdminBalance(%d): %w", i, err)
			}
			snapshot.AdminBalances[i] = admin.String()
			return nil
		})
		g.Go(func() error {
			meta, err := cachedTokenMeta(gctx, caller, token, tokenCache, logger)
			if err != nil {
				return err
			}
			snapshot.Tokens[i] = meta
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return model.PoolSnapshot{}, err
	}
	return snapshot, nil
}

func discoverTokens(ctx context.Context, caller ContractCaller, pool common.Address, poolABI abi.ABI, block *big.Int) ([]common.Address, error) {
	var tokens []common.Address
	for i := 0; i < maxPoolTokens; i++ {
		values, err := callPoolMethod(ctx, caller, pool, poolABI, "getToken", block, uint8(i))
		if err != nil {
			if i < 2 {
				return nil, err
			}
			break
		}
		token, err := asAddress(values[0])
		if err != nil {
			return nil, fmt.Errorf("getToken(%d): %w", i, err)
		}
		if token == (common.Address{}) {
			break
		}
		tokens = append(tokens, token)
	}
	if len(tokens) < 2 {
		return nil, fmt.Errorf("pool %s lists %d tokens", pool.Hex(), len(tokens))
	}
	return tokens, nil
}

func cachedTokenMeta(ctx context.Context, caller ContractCaller, token common.Address, cache *TokenMetaCache, logger *zap.Logger) (model.TokenMeta, error) {
	if cache != nil {
		if meta, ok := cache.Get(token); ok {
			return meta, nil
		}
	}
	meta, err := FetchTokenMeta(ctx, caller, token, logger)
	if err != nil {
		return meta, fmt.Errorf("token %s: %w", token.Hex(), err)
	}
	if cache != nil {
		cache.Set(token, meta)
	}
	return meta, nil
}

func callPoolMethod(ctx context.Context, caller ContractCaller, pool common.Address, poolABI abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := poolABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &pool, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := poolABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func callERC20(ctx context.Context, caller ContractCaller, token common.Address, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return callPoolMethod(ctx, caller, token, parsed, method, block, args...)
}

// FetchTokenMeta loads token metadata via ERC20 calls.
func FetchTokenMeta(ctx context.Context, caller ContractCaller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("contract caller is nil")
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		return callPoolMethod(ctx, caller, token, parsed, method, nil)
	}

	values, err := call("decimals", stringABI)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := call("symbol", stringABI); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := call("symbol", bytes32ABI); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := call("name", stringABI); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := call("name", bytes32ABI); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else if logger != nil {
		logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
