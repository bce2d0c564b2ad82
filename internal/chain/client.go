package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const defaultTimestampCacheSize = 4096

// Options tunes RPC behaviour.
type Options struct {
	MaxRetries         int
	RetryBackoff       time.Duration
	TimestampCacheSize int
	Logger             *zap.Logger
}

// Client wraps go-ethereum RPC with retries and a block timestamp cache.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	opts    Options
	logger  *zap.Logger
	tsCache *lru.Cache[uint64, uint64]
}

// Dial connects to rpcURL.
func Dial(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	size := opts.TimestampCacheSize
	if size <= 0 {
		size = defaultTimestampCacheSize
	}
	tsCache, err := lru.New[uint64, uint64](size)
	if err != nil {
		return nil, fmt.Errorf("timestamp cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		opts:      opts,
		logger:    logger,
		tsCache:   tsCache,
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	return Retry(ctx, c.opts.MaxRetries, c.opts.RetryBackoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil {
			c.logger.Warn("rpc call failed", zap.String("op", op), zap.Error(err))
		}
		return err
	})
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var id *big.Int
	err := c.retry(ctx, "chain_id", func(ctx context.Context) error {
		var err error
		id, err = c.ethClient.ChainID(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("chain id does not fit in uint64: %s", id)
	}
	return id.Uint64(), nil
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := c.retry(ctx, "block_number", func(ctx context.Context) error {
		var err error
		number, err = c.ethClient.BlockNumber(ctx)
		return err
	})
	return number, err
}

// BlockTimestamp returns the block timestamp, using the cache when possible.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.tsCache.Get(number); ok {
		return ts, nil
	}

	var header *types.Header
	err := c.retry(ctx, "header_by_number", func(ctx context.Context) error {
		var err error
		header, err = c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return 0, err
	}

	c.tsCache.Add(number, header.Time)
	return header.Time, nil
}

// FilterLogs returns logs in the given range for addresses and topic0 filters.
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}

	var logs []types.Log
	err := c.retry(ctx, "filter_logs", func(ctx context.Context) error {
		var err error
		logs, err = c.ethClient.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// CallContract performs an eth_call.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.retry(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		out, err = c.ethClient.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}
