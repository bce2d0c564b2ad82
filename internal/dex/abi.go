package dex

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"stablePool/internal/model"
)

const poolABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "buyer", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "tokensSold", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "tokensBought", "type": "uint256"},
      {"indexed": false, "internalType": "uint128", "name": "soldId", "type": "uint128"},
      {"indexed": false, "internalType": "uint128", "name": "boughtId", "type": "uint128"}
    ],
    "name": "TokenSwap",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "provider", "type": "address"},
      {"indexed": false, "internalType": "uint256[]", "name": "tokenAmounts", "type": "uint256[]"},
      {"indexed": false, "internalType": "uint256[]", "name": "fees", "type": "uint256[]"},
      {"indexed": false, "internalType": "uint256", "name": "invariant", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "lpTokenSupply", "type": "uint256"}
    ],
    "name": "AddLiquidity",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "provider", "type": "address"},
      {"indexed": false, "internalType": "uint256[]", "name": "tokenAmounts", "type": "uint256[]"},
      {"indexed": false, "internalType": "uint256", "name": "lpTokenSupply", "type": "uint256"}
    ],
    "name": "RemoveLiquidity",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "provider", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "lpTokenAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "lpTokenSupply", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "boughtId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "tokensBought", "type": "uint256"}
    ],
    "name": "RemoveLiquidityOne",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "provider", "type": "address"},
      {"indexed": false, "internalType": "uint256[]", "name": "tokenAmounts", "type": "uint256[]"},
      {"indexed": false, "internalType": "uint256[]", "name": "fees", "type": "uint256[]"},
      {"indexed": false, "internalType": "uint256", "name": "invariant", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "lpTokenSupply", "type": "uint256"}
    ],
    "name": "RemoveLiquidityImbalance",
    "type": "event"
  },
  {
    "inputs": [],
    "name": "getA",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint8", "name": "index", "type": "uint8"}],
    "name": "getToken",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint8", "name": "index", "type": "uint8"}],
    "name": "getTokenBalance",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "index", "type": "uint256"}],
    "name": "getAdminBalance",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getVirtualPrice",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "paused",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "swapStorage",
    "outputs": [
      {"internalType": "uint256", "name": "initialA", "type": "uint256"},
      {"internalType": "uint256", "name": "futureA", "type": "uint256"},
      {"internalType": "uint256", "name": "initialATime", "type": "uint256"},
      {"internalType": "uint256", "name": "futureATime", "type": "uint256"},
      {"internalType": "uint256", "name": "swapFee", "type": "uint256"},
      {"internalType": "uint256", "name": "adminFee", "type": "uint256"},
      {"internalType": "address", "name": "lpToken", "type": "address"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	poolABI     abi.ABI
	poolABIOnce sync.Once
	poolABIErr  error
)

// PoolABI returns the parsed stableswap pool ABI.
func PoolABI() (abi.ABI, error) {
	poolABIOnce.Do(func() {
		poolABI, poolABIErr = abi.JSON(strings.NewReader(poolABIJSON))
	})
	return poolABI, poolABIErr
}

var poolEventNames = []string{
	model.EventTokenSwap,
	model.EventAddLiquidity,
	model.EventRemoveLiquidity,
	model.EventRemoveLiquidityOne,
	model.EventRemoveLiquidityImbalance,
}

// PoolEventTopics returns topic0 for every pool event, keyed by event name.
func PoolEventTopics() (map[string]common.Hash, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, err
	}
	out := make(map[string]common.Hash, len(poolEventNames))
	for _, name := range poolEventNames {
		event, ok := parsed.Events[name]
		if !ok {
			return nil, fmt.Errorf("event %s missing from pool abi", name)
		}
		out[name] = event.ID
	}
	return out, nil
}
