package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"stablePool/internal/model"
	"stablePool/internal/storage"
)

// PoolConfig describes the pool a local command runs against: either a
// snapshot file or a fresh, empty pool built from parameters.
type PoolConfig struct {
	State    string
	Address  string
	ChainID  uint64
	Tokens   []model.TokenMeta
	A        uint64
	SwapFee  uint64
	AdminFee uint64
	Paused   bool
}

const defaultPoolAddress = "0x00000000000000000000000000000000005ab1e5"

func poolDefaults(defaults map[string]interface{}) map[string]interface{} {
	defaults["pool"] = defaultPoolAddress
	defaults["a"] = uint64(200)
	defaults["swap-fee"] = uint64(4_000_000)
	defaults["admin-fee"] = uint64(0)
	return defaults
}

func loadPool(v *viper.Viper) (PoolConfig, error) {
	tokens, err := parseTokens(v.Get("tokens"))
	if err != nil {
		return PoolConfig{}, err
	}
	return PoolConfig{
		State:    v.GetString("state"),
		Address:  v.GetString("pool"),
		ChainID:  v.GetUint64("chain-id"),
		Tokens:   tokens,
		A:        v.GetUint64("a"),
		SwapFee:  v.GetUint64("swap-fee"),
		AdminFee: v.GetUint64("admin-fee"),
		Paused:   v.GetBool("paused"),
	}, nil
}

// Snapshot returns the starting pool. A state file wins over parameters;
// parameters describe an empty pool.
func (c PoolConfig) Snapshot() (model.PoolSnapshot, error) {
	if c.State != "" {
		snapshot, err := storage.LoadSnapshot(c.State)
		if err != nil {
			return model.PoolSnapshot{}, err
		}
		if snapshot.Address == "" {
			snapshot.Address = c.Address
		}
		return snapshot, nil
	}
	if len(c.Tokens) == 0 {
		return model.PoolSnapshot{}, fmt.Errorf("either a state file or pool tokens are required")
	}
	balances := make([]string, len(c.Tokens))
	for i := range balances {
		balances[i] = "0"
	}
	return model.PoolSnapshot{
		ChainID:       c.ChainID,
		Address:       c.Address,
		Tokens:        append([]model.TokenMeta(nil), c.Tokens...),
		Balances:      balances,
		A:             c.A,
		SwapFee:       c.SwapFee,
		AdminFee:      c.AdminFee,
		LPTotalSupply: "0",
		Paused:        c.Paused,
	}, nil
}

// parseTokens accepts "address:decimals[:symbol]" strings (flags, env) or a
// list of {address, decimals, symbol} maps (config file).
func parseTokens(raw interface{}) ([]model.TokenMeta, error) {
	var items []interface{}
	switch typed := raw.(type) {
	case nil:
		return nil, nil
	case string:
		for _, item := range splitAndClean(typed) {
			items = append(items, item)
		}
	case []string:
		for _, item := range cleanStrings(typed) {
			items = append(items, item)
		}
	case []interface{}:
		items = typed
	default:
		return nil, fmt.Errorf("tokens: unsupported value %T", raw)
	}

	var errs error
	out := make([]model.TokenMeta, 0, len(items))
	for i, item := range items {
		token, err := parseToken(item)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("token %d: %w", i, err))
			continue
		}
		out = append(out, token)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func parseToken(item interface{}) (model.TokenMeta, error) {
	switch typed := item.(type) {
	case string:
		parts := strings.Split(typed, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return model.TokenMeta{}, fmt.Errorf("want address:decimals[:symbol], got %q", typed)
		}
		decimals, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 8)
		if err != nil {
			return model.TokenMeta{}, fmt.Errorf("decimals: %w", err)
		}
		token := model.TokenMeta{Address: strings.TrimSpace(parts[0]), Decimals: uint8(decimals)}
		if len(parts) == 3 {
			token.Symbol = strings.TrimSpace(parts[2])
		}
		return token, nil
	case map[string]interface{}:
		token := model.TokenMeta{
			Address: fmt.Sprintf("%v", typed["address"]),
			Symbol:  fmt.Sprintf("%v", orEmpty(typed["symbol"])),
		}
		decimals, err := strconv.ParseUint(fmt.Sprintf("%v", typed["decimals"]), 10, 8)
		if err != nil {
			return model.TokenMeta{}, fmt.Errorf("decimals: %w", err)
		}
		token.Decimals = uint8(decimals)
		return token, nil
	default:
		return model.TokenMeta{}, fmt.Errorf("unsupported value %T", item)
	}
}

func orEmpty(value interface{}) interface{} {
	if value == nil {
		return ""
	}
	return value
}

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Pool       PoolConfig
	Ops        string
	Events     string
	Logs       string
	Errors     string
	StateOut   string
	MetricsOut string
	LogLevel   string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	defaults := poolDefaults(map[string]interface{}{
		"events": "./data/events.jsonl",
		"errors": "./data/op_errors.jsonl",
	})
	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return SimulateConfig{}, err
	}
	poolCfg, err := loadPool(v)
	if err != nil {
		return SimulateConfig{}, err
	}
	return SimulateConfig{
		Pool:       poolCfg,
		Ops:        v.GetString("ops"),
		Events:     v.GetString("events"),
		Logs:       v.GetString("logs"),
		Errors:     v.GetString("errors"),
		StateOut:   v.GetString("state-out"),
		MetricsOut: v.GetString("metrics-out"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	Pool     PoolConfig
	Op       string
	From     int
	To       int
	Index    int
	Amount   string
	Amounts  []string
	LogLevel string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, poolDefaults(map[string]interface{}{}))
	if err != nil {
		return QuoteConfig{}, err
	}
	poolCfg, err := loadPool(v)
	if err != nil {
		return QuoteConfig{}, err
	}
	return QuoteConfig{
		Pool:     poolCfg,
		Op:       v.GetString("op"),
		From:     v.GetInt("from"),
		To:       v.GetInt("to"),
		Index:    v.GetInt("index"),
		Amount:   v.GetString("amount"),
		Amounts:  getStringSlice(v, "amounts"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// SnapshotConfig holds configuration for reading a deployed pool over RPC.
type SnapshotConfig struct {
	RPC            RPCConfig
	Pool           string
	Block          uint64
	Out            string
	TokenCacheSize int
	LogLevel       string
}

// LoadSnapshot merges config file, environment variables, and flags into SnapshotConfig.
func LoadSnapshot(cfgFile string, flags *pflag.FlagSet) (SnapshotConfig, error) {
	defaults := rpcDefaults()
	defaults["out"] = "./data/pool_state.json"
	defaults["token-cache-size"] = 1024
	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return SnapshotConfig{}, err
	}
	return SnapshotConfig{
		RPC:            loadRPC(v),
		Pool:           v.GetString("pool"),
		Block:          v.GetUint64("block"),
		Out:            v.GetString("out"),
		TokenCacheSize: v.GetInt("token-cache-size"),
		LogLevel:       v.GetString("log-level"),
	}, nil
}
