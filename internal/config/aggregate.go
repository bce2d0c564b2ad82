package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// AggregateConfig holds configuration for aggregation.
type AggregateConfig struct {
	RPC           RPCConfig
	Input         string
	Window        time.Duration
	PGDSN         string
	BatchSize     int
	StateFile     string
	StateName     string
	PoolState     string
	RecomputeFrom uint64
	LogLevel      string
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	defaults := rpcDefaults()
	defaults["batch-size"] = 1000
	defaults["window"] = "5m"
	defaults["state-name"] = "aggregate"

	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return AggregateConfig{}, err
	}

	window, err := time.ParseDuration(v.GetString("window"))
	if err != nil {
		return AggregateConfig{}, fmt.Errorf("invalid window: %w", err)
	}
	if window < time.Second {
		return AggregateConfig{}, fmt.Errorf("window must be at least 1s")
	}
	recompute, err := ParseTimestamp(v.GetString("recompute-from"))
	if err != nil {
		return AggregateConfig{}, fmt.Errorf("invalid recompute-from: %w", err)
	}

	return AggregateConfig{
		RPC:           loadRPC(v),
		Input:         v.GetString("in"),
		Window:        window,
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		StateName:     v.GetString("state-name"),
		PoolState:     v.GetString("state"),
		RecomputeFrom: recompute,
		LogLevel:      v.GetString("log-level"),
	}, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	if isNumeric(input) {
		return strconv.ParseUint(input, 10, 64)
	}
	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
