package config

import (
	"github.com/spf13/pflag"
)

// DecodeConfig holds configuration for the decode command. RPC is optional:
// without it pool metadata comes from State or is left empty.
type DecodeConfig struct {
	RPC       RPCConfig
	In        string
	Out       string
	Errors    string
	State     string
	Topic0Map map[string]string
	LogLevel  string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	defaults := rpcDefaults()
	defaults["out"] = "./data/events.jsonl"
	defaults["errors"] = "./data/decode_errors.jsonl"

	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return DecodeConfig{}, err
	}

	return DecodeConfig{
		RPC:       loadRPC(v),
		In:        v.GetString("in"),
		Out:       v.GetString("out"),
		Errors:    v.GetString("errors"),
		State:     v.GetString("state"),
		Topic0Map: getStringMap(v, "topic0-map"),
		LogLevel:  v.GetString("log-level"),
	}, nil
}
