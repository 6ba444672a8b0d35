package config

import (
	"time"

	"github.com/spf13/pflag"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	RPCURL        string
	TxHashes      []string
	In            string
	Out           string
	PGDSN         string
	Wallets       []string
	Workers       int
	BatchSize     int
	EthUsdPrice   string
	AccrueThrough uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	LogLevel      string
}

// LoadDecode merges config file, environment variables, and flags
// into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return DecodeConfig{}, err
	}

	v.SetDefault("out", "./data/decoded.jsonl")
	v.SetDefault("workers", 4)
	v.SetDefault("batch-size", 100)
	v.SetDefault("eth-usd-price", "0")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	cfg := DecodeConfig{
		RPCURL:        v.GetString("rpc"),
		TxHashes:      getStringSlice(v, "tx"),
		In:            v.GetString("in"),
		Out:           v.GetString("out"),
		PGDSN:         v.GetString("pg-dsn"),
		Wallets:       getStringSlice(v, "wallet"),
		Workers:       v.GetInt("workers"),
		BatchSize:     v.GetInt("batch-size"),
		EthUsdPrice:   v.GetString("eth-usd-price"),
		AccrueThrough: v.GetUint64("accrue-through"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}
