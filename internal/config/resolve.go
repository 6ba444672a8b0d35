package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ResolveConfig holds configuration for the resolve command, which
// resolves proxy contracts to their implementations.
type ResolveConfig struct {
	RPCURL       string
	Addresses    []string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadResolve merges config file, environment variables, and flags
// into ResolveConfig.
func LoadResolve(cfgFile string, flags *pflag.FlagSet) (ResolveConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ResolveConfig{}, err
	}

	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	cfg := ResolveConfig{
		RPCURL:       v.GetString("rpc"),
		Addresses:    getStringSlice(v, "address"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, nil
}
