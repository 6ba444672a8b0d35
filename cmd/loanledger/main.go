package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "loanledger",
		Short:        "NFT lending transaction decoder and journal generator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode transactions into events and journal entries",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	decodeCmd.Flags().StringSlice("tx", nil, "transaction hashes (comma-separated)")
	decodeCmd.Flags().String("in", "", "input receipts JSONL (offline decode)")
	decodeCmd.Flags().String("out", "./data/decoded.jsonl", "output JSONL path")
	decodeCmd.Flags().String("pg-dsn", "", "Postgres DSN (optional)")
	decodeCmd.Flags().StringSlice("wallet", nil, "monitored wallet addresses (comma-separated)")
	decodeCmd.Flags().Int("workers", 4, "decode workers")
	decodeCmd.Flags().Int("batch-size", 100, "results per storage batch")
	decodeCmd.Flags().String("eth-usd-price", "0", "ETH/USD price stamped on journal entries")
	decodeCmd.Flags().Uint64("accrue-through", 0, "generate daily interest accruals up to this unix timestamp")
	decodeCmd.Flags().Int("max-retries", 5, "maximum RPC retry attempts")
	decodeCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve proxy contracts to their implementations",
		RunE:  runResolve,
	}

	resolveCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	resolveCmd.Flags().StringSlice("address", nil, "contract addresses (comma-separated)")
	resolveCmd.Flags().Int("max-retries", 5, "maximum RPC retry attempts")
	resolveCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	resolveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(resolveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
