package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"loanledger/internal/chain"
	"loanledger/internal/config"
	"loanledger/internal/proxy"
)

func runResolve(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadResolve(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if len(cfg.Addresses) == 0 {
		return fmt.Errorf("address list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	resolver := proxy.NewResolver(chainClient, cfg.MaxRetries, cfg.RetryBackoff, logger)

	for _, raw := range cfg.Addresses {
		if !common.IsHexAddress(raw) {
			logger.Warn("skip invalid address", zap.String("address", raw))
			continue
		}
		address := common.HexToAddress(raw)
		impl := resolver.Resolve(ctx, address)
		if impl == address {
			fmt.Printf("%s  (not a proxy)\n", strings.ToLower(address.Hex()))
			continue
		}
		fmt.Printf("%s -> %s\n", strings.ToLower(address.Hex()), strings.ToLower(impl.Hex()))
	}

	return nil
}
