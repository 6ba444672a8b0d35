package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"loanledger/internal/chain"
	"loanledger/internal/config"
	"loanledger/internal/journal"
	"loanledger/internal/model"
	"loanledger/internal/normalize"
	"loanledger/internal/pipeline"
	"loanledger/internal/proxy"
	"loanledger/internal/registry"
	"loanledger/internal/storage"
	"loanledger/internal/storage/postgres"
	"loanledger/internal/tokens"
)

// chainFetcher adapts chain.Client to the pipeline's fetcher interface.
type chainFetcher struct {
	client *chain.Client
}

func (f *chainFetcher) FetchReceipt(ctx context.Context, txHash string) (*model.Receipt, error) {
	return f.client.FetchReceipt(ctx, common.HexToHash(txHash))
}

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.TxHashes) == 0 && cfg.In == "" {
		return fmt.Errorf("either tx hashes or an input receipts file is required")
	}
	if len(cfg.TxHashes) > 0 && cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required to fetch receipts by hash")
	}

	price, err := decimal.NewFromString(cfg.EthUsdPrice)
	if err != nil {
		return fmt.Errorf("invalid eth-usd-price: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		resolver *proxy.Resolver
		fetcher  pipeline.ReceiptFetcher
		caller   tokens.ContractCaller
	)
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		resolver = proxy.NewResolver(chainClient, cfg.MaxRetries, cfg.RetryBackoff, logger)
		fetcher = &chainFetcher{client: chainClient}
		caller = chainClient
	}

	router, err := registry.NewRouter(resolver, logger)
	if err != nil {
		return err
	}

	wallets := model.NewWalletSet(cfg.Wallets)
	normalizer := normalize.NewNormalizer(tokens.NewRegistry(), caller, logger)
	engine := journal.NewEngine(wallets, logger)

	pipe := pipeline.New(pipeline.Config{
		Workers:       cfg.Workers,
		BatchSize:     cfg.BatchSize,
		EthUsdPrice:   price,
		AccrueThrough: cfg.AccrueThrough,
	}, router, normalizer, engine, fetcher, logger)

	var sink storage.Storage
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		sink = store
	} else {
		sink = storage.NewJsonlStorage(cfg.Out)
	}

	logger.Info("decode start",
		zap.Int("tx_hashes", len(cfg.TxHashes)),
		zap.String("in", cfg.In),
		zap.Int("wallets", len(wallets)),
		zap.Int("workers", cfg.Workers),
	)

	if cfg.In != "" {
		return decodeReceiptFile(ctx, cfg.In, cfg.BatchSize, pipe, sink, logger)
	}
	return pipe.Run(ctx, cfg.TxHashes, sink)
}

// decodeReceiptFile decodes receipts already captured as JSONL, one
// receipt object per line. No RPC access is needed on this path.
func decodeReceiptFile(ctx context.Context, path string, batchSize int, pipe *pipeline.Pipeline, sink storage.Storage, logger *zap.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	if batchSize <= 0 {
		batchSize = 100
	}
	batch := make([]model.DecodedTransaction, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink.PutTransactionBatch(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var receipt model.Receipt
		if err := json.Unmarshal(line, &receipt); err != nil {
			logger.Warn("skip malformed receipt line", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		batch = append(batch, *pipe.Decode(ctx, &receipt))
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return flush()
}
