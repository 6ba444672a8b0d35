// Package pipeline wires routing, decoding, normalization and journal
// generation into the per-transaction decode flow.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"loanledger/internal/journal"
	"loanledger/internal/model"
	"loanledger/internal/normalize"
	"loanledger/internal/registry"
	"loanledger/internal/storage"
)

// ReceiptFetcher supplies raw receipts by transaction hash.
type ReceiptFetcher interface {
	FetchReceipt(ctx context.Context, txHash string) (*model.Receipt, error)
}

// Config holds runtime settings for the pipeline.
type Config struct {
	Workers     int
	BatchSize   int
	EthUsdPrice decimal.Decimal
	// AccrueThrough enables daily interest accrual generation up to
	// this timestamp. Zero disables it.
	AccrueThrough uint64
}

// Pipeline decodes raw lending transactions into canonical events and
// balanced journal entries.
type Pipeline struct {
	cfg        Config
	router     *registry.Router
	normalizer *normalize.Normalizer
	engine     *journal.Engine
	fetcher    ReceiptFetcher
	logger     *zap.Logger
}

func New(cfg Config, router *registry.Router, normalizer *normalize.Normalizer, engine *journal.Engine, fetcher ReceiptFetcher, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	engine.AccrueThrough = cfg.AccrueThrough
	return &Pipeline{
		cfg:        cfg,
		router:     router,
		normalizer: normalizer,
		engine:     engine,
		fetcher:    fetcher,
		logger:     logger,
	}
}

// Decode runs the full flow for one receipt. It never returns an
// error: failures are captured in the result's status.
func (p *Pipeline) Decode(ctx context.Context, receipt *model.Receipt) *model.DecodedTransaction {
	result := &model.DecodedTransaction{
		TxHash:      strings.ToLower(receipt.TxHash),
		BlockNumber: receipt.BlockNumber,
		Timestamp:   receipt.Timestamp,
		Platform:    model.PlatformUnknown,
		Category:    model.CategoryUnknown,
		Status:      model.StatusSuccess,
	}

	platformID, raws, failures := p.router.Decode(ctx, receipt)
	result.Platform = platformID
	result.Failures = failures

	result.Events = p.normalizer.NormalizeAll(ctx, raws)
	result.Category = journal.Categorize(result.Events)

	entries, err := p.engine.Entries(journal.TxContext{
		TxHash:      result.TxHash,
		Platform:    platformID,
		Timestamp:   receipt.Timestamp,
		EthUsdPrice: p.cfg.EthUsdPrice,
	}, result.Events)
	if err != nil {
		result.Status = model.StatusError
		result.Err = err.Error()
		p.logger.Error("journal generation failed",
			zap.String("tx", result.TxHash), zap.Error(err))
		return result
	}
	result.Entries = entries

	// Success means every topic-matched log decoded; a receipt where
	// nothing matched at all is also a success, just an empty one.
	if len(failures) > 0 {
		result.Status = model.StatusPartial
	}

	p.logger.Debug("decoded transaction",
		zap.String("tx", result.TxHash),
		zap.String("platform", string(result.Platform)),
		zap.String("category", string(result.Category)),
		zap.String("status", string(result.Status)),
		zap.Int("events", len(result.Events)),
		zap.Int("entries", len(result.Entries)))

	return result
}

// DecodeHash fetches the receipt and decodes it.
func (p *Pipeline) DecodeHash(ctx context.Context, txHash string) (*model.DecodedTransaction, error) {
	if p.fetcher == nil {
		return nil, fmt.Errorf("no receipt fetcher configured")
	}
	receipt, err := p.fetcher.FetchReceipt(ctx, txHash)
	if err != nil {
		return &model.DecodedTransaction{
			TxHash:   strings.ToLower(txHash),
			Platform: model.PlatformUnknown,
			Category: model.CategoryUnknown,
			Status:   model.StatusError,
			Err:      err.Error(),
		}, nil
	}
	return p.Decode(ctx, receipt), nil
}

// StateStore persists a resume cursor alongside decoded output. Sinks
// that implement it get the latest processed block timestamp recorded
// after every run.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

const decodeCursorName = "decode"

// Run decodes a set of transaction hashes with a worker pool and
// flushes results to storage in batches. Duplicate hashes are decoded
// once.
func (p *Pipeline) Run(ctx context.Context, txHashes []string, sink storage.Storage) error {
	if sink == nil {
		return fmt.Errorf("storage is nil")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	seen := make(map[string]struct{}, len(txHashes))
	work := make(chan string)
	results := make(chan *model.DecodedTransaction)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for txHash := range work {
				decoded, err := p.DecodeHash(ctx, txHash)
				if err != nil {
					p.logger.Error("decode failed", zap.String("tx", txHash), zap.Error(err))
					continue
				}
				select {
				case results <- decoded:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, txHash := range txHashes {
			key := strings.ToLower(txHash)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			select {
			case work <- txHash:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batch := make([]model.DecodedTransaction, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink.PutTransactionBatch(ctx, batch); err != nil {
			return fmt.Errorf("flush batch: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	// On a flush failure the results channel must still be drained so
	// the workers and the feeder can exit before Run returns.
	var flushErr error
	var maxTimestamp uint64
	for decoded := range results {
		if flushErr != nil {
			continue
		}
		batch = append(batch, *decoded)
		if decoded.Timestamp > maxTimestamp {
			maxTimestamp = decoded.Timestamp
		}
		if len(batch) >= batchSize {
			if flushErr = flush(); flushErr != nil {
				cancel()
			}
		}
	}
	if flushErr != nil {
		return flushErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}
	return p.saveCursor(ctx, sink, maxTimestamp)
}

// saveCursor advances the decode cursor on state-aware sinks. The
// cursor only ever moves forward.
func (p *Pipeline) saveCursor(ctx context.Context, sink storage.Storage, ts uint64) error {
	state, ok := sink.(StateStore)
	if !ok || ts == 0 {
		return nil
	}
	prev, found, err := state.LoadState(ctx, decodeCursorName)
	if err != nil {
		return fmt.Errorf("load decode cursor: %w", err)
	}
	if found && prev >= ts {
		return nil
	}
	if err := state.SaveState(ctx, decodeCursorName, ts); err != nil {
		return fmt.Errorf("save decode cursor: %w", err)
	}
	p.logger.Info("decode cursor advanced", zap.Uint64("timestamp", ts))
	return nil
}
