package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loanledger/internal/model"
)

// Store provides Postgres persistence for decoded transactions and
// journal entries.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutTransactionBatch upserts transactions and their journal entries.
func (s *Store) PutTransactionBatch(ctx context.Context, txs []model.DecodedTransaction) error {
	if err := s.UpsertTransactions(ctx, txs); err != nil {
		return err
	}
	var entries []model.JournalEntry
	for _, tx := range txs {
		entries = append(entries, tx.Entries...)
	}
	return s.UpsertJournalEntries(ctx, entries)
}

// UpsertTransactions inserts or updates decode results. Re-decoding a
// transaction overwrites the previous result.
func (s *Store) UpsertTransactions(ctx context.Context, txs []model.DecodedTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, tx := range txs {
		events, err := json.Marshal(tx.Events)
		if err != nil {
			return fmt.Errorf("marshal events for %s: %w", tx.TxHash, err)
		}
		failures, err := json.Marshal(tx.Failures)
		if err != nil {
			return fmt.Errorf("marshal failures for %s: %w", tx.TxHash, err)
		}
		batch.Queue(`
			INSERT INTO decoded_transactions (
				tx_hash, platform, category, status, error, events, decode_failures, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (tx_hash)
			DO UPDATE SET
				platform = EXCLUDED.platform,
				category = EXCLUDED.category,
				status = EXCLUDED.status,
				error = EXCLUDED.error,
				events = EXCLUDED.events,
				decode_failures = EXCLUDED.decode_failures,
				updated_at = now()
		`,
			tx.TxHash,
			string(tx.Platform),
			string(tx.Category),
			string(tx.Status),
			tx.Err,
			events,
			failures,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range txs {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertJournalEntries inserts or updates journal entries keyed by a
// deterministic row key, so re-decoding the same transaction never
// duplicates postings.
func (s *Store) UpsertJournalEntries(ctx context.Context, entries []model.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	counter := make(map[string]int, len(entries))
	batch := &pgx.Batch{}
	for _, entry := range entries {
		base := entry.TxHash + ":" + entry.Wallet
		rowKey := fmt.Sprintf("%s:%d", base, counter[base])
		counter[base]++

		lines, err := json.Marshal(entry.Lines)
		if err != nil {
			return fmt.Errorf("marshal lines for %s: %w", rowKey, err)
		}
		batch.Queue(`
			INSERT INTO journal_entries (
				row_key, tx_hash, wallet, role, platform, category, description,
				loan_id, entry_date, eth_usd_price, lines, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,to_timestamp($9),$10,$11,now(),now())
			ON CONFLICT (row_key)
			DO UPDATE SET
				role = EXCLUDED.role,
				platform = EXCLUDED.platform,
				category = EXCLUDED.category,
				description = EXCLUDED.description,
				loan_id = EXCLUDED.loan_id,
				entry_date = EXCLUDED.entry_date,
				eth_usd_price = EXCLUDED.eth_usd_price,
				lines = EXCLUDED.lines,
				updated_at = now()
		`,
			rowKey,
			entry.TxHash,
			entry.Wallet,
			string(entry.Role),
			string(entry.Platform),
			string(entry.Category),
			entry.Description,
			entry.LoanID,
			int64(entry.Date),
			entry.EthUsdPrice,
			lines,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the decode cursor for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM decoder_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return ts, true, nil
}

// SaveState upserts the decode cursor for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO decoder_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, ts)
	return err
}
