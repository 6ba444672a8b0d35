package model

import (
	"github.com/shopspring/decimal"
)

// Side is the direction of a journal line.
type Side string

const (
	Debit  Side = "DEBIT"
	Credit Side = "CREDIT"
)

// JournalLine is one leg of a double-entry record. Amount is always
// non-negative; direction is carried by Side.
type JournalLine struct {
	Account string          `json:"account"`
	Side    Side            `json:"side"`
	Amount  decimal.Decimal `json:"amount"`
	Asset   string          `json:"asset"`
}

// JournalEntry is a balanced double-entry record generated for one
// monitored wallet from one event.
type JournalEntry struct {
	TxHash      string          `json:"tx_hash"`
	Category    Category        `json:"category"`
	Platform    Platform        `json:"platform"`
	Wallet      string          `json:"wallet"`
	Role        WalletRole      `json:"role"`
	Description string          `json:"description"`
	LoanID      string          `json:"loan_id,omitempty"`
	Date        uint64          `json:"date"`
	EthUsdPrice decimal.Decimal `json:"eth_usd_price"`
	Lines       []JournalLine   `json:"lines"`
}

// WETH and ETH wrap 1:1 and settle against each other, so they share a
// balancing currency.
func balanceAsset(asset string) string {
	if asset == "WETH" || asset == "ETH" {
		return "ETH"
	}
	return asset
}

// Balanced verifies that debits equal credits for every currency in
// the entry, exactly.
func (e JournalEntry) Balanced() bool {
	if len(e.Lines) == 0 {
		return false
	}
	sums := make(map[string]decimal.Decimal)
	for _, line := range e.Lines {
		key := balanceAsset(line.Asset)
		delta := line.Amount
		if line.Side == Credit {
			delta = delta.Neg()
		}
		sums[key] = sums[key].Add(delta)
	}
	for _, sum := range sums {
		if !sum.IsZero() {
			return false
		}
	}
	return true
}

// DecodedTransaction is the pipeline's final result object.
type DecodedTransaction struct {
	TxHash      string          `json:"tx_hash"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	Timestamp   uint64          `json:"timestamp,omitempty"`
	Platform    Platform        `json:"platform"`
	Category    Category        `json:"category"`
	Status      Status          `json:"status"`
	Events      []DecodedEvent  `json:"events"`
	Entries     []JournalEntry  `json:"journal_entries"`
	Failures    []DecodeFailure `json:"decode_failures,omitempty"`
	Err         string          `json:"error,omitempty"`
}
