package model

import (
	"github.com/shopspring/decimal"
)

// Amount is a monetary value scaled to the asset's natural unit.
// Asset is "" when the token was absent from the decimals registry;
// such amounts must never be posted (a guessed scale would silently
// misstate them).
type Amount struct {
	Value decimal.Decimal `json:"value"`
	Asset string          `json:"asset"`
}

// Known reports whether the amount carries a usable asset tag.
func (a Amount) Known() bool {
	return a.Asset != ""
}

// Tranche is the canonical per-lender slice of a loan's principal.
// Gondi v1/v3 emit a 7-field Tranche struct and v2 a 6-field Source
// struct; both normalize to this shape.
type Tranche struct {
	LoanID          string `json:"loan_id"`
	Lender          string `json:"lender"`
	Principal       Amount `json:"principal"`
	AccruedInterest Amount `json:"accrued_interest"`
	AprBps          uint64 `json:"apr_bps"`
	StartTime       uint64 `json:"start_time"`
}

// Canonical amount keys used across platforms. Presence depends on the
// event type; callers branch on Name before reading.
const (
	AmountPrincipal = "principal"
	AmountFee       = "fee"
	AmountInterest  = "interest"
	AmountRepayment = "repayment"
)

// DecodedEvent is a platform event in canonical, version-independent
// shape. Immutable once produced.
type DecodedEvent struct {
	Name      string            `json:"name"`
	Platform  Platform          `json:"platform"`
	LogIndex  uint64            `json:"log_index"`
	Address   string            `json:"address"`
	Lender    string            `json:"lender,omitempty"`
	Borrower  string            `json:"borrower,omitempty"`
	LoanID    string            `json:"loan_id,omitempty"`
	OldLoanID string            `json:"old_loan_id,omitempty"`
	Amounts   map[string]Amount `json:"amounts,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Tranches  []Tranche         `json:"tranches,omitempty"`
}

// Amount returns the named amount, or a zero Amount when absent.
func (e DecodedEvent) Amount(key string) Amount {
	if e.Amounts == nil {
		return Amount{}
	}
	return e.Amounts[key]
}

// DecodeFailure records a log that matched a known topic but failed
// structural decode. Decoding continues past it.
type DecodeFailure struct {
	LogIndex uint64 `json:"log_index"`
	Address  string `json:"address"`
	Topic0   string `json:"topic0"`
	Reason   string `json:"reason"`
}
