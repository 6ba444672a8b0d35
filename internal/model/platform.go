package model

import "strings"

// Platform identifies which lending protocol a transaction belongs to.
type Platform string

const (
	PlatformGondi   Platform = "gondi"
	PlatformBlur    Platform = "blur"
	PlatformNFTfi   Platform = "nftfi"
	PlatformArcade  Platform = "arcade"
	PlatformZharta  Platform = "zharta"
	PlatformGeneric Platform = "generic"
	PlatformUnknown Platform = "unknown"
)

// WalletRole is the monitored wallet's side of an event.
type WalletRole string

const (
	RoleLender   WalletRole = "lender"
	RoleBorrower WalletRole = "borrower"
	RoleNone     WalletRole = "none"
)

// Category classifies a transaction for ledger posting.
type Category string

const (
	CategoryLoanOrigination Category = "LOAN_ORIGINATION"
	CategoryLoanRepayment   Category = "LOAN_REPAYMENT"
	CategoryLoanRefinance   Category = "LOAN_REFINANCE"
	CategoryLoanLiquidation Category = "LOAN_LIQUIDATION"
	CategoryLoanExtension   Category = "LOAN_EXTENSION"
	CategoryInterestAccrual Category = "INTEREST_ACCRUAL"
	CategoryContractCall    Category = "CONTRACT_CALL"
	CategoryUnknown         Category = "UNKNOWN"
)

// Status is the terminal state of a decode.
type Status string

const (
	// StatusSuccess means every topic-matched log decoded cleanly, or no
	// log matched any known signature at all.
	StatusSuccess Status = "success"
	// StatusPartial means at least one log matched a known topic but
	// failed structural decode.
	StatusPartial Status = "partial"
	// StatusError means the decode could not produce a usable result.
	StatusError Status = "error"
)

// WalletSet is the monitored-wallet membership check, keyed by
// lowercase address. Loaded and refreshed by the caller.
type WalletSet map[string]struct{}

// NewWalletSet normalizes addresses to lowercase.
func NewWalletSet(addresses []string) WalletSet {
	set := make(WalletSet, len(addresses))
	for _, addr := range addresses {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" {
			continue
		}
		set[addr] = struct{}{}
	}
	return set
}

// Contains reports membership, case-insensitive.
func (ws WalletSet) Contains(address string) bool {
	if len(ws) == 0 {
		return false
	}
	_, ok := ws[strings.ToLower(address)]
	return ok
}
