// Package journal turns canonical events into balanced double-entry
// records for monitored wallets.
package journal

import "strings"

// Account name builders. Asset-specific accounts carry the lowercase
// asset symbol as suffix so WETH and USDC positions never mix.

func AccountLoanReceivable(asset string) string {
	return "loan_receivable_" + strings.ToLower(asset)
}

func AccountInterestReceivable(asset string) string {
	return "interest_receivable_" + strings.ToLower(asset)
}

func AccountInterestIncome(asset string) string {
	return "interest_income_" + strings.ToLower(asset)
}

func AccountInterestExpense(asset string) string {
	return "interest_expense_" + strings.ToLower(asset)
}

func AccountNotePayable(asset string) string {
	return "note_payable_" + strings.ToLower(asset)
}

func AccountDeemedCash(asset string) string {
	return "deemed_cash_" + strings.ToLower(asset)
}

func AccountNFTCollateral(asset string) string {
	return "nft_collateral_" + strings.ToLower(asset)
}
