package journal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"loanledger/internal/model"
	"loanledger/internal/tokens"
)

// ErrUnbalancedEntry means a generated entry violated the double-entry
// invariant. This is always a bug in a rule, never expected input, so
// generation aborts instead of emitting the entry.
var ErrUnbalancedEntry = errors.New("unbalanced journal entry")

// TxContext carries the per-transaction facts every entry needs.
type TxContext struct {
	TxHash      string
	Platform    model.Platform
	Timestamp   uint64
	EthUsdPrice decimal.Decimal
}

// Engine generates journal entries for the monitored wallet set.
type Engine struct {
	wallets model.WalletSet
	logger  *zap.Logger

	// AccrueThrough enables daily interest accrual proration for
	// tranche-bearing originations, up to this timestamp. Zero
	// disables accrual generation.
	AccrueThrough uint64
}

func NewEngine(wallets model.WalletSet, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{wallets: wallets, logger: logger}
}

// Entries generates all journal entries for the events of one
// transaction. Events touching no monitored wallet produce nothing.
func (g *Engine) Entries(tx TxContext, events []model.DecodedEvent) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	for _, event := range events {
		built, err := g.entriesForEvent(tx, event)
		if err != nil {
			return nil, err
		}
		entries = append(entries, built...)
	}
	for _, entry := range entries {
		if !entry.Balanced() {
			return nil, fmt.Errorf("%w: tx %s account %s", ErrUnbalancedEntry, tx.TxHash, entry.Description)
		}
	}
	return entries, nil
}

func (g *Engine) entriesForEvent(tx TxContext, event model.DecodedEvent) ([]model.JournalEntry, error) {
	switch event.Platform {
	case model.PlatformGondi:
		return g.gondiEntries(tx, event)
	case model.PlatformBlur:
		return g.blurEntries(tx, event), nil
	case model.PlatformNFTfi:
		return g.nftfiEntries(tx, event), nil
	case model.PlatformZharta:
		return g.zhartaEntries(tx, event), nil
	case model.PlatformArcade:
		return g.arcadeEntries(tx, event), nil
	default:
		// generic movement feeds cost basis, not the ledger
		return nil, nil
	}
}

func (g *Engine) newEntry(tx TxContext, event model.DecodedEvent, wallet string, role model.WalletRole, category model.Category, description string) model.JournalEntry {
	return model.JournalEntry{
		TxHash:      tx.TxHash,
		Category:    category,
		Platform:    event.Platform,
		Wallet:      strings.ToLower(wallet),
		Role:        role,
		Description: description,
		LoanID:      event.LoanID,
		Date:        tx.Timestamp,
		EthUsdPrice: tx.EthUsdPrice,
	}
}

func line(account string, side model.Side, amount model.Amount) model.JournalLine {
	return model.JournalLine{
		Account: account,
		Side:    side,
		Amount:  amount.Value,
		Asset:   amount.Asset,
	}
}

// amt wraps a decimal in an Amount sharing the reference asset.
func amt(value decimal.Decimal, asset string) model.Amount {
	return model.Amount{Value: value, Asset: asset}
}

// ---------------------------------------------------------------------------
// Gondi

func (g *Engine) gondiEntries(tx TxContext, event model.DecodedEvent) ([]model.JournalEntry, error) {
	switch event.Name {
	case "LoanEmitted":
		return g.gondiOrigination(tx, event, model.CategoryLoanOrigination, false)
	case "LoanRefinanced", "LoanRefinancedFromNewOffers":
		return g.gondiOrigination(tx, event, model.CategoryLoanRefinance, true)
	case "LoanExtended":
		return g.gondiOrigination(tx, event, model.CategoryLoanExtension, true)
	default:
		// repayment and liquidation events carry no party addresses;
		// they classify the transaction but post nothing
		return nil, nil
	}
}

// gondiOrigination posts the lender side per monitored tranche and the
// borrower side from the loan total. The protocol fee is allocated to
// tranches pro rata by principal; on refinance, a tranche whose loan
// id equals the refinanced loan id is a continuation of the previous
// position and posts nothing.
func (g *Engine) gondiOrigination(tx TxContext, event model.DecodedEvent, category model.Category, refinance bool) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry

	principal := event.Amount(model.AmountPrincipal)
	fee := event.Amount(model.AmountFee)
	if !principal.Known() {
		g.logger.Warn("skipping gondi entry for unknown principal token",
			zap.String("tx", tx.TxHash), zap.String("loan", event.LoanID))
		return nil, nil
	}
	asset := principal.Asset

	totalPrincipal := decimal.Zero
	for _, t := range event.Tranches {
		totalPrincipal = totalPrincipal.Add(t.Principal.Value)
	}

	for _, t := range event.Tranches {
		if !g.wallets.Contains(t.Lender) {
			continue
		}
		if refinance && t.LoanID != "" && t.LoanID == event.OldLoanID {
			continue
		}

		feeShare := decimal.Zero
		if fee.Known() && totalPrincipal.Sign() > 0 {
			feeShare = fee.Value.Mul(t.Principal.Value).Div(totalPrincipal)
		}

		verb := "originated"
		if refinance {
			verb = "refinanced"
		}
		entry := g.newEntry(tx, event, t.Lender, model.RoleLender, category,
			fmt.Sprintf("gondi loan %s %s, tranche %s", event.LoanID, verb, t.LoanID))

		entry.Lines = append(entry.Lines,
			line(AccountLoanReceivable(asset), model.Debit, t.Principal))

		outflow := t.Principal.Value.Sub(feeShare)
		if refinance && t.AccruedInterest.Known() && t.AccruedInterest.Value.Sign() > 0 {
			// purchased accrued interest travels with the tranche
			entry.Lines = append(entry.Lines,
				line(AccountInterestReceivable(asset), model.Debit, t.AccruedInterest))
			outflow = outflow.Add(t.AccruedInterest.Value)
		}
		entry.Lines = append(entry.Lines,
			line(AccountDeemedCash(asset), model.Credit, amt(outflow, asset)))
		if feeShare.Sign() > 0 {
			entry.Lines = append(entry.Lines,
				line(AccountInterestIncome(asset), model.Credit, amt(feeShare, asset)))
		}

		entries = append(entries, entry)

		if g.AccrueThrough > 0 {
			entries = append(entries, g.trancheAccruals(tx, event, t, asset)...)
		}
	}

	// tranche-less payloads still post for the top-level lender
	if len(event.Tranches) == 0 && g.wallets.Contains(event.Lender) {
		feeValue := decimal.Zero
		if fee.Known() {
			feeValue = fee.Value
		}
		entry := g.newEntry(tx, event, event.Lender, model.RoleLender, category,
			fmt.Sprintf("gondi loan %s originated", event.LoanID))
		entry.Lines = append(entry.Lines,
			line(AccountLoanReceivable(asset), model.Debit, principal),
			line(AccountDeemedCash(asset), model.Credit, amt(principal.Value.Sub(feeValue), asset)))
		if feeValue.Sign() > 0 {
			entry.Lines = append(entry.Lines,
				line(AccountInterestIncome(asset), model.Credit, amt(feeValue, asset)))
		}
		entries = append(entries, entry)
	}

	if g.wallets.Contains(event.Borrower) {
		feeValue := decimal.Zero
		if fee.Known() {
			feeValue = fee.Value
		}
		entry := g.newEntry(tx, event, event.Borrower, model.RoleBorrower, category,
			fmt.Sprintf("gondi loan %s borrowed", event.LoanID))
		entry.Lines = append(entry.Lines,
			line(AccountDeemedCash(asset), model.Debit, amt(principal.Value.Sub(feeValue), asset)))
		if feeValue.Sign() > 0 {
			entry.Lines = append(entry.Lines,
				line(AccountInterestExpense(asset), model.Debit, amt(feeValue, asset)))
		}
		entry.Lines = append(entry.Lines,
			line(AccountNotePayable(asset), model.Credit, principal))
		entries = append(entries, entry)
	}

	return entries, nil
}

// trancheAccruals prorates the tranche's simple interest into per-day
// buckets from its start time through AccrueThrough. Allocation is
// done in wei so the buckets sum exactly to the total.
func (g *Engine) trancheAccruals(tx TxContext, event model.DecodedEvent, t model.Tranche, asset string) []model.JournalEntry {
	decimals, ok := tokens.DecimalsForSymbol(asset)
	if !ok {
		return nil
	}
	principalWei := t.Principal.Value.Shift(decimals).BigInt()
	if t.StartTime == 0 || g.AccrueThrough <= t.StartTime {
		return nil
	}
	total := SimpleInterestWei(principalWei, t.AprBps, g.AccrueThrough-t.StartTime)
	if total.Sign() <= 0 {
		return nil
	}

	var entries []model.JournalEntry
	for _, bucket := range prorateDaily(total, t.StartTime, g.AccrueThrough) {
		if bucket.Wei.Sign() == 0 {
			continue
		}
		amount := amt(decimal.NewFromBigInt(bucket.Wei, -decimals), asset)
		entry := g.newEntry(tx, event, t.Lender, model.RoleLender, model.CategoryInterestAccrual,
			fmt.Sprintf("gondi loan %s tranche %s interest accrual", event.LoanID, t.LoanID))
		entry.Date = bucket.Day
		entry.Lines = []model.JournalLine{
			line(AccountInterestReceivable(asset), model.Debit, amount),
			line(AccountInterestIncome(asset), model.Credit, amount),
		}
		entries = append(entries, entry)
	}
	return entries
}

// ---------------------------------------------------------------------------
// Blur

func (g *Engine) blurEntries(tx TxContext, event model.DecodedEvent) []model.JournalEntry {
	var entries []model.JournalEntry

	switch event.Name {
	case "LoanOfferTaken":
		principal := event.Amount(model.AmountPrincipal)
		if !principal.Known() {
			return nil
		}
		if g.wallets.Contains(event.Lender) {
			entry := g.newEntry(tx, event, event.Lender, model.RoleLender, model.CategoryLoanOrigination,
				fmt.Sprintf("blur lien %s originated", event.LoanID))
			entry.Lines = []model.JournalLine{
				line(AccountLoanReceivable(principal.Asset), model.Debit, principal),
				line(AccountDeemedCash(principal.Asset), model.Credit, principal),
			}
			entries = append(entries, entry)
		}
		if g.wallets.Contains(event.Borrower) {
			entry := g.newEntry(tx, event, event.Borrower, model.RoleBorrower, model.CategoryLoanOrigination,
				fmt.Sprintf("blur lien %s borrowed", event.LoanID))
			entry.Lines = []model.JournalLine{
				line(AccountDeemedCash(principal.Asset), model.Debit, principal),
				line(AccountNotePayable(principal.Asset), model.Credit, principal),
			}
			entries = append(entries, entry)
		}

	case "Refinance":
		principal := event.Amount(model.AmountPrincipal)
		if !principal.Known() || !g.wallets.Contains(event.Lender) {
			return nil
		}
		entry := g.newEntry(tx, event, event.Lender, model.RoleLender, model.CategoryLoanRefinance,
			fmt.Sprintf("blur lien %s refinanced", event.LoanID))
		entry.Lines = []model.JournalLine{
			line(AccountLoanReceivable(principal.Asset), model.Debit, principal),
			line(AccountDeemedCash(principal.Asset), model.Credit, principal),
		}
		entries = append(entries, entry)
	}

	// Repay, StartAuction, Seize and BuyLocked carry lien ids but not
	// the lien parties, so they classify without posting.
	return entries
}

// ---------------------------------------------------------------------------
// NFTfi

func (g *Engine) nftfiEntries(tx TxContext, event model.DecodedEvent) []model.JournalEntry {
	var entries []model.JournalEntry

	switch event.Name {
	case "LoanStarted":
		principal := event.Amount(model.AmountPrincipal)
		if !principal.Known() {
			return nil
		}
		if g.wallets.Contains(event.Lender) {
			entry := g.newEntry(tx, event, event.Lender, model.RoleLender, model.CategoryLoanOrigination,
				fmt.Sprintf("nftfi loan %s originated", event.LoanID))
			entry.Lines = []model.JournalLine{
				line(AccountLoanReceivable(principal.Asset), model.Debit, principal),
				line(AccountDeemedCash(principal.Asset), model.Credit, principal),
			}
			entries = append(entries, entry)
		}
		if g.wallets.Contains(event.Borrower) {
			entry := g.newEntry(tx, event, event.Borrower, model.RoleBorrower, model.CategoryLoanOrigination,
				fmt.Sprintf("nftfi loan %s borrowed", event.LoanID))
			entry.Lines = []model.JournalLine{
				line(AccountDeemedCash(principal.Asset), model.Debit, principal),
				line(AccountNotePayable(principal.Asset), model.Credit, principal),
			}
			entries = append(entries, entry)
		}

	case "LoanRepaid":
		payoff := event.Amount(model.AmountRepayment)
		fee := event.Amount(model.AmountFee)
		if !payoff.Known() {
			return nil
		}
		if g.wallets.Contains(event.Lender) {
			// the event carries the lender payout but not the original
			// principal split, so the whole payout retires the
			// receivable
			entry := g.newEntry(tx, event, event.Lender, model.RoleLender, model.CategoryLoanRepayment,
				fmt.Sprintf("nftfi loan %s repaid", event.LoanID))
			entry.Lines = []model.JournalLine{
				line(AccountDeemedCash(payoff.Asset), model.Debit, payoff),
				line(AccountLoanReceivable(payoff.Asset), model.Credit, payoff),
			}
			entries = append(entries, entry)
		}
		if g.wallets.Contains(event.Borrower) {
			total := payoff.Value
			entry := g.newEntry(tx, event, event.Borrower, model.RoleBorrower, model.CategoryLoanRepayment,
				fmt.Sprintf("nftfi loan %s repaid by borrower", event.LoanID))
			entry.Lines = []model.JournalLine{
				line(AccountNotePayable(payoff.Asset), model.Debit, payoff),
			}
			if fee.Known() && fee.Value.Sign() > 0 {
				entry.Lines = append(entry.Lines,
					line(AccountInterestExpense(fee.Asset), model.Debit, fee))
				total = total.Add(fee.Value)
			}
			entry.Lines = append(entry.Lines,
				line(AccountDeemedCash(payoff.Asset), model.Credit, amt(total, payoff.Asset)))
			entries = append(entries, entry)
		}

	case "LoanLiquidated":
		// parties are known but the event carries no amounts
	}

	return entries
}

// ---------------------------------------------------------------------------
// Zharta

func (g *Engine) zhartaEntries(tx TxContext, event model.DecodedEvent) []model.JournalEntry {
	var entries []model.JournalEntry
	principal := event.Amount(model.AmountPrincipal)
	interest := event.Amount(model.AmountInterest)

	switch event.Name {
	case "LoanCreated":
		if !principal.Known() {
			return nil
		}
		if g.wallets.Contains(event.Borrower) {
			entry := g.newEntry(tx, event, event.Borrower, model.RoleBorrower, model.CategoryLoanOrigination,
				fmt.Sprintf("zharta loan %s borrowed", event.LoanID))
			entry.Lines = []model.JournalLine{
				line(AccountDeemedCash(principal.Asset), model.Debit, principal),
				line(AccountNotePayable(principal.Asset), model.Credit, principal),
			}
			entries = append(entries, entry)
		}
		if g.wallets.Contains(event.Lender) {
			entry := g.newEntry(tx, event, event.Lender, model.RoleLender, model.CategoryLoanOrigination,
				fmt.Sprintf("zharta loan %s originated", event.LoanID))
			entry.Lines = []model.JournalLine{
				line(AccountLoanReceivable(principal.Asset), model.Debit, principal),
				line(AccountDeemedCash(principal.Asset), model.Credit, principal),
			}
			entries = append(entries, entry)
		}

	case "LoanPayment", "LoanPaid", "LoanReplaced":
		if !principal.Known() {
			return nil
		}
		interestValue := decimal.Zero
		if interest.Known() {
			interestValue = interest.Value
		}
		total := amt(principal.Value.Add(interestValue), principal.Asset)
		category := model.CategoryLoanRepayment
		if event.Name == "LoanReplaced" {
			category = model.CategoryLoanRefinance
		}
		if g.wallets.Contains(event.Borrower) {
			entry := g.newEntry(tx, event, event.Borrower, model.RoleBorrower, category,
				fmt.Sprintf("zharta loan %s repaid by borrower", event.LoanID))
			entry.Lines = []model.JournalLine{
				line(AccountNotePayable(principal.Asset), model.Debit, principal),
			}
			if interestValue.Sign() > 0 {
				entry.Lines = append(entry.Lines,
					line(AccountInterestExpense(principal.Asset), model.Debit, amt(interestValue, principal.Asset)))
			}
			entry.Lines = append(entry.Lines,
				line(AccountDeemedCash(principal.Asset), model.Credit, total))
			entries = append(entries, entry)
		}
		if g.wallets.Contains(event.Lender) {
			entry := g.newEntry(tx, event, event.Lender, model.RoleLender, category,
				fmt.Sprintf("zharta loan %s repaid", event.LoanID))
			entry.Lines = []model.JournalLine{
				line(AccountDeemedCash(principal.Asset), model.Debit, total),
				line(AccountLoanReceivable(principal.Asset), model.Credit, principal),
			}
			if interestValue.Sign() > 0 {
				entry.Lines = append(entry.Lines,
					line(AccountInterestIncome(principal.Asset), model.Credit, amt(interestValue, principal.Asset)))
			}
			entries = append(entries, entry)
		}

	case "LoanDefaulted":
		if !principal.Known() || !g.wallets.Contains(event.Borrower) {
			return nil
		}
		entry := g.newEntry(tx, event, event.Borrower, model.RoleBorrower, model.CategoryLoanLiquidation,
			fmt.Sprintf("zharta loan %s defaulted", event.LoanID))
		entry.Lines = []model.JournalLine{
			line(AccountNotePayable(principal.Asset), model.Debit, principal),
			line(AccountNFTCollateral(principal.Asset), model.Credit, principal),
		}
		entries = append(entries, entry)
	}

	return entries
}

// ---------------------------------------------------------------------------
// Arcade

func (g *Engine) arcadeEntries(tx TxContext, event model.DecodedEvent) []model.JournalEntry {
	// Arcade lifecycle events carry ids only; NoteRedeemed is the one
	// event with an amount attached.
	if event.Name != "NoteRedeemed" {
		return nil
	}
	amount := event.Amount(model.AmountRepayment)
	if !amount.Known() || !g.wallets.Contains(event.Lender) {
		return nil
	}
	entry := g.newEntry(tx, event, event.Lender, model.RoleLender, model.CategoryLoanRepayment,
		fmt.Sprintf("arcade note %s redeemed", event.LoanID))
	entry.Lines = []model.JournalLine{
		line(AccountDeemedCash(amount.Asset), model.Debit, amount),
		line(AccountLoanReceivable(amount.Asset), model.Credit, amount),
	}
	return []model.JournalEntry{entry}
}

// Categorize derives the transaction-level category from its events.
// Ordering matters: a refinance receipt usually also contains a
// repayment and an origination.
func Categorize(events []model.DecodedEvent) model.Category {
	byName := make(map[string]bool, len(events))
	for _, event := range events {
		byName[event.Name] = true
	}
	switch {
	case byName["LoanRefinanced"] || byName["LoanRefinancedFromNewOffers"] ||
		byName["Refinance"] || byName["LoanReplaced"] || byName["LoanRolledOver"]:
		return model.CategoryLoanRefinance
	case byName["LoanExtended"]:
		return model.CategoryLoanExtension
	case byName["LoanForeclosed"] || byName["LoanLiquidated"] || byName["Seize"] ||
		byName["LoanSentToLiquidator"] || byName["LoanClaimed"] || byName["LoanDefaulted"] ||
		byName["StartAuction"]:
		return model.CategoryLoanLiquidation
	case byName["LoanRepaid"] || byName["Repay"] || byName["LoanPayment"] ||
		byName["LoanPaid"] || byName["ForceRepay"] || byName["NoteRedeemed"]:
		return model.CategoryLoanRepayment
	case byName["LoanEmitted"] || byName["LoanStarted"] || byName["LoanOfferTaken"] ||
		byName["LoanCreated"]:
		return model.CategoryLoanOrigination
	case byName["Transfer"] || byName["Deposit"] || byName["Withdrawal"]:
		return model.CategoryContractCall
	case len(events) == 0:
		return model.CategoryContractCall
	default:
		return model.CategoryUnknown
	}
}
