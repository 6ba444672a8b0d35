package journal

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"loanledger/internal/model"
)

const (
	testLender   = "0x2000000000000000000000000000000000000002"
	testBorrower = "0x1000000000000000000000000000000000000001"
)

func weth(s string) model.Amount {
	return model.Amount{Value: decimal.RequireFromString(s), Asset: "WETH"}
}

func testTx() TxContext {
	return TxContext{
		TxHash:      "0xabc",
		Platform:    model.PlatformGondi,
		Timestamp:   1700000000,
		EthUsdPrice: decimal.RequireFromString("2000"),
	}
}

func TestGondiRefinanceFeeSplit(t *testing.T) {
	engine := NewEngine(model.NewWalletSet([]string{testLender}), nil)

	event := model.DecodedEvent{
		Name:      "LoanRefinanced",
		Platform:  model.PlatformGondi,
		LoanID:    "7507",
		OldLoanID: "3862",
		Borrower:  testBorrower,
		Amounts: map[string]model.Amount{
			model.AmountPrincipal: weth("1"),
			model.AmountFee:       weth("0.006024"),
		},
		Tranches: []model.Tranche{{
			LoanID:          "7507",
			Lender:          testLender,
			Principal:       weth("1"),
			AccruedInterest: weth("0"),
			AprBps:          1200,
			StartTime:       1700000000,
		}},
	}

	entries, err := engine.Entries(testTx(), []model.DecodedEvent{event})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Category != model.CategoryLoanRefinance || entry.Role != model.RoleLender {
		t.Fatalf("entry header mismatch: %+v", entry)
	}
	if len(entry.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %+v", len(entry.Lines), entry.Lines)
	}

	assertLine(t, entry.Lines[0], "loan_receivable_weth", model.Debit, "1")
	assertLine(t, entry.Lines[1], "deemed_cash_weth", model.Credit, "0.993976")
	assertLine(t, entry.Lines[2], "interest_income_weth", model.Credit, "0.006024")
	if !entry.Balanced() {
		t.Fatalf("entry must balance: %+v", entry)
	}
}

func TestGondiRefinanceContinuationSkipped(t *testing.T) {
	engine := NewEngine(model.NewWalletSet([]string{testLender}), nil)

	// tranche loan id equals the refinanced loan id: the position
	// carries over, so nothing posts
	event := model.DecodedEvent{
		Name:      "LoanRefinanced",
		Platform:  model.PlatformGondi,
		LoanID:    "7507",
		OldLoanID: "3862",
		Amounts: map[string]model.Amount{
			model.AmountPrincipal: weth("1"),
		},
		Tranches: []model.Tranche{{
			LoanID:    "3862",
			Lender:    testLender,
			Principal: weth("1"),
		}},
	}

	entries, err := engine.Entries(testTx(), []model.DecodedEvent{event})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("continuation tranche should post nothing: %+v", entries)
	}
}

func TestGondiRefinancePurchasedAccruedInterest(t *testing.T) {
	engine := NewEngine(model.NewWalletSet([]string{testLender}), nil)

	event := model.DecodedEvent{
		Name:      "LoanRefinanced",
		Platform:  model.PlatformGondi,
		LoanID:    "8000",
		OldLoanID: "7507",
		Amounts: map[string]model.Amount{
			model.AmountPrincipal: weth("1"),
		},
		Tranches: []model.Tranche{{
			LoanID:          "8000",
			Lender:          testLender,
			Principal:       weth("1"),
			AccruedInterest: weth("0.01"),
		}},
	}

	entries, err := engine.Entries(testTx(), []model.DecodedEvent{event})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if len(entry.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %+v", entry.Lines)
	}
	assertLine(t, entry.Lines[0], "loan_receivable_weth", model.Debit, "1")
	assertLine(t, entry.Lines[1], "interest_receivable_weth", model.Debit, "0.01")
	assertLine(t, entry.Lines[2], "deemed_cash_weth", model.Credit, "1.01")
	if !entry.Balanced() {
		t.Fatalf("entry must balance: %+v", entry)
	}
}

func TestGondiOriginationBothRoles(t *testing.T) {
	engine := NewEngine(model.NewWalletSet([]string{testLender, testBorrower}), nil)

	event := model.DecodedEvent{
		Name:     "LoanEmitted",
		Platform: model.PlatformGondi,
		LoanID:   "100",
		Lender:   testLender,
		Borrower: testBorrower,
		Amounts: map[string]model.Amount{
			model.AmountPrincipal: weth("0.35"),
			model.AmountFee:       weth("0.0005"),
		},
		Tranches: []model.Tranche{{
			LoanID:    "100",
			Lender:    testLender,
			Principal: weth("0.35"),
		}},
	}

	entries, err := engine.Entries(testTx(), []model.DecodedEvent{event})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected lender and borrower entries, got %d", len(entries))
	}

	lenderEntry, borrowerEntry := entries[0], entries[1]
	if lenderEntry.Role != model.RoleLender || borrowerEntry.Role != model.RoleBorrower {
		t.Fatalf("role ordering mismatch: %+v", entries)
	}
	assertLine(t, lenderEntry.Lines[0], "loan_receivable_weth", model.Debit, "0.35")
	assertLine(t, lenderEntry.Lines[1], "deemed_cash_weth", model.Credit, "0.3495")
	assertLine(t, lenderEntry.Lines[2], "interest_income_weth", model.Credit, "0.0005")

	assertLine(t, borrowerEntry.Lines[0], "deemed_cash_weth", model.Debit, "0.3495")
	assertLine(t, borrowerEntry.Lines[1], "interest_expense_weth", model.Debit, "0.0005")
	assertLine(t, borrowerEntry.Lines[2], "note_payable_weth", model.Credit, "0.35")

	for _, entry := range entries {
		if !entry.Balanced() {
			t.Fatalf("entry must balance: %+v", entry)
		}
	}
}

func TestGondiOriginationUnmonitoredWallets(t *testing.T) {
	engine := NewEngine(model.NewWalletSet([]string{"0x9990000000000000000000000000000000000000"}), nil)

	event := model.DecodedEvent{
		Name:     "LoanEmitted",
		Platform: model.PlatformGondi,
		LoanID:   "100",
		Lender:   testLender,
		Borrower: testBorrower,
		Amounts: map[string]model.Amount{
			model.AmountPrincipal: weth("0.35"),
		},
		Tranches: []model.Tranche{{LoanID: "100", Lender: testLender, Principal: weth("0.35")}},
	}

	entries, err := engine.Entries(testTx(), []model.DecodedEvent{event})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("unmonitored wallets should post nothing: %+v", entries)
	}
}

func TestGondiOriginationProRataFeeBalances(t *testing.T) {
	// A fee that does not divide evenly across tranches must still
	// produce balanced entries, because each tranche's share is used in
	// both the cash and income legs.
	engine := NewEngine(model.NewWalletSet([]string{testLender}), nil)

	event := model.DecodedEvent{
		Name:     "LoanEmitted",
		Platform: model.PlatformGondi,
		LoanID:   "200",
		Amounts: map[string]model.Amount{
			model.AmountPrincipal: weth("1"),
			model.AmountFee:       weth("0.001"),
		},
		Tranches: []model.Tranche{
			{LoanID: "200", Lender: testLender, Principal: weth("0.333333333333333333")},
			{LoanID: "200", Lender: "0x8880000000000000000000000000000000000000", Principal: weth("0.666666666666666667")},
		},
	}

	entries, err := engine.Entries(testTx(), []model.DecodedEvent{event})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("only the monitored tranche should post: %d", len(entries))
	}
	if !entries[0].Balanced() {
		t.Fatalf("pro-rata entry must balance: %+v", entries[0])
	}
}

func TestRefinanceEntriesFilterToMonitoredLender(t *testing.T) {
	// A refinance receipt carries the payoff of the old loan, the start
	// of the new one, and a linkage marker. With only the new lender
	// monitored, exactly one entry posts.
	engine := NewEngine(model.NewWalletSet([]string{testLender}), nil)

	otherLender := "0x8880000000000000000000000000000000000008"
	events := []model.DecodedEvent{
		{
			Name:     "LoanRepaid",
			Platform: model.PlatformNFTfi,
			LoanID:   "40",
			Lender:   otherLender,
			Borrower: testBorrower,
			Amounts: map[string]model.Amount{
				model.AmountRepayment: weth("0.36"),
			},
		},
		{
			Name:     "LoanStarted",
			Platform: model.PlatformNFTfi,
			LoanID:   "41",
			Lender:   testLender,
			Borrower: testBorrower,
			Amounts: map[string]model.Amount{
				model.AmountPrincipal: weth("0.35"),
			},
		},
		{
			Name:      "LoanRolledOver",
			Platform:  model.PlatformArcade,
			OldLoanID: "40",
			LoanID:    "41",
		},
	}

	entries, err := engine.Entries(testTx(), events)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry for the monitored lender, got %d: %+v", len(entries), entries)
	}

	entry := entries[0]
	if entry.Role != model.RoleLender || entry.Wallet != testLender {
		t.Fatalf("entry header mismatch: %+v", entry)
	}
	if len(entry.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %+v", entry.Lines)
	}
	assertLine(t, entry.Lines[0], "loan_receivable_weth", model.Debit, "0.35")
	assertLine(t, entry.Lines[1], "deemed_cash_weth", model.Credit, "0.35")
	if !entry.Balanced() {
		t.Fatalf("entry must balance: %+v", entry)
	}

	if got := Categorize(events); got != model.CategoryLoanRefinance {
		t.Fatalf("categorize mismatch: %s", got)
	}
}

func TestEntriesRejectUnbalancedEntry(t *testing.T) {
	// A fee denominated in a different currency than the payoff cannot
	// balance; the invariant check must abort instead of emitting the
	// entry.
	engine := NewEngine(model.NewWalletSet([]string{testBorrower}), nil)

	event := model.DecodedEvent{
		Name:     "LoanRepaid",
		Platform: model.PlatformNFTfi,
		LoanID:   "5",
		Borrower: testBorrower,
		Amounts: map[string]model.Amount{
			model.AmountRepayment: weth("0.95"),
			model.AmountFee:       {Value: decimal.RequireFromString("0.05"), Asset: "USDC"},
		},
	}

	entries, err := engine.Entries(testTx(), []model.DecodedEvent{event})
	if !errors.Is(err, ErrUnbalancedEntry) {
		t.Fatalf("expected ErrUnbalancedEntry, got %v", err)
	}
	if entries != nil {
		t.Fatalf("no entries may be returned on an invariant violation: %+v", entries)
	}
}

func TestNFTfiRepaymentEntries(t *testing.T) {
	engine := NewEngine(model.NewWalletSet([]string{testLender, testBorrower}), nil)

	event := model.DecodedEvent{
		Name:     "LoanRepaid",
		Platform: model.PlatformNFTfi,
		LoanID:   "5",
		Lender:   testLender,
		Borrower: testBorrower,
		Amounts: map[string]model.Amount{
			model.AmountRepayment: weth("0.95"),
			model.AmountFee:       weth("0.05"),
		},
	}

	entries, err := engine.Entries(testTx(), []model.DecodedEvent{event})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	lenderEntry := entries[0]
	assertLine(t, lenderEntry.Lines[0], "deemed_cash_weth", model.Debit, "0.95")
	assertLine(t, lenderEntry.Lines[1], "loan_receivable_weth", model.Credit, "0.95")

	borrowerEntry := entries[1]
	assertLine(t, borrowerEntry.Lines[0], "note_payable_weth", model.Debit, "0.95")
	assertLine(t, borrowerEntry.Lines[1], "interest_expense_weth", model.Debit, "0.05")
	assertLine(t, borrowerEntry.Lines[2], "deemed_cash_weth", model.Credit, "1")

	for _, entry := range entries {
		if !entry.Balanced() {
			t.Fatalf("entry must balance: %+v", entry)
		}
	}
}

func TestZhartaRepaymentEntries(t *testing.T) {
	engine := NewEngine(model.NewWalletSet([]string{testBorrower}), nil)

	event := model.DecodedEvent{
		Name:     "LoanPaid",
		Platform: model.PlatformZharta,
		LoanID:   "42",
		Borrower: testBorrower,
		Amounts: map[string]model.Amount{
			model.AmountPrincipal: weth("0.5"),
			model.AmountInterest:  weth("0.02"),
		},
	}

	entries, err := engine.Entries(testTx(), []model.DecodedEvent{event})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	assertLine(t, entry.Lines[0], "note_payable_weth", model.Debit, "0.5")
	assertLine(t, entry.Lines[1], "interest_expense_weth", model.Debit, "0.02")
	assertLine(t, entry.Lines[2], "deemed_cash_weth", model.Credit, "0.52")
	if !entry.Balanced() {
		t.Fatalf("entry must balance: %+v", entry)
	}
}

func TestAccrualEntriesSumToSimpleInterest(t *testing.T) {
	start := uint64(1700000000)
	asOf := start + 3*secondsPerDay + 7200

	engine := NewEngine(model.NewWalletSet([]string{testLender}), nil)
	engine.AccrueThrough = asOf

	event := model.DecodedEvent{
		Name:     "LoanEmitted",
		Platform: model.PlatformGondi,
		LoanID:   "300",
		Amounts: map[string]model.Amount{
			model.AmountPrincipal: weth("1"),
		},
		Tranches: []model.Tranche{{
			LoanID:    "300",
			Lender:    testLender,
			Principal: weth("1"),
			AprBps:    1200,
			StartTime: start,
		}},
	}

	entries, err := engine.Entries(testTx(), []model.DecodedEvent{event})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}

	var accruals []model.JournalEntry
	for _, entry := range entries {
		if entry.Category == model.CategoryInterestAccrual {
			accruals = append(accruals, entry)
		}
	}
	if len(accruals) == 0 {
		t.Fatalf("expected accrual entries")
	}

	sum := decimal.Zero
	for _, entry := range accruals {
		if len(entry.Lines) != 2 {
			t.Fatalf("accrual entry shape mismatch: %+v", entry)
		}
		assertSide(t, entry.Lines[0], "interest_receivable_weth", model.Debit)
		assertSide(t, entry.Lines[1], "interest_income_weth", model.Credit)
		sum = sum.Add(entry.Lines[0].Amount)
	}

	principalWei := decimal.RequireFromString("1").Shift(18).BigInt()
	total := SimpleInterestWei(principalWei, 1200, asOf-start)
	want := decimal.NewFromBigInt(total, -18)
	if !sum.Equal(want) {
		t.Fatalf("accrued sum %s != simple interest %s", sum, want)
	}
}

func TestCategorizePrecedence(t *testing.T) {
	// a refinance receipt usually also carries repayment and
	// origination events; refinance wins
	events := []model.DecodedEvent{
		{Name: "LoanRepaid"},
		{Name: "LoanEmitted"},
		{Name: "LoanRefinanced"},
	}
	if got := Categorize(events); got != model.CategoryLoanRefinance {
		t.Fatalf("categorize mismatch: %s", got)
	}

	if got := Categorize([]model.DecodedEvent{{Name: "LoanRepaid"}}); got != model.CategoryLoanRepayment {
		t.Fatalf("categorize mismatch: %s", got)
	}
	if got := Categorize([]model.DecodedEvent{{Name: "LoanForeclosed"}}); got != model.CategoryLoanLiquidation {
		t.Fatalf("categorize mismatch: %s", got)
	}
	if got := Categorize([]model.DecodedEvent{{Name: "Transfer"}}); got != model.CategoryContractCall {
		t.Fatalf("categorize mismatch: %s", got)
	}
	if got := Categorize(nil); got != model.CategoryContractCall {
		t.Fatalf("empty receipt should categorize as contract call: %s", got)
	}
	if got := Categorize([]model.DecodedEvent{{Name: "SomethingElse"}}); got != model.CategoryUnknown {
		t.Fatalf("categorize mismatch: %s", got)
	}
}

func assertLine(t *testing.T, got model.JournalLine, account string, side model.Side, amount string) {
	t.Helper()
	if got.Account != account || got.Side != side {
		t.Fatalf("line mismatch: want %s %s, got %+v", account, side, got)
	}
	if !got.Amount.Equal(decimal.RequireFromString(amount)) {
		t.Fatalf("line %s amount mismatch: want %s, got %s", account, amount, got.Amount)
	}
}

func assertSide(t *testing.T, got model.JournalLine, account string, side model.Side) {
	t.Helper()
	if got.Account != account || got.Side != side {
		t.Fatalf("line mismatch: want %s %s, got %+v", account, side, got)
	}
}
