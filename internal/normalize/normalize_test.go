package normalize

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"loanledger/internal/model"
	"loanledger/internal/platform"
	"loanledger/internal/tokens"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(tokens.NewRegistry(), nil, nil)
}

func TestNormalizeGondiLoanEmitted(t *testing.T) {
	weth := common.HexToAddress(tokens.WETHAddress)
	lender := common.HexToAddress("0x2000000000000000000000000000000000000002")

	raw := platform.RawEvent{
		Name:     "LoanEmitted",
		Platform: model.PlatformGondi,
		LogIndex: 2,
		Address:  platform.GondiV3Address,
		Args: map[string]any{
			"loanId":   big.NewInt(7507),
			"lender":   lender,
			"borrower": common.HexToAddress("0x1000000000000000000000000000000000000001"),
			"fee":      big.NewInt(6024000000000000),
			"loan": &platform.GondiLoan{
				Borrower:          common.HexToAddress("0x1000000000000000000000000000000000000001"),
				CollateralTokenID: big.NewInt(4219),
				CollateralAddress: common.HexToAddress("0x3000000000000000000000000000000000000003"),
				PrincipalAddress:  weth,
				PrincipalAmount:   big.NewInt(1e18),
				StartTime:         big.NewInt(1700000000),
				Duration:          big.NewInt(2592000),
				ProtocolFee:       big.NewInt(50),
				Tranches: []platform.GondiTranche{{
					LoanID:          big.NewInt(7507),
					Floor:           big.NewInt(0),
					Lender:          lender,
					Principal:       big.NewInt(1e18),
					AccruedInterest: big.NewInt(0),
					StartTime:       big.NewInt(1700000000),
					AprBps:          big.NewInt(1200),
				}},
			},
		},
	}

	event, err := newTestNormalizer().Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.LoanID != "7507" {
		t.Fatalf("loan id mismatch: %s", event.LoanID)
	}
	principal := event.Amount(model.AmountPrincipal)
	if principal.Asset != "WETH" || principal.Value.String() != "1" {
		t.Fatalf("principal mismatch: %+v", principal)
	}
	fee := event.Amount(model.AmountFee)
	if fee.Value.String() != "0.006024" {
		t.Fatalf("fee mismatch: %s", fee.Value)
	}
	if len(event.Tranches) != 1 {
		t.Fatalf("tranche count mismatch: %d", len(event.Tranches))
	}
	tranche := event.Tranches[0]
	if tranche.LoanID != "7507" || tranche.AprBps != 1200 || tranche.Principal.Value.String() != "1" {
		t.Fatalf("tranche mismatch: %+v", tranche)
	}
	if event.Meta["collateral_token_id"] != "4219" {
		t.Fatalf("meta mismatch: %+v", event.Meta)
	}
}

func TestNormalizeGondiLoanMissingPayload(t *testing.T) {
	raw := platform.RawEvent{
		Name:     "LoanEmitted",
		Platform: model.PlatformGondi,
		Args:     map[string]any{"loanId": big.NewInt(1)},
	}
	if _, err := newTestNormalizer().Normalize(context.Background(), raw); err == nil {
		t.Fatalf("missing loan payload should fail")
	}
}

func TestNormalizeNFTfiLoanRepaidDefaultsToWeth(t *testing.T) {
	raw := platform.RawEvent{
		Name:     "LoanRepaid",
		Platform: model.PlatformNFTfi,
		Args: map[string]any{
			"loanId":         big.NewInt(5),
			"borrower":       common.HexToAddress("0x1000000000000000000000000000000000000001"),
			"lender":         common.HexToAddress("0x2000000000000000000000000000000000000002"),
			"amountToLender": big.NewInt(95e16),
			"adminFee":       big.NewInt(5e16),
		},
	}
	event, err := newTestNormalizer().Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	repayment := event.Amount(model.AmountRepayment)
	if repayment.Asset != "WETH" || repayment.Value.String() != "0.95" {
		t.Fatalf("repayment mismatch: %+v", repayment)
	}
	fee := event.Amount(model.AmountFee)
	if fee.Value.String() != "0.05" {
		t.Fatalf("fee mismatch: %s", fee.Value)
	}
}

func TestNormalizeUnknownTokenKeepsRawWei(t *testing.T) {
	raw := platform.RawEvent{
		Name:     "LoanStarted",
		Platform: model.PlatformNFTfi,
		Args: map[string]any{
			"loanId":    big.NewInt(5),
			"borrower":  common.HexToAddress("0x1000000000000000000000000000000000000001"),
			"lender":    common.HexToAddress("0x2000000000000000000000000000000000000002"),
			"principal": big.NewInt(123456789),
			"erc20":     common.HexToAddress("0x00000000000000000000000000000000000000ab"),
		},
	}
	event, err := newTestNormalizer().Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	principal := event.Amount(model.AmountPrincipal)
	if principal.Known() {
		t.Fatalf("unknown token must not yield a usable amount: %+v", principal)
	}
	if event.Meta["principal_raw"] != "123456789" {
		t.Fatalf("raw wei not preserved: %+v", event.Meta)
	}
	if event.Meta["principal_token"] != "0x00000000000000000000000000000000000000ab" {
		t.Fatalf("token address not preserved: %+v", event.Meta)
	}
}

func TestNormalizeZhartaPoolLoanCreated(t *testing.T) {
	wallet := common.HexToAddress("0x1000000000000000000000000000000000000001")
	raw := platform.RawEvent{
		Name:     "LoanCreated",
		Platform: model.PlatformZharta,
		Args: map[string]any{
			"contract": "Loans_WETH_Pool",
			"wallet":   wallet,
			"loanId":   big.NewInt(42),
			"erc20":    common.HexToAddress(tokens.WETHAddress),
			"aprBps":   big.NewInt(1500),
			"amount":   big.NewInt(5e17),
			"duration": big.NewInt(2592000),
		},
	}
	event, err := newTestNormalizer().Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Borrower != "0x1000000000000000000000000000000000000001" {
		t.Fatalf("pool wallet should map to borrower: %s", event.Borrower)
	}
	if event.Lender != "" {
		t.Fatalf("pool loans carry no lender address: %s", event.Lender)
	}
	principal := event.Amount(model.AmountPrincipal)
	if principal.Value.String() != "0.5" {
		t.Fatalf("principal mismatch: %s", principal.Value)
	}
	if event.Meta["apr_bps"] != "1500" {
		t.Fatalf("meta mismatch: %+v", event.Meta)
	}
}

func TestNormalizeGenericDeposit(t *testing.T) {
	raw := platform.RawEvent{
		Name:     "Deposit",
		Platform: model.PlatformGeneric,
		Address:  tokens.WETHAddress,
		Args: map[string]any{
			"account": common.HexToAddress("0x1000000000000000000000000000000000000001"),
			"value":   big.NewInt(1e18),
		},
	}
	event, err := newTestNormalizer().Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	principal := event.Amount(model.AmountPrincipal)
	if principal.Asset != "WETH" || principal.Value.String() != "1" {
		t.Fatalf("deposit amount mismatch: %+v", principal)
	}
}

func TestNormalizeAllDropsFailures(t *testing.T) {
	raws := []platform.RawEvent{
		{
			Name:     "LoanEmitted",
			Platform: model.PlatformGondi,
			Args:     map[string]any{"loanId": big.NewInt(1)}, // missing loan payload
		},
		{
			Name:     "Repay",
			Platform: model.PlatformBlur,
			Args:     map[string]any{"lienId": big.NewInt(7)},
		},
	}
	events := newTestNormalizer().NormalizeAll(context.Background(), raws)
	if len(events) != 1 || events[0].Name != "Repay" {
		t.Fatalf("failing event should be dropped: %+v", events)
	}
}
