// Package normalize converts platform-native raw events into the
// canonical event shape, applying token decimal scaling.
package normalize

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"loanledger/internal/model"
	"loanledger/internal/platform"
	"loanledger/internal/tokens"
)

// Normalizer maps raw decoder output to canonical events. Amounts are
// scaled exactly by the token registry; tokens missing from the
// registry are fetched on-chain when a caller is configured, otherwise
// they yield unscaled amounts with an empty asset tag.
type Normalizer struct {
	tokens *tokens.Registry
	caller tokens.ContractCaller
	logger *zap.Logger
}

func NewNormalizer(registry *tokens.Registry, caller tokens.ContractCaller, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{tokens: registry, caller: caller, logger: logger}
}

// Normalize converts one raw event. Events of unrecognized shape pass
// through with their args flattened into Meta rather than failing.
func (n *Normalizer) Normalize(ctx context.Context, raw platform.RawEvent) (*model.DecodedEvent, error) {
	switch raw.Platform {
	case model.PlatformGondi:
		return n.normalizeGondi(ctx, raw)
	case model.PlatformBlur:
		return n.normalizeBlur(ctx, raw)
	case model.PlatformNFTfi:
		return n.normalizeNFTfi(ctx, raw)
	case model.PlatformArcade:
		return n.normalizeArcade(ctx, raw)
	case model.PlatformZharta:
		return n.normalizeZharta(ctx, raw)
	case model.PlatformGeneric:
		return n.normalizeGeneric(ctx, raw)
	default:
		return n.passthrough(raw), nil
	}
}

// NormalizeAll converts a batch, dropping events that fail with an
// error and logging them.
func (n *Normalizer) NormalizeAll(ctx context.Context, raws []platform.RawEvent) []model.DecodedEvent {
	out := make([]model.DecodedEvent, 0, len(raws))
	for _, raw := range raws {
		event, err := n.Normalize(ctx, raw)
		if err != nil {
			n.logger.Warn("normalize failed",
				zap.String("platform", string(raw.Platform)),
				zap.String("event", raw.Name),
				zap.Uint64("log_index", raw.LogIndex),
				zap.Error(err))
			continue
		}
		out = append(out, *event)
	}
	return out
}

func (n *Normalizer) base(raw platform.RawEvent) *model.DecodedEvent {
	return &model.DecodedEvent{
		Name:     raw.Name,
		Platform: raw.Platform,
		LogIndex: raw.LogIndex,
		Address:  raw.Address,
		Amounts:  map[string]model.Amount{},
		Meta:     map[string]string{},
	}
}

func (n *Normalizer) passthrough(raw platform.RawEvent) *model.DecodedEvent {
	event := n.base(raw)
	for name, value := range raw.Args {
		event.Meta[name] = fmt.Sprintf("%v", value)
	}
	return event
}

func (n *Normalizer) normalizeGondi(ctx context.Context, raw platform.RawEvent) (*model.DecodedEvent, error) {
	event := n.base(raw)

	switch raw.Name {
	case "LoanEmitted":
		loan, err := argLoan(raw.Args, "loan")
		if err != nil {
			return nil, err
		}
		event.LoanID = argBigString(raw.Args, "loanId")
		event.Lender = argAddressString(raw.Args, "lender")
		event.Borrower = argAddressString(raw.Args, "borrower")
		n.applyGondiLoan(ctx, event, loan)
		n.scaleInto(ctx, event, model.AmountFee, argBig(raw.Args, "fee"), loan.PrincipalAddress.Hex())

	case "LoanRefinanced", "LoanRefinancedFromNewOffers", "LoanExtended":
		loan, err := argLoan(raw.Args, "loan")
		if err != nil {
			return nil, err
		}
		event.OldLoanID = argBigString(raw.Args, "oldLoanId")
		event.LoanID = argBigString(raw.Args, "newLoanId")
		event.Borrower = strings.ToLower(loan.Borrower.Hex())
		n.applyGondiLoan(ctx, event, loan)
		fee := argBig(raw.Args, "fee")
		if fee == nil {
			fee = argBig(raw.Args, "_extension")
		}
		n.scaleInto(ctx, event, model.AmountFee, fee, loan.PrincipalAddress.Hex())

	case "LoanRepaid":
		event.LoanID = argBigString(raw.Args, "loanId")
		// The repayment event carries no principal token; Gondi
		// settles in WETH.
		event.Amounts[model.AmountRepayment] = tokens.ScaleSymbol(argBig(raw.Args, "totalRepayment"), "WETH", 18)
		event.Amounts[model.AmountFee] = tokens.ScaleSymbol(argBig(raw.Args, "fee"), "WETH", 18)

	case "LoanForeclosed", "LoanLiquidated":
		event.LoanID = argBigString(raw.Args, "loanId")

	case "LoanSentToLiquidator":
		event.LoanID = argBigString(raw.Args, "loanId")
		event.Meta["liquidator"] = argAddressString(raw.Args, "liquidator")

	default:
		return n.passthrough(raw), nil
	}

	return event, nil
}

func (n *Normalizer) applyGondiLoan(ctx context.Context, event *model.DecodedEvent, loan *platform.GondiLoan) {
	asset := loan.PrincipalAddress.Hex()
	n.scaleInto(ctx, event, model.AmountPrincipal, loan.PrincipalAmount, asset)
	event.Meta["collateral_address"] = strings.ToLower(loan.CollateralAddress.Hex())
	event.Meta["collateral_token_id"] = bigString(loan.CollateralTokenID)
	event.Meta["duration"] = bigString(loan.Duration)
	event.Meta["start_time"] = bigString(loan.StartTime)
	if loan.ProtocolFee != nil {
		event.Meta["protocol_fee_bps"] = bigString(loan.ProtocolFee)
	}

	event.Tranches = make([]model.Tranche, 0, len(loan.Tranches))
	for _, t := range loan.Tranches {
		principal, err := n.scale(ctx, t.Principal, asset)
		if err != nil {
			principal = model.Amount{}
		}
		accrued, err := n.scale(ctx, t.AccruedInterest, asset)
		if err != nil {
			accrued = model.Amount{}
		}
		event.Tranches = append(event.Tranches, model.Tranche{
			LoanID:          bigString(t.LoanID),
			Lender:          strings.ToLower(t.Lender.Hex()),
			Principal:       principal,
			AccruedInterest: accrued,
			AprBps:          bigUint(t.AprBps),
			StartTime:       bigUint(t.StartTime),
		})
	}
}

func (n *Normalizer) normalizeBlur(ctx context.Context, raw platform.RawEvent) (*model.DecodedEvent, error) {
	event := n.base(raw)
	event.LoanID = argBigString(raw.Args, "lienId")
	if collection := argAddressString(raw.Args, "collection"); collection != "" {
		event.Meta["collection"] = collection
	}

	// Blend denominates everything in Blur Pool shares, 1:1 with ETH.
	switch raw.Name {
	case "LoanOfferTaken":
		event.Lender = argAddressString(raw.Args, "lender")
		event.Borrower = argAddressString(raw.Args, "borrower")
		event.Amounts[model.AmountPrincipal] = tokens.ScaleSymbol(argBig(raw.Args, "loanAmount"), "ETH", 18)
		event.Meta["rate"] = argBigString(raw.Args, "rate")
		event.Meta["token_id"] = argBigString(raw.Args, "tokenId")
		event.Meta["auction_duration"] = argBigString(raw.Args, "auctionDuration")

	case "Refinance":
		event.Lender = argAddressString(raw.Args, "newLender")
		event.Amounts[model.AmountPrincipal] = tokens.ScaleSymbol(argBig(raw.Args, "newAmount"), "ETH", 18)
		event.Meta["rate"] = argBigString(raw.Args, "newRate")

	case "BuyLocked":
		event.Meta["buyer"] = argAddressString(raw.Args, "buyer")
		event.Meta["seller"] = argAddressString(raw.Args, "seller")
		event.Amounts[model.AmountRepayment] = tokens.ScaleSymbol(argBig(raw.Args, "amount"), "ETH", 18)

	case "Repay", "StartAuction", "Seize":
		// lien id and collection only

	default:
		return n.passthrough(raw), nil
	}

	return event, nil
}

func (n *Normalizer) normalizeNFTfi(ctx context.Context, raw platform.RawEvent) (*model.DecodedEvent, error) {
	event := n.base(raw)
	event.LoanID = argBigString(raw.Args, "loanId")
	event.Borrower = argAddressString(raw.Args, "borrower")
	event.Lender = argAddressString(raw.Args, "lender")

	asset := argAddressString(raw.Args, "erc20")

	switch raw.Name {
	case "LoanStarted":
		n.scaleInto(ctx, event, model.AmountPrincipal, argBig(raw.Args, "principal"), asset)
		event.Meta["max_repayment"] = argBigString(raw.Args, "maxRepayment")
		event.Meta["interest_bps"] = argBigString(raw.Args, "interestBps")
		event.Meta["duration"] = argBigString(raw.Args, "duration")
		event.Meta["start_time"] = argBigString(raw.Args, "startTime")
		event.Meta["collection"] = argAddressString(raw.Args, "nftCollection")
		event.Meta["token_id"] = argBigString(raw.Args, "nftId")

	case "LoanRepaid":
		if asset == "" {
			asset = tokens.WETHAddress
		}
		n.scaleInto(ctx, event, model.AmountRepayment, argBig(raw.Args, "amountToLender"), asset)
		n.scaleInto(ctx, event, model.AmountFee, argBig(raw.Args, "adminFee"), asset)

	case "LoanLiquidated":
		// parties only

	default:
		return n.passthrough(raw), nil
	}

	return event, nil
}

func (n *Normalizer) normalizeArcade(ctx context.Context, raw platform.RawEvent) (*model.DecodedEvent, error) {
	event := n.base(raw)

	switch raw.Name {
	case "LoanStarted":
		event.LoanID = argBigString(raw.Args, "loanId")
		event.Lender = argAddressString(raw.Args, "lender")
		event.Borrower = argAddressString(raw.Args, "borrower")

	case "LoanRepaid", "ForceRepay", "LoanClaimed":
		event.LoanID = argBigString(raw.Args, "loanId")

	case "LoanRolledOver":
		event.OldLoanID = argBigString(raw.Args, "oldLoanId")
		event.LoanID = argBigString(raw.Args, "newLoanId")

	case "NoteRedeemed":
		event.LoanID = argBigString(raw.Args, "loanId")
		event.Lender = argAddressString(raw.Args, "lender")
		n.scaleInto(ctx, event, model.AmountRepayment, argBig(raw.Args, "amount"), argAddressString(raw.Args, "token"))

	default:
		return n.passthrough(raw), nil
	}

	return event, nil
}

func (n *Normalizer) normalizeZharta(ctx context.Context, raw platform.RawEvent) (*model.DecodedEvent, error) {
	event := n.base(raw)
	asset := argAddressString(raw.Args, "erc20")
	if contract, ok := raw.Args["contract"].(string); ok {
		event.Meta["contract"] = contract
	}

	switch raw.Name {
	case "LoanCreated":
		event.LoanID = zhartaID(raw.Args, "loanId")
		if wallet := argAddressString(raw.Args, "wallet"); wallet != "" {
			event.Borrower = wallet
		} else {
			event.Borrower = argAddressString(raw.Args, "borrower")
			event.Lender = argAddressString(raw.Args, "lender")
		}
		n.scaleInto(ctx, event, model.AmountPrincipal, argBig(raw.Args, "amount"), asset)
		n.scaleInto(ctx, event, model.AmountInterest, argBig(raw.Args, "interest"), asset)
		if apr := argBigString(raw.Args, "aprBps"); apr != "" {
			event.Meta["apr_bps"] = apr
		}
		if duration := argBigString(raw.Args, "duration"); duration != "" {
			event.Meta["duration"] = duration
		}

	case "LoanPayment":
		event.LoanID = zhartaID(raw.Args, "loanId")
		event.Borrower = argAddressString(raw.Args, "wallet")
		n.scaleInto(ctx, event, model.AmountPrincipal, argBig(raw.Args, "principal"), asset)
		n.scaleInto(ctx, event, model.AmountInterest, argBig(raw.Args, "interest"), asset)

	case "LoanPaid":
		event.LoanID = zhartaID(raw.Args, "loanId")
		event.Borrower = argAddressString(raw.Args, "wallet")
		n.scaleInto(ctx, event, model.AmountPrincipal, argBig(raw.Args, "principal"), asset)
		n.scaleInto(ctx, event, model.AmountInterest, argBig(raw.Args, "interest"), asset)

	case "LoanDefaulted":
		event.LoanID = zhartaID(raw.Args, "loanId")
		event.Borrower = argAddressString(raw.Args, "wallet")
		n.scaleInto(ctx, event, model.AmountPrincipal, argBig(raw.Args, "amount"), asset)

	case "LoanReplaced":
		event.OldLoanID = zhartaID(raw.Args, "oldLoanId")
		event.LoanID = zhartaID(raw.Args, "newLoanId")
		event.Borrower = argAddressString(raw.Args, "borrower")
		event.Lender = argAddressString(raw.Args, "lender")
		n.scaleInto(ctx, event, model.AmountPrincipal, argBig(raw.Args, "paidPrincipal"), asset)
		n.scaleInto(ctx, event, model.AmountInterest, argBig(raw.Args, "paidInterest"), asset)

	case "OfferUsed":
		event.Meta["offer_id"] = zhartaID(raw.Args, "offerId")

	default:
		return n.passthrough(raw), nil
	}

	return event, nil
}

func (n *Normalizer) normalizeGeneric(ctx context.Context, raw platform.RawEvent) (*model.DecodedEvent, error) {
	event := n.base(raw)

	switch raw.Name {
	case "Transfer":
		event.Meta["from"] = argAddressString(raw.Args, "from")
		event.Meta["to"] = argAddressString(raw.Args, "to")
		if tokenID := argBig(raw.Args, "tokenId"); tokenID != nil {
			event.Meta["token_id"] = bigString(tokenID)
			break
		}
		n.scaleInto(ctx, event, model.AmountPrincipal, argBig(raw.Args, "value"), event.Address)

	case "Deposit", "Withdrawal":
		event.Meta["account"] = argAddressString(raw.Args, "account")
		event.Amounts[model.AmountPrincipal] = tokens.ScaleSymbol(argBig(raw.Args, "value"), "WETH", 18)

	default:
		return n.passthrough(raw), nil
	}

	return event, nil
}

// scaleInto stores a scaled amount under key. Unknown tokens keep the
// raw wei value in Meta so nothing is silently lost.
func (n *Normalizer) scaleInto(ctx context.Context, event *model.DecodedEvent, key string, wei *big.Int, tokenAddress string) {
	if wei == nil {
		return
	}
	amount, err := n.scale(ctx, wei, tokenAddress)
	if err != nil {
		event.Meta[key+"_raw"] = wei.String()
		event.Meta[key+"_token"] = strings.ToLower(tokenAddress)
		event.Amounts[key] = model.Amount{}
		return
	}
	event.Amounts[key] = amount
}

// scale resolves token metadata, reaching out to the chain for tokens
// missing from the registry when a caller is available.
func (n *Normalizer) scale(ctx context.Context, wei *big.Int, tokenAddress string) (model.Amount, error) {
	amount, err := n.tokens.Scale(wei, tokenAddress)
	if err == nil || n.caller == nil {
		return amount, err
	}
	if _, err := n.tokens.Ensure(ctx, n.caller, tokenAddress, n.logger); err != nil {
		return model.Amount{}, err
	}
	return n.tokens.Scale(wei, tokenAddress)
}

func argBig(args map[string]any, name string) *big.Int {
	if v, ok := args[name].(*big.Int); ok {
		return v
	}
	return nil
}

func argBigString(args map[string]any, name string) string {
	return bigString(argBig(args, name))
}

func argAddressString(args map[string]any, name string) string {
	if v, ok := args[name].(common.Address); ok {
		return strings.ToLower(v.Hex())
	}
	return ""
}

func argLoan(args map[string]any, name string) (*platform.GondiLoan, error) {
	loan, ok := args[name].(*platform.GondiLoan)
	if !ok || loan == nil {
		return nil, fmt.Errorf("missing loan payload")
	}
	return loan, nil
}

// zhartaID reads a loan id that is either a uint256 or a bytes32 hex
// string, depending on the contract generation.
func zhartaID(args map[string]any, name string) string {
	if s, ok := args[name].(string); ok {
		return s
	}
	return argBigString(args, name)
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func bigUint(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
