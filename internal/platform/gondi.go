package platform

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"loanledger/internal/model"
)

// Gondi multi-source loan contracts on mainnet.
const (
	GondiV1Address = "0xf41b389e0c1950dc0b16c9498eae77131cc08a56"
	GondiV2Address = "0x478f6f994c6fb3cf3e444a489b3ad9edb8ccae16"
	GondiV3Address = "0xf65b99ce6dc5f6c556172bcc0ff27d3665a7d9a8"
)

// GondiTranche is one lender slice of a Gondi loan. Floor is zero for
// v2 loans, whose sources carry no floor field.
type GondiTranche struct {
	LoanID          *big.Int
	Floor           *big.Int
	Lender          common.Address
	Principal       *big.Int
	AccruedInterest *big.Int
	StartTime       *big.Int
	AprBps          *big.Int
}

// GondiLoan is the version-neutral loan payload shared by v1, v2 and
// v3 events. ProtocolFee is nil for v2.
type GondiLoan struct {
	Borrower          common.Address
	CollateralTokenID *big.Int
	CollateralAddress common.Address
	PrincipalAddress  common.Address
	PrincipalAmount   *big.Int
	StartTime         *big.Int
	Duration          *big.Int
	ProtocolFee       *big.Int
	Tranches          []GondiTranche
}

type gondiTrancheRaw struct {
	LoanId          *big.Int
	Floor           *big.Int
	PrincipalAmount *big.Int
	Lender          common.Address
	AccruedInterest *big.Int
	StartTime       *big.Int
	AprBps          *big.Int
}

type gondiLoanTrancheRaw struct {
	Borrower             common.Address
	NftCollateralTokenId *big.Int
	NftCollateralAddress common.Address
	PrincipalAddress     common.Address
	PrincipalAmount      *big.Int
	StartTime            *big.Int
	Duration             *big.Int
	Tranche              []gondiTrancheRaw
	ProtocolFee          *big.Int
}

type gondiSourceRaw struct {
	LoanId          *big.Int
	Lender          common.Address
	PrincipalAmount *big.Int
	AccruedInterest *big.Int
	StartTime       *big.Int
	AprBps          *big.Int
}

type gondiLoanSourceRaw struct {
	Borrower             common.Address
	NftCollateralTokenId *big.Int
	NftCollateralAddress common.Address
	PrincipalAddress     common.Address
	PrincipalAmount      *big.Int
	StartTime            *big.Int
	Duration             *big.Int
	Source               []gondiSourceRaw
}

// GondiDecoder decodes Gondi multi-source loan events. Event layouts
// changed between contract versions, so decoding tries each ABI whose
// topic table matches, preferring the version of the emitting address.
type GondiDecoder struct {
	trancheABI    abi.ABI
	sourceABI     abi.ABI
	trancheTopics map[string]string
	sourceTopics  map[string]string
}

// NewGondiDecoder builds a decoder covering all Gondi contract versions.
func NewGondiDecoder() (*GondiDecoder, error) {
	trancheABI, err := GondiTrancheABI()
	if err != nil {
		return nil, err
	}
	sourceABI, err := GondiSourceABI()
	if err != nil {
		return nil, err
	}

	trancheTopics := make(map[string]string, len(trancheABI.Events))
	for name, event := range trancheABI.Events {
		trancheTopics[strings.ToLower(event.ID.Hex())] = name
	}
	sourceTopics := make(map[string]string, len(sourceABI.Events))
	for name, event := range sourceABI.Events {
		sourceTopics[strings.ToLower(event.ID.Hex())] = name
	}

	return &GondiDecoder{
		trancheABI:    trancheABI,
		sourceABI:     sourceABI,
		trancheTopics: trancheTopics,
		sourceTopics:  sourceTopics,
	}, nil
}

func (d *GondiDecoder) Platform() model.Platform {
	return model.PlatformGondi
}

// CanDecode reports whether any log carries a Gondi event topic.
func (d *GondiDecoder) CanDecode(receipt *model.Receipt) bool {
	for _, log := range receipt.Logs {
		topic0 := log.Topic0()
		if topic0 == "" {
			continue
		}
		if _, ok := d.trancheTopics[topic0]; ok {
			return true
		}
		if _, ok := d.sourceTopics[topic0]; ok {
			return true
		}
	}
	return false
}

// DecodeEvents decodes every recognized Gondi log in the receipt.
func (d *GondiDecoder) DecodeEvents(receipt *model.Receipt) ([]RawEvent, []model.DecodeFailure) {
	var events []RawEvent
	var failures []model.DecodeFailure

	for _, log := range receipt.Logs {
		topic0 := log.Topic0()
		if topic0 == "" {
			continue
		}

		var lastErr error
		matched := false
		decoded := false
		for _, candidate := range d.candidateABIs(log.Address) {
			name, ok := candidate.topics[topic0]
			if !ok {
				continue
			}
			matched = true
			event, err := d.decodeLog(candidate.abi, name, log, candidate.tranche)
			if err != nil {
				lastErr = err
				continue
			}
			events = append(events, *event)
			decoded = true
			break
		}
		if matched && !decoded {
			failures = append(failures, failure(log, lastErr))
		}
	}

	return events, failures
}

type gondiCandidate struct {
	abi     abi.ABI
	topics  map[string]string
	tranche bool
}

// candidateABIs orders the version ABIs by the emitting address, so a
// log from a known v2 contract is tried against the source layout
// first. Unknown addresses fall back to structural matching.
func (d *GondiDecoder) candidateABIs(address string) []gondiCandidate {
	trancheFirst := []gondiCandidate{
		{abi: d.trancheABI, topics: d.trancheTopics, tranche: true},
		{abi: d.sourceABI, topics: d.sourceTopics, tranche: false},
	}
	if strings.EqualFold(address, GondiV2Address) {
		return []gondiCandidate{trancheFirst[1], trancheFirst[0]}
	}
	return trancheFirst
}

func (d *GondiDecoder) decodeLog(contractABI abi.ABI, name string, log model.Log, tranche bool) (*RawEvent, error) {
	event := contractABI.Events[name]
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}

	args := make(map[string]any, len(values))
	nonIndexed := event.Inputs.NonIndexed()
	if len(values) != len(nonIndexed) {
		return nil, fmt.Errorf("%s: expected %d values, got %d", name, len(nonIndexed), len(values))
	}
	for i, arg := range nonIndexed {
		if arg.Name == "loan" {
			loan, err := convertGondiLoan(values[i], tranche)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			args["loan"] = loan
			continue
		}
		args[arg.Name] = values[i]
	}

	return &RawEvent{
		Name:     name,
		Platform: model.PlatformGondi,
		LogIndex: log.LogIndex,
		Address:  strings.ToLower(log.Address),
		Args:     args,
	}, nil
}

func convertGondiLoan(value interface{}, tranche bool) (*GondiLoan, error) {
	if tranche {
		raw, ok := abi.ConvertType(value, new(gondiLoanTrancheRaw)).(*gondiLoanTrancheRaw)
		if !ok {
			return nil, fmt.Errorf("unexpected loan tuple type %T", value)
		}
		loan := &GondiLoan{
			Borrower:          raw.Borrower,
			CollateralTokenID: raw.NftCollateralTokenId,
			CollateralAddress: raw.NftCollateralAddress,
			PrincipalAddress:  raw.PrincipalAddress,
			PrincipalAmount:   raw.PrincipalAmount,
			StartTime:         raw.StartTime,
			Duration:          raw.Duration,
			ProtocolFee:       raw.ProtocolFee,
			Tranches:          make([]GondiTranche, 0, len(raw.Tranche)),
		}
		for _, t := range raw.Tranche {
			loan.Tranches = append(loan.Tranches, GondiTranche{
				LoanID:          t.LoanId,
				Floor:           t.Floor,
				Lender:          t.Lender,
				Principal:       t.PrincipalAmount,
				AccruedInterest: t.AccruedInterest,
				StartTime:       t.StartTime,
				AprBps:          t.AprBps,
			})
		}
		return loan, nil
	}

	raw, ok := abi.ConvertType(value, new(gondiLoanSourceRaw)).(*gondiLoanSourceRaw)
	if !ok {
		return nil, fmt.Errorf("unexpected loan tuple type %T", value)
	}
	loan := &GondiLoan{
		Borrower:          raw.Borrower,
		CollateralTokenID: raw.NftCollateralTokenId,
		CollateralAddress: raw.NftCollateralAddress,
		PrincipalAddress:  raw.PrincipalAddress,
		PrincipalAmount:   raw.PrincipalAmount,
		StartTime:         raw.StartTime,
		Duration:          raw.Duration,
		Tranches:          make([]GondiTranche, 0, len(raw.Source)),
	}
	for _, s := range raw.Source {
		loan.Tranches = append(loan.Tranches, GondiTranche{
			LoanID:          s.LoanId,
			Floor:           big.NewInt(0),
			Lender:          s.Lender,
			Principal:       s.PrincipalAmount,
			AccruedInterest: s.AccruedInterest,
			StartTime:       s.StartTime,
			AprBps:          s.AprBps,
		})
	}
	return loan, nil
}
