package platform

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"loanledger/internal/model"
)

// Well-known signatures shared by every ERC-20/721 and the WETH
// contract. The generic decoder is the fallback when no lending
// platform matches; downstream uses these for cost basis, not
// journal entries.
var (
	transferTopic   = strings.ToLower(crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")).Hex())
	depositTopic    = strings.ToLower(crypto.Keccak256Hash([]byte("Deposit(address,uint256)")).Hex())
	withdrawalTopic = strings.ToLower(crypto.Keccak256Hash([]byte("Withdrawal(address,uint256)")).Hex())
)

// GenericDecoder decodes plain token movement events.
type GenericDecoder struct{}

func NewGenericDecoder() *GenericDecoder {
	return &GenericDecoder{}
}

func (d *GenericDecoder) Platform() model.Platform {
	return model.PlatformGeneric
}

// CanDecode is always true: the generic decoder accepts any receipt
// and simply yields no events when nothing matches.
func (d *GenericDecoder) CanDecode(receipt *model.Receipt) bool {
	return true
}

func (d *GenericDecoder) DecodeEvents(receipt *model.Receipt) ([]RawEvent, []model.DecodeFailure) {
	var events []RawEvent
	var failures []model.DecodeFailure

	for _, log := range receipt.Logs {
		var (
			event *RawEvent
			err   error
		)
		switch log.Topic0() {
		case transferTopic:
			event, err = decodeTransfer(log)
		case depositTopic:
			event, err = decodeWrap("Deposit", log)
		case withdrawalTopic:
			event, err = decodeWrap("Withdrawal", log)
		default:
			continue
		}
		if err != nil {
			failures = append(failures, failure(log, err))
			continue
		}
		events = append(events, *event)
	}

	return events, failures
}

func decodeTransfer(log model.Log) (*RawEvent, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("Transfer: expected 3 topics, got %d", len(log.Topics))
	}
	from, err := wordToAddress(log.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("Transfer: from topic: %w", err)
	}
	to, err := wordToAddress(log.Topics[2])
	if err != nil {
		return nil, fmt.Errorf("Transfer: to topic: %w", err)
	}

	args := map[string]any{"from": from, "to": to}

	// ERC-721 indexes the token id as a fourth topic and carries no
	// data; ERC-20 puts the value in data.
	if len(log.Topics) == 4 {
		tokenID, err := wordToBig(log.Topics[3])
		if err != nil {
			return nil, fmt.Errorf("Transfer: tokenId topic: %w", err)
		}
		args["tokenId"] = tokenID
	} else {
		words, err := dataWords(log.Data)
		if err != nil {
			return nil, fmt.Errorf("Transfer: %w", err)
		}
		value := big.NewInt(0)
		if len(words) > 0 {
			value = words[0]
		}
		args["value"] = value
	}

	return &RawEvent{
		Name:     "Transfer",
		Platform: model.PlatformGeneric,
		LogIndex: log.LogIndex,
		Address:  strings.ToLower(log.Address),
		Args:     args,
	}, nil
}

func decodeWrap(name string, log model.Log) (*RawEvent, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("%s: expected 2 topics, got %d", name, len(log.Topics))
	}
	account, err := wordToAddress(log.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("%s: account topic: %w", name, err)
	}
	words, err := dataWords(log.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	value := big.NewInt(0)
	if len(words) > 0 {
		value = words[0]
	}
	return &RawEvent{
		Name:     name,
		Platform: model.PlatformGeneric,
		LogIndex: log.LogIndex,
		Address:  strings.ToLower(log.Address),
		Args: map[string]any{
			"account": account,
			"value":   value,
		},
	}, nil
}
