package platform

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"loanledger/internal/model"
)

// NFTfi direct-loan contracts on mainnet. Loan events moved between
// contracts across versions and the signatures drifted with them, so
// matching is by fixed per-event topic tables rather than one ABI.
const (
	NFTfiCoordinatorAddress = "0xe52cec0e90115abeb3304baa36bc2655731f7934"
	NFTfiV1Address          = "0xf896527c49b44aab3cf22ae356fa3af8e331f280"
	NFTfiV2Address          = "0x8252df1d8b29057d1afe3062bf5a64d503152bc8"
	NFTfiV2RedeployAddress  = "0xd0a40eb7fcd530a13866b9e893e4a9e0d15d03eb"
)

const nftfiCoordinatorStartedTopic = "0x3687d64f40b11dd1c102a76882ac1735891c546a96ae27935eb5c7865b9d86fa"

var nftfiLoanStartedTopics = map[string]bool{
	"0x42cc7f53ef7b494c5dd6f0095175f7d07b5d3d7b2a03f34389fea445ba4a3a8b": true,
	"0x42cc7f53ef7b494c5dd6d9c7b0fdc87ae2fdded0e6fd3e249ba9fb0ed2e3a8a9": true,
	nftfiCoordinatorStartedTopic: true,
}

var nftfiLoanRepaidTopics = map[string]bool{
	"0x70ff8cf632603e2b073f0c9ac02b8a20f349e45ff5e5fca233ec54f379d13900": true,
	"0x37357bed780fda5aed28c32fe9cd762cb2f2f8a70c0d9b342aba59c945943ca0": true,
}

var nftfiLoanLiquidatedTopics = map[string]bool{
	"0x5bd8cd67baac27b2f84b33fa12a8c2b73b1c4f2cd4d6780c56e645e7f3e1e446": true,
	"0x4fac0ff43299a330bce57d0579985305af580acf256a6d7977083ede81be1326": true,
}

// weiThreshold splits the two LoanRepaid data layouts: the first data
// word is either the lender payout or a small bookkeeping value.
var nftfiWeiThreshold = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)

// NFTfiDecoder decodes NFTfi direct-loan events. All three events index
// loanId, borrower and lender as topics 1..3; only the data layout
// varies per version.
type NFTfiDecoder struct{}

func NewNFTfiDecoder() *NFTfiDecoder {
	return &NFTfiDecoder{}
}

func (d *NFTfiDecoder) Platform() model.Platform {
	return model.PlatformNFTfi
}

func (d *NFTfiDecoder) CanDecode(receipt *model.Receipt) bool {
	for _, log := range receipt.Logs {
		if nftfiEventName(log.Topic0()) != "" {
			return true
		}
	}
	return false
}

func (d *NFTfiDecoder) DecodeEvents(receipt *model.Receipt) ([]RawEvent, []model.DecodeFailure) {
	var events []RawEvent
	var failures []model.DecodeFailure

	for _, log := range receipt.Logs {
		name := nftfiEventName(log.Topic0())
		if name == "" {
			continue
		}
		event, err := d.decodeLog(name, log)
		if err != nil {
			failures = append(failures, failure(log, err))
			continue
		}
		events = append(events, *event)
	}

	return events, failures
}

func nftfiEventName(topic0 string) string {
	switch {
	case nftfiLoanStartedTopics[topic0]:
		return "LoanStarted"
	case nftfiLoanRepaidTopics[topic0]:
		return "LoanRepaid"
	case nftfiLoanLiquidatedTopics[topic0]:
		return "LoanLiquidated"
	default:
		return ""
	}
}

func (d *NFTfiDecoder) decodeLog(name string, log model.Log) (*RawEvent, error) {
	if len(log.Topics) < 4 {
		return nil, fmt.Errorf("%s: expected 4 topics, got %d", name, len(log.Topics))
	}
	loanID, err := wordToBig(log.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("%s: loanId topic: %w", name, err)
	}
	borrower, err := wordToAddress(log.Topics[2])
	if err != nil {
		return nil, fmt.Errorf("%s: borrower topic: %w", name, err)
	}
	lender, err := wordToAddress(log.Topics[3])
	if err != nil {
		return nil, fmt.Errorf("%s: lender topic: %w", name, err)
	}

	words, err := dataWords(log.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	args := map[string]any{
		"loanId":   loanID,
		"borrower": borrower,
		"lender":   lender,
	}

	switch name {
	case "LoanStarted":
		if log.Topic0() == nftfiCoordinatorStartedTopic {
			if len(words) < 8 {
				return nil, fmt.Errorf("LoanStarted: coordinator layout needs 8 words, got %d", len(words))
			}
			args["principal"] = words[0]
			args["nftId"] = words[1]
			args["maxRepayment"] = words[2]
			args["duration"] = words[3]
			args["nftCollection"] = bigToAddress(words[6])
			args["erc20"] = bigToAddress(words[7])
			args["interestBps"] = big.NewInt(0)
			args["startTime"] = big.NewInt(0)
		} else {
			if len(words) < 10 {
				return nil, fmt.Errorf("LoanStarted: expected 10 words, got %d", len(words))
			}
			args["principal"] = words[0]
			args["maxRepayment"] = words[1]
			args["nftId"] = words[2]
			args["erc20"] = bigToAddress(words[3])
			args["duration"] = words[4]
			args["interestBps"] = words[6]
			args["startTime"] = words[8]
			args["nftCollection"] = bigToAddress(words[9])
		}
	case "LoanRepaid":
		if len(words) < 3 {
			return nil, fmt.Errorf("LoanRepaid: expected 3 words, got %d", len(words))
		}
		if words[0].Cmp(nftfiWeiThreshold) > 0 {
			args["amountToLender"] = words[0]
			args["adminFee"] = words[1]
		} else {
			args["amountToLender"] = words[1]
			args["adminFee"] = words[2]
		}
		if len(words) >= 6 {
			args["erc20"] = bigToAddress(words[len(words)-1])
		}
	case "LoanLiquidated":
		// parties only, no amounts in data
	}

	return &RawEvent{
		Name:     name,
		Platform: model.PlatformNFTfi,
		LogIndex: log.LogIndex,
		Address:  strings.ToLower(log.Address),
		Args:     args,
	}, nil
}

func dataWords(dataHex string) ([]*big.Int, error) {
	if dataHex == "" || dataHex == "0x" {
		return nil, nil
	}
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if len(data)%32 != 0 {
		return nil, fmt.Errorf("data length %d not word aligned", len(data))
	}
	words := make([]*big.Int, 0, len(data)/32)
	for i := 0; i < len(data); i += 32 {
		words = append(words, new(big.Int).SetBytes(data[i:i+32]))
	}
	return words, nil
}

func wordToBig(topic string) (*big.Int, error) {
	data, err := hexutil.Decode(topic)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

func wordToAddress(topic string) (common.Address, error) {
	data, err := hexutil.Decode(topic)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(data), nil
}

func bigToAddress(word *big.Int) common.Address {
	return common.BigToAddress(word)
}
