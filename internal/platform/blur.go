package platform

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"loanledger/internal/model"
)

// Blur Blend contracts on mainnet. Blend sits behind an EIP-1967
// proxy; logs are emitted by the proxy address.
const (
	BlurBlendProxyAddress = "0x29469395eaf6f95920e59f858042f0e28d98a20b"
	BlurBlendImplAddress  = "0xb258ca5559b11cd702f363796522b04d7722ea56"
	BlurPoolAddress       = "0x0000000000a39bb272e79075ade125fd351887ac"
)

const blendABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "bytes32", "name": "offerHash", "type": "bytes32"},
      {"indexed": false, "internalType": "uint256", "name": "lienId", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "collection", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "lender", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "borrower", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "loanAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "rate", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "tokenId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "auctionDuration", "type": "uint256"}
    ],
    "name": "LoanOfferTaken",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "lienId", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "collection", "type": "address"}
    ],
    "name": "Repay",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "lienId", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "collection", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "newLender", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "newAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newRate", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newAuctionDuration", "type": "uint256"}
    ],
    "name": "Refinance",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "lienId", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "collection", "type": "address"}
    ],
    "name": "StartAuction",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "lienId", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "collection", "type": "address"}
    ],
    "name": "Seize",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "lienId", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "collection", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "buyer", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "seller", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "BuyLocked",
    "type": "event"
  }
]`

var (
	blendABI     abi.ABI
	blendABIOnce sync.Once
	blendABIErr  error
)

// BlendABI returns the parsed Blend ABI.
func BlendABI() (abi.ABI, error) {
	blendABIOnce.Do(func() {
		blendABI, blendABIErr = abi.JSON(strings.NewReader(blendABIJSON))
	})
	return blendABI, blendABIErr
}

// BlurDecoder decodes Blur Blend lending events. All Blend amounts are
// denominated in Blur Pool shares, redeemable 1:1 for ETH.
type BlurDecoder struct {
	blendABI    abi.ABI
	topicToName map[string]string
}

func NewBlurDecoder() (*BlurDecoder, error) {
	blendABI, err := BlendABI()
	if err != nil {
		return nil, err
	}
	topicToName := make(map[string]string, len(blendABI.Events))
	for name, event := range blendABI.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}
	return &BlurDecoder{blendABI: blendABI, topicToName: topicToName}, nil
}

func (d *BlurDecoder) Platform() model.Platform {
	return model.PlatformBlur
}

func (d *BlurDecoder) CanDecode(receipt *model.Receipt) bool {
	for _, log := range receipt.Logs {
		if _, ok := d.topicToName[log.Topic0()]; ok {
			return true
		}
	}
	return false
}

func (d *BlurDecoder) DecodeEvents(receipt *model.Receipt) ([]RawEvent, []model.DecodeFailure) {
	var events []RawEvent
	var failures []model.DecodeFailure

	for _, log := range receipt.Logs {
		name, ok := d.topicToName[log.Topic0()]
		if !ok {
			continue
		}
		event := d.blendABI.Events[name]
		values, err := unpackNonIndexed(event, log.Data)
		if err != nil {
			failures = append(failures, failure(log, err))
			continue
		}
		nonIndexed := event.Inputs.NonIndexed()
		if len(values) != len(nonIndexed) {
			failures = append(failures, failure(log, fmt.Errorf("%s: expected %d values, got %d", name, len(nonIndexed), len(values))))
			continue
		}
		args := make(map[string]any, len(values))
		for i, arg := range nonIndexed {
			args[arg.Name] = values[i]
		}
		events = append(events, RawEvent{
			Name:     name,
			Platform: model.PlatformBlur,
			LogIndex: log.LogIndex,
			Address:  strings.ToLower(log.Address),
			Args:     args,
		})
	}

	return events, failures
}
