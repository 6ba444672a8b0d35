package platform

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"loanledger/internal/model"
)

// Arcade v3 controllers on mainnet.
const (
	ArcadeOriginationAddress = "0xb7bfcca7d7ff0f371867b770856fac184b185878"
	ArcadeRepaymentAddress   = "0x74241e1a9c021643289476426b9b70229ab40d53"
)

const arcadeABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "lender", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "borrower", "type": "address"}
    ],
    "name": "LoanStarted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"}
    ],
    "name": "LoanRepaid",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"}
    ],
    "name": "ForceRepay",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"}
    ],
    "name": "LoanClaimed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "oldLoanId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newLoanId", "type": "uint256"}
    ],
    "name": "LoanRolledOver",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "lender", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "loanId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "NoteRedeemed",
    "type": "event"
  }
]`

var (
	arcadeABI     abi.ABI
	arcadeABIOnce sync.Once
	arcadeABIErr  error
)

// ArcadeABI returns the parsed Arcade LoanCore ABI.
func ArcadeABI() (abi.ABI, error) {
	arcadeABIOnce.Do(func() {
		arcadeABI, arcadeABIErr = abi.JSON(strings.NewReader(arcadeABIJSON))
	})
	return arcadeABI, arcadeABIErr
}

// ArcadeDecoder decodes Arcade v3 loan lifecycle events. Arcade events
// carry loan ids but no amounts; amounts live in loan state reads that
// are out of scope here, so downstream treats these as linkage.
type ArcadeDecoder struct {
	arcadeABI   abi.ABI
	topicToName map[string]string
}

func NewArcadeDecoder() (*ArcadeDecoder, error) {
	parsed, err := ArcadeABI()
	if err != nil {
		return nil, err
	}
	topicToName := make(map[string]string, len(parsed.Events))
	for name, event := range parsed.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}
	return &ArcadeDecoder{arcadeABI: parsed, topicToName: topicToName}, nil
}

func (d *ArcadeDecoder) Platform() model.Platform {
	return model.PlatformArcade
}

func (d *ArcadeDecoder) CanDecode(receipt *model.Receipt) bool {
	for _, log := range receipt.Logs {
		if _, ok := d.topicToName[log.Topic0()]; ok {
			return true
		}
	}
	return false
}

func (d *ArcadeDecoder) DecodeEvents(receipt *model.Receipt) ([]RawEvent, []model.DecodeFailure) {
	var events []RawEvent
	var failures []model.DecodeFailure

	for _, log := range receipt.Logs {
		name, ok := d.topicToName[log.Topic0()]
		if !ok {
			continue
		}
		event := d.arcadeABI.Events[name]
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
			Platform: model.PlatformArcade,
			LogIndex: log.LogIndex,
			Address:  strings.ToLower(log.Address),
			Args:     args,
		})
	}

	return events, failures
}
