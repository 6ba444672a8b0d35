package platform

import (
	"fmt"
	"math/big"
	"strings"

	"loanledger/internal/model"
)

// Zharta peer-to-pool and p2p lending contracts on mainnet.
const (
	ZhartaWETHPoolAddress     = "0x1cf3dab407aa14389f9c79b80b16e48cbc7246ee"
	ZhartaUSDCV2Address       = "0x5f19431bc8a3eb21222771c6c867a63a119deda7"
	ZhartaP2PLendingAddress   = "0x8d0f9c9fa4c1b265cd5032fe6ba4fefc9d94badb"
	ZhartaLoansCoreAddress    = "0x5be916cff5f07870e9aef205960e07d9e287ef27"
	ZhartaLiquidationsAddress = "0x04fc02deeee6f4fa51e11cc762e2e47ab8873ecc"
)

// Zharta contracts are Vyper and emit everything non-indexed, so each
// event is a fixed topic0 with a fixed word layout.
var zhartaTopics = map[string]zhartaEventKind{
	"0x4a558778654b4d21f09ae7e2aa4eebc0de757d1233dc825b43183a1276a7b2a1": {"Loans_WETH_Pool", "LoanCreated"},
	"0x31c401ba8a3eb75cf55e1d9f4971e726115e8448c80446935cffbea991ca2473": {"Loans_WETH_Pool", "LoanPayment"},
	"0x42d434e1d98bb8cb642015660476f098bbb0f00b64ddb556e149e17de4dd3645": {"Loans_WETH_Pool", "LoanPaid"},
	"0x098169d32c0f83653c192e3fe5e7da2ae5d6e98615fd0f767785098bea1f51b7": {"Loans_WETH_Pool", "LoanDefaulted"},
	"0x6827a33d0a24e36314681156d8d9a7d20d6a0548c169735fe25e00c9d38ac5a9": {"Loans_USDC_V2", "LoanCreated"},
	"0x3104dd99ab576a709e2bea4bedb076e17210d16fdbc54a86b7db45e9f3be8284": {"Loans_USDC_V2", "LoanPaid"},
	"0xadf0e5d2eb7098352961e41ff94c8d5bd1e0d24910d7c8e7ae147610146fef21": {"Loans_USDC_V2", "LoanReplaced"},
	"0x08f7f4fedc8c9bd3165579676da5b715f2babe388ed555519fcae0e56c2e507d": {"Loans_USDC_V2", "OfferUsed"},
}

type zhartaEventKind struct {
	Contract string
	Event    string
}

// ZhartaDecoder decodes Zharta lending events using fixed topic and
// word-offset tables.
type ZhartaDecoder struct{}

func NewZhartaDecoder() *ZhartaDecoder {
	return &ZhartaDecoder{}
}

func (d *ZhartaDecoder) Platform() model.Platform {
	return model.PlatformZharta
}

func (d *ZhartaDecoder) CanDecode(receipt *model.Receipt) bool {
	for _, log := range receipt.Logs {
		if _, ok := zhartaTopics[log.Topic0()]; ok {
			return true
		}
	}
	return false
}

func (d *ZhartaDecoder) DecodeEvents(receipt *model.Receipt) ([]RawEvent, []model.DecodeFailure) {
	var events []RawEvent
	var failures []model.DecodeFailure

	for _, log := range receipt.Logs {
		kind, ok := zhartaTopics[log.Topic0()]
		if !ok {
			continue
		}
		words, err := dataWords(log.Data)
		if err != nil {
			failures = append(failures, failure(log, err))
			continue
		}
		var args map[string]any
		switch kind.Contract {
		case "Loans_WETH_Pool":
			args, err = zhartaPoolArgs(kind.Event, words)
		case "Loans_USDC_V2":
			args, err = zhartaP2PArgs(kind.Event, words)
		}
		if err != nil {
			failures = append(failures, failure(log, err))
			continue
		}
		args["contract"] = kind.Contract
		events = append(events, RawEvent{
			Name:     kind.Event,
			Platform: model.PlatformZharta,
			LogIndex: log.LogIndex,
			Address:  strings.ToLower(log.Address),
			Args:     args,
		})
	}

	return events, failures
}

func zhartaPoolArgs(event string, words []*big.Int) (map[string]any, error) {
	switch event {
	case "LoanCreated":
		if len(words) < 6 {
			return nil, fmt.Errorf("LoanCreated: expected 6 words, got %d", len(words))
		}
		return map[string]any{
			"wallet":   bigToAddress(words[0]),
			"loanId":   words[1],
			"erc20":    bigToAddress(words[2]),
			"aprBps":   words[3],
			"amount":   words[4],
			"duration": words[5],
		}, nil
	case "LoanPayment":
		if len(words) < 5 {
			return nil, fmt.Errorf("LoanPayment: expected 5 words, got %d", len(words))
		}
		return map[string]any{
			"wallet":    bigToAddress(words[0]),
			"loanId":    words[1],
			"principal": words[2],
			"interest":  words[3],
			"erc20":     bigToAddress(words[4]),
		}, nil
	case "LoanPaid":
		if len(words) < 3 {
			return nil, fmt.Errorf("LoanPaid: expected 3 words, got %d", len(words))
		}
		return map[string]any{
			"wallet": bigToAddress(words[0]),
			"loanId": words[1],
			"erc20":  bigToAddress(words[2]),
		}, nil
	case "LoanDefaulted":
		if len(words) < 4 {
			return nil, fmt.Errorf("LoanDefaulted: expected 4 words, got %d", len(words))
		}
		return map[string]any{
			"wallet": bigToAddress(words[0]),
			"loanId": words[1],
			"amount": words[2],
			"erc20":  bigToAddress(words[3]),
		}, nil
	}
	return nil, fmt.Errorf("unsupported pool event %s", event)
}

func zhartaP2PArgs(event string, words []*big.Int) (map[string]any, error) {
	switch event {
	case "LoanCreated":
		if len(words) < 10 {
			return nil, fmt.Errorf("LoanCreated: expected 10 words, got %d", len(words))
		}
		return map[string]any{
			"loanId":            zhartaLoanID(words[0]),
			"amount":            words[1],
			"interest":          words[2],
			"erc20":             bigToAddress(words[3]),
			"maturity":          words[4],
			"startTime":         words[5],
			"collateral":        bigToAddress(words[6]),
			"collateralTokenId": words[7],
			"borrower":          bigToAddress(words[8]),
			"lender":            bigToAddress(words[9]),
		}, nil
	case "LoanPaid":
		if len(words) < 4 {
			return nil, fmt.Errorf("LoanPaid: expected 4 words, got %d", len(words))
		}
		return map[string]any{
			"loanId":    zhartaLoanID(words[0]),
			"principal": words[1],
			"interest":  words[2],
			"erc20":     bigToAddress(words[3]),
		}, nil
	case "LoanReplaced":
		// Layout carries the new loan first; the old loan being paid
		// off starts at word 12.
		if len(words) < 15 {
			return nil, fmt.Errorf("LoanReplaced: expected 15 words, got %d", len(words))
		}
		return map[string]any{
			"newLoanId":         zhartaLoanID(words[0]),
			"newAmount":         words[1],
			"erc20":             bigToAddress(words[3]),
			"collateral":        bigToAddress(words[6]),
			"collateralTokenId": words[7],
			"borrower":          bigToAddress(words[8]),
			"lender":            bigToAddress(words[9]),
			"oldLoanId":         zhartaLoanID(words[12]),
			"paidPrincipal":     words[13],
			"paidInterest":      words[14],
		}, nil
	case "OfferUsed":
		if len(words) < 1 {
			return nil, fmt.Errorf("OfferUsed: expected 1 word, got %d", len(words))
		}
		return map[string]any{
			"offerId": zhartaLoanID(words[0]),
		}, nil
	}
	return nil, fmt.Errorf("unsupported p2p event %s", event)
}

// zhartaLoanID renders a bytes32 loan id as 0x-prefixed hex.
func zhartaLoanID(word *big.Int) string {
	return fmt.Sprintf("0x%064x", word)
}
