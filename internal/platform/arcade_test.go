package platform

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"loanledger/internal/model"
)

func arcadeLog(t *testing.T, name string, logIndex uint64, values ...interface{}) model.Log {
	t.Helper()
	parsed, err := ArcadeABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	event := parsed.Events[name]
	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", name, err)
	}
	return model.Log{
		Address:  ArcadeOriginationAddress,
		Topics:   []string{strings.ToLower(event.ID.Hex())},
		Data:     hexutil.Encode(data),
		LogIndex: logIndex,
	}
}

func TestArcadeLoanStarted(t *testing.T) {
	decoder, err := NewArcadeDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	lender := common.HexToAddress("0x2000000000000000000000000000000000000002")
	borrower := common.HexToAddress("0x1000000000000000000000000000000000000001")
	receipt := &model.Receipt{
		TxHash: "0xabc",
		Logs:   []model.Log{arcadeLog(t, "LoanStarted", 0, big.NewInt(55), lender, borrower)},
	}

	if !decoder.CanDecode(receipt) {
		t.Fatalf("decoder should recognize LoanStarted")
	}
	events, failures := decoder.DecodeEvents(receipt)
	if len(failures) != 0 {
		t.Fatalf("failures: %+v", failures)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.Name != "LoanStarted" || event.Platform != model.PlatformArcade {
		t.Fatalf("event header mismatch: %+v", event)
	}
	if got, ok := event.Args["loanId"].(*big.Int); !ok || got.Cmp(big.NewInt(55)) != 0 {
		t.Fatalf("loanId: %v", event.Args["loanId"])
	}
	if got, ok := event.Args["lender"].(common.Address); !ok || got != lender {
		t.Fatalf("lender: %v", event.Args["lender"])
	}
	if got, ok := event.Args["borrower"].(common.Address); !ok || got != borrower {
		t.Fatalf("borrower: %v", event.Args["borrower"])
	}
}

func TestArcadeRolledOverAndRedeemed(t *testing.T) {
	decoder, err := NewArcadeDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	token := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	lender := common.HexToAddress("0x2000000000000000000000000000000000000002")
	receipt := &model.Receipt{
		TxHash: "0xabc",
		Logs: []model.Log{
			arcadeLog(t, "LoanRolledOver", 0, big.NewInt(7), big.NewInt(8)),
			arcadeLog(t, "NoteRedeemed", 1, token, lender, lender, big.NewInt(8), big.NewInt(350000000000000000)),
		},
	}

	events, failures := decoder.DecodeEvents(receipt)
	if len(failures) != 0 {
		t.Fatalf("failures: %+v", failures)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	rolled := events[0]
	if rolled.Name != "LoanRolledOver" {
		t.Fatalf("event order: %+v", events)
	}
	if got, ok := rolled.Args["oldLoanId"].(*big.Int); !ok || got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("oldLoanId: %v", rolled.Args["oldLoanId"])
	}
	if got, ok := rolled.Args["newLoanId"].(*big.Int); !ok || got.Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("newLoanId: %v", rolled.Args["newLoanId"])
	}

	redeemed := events[1]
	if got, ok := redeemed.Args["amount"].(*big.Int); !ok || got.Cmp(big.NewInt(350000000000000000)) != 0 {
		t.Fatalf("amount: %v", redeemed.Args["amount"])
	}
	if got, ok := redeemed.Args["token"].(common.Address); !ok || got != token {
		t.Fatalf("token: %v", redeemed.Args["token"])
	}
}

func TestArcadeMalformedData(t *testing.T) {
	decoder, err := NewArcadeDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	parsed, _ := ArcadeABI()
	receipt := &model.Receipt{
		TxHash: "0xabc",
		Logs: []model.Log{{
			Address:  ArcadeOriginationAddress,
			Topics:   []string{strings.ToLower(parsed.Events["LoanStarted"].ID.Hex())},
			Data:     "0x01",
			LogIndex: 0,
		}},
	}

	events, failures := decoder.DecodeEvents(receipt)
	if len(events) != 0 || len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d events %d failures", len(events), len(failures))
	}
	if failures[0].Reason == "" {
		t.Fatalf("failure must carry a reason: %+v", failures[0])
	}

	unknown := &model.Receipt{Logs: []model.Log{{Topics: []string{transferTopic}}}}
	if decoder.CanDecode(unknown) {
		t.Fatalf("transfer topic is not an arcade event")
	}
}
