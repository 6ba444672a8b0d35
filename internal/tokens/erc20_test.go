package tokens

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// fakeCaller answers decimals() and symbol() with canned responses,
// keyed by selector.
type fakeCaller struct {
	decimalsResp []byte
	symbolResp   []byte
	calls        int
}

func (f *fakeCaller) CallContract(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	f.calls++
	if len(data) < 4 {
		return nil, errors.New("short calldata")
	}
	switch hex.EncodeToString(data[:4]) {
	case "313ce567": // decimals()
		return f.decimalsResp, nil
	case "95d89b41": // symbol()
		return f.symbolResp, nil
	default:
		return nil, errors.New("unexpected call")
	}
}

func packDecimals(t *testing.T, decimals uint8) []byte {
	t.Helper()
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	out, err := parsed.Methods["decimals"].Outputs.Pack(decimals)
	if err != nil {
		t.Fatalf("pack decimals: %v", err)
	}
	return out
}

func packStringSymbol(t *testing.T, symbol string) []byte {
	t.Helper()
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	out, err := parsed.Methods["symbol"].Outputs.Pack(symbol)
	if err != nil {
		t.Fatalf("pack symbol: %v", err)
	}
	return out
}

func packBytes32Symbol(t *testing.T, symbol string) []byte {
	t.Helper()
	parsed, err := erc20ABIBytes32Instance()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	var word [32]byte
	copy(word[:], symbol)
	out, err := parsed.Methods["symbol"].Outputs.Pack(word)
	if err != nil {
		t.Fatalf("pack bytes32 symbol: %v", err)
	}
	return out
}

func TestFetchInfoStringSymbol(t *testing.T) {
	caller := &fakeCaller{
		decimalsResp: packDecimals(t, 8),
		symbolResp:   packStringSymbol(t, "FAKE"),
	}
	info, err := FetchInfo(context.Background(), caller, common.HexToAddress("0x00000000000000000000000000000000000000aa"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if info.Symbol != "FAKE" || info.Decimals != 8 {
		t.Fatalf("info mismatch: %+v", info)
	}
}

func TestFetchInfoBytes32Fallback(t *testing.T) {
	caller := &fakeCaller{
		decimalsResp: packDecimals(t, 18),
		symbolResp:   packBytes32Symbol(t, "MKR"),
	}
	info, err := FetchInfo(context.Background(), caller, common.HexToAddress("0x00000000000000000000000000000000000000bb"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if info.Symbol != "MKR" || info.Decimals != 18 {
		t.Fatalf("info mismatch: %+v", info)
	}
}

func TestRegistryEnsureCaches(t *testing.T) {
	registry := NewRegistry()
	caller := &fakeCaller{
		decimalsResp: packDecimals(t, 6),
		symbolResp:   packStringSymbol(t, "FUSD"),
	}
	address := "0x00000000000000000000000000000000000000cc"

	info, err := registry.Ensure(context.Background(), caller, address, nil)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if info.Symbol != "FUSD" || info.Decimals != 6 {
		t.Fatalf("info mismatch: %+v", info)
	}

	callsAfterFirst := caller.calls
	if _, err := registry.Ensure(context.Background(), caller, address, nil); err != nil {
		t.Fatalf("ensure cached: %v", err)
	}
	if caller.calls != callsAfterFirst {
		t.Fatalf("second ensure should hit the cache, calls went %d -> %d", callsAfterFirst, caller.calls)
	}

	amount, err := registry.Scale(big.NewInt(2500000), address)
	if err != nil {
		t.Fatalf("scale after ensure: %v", err)
	}
	if amount.Asset != "FUSD" || amount.Value.String() != "2.5" {
		t.Fatalf("mismatch: %+v", amount)
	}
}

func TestRegistryEnsureWithoutCaller(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Ensure(context.Background(), nil, "0x00000000000000000000000000000000000000dd", nil); err != ErrUnknownToken {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	if _, err := registry.Ensure(context.Background(), nil, WETHAddress, nil); err != nil {
		t.Fatalf("known token should resolve without caller: %v", err)
	}
}
