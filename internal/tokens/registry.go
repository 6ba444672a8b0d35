package tokens

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"loanledger/internal/model"
)

// ErrUnknownToken marks an amount whose token is absent from the
// decimals table. Policy: skip the line rather than guess a scale.
var ErrUnknownToken = errors.New("unknown token")

// Info describes one token's symbol and decimal scale.
type Info struct {
	Symbol   string
	Decimals int32
}

// Well-known mainnet token addresses (lowercase).
const (
	WETHAddress = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	USDCAddress = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	USDTAddress = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	DAIAddress  = "0x6b175474e89094c44da98b954eedeac495271d0f"

	// The Blur Pool token wraps ETH 1:1 inside Blend.
	BlurPoolAddress = "0x0000000000a39bb272e79075ade125fd351887ac"
)

// Registry maps token addresses to symbol/decimals. Read-mostly after
// construction; safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	data map[string]Info
}

// NewRegistry builds a registry seeded with the default token table.
func NewRegistry() *Registry {
	return &Registry{data: map[string]Info{
		WETHAddress:     {Symbol: "WETH", Decimals: 18},
		USDCAddress:     {Symbol: "USDC", Decimals: 6},
		USDTAddress:     {Symbol: "USDT", Decimals: 6},
		DAIAddress:      {Symbol: "DAI", Decimals: 18},
		BlurPoolAddress: {Symbol: "ETH", Decimals: 18},
	}}
}

// Lookup returns token info by address.
func (r *Registry) Lookup(address string) (Info, bool) {
	r.mu.RLock()
	info, ok := r.data[strings.ToLower(address)]
	r.mu.RUnlock()
	return info, ok
}

// Set registers or overrides a token.
func (r *Registry) Set(address string, info Info) {
	r.mu.Lock()
	r.data[strings.ToLower(address)] = info
	r.mu.Unlock()
}

// Scale converts a wei-scale integer into an exact decimal Amount for
// the given token. Unknown tokens return ErrUnknownToken and an Amount
// with an empty asset tag.
func (r *Registry) Scale(wei *big.Int, tokenAddress string) (model.Amount, error) {
	info, ok := r.Lookup(tokenAddress)
	if !ok {
		return model.Amount{}, ErrUnknownToken
	}
	if wei == nil {
		return model.Amount{Asset: info.Symbol}, nil
	}
	return model.Amount{
		Value: decimal.NewFromBigInt(wei, -info.Decimals),
		Asset: info.Symbol,
	}, nil
}

// DecimalsForSymbol returns the decimal scale of assets the ledger
// balances in. Used to round-trip scaled amounts back to wei.
func DecimalsForSymbol(symbol string) (int32, bool) {
	switch strings.ToUpper(symbol) {
	case "WETH", "ETH", "DAI":
		return 18, true
	case "USDC", "USDT":
		return 6, true
	default:
		return 0, false
	}
}

// ScaleSymbol converts a wei-scale integer for an asset already known
// by symbol and decimals, e.g. ETH amounts with no contract address.
func ScaleSymbol(wei *big.Int, symbol string, decimals int32) model.Amount {
	if wei == nil {
		return model.Amount{Asset: symbol}
	}
	return model.Amount{
		Value: decimal.NewFromBigInt(wei, -decimals),
		Asset: symbol,
	}
}
