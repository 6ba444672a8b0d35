package tokens

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABIString      abi.ABI
	erc20ABIStringOnce  sync.Once
	erc20ABIStringErr   error
	erc20ABIBytes32     abi.ABI
	erc20ABIBytes32Once sync.Once
	erc20ABIBytes32Err  error
)

func erc20ABIStringInstance() (abi.ABI, error) {
	erc20ABIStringOnce.Do(func() {
		erc20ABIString, erc20ABIStringErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20ABIString, erc20ABIStringErr
}

func erc20ABIBytes32Instance() (abi.ABI, error) {
	erc20ABIBytes32Once.Do(func() {
		erc20ABIBytes32, erc20ABIBytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIBytes32, erc20ABIBytes32Err
}

// ContractCaller performs eth_call against the latest block.
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// FetchInfo loads symbol and decimals via ERC20 calls. Tokens that
// return bytes32 symbols (MKR-style) are handled with a fallback ABI.
func FetchInfo(ctx context.Context, caller ContractCaller, token common.Address) (Info, error) {
	if caller == nil {
		return Info{}, fmt.Errorf("contract caller is nil")
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return Info{}, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return Info{}, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		resp, err := caller.CallContract(ctx, token, data)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		values, err := parsed.Unpack(method, resp)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		return values, nil
	}

	info := Info{}

	values, err := call("decimals", stringABI)
	if err != nil {
		return Info{}, err
	}
	if len(values) == 0 {
		return Info{}, fmt.Errorf("decimals: empty response")
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return Info{}, fmt.Errorf("decimals: unexpected type %T", values[0])
	}
	info.Decimals = int32(decimals)

	if values, err := call("symbol", stringABI); err == nil && len(values) > 0 {
		if symbol, ok := values[0].(string); ok {
			info.Symbol = strings.TrimSpace(symbol)
		}
	}
	if info.Symbol == "" {
		if values, err := call("symbol", bytes32ABI); err == nil && len(values) > 0 {
			if raw, ok := values[0].([32]byte); ok {
				info.Symbol = strings.TrimRight(string(raw[:]), "\x00")
			}
		}
	}
	if info.Symbol == "" {
		return Info{}, fmt.Errorf("symbol: empty response")
	}

	return info, nil
}

// Ensure returns the token info, fetching and caching it on-chain the
// first time an unknown token is seen. Without a caller it reduces to
// Lookup.
func (r *Registry) Ensure(ctx context.Context, caller ContractCaller, address string, logger *zap.Logger) (Info, error) {
	if info, ok := r.Lookup(address); ok {
		return info, nil
	}
	if caller == nil || !common.IsHexAddress(address) {
		return Info{}, ErrUnknownToken
	}
	info, err := FetchInfo(ctx, caller, common.HexToAddress(address))
	if err != nil {
		if logger != nil {
			logger.Warn("token metadata fetch failed", zap.String("token", address), zap.Error(err))
		}
		return Info{}, ErrUnknownToken
	}
	r.Set(address, info)
	return info, nil
}
