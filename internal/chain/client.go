package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"loanledger/internal/model"
)

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// StorageAt reads a raw storage slot at the latest block.
func (c *Client) StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error) {
	return c.ethClient.StorageAt(ctx, account, slot, nil)
}

// CodeAt reads the deployed bytecode at the latest block.
func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return c.ethClient.CodeAt(ctx, account, nil)
}

// CallContract performs an eth_call with raw calldata at the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	return c.ethClient.CallContract(ctx, msg, nil)
}

// FetchReceipt loads a transaction plus its receipt and folds them
// into the pipeline's input shape.
func (c *Client) FetchReceipt(ctx context.Context, txHash common.Hash) (*model.Receipt, error) {
	tx, _, err := c.ethClient.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	receipt, err := c.ethClient.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	from, err := c.ethClient.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
	if err != nil {
		return nil, fmt.Errorf("get sender: %w", err)
	}

	timestamp, err := c.BlockTimestamp(ctx, receipt.BlockNumber.Uint64())
	if err != nil {
		return nil, fmt.Errorf("get block timestamp: %w", err)
	}

	to := ""
	if tx.To() != nil {
		to = tx.To().Hex()
	}

	out := &model.Receipt{
		TxHash:      txHash.Hex(),
		From:        from.Hex(),
		To:          to,
		Input:       hexutil.Encode(tx.Data()),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Timestamp:   timestamp,
	}
	for _, lg := range receipt.Logs {
		topics := make([]string, 0, len(lg.Topics))
		for _, topic := range lg.Topics {
			topics = append(topics, topic.Hex())
		}
		out.Logs = append(out.Logs, model.Log{
			Address:  lg.Address.Hex(),
			Topics:   topics,
			Data:     hexutil.Encode(lg.Data),
			LogIndex: uint64(lg.Index),
		})
	}
	return out, nil
}
