package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client wraps go-ethereum RPC for one network and exposes the calls the
// payout pipeline needs.
type Client struct {
	network   Network
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient dials the network's RPC URL.
func NewClient(ctx context.Context, network Network) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, network.RPCURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		network:   network,
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// Network returns the network this client is bound to.
func (c *Client) Network() Network {
	return c.network
}

// ChainID returns the chain ID reported by the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// HeaderByNumber returns the block header by number; nil means latest.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.ethClient.HeaderByNumber(ctx, number)
}

// PendingNonceAt returns the next nonce for account including pending txs.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.ethClient.PendingNonceAt(ctx, account)
}

// SuggestGasTipCap returns the node's priority fee suggestion.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return c.ethClient.SuggestGasTipCap(ctx)
}

// EstimateGas estimates gas for msg against the pending state.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.ethClient.EstimateGas(ctx, msg)
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.ethClient.SendTransaction(ctx, tx)
}

// TransactionByHash looks up a transaction in the pool or chain.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return c.ethClient.TransactionByHash(ctx, hash)
}

// BalanceAt returns the latest balance of account in wei.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.ethClient.BalanceAt(ctx, account, nil)
}
