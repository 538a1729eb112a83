package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	apperrors "ChainAgent/internal/errors"
)

// Receipt is the mined outcome of a transaction. Status follows the EVM
// convention: 1 succeeded, 0 reverted.
type Receipt struct {
	TxHash      string
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
}

// erc20BalanceOfSelector is the first four bytes of keccak256("balanceOf(address)").
var erc20BalanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Client wraps a JSON-RPC connection to one EVM network.
type Client struct {
	chain     string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
}

// Dial opens a connection to the given RPC endpoint.
func Dial(ctx context.Context, chain, rpcURL string) (*Client, error) {
	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRPCFailure, err, "dial rpc endpoint",
			apperrors.WithMetadata("chain", chain))
	}
	return &Client{
		chain:     chain,
		rpcClient: rpcClient,
		eth:       ethclient.NewClient(rpcClient),
	}, nil
}

// Chain returns the network name this client is bound to.
func (c *Client) Chain() string { return c.chain }

// ChainID fetches the network's chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, c.rpcError(err, "eth_chainId")
	}
	return id, nil
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	number, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, c.rpcError(err, "eth_blockNumber")
	}
	return number, nil
}

// BalanceAt returns the wei balance of an address at the latest block.
func (c *Client) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "invalid ethereum address",
			apperrors.WithMetadata("address", address))
	}
	balance, err := c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, c.rpcError(err, "eth_getBalance")
	}
	return balance, nil
}

// NonceAt returns the confirmed transaction count for an address.
func (c *Client) NonceAt(ctx context.Context, address string) (uint64, error) {
	if !common.IsHexAddress(address) {
		return 0, apperrors.New(apperrors.CodeInvalidArgument, "invalid ethereum address",
			apperrors.WithMetadata("address", address))
	}
	nonce, err := c.eth.NonceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return 0, c.rpcError(err, "eth_getTransactionCount")
	}
	return nonce, nil
}

// SuggestGasPrice returns the node's gas price estimate in wei.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, c.rpcError(err, "eth_gasPrice")
	}
	return price, nil
}

// SendRawTransaction broadcasts a pre-signed transaction and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, rawHex string) (string, error) {
	rawHex = strings.TrimSpace(rawHex)
	if !strings.HasPrefix(rawHex, "0x") || len(rawHex) <= 2 {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "raw transaction must be 0x-prefixed hex")
	}
	var txHash common.Hash
	if err := c.rpcClient.CallContext(ctx, &txHash, "eth_sendRawTransaction", rawHex); err != nil {
		return "", c.rpcError(err, "eth_sendRawTransaction")
	}
	return txHash.Hex(), nil
}

// TransactionReceipt fetches the receipt for a transaction hash. A nil
// receipt with a nil error means the transaction is not mined yet.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	txHash = strings.TrimSpace(txHash)
	if !strings.HasPrefix(txHash, "0x") || len(txHash) != 66 {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "transaction hash must be 32 bytes of 0x-prefixed hex",
			apperrors.WithMetadata("tx_hash", txHash))
	}
	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, c.rpcError(err, "eth_getTransactionReceipt")
	}
	return &Receipt{
		TxHash:      receipt.TxHash.Hex(),
		Status:      receipt.Status,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// ERC20Balance reads an ERC-20 token balance via eth_call against the token
// contract's balanceOf.
func (c *Client) ERC20Balance(ctx context.Context, tokenAddress, holder string) (*big.Int, error) {
	if !common.IsHexAddress(tokenAddress) {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "invalid token contract address",
			apperrors.WithMetadata("token_address", tokenAddress))
	}
	if !common.IsHexAddress(holder) {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "invalid ethereum address",
			apperrors.WithMetadata("address", holder))
	}
	token := common.HexToAddress(tokenAddress)
	data := make([]byte, 0, 36)
	data = append(data, erc20BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(holder).Bytes(), 32)...)
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, c.rpcError(err, "eth_call")
	}
	return new(big.Int).SetBytes(out), nil
}

// Ping verifies the connection is still usable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.eth.ChainID(ctx)
	if err != nil {
		return c.rpcError(err, "eth_chainId")
	}
	return nil
}

// Close tears down the underlying RPC connection.
func (c *Client) Close() error {
	c.rpcClient.Close()
	return nil
}

func (c *Client) rpcError(err error, method string) error {
	return apperrors.Wrap(apperrors.CodeRPCFailure, err, "rpc call failed",
		apperrors.WithMetadata("chain", c.chain),
		apperrors.WithMetadata("method", method))
}
