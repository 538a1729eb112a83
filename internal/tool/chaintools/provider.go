package chaintools

import (
	"context"
	"math/big"

	"ChainAgent/internal/tool"
	"ChainAgent/internal/web3"
	"ChainAgent/internal/web3/evm"
)

// chainRPC is the slice of the EVM client the tools need. Tests substitute a
// fake; production uses evm.Client.
type chainRPC interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, address string) (*big.Int, error)
	NonceAt(ctx context.Context, address string) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendRawTransaction(ctx context.Context, rawHex string) (string, error)
	TransactionReceipt(ctx context.Context, txHash string) (*evm.Receipt, error)
	ERC20Balance(ctx context.Context, tokenAddress, holder string) (*big.Int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Provider serves the blockchain query tools. One transport bundles the RPC
// connections it opens, so the pool bounds concurrent RPC use as a whole.
type Provider struct {
	chains       *web3.Registry
	defaultChain string
	dialChain    func(ctx context.Context, chain, rpcURL string) (chainRPC, error)
}

// NewProvider creates the provider over the configured chain registry.
func NewProvider(chains *web3.Registry, defaultChain string) *Provider {
	return &Provider{
		chains:       chains,
		defaultChain: defaultChain,
		dialChain: func(ctx context.Context, chain, rpcURL string) (chainRPC, error) {
			return evm.Dial(ctx, chain, rpcURL)
		},
	}
}

func (p *Provider) Key() string { return "chaintools" }

func (p *Provider) Dial(context.Context) (tool.Transport, error) {
	return &transport{provider: p, clients: make(map[string]chainRPC)}, nil
}

func (p *Provider) Descriptors() []tool.Descriptor {
	chainProp := map[string]any{
		"type":        "string",
		"description": "network name from list_supported_networks; defaults to " + p.defaultChain,
	}
	return []tool.Descriptor{
		{
			Name:        "list_supported_networks",
			Description: "List the blockchain networks this service can query.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "get_balance",
			Description: "Get the native token balance of an address in wei.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"address": map[string]any{"type": "string", "description": "0x-prefixed account address"},
					"chain":   chainProp,
				},
				"required": []any{"address"},
			},
		},
		{
			Name:        "get_block_number",
			Description: "Get the latest block height of a network.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"chain": chainProp,
				},
			},
		},
		{
			Name:        "get_gas_price",
			Description: "Get the current gas price estimate in wei.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"chain": chainProp,
				},
			},
		},
		{
			Name:        "get_wallet_info",
			Description: "Summarise an address: balance, transaction count and chain id. Defaults to the authenticated wallet.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"address": map[string]any{"type": "string", "description": "0x-prefixed account address"},
					"chain":   chainProp,
				},
			},
		},
		{
			Name:        "get_transaction_receipt",
			Description: "Check whether a transaction is mined: status, block number and gas used. A pending transaction has status \"pending\".",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tx_hash": map[string]any{"type": "string", "description": "0x-prefixed 32-byte transaction hash"},
					"chain":   chainProp,
				},
				"required": []any{"tx_hash"},
			},
		},
		{
			Name:        "get_erc20_balance",
			Description: "Get the ERC-20 token balance of an address, in the token's smallest unit. Defaults to the authenticated wallet.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"token_address": map[string]any{"type": "string", "description": "0x-prefixed token contract address"},
					"address":       map[string]any{"type": "string", "description": "0x-prefixed account address"},
					"chain":         chainProp,
				},
				"required": []any{"token_address"},
			},
		},
		{
			Name:        "send_raw_transaction",
			Description: "Broadcast a pre-signed raw transaction and return its hash.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"raw_tx": map[string]any{"type": "string", "description": "0x-prefixed signed transaction bytes"},
					"chain":  chainProp,
				},
				"required": []any{"raw_tx"},
			},
		},
	}
}
