package chaintools

import (
	"context"
	"fmt"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/internal/tool"
	"ChainAgent/internal/web3"
)

// transport routes tool calls to per-chain RPC clients, dialing each chain on
// first use and keeping the connection for the transport's lifetime.
type transport struct {
	provider *Provider
	clients  map[string]chainRPC
}

func (t *transport) Invoke(ctx context.Context, req tool.CallRequest, actx tool.AgentContext) (any, error) {
	switch req.Name {
	case "list_supported_networks":
		return t.provider.chains.List(), nil
	case "get_balance":
		return t.getBalance(ctx, req)
	case "get_block_number":
		return t.getBlockNumber(ctx, req)
	case "get_gas_price":
		return t.getGasPrice(ctx, req)
	case "get_wallet_info":
		return t.getWalletInfo(ctx, req, actx)
	case "get_transaction_receipt":
		return t.getTransactionReceipt(ctx, req)
	case "get_erc20_balance":
		return t.getERC20Balance(ctx, req, actx)
	case "send_raw_transaction":
		return t.sendRawTransaction(ctx, req)
	default:
		return nil, apperrors.New(apperrors.CodeToolNotFound, "",
			apperrors.WithMetadata("tool", req.Name))
	}
}

// Ping checks every open RPC connection; one stale chain poisons the bundle.
func (t *transport) Ping(ctx context.Context) error {
	for _, client := range t.clients {
		if err := client.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (t *transport) Close() error {
	var firstErr error
	for _, client := range t.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.clients = make(map[string]chainRPC)
	return firstErr
}

func (t *transport) clientFor(ctx context.Context, req tool.CallRequest) (chainRPC, error) {
	name := t.provider.defaultChain
	if raw, ok := req.Arguments["chain"].(string); ok && raw != "" {
		name = raw
	}
	def, ok := t.provider.chains.Lookup(name)
	if !ok {
		return nil, apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("unknown chain %q", name))
	}
	chainType, err := web3.ParseChainType(def.Type)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, err, "bad chain definition")
	}
	if chainType != web3.ChainEthereum {
		return nil, apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("chain %q does not speak the ethereum rpc protocol", name))
	}
	if client, ok := t.clients[name]; ok {
		return client, nil
	}
	client, err := t.provider.dialChain(ctx, name, def.RPCURL)
	if err != nil {
		return nil, err
	}
	t.clients[name] = client
	return client, nil
}

func (t *transport) getBalance(ctx context.Context, req tool.CallRequest) (any, error) {
	args, err := tool.RequiredStrings(req.Arguments, "address")
	if err != nil {
		return nil, err
	}
	client, err := t.clientFor(ctx, req)
	if err != nil {
		return nil, err
	}
	balance, err := client.BalanceAt(ctx, args["address"])
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"address":     args["address"],
		"balance_wei": balance.String(),
	}, nil
}

func (t *transport) getBlockNumber(ctx context.Context, req tool.CallRequest) (any, error) {
	client, err := t.clientFor(ctx, req)
	if err != nil {
		return nil, err
	}
	number, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"block_number": number}, nil
}

func (t *transport) getGasPrice(ctx context.Context, req tool.CallRequest) (any, error) {
	client, err := t.clientFor(ctx, req)
	if err != nil {
		return nil, err
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"gas_price_wei": price.String()}, nil
}

func (t *transport) getWalletInfo(ctx context.Context, req tool.CallRequest, actx tool.AgentContext) (any, error) {
	address, _ := req.Arguments["address"].(string)
	if address == "" {
		address = actx.WalletAddress
	}
	if address == "" {
		return nil, apperrors.New(apperrors.CodeInvalidToolArgs,
			"no address given and the session has no authenticated wallet")
	}
	client, err := t.clientFor(ctx, req)
	if err != nil {
		return nil, err
	}
	balance, err := client.BalanceAt(ctx, address)
	if err != nil {
		return nil, err
	}
	nonce, err := client.NonceAt(ctx, address)
	if err != nil {
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"address":           address,
		"balance_wei":       balance.String(),
		"transaction_count": nonce,
		"chain_id":          chainID.String(),
	}, nil
}

func (t *transport) getTransactionReceipt(ctx context.Context, req tool.CallRequest) (any, error) {
	args, err := tool.RequiredStrings(req.Arguments, "tx_hash")
	if err != nil {
		return nil, err
	}
	client, err := t.clientFor(ctx, req)
	if err != nil {
		return nil, err
	}
	receipt, err := client.TransactionReceipt(ctx, args["tx_hash"])
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return map[string]any{
			"tx_hash": args["tx_hash"],
			"status":  "pending",
		}, nil
	}
	status := "confirmed"
	if receipt.Status == 0 {
		status = "failed"
	}
	return map[string]any{
		"tx_hash":      receipt.TxHash,
		"status":       status,
		"block_number": receipt.BlockNumber,
		"gas_used":     receipt.GasUsed,
	}, nil
}

func (t *transport) getERC20Balance(ctx context.Context, req tool.CallRequest, actx tool.AgentContext) (any, error) {
	args, err := tool.RequiredStrings(req.Arguments, "token_address")
	if err != nil {
		return nil, err
	}
	address, _ := req.Arguments["address"].(string)
	if address == "" {
		address = actx.WalletAddress
	}
	if address == "" {
		return nil, apperrors.New(apperrors.CodeInvalidToolArgs,
			"no address given and the session has no authenticated wallet")
	}
	client, err := t.clientFor(ctx, req)
	if err != nil {
		return nil, err
	}
	balance, err := client.ERC20Balance(ctx, args["token_address"], address)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"token_address": args["token_address"],
		"address":       address,
		"balance":       balance.String(),
	}, nil
}

func (t *transport) sendRawTransaction(ctx context.Context, req tool.CallRequest) (any, error) {
	args, err := tool.RequiredStrings(req.Arguments, "raw_tx")
	if err != nil {
		return nil, err
	}
	client, err := t.clientFor(ctx, req)
	if err != nil {
		return nil, err
	}
	hash, err := client.SendRawTransaction(ctx, args["raw_tx"])
	if err != nil {
		return nil, err
	}
	return map[string]any{"tx_hash": hash}, nil
}
