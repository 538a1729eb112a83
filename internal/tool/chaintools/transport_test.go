package chaintools

import (
	"context"
	"math/big"
	"testing"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/internal/tool"
	"ChainAgent/internal/web3"
	"ChainAgent/internal/web3/evm"
)

type fakeRPC struct {
	chainID      *big.Int
	block        uint64
	balance      *big.Int
	nonce        uint64
	gasPrice     *big.Int
	txHash       string
	receipt      *evm.Receipt
	tokenBalance *big.Int
}

func (f *fakeRPC) ChainID(context.Context) (*big.Int, error)      { return f.chainID, nil }
func (f *fakeRPC) BlockNumber(context.Context) (uint64, error)    { return f.block, nil }
func (f *fakeRPC) NonceAt(context.Context, string) (uint64, error) { return f.nonce, nil }
func (f *fakeRPC) BalanceAt(context.Context, string) (*big.Int, error) {
	return f.balance, nil
}
func (f *fakeRPC) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }
func (f *fakeRPC) SendRawTransaction(context.Context, string) (string, error) {
	return f.txHash, nil
}
func (f *fakeRPC) TransactionReceipt(context.Context, string) (*evm.Receipt, error) {
	return f.receipt, nil
}
func (f *fakeRPC) ERC20Balance(context.Context, string, string) (*big.Int, error) {
	return f.tokenBalance, nil
}
func (f *fakeRPC) Ping(context.Context) error { return nil }
func (f *fakeRPC) Close() error               { return nil }

func testProvider(t *testing.T) (*Provider, *int) {
	t.Helper()
	reg, err := web3.NewRegistry([]web3.ChainDefinition{
		{Name: "sepolia", Type: "ethereum", ChainID: 11155111, RPCURL: "http://sepolia.test", NativeSymbol: "ETH", Testnet: true},
		{Name: "solana-devnet", Type: "solana", RPCURL: "http://solana.test", NativeSymbol: "SOL", Testnet: true},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	dials := 0
	p := NewProvider(reg, "sepolia")
	p.dialChain = func(_ context.Context, chain, _ string) (chainRPC, error) {
		dials++
		return &fakeRPC{
			chainID:      big.NewInt(11155111),
			block:        7_000_000,
			balance:      big.NewInt(42),
			nonce:        7,
			gasPrice:     big.NewInt(1_000_000_000),
			txHash:       "0xabc",
			tokenBalance: big.NewInt(5_000_000),
		}, nil
	}
	return p, &dials
}

func dialTransport(t *testing.T, p *Provider) tool.Transport {
	t.Helper()
	transport, err := p.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return transport
}

func TestGetBalanceDefaultsChain(t *testing.T) {
	p, dials := testProvider(t)
	tr := dialTransport(t, p)

	value, err := tr.Invoke(context.Background(), tool.CallRequest{
		Name:      "get_balance",
		Arguments: map[string]any{"address": "0x1111111111111111111111111111111111111111"},
	}, tool.AgentContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	result := value.(map[string]any)
	if result["balance_wei"] != "42" {
		t.Fatalf("unexpected balance: %v", result)
	}
	if *dials != 1 {
		t.Fatalf("expected one rpc dial, got %d", *dials)
	}
}

func TestTransportReusesChainConnection(t *testing.T) {
	p, dials := testProvider(t)
	tr := dialTransport(t, p)

	for i := 0; i < 3; i++ {
		if _, err := tr.Invoke(context.Background(), tool.CallRequest{
			Name: "get_block_number",
		}, tool.AgentContext{}); err != nil {
			t.Fatalf("invoke %d: %v", i, err)
		}
	}
	if *dials != 1 {
		t.Fatalf("connection should be reused within a transport, got %d dials", *dials)
	}
}

func TestUnknownChainRejected(t *testing.T) {
	p, _ := testProvider(t)
	tr := dialTransport(t, p)

	_, err := tr.Invoke(context.Background(), tool.CallRequest{
		Name:      "get_gas_price",
		Arguments: map[string]any{"chain": "mainnet"},
	}, tool.AgentContext{})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("unknown chain should be INVALID_ARGUMENT, got %v", err)
	}
}

func TestSolanaChainRejectedForEVMTools(t *testing.T) {
	p, _ := testProvider(t)
	tr := dialTransport(t, p)

	_, err := tr.Invoke(context.Background(), tool.CallRequest{
		Name:      "get_block_number",
		Arguments: map[string]any{"chain": "solana-devnet"},
	}, tool.AgentContext{})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("solana chain should be rejected for evm rpc, got %v", err)
	}
}

func TestGetWalletInfoFallsBackToSessionWallet(t *testing.T) {
	p, _ := testProvider(t)
	tr := dialTransport(t, p)

	value, err := tr.Invoke(context.Background(), tool.CallRequest{
		Name:      "get_wallet_info",
		Arguments: map[string]any{},
	}, tool.AgentContext{WalletAddress: "0x2222222222222222222222222222222222222222"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	result := value.(map[string]any)
	if result["address"] != "0x2222222222222222222222222222222222222222" {
		t.Fatalf("should fall back to session wallet: %v", result)
	}

	_, err = tr.Invoke(context.Background(), tool.CallRequest{
		Name:      "get_wallet_info",
		Arguments: map[string]any{},
	}, tool.AgentContext{})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidToolArgs {
		t.Fatalf("no wallet anywhere should fail, got %v", err)
	}
}

func TestListSupportedNetworks(t *testing.T) {
	p, dials := testProvider(t)
	tr := dialTransport(t, p)

	value, err := tr.Invoke(context.Background(), tool.CallRequest{
		Name: "list_supported_networks",
	}, tool.AgentContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	defs := value.([]web3.ChainDefinition)
	if len(defs) != 2 {
		t.Fatalf("expected 2 networks, got %d", len(defs))
	}
	if *dials != 0 {
		t.Fatalf("listing networks must not open rpc connections")
	}
}

func TestSendRawTransaction(t *testing.T) {
	p, _ := testProvider(t)
	tr := dialTransport(t, p)

	value, err := tr.Invoke(context.Background(), tool.CallRequest{
		Name:      "send_raw_transaction",
		Arguments: map[string]any{"raw_tx": "0xf86b..."},
	}, tool.AgentContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	result := value.(map[string]any)
	if result["tx_hash"] != "0xabc" {
		t.Fatalf("unexpected tx hash: %v", result)
	}
}

func TestGetTransactionReceiptPending(t *testing.T) {
	p, _ := testProvider(t)
	tr := dialTransport(t, p)

	value, err := tr.Invoke(context.Background(), tool.CallRequest{
		Name:      "get_transaction_receipt",
		Arguments: map[string]any{"tx_hash": "0x1111111111111111111111111111111111111111111111111111111111111111"},
	}, tool.AgentContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	result := value.(map[string]any)
	if result["status"] != "pending" {
		t.Fatalf("unmined transaction should report pending: %v", result)
	}
}

func TestGetTransactionReceiptConfirmed(t *testing.T) {
	p, _ := testProvider(t)
	p.dialChain = func(context.Context, string, string) (chainRPC, error) {
		return &fakeRPC{receipt: &evm.Receipt{
			TxHash:      "0xdef",
			Status:      1,
			BlockNumber: 7_000_123,
			GasUsed:     21_000,
		}}, nil
	}
	tr := dialTransport(t, p)

	value, err := tr.Invoke(context.Background(), tool.CallRequest{
		Name:      "get_transaction_receipt",
		Arguments: map[string]any{"tx_hash": "0xdef"},
	}, tool.AgentContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	result := value.(map[string]any)
	if result["status"] != "confirmed" || result["block_number"] != uint64(7_000_123) {
		t.Fatalf("unexpected receipt: %v", result)
	}
}

func TestGetERC20BalanceFallsBackToSessionWallet(t *testing.T) {
	p, _ := testProvider(t)
	tr := dialTransport(t, p)

	token := "0x3333333333333333333333333333333333333333"
	value, err := tr.Invoke(context.Background(), tool.CallRequest{
		Name:      "get_erc20_balance",
		Arguments: map[string]any{"token_address": token},
	}, tool.AgentContext{WalletAddress: "0x2222222222222222222222222222222222222222"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	result := value.(map[string]any)
	if result["balance"] != "5000000" || result["token_address"] != token {
		t.Fatalf("unexpected token balance: %v", result)
	}
	if result["address"] != "0x2222222222222222222222222222222222222222" {
		t.Fatalf("should fall back to session wallet: %v", result)
	}

	_, err = tr.Invoke(context.Background(), tool.CallRequest{
		Name:      "get_erc20_balance",
		Arguments: map[string]any{"token_address": token},
	}, tool.AgentContext{})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidToolArgs {
		t.Fatalf("no wallet anywhere should fail, got %v", err)
	}
}

func TestDescriptorNamesAreStable(t *testing.T) {
	p, _ := testProvider(t)
	want := map[string]bool{
		"list_supported_networks": true,
		"get_balance":             true,
		"get_block_number":        true,
		"get_gas_price":           true,
		"get_wallet_info":         true,
		"get_transaction_receipt": true,
		"get_erc20_balance":       true,
		"send_raw_transaction":    true,
	}
	for _, d := range p.Descriptors() {
		if !want[d.Name] {
			t.Fatalf("unexpected tool %q", d.Name)
		}
		delete(want, d.Name)
	}
	if len(want) != 0 {
		t.Fatalf("missing tools: %v", want)
	}
}
