package application

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"walletbot/internal/domain"
	"walletbot/internal/infrastructure/abistore"
	"walletbot/internal/infrastructure/ethrpc"
	"walletbot/internal/registry"
	"walletbot/internal/wallet"
)

const (
	testKey       = "0x0000000000000000000000000000000000000000000000000000000000000001"
	testRecipient = "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"
	testSpender   = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
	gwei          = 1_000_000_000
)

// fakeNode is an in-memory JSON-RPC node with a single native balance and a
// single ERC-20 ledger shared by all token contracts.
type fakeNode struct {
	t   *testing.T
	erc *abi.ABI

	mu             sync.Mutex
	chainID        uint64
	nativeBalance  *big.Int
	tokenBalance   *big.Int
	allowance      *big.Int
	tokenDecimals  uint8
	tokenSymbol    string
	gasPrices      []*big.Int
	rewards        []int64
	baseFees       []int64
	estimate       uint64
	revert         bool
	pending        bool
	sent           []*types.Transaction
	emptyCallCodes map[common.Address]bool
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()
	store, err := abistore.NewFileStore("", 4)
	if err != nil {
		t.Fatalf("abi store: %v", err)
	}
	parsed, err := store.Load("erc20")
	if err != nil {
		t.Fatalf("load erc20: %v", err)
	}
	return &fakeNode{
		t:              t,
		erc:            &parsed,
		chainID:        59144,
		nativeBalance:  new(big.Int),
		tokenBalance:   new(big.Int),
		allowance:      new(big.Int),
		tokenDecimals:  6,
		tokenSymbol:    "USDC",
		gasPrices:      []*big.Int{big.NewInt(gwei)},
		rewards:        []int64{300_000_000, 100_000_000, 200_000_000},
		baseFees:       []int64{7, 8, 9},
		estimate:       21000,
		emptyCallCodes: map[common.Address]bool{},
	}
}

func (n *fakeNode) sentTxs() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*types.Transaction, len(n.sent))
	copy(out, n.sent)
	return out
}

func (n *fakeNode) client(t *testing.T) *ethrpc.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(srv.Close)
	client, err := ethrpc.NewClient(ethrpc.Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("rpc client: %v", err)
	}
	return client
}

type fakeCallArg struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to"`
	Data hexutil.Bytes   `json:"data"`
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, rpcErr := n.handle(req.Method, req.Params)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != "" {
		resp["error"] = map[string]any{"code": -32000, "message": rpcErr}
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) handle(method string, params []json.RawMessage) (any, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch method {
	case "eth_chainId":
		return hexutil.EncodeUint64(n.chainID), ""
	case "eth_blockNumber":
		return hexutil.EncodeUint64(100), ""
	case "eth_getBalance":
		return hexutil.EncodeBig(n.nativeBalance), ""
	case "eth_getTransactionCount":
		return hexutil.EncodeUint64(uint64(len(n.sent))), ""
	case "eth_gasPrice":
		price := n.gasPrices[0]
		if len(n.gasPrices) > 1 {
			n.gasPrices = n.gasPrices[1:]
		}
		return hexutil.EncodeBig(price), ""
	case "eth_feeHistory":
		rewards := make([][]string, len(n.rewards))
		for i, r := range n.rewards {
			rewards[i] = []string{hexutil.EncodeBig(big.NewInt(r))}
		}
		baseFees := make([]string, len(n.baseFees))
		for i, f := range n.baseFees {
			baseFees[i] = hexutil.EncodeBig(big.NewInt(f))
		}
		return map[string]any{
			"oldestBlock":   "0x1",
			"reward":        rewards,
			"baseFeePerGas": baseFees,
			"gasUsedRatio":  []float64{0.5},
		}, ""
	case "eth_estimateGas":
		var arg fakeCallArg
		_ = json.Unmarshal(params[0], &arg)
		if len(arg.Data) > 0 {
			return hexutil.EncodeUint64(50000), ""
		}
		return hexutil.EncodeUint64(n.estimate), ""
	case "eth_call":
		var arg fakeCallArg
		if err := json.Unmarshal(params[0], &arg); err != nil {
			return nil, err.Error()
		}
		return n.call(arg)
	case "eth_sendRawTransaction":
		var raw hexutil.Bytes
		if err := json.Unmarshal(params[0], &raw); err != nil {
			return nil, err.Error()
		}
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, err.Error()
		}
		n.sent = append(n.sent, tx)
		n.apply(tx)
		return tx.Hash().Hex(), ""
	case "eth_getTransactionReceipt":
		if n.pending {
			return nil, ""
		}
		var hash string
		_ = json.Unmarshal(params[0], &hash)
		status := "0x1"
		if n.revert {
			status = "0x0"
		}
		return map[string]any{
			"transactionHash":   hash,
			"blockNumber":       "0x10",
			"blockHash":         common.Hash{1}.Hex(),
			"transactionIndex":  "0x0",
			"status":            status,
			"cumulativeGasUsed": "0x5208",
			"gasUsed":           "0x5208",
			"contractAddress":   nil,
			"effectiveGasPrice": "0x3b9aca00",
		}, ""
	}
	return nil, "method not supported: " + method
}

func (n *fakeNode) call(arg fakeCallArg) (any, string) {
	if arg.To != nil && n.emptyCallCodes[*arg.To] {
		return "0x", ""
	}
	if len(arg.Data) < 4 {
		return "0x", ""
	}
	method, err := n.erc.MethodById(arg.Data[:4])
	if err != nil {
		return nil, "execution reverted"
	}
	var out []byte
	switch method.Name {
	case "balanceOf":
		out, err = method.Outputs.Pack(n.tokenBalance)
	case "allowance":
		out, err = method.Outputs.Pack(n.allowance)
	case "decimals":
		out, err = method.Outputs.Pack(n.tokenDecimals)
	case "symbol":
		out, err = method.Outputs.Pack(n.tokenSymbol)
	default:
		return nil, "execution reverted"
	}
	if err != nil {
		return nil, err.Error()
	}
	return hexutil.Encode(out), ""
}

// apply mirrors the ERC-20 side effects the tests observe.
func (n *fakeNode) apply(tx *types.Transaction) {
	data := tx.Data()
	if len(data) < 4 {
		return
	}
	method, err := n.erc.MethodById(data[:4])
	if err != nil {
		return
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		n.t.Errorf("unpack %s: %v", method.Name, err)
		return
	}
	switch method.Name {
	case "approve":
		n.allowance = new(big.Int).Set(args[1].(*big.Int))
	case "transfer":
		n.tokenBalance = new(big.Int).Sub(n.tokenBalance, args[1].(*big.Int))
	}
}

type engineFixture struct {
	node    *fakeNode
	engine  *Onchain
	account *wallet.Account
	sleeps  int
}

func newEngine(t *testing.T, node *fakeNode, chain domain.Chain, cfg OnchainConfig, opts ...Option) *engineFixture {
	t.Helper()
	account, err := wallet.NewAccount(testKey, "")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	abis, err := abistore.NewFileStore("", 8)
	if err != nil {
		t.Fatalf("abi store: %v", err)
	}
	tokens, err := registry.DefaultTokens(registry.DefaultChains())
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	fx := &engineFixture{node: node, account: account}
	base := []Option{
		WithJitter(func() float64 { return 1.05 }),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			fx.sleeps++
			return ctx.Err()
		}),
	}
	engine, err := NewOnchain(node.client(t), chain, account, abis, tokens, cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	fx.engine = engine
	return fx
}

func testToken(t *testing.T, chain domain.Chain) *domain.Token {
	t.Helper()
	token, err := domain.NewToken("USDC", "0x176211869cA2b568f2A7D4EE941E073a821EE1ff", chain, 6, domain.TokenStable)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

type recordingObserver struct {
	mu      sync.Mutex
	records []domain.TxRecord
}

func (r *recordingObserver) OnTransaction(_ context.Context, record domain.TxRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}
