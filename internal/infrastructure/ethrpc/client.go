package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/time/rate"

	"walletbot/internal/domain"
)

type Client struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	idCounter  uint64
}

type Config struct {
	URL string
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
	Timeout   time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rpc url is required")
	}
	client := &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return client, nil
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.call(ctx, "eth_chainId", []any{}, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.call(ctx, "eth_blockNumber", []any{}, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	var result hexutil.Big
	if err := c.call(ctx, "eth_getBalance", []any{account, "latest"}, &result); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

func (c *Client) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var result hexutil.Uint64
	if err := c.call(ctx, "eth_getTransactionCount", []any{account, "latest"}, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.call(ctx, "eth_gasPrice", []any{}, &result); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

func (c *Client) FeeHistory(ctx context.Context, blocks uint64, percentiles []float64) (*ethereum.FeeHistory, error) {
	var result rpcFeeHistory
	params := []any{hexutil.Uint64(blocks), "latest", percentiles}
	if err := c.call(ctx, "eth_feeHistory", params, &result); err != nil {
		return nil, err
	}
	history := &ethereum.FeeHistory{
		OldestBlock:  (*big.Int)(result.OldestBlock),
		GasUsedRatio: result.GasUsedRatio,
	}
	for _, row := range result.Reward {
		rewards := make([]*big.Int, len(row))
		for i, r := range row {
			rewards[i] = (*big.Int)(r)
		}
		history.Reward = append(history.Reward, rewards)
	}
	for _, fee := range result.BaseFee {
		history.BaseFee = append(history.BaseFee, (*big.Int)(fee))
	}
	return history, nil
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var result hexutil.Uint64
	if err := c.call(ctx, "eth_estimateGas", []any{toCallArg(msg)}, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

func (c *Client) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var result hexutil.Bytes
	if err := c.call(ctx, "eth_call", []any{toCallArg(msg), "latest"}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	var result common.Hash
	if err := c.call(ctx, "eth_sendRawTransaction", []any{hexutil.Bytes(raw)}, &result); err != nil {
		return "", err
	}
	return result.Hex(), nil
}

// TransactionReceipt reports found=false while the transaction is pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (domain.Receipt, bool, error) {
	var result *rpcReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []any{txHash}, &result); err != nil {
		return domain.Receipt{}, false, err
	}
	if result == nil {
		return domain.Receipt{}, false, nil
	}
	receipt := domain.Receipt{
		TxHash:            result.TxHash,
		BlockNumber:       uint64(result.BlockNumber),
		BlockHash:         result.BlockHash,
		TxIndex:           uint64(result.TxIndex),
		Status:            uint64(result.Status),
		CumulativeGasUsed: uint64(result.CumulativeGasUsed),
		GasUsed:           uint64(result.GasUsed),
	}
	if result.ContractAddress != nil {
		receipt.ContractAddress = *result.ContractAddress
	}
	if result.EffectiveGasPrice != nil {
		receipt.EffectiveGasPrice = result.EffectiveGasPrice.ToInt().String()
	}
	return receipt, true, nil
}

func toCallArg(msg ethereum.CallMsg) map[string]any {
	arg := map[string]any{"from": msg.From}
	if msg.To != nil {
		arg["to"] = msg.To
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	if msg.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(msg.GasPrice)
	}
	if msg.GasFeeCap != nil {
		arg["maxFeePerGas"] = (*hexutil.Big)(msg.GasFeeCap)
	}
	if msg.GasTipCap != nil {
		arg["maxPriorityFeePerGas"] = (*hexutil.Big)(msg.GasTipCap)
	}
	return arg
}

type rpcFeeHistory struct {
	OldestBlock  *hexutil.Big     `json:"oldestBlock"`
	Reward       [][]*hexutil.Big `json:"reward"`
	BaseFee      []*hexutil.Big   `json:"baseFeePerGas"`
	GasUsedRatio []float64        `json:"gasUsedRatio"`
}

type rpcReceipt struct {
	TxHash            string         `json:"transactionHash"`
	BlockNumber       hexutil.Uint64 `json:"blockNumber"`
	BlockHash         string         `json:"blockHash"`
	TxIndex           hexutil.Uint64 `json:"transactionIndex"`
	Status            hexutil.Uint64 `json:"status"`
	CumulativeGasUsed hexutil.Uint64 `json:"cumulativeGasUsed"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	ContractAddress   *string        `json:"contractAddress"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Method: method, Err: err}
		}
	}
	id := atomic.AddUint64(&c.idCounter, 1)
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return &Error{Method: method, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return &Error{Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Method: method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Method: method, Code: resp.StatusCode, Message: fmt.Sprintf("rpc status %d", resp.StatusCode)}
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return &Error{Method: method, Err: err}
	}
	if decoded.Error != nil {
		return &Error{Method: method, Code: decoded.Error.Code, Message: decoded.Error.Message}
	}
	if result == nil {
		return nil
	}
	if len(decoded.Result) == 0 {
		return &Error{Method: method, Message: "rpc result is empty"}
	}
	if err := json.Unmarshal(decoded.Result, result); err != nil {
		return &Error{Method: method, Err: err}
	}
	return nil
}
