package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"walletbot/internal/domain"
	"walletbot/internal/wallet"
)

const (
	nativeTransferGas = 21000
	feeHistoryBlocks  = 30
	rewardPercentile  = 20
	eip1559Blocks     = 50
	gasHeadroom       = 1.1
	jitterMin         = 1.05
	jitterMax         = 1.10
	erc20ABI          = "erc20"
)

type OnchainConfig struct {
	GasPriceLimitGwei float64
	// ReceiptTimeout bounds the receipt wait; zero waits until ctx is done.
	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
	GasWaitMin          time.Duration
	GasWaitMax          time.Duration
}

type Option func(*Onchain)

// WithJitter replaces the uniform [1.05, 1.10] fee multiplier.
func WithJitter(fn func() float64) Option {
	return func(o *Onchain) { o.jitter = fn }
}

func WithSleeper(sleep Sleeper) Option {
	return func(o *Onchain) { o.sleep = sleep }
}

func WithNonceSource(nonces NonceSource) Option {
	return func(o *Onchain) { o.nonces = nonces }
}

func WithObservers(observers ...TxObserver) Option {
	return func(o *Onchain) { o.observers = append(o.observers, observers...) }
}

// Onchain builds, signs and submits transactions for one account on one
// chain. It is not safe for concurrent transaction submission unless a
// ReservingNonces source is installed.
type Onchain struct {
	rpc       ChainRPC
	chain     domain.Chain
	account   *wallet.Account
	abis      domain.ABILoader
	tokens    TokenCatalog
	cfg       OnchainConfig
	jitter    func() float64
	sleep     Sleeper
	nonces    NonceSource
	observers []TxObserver
	tracer    trace.Tracer

	mu      sync.Mutex
	chainID uint64
}

// NewOnchain binds an engine to a chain. account may be nil for read-only use.
func NewOnchain(rpc ChainRPC, chain domain.Chain, account *wallet.Account, abis domain.ABILoader, tokens TokenCatalog, cfg OnchainConfig, opts ...Option) (*Onchain, error) {
	if rpc == nil || abis == nil {
		return nil, errors.New("onchain dependencies must not be nil")
	}
	if cfg.GasPriceLimitGwei <= 0 {
		cfg.GasPriceLimitGwei = 30
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 2 * time.Second
	}
	if cfg.GasWaitMin <= 0 {
		cfg.GasWaitMin = 5 * time.Second
	}
	if cfg.GasWaitMax < cfg.GasWaitMin {
		cfg.GasWaitMax = 2 * cfg.GasWaitMin
	}
	o := &Onchain{
		rpc:     rpc,
		chain:   chain,
		account: account,
		abis:    abis,
		tokens:  tokens,
		cfg:     cfg,
		jitter:  defaultJitter,
		sleep:   sleepContext,
		nonces:  FreshNonces{},
		tracer:  otel.Tracer("walletbot/onchain"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Onchain) Chain() domain.Chain {
	return o.chain
}

func (o *Onchain) Account() *wallet.Account {
	return o.account
}

// ChainID asks the node once and caches the answer.
func (o *Onchain) ChainID(ctx context.Context) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.chainID != 0 {
		return o.chainID, nil
	}
	id, err := o.rpc.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	if o.chain.ChainID != 0 && o.chain.ChainID != id {
		slog.Warn("rpc chain id differs from registry", "chain", o.chain.Name, "registry", o.chain.ChainID, "rpc", id)
	}
	o.chainID = id
	return id, nil
}

func (o *Onchain) NativeToken() *domain.Token {
	if o.tokens != nil {
		return o.tokens.Native(o.chain)
	}
	return domain.NativeToken(o.chain)
}

// Balance reads the balance of holder (the engine account when empty) in
// token units. A nil token means the native coin.
func (o *Onchain) Balance(ctx context.Context, token *domain.Token, holder string) (domain.Amount, error) {
	if token == nil {
		token = o.NativeToken()
	}
	addr, err := o.holder(holder)
	if err != nil {
		return domain.Amount{}, err
	}
	if token.IsNative() {
		wei, err := o.rpc.Balance(ctx, addr)
		if err != nil {
			return domain.Amount{}, err
		}
		return domain.NewAmountFromWei(wei, token.Decimals), nil
	}
	wei, err := o.callBigInt(ctx, token.Contract, "balanceOf", addr)
	if err != nil {
		return domain.Amount{}, err
	}
	return token.FromWei(wei), nil
}

// BalanceOf resolves a token by contract address before reading the balance.
func (o *Onchain) BalanceOf(ctx context.Context, tokenAddress, holder string) (domain.Amount, error) {
	token, err := o.ResolveToken(ctx, tokenAddress)
	if err != nil {
		return domain.Amount{}, err
	}
	return o.Balance(ctx, token, holder)
}

// ResolveToken looks the address up in the catalog and falls back to reading
// symbol() and decimals() from the contract.
func (o *Onchain) ResolveToken(ctx context.Context, address string) (*domain.Token, error) {
	addr, err := domain.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if addr == domain.NativeAddress {
		return o.NativeToken(), nil
	}
	if o.tokens != nil {
		if token, err := o.tokens.ByAddressOn(o.chain, addr.Hex()); err == nil {
			return token, nil
		}
	}
	symbol, decimals, err := o.TokenParams(ctx, addr.Hex())
	if err != nil {
		return nil, err
	}
	return domain.NewToken(symbol, addr.Hex(), o.chain, decimals, domain.TokenERC20)
}

// TokenParams reads (symbol, decimals) from an ERC-20 contract.
func (o *Onchain) TokenParams(ctx context.Context, address string) (string, uint8, error) {
	contract, err := domain.NewContract(address, erc20ABI, o.chain)
	if err != nil {
		return "", 0, err
	}
	out, err := o.Call(ctx, contract, "decimals")
	if err != nil {
		return "", 0, fmt.Errorf("%w: decimals() on %s: %w", domain.ErrContractCall, contract.Checksum(), err)
	}
	decimals, ok := first[uint8](out)
	if !ok {
		return "", 0, fmt.Errorf("%w: decimals() on %s returned %v", domain.ErrContractCall, contract.Checksum(), out)
	}
	out, err = o.Call(ctx, contract, "symbol")
	if err != nil {
		return "", 0, fmt.Errorf("%w: symbol() on %s: %w", domain.ErrContractCall, contract.Checksum(), err)
	}
	symbol, ok := first[string](out)
	if !ok {
		return "", 0, fmt.Errorf("%w: symbol() on %s returned %v", domain.ErrContractCall, contract.Checksum(), out)
	}
	return symbol, decimals, nil
}

// SendToken transfers q of token (native when nil) to the recipient and
// returns the mined transaction hash.
//
// Native sends keep a fee reserve of 21000 * maxFeePerGas * jitter and fail
// with ErrInsufficientBalance before broadcasting. ERC-20 sends above the
// balance are clamped to the full balance.
func (o *Onchain) SendToken(ctx context.Context, q domain.Quantity, to string, token *domain.Token) (hash string, err error) {
	ctx, span := o.tracer.Start(ctx, "onchain.send_token")
	defer func() { endSpan(span, err) }()

	if err := o.requireAccount(); err != nil {
		return "", err
	}
	if token == nil {
		token = o.NativeToken()
	}
	recipient, err := domain.ParseAddress(to)
	if err != nil {
		return "", err
	}
	balance, err := o.Balance(ctx, token, "")
	if err != nil {
		return "", err
	}
	amount, err := token.Amount(q)
	if err != nil {
		return "", err
	}
	if amount.Sign() < 0 {
		return "", fmt.Errorf("%w: negative amount %s", domain.ErrInvalidArgument, amount)
	}
	span.SetAttributes(
		attribute.String("chain.name", o.chain.Name),
		attribute.String("token", token.Symbol),
		attribute.String("to", recipient.Hex()),
	)

	var req *TxRequest
	if token.IsNative() {
		req, err = o.PrepareTx(ctx, &recipient, amount.Wei(), nil)
		if err != nil {
			return "", err
		}
		reserve := scale(new(big.Int).Mul(big.NewInt(nativeTransferGas), req.FeeCap()), o.jitter())
		remaining := new(big.Int).Sub(balance.Wei(), reserve)
		remaining.Sub(remaining, amount.Wei())
		if remaining.Sign() < 0 {
			o.nonces.Release(req.ChainID.Uint64(), req.From, req.Nonce)
			slog.Error("insufficient balance for transfer",
				"chain", o.chain.Name,
				"token", token.Symbol,
				"balance", balance.String(),
				"amount", amount.String(),
				"fee_reserve_wei", reserve.String(),
			)
			return "", fmt.Errorf("%w: balance %s %s, amount %s, fee reserve %s wei",
				domain.ErrInsufficientBalance, balance, token.Symbol, amount, reserve)
		}
	} else {
		if less, _ := balance.Less(amount); less {
			slog.Warn("transfer amount exceeds balance, sending full balance",
				"chain", o.chain.Name,
				"token", token.Symbol,
				"requested", amount.String(),
				"balance", balance.String(),
			)
			amount = balance
		}
		value, err := amount.Uint256()
		if err != nil {
			return "", err
		}
		data, err := o.pack(token.Contract, "transfer", recipient, value.ToBig())
		if err != nil {
			return "", err
		}
		req, err = o.PrepareTx(ctx, &token.Address, nil, data)
		if err != nil {
			return "", err
		}
	}
	req.Action = domain.TxActionTransfer
	req.Token = token.Symbol
	req.Amount = amount.String()

	hash, err = o.SignAndSend(ctx, req)
	if err != nil {
		return hash, err
	}
	slog.Info("transaction sent",
		"chain", o.chain.Name,
		"amount", amount.String(),
		"token", token.Symbol,
		"to", recipient.Hex(),
		"tx_hash", hash,
	)
	return hash, nil
}

// SendTokenAt sends a token identified by its contract address.
func (o *Onchain) SendTokenAt(ctx context.Context, q domain.Quantity, to, tokenAddress string) (string, error) {
	token, err := o.ResolveToken(ctx, tokenAddress)
	if err != nil {
		return "", err
	}
	return o.SendToken(ctx, q, to, token)
}

// Allowance reads allowance(account, spender) in token units.
func (o *Onchain) Allowance(ctx context.Context, token *domain.Token, spender string) (domain.Amount, error) {
	if err := o.requireAccount(); err != nil {
		return domain.Amount{}, err
	}
	if token.IsNative() {
		return domain.Amount{}, fmt.Errorf("%w: native token has no allowance", domain.ErrInvalidArgument)
	}
	spenderAddr, err := domain.ParseAddress(spender)
	if err != nil {
		return domain.Amount{}, err
	}
	wei, err := o.callBigInt(ctx, token.Contract, "allowance", o.account.Address, spenderAddr)
	if err != nil {
		return domain.Amount{}, err
	}
	return token.FromWei(wei), nil
}

// Approve grants spender an allowance of q. It is a no-op for native tokens
// and when the current allowance already covers q; the returned hash is then
// empty.
func (o *Onchain) Approve(ctx context.Context, token *domain.Token, q domain.Quantity, spender string) (hash string, err error) {
	if token.IsNative() {
		return "", nil
	}
	ctx, span := o.tracer.Start(ctx, "onchain.approve")
	defer func() { endSpan(span, err) }()

	amount, err := token.Amount(q)
	if err != nil {
		return "", err
	}
	current, err := o.Allowance(ctx, token, spender)
	if err != nil {
		return "", err
	}
	if enough, _ := current.GreaterOrEqual(amount); enough {
		slog.Debug("allowance already sufficient", "chain", o.chain.Name, "token", token.Symbol, "spender", spender, "allowance", current.String())
		return "", nil
	}
	value, err := amount.Uint256()
	if err != nil {
		return "", err
	}
	spenderAddr, err := domain.ParseAddress(spender)
	if err != nil {
		return "", err
	}
	data, err := o.pack(token.Contract, "approve", spenderAddr, value.ToBig())
	if err != nil {
		return "", err
	}
	req, err := o.PrepareTx(ctx, &token.Address, nil, data)
	if err != nil {
		return "", err
	}
	req.Action = domain.TxActionApprove
	req.Token = token.Symbol
	req.Amount = amount.String()
	hash, err = o.SignAndSend(ctx, req)
	if err != nil {
		return hash, err
	}
	slog.Info("approve sent", "chain", o.chain.Name, "amount", amount.String(), "token", token.Symbol, "spender", spenderAddr.Hex(), "tx_hash", hash)
	return hash, nil
}

// Call executes a read-only contract method and returns the decoded outputs.
func (o *Onchain) Call(ctx context.Context, contract *domain.Contract, method string, args ...any) ([]any, error) {
	parsed, err := contract.ABI(o.abis)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %w", domain.ErrContractCall, method, err)
	}
	msg := ethereum.CallMsg{To: &contract.Address, Data: data}
	if o.account != nil {
		msg.From = o.account.Address
	}
	out, err := o.rpc.Call(ctx, msg)
	if err != nil {
		return nil, err
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s on %s: %w", domain.ErrContractCall, method, contract.Checksum(), err)
	}
	return values, nil
}

// Transact sends a state-changing contract call with optional native value.
func (o *Onchain) Transact(ctx context.Context, contract *domain.Contract, value *big.Int, method string, args ...any) (string, error) {
	data, err := o.pack(contract, method, args...)
	if err != nil {
		return "", err
	}
	req, err := o.PrepareTx(ctx, &contract.Address, value, data)
	if err != nil {
		return "", err
	}
	req.Action = domain.TxActionCall
	req.Token = method
	return o.SignAndSend(ctx, req)
}

// GasPrice returns the node gas price in gwei.
func (o *Onchain) GasPrice(ctx context.Context) (float64, error) {
	wei, err := o.rpc.GasPrice(ctx)
	if err != nil {
		return 0, err
	}
	return decimal.NewFromBigInt(wei, -9).InexactFloat64(), nil
}

// WaitForGasPrice polls every GasWaitMin..GasWaitMax until the gas price is
// at or below limitGwei (the configured default when zero). Only ctx bounds
// the wait.
func (o *Onchain) WaitForGasPrice(ctx context.Context, limitGwei float64) error {
	if limitGwei <= 0 {
		limitGwei = o.cfg.GasPriceLimitGwei
	}
	for {
		price, err := o.GasPrice(ctx)
		if err != nil {
			return err
		}
		if price <= limitGwei {
			return nil
		}
		delay := randomDelay(o.cfg.GasWaitMin, o.cfg.GasWaitMax)
		slog.Info("gas price above limit", "chain", o.chain.Name, "gwei", price, "limit", limitGwei, "retry_in", delay)
		if err := o.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// IsEIP1559 reports whether any of the last 50 blocks carries a base fee.
func (o *Onchain) IsEIP1559(ctx context.Context) (bool, error) {
	history, err := o.rpc.FeeHistory(ctx, eip1559Blocks, []float64{})
	if err != nil {
		return false, err
	}
	for _, fee := range history.BaseFee {
		if fee != nil && fee.Sign() > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (o *Onchain) holder(address string) (common.Address, error) {
	if address != "" {
		return domain.ParseAddress(address)
	}
	if err := o.requireAccount(); err != nil {
		return common.Address{}, err
	}
	return o.account.Address, nil
}

func (o *Onchain) requireAccount() error {
	if o.account == nil {
		return fmt.Errorf("%w: engine has no account", domain.ErrInvalidArgument)
	}
	return nil
}

func (o *Onchain) pack(contract *domain.Contract, method string, args ...any) ([]byte, error) {
	parsed, err := contract.ABI(o.abis)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %w", domain.ErrContractCall, method, err)
	}
	return data, nil
}

func (o *Onchain) callBigInt(ctx context.Context, contract *domain.Contract, method string, args ...any) (*big.Int, error) {
	out, err := o.Call(ctx, contract, method, args...)
	if err != nil {
		return nil, err
	}
	value, ok := first[*big.Int](out)
	if !ok || value == nil {
		return nil, fmt.Errorf("%w: %s on %s returned %v", domain.ErrContractCall, method, contract.Checksum(), out)
	}
	return value, nil
}

func first[T any](values []any) (T, bool) {
	var zero T
	if len(values) == 0 {
		return zero, false
	}
	v, ok := values[0].(T)
	return v, ok
}

func defaultJitter() float64 {
	return jitterMin + rand.Float64()*(jitterMax-jitterMin)
}

func randomDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

// scale multiplies value by factor and truncates toward zero.
func scale(value *big.Int, factor float64) *big.Int {
	return decimal.NewFromBigInt(value, 0).Mul(decimal.NewFromFloat(factor)).Truncate(0).BigInt()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
