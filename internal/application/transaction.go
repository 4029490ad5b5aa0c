package application

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"

	"walletbot/internal/domain"
)

// TxRequest is an unsigned transaction. It lives for a single send.
type TxRequest struct {
	From                 common.Address
	To                   *common.Address
	Nonce                uint64
	ChainID              *big.Int
	Type                 domain.TxType
	Gas                  uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Value                *big.Int
	Data                 []byte

	// Journal labels, not part of the signed payload.
	Action string
	Token  string
	Amount string
}

// FeeCap is the highest price per gas the transaction may pay.
func (r *TxRequest) FeeCap() *big.Int {
	if r.Type == domain.TxTypeLegacy {
		return r.GasPrice
	}
	return r.MaxFeePerGas
}

func (r *TxRequest) CallMsg() ethereum.CallMsg {
	msg := ethereum.CallMsg{
		From:  r.From,
		To:    r.To,
		Value: r.Value,
		Data:  r.Data,
	}
	if r.Type == domain.TxTypeLegacy {
		msg.GasPrice = r.GasPrice
	} else {
		msg.GasFeeCap = r.MaxFeePerGas
		msg.GasTipCap = r.MaxPriorityFeePerGas
	}
	return msg
}

func (r *TxRequest) transaction() *types.Transaction {
	if r.Type == domain.TxTypeLegacy {
		return types.NewTx(&types.LegacyTx{
			Nonce:    r.Nonce,
			GasPrice: r.GasPrice,
			Gas:      r.Gas,
			To:       r.To,
			Value:    r.Value,
			Data:     r.Data,
		})
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   r.ChainID,
		Nonce:     r.Nonce,
		GasTipCap: r.MaxPriorityFeePerGas,
		GasFeeCap: r.MaxFeePerGas,
		Gas:       r.Gas,
		To:        r.To,
		Value:     r.Value,
		Data:      r.Data,
	})
}

// PrepareTx fills fees, nonce and chain id. EIP-1559 chains use
// maxFee = (gasPrice + priority) * jitter where priority is the median 20th
// percentile reward of the last 30 blocks times jitter; legacy chains use
// gasPrice * jitter. The nonce is read at preparation time.
func (o *Onchain) PrepareTx(ctx context.Context, to *common.Address, value *big.Int, data []byte) (*TxRequest, error) {
	if err := o.requireAccount(); err != nil {
		return nil, err
	}
	chainID, err := o.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = new(big.Int)
	}
	req := &TxRequest{
		From:    o.account.Address,
		To:      to,
		ChainID: new(big.Int).SetUint64(chainID),
		Type:    o.chain.TxType,
		Value:   value,
		Data:    data,
	}
	if req.Type == domain.TxTypeLegacy {
		gasPrice, err := o.rpc.GasPrice(ctx)
		if err != nil {
			return nil, err
		}
		req.GasPrice = scale(gasPrice, o.jitter())
	} else {
		baseFee, err := o.rpc.GasPrice(ctx)
		if err != nil {
			return nil, err
		}
		priority, err := o.priorityFee(ctx)
		if err != nil {
			return nil, err
		}
		req.MaxPriorityFeePerGas = priority
		req.MaxFeePerGas = scale(new(big.Int).Add(baseFee, priority), o.jitter())
	}
	from := req.From
	nonce, err := o.nonces.Next(ctx, chainID, from, func(ctx context.Context) (uint64, error) {
		return o.rpc.NonceAt(ctx, from)
	})
	if err != nil {
		return nil, err
	}
	req.Nonce = nonce
	return req, nil
}

func (o *Onchain) priorityFee(ctx context.Context) (*big.Int, error) {
	history, err := o.rpc.FeeHistory(ctx, feeHistoryBlocks, []float64{rewardPercentile})
	if err != nil {
		return nil, err
	}
	median := medianReward(history)
	return scale(median, o.jitter()), nil
}

// medianReward sorts the first percentile column and takes the middle
// element; an empty history yields zero.
func medianReward(history *ethereum.FeeHistory) *big.Int {
	fees := make([]*big.Int, 0, len(history.Reward))
	for _, row := range history.Reward {
		if len(row) > 0 && row[0] != nil {
			fees = append(fees, row[0])
		}
	}
	if len(fees) == 0 {
		return new(big.Int)
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i].Cmp(fees[j]) < 0 })
	return new(big.Int).Set(fees[len(fees)/2])
}

// SignAndSend estimates gas (estimate * jitter * 1.1), signs, broadcasts and
// blocks until the receipt is mined. A reverted receipt returns the hash with
// ErrTransactionReverted.
func (o *Onchain) SignAndSend(ctx context.Context, req *TxRequest) (hash string, err error) {
	ctx, span := o.tracer.Start(ctx, "onchain.sign_and_send")
	defer func() { endSpan(span, err) }()

	if err := o.requireAccount(); err != nil {
		return "", err
	}
	chainID := req.ChainID.Uint64()
	estimate, err := o.rpc.EstimateGas(ctx, req.CallMsg())
	if err != nil {
		o.nonces.Release(chainID, req.From, req.Nonce)
		return "", err
	}
	req.Gas = scale(new(big.Int).SetUint64(estimate), o.jitter()*gasHeadroom).Uint64()

	signed, err := types.SignTx(req.transaction(), types.LatestSignerForChainID(req.ChainID), o.account.PrivateKey())
	if err != nil {
		o.nonces.Release(chainID, req.From, req.Nonce)
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		o.nonces.Release(chainID, req.From, req.Nonce)
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	hash, err = o.rpc.SendRawTransaction(ctx, raw)
	if err != nil {
		o.nonces.Release(chainID, req.From, req.Nonce)
		o.notify(ctx, req, signed.Hash().Hex(), nil, err)
		return "", err
	}
	if hash == "" {
		hash = signed.Hash().Hex()
	}
	span.SetAttributes(
		attribute.Int64("chain.id", int64(chainID)),
		attribute.String("tx.hash", hash),
		attribute.Int64("tx.nonce", int64(req.Nonce)),
		attribute.Int64("tx.gas", int64(req.Gas)),
	)

	receipt, err := o.waitReceipt(ctx, hash)
	if err != nil {
		o.notify(ctx, req, hash, nil, err)
		return hash, err
	}
	if receipt.TxHash != "" {
		hash = receipt.TxHash
	}
	o.notify(ctx, req, hash, &receipt, nil)
	if !receipt.Succeeded() {
		return hash, fmt.Errorf("%w: %s", domain.ErrTransactionReverted, hash)
	}
	return hash, nil
}

func (o *Onchain) waitReceipt(ctx context.Context, hash string) (domain.Receipt, error) {
	if o.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ReceiptTimeout)
		defer cancel()
	}
	for {
		receipt, found, err := o.rpc.TransactionReceipt(ctx, hash)
		if err != nil {
			return domain.Receipt{}, err
		}
		if found {
			return receipt, nil
		}
		if err := o.sleep(ctx, o.cfg.ReceiptPollInterval); err != nil {
			return domain.Receipt{}, fmt.Errorf("wait receipt %s: %w", hash, err)
		}
	}
}

func (o *Onchain) notify(ctx context.Context, req *TxRequest, hash string, receipt *domain.Receipt, sendErr error) {
	if len(o.observers) == 0 {
		return
	}
	record := domain.TxRecord{
		ChainID:   req.ChainID.Uint64(),
		Chain:     o.chain.Name,
		Account:   req.From.Hex(),
		TxHash:    hash,
		Action:    req.Action,
		Token:     req.Token,
		Amount:    req.Amount,
		Value:     req.Value.String(),
		Nonce:     req.Nonce,
		Gas:       req.Gas,
		TxType:    uint8(req.Type),
		Status:    domain.TxStatusFailed,
		CreatedAt: time.Now().UTC(),
	}
	if req.To != nil {
		record.To = req.To.Hex()
	}
	if fee := req.FeeCap(); fee != nil {
		record.MaxFeePerGas = fee.String()
	}
	if req.MaxPriorityFeePerGas != nil {
		record.PriorityFee = req.MaxPriorityFeePerGas.String()
	}
	if sendErr != nil {
		record.Error = sendErr.Error()
	}
	if receipt != nil {
		record.BlockNumber = receipt.BlockNumber
		record.GasUsed = receipt.GasUsed
		if receipt.Succeeded() {
			record.Status = domain.TxStatusSuccess
		} else {
			record.Status = domain.TxStatusReverted
		}
	}
	ctx = context.WithoutCancel(ctx)
	for _, observer := range o.observers {
		if err := observer.OnTransaction(ctx, record); err != nil {
			slog.Warn("transaction observer failed", "chain", o.chain.Name, "tx_hash", hash, "err", err)
		}
	}
}
