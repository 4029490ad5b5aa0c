package application

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"walletbot/internal/domain"
)

// ChainRPC is the node surface the engine needs. Implementations return
// *ethrpc.Error for every failure.
type ChainRPC interface {
	ChainID(ctx context.Context) (uint64, error)
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	FeeHistory(ctx context.Context, blocks uint64, percentiles []float64) (*ethereum.FeeHistory, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
	TransactionReceipt(ctx context.Context, txHash string) (domain.Receipt, bool, error)
}

type TokenCatalog interface {
	Native(chain domain.Chain) *domain.Token
	ByAddressOn(chain domain.Chain, address string) (*domain.Token, error)
}

// TxObserver is notified after every submitted transaction.
type TxObserver interface {
	OnTransaction(ctx context.Context, record domain.TxRecord) error
}

type TxFilter struct {
	Account string
	ChainID uint64
	TxHash  string
	Limit   int
}

type BalanceFilter struct {
	Account string
	ChainID uint64
	Token   string
	Limit   int
}

type TxJournal interface {
	RecordTransaction(ctx context.Context, record domain.TxRecord) error
	QueryTransactions(ctx context.Context, filter TxFilter) ([]domain.TxRecord, error)
}

// TxRecorder journals every observed transaction.
type TxRecorder struct {
	Journal TxJournal
}

func (r TxRecorder) OnTransaction(ctx context.Context, record domain.TxRecord) error {
	return r.Journal.RecordTransaction(ctx, record)
}

type BalanceStore interface {
	StoreBalances(ctx context.Context, snapshots []domain.BalanceSnapshot) error
	QueryBalances(ctx context.Context, filter BalanceFilter) ([]domain.BalanceSnapshot, error)
}

type WithdrawalStore interface {
	RecordWithdrawal(ctx context.Context, withdrawal domain.Withdrawal) error
}

// Journal is the persistence store behind the runners and the status API.
type Journal interface {
	TxJournal
	BalanceStore
	WithdrawalStore
	Ping(ctx context.Context) error
	Close() error
}

type BalancePublisher interface {
	PublishBalances(ctx context.Context, snapshots []domain.BalanceSnapshot) error
}

type WithdrawalPublisher interface {
	PublishWithdrawal(ctx context.Context, withdrawal domain.Withdrawal) error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
