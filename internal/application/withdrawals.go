package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"walletbot/internal/domain"
)

type WithdrawalRequest struct {
	Token   string
	Chain   domain.Chain
	Amount  domain.Amount
	Address string
}

type WithdrawalStatus struct {
	ID        string
	State     string
	TxHash    string
	Completed bool
}

// WithdrawalAPI is an exchange account able to send funds on-chain.
type WithdrawalAPI interface {
	Withdraw(ctx context.Context, req WithdrawalRequest) (string, error)
	WithdrawalStatus(ctx context.Context, id string) (WithdrawalStatus, error)
}

type WithdrawalsConfig struct {
	PollInterval   time.Duration
	Attempts       int
	DefaultAddress string
}

// Withdrawals submits exchange withdrawals and blocks until the exchange
// reports completion.
type Withdrawals struct {
	api       WithdrawalAPI
	cfg       WithdrawalsConfig
	sleep     Sleeper
	store     WithdrawalStore
	publisher WithdrawalPublisher
}

func NewWithdrawals(api WithdrawalAPI, store WithdrawalStore, publisher WithdrawalPublisher, cfg WithdrawalsConfig) (*Withdrawals, error) {
	if api == nil {
		return nil, errors.New("withdrawal api must not be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 30
	}
	return &Withdrawals{api: api, cfg: cfg, sleep: sleepContext, store: store, publisher: publisher}, nil
}

// SetSleeper replaces the poll delay, mainly for tests.
func (w *Withdrawals) SetSleeper(sleep Sleeper) {
	w.sleep = sleep
}

// Withdraw sends amount of token to address on chain (the configured default
// address when empty) and polls the status every PollInterval for Attempts
// rounds. Status lookups that fail are retried within the same budget.
func (w *Withdrawals) Withdraw(ctx context.Context, token string, amount domain.Amount, chain domain.Chain, address string) (domain.Withdrawal, error) {
	if address == "" {
		address = w.cfg.DefaultAddress
	}
	to, err := domain.ParseAddress(address)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	token = strings.ToUpper(strings.TrimSpace(token))
	withdrawal := domain.Withdrawal{
		Token:       token,
		Chain:       chain.Name,
		Address:     to.Hex(),
		Amount:      amount.String(),
		RequestedAt: time.Now().UTC(),
	}
	slog.Info("exchange withdrawal", "token", token, "amount", amount.String(), "chain", chain.Name, "to", to.Hex())
	id, err := w.api.Withdraw(ctx, WithdrawalRequest{Token: token, Chain: chain, Amount: amount, Address: to.Hex()})
	if err != nil {
		return withdrawal, fmt.Errorf("withdraw %s %s: %w", amount, token, err)
	}
	withdrawal.ID = id

	for attempt := 0; attempt < w.cfg.Attempts; attempt++ {
		status, err := w.api.WithdrawalStatus(ctx, id)
		if err != nil {
			slog.Warn("withdrawal status error", "id", id, "attempt", attempt+1, "err", err)
		} else {
			withdrawal.State = status.State
			withdrawal.TxHash = status.TxHash
			if status.Completed {
				withdrawal.Completed = true
				w.record(ctx, withdrawal)
				slog.Info("withdrawal complete", "id", id, "token", token, "tx_hash", status.TxHash)
				return withdrawal, nil
			}
		}
		if err := w.sleep(ctx, w.cfg.PollInterval); err != nil {
			return withdrawal, err
		}
	}
	w.record(ctx, withdrawal)
	slog.Error("withdrawal not confirmed", "id", id, "attempts", w.cfg.Attempts, "state", withdrawal.State)
	return withdrawal, fmt.Errorf("%w: id %s after %d attempts", domain.ErrWithdrawalTimeout, id, w.cfg.Attempts)
}

func (w *Withdrawals) record(ctx context.Context, withdrawal domain.Withdrawal) {
	if w.store != nil {
		if err := w.store.RecordWithdrawal(ctx, withdrawal); err != nil {
			slog.Warn("withdrawal journal error", "id", withdrawal.ID, "err", err)
		}
	}
	if w.publisher != nil {
		if err := w.publisher.PublishWithdrawal(ctx, withdrawal); err != nil {
			slog.Warn("withdrawal publish error", "id", withdrawal.ID, "err", err)
		}
	}
}
