package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"walletbot/internal/domain"
)

type BalanceReader interface {
	Balance(ctx context.Context, token *domain.Token, holder string) (domain.Amount, error)
}

// ReaderFactory opens a balance reader for one chain.
type ReaderFactory func(chain domain.Chain) (BalanceReader, error)

type TokenLister interface {
	Native(chain domain.Chain) *domain.Token
	ByChain(chain domain.Chain) []*domain.Token
}

type ScanObserver interface {
	OnBalanceScan(account string, balances, failures int)
}

type ScannerConfig struct {
	Concurrency int
}

// BalanceScanner reads the native and token balances of an account on every
// configured chain.
type BalanceScanner struct {
	chains    []domain.Chain
	tokens    TokenLister
	readers   ReaderFactory
	store     BalanceStore
	publisher BalancePublisher
	observer  ScanObserver
	cfg       ScannerConfig
}

func NewBalanceScanner(chains []domain.Chain, tokens TokenLister, readers ReaderFactory, store BalanceStore, publisher BalancePublisher, observer ScanObserver, cfg ScannerConfig) (*BalanceScanner, error) {
	if tokens == nil || readers == nil {
		return nil, errors.New("scanner dependencies must not be nil")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &BalanceScanner{
		chains:    chains,
		tokens:    tokens,
		readers:   readers,
		store:     store,
		publisher: publisher,
		observer:  observer,
		cfg:       cfg,
	}, nil
}

// Scan returns one snapshot per (chain, token) in chain order. Read failures
// are kept on the snapshot and do not fail the scan.
func (s *BalanceScanner) Scan(ctx context.Context, account string) ([]domain.BalanceSnapshot, error) {
	holder, err := domain.ParseAddress(account)
	if err != nil {
		return nil, err
	}
	results := make([][]domain.BalanceSnapshot, len(s.chains))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Concurrency)
	for i, chain := range s.chains {
		group.Go(func() error {
			results[i] = s.scanChain(groupCtx, chain, holder.Hex())
			return groupCtx.Err()
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var snapshots []domain.BalanceSnapshot
	failures := 0
	for _, chainSnapshots := range results {
		for _, snap := range chainSnapshots {
			if snap.Error != "" {
				failures++
			}
			snapshots = append(snapshots, snap)
		}
	}
	if s.observer != nil {
		s.observer.OnBalanceScan(holder.Hex(), len(snapshots), failures)
	}
	if s.store != nil && len(snapshots) > 0 {
		if err := s.store.StoreBalances(ctx, snapshots); err != nil {
			return snapshots, err
		}
	}
	if s.publisher != nil && len(snapshots) > 0 {
		if err := s.publisher.PublishBalances(ctx, snapshots); err != nil {
			slog.Warn("balance publish error", "account", holder.Hex(), "err", err)
		}
	}
	return snapshots, nil
}

func (s *BalanceScanner) scanChain(ctx context.Context, chain domain.Chain, holder string) []domain.BalanceSnapshot {
	tokens := []*domain.Token{s.tokens.Native(chain)}
	for _, token := range s.tokens.ByChain(chain) {
		if !token.IsNative() {
			tokens = append(tokens, token)
		}
	}
	now := time.Now().UTC()
	snapshots := make([]domain.BalanceSnapshot, 0, len(tokens))
	reader, err := s.readers(chain)
	for _, token := range tokens {
		snap := domain.BalanceSnapshot{
			ChainID:      chain.ChainID,
			Chain:        chain.Name,
			Account:      holder,
			Token:        token.Symbol,
			TokenAddress: token.Checksum(),
			Decimals:     token.Decimals,
			ObservedAt:   now,
		}
		if err != nil {
			snap.Error = err.Error()
			snapshots = append(snapshots, snap)
			continue
		}
		balance, balanceErr := reader.Balance(ctx, token, holder)
		if balanceErr != nil {
			slog.Warn("balance read error", "chain", chain.Name, "token", token.Symbol, "account", holder, "err", balanceErr)
			snap.Error = balanceErr.Error()
		} else {
			snap.Wei = balance.Wei().String()
			snap.Amount = balance.String()
			slog.Info("balance", "chain", chain.Name, "token", token.Symbol, "account", holder, "amount", balance.String())
		}
		snapshots = append(snapshots, snap)
	}
	if err != nil {
		slog.Warn("chain unavailable", "chain", chain.Name, "err", err)
	}
	return snapshots
}
