package application

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"walletbot/internal/domain"
	"walletbot/internal/registry"
)

type staticReader struct {
	wei map[string]int64
	err error
}

func (r staticReader) Balance(_ context.Context, token *domain.Token, _ string) (domain.Amount, error) {
	if r.err != nil {
		return domain.Amount{}, r.err
	}
	return token.FromWei(big.NewInt(r.wei[token.Symbol])), nil
}

type scanRecorder struct {
	mu        sync.Mutex
	stored    []domain.BalanceSnapshot
	published int
	observed  [3]any
}

func (s *scanRecorder) StoreBalances(_ context.Context, snapshots []domain.BalanceSnapshot) error {
	s.stored = append(s.stored, snapshots...)
	return nil
}

func (s *scanRecorder) QueryBalances(context.Context, BalanceFilter) ([]domain.BalanceSnapshot, error) {
	return s.stored, nil
}

func (s *scanRecorder) PublishBalances(_ context.Context, snapshots []domain.BalanceSnapshot) error {
	s.published += len(snapshots)
	return errors.New("broker down")
}

func (s *scanRecorder) OnBalanceScan(account string, balances, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed = [3]any{account, balances, failures}
}

func TestScanReadsEveryChain(t *testing.T) {
	chains := []domain.Chain{registry.Linea, registry.Base, registry.Scroll}
	tokens, err := registry.DefaultTokens(registry.DefaultChains())
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	readers := func(chain domain.Chain) (BalanceReader, error) {
		switch chain.Name {
		case registry.Scroll.Name:
			return nil, errors.New("no rpc configured")
		case registry.Base.Name:
			return staticReader{err: errors.New("rate limited")}, nil
		}
		return staticReader{wei: map[string]int64{"ETH": 1_000_000_000_000_000_000, "USDC": 2_500_000}}, nil
	}
	rec := &scanRecorder{}
	scanner, err := NewBalanceScanner(chains, tokens, readers, rec, rec, rec, ScannerConfig{Concurrency: 2})
	if err != nil {
		t.Fatalf("scanner: %v", err)
	}

	snapshots, err := scanner.Scan(context.Background(), "0x7e5f4552091a69125d5dfcb7b8c2659029395bdf")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// linea: ETH USDC WETH, base: ETH WETH USDC, scroll: ETH
	if len(snapshots) != 7 {
		t.Fatalf("snapshots = %d", len(snapshots))
	}
	if snapshots[0].Chain != "linea" || snapshots[0].Token != "ETH" || snapshots[0].Amount != "1" {
		t.Fatalf("first = %+v", snapshots[0])
	}
	if snapshots[0].Account != "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf" {
		t.Fatalf("account = %s", snapshots[0].Account)
	}
	if snapshots[1].Token != "USDC" || snapshots[1].Amount != "2.5" || snapshots[1].Wei != "2500000" {
		t.Fatalf("usdc = %+v", snapshots[1])
	}
	failures := 0
	for _, snap := range snapshots {
		if snap.Error != "" {
			failures++
		}
	}
	if failures != 4 {
		t.Fatalf("failures = %d", failures)
	}
	if snapshots[6].Chain != "scroll" || snapshots[6].Error != "no rpc configured" {
		t.Fatalf("scroll = %+v", snapshots[6])
	}
	if len(rec.stored) != 7 || rec.published != 7 {
		t.Fatalf("stored=%d published=%d", len(rec.stored), rec.published)
	}
	if rec.observed[1] != 7 || rec.observed[2] != 4 {
		t.Fatalf("observed = %v", rec.observed)
	}
}

func TestScanRejectsBadAccount(t *testing.T) {
	tokens, _ := registry.DefaultTokens(registry.DefaultChains())
	scanner, err := NewBalanceScanner(nil, tokens, func(domain.Chain) (BalanceReader, error) { return nil, nil }, nil, nil, nil, ScannerConfig{})
	if err != nil {
		t.Fatalf("scanner: %v", err)
	}
	if _, err := scanner.Scan(context.Background(), "0x123"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}
