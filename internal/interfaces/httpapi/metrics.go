package httpapi

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"walletbot/internal/domain"
)

// Metrics counts engine and scanner activity for /metrics. It satisfies
// application.TxObserver and application.ScanObserver.
type Metrics struct {
	mu             sync.RWMutex
	startTime      time.Time
	txSent         uint64
	txFailed       uint64
	txReverted     uint64
	txByChain      map[string]uint64
	balanceScans   uint64
	balancesStored uint64
	scanFailures   uint64
	lastScan       time.Time
	lastGasGwei    float64
	lastGasChain   string
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
		txByChain: make(map[string]uint64),
	}
}

func (m *Metrics) OnTransaction(_ context.Context, record domain.TxRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch record.Status {
	case domain.TxStatusFailed:
		m.txFailed++
		return nil
	case domain.TxStatusReverted:
		m.txReverted++
	}
	m.txSent++
	if record.Chain != "" {
		m.txByChain[record.Chain]++
	}
	return nil
}

func (m *Metrics) OnBalanceScan(_ string, balances, failures int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceScans++
	m.balancesStored += uint64(balances)
	m.scanFailures += uint64(failures)
	m.lastScan = time.Now()
}

// ObserveGasPrice records the latest gas price seen on chain, in wei.
func (m *Metrics) ObserveGasPrice(chain string, wei *big.Int) {
	if wei == nil {
		return
	}
	gwei := decimal.NewFromBigInt(wei, -9).InexactFloat64()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastGasGwei = gwei
	m.lastGasChain = chain
}

type Snapshot struct {
	StartTime      time.Time
	TxSent         uint64
	TxFailed       uint64
	TxReverted     uint64
	TxByChain      map[string]uint64
	BalanceScans   uint64
	BalancesStored uint64
	ScanFailures   uint64
	LastScan       time.Time
	LastGasGwei    float64
	LastGasChain   string
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byChain := make(map[string]uint64, len(m.txByChain))
	for chain, count := range m.txByChain {
		byChain[chain] = count
	}
	return Snapshot{
		StartTime:      m.startTime,
		TxSent:         m.txSent,
		TxFailed:       m.txFailed,
		TxReverted:     m.txReverted,
		TxByChain:      byChain,
		BalanceScans:   m.balanceScans,
		BalancesStored: m.balancesStored,
		ScanFailures:   m.scanFailures,
		LastScan:       m.lastScan,
		LastGasGwei:    m.lastGasGwei,
		LastGasChain:   m.lastGasChain,
	}
}
