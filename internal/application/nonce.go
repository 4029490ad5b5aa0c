package application

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceSource hands out the nonce for the next transaction of an account.
type NonceSource interface {
	Next(ctx context.Context, chainID uint64, account common.Address, fetch func(context.Context) (uint64, error)) (uint64, error)
	// Release returns nonce after a transaction carrying it failed to broadcast.
	Release(chainID uint64, account common.Address, nonce uint64)
}

// FreshNonces reads the transaction count from the node on every call.
// Concurrent senders for one account must be serialized by the caller.
type FreshNonces struct{}

func (FreshNonces) Next(ctx context.Context, _ uint64, _ common.Address, fetch func(context.Context) (uint64, error)) (uint64, error) {
	return fetch(ctx)
}

func (FreshNonces) Release(uint64, common.Address, uint64) {}

type nonceKey struct {
	chainID uint64
	account common.Address
}

// ReservingNonces keeps the next nonce per account in process so concurrent
// sends from one engine do not observe the same value. The node count still
// wins when it is ahead of the reservation.
type ReservingNonces struct {
	mu   sync.Mutex
	next map[nonceKey]uint64
}

func NewReservingNonces() *ReservingNonces {
	return &ReservingNonces{next: make(map[nonceKey]uint64)}
}

func (r *ReservingNonces) Next(ctx context.Context, chainID uint64, account common.Address, fetch func(context.Context) (uint64, error)) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	onchain, err := fetch(ctx)
	if err != nil {
		return 0, err
	}
	key := nonceKey{chainID: chainID, account: account}
	nonce := onchain
	if reserved, ok := r.next[key]; ok && reserved > nonce {
		nonce = reserved
	}
	r.next[key] = nonce + 1
	return nonce, nil
}

// Release steps the reservation back only when nonce was the last one handed
// out. Later reservations may belong to transactions still in flight, so the
// gap is left for the node count to close.
func (r *ReservingNonces) Release(chainID uint64, account common.Address, nonce uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := nonceKey{chainID: chainID, account: account}
	if next, ok := r.next[key]; ok && next == nonce+1 {
		r.next[key] = nonce
	}
}
