package domain

import "time"

// BalanceSnapshot is one observed token balance for an account.
type BalanceSnapshot struct {
	ChainID      uint64
	Chain        string
	Account      string
	Token        string
	TokenAddress string
	Decimals     uint8
	Wei          string
	Amount       string
	Error        string
	ObservedAt   time.Time
}
