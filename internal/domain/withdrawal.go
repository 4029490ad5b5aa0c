package domain

import "time"

// Withdrawal tracks an exchange withdrawal until funds reach the chain.
type Withdrawal struct {
	ID          string
	Token       string
	Chain       string
	Address     string
	Amount      string
	Fee         string
	State       string
	TxHash      string
	Completed   bool
	RequestedAt time.Time
}
