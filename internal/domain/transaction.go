package domain

import "time"

type TxStatus string

const (
	TxStatusSuccess  TxStatus = "success"
	TxStatusReverted TxStatus = "reverted"
	TxStatusFailed   TxStatus = "failed"
)

const (
	TxActionTransfer = "transfer"
	TxActionApprove  = "approve"
	TxActionCall     = "contract_call"
)

// TxRecord is the journal entry written for every submitted transaction.
type TxRecord struct {
	ChainID      uint64
	Chain        string
	Account      string
	TxHash       string
	Action       string
	To           string
	Token        string
	Amount       string
	Value        string
	Nonce        uint64
	Gas          uint64
	MaxFeePerGas string
	PriorityFee  string
	TxType       uint8
	Status       TxStatus
	BlockNumber  uint64
	GasUsed      uint64
	Error        string
	CreatedAt    time.Time
}
