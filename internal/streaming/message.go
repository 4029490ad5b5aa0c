package streaming

import (
	"encoding/json"
	"errors"
	"time"

	"walletbot/internal/domain"
)

type MessageType string

const (
	MessageTypeTransaction MessageType = "transaction"
	MessageTypeBalance     MessageType = "balance"
	MessageTypeWithdrawal  MessageType = "withdrawal"
)

// Message is the notification envelope published for every journaled event.
// Only the fields of its Type are set.
type Message struct {
	Type       MessageType `json:"type"`
	ChainID    uint64      `json:"chain_id"`
	TraceID    string      `json:"trace_id,omitempty"`
	Chain      string      `json:"chain,omitempty"`
	Account    string      `json:"account,omitempty"`
	ObservedAt time.Time   `json:"observed_at"`

	TxHash      string `json:"tx_hash,omitempty"`
	Action      string `json:"action,omitempty"`
	To          string `json:"to,omitempty"`
	Nonce       uint64 `json:"nonce,omitempty"`
	Status      string `json:"status,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`

	Token        string `json:"token,omitempty"`
	TokenAddress string `json:"token_address,omitempty"`
	Amount       string `json:"amount,omitempty"`
	Wei          string `json:"wei,omitempty"`
	Error        string `json:"error,omitempty"`

	WithdrawalID string `json:"withdrawal_id,omitempty"`
	State        string `json:"state,omitempty"`
	Completed    bool   `json:"completed,omitempty"`
}

func FromTransaction(record domain.TxRecord) Message {
	return Message{
		Type:        MessageTypeTransaction,
		ChainID:     record.ChainID,
		Chain:       record.Chain,
		Account:     record.Account,
		ObservedAt:  record.CreatedAt,
		TxHash:      record.TxHash,
		Action:      record.Action,
		To:          record.To,
		Nonce:       record.Nonce,
		Status:      string(record.Status),
		BlockNumber: record.BlockNumber,
		GasUsed:     record.GasUsed,
		Token:       record.Token,
		Amount:      record.Amount,
		Wei:         record.Value,
		Error:       record.Error,
	}
}

func FromBalance(snap domain.BalanceSnapshot) Message {
	return Message{
		Type:         MessageTypeBalance,
		ChainID:      snap.ChainID,
		Chain:        snap.Chain,
		Account:      snap.Account,
		ObservedAt:   snap.ObservedAt,
		Token:        snap.Token,
		TokenAddress: snap.TokenAddress,
		Amount:       snap.Amount,
		Wei:          snap.Wei,
		Error:        snap.Error,
	}
}

// FromWithdrawal needs the chain id because withdrawals are tracked by
// exchange network name.
func FromWithdrawal(chainID uint64, w domain.Withdrawal) Message {
	return Message{
		Type:         MessageTypeWithdrawal,
		ChainID:      chainID,
		Chain:        w.Chain,
		Account:      w.Address,
		ObservedAt:   w.RequestedAt,
		TxHash:       w.TxHash,
		Token:        w.Token,
		Amount:       w.Amount,
		WithdrawalID: w.ID,
		State:        w.State,
		Completed:    w.Completed,
	}
}

func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, errors.New("message type is required")
	}
	if msg.ChainID == 0 {
		return nil, errors.New("chain_id is required")
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, errors.New("message type is missing")
	}
	if msg.ChainID == 0 {
		return Message{}, errors.New("chain_id is missing")
	}
	return msg, nil
}
