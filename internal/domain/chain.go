package domain

import (
	"strconv"
	"strings"
)

// TxType selects the transaction envelope a chain accepts.
type TxType uint8

const (
	TxTypeLegacy  TxType = 0
	TxTypeEIP1559 TxType = 2
)

// Chain describes an EVM network. Name is the canonical lower snake_case key.
type Chain struct {
	Name         string
	RPC          string
	ChainID      uint64
	TxType       TxType
	NativeSymbol string
	ExplorerURL  string
	WalletName   string
	ExchangeName string
}

// Equal matches by name (case-insensitive) or by chain id.
func (c Chain) Equal(other Chain) bool {
	if c.Name != "" && strings.EqualFold(c.Name, other.Name) {
		return true
	}
	return c.ChainID != 0 && c.ChainID == other.ChainID
}

func (c Chain) Is(name string) bool {
	return strings.EqualFold(c.Name, strings.TrimSpace(name))
}

// TxURL returns the explorer link for hash, or an empty string when the chain
// has no explorer configured.
func (c Chain) TxURL(hash string) string {
	if c.ExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(c.ExplorerURL, "/") + "/tx/" + hash
}

func (c Chain) String() string {
	if c.Name == "" {
		return "chain-" + strconv.FormatUint(c.ChainID, 10)
	}
	return c.Name
}
