package domain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAddress is the sentinel address used for a chain's native coin.
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

type TokenKind uint8

const (
	TokenNative TokenKind = iota
	TokenERC20
	TokenStable
)

func (k TokenKind) String() string {
	switch k {
	case TokenNative:
		return "native"
	case TokenStable:
		return "stable"
	default:
		return "erc20"
	}
}

// Token is a fungible asset on one chain.
type Token struct {
	*Contract
	Symbol   string
	Decimals uint8
	Kind     TokenKind
}

func NewToken(symbol, address string, chain Chain, decimals uint8, kind TokenKind) (*Token, error) {
	abiName := "erc20"
	if kind == TokenNative {
		abiName = ""
	}
	contract, err := NewContract(address, abiName, chain)
	if err != nil {
		return nil, err
	}
	return &Token{Contract: contract, Symbol: symbol, Decimals: decimals, Kind: kind}, nil
}

func NativeToken(chain Chain) *Token {
	symbol := chain.NativeSymbol
	if symbol == "" {
		symbol = "ETH"
	}
	return &Token{
		Contract: &Contract{Address: NativeAddress, Chain: chain},
		Symbol:   symbol,
		Decimals: DefaultDecimals,
		Kind:     TokenNative,
	}
}

// IsNative reports whether t is nil, tagged native or uses the native sentinel.
func (t *Token) IsNative() bool {
	return t == nil || t.Kind == TokenNative || t.Contract == nil || t.Address == NativeAddress
}

// Key is the registry key {SYMBOL}_{CHAIN}.
func (t *Token) Key() string {
	return TokenKey(t.Symbol, t.Chain.Name)
}

func TokenKey(symbol, chain string) string {
	return strings.ToUpper(strings.TrimSpace(symbol) + "_" + strings.TrimSpace(chain))
}

func (t *Token) Equal(other *Token) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Contract.Equal(other.Contract)
}

// Matches compares a bare string: 0x-prefixed values as checksummed
// addresses, anything else against the symbol ignoring case.
func (t *Token) Matches(value string) bool {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		addr, err := ParseAddress(value)
		return err == nil && addr == t.Address
	}
	return strings.EqualFold(t.Symbol, value)
}

// Amount expresses q in the token's decimals.
func (t *Token) Amount(q Quantity) (Amount, error) {
	return q.AtDecimals(t.Decimals)
}

func (t *Token) FromWei(wei *big.Int) Amount {
	return NewAmountFromWei(wei, t.Decimals)
}

func (t *Token) String() string {
	return t.Symbol + "@" + t.Chain.String()
}
