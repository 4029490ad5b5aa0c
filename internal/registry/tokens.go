package registry

import (
	"fmt"

	"walletbot/internal/domain"
)

// Tokens is an immutable token catalog keyed by {SYMBOL}_{CHAIN}.
type Tokens struct {
	byKey   map[string]*domain.Token
	ordered []*domain.Token
}

func NewTokens(tokens ...*domain.Token) (*Tokens, error) {
	r := &Tokens{byKey: make(map[string]*domain.Token, len(tokens))}
	for _, token := range tokens {
		if token == nil || token.Contract == nil {
			return nil, fmt.Errorf("%w: nil token", domain.ErrInvalidArgument)
		}
		key := token.Key()
		if _, dup := r.byKey[key]; dup {
			return nil, fmt.Errorf("%w: duplicate token %s", domain.ErrInvalidArgument, key)
		}
		r.byKey[key] = token
		r.ordered = append(r.ordered, token)
	}
	return r, nil
}

// ByAddress returns the first registered token with the address on any chain.
func (r *Tokens) ByAddress(address string) (*domain.Token, error) {
	addr, err := domain.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	for _, token := range r.ordered {
		if token.Address == addr {
			return token, nil
		}
	}
	return nil, fmt.Errorf("%w: address %s", domain.ErrTokenNotFound, addr.Hex())
}

// ByAddressOn restricts the address lookup to one chain.
func (r *Tokens) ByAddressOn(chain domain.Chain, address string) (*domain.Token, error) {
	addr, err := domain.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	for _, token := range r.ordered {
		if token.Address == addr && token.Chain.Equal(chain) {
			return token, nil
		}
	}
	return nil, fmt.Errorf("%w: address %s on %s", domain.ErrTokenNotFound, addr.Hex(), chain)
}

func (r *Tokens) BySymbol(symbol string, chain domain.Chain) (*domain.Token, error) {
	key := domain.TokenKey(symbol, chain.Name)
	if token, ok := r.byKey[key]; ok {
		return token, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrTokenNotFound, key)
}

// Native returns the registered native token of chain, or a synthesized one.
func (r *Tokens) Native(chain domain.Chain) *domain.Token {
	for _, token := range r.ordered {
		if token.Kind == domain.TokenNative && token.Chain.Equal(chain) {
			return token
		}
	}
	return domain.NativeToken(chain)
}

func (r *Tokens) ByChain(chain domain.Chain) []*domain.Token {
	var out []*domain.Token
	for _, token := range r.ordered {
		if token.Chain.Equal(chain) {
			out = append(out, token)
		}
	}
	return out
}

func (r *Tokens) List() []*domain.Token {
	out := make([]*domain.Token, len(r.ordered))
	copy(out, r.ordered)
	return out
}

type tokenDef struct {
	symbol   string
	address  string
	chain    domain.Chain
	decimals uint8
	kind     domain.TokenKind
}

var defaultTokenDefs = []tokenDef{
	{"USDC", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Ethereum, 6, domain.TokenStable},
	{"USDT", "0xdAC17F958D2ee523a2206206994597C13D831ec7", Ethereum, 6, domain.TokenStable},
	{"WETH", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Ethereum, 18, domain.TokenERC20},
	{"USDC", "0x176211869cA2b568f2A7D4EE941E073a821EE1ff", Linea, 6, domain.TokenStable},
	{"WETH", "0xe5D7C2a44FfDDf6b295A15c148167daaAf5Cf34f", Linea, 18, domain.TokenERC20},
	{"USDC", "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", ArbitrumOne, 6, domain.TokenStable},
	{"USDC.E", "0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8", ArbitrumOne, 6, domain.TokenStable},
	{"WETH", "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", ArbitrumOne, 18, domain.TokenERC20},
	{"WETH", "0x4200000000000000000000000000000000000006", Optimism, 18, domain.TokenERC20},
	{"WETH", "0x4200000000000000000000000000000000000006", Base, 18, domain.TokenERC20},
	{"USDC", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Base, 6, domain.TokenStable},
	{"WETH", "0xA51894664A773981C6C112C43ce576f315d5b1B6", Taiko, 18, domain.TokenERC20},
}

// DefaultTokens registers the native coin of every chain followed by the
// built-in ERC-20 table for chains present in chains.
func DefaultTokens(chains *Chains) (*Tokens, error) {
	var tokens []*domain.Token
	for _, chain := range chains.List() {
		tokens = append(tokens, domain.NativeToken(chain))
	}
	for _, def := range defaultTokenDefs {
		chain, err := chains.Chain(def.chain.Name)
		if err != nil {
			continue
		}
		token, err := domain.NewToken(def.symbol, def.address, chain, def.decimals, def.kind)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return NewTokens(tokens...)
}
