package registry

import (
	"fmt"
	"strings"

	"walletbot/internal/domain"
)

// ChainEntry registers a chain under a lookup key. The key is usually the
// chain name; aliases use a different key for the same chain.
type ChainEntry struct {
	Key   string
	Chain domain.Chain
}

func Entry(chain domain.Chain) ChainEntry {
	return ChainEntry{Key: chain.Name, Chain: chain}
}

func Alias(key string, chain domain.Chain) ChainEntry {
	return ChainEntry{Key: key, Chain: chain}
}

// Chains is an immutable chain catalog built once at startup.
type Chains struct {
	byKey   map[string]domain.Chain
	entries []ChainEntry
	ordered []domain.Chain
}

func NewChains(entries ...ChainEntry) (*Chains, error) {
	r := &Chains{byKey: make(map[string]domain.Chain, len(entries))}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		key := normalizeKey(e.Key)
		if key == "" || e.Chain.Name == "" {
			return nil, fmt.Errorf("%w: chain entry without key or name", domain.ErrInvalidArgument)
		}
		if _, dup := r.byKey[key]; dup {
			return nil, fmt.Errorf("%w: duplicate chain key %q", domain.ErrInvalidArgument, key)
		}
		r.byKey[key] = e.Chain
		r.entries = append(r.entries, e)
		name := normalizeKey(e.Chain.Name)
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			r.ordered = append(r.ordered, e.Chain)
		}
	}
	return r, nil
}

// Chain resolves name case-insensitively against registration keys, then
// against chain names.
func (r *Chains) Chain(name string) (domain.Chain, error) {
	key := normalizeKey(name)
	if key == "" {
		return domain.Chain{}, fmt.Errorf("%w: chain name is required", domain.ErrInvalidArgument)
	}
	if chain, ok := r.byKey[key]; ok {
		return chain, nil
	}
	for _, chain := range r.ordered {
		if normalizeKey(chain.Name) == key {
			return chain, nil
		}
	}
	return domain.Chain{}, fmt.Errorf("%w: %s", domain.ErrChainNotFound, name)
}

func (r *Chains) ByID(chainID uint64) (domain.Chain, error) {
	for _, chain := range r.ordered {
		if chain.ChainID == chainID {
			return chain, nil
		}
	}
	return domain.Chain{}, fmt.Errorf("%w: chain id %d", domain.ErrChainNotFound, chainID)
}

// List returns the distinct chains in registration order.
func (r *Chains) List() []domain.Chain {
	out := make([]domain.Chain, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// WithRPC returns a copy of the registry with RPC endpoints replaced.
func (r *Chains) WithRPC(overrides map[string]string) (*Chains, error) {
	if len(overrides) == 0 {
		return r, nil
	}
	rpcByName := make(map[string]string, len(overrides))
	for name, url := range overrides {
		chain, err := r.Chain(name)
		if err != nil {
			return nil, err
		}
		rpcByName[normalizeKey(chain.Name)] = url
	}
	entries := make([]ChainEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if url, ok := rpcByName[normalizeKey(e.Chain.Name)]; ok {
			e.Chain.RPC = url
		}
		entries = append(entries, e)
	}
	return NewChains(entries...)
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

var (
	Ethereum = domain.Chain{
		Name: "ethereum", RPC: "https://1rpc.io/eth", ChainID: 1, TxType: domain.TxTypeEIP1559,
		NativeSymbol: "ETH", ExplorerURL: "https://etherscan.io",
		WalletName: "Ethereum Mainnet", ExchangeName: "ERC20",
	}
	Linea = domain.Chain{
		Name: "linea", RPC: "https://1rpc.io/linea", ChainID: 59144, TxType: domain.TxTypeEIP1559,
		NativeSymbol: "ETH", ExplorerURL: "https://lineascan.build",
		WalletName: "Linea Mainnet", ExchangeName: "Linea",
	}
	ArbitrumOne = domain.Chain{
		Name: "arbitrum_one", RPC: "https://1rpc.io/arb", ChainID: 42161, TxType: domain.TxTypeEIP1559,
		NativeSymbol: "ETH", ExplorerURL: "https://arbiscan.io",
		WalletName: "Arbitrum One", ExchangeName: "Arbitrum One",
	}
	Optimism = domain.Chain{
		Name: "optimism", RPC: "https://mainnet.optimism.io", ChainID: 10, TxType: domain.TxTypeEIP1559,
		NativeSymbol: "ETH", ExplorerURL: "https://optimistic.etherscan.io",
		WalletName: "OP Mainnet", ExchangeName: "Optimism",
	}
	Base = domain.Chain{
		Name: "base", RPC: "https://mainnet.base.org", ChainID: 8453, TxType: domain.TxTypeEIP1559,
		NativeSymbol: "ETH", ExplorerURL: "https://basescan.org",
		WalletName: "Base", ExchangeName: "Base",
	}
	ZkSync = domain.Chain{
		Name: "zksync", RPC: "https://mainnet.era.zksync.io", ChainID: 324, TxType: domain.TxTypeEIP1559,
		NativeSymbol: "ETH", ExplorerURL: "https://explorer.zksync.io",
		WalletName: "zkSync Era Mainnet", ExchangeName: "zkSync Era",
	}
	Scroll = domain.Chain{
		Name: "scroll", RPC: "https://rpc.scroll.io", ChainID: 534352, TxType: domain.TxTypeEIP1559,
		NativeSymbol: "ETH", ExplorerURL: "https://scrollscan.com",
		WalletName: "Scroll", ExchangeName: "Scroll",
	}
	Polygon = domain.Chain{
		Name: "polygon", RPC: "https://polygon-rpc.com", ChainID: 137, TxType: domain.TxTypeEIP1559,
		NativeSymbol: "POL", ExplorerURL: "https://polygonscan.com",
		WalletName: "Polygon Mainnet", ExchangeName: "Polygon",
	}
	BSC = domain.Chain{
		Name: "bsc", RPC: "https://bsc-dataseed.binance.org", ChainID: 56, TxType: domain.TxTypeLegacy,
		NativeSymbol: "BNB", ExplorerURL: "https://bscscan.com",
		WalletName: "BNB Chain", ExchangeName: "BSC",
	}
	Taiko = domain.Chain{
		Name: "taiko", RPC: "https://rpc.mainnet.taiko.xyz", ChainID: 167000, TxType: domain.TxTypeEIP1559,
		NativeSymbol: "ETH", ExplorerURL: "https://taikoscan.io",
		WalletName: "Taiko Mainnet", ExchangeName: "Taiko",
	}
)

// DefaultChains returns the built-in network table.
func DefaultChains() *Chains {
	chains, err := NewChains(
		Entry(Ethereum),
		Entry(Linea),
		Entry(ArbitrumOne),
		Entry(Optimism),
		Entry(Base),
		Entry(ZkSync),
		Entry(Scroll),
		Entry(Polygon),
		Entry(BSC),
		Entry(Taiko),
		Alias("eth", Ethereum),
		Alias("mainnet", Ethereum),
		Alias("arbitrum", ArbitrumOne),
		Alias("arb", ArbitrumOne),
		Alias("op", Optimism),
		Alias("zksync_era", ZkSync),
		Alias("matic", Polygon),
		Alias("bnb", BSC),
	)
	if err != nil {
		panic(err)
	}
	return chains
}
