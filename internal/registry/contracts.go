package registry

import (
	"fmt"
	"strings"

	"walletbot/internal/domain"
)

type NamedContract struct {
	Name     string
	Contract *domain.Contract
}

// Contracts holds protocol contract handles by name.
type Contracts struct {
	byName map[string]*domain.Contract
}

func NewContracts(entries ...NamedContract) (*Contracts, error) {
	r := &Contracts{byName: make(map[string]*domain.Contract, len(entries))}
	for _, e := range entries {
		name := normalizeKey(e.Name)
		if name == "" || e.Contract == nil {
			return nil, fmt.Errorf("%w: contract entry without name", domain.ErrInvalidArgument)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate contract %q", domain.ErrInvalidArgument, e.Name)
		}
		r.byName[name] = e.Contract
	}
	return r, nil
}

func (r *Contracts) ByName(name string) (*domain.Contract, error) {
	if c, ok := r.byName[normalizeKey(name)]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrContractNotFound, strings.TrimSpace(name))
}

// ParseContracts builds a table from "chain:name" keys mapped to addresses.
// Each entry's ABI selector is its name.
func ParseContracts(chains *Chains, entries map[string]string) (*Contracts, error) {
	named := make([]NamedContract, 0, len(entries))
	for key, address := range entries {
		chainName, name, ok := strings.Cut(key, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: contract %q must be chain:name", domain.ErrInvalidArgument, key)
		}
		chain, err := chains.Chain(chainName)
		if err != nil {
			return nil, err
		}
		contract, err := domain.NewContract(address, normalizeKey(name), chain)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", key, err)
		}
		named = append(named, NamedContract{Name: contractKey(chain, name), Contract: contract})
	}
	return NewContracts(named...)
}

// On returns the contract registered as name on chain.
func (r *Contracts) On(chain domain.Chain, name string) (*domain.Contract, error) {
	if c, ok := r.byName[contractKey(chain, name)]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s on %s", domain.ErrContractNotFound, strings.TrimSpace(name), chain.Name)
}

func contractKey(chain domain.Chain, name string) string {
	return normalizeKey(chain.Name) + ":" + normalizeKey(name)
}
