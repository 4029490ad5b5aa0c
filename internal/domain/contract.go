package domain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABILoader resolves an ABI selector such as "erc20" to a parsed ABI.
type ABILoader interface {
	Load(name string) (abi.ABI, error)
}

// Contract binds a deployed address and ABI selector to a chain. The ABI is
// loaded on first use and kept for the lifetime of the handle.
type Contract struct {
	Address common.Address
	ABIName string
	Chain   Chain

	mu     sync.Mutex
	parsed *abi.ABI
}

func NewContract(address, abiName string, chain Chain) (*Contract, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	return &Contract{Address: addr, ABIName: abiName, Chain: chain}, nil
}

// ParseAddress validates a hex address; the result prints in checksum form.
func ParseAddress(address string) (common.Address, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return common.Address{}, fmt.Errorf("%w: address %q", ErrInvalidArgument, address)
	}
	return common.HexToAddress(address), nil
}

// Checksum returns the EIP-55 form of the address.
func (c *Contract) Checksum() string {
	return c.Address.Hex()
}

func (c *Contract) Equal(other *Contract) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Address == other.Address
}

func (c *Contract) ABI(loader ABILoader) (abi.ABI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parsed != nil {
		return *c.parsed, nil
	}
	if loader == nil {
		return abi.ABI{}, fmt.Errorf("%w: no abi loader for %s", ErrContractNotFound, c.ABIName)
	}
	parsed, err := loader.Load(c.ABIName)
	if err != nil {
		return abi.ABI{}, err
	}
	c.parsed = &parsed
	return parsed, nil
}

func (c *Contract) String() string {
	return fmt.Sprintf("%s@%s", c.Checksum(), c.Chain)
}
