package wallet

import (
	"bufio"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"walletbot/internal/domain"
)

// Account is an EOA with its signing key. The key never leaves the package
// except through PrivateKey for signing.
type Account struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// NewAccount parses a hex private key (optional 0x prefix). When address is
// set it must match the key.
func NewAccount(privateKeyHex, address string) (*Account, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", domain.ErrInvalidArgument, err)
	}
	return fromKey(key, address)
}

func fromKey(key *ecdsa.PrivateKey, address string) (*Account, error) {
	derived := crypto.PubkeyToAddress(key.PublicKey)
	if strings.TrimSpace(address) != "" {
		given, err := domain.ParseAddress(address)
		if err != nil {
			return nil, err
		}
		if given != derived {
			return nil, fmt.Errorf("%w: address %s does not match key", domain.ErrInvalidArgument, given.Hex())
		}
	}
	return &Account{Address: derived, key: key}, nil
}

func (a *Account) PrivateKey() *ecdsa.PrivateKey {
	return a.key
}

func (a *Account) String() string {
	return a.Address.Hex()
}

// LoadAccounts reads one account per line: "<key>[,<address>]" or
// "<mnemonic>[,<index>]". Blank lines and # comments are skipped.
func LoadAccounts(path string) ([]*Account, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var accounts []*Account
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		account, err := parseAccountLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		accounts = append(accounts, account)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func parseAccountLine(line string) (*Account, error) {
	secret, extra, _ := strings.Cut(line, ",")
	secret = strings.TrimSpace(secret)
	extra = strings.TrimSpace(extra)
	if strings.Contains(secret, " ") {
		var index uint64
		if extra != "" {
			parsed, err := strconv.ParseUint(extra, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: derivation index %q", domain.ErrInvalidArgument, extra)
			}
			index = parsed
		}
		return FromMnemonic(secret, uint32(index))
	}
	return NewAccount(secret, extra)
}
