package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"walletbot/internal/domain"
)

// DerivationPath returns m/44'/60'/0'/0/index as BIP-32 child indexes.
func DerivationPath(index uint32) []uint32 {
	return []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart,
		0,
		index,
	}
}

// PrivateKeyFromMnemonic derives the hex private key (0x-prefixed) for the
// given account index.
func PrivateKeyFromMnemonic(phrase string, index uint32) (string, error) {
	raw, err := deriveKey(phrase, index)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(raw), nil
}

func FromMnemonic(phrase string, index uint32) (*Account, error) {
	raw, err := deriveKey(phrase, index)
	if err != nil {
		return nil, err
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: derived key: %v", domain.ErrInvalidArgument, err)
	}
	return fromKey(key, "")
}

func deriveKey(phrase string, index uint32) ([]byte, error) {
	phrase = strings.Join(strings.Fields(phrase), " ")
	if !bip39.IsMnemonicValid(phrase) {
		return nil, fmt.Errorf("%w: invalid mnemonic", domain.ErrInvalidArgument)
	}
	seed := bip39.NewSeed(phrase, "")
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	for _, child := range DerivationPath(index) {
		key, err = key.Derive(child)
		if err != nil {
			return nil, fmt.Errorf("derive %d: %w", child, err)
		}
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	return priv.Serialize(), nil
}
