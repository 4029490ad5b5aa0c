package abistore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"walletbot/internal/domain"
)

func TestLoadBuiltinERC20(t *testing.T) {
	store, err := NewFileStore("", 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	parsed, err := store.Load("ERC20")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, method := range []string{"balanceOf", "transfer", "approve", "allowance", "decimals", "symbol"} {
		if _, ok := parsed.Methods[method]; !ok {
			t.Errorf("missing method %s", method)
		}
	}
	if got := parsed.Methods["balanceOf"].ID; len(got) != 4 || got[0] != 0x70 || got[1] != 0xa0 {
		t.Errorf("balanceOf selector = %x", got)
	}
}

func TestLoadFromDirectoryOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	artifact := `{"abi":[{"inputs":[],"name":"ping","outputs":[],"stateMutability":"nonpayable","type":"function"}]}`
	if err := os.WriteFile(filepath.Join(dir, "router.json"), []byte(artifact), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := NewFileStore(dir, 4)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	parsed, err := store.Load("router")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := parsed.Methods["ping"]; !ok {
		t.Fatal("expected ping method")
	}
	if _, err := store.Load("erc20"); err != nil {
		t.Fatalf("builtin fallback: %v", err)
	}
}

func TestLoadUnknown(t *testing.T) {
	store, _ := NewFileStore(t.TempDir(), 4)
	if _, err := store.Load("missing"); !errors.Is(err, domain.ErrContractNotFound) {
		t.Fatalf("err = %v, want ErrContractNotFound", err)
	}
}

func TestLoadRejectsPathSelectors(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "abis")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	outside := `[{"inputs":[],"name":"ping","outputs":[],"stateMutability":"nonpayable","type":"function"}]`
	if err := os.WriteFile(filepath.Join(root, "secret.json"), []byte(outside), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := NewFileStore(dir, 4)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, name := range []string{"../secret", `..\secret`, "nested/erc20", "..", "a..b"} {
		if _, err := store.Load(name); !errors.Is(err, domain.ErrContractNotFound) {
			t.Errorf("Load(%q) err = %v, want ErrContractNotFound", name, err)
		}
	}
}

func TestContractCachesABI(t *testing.T) {
	store, _ := NewFileStore("", 4)
	contract, err := domain.NewContract("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", "erc20", domain.Chain{Name: "arbitrum_one"})
	if err != nil {
		t.Fatalf("new contract: %v", err)
	}
	first, err := contract.ABI(store)
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	second, err := contract.ABI(nil)
	if err != nil {
		t.Fatalf("cached abi: %v", err)
	}
	if len(first.Methods) != len(second.Methods) {
		t.Fatal("cached abi differs")
	}
}
