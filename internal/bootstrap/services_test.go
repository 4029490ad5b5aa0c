package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"walletbot/internal/config"
	"walletbot/internal/domain"
)

const testKey = "0000000000000000000000000000000000000000000000000000000000000001"

func openTest(t *testing.T, env config.EnvMap, withJournal bool) *Services {
	t.Helper()
	env["SQLITE_PATH"] = filepath.Join(t.TempDir(), "journal.db")
	cfg, err := config.Load(env)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	services, err := Open(cfg, withJournal)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = services.Close() })
	return services
}

func TestOpenDefaults(t *testing.T) {
	services := openTest(t, config.EnvMap{"RPC_OVERRIDES": "linea=http://127.0.0.1:8545"}, true)

	chain, err := services.Chain("")
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if chain.Name != "linea" || chain.RPC != "http://127.0.0.1:8545" {
		t.Fatalf("chain = %+v", chain)
	}
	if services.Journal == nil || services.Producer != nil {
		t.Fatalf("journal = %v producer = %v", services.Journal, services.Producer)
	}
	if err := services.Journal.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if observers := services.Observers(); len(observers) != 1 {
		t.Fatalf("observers = %d", len(observers))
	}
	if _, err := services.Engine(chain, nil); err != nil {
		t.Fatalf("engine: %v", err)
	}
	if _, err := services.Scanner(nil); err != nil {
		t.Fatalf("scanner: %v", err)
	}
}

func TestOpenWithoutJournal(t *testing.T) {
	services := openTest(t, config.EnvMap{}, false)
	if services.Journal != nil || len(services.Observers()) != 0 {
		t.Fatal("journal opened for read-only use")
	}
}

func TestUnknownOverride(t *testing.T) {
	cfg, err := config.Load(config.EnvMap{"RPC_OVERRIDES": "atlantis=http://x"})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if _, err := Open(cfg, false); err == nil {
		t.Fatal("expected error")
	}
}

func TestEngineRequiresRPC(t *testing.T) {
	services := openTest(t, config.EnvMap{}, false)
	if _, err := services.Engine(domain.Chain{Name: "devnet", ChainID: 1337}, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestAccounts(t *testing.T) {
	services := openTest(t, config.EnvMap{"PRIVATE_KEY": "0x" + testKey}, false)
	accounts, err := services.Accounts()
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Address.Hex() != "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf" {
		t.Fatalf("accounts = %v", accounts)
	}

	path := filepath.Join(t.TempDir(), "keys.txt")
	if err := os.WriteFile(path, []byte("# wallets\n"+testKey+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	services = openTest(t, config.EnvMap{"ACCOUNTS_FILE": path}, false)
	if accounts, err = services.Accounts(); err != nil || len(accounts) != 1 {
		t.Fatalf("file accounts = %v err = %v", accounts, err)
	}

	services = openTest(t, config.EnvMap{}, false)
	if _, err := services.Accounts(); err == nil {
		t.Fatal("expected error without accounts")
	}
}

func TestWithdrawalsNeedCredentials(t *testing.T) {
	services := openTest(t, config.EnvMap{}, false)
	if _, err := services.Withdrawals(""); err == nil || !strings.Contains(err.Error(), "OKX_API_KEY") {
		t.Fatalf("err = %v", err)
	}
	services = openTest(t, config.EnvMap{"OKX_API_KEY": "k", "OKX_SECRET_KEY": "s", "OKX_PASSPHRASE": "p"}, false)
	if _, err := services.Withdrawals("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"); err != nil {
		t.Fatalf("withdrawals: %v", err)
	}
}

func TestWithLock(t *testing.T) {
	services := openTest(t, config.EnvMap{}, false)
	ran := false
	err := services.WithLock(context.Background(), "0xABC", 59144, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("ran = %v err = %v", ran, err)
	}
}

func TestTokenArgument(t *testing.T) {
	services := openTest(t, config.EnvMap{}, false)
	chain, err := services.Chain("linea")
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	engine, err := services.Engine(chain, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctx := context.Background()

	for _, value := range []string{"", "eth", "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"} {
		token, err := services.Token(ctx, engine, value)
		if err != nil || !token.IsNative() {
			t.Fatalf("Token(%q) = %v, %v", value, token, err)
		}
	}
	usdc, err := services.Token(ctx, engine, "usdc")
	if err != nil || usdc.Decimals != 6 || usdc.Chain.Name != "linea" {
		t.Fatalf("usdc = %v err = %v", usdc, err)
	}
	known, err := services.Token(ctx, engine, "0x176211869cA2b568f2A7D4EE941E073a821EE1ff")
	if err != nil || known.Symbol != "USDC" {
		t.Fatalf("known = %v err = %v", known, err)
	}
	if _, err := services.Token(ctx, engine, "DOGE"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSpenderResolvesContractNames(t *testing.T) {
	services := openTest(t, config.EnvMap{
		"CONTRACTS": "linea:router=0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
	}, false)
	linea, err := services.Chain("linea")
	if err != nil {
		t.Fatalf("chain: %v", err)
	}

	got, err := services.Spender(linea, "Router")
	if err != nil || got != "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1" {
		t.Fatalf("spender = %q, %v", got, err)
	}
	raw := "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
	if got, err := services.Spender(linea, raw); err != nil || got != raw {
		t.Fatalf("address spender = %q, %v", got, err)
	}
	base, _ := services.Chain("base")
	if _, err := services.Spender(base, "router"); !errors.Is(err, domain.ErrContractNotFound) {
		t.Fatalf("base err = %v", err)
	}
}

func TestOpenRejectsBadContracts(t *testing.T) {
	cfg, err := config.Load(config.EnvMap{"CONTRACTS": "router=0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if _, err := Open(cfg, false); err == nil {
		t.Fatal("expected error")
	}
}
