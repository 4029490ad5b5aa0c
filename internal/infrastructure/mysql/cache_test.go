package mysql

import (
	"testing"

	"walletbot/internal/application"
)

func TestTxCacheKeyNormalizes(t *testing.T) {
	a := txCacheKey("3", application.TxFilter{Account: "0xABC", ChainID: 59144})
	b := txCacheKey("3", application.TxFilter{Account: "0xabc", ChainID: 59144, Limit: 0})
	if a != b {
		t.Fatalf("keys differ: %s vs %s", a, b)
	}
	want := "walletbot:tx:v3:chain=59144:account=0xabc:tx=any:limit=100"
	if a != want {
		t.Fatalf("key = %s, want %s", a, want)
	}
}

func TestTxCacheKeyVersioned(t *testing.T) {
	filter := application.TxFilter{TxHash: "0xFF", Limit: 5}
	if txCacheKey("1", filter) == txCacheKey("2", filter) {
		t.Fatal("version must change the key")
	}
}

func TestBalanceCacheKey(t *testing.T) {
	got := balanceCacheKey("0", application.BalanceFilter{Token: "usdc", Limit: 5000})
	want := "walletbot:balances:v0:chain=all:account=any:token=USDC:limit=100"
	if got != want {
		t.Fatalf("key = %s, want %s", got, want)
	}
}

func TestUncachedRepositoryRequiresBase(t *testing.T) {
	if _, err := NewCachedRepository(nil, CacheConfig{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecimalOrZero(t *testing.T) {
	if decimalOrZero("") != "0" || decimalOrZero("12") != "12" {
		t.Fatal("decimalOrZero")
	}
}
