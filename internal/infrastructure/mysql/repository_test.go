package mysql

import (
	"fmt"
	"strings"
	"testing"

	"walletbot/internal/application"
)

func TestTxQuery(t *testing.T) {
	cases := []struct {
		name   string
		filter application.TxFilter
		where  string
		args   string
	}{
		{
			name:  "no filter",
			where: "",
			args:  "[100]",
		},
		{
			name:   "account and chain",
			filter: application.TxFilter{Account: "0xABC", ChainID: 59144, Limit: 5},
			where:  " WHERE account = ? AND chain_id = ?",
			args:   "[0xabc 59144 5]",
		},
		{
			name:   "hash only",
			filter: application.TxFilter{TxHash: "0xFF", Limit: 5000},
			where:  " WHERE tx_hash = ?",
			args:   "[0xff 100]",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			query, args := txQuery(tc.filter)
			want := "SELECT " + txColumns + " FROM transactions" + tc.where + " ORDER BY id DESC LIMIT ?"
			if query != want {
				t.Fatalf("query = %q, want %q", query, want)
			}
			if got := fmt.Sprint(args); got != tc.args {
				t.Fatalf("args = %s, want %s", got, tc.args)
			}
			if strings.Count(query, "?") != len(args) {
				t.Fatalf("%d placeholders for %d args", strings.Count(query, "?"), len(args))
			}
		})
	}
}

func TestBalanceQuery(t *testing.T) {
	cases := []struct {
		name   string
		filter application.BalanceFilter
		where  string
		args   string
	}{
		{
			name:  "no filter",
			where: "",
			args:  "[100]",
		},
		{
			name:   "all filters",
			filter: application.BalanceFilter{Account: "0xDEF", ChainID: 8453, Token: "usdc", Limit: 20},
			where:  " WHERE account = ? AND chain_id = ? AND token = ?",
			args:   "[0xdef 8453 USDC 20]",
		},
		{
			name:   "token only",
			filter: application.BalanceFilter{Token: "eth", Limit: -1},
			where:  " WHERE token = ?",
			args:   "[ETH 100]",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			query, args := balanceQuery(tc.filter)
			want := "SELECT " + balanceColumns + " FROM balances" + tc.where + " ORDER BY id DESC LIMIT ?"
			if query != want {
				t.Fatalf("query = %q, want %q", query, want)
			}
			if got := fmt.Sprint(args); got != tc.args {
				t.Fatalf("args = %s, want %s", got, tc.args)
			}
		})
	}
}

func TestColumnsMatchPlaceholders(t *testing.T) {
	if n := len(strings.Split(txColumns, ",")); n != 19 {
		t.Fatalf("transaction columns = %d, want 19", n)
	}
	if n := len(strings.Split(balanceColumns, ",")); n != 10 {
		t.Fatalf("balance columns = %d, want 10", n)
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: 100, -3: 100, 1: 1, 1000: 1000, 1001: 100}
	for in, want := range cases {
		if got := normalizeLimit(in); got != want {
			t.Errorf("normalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNewRepositoryRequiresDSN(t *testing.T) {
	if _, err := NewRepository(""); err == nil {
		t.Fatal("expected error")
	}
}
