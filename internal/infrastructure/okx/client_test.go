package okx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"walletbot/internal/application"
	"walletbot/internal/domain"
	"walletbot/internal/registry"
)

type exchangeServer struct {
	t         *testing.T
	withdrawn map[string]string
	state     string
}

func (s *exchangeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.t.Errorf("read body: %v", err)
	}
	want := Sign("secret", r.Header.Get("OK-ACCESS-TIMESTAMP"), r.Method, r.URL.RequestURI(), body)
	if r.Header.Get("OK-ACCESS-SIGN") != want {
		writeEnvelope(w, "50113", "Invalid Sign", nil)
		return
	}
	if r.Header.Get("OK-ACCESS-KEY") != "key" || r.Header.Get("OK-ACCESS-PASSPHRASE") != "pass" {
		writeEnvelope(w, "50111", "Invalid OK-ACCESS-KEY", nil)
		return
	}
	switch r.URL.Path {
	case currenciesPath:
		writeEnvelope(w, "0", "", []map[string]any{
			{"ccy": "ETH", "chain": "ETH-ERC20", "minFee": "0.0012"},
			{"ccy": "ETH", "chain": "ETH-Linea", "minFee": "0.0001"},
		})
	case withdrawalPath:
		if err := json.Unmarshal(body, &s.withdrawn); err != nil {
			s.t.Errorf("withdrawal body: %v", err)
		}
		writeEnvelope(w, "0", "", []map[string]string{{"wdId": "67485"}})
	case statusPath:
		if r.URL.Query().Get("wdId") != "67485" {
			writeEnvelope(w, "58127", "unknown withdrawal", nil)
			return
		}
		writeEnvelope(w, "0", "", []map[string]string{{"wdId": "67485", "txId": "0xfeed", "state": s.state}})
	default:
		http.NotFound(w, r)
	}
}

func writeEnvelope(w http.ResponseWriter, code, msg string, data any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": data})
}

func newTestClient(t *testing.T, srv *exchangeServer) *Client {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	client, err := NewClient(Config{BaseURL: ts.URL, APIKey: "key", SecretKey: "secret", Passphrase: "pass"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	client.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return client
}

func TestSignKnownVector(t *testing.T) {
	a := Sign("secret", "2024-03-01T12:00:00.000Z", "get", "/api/v5/asset/currencies", nil)
	b := Sign("secret", "2024-03-01T12:00:00.000Z", "GET", "/api/v5/asset/currencies", nil)
	if a != b || a == "" {
		t.Fatalf("signatures differ: %q %q", a, b)
	}
	if c := Sign("other", "2024-03-01T12:00:00.000Z", "GET", "/api/v5/asset/currencies", nil); c == a {
		t.Fatal("secret must change the signature")
	}
}

func TestWithdrawUsesMinFeeAndNetwork(t *testing.T) {
	srv := &exchangeServer{t: t, state: "Withdrawal complete"}
	client := newTestClient(t, srv)
	amount, _ := domain.NewAmount(0.05, 18)

	id, err := client.Withdraw(context.Background(), application.WithdrawalRequest{
		Token:   "ETH",
		Chain:   registry.Linea,
		Amount:  amount,
		Address: "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf",
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if id != "67485" {
		t.Fatalf("id = %s", id)
	}
	want := map[string]string{
		"ccy": "ETH", "amt": "0.05", "dest": "4", "fee": "0.0001", "chain": "ETH-Linea",
		"toAddr": "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf",
	}
	for k, v := range want {
		if srv.withdrawn[k] != v {
			t.Fatalf("%s = %q, want %q", k, srv.withdrawn[k], v)
		}
	}

	status, err := client.WithdrawalStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Completed || status.TxHash != "0xfeed" {
		t.Fatalf("status = %+v", status)
	}
}

func TestMinFeeUnlisted(t *testing.T) {
	client := newTestClient(t, &exchangeServer{t: t})
	fee, err := client.MinFee(context.Background(), "ETH", "ETH-Base")
	if err != nil || fee != "0" {
		t.Fatalf("fee = %q, %v", fee, err)
	}
}

func TestExchangeErrorCode(t *testing.T) {
	client := newTestClient(t, &exchangeServer{t: t})
	_, err := client.WithdrawalStatus(context.Background(), "missing")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "58127" {
		t.Fatalf("err = %v", err)
	}
}

func TestPendingStatus(t *testing.T) {
	client := newTestClient(t, &exchangeServer{t: t, state: "Pending withdrawal"})
	status, err := client.WithdrawalStatus(context.Background(), "67485")
	if err != nil || status.Completed || status.State != "Pending withdrawal" {
		t.Fatalf("status = %+v, %v", status, err)
	}
}

func TestCredentialsRequired(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "key"}); err == nil {
		t.Fatal("expected error")
	}
}
