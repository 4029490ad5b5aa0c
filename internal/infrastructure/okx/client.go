package okx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"walletbot/internal/application"
)

const (
	DefaultBaseURL = "https://www.okx.com"

	currenciesPath = "/api/v5/asset/currencies"
	withdrawalPath = "/api/v5/asset/withdrawal"
	statusPath     = "/api/v5/asset/deposit-withdraw-status"

	// on-chain withdrawal destination
	destOnchain     = "4"
	completedMarker = "Withdrawal complete"
)

type Config struct {
	BaseURL    string
	APIKey     string
	SecretKey  string
	Passphrase string
	Timeout    time.Duration
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
}

// Client is a funding account on the exchange. It implements
// application.WithdrawalAPI.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.SecretKey == "" || cfg.Passphrase == "" {
		return nil, errors.New("okx credentials are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
	if cfg.RateLimit > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return client, nil
}

type Currency struct {
	Ccy    string `json:"ccy"`
	Chain  string `json:"chain"`
	MinFee string `json:"minFee"`
	CanWd  bool   `json:"canWd"`
}

// Currencies lists the networks available for ccy (all when empty).
func (c *Client) Currencies(ctx context.Context, ccy string) ([]Currency, error) {
	query := url.Values{}
	if ccy != "" {
		query.Set("ccy", ccy)
	}
	var out []Currency
	if err := c.do(ctx, http.MethodGet, currenciesPath, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MinFee returns the minimum withdrawal fee for the ccy-network pair, or
// "0" when the exchange does not list it.
func (c *Client) MinFee(ctx context.Context, ccy, network string) (string, error) {
	currencies, err := c.Currencies(ctx, ccy)
	if err != nil {
		return "", err
	}
	for _, currency := range currencies {
		if currency.Chain == network {
			return currency.MinFee, nil
		}
	}
	slog.Error("withdrawal fee not listed", "ccy", ccy, "network", network)
	return "0", nil
}

// Withdraw submits an on-chain withdrawal paying the minimum network fee.
func (c *Client) Withdraw(ctx context.Context, req application.WithdrawalRequest) (string, error) {
	network := req.Token + "-" + req.Chain.ExchangeName
	fee, err := c.MinFee(ctx, req.Token, network)
	if err != nil {
		return "", err
	}
	body := map[string]string{
		"ccy":    req.Token,
		"amt":    req.Amount.String(),
		"dest":   destOnchain,
		"toAddr": req.Address,
		"fee":    fee,
		"chain":  network,
	}
	var out []struct {
		WdID string `json:"wdId"`
	}
	if err := c.do(ctx, http.MethodPost, withdrawalPath, nil, body, &out); err != nil {
		return "", err
	}
	if len(out) == 0 || out[0].WdID == "" {
		return "", &Error{Path: withdrawalPath, Message: "withdrawal id missing"}
	}
	return out[0].WdID, nil
}

func (c *Client) WithdrawalStatus(ctx context.Context, id string) (application.WithdrawalStatus, error) {
	query := url.Values{"wdId": []string{id}}
	var out []struct {
		WdID  string `json:"wdId"`
		TxID  string `json:"txId"`
		State string `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, statusPath, query, nil, &out); err != nil {
		return application.WithdrawalStatus{}, err
	}
	if len(out) == 0 {
		return application.WithdrawalStatus{ID: id}, nil
	}
	return application.WithdrawalStatus{
		ID:        id,
		State:     out[0].State,
		TxHash:    out[0].TxID,
		Completed: strings.Contains(out[0].State, completedMarker),
	}, nil
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Path: path, Err: err}
		}
	}
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &Error{Path: path, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return &Error{Path: path, Err: err}
	}
	timestamp := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", c.cfg.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", Sign(c.cfg.SecretKey, timestamp, method, requestPath, payload))
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.cfg.Passphrase)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Path: path, Err: err}
	}
	var decoded envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return &Error{Path: path, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || decoded.Code != "0" {
		return &Error{Path: path, Status: resp.StatusCode, Code: decoded.Code, Message: decoded.Msg}
	}
	if result == nil || len(decoded.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Data, result); err != nil {
		return &Error{Path: path, Err: err}
	}
	return nil
}

// Sign computes base64(HMAC-SHA256(secret, timestamp + method + path + body)).
func Sign(secret, timestamp, method, requestPath string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + requestPath))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type Error struct {
	Path    string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("okx %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("okx %s: code %s status %d: %s", e.Path, e.Code, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
