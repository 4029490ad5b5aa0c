package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"walletbot/internal/application"
	"walletbot/internal/domain"
)

type Store interface {
	QueryTransactions(ctx context.Context, filter application.TxFilter) ([]domain.TxRecord, error)
	QueryBalances(ctx context.Context, filter application.BalanceFilter) ([]domain.BalanceSnapshot, error)
	Ping(ctx context.Context) error
}

type RPCStatus interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

type ChainDirectory interface {
	Chain(name string) (domain.Chain, error)
	List() []domain.Chain
}

type TokenDirectory interface {
	ByChain(chain domain.Chain) []*domain.Token
	List() []*domain.Token
}

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type Server struct {
	store     Store
	rpc       RPCStatus
	chain     domain.Chain
	chains    ChainDirectory
	tokens    TokenDirectory
	metrics   *Metrics
	buildInfo BuildInfo
}

// NewServer builds the status API. chain is the network rpc talks to.
func NewServer(store Store, rpc RPCStatus, chain domain.Chain, chains ChainDirectory, tokens TokenDirectory, metrics *Metrics, buildInfo BuildInfo) (*Server, error) {
	if store == nil || rpc == nil || chains == nil || tokens == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{
		store:     store,
		rpc:       rpc,
		chain:     chain,
		chains:    chains,
		tokens:    tokens,
		metrics:   metrics,
		buildInfo: buildInfo,
	}, nil
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/chains", s.handleChains)
	mux.HandleFunc("/tokens", s.handleTokens)
	mux.HandleFunc("/transactions", s.handleTransactions)
	mux.HandleFunc("/balances", s.handleBalances)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/version", s.handleVersion)
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("status api listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		slog.Warn("journal not ready", "err", err)
		respondError(w, http.StatusServiceUnavailable, "journal not ready")
		return
	}
	price, err := s.rpc.GasPrice(ctx)
	if err != nil {
		slog.Warn("rpc not ready", "chain", s.chain.Name, "err", err)
		respondError(w, http.StatusServiceUnavailable, "rpc not ready")
		return
	}
	s.metrics.ObserveGasPrice(s.chain.Name, price)
	block, err := s.rpc.LatestBlockNumber(ctx)
	if err != nil {
		slog.Warn("rpc not ready", "chain", s.chain.Name, "err", err)
		respondError(w, http.StatusServiceUnavailable, "rpc not ready")
		return
	}
	respondJSON(w, http.StatusOK, readyView{Status: "ready", Chain: s.chain.Name, Block: block})
}

type readyView struct {
	Status string `json:"status"`
	Chain  string `json:"chain"`
	Block  uint64 `json:"block"`
}

type chainView struct {
	Name         string `json:"name"`
	ChainID      uint64 `json:"chain_id"`
	TxType       uint8  `json:"tx_type"`
	NativeSymbol string `json:"native_symbol"`
	ExplorerURL  string `json:"explorer_url,omitempty"`
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	chains := s.chains.List()
	views := make([]chainView, 0, len(chains))
	for _, chain := range chains {
		views = append(views, chainView{
			Name:         chain.Name,
			ChainID:      chain.ChainID,
			TxType:       uint8(chain.TxType),
			NativeSymbol: chain.NativeSymbol,
			ExplorerURL:  chain.ExplorerURL,
		})
	}
	respondJSON(w, http.StatusOK, views)
}

type tokenView struct {
	Symbol   string `json:"symbol"`
	Chain    string `json:"chain"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Kind     string `json:"kind"`
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.tokens.List()
	if name := r.URL.Query().Get("chain"); name != "" {
		chain, err := s.chains.Chain(name)
		if err != nil {
			respondError(w, http.StatusNotFound, "unknown chain")
			return
		}
		tokens = s.tokens.ByChain(chain)
	}
	views := make([]tokenView, 0, len(tokens))
	for _, token := range tokens {
		views = append(views, tokenView{
			Symbol:   token.Symbol,
			Chain:    token.Chain.Name,
			Address:  token.Address.Hex(),
			Decimals: token.Decimals,
			Kind:     token.Kind.String(),
		})
	}
	respondJSON(w, http.StatusOK, views)
}

type txView struct {
	ChainID      uint64 `json:"chain_id"`
	Chain        string `json:"chain"`
	Account      string `json:"account"`
	TxHash       string `json:"tx_hash"`
	Action       string `json:"action"`
	To           string `json:"to"`
	Token        string `json:"token,omitempty"`
	Amount       string `json:"amount,omitempty"`
	Value        string `json:"value,omitempty"`
	Nonce        uint64 `json:"nonce"`
	Gas          uint64 `json:"gas"`
	MaxFeePerGas string `json:"max_fee_per_gas,omitempty"`
	PriorityFee  string `json:"priority_fee,omitempty"`
	TxType       uint8  `json:"tx_type"`
	Status       string `json:"status"`
	BlockNumber  uint64 `json:"block_number,omitempty"`
	GasUsed      uint64 `json:"gas_used,omitempty"`
	Error        string `json:"error,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	chainID, err := s.parseChain(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.store.QueryTransactions(r.Context(), application.TxFilter{
		Account: strings.ToLower(r.URL.Query().Get("account")),
		ChainID: chainID,
		TxHash:  strings.ToLower(r.URL.Query().Get("tx_hash")),
		Limit:   limit,
	})
	if err != nil {
		slog.Error("query transactions failed", "err", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	views := make([]txView, 0, len(records))
	for _, rec := range records {
		views = append(views, txView{
			ChainID:      rec.ChainID,
			Chain:        rec.Chain,
			Account:      rec.Account,
			TxHash:       rec.TxHash,
			Action:       rec.Action,
			To:           rec.To,
			Token:        rec.Token,
			Amount:       rec.Amount,
			Value:        rec.Value,
			Nonce:        rec.Nonce,
			Gas:          rec.Gas,
			MaxFeePerGas: rec.MaxFeePerGas,
			PriorityFee:  rec.PriorityFee,
			TxType:       rec.TxType,
			Status:       string(rec.Status),
			BlockNumber:  rec.BlockNumber,
			GasUsed:      rec.GasUsed,
			Error:        rec.Error,
			CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, views)
}

type balanceView struct {
	ChainID      uint64 `json:"chain_id"`
	Chain        string `json:"chain"`
	Account      string `json:"account"`
	Token        string `json:"token"`
	TokenAddress string `json:"token_address"`
	Decimals     uint8  `json:"decimals"`
	Wei          string `json:"wei"`
	Amount       string `json:"amount"`
	Error        string `json:"error,omitempty"`
	ObservedAt   string `json:"observed_at"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	chainID, err := s.parseChain(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	snapshots, err := s.store.QueryBalances(r.Context(), application.BalanceFilter{
		Account: strings.ToLower(r.URL.Query().Get("account")),
		ChainID: chainID,
		Token:   r.URL.Query().Get("token"),
		Limit:   limit,
	})
	if err != nil {
		slog.Error("query balances failed", "err", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	views := make([]balanceView, 0, len(snapshots))
	for _, snap := range snapshots {
		views = append(views, balanceView{
			ChainID:      snap.ChainID,
			Chain:        snap.Chain,
			Account:      snap.Account,
			Token:        snap.Token,
			TokenAddress: snap.TokenAddress,
			Decimals:     snap.Decimals,
			Wei:          snap.Wei,
			Amount:       snap.Amount,
			Error:        snap.Error,
			ObservedAt:   snap.ObservedAt.UTC().Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	snap := s.metrics.Snapshot()

	fmt.Fprintf(w, "walletbot_uptime_seconds %.0f\n", time.Since(snap.StartTime).Seconds())
	fmt.Fprintf(w, "walletbot_tx_sent_total %d\n", snap.TxSent)
	fmt.Fprintf(w, "walletbot_tx_failed_total %d\n", snap.TxFailed)
	fmt.Fprintf(w, "walletbot_tx_reverted_total %d\n", snap.TxReverted)
	chains := make([]string, 0, len(snap.TxByChain))
	for chain := range snap.TxByChain {
		chains = append(chains, chain)
	}
	sort.Strings(chains)
	for _, chain := range chains {
		fmt.Fprintf(w, "walletbot_tx_sent{chain=%q} %d\n", chain, snap.TxByChain[chain])
	}
	fmt.Fprintf(w, "walletbot_balance_scans_total %d\n", snap.BalanceScans)
	fmt.Fprintf(w, "walletbot_balances_stored_total %d\n", snap.BalancesStored)
	fmt.Fprintf(w, "walletbot_balance_scan_failures_total %d\n", snap.ScanFailures)
	if !snap.LastScan.IsZero() {
		fmt.Fprintf(w, "walletbot_last_balance_scan_timestamp %d\n", snap.LastScan.Unix())
	}
	if snap.LastGasChain != "" {
		fmt.Fprintf(w, "walletbot_gas_price_gwei{chain=%q} %g\n", snap.LastGasChain, snap.LastGasGwei)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

// parseChain accepts a registry name or a numeric chain id; empty means any.
func (s *Server) parseChain(r *http.Request) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("chain"))
	if raw == "" {
		return 0, nil
	}
	if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return id, nil
	}
	chain, err := s.chains.Chain(raw)
	if err != nil {
		return 0, errors.New("unknown chain")
	}
	return chain.ChainID, nil
}

func parseLimit(r *http.Request) (int, error) {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return 0, errors.New("invalid limit")
		}
		return value, nil
	}
	return 100, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
