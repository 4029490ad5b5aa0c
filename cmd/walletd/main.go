package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"walletbot/internal/application"
	"walletbot/internal/bootstrap"
	"walletbot/internal/config"
	"walletbot/internal/infrastructure/ethrpc"
	"walletbot/internal/infrastructure/logging"
	"walletbot/internal/infrastructure/telemetry"
	"walletbot/internal/interfaces/httpapi"
	"walletbot/internal/wallet"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// scanLockChain keys the per-account scan session, which spans every chain.
const scanLockChain = 0

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logWriter, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Service:    "walletd",
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		log.Fatalf("logging init error: %v", err)
	}
	if logWriter != nil {
		defer logWriter.Close()
	}

	shutdownTracing, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName: "walletbot-walletd",
		Version:     version,
		Endpoint:    cfg.OtelEndpoint,
		SampleRatio: cfg.OtelSampleRatio,
	})
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				slog.Warn("tracing shutdown error", "err", err)
			}
		}()
	}

	services, err := bootstrap.Open(cfg, true)
	if err != nil {
		log.Fatalf("services error: %v", err)
	}
	defer services.Close()

	accounts, err := services.Accounts()
	if err != nil {
		log.Fatalf("accounts error: %v", err)
	}
	chain, err := services.Chain("")
	if err != nil {
		log.Fatalf("chain error: %v", err)
	}
	rpcClient, err := services.RPC(chain)
	if err != nil {
		log.Fatalf("rpc error: %v", err)
	}

	metrics := httpapi.NewMetrics()
	scanner, err := services.Scanner(metrics)
	if err != nil {
		log.Fatalf("scanner error: %v", err)
	}
	httpServer, err := httpapi.NewServer(services.Journal, rpcClient, chain, services.Chains, services.Tokens, metrics, httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err != nil {
		log.Fatalf("http server error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := httpServer.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("http server error", "err", err)
			cancel()
		}
	}()

	slog.Info("walletd started", "accounts", len(accounts), "chain", chain.Name, "scan_interval", cfg.ScanInterval, "version", version)
	runScans(ctx, scanner, services, rpcClient, chain.Name, metrics, accounts, cfg.ScanInterval)
	slog.Info("walletd stopped")
}

// runScans scans every account once per interval, one account at a time,
// until ctx is done.
func runScans(ctx context.Context, scanner *application.BalanceScanner, services *bootstrap.Services, rpc *ethrpc.Client, chainName string, metrics *httpapi.Metrics, accounts []*wallet.Account, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if price, err := rpc.GasPrice(ctx); err == nil {
			metrics.ObserveGasPrice(chainName, price)
		} else if ctx.Err() == nil {
			slog.Warn("gas price read failed", "chain", chainName, "err", err)
		}

		for _, account := range accounts {
			if ctx.Err() != nil {
				return
			}
			holder := account.Address.Hex()
			err := services.WithLock(ctx, holder, scanLockChain, func(ctx context.Context) error {
				_, err := scanner.Scan(ctx, holder)
				return err
			})
			if err != nil && ctx.Err() == nil {
				slog.Error("balance scan failed", "account", holder, "err", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
