package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/urfave/cli.v1"

	"walletbot/internal/bootstrap"
	"walletbot/internal/config"
	"walletbot/internal/infrastructure/logging"
	"walletbot/internal/infrastructure/telemetry"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

var (
	chainFlag = cli.StringFlag{
		Name:  "chain, c",
		Usage: "registry chain name (defaults to CHAIN)",
	}
	tokenFlag = cli.StringFlag{
		Name:  "token, t",
		Usage: "token symbol or contract address; empty selects the native coin",
	}
	amountFlag = cli.StringFlag{
		Name:  "amount, a",
		Usage: "human amount such as 0.25",
	}
	accountFlag = cli.IntFlag{
		Name:  "account",
		Usage: "index of the signing account in ACCOUNTS_FILE",
	}
)

// state carries what Before sets up for the command actions.
type state struct {
	cfg           config.Config
	logWriter     *logging.RotatingWriter
	stopTracing   telemetry.Shutdown
	signalContext context.Context
	stopSignals   context.CancelFunc
}

func main() {
	st := &state{}
	app := cli.NewApp()
	app.Name = "onchain"
	app.Usage = "send, approve and inspect balances across EVM chains"
	app.Version = fmt.Sprintf("%s (%s, built %s)", version, commit, buildTime)
	app.Before = st.before
	app.After = st.after
	app.Commands = commands(st)

	if err := app.Run(os.Args); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func (st *state) before(c *cli.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	st.cfg = cfg

	writer, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Service:    "onchain",
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		return fmt.Errorf("logging init error: %w", err)
	}
	st.logWriter = writer

	st.stopTracing, err = telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName: "walletbot-onchain",
		Version:     version,
		Endpoint:    cfg.OtelEndpoint,
		SampleRatio: cfg.OtelSampleRatio,
	})
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	}
	st.signalContext, st.stopSignals = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return nil
}

func (st *state) after(c *cli.Context) error {
	if st.stopSignals != nil {
		st.stopSignals()
	}
	if st.stopTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.stopTracing(ctx); err != nil {
			slog.Warn("tracing shutdown error", "err", err)
		}
	}
	if st.logWriter != nil {
		return st.logWriter.Close()
	}
	return nil
}

// run opens the shared services around one command action.
func (st *state) run(withJournal bool, action func(ctx context.Context, c *cli.Context, services *bootstrap.Services) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		services, err := bootstrap.Open(st.cfg, withJournal)
		if err != nil {
			return err
		}
		defer services.Close()
		return action(st.signalContext, c, services)
	}
}
