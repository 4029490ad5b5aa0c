// Package bootstrap wires configuration into the engine, journal, notification
// sink and exchange client shared by the commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"walletbot/internal/application"
	"walletbot/internal/config"
	"walletbot/internal/domain"
	"walletbot/internal/infrastructure/abistore"
	"walletbot/internal/infrastructure/ethrpc"
	"walletbot/internal/infrastructure/kafka"
	"walletbot/internal/infrastructure/locking"
	"walletbot/internal/infrastructure/okx"
	"walletbot/internal/infrastructure/storage"
	"walletbot/internal/registry"
	"walletbot/internal/wallet"
)

const (
	rpcTimeout         = 30 * time.Second
	journalCacheTTL    = time.Minute
	defaultAccountSlot = 0
)

type Services struct {
	Config    config.Config
	Chains    *registry.Chains
	Tokens    *registry.Tokens
	Contracts *registry.Contracts
	ABIs      *abistore.FileStore
	Journal   application.Journal
	// Producer is nil when KAFKA_BROKERS is unset.
	Producer *kafka.Producer
	Locker   locking.Locker

	nonces application.NonceSource
	redis  *redis.Client
}

// Open builds the long-lived dependencies. The journal is opened only when
// withJournal is set so read-only commands do not create a database file.
func Open(cfg config.Config, withJournal bool) (*Services, error) {
	chains, err := registry.DefaultChains().WithRPC(cfg.RPCOverrides)
	if err != nil {
		return nil, fmt.Errorf("rpc overrides: %w", err)
	}
	tokens, err := registry.DefaultTokens(chains)
	if err != nil {
		return nil, err
	}
	contracts, err := registry.ParseContracts(chains, cfg.Contracts)
	if err != nil {
		return nil, fmt.Errorf("contracts: %w", err)
	}
	abis, err := abistore.NewFileStore(cfg.ABIDir, 0)
	if err != nil {
		return nil, err
	}
	s := &Services{
		Config:    cfg,
		Chains:    chains,
		Tokens:    tokens,
		Contracts: contracts,
		ABIs:      abis,
		nonces:    application.FreshNonces{},
		Locker:    locking.NewLocalLocker(),
	}
	if cfg.NonceReservation {
		s.nonces = application.NewReservingNonces()
	}

	if cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		locker, err := locking.NewRedisLocker(s.redis, locking.RedisConfig{})
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Locker = locker
	}

	if withJournal {
		journal, err := storage.Open(storage.Config{
			DSN:        cfg.DBDSN,
			SQLitePath: cfg.SQLitePath,
			RedisAddr:  cfg.RedisAddr,
			CacheTTL:   journalCacheTTL,
		})
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Journal = journal
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:     cfg.KafkaBrokers,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Chains:      chains,
		})
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Producer = producer
	}
	return s, nil
}

func (s *Services) Chain(name string) (domain.Chain, error) {
	if name == "" {
		name = s.Config.Chain
	}
	return s.Chains.Chain(name)
}

func (s *Services) RPC(chain domain.Chain) (*ethrpc.Client, error) {
	if chain.RPC == "" {
		return nil, fmt.Errorf("%w: no rpc configured for %s", domain.ErrInvalidArgument, chain)
	}
	return ethrpc.NewClient(ethrpc.Config{
		URL:       chain.RPC,
		RateLimit: s.Config.RPCRateLimit,
		Timeout:   rpcTimeout,
	})
}

// Observers returns the journal and notification sink as transaction
// observers, followed by extra.
func (s *Services) Observers(extra ...application.TxObserver) []application.TxObserver {
	var observers []application.TxObserver
	if s.Journal != nil {
		observers = append(observers, application.TxRecorder{Journal: s.Journal})
	}
	if s.Producer != nil {
		observers = append(observers, s.Producer)
	}
	return append(observers, extra...)
}

// Engine binds an engine for account on chain. account may be nil.
func (s *Services) Engine(chain domain.Chain, account *wallet.Account, extra ...application.TxObserver) (*application.Onchain, error) {
	client, err := s.RPC(chain)
	if err != nil {
		return nil, err
	}
	return application.NewOnchain(client, chain, account, s.ABIs, s.Tokens, application.OnchainConfig{
		GasPriceLimitGwei:   s.Config.GasPriceLimitGwei,
		ReceiptTimeout:      s.Config.ReceiptTimeout,
		ReceiptPollInterval: s.Config.ReceiptPollInterval,
	},
		application.WithNonceSource(s.nonces),
		application.WithObservers(s.Observers(extra...)...),
	)
}

// Token resolves a command-line token argument on engine's chain: empty or
// the native symbol selects the native coin, 0x values are contract addresses
// and anything else is a registry symbol.
func (s *Services) Token(ctx context.Context, engine *application.Onchain, value string) (*domain.Token, error) {
	value = strings.TrimSpace(value)
	chain := engine.Chain()
	native := s.Tokens.Native(chain)
	if value == "" || native.Matches(value) {
		return native, nil
	}
	if strings.HasPrefix(strings.ToLower(value), "0x") {
		return engine.ResolveToken(ctx, value)
	}
	return s.Tokens.BySymbol(value, chain)
}

// Spender resolves an address argument on chain: 0x values pass through and
// anything else names a CONTRACTS entry.
func (s *Services) Spender(chain domain.Chain, value string) (string, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(strings.ToLower(value), "0x") {
		return value, nil
	}
	contract, err := s.Contracts.On(chain, value)
	if err != nil {
		return "", err
	}
	return contract.Checksum(), nil
}

// Accounts resolves PRIVATE_KEY, MNEMONIC and ACCOUNTS_FILE in that order.
func (s *Services) Accounts() ([]*wallet.Account, error) {
	switch {
	case s.Config.PrivateKey != "":
		account, err := wallet.NewAccount(s.Config.PrivateKey, "")
		if err != nil {
			return nil, err
		}
		return []*wallet.Account{account}, nil
	case s.Config.Mnemonic != "":
		account, err := wallet.FromMnemonic(s.Config.Mnemonic, defaultAccountSlot)
		if err != nil {
			return nil, err
		}
		return []*wallet.Account{account}, nil
	case s.Config.AccountsFile != "":
		return wallet.LoadAccounts(s.Config.AccountsFile)
	default:
		return nil, errors.New("no account configured: set PRIVATE_KEY, MNEMONIC or ACCOUNTS_FILE")
	}
}

func (s *Services) Scanner(observer application.ScanObserver) (*application.BalanceScanner, error) {
	var (
		store     application.BalanceStore
		publisher application.BalancePublisher
	)
	if s.Journal != nil {
		store = s.Journal
	}
	if s.Producer != nil {
		publisher = s.Producer
	}
	readers := func(chain domain.Chain) (application.BalanceReader, error) {
		engine, err := s.Engine(chain, nil)
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
	return application.NewBalanceScanner(s.Chains.List(), s.Tokens, readers, store, publisher, observer, application.ScannerConfig{
		Concurrency: s.Config.ScanConcurrency,
	})
}

// Withdrawals requires OKX credentials. defaultAddress receives funds when a
// withdrawal names no address.
func (s *Services) Withdrawals(defaultAddress string) (*application.Withdrawals, error) {
	if !s.Config.OKX.Enabled() {
		return nil, errors.New("exchange withdrawals require OKX_API_KEY, OKX_SECRET_KEY and OKX_PASSPHRASE")
	}
	client, err := okx.NewClient(okx.Config{
		BaseURL:    s.Config.OKX.BaseURL,
		APIKey:     s.Config.OKX.APIKey,
		SecretKey:  s.Config.OKX.SecretKey,
		Passphrase: s.Config.OKX.Passphrase,
	})
	if err != nil {
		return nil, err
	}
	var (
		store     application.WithdrawalStore
		publisher application.WithdrawalPublisher
	)
	if s.Journal != nil {
		store = s.Journal
	}
	if s.Producer != nil {
		publisher = s.Producer
	}
	return application.NewWithdrawals(client, store, publisher, application.WithdrawalsConfig{
		DefaultAddress: defaultAddress,
	})
}

// WithLock runs fn while holding the submission lock for account on chain.
func (s *Services) WithLock(ctx context.Context, account string, chainID uint64, fn func(context.Context) error) error {
	unlock, err := s.Locker.Lock(ctx, locking.Key(account, chainID))
	if err != nil {
		return fmt.Errorf("lock %s: %w", account, err)
	}
	defer unlock()
	return fn(ctx)
}

func (s *Services) Close() error {
	var errs []error
	if s.Producer != nil {
		errs = append(errs, s.Producer.Close())
	}
	if s.Journal != nil {
		errs = append(errs, s.Journal.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("shutdown error", "err", err)
		return err
	}
	return nil
}
