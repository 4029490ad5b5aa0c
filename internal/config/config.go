package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Chain        string
	RPCOverrides map[string]string
	RPCRateLimit float64

	PrivateKey   string
	Mnemonic     string
	AccountsFile string
	ABIDir       string
	Contracts    map[string]string

	GasPriceLimitGwei   float64
	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
	NonceReservation    bool

	DBDSN      string
	SQLitePath string
	RedisAddr  string

	KafkaBrokers     []string
	KafkaTopicPrefix string
	OtelEndpoint     string
	OtelSampleRatio  float64

	HTTPAddr        string
	ScanInterval    time.Duration
	ScanConcurrency int

	OKX OKXConfig

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

type OKXConfig struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	BaseURL    string
}

// Enabled reports whether exchange credentials are configured.
func (c OKXConfig) Enabled() bool {
	return c.APIKey != "" && c.SecretKey != "" && c.Passphrase != ""
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	cfg := Config{
		Chain:            stringEnv(source, "CHAIN", "linea"),
		PrivateKey:       stringEnv(source, "PRIVATE_KEY", ""),
		Mnemonic:         stringEnv(source, "MNEMONIC", ""),
		AccountsFile:     stringEnv(source, "ACCOUNTS_FILE", ""),
		ABIDir:           stringEnv(source, "ABI_DIR", ""),
		DBDSN:            stringEnv(source, "DB_DSN", ""),
		SQLitePath:       stringEnv(source, "SQLITE_PATH", "data/walletbot.db"),
		RedisAddr:        stringEnv(source, "REDIS_ADDR", ""),
		KafkaTopicPrefix: stringEnv(source, "KAFKA_TOPIC_PREFIX", "walletbot-events"),
		OtelEndpoint:     stringEnv(source, "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		HTTPAddr:         stringEnv(source, "HTTP_ADDR", ":8080"),
		OKX: OKXConfig{
			APIKey:     stringEnv(source, "OKX_API_KEY", ""),
			SecretKey:  stringEnv(source, "OKX_SECRET_KEY", ""),
			Passphrase: stringEnv(source, "OKX_PASSPHRASE", ""),
			BaseURL:    stringEnv(source, "OKX_BASE_URL", "https://www.okx.com"),
		},
		LogLevel:  stringEnv(source, "LOG_LEVEL", "info"),
		LogFormat: stringEnv(source, "LOG_FORMAT", "text"),
		LogFile:   stringEnv(source, "LOG_FILE", ""),
	}

	var err error
	if cfg.RPCOverrides, err = parsePairs(source, "RPC_OVERRIDES"); err != nil {
		return Config{}, err
	}
	if cfg.Contracts, err = parsePairs(source, "CONTRACTS"); err != nil {
		return Config{}, err
	}
	if cfg.RPCRateLimit, err = parseFloatEnv(source, "RPC_RATE_LIMIT", 0); err != nil {
		return Config{}, err
	}
	if cfg.OtelSampleRatio, err = parseFloatEnv(source, "OTEL_SAMPLE_RATIO", 1); err != nil {
		return Config{}, err
	}
	if cfg.GasPriceLimitGwei, err = parseFloatEnv(source, "GAS_PRICE_LIMIT_GWEI", 30); err != nil {
		return Config{}, err
	}
	if cfg.ReceiptTimeout, err = parseDurationEnv(source, "RECEIPT_TIMEOUT", 0); err != nil {
		return Config{}, err
	}
	if cfg.ReceiptPollInterval, err = parseDurationEnv(source, "RECEIPT_POLL_INTERVAL", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.NonceReservation, err = parseBoolEnv(source, "NONCE_RESERVATION", false); err != nil {
		return Config{}, err
	}
	if cfg.ScanInterval, err = parseDurationEnv(source, "SCAN_INTERVAL", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ScanConcurrency, err = parseIntEnv(source, "SCAN_CONCURRENCY", 4); err != nil {
		return Config{}, err
	}
	if cfg.LogMaxSizeMB, err = parseIntEnv(source, "LOG_MAX_SIZE_MB", 100); err != nil {
		return Config{}, err
	}
	if cfg.LogMaxBackups, err = parseIntEnv(source, "LOG_MAX_BACKUPS", 5); err != nil {
		return Config{}, err
	}
	cfg.KafkaBrokers = parseList(source, "KAFKA_BROKERS")

	if cfg.GasPriceLimitGwei <= 0 {
		return Config{}, errors.New("GAS_PRICE_LIMIT_GWEI must be positive")
	}
	if cfg.ReceiptTimeout < 0 {
		return Config{}, errors.New("RECEIPT_TIMEOUT must not be negative")
	}
	if cfg.ScanInterval <= 0 {
		return Config{}, errors.New("SCAN_INTERVAL must be positive")
	}
	if cfg.PrivateKey != "" && cfg.Mnemonic != "" {
		return Config{}, errors.New("PRIVATE_KEY and MNEMONIC are mutually exclusive")
	}
	return cfg, nil
}

func stringEnv(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	return strings.TrimSpace(raw)
}

func parseFloatEnv(source EnvSource, key string, defaultValue float64) (float64, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseIntEnv(source EnvSource, key string, defaultValue int) (int, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseBoolEnv(source EnvSource, key string, defaultValue bool) (bool, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseList(source EnvSource, key string) []string {
	raw, _ := source.Lookup(key)
	var values []string
	for _, item := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(item); value != "" {
			values = append(values, value)
		}
	}
	return values
}

// parsePairs reads "name=value,name=value".
func parsePairs(source EnvSource, key string) (map[string]string, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	pairs := make(map[string]string)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, value, ok := strings.Cut(item, "=")
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("invalid %s entry %q", key, item)
		}
		pairs[name] = value
	}
	return pairs, nil
}
