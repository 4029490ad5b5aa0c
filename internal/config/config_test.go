package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(EnvMap{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain != "linea" || cfg.GasPriceLimitGwei != 30 || cfg.ReceiptTimeout != 0 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ReceiptPollInterval != 2*time.Second || cfg.SQLitePath != "data/walletbot.db" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.KafkaTopicPrefix != "walletbot-events" || len(cfg.KafkaBrokers) != 0 || cfg.NonceReservation {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.OKX.Enabled() {
		t.Fatal("okx must be disabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(EnvMap{
		"CHAIN":                "arbitrum",
		"RPC_OVERRIDES":        "linea=https://linea.example, base = https://base.example",
		"GAS_PRICE_LIMIT_GWEI": "12.5",
		"RECEIPT_TIMEOUT":      "3m",
		"NONCE_RESERVATION":    "true",
		"KAFKA_BROKERS":        "k1:9092, ,k2:9092",
		"OKX_API_KEY":          "a",
		"OKX_SECRET_KEY":       "b",
		"OKX_PASSPHRASE":       "c",
		"CONTRACTS":            "linea:router=0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain != "arbitrum" || cfg.GasPriceLimitGwei != 12.5 || cfg.ReceiptTimeout != 3*time.Minute {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RPCOverrides["base"] != "https://base.example" || len(cfg.RPCOverrides) != 2 {
		t.Fatalf("overrides = %v", cfg.RPCOverrides)
	}
	if !cfg.NonceReservation || len(cfg.KafkaBrokers) != 2 || !cfg.OKX.Enabled() {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Contracts["linea:router"] != "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1" {
		t.Fatalf("contracts = %v", cfg.Contracts)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]EnvMap{
		"bad float":     {"GAS_PRICE_LIMIT_GWEI": "cheap"},
		"zero limit":    {"GAS_PRICE_LIMIT_GWEI": "0"},
		"bad duration":  {"RECEIPT_TIMEOUT": "soon"},
		"negative wait": {"RECEIPT_TIMEOUT": "-1s"},
		"bad bool":      {"NONCE_RESERVATION": "maybe"},
		"zero interval": {"SCAN_INTERVAL": "0s"},
		"bad override":  {"RPC_OVERRIDES": "linea"},
		"two secrets":   {"PRIVATE_KEY": "0x01", "MNEMONIC": "abandon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(env); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := Load(nil); err == nil {
		t.Fatal("nil source accepted")
	}
}
