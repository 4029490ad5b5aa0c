package storage

import (
	"context"
	"path/filepath"
	"testing"

	"walletbot/internal/infrastructure/sqlite"
)

func TestOpenDefaultsToSQLite(t *testing.T) {
	journal, err := Open(Config{SQLitePath: filepath.Join(t.TempDir(), "walletbot.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer journal.Close()
	if _, ok := journal.(*sqlite.Repository); !ok {
		t.Fatalf("journal = %T", journal)
	}
	if err := journal.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenRequiresBackend(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("expected error")
	}
}
