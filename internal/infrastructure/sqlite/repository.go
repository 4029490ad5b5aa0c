package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"walletbot/internal/application"
	"walletbot/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository is the local journal file used when no shared database is
// configured.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// single writer keeps the file free of SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chain_id INTEGER NOT NULL,
			chain TEXT NOT NULL,
			account TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			action TEXT NOT NULL,
			to_addr TEXT NOT NULL,
			token TEXT NOT NULL,
			amount TEXT NOT NULL,
			value TEXT NOT NULL,
			nonce INTEGER NOT NULL,
			gas INTEGER NOT NULL,
			max_fee TEXT NOT NULL,
			priority_fee TEXT NOT NULL,
			tx_type INTEGER NOT NULL,
			status TEXT NOT NULL,
			block_number INTEGER NOT NULL,
			gas_used INTEGER NOT NULL,
			error TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(chain_id, tx_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS tx_account_idx ON transactions (account)`,
		`CREATE TABLE IF NOT EXISTS balances (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chain_id INTEGER NOT NULL,
			chain TEXT NOT NULL,
			account TEXT NOT NULL,
			token TEXT NOT NULL,
			token_address TEXT NOT NULL,
			decimals INTEGER NOT NULL,
			wei TEXT NOT NULL,
			amount TEXT NOT NULL,
			error TEXT NOT NULL,
			observed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS balances_account_idx ON balances (account, chain_id)`,
		`CREATE TABLE IF NOT EXISTS withdrawals (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			chain TEXT NOT NULL,
			address TEXT NOT NULL,
			amount TEXT NOT NULL,
			fee TEXT NOT NULL,
			state TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			completed INTEGER NOT NULL,
			requested_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordTransaction inserts the record or refreshes its outcome when the
// same hash is journaled again.
func (r *Repository) RecordTransaction(ctx context.Context, record domain.TxRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `INSERT INTO transactions (chain_id, chain, account, tx_hash, action, to_addr, token, amount, value, nonce, gas, max_fee, priority_fee, tx_type, status, block_number, gas_used, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chain_id, tx_hash) DO UPDATE SET
			status = excluded.status,
			block_number = excluded.block_number,
			gas_used = excluded.gas_used,
			error = excluded.error`,
		record.ChainID, record.Chain, record.Account, record.TxHash, record.Action, record.To, record.Token,
		record.Amount, record.Value, record.Nonce, record.Gas, record.MaxFeePerGas, record.PriorityFee,
		record.TxType, string(record.Status), record.BlockNumber, record.GasUsed, record.Error,
		record.CreatedAt.UnixMilli())
	return err
}

func (r *Repository) QueryTransactions(ctx context.Context, filter application.TxFilter) ([]domain.TxRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.Account != "" {
		clauses = append(clauses, "LOWER(account) = ?")
		args = append(args, strings.ToLower(filter.Account))
	}
	if filter.ChainID != 0 {
		clauses = append(clauses, "chain_id = ?")
		args = append(args, filter.ChainID)
	}
	if filter.TxHash != "" {
		clauses = append(clauses, "LOWER(tx_hash) = ?")
		args = append(args, strings.ToLower(filter.TxHash))
	}

	query := `SELECT chain_id, chain, account, tx_hash, action, to_addr, token, amount, value, nonce, gas, max_fee, priority_fee, tx_type, status, block_number, gas_used, error, created_at FROM transactions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, normalizeLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.TxRecord
	for rows.Next() {
		var record domain.TxRecord
		var status string
		var createdAt int64
		if err := rows.Scan(&record.ChainID, &record.Chain, &record.Account, &record.TxHash, &record.Action, &record.To,
			&record.Token, &record.Amount, &record.Value, &record.Nonce, &record.Gas, &record.MaxFeePerGas,
			&record.PriorityFee, &record.TxType, &status, &record.BlockNumber, &record.GasUsed, &record.Error, &createdAt); err != nil {
			return nil, err
		}
		record.Status = domain.TxStatus(status)
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Repository) StoreBalances(ctx context.Context, snapshots []domain.BalanceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO balances (chain_id, chain, account, token, token_address, decimals, wei, amount, error, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		if _, err := stmt.ExecContext(ctx, snap.ChainID, snap.Chain, snap.Account, snap.Token, snap.TokenAddress,
			snap.Decimals, snap.Wei, snap.Amount, snap.Error, snap.ObservedAt.UnixMilli()); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// QueryBalances returns snapshots newest first.
func (r *Repository) QueryBalances(ctx context.Context, filter application.BalanceFilter) ([]domain.BalanceSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.Account != "" {
		clauses = append(clauses, "LOWER(account) = ?")
		args = append(args, strings.ToLower(filter.Account))
	}
	if filter.ChainID != 0 {
		clauses = append(clauses, "chain_id = ?")
		args = append(args, filter.ChainID)
	}
	if filter.Token != "" {
		clauses = append(clauses, "UPPER(token) = ?")
		args = append(args, strings.ToUpper(filter.Token))
	}

	query := `SELECT chain_id, chain, account, token, token_address, decimals, wei, amount, error, observed_at FROM balances`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, normalizeLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []domain.BalanceSnapshot
	for rows.Next() {
		var snap domain.BalanceSnapshot
		var observedAt int64
		if err := rows.Scan(&snap.ChainID, &snap.Chain, &snap.Account, &snap.Token, &snap.TokenAddress,
			&snap.Decimals, &snap.Wei, &snap.Amount, &snap.Error, &observedAt); err != nil {
			return nil, err
		}
		snap.ObservedAt = time.UnixMilli(observedAt).UTC()
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (r *Repository) RecordWithdrawal(ctx context.Context, withdrawal domain.Withdrawal) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	completed := 0
	if withdrawal.Completed {
		completed = 1
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO withdrawals (id, token, chain, address, amount, fee, state, tx_hash, completed, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			tx_hash = excluded.tx_hash,
			completed = excluded.completed`,
		withdrawal.ID, withdrawal.Token, withdrawal.Chain, withdrawal.Address, withdrawal.Amount, withdrawal.Fee,
		withdrawal.State, withdrawal.TxHash, completed, withdrawal.RequestedAt.UnixMilli())
	return err
}

// Withdrawal looks a journaled withdrawal up by exchange id.
func (r *Repository) Withdrawal(ctx context.Context, id string) (domain.Withdrawal, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var w domain.Withdrawal
	var completed int
	var requestedAt int64
	err := r.db.QueryRowContext(ctx, `SELECT id, token, chain, address, amount, fee, state, tx_hash, completed, requested_at FROM withdrawals WHERE id = ?`, id).
		Scan(&w.ID, &w.Token, &w.Chain, &w.Address, &w.Amount, &w.Fee, &w.State, &w.TxHash, &completed, &requestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Withdrawal{}, false, nil
	}
	if err != nil {
		return domain.Withdrawal{}, false, err
	}
	w.Completed = completed != 0
	w.RequestedAt = time.UnixMilli(requestedAt).UTC()
	return w, true, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
