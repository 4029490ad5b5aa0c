package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"walletbot/internal/application"
	"walletbot/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Repository is the journal shared by several runners.
type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			chain_id BIGINT UNSIGNED NOT NULL,
			chain VARCHAR(64) NOT NULL,
			account VARCHAR(42) NOT NULL,
			tx_hash VARCHAR(66) NOT NULL,
			action VARCHAR(32) NOT NULL,
			to_addr VARCHAR(42) NOT NULL,
			token VARCHAR(64) NOT NULL,
			amount VARCHAR(96) NOT NULL,
			value DECIMAL(65,0) NOT NULL,
			nonce BIGINT UNSIGNED NOT NULL,
			gas BIGINT UNSIGNED NOT NULL,
			max_fee DECIMAL(65,0) NOT NULL,
			priority_fee DECIMAL(65,0) NOT NULL,
			tx_type TINYINT UNSIGNED NOT NULL,
			status VARCHAR(16) NOT NULL,
			block_number BIGINT UNSIGNED NOT NULL,
			gas_used BIGINT UNSIGNED NOT NULL,
			error TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (id),
			UNIQUE KEY tx_unique (chain_id, tx_hash),
			KEY tx_account_idx (account, chain_id)
		)`,
		`CREATE TABLE IF NOT EXISTS balances (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			chain_id BIGINT UNSIGNED NOT NULL,
			chain VARCHAR(64) NOT NULL,
			account VARCHAR(42) NOT NULL,
			token VARCHAR(64) NOT NULL,
			token_address VARCHAR(42) NOT NULL,
			decimals TINYINT UNSIGNED NOT NULL,
			wei VARCHAR(80) NOT NULL,
			amount VARCHAR(96) NOT NULL,
			error TEXT NOT NULL,
			observed_at BIGINT NOT NULL,
			PRIMARY KEY (id),
			KEY balances_account_idx (account, chain_id)
		)`,
		`CREATE TABLE IF NOT EXISTS withdrawals (
			id VARCHAR(64) NOT NULL,
			token VARCHAR(64) NOT NULL,
			chain VARCHAR(64) NOT NULL,
			address VARCHAR(42) NOT NULL,
			amount VARCHAR(96) NOT NULL,
			fee VARCHAR(96) NOT NULL,
			state VARCHAR(128) NOT NULL,
			tx_hash VARCHAR(128) NOT NULL,
			completed TINYINT(1) NOT NULL,
			requested_at BIGINT NOT NULL,
			PRIMARY KEY (id)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) RecordTransaction(ctx context.Context, record domain.TxRecord) error {
	ctx, span := startDBSpan(ctx, "mysql.RecordTransaction",
		attribute.Int64("chain.id", int64(record.ChainID)),
		attribute.String("tx.hash", record.TxHash),
	)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			block_number = VALUES(block_number),
			gas_used = VALUES(gas_used),
			error = VALUES(error)`,
		record.ChainID, record.Chain, strings.ToLower(record.Account), strings.ToLower(record.TxHash), record.Action,
		record.To, record.Token, record.Amount, decimalOrZero(record.Value), record.Nonce, record.Gas,
		decimalOrZero(record.MaxFeePerGas), decimalOrZero(record.PriorityFee), record.TxType, string(record.Status),
		record.BlockNumber, record.GasUsed, record.Error, record.CreatedAt.UnixMilli())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Repository) QueryTransactions(ctx context.Context, filter application.TxFilter) ([]domain.TxRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query, args := txQuery(filter)
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
	ctx, span := startDBSpan(ctx, "mysql.StoreBalances", attribute.Int("balance.count", len(snapshots)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO balances (`+balanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		if _, err := stmt.ExecContext(ctx, snap.ChainID, snap.Chain, strings.ToLower(snap.Account), snap.Token,
			snap.TokenAddress, snap.Decimals, snap.Wei, snap.Amount, snap.Error, snap.ObservedAt.UnixMilli()); err != nil {
			_ = tx.Rollback()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *Repository) QueryBalances(ctx context.Context, filter application.BalanceFilter) ([]domain.BalanceSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query, args := balanceQuery(filter)
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
	ctx, span := startDBSpan(ctx, "mysql.RecordWithdrawal", attribute.String("withdrawal.id", withdrawal.ID))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO withdrawals (id, token, chain, address, amount, fee, state, tx_hash, completed, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			state = VALUES(state),
			tx_hash = VALUES(tx_hash),
			completed = VALUES(completed)`,
		withdrawal.ID, withdrawal.Token, withdrawal.Chain, withdrawal.Address, withdrawal.Amount, withdrawal.Fee,
		withdrawal.State, withdrawal.TxHash, withdrawal.Completed, withdrawal.RequestedAt.UnixMilli())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

const (
	txColumns      = "chain_id, chain, account, tx_hash, action, to_addr, token, amount, value, nonce, gas, max_fee, priority_fee, tx_type, status, block_number, gas_used, error, created_at"
	balanceColumns = "chain_id, chain, account, token, token_address, decimals, wei, amount, error, observed_at"
)

// whereClause collects "column = ?" conditions in the order they are added.
type whereClause struct {
	clauses []string
	args    []any
}

func (w *whereClause) eq(column string, value any) {
	w.clauses = append(w.clauses, column+" = ?")
	w.args = append(w.args, value)
}

// build appends the conditions and the newest-first limit to base.
func (w *whereClause) build(base string, limit int) (string, []any) {
	query := base
	if len(w.clauses) > 0 {
		query += " WHERE " + strings.Join(w.clauses, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	return query, append(w.args, normalizeLimit(limit))
}

func txQuery(filter application.TxFilter) (string, []any) {
	var where whereClause
	if filter.Account != "" {
		where.eq("account", strings.ToLower(filter.Account))
	}
	if filter.ChainID != 0 {
		where.eq("chain_id", filter.ChainID)
	}
	if filter.TxHash != "" {
		where.eq("tx_hash", strings.ToLower(filter.TxHash))
	}
	return where.build("SELECT "+txColumns+" FROM transactions", filter.Limit)
}

func balanceQuery(filter application.BalanceFilter) (string, []any) {
	var where whereClause
	if filter.Account != "" {
		where.eq("account", strings.ToLower(filter.Account))
	}
	if filter.ChainID != 0 {
		where.eq("chain_id", filter.ChainID)
	}
	if filter.Token != "" {
		where.eq("token", strings.ToUpper(filter.Token))
	}
	return where.build("SELECT "+balanceColumns+" FROM balances", filter.Limit)
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

// decimalOrZero keeps DECIMAL columns valid for records that never got a fee.
func decimalOrZero(value string) string {
	if value == "" {
		return "0"
	}
	return value
}

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("walletbot/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

