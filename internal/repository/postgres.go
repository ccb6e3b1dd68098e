package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/btfbank/bank-api/shared/logger"
)

const maxTxAttempts = 3

const (
	pqUniqueViolation      = "23505"
	pqInvalidTextRep       = "22P02"
	pqNumericOutOfRange    = "22003"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore is the authoritative store backed by lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens and pings a connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) Users() UserRepository               { return &pgUsers{db: s.db} }
func (s *PostgresStore) Accounts() AccountRepository         { return &pgAccounts{db: s.db} }
func (s *PostgresStore) Transactions() TransactionRepository { return &pgTransactions{db: s.db} }

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *PostgresStore) Close() error                   { return s.db.Close() }

// WithinTx runs fn in a database transaction, retrying on serialization
// failures and deadlocks.
func (s *PostgresStore) WithinTx(ctx context.Context, fn TxFunc) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !isRetryable(err) || ctx.Err() != nil {
			return err
		}
		logger.Get().Warn("retrying unit of work", zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

func (s *PostgresStore) runTx(ctx context.Context, fn TxFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &pgRepos{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Get().Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgRepos struct {
	db DBTX
}

func (r *pgRepos) Users() UserRepository               { return &pgUsers{db: r.db} }
func (r *pgRepos) Accounts() AccountRepository         { return &pgAccounts{db: r.db} }
func (r *pgRepos) Transactions() TransactionRepository { return &pgTransactions{db: r.db} }

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isRetryable(err error) bool {
	switch pqCode(err) {
	case pqSerializationFailure, pqDeadlockDetected:
		return true
	}
	return false
}

// isBadID reports whether Postgres rejected a malformed UUID parameter.
func isBadID(err error) bool {
	return pqCode(err) == pqInvalidTextRep
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
