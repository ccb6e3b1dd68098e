package repository

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              UUID PRIMARY KEY,
		full_name       TEXT NOT NULL,
		email           TEXT NOT NULL,
		password_hash   TEXT NOT NULL,
		phone           TEXT NOT NULL,
		country         TEXT NOT NULL,
		date_of_birth   DATE NOT NULL,
		referral_code   TEXT,
		id_document_ref TEXT,
		photo_ref       TEXT,
		active          BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (email)`,

	`CREATE TABLE IF NOT EXISTS accounts (
		id             UUID PRIMARY KEY,
		account_number TEXT NOT NULL,
		sort_code      TEXT NOT NULL,
		user_id        UUID NOT NULL REFERENCES users (id),
		account_type   TEXT NOT NULL CHECK (account_type IN ('current', 'savings', 'business')),
		balance        BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		currency       CHAR(3) NOT NULL,
		status         TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'frozen', 'closed')),
		version        BIGINT NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_account_number_key ON accounts (account_number)`,
	`CREATE INDEX IF NOT EXISTS accounts_user_id_idx ON accounts (user_id)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id                     UUID PRIMARY KEY,
		type                   TEXT NOT NULL CHECK (type IN ('deposit', 'withdrawal', 'transfer', 'payment')),
		amount                 BIGINT NOT NULL CHECK (amount > 0),
		currency               CHAR(3) NOT NULL,
		source_account_id      UUID REFERENCES accounts (id),
		destination_account_id UUID REFERENCES accounts (id),
		status                 TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
		description            TEXT,
		reference              TEXT,
		recipient_name         TEXT,
		failure_reason         TEXT,
		idempotency_key        TEXT,
		initiated_by           UUID NOT NULL REFERENCES users (id),
		created_at             TIMESTAMPTZ NOT NULL,
		updated_at             TIMESTAMPTZ NOT NULL,
		CHECK (source_account_id IS NULL OR destination_account_id IS NULL
			OR source_account_id <> destination_account_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS transactions_idempotency_key
		ON transactions (initiated_by, idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS transactions_source_account_idx ON transactions (source_account_id)`,
	`CREATE INDEX IF NOT EXISTS transactions_destination_account_idx ON transactions (destination_account_id)`,
	`CREATE INDEX IF NOT EXISTS transactions_created_at_idx ON transactions (created_at)`,
}

// Migrate creates the tables and indexes if they do not exist yet.
// It is idempotent and runs once at startup.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
