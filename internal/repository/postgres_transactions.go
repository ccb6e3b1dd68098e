package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/btfbank/bank-api/shared/models"
)

const transactionColumns = `id, type, amount, currency, source_account_id, destination_account_id,
	status, description, reference, recipient_name, failure_reason, idempotency_key,
	initiated_by, created_at, updated_at`

type pgTransactions struct {
	db DBTX
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t                                                  models.Transaction
		source, destination                                sql.NullString
		description, reference, recipient, reason, idemKey sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.Type, &t.Amount, &t.Currency, &source, &destination,
		&t.Status, &description, &reference, &recipient, &reason, &idemKey,
		&t.InitiatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.SourceAccountID = source.String
	t.DestinationAccountID = destination.String
	t.Description = description.String
	t.Reference = reference.String
	t.RecipientName = recipient.String
	t.FailureReason = reason.String
	t.IdempotencyKey = idemKey.String
	return &t, nil
}

func (r *pgTransactions) Create(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.ExecContext(ctx, query,
		txn.ID, txn.Type, txn.Amount, txn.Currency,
		nullString(txn.SourceAccountID), nullString(txn.DestinationAccountID),
		txn.Status, nullString(txn.Description), nullString(txn.Reference),
		nullString(txn.RecipientName), nullString(txn.FailureReason), nullString(txn.IdempotencyKey),
		txn.InitiatedBy, txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return ErrIdempotencyKeyTaken
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// Complete is conditional on the pending status so a record can never leave
// a terminal state.
func (r *pgTransactions) Complete(ctx context.Context, id string) error {
	query := `
		UPDATE transactions
		SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to complete transaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrTransactionNotPending
	}
	return nil
}

func (r *pgTransactions) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *pgTransactions) GetByIdempotencyKey(ctx context.Context, userID, key string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE initiated_by = $1 AND idempotency_key = $2`
	return r.getOne(ctx, query, userID, key)
}

func (r *pgTransactions) getOne(ctx context.Context, query string, args ...any) (*models.Transaction, error) {
	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) || isBadID(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

func (r *pgTransactions) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE source_account_id = $1 OR destination_account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		if isBadID(err) {
			return []models.Transaction{}, nil
		}
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}
