package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/btfbank/bank-api/shared/models"
)

const accountColumns = `id, account_number, sort_code, user_id, account_type, balance,
	currency, status, version, created_at, updated_at`

type pgAccounts struct {
	db DBTX
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.AccountNumber, &a.SortCode, &a.UserID, &a.AccountType, &a.Balance,
		&a.Currency, &a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts the account unless its number is already taken. ON CONFLICT
// keeps the surrounding transaction usable after a collision.
func (r *pgAccounts) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (account_number) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		account.ID, account.AccountNumber, account.SortCode, account.UserID, account.AccountType,
		account.Balance, account.Currency, account.Status, account.Version,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAccountNumberTaken
	}
	return nil
}

func (r *pgAccounts) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *pgAccounts) GetByNumber(ctx context.Context, accountNumber, sortCode string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1 AND sort_code = $2`
	return r.getOne(ctx, query, accountNumber, sortCode)
}

func (r *pgAccounts) getOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) || isBadID(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *pgAccounts) ListByUserID(ctx context.Context, userID string) ([]models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		if isBadID(err) {
			return []models.Account{}, nil
		}
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (r *pgAccounts) AdjustBalance(ctx context.Context, id string, delta, minBalance models.Money) (models.Money, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND balance + $2 >= $3
		RETURNING balance
	`
	var balance models.Money
	err := r.db.QueryRowContext(ctx, query, id, delta, minBalance).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if isBadID(err) {
		return 0, ErrNotFound
	}
	if pqCode(err) == pqNumericOutOfRange {
		return 0, ErrBalanceOutOfRange
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to adjust balance: %w", err)
	}

	// No row matched; find out which predicate failed.
	var status models.AccountStatus
	err = r.db.QueryRowContext(ctx, `SELECT status FROM accounts WHERE id = $1`, id).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, ErrNotFound
	case err != nil:
		return 0, fmt.Errorf("failed to classify balance update: %w", err)
	case status != models.AccountStatusActive:
		return 0, ErrAccountNotActive
	default:
		return 0, ErrInsufficientFunds
	}
}

func (r *pgAccounts) UpdateStatus(ctx context.Context, id string, from, to models.AccountStatus) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND ($3 <> 'closed' OR balance = 0)
		RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id, from, to))
	if err == nil {
		return account, nil
	}
	if isBadID(err) {
		return nil, ErrNotFound
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update account status: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != from {
		return nil, ErrStatusChanged
	}
	return nil, ErrBalanceNotZero
}
