package repository

import (
	"context"
	"errors"

	"github.com/btfbank/bank-api/shared/models"
)

var (
	ErrNotFound              = errors.New("record not found")
	ErrEmailTaken            = errors.New("email already registered")
	ErrAccountNumberTaken    = errors.New("account number already in use")
	ErrIdempotencyKeyTaken   = errors.New("idempotency key already used")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrAccountNotActive      = errors.New("account is not active")
	ErrBalanceOutOfRange     = errors.New("balance out of range")
	ErrStatusChanged         = errors.New("account status changed concurrently")
	ErrBalanceNotZero        = errors.New("account balance is not zero")
	ErrTransactionNotPending = errors.New("transaction is not pending")
)

type UserRepository interface {
	// Create returns ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type AccountRepository interface {
	// Create returns ErrAccountNumberTaken on a number collision; callers
	// regenerate the number and try again.
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByNumber(ctx context.Context, accountNumber, sortCode string) (*models.Account, error)
	ListByUserID(ctx context.Context, userID string) ([]models.Account, error)
	// AdjustBalance atomically adds delta to an active account's balance as
	// long as the result stays at or above minBalance. It is the only way a
	// balance ever changes. Failures are ErrNotFound, ErrAccountNotActive or
	// ErrInsufficientFunds.
	AdjustBalance(ctx context.Context, id string, delta, minBalance models.Money) (models.Money, error)
	// UpdateStatus moves an account from one status to another, returning
	// ErrStatusChanged if the account is no longer in from. Closing an account
	// with a non-zero balance fails with ErrBalanceNotZero.
	UpdateStatus(ctx context.Context, id string, from, to models.AccountStatus) (*models.Account, error)
}

type TransactionRepository interface {
	// Create returns ErrIdempotencyKeyTaken when the initiating user already
	// has a transaction with the same idempotency key.
	Create(ctx context.Context, txn *models.Transaction) error
	// Complete moves a pending transaction to completed.
	Complete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*models.Transaction, error)
	// ListByAccountID returns transactions touching the account, newest first.
	ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error)
}

// Repositories groups the repositories bound to one connection or unit of work.
type Repositories interface {
	Users() UserRepository
	Accounts() AccountRepository
	Transactions() TransactionRepository
}

// TxFunc runs inside a unit of work. Returning an error rolls everything back.
// It may be invoked more than once when the store retries a serialization failure.
type TxFunc func(ctx context.Context, tx Repositories) error

// Store is the persistence boundary. Repositories obtained directly from the
// Store run each call on its own; WithinTx makes a group of calls atomic.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close() error
}
