package command

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/btfbank/bank-api/internal/repository"
	"github.com/btfbank/bank-api/shared/apperr"
	"github.com/btfbank/bank-api/shared/events"
	"github.com/btfbank/bank-api/shared/models"
	sharedredis "github.com/btfbank/bank-api/shared/redis"
	"github.com/btfbank/bank-api/shared/utils"
)

const (
	maxAccountNumberAttempts = 5
	failureWriteTimeout      = 5 * time.Second
	initialDepositNote       = "Initial deposit"
)

// maxAmount caps a single movement at 100,000,000.00 so that balances stay
// far from the int64 limit.
const maxAmount models.Money = 100_000_000_00

// Failure reasons stored on failed transactions. They double as the client
// message, and replays map them back to an error kind.
const (
	reasonInsufficientFunds = "Insufficient funds"
	reasonAccountNotActive  = "Account is not active"
	reasonAccountNotFound   = "Account not found"
	reasonBalanceOutOfRange = "Balance would exceed the maximum allowed"
	reasonInternal          = "Internal error"
)

// leg is one balance change within a transaction.
type leg struct {
	accountID string
	delta     models.Money
}

// adjustBalance is the single choke point through which balances change.
// Repository failures are translated into client-facing error kinds.
func adjustBalance(ctx context.Context, accounts repository.AccountRepository, accountID string, delta models.Money) (models.Money, error) {
	balance, err := accounts.AdjustBalance(ctx, accountID, delta, 0)
	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, repository.ErrNotFound):
		return 0, apperr.NotFound(reasonAccountNotFound)
	case errors.Is(err, repository.ErrAccountNotActive):
		return 0, apperr.InvalidRequest(reasonAccountNotActive)
	case errors.Is(err, repository.ErrInsufficientFunds):
		return 0, apperr.InsufficientFunds(reasonInsufficientFunds)
	case errors.Is(err, repository.ErrBalanceOutOfRange):
		return 0, apperr.InvalidRequest(reasonBalanceOutOfRange)
	default:
		return 0, apperr.Internal("Failed to update balance", err)
	}
}

// applyLegs posts every leg in ascending account id order so concurrent
// transfers between the same pair of accounts lock rows in the same order.
func applyLegs(ctx context.Context, accounts repository.AccountRepository, legs []leg) error {
	ordered := append([]leg(nil), legs...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].accountID < ordered[j].accountID })
	for _, l := range ordered {
		if _, err := adjustBalance(ctx, accounts, l.accountID, l.delta); err != nil {
			return err
		}
	}
	return nil
}

func legAccountIDs(legs []leg) []string {
	ids := make([]string, len(legs))
	for i, l := range legs {
		ids[i] = l.accountID
	}
	return ids
}

// postTransaction inserts txn as pending, applies its legs and completes it,
// all inside the caller's unit of work. txn is updated in place.
func postTransaction(ctx context.Context, tx repository.Repositories, txn *models.Transaction, legs []leg) error {
	txn.Status = models.TransactionStatusPending
	if err := tx.Transactions().Create(ctx, txn); err != nil {
		if errors.Is(err, repository.ErrIdempotencyKeyTaken) {
			return err
		}
		return apperr.Internal("Failed to record transaction", err)
	}
	if err := applyLegs(ctx, tx.Accounts(), legs); err != nil {
		return err
	}
	if err := tx.Transactions().Complete(ctx, txn.ID); err != nil {
		return apperr.Internal("Failed to complete transaction", err)
	}
	txn.Status = models.TransactionStatusCompleted
	return nil
}

// openAccount allocates a fresh account number and inserts the account,
// retrying on number collisions. A positive initial deposit is posted in the
// same unit of work.
func openAccount(
	ctx context.Context,
	tx repository.Repositories,
	account *models.Account,
	initialDeposit models.Money,
	now time.Time,
) (*models.Transaction, error) {
	// The unit of work may be retried; start from a clean slate each time.
	account.Balance, account.Version = 0, 0
	created := false
	for attempt := 0; attempt < maxAccountNumberAttempts; attempt++ {
		number, err := utils.GenerateAccountNumber()
		if err != nil {
			return nil, apperr.Internal("Failed to open account", err)
		}
		account.AccountNumber = number
		err = tx.Accounts().Create(ctx, account)
		if errors.Is(err, repository.ErrAccountNumberTaken) {
			continue
		}
		if err != nil {
			return nil, apperr.Internal("Failed to open account", err)
		}
		created = true
		break
	}
	if !created {
		return nil, apperr.Conflict("Could not allocate a unique account number")
	}
	if initialDeposit <= 0 {
		return nil, nil
	}

	deposit := &models.Transaction{
		ID:                   utils.GenerateID(),
		Type:                 models.TransactionTypeDeposit,
		Amount:               initialDeposit,
		Currency:             account.Currency,
		DestinationAccountID: account.ID,
		Description:          initialDepositNote,
		InitiatedBy:          account.UserID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := postTransaction(ctx, tx, deposit, []leg{{accountID: account.ID, delta: initialDeposit}}); err != nil {
		return nil, err
	}
	account.Balance += initialDeposit
	account.Version++
	return deposit, nil
}

// notifier bundles the post-commit side effects shared by the command services.
type notifier struct {
	views     *sharedredis.AccountViews
	publisher events.Publisher
	logger    *zap.Logger
}

func (n notifier) publish(ctx context.Context, stream, eventType string, data any) {
	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(ctx, stream, eventType, data); err != nil {
		n.logger.Warn("failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}

func (n notifier) transactionRecorded(ctx context.Context, txn *models.Transaction) {
	eventType := events.TransactionCompleted
	if txn.Status == models.TransactionStatusFailed {
		eventType = events.TransactionFailed
	}
	n.publish(ctx, events.TransactionEventsStream, eventType, events.NewTransactionRecordedEvent(txn))
}

func (n notifier) invalidate(ctx context.Context, accountIDs ...string) {
	for _, id := range accountIDs {
		n.views.Delete(ctx, id)
	}
}
