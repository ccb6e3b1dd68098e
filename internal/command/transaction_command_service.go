package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/btfbank/bank-api/internal/lock"
	"github.com/btfbank/bank-api/internal/repository"
	"github.com/btfbank/bank-api/shared/apperr"
	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/events"
	"github.com/btfbank/bank-api/shared/logger"
	"github.com/btfbank/bank-api/shared/models"
	sharedredis "github.com/btfbank/bank-api/shared/redis"
	"github.com/btfbank/bank-api/shared/utils"
)

const (
	maxIdempotencyKeyLength = 255
	maxTextLength           = 255
)

// TransactionCommandService records deposits, withdrawals and transfers.
// Every attempt that reaches the ledger ends as exactly one completed or
// failed transaction record.
type TransactionCommandService struct {
	store repository.Store
	locks *lock.Striped
	notifier
	now func() time.Time
}

func NewTransactionCommandService(
	store repository.Store,
	locks *lock.Striped,
	views *sharedredis.AccountViews,
	publisher events.Publisher,
) *TransactionCommandService {
	return &TransactionCommandService{
		store:    store,
		locks:    locks,
		notifier: notifier{views: views, publisher: publisher, logger: logger.Get()},
		now:      time.Now,
	}
}

func (s *TransactionCommandService) RecordDeposit(ctx context.Context, cmd cqrs.DepositCommand) (*models.Transaction, error) {
	if err := validateMovement(cmd.AccountID, cmd.Amount, cmd.Description, cmd.IdempotencyKey); err != nil {
		return nil, err
	}
	if cmd.IdempotencyKey != "" {
		replayed, ok, err := s.replay(ctx, cmd.UserID, cmd.IdempotencyKey, func(t *models.Transaction) bool {
			return t.Type == models.TransactionTypeDeposit && t.Amount == cmd.Amount && t.DestinationAccountID == cmd.AccountID
		})
		if ok {
			return replayed, err
		}
	}

	account, err := s.ownedAccount(ctx, cmd.AccountID, cmd.UserID)
	if err != nil {
		return nil, err
	}

	txn := s.newTransaction(models.TransactionTypeDeposit, cmd.Amount, account.Currency, cmd.UserID, cmd.IdempotencyKey)
	txn.DestinationAccountID = account.ID
	txn.Description = cmd.Description
	return s.record(ctx, txn, []leg{{accountID: account.ID, delta: cmd.Amount}})
}

func (s *TransactionCommandService) RecordWithdrawal(ctx context.Context, cmd cqrs.WithdrawalCommand) (*models.Transaction, error) {
	if err := validateMovement(cmd.AccountID, cmd.Amount, cmd.Description, cmd.IdempotencyKey); err != nil {
		return nil, err
	}
	if cmd.IdempotencyKey != "" {
		replayed, ok, err := s.replay(ctx, cmd.UserID, cmd.IdempotencyKey, func(t *models.Transaction) bool {
			return t.Type == models.TransactionTypeWithdrawal && t.Amount == cmd.Amount && t.SourceAccountID == cmd.AccountID
		})
		if ok {
			return replayed, err
		}
	}

	account, err := s.ownedAccount(ctx, cmd.AccountID, cmd.UserID)
	if err != nil {
		return nil, err
	}

	txn := s.newTransaction(models.TransactionTypeWithdrawal, cmd.Amount, account.Currency, cmd.UserID, cmd.IdempotencyKey)
	txn.SourceAccountID = account.ID
	txn.Description = cmd.Description
	return s.record(ctx, txn, []leg{{accountID: account.ID, delta: -cmd.Amount}})
}

func (s *TransactionCommandService) RecordTransfer(ctx context.Context, cmd cqrs.TransferCommand) (*models.Transaction, error) {
	if err := validateMovement(cmd.FromAccountID, cmd.Amount, cmd.Reference, cmd.IdempotencyKey); err != nil {
		return nil, err
	}
	if !utils.ValidateAccountNumber(cmd.ToAccountNumber) {
		return nil, apperr.InvalidRequest("Destination account number is invalid")
	}
	if !utils.ValidateSortCode(cmd.ToSortCode) {
		return nil, apperr.InvalidRequest("Destination sort code is invalid")
	}
	if len(cmd.RecipientName) > maxTextLength {
		return nil, apperr.InvalidRequest("Recipient name is too long")
	}
	if cmd.IdempotencyKey != "" {
		replayed, ok, err := s.replay(ctx, cmd.UserID, cmd.IdempotencyKey, func(t *models.Transaction) bool {
			if t.Type != models.TransactionTypeTransfer || t.Amount != cmd.Amount || t.SourceAccountID != cmd.FromAccountID {
				return false
			}
			dest, err := s.store.Accounts().GetByID(ctx, t.DestinationAccountID)
			return err == nil && dest.AccountNumber == cmd.ToAccountNumber && dest.SortCode == cmd.ToSortCode
		})
		if ok {
			return replayed, err
		}
	}

	source, err := s.ownedAccount(ctx, cmd.FromAccountID, cmd.UserID)
	if err != nil {
		return nil, err
	}
	dest, err := s.store.Accounts().GetByNumber(ctx, cmd.ToAccountNumber, cmd.ToSortCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Destination account not found")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load destination account", err)
	}
	if dest.ID == source.ID {
		return nil, apperr.InvalidRequest("Cannot transfer to the same account")
	}
	if dest.Currency != source.Currency {
		return nil, apperr.InvalidRequest("Cross-currency transfers are not supported")
	}

	txn := s.newTransaction(models.TransactionTypeTransfer, cmd.Amount, source.Currency, cmd.UserID, cmd.IdempotencyKey)
	txn.SourceAccountID = source.ID
	txn.DestinationAccountID = dest.ID
	txn.Reference = cmd.Reference
	txn.RecipientName = cmd.RecipientName
	return s.record(ctx, txn, []leg{
		{accountID: source.ID, delta: -cmd.Amount},
		{accountID: dest.ID, delta: cmd.Amount},
	})
}

func validateMovement(accountID string, amount models.Money, text, idempotencyKey string) error {
	switch {
	case strings.TrimSpace(accountID) == "":
		return apperr.InvalidRequest("Account id is required")
	case amount <= 0:
		return apperr.InvalidRequest("Amount must be greater than zero")
	case amount > maxAmount:
		return apperr.InvalidRequest("Amount must not exceed " + maxAmount.String())
	case len(text) > maxTextLength:
		return apperr.InvalidRequest("Description is too long")
	case len(idempotencyKey) > maxIdempotencyKeyLength:
		return apperr.InvalidRequest("Idempotency key is too long")
	}
	return nil
}

func (s *TransactionCommandService) newTransaction(
	txType models.TransactionType,
	amount models.Money,
	currency, userID, idempotencyKey string,
) *models.Transaction {
	now := s.now().UTC()
	return &models.Transaction{
		ID:             utils.GenerateID(),
		Type:           txType,
		Amount:         amount,
		Currency:       currency,
		Status:         models.TransactionStatusPending,
		IdempotencyKey: idempotencyKey,
		InitiatedBy:    userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ownedAccount loads an account the caller owns. Foreign accounts are
// reported as missing so their existence is not revealed.
func (s *TransactionCommandService) ownedAccount(ctx context.Context, accountID, userID string) (*models.Account, error) {
	account, err := s.store.Accounts().GetByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(reasonAccountNotFound)
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load account", err)
	}
	if account.UserID != userID {
		return nil, apperr.NotFound(reasonAccountNotFound)
	}
	return account, nil
}

// replay looks up an earlier transaction with the same idempotency key. ok is
// false when there is none and the request should proceed normally.
func (s *TransactionCommandService) replay(
	ctx context.Context,
	userID, key string,
	matches func(*models.Transaction) bool,
) (txn *models.Transaction, ok bool, err error) {
	existing, err := s.store.Transactions().GetByIdempotencyKey(ctx, userID, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, apperr.Internal("Failed to check idempotency key", err)
	}
	if !matches(existing) {
		return nil, true, apperr.Conflict("Idempotency key was already used for a different request")
	}
	logger.Get().Info("replaying transaction", logger.TransactionID(existing.ID), logger.UserID(userID))
	return existing, true, failureError(existing)
}

// failureError rebuilds the error a failed transaction was originally returned with.
func failureError(txn *models.Transaction) error {
	if txn.Status != models.TransactionStatusFailed {
		return nil
	}
	switch txn.FailureReason {
	case reasonInsufficientFunds:
		return apperr.InsufficientFunds(txn.FailureReason)
	case reasonAccountNotActive, reasonBalanceOutOfRange:
		return apperr.InvalidRequest(txn.FailureReason)
	case reasonAccountNotFound:
		return apperr.NotFound(txn.FailureReason)
	default:
		return apperr.Internal(txn.FailureReason, nil)
	}
}

// record runs the ledger unit of work for txn. On failure nothing from the
// attempt survives and a separate failed record is written instead.
func (s *TransactionCommandService) record(ctx context.Context, txn *models.Transaction, legs []leg) (*models.Transaction, error) {
	accountIDs := legAccountIDs(legs)
	unlock := s.locks.Lock(accountIDs...)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		return postTransaction(ctx, tx, txn, legs)
	})
	unlock()

	if err == nil {
		s.logger.Info("transaction completed",
			logger.TransactionID(txn.ID),
			zap.String("type", string(txn.Type)),
			zap.Int64("amount", int64(txn.Amount)),
		)
		s.invalidate(ctx, accountIDs...)
		s.transactionRecorded(ctx, txn)
		return txn, nil
	}

	if errors.Is(err, repository.ErrIdempotencyKeyTaken) {
		// A concurrent request with the same key committed first.
		existing, lookupErr := s.store.Transactions().GetByIdempotencyKey(ctx, txn.InitiatedBy, txn.IdempotencyKey)
		if lookupErr != nil {
			return nil, apperr.Internal("Failed to load transaction", lookupErr)
		}
		if existing.Type != txn.Type || existing.Amount != txn.Amount ||
			existing.SourceAccountID != txn.SourceAccountID || existing.DestinationAccountID != txn.DestinationAccountID {
			return nil, apperr.Conflict("Idempotency key was already used for a different request")
		}
		return existing, failureError(existing)
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal("Failed to record transaction", err)
	}
	return s.recordFailure(ctx, txn, appErr), appErr
}

// recordFailure persists txn as failed. It runs detached from the request
// context so a client disconnect cannot leave the attempt untraced.
func (s *TransactionCommandService) recordFailure(ctx context.Context, txn *models.Transaction, cause *apperr.Error) *models.Transaction {
	failed := *txn
	failed.Status = models.TransactionStatusFailed
	failed.UpdatedAt = s.now().UTC()
	if cause.Kind == apperr.KindInternal {
		failed.FailureReason = reasonInternal
		s.logger.Error("transaction failed", logger.TransactionID(txn.ID), zap.Error(cause))
	} else {
		failed.FailureReason = cause.Message
		s.logger.Info("transaction rejected", logger.TransactionID(txn.ID), zap.String("reason", cause.Message))
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	err := s.store.WithinTx(writeCtx, func(ctx context.Context, tx repository.Repositories) error {
		return tx.Transactions().Create(ctx, &failed)
	})
	if err != nil {
		s.logger.Error("failed to record failed transaction", logger.TransactionID(failed.ID), zap.Error(err))
		return &failed
	}
	s.transactionRecorded(writeCtx, &failed)
	return &failed
}
