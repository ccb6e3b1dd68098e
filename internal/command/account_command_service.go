package command

import (
	"context"
	"errors"
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

// Branch identifies the sort code and currency new accounts are opened with.
type Branch struct {
	SortCode string
	Currency string
}

// AccountCommandService writes account state and keeps the read model in sync.
type AccountCommandService struct {
	store  repository.Store
	locks  *lock.Striped
	branch Branch
	notifier
	now func() time.Time
}

func NewAccountCommandService(
	store repository.Store,
	locks *lock.Striped,
	branch Branch,
	views *sharedredis.AccountViews,
	publisher events.Publisher,
) *AccountCommandService {
	return &AccountCommandService{
		store:    store,
		locks:    locks,
		branch:   branch,
		notifier: notifier{views: views, publisher: publisher, logger: logger.Get()},
		now:      time.Now,
	}
}

func (s *AccountCommandService) OpenAccount(ctx context.Context, cmd cqrs.OpenAccountCommand) (*models.AccountView, error) {
	if !cmd.AccountType.Valid() {
		return nil, apperr.InvalidRequest("Account type must be one of current, savings, business")
	}
	if cmd.InitialDeposit < 0 {
		return nil, apperr.InvalidRequest("Initial deposit cannot be negative")
	}
	if cmd.InitialDeposit > maxAmount {
		return nil, apperr.InvalidRequest("Initial deposit must not exceed " + maxAmount.String())
	}
	if _, err := s.store.Users().GetByID(ctx, cmd.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized("User no longer exists")
		}
		return nil, apperr.Internal("Failed to load user", err)
	}

	account := s.newAccount(cmd.UserID, cmd.AccountType)
	var deposit *models.Transaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		var err error
		deposit, err = openAccount(ctx, tx, account, cmd.InitialDeposit, account.CreatedAt)
		return err
	})
	if err != nil {
		return nil, asAppError(err, "Failed to open account")
	}

	s.accountOpened(ctx, account, deposit)
	return models.NewAccountView(account), nil
}

func (s *AccountCommandService) newAccount(userID string, accountType models.AccountType) *models.Account {
	now := s.now().UTC()
	return &models.Account{
		ID:          utils.GenerateID(),
		SortCode:    s.branch.SortCode,
		UserID:      userID,
		AccountType: accountType,
		Currency:    s.branch.Currency,
		Status:      models.AccountStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// accountOpened runs the post-commit side effects of a new account.
func (n notifier) accountOpened(ctx context.Context, account *models.Account, deposit *models.Transaction) {
	n.logger.Info("account opened", logger.AccountID(account.ID), logger.UserID(account.UserID))
	n.views.Set(ctx, account.ID, models.NewAccountView(account))
	n.publish(ctx, events.AccountEventsStream, events.AccountOpened, events.AccountOpenedEvent{
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		UserID:        account.UserID,
		AccountType:   account.AccountType,
	})
	if deposit != nil {
		n.transactionRecorded(ctx, deposit)
	}
}

// ChangeStatus freezes, unfreezes or closes an owned account.
func (s *AccountCommandService) ChangeStatus(ctx context.Context, cmd cqrs.ChangeAccountStatusCommand) (*models.AccountView, error) {
	if !cmd.Status.Valid() {
		return nil, apperr.InvalidRequest("Status must be one of active, frozen, closed")
	}
	account, err := s.store.Accounts().GetByID(ctx, cmd.AccountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(reasonAccountNotFound)
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load account", err)
	}
	if account.UserID != cmd.RequestingUserID {
		return nil, apperr.NotFound(reasonAccountNotFound)
	}
	if !account.Status.CanTransitionTo(cmd.Status) {
		return nil, apperr.InvalidRequest("Cannot change account status from " + string(account.Status) + " to " + string(cmd.Status))
	}

	unlock := s.locks.Lock(account.ID)
	updated, err := s.store.Accounts().UpdateStatus(ctx, account.ID, account.Status, cmd.Status)
	unlock()
	switch {
	case errors.Is(err, repository.ErrStatusChanged):
		return nil, apperr.Conflict("Account status was changed by another request")
	case errors.Is(err, repository.ErrBalanceNotZero):
		return nil, apperr.InvalidRequest("Account balance must be zero before closing")
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.NotFound(reasonAccountNotFound)
	case err != nil:
		return nil, apperr.Internal("Failed to update account status", err)
	}

	s.logger.Info("account status changed",
		logger.AccountID(updated.ID),
		zap.String("from", string(account.Status)),
		zap.String("to", string(updated.Status)),
	)
	view := models.NewAccountView(updated)
	s.views.Set(ctx, updated.ID, view)
	s.publish(ctx, events.AccountEventsStream, events.AccountStatusChanged, events.AccountStatusChangedEvent{
		AccountID: updated.ID,
		UserID:    updated.UserID,
		Status:    updated.Status,
	})
	return view, nil
}

// asAppError passes apperr values through and wraps anything else as internal.
func asAppError(err error, message string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Internal(message, err)
}
