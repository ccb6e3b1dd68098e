package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/btfbank/bank-api/internal/repository"
	"github.com/btfbank/bank-api/shared/apperr"
	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/events"
	"github.com/btfbank/bank-api/shared/logger"
	"github.com/btfbank/bank-api/shared/models"
	sharedredis "github.com/btfbank/bank-api/shared/redis"
)

const accountNotFound = "Account not found"

type AccountQueryService struct {
	accounts repository.AccountRepository
	views    *sharedredis.AccountViews
}

func NewAccountQueryService(accounts repository.AccountRepository, views *sharedredis.AccountViews) *AccountQueryService {
	return &AccountQueryService{accounts: accounts, views: views}
}

// GetAccount fetches a single account view and enforces ownership. Accounts
// owned by someone else are reported as missing.
func (s *AccountQueryService) GetAccount(ctx context.Context, q cqrs.GetAccountQuery) (*models.AccountView, error) {
	if view, ok := s.views.Get(ctx, q.AccountID); ok {
		if view.UserID != q.RequestingUserID {
			return nil, apperr.NotFound(accountNotFound)
		}
		return view, nil
	}
	account, err := s.ownedAccount(ctx, q.AccountID, q.RequestingUserID)
	if err != nil {
		return nil, err
	}
	view := models.NewAccountView(account)
	s.views.Set(ctx, account.ID, view)
	return view, nil
}

// GetBalance always reads the store; the cache may lag a committed transfer.
func (s *AccountQueryService) GetBalance(ctx context.Context, q cqrs.GetBalanceQuery) (*models.BalanceView, error) {
	account, err := s.ownedAccount(ctx, q.AccountID, q.RequestingUserID)
	if err != nil {
		return nil, err
	}
	return &models.BalanceView{
		AccountID: account.ID,
		Balance:   account.Balance,
		Currency:  account.Currency,
	}, nil
}

func (s *AccountQueryService) ListAccounts(ctx context.Context, q cqrs.ListAccountsQuery) ([]models.AccountView, error) {
	accounts, err := s.accounts.ListByUserID(ctx, q.UserID)
	if err != nil {
		return nil, apperr.Internal("Failed to list accounts", err)
	}
	views := make([]models.AccountView, len(accounts))
	for i := range accounts {
		views[i] = *models.NewAccountView(&accounts[i])
	}
	return views, nil
}

func (s *AccountQueryService) ownedAccount(ctx context.Context, accountID, userID string) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(accountNotFound)
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load account", err)
	}
	if account.UserID != userID {
		return nil, apperr.NotFound(accountNotFound)
	}
	return account, nil
}

// HandleTransactionEvent is the Redis stream subscriber handler. Completed
// transactions re-warm the cached views of the accounts they touched, so
// reads after a money movement are served from Redis again.
func (s *AccountQueryService) HandleTransactionEvent(ctx context.Context, event events.Event) error {
	if event.Type != events.TransactionCompleted {
		return nil
	}
	var data events.TransactionRecordedEvent
	if err := event.DecodeData(&data); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", event.Type, err)
	}
	for _, id := range []string{data.SourceAccountID, data.DestinationAccountID} {
		if id == "" {
			continue
		}
		if err := s.refresh(ctx, id); err != nil {
			return err
		}
	}
	logger.Get().Debug("account views refreshed", logger.TransactionID(data.TransactionID))
	return nil
}

// HandleAccountEvent keeps cached views in step with status changes made by
// other instances.
func (s *AccountQueryService) HandleAccountEvent(ctx context.Context, event events.Event) error {
	if event.Type != events.AccountStatusChanged && event.Type != events.AccountOpened {
		return nil
	}
	var data struct {
		AccountID string `json:"accountId"`
	}
	if err := event.DecodeData(&data); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", event.Type, err)
	}
	return s.refresh(ctx, data.AccountID)
}

func (s *AccountQueryService) refresh(ctx context.Context, accountID string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Get().Warn("event references unknown account", logger.AccountID(accountID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	s.views.Set(ctx, account.ID, models.NewAccountView(account))
	return nil
}
