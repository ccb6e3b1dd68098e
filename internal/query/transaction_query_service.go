package query

import (
	"context"
	"errors"

	"github.com/btfbank/bank-api/internal/repository"
	"github.com/btfbank/bank-api/shared/apperr"
	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type TransactionQueryService struct {
	accounts     *AccountQueryService
	transactions repository.TransactionRepository
}

func NewTransactionQueryService(accounts *AccountQueryService, transactions repository.TransactionRepository) *TransactionQueryService {
	return &TransactionQueryService{accounts: accounts, transactions: transactions}
}

// ListTransactions returns a page of an owned account's history, newest first.
func (s *TransactionQueryService) ListTransactions(ctx context.Context, q cqrs.ListTransactionsQuery) (*models.TransactionPage, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return nil, apperr.InvalidRequest("Limit and offset must not be negative")
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if _, err := s.accounts.ownedAccount(ctx, q.AccountID, q.UserID); err != nil {
		return nil, err
	}
	list, err := s.transactions.ListByAccountID(ctx, q.AccountID, q.Limit, q.Offset)
	if err != nil {
		return nil, apperr.Internal("Failed to list transactions", err)
	}
	if list == nil {
		list = []models.Transaction{}
	}
	return &models.TransactionPage{Transactions: list, Limit: q.Limit, Offset: q.Offset}, nil
}

// GetTransaction returns a transaction only when it touches the given owned account.
func (s *TransactionQueryService) GetTransaction(ctx context.Context, q cqrs.GetTransactionQuery) (*models.Transaction, error) {
	if _, err := s.accounts.ownedAccount(ctx, q.AccountID, q.UserID); err != nil {
		return nil, err
	}
	txn, err := s.transactions.GetByID(ctx, q.TransactionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Transaction not found")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load transaction", err)
	}
	if !txn.Touches(q.AccountID) {
		return nil, apperr.NotFound("Transaction not found")
	}
	return txn, nil
}
