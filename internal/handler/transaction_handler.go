package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/middleware"
	"github.com/btfbank/bank-api/shared/models"
)

const idempotencyKeyHeader = "Idempotency-Key"

// TransactionCommander defines the write-side operations used by TransactionHandler.
// On a ledger failure they return the failed record alongside the error.
type TransactionCommander interface {
	RecordDeposit(ctx context.Context, cmd cqrs.DepositCommand) (*models.Transaction, error)
	RecordWithdrawal(ctx context.Context, cmd cqrs.WithdrawalCommand) (*models.Transaction, error)
	RecordTransfer(ctx context.Context, cmd cqrs.TransferCommand) (*models.Transaction, error)
}

// TransactionQuerier defines the read-side operations used by TransactionHandler.
type TransactionQuerier interface {
	ListTransactions(ctx context.Context, q cqrs.ListTransactionsQuery) (*models.TransactionPage, error)
	GetTransaction(ctx context.Context, q cqrs.GetTransactionQuery) (*models.Transaction, error)
}

type TransactionHandler struct {
	commands TransactionCommander
	queries  TransactionQuerier
}

type MovementRequest struct {
	Amount      models.Money `json:"amount" validate:"gt=0"`
	Description string       `json:"description" validate:"max=255"`
}

type TransferRequest struct {
	ToAccountNumber string       `json:"toAccountNumber" validate:"required,len=11"`
	ToSortCode      string       `json:"toSortCode" validate:"required,len=8"`
	Amount          models.Money `json:"amount" validate:"gt=0"`
	Reference       string       `json:"reference" validate:"max=255"`
	RecipientName   string       `json:"recipientName" validate:"max=255"`
}

type ListTransactionsRequest struct {
	Limit  int `form:"limit" validate:"gte=0,lte=100"`
	Offset int `form:"offset" validate:"gte=0"`
}

func NewTransactionHandler(commands TransactionCommander, queries TransactionQuerier) *TransactionHandler {
	return &TransactionHandler{commands: commands, queries: queries}
}

func (h *TransactionHandler) Deposit(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	req, ok := bindMovement(c)
	if !ok {
		return
	}

	txn, err := h.commands.RecordDeposit(c.Request.Context(), cqrs.DepositCommand{
		AccountID:      c.Param("accountId"),
		UserID:         userID,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: c.GetHeader(idempotencyKeyHeader),
	})
	respondWithTransaction(c, txn, err)
}

func (h *TransactionHandler) Withdraw(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	req, ok := bindMovement(c)
	if !ok {
		return
	}

	txn, err := h.commands.RecordWithdrawal(c.Request.Context(), cqrs.WithdrawalCommand{
		AccountID:      c.Param("accountId"),
		UserID:         userID,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: c.GetHeader(idempotencyKeyHeader),
	})
	respondWithTransaction(c, txn, err)
}

func (h *TransactionHandler) Transfer(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	txn, err := h.commands.RecordTransfer(c.Request.Context(), cqrs.TransferCommand{
		FromAccountID:   c.Param("accountId"),
		UserID:          userID,
		ToAccountNumber: req.ToAccountNumber,
		ToSortCode:      req.ToSortCode,
		Amount:          req.Amount,
		Reference:       req.Reference,
		RecipientName:   req.RecipientName,
		IdempotencyKey:  c.GetHeader(idempotencyKeyHeader),
	})
	respondWithTransaction(c, txn, err)
}

func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req ListTransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	page, err := h.queries.ListTransactions(c.Request.Context(), cqrs.ListTransactionsQuery{
		AccountID: c.Param("accountId"),
		UserID:    userID,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	txn, err := h.queries.GetTransaction(c.Request.Context(), cqrs.GetTransactionQuery{
		TransactionID: c.Param("transactionId"),
		AccountID:     c.Param("accountId"),
		UserID:        userID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

func bindMovement(c *gin.Context) (*MovementRequest, bool) {
	var req MovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return nil, false
	}
	return &req, true
}

// respondWithTransaction renders the outcome of a money movement. A failed
// attempt still returns the record that traces it.
func respondWithTransaction(c *gin.Context, txn *models.Transaction, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, txn)
	case txn != nil:
		middleware.RespondWithFailedTransaction(c, err, txn)
	default:
		middleware.RespondWithAppError(c, err)
	}
}
