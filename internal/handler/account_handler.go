package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/middleware"
	"github.com/btfbank/bank-api/shared/models"
)

// AccountCommander defines the write-side operations used by AccountHandler.
type AccountCommander interface {
	OpenAccount(ctx context.Context, cmd cqrs.OpenAccountCommand) (*models.AccountView, error)
	ChangeStatus(ctx context.Context, cmd cqrs.ChangeAccountStatusCommand) (*models.AccountView, error)
}

// AccountQuerier defines the read-side operations used by AccountHandler.
type AccountQuerier interface {
	GetAccount(ctx context.Context, q cqrs.GetAccountQuery) (*models.AccountView, error)
	GetBalance(ctx context.Context, q cqrs.GetBalanceQuery) (*models.BalanceView, error)
	ListAccounts(ctx context.Context, q cqrs.ListAccountsQuery) ([]models.AccountView, error)
}

// AccountHandler handles account-related HTTP requests.
type AccountHandler struct {
	commands AccountCommander
	queries  AccountQuerier
}

type OpenAccountRequest struct {
	AccountType    string       `json:"accountType" validate:"required,oneof=current savings business"`
	InitialDeposit models.Money `json:"initialDeposit" validate:"gte=0"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active frozen closed"`
}

type ListAccountsResponse struct {
	Accounts []models.AccountView `json:"accounts"`
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries}
}

func (h *AccountHandler) OpenAccount(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	view, err := h.commands.OpenAccount(c.Request.Context(), cqrs.OpenAccountCommand{
		UserID:         userID,
		AccountType:    models.AccountType(req.AccountType),
		InitialDeposit: req.InitialDeposit,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (h *AccountHandler) ListAccounts(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	views, err := h.queries.ListAccounts(c.Request.Context(), cqrs.ListAccountsQuery{UserID: userID})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	if views == nil {
		views = []models.AccountView{}
	}
	c.JSON(http.StatusOK, ListAccountsResponse{Accounts: views})
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	view, err := h.queries.GetAccount(c.Request.Context(), cqrs.GetAccountQuery{
		AccountID:        c.Param("accountId"),
		RequestingUserID: userID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AccountHandler) GetBalance(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	balance, err := h.queries.GetBalance(c.Request.Context(), cqrs.GetBalanceQuery{
		AccountID:        c.Param("accountId"),
		RequestingUserID: userID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

func (h *AccountHandler) ChangeStatus(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	view, err := h.commands.ChangeStatus(c.Request.Context(), cqrs.ChangeAccountStatusCommand{
		AccountID:        c.Param("accountId"),
		RequestingUserID: userID,
		Status:           models.AccountStatus(req.Status),
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
