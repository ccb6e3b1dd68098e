package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/btfbank/bank-api/shared/apperr"
	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/middleware"
	"github.com/btfbank/bank-api/shared/models"
)

// UserQuerier defines the read-side operations used by UserHandler.
type UserQuerier interface {
	GetProfile(ctx context.Context, q cqrs.GetProfileQuery) (*models.UserView, error)
}

type UserHandler struct {
	queries UserQuerier
}

func NewUserHandler(queries UserQuerier) *UserHandler {
	return &UserHandler{queries: queries}
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	view, err := h.queries.GetProfile(c.Request.Context(), cqrs.GetProfileQuery{UserID: userID})
	if err != nil {
		// A valid token for a user that no longer exists is not a usable session.
		if apperr.KindOf(err) == apperr.KindNotFound {
			err = apperr.Unauthorized("User no longer exists")
		}
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
