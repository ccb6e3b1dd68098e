package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/btfbank/bank-api/shared/apperr"
	"github.com/btfbank/bank-api/shared/logger"
)

// ErrorResponse is the body of every non-validation error.
type ErrorResponse struct {
	Code        apperr.Kind `json:"code"`
	Message     string      `json:"message"`
	Transaction any         `json:"transaction,omitempty"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindConflict:          http.StatusConflict,
	apperr.KindUnauthorized:      http.StatusUnauthorized,
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindInvalidRequest:    http.StatusBadRequest,
	apperr.KindInsufficientFunds: http.StatusUnprocessableEntity,
	apperr.KindInternal:          http.StatusInternalServerError,
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	if status, ok := statusByKind[apperr.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondWithAppError renders err. Internal causes are logged and replaced
// with a generic message.
func RespondWithAppError(c *gin.Context, err error) {
	respond(c, err, nil)
}

// RespondWithFailedTransaction renders err together with the failed record
// that traces the attempt.
func RespondWithFailedTransaction(c *gin.Context, err error, txn any) {
	respond(c, err, txn)
}

func respond(c *gin.Context, err error, txn any) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		logger.Get().Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(StatusOf(err), ErrorResponse{
		Code:        kind,
		Message:     apperr.MessageOf(err),
		Transaction: txn,
	})
}
