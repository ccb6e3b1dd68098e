package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/btfbank/bank-api/shared/apperr"
)

type stubVerifier map[string]string

func (v stubVerifier) VerifySubject(token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", apperr.Unauthorized("Invalid or expired token")
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(stubVerifier{"good": "user-1"}))
	r.GET("/me", func(c *gin.Context) {
		id, _ := GetUserID(c)
		c.String(http.StatusOK, id)
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer good", http.StatusOK, "user-1"},
		{"lower-case scheme", "bearer good", http.StatusOK, "user-1"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, ""},
		{"no token", "Bearer ", http.StatusUnauthorized, ""},
		{"bad token", "Bearer bad", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, w.Body.String())
				return
			}
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, apperr.KindUnauthorized, body.Code)
		})
	}
}

func TestRespondWithAppError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err         error
		wantStatus  int
		wantMessage string
	}{
		{apperr.Conflict("Email already registered"), http.StatusConflict, "Email already registered"},
		{apperr.NotFound("Account not found"), http.StatusNotFound, "Account not found"},
		{apperr.InvalidRequest("Bad"), http.StatusBadRequest, "Bad"},
		{apperr.InsufficientFunds("Insufficient funds"), http.StatusUnprocessableEntity, "Insufficient funds"},
		{apperr.Internal("Failed to load account", errors.New("pq: connection refused")), http.StatusInternalServerError, "Internal server error"},
		{errors.New("raw"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		RespondWithAppError(c, tt.err)

		assert.Equal(t, tt.wantStatus, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tt.wantMessage, body["message"])
		assert.NotContains(t, w.Body.String(), "connection refused")
		assert.NotContains(t, body, "transaction")
	}
}

func TestValidateRequest(t *testing.T) {
	type req struct {
		Email           string `validate:"required,email"`
		Password        string `validate:"required,min=8"`
		ConfirmPassword string `validate:"required,eqfield=Password"`
		AccountType     string `validate:"required,oneof=current savings"`
		DateOfBirth     string `validate:"required,datetime=2006-01-02"`
	}

	assert.Nil(t, ValidateRequest(req{
		Email: "a@b.com", Password: "longenough", ConfirmPassword: "longenough",
		AccountType: "current", DateOfBirth: "1990-01-31",
	}))

	errs := ValidateRequest(req{
		Email: "nope", Password: "longenough", ConfirmPassword: "different",
		AccountType: "crypto", DateOfBirth: "31/01/1990",
	})
	byField := map[string]string{}
	for _, e := range errs {
		byField[e.Field] = e.Type
	}
	assert.Equal(t, map[string]string{
		"Email":           "email",
		"ConfirmPassword": "eqfield",
		"AccountType":     "oneof",
		"DateOfBirth":     "datetime",
	}, byField)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LoggingMiddleware(zap.NewNop()), RecoveryMiddleware(zap.NewNop()))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
