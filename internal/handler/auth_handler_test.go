package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btfbank/bank-api/shared/apperr"
	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/models"
)

func validRegisterBody() map[string]any {
	return map[string]any{
		"fullName":        "Alice Smith",
		"email":           "alice@example.com",
		"phone":           "+447700900000",
		"country":         "GB",
		"dateOfBirth":     "1990-05-17",
		"password":        "securepass123",
		"confirmPassword": "securepass123",
		"initialDeposit":  50.25,
	}
}

func withField(body map[string]any, key string, value any) map[string]any {
	out := map[string]any{}
	for k, v := range body {
		out[k] = v
	}
	if value == nil {
		delete(out, key)
	} else {
		out[key] = value
	}
	return out
}

func okRegistration(cmd cqrs.RegisterUserCommand) (*models.Registration, error) {
	return &models.Registration{User: testUserView, Account: testAccountView, Token: "tok", TokenType: "bearer"}, nil
}

func TestRegisterJSON(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		registerFn     func(cqrs.RegisterUserCommand) (*models.Registration, error)
		expectedStatus int
	}{
		{
			name:           "success - register new user",
			body:           validRegisterBody(),
			registerFn:     okRegistration,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "bad request - passwords differ",
			body:           withField(validRegisterBody(), "confirmPassword", "different123"),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - invalid date of birth",
			body:           withField(validRegisterBody(), "dateOfBirth", "17/05/1990"),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - missing email",
			body:           withField(validRegisterBody(), "email", nil),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - sub-penny deposit",
			body:           withField(validRegisterBody(), "initialDeposit", 1.005),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "conflict - email exists",
			body: validRegisterBody(),
			registerFn: func(cqrs.RegisterUserCommand) (*models.Registration, error) {
				return nil, apperr.Conflict("Email already registered")
			},
			expectedStatus: http.StatusConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(testDeps{authCmds: &mockAuthCommander{registerFn: tt.registerFn}}, "")
			w := doRequest(router, http.MethodPost, "/api/auth/register", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}
}

func TestRegisterPassesCommand(t *testing.T) {
	var got cqrs.RegisterUserCommand
	router := newTestRouter(testDeps{authCmds: &mockAuthCommander{registerFn: func(cmd cqrs.RegisterUserCommand) (*models.Registration, error) {
		got = cmd
		return okRegistration(cmd)
	}}}, "")

	w := doRequest(router, http.MethodPost, "/api/auth/register", validRegisterBody())
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.Money(5025), got.InitialDeposit)
	assert.Equal(t, "alice@example.com", got.Email)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "tok", body["token"])
	assert.NotContains(t, body["user"], "passwordHash")
}

func TestRegisterMultipart(t *testing.T) {
	var got cqrs.RegisterUserCommand
	router := newTestRouter(testDeps{authCmds: &mockAuthCommander{registerFn: func(cmd cqrs.RegisterUserCommand) (*models.Registration, error) {
		got = cmd
		return okRegistration(cmd)
	}}}, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"fullName": "Alice Smith", "email": "alice@example.com", "phone": "+447700900000",
		"country": "GB", "dateOfBirth": "1990-05-17", "password": "securepass123",
		"confirmPassword": "securepass123", "initialDeposit": "10.00",
	} {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("idCardFile", "passport.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test document"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, models.Money(1000), got.InitialDeposit)
	require.NotNil(t, got.IDDocument)
	assert.Equal(t, "application/pdf", got.IDDocument.ContentType)
	assert.Equal(t, "passport.pdf", got.IDDocument.Filename)
	assert.Nil(t, got.Photo)
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		loginFn        func(cqrs.LoginCommand) (*models.AccessToken, error)
		expectedStatus int
	}{
		{
			name: "success - valid credentials",
			body: map[string]string{"email": "alice@example.com", "password": "securepass123"},
			loginFn: func(cqrs.LoginCommand) (*models.AccessToken, error) {
				return &models.AccessToken{Token: "tok", TokenType: "bearer", ExpiresIn: 86400}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "unauthorized - wrong password",
			body: map[string]string{"email": "alice@example.com", "password": "wrongpass"},
			loginFn: func(cqrs.LoginCommand) (*models.AccessToken, error) {
				return nil, apperr.Unauthorized("Invalid email or password")
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "bad request - missing password",
			body:           map[string]string{"email": "alice@example.com"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - invalid email",
			body:           map[string]string{"email": "not-an-email", "password": "securepass123"},
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(testDeps{authQrys: &mockAuthQuerier{loginFn: tt.loginFn}}, "")
			w := doRequest(router, http.MethodPost, "/api/auth/login", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}
}

func TestRefreshToken(t *testing.T) {
	router := newTestRouter(testDeps{authQrys: &mockAuthQuerier{refreshFn: func(cmd cqrs.RefreshTokenCommand) (*models.AccessToken, error) {
		if cmd.Token != "old" {
			return nil, apperr.Unauthorized("Invalid or expired token")
		}
		return &models.AccessToken{Token: "new", TokenType: "bearer"}, nil
	}}}, "")

	w := doRequest(router, http.MethodPost, "/api/auth/refresh", map[string]string{"token": "old"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token":"new"`)

	w = doRequest(router, http.MethodPost, "/api/auth/refresh", map[string]string{"token": "forged"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodPost, "/api/auth/refresh", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
