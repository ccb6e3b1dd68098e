package query

import (
	"context"
	"errors"
	"sync"

	"github.com/btfbank/bank-api/internal/auth"
	"github.com/btfbank/bank-api/internal/repository"
	"github.com/btfbank/bank-api/shared/apperr"
	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/logger"
	"github.com/btfbank/bank-api/shared/models"
	"github.com/btfbank/bank-api/shared/utils"
)

const (
	tokenTypeBearer    = "bearer"
	invalidCredentials = "Invalid email or password"
)

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// timingHash returns a bcrypt hash that unknown emails are checked against,
// so a miss costs as much as a wrong password.
func timingHash() string {
	dummyHashOnce.Do(func() {
		h, err := utils.HashPassword("btf-timing-equaliser")
		if err != nil {
			panic(err)
		}
		dummyHash = h
	})
	return dummyHash
}

// AuthQueryService handles login and token refresh. There's no CommandService
// for auth because these operations don't mutate application state.
type AuthQueryService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
}

func NewAuthQueryService(users repository.UserRepository, tokens *auth.TokenService) *AuthQueryService {
	return &AuthQueryService{users: users, tokens: tokens}
}

// Authenticate resolves credentials to an active user. Every failure is the
// same Unauthorized error so callers cannot tell which check failed.
func (s *AuthQueryService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Internal("Failed to load user", err)
		}
		utils.CheckPassword(password, timingHash())
		return nil, apperr.Unauthorized(invalidCredentials)
	}
	if !utils.CheckPassword(password, user.PasswordHash) || !user.Active {
		return nil, apperr.Unauthorized(invalidCredentials)
	}
	return user, nil
}

func (s *AuthQueryService) Login(ctx context.Context, cmd cqrs.LoginCommand) (*models.AccessToken, error) {
	user, err := s.Authenticate(ctx, cmd.Email, cmd.Password)
	if err != nil {
		return nil, err
	}
	logger.Get().Info("user logged in", logger.UserID(user.ID))
	return s.issue(user.ID, user.Email)
}

// RefreshToken exchanges a still-valid token for a fresh one, provided the
// user is still active.
func (s *AuthQueryService) RefreshToken(ctx context.Context, cmd cqrs.RefreshTokenCommand) (*models.AccessToken, error) {
	claims, err := s.tokens.Verify(cmd.Token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, claims.UserID())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthorized("Invalid or expired token")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load user", err)
	}
	if !user.Active {
		return nil, apperr.Unauthorized("Invalid or expired token")
	}
	return s.issue(user.ID, user.Email)
}

func (s *AuthQueryService) issue(userID, email string) (*models.AccessToken, error) {
	token, err := s.tokens.Issue(userID, email)
	if err != nil {
		return nil, apperr.Internal("Failed to issue token", err)
	}
	return &models.AccessToken{
		Token:     token,
		TokenType: tokenTypeBearer,
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
	}, nil
}
