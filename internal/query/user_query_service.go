package query

import (
	"context"
	"errors"

	"github.com/btfbank/bank-api/internal/repository"
	"github.com/btfbank/bank-api/shared/apperr"
	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/models"
	sharedredis "github.com/btfbank/bank-api/shared/redis"
)

type UserQueryService struct {
	users repository.UserRepository
	views *sharedredis.UserViews
}

func NewUserQueryService(users repository.UserRepository, views *sharedredis.UserViews) *UserQueryService {
	return &UserQueryService{users: users, views: views}
}

func (s *UserQueryService) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load user", err)
	}
	return user, nil
}

// GetProfile serves the profile from the cache, falling back to the store.
func (s *UserQueryService) GetProfile(ctx context.Context, q cqrs.GetProfileQuery) (*models.UserView, error) {
	if view, ok := s.views.Get(ctx, q.UserID); ok {
		return view, nil
	}
	user, err := s.FindByID(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	view := models.NewUserView(user)
	s.views.Set(ctx, user.ID, view)
	return view, nil
}
