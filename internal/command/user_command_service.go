package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/btfbank/bank-api/internal/documents"
	"github.com/btfbank/bank-api/internal/repository"
	"github.com/btfbank/bank-api/shared/apperr"
	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/events"
	"github.com/btfbank/bank-api/shared/logger"
	"github.com/btfbank/bank-api/shared/models"
	sharedredis "github.com/btfbank/bank-api/shared/redis"
	"github.com/btfbank/bank-api/shared/utils"
)

const (
	minPasswordLength  = 8
	documentCleanupTTL = 10 * time.Second
	tokenTypeBearer    = "bearer"
)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

// UserCommandService onboards new customers.
type UserCommandService struct {
	store     repository.Store
	accounts  *AccountCommandService
	documents documents.Uploader
	tokens    TokenIssuer
	users     *sharedredis.UserViews
	now       func() time.Time
}

// NewUserCommandService wires registration. uploader may be nil when
// document storage is not configured; registrations carrying documents are
// then rejected.
func NewUserCommandService(
	store repository.Store,
	accounts *AccountCommandService,
	uploader documents.Uploader,
	tokens TokenIssuer,
	users *sharedredis.UserViews,
) *UserCommandService {
	return &UserCommandService{
		store:     store,
		accounts:  accounts,
		documents: uploader,
		tokens:    tokens,
		users:     users,
		now:       time.Now,
	}
}

// Register creates the user and their default current account in one unit of
// work and returns a token so the client is signed in straight away.
func (s *UserCommandService) Register(ctx context.Context, cmd cqrs.RegisterUserCommand) (*models.Registration, error) {
	if err := validateRegistration(&cmd); err != nil {
		return nil, err
	}
	email := utils.NormalizeEmail(cmd.Email)

	if _, err := s.store.Users().GetByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("Email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal("Failed to check email", err)
	}

	hash, err := utils.HashPassword(cmd.Password)
	if err != nil {
		return nil, apperr.Internal("Failed to hash password", err)
	}
	now := s.now().UTC()
	user := &models.User{
		ID:           utils.GenerateID(),
		FullName:     strings.TrimSpace(cmd.FullName),
		Email:        email,
		PasswordHash: hash,
		Phone:        cmd.Phone,
		Country:      cmd.Country,
		DateOfBirth:  cmd.DateOfBirth,
		ReferralCode: cmd.ReferralCode,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	uploaded, err := s.uploadDocuments(ctx, user, &cmd)
	if err != nil {
		s.discardDocuments(ctx, uploaded)
		return nil, err
	}

	account := s.accounts.newAccount(user.ID, models.AccountTypeCurrent)
	var deposit *models.Transaction
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrEmailTaken) {
				return apperr.Conflict("Email already registered")
			}
			return apperr.Internal("Failed to create user", err)
		}
		var err error
		deposit, err = openAccount(ctx, tx, account, cmd.InitialDeposit, now)
		return err
	})
	if err != nil {
		s.discardDocuments(ctx, uploaded)
		return nil, asAppError(err, "Failed to register user")
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, apperr.Internal("Failed to issue token", err)
	}

	logger.Get().Info("user registered", logger.UserID(user.ID))
	view := models.NewUserView(user)
	s.users.Set(ctx, user.ID, view)
	s.accounts.publish(ctx, events.UserEventsStream, events.UserRegistered, events.UserRegisteredEvent{
		UserID: user.ID,
		Email:  user.Email,
	})
	s.accounts.accountOpened(ctx, account, deposit)

	return &models.Registration{
		User:      view,
		Account:   models.NewAccountView(account),
		Token:     token,
		TokenType: tokenTypeBearer,
	}, nil
}

func validateRegistration(cmd *cqrs.RegisterUserCommand) error {
	switch {
	case strings.TrimSpace(cmd.FullName) == "":
		return apperr.InvalidRequest("Full name is required")
	case strings.TrimSpace(cmd.Email) == "":
		return apperr.InvalidRequest("Email is required")
	case len(cmd.Password) < minPasswordLength:
		return apperr.InvalidRequest("Password must be at least 8 characters")
	case cmd.InitialDeposit < 0:
		return apperr.InvalidRequest("Initial deposit cannot be negative")
	case cmd.InitialDeposit > maxAmount:
		return apperr.InvalidRequest("Initial deposit must not exceed " + maxAmount.String())
	}
	if _, err := time.Parse(time.DateOnly, cmd.DateOfBirth); err != nil {
		return apperr.InvalidRequest("Date of birth must be in YYYY-MM-DD format")
	}
	for _, doc := range []*cqrs.Document{cmd.IDDocument, cmd.Photo} {
		if doc != nil && !documents.AllowedContentTypes[doc.ContentType] {
			return apperr.InvalidRequest("Documents must be JPEG, PNG or PDF")
		}
	}
	return nil
}

// uploadDocuments stores any attached documents and records their references
// on user. It returns the references written so far, even on error.
func (s *UserCommandService) uploadDocuments(ctx context.Context, user *models.User, cmd *cqrs.RegisterUserCommand) ([]string, error) {
	if cmd.IDDocument == nil && cmd.Photo == nil {
		return nil, nil
	}
	if s.documents == nil {
		return nil, apperr.InvalidRequest("Document uploads are not enabled")
	}

	var refs []string
	upload := func(kind documents.Kind, doc *cqrs.Document, dst *string) error {
		if doc == nil {
			return nil
		}
		ref, err := s.documents.Upload(ctx, user.ID, kind, doc)
		if err != nil {
			return apperr.Internal("Failed to store document", err)
		}
		refs = append(refs, ref)
		*dst = ref
		return nil
	}
	if err := upload(documents.KindIDCard, cmd.IDDocument, &user.IDDocumentRef); err != nil {
		return refs, err
	}
	if err := upload(documents.KindPhoto, cmd.Photo, &user.PhotoRef); err != nil {
		return refs, err
	}
	return refs, nil
}

// discardDocuments removes uploads belonging to a registration that did not
// commit. It outlives request cancellation.
func (s *UserCommandService) discardDocuments(ctx context.Context, refs []string) {
	if len(refs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), documentCleanupTTL)
	defer cancel()
	for _, ref := range refs {
		if err := s.documents.Delete(ctx, ref); err != nil {
			logger.Get().Error("failed to delete orphaned document", zap.String("ref", ref), zap.Error(err))
		}
	}
}
