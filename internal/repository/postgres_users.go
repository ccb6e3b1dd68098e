package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/btfbank/bank-api/shared/models"
)

const dateLayout = "2006-01-02"

const userColumns = `id, full_name, email, password_hash, phone, country, date_of_birth,
	referral_code, id_document_ref, photo_ref, active, created_at, updated_at`

type pgUsers struct {
	db DBTX
}

func (r *pgUsers) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.FullName, user.Email, user.PasswordHash, user.Phone, user.Country,
		user.DateOfBirth, nullString(user.ReferralCode), nullString(user.IDDocumentRef),
		nullString(user.PhotoRef), user.Active, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *pgUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *pgUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *pgUsers) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var (
		user                        models.User
		dob                         time.Time
		referral, idDocument, photo sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.FullName, &user.Email, &user.PasswordHash, &user.Phone, &user.Country,
		&dob, &referral, &idDocument, &photo, &user.Active, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) || isBadID(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.DateOfBirth = dob.Format(dateLayout)
	user.ReferralCode = referral.String
	user.IDDocumentRef = idDocument.String
	user.PhotoRef = photo.String
	return &user, nil
}
