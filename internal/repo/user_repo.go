package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/virangk414141/vimesta2/internal/model"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
	// UpsertByPhone creates the user on first login and refreshes the
	// Telegram id, name and last_login on repeat logins.
	UpsertByPhone(ctx context.Context, phone string, telegramID int64, firstName string) (model.User, error)
	AddStorageUsed(ctx context.Context, id uuid.UUID, delta int64) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, telegram_id, phone_number, first_name, storage_used, created_at, last_login`

func scanUser(row *sql.Row) (model.User, error) {
	var user model.User
	var idStr string
	var firstName sql.NullString
	err := row.Scan(
		&idStr,
		&user.TelegramID,
		&user.PhoneNumber,
		&firstName,
		&user.StorageUsed,
		&user.CreatedAt,
		&user.LastLogin,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.User{}, fmt.Errorf("user not found: %w", err)
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	user.FirstName = firstName.String
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

// GetByPhone retrieves a user by normalized phone number
func (r *userRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE phone_number = $1
	`, phone)
	return scanUser(row)
}

// UpsertByPhone inserts or refreshes the user row for the phone
func (r *userRepo) UpsertByPhone(ctx context.Context, phone string, telegramID int64, firstName string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (telegram_id, phone_number, first_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone_number) DO UPDATE
		SET telegram_id = EXCLUDED.telegram_id,
		    first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
		    last_login = now()
		RETURNING `+userColumns+`
	`, telegramID, phone, firstName)
	user, err := scanUser(row)
	if err != nil {
		return model.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

// AddStorageUsed adjusts the user's storage counter, clamped at zero
func (r *userRepo) AddStorageUsed(ctx context.Context, id uuid.UUID, delta int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET storage_used = GREATEST(0, storage_used + $2)
		WHERE id = $1
	`, id, delta)
	if err != nil {
		return fmt.Errorf("update storage used: %w", err)
	}
	return nil
}
