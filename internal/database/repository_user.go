package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
)

// UserRepository handles the users table.
type UserRepository struct {
	client *Client
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(client *Client) *UserRepository {
	return &UserRepository{client: client}
}

// FindOrCreateByIdentityKey implements spec.md §4.2's find-or-create rule:
// a new user is created on first sight of an identity key.
func (r *UserRepository) FindOrCreateByIdentityKey(ctx context.Context, identityKey string) (*entity.User, error) {
	user, err := r.GetByIdentityKey(ctx, identityKey)
	if err == nil {
		return user, nil
	}
	if err != ErrUserNotFound {
		return nil, err
	}

	query := `
		INSERT INTO users (identity_key)
		VALUES ($1)
		ON CONFLICT (identity_key) DO UPDATE SET identity_key = EXCLUDED.identity_key
		RETURNING user_id, identity_key, active_storage, created_at, updated_at`

	user = &entity.User{}
	err = r.client.QueryRowContext(ctx, query, identityKey).Scan(
		&user.UserID, &user.IdentityKey, &user.ActiveStorage, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}
	return user, nil
}

// GetByIdentityKey looks up a user by their identity key.
func (r *UserRepository) GetByIdentityKey(ctx context.Context, identityKey string) (*entity.User, error) {
	query := `
		SELECT user_id, identity_key, active_storage, created_at, updated_at
		FROM users WHERE identity_key = $1`

	user := &entity.User{}
	err := r.client.QueryRowContext(ctx, query, identityKey).Scan(
		&user.UserID, &user.IdentityKey, &user.ActiveStorage, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by identity key: %w", err)
	}
	return user, nil
}

// GetByID looks up a user by their primary key.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*entity.User, error) {
	query := `
		SELECT user_id, identity_key, active_storage, created_at, updated_at
		FROM users WHERE user_id = $1`

	user := &entity.User{}
	err := r.client.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.IdentityKey, &user.ActiveStorage, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// SetActiveStorage records the storage identity the user last synced with
// (spec.md §3.1, SyncState's counterpart on the user row).
func (r *UserRepository) SetActiveStorage(ctx context.Context, userID int64, storageIdentityKey string) error {
	_, err := r.client.ExecContext(ctx,
		`UPDATE users SET active_storage = $2, updated_at = now() WHERE user_id = $1`,
		userID, storageIdentityKey)
	if err != nil {
		return fmt.Errorf("set active storage: %w", err)
	}
	return nil
}
