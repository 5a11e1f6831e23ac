package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
)

// SyncStateRepository handles the sync_states table: per-user,
// per-counterparty-storage synchronization bookkeeping (spec.md §3.1,
// the SyncWhenIdle monitor task's state).
type SyncStateRepository struct {
	client *Client
}

// NewSyncStateRepository constructs a SyncStateRepository.
func NewSyncStateRepository(client *Client) *SyncStateRepository {
	return &SyncStateRepository{client: client}
}

// Upsert records the outcome of a sync attempt against a storage identity.
func (r *SyncStateRepository) Upsert(ctx context.Context, userID int64, storageIdentityKey, status string) (*entity.SyncState, error) {
	query := `
		INSERT INTO sync_states (user_id, storage_identity_key, status, when_msecs)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, storage_identity_key) DO UPDATE SET status = EXCLUDED.status, when_msecs = now()
		RETURNING sync_state_id, user_id, storage_identity_key, status, when_msecs`

	s := &entity.SyncState{}
	err := r.client.QueryRowContext(ctx, query, userID, storageIdentityKey, status).Scan(
		&s.SyncStateID, &s.UserID, &s.StorageIdentityKey, &s.Status, &s.When,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert sync state: %w", err)
	}
	return s, nil
}

// Get looks up a user's sync state against a storage identity.
func (r *SyncStateRepository) Get(ctx context.Context, userID int64, storageIdentityKey string) (*entity.SyncState, error) {
	query := `
		SELECT sync_state_id, user_id, storage_identity_key, status, when_msecs
		FROM sync_states WHERE user_id = $1 AND storage_identity_key = $2`

	s := &entity.SyncState{}
	err := r.client.QueryRowContext(ctx, query, userID, storageIdentityKey).Scan(
		&s.SyncStateID, &s.UserID, &s.StorageIdentityKey, &s.Status, &s.When,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	return s, nil
}

// ListStale returns sync states that haven't updated within the given
// staleness window, feeding the SyncWhenIdle task's candidate set.
func (r *SyncStateRepository) ListStale(ctx context.Context, staleSeconds int) ([]*entity.SyncState, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT sync_state_id, user_id, storage_identity_key, status, when_msecs
		FROM sync_states WHERE when_msecs < now() - ($1 || ' seconds')::interval
		ORDER BY when_msecs ASC`, staleSeconds)
	if err != nil {
		return nil, fmt.Errorf("list stale sync states: %w", err)
	}
	defer rows.Close()

	var out []*entity.SyncState
	for rows.Next() {
		s := &entity.SyncState{}
		if err := rows.Scan(&s.SyncStateID, &s.UserID, &s.StorageIdentityKey, &s.Status, &s.When); err != nil {
			return nil, fmt.Errorf("scan sync state: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
