package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
)

// SettingsRepository handles the singleton settings table (spec.md §3.1:
// exactly one row identifies a storage instance).
type SettingsRepository struct {
	client *Client
}

// NewSettingsRepository constructs a SettingsRepository.
func NewSettingsRepository(client *Client) *SettingsRepository {
	return &SettingsRepository{client: client}
}

// Get loads the single settings row. Storage must be provisioned with one
// before it will serve any wallet request.
func (r *SettingsRepository) Get(ctx context.Context) (*entity.Settings, error) {
	query := `SELECT storage_identity_key, storage_name, chain, dbtype, max_output_script FROM settings LIMIT 1`

	s := &entity.Settings{}
	err := r.client.QueryRowContext(ctx, query).Scan(
		&s.StorageIdentityKey, &s.StorageName, &s.Chain, &s.DBType, &s.MaxOutputScript,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// Upsert provisions or updates the singleton settings row.
func (r *SettingsRepository) Upsert(ctx context.Context, s *entity.Settings) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO settings (storage_identity_key, storage_name, chain, dbtype, max_output_script)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (storage_identity_key) DO UPDATE SET
			storage_name = EXCLUDED.storage_name,
			chain = EXCLUDED.chain,
			dbtype = EXCLUDED.dbtype,
			max_output_script = EXCLUDED.max_output_script`,
		s.StorageIdentityKey, s.StorageName, s.Chain, s.DBType, s.MaxOutputScript)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
