package database

import (
	"context"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
)

// LabelRepository handles the tx_labels and tx_labels_map tables.
type LabelRepository struct {
	client *Client
}

// NewLabelRepository constructs a LabelRepository.
func NewLabelRepository(client *Client) *LabelRepository {
	return &LabelRepository{client: client}
}

// FindOrCreate resolves a label name to its row, creating it on first use.
func (r *LabelRepository) FindOrCreate(ctx context.Context, userID int64, label string) (*entity.TxLabel, error) {
	query := `
		INSERT INTO tx_labels (user_id, label)
		VALUES ($1, $2)
		ON CONFLICT (user_id, label) DO UPDATE SET label = EXCLUDED.label
		RETURNING tx_label_id, user_id, label, is_deleted, created_at`

	l := &entity.TxLabel{}
	err := r.client.QueryRowContext(ctx, query, userID, label).Scan(
		&l.TxLabelID, &l.UserID, &l.Label, &l.IsDeleted, &l.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find or create label: %w", err)
	}
	return l, nil
}

// ResolveNames maps label names to ids, creating any that don't yet exist.
func (r *LabelRepository) ResolveNames(ctx context.Context, userID int64, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		l, err := r.FindOrCreate(ctx, userID, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, l.TxLabelID)
	}
	return ids, nil
}

// Attach links a transaction to a label, idempotently.
func (r *LabelRepository) Attach(ctx context.Context, txLabelID, transactionID int64) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO tx_labels_map (tx_label_id, transaction_id)
		VALUES ($1, $2)
		ON CONFLICT (tx_label_id, transaction_id) DO UPDATE SET is_deleted = false`,
		txLabelID, transactionID)
	if err != nil {
		return fmt.Errorf("attach label: %w", err)
	}
	return nil
}
