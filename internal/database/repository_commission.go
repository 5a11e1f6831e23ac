package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
)

// CommissionRepository handles the commissions table: a per-transaction fee
// owed to the storage operator (spec.md §3.1).
type CommissionRepository struct {
	client *Client
}

// NewCommissionRepository constructs a CommissionRepository.
func NewCommissionRepository(client *Client) *CommissionRepository {
	return &CommissionRepository{client: client}
}

// Create records a commission owed against a transaction.
func (r *CommissionRepository) Create(ctx context.Context, c *entity.Commission) (*entity.Commission, error) {
	query := `
		INSERT INTO commissions (user_id, transaction_id, satoshis, key_offset, is_redeemed, locking_script)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING commission_id, created_at`

	err := r.client.QueryRowContext(ctx, query,
		c.UserID, c.TransactionID, c.Satoshis, c.KeyOffset, c.IsRedeemed, c.LockingScript,
	).Scan(&c.CommissionID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create commission: %w", err)
	}
	return c, nil
}

// GetByTransactionID looks up the commission owed for a transaction, if any.
func (r *CommissionRepository) GetByTransactionID(ctx context.Context, transactionID int64) (*entity.Commission, error) {
	query := `
		SELECT commission_id, user_id, transaction_id, satoshis, key_offset, is_redeemed, locking_script, created_at
		FROM commissions WHERE transaction_id = $1`

	c := &entity.Commission{}
	err := r.client.QueryRowContext(ctx, query, transactionID).Scan(
		&c.CommissionID, &c.UserID, &c.TransactionID, &c.Satoshis, &c.KeyOffset, &c.IsRedeemed,
		&c.LockingScript, &c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get commission: %w", err)
	}
	return c, nil
}

// MarkRedeemed flags a commission as collected.
func (r *CommissionRepository) MarkRedeemed(ctx context.Context, commissionID int64) error {
	_, err := r.client.ExecContext(ctx,
		`UPDATE commissions SET is_redeemed = true WHERE commission_id = $1`, commissionID)
	if err != nil {
		return fmt.Errorf("mark commission redeemed: %w", err)
	}
	return nil
}
