package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// BasketRepository handles the output_baskets table.
type BasketRepository struct {
	client *Client
}

// NewBasketRepository constructs a BasketRepository.
func NewBasketRepository(client *Client) *BasketRepository {
	return &BasketRepository{client: client}
}

// FindOrCreate resolves a basket name to its row, creating the default
// change basket (or any named basket) on first use (spec.md §3.2).
func (r *BasketRepository) FindOrCreate(ctx context.Context, userID int64, name string) (*entity.OutputBasket, error) {
	b, err := r.GetByName(ctx, userID, name)
	if err == nil {
		return b, nil
	}
	if err != ErrBasketNotFound {
		return nil, err
	}

	query := `
		INSERT INTO output_baskets (user_id, name)
		VALUES ($1, $2)
		ON CONFLICT (user_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING basket_id, user_id, name, number_of_desired_utxos, minimum_desired_utxo_value,
			is_deleted, created_at, updated_at`

	b = &entity.OutputBasket{}
	err = r.client.QueryRowContext(ctx, query, userID, name).Scan(
		&b.BasketID, &b.UserID, &b.Name, &b.NumberOfDesiredUTXOs, &b.MinimumDesiredUTXOValue,
		&b.IsDeleted, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find or create basket: %w", err)
	}
	return b, nil
}

// GetByName looks up a basket by name.
func (r *BasketRepository) GetByName(ctx context.Context, userID int64, name string) (*entity.OutputBasket, error) {
	query := `
		SELECT basket_id, user_id, name, number_of_desired_utxos, minimum_desired_utxo_value,
			is_deleted, created_at, updated_at
		FROM output_baskets WHERE user_id = $1 AND name = $2 AND is_deleted = false`

	b := &entity.OutputBasket{}
	err := r.client.QueryRowContext(ctx, query, userID, name).Scan(
		&b.BasketID, &b.UserID, &b.Name, &b.NumberOfDesiredUTXOs, &b.MinimumDesiredUTXOValue,
		&b.IsDeleted, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrBasketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get basket by name: %w", err)
	}
	return b, nil
}

// GetByID looks up a basket by primary key, used to resolve an Output's
// basket name for list_outputs' projection (spec.md §6.1).
func (r *BasketRepository) GetByID(ctx context.Context, basketID int64) (*entity.OutputBasket, error) {
	query := `
		SELECT basket_id, user_id, name, number_of_desired_utxos, minimum_desired_utxo_value,
			is_deleted, created_at, updated_at
		FROM output_baskets WHERE basket_id = $1`

	b := &entity.OutputBasket{}
	err := r.client.QueryRowContext(ctx, query, basketID).Scan(
		&b.BasketID, &b.UserID, &b.Name, &b.NumberOfDesiredUTXOs, &b.MinimumDesiredUTXOValue,
		&b.IsDeleted, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrBasketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get basket by id: %w", err)
	}
	return b, nil
}

// EnsureDefaultChangeBasket creates the "default" basket for a new user if
// it doesn't already exist (spec.md §3.2, GLOSSARY "Change output").
func (r *BasketRepository) EnsureDefaultChangeBasket(ctx context.Context, userID int64) (*entity.OutputBasket, error) {
	return r.FindOrCreate(ctx, userID, wdk.BasketNameForChange)
}
