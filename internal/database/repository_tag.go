package database

import (
	"context"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
)

// TagRepository handles the output_tags and output_tags_map tables.
type TagRepository struct {
	client *Client
}

// NewTagRepository constructs a TagRepository.
func NewTagRepository(client *Client) *TagRepository {
	return &TagRepository{client: client}
}

// FindOrCreate resolves a tag name to its row, creating it on first use.
func (r *TagRepository) FindOrCreate(ctx context.Context, userID int64, tag string) (*entity.OutputTag, error) {
	query := `
		INSERT INTO output_tags (user_id, tag)
		VALUES ($1, $2)
		ON CONFLICT (user_id, tag) DO UPDATE SET tag = EXCLUDED.tag
		RETURNING output_tag_id, user_id, tag, is_deleted, created_at`

	t := &entity.OutputTag{}
	err := r.client.QueryRowContext(ctx, query, userID, tag).Scan(
		&t.OutputTagID, &t.UserID, &t.Tag, &t.IsDeleted, &t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find or create tag: %w", err)
	}
	return t, nil
}

// ResolveNames maps a list of tag names to their ids, creating any that
// don't yet exist (spec.md §4.2 treats tags as create-on-use like baskets).
func (r *TagRepository) ResolveNames(ctx context.Context, userID int64, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		t, err := r.FindOrCreate(ctx, userID, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, t.OutputTagID)
	}
	return ids, nil
}

// Attach links an output to a tag, idempotently.
func (r *TagRepository) Attach(ctx context.Context, outputTagID, outputID int64) error {
	_, err := r.client.ExecContext(ctx, `
		INSERT INTO output_tags_map (output_tag_id, output_id)
		VALUES ($1, $2)
		ON CONFLICT (output_tag_id, output_id) DO UPDATE SET is_deleted = false`,
		outputTagID, outputID)
	if err != nil {
		return fmt.Errorf("attach tag: %w", err)
	}
	return nil
}

// Detach soft-deletes an output/tag association.
func (r *TagRepository) Detach(ctx context.Context, outputTagID, outputID int64) error {
	_, err := r.client.ExecContext(ctx,
		`UPDATE output_tags_map SET is_deleted = true WHERE output_tag_id = $1 AND output_id = $2`,
		outputTagID, outputID)
	if err != nil {
		return fmt.Errorf("detach tag: %w", err)
	}
	return nil
}
