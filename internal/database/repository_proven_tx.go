package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
)

// ProvenTxRepository handles the proven_txs table. Rows are immutable once
// written (spec.md §3.1): a merkle proof is either valid or it isn't.
type ProvenTxRepository struct {
	client *Client
}

// NewProvenTxRepository constructs a ProvenTxRepository.
func NewProvenTxRepository(client *Client) *ProvenTxRepository {
	return &ProvenTxRepository{client: client}
}

// Create inserts a newly-verified proof, idempotently keyed on txid.
func (r *ProvenTxRepository) Create(ctx context.Context, p *entity.ProvenTx) (*entity.ProvenTx, error) {
	query := `
		INSERT INTO proven_txs (txid, height, tx_index, merkle_path, raw_tx, block_hash, merkle_root)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (txid) DO UPDATE SET txid = EXCLUDED.txid
		RETURNING proven_tx_id, created_at`

	err := r.client.QueryRowContext(ctx, query,
		p.Txid, p.Height, p.Index, p.MerklePath, p.RawTx, p.BlockHash, p.MerkleRoot,
	).Scan(&p.ProvenTxID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create proven tx: %w", err)
	}
	return p, nil
}

// GetByTxid looks up a proof by transaction id.
func (r *ProvenTxRepository) GetByTxid(ctx context.Context, txid string) (*entity.ProvenTx, error) {
	query := `
		SELECT proven_tx_id, txid, height, tx_index, merkle_path, raw_tx, block_hash, merkle_root, created_at
		FROM proven_txs WHERE txid = $1`

	p := &entity.ProvenTx{}
	err := r.client.QueryRowContext(ctx, query, txid).Scan(
		&p.ProvenTxID, &p.Txid, &p.Height, &p.Index, &p.MerklePath, &p.RawTx, &p.BlockHash,
		&p.MerkleRoot, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrProvenTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get proven tx: %w", err)
	}
	return p, nil
}

// GetByID looks up a proof by its primary key.
func (r *ProvenTxRepository) GetByID(ctx context.Context, provenTxID int64) (*entity.ProvenTx, error) {
	query := `
		SELECT proven_tx_id, txid, height, tx_index, merkle_path, raw_tx, block_hash, merkle_root, created_at
		FROM proven_txs WHERE proven_tx_id = $1`

	p := &entity.ProvenTx{}
	err := r.client.QueryRowContext(ctx, query, provenTxID).Scan(
		&p.ProvenTxID, &p.Txid, &p.Height, &p.Index, &p.MerklePath, &p.RawTx, &p.BlockHash,
		&p.MerkleRoot, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrProvenTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get proven tx by id: %w", err)
	}
	return p, nil
}
