package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// ProvenTxReqRepository handles the proven_tx_reqs table: the monitor's
// working set of broadcast transactions still awaiting a merkle proof
// (spec.md §3.1, §4.4 CheckForProofs).
type ProvenTxReqRepository struct {
	client *Client
}

// NewProvenTxReqRepository constructs a ProvenTxReqRepository.
func NewProvenTxReqRepository(client *Client) *ProvenTxReqRepository {
	return &ProvenTxReqRepository{client: client}
}

const provenTxReqColumns = `proven_tx_req_id, proven_tx_id, status, attempts, notified, txid,
	batch, history, notify, raw_tx, input_beef, created_at, updated_at`

func scanProvenTxReq(row interface{ Scan(...any) error }) (*entity.ProvenTxReq, error) {
	req := &entity.ProvenTxReq{}
	err := row.Scan(
		&req.ProvenTxReqID, &req.ProvenTxID, &req.Status, &req.Attempts, &req.Notified, &req.Txid,
		&req.Batch, &req.History, &req.Notify, &req.RawTx, &req.InputBeef, &req.CreatedAt, &req.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrProvenTxReqNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan proven tx req: %w", err)
	}
	return req, nil
}

// Create inserts a new proof request for a just-broadcast transaction.
func (r *ProvenTxReqRepository) Create(ctx context.Context, req *entity.ProvenTxReq) (*entity.ProvenTxReq, error) {
	query := `
		INSERT INTO proven_tx_reqs (status, attempts, notified, txid, batch, history, notify, raw_tx, input_beef)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (txid) DO UPDATE SET txid = EXCLUDED.txid
		RETURNING proven_tx_req_id, created_at, updated_at`

	err := r.client.QueryRowContext(ctx, query,
		req.Status, req.Attempts, req.Notified, req.Txid, req.Batch, req.History, req.Notify,
		req.RawTx, req.InputBeef,
	).Scan(&req.ProvenTxReqID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create proven tx req: %w", err)
	}
	return req, nil
}

// GetByTxid looks up a request by transaction id.
func (r *ProvenTxReqRepository) GetByTxid(ctx context.Context, txid string) (*entity.ProvenTxReq, error) {
	row := r.client.QueryRowContext(ctx, `SELECT `+provenTxReqColumns+` FROM proven_tx_reqs WHERE txid = $1`, txid)
	return scanProvenTxReq(row)
}

// ListByStatus returns requests in a given status, oldest first, for the
// monitor's per-tick batches (CheckForProofs, CheckNoSends, FailAbandoned).
func (r *ProvenTxReqRepository) ListByStatus(ctx context.Context, status wdk.ProvenTxReqStatus, limit int) ([]*entity.ProvenTxReq, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT `+provenTxReqColumns+` FROM proven_tx_reqs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("list proven tx reqs by status: %w", err)
	}
	defer rows.Close()

	var out []*entity.ProvenTxReq
	for rows.Next() {
		req, err := scanProvenTxReq(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a request's status and, when moving into a
// retry-eligible state, bumps its attempt counter.
func (r *ProvenTxReqRepository) UpdateStatus(ctx context.Context, reqID int64, status wdk.ProvenTxReqStatus, incrementAttempts bool) error {
	query := `UPDATE proven_tx_reqs SET status = $2, updated_at = now()`
	args := []any{reqID, status}
	if incrementAttempts {
		query += `, attempts = attempts + 1`
	}
	query += ` WHERE proven_tx_req_id = $1`

	res, err := r.client.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update proven tx req status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProvenTxReqNotFound
	}
	return nil
}

// AttachProvenTx links a request to its resolved proof and marks it
// completed.
func (r *ProvenTxReqRepository) AttachProvenTx(ctx context.Context, reqID, provenTxID int64) error {
	_, err := r.client.ExecContext(ctx,
		`UPDATE proven_tx_reqs SET proven_tx_id = $2, status = $3, updated_at = now() WHERE proven_tx_req_id = $1`,
		reqID, provenTxID, wdk.ReqStatusCompleted)
	if err != nil {
		return fmt.Errorf("attach proven tx to req: %w", err)
	}
	return nil
}

// MarkNotified flips the notified flag once downstream subscribers have
// been told about a completed proof.
func (r *ProvenTxReqRepository) MarkNotified(ctx context.Context, reqID int64) error {
	_, err := r.client.ExecContext(ctx,
		`UPDATE proven_tx_reqs SET notified = true, updated_at = now() WHERE proven_tx_req_id = $1`, reqID)
	if err != nil {
		return fmt.Errorf("mark proven tx req notified: %w", err)
	}
	return nil
}
