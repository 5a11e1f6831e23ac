package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// TransactionRepository handles the transactions table.
type TransactionRepository struct {
	client *Client
}

// NewTransactionRepository constructs a TransactionRepository.
func NewTransactionRepository(client *Client) *TransactionRepository {
	return &TransactionRepository{client: client}
}

// Create inserts a new transaction row, typically in the "unsigned" status
// produced by create_action (spec.md §4.3 step 3).
func (r *TransactionRepository) Create(ctx context.Context, tx *entity.Transaction) (*entity.Transaction, error) {
	query := `
		INSERT INTO transactions (
			user_id, proven_tx_id, status, reference, is_outgoing, satoshis,
			version, lock_time, description, txid, input_beef, raw_tx
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING transaction_id, created_at, updated_at`

	err := r.client.QueryRowContext(ctx, query,
		tx.UserID, tx.ProvenTxID, tx.Status, tx.Reference, tx.IsOutgoing, tx.Satoshis,
		tx.Version, tx.LockTime, tx.Description, tx.Txid, tx.InputBeef, tx.RawTx,
	).Scan(&tx.TransactionID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	return tx, nil
}

func scanTransaction(row interface{ Scan(...any) error }) (*entity.Transaction, error) {
	t := &entity.Transaction{}
	err := row.Scan(
		&t.TransactionID, &t.UserID, &t.ProvenTxID, &t.Status, &t.Reference, &t.IsOutgoing,
		&t.Satoshis, &t.Version, &t.LockTime, &t.Description, &t.Txid, &t.InputBeef, &t.RawTx,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}

const transactionColumns = `transaction_id, user_id, proven_tx_id, status, reference, is_outgoing,
	satoshis, version, lock_time, description, txid, input_beef, raw_tx, created_at, updated_at`

// GetByID looks up a transaction by its primary key.
func (r *TransactionRepository) GetByID(ctx context.Context, transactionID int64) (*entity.Transaction, error) {
	row := r.client.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`, transactionID)
	return scanTransaction(row)
}

// GetByReference looks up a transaction by its create_action reference
// (spec.md §4.1, the key sign_action uses to find its pending entry).
func (r *TransactionRepository) GetByReference(ctx context.Context, userID int64, reference string) (*entity.Transaction, error) {
	row := r.client.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 AND reference = $2`,
		userID, reference)
	return scanTransaction(row)
}

// GetByTxid looks up a transaction by its on-chain id.
func (r *TransactionRepository) GetByTxid(ctx context.Context, txid string) (*entity.Transaction, error) {
	row := r.client.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE txid = $1`, txid)
	return scanTransaction(row)
}

// UpdateStatus transitions a transaction's status (spec.md §3.1's lifecycle).
func (r *TransactionRepository) UpdateStatus(ctx context.Context, transactionID int64, status wdk.TxStatus) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE transactions SET status = $2, updated_at = now() WHERE transaction_id = $1`,
		transactionID, status)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// AttachRawTx records the fully-signed raw transaction and its on-chain id,
// the step sign_action performs after merging signatures (spec.md §4.3
// step 5).
func (r *TransactionRepository) AttachRawTx(ctx context.Context, transactionID int64, txid string, rawTx []byte, status wdk.TxStatus) error {
	_, err := r.client.ExecContext(ctx,
		`UPDATE transactions SET txid = $2, raw_tx = $3, status = $4, updated_at = now() WHERE transaction_id = $1`,
		transactionID, txid, rawTx, status)
	if err != nil {
		return fmt.Errorf("attach raw tx: %w", err)
	}
	return nil
}

// AttachProvenTx links a transaction to its merkle proof once one surfaces
// (spec.md §3.1, the CheckForProofs monitor task's write path).
func (r *TransactionRepository) AttachProvenTx(ctx context.Context, transactionID, provenTxID int64) error {
	_, err := r.client.ExecContext(ctx,
		`UPDATE transactions SET proven_tx_id = $2, status = $3, updated_at = now() WHERE transaction_id = $1`,
		transactionID, provenTxID, wdk.TxStatusCompleted)
	if err != nil {
		return fmt.Errorf("attach proven tx: %w", err)
	}
	return nil
}

// ListByStatus returns up to limit transactions in a given status across
// all users, oldest first, used by monitor tasks like SendWaiting and
// CheckNoSends.
func (r *TransactionRepository) ListByStatus(ctx context.Context, status wdk.TxStatus, limit int) ([]*entity.Transaction, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions by status: %w", err)
	}
	defer rows.Close()

	var out []*entity.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListByStatusOlderThan returns transactions in a given status whose
// created_at predates the cutoff, the candidate set for FailAbandoned
// (spec.md §4.6: "abandons transactions in unprocessed/unsigned older than
// 5 min").
func (r *TransactionRepository) ListByStatusOlderThan(ctx context.Context, status wdk.TxStatus, olderThan time.Time, limit int) ([]*entity.Transaction, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC LIMIT $3`,
		status, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions by status older than: %w", err)
	}
	defer rows.Close()

	var out []*entity.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListActionsQuery is the resolved, storage-level shape of a list_actions
// call after the wallet façade has resolved label names to ids.
type ListActionsQuery struct {
	UserID         int64
	LabelIDs       []int64
	LabelQueryMode wdk.TagQueryMode
	Limit          int
	Offset         int
}

// ListForUser runs an ordinary list_actions query: label filters
// intersected per LabelQueryMode, paginated, ordered newest-first.
func (r *TransactionRepository) ListForUser(ctx context.Context, q ListActionsQuery) ([]*entity.Transaction, int64, error) {
	var conds []string
	var args []any
	args = append(args, q.UserID)
	conds = append(conds, "t.user_id = $1")

	labelJoin := ""
	if len(q.LabelIDs) > 0 {
		placeholders := make([]string, len(q.LabelIDs))
		for i, id := range q.LabelIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		labelJoin = `JOIN tx_labels_map tlm ON tlm.transaction_id = t.transaction_id AND tlm.is_deleted = false`
		conds = append(conds, fmt.Sprintf("tlm.tx_label_id IN (%s)", strings.Join(placeholders, ",")))
	}

	where := strings.Join(conds, " AND ")
	havingClause := ""
	if q.LabelQueryMode == wdk.TagQueryAll && len(q.LabelIDs) > 1 {
		havingClause = fmt.Sprintf("HAVING COUNT(DISTINCT tlm.tx_label_id) = %d", len(q.LabelIDs))
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM (SELECT t.transaction_id FROM transactions t %s WHERE %s GROUP BY t.transaction_id %s) c`,
		labelJoin, where, havingClause)
	var total int64
	if err := r.client.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, q.Offset)
	listQuery := fmt.Sprintf(`SELECT t.%s FROM transactions t %s WHERE %s GROUP BY t.transaction_id %s
		ORDER BY t.transaction_id DESC LIMIT $%d OFFSET $%d`,
		strings.ReplaceAll(transactionColumns, ", ", ", t."), labelJoin, where, havingClause,
		len(args)-1, len(args))

	rows, err := r.client.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*entity.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// ListLabelsForTransaction resolves the labels attached to a transaction
// through tx_labels_map (spec.md §3.1).
func (r *TransactionRepository) ListLabelsForTransaction(ctx context.Context, transactionID int64) ([]string, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT l.label FROM tx_labels l
		JOIN tx_labels_map m ON m.tx_label_id = l.tx_label_id
		WHERE m.transaction_id = $1 AND m.is_deleted = false AND l.is_deleted = false
		ORDER BY l.label`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list transaction labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scan transaction label: %w", err)
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}
