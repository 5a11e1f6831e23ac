package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// OutputRepository handles the outputs table, including the list_outputs
// SpecOp overloads from spec.md §4.2: a basket or tag name that matches one
// of a small set of magic strings reinterprets the call as a balance query,
// a change-UTXO audit, or a change-parameter update instead of an ordinary
// listing.
type OutputRepository struct {
	client *Client
}

// NewOutputRepository constructs an OutputRepository.
func NewOutputRepository(client *Client) *OutputRepository {
	return &OutputRepository{client: client}
}

// Magic basket/tag strings recognized by ListOutputs (spec.md §4.2).
const (
	SpecOpWalletBalance        = "wallet-balance"
	SpecOpInvalidChange        = "invalid-change"
	SpecOpSetWalletChangeParams = "set-wallet-change-params"
)

const outputColumns = `output_id, user_id, transaction_id, basket_id, spendable, change, vout,
	satoshis, provided_by, purpose, type, output_description, txid, sender_identity_key,
	derivation_prefix, derivation_suffix, custom_instructions, spent_by, sequence_number,
	spending_description, script_length, script_offset, locking_script, spent, created_at, updated_at`

func scanOutput(row interface{ Scan(...any) error }, includeScript bool) (*entity.Output, error) {
	o := &entity.Output{}
	var lockingScript []byte
	err := row.Scan(
		&o.OutputID, &o.UserID, &o.TransactionID, &o.BasketID, &o.Spendable, &o.Change, &o.Vout,
		&o.Satoshis, &o.ProvidedBy, &o.Purpose, &o.Type, &o.OutputDescription, &o.Txid,
		&o.SenderIdentityKey, &o.DerivationPrefix, &o.DerivationSuffix, &o.CustomInstructions,
		&o.SpentBy, &o.SequenceNumber, &o.SpendingDescription, &o.ScriptLength, &o.ScriptOffset,
		&lockingScript, &o.Spent, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOutputNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan output: %w", err)
	}
	if includeScript {
		o.LockingScript = lockingScript
	}
	return o, nil
}

// Create inserts a new output row.
func (r *OutputRepository) Create(ctx context.Context, o *entity.Output) (*entity.Output, error) {
	query := `
		INSERT INTO outputs (
			user_id, transaction_id, basket_id, spendable, change, vout, satoshis,
			provided_by, purpose, type, output_description, txid, sender_identity_key,
			derivation_prefix, derivation_suffix, custom_instructions, locking_script, spent
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING output_id, created_at, updated_at`

	err := r.client.QueryRowContext(ctx, query,
		o.UserID, o.TransactionID, o.BasketID, o.Spendable, o.Change, o.Vout, o.Satoshis,
		o.ProvidedBy, o.Purpose, o.Type, o.OutputDescription, o.Txid, o.SenderIdentityKey,
		o.DerivationPrefix, o.DerivationSuffix, o.CustomInstructions, o.LockingScript, o.Spent,
	).Scan(&o.OutputID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return o, nil
}

// GetByOutpoint looks up a single output by transaction and vout.
func (r *OutputRepository) GetByOutpoint(ctx context.Context, userID, transactionID int64, vout uint32) (*entity.Output, error) {
	row := r.client.QueryRowContext(ctx,
		`SELECT `+outputColumns+` FROM outputs WHERE user_id = $1 AND transaction_id = $2 AND vout = $3`,
		userID, transactionID, vout)
	return scanOutput(row, true)
}

// MarkSpent records that an output was consumed by a later transaction
// (spec.md §5's locking discipline: outputs are retired, never deleted).
func (r *OutputRepository) MarkSpent(ctx context.Context, outputID, spentByTransactionID int64) error {
	_, err := r.client.ExecContext(ctx,
		`UPDATE outputs SET spent = true, spendable = false, spent_by = $2, updated_at = now() WHERE output_id = $1`,
		outputID, spentByTransactionID)
	if err != nil {
		return fmt.Errorf("mark output spent: %w", err)
	}
	return nil
}

// Relinquish marks an output no longer spendable by this wallet without
// marking it spent, the soft-revoke relinquish_output performs (spec.md
// §6.1; distinct from MarkSpent, which also records the consuming tx).
func (r *OutputRepository) Relinquish(ctx context.Context, userID int64, outpoint wdk.OutPoint) error {
	res, err := r.client.ExecContext(ctx, `
		UPDATE outputs o SET spendable = false, updated_at = now()
		FROM transactions t
		WHERE o.transaction_id = t.transaction_id AND o.user_id = $1 AND t.txid = $2 AND o.vout = $3`,
		userID, outpoint.TxID, outpoint.Vout)
	if err != nil {
		return fmt.Errorf("relinquish output: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOutputNotFound
	}
	return nil
}

// SetLockingScript lazily populates a previously-stripped locking script
// (spec.md §4.2, "lazy locking-script population").
func (r *OutputRepository) SetLockingScript(ctx context.Context, outputID int64, script []byte) error {
	_, err := r.client.ExecContext(ctx,
		`UPDATE outputs SET locking_script = $2, script_length = $3, updated_at = now() WHERE output_id = $1`,
		outputID, script, len(script))
	if err != nil {
		return fmt.Errorf("set locking script: %w", err)
	}
	return nil
}

// WalletBalance sums spendable, unspent satoshis across all of a user's
// outputs. Backs the "wallet-balance" SpecOp (spec.md §4.2).
func (r *OutputRepository) WalletBalance(ctx context.Context, userID int64) (int64, error) {
	var total sql.NullInt64
	err := r.client.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(satoshis), 0) FROM outputs WHERE user_id = $1 AND spendable = true AND spent = false`,
		userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("compute wallet balance: %w", err)
	}
	return total.Int64, nil
}

// InvalidChangeOutputs lists a user's change outputs that storage still
// considers spendable and unspent, in output_id order: the candidates for
// the "invalid-change" SpecOp (spec.md §4.2). It does no chain lookup;
// this repository has no chain visibility of its own, so checking each
// candidate against chain services is left to the caller.
func (r *OutputRepository) InvalidChangeOutputs(ctx context.Context, userID int64) ([]*entity.Output, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT `+outputColumns+` FROM outputs
		 WHERE user_id = $1 AND change = true AND spendable = true AND spent = false
		 ORDER BY output_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list change outputs: %w", err)
	}
	defer rows.Close()

	var out []*entity.Output
	for rows.Next() {
		o, err := scanOutput(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetWalletChangeParams updates the default change basket's target UTXO
// count and floor value. Backs the "set-wallet-change-params" SpecOp
// (spec.md §4.2); the caller passes the parsed values out of the basket's
// custom-instructions JSON payload.
func (r *OutputRepository) SetWalletChangeParams(ctx context.Context, userID int64, numberOfDesiredUTXOs, minimumDesiredUTXOValue int64) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE output_baskets SET number_of_desired_utxos = $2, minimum_desired_utxo_value = $3, updated_at = now()
		 WHERE user_id = $1 AND name = $4`,
		userID, numberOfDesiredUTXOs, minimumDesiredUTXOValue, wdk.BasketNameForChange)
	if err != nil {
		return fmt.Errorf("set wallet change params: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBasketNotFound
	}
	return nil
}

// ListOutputsQuery is the resolved, storage-level shape of a list_outputs
// call after the wallet façade has classified basket/tag SpecOps and
// resolved basket/tag names to ids.
type ListOutputsQuery struct {
	UserID       int64
	BasketID     *int64
	TagIDs       []int64
	TagQueryMode wdk.TagQueryMode
	IncludeSpent bool
	Limit        int
	Offset       int
}

// List runs an ordinary (non-SpecOp) list_outputs query: basket and tag
// filters intersected per TagQueryMode, paginated, ordered newest-first.
func (r *OutputRepository) List(ctx context.Context, q ListOutputsQuery) ([]*entity.Output, int64, error) {
	var conds []string
	var args []any
	args = append(args, q.UserID)
	conds = append(conds, "o.user_id = $1")

	if q.BasketID != nil {
		args = append(args, *q.BasketID)
		conds = append(conds, fmt.Sprintf("o.basket_id = $%d", len(args)))
	}
	if !q.IncludeSpent {
		conds = append(conds, "o.spent = false")
	}

	tagJoin := ""
	if len(q.TagIDs) > 0 {
		placeholders := make([]string, len(q.TagIDs))
		for i, id := range q.TagIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		tagJoin = `JOIN output_tags_map otm ON otm.output_id = o.output_id AND otm.is_deleted = false`
		conds = append(conds, fmt.Sprintf("otm.output_tag_id IN (%s)", strings.Join(placeholders, ",")))
	}

	where := strings.Join(conds, " AND ")
	groupBy := "GROUP BY o." + strings.ReplaceAll(outputColumns, ", ", ", o.")

	havingClause := ""
	if q.TagQueryMode == wdk.TagQueryAll && len(q.TagIDs) > 1 {
		havingClause = fmt.Sprintf("HAVING COUNT(DISTINCT otm.output_tag_id) = %d", len(q.TagIDs))
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM (SELECT o.output_id FROM outputs o %s WHERE %s GROUP BY o.output_id %s) t`,
		tagJoin, where, havingClause)
	var total int64
	if err := r.client.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count outputs: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, q.Offset)
	listQuery := fmt.Sprintf(`SELECT o.%s FROM outputs o %s WHERE %s %s %s
		ORDER BY o.output_id DESC LIMIT $%d OFFSET $%d`,
		strings.ReplaceAll(outputColumns, ", ", ", o."), tagJoin, where, groupBy, havingClause,
		len(args)-1, len(args))

	rows, err := r.client.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list outputs: %w", err)
	}
	defer rows.Close()

	var out []*entity.Output
	for rows.Next() {
		o, err := scanOutput(rows, true)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// ListByTransaction returns the outputs an action created, the set
// list_actions' IncludeOutputs draws on.
func (r *OutputRepository) ListByTransaction(ctx context.Context, transactionID int64) ([]*entity.Output, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT `+outputColumns+` FROM outputs WHERE transaction_id = $1 ORDER BY vout ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list outputs by transaction: %w", err)
	}
	defer rows.Close()

	var out []*entity.Output
	for rows.Next() {
		o, err := scanOutput(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListSpentByTransaction returns the outputs an action consumed as inputs,
// the set list_actions' IncludeInputs draws on.
func (r *OutputRepository) ListSpentByTransaction(ctx context.Context, transactionID int64) ([]*entity.Output, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT `+outputColumns+` FROM outputs WHERE spent_by = $1 ORDER BY output_id ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list outputs spent by transaction: %w", err)
	}
	defer rows.Close()

	var out []*entity.Output
	for rows.Next() {
		o, err := scanOutput(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// TagsForOutput resolves the tags attached to an output through
// output_tags_map, honored when list_outputs requests IncludeTags.
func (r *OutputRepository) TagsForOutput(ctx context.Context, outputID int64) ([]string, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT t.tag FROM output_tags t
		JOIN output_tags_map m ON m.output_tag_id = t.output_tag_id
		WHERE m.output_id = $1 AND m.is_deleted = false AND t.is_deleted = false
		ORDER BY t.tag`, outputID)
	if err != nil {
		return nil, fmt.Errorf("list output tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan output tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
