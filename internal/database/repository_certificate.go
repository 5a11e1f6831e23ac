package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
)

// CertificateRepository handles the certificates and certificate_fields
// tables (spec.md §3.1, the acquire/prove/list/relinquish certificate
// surface).
type CertificateRepository struct {
	client *Client
}

// NewCertificateRepository constructs a CertificateRepository.
func NewCertificateRepository(client *Client) *CertificateRepository {
	return &CertificateRepository{client: client}
}

// Create inserts a certificate and its field rows inside one transaction.
func (r *CertificateRepository) Create(ctx context.Context, c *entity.Certificate) (*entity.Certificate, error) {
	if c.CertificateID == uuid.Nil {
		c.CertificateID = uuid.New()
	}

	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create certificate: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO certificates (certificate_id, user_id, type, serial_number, subject, certifier, revocation_outpoint, signature)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		c.CertificateID, c.UserID, c.Type, c.SerialNumber, c.Subject, c.Certifier,
		c.RevocationOutpoint, c.Signature,
	).Scan(&c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	for _, f := range c.Fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO certificate_fields (certificate_id, field_name, field_value) VALUES ($1,$2,$3)`,
			c.CertificateID, f.FieldName, f.FieldValue); err != nil {
			return nil, fmt.Errorf("create certificate field %s: %w", f.FieldName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create certificate: %w", err)
	}
	return c, nil
}

// GetByID loads a certificate and its fields.
func (r *CertificateRepository) GetByID(ctx context.Context, certificateID uuid.UUID) (*entity.Certificate, error) {
	c := &entity.Certificate{}
	err := r.client.QueryRowContext(ctx, `
		SELECT certificate_id, user_id, type, serial_number, subject, certifier, revocation_outpoint,
			signature, is_deleted, created_at
		FROM certificates WHERE certificate_id = $1 AND is_deleted = false`, certificateID).Scan(
		&c.CertificateID, &c.UserID, &c.Type, &c.SerialNumber, &c.Subject, &c.Certifier,
		&c.RevocationOutpoint, &c.Signature, &c.IsDeleted, &c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrCertificateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get certificate: %w", err)
	}

	fields, err := r.fieldsFor(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	c.Fields = fields
	return c, nil
}

func (r *CertificateRepository) fieldsFor(ctx context.Context, certificateID uuid.UUID) ([]entity.CertificateField, error) {
	rows, err := r.client.QueryContext(ctx,
		`SELECT certificate_id, field_name, field_value FROM certificate_fields WHERE certificate_id = $1`,
		certificateID)
	if err != nil {
		return nil, fmt.Errorf("list certificate fields: %w", err)
	}
	defer rows.Close()

	var fields []entity.CertificateField
	for rows.Next() {
		var f entity.CertificateField
		if err := rows.Scan(&f.CertificateID, &f.FieldName, &f.FieldValue); err != nil {
			return nil, fmt.Errorf("scan certificate field: %w", err)
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// ListByUser returns a user's non-deleted certificates, optionally filtered
// by type and certifier (spec.md §6.1 list_certificates).
func (r *CertificateRepository) ListByUser(ctx context.Context, userID int64, certType, certifier string) ([]*entity.Certificate, error) {
	query := `
		SELECT certificate_id, user_id, type, serial_number, subject, certifier, revocation_outpoint,
			signature, is_deleted, created_at
		FROM certificates WHERE user_id = $1 AND is_deleted = false`
	args := []any{userID}
	if certType != "" {
		args = append(args, certType)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if certifier != "" {
		args = append(args, certifier)
		query += fmt.Sprintf(" AND certifier = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.client.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var out []*entity.Certificate
	for rows.Next() {
		c := &entity.Certificate{}
		if err := rows.Scan(&c.CertificateID, &c.UserID, &c.Type, &c.SerialNumber, &c.Subject,
			&c.Certifier, &c.RevocationOutpoint, &c.Signature, &c.IsDeleted, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range out {
		fields, err := r.fieldsFor(ctx, c.CertificateID)
		if err != nil {
			return nil, err
		}
		c.Fields = fields
	}
	return out, nil
}

// ListByUserFiltered is ListByUser generalized to the multi-value
// certifiers/types filters and pagination list_certificates actually takes
// (spec.md §6.1).
func (r *CertificateRepository) ListByUserFiltered(ctx context.Context, userID int64, types, certifiers []string, limit, offset int) ([]*entity.Certificate, int64, error) {
	conds := []string{"user_id = $1", "is_deleted = false"}
	args := []any{userID}
	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			args = append(args, t)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(certifiers) > 0 {
		placeholders := make([]string, len(certifiers))
		for i, c := range certifiers {
			args = append(args, c)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, fmt.Sprintf("certifier IN (%s)", strings.Join(placeholders, ",")))
	}
	where := strings.Join(conds, " AND ")

	var total int64
	if err := r.client.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}

	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT certificate_id, user_id, type, serial_number, subject, certifier, revocation_outpoint,
			signature, is_deleted, created_at
		FROM certificates WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := r.client.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var out []*entity.Certificate
	for rows.Next() {
		c := &entity.Certificate{}
		if err := rows.Scan(&c.CertificateID, &c.UserID, &c.Type, &c.SerialNumber, &c.Subject,
			&c.Certifier, &c.RevocationOutpoint, &c.Signature, &c.IsDeleted, &c.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, c := range out {
		fields, err := r.fieldsFor(ctx, c.CertificateID)
		if err != nil {
			return nil, 0, err
		}
		c.Fields = fields
	}
	return out, total, nil
}

// FindBySubject returns non-deleted certificates, across all users, whose
// subject matches the given identity key. Backs discover_by_identity_key
// (spec.md §6.1): the operation is a read-only lookup over locally-held
// certificates, not a network query, since no overlay/certifier transport
// is in scope (spec.md §1).
func (r *CertificateRepository) FindBySubject(ctx context.Context, subject string, limit, offset int) ([]*entity.Certificate, int64, error) {
	var total int64
	if err := r.client.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM certificates WHERE subject = $1 AND is_deleted = false`, subject).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count certificates by subject: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.client.QueryContext(ctx, `
		SELECT certificate_id, user_id, type, serial_number, subject, certifier, revocation_outpoint,
			signature, is_deleted, created_at
		FROM certificates WHERE subject = $1 AND is_deleted = false
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, subject, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("find certificates by subject: %w", err)
	}
	defer rows.Close()

	var out []*entity.Certificate
	for rows.Next() {
		c := &entity.Certificate{}
		if err := rows.Scan(&c.CertificateID, &c.UserID, &c.Type, &c.SerialNumber, &c.Subject,
			&c.Certifier, &c.RevocationOutpoint, &c.Signature, &c.IsDeleted, &c.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, c := range out {
		fields, err := r.fieldsFor(ctx, c.CertificateID)
		if err != nil {
			return nil, 0, err
		}
		c.Fields = fields
	}
	return out, total, nil
}

// FindByAttributes returns non-deleted certificates holding every given
// field name/value pair. Backs discover_by_attributes (spec.md §6.1).
func (r *CertificateRepository) FindByAttributes(ctx context.Context, attrs map[string]string, limit, offset int) ([]*entity.Certificate, int64, error) {
	if len(attrs) == 0 {
		return nil, 0, nil
	}
	var args []any
	var matchClauses []string
	for name, value := range attrs {
		args = append(args, name, value)
		matchClauses = append(matchClauses, fmt.Sprintf("(field_name = $%d AND field_value = $%d)", len(args)-1, len(args)))
	}
	matchWhere := strings.Join(matchClauses, " OR ")

	idQuery := fmt.Sprintf(`
		SELECT certificate_id FROM certificate_fields
		WHERE %s
		GROUP BY certificate_id HAVING COUNT(DISTINCT field_name) = %d`, matchWhere, len(attrs))

	if limit <= 0 {
		limit = 100
	}
	countQuery := fmt.Sprintf(`
		SELECT COUNT(*) FROM certificates c
		WHERE c.is_deleted = false AND c.certificate_id IN (%s)`, idQuery)
	var total int64
	if err := r.client.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count certificates by attributes: %w", err)
	}

	listArgs := append(append([]any{}, args...), limit, offset)
	listQuery := fmt.Sprintf(`
		SELECT c.certificate_id, c.user_id, c.type, c.serial_number, c.subject, c.certifier,
			c.revocation_outpoint, c.signature, c.is_deleted, c.created_at
		FROM certificates c
		WHERE c.is_deleted = false AND c.certificate_id IN (%s)
		ORDER BY c.created_at DESC LIMIT $%d OFFSET $%d`, idQuery, len(listArgs)-1, len(listArgs))

	rows, err := r.client.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("find certificates by attributes: %w", err)
	}
	defer rows.Close()

	var out []*entity.Certificate
	for rows.Next() {
		c := &entity.Certificate{}
		if err := rows.Scan(&c.CertificateID, &c.UserID, &c.Type, &c.SerialNumber, &c.Subject,
			&c.Certifier, &c.RevocationOutpoint, &c.Signature, &c.IsDeleted, &c.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, c := range out {
		fields, err := r.fieldsFor(ctx, c.CertificateID)
		if err != nil {
			return nil, 0, err
		}
		c.Fields = fields
	}
	return out, total, nil
}

// Relinquish soft-deletes a certificate (spec.md §6.1 relinquish_certificate).
func (r *CertificateRepository) Relinquish(ctx context.Context, certificateID uuid.UUID) error {
	res, err := r.client.ExecContext(ctx,
		`UPDATE certificates SET is_deleted = true WHERE certificate_id = $1`, certificateID)
	if err != nil {
		return fmt.Errorf("relinquish certificate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCertificateNotFound
	}
	return nil
}
