package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/lib/pq"

	"visa-case-tracker/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrStatusConflict is returned when a compare-and-set status update finds the
// case in a different status than the caller read.
var ErrStatusConflict = errors.New("case status changed concurrently")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an already opened handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema files in name order. Every statement is
// idempotent so it is safe on each start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := migrationsFS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateCase(ctx context.Context, c domain.Case, opened domain.AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cases (id, visa_category_id, status, created_at)
		VALUES ($1, $2, $3, $4)
	`, c.ID, c.VisaCategoryID, c.Status, c.CreatedAt)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO case_audit (case_id, action, details, created_at)
		VALUES ($1, $2, $3, $4)
	`, c.ID, opened.Action, opened.Details, opened.Timestamp)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetCase loads the case row with its audit trail and risk flags, both in
// insertion order. A missing case surfaces as sql.ErrNoRows.
func (s *PostgresStore) GetCase(ctx context.Context, caseID string) (domain.Case, error) {
	var c domain.Case
	var score sql.NullInt64
	row := s.db.QueryRowContext(ctx, `
		SELECT id, visa_category_id, status, eligibility_score, created_at
		FROM cases
		WHERE id = $1
	`, caseID)
	if err := row.Scan(&c.ID, &c.VisaCategoryID, &c.Status, &score, &c.CreatedAt); err != nil {
		return domain.Case{}, err
	}
	if score.Valid {
		v := int(score.Int64)
		c.EligibilityScore = &v
	}

	audit, err := s.listAudit(ctx, caseID)
	if err != nil {
		return domain.Case{}, err
	}
	flags, err := s.listRiskFlags(ctx, caseID)
	if err != nil {
		return domain.Case{}, err
	}
	c.AuditTrail = audit
	c.RiskFlags = flags
	return c, nil
}

func (s *PostgresStore) listAudit(ctx context.Context, caseID string) ([]domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, details, created_at
		FROM case_audit
		WHERE case_id = $1
		ORDER BY id ASC
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.Action, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) listRiskFlags(ctx context.Context, caseID string) ([]domain.RiskFlag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, details
		FROM case_risk_flags
		WHERE case_id = $1
		ORDER BY id ASC
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.RiskFlag, 0)
	for rows.Next() {
		var f domain.RiskFlag
		if err := rows.Scan(&f.Severity, &f.Details); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListCases returns case headers newest first with their risk flags. Audit
// trails are not loaded.
func (s *PostgresStore) ListCases(ctx context.Context, limit int) ([]domain.Case, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, visa_category_id, status, eligibility_score, created_at
		FROM cases
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Case, 0)
	for rows.Next() {
		var c domain.Case
		var score sql.NullInt64
		if err := rows.Scan(&c.ID, &c.VisaCategoryID, &c.Status, &score, &c.CreatedAt); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			c.EligibilityScore = &v
		}
		c.RiskFlags = make([]domain.RiskFlag, 0)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachRiskFlags(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) attachRiskFlags(ctx context.Context, cases []domain.Case) error {
	if len(cases) == 0 {
		return nil
	}
	ids := make([]string, len(cases))
	index := make(map[string]int, len(cases))
	for i, c := range cases {
		ids[i] = c.ID
		index[c.ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT case_id, severity, details
		FROM case_risk_flags
		WHERE case_id = ANY($1)
		ORDER BY id ASC
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var caseID string
		var f domain.RiskFlag
		if err := rows.Scan(&caseID, &f.Severity, &f.Details); err != nil {
			return err
		}
		i := index[caseID]
		cases[i].RiskFlags = append(cases[i].RiskFlags, f)
	}
	return rows.Err()
}

// UpdateCaseStatus moves a case from one status to another and appends the
// audit entry in the same transaction. It returns ErrStatusConflict when the
// case is no longer in status from.
func (s *PostgresStore) UpdateCaseStatus(ctx context.Context, caseID string, from, to domain.CaseStatus, entry domain.AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE cases
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, caseID, from, to)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: case %s is not %s", ErrStatusConflict, caseID, from)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO case_audit (case_id, action, details, created_at)
		VALUES ($1, $2, $3, $4)
	`, caseID, entry.Action, entry.Details, entry.Timestamp); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) AppendAudit(ctx context.Context, caseID string, entry domain.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO case_audit (case_id, action, details, created_at)
		VALUES ($1, $2, $3, $4)
	`, caseID, entry.Action, entry.Details, entry.Timestamp)
	return err
}

func (s *PostgresStore) AddRiskFlag(ctx context.Context, caseID string, flag domain.RiskFlag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO case_risk_flags (case_id, severity, details)
		VALUES ($1, $2, $3)
	`, caseID, flag.Severity, flag.Details)
	return err
}

// SetEligibilityScore records the score once; later calls leave the stored
// value untouched and report false.
func (s *PostgresStore) SetEligibilityScore(ctx context.Context, caseID string, score int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cases
		SET eligibility_score = $2, updated_at = NOW()
		WHERE id = $1 AND eligibility_score IS NULL
	`, caseID, score)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, application_id, doc_type, file_name, file_size, object_key, validation_status, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, doc.ID, doc.ApplicationID, doc.Type, doc.FileName, doc.FileSize, doc.ObjectKey, doc.ValidationStatus, doc.UploadedAt)
	return err
}

func (s *PostgresStore) SetDocumentObjectKey(ctx context.Context, documentID, objectKey string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET object_key = $2, updated_at = NOW()
		WHERE id = $1
	`, documentID, objectKey)
	return err
}

// DeleteDocument drops a document record whose upload did not complete.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	return err
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (domain.Document, error) {
	var d domain.Document
	row := s.db.QueryRowContext(ctx, `
		SELECT id, application_id, doc_type, file_name, file_size, object_key,
		       validation_status, validation_reason, uploaded_at
		FROM documents
		WHERE id = $1
	`, documentID)
	if err := row.Scan(
		&d.ID,
		&d.ApplicationID,
		&d.Type,
		&d.FileName,
		&d.FileSize,
		&d.ObjectKey,
		&d.ValidationStatus,
		&d.ValidationReason,
		&d.UploadedAt,
	); err != nil {
		return domain.Document{}, err
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, caseID string) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application_id, doc_type, file_name, file_size, object_key,
		       validation_status, validation_reason, uploaded_at
		FROM documents
		WHERE application_id = $1
		ORDER BY uploaded_at ASC, id ASC
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(
			&d.ID,
			&d.ApplicationID,
			&d.Type,
			&d.FileName,
			&d.FileSize,
			&d.ObjectKey,
			&d.ValidationStatus,
			&d.ValidationReason,
			&d.UploadedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetDocumentValidation(ctx context.Context, documentID string, status domain.ValidationStatus, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET validation_status = $2, validation_reason = $3, updated_at = NOW()
		WHERE id = $1
	`, documentID, status, reason)
	return err
}
