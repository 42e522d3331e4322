package absence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists absence records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ExistsForSession reports whether any absence exists for the session. This
// is the one-shot reconciliation guard; the unique constraint backs it up
// when two passes race.
func (r *Repository) ExistsForSession(ctx context.Context, sessionID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM absences WHERE session_id = $1)
	`, sessionID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("absence: exists for session: %w", err)
	}
	return ok, nil
}

// Insert writes one absence record. The (student, session) unique constraint
// absorbs racing duplicates; created=false means the pair already had one.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO absences (id, student_id, session_id, status, justification_text, justification_doc_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (student_id, session_id) DO NOTHING
	`, rec.ID, rec.StudentID, rec.SessionID, rec.Status, rec.JustificationText, rec.JustificationDocURL, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return Record{}, false, fmt.Errorf("absence: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, false, fmt.Errorf("absence: insert: %w", err)
	}
	return rec, n == 1, nil
}

const recordColumns = `id, student_id, session_id, status,
	COALESCE(justification_text, ''), COALESCE(justification_doc_url, ''),
	created_at, updated_at`

func scanRecord(row *sql.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.Status,
		&rec.JustificationText, &rec.JustificationDocURL, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// Get returns a single record by id.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM absences WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("absence: get: %w", err)
	}
	return rec, nil
}

// UpdateJustification stores submitted content and moves the record to
// PENDING. Resubmission overwrites the previous content.
func (r *Repository) UpdateJustification(ctx context.Context, id, text, docURL string, now time.Time) (Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `
		UPDATE absences
		SET status = $2, justification_text = $3, justification_doc_url = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+recordColumns,
		id, StatusPending, text, docURL, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("absence: update justification: %w", err)
	}
	return rec, nil
}

// UpdateStatus applies an adjudication decision.
func (r *Repository) UpdateStatus(ctx context.Context, id, status string, now time.Time) (Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `
		UPDATE absences
		SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+recordColumns,
		id, status, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("absence: update status: %w", err)
	}
	return rec, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("absence: list: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.Status,
			&rec.JustificationText, &rec.JustificationDocURL, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("absence: list: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListForStudent returns a student's own absences, newest first.
func (r *Repository) ListForStudent(ctx context.Context, studentID string) ([]Record, error) {
	return r.list(ctx,
		`SELECT `+recordColumns+` FROM absences WHERE student_id = $1 ORDER BY created_at DESC`,
		studentID)
}

// ListAll returns every absence, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]Record, error) {
	return r.list(ctx,
		`SELECT `+recordColumns+` FROM absences ORDER BY created_at DESC`)
}
