package session

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository writes the two validation flags on course_sessions. The rest of
// the row belongs to schedule management and is never touched here.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) setFlag(ctx context.Context, sessionID, column string) (bool, error) {
	// The WHERE NOT guard makes the false→true transition one-shot even when
	// two validations race.
	res, err := r.db.ExecContext(ctx,
		`UPDATE course_sessions SET `+column+` = TRUE WHERE id = $1 AND NOT `+column,
		sessionID)
	if err != nil {
		return false, fmt.Errorf("session: set %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("session: set %s: %w", column, err)
	}
	return n == 1, nil
}

// MarkProfessorValidated flips validated_by_professor once; false means it
// was already set.
func (r *Repository) MarkProfessorValidated(ctx context.Context, sessionID string) (bool, error) {
	return r.setFlag(ctx, sessionID, "validated_by_professor")
}

// MarkAdminValidated flips validated_by_admin once.
func (r *Repository) MarkAdminValidated(ctx context.Context, sessionID string) (bool, error) {
	return r.setFlag(ctx, sessionID, "validated_by_admin")
}

// ResetValidation clears both flags. Absence records created by an earlier
// reconciliation are left alone.
func (r *Repository) ResetValidation(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE course_sessions
		SET validated_by_professor = FALSE, validated_by_admin = FALSE
		WHERE id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("session: reset validation: %w", err)
	}
	return nil
}
