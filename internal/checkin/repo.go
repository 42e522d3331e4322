package checkin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Repository persists windows and check-ins in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateWindow inserts a new window. The partial unique index on code (among
// active windows) is the collision detector; a violation surfaces as
// ErrCodeTaken so the caller can retry with a fresh code.
func (r *Repository) CreateWindow(ctx context.Context, w Window) (Window, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkin_windows (id, session_id, code, lat, lon, created_at, expires_at, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, w.ID, w.SessionID, w.Code, w.Opener.Lat, w.Opener.Lon, w.CreatedAt, w.ExpiresAt, w.Active)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Window{}, ErrCodeTaken
		}
		return Window{}, fmt.Errorf("checkin: create window: %w", err)
	}
	return w, nil
}

// ActiveWindowByCode returns the active window carrying code. Expiry is not
// filtered here; the gate decides whether a stale-but-active window reads as
// expired.
func (r *Repository) ActiveWindowByCode(ctx context.Context, code string) (Window, error) {
	var w Window
	err := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, code, lat, lon, created_at, expires_at, active
		FROM checkin_windows
		WHERE code = $1 AND active
	`, code).Scan(&w.ID, &w.SessionID, &w.Code, &w.Opener.Lat, &w.Opener.Lon, &w.CreatedAt, &w.ExpiresAt, &w.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Window{}, ErrNotFound
		}
		return Window{}, fmt.Errorf("checkin: window by code: %w", err)
	}
	return w, nil
}

// ActiveWindowForProfessor returns the newest live window for a session the
// professor is currently teaching, for the live-roster view.
func (r *Repository) ActiveWindowForProfessor(ctx context.Context, professorID string, now time.Time) (Window, error) {
	var w Window
	err := r.db.QueryRowContext(ctx, `
		SELECT w.id, w.session_id, w.code, w.lat, w.lon, w.created_at, w.expires_at, w.active
		FROM checkin_windows w
		JOIN course_sessions s ON s.id = w.session_id
		WHERE s.professor_id = $1 AND w.active
		  AND s.starts_at <= $2 AND s.ends_at >= $2
		ORDER BY w.created_at DESC
		LIMIT 1
	`, professorID, now).Scan(&w.ID, &w.SessionID, &w.Code, &w.Opener.Lat, &w.Opener.Lon, &w.CreatedAt, &w.ExpiresAt, &w.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Window{}, ErrNotFound
		}
		return Window{}, fmt.Errorf("checkin: active window for professor: %w", err)
	}
	return w, nil
}

// InsertCheckIn records a redemption. The (window, student) unique constraint
// makes concurrent duplicates converge: created=false means someone got there
// first, which callers report as already recorded, not as an error.
func (r *Repository) InsertCheckIn(ctx context.Context, c CheckIn) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO checkins (id, window_id, student_id, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (window_id, student_id) DO NOTHING
	`, c.ID, c.WindowID, c.StudentID, c.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("checkin: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checkin: insert: %w", err)
	}
	return n == 1, nil
}

// StudentsCheckedIn returns the distinct students with a check-in against any
// window of the session. Feeds both the live roster and reconciliation.
func (r *Repository) StudentsCheckedIn(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT c.student_id
		FROM checkins c
		JOIN checkin_windows w ON w.id = c.window_id
		WHERE w.session_id = $1
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("checkin: students checked in: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("checkin: students checked in: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
