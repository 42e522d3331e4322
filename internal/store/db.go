package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
//
// Expected schema (provisioned by campus ops, uniqueness constraints are the
// concurrency mechanism for check-ins and absences):
//
//	course_sessions(id, session_date, starts_at, ends_at, professor_id,
//	                module_id, validated_by_professor, validated_by_admin)
//	checkin_windows(id, session_id, code, lat, lon, created_at, expires_at, active)
//	    with UNIQUE(code) WHERE active
//	checkins(id, window_id, student_id, created_at)
//	    with UNIQUE(window_id, student_id)
//	absences(id, student_id, session_id, status, justification_text,
//	         justification_doc_url, created_at, updated_at)
//	    with UNIQUE(student_id, session_id)
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
