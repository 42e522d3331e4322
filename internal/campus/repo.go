package campus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID resolves to nothing.
var ErrSessionNotFound = errors.New("session not found")

// SQLDirectory implements Directory against the identity service's users
// table.
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory creates a directory backed by Postgres.
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

func (d *SQLDirectory) hasRole(ctx context.Context, userID, role string) (bool, error) {
	var ok bool
	err := d.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND role = $2)
	`, userID, role).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("directory: role lookup: %w", err)
	}
	return ok, nil
}

// IsProfessor reports whether the user carries the professor role.
func (d *SQLDirectory) IsProfessor(ctx context.Context, userID string) (bool, error) {
	return d.hasRole(ctx, userID, RoleProfessor)
}

// IsStudent reports whether the user carries the student role.
func (d *SQLDirectory) IsStudent(ctx context.Context, userID string) (bool, error) {
	return d.hasRole(ctx, userID, RoleStudent)
}

// UserClass returns the user's class ID, or "" when unassigned.
func (d *SQLDirectory) UserClass(ctx context.Context, userID string) (string, error) {
	var classID sql.NullString
	err := d.db.QueryRowContext(ctx, `
		SELECT class_id FROM users WHERE id = $1
	`, userID).Scan(&classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("directory: class lookup: %w", err)
	}
	return classID.String, nil
}

// StudentsOfClass returns the IDs of all students belonging to a class.
func (d *SQLDirectory) StudentsOfClass(ctx context.Context, classID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id FROM users WHERE class_id = $1 AND role = $2 ORDER BY id
	`, classID, RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("directory: students of class: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("directory: students of class: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Student returns the profile used for notification delivery.
func (d *SQLDirectory) Student(ctx context.Context, userID string) (StudentProfile, error) {
	var p StudentProfile
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, email FROM users WHERE id = $1
	`, userID).Scan(&p.ID, &p.Name, &p.Email)
	if err != nil {
		return StudentProfile{}, fmt.Errorf("directory: student profile: %w", err)
	}
	return p, nil
}

// SQLSchedule implements Schedule against schedule management's tables.
type SQLSchedule struct {
	db *sql.DB
}

// NewSQLSchedule creates a schedule reader backed by Postgres.
func NewSQLSchedule(db *sql.DB) *SQLSchedule {
	return &SQLSchedule{db: db}
}

// GetSession returns a session by ID.
func (s *SQLSchedule) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_date, starts_at, ends_at, professor_id, module_id,
		       validated_by_professor, validated_by_admin
		FROM course_sessions WHERE id = $1
	`, id).Scan(
		&sess.ID, &sess.Date, &sess.StartsAt, &sess.EndsAt,
		&sess.ProfessorID, &sess.ModuleID,
		&sess.ValidatedByProfessor, &sess.ValidatedByAdmin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("schedule: get session: %w", err)
	}
	return sess, nil
}

// ClassOfSession resolves the class attending a session via its module.
func (s *SQLSchedule) ClassOfSession(ctx context.Context, session Session) (string, error) {
	var classID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT class_id FROM modules WHERE id = $1
	`, session.ModuleID).Scan(&classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("schedule: class of session: %w", err)
	}
	return classID.String, nil
}
