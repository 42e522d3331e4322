package campus

import (
	"context"
	"time"
)

// Roles as stored by the identity service.
const (
	RoleStudent   = "STUDENT"
	RoleProfessor = "PROFESSOR"
	RoleAdmin     = "ADMIN"
)

// Session is one scheduled occurrence of a course. Owned by schedule
// management; this core reads it and only ever writes the two validation
// flags.
type Session struct {
	ID                   string    `json:"id"`
	Date                 time.Time `json:"date"`
	StartsAt             time.Time `json:"starts_at"`
	EndsAt               time.Time `json:"ends_at"`
	ProfessorID          string    `json:"professor_id"`
	ModuleID             string    `json:"module_id"`
	ValidatedByProfessor bool      `json:"validated_by_professor"`
	ValidatedByAdmin     bool      `json:"validated_by_admin"`
}

// StudentProfile carries what notification delivery needs about a student.
type StudentProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Directory answers identity and class-membership questions. Backed by the
// identity service's tables; strictly read-only here.
type Directory interface {
	IsProfessor(ctx context.Context, userID string) (bool, error)
	IsStudent(ctx context.Context, userID string) (bool, error)
	// UserClass returns the user's class ID, or "" when unassigned.
	UserClass(ctx context.Context, userID string) (string, error)
	StudentsOfClass(ctx context.Context, classID string) ([]string, error)
	Student(ctx context.Context, userID string) (StudentProfile, error)
}

// Schedule answers course-session questions. Backed by schedule management's
// tables; strictly read-only here.
type Schedule interface {
	GetSession(ctx context.Context, id string) (Session, error)
	// ClassOfSession resolves the class attending a session via its module,
	// or "" when the linkage is broken.
	ClassOfSession(ctx context.Context, session Session) (string, error)
}
