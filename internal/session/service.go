package session

import (
	"context"
	"errors"
	"time"

	"presence/internal/absence"
	"presence/internal/campus"
)

var (
	// ErrForbidden means the caller is not the session's assigned professor.
	ErrForbidden = errors.New("not the assigned professor")
	// ErrAlreadyValidated means the flag was already set; callers should treat
	// this as a conflict, not a failure of the session itself.
	ErrAlreadyValidated = errors.New("session already validated")
	// ErrTooEarly means the session has not ended yet.
	ErrTooEarly = errors.New("session has not ended")
	// ErrTooLate means the post-end grace window has passed.
	ErrTooLate = errors.New("validation period is over")
)

// Store writes the validation flags.
type Store interface {
	MarkProfessorValidated(ctx context.Context, sessionID string) (bool, error)
	MarkAdminValidated(ctx context.Context, sessionID string) (bool, error)
	ResetValidation(ctx context.Context, sessionID string) error
}

// Reconciler is the absence engine's entry point.
type Reconciler interface {
	Reconcile(ctx context.Context, session campus.Session, now time.Time) (absence.ReconciliationResult, error)
}

// Service governs session validation. Professor validation is time-gated and
// triggers reconciliation; admin validation is an ungated override that does
// not reconcile. That asymmetry is campus policy as it stands today, not an
// oversight in this code.
type Service struct {
	schedule campus.Schedule
	store    Store
	engine   Reconciler
	grace    time.Duration
}

// NewService creates the validation service. grace is how long after session
// end the professor may still validate.
func NewService(schedule campus.Schedule, store Store, engine Reconciler, grace time.Duration) *Service {
	if grace <= 0 {
		grace = time.Hour
	}
	return &Service{schedule: schedule, store: store, engine: engine, grace: grace}
}

// ValidateByProfessor marks the session delivered and runs reconciliation.
// Allowed only for the assigned professor, between session end and end+grace,
// and only once.
func (s *Service) ValidateByProfessor(ctx context.Context, sessionID, professorID string, now time.Time) (absence.ReconciliationResult, error) {
	sess, err := s.schedule.GetSession(ctx, sessionID)
	if err != nil {
		return absence.ReconciliationResult{}, err
	}
	if sess.ProfessorID != professorID {
		return absence.ReconciliationResult{}, ErrForbidden
	}
	if sess.ValidatedByProfessor {
		return absence.ReconciliationResult{}, ErrAlreadyValidated
	}
	if now.Before(sess.EndsAt) {
		return absence.ReconciliationResult{}, ErrTooEarly
	}
	if now.After(sess.EndsAt.Add(s.grace)) {
		return absence.ReconciliationResult{}, ErrTooLate
	}

	ok, err := s.store.MarkProfessorValidated(ctx, sessionID)
	if err != nil {
		return absence.ReconciliationResult{}, err
	}
	if !ok {
		// lost the race with a concurrent validation
		return absence.ReconciliationResult{}, ErrAlreadyValidated
	}
	return s.engine.Reconcile(ctx, sess, now)
}

// ValidateByAdmin sets the admin flag. No time gate and no reconciliation:
// administrative confirmation is a distinct concern from attendance.
func (s *Service) ValidateByAdmin(ctx context.Context, sessionID string) error {
	sess, err := s.schedule.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.ValidatedByAdmin {
		return ErrAlreadyValidated
	}
	ok, err := s.store.MarkAdminValidated(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyValidated
	}
	return nil
}

// ResetValidation clears both flags unconditionally. It corrects the flags
// only; it never undoes reconciliation.
func (s *Service) ResetValidation(ctx context.Context, sessionID string) error {
	if _, err := s.schedule.GetSession(ctx, sessionID); err != nil {
		return err
	}
	return s.store.ResetValidation(ctx, sessionID)
}

// Reconcile exposes the engine for the explicit admin trigger. Same one-shot
// semantics as the automatic post-validation run.
func (s *Service) Reconcile(ctx context.Context, sessionID string, now time.Time) (absence.ReconciliationResult, error) {
	sess, err := s.schedule.GetSession(ctx, sessionID)
	if err != nil {
		return absence.ReconciliationResult{}, err
	}
	return s.engine.Reconcile(ctx, sess, now)
}
