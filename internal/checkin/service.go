package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"presence/internal/campus"
	"presence/internal/geo"
	"presence/internal/metrics"
)

var (
	// ErrForbidden means the caller is not the session's assigned professor.
	ErrForbidden = errors.New("not the assigned professor")
	// ErrOutOfWindow means the creation interval for check-in codes has passed
	// (or the session has not started).
	ErrOutOfWindow = errors.New("outside the permitted creation interval")
	// ErrNotFound covers unknown codes and closed windows alike, so a caller
	// cannot probe window state.
	ErrNotFound = errors.New("invalid or expired code")
	// ErrNotEnrolled means the student does not belong to the session's class.
	ErrNotEnrolled = errors.New("student not enrolled in this course")
	// ErrCodeTaken signals an active-code collision; retried, never surfaced.
	ErrCodeTaken = errors.New("code already in use")
)

// maxCodeAttempts bounds the collision retry loop. The code space is 36^6;
// hitting this limit means something is broken, not unlucky.
const maxCodeAttempts = 5

// Store is the persistence surface the manager needs.
type Store interface {
	CreateWindow(ctx context.Context, w Window) (Window, error)
	ActiveWindowByCode(ctx context.Context, code string) (Window, error)
	ActiveWindowForProfessor(ctx context.Context, professorID string, now time.Time) (Window, error)
	InsertCheckIn(ctx context.Context, c CheckIn) (bool, error)
	StudentsCheckedIn(ctx context.Context, sessionID string) ([]string, error)
}

// Service owns check-in windows and their redemptions.
type Service struct {
	store     Store
	schedule  campus.Schedule
	directory campus.Directory
	roster    *campus.Resolver
	gate      geo.Gate
}

// NewService creates the check-in manager.
func NewService(store Store, schedule campus.Schedule, directory campus.Directory, roster *campus.Resolver, gate geo.Gate) *Service {
	return &Service{store: store, schedule: schedule, directory: directory, roster: roster, gate: gate}
}

// OpenWindow opens a redemption window for a session at the professor's
// coordinate. Expiry is fixed at creation and never extended.
func (s *Service) OpenWindow(ctx context.Context, sessionID, professorID string, coord geo.Coord, now time.Time) (Window, error) {
	session, err := s.schedule.GetSession(ctx, sessionID)
	if err != nil {
		return Window{}, err
	}
	if session.ProfessorID != professorID {
		return Window{}, ErrForbidden
	}
	if !s.gate.CanOpenWindow(session.StartsAt, session.EndsAt, now) {
		return Window{}, ErrOutOfWindow
	}

	w := Window{
		SessionID: sessionID,
		Opener:    coord,
		CreatedAt: now,
		ExpiresAt: s.gate.ExpiryFor(now),
		Active:    true,
	}
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		w.Code = generateCode()
		created, err := s.store.CreateWindow(ctx, w)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if err != nil {
			return Window{}, err
		}
		metrics.WindowsOpened.Inc()
		return created, nil
	}
	return Window{}, fmt.Errorf("checkin: no unique code after %d attempts", maxCodeAttempts)
}

// RedeemResult reports a successful redemption. AlreadyRecorded means the
// student had redeemed this window before; redeeming twice is not an error.
type RedeemResult struct {
	Window          Window
	AlreadyRecorded bool
}

// Redeem consumes a code on behalf of a student standing at coord.
func (s *Service) Redeem(ctx context.Context, code, studentID string, coord geo.Coord, now time.Time) (RedeemResult, error) {
	w, err := s.store.ActiveWindowByCode(ctx, code)
	if err != nil {
		metrics.CheckinsRejected.WithLabelValues("not_found").Inc()
		return RedeemResult{}, err
	}

	if err := s.gate.CanRedeem(w.ExpiresAt, w.Active, w.Opener, coord, now); err != nil {
		switch {
		case errors.Is(err, geo.ErrExpired):
			metrics.CheckinsRejected.WithLabelValues("expired").Inc()
		case errors.Is(err, geo.ErrTooFar):
			metrics.CheckinsRejected.WithLabelValues("too_far").Inc()
		}
		return RedeemResult{}, err
	}

	session, err := s.schedule.GetSession(ctx, w.SessionID)
	if err != nil {
		return RedeemResult{}, err
	}
	sessionClass, err := s.schedule.ClassOfSession(ctx, session)
	if err != nil {
		return RedeemResult{}, err
	}
	studentClass, err := s.directory.UserClass(ctx, studentID)
	if err != nil {
		return RedeemResult{}, err
	}
	if sessionClass == "" || studentClass != sessionClass {
		metrics.CheckinsRejected.WithLabelValues("not_enrolled").Inc()
		return RedeemResult{}, ErrNotEnrolled
	}

	created, err := s.store.InsertCheckIn(ctx, CheckIn{
		WindowID:  w.ID,
		StudentID: studentID,
		CreatedAt: now,
	})
	if err != nil {
		return RedeemResult{}, err
	}
	if created {
		metrics.CheckinsRecorded.Inc()
	}
	return RedeemResult{Window: w, AlreadyRecorded: !created}, nil
}

// LiveRoster returns expected students with present/absent status for the
// session the professor is teaching right now. No live window means an empty
// roster.
func (s *Service) LiveRoster(ctx context.Context, professorID string, now time.Time) ([]RosterEntry, error) {
	w, err := s.store.ActiveWindowForProfessor(ctx, professorID, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	session, err := s.schedule.GetSession(ctx, w.SessionID)
	if err != nil {
		return nil, err
	}
	expected, err := s.roster.ExpectedStudents(ctx, session)
	if err != nil {
		return nil, err
	}
	checkedIn, err := s.store.StudentsCheckedIn(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(checkedIn))
	for _, id := range checkedIn {
		present[id] = true
	}
	entries := make([]RosterEntry, 0, len(expected))
	for _, id := range expected {
		entries = append(entries, RosterEntry{StudentID: id, Present: present[id]})
	}
	return entries, nil
}
