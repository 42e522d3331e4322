package absence

import (
	"context"
	"errors"
	"log"
	"time"

	"presence/internal/campus"
	"presence/internal/metrics"
	"presence/internal/queue"
)

var (
	// ErrNotFound means no absence record carries the given id.
	ErrNotFound = errors.New("absence not found")
	// ErrInvalid means a justification carried neither text nor document.
	ErrInvalid = errors.New("justification needs text or a document")
	// ErrForbidden means the caller is not the record's student.
	ErrForbidden = errors.New("not your absence record")
	// ErrClosed means the record was already adjudicated.
	ErrClosed = errors.New("absence can no longer be justified")
)

// Store is the persistence surface the engine needs.
type Store interface {
	ExistsForSession(ctx context.Context, sessionID string) (bool, error)
	Insert(ctx context.Context, rec Record) (Record, bool, error)
	Get(ctx context.Context, id string) (Record, error)
	UpdateJustification(ctx context.Context, id, text, docURL string, now time.Time) (Record, error)
	UpdateStatus(ctx context.Context, id, status string, now time.Time) (Record, error)
	ListForStudent(ctx context.Context, studentID string) ([]Record, error)
	ListAll(ctx context.Context) ([]Record, error)
}

// CheckinReader supplies the checked-in set consumed by reconciliation.
type CheckinReader interface {
	StudentsCheckedIn(ctx context.Context, sessionID string) ([]string, error)
}

// Service runs reconciliation and governs the justification lifecycle.
type Service struct {
	store    Store
	roster   *campus.Resolver
	checkins CheckinReader
	notify   queue.Queue // nil disables notification publishing
}

// NewService creates the absence service.
func NewService(store Store, roster *campus.Resolver, checkins CheckinReader, notify queue.Queue) *Service {
	return &Service{store: store, roster: roster, checkins: checkins, notify: notify}
}

// Reconcile turns roster-minus-checked-in into absence records, at most once
// per session. The existence pre-check makes repeat calls cheap no-ops; the
// (student, session) unique constraint makes a racing double-call safe even
// when the pre-check races.
func (s *Service) Reconcile(ctx context.Context, session campus.Session, now time.Time) (ReconciliationResult, error) {
	done, err := s.store.ExistsForSession(ctx, session.ID)
	if err != nil {
		return ReconciliationResult{}, err
	}
	if done {
		log.Printf("absence: session %s already reconciled", session.ID)
		metrics.Reconciliations.WithLabelValues("already_done").Inc()
		return ReconciliationResult{AlreadyDone: true}, nil
	}

	expected, err := s.roster.ExpectedStudents(ctx, session)
	if err != nil {
		return ReconciliationResult{}, err
	}
	checkedIn, err := s.checkins.StudentsCheckedIn(ctx, session.ID)
	if err != nil {
		return ReconciliationResult{}, err
	}

	present := make(map[string]bool, len(checkedIn))
	for _, id := range checkedIn {
		present[id] = true
	}

	var created int
	for _, studentID := range expected {
		if present[studentID] {
			continue
		}
		rec, ok, err := s.store.Insert(ctx, Record{
			StudentID: studentID,
			SessionID: session.ID,
			Status:    StatusUnjustified,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return ReconciliationResult{}, err
		}
		if !ok {
			continue // lost a race with a concurrent pass
		}
		created++
		metrics.AbsencesCreated.Inc()
		s.publish(ctx, rec)
	}

	outcome := "created"
	if created == 0 {
		outcome = "empty"
	}
	metrics.Reconciliations.WithLabelValues(outcome).Inc()
	log.Printf("absence: session %s reconciled, %d absence(s) created", session.ID, created)
	return ReconciliationResult{Created: created}, nil
}

// publish hands the new absence to the notification queue. Fire and forget:
// delivery failures never block or fail reconciliation.
func (s *Service) publish(ctx context.Context, rec Record) {
	if s.notify == nil {
		return
	}
	msg := queue.Message{Type: "absence", Body: []byte(rec.ID)}
	if err := s.notify.Publish(ctx, msg); err != nil {
		log.Printf("absence: notification publish failed for %s: %v", rec.ID, err)
	}
}

// Submit stores a student's justification and moves the record to PENDING.
// Submitting again while PENDING overwrites the previous content.
func (s *Service) Submit(ctx context.Context, absenceID, studentID, text, docURL string, now time.Time) (Record, error) {
	if text == "" && docURL == "" {
		return Record{}, ErrInvalid
	}
	rec, err := s.store.Get(ctx, absenceID)
	if err != nil {
		return Record{}, err
	}
	if rec.StudentID != studentID {
		return Record{}, ErrForbidden
	}
	if rec.Closed() {
		return Record{}, ErrClosed
	}
	return s.store.UpdateJustification(ctx, absenceID, text, docURL, now)
}

// Approve marks the absence approved. Already-closed records are returned
// unchanged; re-running a decision must be safe.
func (s *Service) Approve(ctx context.Context, absenceID string, now time.Time) (Record, error) {
	return s.decide(ctx, absenceID, StatusApproved, now)
}

// Reject marks the absence rejected.
func (s *Service) Reject(ctx context.Context, absenceID string, now time.Time) (Record, error) {
	return s.decide(ctx, absenceID, StatusRejected, now)
}

func (s *Service) decide(ctx context.Context, absenceID, status string, now time.Time) (Record, error) {
	rec, err := s.store.Get(ctx, absenceID)
	if err != nil {
		return Record{}, err
	}
	if rec.Closed() {
		return rec, nil
	}
	rec, err = s.store.UpdateStatus(ctx, absenceID, status, now)
	if err != nil {
		return Record{}, err
	}
	metrics.JustificationDecisions.WithLabelValues(status).Inc()
	return rec, nil
}

// ListForStudent returns a student's own absences.
func (s *Service) ListForStudent(ctx context.Context, studentID string) ([]Record, error) {
	return s.store.ListForStudent(ctx, studentID)
}

// ListAll returns every absence, for the admin view.
func (s *Service) ListAll(ctx context.Context) ([]Record, error) {
	return s.store.ListAll(ctx)
}

// Get returns a single record.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.store.Get(ctx, id)
}
