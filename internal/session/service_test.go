package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"presence/internal/absence"
	"presence/internal/campus"
)

type fakeSchedule struct {
	sessions map[string]campus.Session
}

func (f *fakeSchedule) GetSession(_ context.Context, id string) (campus.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return campus.Session{}, campus.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSchedule) ClassOfSession(_ context.Context, _ campus.Session) (string, error) {
	return "classA", nil
}

type flagStore struct {
	professorValidated map[string]bool
	adminValidated     map[string]bool
}

func newFlagStore() *flagStore {
	return &flagStore{professorValidated: map[string]bool{}, adminValidated: map[string]bool{}}
}

func (f *flagStore) MarkProfessorValidated(_ context.Context, id string) (bool, error) {
	if f.professorValidated[id] {
		return false, nil
	}
	f.professorValidated[id] = true
	return true, nil
}

func (f *flagStore) MarkAdminValidated(_ context.Context, id string) (bool, error) {
	if f.adminValidated[id] {
		return false, nil
	}
	f.adminValidated[id] = true
	return true, nil
}

func (f *flagStore) ResetValidation(_ context.Context, id string) error {
	delete(f.professorValidated, id)
	delete(f.adminValidated, id)
	return nil
}

type countingReconciler struct {
	calls  int
	result absence.ReconciliationResult
}

func (c *countingReconciler) Reconcile(_ context.Context, _ campus.Session, _ time.Time) (absence.ReconciliationResult, error) {
	c.calls++
	return c.result, nil
}

var (
	endsAt      = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	baseSession = campus.Session{
		ID:          "s1",
		StartsAt:    endsAt.Add(-2 * time.Hour),
		EndsAt:      endsAt,
		ProfessorID: "prof1",
		ModuleID:    "m1",
	}
)

func newTestService(sess campus.Session, store *flagStore, engine *countingReconciler) *Service {
	schedule := &fakeSchedule{sessions: map[string]campus.Session{sess.ID: sess}}
	return NewService(schedule, store, engine, time.Hour)
}

func TestValidateByProfessor(t *testing.T) {
	tests := []struct {
		name             string
		sessionID        string
		professor        string
		alreadyValidated bool
		now              time.Time
		wantErr          error
		wantReconcile    bool
	}{
		{name: "unknown session", sessionID: "nope", professor: "prof1", now: endsAt.Add(5 * time.Minute), wantErr: campus.ErrSessionNotFound},
		{name: "wrong professor", sessionID: "s1", professor: "prof2", now: endsAt.Add(5 * time.Minute), wantErr: ErrForbidden},
		{name: "already validated", sessionID: "s1", professor: "prof1", alreadyValidated: true, now: endsAt.Add(5 * time.Minute), wantErr: ErrAlreadyValidated},
		{name: "before session end", sessionID: "s1", professor: "prof1", now: endsAt.Add(-time.Minute), wantErr: ErrTooEarly},
		{name: "at session end", sessionID: "s1", professor: "prof1", now: endsAt, wantReconcile: true},
		{name: "within grace", sessionID: "s1", professor: "prof1", now: endsAt.Add(59 * time.Minute), wantReconcile: true},
		{name: "at grace boundary", sessionID: "s1", professor: "prof1", now: endsAt.Add(time.Hour), wantReconcile: true},
		{name: "past grace", sessionID: "s1", professor: "prof1", now: endsAt.Add(61 * time.Minute), wantErr: ErrTooLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := baseSession
			sess.ValidatedByProfessor = tt.alreadyValidated
			store := newFlagStore()
			engine := &countingReconciler{result: absence.ReconciliationResult{Created: 2}}
			svc := newTestService(sess, store, engine)

			res, err := svc.ValidateByProfessor(context.Background(), tt.sessionID, tt.professor, tt.now)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateByProfessor() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantReconcile {
				if engine.calls != 1 {
					t.Errorf("reconcile calls = %d, want 1", engine.calls)
				}
				if res.Created != 2 {
					t.Errorf("created = %d, want 2", res.Created)
				}
				if !store.professorValidated["s1"] {
					t.Error("professor flag not set")
				}
			} else if engine.calls != 0 {
				t.Errorf("reconcile calls = %d, want 0", engine.calls)
			}
		})
	}
}

func TestValidateByProfessorRace(t *testing.T) {
	// The schedule snapshot shows the flag unset but the store update finds it
	// already set: the caller gets a conflict and reconciliation never runs.
	store := newFlagStore()
	store.professorValidated["s1"] = true
	engine := &countingReconciler{}
	svc := newTestService(baseSession, store, engine)

	_, err := svc.ValidateByProfessor(context.Background(), "s1", "prof1", endsAt.Add(5*time.Minute))
	if !errors.Is(err, ErrAlreadyValidated) {
		t.Fatalf("ValidateByProfessor() error = %v, want %v", err, ErrAlreadyValidated)
	}
	if engine.calls != 0 {
		t.Errorf("reconcile calls = %d, want 0", engine.calls)
	}
}

func TestValidateByAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("no time gate and no reconciliation", func(t *testing.T) {
		store := newFlagStore()
		engine := &countingReconciler{}
		svc := newTestService(baseSession, store, engine)

		// Weeks after the grace period would have expired for the professor.
		if err := svc.ValidateByAdmin(ctx, "s1"); err != nil {
			t.Fatalf("ValidateByAdmin() error = %v", err)
		}
		if !store.adminValidated["s1"] {
			t.Error("admin flag not set")
		}
		if engine.calls != 0 {
			t.Errorf("reconcile calls = %d, want 0", engine.calls)
		}
	})

	t.Run("already validated", func(t *testing.T) {
		sess := baseSession
		sess.ValidatedByAdmin = true
		svc := newTestService(sess, newFlagStore(), &countingReconciler{})

		if err := svc.ValidateByAdmin(ctx, "s1"); !errors.Is(err, ErrAlreadyValidated) {
			t.Fatalf("ValidateByAdmin() error = %v, want %v", err, ErrAlreadyValidated)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		svc := newTestService(baseSession, newFlagStore(), &countingReconciler{})
		if err := svc.ValidateByAdmin(ctx, "nope"); !errors.Is(err, campus.ErrSessionNotFound) {
			t.Fatalf("ValidateByAdmin() error = %v, want %v", err, campus.ErrSessionNotFound)
		}
	})
}

func TestResetValidation(t *testing.T) {
	ctx := context.Background()
	store := newFlagStore()
	store.professorValidated["s1"] = true
	store.adminValidated["s1"] = true
	svc := newTestService(baseSession, store, &countingReconciler{})

	if err := svc.ResetValidation(ctx, "s1"); err != nil {
		t.Fatalf("ResetValidation() error = %v", err)
	}
	if store.professorValidated["s1"] || store.adminValidated["s1"] {
		t.Error("flags not cleared")
	}

	if err := svc.ResetValidation(ctx, "nope"); !errors.Is(err, campus.ErrSessionNotFound) {
		t.Fatalf("ResetValidation() error = %v, want %v", err, campus.ErrSessionNotFound)
	}
}

func TestExplicitReconcile(t *testing.T) {
	engine := &countingReconciler{result: absence.ReconciliationResult{AlreadyDone: true}}
	svc := newTestService(baseSession, newFlagStore(), engine)

	res, err := svc.Reconcile(context.Background(), "s1", endsAt.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !res.AlreadyDone {
		t.Error("result not passed through")
	}
	if engine.calls != 1 {
		t.Errorf("reconcile calls = %d, want 1", engine.calls)
	}
}
