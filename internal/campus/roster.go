package campus

import (
	"context"
	"log"
)

// Resolver computes the set of students expected at a session. Pure lookup,
// no mutation.
type Resolver struct {
	schedule  Schedule
	directory Directory
}

// NewResolver creates a roster resolver.
func NewResolver(schedule Schedule, directory Directory) *Resolver {
	return &Resolver{schedule: schedule, directory: directory}
}

// ExpectedStudents returns the students of the class attending the session.
// An unresolvable class is a recoverable no-op condition: it yields an empty
// roster (and therefore zero absences), not an error.
func (r *Resolver) ExpectedStudents(ctx context.Context, session Session) ([]string, error) {
	classID, err := r.schedule.ClassOfSession(ctx, session)
	if err != nil {
		return nil, err
	}
	if classID == "" {
		log.Printf("roster: no class resolvable for session %s, skipping", session.ID)
		return nil, nil
	}
	return r.directory.StudentsOfClass(ctx, classID)
}
