package absence

import "time"

// Justification lifecycle. UNJUSTIFIED and PENDING accept a (re)submission;
// APPROVED and REJECTED are terminal.
const (
	StatusUnjustified = "UNJUSTIFIED"
	StatusPending     = "PENDING"
	StatusApproved    = "APPROVED"
	StatusRejected    = "REJECTED"
)

// Record is the reconciled absence of one student from one course session.
// Created only by reconciliation; unique per (student, session).
type Record struct {
	ID                  string    `json:"id"`
	StudentID           string    `json:"student_id"`
	SessionID           string    `json:"session_id"`
	Status              string    `json:"status"`
	JustificationText   string    `json:"justification_text,omitempty"`
	JustificationDocURL string    `json:"justification_doc_url,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Closed reports whether the record has reached a terminal status.
func (r Record) Closed() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

// ReconciliationResult reports one reconciliation pass. AlreadyDone means a
// previous pass had created records for the session and nothing was written.
type ReconciliationResult struct {
	Created     int  `json:"created"`
	AlreadyDone bool `json:"already_done"`
}
