package checkin

import (
	"math/rand"
	"time"

	"presence/internal/geo"
)

// Window is an opened attendance-capture window for one course session.
// Windows are never deleted; expiry bounds redemption, the active flag only
// matters for code lookup.
type Window struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Code      string    `json:"code"`
	Opener    geo.Coord `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

// CheckIn is one student's successful redemption of a window. Append-only.
type CheckIn struct {
	ID        string    `json:"id"`
	WindowID  string    `json:"window_id"`
	StudentID string    `json:"student_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RosterEntry is one student's live presence status for an in-progress
// session.
type RosterEntry struct {
	StudentID string `json:"student_id"`
	Present   bool   `json:"present"`
}

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// generateCode returns a random redemption code. Uniqueness among active
// windows is enforced by the store; callers retry on the rare collision.
func generateCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}
