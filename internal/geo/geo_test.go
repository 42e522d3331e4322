package geo

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name   string
		a, b   Coord
		wantM  float64
		within float64
	}{
		{name: "same point", a: Coord{48.8566, 2.3522}, b: Coord{48.8566, 2.3522}, wantM: 0, within: 0.01},
		// 0.001 deg of latitude is ~111.2 m everywhere
		{name: "one millidegree north", a: Coord{48.8566, 2.3522}, b: Coord{48.8576, 2.3522}, wantM: 111.2, within: 0.5},
		{name: "paris to london", a: Coord{48.8566, 2.3522}, b: Coord{51.5074, -0.1278}, wantM: 343500, within: 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.wantM) > tt.within {
				t.Errorf("Distance() = %.2f m, want %.2f ± %.2f", got, tt.wantM, tt.within)
			}
			// symmetry
			if back := Distance(tt.b, tt.a); math.Abs(back-got) > 1e-9 {
				t.Errorf("Distance() not symmetric: %v vs %v", got, back)
			}
		})
	}
}

func TestGateCanOpenWindow(t *testing.T) {
	g := NewGate(30*time.Minute, 5*time.Minute, 100)
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour) // 12:00

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "before session start", now: start.Add(-time.Minute), want: false},
		{name: "at session start", now: start, want: true},
		{name: "mid session", now: start.Add(time.Hour), want: true},
		{name: "at cutoff", now: end.Add(-30 * time.Minute), want: true},
		{name: "past cutoff", now: end.Add(-29 * time.Minute), want: false},
		{name: "after session end", now: end.Add(time.Minute), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.CanOpenWindow(start, end, tt.now); got != tt.want {
				t.Errorf("CanOpenWindow(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestGateCanRedeem(t *testing.T) {
	g := NewGate(30*time.Minute, 5*time.Minute, 100)
	opened := time.Date(2025, 3, 10, 10, 5, 0, 0, time.UTC)
	expiry := g.ExpiryFor(opened) // 10:10
	opener := Coord{48.8566, 2.3522}

	near := Coord{48.85678, 2.3522} // ~20 m north
	far := Coord{48.85840, 2.3522}  // ~200 m north

	tests := []struct {
		name    string
		now     time.Time
		active  bool
		student Coord
		wantErr error
	}{
		{name: "valid nearby redemption", now: opened.Add(time.Minute), active: true, student: near},
		{name: "exactly at expiry", now: expiry, active: true, student: near},
		{name: "past expiry", now: expiry.Add(time.Second), active: true, student: near, wantErr: ErrExpired},
		{name: "more than five minutes later", now: opened.Add(6 * time.Minute), active: true, student: near, wantErr: ErrExpired},
		{name: "inactive window", now: opened.Add(time.Minute), active: false, student: near, wantErr: ErrExpired},
		{name: "too far", now: opened.Add(time.Minute), active: true, student: far, wantErr: ErrTooFar},
		// expiry is checked before distance, so a stale far attempt reads as expired
		{name: "expired and far", now: expiry.Add(time.Minute), active: true, student: far, wantErr: ErrExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.CanRedeem(expiry, tt.active, opener, tt.student, tt.now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CanRedeem() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewGateDefaults(t *testing.T) {
	g := NewGate(0, 0, 0)
	if g.OpenCutoff != 30*time.Minute || g.WindowTTL != 5*time.Minute || g.RadiusMeters != 100 {
		t.Errorf("NewGate defaults = %+v", g)
	}
}
