package geo

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrExpired means the window is closed or past its expiry.
	ErrExpired = errors.New("checkin window expired")
	// ErrTooFar means the redemption coordinate is outside the geofence.
	ErrTooFar = errors.New("too far from checkin point")
)

// Coord is a WGS84 latitude/longitude pair.
type Coord struct {
	Lat float64
	Lon float64
}

// Gate decides when a check-in window may be opened and when a redemption
// attempt is acceptable. Expiry and distance checks are the domain-level
// timeout mechanism; there is no separate cancellation path.
type Gate struct {
	OpenCutoff   time.Duration // opening forbidden later than this before session end
	WindowTTL    time.Duration // window lifetime, fixed at creation
	RadiusMeters float64
}

// NewGate builds a gate, falling back to campus defaults for zero values.
func NewGate(openCutoff, windowTTL time.Duration, radiusMeters float64) Gate {
	if openCutoff <= 0 {
		openCutoff = 30 * time.Minute
	}
	if windowTTL <= 0 {
		windowTTL = 5 * time.Minute
	}
	if radiusMeters <= 0 {
		radiusMeters = 100
	}
	return Gate{OpenCutoff: openCutoff, WindowTTL: windowTTL, RadiusMeters: radiusMeters}
}

// CanOpenWindow reports whether a window may be opened at now for a session
// running [start, end]. Opening is allowed from session start until OpenCutoff
// before the end, so students always have time left to redeem.
func (g Gate) CanOpenWindow(start, end, now time.Time) bool {
	deadline := end.Add(-g.OpenCutoff)
	return !now.Before(start) && !now.After(deadline)
}

// ExpiryFor returns the fixed expiry for a window opened at now.
func (g Gate) ExpiryFor(now time.Time) time.Time {
	return now.Add(g.WindowTTL)
}

// CanRedeem validates a redemption attempt against the window state and the
// geofence. Returns ErrExpired or ErrTooFar, nil when the attempt is valid.
func (g Gate) CanRedeem(expiresAt time.Time, active bool, opener, student Coord, now time.Time) error {
	if !active || now.After(expiresAt) {
		return ErrExpired
	}
	if Distance(opener, student) > g.RadiusMeters {
		return ErrTooFar
	}
	return nil
}

const earthRadiusM = 6371000

// Distance returns the great-circle distance between two coordinates in
// meters (haversine). At campus scale this is well within GPS accuracy.
func Distance(a, b Coord) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}
