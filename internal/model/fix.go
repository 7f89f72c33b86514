package model

import (
	"errors"
	"math"
	"time"
)

// Source identifies which sampling path produced a fix. Only driver-originated
// sources are accepted as a bus's authoritative position.
type Source string

const (
	SourceForegroundPoll    Source = "foreground-poll"
	SourcePersistenceWorker Source = "persistence-worker"
	SourceFallbackWorker    Source = "fallback-worker"
	SourcePreSuspendCapture Source = "pre-suspend-capture"
)

// DriverOriginated reports whether the source belongs to the allowed
// producer set. Anything else (e.g. a rider's own device) is rejected at the
// store boundary.
func (s Source) DriverOriginated() bool {
	switch s {
	case SourceForegroundPoll, SourcePersistenceWorker, SourceFallbackWorker, SourcePreSuspendCapture:
		return true
	}
	return false
}

var (
	ErrInvalidFix    = errors.New("invalid fix")
	ErrInvalidSource = errors.New("fix source not driver-originated")
)

// Fix is a single GPS observation.
type Fix struct {
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	Accuracy      float64   `json:"accuracy,omitempty"`
	Speed         float64   `json:"speed"`
	Heading       float64   `json:"heading,omitempty"`
	Altitude      float64   `json:"altitude,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	BusID         string    `json:"busId"`
	DriverName    string    `json:"driverName"`
	Source        Source    `json:"source"`
	SessionOrigin string    `json:"sessionOrigin,omitempty"`

	// Route enhancement, filled in before the fix is persisted.
	CurrentStop           string  `json:"currentStop,omitempty"`
	NextStop              string  `json:"nextStop,omitempty"`
	RouteProgress         float64 `json:"routeProgress,omitempty"`
	DistanceToCurrentStop float64 `json:"distanceToCurrentStop,omitempty"`
	DistanceToNextStop    float64 `json:"distanceToNextStop,omitempty"`
}

// Validate checks the structural invariants of a fix: finite coordinates,
// required identity fields and a timestamp.
func (f Fix) Validate() error {
	if !finite(f.Lat) || !finite(f.Lng) {
		return ErrInvalidFix
	}
	if f.Lat < -90 || f.Lat > 90 || f.Lng < -180 || f.Lng > 180 {
		return ErrInvalidFix
	}
	if f.BusID == "" || f.DriverName == "" {
		return ErrInvalidFix
	}
	if f.Timestamp.IsZero() {
		return ErrInvalidFix
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
