package model

import "time"

// TrackingSession represents one active tracking engagement for a bus.
// Persisted so tracking survives agent restarts; last writer wins per bus.
type TrackingSession struct {
	BusID           string    `json:"busId"`
	DriverID        string    `json:"driverId"`
	DriverName      string    `json:"driverName"`
	Origin          string    `json:"origin"`
	StartedAt       time.Time `json:"startedAt"`
	Active          bool      `json:"active"`
	LastHealthCheck time.Time `json:"lastHealthCheck,omitempty"`
}
