package sampler

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable means no positioning capability exists in this context.
	ErrUnavailable = errors.New("location capability unavailable")
	// ErrPermissionDenied means the operator has not granted location access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrTimeout means no fix arrived within the requested window.
	ErrTimeout = errors.New("location request timed out")
)

// Options mirror the knobs of a single-shot position request.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration
}

// Reading is a raw position observation before it is tagged with bus and
// session identity.
type Reading struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Altitude  float64   `json:"altitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Sampler issues single-shot fix requests. Implementations never retry;
// retry policy belongs to the caller's sampling loop.
type Sampler interface {
	RequestFix(ctx context.Context, opts Options) (Reading, error)
}

// Func adapts a function to the Sampler interface.
type Func func(ctx context.Context, opts Options) (Reading, error)

func (f Func) RequestFix(ctx context.Context, opts Options) (Reading, error) {
	return f(ctx, opts)
}
