package reader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ShivangSharma3/bus-tracking-system/internal/model"
	"github.com/ShivangSharma3/bus-tracking-system/internal/route"
	"github.com/ShivangSharma3/bus-tracking-system/internal/shared/geo"
)

// LatestSource yields the latest accepted fix for a bus. Satisfied by the
// agent's redis store and by the backend's postgres archive.
type LatestSource interface {
	GetLatest(ctx context.Context, busID string) (*model.Fix, error)
}

// ErrNoData means no fix has ever been accepted for the bus. Callers must
// render an explicit "no GPS yet" state, never a default coordinate.
var ErrNoData = errors.New("no location data for bus")

const (
	minMovementM        = 5.0
	minMovementInterval = 30 * time.Second
)

// TrackedVehicleState is the read model served to the UI. It is recomputed
// from the latest accepted fix on every read, never mutated independently.
type TrackedVehicleState struct {
	BusID                  string    `json:"busId"`
	Lat                    float64   `json:"lat"`
	Lng                    float64   `json:"lng"`
	CurrentStop            string    `json:"currentStop"`
	NextStop               string    `json:"nextStop"`
	ProgressPercent        float64   `json:"progressPercent"`
	DistanceToCurrentStopM float64   `json:"distanceToCurrentStopMeters"`
	DistanceToNextStopM    float64   `json:"distanceToNextStopMeters"`
	Route                  string    `json:"route"`
	IsStale                bool      `json:"isStale"`
	LocationSource         string    `json:"locationSource"`
	LastUpdate             time.Time `json:"lastUpdate"`
}

// Reader composes the latest accepted fix with route progress and staleness.
type Reader struct {
	store          LatestSource
	routes         *route.Model
	staleThreshold time.Duration
	nowFn          func() time.Time

	filterMovement bool
	mu             sync.Mutex
	served         map[string]TrackedVehicleState
}

type Option func(*Reader)

// WithMovementFilter suppresses sub-5-meter jitter younger than 30 seconds,
// serving the previously returned state instead. Purely presentation
// smoothing; the store keeps every accepted fix.
func WithMovementFilter() Option {
	return func(r *Reader) { r.filterMovement = true }
}

func New(st LatestSource, routes *route.Model, staleThreshold time.Duration, opts ...Option) *Reader {
	if staleThreshold <= 0 {
		staleThreshold = 60 * time.Second
	}
	r := &Reader{
		store:          st,
		routes:         routes,
		staleThreshold: staleThreshold,
		nowFn:          time.Now,
		served:         map[string]TrackedVehicleState{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read returns the bus's current tracked state, or ErrNoData when no fix has
// been accepted yet. Staleness is surfaced, never hidden.
func (r *Reader) Read(ctx context.Context, busID string) (TrackedVehicleState, error) {
	fix, err := r.store.GetLatest(ctx, busID)
	if err != nil {
		return TrackedVehicleState{}, err
	}
	if fix == nil {
		return TrackedVehicleState{}, ErrNoData
	}

	now := r.nowFn()
	state := TrackedVehicleState{
		BusID:          busID,
		Lat:            fix.Lat,
		Lng:            fix.Lng,
		IsStale:        now.Sub(fix.Timestamp) > r.staleThreshold,
		LocationSource: string(fix.Source),
		LastUpdate:     fix.Timestamp,
	}

	if r.routes != nil {
		window := route.ActiveWindow(now)
		if progress, err := r.routes.Match(busID, window, fix.Lat, fix.Lng); err == nil {
			state.CurrentStop = progress.CurrentStop
			state.NextStop = progress.NextStop
			state.ProgressPercent = progress.ProgressPercent
			state.DistanceToCurrentStopM = progress.DistanceToCurrentStopM
			state.DistanceToNextStopM = progress.DistanceToNextStopM
			state.Route = progress.Route
		}
	}

	if r.filterMovement {
		state = r.smooth(busID, state)
	}
	return state, nil
}

func (r *Reader) smooth(busID string, state TrackedVehicleState) TrackedVehicleState {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.served[busID]
	if ok && !state.IsStale && prev.IsStale == state.IsStale {
		moved := geo.HaversineM(prev.Lat, prev.Lng, state.Lat, state.Lng)
		if moved < minMovementM && state.LastUpdate.Sub(prev.LastUpdate) < minMovementInterval {
			return prev
		}
	}
	r.served[busID] = state
	return state
}
