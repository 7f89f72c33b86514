package route

import (
	"errors"
	"math"
	"time"

	"github.com/ShivangSharma3/bus-tracking-system/internal/shared/geo"
)

const (
	// ReachedThresholdM is the distance below which the bus is considered to
	// have arrived at a stop.
	ReachedThresholdM = 150.0

	// OffRouteThresholdM marks the bus as off-route when it is farther than
	// this from every stop on the active leg.
	OffRouteThresholdM = 2000.0

	// EnRouteLabel is reported as the current stop while off-route.
	EnRouteLabel = "En route"
)

var (
	ErrUnknownBus = errors.New("no route definition for bus")
	ErrShortLeg   = errors.New("route leg needs at least two stops")
)

// Model holds the static per-bus route definitions. Read-only after
// construction.
type Model struct {
	byBus map[string]Definition
}

// ActiveWindow selects the directional window for an instant. Mornings
// (06:00-13:59) run outbound, afternoons and evenings (14:00-21:59) run the
// return leg. Hours outside both spans default to outbound.
func ActiveWindow(now time.Time) Window {
	hour := now.Hour()
	switch {
	case hour >= 6 && hour < 14:
		return WindowOutbound
	case hour >= 14 && hour < 22:
		return WindowReturn
	default:
		return WindowOutbound
	}
}

// Definition returns the route definition for a bus.
func (m *Model) Definition(busID string) (Definition, bool) {
	def, ok := m.byBus[busID]
	return def, ok
}

func (m *Model) leg(busID string, w Window) (Leg, error) {
	def, ok := m.byBus[busID]
	if !ok {
		return Leg{}, ErrUnknownBus
	}
	if w == WindowReturn {
		return def.Return, nil
	}
	return def.Outbound, nil
}

// Match maps a coordinate onto the ordered stop list of the bus's active leg.
// Pure function of its inputs.
func (m *Model) Match(busID string, w Window, lat, lng float64) (Progress, error) {
	leg, err := m.leg(busID, w)
	if err != nil {
		return Progress{}, err
	}
	stops := leg.Stops
	// The loader enforces this, but definitions can also arrive through New
	// unvalidated.
	if len(stops) < 2 {
		return Progress{}, ErrShortLeg
	}

	// Distance from the fix to every stop; nearest stop keeps the lowest
	// index on ties.
	nearestIdx := 0
	nearestDist := math.MaxFloat64
	dists := make([]float64, len(stops))
	for i, s := range stops {
		d := geo.HaversineM(lat, lng, s.Lat, s.Lng)
		dists[i] = d
		if d < nearestDist {
			nearestDist = d
			nearestIdx = i
		}
	}

	// Project the fix onto the stop-to-stop polyline to get the traveled
	// path distance.
	segIdx, segFrac := projectOntoLeg(stops, lat, lng)

	traveled := 0.0
	total := 0.0
	for i := 0; i < len(stops)-1; i++ {
		segLen := geo.HaversineM(stops[i].Lat, stops[i].Lng, stops[i+1].Lat, stops[i+1].Lng)
		total += segLen
		if i < segIdx {
			traveled += segLen
		} else if i == segIdx {
			traveled += segFrac * segLen
		}
	}

	percent := 0.0
	if total > 0 {
		percent = traveled / total * 100
	}
	percent = clamp(percent, 0, 100)

	if nearestDist > OffRouteThresholdM {
		return Progress{
			CurrentStop:            EnRouteLabel,
			NextStop:               stops[nearestIdx].Name,
			ProgressPercent:        percent,
			DistanceToCurrentStopM: nearestDist,
			DistanceToNextStopM:    nearestDist,
			Route:                  leg.Route,
			OffRoute:               true,
		}, nil
	}

	// The current stop is the last stop the bus has reached or passed: the
	// start of the matched segment, advanced when the bus is within the
	// reached threshold of the segment's end.
	currentIdx := segIdx
	if dists[segIdx+1] <= ReachedThresholdM {
		currentIdx = segIdx + 1
	}
	nextIdx := currentIdx + 1
	if nextIdx > len(stops)-1 {
		nextIdx = len(stops) - 1
	}

	return Progress{
		CurrentStop:            stops[currentIdx].Name,
		NextStop:               stops[nextIdx].Name,
		ProgressPercent:        percent,
		DistanceToCurrentStopM: dists[currentIdx],
		DistanceToNextStopM:    dists[nextIdx],
		Route:                  leg.Route,
	}, nil
}

// projectOntoLeg finds the polyline segment closest to the coordinate and the
// fractional position along it. Planar projection is accurate enough at
// stop-to-stop scale.
func projectOntoLeg(stops []Stop, lat, lng float64) (int, float64) {
	bestIdx := 0
	bestFrac := 0.0
	bestDist := math.MaxFloat64

	for i := 0; i < len(stops)-1; i++ {
		ax, ay := stops[i].Lng, stops[i].Lat
		bx, by := stops[i+1].Lng, stops[i+1].Lat

		vx, vy := bx-ax, by-ay
		wx, wy := lng-ax, lat-ay

		t := 0.0
		if denom := vx*vx + vy*vy; denom > 0 {
			t = clamp((wx*vx+wy*vy)/denom, 0, 1)
		}

		px, py := ax+t*vx, ay+t*vy
		dx, dy := lng-px, lat-py
		dist := dx*dx + dy*dy

		if dist < bestDist {
			bestDist = dist
			bestIdx = i
			bestFrac = t
		}
	}
	return bestIdx, bestFrac
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
