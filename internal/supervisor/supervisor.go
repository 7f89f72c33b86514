package supervisor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ShivangSharma3/bus-tracking-system/internal/model"
	"github.com/ShivangSharma3/bus-tracking-system/internal/route"
	"github.com/ShivangSharma3/bus-tracking-system/internal/sampler"
	"github.com/ShivangSharma3/bus-tracking-system/internal/store"

	"github.com/google/uuid"
)

// State of the supervisor's lifecycle.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateStopping State = "stopping"
)

var ErrInvalidSession = errors.New("session requires bus id and driver name")

// Pusher is the outbound best-effort channel for enhanced fixes.
type Pusher interface {
	Push(fix model.Fix)
}

// Config tunes the sampling loops. Zero values get production defaults.
type Config struct {
	PrimaryInterval     time.Duration
	PersistenceInterval time.Duration
	HealthInterval      time.Duration
	PingTimeout         time.Duration
	FixTimeout          time.Duration
	FixMaxAge           time.Duration
	ReconnectBase       time.Duration
	MaxMissedPongs      int
	MaxReconnects       int
}

func (c Config) withDefaults() Config {
	if c.PrimaryInterval <= 0 {
		c.PrimaryInterval = 8 * time.Second
	}
	if c.PersistenceInterval <= 0 {
		c.PersistenceInterval = 15 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = time.Second
	}
	if c.FixTimeout <= 0 {
		c.FixTimeout = 10 * time.Second
	}
	if c.FixMaxAge <= 0 {
		c.FixMaxAge = 30 * time.Second
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 5 * time.Second
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = 5
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 5
	}
	return c
}

// Status is the externally visible supervisor state.
type Status struct {
	State             State                  `json:"state"`
	Degraded          bool                   `json:"degraded"`
	PermissionDenied  bool                   `json:"permissionDenied"`
	MissedPongs       int                    `json:"missedPongs"`
	ReconnectAttempts int                    `json:"reconnectAttempts"`
	LastFixAt         time.Time              `json:"lastFixAt,omitempty"`
	Session           *model.TrackingSession `json:"session,omitempty"`
}

// Supervisor owns the sampling loops for one bus and is the only writer into
// the location store. UI code interacts exclusively with Start, Stop,
// Suspend, Resume and Status.
type Supervisor struct {
	cfg     Config
	sampler sampler.Sampler
	routes  *route.Model
	store   *store.Store
	pusher  Pusher

	mu                sync.Mutex
	state             State
	session           model.TrackingSession
	worker            *worker
	primaryCancel     context.CancelFunc
	primaryRunning    bool
	healthCancel      context.CancelFunc
	fallbackCancel    context.CancelFunc
	lastFixAt         time.Time
	missedPongs       int
	reconnectAttempts int
	degraded          bool
	permissionDenied  bool
}

func New(cfg Config, smp sampler.Sampler, routes *route.Model, st *store.Store, pusher Pusher) *Supervisor {
	return &Supervisor{
		cfg:     cfg.withDefaults(),
		sampler: smp,
		routes:  routes,
		store:   st,
		pusher:  pusher,
		state:   StateIdle,
	}
}

// Start begins tracking for the given session. A second Start supersedes the
// previous session (last writer wins); fixes still in flight for the old
// session are rejected at the store. Start only fails on invalid input;
// degraded sub-mechanisms surface through Status, not errors.
func (s *Supervisor) Start(ctx context.Context, session model.TrackingSession) error {
	if session.BusID == "" || session.DriverName == "" {
		return ErrInvalidSession
	}

	s.mu.Lock()
	if s.state == StateActive {
		// Supersede: tear down the previous operator's loops first.
		s.stopLocked()
	}
	s.state = StateStarting

	session.Origin = uuid.NewString()
	session.StartedAt = time.Now()
	session.Active = true
	s.session = session
	s.degraded = false
	s.permissionDenied = false
	s.missedPongs = 0
	s.reconnectAttempts = 0
	s.mu.Unlock()

	if err := s.store.PutSession(ctx, session); err != nil {
		// Tracking still starts; every write will fail the same way and the
		// operator sees it through Status and logs.
		log.Printf("supervisor: persist session: %v", err)
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
	}

	// The worker comes up first so the synchronous initial fix reaches its
	// relay; otherwise a primary stall right after start would leave it with
	// nothing to re-persist until the first tick.
	s.mu.Lock()
	w := newWorker(s.store, s.pusher, s.cfg.PersistenceInterval)
	s.worker = w
	w.send(message{typ: msgStartTracking, session: session})
	s.mu.Unlock()

	// One synchronous fix so the UI has a position before the first tick.
	s.sampleOnce(ctx, model.SourceForegroundPoll)

	s.mu.Lock()
	primaryCtx, primaryCancel := context.WithCancel(context.Background())
	s.primaryCancel = primaryCancel
	s.primaryRunning = true

	healthCtx, healthCancel := context.WithCancel(context.Background())
	s.healthCancel = healthCancel

	s.state = StateActive
	s.mu.Unlock()

	go s.primaryLoop(primaryCtx)
	go s.healthLoop(healthCtx)

	log.Printf("supervisor: tracking started for bus %s (driver %s)", session.BusID, session.DriverName)
	return nil
}

// Stop cancels both loops and clears the persisted session. Always succeeds.
func (s *Supervisor) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateActive && s.state != StateStarting {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	busID := s.session.BusID
	s.stopLocked()
	s.state = StateIdle
	s.mu.Unlock()

	if err := s.store.ClearSession(ctx, busID); err != nil {
		log.Printf("supervisor: clear session: %v", err)
	}
	log.Printf("supervisor: tracking stopped for bus %s", busID)
}

// stopLocked cancels timers and the worker. Callers hold s.mu.
func (s *Supervisor) stopLocked() {
	if s.primaryCancel != nil {
		s.primaryCancel()
		s.primaryCancel = nil
	}
	s.primaryRunning = false
	if s.healthCancel != nil {
		s.healthCancel()
		s.healthCancel = nil
	}
	if s.fallbackCancel != nil {
		s.fallbackCancel()
		s.fallbackCancel = nil
	}
	if s.worker != nil {
		s.worker.send(message{typ: msgStopTracking})
		s.worker.close()
		s.worker = nil
	}
	s.session.Active = false
}

// Suspend handles the visibility-hidden signal: the primary loop is left
// running, the worker is nudged in case the runtime freezes our timers, and
// one extra fix narrows the staleness gap.
func (s *Supervisor) Suspend(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	session := s.session
	w := s.worker
	s.mu.Unlock()

	if w != nil {
		w.send(message{typ: msgStartTracking, session: session})
	}
	s.sampleOnce(ctx, model.SourcePreSuspendCapture)
}

// Resume handles the visibility-visible signal: if the runtime dropped the
// primary interval while suspended, it is restarted.
func (s *Supervisor) Resume(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || s.primaryRunning {
		return
	}
	primaryCtx, cancel := context.WithCancel(context.Background())
	s.primaryCancel = cancel
	s.primaryRunning = true
	go s.primaryLoop(primaryCtx)
	log.Printf("supervisor: primary loop restarted after resume")
}

// Status reports the supervisor's current view of itself.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		State:             s.state,
		Degraded:          s.degraded,
		PermissionDenied:  s.permissionDenied,
		MissedPongs:       s.missedPongs,
		ReconnectAttempts: s.reconnectAttempts,
		LastFixAt:         s.lastFixAt,
	}
	if s.state == StateActive || s.state == StateStarting {
		session := s.session
		status.Session = &session
	}
	return status
}

func (s *Supervisor) primaryLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PrimaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.primaryRunning = false
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.sampleOnce(ctx, model.SourceForegroundPoll)
		}
	}
}

// sampleOnce requests one fix, enhances it with route progress and fans it
// out to the store, the backend and the persistence worker. Sampling errors
// do not transition the state machine; the tick simply produces nothing.
func (s *Supervisor) sampleOnce(ctx context.Context, source model.Source) {
	s.mu.Lock()
	session := s.session
	active := s.state == StateActive || s.state == StateStarting
	s.mu.Unlock()
	if !active {
		return
	}

	reading, err := s.sampler.RequestFix(ctx, sampler.Options{
		HighAccuracy: true,
		Timeout:      s.cfg.FixTimeout,
		MaxAge:       s.cfg.FixMaxAge,
	})
	if err != nil {
		if errors.Is(err, sampler.ErrPermissionDenied) {
			s.mu.Lock()
			s.permissionDenied = true
			s.mu.Unlock()
		}
		log.Printf("supervisor: fix request failed (%s): %v", source, err)
		return
	}

	now := time.Now()
	ts := reading.Timestamp
	if ts.IsZero() {
		ts = now
	}

	fix := model.Fix{
		Lat:           reading.Lat,
		Lng:           reading.Lng,
		Accuracy:      reading.Accuracy,
		Speed:         reading.Speed,
		Heading:       reading.Heading,
		Altitude:      reading.Altitude,
		Timestamp:     ts,
		BusID:         session.BusID,
		DriverName:    session.DriverName,
		Source:        source,
		SessionOrigin: session.Origin,
	}

	if s.routes != nil {
		window := route.ActiveWindow(now)
		if progress, err := s.routes.Match(session.BusID, window, fix.Lat, fix.Lng); err == nil {
			fix.CurrentStop = progress.CurrentStop
			fix.NextStop = progress.NextStop
			fix.RouteProgress = progress.ProgressPercent
			fix.DistanceToCurrentStop = progress.DistanceToCurrentStopM
			fix.DistanceToNextStop = progress.DistanceToNextStopM
		} else {
			log.Printf("supervisor: route match for bus %s: %v", session.BusID, err)
		}
	}

	if err := s.store.PutFix(ctx, fix); err != nil {
		// A session cleared or superseded mid-flight lands here; the fix
		// must not survive it.
		log.Printf("supervisor: fix dropped for bus %s: %v", session.BusID, err)
		return
	}

	s.mu.Lock()
	s.lastFixAt = now
	w := s.worker
	s.mu.Unlock()

	if s.pusher != nil {
		s.pusher.Push(fix)
	}
	if w != nil {
		w.send(message{typ: msgLocationData, fix: fix})
	}
}

// fallbackLoop re-persists the latest accepted fix, tagged fallback-worker,
// once the persistence worker is given up on. The observation timestamp is
// kept so readers still see honest staleness.
func (s *Supervisor) fallbackLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PersistenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			busID := s.session.BusID
			active := s.state == StateActive
			s.mu.Unlock()
			if !active {
				continue
			}

			latest, err := s.store.GetLatest(ctx, busID)
			if err != nil || latest == nil {
				continue
			}
			latest.Source = model.SourceFallbackWorker
			if err := s.store.PutFix(ctx, *latest); err != nil {
				log.Printf("supervisor: fallback persist: %v", err)
			}
		}
	}
}

func (s *Supervisor) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkWorker(ctx)
		}
	}
}

func (s *Supervisor) checkWorker(ctx context.Context) {
	s.mu.Lock()
	w := s.worker
	origin := s.session.Origin
	s.mu.Unlock()
	if w == nil {
		return
	}

	_, ok := w.ping(s.cfg.PingTimeout)

	// Re-validate after the ping: a Stop or superseding Start may have torn
	// this session down while the probe was in flight.
	s.mu.Lock()
	if s.state != StateActive || s.session.Origin != origin || s.worker != w {
		s.mu.Unlock()
		return
	}

	if ok {
		s.missedPongs = 0
		s.reconnectAttempts = 0
		s.degraded = false
		s.session.LastHealthCheck = time.Now()
		session := s.session
		// Persisted while holding the lock: Stop flips the state before it
		// clears the stored session, so a refresh can never land after the
		// clear.
		if err := s.store.PutSession(ctx, session); err != nil {
			log.Printf("supervisor: refresh session health: %v", err)
		}
		w.send(message{typ: msgUpdateSession, session: session})
		s.mu.Unlock()
		return
	}

	s.missedPongs++
	missed := s.missedPongs
	s.mu.Unlock()
	log.Printf("supervisor: persistence worker unresponsive (%d misses)", missed)

	if missed >= s.cfg.MaxMissedPongs {
		s.reconnectWorker()
	}
}

// reconnectWorker restarts the persistence worker with linear backoff. After
// the attempt cap the supervisor runs primary-only and reports degraded; the
// primary loop is never touched.
func (s *Supervisor) reconnectWorker() {
	s.mu.Lock()
	if s.reconnectAttempts >= s.cfg.MaxReconnects {
		s.degraded = true
		// The dead worker's job moves in-process: keep re-persisting the
		// last accepted fix so the position survives primary stalls.
		if s.fallbackCancel == nil {
			fallbackCtx, cancel := context.WithCancel(context.Background())
			s.fallbackCancel = cancel
			go s.fallbackLoop(fallbackCtx)
		}
		s.mu.Unlock()
		return
	}
	s.reconnectAttempts++
	attempt := s.reconnectAttempts
	session := s.session
	old := s.worker
	s.mu.Unlock()

	time.Sleep(s.cfg.ReconnectBase * time.Duration(attempt))

	if old != nil {
		old.close()
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	w := newWorker(s.store, s.pusher, s.cfg.PersistenceInterval)
	s.worker = w
	s.missedPongs = 0
	s.mu.Unlock()

	w.send(message{typ: msgStartTracking, session: session})
	log.Printf("supervisor: persistence worker restarted (attempt %d)", attempt)
}
