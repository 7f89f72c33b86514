package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShivangSharma3/bus-tracking-system/internal/model"
	"github.com/ShivangSharma3/bus-tracking-system/internal/route"
	"github.com/ShivangSharma3/bus-tracking-system/internal/sampler"
	"github.com/ShivangSharma3/bus-tracking-system/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type recordingPusher struct {
	mu    sync.Mutex
	fixes []model.Fix
}

func (p *recordingPusher) Push(fix model.Fix) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fixes = append(p.fixes, fix)
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fixes)
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return store.New(client)
}

func testRoutes() *route.Model {
	return route.New([]route.Definition{{
		BusID: "bus-1",
		Outbound: route.Leg{
			Route: "Partapur - Campus",
			Stops: []route.Stop{
				{Name: "Partapur", Lat: 28.9472, Lng: 77.6618},
				{Name: "Rohta Bypass", Lat: 28.9954, Lng: 77.6456},
				{Name: "Campus Gate", Lat: 29.0350, Lng: 77.6650},
			},
		},
		Return: route.Leg{
			Route: "Campus - Partapur",
			Stops: []route.Stop{
				{Name: "Campus Gate", Lat: 29.0350, Lng: 77.6650},
				{Name: "Rohta Bypass", Lat: 28.9954, Lng: 77.6456},
				{Name: "Partapur", Lat: 28.9472, Lng: 77.6618},
			},
		},
	}})
}

func steadySampler(calls *atomic.Int64) sampler.Sampler {
	return sampler.Func(func(_ context.Context, _ sampler.Options) (sampler.Reading, error) {
		if calls != nil {
			calls.Add(1)
		}
		return sampler.Reading{Lat: 28.9954, Lng: 77.6456, Accuracy: 10, Timestamp: time.Now()}, nil
	})
}

func testConfig() Config {
	return Config{
		PrimaryInterval:     20 * time.Millisecond,
		PersistenceInterval: 20 * time.Millisecond,
		HealthInterval:      20 * time.Millisecond,
		PingTimeout:         50 * time.Millisecond,
		FixTimeout:          time.Second,
		FixMaxAge:           time.Millisecond,
		ReconnectBase:       time.Millisecond,
		MaxMissedPongs:      1,
		MaxReconnects:       2,
	}
}

func testSession() model.TrackingSession {
	return model.TrackingSession{BusID: "bus-1", DriverID: "driver-1", DriverName: "Ramesh"}
}

func TestStartRejectsInvalidSession(t *testing.T) {
	s := New(testConfig(), steadySampler(nil), testRoutes(), testStore(t), nil)
	if err := s.Start(context.Background(), model.TrackingSession{BusID: "bus-1"}); err == nil {
		t.Fatalf("expected error for missing driver name")
	}
	if err := s.Start(context.Background(), model.TrackingSession{DriverName: "Ramesh"}); err == nil {
		t.Fatalf("expected error for missing bus id")
	}
	if s.Status().State != StateIdle {
		t.Fatalf("invalid start must leave supervisor idle")
	}
}

func TestStartStoresEnhancedFix(t *testing.T) {
	st := testStore(t)
	pusher := &recordingPusher{}
	s := New(testConfig(), steadySampler(nil), testRoutes(), st, pusher)
	ctx := context.Background()

	if err := s.Start(ctx, testSession()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(ctx)

	latest, err := st.GetLatest(ctx, "bus-1")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest == nil {
		t.Fatalf("expected an immediate first fix")
	}
	if latest.CurrentStop != "Rohta Bypass" {
		t.Fatalf("expected route enhancement, got %+v", latest)
	}
	if latest.Source != model.SourceForegroundPoll {
		t.Fatalf("unexpected source: %s", latest.Source)
	}
	if latest.SessionOrigin == "" {
		t.Fatalf("expected session origin tag")
	}
	if pusher.count() == 0 {
		t.Fatalf("expected fix pushed to backend")
	}
	if s.Status().State != StateActive {
		t.Fatalf("expected active state")
	}
}

func TestPrimaryLoopTicks(t *testing.T) {
	var calls atomic.Int64
	s := New(testConfig(), steadySampler(&calls), testRoutes(), testStore(t), nil)
	ctx := context.Background()

	if err := s.Start(ctx, testSession()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	s.Stop(ctx)

	if calls.Load() < 3 {
		t.Fatalf("expected repeated sampling, got %d calls", calls.Load())
	}
}

func TestStopClearsSessionAndDropsLateWrites(t *testing.T) {
	st := testStore(t)
	s := New(testConfig(), steadySampler(nil), testRoutes(), st, nil)
	ctx := context.Background()

	if err := s.Start(ctx, testSession()); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.Stop(ctx)
	latestBefore, _ := st.GetLatest(ctx, "bus-1")
	if s.Status().State != StateIdle {
		t.Fatalf("expected idle after stop")
	}

	session, err := st.GetSession(ctx, "bus-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session != nil {
		t.Fatalf("expected session cleared")
	}

	// A fix resolving after stop must not be written.
	s.sampleOnce(ctx, model.SourceForegroundPoll)
	time.Sleep(50 * time.Millisecond)
	latestAfter, _ := st.GetLatest(ctx, "bus-1")
	if latestBefore != nil && latestAfter != nil && !latestAfter.Timestamp.Equal(latestBefore.Timestamp) {
		t.Fatalf("late fix written after stop")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(testConfig(), steadySampler(nil), testRoutes(), testStore(t), nil)
	ctx := context.Background()
	s.Stop(ctx) // not started yet
	if err := s.Start(ctx, testSession()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop(ctx)
	s.Stop(ctx)
	if s.Status().State != StateIdle {
		t.Fatalf("expected idle")
	}
}

func TestSecondStartSupersedesSession(t *testing.T) {
	st := testStore(t)
	s := New(testConfig(), steadySampler(nil), testRoutes(), st, nil)
	ctx := context.Background()

	if err := s.Start(ctx, testSession()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	first := s.Status().Session.Origin

	second := testSession()
	second.DriverID = "driver-2"
	second.DriverName = "Suresh"
	if err := s.Start(ctx, second); err != nil {
		t.Fatalf("second start: %v", err)
	}
	defer s.Stop(ctx)

	status := s.Status()
	if status.Session.DriverName != "Suresh" {
		t.Fatalf("expected superseding driver, got %s", status.Session.DriverName)
	}
	if status.Session.Origin == first {
		t.Fatalf("expected a fresh session origin")
	}

	// A fix still tagged with the first origin is rejected by the store.
	stale := model.Fix{
		Lat: 28.9954, Lng: 77.6456, BusID: "bus-1", DriverName: "Ramesh",
		Source: model.SourceForegroundPoll, SessionOrigin: first,
		Timestamp: time.Now().Add(time.Minute),
	}
	if err := st.PutFix(ctx, stale); err == nil {
		t.Fatalf("expected superseded fix to be rejected")
	}
}

func TestSuspendCapturesPreSuspendFix(t *testing.T) {
	st := testStore(t)
	cfg := testConfig()
	cfg.PrimaryInterval = time.Hour // keep the loop quiet
	cfg.PersistenceInterval = time.Hour
	s := New(cfg, steadySampler(nil), testRoutes(), st, nil)
	ctx := context.Background()

	if err := s.Start(ctx, testSession()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(ctx)

	s.Suspend(ctx)

	latest, err := st.GetLatest(ctx, "bus-1")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest == nil || latest.Source != model.SourcePreSuspendCapture {
		t.Fatalf("expected pre-suspend capture, got %+v", latest)
	}
}

func TestResumeRestartsDroppedPrimaryLoop(t *testing.T) {
	var calls atomic.Int64
	cfg := testConfig()
	s := New(cfg, steadySampler(&calls), testRoutes(), testStore(t), nil)
	ctx := context.Background()

	if err := s.Start(ctx, testSession()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(ctx)

	// Simulate the runtime killing the interval while backgrounded.
	s.mu.Lock()
	cancel := s.primaryCancel
	s.mu.Unlock()
	cancel()
	time.Sleep(50 * time.Millisecond)

	before := calls.Load()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != before {
		t.Fatalf("expected loop stopped after cancel")
	}

	s.Resume(ctx)
	time.Sleep(80 * time.Millisecond)
	if calls.Load() <= before {
		t.Fatalf("expected loop restarted after resume")
	}
}

func TestPersistenceWorkerRelaysLastFix(t *testing.T) {
	st := testStore(t)
	cfg := testConfig()
	cfg.PrimaryInterval = time.Hour // only the initial fix, then worker ticks
	cfg.HealthInterval = time.Hour
	s := New(cfg, steadySampler(nil), testRoutes(), st, nil)
	ctx := context.Background()

	if err := s.Start(ctx, testSession()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(ctx)

	first, _ := st.GetLatest(ctx, "bus-1")
	if first == nil {
		t.Fatalf("expected initial fix")
	}

	time.Sleep(80 * time.Millisecond)

	latest, err := st.GetLatest(ctx, "bus-1")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest.Source != model.SourcePersistenceWorker {
		t.Fatalf("expected persistence worker re-persist, got %s", latest.Source)
	}
	// The relay must not fabricate freshness.
	if !latest.Timestamp.Equal(first.Timestamp) {
		t.Fatalf("relay changed the observation timestamp")
	}
}

func TestPermissionDeniedSurfacesInStatus(t *testing.T) {
	denied := sampler.Func(func(_ context.Context, _ sampler.Options) (sampler.Reading, error) {
		return sampler.Reading{}, sampler.ErrPermissionDenied
	})
	s := New(testConfig(), denied, testRoutes(), testStore(t), nil)
	ctx := context.Background()

	if err := s.Start(ctx, testSession()); err != nil {
		t.Fatalf("start must not fail on permission denial: %v", err)
	}
	defer s.Stop(ctx)

	status := s.Status()
	if status.State != StateActive {
		t.Fatalf("tracking stays active while permission is denied")
	}
	if !status.PermissionDenied {
		t.Fatalf("expected permission denial surfaced in status")
	}
}

func TestDegradedAfterWorkerFailure(t *testing.T) {
	cfg := testConfig()
	cfg.HealthInterval = time.Hour // drive checks by hand
	s := New(cfg, steadySampler(nil), testRoutes(), testStore(t), nil)
	ctx := context.Background()

	if err := s.Start(ctx, testSession()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(ctx)

	// Kill the worker and use up every reconnect attempt.
	s.mu.Lock()
	s.worker.close()
	s.reconnectAttempts = cfg.MaxReconnects
	s.mu.Unlock()

	s.checkWorker(ctx)

	status := s.Status()
	if !status.Degraded {
		t.Fatalf("expected degraded status, got %+v", status)
	}
	if status.State != StateActive {
		t.Fatalf("degradation must not stop tracking")
	}
}

func TestHealthRefreshCannotResurrectStoppedSession(t *testing.T) {
	st := testStore(t)
	cfg := testConfig()
	cfg.PrimaryInterval = time.Hour
	cfg.PersistenceInterval = time.Hour
	cfg.HealthInterval = time.Hour // drive checks by hand
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		s := New(cfg, steadySampler(nil), testRoutes(), st, nil)
		if err := s.Start(ctx, testSession()); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		origin := s.Status().Session.Origin

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.checkWorker(ctx)
		}()
		go func() {
			defer wg.Done()
			s.Stop(ctx)
		}()
		wg.Wait()

		session, err := st.GetSession(ctx, "bus-1")
		if err != nil {
			t.Fatalf("get session %d: %v", i, err)
		}
		if session != nil {
			t.Fatalf("iteration %d: session survived stop: %+v", i, session)
		}

		late := model.Fix{
			Lat: 28.9954, Lng: 77.6456, BusID: "bus-1", DriverName: "Ramesh",
			Source: model.SourceForegroundPoll, SessionOrigin: origin,
			Timestamp: time.Now().Add(time.Minute),
		}
		if err := st.PutFix(ctx, late); err == nil {
			t.Fatalf("iteration %d: late fix admitted after stop", i)
		}
	}
}

func TestFallbackPersistenceWhenDegraded(t *testing.T) {
	st := testStore(t)
	cfg := testConfig()
	cfg.PrimaryInterval = time.Hour // only the initial fix
	cfg.HealthInterval = time.Hour
	s := New(cfg, steadySampler(nil), testRoutes(), st, nil)
	ctx := context.Background()

	if err := s.Start(ctx, testSession()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(ctx)

	first, _ := st.GetLatest(ctx, "bus-1")
	if first == nil {
		t.Fatalf("expected initial fix")
	}

	s.mu.Lock()
	s.worker.close()
	s.reconnectAttempts = cfg.MaxReconnects
	s.mu.Unlock()
	s.checkWorker(ctx)

	if !s.Status().Degraded {
		t.Fatalf("expected degraded status")
	}

	time.Sleep(80 * time.Millisecond)

	latest, err := st.GetLatest(ctx, "bus-1")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest.Source != model.SourceFallbackWorker {
		t.Fatalf("expected fallback re-persist, got %s", latest.Source)
	}
	if !latest.Timestamp.Equal(first.Timestamp) {
		t.Fatalf("fallback changed the observation timestamp")
	}
}

func TestWorkerPingReportsStatus(t *testing.T) {
	st := testStore(t)
	w := newWorker(st, nil, time.Hour)
	defer w.close()

	w.send(message{typ: msgStartTracking, session: testSession()})
	status, ok := w.ping(100 * time.Millisecond)
	if !ok {
		t.Fatalf("expected pong from live worker")
	}
	if !status.Tracking {
		t.Fatalf("expected tracking flag set")
	}

	w.close()
	if _, ok := w.ping(20 * time.Millisecond); ok {
		t.Fatalf("expected ping to fail on closed worker")
	}
}
