package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ShivangSharma3/bus-tracking-system/internal/model"

	"github.com/redis/go-redis/v9"
)

// HistoryCap bounds the per-bus location history ring.
const HistoryCap = 50

var ErrNoActiveSession = errors.New("no active tracking session for bus")

// Store is the durable location state shared by the sampling loops and the
// readers. Keys survive agent restarts; the supervisor is the only writer.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func latestKey(busID string) string  { return "latest_location_" + busID }
func historyKey(busID string) string { return "location_history_" + busID }
func sessionKey(busID string) string { return "tracking_session_" + busID }

// PutFix admits a fix as the bus's authoritative position. Rejections:
// structurally invalid fixes, non-driver sources, fixes for a superseded or
// stopped session. A fix older than the stored latest is dropped without
// error so a slow in-flight request cannot clobber a newer position.
func (s *Store) PutFix(ctx context.Context, fix model.Fix) error {
	if err := fix.Validate(); err != nil {
		return err
	}
	if !fix.Source.DriverOriginated() {
		return model.ErrInvalidSource
	}

	session, err := s.GetSession(ctx, fix.BusID)
	if err != nil {
		return err
	}
	if session == nil || !session.Active {
		return ErrNoActiveSession
	}
	if fix.SessionOrigin != "" && fix.SessionOrigin != session.Origin {
		return ErrNoActiveSession
	}

	latest, err := s.GetLatest(ctx, fix.BusID)
	if err != nil {
		return err
	}
	if latest != nil && fix.Timestamp.Before(latest.Timestamp) {
		return nil
	}

	payload, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, latestKey(fix.BusID), payload, 0).Err(); err != nil {
		return fmt.Errorf("store latest fix: %w", err)
	}

	// Replays of the same observation overwrite latest but are not appended
	// to the history ring twice.
	if latest != nil && latest.Timestamp.Equal(fix.Timestamp) &&
		latest.Lat == fix.Lat && latest.Lng == fix.Lng {
		return nil
	}

	pipe := s.rdb.Pipeline()
	pipe.LPush(ctx, historyKey(fix.BusID), payload)
	pipe.LTrim(ctx, historyKey(fix.BusID), 0, HistoryCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store fix history: %w", err)
	}
	return nil
}

// GetLatest returns the bus's latest accepted fix, or nil when none exists.
func (s *Store) GetLatest(ctx context.Context, busID string) (*model.Fix, error) {
	data, err := s.rdb.Get(ctx, latestKey(busID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var fix model.Fix
	if err := json.Unmarshal(data, &fix); err != nil {
		return nil, err
	}
	return &fix, nil
}

// GetHistory returns up to limit fixes, most recent first.
func (s *Store) GetHistory(ctx context.Context, busID string, limit int) ([]model.Fix, error) {
	if limit <= 0 || limit > HistoryCap {
		limit = HistoryCap
	}
	entries, err := s.rdb.LRange(ctx, historyKey(busID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	fixes := make([]model.Fix, 0, len(entries))
	for _, entry := range entries {
		var fix model.Fix
		if err := json.Unmarshal([]byte(entry), &fix); err != nil {
			return nil, err
		}
		fixes = append(fixes, fix)
	}
	return fixes, nil
}

func (s *Store) PutSession(ctx context.Context, session model.TrackingSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(session.BusID), payload, 0).Err()
}

func (s *Store) GetSession(ctx context.Context, busID string) (*model.TrackingSession, error) {
	data, err := s.rdb.Get(ctx, sessionKey(busID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session model.TrackingSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) ClearSession(ctx context.Context, busID string) error {
	return s.rdb.Del(ctx, sessionKey(busID)).Err()
}
