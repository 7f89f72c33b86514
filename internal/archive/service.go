package archive

import (
	"context"
	"errors"

	"github.com/ShivangSharma3/bus-tracking-system/internal/db"
	"github.com/ShivangSharma3/bus-tracking-system/internal/model"

	"github.com/jackc/pgx/v5"
)

// Service archives accepted fixes in postgres. This is the backend's copy of
// the data; the agent's local store stays authoritative for the agent.
type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

// InsertFix appends a fix to the archive. The same driver-source gate applied
// by the agent store applies here: the backend never archives rider-tagged
// positions as bus locations.
func (s *Service) InsertFix(ctx context.Context, fix model.Fix) error {
	if err := fix.Validate(); err != nil {
		return err
	}
	if !fix.Source.DriverOriginated() {
		return model.ErrInvalidSource
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO bus_locations
			(bus_id, driver_name, lat, lng, accuracy, speed, heading, altitude,
			 current_stop, next_stop, route_progress, source, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, fix.BusID, fix.DriverName, fix.Lat, fix.Lng, fix.Accuracy, fix.Speed,
		fix.Heading, fix.Altitude, fix.CurrentStop, fix.NextStop,
		fix.RouteProgress, string(fix.Source), fix.Timestamp)
	return err
}

// GetLatest returns the most recent archived fix, or nil when the bus has
// never reported. Satisfies reader.LatestSource.
func (s *Service) GetLatest(ctx context.Context, busID string) (*model.Fix, error) {
	row := s.db.QueryRow(ctx, `
		SELECT bus_id, driver_name, lat, lng, COALESCE(accuracy,0), COALESCE(speed,0),
		       COALESCE(heading,0), COALESCE(altitude,0), COALESCE(current_stop,''),
		       COALESCE(next_stop,''), COALESCE(route_progress,0), source, recorded_at
		FROM bus_locations
		WHERE bus_id=$1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, busID)

	fix, err := scanFix(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fix, nil
}

// History returns up to limit archived fixes, most recent first.
func (s *Service) History(ctx context.Context, busID string, limit int) ([]model.Fix, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT bus_id, driver_name, lat, lng, COALESCE(accuracy,0), COALESCE(speed,0),
		       COALESCE(heading,0), COALESCE(altitude,0), COALESCE(current_stop,''),
		       COALESCE(next_stop,''), COALESCE(route_progress,0), source, recorded_at
		FROM bus_locations
		WHERE bus_id=$1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, busID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fixes []model.Fix
	for rows.Next() {
		fix, err := scanFix(rows)
		if err != nil {
			return nil, err
		}
		fixes = append(fixes, fix)
	}
	return fixes, rows.Err()
}

func scanFix(row pgx.Row) (model.Fix, error) {
	var fix model.Fix
	var source string
	err := row.Scan(&fix.BusID, &fix.DriverName, &fix.Lat, &fix.Lng, &fix.Accuracy,
		&fix.Speed, &fix.Heading, &fix.Altitude, &fix.CurrentStop, &fix.NextStop,
		&fix.RouteProgress, &source, &fix.Timestamp)
	fix.Source = model.Source(source)
	return fix, err
}
