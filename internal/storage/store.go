package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"gpxstops/internal/gps"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

type Track struct {
	ID         int64     `json:"id"`
	PublicID   string    `json:"public_id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	PointCount int       `json:"point_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// StopSet is the stored detection result for a track together with the
// thresholds that produced it.
type StopSet struct {
	TrackID    int64           `json:"track_id"`
	Options    gps.StopOptions `json:"-"`
	Stops      []gps.Stop      `json:"stops"`
	Error      string          `json:"error,omitempty"`
	DetectedAt time.Time       `json:"detected_at"`
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS tracks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	public_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	point_count INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS track_points (
	track_id INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	lat REAL NOT NULL,
	lon REAL NOT NULL,
	ts INTEGER NOT NULL,
	PRIMARY KEY (track_id, seq)
);
CREATE TABLE IF NOT EXISTS track_detections (
	track_id INTEGER PRIMARY KEY,
	rest_threshold_seconds INTEGER NOT NULL,
	spatial_threshold_meters REAL NOT NULL,
	error TEXT NOT NULL,
	detected_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS track_stops (
	track_id INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	lat REAL NOT NULL,
	lon REAL NOT NULL,
	race_time INTEGER NOT NULL,
	elapsed_seconds REAL NOT NULL,
	stop_seconds INTEGER NOT NULL,
	merged INTEGER NOT NULL,
	PRIMARY KEY (track_id, seq)
);
CREATE TABLE IF NOT EXISTS analysis_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	track_id INTEGER NOT NULL,
	enqueued_at INTEGER NOT NULL,
	processed_at INTEGER
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) InsertTrack(ctx context.Context, track Track, points []gps.Point) (Track, error) {
	if track.Name == "" {
		return Track{}, errors.New("track name required")
	}
	if len(points) == 0 {
		return Track{}, errors.New("track points required")
	}
	if track.PublicID == "" {
		track.PublicID = uuid.NewString()
	}
	track.StartTime = time.Unix(points[0].Time.Unix(), 0).UTC()
	track.PointCount = len(points)
	track.CreatedAt = time.Unix(time.Now().Unix(), 0).UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Track{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
INSERT INTO tracks (public_id, name, start_time, point_count, created_at)
VALUES (?, ?, ?, ?, ?)
`, track.PublicID, track.Name, track.StartTime.Unix(), track.PointCount, track.CreatedAt.Unix())
	if err != nil {
		return Track{}, err
	}
	track.ID, err = res.LastInsertId()
	if err != nil {
		return Track{}, err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO track_points (track_id, seq, lat, lon, ts)
VALUES (?, ?, ?, ?, ?)
`)
	if err != nil {
		return Track{}, err
	}
	defer stmt.Close()

	for i, p := range points {
		if _, err := stmt.ExecContext(ctx, track.ID, i, p.Lat, p.Lon, p.Time.Unix()); err != nil {
			return Track{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Track{}, err
	}
	return track, nil
}

const trackColumns = `id, public_id, name, start_time, point_count, created_at`

func scanTrack(row interface{ Scan(...any) error }) (Track, error) {
	var t Track
	var startTime, createdAt int64
	if err := row.Scan(&t.ID, &t.PublicID, &t.Name, &startTime, &t.PointCount, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Track{}, ErrNotFound
		}
		return Track{}, err
	}
	t.StartTime = time.Unix(startTime, 0).UTC()
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return t, nil
}

func (s *Store) GetTrack(ctx context.Context, trackID int64) (Track, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+trackColumns+`
FROM tracks
WHERE id = ?
`, trackID)
	return scanTrack(row)
}

func (s *Store) GetTrackByPublicID(ctx context.Context, publicID string) (Track, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+trackColumns+`
FROM tracks
WHERE public_id = ?
`, publicID)
	return scanTrack(row)
}

func (s *Store) ListTracks(ctx context.Context) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+trackColumns+`
FROM tracks
ORDER BY id DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

func (s *Store) LoadTrackPoints(ctx context.Context, trackID int64) ([]gps.Point, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT lat, lon, ts
FROM track_points
WHERE track_id = ?
ORDER BY seq
`, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []gps.Point
	for rows.Next() {
		var p gps.Point
		var ts int64
		if err := rows.Scan(&p.Lat, &p.Lon, &ts); err != nil {
			return nil, err
		}
		p.Time = time.Unix(ts, 0).UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// ReplaceStops stores the outcome of a detection run, replacing any earlier one.
func (s *Store) ReplaceStops(ctx context.Context, set StopSet) error {
	if set.DetectedAt.IsZero() {
		set.DetectedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO track_detections (track_id, rest_threshold_seconds, spatial_threshold_meters, error, detected_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(track_id) DO UPDATE SET
	rest_threshold_seconds = excluded.rest_threshold_seconds,
	spatial_threshold_meters = excluded.spatial_threshold_meters,
	error = excluded.error,
	detected_at = excluded.detected_at
`, set.TrackID, int64(set.Options.RestThreshold/time.Second), set.Options.SpatialThreshold, set.Error, set.DetectedAt.Unix()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
DELETE FROM track_stops
WHERE track_id = ?
`, set.TrackID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO track_stops (track_id, seq, lat, lon, race_time, elapsed_seconds, stop_seconds, merged)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, stop := range set.Stops {
		if _, err := stmt.ExecContext(ctx, set.TrackID, i, stop.Lat, stop.Lon, stop.RaceTime.Unix(),
			stop.ElapsedTime, stop.StopDuration, stop.Merged); err != nil {
			return fmt.Errorf("insert stop %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetStops(ctx context.Context, trackID int64) (StopSet, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT rest_threshold_seconds, spatial_threshold_meters, error, detected_at
FROM track_detections
WHERE track_id = ?
`, trackID)
	set := StopSet{TrackID: trackID}
	var restSeconds, detectedAt int64
	if err := row.Scan(&restSeconds, &set.Options.SpatialThreshold, &set.Error, &detectedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StopSet{}, ErrNotFound
		}
		return StopSet{}, err
	}
	set.Options.RestThreshold = time.Duration(restSeconds) * time.Second
	set.DetectedAt = time.Unix(detectedAt, 0).UTC()

	rows, err := s.db.QueryContext(ctx, `
SELECT lat, lon, race_time, elapsed_seconds, stop_seconds, merged
FROM track_stops
WHERE track_id = ?
ORDER BY seq
`, trackID)
	if err != nil {
		return StopSet{}, err
	}
	defer rows.Close()

	set.Stops = []gps.Stop{}
	for rows.Next() {
		var stop gps.Stop
		var raceTime int64
		if err := rows.Scan(&stop.Lat, &stop.Lon, &raceTime, &stop.ElapsedTime, &stop.StopDuration, &stop.Merged); err != nil {
			return StopSet{}, err
		}
		stop.RaceTime = time.Unix(raceTime, 0).UTC()
		set.Stops = append(set.Stops, stop)
	}
	if err := rows.Err(); err != nil {
		return StopSet{}, err
	}
	return set, nil
}

func (s *Store) EnqueueTrack(ctx context.Context, trackID int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO analysis_queue (track_id, enqueued_at)
VALUES (?, ?)
`, trackID, time.Now().Unix())
	return err
}

func (s *Store) CountQueue(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM analysis_queue
WHERE processed_at IS NULL
`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) DequeueTrack(ctx context.Context) (queueID int64, trackID int64, err error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, track_id
FROM analysis_queue
WHERE processed_at IS NULL
ORDER BY id
LIMIT 1
`)
	if err := row.Scan(&queueID, &trackID); err != nil {
		return 0, 0, err
	}
	return queueID, trackID, nil
}

func (s *Store) MarkProcessed(ctx context.Context, queueID int64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE analysis_queue
SET processed_at = ?
WHERE id = ?
`, time.Now().Unix(), queueID)
	return err
}
