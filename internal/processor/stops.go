package processor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gpxstops/internal/gps"
	"gpxstops/internal/log"
	"gpxstops/internal/report"
	"gpxstops/internal/storage"
)

type StopProcessor struct {
	Store   *storage.Store
	Options gps.StopOptions
	Logger  *zap.SugaredLogger
}

// Process runs stop detection over a stored track and replaces its stop table.
// Tracks the detector rejects are stored with the error and an empty table,
// since retrying the same input cannot succeed.
func (p *StopProcessor) Process(ctx context.Context, trackID int64) error {
	logger := log.Or(p.Logger)

	points, err := p.Store.LoadTrackPoints(ctx, trackID)
	if err != nil {
		return fmt.Errorf("load track %d: %w", trackID, err)
	}

	set := storage.StopSet{TrackID: trackID, Options: p.Options}
	stops, err := gps.DetectStops(points, p.Options)
	switch {
	case errors.Is(err, gps.ErrInvalidInput):
		logger.Warnw("track rejected by stop detection", "track_id", trackID, "error", err)
		set.Error = err.Error()
	case err != nil:
		return err
	default:
		set.Stops = stops
	}

	if err := p.Store.ReplaceStops(ctx, set); err != nil {
		return fmt.Errorf("store stops for track %d: %w", trackID, err)
	}

	summary := report.Summarize(stops)
	logger.Infow("stops detected",
		"track_id", trackID,
		"points", len(points),
		"stops", summary.Count,
		"merged", summary.MergedCount,
		"rest", summary.Total().String(),
	)
	return nil
}
