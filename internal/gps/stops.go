package gps

import (
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// ErrInvalidInput is wrapped by every validation failure of DetectStops.
var ErrInvalidInput = errors.New("invalid input")

type Point struct {
	Lat  float64
	Lon  float64
	Time time.Time
}

// Stop is one row of the stop table.
type Stop struct {
	Lat          float64   `json:"latitude"`
	Lon          float64   `json:"longitude"`
	RaceTime     time.Time `json:"race_time"`
	ElapsedTime  float64   `json:"elapsed_time"`
	StopDuration int       `json:"stop_duration"`
	Merged       bool      `json:"merged"`
}

type StopOptions struct {
	// RestThreshold is the minimum stationary time a pause must exceed to count as a stop.
	// Timestamp gaps longer than this are reported as stops unconditionally.
	RestThreshold time.Duration
	// SpatialThreshold in meters; consecutive stops closer than this are merged.
	SpatialThreshold float64
}

func DefaultStopOptions() StopOptions {
	return StopOptions{RestThreshold: 30 * time.Second, SpatialThreshold: 20}
}

func (o StopOptions) Validate() error {
	if o.RestThreshold < 0 {
		return fmt.Errorf("%w: rest threshold %s is negative", ErrInvalidInput, o.RestThreshold)
	}
	if o.SpatialThreshold < 0 {
		return fmt.Errorf("%w: spatial threshold %.2fm is negative", ErrInvalidInput, o.SpatialThreshold)
	}
	return nil
}

// DetectStops scans points once and returns the stops in chronological order.
// A rest still in progress when the track ends is not reported.
func DetectStops(points []Point, opts StopOptions) ([]Stop, error) {
	if err := validatePoints(points); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	d := detector{opts: opts, start: points[0].Time}
	for i := 1; i < len(points); i++ {
		d.step(points[i-1], points[i])
	}
	return d.table.stops, nil
}

func validatePoints(points []Point) error {
	if len(points) < 2 {
		return fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidInput, len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i].Time.Before(points[i-1].Time) {
			return fmt.Errorf("%w: point %d at %s precedes point %d at %s", ErrInvalidInput,
				i, points[i].Time.Format(time.RFC3339), i-1, points[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// Distance returns the great-circle distance between two coordinates in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.Distance(orb.Point{lon1, lat1}, orb.Point{lon2, lat2})
}

func wholeSeconds(d time.Duration) int {
	return int(d / time.Second)
}
