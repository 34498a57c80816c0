// Package report derives the views that map, plot and summary consumers
// build from a stop table.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"gpxstops/internal/gps"
)

const (
	ColorShort  = "lightgreen"
	ColorMedium = "orange"
	ColorLong   = "lightred"
)

const raceTimeLayout = "Monday Jan 02 03:04 PM"

func MarkerColor(seconds int) string {
	switch {
	case seconds < 60:
		return ColorShort
	case seconds < 5*60:
		return ColorMedium
	default:
		return ColorLong
	}
}

// FormatDuration renders seconds as "42s", "3min 5s" or "2h 10min".
func FormatDuration(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dmin %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dmin", seconds/3600, seconds%3600/60)
	}
}

// Markers returns one point feature per stop, ready for a web map.
func Markers(stops []gps.Stop) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range stops {
		f := geojson.NewFeature(orb.Point{s.Lon, s.Lat})
		f.Properties["color"] = MarkerColor(s.StopDuration)
		f.Properties["race_time"] = s.RaceTime.Format(raceTimeLayout)
		f.Properties["elapsed"] = FormatDuration(int(s.ElapsedTime))
		f.Properties["rest"] = FormatDuration(s.StopDuration)
		f.Properties["stop_duration"] = s.StopDuration
		f.Properties["merged"] = s.Merged
		fc.Append(f)
	}
	return fc
}

type CurvePoint struct {
	Elapsed     float64 `json:"elapsed"`
	RestMinutes float64 `json:"rest_minutes"`
}

// RestCurve returns cumulative rest minutes against elapsed seconds as a step
// function: each stop contributes a point one second before it carrying the
// previous total, and a point at its start carrying the new total.
func RestCurve(stops []gps.Stop) []CurvePoint {
	if len(stops) == 0 {
		return nil
	}
	minutes := make([]float64, len(stops))
	for i, s := range stops {
		minutes[i] = float64(s.StopDuration) / 60
	}
	cumulative := floats.CumSum(make([]float64, len(minutes)), minutes)

	curve := make([]CurvePoint, 0, 2*len(stops))
	for i, s := range stops {
		if i > 0 {
			curve = append(curve, CurvePoint{Elapsed: s.ElapsedTime - 1, RestMinutes: cumulative[i-1]})
		}
		curve = append(curve, CurvePoint{Elapsed: s.ElapsedTime, RestMinutes: cumulative[i]})
	}
	sort.SliceStable(curve, func(i, j int) bool { return curve[i].Elapsed < curve[j].Elapsed })
	return curve
}

type Summary struct {
	Count         int     `json:"count"`
	MergedCount   int     `json:"merged_count"`
	TotalSeconds  int     `json:"total_seconds"`
	MeanSeconds   float64 `json:"mean_seconds"`
	MedianSeconds float64 `json:"median_seconds"`
	MaxSeconds    int     `json:"max_seconds"`
}

func (s Summary) Total() time.Duration {
	return time.Duration(s.TotalSeconds) * time.Second
}

func Summarize(stops []gps.Stop) Summary {
	summary := Summary{Count: len(stops)}
	if len(stops) == 0 {
		return summary
	}
	durations := make([]float64, len(stops))
	for i, s := range stops {
		durations[i] = float64(s.StopDuration)
		summary.TotalSeconds += s.StopDuration
		if s.Merged {
			summary.MergedCount++
		}
	}
	summary.MeanSeconds = stat.Mean(durations, nil)
	sort.Float64s(durations)
	summary.MedianSeconds = median(durations)
	summary.MaxSeconds = int(floats.Max(durations))
	return summary
}

// median expects sorted input and averages the middle pair for even counts.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return stat.Mean(sorted[n/2-1:n/2+1], nil)
}
