package gpx

import (
	"fmt"

	"gpxstops/internal/gps"
)

type PauseKind string

const (
	PauseShort    PauseKind = "Short pause"
	PauseTypical  PauseKind = "Typical pause"
	PauseLong     PauseKind = "Long pause"
	PauseExtended PauseKind = "Extended rest"
)

// ClassifyPause buckets a stop duration given in seconds.
func ClassifyPause(seconds int) PauseKind {
	switch {
	case seconds <= 60:
		return PauseShort
	case seconds <= 5*60:
		return PauseTypical
	case seconds <= 15*60:
		return PauseLong
	default:
		return PauseExtended
	}
}

func describePause(seconds int) string {
	switch ClassifyPause(seconds) {
	case PauseShort:
		return fmt.Sprintf("%ds", seconds)
	case PauseTypical, PauseLong:
		return fmt.Sprintf("%dmin %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dmin %ds", seconds/3600, seconds%3600/60, seconds%60)
	}
}

// StopWaypoints turns each stop into a named waypoint at the stop location.
func StopWaypoints(stops []gps.Stop) []Waypoint {
	waypoints := make([]Waypoint, 0, len(stops))
	for _, stop := range stops {
		waypoints = append(waypoints, Waypoint{
			Lat:         stop.Lat,
			Lon:         stop.Lon,
			Name:        string(ClassifyPause(stop.StopDuration)),
			Description: describePause(stop.StopDuration),
		})
	}
	return waypoints
}
