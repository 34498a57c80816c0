package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gpxstops/internal/gps"
)

var base = time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC)

func stopAt(elapsed float64, duration int) gps.Stop {
	return gps.Stop{
		Lat:          56.9,
		Lon:          24.1,
		RaceTime:     base.Add(time.Duration(elapsed) * time.Second),
		ElapsedTime:  elapsed,
		StopDuration: duration,
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[int]string{
		0:    "0s",
		59:   "59s",
		60:   "1min 0s",
		185:  "3min 5s",
		3599: "59min 59s",
		3600: "1h 0min",
		7860: "2h 11min",
	}
	for seconds, want := range tests {
		if got := FormatDuration(seconds); got != want {
			t.Fatalf("FormatDuration(%d) = %q, want %q", seconds, got, want)
		}
	}
}

func TestMarkerColor(t *testing.T) {
	if MarkerColor(59) != ColorShort || MarkerColor(60) != ColorMedium ||
		MarkerColor(299) != ColorMedium || MarkerColor(300) != ColorLong {
		t.Fatalf("unexpected color buckets")
	}
}

func TestMarkers(t *testing.T) {
	stop := stopAt(3700, 45)
	stop.Merged = true
	fc := Markers([]gps.Stop{stop})
	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(fc.Features))
	}

	raw, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	for _, want := range []string{`"coordinates":[24.1,56.9]`, `"color":"lightgreen"`, `"elapsed":"1h 1min"`, `"merged":true`, `"race_time":"Saturday May 04 11:01 AM"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
}

func TestRestCurve(t *testing.T) {
	curve := RestCurve([]gps.Stop{stopAt(100, 60), stopAt(500, 120), stopAt(900, 30)})
	want := []CurvePoint{
		{Elapsed: 100, RestMinutes: 1},
		{Elapsed: 499, RestMinutes: 1},
		{Elapsed: 500, RestMinutes: 3},
		{Elapsed: 899, RestMinutes: 3},
		{Elapsed: 900, RestMinutes: 3.5},
	}
	if len(curve) != len(want) {
		t.Fatalf("expected %d points, got %+v", len(want), curve)
	}
	for i := range want {
		if curve[i] != want[i] {
			t.Fatalf("point %d: expected %+v, got %+v", i, want[i], curve[i])
		}
	}
	if RestCurve(nil) != nil {
		t.Fatalf("expected nil curve for no stops")
	}
}

func TestSummarize(t *testing.T) {
	merged := stopAt(500, 120)
	merged.Merged = true
	summary := Summarize([]gps.Stop{stopAt(100, 60), merged, stopAt(900, 30)})
	if summary.Count != 3 || summary.MergedCount != 1 || summary.TotalSeconds != 210 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.MeanSeconds != 70 || summary.MedianSeconds != 60 || summary.MaxSeconds != 120 {
		t.Fatalf("unexpected statistics %+v", summary)
	}
	if summary.Total() != 210*time.Second {
		t.Fatalf("unexpected total %s", summary.Total())
	}
	even := Summarize([]gps.Stop{stopAt(100, 20), stopAt(300, 10), stopAt(500, 40), stopAt(700, 30)})
	if even.MedianSeconds != 25 {
		t.Fatalf("expected median of middle pair 25, got %v", even.MedianSeconds)
	}
	if pair := Summarize([]gps.Stop{stopAt(100, 10), stopAt(300, 20)}); pair.MedianSeconds != 15 {
		t.Fatalf("expected median 15, got %v", pair.MedianSeconds)
	}
	if empty := Summarize(nil); empty != (Summary{}) {
		t.Fatalf("expected zero summary, got %+v", empty)
	}
}
