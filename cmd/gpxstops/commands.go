package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"gpxstops/internal/gps"
	"gpxstops/internal/gpx"
	"gpxstops/internal/report"
	"gpxstops/internal/stoptable"
)

// trackFlags are shared by every command that analyses a single GPX file.
type trackFlags struct {
	input   string
	rest    time.Duration
	spatial float64
}

func newTrackFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *trackFlags) {
	defaults := gps.DefaultStopOptions()
	tf := &trackFlags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&tf.input, "i", "", "Input GPX file")
	fs.DurationVar(&tf.rest, "rest", defaults.RestThreshold, "Minimum rest that counts as a stop (e.g. 30s)")
	fs.Float64Var(&tf.spatial, "spatial", defaults.SpatialThreshold, "Merge consecutive stops closer than this many meters")
	return fs, tf
}

func (tf *trackFlags) options() gps.StopOptions {
	return gps.StopOptions{RestThreshold: tf.rest, SpatialThreshold: tf.spatial}
}

// load parses the input and runs stop detection on its first segment.
func (tf *trackFlags) load() (*gpx.GPX, []gps.Point, []gps.Stop, error) {
	if tf.input == "" {
		return nil, nil, nil, errors.New("input file required (-i)")
	}
	doc, err := gpx.Parse(tf.input)
	if err != nil {
		return nil, nil, nil, err
	}
	points, err := doc.FirstSegment()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, tf.input)
	}
	stops, err := gps.DetectStops(points, tf.options())
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, tf.input)
	}
	return doc, points, stops, nil
}

func runDetect(args []string, stdout, stderr io.Writer) error {
	fs, tf := newTrackFlagSet("detect", stderr)
	format := fs.String("format", "table", "Output format: table, csv, json or msgpack")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, points, stops, err := tf.load()
	if err != nil {
		return err
	}

	switch *format {
	case "table":
		if err := stoptable.Render(stdout, stops); err != nil {
			return err
		}
		summary := report.Summarize(stops)
		fmt.Fprintf(stdout, "%s points, %d stops (%d merged), %s resting\n",
			humanize.Comma(int64(len(points))), summary.Count, summary.MergedCount,
			report.FormatDuration(summary.TotalSeconds))
		return nil
	case "csv":
		return stoptable.WriteCSV(stdout, stops)
	case "json":
		return writeJSON(stdout, nonNil(stops))
	case "msgpack":
		return stoptable.EncodeMsgpack(stdout, stops)
	default:
		return errors.Errorf("unknown format %q", *format)
	}
}

func runAnnotate(args []string, stdout, stderr io.Writer) error {
	fs, tf := newTrackFlagSet("annotate", stderr)
	output := fs.String("o", "", "Output GPX file (default: <input>_stops.gpx)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	doc, _, stops, err := tf.load()
	if err != nil {
		return err
	}
	if *output == "" {
		*output = annotatedPath(tf.input)
	}

	doc.AddWaypoints(gpx.StopWaypoints(stops)...)
	if err := doc.Write(*output); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s with %s stop waypoints\n", *output, humanize.Comma(int64(len(stops))))
	return nil
}

func annotatedPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_stops.gpx"
}

func runMarkers(args []string, stdout, stderr io.Writer) error {
	fs, tf := newTrackFlagSet("markers", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, _, stops, err := tf.load()
	if err != nil {
		return err
	}
	return writeJSON(stdout, report.Markers(stops))
}

func runCurve(args []string, stdout, stderr io.Writer) error {
	fs, tf := newTrackFlagSet("curve", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, _, stops, err := tf.load()
	if err != nil {
		return err
	}
	curve := report.RestCurve(stops)
	if curve == nil {
		curve = []report.CurvePoint{}
	}
	return writeJSON(stdout, curve)
}

func runSummary(args []string, stdout, stderr io.Writer) error {
	fs, tf := newTrackFlagSet("summary", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, _, stops, err := tf.load()
	if err != nil {
		return err
	}
	return writeJSON(stdout, report.Summarize(stops))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil(stops []gps.Stop) []gps.Stop {
	if stops == nil {
		return []gps.Stop{}
	}
	return stops
}
