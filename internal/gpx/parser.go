package gpx

import (
	"encoding/xml"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"gpxstops/internal/gps"
)

const (
	defaultNamespace = "http://www.topografix.com/GPX/1/1"
	creator          = "gpxstops"
)

// ErrNoTrackPoints is returned when a file has no points in its first segment.
var ErrNoTrackPoints = errors.New("gpx has no track points")

func Parse(filename string) (*GPX, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "open gpx")
	}
	defer file.Close()

	return ParseReader(file)
}

func ParseReader(r io.Reader) (*GPX, error) {
	var doc GPX
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "parse gpx")
	}

	// The decoded namespace is re-emitted through XMLNS only.
	doc.XMLName = xml.Name{Local: "gpx"}
	if doc.XMLNS == "" {
		doc.XMLNS = defaultNamespace
	}
	if doc.Version == "" {
		doc.Version = "1.1"
	}
	if doc.Creator == "" {
		doc.Creator = creator
	}

	return &doc, nil
}

// FirstSegment converts the first segment of the first track into detector
// input. Elevation and extensions are dropped and times are truncated to whole
// seconds, the resolution tracks are stored with.
func (g *GPX) FirstSegment() ([]gps.Point, error) {
	if len(g.Tracks) == 0 || len(g.Tracks[0].Segments) == 0 || len(g.Tracks[0].Segments[0].Points) == 0 {
		return nil, ErrNoTrackPoints
	}

	src := g.Tracks[0].Segments[0].Points
	points := make([]gps.Point, 0, len(src))
	for i, p := range src {
		if p.Time.IsZero() {
			return nil, errors.Errorf("track point %d has no timestamp", i)
		}
		points = append(points, gps.Point{Lat: p.Lat, Lon: p.Lon, Time: p.Time.Truncate(time.Second)})
	}
	return points, nil
}

func (g *GPX) AddWaypoints(waypoints ...Waypoint) {
	g.Waypoints = append(g.Waypoints, waypoints...)
}

func (g *GPX) Write(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "create gpx")
	}
	defer file.Close()

	if err := g.WriteToWriter(file); err != nil {
		return err
	}
	return errors.Wrap(file.Close(), "close gpx")
}

func (g *GPX) WriteToWriter(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(err, "write gpx header")
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(g); err != nil {
		return errors.Wrap(err, "encode gpx")
	}
	return nil
}

// FromPoints builds a single-segment document from detector points.
func FromPoints(name string, points []gps.Point) *GPX {
	segment := TrackSegment{Points: make([]Point, 0, len(points))}
	for _, p := range points {
		segment.Points = append(segment.Points, Point{Lat: p.Lat, Lon: p.Lon, Time: p.Time})
	}
	return &GPX{
		XMLName:  xml.Name{Local: "gpx"},
		Version:  "1.1",
		Creator:  creator,
		XMLNS:    defaultNamespace,
		Metadata: &Metadata{Name: name},
		Tracks:   []Track{{Name: name, Segments: []TrackSegment{segment}}},
	}
}
