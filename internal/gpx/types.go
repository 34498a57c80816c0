package gpx

import (
	"encoding/xml"
	"time"
)

// RawXML keeps an extensions block verbatim so files from other tools
// (Garmin, Strava, ...) survive a read/write cycle.
type RawXML []byte

func (r RawXML) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if len(r) == 0 {
		return nil
	}

	type inner struct {
		Content string `xml:",innerxml"`
	}

	return e.EncodeElement(inner{Content: string(r)}, start)
}

func (r *RawXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	type inner struct {
		Content string `xml:",innerxml"`
	}

	var data inner
	if err := d.DecodeElement(&data, &start); err != nil {
		return err
	}

	if len(data.Content) == 0 {
		*r = nil
		return nil
	}

	*r = append((*r)[:0], data.Content...)
	return nil
}

type Point struct {
	Lat        float64   `xml:"lat,attr"`
	Lon        float64   `xml:"lon,attr"`
	Elevation  float64   `xml:"ele,omitempty"`
	Time       time.Time `xml:"time,omitempty"`
	Extensions RawXML    `xml:"extensions,omitempty"`
}

type Waypoint struct {
	Lat         float64 `xml:"lat,attr"`
	Lon         float64 `xml:"lon,attr"`
	Name        string  `xml:"name,omitempty"`
	Description string  `xml:"desc,omitempty"`
}

type Track struct {
	Name        string         `xml:"name,omitempty"`
	Description string         `xml:"desc,omitempty"`
	Segments    []TrackSegment `xml:"trkseg"`
	Extensions  RawXML         `xml:"extensions,omitempty"`
}

type TrackSegment struct {
	Points     []Point `xml:"trkpt"`
	Extensions RawXML  `xml:"extensions,omitempty"`
}

// GPX is a GPX 1.1 document. Field order follows the schema so that
// waypoints are written before tracks.
type GPX struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`

	XMLNS       string `xml:"xmlns,attr,omitempty"`
	XMLNSGPXTPX string `xml:"xmlns:gpxtpx,attr,omitempty"`
	XMLNSGPXX   string `xml:"xmlns:gpxx,attr,omitempty"`

	Metadata   *Metadata  `xml:"metadata,omitempty"`
	Waypoints  []Waypoint `xml:"wpt"`
	Tracks     []Track    `xml:"trk"`
	Extensions RawXML     `xml:"extensions,omitempty"`
}

type Metadata struct {
	Name        string `xml:"name,omitempty"`
	Description string `xml:"desc,omitempty"`
	Author      string `xml:"author,omitempty"`
	Extensions  RawXML `xml:"extensions,omitempty"`
}
