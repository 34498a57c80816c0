// Package stoptable reads and writes the stop table in the formats consumed
// outside the detector: CSV, MessagePack and a human readable text table.
package stoptable

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"gpxstops/internal/gps"
)

// Columns is the stop table header, in order.
var Columns = []string{
	"Latitude",
	"Longitude",
	"Race time",
	"Elapsed time",
	"Stop time",
	"Merged stop",
}

func WriteCSV(w io.Writer, stops []gps.Stop) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, s := range stops {
		record := []string{
			formatFloat(s.Lat),
			formatFloat(s.Lon),
			s.RaceTime.Format(time.RFC3339Nano),
			formatFloat(s.ElapsedTime),
			strconv.Itoa(s.StopDuration),
			strconv.FormatBool(s.Merged),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "write stop")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

func ReadCSV(r io.Reader) ([]gps.Stop, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	for i, name := range Columns {
		if header[i] != name {
			return nil, errors.Errorf("column %d: expected %q, got %q", i, name, header[i])
		}
	}

	var stops []gps.Stop
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read line %d", line)
		}
		stop, err := parseRecord(record)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		stops = append(stops, stop)
	}
	return stops, nil
}

func parseRecord(record []string) (gps.Stop, error) {
	var (
		stop gps.Stop
		err  error
	)
	if stop.Lat, err = strconv.ParseFloat(record[0], 64); err != nil {
		return gps.Stop{}, errors.Wrap(err, "latitude")
	}
	if stop.Lon, err = strconv.ParseFloat(record[1], 64); err != nil {
		return gps.Stop{}, errors.Wrap(err, "longitude")
	}
	if stop.RaceTime, err = time.Parse(time.RFC3339Nano, record[2]); err != nil {
		return gps.Stop{}, errors.Wrap(err, "race time")
	}
	if stop.ElapsedTime, err = strconv.ParseFloat(record[3], 64); err != nil {
		return gps.Stop{}, errors.Wrap(err, "elapsed time")
	}
	if stop.StopDuration, err = strconv.Atoi(record[4]); err != nil {
		return gps.Stop{}, errors.Wrap(err, "stop time")
	}
	if stop.Merged, err = strconv.ParseBool(record[5]); err != nil {
		return gps.Stop{}, errors.Wrap(err, "merged stop")
	}
	return stop, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func EncodeMsgpack(w io.Writer, stops []gps.Stop) error {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return errors.Wrap(enc.Encode(stops), "encode msgpack")
}

func DecodeMsgpack(r io.Reader) ([]gps.Stop, error) {
	dec := msgpack.NewDecoder(r)
	dec.SetCustomStructTag("json")

	var stops []gps.Stop
	if err := dec.Decode(&stops); err != nil {
		return nil, errors.Wrap(err, "decode msgpack")
	}
	for i := range stops {
		stops[i].RaceTime = stops[i].RaceTime.UTC()
	}
	return stops, nil
}

// Render writes stops as a rounded text table.
func Render(w io.Writer, stops []gps.Stop) error {
	var b bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&b)
	t.SetStyle(table.StyleRounded)

	header := make(table.Row, 0, len(Columns))
	for _, c := range Columns {
		header = append(header, c)
	}
	t.AppendHeader(header)
	total := 0
	for _, s := range stops {
		t.AppendRow(table.Row{
			fmt.Sprintf("%.6f", s.Lat),
			fmt.Sprintf("%.6f", s.Lon),
			s.RaceTime.Format("Mon Jan 02 15:04:05"),
			fmt.Sprintf("%.0f", s.ElapsedTime),
			s.StopDuration,
			s.Merged,
		})
		total += s.StopDuration
	}
	t.AppendFooter(table.Row{"", "", "", "Total", total, ""})
	t.Render()

	_, err := w.Write(b.Bytes())
	return err
}
