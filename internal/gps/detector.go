package gps

import "time"

type restState int

const (
	moving restState = iota
	resting
)

func (s restState) String() string {
	if s == resting {
		return "resting"
	}
	return "moving"
}

// restCandidate is the pause currently being measured.
type restCandidate struct {
	start   Point
	elapsed float64
	accum   time.Duration
}

type detector struct {
	opts  StopOptions
	start time.Time
	state restState
	rest  restCandidate
	table stopTable
}

// step consumes one consecutive pair of points. Branch order is fixed:
// timestamp gap, then stationary, then resumed motion.
func (d *detector) step(prev, cur Point) {
	dt := cur.Time.Sub(prev.Time)

	switch {
	case dt > d.opts.RestThreshold:
		d.table.append(Stop{
			Lat:          prev.Lat,
			Lon:          prev.Lon,
			RaceTime:     prev.Time,
			ElapsedTime:  d.elapsed(prev),
			StopDuration: wholeSeconds(dt),
		})
	case cur.Lat == prev.Lat && cur.Lon == prev.Lon:
		if d.state == moving {
			d.state = resting
			d.rest = restCandidate{start: prev, elapsed: d.elapsed(prev)}
		}
		d.rest.accum += dt
	case d.state == resting:
		d.finishRest()
	}
}

// finishRest closes the current candidate once motion resumes. Only the
// last emitted stop is considered for merging.
func (d *detector) finishRest() {
	defer func() {
		d.state = moving
		d.rest = restCandidate{}
	}()

	// Compared at the resolution it is stored with.
	seconds := wholeSeconds(d.rest.accum)
	if time.Duration(seconds)*time.Second <= d.opts.RestThreshold {
		return
	}

	candidate := Stop{
		Lat:          d.rest.start.Lat,
		Lon:          d.rest.start.Lon,
		RaceTime:     d.rest.start.Time,
		ElapsedTime:  d.rest.elapsed,
		StopDuration: seconds,
	}

	last, ok := d.table.last()
	if ok && Distance(last.Lat, last.Lon, candidate.Lat, candidate.Lon) < d.opts.SpatialThreshold {
		d.table.mergeIntoLast(candidate.StopDuration)
		return
	}
	d.table.append(candidate)
}

func (d *detector) elapsed(p Point) float64 {
	return p.Time.Sub(d.start).Seconds()
}

// stopTable is append-only except for the last row, which may absorb a merge.
type stopTable struct {
	stops []Stop
}

func (t *stopTable) append(s Stop) {
	t.stops = append(t.stops, s)
}

func (t *stopTable) mergeIntoLast(seconds int) {
	last := &t.stops[len(t.stops)-1]
	last.StopDuration += seconds
	last.Merged = true
}

func (t *stopTable) last() (Stop, bool) {
	if len(t.stops) == 0 {
		return Stop{}, false
	}
	return t.stops[len(t.stops)-1], true
}
