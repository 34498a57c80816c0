package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"gpxstops/internal/gps"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return store
}

func TestInsertTrackAndLoadPoints(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC)
	points := []gps.Point{
		{Lat: 56.9, Lon: 24.1, Time: base},
		{Lat: 56.91, Lon: 24.11, Time: base.Add(5 * time.Second)},
	}
	track, err := store.InsertTrack(ctx, Track{Name: "Morning"}, points)
	if err != nil {
		t.Fatalf("insert track: %v", err)
	}
	if track.ID == 0 || track.PublicID == "" || track.PointCount != 2 || !track.StartTime.Equal(base) {
		t.Fatalf("unexpected track %+v", track)
	}

	loaded, err := store.LoadTrackPoints(ctx, track.ID)
	if err != nil {
		t.Fatalf("load points: %v", err)
	}
	if len(loaded) != 2 || loaded[1].Lat != 56.91 || !loaded[1].Time.Equal(points[1].Time) {
		t.Fatalf("unexpected points %+v", loaded)
	}

	byPublic, err := store.GetTrackByPublicID(ctx, track.PublicID)
	if err != nil {
		t.Fatalf("get by public id: %v", err)
	}
	if byPublic.ID != track.ID {
		t.Fatalf("expected track %d, got %d", track.ID, byPublic.ID)
	}

	tracks, err := store.ListTracks(ctx)
	if err != nil {
		t.Fatalf("list tracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Name != "Morning" {
		t.Fatalf("unexpected tracks %+v", tracks)
	}
}

func TestInsertTrackValidates(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.InsertTrack(context.Background(), Track{}, []gps.Point{{}}); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if _, err := store.InsertTrack(context.Background(), Track{Name: "x"}, nil); err == nil {
		t.Fatalf("expected error for missing points")
	}
}

func TestGetTrackNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetTrack(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetStops(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceStopsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC)

	first := StopSet{
		TrackID: 7,
		Options: gps.StopOptions{RestThreshold: 30 * time.Second, SpatialThreshold: 20},
		Stops: []gps.Stop{
			{Lat: 1.5, Lon: 2.5, RaceTime: base, ElapsedTime: 0, StopDuration: 40, Merged: true},
			{Lat: 3.25, Lon: 4.75, RaceTime: base.Add(time.Hour), ElapsedTime: 3600, StopDuration: 31},
		},
	}
	if err := store.ReplaceStops(ctx, first); err != nil {
		t.Fatalf("replace stops: %v", err)
	}

	got, err := store.GetStops(ctx, 7)
	if err != nil {
		t.Fatalf("get stops: %v", err)
	}
	if got.Options != first.Options {
		t.Fatalf("expected options %+v, got %+v", first.Options, got.Options)
	}
	if len(got.Stops) != 2 {
		t.Fatalf("expected 2 stops, got %d", len(got.Stops))
	}
	for i, want := range first.Stops {
		g := got.Stops[i]
		if g.Lat != want.Lat || g.Lon != want.Lon || !g.RaceTime.Equal(want.RaceTime) ||
			g.ElapsedTime != want.ElapsedTime || g.StopDuration != want.StopDuration || g.Merged != want.Merged {
			t.Fatalf("stop %d: expected %+v, got %+v", i, want, g)
		}
	}

	if err := store.ReplaceStops(ctx, StopSet{TrackID: 7, Error: "invalid input"}); err != nil {
		t.Fatalf("replace stops again: %v", err)
	}
	got, err = store.GetStops(ctx, 7)
	if err != nil {
		t.Fatalf("get stops: %v", err)
	}
	if len(got.Stops) != 0 || got.Error != "invalid input" {
		t.Fatalf("expected empty replaced set, got %+v", got)
	}
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, id := range []int64{3, 5} {
		if err := store.EnqueueTrack(ctx, id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	count, err := store.CountQueue(ctx)
	if err != nil || count != 2 {
		t.Fatalf("expected 2 queued, got %d (%v)", count, err)
	}

	queueID, trackID, err := store.DequeueTrack(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if trackID != 3 {
		t.Fatalf("expected FIFO order, got track %d", trackID)
	}
	if err := store.MarkProcessed(ctx, queueID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	count, err = store.CountQueue(ctx)
	if err != nil || count != 1 {
		t.Fatalf("expected 1 queued, got %d (%v)", count, err)
	}
}
