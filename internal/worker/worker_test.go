package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"gpxstops/internal/gps"
	"gpxstops/internal/processor"
	"gpxstops/internal/storage"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return store
}

func TestWorkerProcessesQueue(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	points := []gps.Point{
		{Lat: 0, Lon: 0, Time: base},
		{Lat: 1, Lon: 1, Time: base.Add(20 * time.Second)},
		{Lat: 1, Lon: 1, Time: base.Add(40 * time.Second)},
		{Lat: 1, Lon: 1, Time: base.Add(60 * time.Second)},
		{Lat: 2, Lon: 2, Time: base.Add(80 * time.Second)},
		{Lat: 2, Lon: 2, Time: base.Add(100 * time.Second)},
		{Lat: 2, Lon: 2, Time: base.Add(120 * time.Second)},
		{Lat: 3, Lon: 3, Time: base.Add(140 * time.Second)},
	}

	track, err := store.InsertTrack(ctx, storage.Track{Name: "Morning Ride"}, points)
	if err != nil {
		t.Fatalf("insert track: %v", err)
	}
	if err := store.EnqueueTrack(ctx, track.ID); err != nil {
		t.Fatalf("enqueue track: %v", err)
	}

	w := &Worker{
		Store: store,
		Processor: &processor.StopProcessor{
			Store:   store,
			Options: gps.StopOptions{RestThreshold: 30 * time.Second, SpatialThreshold: 20},
			Logger:  zap.NewNop().Sugar(),
		},
		Logger: zap.NewNop().Sugar(),
	}
	processed, err := w.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("process next: %v", err)
	}
	if !processed {
		t.Fatalf("expected queue item to be processed")
	}

	set, err := store.GetStops(ctx, track.ID)
	if err != nil {
		t.Fatalf("get stops: %v", err)
	}
	if len(set.Stops) != 2 {
		t.Fatalf("expected 2 stops, got %d", len(set.Stops))
	}
	total := 0
	for _, s := range set.Stops {
		total += s.StopDuration
	}
	if total != 80 {
		t.Fatalf("expected total stop seconds 80, got %d", total)
	}

	processed, err = w.ProcessNext(ctx)
	if err != nil || processed {
		t.Fatalf("expected empty queue, got processed=%v err=%v", processed, err)
	}
}

type failingProcessor struct{ calls int }

func (f *failingProcessor) Process(ctx context.Context, trackID int64) error {
	f.calls++
	return errors.New("boom")
}

func TestWorkerKeepsFailedItemQueued(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	if err := store.EnqueueTrack(ctx, 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	proc := &failingProcessor{}
	w := &Worker{Store: store, Processor: proc, Logger: zap.NewNop().Sugar()}
	if _, err := w.ProcessNext(ctx); err == nil {
		t.Fatalf("expected processing error")
	}
	count, err := store.CountQueue(ctx)
	if err != nil {
		t.Fatalf("count queue: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected failed item to stay queued, got %d", count)
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	store := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w := &Worker{Store: store, Processor: &failingProcessor{}, Logger: zap.NewNop().Sugar()}
	go func() {
		w.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
}
