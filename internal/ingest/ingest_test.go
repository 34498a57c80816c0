package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"gpxstops/internal/storage"
)

const trackGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
	<trk>
		<name>Gravel loop</name>
		<trkseg>
			<trkpt lat="56.9" lon="24.1"><time>2024-05-04T10:00:00Z</time></trkpt>
			<trkpt lat="56.9" lon="24.1"><time>2024-05-04T10:00:10Z</time></trkpt>
			<trkpt lat="56.91" lon="24.11"><time>2024-05-04T10:00:20Z</time></trkpt>
		</trkseg>
	</trk>
</gpx>`

func newIngestor(t *testing.T) (*Ingestor, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return &Ingestor{Store: store, Logger: zap.NewNop().Sugar()}, store
}

func TestIngestGPXStoresAndEnqueues(t *testing.T) {
	ctx := context.Background()
	ingestor, store := newIngestor(t)

	track, err := ingestor.IngestGPX(ctx, "", strings.NewReader(trackGPX))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if track.Name != "Gravel loop" {
		t.Fatalf("expected name from file, got %q", track.Name)
	}
	if track.PointCount != 3 {
		t.Fatalf("expected 3 points, got %d", track.PointCount)
	}

	queued, err := store.CountQueue(ctx)
	if err != nil {
		t.Fatalf("count queue: %v", err)
	}
	if queued != 1 {
		t.Fatalf("expected 1 queued track, got %d", queued)
	}
}

func TestIngestGPXRejectsEmptyTrack(t *testing.T) {
	ingestor, store := newIngestor(t)
	_, err := ingestor.IngestGPX(context.Background(), "empty", strings.NewReader(`<gpx version="1.1"></gpx>`))
	if err == nil {
		t.Fatalf("expected error for gpx without points")
	}
	tracks, err := store.ListTracks(context.Background())
	if err != nil {
		t.Fatalf("list tracks: %v", err)
	}
	if len(tracks) != 0 {
		t.Fatalf("expected nothing stored, got %+v", tracks)
	}
}

func TestIngestDirSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"ride.gpx":   trackGPX,
		"broken.gpx": "<gpx",
		"notes.txt":  "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	ingestor, store := newIngestor(t)
	count, skipped, err := ingestor.IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ingest dir: %v", err)
	}
	if count != 1 || skipped != 1 {
		t.Fatalf("expected 1 ingested and 1 skipped file, got %d and %d", count, skipped)
	}
	tracks, err := store.ListTracks(context.Background())
	if err != nil {
		t.Fatalf("list tracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Name != "ride" {
		t.Fatalf("expected track named after file, got %+v", tracks)
	}
}
