package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gpxstops/internal/gpx"
	"gpxstops/internal/log"
	"gpxstops/internal/storage"
)

type Ingestor struct {
	Store  *storage.Store
	Logger *zap.SugaredLogger
}

// IngestGPX stores the first segment of a GPX document and queues it for
// stop detection. An empty name falls back to the track name in the file.
func (i *Ingestor) IngestGPX(ctx context.Context, name string, r io.Reader) (storage.Track, error) {
	if i.Store == nil {
		return storage.Track{}, errors.New("track store not configured")
	}

	doc, err := gpx.ParseReader(r)
	if err != nil {
		return storage.Track{}, err
	}
	points, err := doc.FirstSegment()
	if err != nil {
		return storage.Track{}, err
	}

	track, err := i.Store.InsertTrack(ctx, storage.Track{Name: trackName(name, doc)}, points)
	if err != nil {
		return storage.Track{}, errors.Wrap(err, "store track")
	}
	if err := i.Store.EnqueueTrack(ctx, track.ID); err != nil {
		return storage.Track{}, errors.Wrapf(err, "enqueue track %d", track.ID)
	}

	log.Or(i.Logger).Infow("track ingested", "track_id", track.ID, "name", track.Name, "points", track.PointCount)
	return track, nil
}

func (i *Ingestor) IngestFile(ctx context.Context, path string) (storage.Track, error) {
	file, err := os.Open(path)
	if err != nil {
		return storage.Track{}, errors.Wrap(err, "open gpx")
	}
	defer file.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	track, err := i.IngestGPX(ctx, name, file)
	if err != nil {
		return storage.Track{}, errors.Wrap(err, path)
	}
	return track, nil
}

// IngestDir ingests every .gpx file directly inside dir. Files that fail are
// logged, counted as skipped and otherwise ignored.
func (i *Ingestor) IngestDir(ctx context.Context, dir string) (ingested, skipped int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, errors.Wrap(err, "read dir")
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".gpx") {
			continue
		}
		if _, err := i.IngestFile(ctx, filepath.Join(dir, entry.Name())); err != nil {
			log.Or(i.Logger).Warnw("skipping gpx file", "file", entry.Name(), "error", err)
			skipped++
			continue
		}
		ingested++
	}
	return ingested, skipped, nil
}

func trackName(name string, doc *gpx.GPX) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if len(doc.Tracks) > 0 && strings.TrimSpace(doc.Tracks[0].Name) != "" {
		return strings.TrimSpace(doc.Tracks[0].Name)
	}
	if doc.Metadata != nil && strings.TrimSpace(doc.Metadata.Name) != "" {
		return strings.TrimSpace(doc.Metadata.Name)
	}
	return "Untitled track"
}
