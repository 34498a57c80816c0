package worker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"gpxstops/internal/log"
	"gpxstops/internal/storage"
)

type Processor interface {
	Process(ctx context.Context, trackID int64) error
}

type Worker struct {
	Store     *storage.Store
	Processor Processor
	Logger    *zap.SugaredLogger
}

// ProcessNext handles the oldest queued track. It reports false when the
// queue is empty.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	queueID, trackID, err := w.Store.DequeueTrack(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if err := w.Processor.Process(ctx, trackID); err != nil {
		return false, err
	}

	if err := w.Store.MarkProcessed(ctx, queueID); err != nil {
		return false, err
	}

	return true, nil
}

// Run drains the queue until ctx is cancelled, sleeping idleDelay whenever
// the queue is empty or processing fails.
func (w *Worker) Run(ctx context.Context, idleDelay time.Duration) {
	if idleDelay <= 0 {
		idleDelay = 2 * time.Second
	}
	logger := log.Or(w.Logger)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := w.ProcessNext(ctx)
		if err != nil {
			logger.Errorw("worker error", "error", err)
		}
		if !processed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleDelay):
			}
		}
	}
}
