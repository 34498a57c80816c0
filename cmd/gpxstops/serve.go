package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"gpxstops/internal/config"
	"gpxstops/internal/ingest"
	"gpxstops/internal/log"
	"gpxstops/internal/processor"
	"gpxstops/internal/storage"
	"gpxstops/internal/web"
	"gpxstops/internal/worker"
)

func openStore(ctx context.Context, path string) (*storage.Store, error) {
	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := store.InitSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func runImport(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", cfg.DatabasePath, "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("import needs at least one GPX file or directory")
	}

	store, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ingestor := &ingest.Ingestor{Store: store, Logger: log.GetSugaredLogger()}
	total, skipped := 0, 0
	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			n, bad, err := ingestor.IngestDir(ctx, path)
			if err != nil {
				return err
			}
			total += n
			skipped += bad
			continue
		}
		if _, err := ingestor.IngestFile(ctx, path); err != nil {
			return err
		}
		total++
	}

	queued, err := store.CountQueue(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "imported %s tracks, skipped %s, %s waiting for detection\n",
		humanize.Comma(int64(total)), humanize.Comma(int64(skipped)), humanize.Comma(int64(queued)))
	return nil
}

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", cfg.ServerAddr, "HTTP listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := log.Init(cfg.LogDebug); err != nil {
		return err
	}
	defer log.Sync()
	logger := log.GetSugaredLogger()

	store, err := openStore(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	stopOpts := cfg.StopOptions()
	ingestor := &ingest.Ingestor{Store: store, Logger: logger}
	queueWorker := &worker.Worker{
		Store:     store,
		Processor: &processor.StopProcessor{Store: store, Options: stopOpts, Logger: logger},
		Logger:    logger,
	}

	webServer, err := web.NewServer(store, ingestor, stopOpts, cfg.DetectCacheSize, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         *addr,
		Handler:      webServer.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("http server error", "error", err)
			cancel()
		}
	}()
	workerDone := startWorker(ctx, queueWorker, cfg.WorkerPollInterval())

	logger.Infow("serving", "addr", *addr, "db", cfg.DatabasePath,
		"rest_threshold", stopOpts.RestThreshold, "spatial_threshold_m", stopOpts.SpatialThreshold)

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	err = server.Shutdown(shutdownCtx)
	// The store is closed on return; the worker must be idle by then.
	<-workerDone
	return err
}

// startWorker runs w until ctx is cancelled. The returned channel is closed
// once the worker has returned.
func startWorker(ctx context.Context, w *worker.Worker, idleDelay time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, idleDelay)
	}()
	return done
}
