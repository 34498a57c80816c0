package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"gpxstops/internal/gps"
	"gpxstops/internal/gpx"
	"gpxstops/internal/ingest"
	"gpxstops/internal/log"
	"gpxstops/internal/report"
	"gpxstops/internal/storage"
	"gpxstops/internal/stoptable"
)

const maxUploadBytes = 32 << 20

type detectKey struct {
	trackID int64
	opts    gps.StopOptions
}

type Server struct {
	store    *storage.Store
	ingestor *ingest.Ingestor
	options  gps.StopOptions
	detected *lru.Cache[detectKey, []gps.Stop]
	logger   *zap.SugaredLogger
}

func NewServer(store *storage.Store, ingestor *ingest.Ingestor, opts gps.StopOptions, cacheSize int, logger *zap.SugaredLogger) (*Server, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[detectKey, []gps.Stop](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Server{
		store:    store,
		ingestor: ingestor,
		options:  opts,
		detected: cache,
		logger:   log.Or(logger),
	}, nil
}

func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.Health).Methods(http.MethodGet)
	router.HandleFunc("/tracks", s.UploadTrack).Methods(http.MethodPost)
	router.HandleFunc("/tracks", s.ListTracks).Methods(http.MethodGet)
	router.HandleFunc("/tracks/{id}", s.GetTrack).Methods(http.MethodGet)
	router.HandleFunc("/tracks/{id}/stops", s.Stops).Methods(http.MethodGet)
	router.HandleFunc("/tracks/{id}/detect", s.Detect).Methods(http.MethodGet)
	router.HandleFunc("/tracks/{id}/stops.geojson", s.Markers).Methods(http.MethodGet)
	router.HandleFunc("/tracks/{id}/annotated.gpx", s.AnnotatedGPX).Methods(http.MethodGet)
	router.HandleFunc("/tracks/{id}/curve", s.RestCurve).Methods(http.MethodGet)
	router.HandleFunc("/tracks/{id}/summary", s.Summary).Methods(http.MethodGet)
	return router
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) UploadTrack(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var body io.Reader = r.Body
	name := r.URL.Query().Get("name")
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file field", http.StatusBadRequest)
			return
		}
		defer file.Close()
		body = file
		if name == "" {
			name = r.FormValue("name")
		}
		if name == "" {
			name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		}
	}

	track, err := s.ingestor.IngestGPX(r.Context(), name, body)
	if err != nil {
		s.logger.Warnw("upload rejected", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Location", "/tracks/"+strconv.FormatInt(track.ID, 10))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, track)
}

func (s *Server) ListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.store.ListTracks(r.Context())
	if err != nil {
		s.internalError(w, "list tracks", err)
		return
	}
	if tracks == nil {
		tracks = []storage.Track{}
	}
	s.writeJSON(w, tracks)
}

func (s *Server) GetTrack(w http.ResponseWriter, r *http.Request) {
	track, ok := s.lookupTrack(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, track)
}

// Stops serves the stored stop table. Passing rest or spatial switches to an
// ad-hoc detection with those thresholds.
func (s *Server) Stops(w http.ResponseWriter, r *http.Request) {
	track, ok := s.lookupTrack(w, r)
	if !ok {
		return
	}
	stops, ok := s.stopsFor(w, r, track)
	if !ok {
		return
	}
	s.writeStops(w, r, stops)
}

// Detect always re-runs detection; missing thresholds use the server defaults.
func (s *Server) Detect(w http.ResponseWriter, r *http.Request) {
	track, ok := s.lookupTrack(w, r)
	if !ok {
		return
	}
	opts, err := s.optionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stops, ok := s.detect(r.Context(), w, track, opts)
	if !ok {
		return
	}
	s.writeStops(w, r, stops)
}

func (s *Server) Markers(w http.ResponseWriter, r *http.Request) {
	track, ok := s.lookupTrack(w, r)
	if !ok {
		return
	}
	stops, ok := s.stopsFor(w, r, track)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(report.Markers(stops)); err != nil {
		s.logger.Errorw("encode markers", "error", err)
	}
}

func (s *Server) AnnotatedGPX(w http.ResponseWriter, r *http.Request) {
	track, ok := s.lookupTrack(w, r)
	if !ok {
		return
	}
	stops, ok := s.stopsFor(w, r, track)
	if !ok {
		return
	}
	points, err := s.store.LoadTrackPoints(r.Context(), track.ID)
	if err != nil {
		s.internalError(w, "load points", err)
		return
	}

	doc := gpx.FromPoints(track.Name, points)
	doc.AddWaypoints(gpx.StopWaypoints(stops)...)
	w.Header().Set("Content-Type", "application/gpx+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="`+safeFilename(track.Name)+`_stops.gpx"`)
	if err := doc.WriteToWriter(w); err != nil {
		s.logger.Errorw("write gpx", "track_id", track.ID, "error", err)
	}
}

func (s *Server) RestCurve(w http.ResponseWriter, r *http.Request) {
	track, ok := s.lookupTrack(w, r)
	if !ok {
		return
	}
	stops, ok := s.stopsFor(w, r, track)
	if !ok {
		return
	}
	curve := report.RestCurve(stops)
	if curve == nil {
		curve = []report.CurvePoint{}
	}
	s.writeJSON(w, curve)
}

func (s *Server) Summary(w http.ResponseWriter, r *http.Request) {
	track, ok := s.lookupTrack(w, r)
	if !ok {
		return
	}
	stops, ok := s.stopsFor(w, r, track)
	if !ok {
		return
	}
	s.writeJSON(w, report.Summarize(stops))
}

// lookupTrack resolves {id} as either the numeric id or the public UUID.
func (s *Server) lookupTrack(w http.ResponseWriter, r *http.Request) (storage.Track, bool) {
	raw := mux.Vars(r)["id"]

	var (
		track storage.Track
		err   error
	)
	if id, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
		track, err = s.store.GetTrack(r.Context(), id)
	} else if _, parseErr := uuid.Parse(raw); parseErr == nil {
		track, err = s.store.GetTrackByPublicID(r.Context(), raw)
	} else {
		http.Error(w, "invalid track id", http.StatusBadRequest)
		return storage.Track{}, false
	}
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return storage.Track{}, false
	}
	if err != nil {
		s.internalError(w, "get track", err)
		return storage.Track{}, false
	}
	return track, true
}

func (s *Server) stopsFor(w http.ResponseWriter, r *http.Request, track storage.Track) ([]gps.Stop, bool) {
	q := r.URL.Query()
	if q.Has("rest") || q.Has("spatial") {
		opts, err := s.optionsFromQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
		return s.detect(r.Context(), w, track, opts)
	}

	set, err := s.store.GetStops(r.Context(), track.ID)
	if errors.Is(err, storage.ErrNotFound) {
		w.Header().Set("Retry-After", "2")
		http.Error(w, "stop detection pending", http.StatusAccepted)
		return nil, false
	}
	if err != nil {
		s.internalError(w, "get stops", err)
		return nil, false
	}
	if set.Error != "" {
		http.Error(w, set.Error, http.StatusUnprocessableEntity)
		return nil, false
	}
	return set.Stops, true
}

func (s *Server) detect(ctx context.Context, w http.ResponseWriter, track storage.Track, opts gps.StopOptions) ([]gps.Stop, bool) {
	key := detectKey{trackID: track.ID, opts: opts}
	if stops, ok := s.detected.Get(key); ok {
		return stops, true
	}

	points, err := s.store.LoadTrackPoints(ctx, track.ID)
	if err != nil {
		s.internalError(w, "load points", err)
		return nil, false
	}
	stops, err := gps.DetectStops(points, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, gps.ErrInvalidInput) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return nil, false
	}
	if stops == nil {
		stops = []gps.Stop{}
	}
	s.detected.Add(key, stops)
	return stops, true
}

func (s *Server) optionsFromQuery(r *http.Request) (gps.StopOptions, error) {
	opts := s.options
	q := r.URL.Query()
	if v := q.Get("rest"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return gps.StopOptions{}, errors.New("rest must be whole seconds")
		}
		opts.RestThreshold = time.Duration(seconds) * time.Second
	}
	if v := q.Get("spatial"); v != "" {
		meters, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return gps.StopOptions{}, errors.New("spatial must be meters")
		}
		opts.SpatialThreshold = meters
	}
	if err := opts.Validate(); err != nil {
		return gps.StopOptions{}, err
	}
	return opts, nil
}

func (s *Server) writeStops(w http.ResponseWriter, r *http.Request, stops []gps.Stop) {
	var err error
	switch r.URL.Query().Get("format") {
	case "msgpack":
		w.Header().Set("Content-Type", "application/x-msgpack")
		err = stoptable.EncodeMsgpack(w, stops)
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		err = stoptable.WriteCSV(w, stops)
	default:
		s.writeJSON(w, stops)
	}
	if err != nil {
		s.logger.Errorw("write stops", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorw("encode response", "error", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Errorw(op, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func safeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		return "track"
	}
	return name
}
