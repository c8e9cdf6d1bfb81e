// Package api serves stored detection runs and runs detection on
// uploaded recordings.
package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/heartbeat/internal/config"
	"github.com/banshee-data/heartbeat/internal/db"
	"github.com/banshee-data/heartbeat/internal/ecg"
	"github.com/banshee-data/heartbeat/internal/ecg/recording"
	"github.com/banshee-data/heartbeat/internal/monitoring"
	"github.com/banshee-data/heartbeat/internal/report"
	"github.com/banshee-data/heartbeat/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// MaxTraces bounds how many runs keep their signal for charting.
const MaxTraces = 16

type Server struct {
	db    *db.DB
	cfg   *config.DetectionConfig
	clock timeutil.Clock

	mu     sync.Mutex
	traces map[string]report.Trace
	order  []string
}

func NewServer(database *db.DB, cfg *config.DetectionConfig) *Server {
	if cfg == nil {
		cfg = config.EmptyDetectionConfig()
	}
	return &Server{
		db:     database,
		cfg:    cfg,
		clock:  timeutil.RealClock{},
		traces: make(map[string]report.Trace),
	}
}

// SetClock replaces the clock used to stamp new runs.
func (s *Server) SetClock(c timeutil.Clock) { s.clock = c }

// Options returns the detection options of the server's config.
func (s *Server) Options() ecg.Options { return s.cfg.ToOptions() }

// Analyze finds the heart beats in rec, stores the run and keeps its
// trace for the chart endpoints.
func (s *Server) Analyze(source string, rec *recording.Recording, o ecg.Options) (*db.Run, *ecg.Result, error) {
	res, err := ecg.FindEvents(rec, o)
	if err != nil {
		return nil, nil, err
	}
	run := db.NewRun(source, rec, res, o)
	run.CreatedAt = s.clock.Now()
	if _, err := s.db.RecordRun(run, res.Events, &res.Detection); err != nil {
		return nil, nil, err
	}
	if tr, err := report.FromResult(rec, res, source); err == nil {
		s.keepTrace(run.RunID, tr)
	} else {
		monitoring.Logf("run %s: no chart: %v", run.RunID, err)
	}
	return run, res, nil
}

func (s *Server) keepTrace(id string, tr report.Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.traces[id]; !ok {
		s.order = append(s.order, id)
	}
	s.traces[id] = tr
	for len(s.order) > MaxTraces {
		delete(s.traces, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Server) trace(id string) (report.Trace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.traces[id]
	return tr, ok
}

func (s *Server) forgetTrace(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.traces, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/detect", s.detect)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/", s.runRoutes)
	return mux
}
