package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/heartbeat/internal/db"
	"github.com/banshee-data/heartbeat/internal/ecg"
	"github.com/banshee-data/heartbeat/internal/ecg/events"
	"github.com/banshee-data/heartbeat/internal/ecg/filter"
	"github.com/banshee-data/heartbeat/internal/ecg/qrs"
	"github.com/banshee-data/heartbeat/internal/ecg/recording"
	"github.com/banshee-data/heartbeat/internal/httputil"
	"github.com/banshee-data/heartbeat/internal/report"
	"github.com/banshee-data/heartbeat/internal/security"
)

// MaxUploadBytes bounds the size of an uploaded recording.
const MaxUploadBytes = 64 << 20

// RunResponse is the JSON form of one run.
type RunResponse struct {
	Run        *db.Run        `json:"run"`
	Events     events.Table   `json:"events,omitempty"`
	Candidates []db.Candidate `json:"candidates,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.cfg)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.db.Runs(limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

// runRoutes serves /api/runs/{id} and its sub-resources.
func (s *Server) runRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		httputil.NotFound(w, "missing run id")
		return
	}

	if sub == "" && r.Method == http.MethodDelete {
		s.deleteRun(w, id)
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	switch sub {
	case "":
		s.showRun(w, id)
	case "events":
		s.showEvents(w, r, id)
	case "candidates":
		s.showCandidates(w, id)
	case "chart":
		s.showChart(w, id)
	case "plot.png":
		s.showPlot(w, id)
	default:
		httputil.NotFound(w, fmt.Sprintf("unknown resource %q", sub))
	}
}

func (s *Server) lookupRun(id string) (*db.Run, error) {
	run, err := s.db.Run(id)
	if errors.Is(err, db.ErrRunNotFound) {
		return nil, httputil.Errorf(http.StatusNotFound, "%w", err)
	}
	return run, err
}

func (s *Server) showRun(w http.ResponseWriter, id string) {
	run, err := s.lookupRun(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cands, err := s.db.Candidates(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, RunResponse{Run: run, Candidates: cands})
}

func (s *Server) deleteRun(w http.ResponseWriter, id string) {
	err := s.db.DeleteRun(id)
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	s.forgetTrace(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) showEvents(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.lookupRun(id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	table, err := s.db.Events(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if r.URL.Query().Get("format") != "txt" {
		httputil.WriteJSONOK(w, table)
		return
	}
	var buf bytes.Buffer
	if err := events.Write(&buf, table); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) showCandidates(w http.ResponseWriter, id string) {
	if _, err := s.lookupRun(id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	cands, err := s.db.Candidates(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if cands == nil {
		cands = []db.Candidate{}
	}
	httputil.WriteJSONOK(w, cands)
}

func (s *Server) showChart(w http.ResponseWriter, id string) {
	tr, ok := s.trace(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no signal kept for run %s", id))
		return
	}
	var buf bytes.Buffer
	if err := report.RenderHTML(&buf, tr); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) showPlot(w http.ResponseWriter, id string) {
	tr, ok := s.trace(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no signal kept for run %s", id))
		return
	}
	var buf bytes.Buffer
	if err := report.WritePNG(&buf, tr); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", security.ReportFilename(tr.Title, id, ".png")))
	_, _ = w.Write(buf.Bytes())
}

// detectOptions applies query overrides to the configured options.
func (s *Server) detectOptions(r *http.Request) (ecg.Options, error) {
	o := s.Options()
	q := r.URL.Query()
	if v := q.Get("threshold"); v != "" {
		t, err := qrs.ParseThreshold(v)
		if err != nil {
			return o, httputil.Errorf(http.StatusBadRequest, "%w", err)
		}
		o.Threshold = t
	}
	if v := q.Get("ch"); v != "" {
		o.ChannelName = v
	}
	return o, nil
}

// detect reads a recording CSV from the body, finds its heart beats and
// stores the run.
func (s *Server) detect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	rate, err := strconv.ParseFloat(q.Get("rate"), 64)
	if err != nil || rate <= 0 {
		httputil.BadRequest(w, fmt.Sprintf("invalid rate %q", q.Get("rate")))
		return
	}
	first := 0
	if v := q.Get("first_sample"); v != "" {
		if first, err = strconv.Atoi(v); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid first_sample %q", v))
			return
		}
	}
	source := q.Get("source")
	if source == "" {
		source = "upload"
	}
	o, err := s.detectOptions(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := recording.ReadCSV(http.MaxBytesReader(w, r.Body, MaxUploadBytes), rate, first)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	run, res, err := s.Analyze(source, rec, o)
	if err != nil {
		httputil.WriteError(w, detectStatus(err))
		return
	}
	cands, err := s.db.Candidates(run.RunID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, RunResponse{
		Run:        run,
		Events:     res.Events,
		Candidates: cands,
		Warnings:   res.Detection.Warnings,
	})
}

// detectStatus marks errors caused by the request as client errors.
func detectStatus(err error) error {
	switch {
	case errors.Is(err, recording.ErrInvalid),
		errors.Is(err, recording.ErrChannelNotFound),
		errors.Is(err, recording.ErrNoSensors),
		errors.Is(err, ecg.ErrInvalidOption),
		errors.Is(err, ecg.ErrNoUsableData),
		errors.Is(err, filter.ErrInvalidParams),
		errors.Is(err, filter.ErrInvalidLength),
		errors.Is(err, qrs.ErrConfiguration),
		errors.Is(err, qrs.ErrInsufficientData):
		return httputil.Errorf(http.StatusUnprocessableEntity, "%w", err)
	}
	return err
}
