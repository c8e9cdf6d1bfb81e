package api

import (
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/heartbeat/internal/config"
	"github.com/banshee-data/heartbeat/internal/db"
	"github.com/banshee-data/heartbeat/internal/ecg/events"
	"github.com/banshee-data/heartbeat/internal/report"
	"github.com/banshee-data/heartbeat/internal/simulate"
	"github.com/banshee-data/heartbeat/internal/testutil"
	"github.com/banshee-data/heartbeat/internal/timeutil"
)

var testStart = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	s := NewServer(database, config.EmptyDetectionConfig())
	s.SetClock(timeutil.NewMockClock(testStart))
	return s, s.ServeMux()
}

func simulatedCSV(t *testing.T, seconds float64) string {
	t.Helper()
	o := simulate.DefaultOptions()
	o.Seconds = seconds
	rec, err := simulate.Recording(o)
	require.NoError(t, err)
	return testutil.RecordingCSV(t, rec)
}

func postDetect(t *testing.T, h http.Handler, query, body string) RunResponse {
	t.Helper()
	w := testutil.Serve(h, testutil.NewTestRequest(http.MethodPost, "/api/detect?"+query, body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return testutil.DecodeJSON[RunResponse](t, w)
}

func TestDetectStoresRun(t *testing.T) {
	_, h := newTestServer(t)

	resp := postDetect(t, h, "rate=250&first_sample=1000&source=sim", simulatedCSV(t, 30))
	require.NotNil(t, resp.Run)
	assert.NotEmpty(t, resp.Run.RunID)
	assert.Equal(t, "sim", resp.Run.Source)
	assert.Equal(t, 1000, resp.Run.FirstSample)
	assert.True(t, resp.Run.CreatedAt.Equal(testStart))
	assert.InDelta(t, 72, resp.Run.AveragePulse, 3)
	assert.Len(t, resp.Candidates, 16)
	require.NotEmpty(t, resp.Events)
	assert.GreaterOrEqual(t, resp.Events[0].Sample, 1000)

	w := testutil.Serve(h, testutil.NewTestRequest(http.MethodGet, "/api/runs", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	runs := testutil.DecodeJSON[[]db.Run](t, w)
	require.Len(t, runs, 1)
	assert.Equal(t, resp.Run.RunID, runs[0].RunID)

	w = testutil.Serve(h, testutil.NewTestRequest(http.MethodGet, "/api/runs/"+resp.Run.RunID+"/events", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, resp.Events, testutil.DecodeJSON[events.Table](t, w))

	w = testutil.Serve(h, testutil.NewTestRequest(http.MethodGet, "/api/runs/"+resp.Run.RunID+"/events?format=txt", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	table, err := events.Read(strings.NewReader(w.Body.String()))
	require.NoError(t, err)
	assert.Equal(t, resp.Events, table)

	w = testutil.Serve(h, testutil.NewTestRequest(http.MethodGet, "/api/runs/"+resp.Run.RunID, ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	got := testutil.DecodeJSON[RunResponse](t, w)
	assert.Equal(t, resp.Run.RunID, got.Run.RunID)
	assert.Len(t, got.Candidates, 16)
}

func TestDetectThresholdOverride(t *testing.T) {
	_, h := newTestServer(t)

	resp := postDetect(t, h, "rate=250&threshold=0.6", simulatedCSV(t, 20))
	assert.Equal(t, "0.6", resp.Run.Threshold)
	require.Len(t, resp.Candidates, 1)
	assert.True(t, resp.Candidates[0].Selected)
}

func TestDetectErrors(t *testing.T) {
	_, h := newTestServer(t)
	body := simulatedCSV(t, 20)

	tests := []struct {
		name   string
		method string
		query  string
		body   string
		status int
	}{
		{"method", http.MethodGet, "rate=250", "", http.StatusMethodNotAllowed},
		{"missing rate", http.MethodPost, "", body, http.StatusBadRequest},
		{"bad first sample", http.MethodPost, "rate=250&first_sample=x", body, http.StatusBadRequest},
		{"bad threshold", http.MethodPost, "rate=250&threshold=2", body, http.StatusBadRequest},
		{"bad csv", http.MethodPost, "rate=250", "ECG:ecg\nnot-a-number\n", http.StatusBadRequest},
		{"unknown channel", http.MethodPost, "rate=250&ch=nope", body, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.Serve(h, testutil.NewTestRequest(tt.method, "/api/detect?"+tt.query, tt.body))
			testutil.AssertStatusCode(t, w.Code, tt.status)
		})
	}
}

func TestChartEndpoints(t *testing.T) {
	_, h := newTestServer(t)
	resp := postDetect(t, h, "rate=250", simulatedCSV(t, 20))

	w := testutil.Serve(h, testutil.NewTestRequest(http.MethodGet, "/api/runs/"+resp.Run.RunID+"/chart", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "echarts")

	w = testutil.Serve(h, testutil.NewTestRequest(http.MethodGet, "/api/runs/"+resp.Run.RunID+"/plot.png", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "_"+resp.Run.RunID[:8]+".png")
}

func TestDeleteRun(t *testing.T) {
	s, h := newTestServer(t)
	resp := postDetect(t, h, "rate=250", simulatedCSV(t, 20))
	id := resp.Run.RunID

	w := testutil.Serve(h, testutil.NewTestRequest(http.MethodDelete, "/api/runs/"+id, ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusNoContent)
	_, kept := s.trace(id)
	assert.False(t, kept)

	for _, path := range []string{"/api/runs/" + id, "/api/runs/" + id + "/events", "/api/runs/" + id + "/chart"} {
		w = testutil.Serve(h, testutil.NewTestRequest(http.MethodGet, path, ""))
		testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
	}

	w = testutil.Serve(h, testutil.NewTestRequest(http.MethodDelete, "/api/runs/"+id, ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
}

func TestRunRoutesNotFound(t *testing.T) {
	_, h := newTestServer(t)
	for _, path := range []string{"/api/runs/", "/api/runs/missing", "/api/runs/missing/bogus"} {
		w := testutil.Serve(h, testutil.NewTestRequest(http.MethodGet, path, ""))
		testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
	}

	w := testutil.Serve(h, testutil.NewTestRequest(http.MethodGet, "/api/runs?limit=0", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

	w = testutil.Serve(h, testutil.NewTestRequest(http.MethodGet, "/api/runs", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestShowConfig(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "cfg.db"))
	require.NoError(t, err)
	defer database.Close()

	cfg, err := config.LoadDetectionConfig(filepath.Join("..", "..", config.DefaultConfigPath))
	require.NoError(t, err)
	h := NewServer(database, cfg).ServeMux()

	w := testutil.Serve(h, testutil.NewTestRequest(http.MethodGet, "/api/config", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	got := testutil.DecodeJSON[config.DetectionConfig](t, w)
	assert.Equal(t, cfg.GetThreshold(), got.GetThreshold())
	assert.Equal(t, cfg.GetLFreq(), got.GetLFreq())

	w = testutil.Serve(h, testutil.NewTestRequest(http.MethodPost, "/api/config", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func TestTraceCacheBounded(t *testing.T) {
	s := NewServer(nil, nil)
	for i := 0; i < MaxTraces+3; i++ {
		s.keepTrace(string(rune('a'+i)), report.Trace{Title: "t", Signal: []float64{1}, Rate: 1})
	}
	_, ok := s.trace("a")
	assert.False(t, ok, "oldest trace should be evicted")
	_, ok = s.trace(string(rune('a' + MaxTraces + 2)))
	assert.True(t, ok)
	assert.Len(t, s.order, MaxTraces)
}

func TestLoggingMiddleware(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := testutil.Serve(h, testutil.NewTestRequest(http.MethodGet, "/x", ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusTeapot)
	assert.Contains(t, statusCodeColor(http.StatusTeapot), "418")
}
