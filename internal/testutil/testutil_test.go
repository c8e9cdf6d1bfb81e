package testutil

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/banshee-data/heartbeat/internal/ecg/recording"
)

func TestAssertStatusCode_FailurePath(t *testing.T) {
	ok := t.Run("status mismatch", func(t *testing.T) {
		AssertStatusCode(t, http.StatusOK, http.StatusBadRequest)
	})
	if ok {
		t.Fatal("expected subtest to fail on mismatched status code")
	}
}

func TestServeAndDecode(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"echo":"` + string(body) + `"}`))
	})

	w := Serve(h, NewTestRequest(http.MethodPost, "/x", "hello"))
	AssertStatusCode(t, w.Code, http.StatusOK)
	got := DecodeJSON[map[string]string](t, w)
	if got["echo"] != "hello" {
		t.Errorf("echo = %q, want hello", got["echo"])
	}
}

func TestRecordingCSV(t *testing.T) {
	rec := &recording.Recording{
		Rate:     100,
		Channels: []recording.Channel{{Name: "ECG 001", Type: recording.TypeECG, Data: []float64{1, 2}}},
	}
	out := RecordingCSV(t, rec)
	if !strings.HasPrefix(out, "ECG 001:ecg") {
		t.Errorf("unexpected header in %q", out)
	}
}
