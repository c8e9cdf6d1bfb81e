package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWithin(t *testing.T) {
	tmp := t.TempDir()
	safe := filepath.Join(tmp, "safe")
	outside := filepath.Join(tmp, "outside")
	for _, d := range []string{safe, outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	link := filepath.Join(safe, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(safe, "beats.png"), false},
		{"missing nested dir", filepath.Join(safe, "a", "b", "beats.png"), false},
		{"dot dot", filepath.Join(safe, "..", "beats.png"), true},
		{"through symlink", filepath.Join(link, "beats.png"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Within(tt.path, safe)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Within(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrOutsideAllowed) {
				t.Errorf("error %v is not ErrOutsideAllowed", err)
			}
		})
	}
}

func TestValidateOutputPathDefaults(t *testing.T) {
	if err := ValidateOutputPath(filepath.Join(t.TempDir(), "out.csv")); err != nil {
		t.Errorf("temp dir should be allowed: %v", err)
	}
	if err := ValidateOutputPath("events.txt"); err != nil {
		t.Errorf("working directory should be allowed: %v", err)
	}
	if err := ValidateOutputPath("/proc/heartbeat-test/out.csv"); err == nil {
		t.Error("expected /proc to be rejected")
	}
}

func TestCreateOutput(t *testing.T) {
	dir := t.TempDir()
	f, err := CreateOutput(filepath.Join(dir, "events.txt"))
	if err != nil {
		t.Fatalf("CreateOutput: %v", err)
	}
	f.Close()

	if _, err := CreateOutput(filepath.Join(dir, "..", "..", "..", "..", "..", "..", "..", "escape.txt")); err == nil {
		t.Error("expected escaping path to be rejected")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                "unknown",
		"patient 07":      "patient_07",
		"../../etc":       "etc",
		"run:1/2\\3":      "run_1_2_3",
		"ECG-063_raw.csv": "ECG-063_raw.csv",
		"___":             "unknown",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReportFilename(t *testing.T) {
	got := ReportFilename("/data/patient 07.csv", "3f2a9c1e-aaaa-bbbb", ".png")
	if want := "patient_07_3f2a9c1e.png"; got != want {
		t.Errorf("ReportFilename = %q, want %q", got, want)
	}
	if got := ReportFilename("simulate:72bpm", "ab", ".html"); got != "simulate_72bpm_ab.html" {
		t.Errorf("ReportFilename = %q", got)
	}
}
