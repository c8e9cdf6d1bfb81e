// Package security guards the files the tools write and names the files
// the API offers for download.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrOutsideAllowed = errors.New("path outside allowed directories")

// canonical resolves symlinks in path, or in its deepest existing parent
// when the path itself does not exist yet.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rel), nil
		}
		if filepath.Dir(dir) == dir {
			return abs, nil
		}
	}
}

// Within reports an error unless path resolves inside dir. A symlinked
// parent pointing out of dir counts as outside.
func Within(path, dir string) error {
	p, err := canonical(path)
	if err != nil {
		return err
	}
	d, err := canonical(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(d, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s escapes %s", ErrOutsideAllowed, path, dir)
	}
	return nil
}

// ValidateOutputPath checks that path lies in one of dirs. With no dirs,
// the working directory and the temp directory are allowed.
func ValidateOutputPath(path string, dirs ...string) error {
	if len(dirs) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		dirs = []string{cwd, os.TempDir()}
	}
	for _, dir := range dirs {
		if Within(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not within %v", ErrOutsideAllowed, path, dirs)
}

// CreateOutput validates path and creates the file.
func CreateOutput(path string) (*os.File, error) {
	if err := ValidateOutputPath(path); err != nil {
		return nil, err
	}
	return os.Create(path)
}

const maxFilenameLen = 128

// SanitizeFilename keeps ASCII letters, digits, '.', '_' and '-', and
// turns every other run of characters into one underscore.
func SanitizeFilename(s string) string {
	var b strings.Builder
	under := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			under = false
		case !under:
			b.WriteByte('_')
			under = true
		}
	}
	if out := strings.Trim(b.String(), "._"); out != "" {
		return out
	}
	return "unknown"
}

// ReportFilename names a downloadable report for a run, e.g.
// "patient-07_3f2a9c1e.png" for source "patient 07.csv".
func ReportFilename(source, runID, ext string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	id := runID
	if len(id) > 8 {
		id = id[:8]
	}
	return SanitizeFilename(base) + "_" + SanitizeFilename(id) + ext
}
