package annotation

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPrefix(t *testing.T) {
	testCases := []struct {
		desc     string
		prefixes []string
		expected bool
	}{
		{"BAD_values", DefaultSkipPrefixes, true},
		{"bad blink", DefaultSkipPrefixes, true},
		{"EDGE boundary", DefaultSkipPrefixes, true},
		{"ECG/R peak", DefaultSkipPrefixes, false},
		{"BAD_values", nil, false},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			a := Annotation{Description: tc.desc}
			assert.Equal(t, tc.expected, a.HasPrefix(tc.prefixes...))
		})
	}
}

func TestMatching(t *testing.T) {
	var s Set
	s.Append(0, 1, "BAD_values")
	s.Append(2, 0, "ECG/R peak")
	s.Append(5, 2, "edge")
	got := s.Matching("bad", "edge")
	require.Len(t, got, 2)
	assert.Equal(t, "BAD_values", got[0].Description)
	assert.Equal(t, 7.0, got[1].End())
}

func TestCSVRoundTrip(t *testing.T) {
	var s Set
	s.Append(0.004, 0.004, "BAD_values")
	s.Append(12.5, 0, "ECG/R peak")

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, s))
	assert.True(t, strings.HasPrefix(buf.String(), "onset,duration,description\n"))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(s.Annotations, got.Annotations); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSVErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"bad_onset", "x,1,BAD\n"},
		{"bad_duration", "1,y,BAD\n"},
		{"negative_duration", "1,-1,BAD\n"},
		{"wrong_field_count", "1,2\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.input))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
