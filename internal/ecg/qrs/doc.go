// Package qrs finds QRS complexes in a rectified, band-limited ECG
// amplitude signal.
//
// Detection calibrates an amplitude scale from the first three seconds,
// scans the signal once per candidate threshold fraction, discards
// windows that are unusually loud or cross the threshold too often, and
// keeps the candidate whose implied heart rate is closest to the median
// of the physiologically plausible ones.
//
// Candidates are independent, so they may be evaluated concurrently; the
// selection is a final reduction over the per-candidate slots.
package qrs
