// Package monitoring holds the process-wide diagnostic logger used by the
// detection pipeline when a caller does not pass its own sink.
package monitoring

import "log"

// LogFunc is a printf-style diagnostic sink.
type LogFunc func(format string, v ...interface{})

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf LogFunc = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f LogFunc) {
	if f == nil {
		Logf = Discard
		return
	}
	Logf = f
}

// Discard drops every message.
func Discard(string, ...interface{}) {}

// Or returns f when it is set and the package logger otherwise. Per-call
// sinks go through Or so a nil sink still reaches the process log.
func Or(f LogFunc) LogFunc {
	if f != nil {
		return f
	}
	return func(format string, v ...interface{}) { Logf(format, v...) }
}
