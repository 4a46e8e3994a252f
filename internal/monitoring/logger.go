// Package monitoring holds the diagnostic logger shared by the pipeline
// stages. Nothing in the numeric core writes to stdout directly; every
// progress line goes through Logf so tests and callers can mute or capture it.
package monitoring

import (
	"fmt"
	"log"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Stage logs the completion of a named pipeline stage together with the
// time elapsed since start and a free-form summary.
//
//	start := time.Now()
//	...
//	monitoring.Stage("select", start, "kept %d of %d samples", kept, total)
func Stage(name string, start time.Time, format string, v ...interface{}) {
	summary := fmt.Sprintf(format, v...)
	Logf("[%s] %s (%s)", name, summary, time.Since(start).Round(time.Millisecond))
}
