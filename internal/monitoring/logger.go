// Package monitoring holds the diagnostic loggers shared by the analysis
// packages.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose enables or disables Debugf output.
func SetVerbose(on bool) { verbose.Store(on) }

// Verbose reports whether Debugf output is enabled.
func Verbose() bool { return verbose.Load() }

// Debugf logs through Logf only when verbose output is enabled.
func Debugf(format string, v ...interface{}) {
	if verbose.Load() {
		Logf(format, v...)
	}
}

// Progress emits a log line every n calls to Tick. A non-positive n
// disables it.
type Progress struct {
	every int64
	count int64
	label string
}

// NewProgress returns a progress reporter labelled for log output.
func NewProgress(label string, every int) *Progress {
	return &Progress{label: label, every: int64(every)}
}

// Tick counts one unit of work and logs when the count reaches a multiple of
// the reporting interval. It returns the running count.
func (p *Progress) Tick() int64 {
	p.count++
	if p.every > 0 && p.count%p.every == 0 {
		Logf("%s: %d processed", p.label, p.count)
	}
	return p.count
}

// Count returns the number of ticks so far.
func (p *Progress) Count() int64 { return p.count }
