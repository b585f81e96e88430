// Package pagelog provides an elapsed-time progress logger for
// long-running paging operations (bulk Save passes),
// grounded on the MPT tool's own Log/ProgressLogger pair.
package pagelog

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Log prints messages prefixed with the time elapsed since the logger
// was created, rather than a wall-clock timestamp: useful for comparing
// the relative cost of stages within one run. Every message also carries
// Label, so that a process logging progress for more than one trie
// (importing several named configurations in sequence, say) can tell
// their output apart.
type Log struct {
	Label  string
	start  time.Time
	logger *log.Logger
}

// New creates a Log tagged with label, starting its elapsed-time clock
// now and writing to os.Stderr.
func New(label string) *Log {
	return NewWithOutput(label, os.Stderr)
}

// NewWithOutput creates a Log like New, but writing to an arbitrary
// io.Writer instead of os.Stderr; tests use this to capture and assert
// on logged output.
func NewWithOutput(label string, w io.Writer) *Log {
	return &Log{Label: label, start: time.Now(), logger: log.New(w, "", 0)}
}

// Print logs msg with an elapsed-time prefix and the logger's label.
func (l *Log) Print(msg string) {
	t := uint64(time.Since(l.start).Seconds())
	if l.Label == "" {
		l.logger.Printf("[t=%4d:%02d] %s", t/60, t%60, msg)
		return
	}
	l.logger.Printf("[%s] [t=%4d:%02d] %s", l.Label, t/60, t%60, msg)
}

// Printf formats and logs a message with an elapsed-time prefix.
func (l *Log) Printf(format string, v ...any) {
	l.Print(fmt.Sprintf(format, v...))
}

// Progress tracks a counter, logging a rate summary every time it
// crosses a fixed window of steps.
type Progress struct {
	log            *Log
	start          time.Time
	format         string
	window         int
	counter, steps int
}

// NewProgress creates a Progress tracker that logs through l, summarizing
// every window steps using format (which receives the rounded-down
// cumulative count and the steps/second rate).
func (l *Log) NewProgress(format string, window int) *Progress {
	return &Progress{log: l, start: time.Now(), format: format, window: window}
}

// Step advances the counter by increment, logging a summary if the
// window has been crossed.
func (p *Progress) Step(increment int) {
	p.counter += increment
	p.steps += increment
	if p.steps < p.window {
		return
	}
	now := time.Now()
	rounded := p.counter / p.window * p.window
	p.log.Printf(p.format, rounded, float64(p.steps)/now.Sub(p.start).Seconds())
	p.steps = 0
	p.start = now
}

// Count returns the counter's current value.
func (p *Progress) Count() int { return p.counter }
