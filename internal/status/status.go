// Package status tracks the plugin-wide health state.
package status

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the overall daemon state.
type State string

const (
	Initializing State = "initializing"
	OK           State = "ok"
	Fatal        State = "fatal"
)

// Report is a point-in-time view of the tracker.
type Report struct {
	State   State     `json:"status"`
	Message string    `json:"message,omitempty"`
	Since   time.Time `json:"since"`
}

// Tracker holds the current state. Fatal is terminal.
type Tracker struct {
	mu     sync.RWMutex
	report Report
}

// NewTracker returns a tracker in the Initializing state.
func NewTracker() *Tracker {
	return &Tracker{report: Report{State: Initializing, Since: time.Now()}}
}

// SetOK marks the daemon as running. Ignored once fatal.
func (t *Tracker) SetOK(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.report.State == Fatal {
		return
	}
	t.report = Report{State: OK, Message: message, Since: time.Now()}
}

// SetFatal records a fatal error. Only the first call has an effect.
func (t *Tracker) SetFatal(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.report.State == Fatal {
		return
	}
	t.report = Report{State: Fatal, Message: err.Error(), Since: time.Now()}
	log.Error().Err(err).Msg("Status changed to fatal")
}

// Report returns the current report.
func (t *Tracker) Report() Report {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.report
}

// IsFatal reports whether a fatal error was recorded.
func (t *Tracker) IsFatal() bool {
	return t.Report().State == Fatal
}
