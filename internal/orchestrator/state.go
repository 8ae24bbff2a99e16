package orchestrator

import (
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrProbeFailed means no page-bearing frame answered the liveness probe.
	ErrProbeFailed = errors.New("orchestrator: no page-bearing frame found")
	// ErrCaptureTimeout means no frame answered a capture request in time.
	ErrCaptureTimeout = errors.New("orchestrator: capture timed out")
	// ErrImageLoad means the page-bearing frame could not load its image.
	ErrImageLoad = errors.New("orchestrator: page image failed to load")
	// ErrEndOfDocument is returned by a Navigator whose next control is
	// disabled. The loop treats it as successful completion.
	ErrEndOfDocument = errors.New("orchestrator: end of document")
	// ErrNoNavigation is returned by a Navigator that cannot find its next
	// control. The loop treats it like ErrEndOfDocument.
	ErrNoNavigation = errors.New("orchestrator: page navigation control not found")
	// ErrAlreadyRunning is returned by Run while a loop is active.
	ErrAlreadyRunning = errors.New("orchestrator: capture already running")
	// ErrTooManyFailures ends a loop whose pages keep failing.
	ErrTooManyFailures = errors.New("orchestrator: too many consecutive page failures")
	// ErrEmptySession is returned when generating a document with no pages.
	ErrEmptySession = errors.New("orchestrator: no captured pages")
)

// State is a state of the pagination loop.
type State int

const (
	Idle State = iota
	Probing
	Capturing
	Advancing
	Stopping
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Probing:
		return "probing"
	case Capturing:
		return "capturing"
	case Advancing:
		return "advancing"
	case Stopping:
		return "stopping"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MarshalText makes State readable in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reason tells why a loop reached Done or Failed.
type Reason string

const (
	ReasonLimit         Reason = "page-limit"
	ReasonEndOfDocument Reason = "end-of-document"
	ReasonStopped       Reason = "stopped"
	ReasonError         Reason = "error"
)

// Outcome is the terminal result of one Run.
type Outcome struct {
	State    State
	Reason   Reason
	Captured int // pages appended by this run
	Failures int // pages that failed during this run
	Err      error
}

// EventKind classifies progress events.
type EventKind int

const (
	EventState EventKind = iota
	EventPageCaptured
	EventPageFailed
)

// Event reports loop progress. Page carries number and size only.
type Event struct {
	Kind  EventKind
	State State
	Page  int // page number, for page events
	Total int // pages in the session
	Limit int
	Err   error
}

// Timing holds the fixed delays and timeouts of the protocol.
type Timing struct {
	ProbeTimeout   time.Duration
	CaptureTimeout time.Duration
	FirstSettle    time.Duration
	AdvanceSettle  time.Duration
}

// DefaultTiming returns the delays the host reader needs in practice.
func DefaultTiming() Timing {
	return Timing{
		ProbeTimeout:   5 * time.Second,
		CaptureTimeout: 15 * time.Second,
		FirstSettle:    500 * time.Millisecond,
		AdvanceSettle:  1500 * time.Millisecond,
	}
}

// Config configures an Orchestrator.
type Config struct {
	Timing Timing

	// MaxConsecutiveFailures, when positive, ends the loop in Failed after
	// this many failing pages in a row. Zero never gives up on failing
	// pages; the loop still ends at the last page.
	MaxConsecutiveFailures int

	// OnEvent, when set, is called synchronously from the loop.
	OnEvent func(Event)

	Logger *slog.Logger
}

func (c *Config) defaults() {
	d := DefaultTiming()
	if c.Timing.ProbeTimeout <= 0 {
		c.Timing.ProbeTimeout = d.ProbeTimeout
	}
	if c.Timing.CaptureTimeout <= 0 {
		c.Timing.CaptureTimeout = d.CaptureTimeout
	}
	// Zero selects the default settle delay; a negative one disables it.
	switch {
	case c.Timing.FirstSettle == 0:
		c.Timing.FirstSettle = d.FirstSettle
	case c.Timing.FirstSettle < 0:
		c.Timing.FirstSettle = 0
	}
	switch {
	case c.Timing.AdvanceSettle == 0:
		c.Timing.AdvanceSettle = d.AdvanceSettle
	case c.Timing.AdvanceSettle < 0:
		c.Timing.AdvanceSettle = 0
	}
	if c.MaxConsecutiveFailures < 0 {
		c.MaxConsecutiveFailures = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
