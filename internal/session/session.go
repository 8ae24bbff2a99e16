// Package session holds the in-memory capture session: the ordered list of
// captured pages, the running flag and the page limit.
package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// Page is one captured page image. Values are never modified after
// creation; ImageData must not be mutated by callers.
type Page struct {
	ImageData  []byte // JPEG
	Width      int
	Height     int
	Number     int
	CapturedAt time.Time
}

// DefaultLimit is the page limit of a fresh session.
const DefaultLimit = 50

// Session is the capture session. Pages keep capture order, which is not
// necessarily page-number order; duplicates and gaps are allowed.
type Session struct {
	mu    sync.RWMutex
	pages []Page
	limit int

	running atomic.Bool
}

// New creates an empty session with the given page limit. A non-positive
// limit selects DefaultLimit.
func New(limit int) *Session {
	s := &Session{}
	s.SetLimit(limit)
	return s
}

// Append adds p at the end of the session.
func (s *Session) Append(p Page) {
	s.mu.Lock()
	s.pages = append(s.pages, p)
	s.mu.Unlock()
}

// Pages returns a copy of the captured pages in capture order.
func (s *Session) Pages() []Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Page, len(s.pages))
	copy(out, s.pages)
	return out
}

// Len returns the number of captured pages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// Clear drops every captured page. The running flag is left alone, so a
// loop in flight keeps going and appends to the now empty list.
func (s *Session) Clear() {
	s.mu.Lock()
	s.pages = nil
	s.mu.Unlock()
}

// Limit returns the page limit.
func (s *Session) Limit() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limit
}

// SetLimit changes the page limit. Non-positive values select DefaultLimit.
func (s *Session) SetLimit(n int) {
	if n <= 0 {
		n = DefaultLimit
	}
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()
}

// TryStart sets the running flag and reports whether it was previously
// clear.
func (s *Session) TryStart() bool {
	return s.running.CompareAndSwap(false, true)
}

// Stop clears the running flag.
func (s *Session) Stop() {
	s.running.Store(false)
}

// Running reports the running flag.
func (s *Session) Running() bool {
	return s.running.Load()
}
