// Package orchestrator drives page capture from the top-level document: the
// liveness probe, correlated capture calls, the pagination loop and
// document generation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/porticus-lab/go-pagecap/internal/assemble"
	"github.com/porticus-lab/go-pagecap/internal/bus"
	"github.com/porticus-lab/go-pagecap/internal/correlator"
	"github.com/porticus-lab/go-pagecap/internal/protocol"
	"github.com/porticus-lab/go-pagecap/internal/session"
)

// Navigator is the host page's navigation surface.
type Navigator interface {
	// CurrentPage reads the host's current-page indicator.
	CurrentPage(ctx context.Context) (int, error)

	// TotalPages is best-effort; ok is false when the host shows no count.
	TotalPages(ctx context.Context) (n int, ok bool)

	// Next advances the host one page. It returns ErrEndOfDocument when
	// the control is disabled and ErrNoNavigation when it is absent.
	Next(ctx context.Context) error

	// Title returns the document title, or "" when unavailable.
	Title(ctx context.Context) string
}

// Orchestrator owns the capture session of one reader tab.
type Orchestrator struct {
	cfg Config
	nav Navigator

	pings    *correlator.Correlator
	captures *correlator.Correlator
	unsub    func()

	mu       sync.Mutex
	sawImage bool
	last     *protocol.ReadyAnnouncement
	sess     *session.Session
	state    State
	lastErr  error

	// active is set for the whole life of a loop, from claim to finish.
	// gen identifies the loop holding it.
	active bool
	gen    uint64
}

// New creates an Orchestrator that broadcasts through out and reads agent
// traffic from b.
func New(b *bus.Bus, out correlator.Broadcaster, nav Navigator, cfg Config) *Orchestrator {
	cfg.defaults()
	o := &Orchestrator{
		cfg:      cfg,
		nav:      nav,
		pings:    correlator.New(b, out, cfg.Logger, protocol.TypePingAck),
		captures: correlator.New(b, out, cfg.Logger, protocol.TypeCaptureResponse),
	}
	o.unsub = b.Subscribe(o.onReady, protocol.TypeReady)
	return o
}

// Close detaches the orchestrator from its bus.
func (o *Orchestrator) Close() {
	o.unsub()
	o.pings.Close()
	o.captures.Close()
}

func (o *Orchestrator) onReady(m protocol.Message) {
	ann, ok := m.(protocol.ReadyAnnouncement)
	if !ok {
		return
	}
	o.mu.Lock()
	o.sawImage = o.sawImage || ann.HasImage
	o.last = &ann
	o.mu.Unlock()
	o.cfg.Logger.Debug("orchestrator: readiness", "frame", ann.FrameURL, "has_image", ann.HasImage)
}

// readySeen reports whether any announcement so far carried an image.
func (o *Orchestrator) readySeen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sawImage
}

func (o *Orchestrator) lastReadiness() (protocol.ReadyAnnouncement, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return protocol.ReadyAnnouncement{}, false
	}
	return *o.last, true
}

// Probe checks that some frame currently holds a page image. A prior
// readiness announcement with an image answers without sending anything.
func (o *Orchestrator) Probe(ctx context.Context) error {
	if o.readySeen() {
		o.cfg.Logger.Debug("orchestrator: probe answered by readiness announcement")
		return nil
	}

	resp, err := o.pings.Send(ctx, func(id string) protocol.Message {
		return protocol.Ping{RequestID: id}
	}, o.cfg.Timing.ProbeTimeout)
	if err == nil {
		if ack, ok := resp.(protocol.PingAck); ok && ack.HasImage {
			return nil
		}
		return fmt.Errorf("%w: frame answered without an image", ErrProbeFailed)
	}

	if errors.Is(err, correlator.ErrTimeout) {
		if last, ok := o.lastReadiness(); ok && last.HasImage {
			o.cfg.Logger.Debug("orchestrator: probe timed out, using last announcement", "frame", last.FrameURL)
			return nil
		}
	}
	if ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProbeFailed, err)
}

// Capture requests the current page image and stamps it with the host's
// current page number and the capture time.
func (o *Orchestrator) Capture(ctx context.Context) (session.Page, error) {
	return o.capture(ctx, 1)
}

func (o *Orchestrator) capture(ctx context.Context, fallbackNumber int) (session.Page, error) {
	resp, err := o.captures.Send(ctx, func(id string) protocol.Message {
		return protocol.CaptureRequest{RequestID: id}
	}, o.cfg.Timing.CaptureTimeout)
	if err != nil {
		if errors.Is(err, correlator.ErrTimeout) {
			return session.Page{}, fmt.Errorf("%w: %w", ErrCaptureTimeout, err)
		}
		return session.Page{}, err
	}

	cr, ok := resp.(protocol.CaptureResponse)
	if !ok {
		return session.Page{}, fmt.Errorf("orchestrator: unexpected response %s", resp.Type())
	}
	if !cr.Success {
		return session.Page{}, fmt.Errorf("%w: %s", ErrImageLoad, cr.Error)
	}

	number, err := o.nav.CurrentPage(ctx)
	if err != nil || number <= 0 {
		o.cfg.Logger.Debug("orchestrator: page indicator unavailable", "error", err, "fallback", fallbackNumber)
		number = fallbackNumber
	}
	return session.Page{
		ImageData:  cr.ImageData,
		Width:      cr.Width,
		Height:     cr.Height,
		Number:     number,
		CapturedAt: time.Now(),
	}, nil
}

// Session returns the current session, or nil before the first Run.
func (o *Orchestrator) Session() *session.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess
}

// Stop asks a running loop to exit at its next boundary. An in-flight
// capture completes or times out on its own; until the loop has exited,
// a new Run is still refused.
func (o *Orchestrator) Stop() {
	if s := o.Session(); s != nil {
		s.Stop()
	}
}

// Clear drops captured pages without affecting a running loop.
func (o *Orchestrator) Clear() {
	if s := o.Session(); s != nil {
		s.Clear()
	}
}

// Status is a point-in-time view for progress displays.
type Status struct {
	State     State  `json:"state"`
	Running   bool   `json:"running"`
	Pages     int    `json:"pages"`
	Limit     int    `json:"limit"`
	FirstPage int    `json:"first_page,omitempty"`
	LastPage  int    `json:"last_page,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Status returns the current state and session counters.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{State: o.state, Running: o.active}
	if o.lastErr != nil {
		st.LastError = o.lastErr.Error()
	}
	s := o.sess
	o.mu.Unlock()

	if s == nil {
		st.Limit = session.DefaultLimit
		return st
	}
	pages := s.Pages()
	st.Pages = len(pages)
	st.Limit = s.Limit()
	if len(pages) > 0 {
		st.FirstPage = pages[0].Number
		st.LastPage = pages[len(pages)-1].Number
	}
	return st
}

// GenerateOptions controls Generate and CaptureSingle.
type GenerateOptions struct {
	// Title overrides the host document title.
	Title    string
	Filename string
	PageSize assemble.PageSize
	Margin   float64
	Renderer assemble.Renderer

	// Keep leaves the session intact after a successful generation.
	Keep bool
}

// Generate assembles the session's pages, in capture order, into one
// document. On failure the session is untouched so generation can be
// retried. On success the session is cleared unless opts.Keep is set or a
// loop is still running.
func (o *Orchestrator) Generate(ctx context.Context, opts GenerateOptions) (*assemble.Document, error) {
	s := o.Session()
	if s == nil || s.Len() == 0 {
		return nil, ErrEmptySession
	}
	pages := s.Pages()

	doc, err := assemble.Assemble(ctx, toAssemblePages(pages), o.assembleOptions(ctx, opts, true))
	if err != nil {
		o.cfg.Logger.Error("orchestrator: generate failed", "pages", len(pages), "error", err)
		return nil, err
	}
	if !opts.Keep && !o.Active() {
		s.Clear()
	}
	o.cfg.Logger.Info("orchestrator: document generated", "file", doc.Filename, "pages", doc.Pages)
	return doc, nil
}

// CaptureSingle probes, captures the current page and returns a one-page
// document. The session is not touched.
func (o *Orchestrator) CaptureSingle(ctx context.Context, opts GenerateOptions) (*assemble.Document, error) {
	if err := o.Probe(ctx); err != nil {
		return nil, err
	}
	p, err := o.capture(ctx, 1)
	if err != nil {
		return nil, err
	}
	return assemble.Assemble(ctx, toAssemblePages([]session.Page{p}), o.assembleOptions(ctx, opts, true))
}

func (o *Orchestrator) assembleOptions(ctx context.Context, opts GenerateOptions, includeRange bool) assemble.Options {
	title := opts.Title
	if title == "" {
		title = o.nav.Title(ctx)
	}
	return assemble.Options{
		Title:        title,
		Filename:     opts.Filename,
		IncludeRange: includeRange,
		PageSize:     opts.PageSize,
		Margin:       opts.Margin,
		Renderer:     opts.Renderer,
	}
}

func toAssemblePages(pages []session.Page) []assemble.Page {
	out := make([]assemble.Page, len(pages))
	for i, p := range pages {
		out[i] = assemble.Page{
			Image:  assemble.Image{Data: p.ImageData, Width: p.Width, Height: p.Height},
			Number: p.Number,
		}
	}
	return out
}
