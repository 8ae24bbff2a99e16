package pagecap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/porticus-lab/go-pagecap/internal/agent"
	"github.com/porticus-lab/go-pagecap/internal/assemble"
	"github.com/porticus-lab/go-pagecap/internal/bus"
	"github.com/porticus-lab/go-pagecap/internal/correlator"
	"github.com/porticus-lab/go-pagecap/internal/orchestrator"
)

// Aliases for the capture loop's types.
type (
	// Timing holds the probe and capture timeouts and the settle delays.
	Timing = orchestrator.Timing
	// Outcome is the terminal result of one [Reader.Run].
	Outcome = orchestrator.Outcome
	// Status is a point-in-time view of a Reader's capture session.
	Status = orchestrator.Status
	// Event reports capture progress.
	Event = orchestrator.Event
	// State is a state of the capture loop.
	State = orchestrator.State
	// Navigator drives the host reader's pagination.
	Navigator = orchestrator.Navigator
)

// Event kinds reported to a [WithProgress] callback.
const (
	EventState        = orchestrator.EventState
	EventPageCaptured = orchestrator.EventPageCaptured
	EventPageFailed   = orchestrator.EventPageFailed
)

// maxFrameDepth bounds agent injection in pathological frame trees.
const maxFrameDepth = 8

// Reader is one open document reader tab. Its top-level document runs the
// capture loop; every frame inside it runs a frame agent.
type Reader struct {
	c   *Capturer
	log *slog.Logger

	page      *rod.Page
	tabCtx    context.Context
	tabCancel context.CancelFunc

	bus  *bus.Bus
	host *agent.Host
	top  *rodFrame
	nav  Navigator
	orch *orchestrator.Orchestrator

	watchCancel context.CancelFunc
	closeOnce   sync.Once
}

func openReader(ctx context.Context, c *Capturer, rawURL string) (*Reader, error) {
	cfg := c.cfg
	log := c.log.With("url", rawURL)

	var (
		p   *rod.Page
		err error
	)
	if cfg.stealth {
		p, err = stealth.Page(c.browser)
	} else {
		p, err = c.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("pagecap: creating tab: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(target.ID(p.TargetID)))
	r := &Reader{
		c:         c,
		log:       log,
		page:      p,
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
	}

	if err := r.navigate(ctx, rawURL); err != nil {
		r.release()
		return nil, err
	}

	r.bus = bus.New(log)
	r.host = agent.NewHost(agent.PortFunc(r.bus.Post), agent.Config{
		ImageID:      cfg.imageID,
		MinDimension: cfg.minDimension,
		Logger:       log,
	})
	r.top = newRodFrame(p, cfg.imageID, cfg.minDimension)
	r.nav = newChromeNavigator(tabCtx, cfg.selectors)
	r.orch = orchestrator.New(r.bus, correlator.BroadcastFunc(r.broadcast), r.nav, orchestrator.Config{
		Timing:                 cfg.timing,
		MaxConsecutiveFailures: cfg.maxFailures,
		OnEvent:                cfg.progress,
		Logger:                 log,
	})

	watchCtx, watchCancel := context.WithCancel(context.Background())
	r.watchCancel = watchCancel
	n := r.inject(watchCtx)
	go r.watchFrames(watchCtx)

	log.Info("pagecap: reader opened", "agents", n)
	return r, nil
}

func (r *Reader) navigate(ctx context.Context, rawURL string) error {
	// Attach without a deadline; the tab's lifetime follows the first Run.
	if err := chromedp.Run(r.tabCtx); err != nil {
		return fmt.Errorf("pagecap: attaching to tab: %w", err)
	}

	runCtx, cancel := context.WithCancel(r.tabCtx)
	defer cancel()
	if t := r.c.cfg.timeout; t > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, t)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("pagecap: loading %s: %w", rawURL, err)
	}
	return nil
}

// broadcast hands a request to the top frame's agent, which relays it down
// the frame tree one hop at a time.
func (r *Reader) broadcast(data []byte) {
	if err := r.host.Attach(r.top).Post(data); err != nil {
		r.log.Warn("pagecap: broadcast dropped", "error", err)
	}
}

// inject attaches an agent to every reachable frame and returns how many
// frames it visited.
func (r *Reader) inject(ctx context.Context) int {
	var walk func(f agent.Frame, depth int) int
	walk = func(f agent.Frame, depth int) int {
		r.host.Attach(f)
		if depth >= maxFrameDepth {
			return 1
		}
		children, err := f.Children(ctx)
		if err != nil {
			r.log.Debug("pagecap: frame walk", "frame", f.ID(), "error", err)
			return 1
		}
		n := 1
		for _, c := range children {
			n += walk(c, depth+1)
		}
		return n
	}
	return walk(r.top, 0)
}

// watchFrames re-arms agents when their frame navigates and injects agents
// into frames that appear later.
func (r *Reader) watchFrames(ctx context.Context) {
	wait := r.page.Context(ctx).EachEvent(func(e *proto.PageFrameNavigated) {
		if r.host.Reload(string(e.Frame.ID)) {
			return
		}
		go r.inject(ctx)
	})
	wait()
}

// Run captures pages until limit pages are held, the reader reaches its
// last page or Stop is called. See [ErrAlreadyRunning].
func (r *Reader) Run(ctx context.Context, limit int) (Outcome, error) {
	return r.orch.Run(ctx, limit)
}

// Start runs the capture loop in the background. ErrAlreadyRunning is
// returned immediately when a loop is active; otherwise the channel
// receives the outcome once the loop ends.
func (r *Reader) Start(ctx context.Context, limit int) (<-chan Outcome, error) {
	return r.orch.Start(ctx, limit)
}

// Stop asks a running capture to end after the current page.
func (r *Reader) Stop() {
	r.orch.Stop()
}

// Clear discards the captured pages. A running capture keeps going.
func (r *Reader) Clear() {
	r.orch.Clear()
}

// Status reports the capture state and page counters.
func (r *Reader) Status() Status {
	return r.orch.Status()
}

// Navigator returns the host navigation used by the capture loop.
func (r *Reader) Navigator() Navigator {
	return r.nav
}

// GenerateOptions controls document generation. A nil *GenerateOptions
// uses the defaults.
type GenerateOptions struct {
	// Title replaces the reader's document title in the filename.
	Title string

	// Filename replaces the generated filename.
	Filename string

	// Page describes the output pages. Nil means A4 portrait.
	Page *PageConfig

	// Keep leaves the captured pages in place after generation.
	Keep bool
}

func (r *Reader) generateOptions(o *GenerateOptions) orchestrator.GenerateOptions {
	if o == nil {
		o = &GenerateOptions{}
	}
	var renderer assemble.Renderer
	if r.c.cfg.chromeRenderer {
		renderer = &ChromeRenderer{c: r.c}
	}
	return orchestrator.GenerateOptions{
		Title:    o.Title,
		Filename: o.Filename,
		PageSize: o.Page.pageSize(),
		Margin:   o.Page.marginPoints(),
		Renderer: renderer,
		Keep:     o.Keep,
	}
}

// Generate assembles the captured pages, in capture order, into one PDF.
// On success the captured pages are cleared unless opts.Keep is set. On
// failure they are kept so generation can be retried.
func (r *Reader) Generate(ctx context.Context, opts *GenerateOptions) (*Document, error) {
	doc, err := r.orch.Generate(ctx, r.generateOptions(opts))
	if err != nil {
		return nil, err
	}
	return newDocument(doc), nil
}

// CaptureSingle captures only the page currently shown, without touching
// the captured pages.
func (r *Reader) CaptureSingle(ctx context.Context, opts *GenerateOptions) (*Document, error) {
	doc, err := r.orch.CaptureSingle(ctx, r.generateOptions(opts))
	if err != nil {
		return nil, err
	}
	return newDocument(doc), nil
}

// Close stops the capture loop's agents and closes the tab. Close is
// idempotent.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.orch.Stop()
		r.watchCancel()
		r.host.Close()
		r.orch.Close()
		r.release()
		r.c.forget(r)
		r.log.Info("pagecap: reader closed")
	})
	return nil
}

func (r *Reader) release() {
	r.tabCancel()
	if err := r.page.Close(); err != nil {
		r.log.Debug("pagecap: closing tab", "error", err)
	}
}
