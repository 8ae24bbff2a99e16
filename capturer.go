package pagecap

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/porticus-lab/go-pagecap/internal/assemble"
)

// Capturer captures page images from web document readers.
//
// A Capturer manages one browser instance that is reused by every
// [Reader] it opens. Frame discovery and image export go through rod;
// host navigation and PDF printing go through chromedp attached to the
// same browser. It is safe for concurrent use.
//
// Call [Capturer.Close] when the Capturer is no longer needed to release
// browser resources.
type Capturer struct {
	cfg  capturerConfig
	log  *slog.Logger
	lnch *launcher.Launcher

	browser       *rod.Browser
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	readers map[*Reader]struct{}
}

// NewCapturer starts a browser with the given options.
//
// The caller must call [Capturer.Close] when finished.
func NewCapturer(opts ...Option) (*Capturer, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	log := cfg.log()

	l, wsURL, err := launch(cfg)
	if err != nil {
		return nil, err
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("pagecap: connecting to browser: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), wsURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Attach eagerly so errors surface at creation time.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		b.Close()
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("pagecap: attaching to browser: %w", err)
	}

	log.Info("pagecap: browser started", "url", wsURL, "headful", cfg.headful, "stealth", cfg.stealth)
	return &Capturer{
		cfg:           cfg,
		log:           log,
		lnch:          l,
		browser:       b,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		readers:       make(map[*Reader]struct{}),
	}, nil
}

// Close closes every open Reader and releases the browser process.
// Close is idempotent.
func (c *Capturer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	readers := make([]*Reader, 0, len(c.readers))
	for r := range c.readers {
		readers = append(readers, r)
	}
	c.mu.Unlock()

	for _, r := range readers {
		r.Close()
	}
	c.browserCancel()
	c.allocCancel()
	c.browser.Close()
	c.lnch.Kill()
	c.lnch.Cleanup()
	c.log.Info("pagecap: browser stopped")
	return nil
}

// Open loads rawURL in a new tab and attaches frame agents to every frame
// of it. The returned Reader drives capture in that tab.
func (c *Capturer) Open(ctx context.Context, rawURL string) (*Reader, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("pagecap: invalid URL %q: %w", rawURL, err)
	}

	r, err := openReader(ctx, c, rawURL)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		r.Close()
		return nil, ErrClosed
	}
	c.readers[r] = struct{}{}
	c.mu.Unlock()
	return r, nil
}

func (c *Capturer) forget(r *Reader) {
	c.mu.Lock()
	delete(c.readers, r)
	c.mu.Unlock()
}

// printHTML prints an HTML document to PDF in a fresh tab, with no margins
// and the page size given in points.
func (c *Capturer) printHTML(ctx context.Context, html string, size assemble.PageSize) ([]byte, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "pagecap-*.html")
	if err != nil {
		return nil, fmt.Errorf("pagecap: creating temp file: %w", err)
	}
	name := f.Name()
	defer os.Remove(name)

	if _, err := f.WriteString(html); err != nil {
		f.Close()
		return nil, fmt.Errorf("pagecap: writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("pagecap: closing temp file: %w", err)
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		return nil, fmt.Errorf("pagecap: resolving path: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	var buf []byte
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate("file://"+abs),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, _, err = page.PrintToPDF().
				WithPaperWidth(size.Width / 72).
				WithPaperHeight(size.Height / 72).
				WithMarginTop(0).
				WithMarginRight(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pagecap: printing failed: %w", err)
	}
	return buf, nil
}

func (c *Capturer) checkClosed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// --- Package-level convenience functions ---

// CapturePage captures the page currently shown at rawURL into a one-page
// document using a temporary [Capturer].
func CapturePage(ctx context.Context, rawURL string, pg *PageConfig, opts ...Option) (*Document, error) {
	c, err := NewCapturer(opts...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	r, err := c.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return r.CaptureSingle(ctx, &GenerateOptions{Page: pg})
}

// CaptureDocument captures up to limit pages from the reader at rawURL
// using a temporary [Capturer]. When the run fails after some pages were
// captured, the partial document is returned together with the error.
func CaptureDocument(ctx context.Context, rawURL string, limit int, pg *PageConfig, opts ...Option) (*Document, error) {
	c, err := NewCapturer(opts...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	r, err := c.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	_, runErr := r.Run(ctx, limit)
	if r.Status().Pages == 0 {
		if runErr != nil {
			return nil, runErr
		}
		return nil, ErrEmptySession
	}
	doc, err := r.Generate(context.WithoutCancel(ctx), &GenerateOptions{Page: pg})
	if err != nil {
		return nil, err
	}
	return doc, runErr
}
