package pagecap

import (
	"log/slog"
	"time"

	"github.com/porticus-lab/go-pagecap/internal/orchestrator"
)

// capturerConfig holds internal configuration for a Capturer.
type capturerConfig struct {
	chromePath   string
	timeout      time.Duration
	noSandbox    bool
	autoDownload bool
	headful      bool
	stealth      bool
	logger       *slog.Logger

	selectors      Selectors
	timing         Timing
	imageID        string
	minDimension   int
	maxFailures    int
	chromeRenderer bool
	progress       func(Event)
}

func defaultConfig() capturerConfig {
	return capturerConfig{
		timeout:   30 * time.Second,
		selectors: DefaultSelectors(),
		timing:    orchestrator.DefaultTiming(),
		imageID:   "page-image",
	}
}

func (c *capturerConfig) log() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Option configures a [Capturer].
type Option func(*capturerConfig)

// WithChromePath sets the path to the Chrome or Chromium executable.
// By default the library searches standard locations automatically.
func WithChromePath(path string) Option {
	return func(c *capturerConfig) {
		c.chromePath = path
	}
}

// WithTimeout bounds opening a reader: navigation and the wait for the
// document body. Defaults to 30 seconds. A zero or negative value disables
// the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *capturerConfig) {
		c.timeout = d
	}
}

// WithNoSandbox disables the Chrome sandbox. This is required when
// running as root, for example inside Docker containers.
func WithNoSandbox() Option {
	return func(c *capturerConfig) {
		c.noSandbox = true
	}
}

// WithAutoDownload fetches a compatible Chromium when none is installed.
func WithAutoDownload() Option {
	return func(c *capturerConfig) {
		c.autoDownload = true
	}
}

// WithHeadful shows the browser window. Useful for readers that require a
// login before capture.
func WithHeadful() Option {
	return func(c *capturerConfig) {
		c.headful = true
	}
}

// WithStealth opens reader tabs with automation fingerprints removed.
func WithStealth() Option {
	return func(c *capturerConfig) {
		c.stealth = true
	}
}

// WithLogger sets the logger for the capturer and every reader it opens.
func WithLogger(l *slog.Logger) Option {
	return func(c *capturerConfig) {
		c.logger = l
	}
}

// WithSelectors sets the CSS selectors of the host reader's page
// indicator, page count and next-page control.
func WithSelectors(s Selectors) Option {
	return func(c *capturerConfig) {
		c.selectors = s.withDefaults()
	}
}

// WithTiming overrides the probe and capture timeouts and settle delays.
// Zero fields keep their defaults.
func WithTiming(t Timing) Option {
	return func(c *capturerConfig) {
		c.timing = t
	}
}

// WithImageID sets the element id the host reader gives its page image.
// Defaults to "page-image".
func WithImageID(id string) Option {
	return func(c *capturerConfig) {
		c.imageID = id
	}
}

// WithMinDimension sets the natural width and height an image must both
// exceed to be taken for a page when no element has the page image id.
// Defaults to 400 pixels.
func WithMinDimension(px int) Option {
	return func(c *capturerConfig) {
		c.minDimension = px
	}
}

// WithMaxConsecutiveFailures ends a capture run in failure after n failing
// pages in a row. By default failing pages are skipped for as long as the
// reader keeps advancing.
func WithMaxConsecutiveFailures(n int) Option {
	return func(c *capturerConfig) {
		c.maxFailures = n
	}
}

// WithChromeRenderer assembles documents by printing them with the
// capturer's browser instead of the built-in PDF writer.
func WithChromeRenderer() Option {
	return func(c *capturerConfig) {
		c.chromeRenderer = true
	}
}

// WithProgress registers fn for progress events of every capture run. fn is
// called from the capture loop and must not block.
func WithProgress(fn func(Event)) Option {
	return func(c *capturerConfig) {
		c.progress = fn
	}
}
