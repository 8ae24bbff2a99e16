package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Frame is the capability every frame context offers to its agent. Handles
// returned by Children may be fresh objects on every call; ID identifies
// the underlying frame.
type Frame interface {
	ID() string
	URL(ctx context.Context) (string, error)

	// Children returns the direct child frames of this frame, including
	// frames hosted inside open shadow roots of this frame's elements.
	Children(ctx context.Context) ([]Frame, error)

	// ImageByID returns the element with the given id, or nil when the
	// frame has none.
	ImageByID(ctx context.Context, id string) (Image, error)

	// Images returns every image element of the frame in document order.
	Images(ctx context.Context) ([]Image, error)
}

// ReadyNotifier is implemented by frames that can signal when their content
// finished rendering. Agents announce as soon as it returns nil and keep
// the timed announcements as a fallback.
type ReadyNotifier interface {
	WaitContentReady(ctx context.Context) error
}

// ImageInfo describes an image element.
type ImageInfo struct {
	NaturalWidth  int
	NaturalHeight int
	Complete      bool
}

// Image is an image element inside a frame.
type Image interface {
	Info(ctx context.Context) (ImageInfo, error)

	// AwaitLoad blocks until the image loaded, errored or ctx ended.
	AwaitLoad(ctx context.Context) error

	// Pixels returns the image content in any format registered with the
	// image package.
	Pixels(ctx context.Context) ([]byte, error)
}

// Port receives encoded messages. Post never blocks.
type Port interface {
	Post(data []byte) error
}

// PortFunc adapts a function to Port.
type PortFunc func(data []byte) error

// Post calls f(data).
func (f PortFunc) Post(data []byte) error { return f(data) }

var (
	// ErrDetached is returned when posting to an agent that has stopped.
	ErrDetached = errors.New("agent: frame detached")
	// ErrInboxFull is returned when an agent cannot keep up.
	ErrInboxFull = errors.New("agent: inbox full")
	// ErrImageLoad is the cause of capture failures after an image was found.
	ErrImageLoad = errors.New("agent: image failed to load")
)

// DefaultMinDimension is the natural width and height a fallback image must
// both exceed to count as a page render.
const DefaultMinDimension = 400

// DefaultAnnounceDelays are the offsets, from agent start, of the readiness
// announcements.
var DefaultAnnounceDelays = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
	2000 * time.Millisecond,
}

// Config configures every agent of a Host.
type Config struct {
	// ImageID is the stable element id the host reader gives its page image.
	ImageID string

	// MinDimension applies to the fallback scan over all images.
	MinDimension int

	// LoadTimeout bounds the wait for an unfinished image. Default: 10s.
	LoadTimeout time.Duration

	// RelayTimeout bounds child discovery while forwarding. Default: 2s.
	RelayTimeout time.Duration

	// JPEGQuality of captured pages, 1-100. Default: 92.
	JPEGQuality int

	AnnounceDelays []time.Duration

	InboxSize int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ImageID == "" {
		c.ImageID = "page-image"
	}
	if c.MinDimension <= 0 {
		c.MinDimension = DefaultMinDimension
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 10 * time.Second
	}
	if c.RelayTimeout <= 0 {
		c.RelayTimeout = 2 * time.Second
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = 92
	}
	if c.AnnounceDelays == nil {
		c.AnnounceDelays = DefaultAnnounceDelays
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 16
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
