package pagecap

import (
	"errors"

	"github.com/porticus-lab/go-pagecap/internal/assemble"
	"github.com/porticus-lab/go-pagecap/internal/orchestrator"
)

// Sentinel errors returned by the library. Match them with [errors.Is].
var (
	// ErrClosed is returned when attempting to use a closed [Capturer] or
	// [Reader].
	ErrClosed = errors.New("pagecap: capturer is closed")

	// ErrNoBrowser is returned when no Chrome executable is installed and
	// automatic download is off.
	ErrNoBrowser = errors.New("pagecap: Chrome/Chromium not found")

	// ErrProbeFailed means no frame of the reader shows a page image.
	ErrProbeFailed = orchestrator.ErrProbeFailed

	// ErrCaptureTimeout means no frame answered a capture request in time.
	ErrCaptureTimeout = orchestrator.ErrCaptureTimeout

	// ErrImageLoad means the page image was found but could not be loaded.
	ErrImageLoad = orchestrator.ErrImageLoad

	// ErrEndOfDocument is reported by a [Navigator] at the last page.
	ErrEndOfDocument = orchestrator.ErrEndOfDocument

	// ErrNoNavigation is reported by a [Navigator] that cannot find the
	// next-page control.
	ErrNoNavigation = orchestrator.ErrNoNavigation

	// ErrAlreadyRunning is returned by [Reader.Run] while a run is active.
	ErrAlreadyRunning = orchestrator.ErrAlreadyRunning

	// ErrTooManyFailures ends a run whose pages keep failing.
	ErrTooManyFailures = orchestrator.ErrTooManyFailures

	// ErrEmptySession is returned by [Reader.Generate] with no pages.
	ErrEmptySession = orchestrator.ErrEmptySession

	// ErrAssembly wraps every document assembly failure.
	ErrAssembly = assemble.ErrAssembly
)
