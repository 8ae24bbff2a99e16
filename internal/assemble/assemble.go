// Package assemble turns an ordered list of captured page images into one
// PDF, one page per image, each image fitted and centered on a fixed page
// size.
package assemble

import (
	"context"
	"errors"
	"fmt"
)

// ErrAssembly wraps every failure of the document-generation step.
var ErrAssembly = errors.New("assemble: document generation failed")

// PageSize is a page size in PostScript points.
type PageSize struct {
	Width  float64
	Height float64
}

// A4 is the default output page size.
var A4 = PageSize{Width: 595.28, Height: 841.89}

// Image is one page image handed to a Renderer.
type Image struct {
	Data   []byte
	Width  int
	Height int
}

// Page is a captured page as seen by the assembler.
type Page struct {
	Image
	Number int
}

// Renderer produces a PDF with one page per image, in the given order.
type Renderer interface {
	Render(ctx context.Context, images []Image, size PageSize, margin float64) ([]byte, error)
}

// Options controls Assemble.
type Options struct {
	// Title is the originating document title; it is sanitized into the
	// filename.
	Title string

	// Filename overrides the generated name when non-empty.
	Filename string

	// IncludeRange appends the first and last captured page numbers to the
	// filename.
	IncludeRange bool

	PageSize PageSize
	Margin   float64 // points

	// Renderer defaults to PDFCPU.
	Renderer Renderer
}

// Document is an assembled PDF.
type Document struct {
	Data     []byte
	Filename string
	Pages    int
}

// Assemble renders pages in the order given, which is capture order.
func Assemble(ctx context.Context, pages []Page, opts Options) (*Document, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrAssembly)
	}
	if opts.PageSize == (PageSize{}) {
		opts.PageSize = A4
	}
	if opts.Renderer == nil {
		opts.Renderer = PDFCPU{}
	}

	images := make([]Image, len(pages))
	for i, p := range pages {
		images[i] = p.Image
	}

	data, err := opts.Renderer.Render(ctx, images, opts.PageSize, opts.Margin)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssembly, err)
	}

	name := opts.Filename
	if name == "" {
		name = Filename(opts.Title, pages[0].Number, pages[len(pages)-1].Number, opts.IncludeRange)
	}
	return &Document{Data: data, Filename: name, Pages: len(pages)}, nil
}

// Placement is where an image lands on a page, in points, measured from the
// top-left corner.
type Placement struct {
	X, Y          float64
	Width, Height float64
}

// Fit scales an image of w×h pixels to the largest size that fits inside
// the page minus margin, preserving aspect ratio, and centers it. The
// shorter axis is letterboxed.
func Fit(w, h int, page PageSize, margin float64) Placement {
	availW := page.Width - 2*margin
	availH := page.Height - 2*margin
	if availW <= 0 || availH <= 0 {
		return Placement{}
	}
	if w <= 0 || h <= 0 {
		return Placement{X: margin, Y: margin, Width: availW, Height: availH}
	}

	scale := min(availW/float64(w), availH/float64(h))
	pw := float64(w) * scale
	ph := float64(h) * scale
	return Placement{
		X:      margin + (availW-pw)/2,
		Y:      margin + (availH-ph)/2,
		Width:  pw,
		Height: ph,
	}
}
