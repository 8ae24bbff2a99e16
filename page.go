package pagecap

import "github.com/porticus-lab/go-pagecap/internal/assemble"

// PageSize represents paper dimensions in centimeters.
type PageSize struct {
	Width  float64 // Width in centimeters.
	Height float64 // Height in centimeters.
}

// Standard paper sizes.
var (
	A3      = PageSize{Width: 29.7, Height: 42.0}
	A4      = PageSize{Width: 21.0, Height: 29.7}
	A5      = PageSize{Width: 14.8, Height: 21.0}
	Letter  = PageSize{Width: 21.59, Height: 27.94}
	Legal   = PageSize{Width: 21.59, Height: 35.56}
	Tabloid = PageSize{Width: 27.94, Height: 43.18}
)

// Orientation represents the page orientation.
type Orientation int

const (
	// Portrait is the default vertical orientation.
	Portrait Orientation = iota
	// Landscape rotates the page to horizontal orientation.
	Landscape
)

// PageConfig controls the pages of a generated document. Every captured
// image is scaled to fit its page, keeping its aspect ratio, and centered.
//
// A nil PageConfig or zero-value fields use A4 portrait with no margin.
type PageConfig struct {
	// Size specifies the paper size. Defaults to A4.
	Size PageSize

	// Orientation specifies portrait or landscape. Defaults to Portrait.
	Orientation Orientation

	// Margin is the minimum blank border around each image, in
	// centimeters. Negative values are treated as zero.
	Margin float64
}

// DefaultPageConfig returns a PageConfig with the defaults.
func DefaultPageConfig() PageConfig {
	return PageConfig{
		Size:        A4,
		Orientation: Portrait,
	}
}

// resolved returns a PageConfig with all zero values replaced by defaults.
func (p *PageConfig) resolved() PageConfig {
	d := DefaultPageConfig()
	if p == nil {
		return d
	}
	r := *p
	if r.Size.Width <= 0 || r.Size.Height <= 0 {
		r.Size = d.Size
	}
	if r.Margin < 0 {
		r.Margin = 0
	}
	return r
}

// cmToPoints converts centimeters to PDF points.
func cmToPoints(cm float64) float64 {
	return cm / 2.54 * 72
}

// pageSize returns the page dimensions in points, accounting for
// orientation.
func (p *PageConfig) pageSize() assemble.PageSize {
	r := p.resolved()
	w, h := cmToPoints(r.Size.Width), cmToPoints(r.Size.Height)
	if r.Orientation == Landscape {
		w, h = h, w
	}
	return assemble.PageSize{Width: w, Height: h}
}

// marginPoints returns the margin in points.
func (p *PageConfig) marginPoints() float64 {
	return cmToPoints(p.resolved().Margin)
}
