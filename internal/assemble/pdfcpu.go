package assemble

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PDFCPU renders with pdfcpu's image import: every image becomes a page of
// the requested size, centered and scaled to fit.
type PDFCPU struct {
	// Config defaults to model.NewDefaultConfiguration.
	Config *model.Configuration
}

// Render implements Renderer.
func (r PDFCPU) Render(ctx context.Context, images []Image, size PageSize, margin float64) ([]byte, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("pdfcpu: no images")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	imp, err := api.Import(importDescription(size, margin), types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu: import config: %w", err)
	}

	readers := make([]io.Reader, len(images))
	for i, img := range images {
		readers[i] = bytes.NewReader(img.Data)
	}

	conf := r.Config
	if conf == nil {
		conf = model.NewDefaultConfiguration()
	}

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, readers, imp, conf); err != nil {
		return nil, fmt.Errorf("pdfcpu: import images: %w", err)
	}
	return buf.Bytes(), nil
}

// importDescription builds pdfcpu's import syntax. Margins are expressed
// as a relative scale factor because the import has no margin parameter.
func importDescription(size PageSize, margin float64) string {
	scale := 1.0
	if margin > 0 {
		scale = min((size.Width-2*margin)/size.Width, (size.Height-2*margin)/size.Height)
		if scale <= 0 {
			scale = 1.0
		}
	}
	return fmt.Sprintf("dimensions:%.2f %.2f, position:c, scalefactor:%.3f rel",
		size.Width, size.Height, scale)
}

// CountPages returns the page count of a PDF.
func CountPages(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("pdfcpu: page count: %w", err)
	}
	return n, nil
}
