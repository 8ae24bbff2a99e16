package pagecap

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/porticus-lab/go-pagecap/internal/assemble"
)

// ChromeRenderer assembles documents by printing an HTML page per image
// with the capturer's browser. Selected with [WithChromeRenderer].
type ChromeRenderer struct {
	c *Capturer
}

// Render implements the assembly renderer interface.
func (r *ChromeRenderer) Render(ctx context.Context, images []assemble.Image, size assemble.PageSize, margin float64) ([]byte, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("pagecap: no images")
	}
	return r.c.printHTML(ctx, pagesHTML(images, size, margin), size)
}

// pagesHTML lays out one fixed-size page per image, each image fitted and
// centered with assemble.Fit.
func pagesHTML(images []assemble.Image, size assemble.PageSize, margin float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
@page { size: %.2fpt %.2fpt; margin: 0; }
html, body { margin: 0; padding: 0; background: #fff; }
.page { position: relative; width: %.2fpt; height: %.2fpt; overflow: hidden; break-after: page; }
.page:last-child { break-after: auto; }
.page img { position: absolute; }
</style></head><body>
`, size.Width, size.Height, size.Width, size.Height)

	for _, img := range images {
		p := assemble.Fit(img.Width, img.Height, size, margin)
		fmt.Fprintf(&b, `<div class="page"><img src="data:%s;base64,%s" style="left:%.2fpt;top:%.2fpt;width:%.2fpt;height:%.2fpt"></div>
`, http.DetectContentType(img.Data), base64.StdEncoding.EncodeToString(img.Data), p.X, p.Y, p.Width, p.Height)
	}
	b.WriteString("</body></html>\n")
	return b.String()
}
