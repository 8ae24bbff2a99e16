package pagecap

import (
	"strings"
	"testing"

	"github.com/porticus-lab/go-pagecap/internal/assemble"
)

var jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func TestPagesHTML(t *testing.T) {
	images := []assemble.Image{
		{Data: jpegMagic, Width: 300, Height: 800},
		{Data: jpegMagic, Width: 1200, Height: 600},
	}
	html := pagesHTML(images, assemble.PageSize{Width: 600, Height: 800}, 0)

	if !strings.Contains(html, "@page { size: 600.00pt 800.00pt; margin: 0; }") {
		t.Error("missing @page size rule")
	}
	if n := strings.Count(html, `<div class="page">`); n != 2 {
		t.Errorf("got %d pages, want 2", n)
	}
	if !strings.Contains(html, "data:image/jpeg;base64,") {
		t.Error("image not embedded as a JPEG data URL")
	}
	// Tall image centered horizontally, wide image centered vertically.
	if !strings.Contains(html, "left:150.00pt;top:0.00pt;width:300.00pt;height:800.00pt") {
		t.Error("tall image not fitted")
	}
	if !strings.Contains(html, "left:0.00pt;top:250.00pt;width:600.00pt;height:300.00pt") {
		t.Error("wide image not fitted")
	}
}

func TestPagesHTML_PreservesOrder(t *testing.T) {
	images := []assemble.Image{
		{Data: []byte("third"), Width: 10, Height: 10},
		{Data: []byte("first"), Width: 10, Height: 10},
	}
	html := pagesHTML(images, assemble.A4, 0)
	third := strings.Index(html, "dGhpcmQ=")
	first := strings.Index(html, "Zmlyc3Q=")
	if third < 0 || first < 0 || third > first {
		t.Errorf("images out of order: third at %d, first at %d", third, first)
	}
}
