package assemble

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRenderer struct {
	got  []Image
	size PageSize
	err  error
}

func (r *recordingRenderer) Render(_ context.Context, images []Image, size PageSize, _ float64) ([]byte, error) {
	r.got = images
	r.size = size
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-fake"), nil
}

func page(n int) Page {
	return Page{Image: Image{Data: []byte{byte(n)}, Width: 100 * n, Height: 200}, Number: n}
}

func TestAssemble_PreservesCaptureOrder(t *testing.T) {
	r := &recordingRenderer{}
	doc, err := Assemble(context.Background(), []Page{page(3), page(1), page(2)}, Options{
		Title:        "Atlas",
		IncludeRange: true,
		Renderer:     r,
	})
	require.NoError(t, err)

	require.Len(t, r.got, 3)
	assert.Equal(t, []byte{3}, r.got[0].Data)
	assert.Equal(t, []byte{1}, r.got[1].Data)
	assert.Equal(t, []byte{2}, r.got[2].Data)
	assert.Equal(t, A4, r.size)

	assert.Equal(t, "Atlas_p3-2.pdf", doc.Filename)
	assert.Equal(t, 3, doc.Pages)
}

func TestAssemble_FilenameOverride(t *testing.T) {
	doc, err := Assemble(context.Background(), []Page{page(1)}, Options{
		Title:    "ignored",
		Filename: "custom.pdf",
		Renderer: &recordingRenderer{},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom.pdf", doc.Filename)
}

func TestAssemble_Failure(t *testing.T) {
	_, err := Assemble(context.Background(), nil, Options{Renderer: &recordingRenderer{}})
	assert.ErrorIs(t, err, ErrAssembly)

	boom := errors.New("out of memory")
	_, err = Assemble(context.Background(), []Page{page(1)}, Options{Renderer: &recordingRenderer{err: boom}})
	assert.ErrorIs(t, err, ErrAssembly)
	assert.ErrorIs(t, err, boom)
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Intro to C++: Vol. 2!", "Intro_to_C_Vol_2"},
		{"  spaced   out  ", "spaced_out"},
		{"Café Crème", "Cafe_Creme"},
		{"snake_case-and-kebab", "snake_case-and-kebab"},
		{"???", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeTitle(tt.in), "SanitizeTitle(%q)", tt.in)
	}
}

func TestSanitizeTitle_AllowedCharsetAndLength(t *testing.T) {
	long := "The Complete Annotated Reference Manual of Everything, Second Edition (Revised)"
	got := SanitizeTitle(long)
	assert.LessOrEqual(t, len(got), 50)
	for _, r := range SanitizeTitle("Intro to C++: Vol. 2!") + got {
		ok := r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		assert.True(t, ok, "unexpected rune %q", r)
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "Atlas.pdf", Filename("Atlas", 1, 9, false))
	assert.Equal(t, "Atlas_p1-9.pdf", Filename("Atlas", 1, 9, true))
	assert.Equal(t, "Atlas_p4.pdf", Filename("Atlas", 4, 4, true))
	assert.Equal(t, "document_p1-2.pdf", Filename("", 1, 2, true))
	assert.Equal(t, "document.pdf", Filename("!!!", 0, 0, true))
}

func TestFit(t *testing.T) {
	page := PageSize{Width: 600, Height: 800}
	const eps = 1e-9

	// Tall image: height-bound, centered horizontally.
	p := Fit(300, 800, page, 0)
	assert.InDelta(t, 300, p.Width, eps)
	assert.InDelta(t, 800, p.Height, eps)
	assert.InDelta(t, 150, p.X, eps)
	assert.InDelta(t, 0, p.Y, eps)

	// Wide image: width-bound, centered vertically.
	p = Fit(1200, 600, page, 0)
	assert.InDelta(t, 600, p.Width, eps)
	assert.InDelta(t, 300, p.Height, eps)
	assert.InDelta(t, 0, p.X, eps)
	assert.InDelta(t, 250, p.Y, eps)

	// Small images scale up; aspect ratio is preserved.
	p = Fit(60, 80, page, 20)
	assert.InDelta(t, 60.0/80.0, p.Width/p.Height, eps)
	assert.InDelta(t, 560, p.Width, eps)
	assert.InDelta(t, 20, p.X, eps)
	assert.InDelta(t, page.Height/2, p.Y+p.Height/2, eps)

	assert.Equal(t, Placement{}, Fit(10, 10, PageSize{Width: 10, Height: 10}, 6))
}

func TestImportDescription(t *testing.T) {
	assert.Equal(t, "dimensions:595.28 841.89, position:c, scalefactor:1.000 rel", importDescription(A4, 0))

	d := importDescription(PageSize{Width: 100, Height: 200}, 10)
	assert.Contains(t, d, "scalefactor:0.800 rel")
}

func jpegOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: 80, B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}))
	return buf.Bytes()
}

func TestPDFCPU_RendersOnePagePerImage(t *testing.T) {
	pages := []Page{
		{Image: Image{Data: jpegOf(t, 60, 90), Width: 60, Height: 90}, Number: 3},
		{Image: Image{Data: jpegOf(t, 90, 60), Width: 90, Height: 60}, Number: 1},
	}

	doc, err := Assemble(context.Background(), pages, Options{Title: "Sample"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF-")))

	n, err := CountPages(doc.Data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
