package pagecap

import (
	"bytes"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"

	"github.com/porticus-lab/go-pagecap/internal/assemble"
)

// Result holds a generated PDF and provides helpers for common output
// formats such as raw bytes, base64 encoding, and streaming readers.
//
// It is safe to call its methods multiple times. The underlying data is
// never modified.
type Result struct {
	data []byte
}

// Bytes returns the raw PDF content.
func (r *Result) Bytes() []byte {
	return r.data
}

// Base64 returns the PDF encoded as a standard base64 string (RFC 4648).
func (r *Result) Base64() string {
	return base64.StdEncoding.EncodeToString(r.data)
}

// Reader returns an [*bytes.Reader] over the PDF content.
func (r *Result) Reader() *bytes.Reader {
	return bytes.NewReader(r.data)
}

// WriteTo writes the full PDF content to w. It implements [io.WriterTo].
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.data)
	return int64(n), err
}

// WriteToFile writes the PDF to the file at path, creating it if needed.
func (r *Result) WriteToFile(path string, perm os.FileMode) error {
	return os.WriteFile(path, r.data, perm)
}

// Len returns the size of the PDF in bytes.
func (r *Result) Len() int {
	return len(r.data)
}

// Document is a PDF assembled from captured pages.
type Document struct {
	Result

	// Filename is derived from the document title and the first and last
	// captured page numbers, for example "Field_Guide_p1-12.pdf".
	Filename string

	// Pages is the number of pages in the PDF.
	Pages int
}

// Save writes the document as Filename inside dir.
func (d *Document) Save(dir string) (string, error) {
	path := filepath.Join(dir, d.Filename)
	if err := d.WriteToFile(path, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func newDocument(d *assemble.Document) *Document {
	return &Document{
		Result:   Result{data: d.Data},
		Filename: d.Filename,
		Pages:    d.Pages,
	}
}
