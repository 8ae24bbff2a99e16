// Package pagecap captures the pages of web document readers, the kind
// that show one rendered page image at a time inside nested frames, and
// assembles them into a PDF.
//
// A [Capturer] owns a Chrome instance. [Capturer.Open] loads a reader in a
// new tab and starts a frame agent in every frame of it, including frames
// nested inside other frames and inside open shadow roots. The top-level
// document then probes for the frame holding the page image, requests the
// image, advances the reader and repeats:
//
//	c, err := pagecap.NewCapturer(pagecap.WithNoSandbox())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	r, err := c.Open(ctx, "https://reader.example.com/book/42")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := r.Run(ctx, 50) // stop after 50 pages
//	doc, err := r.Generate(ctx, nil)
//	path, err := doc.Save(".") // e.g. "Field_Guide_p1-50.pdf"
//
// Only the page currently shown:
//
//	doc, err := r.CaptureSingle(ctx, nil)
//
// A run ends in Done when the page limit is reached, the reader's next
// control is disabled or missing, or [Reader.Stop] is called. Pages that
// fail are skipped; [ErrTooManyFailures] ends the run after several in a
// row. Captured pages survive a failed run and a failed generation.
//
// Use [PageConfig] to control the output page size, orientation and
// margin. Every image is scaled to fit and centered:
//
//	doc, err := r.Generate(ctx, &pagecap.GenerateOptions{
//	    Page: &pagecap.PageConfig{Size: pagecap.Letter, Margin: 1},
//	})
//
// A [Document] gives flexible access to the generated PDF bytes:
//
//	doc.Bytes()                       // []byte
//	doc.Base64()                      // base64 string (RFC 4648)
//	doc.Reader()                      // *bytes.Reader
//	doc.WriteTo(w)                    // io.WriterTo
//	doc.WriteToFile("out.pdf", 0o644) // write to disk
//
// Chrome or Chromium must be available in PATH, or use [WithAutoDownload]:
//
//	c, err := pagecap.NewCapturer(pagecap.WithAutoDownload())
//
// The reader's pagination controls are found with [Selectors]; the
// defaults match the pdf.js viewer.
package pagecap
