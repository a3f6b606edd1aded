// Package pdf loads uploaded documents and extracts the per-page signals
// the ingestion pipeline needs before calling the external parser: embedded
// text, raster image presence, and the page count.
package pdf

import (
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// PageData is the pre-parse view of one page.
type PageData struct {
	Num       int
	Text      string
	HasImages bool
}

// Document is an open PDF plus its extracted page signals.
type Document struct {
	Path  string
	Pages []PageData

	file *os.File
}

// Open loads the document at path and extracts text and image presence for
// every page. Any failure to open or walk the document is a document-level
// load error; per-page text extraction failures degrade to an empty page
// instead of failing the document.
func Open(path string) (*Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, askerr.DocumentLoadError(path, err)
	}

	doc := &Document{Path: path, file: f}
	total := reader.NumPage()
	doc.Pages = make([]PageData, 0, total)

	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			doc.Pages = append(doc.Pages, PageData{Num: i})
			continue
		}

		text := extractText(page)
		doc.Pages = append(doc.Pages, PageData{
			Num:       i,
			Text:      text,
			HasImages: hasRasterImages(page),
		})
	}

	return doc, nil
}

// PageCount returns the number of pages in the document.
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// Close releases the underlying file handle.
func (d *Document) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// extractText pulls the embedded text layer of a page. Extraction errors
// (broken font tables, malformed content streams) yield an empty string so
// the page falls through to the image pre-check.
func extractText(page pdf.Page) string {
	defer func() { _ = recover() }()
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// hasRasterImages reports whether the page resources reference an image
// XObject. Vector-only drawings do not count.
func hasRasterImages(page pdf.Page) bool {
	defer func() { _ = recover() }()
	resources := page.V.Key("Resources")
	if resources.IsNull() {
		return false
	}
	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return false
	}
	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.IsNull() {
			continue
		}
		if obj.Key("Subtype").Name() == "Image" {
			return true
		}
	}
	return false
}
