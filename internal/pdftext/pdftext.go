// Package pdftext extracts line-oriented plain text from PDF pages.
package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// wordGap is the horizontal gap, as a fraction of the font size, above which
// two glyph runs on the same row are separated by a space.
const wordGap = 0.25

// Extract returns the text of each page of the PDF in r, one line per text
// row from top to bottom. The number of pages is len(pages). Pages without
// content yield an empty string.
func Extract(r io.ReaderAt, size int64) (pages []string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("pdftext: malformed pdf: %v", rec)
		}
	}()

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("pdftext: open: %w", err)
	}

	n := doc.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := pageText(page)
		if err != nil {
			return nil, fmt.Errorf("pdftext: page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// ExtractBytes is Extract over an in-memory document.
func ExtractBytes(data []byte) ([]string, error) {
	return Extract(bytes.NewReader(data), int64(len(data)))
}

func pageText(page pdf.Page) (string, error) {
	rows, err := page.GetTextByRow()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(rowText(row.Content))
	}
	return b.String(), nil
}

// rowText joins the glyph runs of a row, inserting a space where the gap
// between runs is wider than wordGap.
func rowText(texts pdf.TextHorizontal) string {
	var b strings.Builder
	var end float64
	for i, t := range texts {
		if i > 0 && t.X-end > wordGap*t.FontSize && !strings.HasSuffix(b.String(), " ") {
			b.WriteByte(' ')
		}
		b.WriteString(t.S)
		end = t.X + t.W
	}
	return b.String()
}
