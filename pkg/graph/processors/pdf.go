package processors

import (
	"bytes"
	"context"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// PDFReader extracts plain text from PDF content page by page. Pages that
// fail to decode are skipped rather than failing the document.
type PDFReader struct{}

func NewPDFReader() *PDFReader {
	return &PDFReader{}
}

func (r *PDFReader) Extract(ctx context.Context, content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", errors.Wrap(err, "failed to open PDF")
	}

	var textContent string
	totalPage := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		textContent += text
	}

	return textContent, nil
}

func (r *PDFReader) SupportedExtensions() []string {
	return []string{".pdf"}
}
