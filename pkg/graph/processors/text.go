// Package processors extracts raw text from document sources. Each reader
// handles one family of file formats; the pipeline picks a reader by file
// extension for its text-extraction stage.
package processors

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// SourceReader turns raw file bytes into plain text.
type SourceReader interface {
	Extract(ctx context.Context, content []byte) (string, error)
	SupportedExtensions() []string
}

// ForPath returns the reader responsible for the file at path.
func ForPath(path string) (SourceReader, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, reader := range []SourceReader{NewPDFReader(), NewTextReader()} {
		for _, supported := range reader.SupportedExtensions() {
			if ext == supported {
				return reader, nil
			}
		}
	}
	return nil, errors.Errorf("unsupported document type: %s", ext)
}

// TextReader passes plain-text formats through unchanged.
type TextReader struct{}

func NewTextReader() *TextReader {
	return &TextReader{}
}

func (r *TextReader) Extract(ctx context.Context, content []byte) (string, error) {
	return string(content), nil
}

func (r *TextReader) SupportedExtensions() []string {
	return []string{".txt", ".md", ""}
}
