package processors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForPath(t *testing.T) {
	cases := []struct {
		path string
		want SourceReader
	}{
		{"/data/report.pdf", &PDFReader{}},
		{"/data/notes.txt", &TextReader{}},
		{"/data/README.md", &TextReader{}},
		{"/data/Makefile", &TextReader{}},
		{"/data/REPORT.PDF", &PDFReader{}},
	}
	for _, tc := range cases {
		reader, err := ForPath(tc.path)
		require.NoError(t, err, tc.path)
		assert.IsType(t, tc.want, reader, tc.path)
	}
}

func TestForPathUnsupported(t *testing.T) {
	_, err := ForPath("/data/spreadsheet.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported document type")
}

func TestTextReaderExtract(t *testing.T) {
	text, err := NewTextReader().Extract(context.Background(), []byte("plain content\n"))
	require.NoError(t, err)
	assert.Equal(t, "plain content\n", text)
}
