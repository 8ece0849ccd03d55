package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/classhub/internal/common"
	"github.com/stretchr/testify/require"
)

// fakeConverter mimics the converter CLI: it pulls the output path from the
// -sOutputFile= flag and treats the last argument as the input.
func fakeConverter(t *testing.T, body string) string {
	t.Helper()
	script := `out=""
in=""
for a in "$@"; do
  case "$a" in
    -sOutputFile=*) out="${a#-sOutputFile=}" ;;
    *) in="$a" ;;
  esac
done
` + body
	path := filepath.Join(t.TempDir(), "gs.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestPDFSanitize_Rewritten(t *testing.T) {
	bin := fakeConverter(t, `printf 'sanitized pdf content' > "$out"`)
	s := NewPDFSanitizer(bin, time.Second, testLogger())
	require.True(t, s.Available())

	path := writeFile(t, "doc.pdf", []byte("%PDF-1.4 original"))

	size, err := s.Sanitize(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, int64(len("sanitized pdf content")), size)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "sanitized pdf content", string(data))
}

func TestPDFSanitize_ZeroByteOutputRejected(t *testing.T) {
	bin := fakeConverter(t, `: > "$out"`)
	s := NewPDFSanitizer(bin, time.Second, testLogger())

	path := writeFile(t, "doc.pdf", []byte("%PDF-1.4 original"))

	_, err := s.Sanitize(context.Background(), path)
	require.ErrorIs(t, err, common.ErrSanitizationFailed)

	// The original stays intact when conversion fails.
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	require.Equal(t, "%PDF-1.4 original", string(data))
}

func TestPDFSanitize_ConverterFailureRejected(t *testing.T) {
	bin := fakeConverter(t, `exit 3`)
	s := NewPDFSanitizer(bin, time.Second, testLogger())

	path := writeFile(t, "doc.pdf", []byte("%PDF-1.4 original"))

	_, err := s.Sanitize(context.Background(), path)
	require.ErrorIs(t, err, common.ErrSanitizationFailed)
}

func TestPDFSanitize_MissingBinaryPassesThrough(t *testing.T) {
	s := NewPDFSanitizer("definitely-not-ghostscript", time.Second, testLogger())
	require.False(t, s.Available())

	content := []byte("%PDF-1.4 untouched")
	path := writeFile(t, "doc.pdf", content)

	size, err := s.Sanitize(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), size)
}
