package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/dmitrijs2005/classhub/internal/common"
	"github.com/dmitrijs2005/classhub/internal/filex"
	"github.com/dmitrijs2005/classhub/internal/logging"
)

// PDFSanitizer rewrites PDFs through an external converter (Ghostscript)
// with a flattened, font-embedded, resolution-capped output profile. When
// the converter binary is absent, PDFs pass through unchanged (degraded
// mode, announced loudly at startup).
type PDFSanitizer struct {
	binPath string
	timeout time.Duration
	logger  logging.Logger
}

// NewPDFSanitizer probes for the converter binary and constructs a
// PDFSanitizer. An unresolvable binary yields a degraded pass-through.
func NewPDFSanitizer(binPath string, timeout time.Duration, logger logging.Logger) *PDFSanitizer {
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		logger.Warn(context.Background(),
			"pdf converter not found, PDFs will NOT be sanitized",
			"binary", binPath, "error", err)
		resolved = ""
	}
	return &PDFSanitizer{binPath: resolved, timeout: timeout, logger: logger}
}

// Available reports whether a converter binary was found.
func (s *PDFSanitizer) Available() bool {
	return s.binPath != ""
}

// Sanitize rewrites the PDF at path in place and returns the new byte size.
// A zero-byte or missing converter result is a sanitization failure, never
// silently accepted.
func (s *PDFSanitizer) Sanitize(ctx context.Context, path string) (int64, error) {
	if s.binPath == "" {
		return filex.SizeOf(path)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tmp := filex.TempSibling(path)
	task := execute.ExecTask{
		Command: s.binPath,
		Args: []string{
			"-dSAFER", "-dBATCH", "-dNOPAUSE",
			"-sDEVICE=pdfwrite",
			"-dCompatibilityLevel=1.7",
			"-dPDFSETTINGS=/ebook",
			"-dEmbedAllFonts=true",
			"-sOutputFile=" + tmp,
			path,
		},
	}
	res, err := task.Execute(ctx)
	if err != nil {
		_ = filex.RemoveIfExists(tmp)
		return 0, fmt.Errorf("%w: pdf converter did not run: %v", common.ErrSanitizationFailed, err)
	}
	if res.ExitCode != 0 {
		_ = filex.RemoveIfExists(tmp)
		return 0, fmt.Errorf("%w: pdf converter exit code %d: %s", common.ErrSanitizationFailed, res.ExitCode, res.Stderr)
	}

	size, err := filex.SizeOf(tmp)
	if err != nil || size == 0 {
		_ = filex.RemoveIfExists(tmp)
		return 0, fmt.Errorf("%w: pdf converter produced no output", common.ErrSanitizationFailed)
	}

	if err := filex.ReplaceWith(path, tmp); err != nil {
		_ = filex.RemoveIfExists(tmp)
		return 0, err
	}
	return size, nil
}
