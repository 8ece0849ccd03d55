// Package pipeline implements the per-file validation and sanitization
// chain: magic-byte type verification, antivirus scan, content-rewriting
// sanitization, and final placement into class storage.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/classhub/internal/common"
	"github.com/dmitrijs2005/classhub/internal/filex"
	"github.com/dmitrijs2005/classhub/internal/logging"
	"github.com/dmitrijs2005/classhub/internal/server/models"
)

// Result describes one file that passed the whole chain. Size is the
// authoritative post-sanitization byte count.
type Result struct {
	StoredFileName string
	MimeType       string
	Size           int64
	Path           string
}

// Pipeline runs each stage in order and stops at the first failure. Stage
// errors wrap the common validation sentinels so the worker can tell a
// rejected file from infrastructure trouble.
type Pipeline struct {
	storageDir string
	scanner    *Scanner
	images     *ImageSanitizer
	pdfs       *PDFSanitizer
	logger     logging.Logger
}

// New constructs a Pipeline placing accepted files under storageDir.
func New(storageDir string, scanner *Scanner, images *ImageSanitizer, pdfs *PDFSanitizer, logger logging.Logger) *Pipeline {
	return &Pipeline{
		storageDir: storageDir,
		scanner:    scanner,
		images:     images,
		pdfs:       pdfs,
		logger:     logger,
	}
}

// Run validates and sanitizes one file, then moves it into the class's
// storage directory under a random collision-resistant name whose extension
// comes from the verified (not claimed) MIME type.
func (p *Pipeline) Run(ctx context.Context, classID string, file models.ProcessingFile) (*Result, error) {
	mimeType, err := VerifyType(file.TempPath, file.ClaimedMimeType)
	if err != nil {
		return nil, err
	}

	if err := p.scanner.Scan(ctx, file.TempPath); err != nil {
		return nil, err
	}

	var size int64
	switch mimeType {
	case "image/jpeg", "image/png":
		size, err = p.images.Sanitize(file.TempPath, mimeType)
	case "application/pdf":
		size, err = p.pdfs.Sanitize(ctx, file.TempPath)
	default:
		// Plain text passes through unchanged.
		size, err = filex.SizeOf(file.TempPath)
	}
	if err != nil {
		return nil, err
	}

	ext, _ := ExtensionFor(mimeType)
	random, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate stored name: %w", err)
	}
	name := random + ext

	dir, err := filex.EnsureDir(filepath.Join(p.storageDir, classID))
	if err != nil {
		return nil, err
	}
	dst := filepath.Join(dir, name)
	if err := filex.Move(file.TempPath, dst); err != nil {
		return nil, fmt.Errorf("failed to place file: %w", err)
	}

	p.logger.Debug(ctx, "file processed",
		"class_id", classID, "original_name", file.OriginalName,
		"stored_name", name, "mime_type", mimeType, "size", size)

	return &Result{StoredFileName: name, MimeType: mimeType, Size: size, Path: dst}, nil
}
