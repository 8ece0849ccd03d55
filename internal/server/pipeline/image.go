package pipeline

import (
	"fmt"
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/dmitrijs2005/classhub/internal/common"
	"github.com/dmitrijs2005/classhub/internal/filex"
)

// ImageSanitizer rewrites images through a full decode/re-encode cycle.
// Re-encoding drops metadata and any extra chunks an attacker may have
// appended; the pixel bound guards against decompression bombs.
type ImageSanitizer struct {
	maxPixels   int64
	jpegQuality int
}

// NewImageSanitizer constructs an ImageSanitizer.
func NewImageSanitizer(maxPixels int64, jpegQuality int) *ImageSanitizer {
	return &ImageSanitizer{maxPixels: maxPixels, jpegQuality: jpegQuality}
}

// Sanitize rewrites the image at path in place and returns the new byte size.
func (s *ImageSanitizer) Sanitize(path, mimeType string) (int64, error) {
	if err := s.checkPixelBound(path); err != nil {
		return 0, err
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return 0, fmt.Errorf("%w: image decode: %v", common.ErrSanitizationFailed, err)
	}

	tmp := filex.TempSibling(path)
	if err := s.encode(tmp, img, mimeType); err != nil {
		_ = filex.RemoveIfExists(tmp)
		return 0, err
	}
	if err := filex.ReplaceWith(path, tmp); err != nil {
		_ = filex.RemoveIfExists(tmp)
		return 0, err
	}
	return filex.SizeOf(path)
}

// checkPixelBound decodes only the header, so oversized images are rejected
// before any pixel data is allocated.
func (s *ImageSanitizer) checkPixelBound(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("%w: image header: %v", common.ErrSanitizationFailed, err)
	}
	pixels := int64(cfg.Width) * int64(cfg.Height)
	if pixels > s.maxPixels {
		return fmt.Errorf("%w: image has %d pixels, limit %d", common.ErrSanitizationFailed, pixels, s.maxPixels)
	}
	return nil
}

func (s *ImageSanitizer) encode(dst string, img image.Image, mimeType string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	switch mimeType {
	case "image/jpeg":
		err = imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(s.jpegQuality))
	case "image/png":
		err = imaging.Encode(f, img, imaging.PNG)
	default:
		err = fmt.Errorf("%w: no image encoder for %s", common.ErrSanitizationFailed, mimeType)
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: image encode: %v", common.ErrSanitizationFailed, err)
	}
	return f.Close()
}
