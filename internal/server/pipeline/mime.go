package pipeline

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/classhub/internal/common"
	"github.com/gabriel-vasile/mimetype"
)

// allowedTypes maps each permitted MIME type to the stored-file extension.
// Everything else is rejected before scanning or sanitization runs.
var allowedTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"text/plain":      ".txt",
}

// ExtensionFor returns the storage extension of a verified MIME type.
func ExtensionFor(mimeType string) (string, bool) {
	ext, ok := allowedTypes[mimeType]
	return ext, ok
}

// normalizeMime strips parameters ("text/plain; charset=utf-8") and case.
func normalizeMime(claimed string) string {
	base, _, _ := strings.Cut(claimed, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// VerifyType checks the file's leading bytes against the client-claimed MIME
// type and returns the canonical verified type. Plain text has no magic-byte
// signature, so it is checked for valid UTF-8 instead.
func VerifyType(path, claimedMimeType string) (string, error) {
	claimed := normalizeMime(claimedMimeType)
	if _, ok := allowedTypes[claimed]; !ok {
		return "", fmt.Errorf("%w: %s", common.ErrUnsupportedType, claimed)
	}

	if claimed == "text/plain" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read file for type check: %w", err)
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: claimed text/plain is not valid utf-8", common.ErrTypeMismatch)
		}
		return claimed, nil
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to detect file type: %w", err)
	}
	if !mtype.Is(claimed) {
		return "", fmt.Errorf("%w: claimed %s, detected %s", common.ErrTypeMismatch, claimed, mtype.String())
	}
	return claimed, nil
}
