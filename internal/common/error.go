// Package common defines shared constants and sentinel errors used across
// the ingestion layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Capacity errors (reservation gate).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// Validation errors (terminal for the upload, never retried).
	ErrUnsupportedType    = errors.New("unsupported file type")
	ErrTypeMismatch       = errors.New("file type mismatch")
	ErrThreatDetected     = errors.New("threat detected")
	ErrScanFailed         = errors.New("virus scan failed")
	ErrSanitizationFailed = errors.New("sanitization failed")
)

// IsValidationError reports whether err is an expected, user-facing pipeline
// failure. Validation errors terminate the upload with a failed status;
// anything else is infrastructure trouble and must propagate.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrUnsupportedType,
		ErrTypeMismatch,
		ErrThreatDetected,
		ErrScanFailed,
		ErrSanitizationFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
