package models

import "time"

// Upload statuses. queued -> processing -> completed | failed.
const (
	UploadStatusQueued     = "queued"
	UploadStatusProcessing = "processing"
	UploadStatusCompleted  = "completed"
	UploadStatusFailed     = "failed"
)

// Error reasons stored on failed uploads. Exposed to clients through the
// status endpoint, so these are stable identifiers rather than messages.
const (
	ReasonUnsupportedType    = "unsupported_type"
	ReasonInvalidType        = "invalid_type"
	ReasonThreatDetected     = "threat_detected"
	ReasonScanFailed         = "scan_failed"
	ReasonSanitizationFailed = "sanitization_failed"
	ReasonEnqueueFailed      = "enqueue_failed"
	ReasonProcessingTimeout  = "processing_timeout"
)

// Upload represents one logical user-initiated upload (possibly multiple
// files). Created by the reservation gate with the declared content length
// held as ReservedBytes; the reservation is merged into the class ledger on
// completion or released in full on failure.
type Upload struct {
	ID      string `db:"id"`
	ClassID string `db:"class_id"`
	Status  string `db:"status"`
	// ReservedBytes is the provisional quota hold, zero once terminal.
	ReservedBytes int64 `db:"reserved_bytes"`
	// ErrorReason is set only when Status is failed.
	ErrorReason string    `db:"error_reason"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Terminal reports whether the upload has reached a final state.
func (u *Upload) Terminal() bool {
	return u.Status == UploadStatusCompleted || u.Status == UploadStatusFailed
}
