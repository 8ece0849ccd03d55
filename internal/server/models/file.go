package models

import "time"

// FileMetadata describes one successfully processed physical file. Rows are
// created only inside the worker's commit transaction and never mutated
// afterward; Size is the authoritative post-sanitization byte count.
type FileMetadata struct {
	ID       int64  `db:"id"`
	UploadID string `db:"upload_id"`
	// StoredFileName is random and collision-resistant; its extension is
	// derived from the verified (not claimed) MIME type.
	StoredFileName string `db:"stored_file_name"`
	OriginalName   string    `db:"original_name"`
	MimeType       string    `db:"mime_type"`
	Size           int64     `db:"size"`
	CreatedAt      time.Time `db:"created_at"`
}
