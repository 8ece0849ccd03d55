package models

// ProcessingFile is one pending file of a processing job. TempPath points at
// the bytes the transport layer spooled to disk; ClaimedMimeType and
// DeclaredSize come from the client and are verified by the pipeline.
type ProcessingFile struct {
	TempPath        string `json:"temp_path"`
	OriginalName    string `json:"original_name"`
	ClaimedMimeType string `json:"claimed_mime_type"`
	DeclaredSize    int64  `json:"declared_size"`
}

// ProcessingJob is the queue payload. It lives only between enqueue and the
// durable resolution of the upload; it is never persisted in the database.
type ProcessingJob struct {
	UploadID string           `json:"upload_id"`
	ClassID  string           `json:"class_id"`
	Files    []ProcessingFile `json:"files"`
}
