// Package models defines server-side data models persisted in the database.
package models

// Class holds the storage-quota ledger of one school class. The CRUD layer
// owns the rest of the class entity; ingestion only reads and adjusts the
// two byte counters. New reservations are admitted only while
// UsedBytes <= QuotaBytes; commit settlement against post-sanitization
// sizes may push UsedBytes slightly past the quota, which simply blocks
// further uploads until space is freed.
type Class struct {
	ID string `db:"id"`
	// QuotaBytes is the storage allowance of the class.
	QuotaBytes int64 `db:"quota_bytes"`
	// UsedBytes is committed usage plus outstanding reservations.
	UsedBytes int64 `db:"used_bytes"`
}
