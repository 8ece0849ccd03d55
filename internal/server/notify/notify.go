// Package notify fans out upload state changes: it drops the affected class
// listing from the cache and publishes an event for connected clients.
package notify

import (
	"context"
	"time"
)

// Event describes one upload state change, published on the class channel.
type Event struct {
	ClassID  string    `json:"class_id"`
	UploadID string    `json:"upload_id"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers events to interested clients.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}
