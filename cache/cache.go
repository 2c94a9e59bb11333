// Package cache persists the last successfully built rules document so a
// restarted service can serve rules before its first fetch completes.
package cache

import (
	"context"
	"time"
)

// Snapshot is the raw rules document from the most recent successful refresh.
type Snapshot struct {
	SourceURL string    `json:"source_url"`
	Body      []byte    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store holds at most one snapshot. Get returns (nil, nil) when no snapshot
// has been stored.
type Store interface {
	Get(ctx context.Context) (*Snapshot, error)
	Set(ctx context.Context, snap *Snapshot) error
}
