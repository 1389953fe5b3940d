// Package db defines the key-value store facade behind the configuration
// collaborator adapter. querent only reads from the store; the records are
// owned and written by the configuration service.
package db

import (
	"context"
	"time"
)

// Store is the storage contract consumed by the configuration repositories.
type Store interface {
	Pinger
	Reader
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reader provides read-only key-value access.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}
