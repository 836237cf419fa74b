// Package store persists forwarded-write responses keyed by the client's
// Idempotency-Key so a retried write is answered without reaching the
// primary twice.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/devrev/litefs-sidecar/internal/model"
)

// ErrNotFound is returned when no response is stored under a key
var ErrNotFound = errors.New("idempotency key not found")

// IdempotencyStore interface for idempotency key operations
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*model.ForwardResponse, error)
	Set(ctx context.Context, key string, resp *model.ForwardResponse, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Key namespaces a client idempotency key by method and path
func Key(method, path, idempotencyKey string) string {
	return "litefs-sidecar:idempotency:" + method + ":" + path + ":" + idempotencyKey
}

var (
	_ IdempotencyStore = (*RedisIdempotencyStore)(nil)
	_ IdempotencyStore = (*MemoryIdempotencyStore)(nil)
)
