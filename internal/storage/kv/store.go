// Package kv provides the instance-scoped key-value storage backing the contract configuration
// and authorization nonces.
package kv

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound the key has never been written.
var ErrNotFound = errors.New("key not found")

// Store durable key-value storage scoped to one contract instance.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}
