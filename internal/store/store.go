// Package store persists one JSON document per room so rooms survive a restart.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("room not found")

type Record struct {
	Room      string
	Version   uint64
	State     []byte
	UpdatedAt time.Time
}

type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, room string) (Record, error)
	Delete(ctx context.Context, room string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}
