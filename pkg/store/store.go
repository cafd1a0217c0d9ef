// Package store persists conversation records. It serves two purposes:
// a spool for records whose webhook delivery failed (re-delivered by the
// manager's sweep) and a per-user conversation history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/WuVi5054/mentor-ai/pkg/relay"
)

var (
	// ErrRecordNotFound is returned when a record id is unknown.
	ErrRecordNotFound = errors.New("record not found")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("record store is closed")
)

// Envelope wraps a record with its delivery bookkeeping.
type Envelope struct {
	Record    *relay.Record `json:"record"`
	Delivered bool          `json:"delivered"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Store persists conversation records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists a record with its delivery status, overwriting any
	// previous envelope with the same record id.
	Save(ctx context.Context, rec *relay.Record, delivered bool) error

	// Pending returns records awaiting delivery, oldest first.
	Pending(ctx context.Context) ([]*relay.Record, error)

	// MarkDelivered flags a spooled record as delivered.
	// Returns ErrRecordNotFound for unknown ids.
	MarkDelivered(ctx context.Context, recordID string) error

	// History returns all records for a user, oldest first.
	History(ctx context.Context, userID string) ([]*relay.Record, error)

	// Close releases any resources held by the store.
	Close() error
}
