// Package store defines interfaces for relay state and the message archive.
// These abstractions allow swapping implementations (Redis, PostgreSQL, in-memory)
// without changing relay logic.
package store

import (
	"context"
	"time"

	"namedq/internal/domain"
)

// StateStore keeps per-route counters for fast lookups.
// This is typically backed by Redis for production use.
// All methods must be safe for concurrent use.
type StateStore interface {
	// GetRouteState returns the state of a route.
	// Returns nil, nil if the route has not recorded anything yet.
	GetRouteState(ctx context.Context, route string) (*domain.RouteState, error)

	// RecordForward counts one forwarded message and remembers its ID.
	RecordForward(ctx context.Context, route string, direction domain.Direction, messageID string, at time.Time) error

	// RecordRejected counts one message refused by the route.
	RecordRejected(ctx context.Context, route string, direction domain.Direction) error

	// RecordReopen counts one re-attach after the route's queue was removed.
	RecordReopen(ctx context.Context, route string, direction domain.Direction) error

	// Close releases any resources held by the store.
	Close() error
}

// ArchiveRepository persists every message a route relayed.
// This is typically backed by PostgreSQL for production use.
//
// Messages are keyed by route and ID: inbound routes keep the upstream id
// header, so two routes may archive the same ID.
type ArchiveRepository interface {
	// Save stores a relayed message. Saving the same route and ID again
	// replaces nothing and keeps one entry.
	Save(ctx context.Context, msg *domain.RelayedMessage) error

	// GetByID retrieves a route's message by ID.
	// Returns domain.ErrMessageNotFound if it does not exist.
	GetByID(ctx context.Context, route, id string) (*domain.RelayedMessage, error)

	// ListByRoute returns the newest messages of a route, newest first.
	ListByRoute(ctx context.Context, route string, limit int) ([]*domain.RelayedMessage, error)
}
