// Package domain contains the entities shared by the relay, its stores and the API.
// A route bridges one named queue to one bus topic in a single direction.
package domain

import (
	"errors"
	"time"
)

// Direction is the way messages flow through a route.
type Direction string

const (
	// DirectionOutbound drains a named queue and publishes to the bus.
	DirectionOutbound Direction = "outbound"
	// DirectionInbound consumes from the bus and sends into a named queue.
	DirectionInbound Direction = "inbound"
)

// IsValid returns true if the direction is a known value.
func (d Direction) IsValid() bool {
	return d == DirectionOutbound || d == DirectionInbound
}

// Errors returned by stores and the relay.
var (
	ErrMessageNotFound = errors.New("relayed message not found")
	ErrRouteNotFound   = errors.New("route not found")
	ErrInvalidPriority = errors.New("priority header is not an unsigned integer")
)

// RouteState is the running tally kept for a route.
type RouteState struct {
	Route     string    `json:"route"`
	Direction Direction `json:"direction"`

	// Forwarded counts messages that made it to the other side.
	Forwarded int64 `json:"forwarded"`

	// Rejected counts inbound messages refused because they did not fit the queue.
	Rejected int64 `json:"rejected"`

	// Reopens counts how often the route re-attached after its queue was removed.
	Reopens int64 `json:"reopens"`

	LastMessageID   string    `json:"last_message_id,omitempty"`
	LastForwardedAt time.Time `json:"last_forwarded_at,omitempty"`
}
