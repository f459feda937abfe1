// Package memory provides in-memory implementations of store interfaces.
// These are useful for testing and single-host deployments without external dependencies.
package memory

import (
	"context"
	"sync"
	"time"

	"namedq/internal/domain"
)

// StateStore is an in-memory implementation of the store.StateStore interface.
// It uses a map with mutex protection for thread-safe access.
type StateStore struct {
	mu     sync.RWMutex
	routes map[string]*domain.RouteState
}

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		routes: make(map[string]*domain.RouteState),
	}
}

// GetRouteState returns a copy of the route's state, or nil if none was recorded.
func (s *StateStore) GetRouteState(ctx context.Context, route string) (*domain.RouteState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.routes[route]
	if !exists {
		return nil, nil
	}

	// Return a copy to prevent external modification
	result := *state
	return &result, nil
}

// RecordForward counts one forwarded message.
func (s *StateStore) RecordForward(ctx context.Context, route string, direction domain.Direction, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.entry(route, direction)
	state.Forwarded++
	state.LastMessageID = messageID
	state.LastForwardedAt = at
	return nil
}

// RecordRejected counts one rejected message.
func (s *StateStore) RecordRejected(ctx context.Context, route string, direction domain.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entry(route, direction).Rejected++
	return nil
}

// RecordReopen counts one queue re-attach.
func (s *StateStore) RecordReopen(ctx context.Context, route string, direction domain.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entry(route, direction).Reopens++
	return nil
}

// entry must be called with mu held.
func (s *StateStore) entry(route string, direction domain.Direction) *domain.RouteState {
	state, ok := s.routes[route]
	if !ok {
		state = &domain.RouteState{Route: route, Direction: direction}
		s.routes[route] = state
	}
	return state
}

// Close releases any resources (no-op for in-memory store).
func (s *StateStore) Close() error {
	return nil
}

// Clear removes all data from the store. Useful for test cleanup.
func (s *StateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.routes = make(map[string]*domain.RouteState)
}
