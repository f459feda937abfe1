package memory

import (
	"context"
	"sync"

	"namedq/internal/domain"
)

type archiveKey struct {
	route string
	id    string
}

// ArchiveRepository is an in-memory implementation of store.ArchiveRepository.
// It keeps at most maxPerRoute messages per route, dropping the oldest.
type ArchiveRepository struct {
	mu          sync.RWMutex
	maxPerRoute int
	messages    map[archiveKey]*domain.RelayedMessage

	// byRoute holds each route's IDs in save order, each ID once.
	byRoute map[string][]string
}

// NewArchiveRepository creates a new in-memory archive.
// A non-positive maxPerRoute keeps every message.
func NewArchiveRepository(maxPerRoute int) *ArchiveRepository {
	return &ArchiveRepository{
		maxPerRoute: maxPerRoute,
		messages:    make(map[archiveKey]*domain.RelayedMessage),
		byRoute:     make(map[string][]string),
	}
}

// Save stores a copy of the message. A redelivered message, same route and
// ID, keeps its first entry.
func (r *ArchiveRepository) Save(ctx context.Context, msg *domain.RelayedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := archiveKey{route: msg.Route, id: msg.ID}
	if _, exists := r.messages[key]; exists {
		return nil
	}

	r.messages[key] = copyMessage(msg)
	ids := append(r.byRoute[msg.Route], msg.ID)

	if r.maxPerRoute > 0 && len(ids) > r.maxPerRoute {
		evicted := ids[:len(ids)-r.maxPerRoute]
		for _, id := range evicted {
			delete(r.messages, archiveKey{route: msg.Route, id: id})
		}
		ids = append([]string(nil), ids[len(evicted):]...)
	}
	r.byRoute[msg.Route] = ids
	return nil
}

// GetByID retrieves a route's message by ID.
func (r *ArchiveRepository) GetByID(ctx context.Context, route, id string) (*domain.RelayedMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.messages[archiveKey{route: route, id: id}]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return copyMessage(msg), nil
}

// ListByRoute returns up to limit messages of a route, newest first.
func (r *ArchiveRepository) ListByRoute(ctx context.Context, route string, limit int) ([]*domain.RelayedMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byRoute[route]
	result := make([]*domain.RelayedMessage, 0, min(limit, len(ids)))
	for i := len(ids) - 1; i >= 0 && len(result) < limit; i-- {
		if msg, ok := r.messages[archiveKey{route: route, id: ids[i]}]; ok {
			result = append(result, copyMessage(msg))
		}
	}
	return result, nil
}

func copyMessage(msg *domain.RelayedMessage) *domain.RelayedMessage {
	c := *msg
	c.Payload = append([]byte(nil), msg.Payload...)
	return &c
}
