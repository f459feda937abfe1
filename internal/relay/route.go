package relay

import (
	"context"
	"fmt"
	"sync"

	"namedq/internal/config"
	"namedq/internal/metrics"
	"namedq/internal/mq"
)

// route is one configured bridge and the queue handle it currently holds.
type route struct {
	cfg config.RouteConfig

	mu sync.RWMutex
	q  *mq.NamedQueue
}

func (r *route) handle() *mq.NamedQueue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.q
}

// reopen attaches a fresh handle after the queue was removed. Open is
// create-or-open, so if nobody else recreated the queue this creates it.
func (r *route) reopen(ctx context.Context, s *Service) error {
	if !r.cfg.ShouldRecreate() {
		return fmt.Errorf("route %q: %w", r.cfg.Name, mq.ErrQueueRemoved)
	}

	q, err := s.open(r.cfg.Queue)
	if err != nil {
		return fmt.Errorf("route %q: reopen: %w", r.cfg.Name, err)
	}

	r.mu.Lock()
	old := r.q
	r.q = q
	r.mu.Unlock()
	_ = old.Close()

	metrics.RelayReopensTotal.WithLabelValues(r.cfg.Name).Inc()
	if err := s.state.RecordReopen(ctx, r.cfg.Name, r.cfg.Direction); err != nil {
		s.stateFailed(r, err)
	}

	s.logger.Warn("queue was removed, re-opened",
		"route", r.cfg.Name,
		"queue", q.Name(),
		"capacity", q.Capacity(),
		"max_message_size", q.MaxMessageSize(),
	)
	return nil
}

// stopError ends the route that returned it.
type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }

func (e *stopError) Unwrap() error { return e.err }

func (r *route) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.q == nil {
		return nil
	}
	return r.q.Close()
}
