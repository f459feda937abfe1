// Package relay bridges named queues and the message bus.
//
// An outbound route drains a named queue and publishes every message to a
// bus topic. An inbound route consumes a topic and sends every message into
// a named queue, honouring the priority header. Every relayed message is
// archived and counted in the route's state.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"namedq/internal/config"
	"namedq/internal/domain"
	"namedq/internal/metrics"
	"namedq/internal/mq"
	"namedq/internal/queue"
	"namedq/internal/store"
)

// QueueStatus describes the named queue behind a route.
type QueueStatus struct {
	Route      string           `json:"route"`
	Direction  domain.Direction `json:"direction"`
	Queue      string           `json:"queue"`
	Topic      string           `json:"topic"`
	Attributes mq.Attributes    `json:"attributes"`
	Removed    bool             `json:"removed"`
}

// Service runs every configured route.
type Service struct {
	routes    []*route
	byName    map[string]*route
	queueCfg  config.QueueConfig
	transport queue.Transport
	state     store.StateStore
	archive   store.ArchiveRepository
	logger    *slog.Logger
}

// NewService creates a relay service. Queues are opened by Start.
func NewService(
	routes []config.RouteConfig,
	queueCfg config.QueueConfig,
	transport queue.Transport,
	state store.StateStore,
	archive store.ArchiveRepository,
	logger *slog.Logger,
) *Service {
	s := &Service{
		byName:    make(map[string]*route, len(routes)),
		queueCfg:  queueCfg,
		transport: transport,
		state:     state,
		archive:   archive,
		logger:    logger,
	}
	for _, cfg := range routes {
		if cfg.PublishAttempts < 1 {
			cfg.PublishAttempts = 1
		}
		if cfg.PublishTimeout <= 0 {
			cfg.PublishTimeout = 5 * time.Second
		}
		r := &route{cfg: cfg}
		s.routes = append(s.routes, r)
		s.byName[cfg.Name] = r
	}
	return s
}

// Open attaches every route to its named queue, creating queues that do not exist.
// Start calls Open if it has not been called.
func (s *Service) Open() error {
	for _, r := range s.routes {
		if r.handle() != nil {
			continue
		}
		q, err := s.open(r.cfg.Queue)
		if err != nil {
			return fmt.Errorf("route %q: %w", r.cfg.Name, err)
		}
		r.mu.Lock()
		r.q = q
		r.mu.Unlock()

		s.logger.Info("route attached",
			"route", r.cfg.Name,
			"direction", r.cfg.Direction,
			"queue", q.Name(),
			"topic", r.cfg.Topic,
			"capacity", q.Capacity(),
			"max_message_size", q.MaxMessageSize(),
		)
	}
	return nil
}

// Start opens every route and runs them until the context is canceled.
// It returns early with an error if a route cannot continue, e.g. its
// queue was removed and the route is not allowed to recreate it.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting relay service", "routes", len(s.routes))

	if err := s.Open(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range s.routes {
		g.Go(func() error {
			var err error
			switch r.cfg.Direction {
			case domain.DirectionOutbound:
				err = s.runOutbound(ctx, r)
			case domain.DirectionInbound:
				err = s.runInbound(ctx, r)
			}
			if err != nil && ctx.Err() == nil {
				s.logger.Error("route stopped", "route", r.cfg.Name, "error", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Stop releases every queue handle. Queues stay registered in the OS namespace.
func (s *Service) Stop() error {
	s.logger.Info("stopping relay service")

	var errs []error
	for _, r := range s.routes {
		if err := r.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Queues reports the status of every route's queue.
func (s *Service) Queues() []QueueStatus {
	result := make([]QueueStatus, 0, len(s.routes))
	for _, r := range s.routes {
		result = append(result, s.status(r))
	}
	return result
}

// QueueStatus reports the status of the route attached to the named queue.
func (s *Service) QueueStatus(queueName string) (QueueStatus, error) {
	for _, r := range s.routes {
		if q := r.handle(); q != nil && (q.Name() == queueName || r.cfg.Queue.Name == queueName) {
			return s.status(r), nil
		}
	}
	return QueueStatus{}, domain.ErrRouteNotFound
}

// HasRoute reports whether a route with the name is configured.
func (s *Service) HasRoute(name string) bool {
	_, ok := s.byName[name]
	return ok
}

func (s *Service) status(r *route) QueueStatus {
	st := QueueStatus{
		Route:     r.cfg.Name,
		Direction: r.cfg.Direction,
		Queue:     r.cfg.Queue.Name,
		Topic:     r.cfg.Topic,
	}
	q := r.handle()
	if q == nil {
		return st
	}
	st.Queue = q.Name()

	attr, err := q.Stat()
	switch {
	case errors.Is(err, mq.ErrQueueRemoved):
		st.Removed = true
	case err != nil:
		s.logger.Warn("failed to stat queue", "route", r.cfg.Name, "error", err)
	}
	st.Attributes = attr
	return st
}

func (s *Service) runOutbound(ctx context.Context, r *route) error {
	producer := s.transport.Producer(r.cfg.Topic)
	defer producer.Close()

	for {
		q := r.handle()
		msg, err := q.ReceiveContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, mq.ErrQueueRemoved) {
				if err := r.reopen(ctx, s); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("route %q: %w", r.cfg.Name, err)
		}

		s.forwardOutbound(ctx, r, producer, q, msg)
	}
}

// forwardOutbound publishes one dequeued message. The message already left the
// queue, so shutdown does not abort it: the attempt in flight completes, and a
// message still unpublished goes back into the queue for the next run.
func (s *Service) forwardOutbound(ctx context.Context, r *route, producer queue.Producer, q *mq.NamedQueue, msg *mq.Message) {
	start := time.Now()
	detached := context.WithoutCancel(ctx)
	relayed := domain.NewRelayedMessage(r.cfg.Name, domain.DirectionOutbound, q.Name(), msg.Payload, msg.Priority)

	busMsg := &queue.Message{
		Key:     []byte(q.Name()),
		Value:   msg.Payload,
		Headers: relayed.Headers(),
	}
	if err := s.publish(ctx, r, producer, busMsg); err != nil {
		if ctx.Err() != nil {
			s.requeue(detached, r, q, msg, err)
			return
		}
		metrics.RelayFailuresTotal.WithLabelValues(r.cfg.Name, "publish").Inc()
		s.logger.Error("failed to publish message, dropping it",
			"route", r.cfg.Name,
			"message_id", relayed.ID,
			"size", relayed.Size(),
			"error", err,
		)
		return
	}

	s.recordForward(detached, r, relayed, start)
}

// publish retries up to the route's attempt limit, pausing between attempts.
// Each attempt is bounded by the route's publish timeout only; once ctx is
// canceled no further attempt starts.
func (s *Service) publish(ctx context.Context, r *route, producer queue.Producer, msg *queue.Message) error {
	detached := context.WithoutCancel(ctx)
	for attempt := 1; ; attempt++ {
		pubCtx, cancel := context.WithTimeout(detached, r.cfg.PublishTimeout)
		err := producer.Publish(pubCtx, msg)
		cancel()
		if err == nil {
			return nil
		}

		s.logger.Warn("publish attempt failed",
			"route", r.cfg.Name,
			"attempt", attempt,
			"error", err,
		)
		if attempt >= r.cfg.PublishAttempts || ctx.Err() != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(r.cfg.RetryBackoff):
		}
	}
}

// requeue hands a message that could not be published before shutdown back
// to its queue, with its original priority. It lands behind messages of the
// same priority that are already queued.
func (s *Service) requeue(ctx context.Context, r *route, q *mq.NamedQueue, msg *mq.Message, cause error) {
	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	defer cancel()

	if err := q.SendContext(sendCtx, msg.Payload, msg.Priority); err != nil {
		metrics.RelayFailuresTotal.WithLabelValues(r.cfg.Name, "publish").Inc()
		s.logger.Error("failed to return unpublished message to queue, dropping it",
			"route", r.cfg.Name,
			"queue", q.Name(),
			"size", len(msg.Payload),
			"publish_error", cause,
			"error", err,
		)
		return
	}
	s.logger.Warn("returned unpublished message to queue",
		"route", r.cfg.Name,
		"queue", q.Name(),
		"priority", msg.Priority,
		"error", cause,
	)
}

func (s *Service) runInbound(ctx context.Context, r *route) error {
	consumer := s.transport.Consumer(r.cfg.Topic)
	defer consumer.Close()

	// Consumers treat handler errors as retryable, so a route that cannot
	// continue stops its consumer through the context instead.
	consumeCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	err := consumer.Start(consumeCtx, func(ctx context.Context, msg *queue.Message) error {
		err := s.handleInbound(ctx, r, msg)
		var se *stopError
		if errors.As(err, &se) {
			stop(se.err)
			return se.err
		}
		return err
	})
	if ctx.Err() != nil {
		return nil
	}
	if cause := context.Cause(consumeCtx); cause != nil {
		return cause
	}
	if err != nil {
		return fmt.Errorf("route %q: consumer: %w", r.cfg.Name, err)
	}
	return nil
}

// handleInbound sends one bus message into the route's queue. Messages the
// queue can never accept are rejected and acknowledged. A *stopError means the
// route cannot continue; any other error leaves the message to be redelivered.
func (s *Service) handleInbound(ctx context.Context, r *route, msg *queue.Message) error {
	start := time.Now()

	priority, err := domain.PriorityFromHeaders(msg.Headers, r.cfg.Priority)
	if err != nil {
		s.reject(ctx, r, msg, err)
		return nil
	}

	for {
		q := r.handle()
		err = q.SendContext(ctx, msg.Value, priority)
		if err == nil {
			relayed := domain.NewRelayedMessage(r.cfg.Name, domain.DirectionInbound, q.Name(), msg.Value, priority)
			relayed.ID = domain.IDFromHeaders(msg.Headers)
			s.recordForward(ctx, r, relayed, start)
			return nil
		}

		switch {
		case errors.Is(err, mq.ErrTooLarge), errors.Is(err, mq.ErrInvalidPriority):
			s.reject(ctx, r, msg, err)
			return nil
		case errors.Is(err, mq.ErrQueueRemoved):
			if rerr := r.reopen(ctx, s); rerr != nil {
				return &stopError{err: rerr}
			}
		default:
			return err
		}
	}
}

func (s *Service) reject(ctx context.Context, r *route, msg *queue.Message, reason error) {
	metrics.RelayFailuresTotal.WithLabelValues(r.cfg.Name, "rejected").Inc()
	s.logger.Warn("rejected inbound message",
		"route", r.cfg.Name,
		"message_id", msg.Headers[domain.HeaderID],
		"size", len(msg.Value),
		"reason", reason,
	)
	if err := s.state.RecordRejected(ctx, r.cfg.Name, r.cfg.Direction); err != nil {
		s.stateFailed(r, err)
	}
}

// recordForward archives the message and updates counters. Failures are
// logged but never undo the forward.
func (s *Service) recordForward(ctx context.Context, r *route, relayed *domain.RelayedMessage, start time.Time) {
	if err := s.archive.Save(ctx, relayed); err != nil {
		metrics.RelayFailuresTotal.WithLabelValues(r.cfg.Name, "archive").Inc()
		s.logger.Error("failed to archive message", "route", r.cfg.Name, "message_id", relayed.ID, "error", err)
	}
	if err := s.state.RecordForward(ctx, r.cfg.Name, r.cfg.Direction, relayed.ID, relayed.CreatedAt); err != nil {
		s.stateFailed(r, err)
	}

	metrics.RelayForwardedTotal.WithLabelValues(r.cfg.Name, string(r.cfg.Direction)).Inc()
	metrics.RelayForwardLatency.WithLabelValues(r.cfg.Name).Observe(time.Since(start).Seconds())

	s.logger.Debug("message forwarded",
		"route", r.cfg.Name,
		"direction", r.cfg.Direction,
		"message_id", relayed.ID,
		"priority", relayed.Priority,
		"size", relayed.Size(),
	)
}

func (s *Service) stateFailed(r *route, err error) {
	metrics.RelayFailuresTotal.WithLabelValues(r.cfg.Name, "state").Inc()
	s.logger.Error("failed to update route state", "route", r.cfg.Name, "error", err)
}

func (s *Service) open(cfg config.NamedQueueConfig) (*mq.NamedQueue, error) {
	return mq.Open(cfg.Name, cfg.Capacity, cfg.MaxMessageSize,
		mq.WithLogger(s.logger),
		mq.WithPollInterval(s.queueCfg.PollInterval),
		mq.WithPermissions(os.FileMode(s.queueCfg.Permissions)),
	)
}
