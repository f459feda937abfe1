// Package mq provides NamedQueue, a handle to a bounded, priority-ordered
// message queue registered in the OS namespace under a string name.
//
// Any number of processes on the same host may open the same name; they all
// share one kernel object. A handle never owns that object: Close releases the
// handle, and only Destroy (or Remove) takes the name out of the namespace.
package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"namedq/internal/metrics"
)

const (
	// MaxPriority is the highest priority a message may carry.
	MaxPriority = 32767

	// DefaultPollInterval bounds how long a blocked send or receive waits
	// before re-checking that the queue still exists.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultPermissions is the mode used when the queue is created.
	DefaultPermissions os.FileMode = 0o660

	maxNameLen = 255
)

// Message is a payload dequeued together with its priority.
type Message struct {
	Payload  []byte
	Priority uint
}

// Attributes describes the effective limits and current depth of a queue.
type Attributes struct {
	Capacity       int `json:"capacity"`
	MaxMessageSize int `json:"max_message_size"`
	Current        int `json:"current"`
}

// identity distinguishes one kernel queue object from another created later
// under the same name.
type identity struct {
	dev uint64
	ino uint64
}

type readiness int

const (
	readable readiness = iota
	writable
)

// Option configures a NamedQueue handle.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	pollInterval time.Duration
	perm         os.FileMode
}

// WithLogger sets the logger used by the handle.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPollInterval sets the slice length of blocking waits.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= time.Millisecond {
			o.pollInterval = d
		}
	}
}

// WithPermissions sets the permission bits applied when the queue is created.
// They are ignored when attaching to an existing queue.
func WithPermissions(perm os.FileMode) Option {
	return func(o *options) {
		o.perm = perm.Perm()
	}
}

// NamedQueue is a handle to a named OS message queue.
// It is safe for concurrent use.
type NamedQueue struct {
	name         string
	capacity     int
	maxMsgSize   int
	id           identity
	pollInterval time.Duration
	logger       *slog.Logger

	mu     sync.RWMutex
	fd     int
	closed bool
}

// Open creates the named queue if it does not exist, or attaches to it if it does.
//
// capacity and maxMessageSize only take effect when the queue is created.
// When attaching, the handle adopts the limits of the existing queue, which
// are read back from the OS together with any adjustment it applied on creation.
func Open(name string, capacity, maxMessageSize int, opts ...Option) (*NamedQueue, error) {
	o := options{
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		perm:         DefaultPermissions,
	}
	for _, opt := range opts {
		opt(&o)
	}

	key, err := normalizeName(name)
	if err != nil {
		return nil, &ResourceError{Name: name, Err: err}
	}
	if capacity <= 0 || maxMessageSize <= 0 {
		return nil, &ResourceError{Name: name, Err: ErrInvalidLimits}
	}

	fd, err := sysOpen(key, capacity, maxMessageSize, o.perm)
	if err != nil {
		return nil, &ResourceError{Name: name, Err: err}
	}

	attr, err := sysAttr(fd)
	if err != nil {
		_ = sysClose(fd)
		return nil, &ResourceError{Name: name, Err: fmt.Errorf("read attributes: %w", err)}
	}

	id, err := sysIdentity(fd)
	if err != nil {
		_ = sysClose(fd)
		return nil, &ResourceError{Name: name, Err: fmt.Errorf("stat queue: %w", err)}
	}

	q := &NamedQueue{
		name:         key,
		capacity:     attr.Capacity,
		maxMsgSize:   attr.MaxMessageSize,
		id:           id,
		pollInterval: o.pollInterval,
		logger:       o.logger,
		fd:           fd,
	}

	if attr.Capacity != capacity || attr.MaxMessageSize != maxMessageSize {
		q.logger.Debug("attached with existing queue limits",
			"queue", key,
			"requested_capacity", capacity,
			"requested_max_message_size", maxMessageSize,
			"capacity", attr.Capacity,
			"max_message_size", attr.MaxMessageSize,
		)
	}
	q.logger.Debug("queue opened", "queue", key, "current", attr.Current)

	return q, nil
}

// Remove unlinks the named queue without holding a handle to it.
// Returns ErrNotFound if no queue is registered under the name.
func Remove(name string) error {
	key, err := normalizeName(name)
	if err != nil {
		return fmt.Errorf("remove queue %q: %w", name, err)
	}
	if err := sysUnlink(key); err != nil {
		return fmt.Errorf("remove queue %q: %w", key, err)
	}
	metrics.QueuesDestroyedTotal.WithLabelValues(key).Inc()
	return nil
}

// Name returns the OS-wide key of the queue, without a leading slash.
func (q *NamedQueue) Name() string {
	return q.name
}

// Capacity returns the maximum number of messages the queue holds.
func (q *NamedQueue) Capacity() int {
	return q.capacity
}

// MaxMessageSize returns the largest payload Send accepts.
func (q *NamedQueue) MaxMessageSize() int {
	return q.maxMsgSize
}

// Send enqueues payload with the given priority, blocking while the queue is full.
func (q *NamedQueue) Send(payload []byte, priority uint) error {
	return q.SendContext(context.Background(), payload, priority)
}

// SendContext is Send with cancellation. The context is only consulted
// while the queue is full.
func (q *NamedQueue) SendContext(ctx context.Context, payload []byte, priority uint) error {
	if len(payload) > q.maxMsgSize {
		q.recordError("send", ErrTooLarge)
		return fmt.Errorf("send to %q: %d bytes over limit of %d: %w", q.name, len(payload), q.maxMsgSize, ErrTooLarge)
	}
	if priority > MaxPriority {
		q.recordError("send", ErrInvalidPriority)
		return fmt.Errorf("send to %q: priority %d: %w", q.name, priority, ErrInvalidPriority)
	}

	err := q.do(ctx, "send", writable, true, func(fd int) error {
		return sysSend(fd, payload, priority)
	})
	if err != nil {
		q.recordError("send", err)
		return err
	}

	metrics.MessagesSentTotal.WithLabelValues(q.name).Inc()
	return nil
}

// Receive dequeues the highest-priority message, blocking until one is
// available. Messages of equal priority are delivered in send order.
func (q *NamedQueue) Receive() ([]byte, error) {
	msg, err := q.ReceiveContext(context.Background())
	if err != nil {
		return nil, err
	}
	return msg.Payload, nil
}

// ReceiveContext is Receive with cancellation, returning the message priority.
func (q *NamedQueue) ReceiveContext(ctx context.Context) (*Message, error) {
	msg, err := q.receive(ctx, true)
	if err != nil {
		q.recordError("receive", err)
		return nil, err
	}
	return msg, nil
}

// TryReceive dequeues a message if one is available. It never blocks;
// an empty queue yields (nil, false, nil).
func (q *NamedQueue) TryReceive() ([]byte, bool, error) {
	msg, err := q.TryReceiveMessage()
	if err != nil || msg == nil {
		return nil, false, err
	}
	return msg.Payload, true, nil
}

// TryReceiveMessage is TryReceive returning the message priority.
// Returns nil, nil if the queue is empty.
func (q *NamedQueue) TryReceiveMessage() (*Message, error) {
	msg, err := q.receive(context.Background(), false)
	if errors.Is(err, errAgain) {
		return nil, nil
	}
	if err != nil {
		q.recordError("try_receive", err)
		return nil, err
	}
	return msg, nil
}

func (q *NamedQueue) receive(ctx context.Context, block bool) (*Message, error) {
	buf := make([]byte, q.maxMsgSize)
	var (
		n    int
		prio uint
	)
	err := q.do(ctx, "receive", readable, block, func(fd int) error {
		var err error
		n, prio, err = sysReceive(fd, buf)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.MessagesReceivedTotal.WithLabelValues(q.name).Inc()
	return &Message{Payload: buf[:n:n], Priority: prio}, nil
}

// Destroy removes the queue from the OS namespace. Every other handle,
// in this process or another, observes ErrQueueRemoved from then on,
// including operations already blocked.
//
// Returns ErrNotFound if the queue this handle opened is already gone, leaving
// a newer queue registered under the same name in place. The OS unlinks by
// name only: a queue recreated between that check and the unlink is removed
// instead. Destroy does not close the handle.
func (q *NamedQueue) Destroy() error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if err := q.checkAlive(); err != nil {
		if errors.Is(err, ErrQueueRemoved) {
			return fmt.Errorf("destroy %q: %w", q.name, ErrNotFound)
		}
		return fmt.Errorf("destroy %q: %w", q.name, err)
	}
	if err := Remove(q.name); err != nil {
		return err
	}

	q.logger.Info("queue destroyed", "queue", q.name)
	return nil
}

// Stat reports the queue's limits and how many messages it currently holds.
func (q *NamedQueue) Stat() (Attributes, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return Attributes{}, fmt.Errorf("stat %q: %w", q.name, ErrClosed)
	}
	if err := q.checkAlive(); err != nil {
		return Attributes{}, fmt.Errorf("stat %q: %w", q.name, err)
	}
	attr, err := sysAttr(q.fd)
	if err != nil {
		return Attributes{}, fmt.Errorf("stat %q: %w", q.name, err)
	}

	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(attr.Current))
	return attr, nil
}

// Close releases the handle. The queue itself and its messages are untouched.
// Calling Close more than once is a no-op.
func (q *NamedQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	if err := sysClose(q.fd); err != nil {
		return fmt.Errorf("close %q: %w", q.name, err)
	}
	return nil
}

// do runs fn until it stops reporting errAgain. Between attempts it waits at
// most one poll interval for the descriptor to become ready, then verifies the
// queue still exists before trying again.
func (q *NamedQueue) do(ctx context.Context, op string, ready readiness, block bool, fn func(fd int) error) error {
	var started time.Time
	for {
		done, err := q.step(ready, block, fn)
		if done {
			if !started.IsZero() {
				metrics.BlockedSeconds.WithLabelValues(q.name, op).Observe(time.Since(started).Seconds())
			}
			if err != nil && !errors.Is(err, errAgain) {
				return fmt.Errorf("%s %q: %w", op, q.name, err)
			}
			return err
		}
		if started.IsZero() {
			started = time.Now()
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s %q: %w", op, q.name, err)
		}
	}
}

func (q *NamedQueue) step(ready readiness, block bool, fn func(fd int) error) (bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return true, ErrClosed
	}
	if err := q.checkAlive(); err != nil {
		return true, err
	}

	err := fn(q.fd)
	if !errors.Is(err, errAgain) {
		return true, err
	}
	if !block {
		return true, errAgain
	}
	if err := sysWait(q.fd, ready, q.pollInterval); err != nil {
		return true, err
	}
	return false, nil
}

// checkAlive reports ErrQueueRemoved once the object this handle opened has
// been unlinked. The held descriptor's link count answers that without
// resolving the name, so it holds for handles that cannot reopen the name
// (e.g. write-only permissions). The name lookup is the fallback when fstat
// fails. Must be called with mu held.
func (q *NamedQueue) checkAlive() error {
	unlinked, err := sysUnlinked(q.fd)
	if err == nil {
		if unlinked {
			return ErrQueueRemoved
		}
		return nil
	}
	q.logger.Debug("queue fstat failed", "queue", q.name, "error", err)

	id, ok, err := sysLookup(q.name)
	if err != nil {
		q.logger.Debug("queue lookup failed", "queue", q.name, "error", err)
		return nil
	}
	if !ok || id != q.id {
		return ErrQueueRemoved
	}
	return nil
}

func (q *NamedQueue) recordError(op string, err error) {
	metrics.OperationErrorsTotal.WithLabelValues(q.name, op, errorReason(err)).Inc()
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrInvalidPriority):
		return "invalid_priority"
	case errors.Is(err, ErrQueueRemoved):
		return "removed"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

// normalizeName strips one leading slash and validates the rest.
func normalizeName(name string) (string, error) {
	key := strings.TrimPrefix(name, "/")
	switch {
	case key == "", key == ".", key == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(key, "/\x00"):
		return "", fmt.Errorf("%w: %q contains '/' or NUL", ErrInvalidName, name)
	case len(key) > maxNameLen:
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, maxNameLen)
	}
	return key, nil
}
