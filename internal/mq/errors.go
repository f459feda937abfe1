package mq

import (
	"errors"
	"fmt"
)

// Errors returned by NamedQueue operations.
var (
	// ErrTooLarge is returned by Send when the payload exceeds the queue's message size.
	ErrTooLarge = errors.New("message exceeds queue message size")

	// ErrInvalidPriority is returned by Send when the priority is above MaxPriority.
	ErrInvalidPriority = errors.New("message priority out of range")

	// ErrQueueRemoved is returned when the queue was destroyed before or during an operation.
	ErrQueueRemoved = errors.New("queue removed")

	// ErrNotFound is returned by Destroy and Remove when the name is not registered.
	// Teardown races between cooperating processes are expected, so callers may ignore it.
	ErrNotFound = errors.New("queue not found")

	// ErrClosed is returned when an operation is attempted on a closed handle.
	ErrClosed = errors.New("queue handle is closed")

	// ErrInvalidName is wrapped by ResourceError when the queue name is not usable.
	ErrInvalidName = errors.New("invalid queue name")

	// ErrInvalidLimits is wrapped by ResourceError when capacity or message size is zero.
	ErrInvalidLimits = errors.New("capacity and message size must be positive")

	// ErrUnsupported is wrapped by ResourceError on platforms without POSIX message queues.
	ErrUnsupported = errors.New("named message queues are not supported on this platform")
)

// ResourceError reports that the OS could not create or open the named queue.
type ResourceError struct {
	Name string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("open queue %q: %v", e.Name, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}
