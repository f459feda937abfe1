package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"namedq/internal/domain"
	"namedq/internal/relay"
)

// QueueLister reports on the named queues the daemon holds.
type QueueLister interface {
	Queues() []relay.QueueStatus
	QueueStatus(queueName string) (relay.QueueStatus, error)
}

// QueueHandler handles HTTP requests about named queues.
type QueueHandler struct {
	queues QueueLister
	logger *slog.Logger
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(queues QueueLister, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		queues: queues,
		logger: logger,
	}
}

// List handles GET /v1/queues
func (h *QueueHandler) List(c *fiber.Ctx) error {
	return List(c, h.queues.Queues(), 0)
}

// Get handles GET /v1/queues/:name
func (h *QueueHandler) Get(c *fiber.Ctx) error {
	name := c.Params("name")

	status, err := h.queues.QueueStatus(name)
	if err != nil {
		if errors.Is(err, domain.ErrRouteNotFound) {
			return NotFound(c, "no route is attached to queue "+name)
		}
		h.logger.Error("failed to get queue status", "queue", name, "error", err)
		return InternalError(c, "failed to get queue status")
	}

	return Success(c, status)
}
