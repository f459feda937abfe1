package api

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"namedq/internal/domain"
	"namedq/internal/store"
)

// RouteLookup tells whether a route is configured.
type RouteLookup interface {
	HasRoute(name string) bool
}

// RouteHandler handles HTTP requests about relay routes.
type RouteHandler struct {
	routes  RouteLookup
	state   store.StateStore
	archive store.ArchiveRepository
	logger  *slog.Logger
}

// NewRouteHandler creates a new route handler.
func NewRouteHandler(routes RouteLookup, state store.StateStore, archive store.ArchiveRepository, logger *slog.Logger) *RouteHandler {
	return &RouteHandler{
		routes:  routes,
		state:   state,
		archive: archive,
		logger:  logger,
	}
}

// GetState handles GET /v1/routes/:name/state
// A configured route that has not relayed anything yet returns zero counters.
func (h *RouteHandler) GetState(c *fiber.Ctx) error {
	name := c.Params("name")
	if !h.routes.HasRoute(name) {
		return NotFound(c, "route not found: "+name)
	}

	state, err := h.state.GetRouteState(c.UserContext(), name)
	if err != nil {
		h.logger.Error("failed to get route state", "route", name, "error", err)
		return InternalError(c, "failed to get route state")
	}
	if state == nil {
		state = &domain.RouteState{Route: name}
	}

	return Success(c, state)
}

// ListArchive handles GET /v1/routes/:name/archive
// Returns the newest relayed messages, limited by ?limit= (default 50, max 500).
func (h *RouteHandler) ListArchive(c *fiber.Ctx) error {
	name := c.Params("name")
	if !h.routes.HasRoute(name) {
		return NotFound(c, "route not found: "+name)
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 {
			return ValidationError(c, "limit must be a positive integer")
		}
		limit = min(l, 500)
	}

	messages, err := h.archive.ListByRoute(c.UserContext(), name, limit)
	if err != nil {
		h.logger.Error("failed to list archived messages", "route", name, "error", err)
		return InternalError(c, "failed to list archived messages")
	}
	return List(c, messages, limit)
}
