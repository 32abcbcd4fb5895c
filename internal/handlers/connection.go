package handlers

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/vine/pkg/connections"
	"github.com/Ramsey-B/vine/pkg/repositories"
)

// ConnectionHandler handles connection API requests
type ConnectionHandler struct {
	service    *connections.Service
	activities repositories.ActivityRepo
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(service *connections.Service, activities repositories.ActivityRepo) *ConnectionHandler {
	return &ConnectionHandler{service: service, activities: activities}
}

// RegisterRoutes registers the connection routes
func (h *ConnectionHandler) RegisterRoutes(g *echo.Group) {
	conns := g.Group("/connections")
	conns.GET("", h.List)
	conns.GET("/:id", h.Get)
	conns.DELETE("/:id", h.Delete)
	conns.GET("/:id/activities", h.ListActivities)
}

// List handles GET /connections. Accepts an optional integration_id filter.
func (h *ConnectionHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	var integrationID *uuid.UUID
	if param := c.QueryParam("integration_id"); param != "" {
		id, err := uuid.Parse(param)
		if err != nil {
			return BadRequest("invalid integration_id: must be a valid UUID")
		}
		integrationID = &id
	}

	conns, err := h.service.List(ctx, integrationID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, conns)
}

// Get handles GET /connections/:id
func (h *ConnectionHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	connection, err := h.service.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, connection)
}

// Delete handles DELETE /connections/:id
func (h *ConnectionHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.service.Delete(ctx, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// ListActivities handles GET /connections/:id/activities
func (h *ConnectionHandler) ListActivities(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	activities, err := h.activities.ListByConnection(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, activities)
}
