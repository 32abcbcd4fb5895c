package handlers

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/vine/config"
	"github.com/Ramsey-B/vine/pkg/activity"
	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/metrics"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/repositories"
)

// ConnectTokenHandler handles connect token API requests
type ConnectTokenHandler struct {
	tokens       repositories.ConnectTokenRepo
	integrations repositories.IntegrationRepo
	connections  repositories.ConnectionRepo
	activities   *activity.Service
	config       *config.Config
}

// NewConnectTokenHandler creates a new connect token handler
func NewConnectTokenHandler(
	tokens repositories.ConnectTokenRepo,
	integrations repositories.IntegrationRepo,
	connections repositories.ConnectionRepo,
	activities *activity.Service,
	cfg *config.Config,
) *ConnectTokenHandler {
	return &ConnectTokenHandler{
		tokens:       tokens,
		integrations: integrations,
		connections:  connections,
		activities:   activities,
		config:       cfg,
	}
}

// CreateConnectTokenRequest is the request body for creating a connect token
type CreateConnectTokenRequest struct {
	IntegrationID     *uuid.UUID     `json:"integration_id,omitempty" validate:"required_without=IntegrationKey"`
	IntegrationKey    *string        `json:"integration_key,omitempty" validate:"required_without=IntegrationID"`
	ConnectionID      *uuid.UUID     `json:"connection_id,omitempty"`
	ExpiresInMins     *int           `json:"expires_in_mins,omitempty"`
	RedirectURL       *string        `json:"redirect_url,omitempty" validate:"omitempty,url"`
	Configuration     map[string]any `json:"configuration,omitempty"`
	Inclusions        map[string]any `json:"inclusions,omitempty"`
	Exclusions        map[string]any `json:"exclusions,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	WebsocketClientID *string        `json:"websocket_client_id,omitempty"`
	PrefersDarkMode   bool           `json:"prefers_dark_mode,omitempty"`
}

// ConnectTokenResponse is the API shape for a connect token
type ConnectTokenResponse struct {
	*models.ConnectToken
	ConnectURL string `json:"connect_url"`
}

// RegisterRoutes registers the connect token routes
func (h *ConnectTokenHandler) RegisterRoutes(g *echo.Group) {
	tokens := g.Group("/connect-tokens")
	tokens.POST("", h.Create)
	tokens.GET("/:id", h.Get)
	tokens.DELETE("/:id", h.Delete)
}

// Create handles POST /connect-tokens
func (h *ConnectTokenHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	environmentID, err := GetEnvironmentID(c)
	if err != nil {
		return err
	}

	var req CreateConnectTokenRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	integration, err := h.resolveIntegration(c, &req)
	if err != nil {
		return err
	}

	expiresInMins := h.config.ConnectTokenDefaultMinutes
	if req.ExpiresInMins != nil {
		expiresInMins = *req.ExpiresInMins
	}
	if expiresInMins < h.config.ConnectTokenMinMinutes || expiresInMins > h.config.ConnectTokenMaxMinutes {
		return BadRequest(fmt.Sprintf("expires_in_mins must be between %d and %d",
			h.config.ConnectTokenMinMinutes, h.config.ConnectTokenMaxMinutes))
	}

	// Reconnect: the supplied connection must exist and belong to the
	// requested integration.
	if req.ConnectionID != nil {
		connection, err := h.connections.GetByID(ctx, *req.ConnectionID)
		if err != nil {
			return err
		}
		if connection.IntegrationID != integration.ID {
			return BadRequest("connection does not belong to the requested integration")
		}
	}

	token := &models.ConnectToken{
		ID:                uuid.New(),
		EnvironmentID:     environmentID,
		IntegrationID:     integration.ID,
		ConnectionID:      req.ConnectionID,
		ExpiresAt:         time.Now().Unix() + int64(expiresInMins)*60,
		WebsocketClientID: req.WebsocketClientID,
		RedirectURL:       req.RedirectURL,
		PrefersDarkMode:   req.PrefersDarkMode,
	}
	if req.Configuration != nil {
		token.Configuration = database.NewJSONB(req.Configuration)
	}
	if req.Inclusions != nil {
		token.Inclusions = database.NewJSONB(req.Inclusions)
	}
	if req.Exclusions != nil {
		token.Exclusions = database.NewJSONB(req.Exclusions)
	}
	if req.Metadata != nil {
		token.Metadata = database.NewJSONB(req.Metadata)
	}

	if err := h.tokens.Create(ctx, token); err != nil {
		return err
	}

	h.activities.Start(ctx, activity.StartParams{
		EnvironmentID:  environmentID,
		IntegrationID:  &integration.ID,
		ConnectionID:   req.ConnectionID,
		ConnectTokenID: &token.ID,
		Action:         models.LogActionConnect,
	})

	metrics.ConnectTokensIssued.Inc()

	return CreatedResponse(c, &ConnectTokenResponse{
		ConnectToken: token,
		ConnectURL:   fmt.Sprintf("%s/oauth/authorize?token=%s", h.config.ServerURL, token.ID),
	})
}

// Get handles GET /connect-tokens/:id
func (h *ConnectTokenHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	token, err := h.tokens.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if token.Expired(time.Now()) {
		return NotFound("connect token has expired")
	}

	return SuccessResponse(c, token)
}

// Delete handles DELETE /connect-tokens/:id
func (h *ConnectTokenHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.tokens.Delete(ctx, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}

func (h *ConnectTokenHandler) resolveIntegration(c echo.Context, req *CreateConnectTokenRequest) (*models.Integration, error) {
	ctx := c.Request().Context()

	switch {
	case req.IntegrationID != nil:
		return h.integrations.GetByID(ctx, *req.IntegrationID)
	case req.IntegrationKey != nil:
		return h.integrations.GetByKey(ctx, *req.IntegrationKey)
	default:
		return nil, BadRequest("integration_id or integration_key is required")
	}
}
