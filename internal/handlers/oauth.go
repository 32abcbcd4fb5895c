package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/vine/pkg/auth"
	"github.com/Ramsey-B/vine/pkg/publisher"
)

// OAuthHandler handles the public authorization flow endpoints: the
// authorize redirect, the provider callback, and credential form
// submissions. These routes are browser-driven and unauthenticated; the
// connect token is the only credential.
type OAuthHandler struct {
	flows     *auth.Service
	publisher *publisher.Publisher
}

// NewOAuthHandler creates a new oauth handler
func NewOAuthHandler(flows *auth.Service, pub *publisher.Publisher) *OAuthHandler {
	return &OAuthHandler{flows: flows, publisher: pub}
}

// RegisterRoutes registers the public flow routes
func (h *OAuthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/oauth/authorize", h.Authorize)
	e.GET("/oauth/callback", h.Callback)
	e.POST("/connect/:token/api-key", h.SubmitAPIKey)
	e.POST("/connect/:token/basic", h.SubmitBasic)
	e.POST("/connect/:token/service-account", h.SubmitServiceAccount)
}

// Authorize handles GET /oauth/authorize?token=...
func (h *OAuthHandler) Authorize(c echo.Context) error {
	ctx := c.Request().Context()

	tokenParam := c.QueryParam("token")
	if tokenParam == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Connect token missing"})
	}
	tokenID, err := uuid.Parse(tokenParam)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid connect token"})
	}

	result, err := h.flows.Authorize(ctx, tokenID)
	if err != nil {
		return h.publishFlowError(c, err)
	}

	if result.Completed != nil {
		return h.publishSuccess(c, result.Completed)
	}
	return c.Redirect(http.StatusFound, result.RedirectURL)
}

// Callback handles GET /oauth/callback. The provider returns here with
// state carrying the connect token id.
func (h *OAuthHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.flows.HandleOAuthCallback(ctx, c.QueryParam("state"), c.QueryParams())
	if err != nil {
		return h.publishFlowError(c, err)
	}

	return h.publishSuccess(c, result)
}

// SubmitAPIKeyRequest is the credential form body for api_key flows
type SubmitAPIKeyRequest struct {
	Key string `json:"key"`
}

// SubmitAPIKey handles POST /connect/:token/api-key
func (h *OAuthHandler) SubmitAPIKey(c echo.Context) error {
	ctx := c.Request().Context()

	tokenID, err := ParseUUID(c, "token")
	if err != nil {
		return err
	}

	var req SubmitAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	result, ferr := h.flows.SubmitAPIKey(ctx, tokenID, req.Key)
	if ferr != nil {
		return h.publishFlowError(c, ferr)
	}
	return h.publishSuccess(c, result)
}

// SubmitBasicRequest is the credential form body for basic flows
type SubmitBasicRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SubmitBasic handles POST /connect/:token/basic
func (h *OAuthHandler) SubmitBasic(c echo.Context) error {
	ctx := c.Request().Context()

	tokenID, err := ParseUUID(c, "token")
	if err != nil {
		return err
	}

	var req SubmitBasicRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	result, ferr := h.flows.SubmitBasic(ctx, tokenID, req.Username, req.Password)
	if ferr != nil {
		return h.publishFlowError(c, ferr)
	}
	return h.publishSuccess(c, result)
}

// SubmitServiceAccountRequest is the credential form body for
// service_account flows
type SubmitServiceAccountRequest struct {
	Key map[string]any `json:"key"`
}

// SubmitServiceAccount handles POST /connect/:token/service-account
func (h *OAuthHandler) SubmitServiceAccount(c echo.Context) error {
	ctx := c.Request().Context()

	tokenID, err := ParseUUID(c, "token")
	if err != nil {
		return err
	}

	var req SubmitServiceAccountRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	result, ferr := h.flows.SubmitServiceAccount(ctx, tokenID, req.Key)
	if ferr != nil {
		return h.publishFlowError(c, ferr)
	}
	return h.publishSuccess(c, result)
}

// publishSuccess delivers the flow's single terminal success event: over
// the websocket channel when the client subscribed, then a redirect back to
// the caller's app when one was registered, falling back to plain JSON.
func (h *OAuthHandler) publishSuccess(c echo.Context, result *auth.CallbackResult) error {
	ctx := c.Request().Context()

	if result.WSClientID != "" {
		h.publisher.PublishSuccess(ctx, result.WSClientID, result.ConnectionID)
	}

	if result.RedirectURL != "" {
		redirect, err := url.Parse(result.RedirectURL)
		if err == nil {
			query := redirect.Query()
			query.Set("connection_id", result.ConnectionID.String())
			redirect.RawQuery = query.Encode()
			return c.Redirect(http.StatusFound, redirect.String())
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"connection_id": result.ConnectionID.String(),
		"action":        string(result.Action),
	})
}

// publishFlowError delivers the flow's single terminal error event with the
// sanitized message. Non-flow errors fall through to the error middleware.
func (h *OAuthHandler) publishFlowError(c echo.Context, err error) error {
	ctx := c.Request().Context()

	var ferr *auth.FlowError
	if !errors.As(err, &ferr) {
		return err
	}

	if ferr.WSClientID != "" {
		h.publisher.PublishError(ctx, ferr.WSClientID, ferr.Message)
	}

	if ferr.RedirectURL != "" {
		redirect, parseErr := url.Parse(ferr.RedirectURL)
		if parseErr == nil {
			query := redirect.Query()
			query.Set("error", ferr.Message)
			redirect.RawQuery = query.Encode()
			return c.Redirect(http.StatusFound, redirect.String())
		}
	}

	return c.JSON(http.StatusBadRequest, map[string]string{"error": ferr.Message})
}
