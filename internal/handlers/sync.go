package handlers

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/syncs"
)

// SyncHandler handles sync management API requests and the internal run
// lifecycle callbacks from the workflow engine
type SyncHandler struct {
	scheduler *syncs.Scheduler
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(scheduler *syncs.Scheduler) *SyncHandler {
	return &SyncHandler{scheduler: scheduler}
}

// RegisterRoutes registers the sync management routes
func (h *SyncHandler) RegisterRoutes(g *echo.Group) {
	s := g.Group("/connections/:connectionId/syncs")
	s.GET("", h.List)
	s.POST("/:collectionKey/start", h.Start)
	s.POST("/:collectionKey/stop", h.Stop)
	s.POST("/:collectionKey/trigger", h.Trigger)
	s.PUT("/:collectionKey/frequency", h.UpdateFrequency)
	s.GET("/:collectionKey/runs", h.ListRuns)
}

// RegisterInternalRoutes registers the run lifecycle callbacks invoked by
// sync workers, not end users
func (h *SyncHandler) RegisterInternalRoutes(g *echo.Group) {
	runs := g.Group("/sync-runs")
	runs.POST("", h.RunStarted)
	runs.POST("/:id/succeeded", h.RunSucceeded)
	runs.POST("/:id/failed", h.RunFailed)
}

// List handles GET /connections/:connectionId/syncs
func (h *SyncHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	connectionID, err := ParseUUID(c, "connectionId")
	if err != nil {
		return err
	}

	list, err := h.scheduler.ListSyncs(ctx, connectionID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, list)
}

// Start handles POST /connections/:connectionId/syncs/:collectionKey/start
func (h *SyncHandler) Start(c echo.Context) error {
	ctx := c.Request().Context()

	connectionID, err := ParseUUID(c, "connectionId")
	if err != nil {
		return err
	}
	collectionKey := c.Param("collectionKey")
	if collectionKey == "" {
		return BadRequest("missing collectionKey")
	}

	sync, err := h.scheduler.StartSync(ctx, connectionID, collectionKey)
	if err != nil {
		return err
	}

	return SuccessResponse(c, sync)
}

// Stop handles POST /connections/:connectionId/syncs/:collectionKey/stop
func (h *SyncHandler) Stop(c echo.Context) error {
	ctx := c.Request().Context()

	connectionID, err := ParseUUID(c, "connectionId")
	if err != nil {
		return err
	}
	collectionKey := c.Param("collectionKey")
	if collectionKey == "" {
		return BadRequest("missing collectionKey")
	}

	sync, err := h.scheduler.StopSync(ctx, connectionID, collectionKey)
	if err != nil {
		return err
	}

	return SuccessResponse(c, sync)
}

// Trigger handles POST /connections/:connectionId/syncs/:collectionKey/trigger
func (h *SyncHandler) Trigger(c echo.Context) error {
	ctx := c.Request().Context()

	connectionID, err := ParseUUID(c, "connectionId")
	if err != nil {
		return err
	}
	collectionKey := c.Param("collectionKey")
	if collectionKey == "" {
		return BadRequest("missing collectionKey")
	}

	run, err := h.scheduler.TriggerSync(ctx, connectionID, collectionKey)
	if err != nil {
		return err
	}
	if run == nil {
		// The firing went through the schedule; the engine will report the
		// run when it starts.
		return NoContentResponse(c)
	}

	return SuccessResponse(c, run)
}

// UpdateFrequencyRequest is the request body for changing a sync's frequency
type UpdateFrequencyRequest struct {
	Frequency string `json:"frequency" validate:"required"`
}

// UpdateFrequency handles PUT /connections/:connectionId/syncs/:collectionKey/frequency
func (h *SyncHandler) UpdateFrequency(c echo.Context) error {
	ctx := c.Request().Context()

	connectionID, err := ParseUUID(c, "connectionId")
	if err != nil {
		return err
	}
	collectionKey := c.Param("collectionKey")
	if collectionKey == "" {
		return BadRequest("missing collectionKey")
	}

	var req UpdateFrequencyRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	if err := h.scheduler.UpdateFrequency(ctx, connectionID, collectionKey, req.Frequency); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// ListRuns handles GET /connections/:connectionId/syncs/:collectionKey/runs
func (h *SyncHandler) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	connectionID, err := ParseUUID(c, "connectionId")
	if err != nil {
		return err
	}
	collectionKey := c.Param("collectionKey")
	if collectionKey == "" {
		return BadRequest("missing collectionKey")
	}

	runs, err := h.scheduler.ListRuns(ctx, connectionID, collectionKey)
	if err != nil {
		return err
	}

	return SuccessResponse(c, runs)
}

// RunStartedRequest is the body sync workers report an engine-fired run with.
// Manual triggers already have a run row; schedule firings do not until the
// worker registers them here.
type RunStartedRequest struct {
	ConnectionID  uuid.UUID          `json:"connection_id" validate:"required"`
	CollectionKey string             `json:"collection_key" validate:"required"`
	WorkflowRunID string             `json:"workflow_run_id,omitempty"`
	Type          models.SyncRunType `json:"type,omitempty"`
}

// RunStarted handles POST /internal/sync-runs
func (h *SyncHandler) RunStarted(c echo.Context) error {
	ctx := c.Request().Context()

	var req RunStartedRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	runType := req.Type
	if runType == "" {
		runType = models.SyncRunTypeIncremental
	}

	run, err := h.scheduler.HandleRunStarted(ctx, req.ConnectionID, req.CollectionKey, req.WorkflowRunID, runType)
	if err != nil {
		return err
	}

	return CreatedResponse(c, run)
}

// RunResultRequest is the body sync workers report terminal run state with
type RunResultRequest struct {
	RecordsAdded   int   `json:"records_added" validate:"min=0"`
	RecordsUpdated int   `json:"records_updated" validate:"min=0"`
	RecordsDeleted int   `json:"records_deleted" validate:"min=0"`
	DurationMs     int64 `json:"duration_ms" validate:"min=0"`
}

// RunSucceeded handles POST /internal/sync-runs/:id/succeeded
func (h *SyncHandler) RunSucceeded(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req RunResultRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	if err := h.scheduler.HandleRunSuccess(ctx, id, req.RecordsAdded, req.RecordsUpdated, req.RecordsDeleted, req.DurationMs); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// RunFailed handles POST /internal/sync-runs/:id/failed
func (h *SyncHandler) RunFailed(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req RunResultRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	if err := h.scheduler.HandleRunFailure(ctx, id, req.DurationMs); err != nil {
		return err
	}

	return NoContentResponse(c)
}
