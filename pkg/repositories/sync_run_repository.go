package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

const syncRunsTable = "sync_runs"

var syncRunStruct = database.NewStruct(new(models.SyncRun))

// SyncRunRepository handles database operations for sync runs
type SyncRunRepository struct {
	*Repository
}

// NewSyncRunRepository creates a new sync run repository
func NewSyncRunRepository(db database.DB, logger ectologger.Logger) *SyncRunRepository {
	return &SyncRunRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new sync run
func (r *SyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.Create")
	defer span.End()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(syncRunsTable).
		Cols("id", "environment_id", "connection_id", "collection_key", "workflow_run_id",
			"status", "type", "records_added", "records_updated", "records_deleted",
			"duration_ms", "created_at", "updated_at").
		Values(run.ID, run.EnvironmentID, run.ConnectionID, run.CollectionKey, run.WorkflowRunID,
			run.Status, run.Type, run.RecordsAdded, run.RecordsUpdated, run.RecordsDeleted,
			run.DurationMs, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_run_id":    run.ID,
			"connection_id":  run.ConnectionID,
			"collection_key": run.CollectionKey,
		}).Error("failed to create sync run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create sync run")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"sync_run_id": run.ID,
	}).Debugf("Created %s", syncRunsTable)
	return nil
}

// GetByID retrieves a sync run by ID
func (r *SyncRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.GetByID")
	defer span.End()

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var run models.SyncRun
	err := r.DB().GetContext(ctx, &run, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "sync run %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_run_id": id,
		}).Error("failed to get sync run by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sync run by ID")
	}

	return &run, nil
}

// List retrieves the runs for (connection, collection), newest first
func (r *SyncRunRepository) List(ctx context.Context, connectionID uuid.UUID, collectionKey string) ([]models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.List")
	defer span.End()

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.Where(sb.Equal("connection_id", connectionID), sb.Equal("collection_key", collectionKey))
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	var runs []models.SyncRun
	err := r.DB().SelectContext(ctx, &runs, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_id":  connectionID,
			"collection_key": collectionKey,
		}).Error("failed to list sync runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sync runs")
	}

	return runs, nil
}

// SetWorkflowRunID attaches the workflow engine's run id to a sync run
func (r *SyncRunRepository) SetWorkflowRunID(ctx context.Context, id uuid.UUID, workflowRunID string) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.SetWorkflowRunID")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable).
		Set(
			ub.Assign("workflow_run_id", workflowRunID),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	_, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_run_id": id,
		}).Error("failed to set workflow run id")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set workflow run id")
	}

	return nil
}

// UpdateStatus transitions a non-terminal run to the given status. Terminal
// runs are immutable: the WHERE clause refuses to touch them, and the caller
// gets a 409 back.
func (r *SyncRunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SyncRunStatus) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable).
		Set(
			ub.Assign("status", status),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("id", id),
			ub.Equal("status", models.SyncRunStatusRunning),
		)
	ub.SQL("RETURNING id")

	query, args := ub.Build()
	var updatedID uuid.UUID
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&updatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusConflict, "sync run %s is not running", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_run_id": id,
			"status":      status,
		}).Error("failed to update sync run status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update sync run status")
	}

	return nil
}

// MarkSucceeded terminates a running run with its record deltas and duration
func (r *SyncRunRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, added, updated, deleted int, durationMs int64) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.MarkSucceeded")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable).
		Set(
			ub.Assign("status", models.SyncRunStatusSucceeded),
			ub.Assign("records_added", added),
			ub.Assign("records_updated", updated),
			ub.Assign("records_deleted", deleted),
			ub.Assign("duration_ms", durationMs),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("id", id),
			ub.Equal("status", models.SyncRunStatusRunning),
		)
	ub.SQL("RETURNING id")

	query, args := ub.Build()
	var updatedID uuid.UUID
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&updatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusConflict, "sync run %s is not running", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_run_id": id,
		}).Error("failed to mark sync run succeeded")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark sync run succeeded")
	}

	return nil
}

// MarkFailed terminates a running run with its duration and no deltas
func (r *SyncRunRepository) MarkFailed(ctx context.Context, id uuid.UUID, durationMs int64) error {
	ctx, span := tracing.StartSpan(ctx, "SyncRunRepository.MarkFailed")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable).
		Set(
			ub.Assign("status", models.SyncRunStatusFailed),
			ub.Assign("duration_ms", durationMs),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("id", id),
			ub.Equal("status", models.SyncRunStatusRunning),
		)
	ub.SQL("RETURNING id")

	query, args := ub.Build()
	var updatedID uuid.UUID
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&updatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusConflict, "sync run %s is not running", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"sync_run_id": id,
		}).Error("failed to mark sync run failed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark sync run failed")
	}

	return nil
}
