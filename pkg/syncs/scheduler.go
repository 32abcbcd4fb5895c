// Package syncs owns the sync lifecycle: the scheduler that turns an active
// connection/collection pair into a recurring schedule on the workflow
// engine, and the run lifecycle that tracks each execution from Running to
// a terminal state.
package syncs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/vine/pkg/metrics"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/repositories"
	"github.com/Ramsey-B/vine/pkg/tracing"
	"github.com/Ramsey-B/vine/pkg/workflow"
)

// ActivityLogger appends entries to an activity's audit trail
type ActivityLogger interface {
	Log(ctx context.Context, activityID uuid.UUID, level models.LogLevel, message string, payload map[string]any)
}

// Scheduler coordinates sync state between the database and the workflow
// engine. The engine owns schedule timing and overlap; this service owns
// the rows and keeps both sides consistent.
type Scheduler struct {
	syncs       repositories.SyncRepo
	runs        repositories.SyncRunRepo
	schedules   repositories.SyncScheduleRepo
	collections repositories.CollectionRepo
	engine      workflow.Client
	activities  ActivityLogger
	logger      ectologger.Logger
}

// NewScheduler creates a new sync scheduler
func NewScheduler(
	syncs repositories.SyncRepo,
	runs repositories.SyncRunRepo,
	schedules repositories.SyncScheduleRepo,
	collections repositories.CollectionRepo,
	engine workflow.Client,
	activities ActivityLogger,
	logger ectologger.Logger,
) *Scheduler {
	return &Scheduler{
		syncs:       syncs,
		runs:        runs,
		schedules:   schedules,
		collections: collections,
		engine:      engine,
		activities:  activities,
		logger:      logger,
	}
}

// scheduleID derives the deterministic engine schedule id for a sync, so a
// re-created schedule lands on the same engine handle.
func scheduleID(connectionID uuid.UUID, collectionKey string) string {
	return fmt.Sprintf("sync-%s-%s", connectionID, collectionKey)
}

// InitializeSync ensures sync state exists for a connection/collection pair.
// The Sync row is upserted idempotently; when the collection auto-starts,
// the first run begins immediately, otherwise the schedule is created paused
// so operators can resume it without re-running setup. Runs from the
// connection hook after every upsert, so repeat calls must be harmless.
func (s *Scheduler) InitializeSync(ctx context.Context, connection *models.Connection, collection models.Collection, activityID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.InitializeSync")
	defer span.End()

	if !collection.IsEnabled {
		return nil
	}

	sync := &models.Sync{
		ID:            uuid.New(),
		EnvironmentID: connection.EnvironmentID,
		ConnectionID:  connection.ID,
		IntegrationID: connection.IntegrationID,
		CollectionKey: collection.UniqueKey,
		Status:        models.SyncStatusStopped,
		Frequency:     collection.DefaultSyncFrequency,
	}
	if err := s.syncs.Upsert(ctx, sync); err != nil {
		return err
	}

	if !collection.AutoStartSync {
		if err := s.ensureSchedule(ctx, sync, models.SyncScheduleStatusPaused); err != nil {
			s.activities.Log(ctx, activityID, models.LogLevelError,
				fmt.Sprintf("Failed to create schedule for collection %s", collection.UniqueKey), nil)
			return err
		}
		return nil
	}

	if err := s.startSync(ctx, sync, activityID); err != nil {
		s.activities.Log(ctx, activityID, models.LogLevelError,
			fmt.Sprintf("Failed to start sync for collection %s", collection.UniqueKey), nil)
		return err
	}

	s.activities.Log(ctx, activityID, models.LogLevelInfo,
		fmt.Sprintf("Sync started for collection %s", collection.UniqueKey), nil)
	return nil
}

// StartSync begins or resumes syncing a collection for a connection. Only
// valid while the collection is enabled.
func (s *Scheduler) StartSync(ctx context.Context, connectionID uuid.UUID, collectionKey string) (*models.Sync, error) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.StartSync")
	defer span.End()

	sync, err := s.loadEnabledSync(ctx, connectionID, collectionKey)
	if err != nil {
		return nil, err
	}

	if err := s.startSync(ctx, sync, uuid.Nil); err != nil {
		return nil, err
	}
	return sync, nil
}

// startSync creates the initial run when none has succeeded or is in
// flight, makes sure the engine schedule exists and is running, and marks
// the sync Running.
func (s *Scheduler) startSync(ctx context.Context, sync *models.Sync, activityID uuid.UUID) error {
	runs, err := s.runs.List(ctx, sync.ConnectionID, sync.CollectionKey)
	if err != nil {
		return err
	}

	needsInitialRun := len(runs) == 0
	if len(runs) > 0 {
		latest := runs[0]
		needsInitialRun = latest.Status == models.SyncRunStatusFailed || latest.Status == models.SyncRunStatusStopped
	}

	if needsInitialRun {
		if _, err := s.startRun(ctx, sync, models.SyncRunTypeInitial, activityID); err != nil {
			return err
		}
	}

	if err := s.ensureSchedule(ctx, sync, models.SyncScheduleStatusRunning); err != nil {
		return err
	}

	return s.syncs.UpdateStatus(ctx, sync.ConnectionID, sync.CollectionKey, models.SyncStatusRunning)
}

// ensureSchedule reconciles the schedule row and the engine's schedule to
// the desired status, creating either side if it is missing.
func (s *Scheduler) ensureSchedule(ctx context.Context, sync *models.Sync, status models.SyncScheduleStatus) error {
	interval, offset, err := ComputeIntervalOffset(sync.Frequency, time.Now())
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid frequency %q: %v", sync.Frequency, err)
	}

	handle := scheduleID(sync.ConnectionID, sync.CollectionKey)
	spec := workflow.ScheduleSpec{
		ScheduleID:    handle,
		Interval:      interval,
		Offset:        offset,
		OverlapPolicy: workflow.OverlapBufferOne,
		Paused:        status == models.SyncScheduleStatusPaused,
		Args: workflow.SyncArgs{
			EnvironmentID: sync.EnvironmentID.String(),
			ConnectionID:  sync.ConnectionID.String(),
			IntegrationID: sync.IntegrationID.String(),
			CollectionKey: sync.CollectionKey,
			LastSyncedAt:  sync.LastSyncedAt,
		},
	}

	schedule, err := s.schedules.Get(ctx, sync.ConnectionID, sync.CollectionKey)
	if err != nil {
		return err
	}

	if schedule == nil {
		if err := s.engine.CreateSchedule(ctx, spec); err != nil {
			return fmt.Errorf("failed to create engine schedule %s: %w", handle, err)
		}
		schedule = &models.SyncSchedule{
			ID:            uuid.New(),
			EnvironmentID: sync.EnvironmentID,
			ConnectionID:  sync.ConnectionID,
			CollectionKey: sync.CollectionKey,
			Frequency:     sync.Frequency,
			Offset:        offset.Milliseconds(),
			Status:        status,
		}
		if err := s.schedules.Create(ctx, schedule); err != nil {
			return err
		}
		if status == models.SyncScheduleStatusRunning {
			metrics.SyncSchedulesActive.Inc()
		}
		return nil
	}

	// The row survived but the engine may have lost the schedule (engine
	// state reset, migration); recreate it before reconciling status.
	state, err := s.engine.DescribeSchedule(ctx, scheduleID(sync.ConnectionID, sync.CollectionKey))
	if err != nil {
		return err
	}
	if state == nil {
		if err := s.engine.CreateSchedule(ctx, spec); err != nil {
			return fmt.Errorf("failed to recreate engine schedule %s: %w", handle, err)
		}
		state = &workflow.ScheduleState{ScheduleID: handle, Paused: spec.Paused}
	}

	switch status {
	case models.SyncScheduleStatusRunning:
		if state.Paused {
			if err := s.engine.UnpauseSchedule(ctx, handle); err != nil {
				return err
			}
		}
	case models.SyncScheduleStatusPaused:
		if !state.Paused {
			if err := s.engine.PauseSchedule(ctx, handle); err != nil {
				return err
			}
		}
	}

	if schedule.Status != status {
		if err := s.schedules.UpdateStatus(ctx, schedule.ID, status); err != nil {
			return err
		}
		if status == models.SyncScheduleStatusRunning {
			metrics.SyncSchedulesActive.Inc()
		} else {
			metrics.SyncSchedulesActive.Dec()
		}
	}
	return nil
}

// StopSync pauses the schedule and stops any in-flight runs. Idempotent:
// stopping an already-stopped sync succeeds as long as the collection is
// still enabled.
func (s *Scheduler) StopSync(ctx context.Context, connectionID uuid.UUID, collectionKey string) (*models.Sync, error) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.StopSync")
	defer span.End()

	sync, err := s.loadEnabledSync(ctx, connectionID, collectionKey)
	if err != nil {
		return nil, err
	}

	schedule, err := s.schedules.Get(ctx, connectionID, collectionKey)
	if err != nil {
		return nil, err
	}
	if schedule != nil && schedule.Status != models.SyncScheduleStatusPaused {
		if err := s.engine.PauseSchedule(ctx, scheduleID(connectionID, collectionKey)); err != nil {
			return nil, err
		}
		if err := s.schedules.UpdateStatus(ctx, schedule.ID, models.SyncScheduleStatusPaused); err != nil {
			return nil, err
		}
		metrics.SyncSchedulesActive.Dec()
	}

	runs, err := s.runs.List(ctx, connectionID, collectionKey)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if run.Status != models.SyncRunStatusRunning {
			continue
		}
		if run.WorkflowRunID != nil {
			if err := s.engine.TerminateRun(ctx, *run.WorkflowRunID); err != nil {
				s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"sync_run_id":     run.ID,
					"workflow_run_id": *run.WorkflowRunID,
				}).Error("failed to terminate workflow run")
			}
		}
		if err := s.runs.UpdateStatus(ctx, run.ID, models.SyncRunStatusStopped); err != nil {
			return nil, err
		}
	}

	if err := s.syncs.UpdateStatus(ctx, connectionID, collectionKey, models.SyncStatusStopped); err != nil {
		return nil, err
	}
	sync.Status = models.SyncStatusStopped
	return sync, nil
}

// TriggerSync requests an immediate execution. Rejected while a run is in
// flight; a sync that has never succeeded gets an initial run, otherwise an
// incremental one (through the schedule when it is running, so the engine's
// overlap policy applies).
func (s *Scheduler) TriggerSync(ctx context.Context, connectionID uuid.UUID, collectionKey string) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.TriggerSync")
	defer span.End()

	sync, err := s.loadEnabledSync(ctx, connectionID, collectionKey)
	if err != nil {
		return nil, err
	}

	runs, err := s.runs.List(ctx, connectionID, collectionKey)
	if err != nil {
		return nil, err
	}

	hasSucceeded := false
	for _, run := range runs {
		if run.Status == models.SyncRunStatusRunning {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict,
				"a sync run is already in progress for collection %s", collectionKey)
		}
		if run.Status == models.SyncRunStatusSucceeded {
			hasSucceeded = true
		}
	}

	if !hasSucceeded {
		return s.startRun(ctx, sync, models.SyncRunTypeInitial, uuid.Nil)
	}

	schedule, err := s.schedules.Get(ctx, connectionID, collectionKey)
	if err != nil {
		return nil, err
	}
	if schedule == nil || schedule.Status == models.SyncScheduleStatusPaused {
		return s.startRun(ctx, sync, models.SyncRunTypeIncremental, uuid.Nil)
	}

	if err := s.engine.TriggerSchedule(ctx, scheduleID(connectionID, collectionKey)); err != nil {
		return nil, err
	}
	return nil, nil
}

// startRun creates a Running SyncRun row and starts its execution on the
// engine. A new firing always creates a new run; terminal rows are never
// reused.
func (s *Scheduler) startRun(ctx context.Context, sync *models.Sync, runType models.SyncRunType, activityID uuid.UUID) (*models.SyncRun, error) {
	run := &models.SyncRun{
		ID:            uuid.New(),
		EnvironmentID: sync.EnvironmentID,
		ConnectionID:  sync.ConnectionID,
		CollectionKey: sync.CollectionKey,
		Status:        models.SyncRunStatusRunning,
		Type:          runType,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	args := workflow.SyncArgs{
		EnvironmentID: sync.EnvironmentID.String(),
		ConnectionID:  sync.ConnectionID.String(),
		IntegrationID: sync.IntegrationID.String(),
		CollectionKey: sync.CollectionKey,
		SyncRunID:     run.ID.String(),
		LastSyncedAt:  sync.LastSyncedAt,
	}
	if activityID != uuid.Nil {
		args.ActivityID = activityID.String()
	}

	var workflowRunID string
	var err error
	if runType == models.SyncRunTypeInitial {
		workflowRunID, err = s.engine.StartInitialSync(ctx, args)
	} else {
		workflowRunID, err = s.engine.TriggerIncrementalSync(ctx, args)
	}
	if err != nil {
		// The engine never saw the run; close the row out so it does not
		// block future triggers.
		if markErr := s.runs.UpdateStatus(ctx, run.ID, models.SyncRunStatusStopped); markErr != nil {
			s.logger.WithContext(ctx).WithError(markErr).WithFields(map[string]any{
				"sync_run_id": run.ID,
			}).Error("failed to stop orphaned sync run")
		}
		return nil, fmt.Errorf("failed to start %s sync execution: %w", runType, err)
	}

	if err := s.runs.SetWorkflowRunID(ctx, run.ID, workflowRunID); err != nil {
		return nil, err
	}
	run.WorkflowRunID = &workflowRunID

	return run, nil
}

// HandleRunStarted records an execution the engine began on its own from a
// schedule firing. Manual triggers already have their row from startRun;
// workers picking up a scheduled firing register it here to get a run id to
// report terminal state against.
func (s *Scheduler) HandleRunStarted(ctx context.Context, connectionID uuid.UUID, collectionKey, workflowRunID string, runType models.SyncRunType) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.HandleRunStarted")
	defer span.End()

	sync, err := s.syncs.Get(ctx, connectionID, collectionKey)
	if err != nil {
		return nil, err
	}

	run := &models.SyncRun{
		ID:            uuid.New(),
		EnvironmentID: sync.EnvironmentID,
		ConnectionID:  connectionID,
		CollectionKey: collectionKey,
		Status:        models.SyncRunStatusRunning,
		Type:          runType,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	if workflowRunID != "" {
		if err := s.runs.SetWorkflowRunID(ctx, run.ID, workflowRunID); err != nil {
			return nil, err
		}
		run.WorkflowRunID = &workflowRunID
	}

	return run, nil
}

// HandleRunSuccess records a successful execution reported by the engine
// and advances the sync's high-water mark.
func (s *Scheduler) HandleRunSuccess(ctx context.Context, runID uuid.UUID, added, updated, deleted int, durationMs int64) error {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.HandleRunSuccess")
	defer span.End()

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}

	if err := s.runs.MarkSucceeded(ctx, runID, added, updated, deleted, durationMs); err != nil {
		return err
	}

	if err := s.syncs.SetLastSyncedAt(ctx, run.ConnectionID, run.CollectionKey, time.Now().Unix()); err != nil {
		return err
	}

	if sync, err := s.syncs.Get(ctx, run.ConnectionID, run.CollectionKey); err == nil {
		metrics.RecordSyncRun(run.EnvironmentID.String(), sync.IntegrationID.String(), run.CollectionKey,
			"success", float64(durationMs)/1000)
	}
	return nil
}

// HandleRunFailure records a failed execution: the run goes terminal, the
// schedule pauses so a broken collection stops firing, and the sync is
// marked Error for operators.
func (s *Scheduler) HandleRunFailure(ctx context.Context, runID uuid.UUID, durationMs int64) error {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.HandleRunFailure")
	defer span.End()

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}

	if err := s.runs.MarkFailed(ctx, runID, durationMs); err != nil {
		return err
	}

	schedule, err := s.schedules.Get(ctx, run.ConnectionID, run.CollectionKey)
	if err != nil {
		return err
	}
	if schedule != nil && schedule.Status != models.SyncScheduleStatusPaused {
		if err := s.engine.PauseSchedule(ctx, scheduleID(run.ConnectionID, run.CollectionKey)); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"sync_run_id": runID,
			}).Error("failed to pause schedule after run failure")
		} else if err := s.schedules.UpdateStatus(ctx, schedule.ID, models.SyncScheduleStatusPaused); err != nil {
			return err
		} else {
			metrics.SyncSchedulesActive.Dec()
		}
	}

	if err := s.syncs.UpdateStatus(ctx, run.ConnectionID, run.CollectionKey, models.SyncStatusError); err != nil {
		return err
	}

	if sync, err := s.syncs.Get(ctx, run.ConnectionID, run.CollectionKey); err == nil {
		metrics.RecordSyncRun(run.EnvironmentID.String(), sync.IntegrationID.String(), run.CollectionKey,
			"failed", float64(durationMs)/1000)
	}
	return nil
}

// ListSyncs returns the syncs for a connection
func (s *Scheduler) ListSyncs(ctx context.Context, connectionID uuid.UUID) ([]models.Sync, error) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.ListSyncs")
	defer span.End()

	return s.syncs.ListByConnection(ctx, connectionID)
}

// ListRuns returns the runs for a connection/collection pair, newest first
func (s *Scheduler) ListRuns(ctx context.Context, connectionID uuid.UUID, collectionKey string) ([]models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.ListRuns")
	defer span.End()

	return s.runs.List(ctx, connectionID, collectionKey)
}

// UpdateFrequency changes a sync's frequency and pushes the recomputed
// interval and offset to the engine schedule.
func (s *Scheduler) UpdateFrequency(ctx context.Context, connectionID uuid.UUID, collectionKey, frequency string) error {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.UpdateFrequency")
	defer span.End()

	interval, offset, err := ComputeIntervalOffset(frequency, time.Now())
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid frequency %q: %v", frequency, err)
	}

	if err := s.syncs.UpdateFrequency(ctx, connectionID, collectionKey, frequency); err != nil {
		return err
	}

	schedule, err := s.schedules.Get(ctx, connectionID, collectionKey)
	if err != nil {
		return err
	}
	if schedule == nil {
		return nil
	}

	if err := s.engine.UpdateSchedule(ctx, scheduleID(connectionID, collectionKey), interval, offset); err != nil {
		return err
	}
	return s.schedules.UpdateTiming(ctx, schedule.ID, frequency, offset.Milliseconds())
}

// loadEnabledSync fetches the sync and verifies its collection is enabled.
// Manual operations are rejected for disabled collections.
func (s *Scheduler) loadEnabledSync(ctx context.Context, connectionID uuid.UUID, collectionKey string) (*models.Sync, error) {
	sync, err := s.syncs.Get(ctx, connectionID, collectionKey)
	if err != nil {
		return nil, err
	}

	collection, err := s.collections.GetByKey(ctx, sync.IntegrationID, collectionKey)
	if err != nil {
		return nil, err
	}
	if !collection.IsEnabled {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "collection %s is disabled", collectionKey)
	}

	return sync, nil
}
