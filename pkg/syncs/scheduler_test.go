package syncs_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/syncs"
	"github.com/Ramsey-B/vine/pkg/workflow"
)

func testLogger() ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
}

func pairKey(connectionID uuid.UUID, collectionKey string) string {
	return fmt.Sprintf("%s/%s", connectionID, collectionKey)
}

type fakeSyncRepo struct {
	syncs map[string]*models.Sync
}

func newFakeSyncRepo() *fakeSyncRepo {
	return &fakeSyncRepo{syncs: map[string]*models.Sync{}}
}

func (r *fakeSyncRepo) Upsert(_ context.Context, sync *models.Sync) error {
	key := pairKey(sync.ConnectionID, sync.CollectionKey)
	if existing, ok := r.syncs[key]; ok {
		*sync = *existing
		return nil
	}
	copied := *sync
	r.syncs[key] = &copied
	return nil
}

func (r *fakeSyncRepo) Get(_ context.Context, connectionID uuid.UUID, collectionKey string) (*models.Sync, error) {
	sync, ok := r.syncs[pairKey(connectionID, collectionKey)]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "sync not found")
	}
	copied := *sync
	return &copied, nil
}

func (r *fakeSyncRepo) ListByConnection(_ context.Context, connectionID uuid.UUID) ([]models.Sync, error) {
	var out []models.Sync
	for _, sync := range r.syncs {
		if sync.ConnectionID == connectionID {
			out = append(out, *sync)
		}
	}
	return out, nil
}

func (r *fakeSyncRepo) UpdateStatus(_ context.Context, connectionID uuid.UUID, collectionKey string, status models.SyncStatus) error {
	sync, ok := r.syncs[pairKey(connectionID, collectionKey)]
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "sync not found")
	}
	sync.Status = status
	return nil
}

func (r *fakeSyncRepo) UpdateFrequency(_ context.Context, connectionID uuid.UUID, collectionKey string, frequency string) error {
	sync, ok := r.syncs[pairKey(connectionID, collectionKey)]
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "sync not found")
	}
	sync.Frequency = frequency
	return nil
}

func (r *fakeSyncRepo) SetLastSyncedAt(_ context.Context, connectionID uuid.UUID, collectionKey string, lastSyncedAt int64) error {
	sync, ok := r.syncs[pairKey(connectionID, collectionKey)]
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "sync not found")
	}
	sync.LastSyncedAt = &lastSyncedAt
	return nil
}

type fakeSyncRunRepo struct {
	runs []*models.SyncRun
}

func (r *fakeSyncRunRepo) Create(_ context.Context, run *models.SyncRun) error {
	copied := *run
	r.runs = append(r.runs, &copied)
	return nil
}

func (r *fakeSyncRunRepo) GetByID(_ context.Context, id uuid.UUID) (*models.SyncRun, error) {
	for _, run := range r.runs {
		if run.ID == id {
			copied := *run
			return &copied, nil
		}
	}
	return nil, httperror.NewHTTPError(http.StatusNotFound, "sync run not found")
}

// List returns newest first, matching the repository's ordering
func (r *fakeSyncRunRepo) List(_ context.Context, connectionID uuid.UUID, collectionKey string) ([]models.SyncRun, error) {
	var out []models.SyncRun
	for i := len(r.runs) - 1; i >= 0; i-- {
		run := r.runs[i]
		if run.ConnectionID == connectionID && run.CollectionKey == collectionKey {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (r *fakeSyncRunRepo) SetWorkflowRunID(_ context.Context, id uuid.UUID, workflowRunID string) error {
	for _, run := range r.runs {
		if run.ID == id {
			run.WorkflowRunID = &workflowRunID
			return nil
		}
	}
	return httperror.NewHTTPError(http.StatusNotFound, "sync run not found")
}

func (r *fakeSyncRunRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.SyncRunStatus) error {
	for _, run := range r.runs {
		if run.ID == id {
			run.Status = status
			return nil
		}
	}
	return httperror.NewHTTPError(http.StatusNotFound, "sync run not found")
}

func (r *fakeSyncRunRepo) MarkSucceeded(_ context.Context, id uuid.UUID, added, updated, deleted int, durationMs int64) error {
	for _, run := range r.runs {
		if run.ID == id {
			run.Status = models.SyncRunStatusSucceeded
			run.RecordsAdded = &added
			run.RecordsUpdated = &updated
			run.RecordsDeleted = &deleted
			run.DurationMs = &durationMs
			return nil
		}
	}
	return httperror.NewHTTPError(http.StatusNotFound, "sync run not found")
}

func (r *fakeSyncRunRepo) MarkFailed(_ context.Context, id uuid.UUID, durationMs int64) error {
	for _, run := range r.runs {
		if run.ID == id {
			run.Status = models.SyncRunStatusFailed
			run.DurationMs = &durationMs
			return nil
		}
	}
	return httperror.NewHTTPError(http.StatusNotFound, "sync run not found")
}

type fakeScheduleRepo struct {
	schedules map[string]*models.SyncSchedule
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{schedules: map[string]*models.SyncSchedule{}}
}

func (r *fakeScheduleRepo) Create(_ context.Context, schedule *models.SyncSchedule) error {
	copied := *schedule
	r.schedules[pairKey(schedule.ConnectionID, schedule.CollectionKey)] = &copied
	return nil
}

func (r *fakeScheduleRepo) Get(_ context.Context, connectionID uuid.UUID, collectionKey string) (*models.SyncSchedule, error) {
	schedule, ok := r.schedules[pairKey(connectionID, collectionKey)]
	if !ok {
		return nil, nil
	}
	copied := *schedule
	return &copied, nil
}

func (r *fakeScheduleRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.SyncScheduleStatus) error {
	for _, schedule := range r.schedules {
		if schedule.ID == id {
			schedule.Status = status
			return nil
		}
	}
	return httperror.NewHTTPError(http.StatusNotFound, "sync schedule not found")
}

func (r *fakeScheduleRepo) UpdateTiming(_ context.Context, id uuid.UUID, frequency string, offsetMs int64) error {
	for _, schedule := range r.schedules {
		if schedule.ID == id {
			schedule.Frequency = frequency
			schedule.Offset = offsetMs
			return nil
		}
	}
	return httperror.NewHTTPError(http.StatusNotFound, "sync schedule not found")
}

type fakeCollectionRepo struct {
	collections map[string]*models.Collection
}

func newFakeCollectionRepo() *fakeCollectionRepo {
	return &fakeCollectionRepo{collections: map[string]*models.Collection{}}
}

func (r *fakeCollectionRepo) add(collection models.Collection) {
	r.collections[pairKey(collection.IntegrationID, collection.UniqueKey)] = &collection
}

func (r *fakeCollectionRepo) GetByKey(_ context.Context, integrationID uuid.UUID, uniqueKey string) (*models.Collection, error) {
	collection, ok := r.collections[pairKey(integrationID, uniqueKey)]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "collection not found")
	}
	copied := *collection
	return &copied, nil
}

func (r *fakeCollectionRepo) ListByIntegration(_ context.Context, integrationID uuid.UUID) ([]models.Collection, error) {
	var out []models.Collection
	for _, collection := range r.collections {
		if collection.IntegrationID == integrationID {
			out = append(out, *collection)
		}
	}
	return out, nil
}

func (r *fakeCollectionRepo) ListEnabledByIntegration(ctx context.Context, integrationID uuid.UUID) ([]models.Collection, error) {
	all, _ := r.ListByIntegration(ctx, integrationID)
	var out []models.Collection
	for _, collection := range all {
		if collection.IsEnabled {
			out = append(out, collection)
		}
	}
	return out, nil
}

type recordedLog struct {
	level   models.LogLevel
	message string
}

type fakeActivityLogger struct {
	logs []recordedLog
}

func (l *fakeActivityLogger) Log(_ context.Context, _ uuid.UUID, level models.LogLevel, message string, _ map[string]any) {
	l.logs = append(l.logs, recordedLog{level: level, message: message})
}

type schedulerFixture struct {
	scheduler   *syncs.Scheduler
	syncs       *fakeSyncRepo
	runs        *fakeSyncRunRepo
	schedules   *fakeScheduleRepo
	collections *fakeCollectionRepo
	engine      *workflow.InMemoryClient
	activities  *fakeActivityLogger

	connection *models.Connection
	collection models.Collection
}

func newSchedulerFixture(t *testing.T, autoStart bool) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		syncs:       newFakeSyncRepo(),
		runs:        &fakeSyncRunRepo{},
		schedules:   newFakeScheduleRepo(),
		collections: newFakeCollectionRepo(),
		engine:      workflow.NewInMemoryClient(),
		activities:  &fakeActivityLogger{},
	}
	f.scheduler = syncs.NewScheduler(f.syncs, f.runs, f.schedules, f.collections, f.engine, f.activities, testLogger())

	f.connection = &models.Connection{
		ID:            uuid.New(),
		EnvironmentID: uuid.New(),
		IntegrationID: uuid.New(),
	}
	f.collection = models.Collection{
		ID:                   uuid.New(),
		EnvironmentID:        f.connection.EnvironmentID,
		IntegrationID:        f.connection.IntegrationID,
		UniqueKey:            "contacts",
		IsEnabled:            true,
		AutoStartSync:        autoStart,
		DefaultSyncFrequency: "30m",
	}
	f.collections.add(f.collection)

	return f
}

func TestInitializeSync_AutoStart(t *testing.T) {
	f := newSchedulerFixture(t, true)
	ctx := context.Background()

	err := f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New())
	require.NoError(t, err)

	sync, err := f.syncs.Get(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusRunning, sync.Status)

	runs, _ := f.runs.List(ctx, f.connection.ID, "contacts")
	require.Len(t, runs, 1)
	assert.Equal(t, models.SyncRunTypeInitial, runs[0].Type)
	assert.Equal(t, models.SyncRunStatusRunning, runs[0].Status)
	require.NotNil(t, runs[0].WorkflowRunID)

	schedule, err := f.schedules.Get(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	require.NotNil(t, schedule)
	assert.Equal(t, models.SyncScheduleStatusRunning, schedule.Status)

	require.Len(t, f.engine.StartedRuns, 1)
	assert.Equal(t, f.connection.ID.String(), f.engine.StartedRuns[0].ConnectionID)
}

func TestInitializeSync_DormantWithoutAutoStart(t *testing.T) {
	f := newSchedulerFixture(t, false)
	ctx := context.Background()

	err := f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New())
	require.NoError(t, err)

	sync, err := f.syncs.Get(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusStopped, sync.Status)

	// The schedule exists but is dormant and no execution started.
	schedule, err := f.schedules.Get(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	require.NotNil(t, schedule)
	assert.Equal(t, models.SyncScheduleStatusPaused, schedule.Status)

	state, err := f.engine.DescribeSchedule(ctx, fmt.Sprintf("sync-%s-contacts", f.connection.ID))
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Paused)

	runs, _ := f.runs.List(ctx, f.connection.ID, "contacts")
	assert.Empty(t, runs)
	assert.Empty(t, f.engine.StartedRuns)
}

func TestInitializeSync_SkipsDisabledCollection(t *testing.T) {
	f := newSchedulerFixture(t, true)
	f.collection.IsEnabled = false

	err := f.scheduler.InitializeSync(context.Background(), f.connection, f.collection, uuid.New())
	require.NoError(t, err)

	_, err = f.syncs.Get(context.Background(), f.connection.ID, "contacts")
	assert.Error(t, err)
}

func TestInitializeSync_Idempotent(t *testing.T) {
	f := newSchedulerFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))
	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))

	assert.Len(t, f.schedules.schedules, 1)
	assert.Empty(t, f.engine.StartedRuns)
}

func TestStartSync_ResumesPausedSchedule(t *testing.T) {
	f := newSchedulerFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))

	sync, err := f.scheduler.StartSync(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	require.NotNil(t, sync)

	stored, err := f.syncs.Get(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusRunning, stored.Status)

	state, err := f.engine.DescribeSchedule(ctx, fmt.Sprintf("sync-%s-contacts", f.connection.ID))
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.Paused)

	runs, _ := f.runs.List(ctx, f.connection.ID, "contacts")
	require.Len(t, runs, 1)
	assert.Equal(t, models.SyncRunTypeInitial, runs[0].Type)
}

func TestStartSync_DisabledCollectionRejected(t *testing.T) {
	f := newSchedulerFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))

	f.collection.IsEnabled = false
	f.collections.add(f.collection)

	_, err := f.scheduler.StartSync(ctx, f.connection.ID, "contacts")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestStopSync_TerminatesRunningRunsAndPauses(t *testing.T) {
	f := newSchedulerFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))

	sync, err := f.scheduler.StopSync(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusStopped, sync.Status)

	runs, _ := f.runs.List(ctx, f.connection.ID, "contacts")
	require.Len(t, runs, 1)
	assert.Equal(t, models.SyncRunStatusStopped, runs[0].Status)

	state, err := f.engine.DescribeSchedule(ctx, fmt.Sprintf("sync-%s-contacts", f.connection.ID))
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Paused)
}

func TestStopSync_Idempotent(t *testing.T) {
	f := newSchedulerFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))

	_, err := f.scheduler.StopSync(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	_, err = f.scheduler.StopSync(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
}

func TestTriggerSync_RejectedWhileRunInFlight(t *testing.T) {
	f := newSchedulerFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))

	_, err := f.scheduler.TriggerSync(ctx, f.connection.ID, "contacts")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestTriggerSync_InitialRunWhenNeverSucceeded(t *testing.T) {
	f := newSchedulerFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))

	run, err := f.scheduler.TriggerSync(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.SyncRunTypeInitial, run.Type)
	assert.Equal(t, models.SyncRunStatusRunning, run.Status)
}

func TestTriggerSync_ThroughRunningSchedule(t *testing.T) {
	f := newSchedulerFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))

	// Finish the initial run so the sync has succeeded once.
	runs, _ := f.runs.List(ctx, f.connection.ID, "contacts")
	require.Len(t, runs, 1)
	require.NoError(t, f.scheduler.HandleRunSuccess(ctx, runs[0].ID, 10, 2, 1, 1500))

	started := len(f.engine.StartedRuns)

	run, err := f.scheduler.TriggerSync(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	// The firing went through the schedule; the engine reports the run.
	assert.Nil(t, run)
	assert.Len(t, f.engine.StartedRuns, started+1)
}

func TestTriggerSchedule_BufferOneOverlap(t *testing.T) {
	engine := workflow.NewInMemoryClient()
	ctx := context.Background()

	spec := workflow.ScheduleSpec{
		ScheduleID:    "sync-test-contacts",
		OverlapPolicy: workflow.OverlapBufferOne,
	}
	require.NoError(t, engine.CreateSchedule(ctx, spec))

	// First firing starts a run; the next two land while it is in flight,
	// so exactly one is buffered.
	require.NoError(t, engine.TriggerSchedule(ctx, spec.ScheduleID))
	require.NoError(t, engine.TriggerSchedule(ctx, spec.ScheduleID))
	require.NoError(t, engine.TriggerSchedule(ctx, spec.ScheduleID))
	assert.Len(t, engine.StartedRuns, 1)

	engine.CompleteRun(spec.ScheduleID)
	assert.Len(t, engine.StartedRuns, 2)

	// The buffer held one firing, not two.
	engine.CompleteRun(spec.ScheduleID)
	assert.Len(t, engine.StartedRuns, 2)
}

func TestHandleRunStarted_RegistersScheduleFiredRun(t *testing.T) {
	f := newSchedulerFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))

	// A schedule firing happens inside the engine; the worker registers the
	// run to get an id it can report terminal state against.
	run, err := f.scheduler.HandleRunStarted(ctx, f.connection.ID, "contacts", "wf-run-42", models.SyncRunTypeIncremental)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.SyncRunStatusRunning, run.Status)
	assert.Equal(t, models.SyncRunTypeIncremental, run.Type)
	assert.Equal(t, f.connection.EnvironmentID, run.EnvironmentID)
	require.NotNil(t, run.WorkflowRunID)
	assert.Equal(t, "wf-run-42", *run.WorkflowRunID)

	require.NoError(t, f.scheduler.HandleRunSuccess(ctx, run.ID, 3, 0, 0, 700))
	completed, err := f.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusSucceeded, completed.Status)
}

func TestHandleRunStarted_UnknownSyncRejected(t *testing.T) {
	f := newSchedulerFixture(t, false)

	_, err := f.scheduler.HandleRunStarted(context.Background(), uuid.New(), "contacts", "", models.SyncRunTypeIncremental)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestHandleRunSuccess_AdvancesHighWaterMark(t *testing.T) {
	f := newSchedulerFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))
	runs, _ := f.runs.List(ctx, f.connection.ID, "contacts")
	require.Len(t, runs, 1)

	require.NoError(t, f.scheduler.HandleRunSuccess(ctx, runs[0].ID, 10, 2, 1, 1500))

	updated, err := f.runs.GetByID(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusSucceeded, updated.Status)
	assert.Equal(t, 10, *updated.RecordsAdded)
	assert.Equal(t, int64(1500), *updated.DurationMs)

	sync, err := f.syncs.Get(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	require.NotNil(t, sync.LastSyncedAt)
}

func TestHandleRunFailure_PausesScheduleAndMarksError(t *testing.T) {
	f := newSchedulerFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))
	runs, _ := f.runs.List(ctx, f.connection.ID, "contacts")
	require.Len(t, runs, 1)

	require.NoError(t, f.scheduler.HandleRunFailure(ctx, runs[0].ID, 900))

	updated, err := f.runs.GetByID(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusFailed, updated.Status)

	sync, err := f.syncs.Get(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, sync.Status)

	schedule, err := f.schedules.Get(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	require.NotNil(t, schedule)
	assert.Equal(t, models.SyncScheduleStatusPaused, schedule.Status)
}

func TestUpdateFrequency(t *testing.T) {
	f := newSchedulerFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))

	require.NoError(t, f.scheduler.UpdateFrequency(ctx, f.connection.ID, "contacts", "1h"))

	sync, err := f.syncs.Get(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	assert.Equal(t, "1h", sync.Frequency)

	schedule, err := f.schedules.Get(ctx, f.connection.ID, "contacts")
	require.NoError(t, err)
	assert.Equal(t, "1h", schedule.Frequency)
}

func TestUpdateFrequency_InvalidRejected(t *testing.T) {
	f := newSchedulerFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.scheduler.InitializeSync(ctx, f.connection, f.collection, uuid.New()))

	err := f.scheduler.UpdateFrequency(ctx, f.connection.ID, "contacts", "90s")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}
