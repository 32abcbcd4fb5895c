// Package workflow defines the boundary to the durable workflow engine that
// executes sync jobs and owns recurring-schedule state. The engine itself is
// an external collaborator; this package carries the client contract and an
// in-memory implementation for development and tests.
package workflow

import (
	"context"
	"time"
)

// OverlapPolicy governs what happens when a schedule fires while the prior
// run is still executing
type OverlapPolicy string

// OverlapBufferOne queues exactly one pending firing when a firing would
// overlap a still-running execution; it is neither dropped nor run
// concurrently
const OverlapBufferOne OverlapPolicy = "buffer_one"

// SyncArgs identifies the sync a workflow execution operates on
type SyncArgs struct {
	EnvironmentID string
	ConnectionID  string
	IntegrationID string
	CollectionKey string
	SyncRunID     string
	LastSyncedAt  *int64
	ActivityID    string
}

// ScheduleSpec describes a recurring schedule registration
type ScheduleSpec struct {
	ScheduleID    string
	Interval      time.Duration
	Offset        time.Duration
	OverlapPolicy OverlapPolicy
	Paused        bool
	Args          SyncArgs
}

// ScheduleState is the engine's view of a schedule
type ScheduleState struct {
	ScheduleID string
	Paused     bool
}

// Client is the durable workflow engine boundary
type Client interface {
	// StartInitialSync starts a one-shot initial sync execution and returns
	// the engine's run id
	StartInitialSync(ctx context.Context, args SyncArgs) (string, error)

	// TriggerIncrementalSync starts a one-shot incremental sync execution
	// and returns the engine's run id
	TriggerIncrementalSync(ctx context.Context, args SyncArgs) (string, error)

	// CreateSchedule registers a recurring schedule
	CreateSchedule(ctx context.Context, spec ScheduleSpec) error

	// DescribeSchedule returns the engine's state for a schedule, or nil if
	// the engine does not know it
	DescribeSchedule(ctx context.Context, scheduleID string) (*ScheduleState, error)

	// TriggerSchedule requests an immediate firing of a schedule
	TriggerSchedule(ctx context.Context, scheduleID string) error

	// PauseSchedule pauses a schedule
	PauseSchedule(ctx context.Context, scheduleID string) error

	// UnpauseSchedule resumes a paused schedule
	UnpauseSchedule(ctx context.Context, scheduleID string) error

	// UpdateSchedule changes a schedule's interval and phase offset
	UpdateSchedule(ctx context.Context, scheduleID string, interval, offset time.Duration) error

	// TerminateRun terminates an in-flight execution
	TerminateRun(ctx context.Context, runID string) error
}
