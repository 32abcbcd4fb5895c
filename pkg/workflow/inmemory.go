package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type scheduleEntry struct {
	spec    ScheduleSpec
	paused  bool
	running bool
	// buffered marks one pending firing queued while a run was in flight
	buffered bool
}

// InMemoryClient is a Client that tracks schedule and run state in process
// memory. It honors the buffer-one overlap policy: a firing requested while
// a run is in flight is queued (at most one) and released when the run
// completes. Used for local development and tests; it executes nothing.
type InMemoryClient struct {
	mu        sync.Mutex
	schedules map[string]*scheduleEntry
	runs      map[string]bool

	// StartedRuns records every run started, in order, for inspection
	StartedRuns []SyncArgs
}

// NewInMemoryClient creates an in-memory workflow client
func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{
		schedules: map[string]*scheduleEntry{},
		runs:      map[string]bool{},
	}
}

// StartInitialSync records a run start and returns a generated run id
func (c *InMemoryClient) StartInitialSync(_ context.Context, args SyncArgs) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	runID := uuid.New().String()
	c.runs[runID] = true
	c.StartedRuns = append(c.StartedRuns, args)
	return runID, nil
}

// TriggerIncrementalSync records a run start and returns a generated run id
func (c *InMemoryClient) TriggerIncrementalSync(_ context.Context, args SyncArgs) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	runID := uuid.New().String()
	c.runs[runID] = true
	c.StartedRuns = append(c.StartedRuns, args)
	return runID, nil
}

// CreateSchedule registers a schedule
func (c *InMemoryClient) CreateSchedule(_ context.Context, spec ScheduleSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.schedules[spec.ScheduleID]; exists {
		return fmt.Errorf("schedule %s already exists", spec.ScheduleID)
	}

	c.schedules[spec.ScheduleID] = &scheduleEntry{
		spec:   spec,
		paused: spec.Paused,
	}
	return nil
}

// DescribeSchedule returns the schedule's state, or nil if unknown
func (c *InMemoryClient) DescribeSchedule(_ context.Context, scheduleID string) (*ScheduleState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.schedules[scheduleID]
	if !ok {
		return nil, nil
	}
	return &ScheduleState{ScheduleID: scheduleID, Paused: entry.paused}, nil
}

// TriggerSchedule fires the schedule. If a run is already in flight the
// firing is buffered; at most one firing is ever pending.
func (c *InMemoryClient) TriggerSchedule(_ context.Context, scheduleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.schedules[scheduleID]
	if !ok {
		return fmt.Errorf("schedule %s does not exist", scheduleID)
	}

	if entry.running {
		entry.buffered = true
		return nil
	}

	entry.running = true
	c.StartedRuns = append(c.StartedRuns, entry.spec.Args)
	return nil
}

// CompleteRun finishes the schedule's in-flight run, releasing a buffered
// firing if one is queued. Test-side counterpart to TriggerSchedule.
func (c *InMemoryClient) CompleteRun(scheduleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.schedules[scheduleID]
	if !ok {
		return
	}

	entry.running = false
	if entry.buffered {
		entry.buffered = false
		entry.running = true
		c.StartedRuns = append(c.StartedRuns, entry.spec.Args)
	}
}

// PauseSchedule pauses a schedule
func (c *InMemoryClient) PauseSchedule(_ context.Context, scheduleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.schedules[scheduleID]
	if !ok {
		return fmt.Errorf("schedule %s does not exist", scheduleID)
	}
	entry.paused = true
	return nil
}

// UnpauseSchedule resumes a schedule
func (c *InMemoryClient) UnpauseSchedule(_ context.Context, scheduleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.schedules[scheduleID]
	if !ok {
		return fmt.Errorf("schedule %s does not exist", scheduleID)
	}
	entry.paused = false
	return nil
}

// UpdateSchedule changes a schedule's timing
func (c *InMemoryClient) UpdateSchedule(_ context.Context, scheduleID string, interval, offset time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.schedules[scheduleID]
	if !ok {
		return fmt.Errorf("schedule %s does not exist", scheduleID)
	}
	entry.spec.Interval = interval
	entry.spec.Offset = offset
	return nil
}

// TerminateRun marks an in-flight run terminated
func (c *InMemoryClient) TerminateRun(_ context.Context, runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runs, runID)
	return nil
}
