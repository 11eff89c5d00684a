// Package core provides the core business logic and types for PhotoTransfer.
// This package must NOT import any adapter-specific code (Wails, Cobra, HTTP frameworks).
// It should be fully testable without UI.
package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"PhotoTransfer/pkg/engine"
)

// JobState represents the lifecycle state of a job
type JobState string

const (
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// Terminal reports whether the job has finished
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCanceled
}

// JobError contains error information when a job fails
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// JobSnapshot is the authoritative state of a job at a point in time.
// The UI should derive all state from this snapshot.
type JobSnapshot struct {
	JobID     string                  `json:"jobId"`
	Seq       int64                   `json:"seq"` // Monotonically increasing sequence number
	Type      string                  `json:"type"`
	State     JobState                `json:"state"`
	Params    map[string]string       `json:"params,omitempty"`
	Progress  engine.TransferProgress `json:"progress"`
	Message   string                  `json:"message"`
	Error     *JobError               `json:"error,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// JobUpdateEvent is emitted when job state changes
type JobUpdateEvent struct {
	JobID    string                  `json:"jobId"`
	Seq      int64                   `json:"seq"`
	Type     string                  `json:"type"`
	State    JobState                `json:"state"`
	Progress engine.TransferProgress `json:"progress"`
	Message  string                  `json:"message"`
	LogLine  string                  `json:"logLine,omitempty"`
	Error    *JobError               `json:"error,omitempty"`
}

// JobEventEmitter is the interface adapters must implement to receive job events.
// This allows the core JobManager to be agnostic about how events are delivered.
type JobEventEmitter interface {
	EmitJobUpdate(event JobUpdateEvent)
}

// ThrottleConfig controls how often progress updates are emitted
type ThrottleConfig struct {
	MinInterval time.Duration // Minimum time between progress updates
}

// DefaultThrottleConfig returns sensible defaults for throttling
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MinInterval: 100 * time.Millisecond, // ~10 updates per second max
	}
}

// JobManager manages the lifecycle of transfer jobs.
// It is the single source of truth for job state. Only one job runs at a time.
type JobManager struct {
	mu           sync.Mutex
	jobs         map[string]*JobSnapshot
	activeJob    string
	seqCounter   int64
	cancels      map[string]context.CancelFunc
	emitter      JobEventEmitter
	throttle     ThrottleConfig
	lastEmitTime map[string]time.Time
}

// NewJobManager creates a new JobManager with default throttling
func NewJobManager(emitter JobEventEmitter) *JobManager {
	return NewJobManagerWithThrottle(emitter, DefaultThrottleConfig())
}

// NewJobManagerWithThrottle creates a new JobManager with custom throttling
func NewJobManagerWithThrottle(emitter JobEventEmitter, throttle ThrottleConfig) *JobManager {
	return &JobManager{
		jobs:         make(map[string]*JobSnapshot),
		cancels:      make(map[string]context.CancelFunc),
		emitter:      emitter,
		throttle:     throttle,
		lastEmitTime: make(map[string]time.Time),
	}
}

// AddEmitter adds an additional emitter. Events will be sent to all registered emitters.
func (jm *JobManager) AddEmitter(emitter JobEventEmitter) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if jm.emitter == nil {
		jm.emitter = emitter
		return
	}
	if multi, ok := jm.emitter.(*MultiEmitter); ok {
		multi.Add(emitter)
	} else {
		jm.emitter = &MultiEmitter{emitters: []JobEventEmitter{jm.emitter, emitter}}
	}
}

// MultiEmitter broadcasts events to multiple emitters
type MultiEmitter struct {
	mu       sync.Mutex
	emitters []JobEventEmitter
}

// Add adds an emitter to the multi-emitter
func (m *MultiEmitter) Add(emitter JobEventEmitter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitters = append(m.emitters, emitter)
}

// EmitJobUpdate broadcasts the event to all registered emitters
func (m *MultiEmitter) EmitJobUpdate(event JobUpdateEvent) {
	m.mu.Lock()
	emitters := append([]JobEventEmitter(nil), m.emitters...)
	m.mu.Unlock()

	for _, e := range emitters {
		if e != nil {
			e.EmitJobUpdate(event)
		}
	}
}

// EmitterFunc adapts a function to JobEventEmitter
type EmitterFunc func(event JobUpdateEvent)

func (f EmitterFunc) EmitJobUpdate(event JobUpdateEvent) { f(event) }

// StartJob starts a new job and returns the job ID and context.
// The context is cancelled when CancelJob is called.
func (jm *JobManager) StartJob(ctx context.Context, jobType string, message string, params map[string]string) (string, context.Context, error) {
	jm.mu.Lock()

	if jm.activeJob != "" {
		if active := jm.jobs[jm.activeJob]; active != nil && active.State == JobRunning {
			jm.mu.Unlock()
			return "", nil, fmt.Errorf("%w: %s (%s)", ErrJobRunning, active.JobID, active.Type)
		}
	}

	jobID := uuid.NewString()
	jobCtx, cancel := context.WithCancel(ctx)
	now := time.Now()

	jm.jobs[jobID] = &JobSnapshot{
		JobID:     jobID,
		Type:      jobType,
		State:     JobRunning,
		Params:    params,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
		Progress:  engine.TransferProgress{JobID: jobID, Status: engine.StatusTransferring},
	}
	jm.cancels[jobID] = cancel
	jm.activeJob = jobID
	jm.mu.Unlock()

	jm.emitUpdate(jobID, "")

	return jobID, jobCtx, nil
}

// emitUpdate sends the current job state to the emitter
func (jm *JobManager) emitUpdate(jobID string, logLine string) {
	jm.mu.Lock()
	snapshot, exists := jm.jobs[jobID]
	if !exists {
		jm.mu.Unlock()
		return
	}

	jm.seqCounter++
	snapshot.Seq = jm.seqCounter

	event := JobUpdateEvent{
		JobID:    snapshot.JobID,
		Seq:      snapshot.Seq,
		Type:     snapshot.Type,
		State:    snapshot.State,
		Progress: snapshot.Progress,
		Message:  snapshot.Message,
		LogLine:  logLine,
		Error:    snapshot.Error,
	}
	emitter := jm.emitter
	jm.mu.Unlock()

	if emitter != nil {
		emitter.EmitJobUpdate(event)
	}
}

// UpdateProgress records the latest transfer progress of a running job.
// Routine updates are throttled; terminal events and item failures are
// always emitted.
func (jm *JobManager) UpdateProgress(jobID string, progress engine.TransferProgress, message string) {
	jm.mu.Lock()
	snapshot, exists := jm.jobs[jobID]
	if !exists || snapshot.State.Terminal() {
		jm.mu.Unlock()
		return
	}

	progress.JobID = jobID
	snapshot.Progress = progress
	if message != "" {
		snapshot.Message = message
	}
	now := time.Now()
	snapshot.UpdatedAt = now

	important := progress.Terminal() || (progress.Item != nil && progress.Item.Status != engine.OutcomeTransferred)
	shouldEmit := important || now.Sub(jm.lastEmitTime[jobID]) >= jm.throttle.MinInterval
	if shouldEmit {
		jm.lastEmitTime[jobID] = now
	}
	jm.mu.Unlock()

	if shouldEmit {
		jm.emitUpdate(jobID, "")
	}
}

// CompleteJob marks a job as succeeded. Jobs that already ended keep their state.
func (jm *JobManager) CompleteJob(jobID string, message string) {
	jm.finish(jobID, func(s *JobSnapshot) {
		s.State = JobSucceeded
		if message != "" {
			s.Message = message
		}
	})
}

// FailJob marks a job as failed. Jobs that already ended keep their state.
func (jm *JobManager) FailJob(jobID string, err error, code string) {
	jm.finish(jobID, func(s *JobSnapshot) {
		s.State = JobFailed
		s.Error = &JobError{Code: code, Message: err.Error()}
		s.Message = err.Error()
	})
}

func (jm *JobManager) finish(jobID string, apply func(*JobSnapshot)) bool {
	jm.mu.Lock()
	snapshot, exists := jm.jobs[jobID]
	if !exists || snapshot.State.Terminal() {
		jm.mu.Unlock()
		return false
	}
	apply(snapshot)
	snapshot.UpdatedAt = time.Now()
	if jm.activeJob == jobID {
		jm.activeJob = ""
	}
	if cancel := jm.cancels[jobID]; cancel != nil {
		cancel()
		delete(jm.cancels, jobID)
	}
	delete(jm.lastEmitTime, jobID)
	jm.mu.Unlock()

	jm.emitUpdate(jobID, "")
	return true
}

// CancelJob asks a running job to stop. Only the job's context is cancelled:
// the job stays active until its worker returns and finishes it, so no other
// job can start while the worker is still inside a copy.
func (jm *JobManager) CancelJob(jobID string) error {
	jm.mu.Lock()
	cancel, ok := jm.cancels[jobID]
	snapshot := jm.jobs[jobID]
	if !ok || snapshot == nil || snapshot.State.Terminal() {
		jm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	snapshot.Message = "Cancelling transfer"
	snapshot.UpdatedAt = time.Now()
	jm.mu.Unlock()

	cancel()
	jm.emitUpdate(jobID, "")
	return nil
}

// CancelActiveJob cancels the currently active job
func (jm *JobManager) CancelActiveJob() error {
	jm.mu.Lock()
	active := jm.activeJob
	jm.mu.Unlock()
	if active == "" {
		return fmt.Errorf("%w: no active job", ErrJobNotFound)
	}
	return jm.CancelJob(active)
}

// GetJob returns a snapshot of a specific job
func (jm *JobManager) GetJob(jobID string) (*JobSnapshot, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	snapshot, exists := jm.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	copySnapshot := *snapshot
	return &copySnapshot, nil
}

// GetActiveJob returns the currently active job snapshot, or nil if none
func (jm *JobManager) GetActiveJob() *JobSnapshot {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	snapshot, exists := jm.jobs[jm.activeJob]
	if jm.activeJob == "" || !exists {
		return nil
	}
	copySnapshot := *snapshot
	return &copySnapshot
}

// ListJobs returns all jobs, newest first
func (jm *JobManager) ListJobs() []*JobSnapshot {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	list := make([]*JobSnapshot, 0, len(jm.jobs))
	for _, j := range jm.jobs {
		c := *j
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].JobID > list[j].JobID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// EmitLogLine emits a log line event for a specific job
func (jm *JobManager) EmitLogLine(jobID string, logLine string) {
	jm.emitUpdate(jobID, logLine)
}

// Shutdown asks every running job to stop
func (jm *JobManager) Shutdown() {
	jm.mu.Lock()
	ids := make([]string, 0, len(jm.cancels))
	for id := range jm.cancels {
		ids = append(ids, id)
	}
	jm.mu.Unlock()

	for _, id := range ids {
		_ = jm.CancelJob(id)
	}
}
