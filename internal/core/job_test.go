package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"PhotoTransfer/pkg/engine"
)

// eventLog records job events
type eventLog struct {
	mu     sync.Mutex
	events []JobUpdateEvent
}

func (l *eventLog) EmitJobUpdate(event JobUpdateEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) all() []JobUpdateEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]JobUpdateEvent(nil), l.events...)
}

func (l *eventLog) last() JobUpdateEvent {
	events := l.all()
	if len(events) == 0 {
		return JobUpdateEvent{}
	}
	return events[len(events)-1]
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

func startTransferJob(t *testing.T, jm *JobManager) (string, context.Context) {
	t.Helper()
	jobID, ctx, err := jm.StartJob(context.Background(), JobTypeTransfer, "Transferring 2 items from adb-1", map[string]string{"deviceId": "adb-1"})
	require.NoError(t, err)
	return jobID, ctx
}

func TestJobManager_StartJob(t *testing.T) {
	var log eventLog
	jm := NewJobManager(&log)

	jobID, ctx := startTransferJob(t, jm)
	_, err := uuid.Parse(jobID)
	require.NoError(t, err)
	require.NoError(t, ctx.Err())

	events := log.all()
	require.Len(t, events, 1)
	require.Equal(t, JobRunning, events[0].State)
	require.Equal(t, int64(1), events[0].Seq)
	require.Equal(t, jobID, events[0].Progress.JobID)
	require.Equal(t, engine.StatusTransferring, events[0].Progress.Status)

	snap, err := jm.GetJob(jobID)
	require.NoError(t, err)
	require.Equal(t, "adb-1", snap.Params["deviceId"])
}

func TestJobManager_OneTransferAtATime(t *testing.T) {
	jm := NewJobManager(nil)
	first, _ := startTransferJob(t, jm)

	_, _, err := jm.StartJob(context.Background(), JobTypeTransfer, "again", nil)
	require.ErrorIs(t, err, ErrJobRunning)

	jm.CompleteJob(first, "Transferred 2 of 2 items")
	second, _ := startTransferJob(t, jm)
	require.NotEqual(t, first, second)
}

func TestJobManager_CancelKeepsJobActiveUntilFinished(t *testing.T) {
	var log eventLog
	jm := NewJobManager(&log)
	jobID, ctx := startTransferJob(t, jm)

	require.NoError(t, jm.CancelJob(jobID))
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled")
	}

	// the worker has not returned yet
	active := jm.GetActiveJob()
	require.NotNil(t, active)
	require.Equal(t, JobRunning, active.State)
	require.Equal(t, "Cancelling transfer", log.last().Message)
	_, _, err := jm.StartJob(context.Background(), JobTypeTransfer, "next", nil)
	require.ErrorIs(t, err, ErrJobRunning)

	// the engine's cancelled event is still recorded
	jm.UpdateProgress(jobID, engine.TransferProgress{Current: 1, Total: 2, Succeeded: 1, Status: engine.StatusCancelled}, "")
	jm.finish(jobID, func(s *JobSnapshot) { s.State = JobCanceled })

	last := log.last()
	require.Equal(t, JobCanceled, last.State)
	require.Equal(t, engine.StatusCancelled, last.Progress.Status)
	require.Equal(t, 1, last.Progress.Succeeded)
	require.Nil(t, jm.GetActiveJob())
	require.ErrorIs(t, jm.CancelJob(jobID), ErrJobNotFound)
}

func TestJobManager_CancelUnknownJob(t *testing.T) {
	jm := NewJobManager(nil)
	require.ErrorIs(t, jm.CancelJob("nope"), ErrJobNotFound)
	require.ErrorIs(t, jm.CancelActiveJob(), ErrJobNotFound)
}

func TestJobManager_FailJob(t *testing.T) {
	jm := NewJobManager(nil)
	jobID, _ := startTransferJob(t, jm)

	jm.FailJob(jobID, errors.New("mount vanished"), "transfer_failed")

	snap, err := jm.GetJob(jobID)
	require.NoError(t, err)
	require.Equal(t, JobFailed, snap.State)
	require.Equal(t, &JobError{Code: "transfer_failed", Message: "mount vanished"}, snap.Error)
	require.Nil(t, jm.GetActiveJob())
}

func TestJobManager_FinishedJobIgnoresLateReports(t *testing.T) {
	var log eventLog
	jm := NewJobManager(&log)
	jobID, _ := startTransferJob(t, jm)
	jm.CompleteJob(jobID, "Transferred 2 of 2 items")
	log.reset()

	jm.FailJob(jobID, errors.New("late"), "late")
	jm.UpdateProgress(jobID, engine.TransferProgress{Current: 1, Total: 2, Status: engine.StatusTransferring}, "")

	snap, _ := jm.GetJob(jobID)
	require.Equal(t, JobSucceeded, snap.State)
	require.Empty(t, log.all())
}

func TestJobManager_ProgressEmission(t *testing.T) {
	failed := &engine.ItemOutcome{ItemID: "media-1", Name: "IMG_2.jpg", Status: engine.OutcomeFailed, Error: "read error"}
	tests := []struct {
		name     string
		progress engine.TransferProgress
		emitted  bool
	}{
		{"routine update is throttled", engine.TransferProgress{Current: 2, Total: 3, CurrentFile: "IMG_2.jpg", Status: engine.StatusTransferring}, false},
		{"failed item", engine.TransferProgress{Current: 2, Total: 3, Failed: 1, Item: failed, Status: engine.StatusTransferring}, true},
		{"complete", engine.TransferProgress{Current: 3, Total: 3, Status: engine.StatusComplete}, true},
		{"cancelled", engine.TransferProgress{Current: 1, Total: 3, Status: engine.StatusCancelled}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log eventLog
			jm := NewJobManagerWithThrottle(&log, ThrottleConfig{MinInterval: time.Hour})
			jobID, _ := startTransferJob(t, jm)
			jm.UpdateProgress(jobID, engine.TransferProgress{Current: 1, Total: 3, Status: engine.StatusTransferring}, "")
			log.reset()

			jm.UpdateProgress(jobID, tt.progress, "")
			require.Equal(t, tt.emitted, len(log.all()) == 1)

			// the snapshot always holds the latest progress
			snap, _ := jm.GetJob(jobID)
			require.Equal(t, tt.progress.Current, snap.Progress.Current)
			require.Equal(t, jobID, snap.Progress.JobID)
		})
	}
}

func TestJobManager_SequenceAcrossJobs(t *testing.T) {
	var log eventLog
	jm := NewJobManager(&log)
	for i := 0; i < 2; i++ {
		jobID, _ := startTransferJob(t, jm)
		jm.CompleteJob(jobID, "done")
	}

	events := log.all()
	require.Len(t, events, 4)
	for i := 1; i < len(events); i++ {
		require.Greater(t, events[i].Seq, events[i-1].Seq)
	}
}

func TestJobManager_ListJobsNewestFirst(t *testing.T) {
	jm := NewJobManager(nil)
	var ids []string
	for i := 0; i < 3; i++ {
		jobID, _ := startTransferJob(t, jm)
		jm.CompleteJob(jobID, "done")
		ids = append(ids, jobID)
		time.Sleep(2 * time.Millisecond)
	}

	jobs := jm.ListJobs()
	require.Len(t, jobs, 3)
	require.Equal(t, ids[2], jobs[0].JobID)
	require.Equal(t, ids[0], jobs[2].JobID)
}
