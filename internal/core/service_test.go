package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"PhotoTransfer/internal/backend"
	"PhotoTransfer/pkg/device"
	"PhotoTransfer/pkg/engine"
)

func newTestService(t *testing.T) (*backend.Memory, *Service) {
	t.Helper()
	mem := backend.NewMemory("mem")
	svc, err := NewService(mem, Options{Throttle: ThrottleConfig{MinInterval: time.Millisecond}})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return mem, svc
}

// waitTerminal subscribes to job events and returns a channel receiving the
// first terminal event
func waitTerminal(svc *Service) <-chan JobUpdateEvent {
	done := make(chan JobUpdateEvent, 1)
	svc.Jobs().AddEmitter(EmitterFunc(func(e JobUpdateEvent) {
		if e.State.Terminal() {
			select {
			case done <- e:
			default:
			}
		}
	}))
	return done
}

func awaitEvent(t *testing.T, ch <-chan JobUpdateEvent) JobUpdateEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job to finish")
		return JobUpdateEvent{}
	}
}

func TestService_ConnectAndListMedia(t *testing.T) {
	mem, svc := newTestService(t)
	ctx := context.Background()
	mem.SetDevices(newAndroid("adb-1"))
	mem.SetItems("adb-1", photo("media-0", "IMG_1.jpg", 10))

	require.Len(t, svc.ScanDevices(ctx), 1)
	require.Len(t, svc.Devices(), 1)

	ok, err := svc.Connect("adb-1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = svc.Connect("adb-9")
	require.ErrorIs(t, err, device.ErrDeviceNotFound)
	require.False(t, ok)

	items, err := svc.ListMedia(ctx, "adb-1")
	require.NoError(t, err)
	require.Len(t, items, 1)

	mem.SetItems("adb-1")
	items, err = svc.ListMedia(ctx, "adb-1")
	require.NoError(t, err)
	require.Len(t, items, 1, "second listing is served from the cache")

	items, err = svc.RefreshMedia(ctx, "adb-1")
	require.NoError(t, err)
	require.Empty(t, items)

	_, err = svc.ListMedia(ctx, "adb-9")
	require.ErrorIs(t, err, device.ErrDeviceNotFound)
}

func TestService_StartTransferCompletes(t *testing.T) {
	mem, svc := newTestService(t)
	mem.SetDevices(newAndroid("adb-1"))
	mem.SetItems("adb-1", photo("media-0", "IMG_1.jpg", 10), photo("media-1", "IMG_2.jpg", 20))
	mem.FailFetch("media-1", errors.New("read error"))
	svc.ScanDevices(context.Background())
	done := waitTerminal(svc)

	dest := t.TempDir()
	jobID, err := svc.StartTransfer(engine.Request{DeviceID: "adb-1", ItemIDs: []string{"media-0", "media-1"}, Destination: dest})
	require.NoError(t, err)

	event := awaitEvent(t, done)
	require.Equal(t, jobID, event.JobID)
	require.Equal(t, JobSucceeded, event.State)
	require.Contains(t, event.Message, "1 failed")

	snapshot, err := svc.Jobs().GetJob(jobID)
	require.NoError(t, err)
	require.Equal(t, JobTypeTransfer, snapshot.Type)
	require.Equal(t, "adb-1", snapshot.Params["deviceId"])
	require.Equal(t, engine.StatusComplete, snapshot.Progress.Status)
	require.Equal(t, 2, snapshot.Progress.Current)
	require.Equal(t, uint64(10), snapshot.Progress.BytesTransferred)
	require.FileExists(t, filepath.Join(dest, "IMG_1.jpg"))
	require.NoFileExists(t, filepath.Join(dest, "IMG_2.jpg"))
}

func TestService_StartTransferUnknownDevice(t *testing.T) {
	_, svc := newTestService(t)
	svc.ScanDevices(context.Background())

	_, err := svc.StartTransfer(engine.Request{DeviceID: "adb-1", ItemIDs: []string{"media-0"}, Destination: t.TempDir()})
	require.ErrorIs(t, err, device.ErrDeviceNotFound)
	require.Empty(t, svc.Jobs().ListJobs())
}

func TestService_StartTransferFails(t *testing.T) {
	mem, svc := newTestService(t)
	mem.SetDevices(newAndroid("adb-1"))
	mem.FailEnumerate("adb-1", errors.New("mount vanished"))
	svc.ScanDevices(context.Background())
	done := waitTerminal(svc)

	_, err := svc.StartTransfer(engine.Request{DeviceID: "adb-1", ItemIDs: []string{"media-0"}, Destination: t.TempDir()})
	require.NoError(t, err)

	event := awaitEvent(t, done)
	require.Equal(t, JobFailed, event.State)
	require.NotNil(t, event.Error)
	require.Equal(t, "transfer_failed", event.Error.Code)
	require.Contains(t, event.Error.Message, "mount vanished")
}

func TestService_CancelTransfer(t *testing.T) {
	mem, svc := newTestService(t)
	mem.SetDevices(newAndroid("adb-1"))
	mem.SetItems("adb-1", photo("media-0", "IMG_1.jpg", 10))
	svc.ScanDevices(context.Background())

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	mem.BeforeEnumerateReturn = func(device.Device) {
		once.Do(func() { close(entered) })
		<-release
	}
	done := waitTerminal(svc)

	dest := t.TempDir()
	req := engine.Request{DeviceID: "adb-1", ItemIDs: []string{"media-0"}, Destination: dest}
	jobID, err := svc.StartTransfer(req)
	require.NoError(t, err)
	<-entered

	_, err = svc.StartTransfer(req)
	require.ErrorIs(t, err, ErrJobRunning)

	require.NoError(t, svc.CancelTransfer(jobID))
	close(release)

	event := awaitEvent(t, done)
	require.Equal(t, jobID, event.JobID)
	require.Equal(t, JobCanceled, event.State)
	require.ErrorIs(t, svc.CancelTransfer(jobID), ErrJobNotFound)

	// the canceled batch never fetches; a new batch can start right away
	second, err := svc.StartTransfer(req)
	require.NoError(t, err)
	event = awaitEvent(t, done)
	require.Equal(t, second, event.JobID)
	require.Equal(t, JobSucceeded, event.State)
	require.Equal(t, []string{"media-0"}, mem.Fetched())
	require.FileExists(t, filepath.Join(dest, "IMG_1.jpg"))
}

func TestService_CancelWaitsForInFlightFetch(t *testing.T) {
	mem, svc := newTestService(t)
	mem.SetDevices(newAndroid("adb-1"))
	mem.SetItems("adb-1", photo("media-0", "IMG_1.jpg", 10), photo("media-1", "IMG_2.jpg", 20))
	svc.ScanDevices(context.Background())

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var inFetch atomic.Bool
	var overlapping atomic.Int32
	mem.BeforeFetch = func(item device.MediaItem) {
		if inFetch.Load() {
			overlapping.Add(1)
		}
		if item.ID != "media-0" {
			return
		}
		first := false
		once.Do(func() { first = true })
		if first {
			// the copy ignores cancellation until it is released
			inFetch.Store(true)
			close(entered)
			<-release
			inFetch.Store(false)
		}
	}
	done := waitTerminal(svc)

	req := engine.Request{DeviceID: "adb-1", ItemIDs: []string{"media-0", "media-1"}, Destination: t.TempDir()}
	jobID, err := svc.StartTransfer(req)
	require.NoError(t, err)
	<-entered

	require.NoError(t, svc.CancelTransfer(jobID))
	active := svc.Jobs().GetActiveJob()
	require.NotNil(t, active)
	require.Equal(t, jobID, active.JobID)
	require.Equal(t, JobRunning, active.State)

	_, err = svc.StartTransfer(req)
	require.ErrorIs(t, err, ErrJobRunning)

	close(release)
	event := awaitEvent(t, done)
	require.Equal(t, jobID, event.JobID)
	require.Equal(t, JobCanceled, event.State)
	require.Equal(t, engine.StatusCancelled, event.Progress.Status)
	require.Equal(t, 1, event.Progress.Current)
	require.Equal(t, 1, event.Progress.Succeeded)
	require.Nil(t, svc.Jobs().GetActiveJob())

	second, err := svc.StartTransfer(engine.Request{DeviceID: "adb-1", ItemIDs: []string{"media-1"}, Destination: req.Destination})
	require.NoError(t, err)
	event = awaitEvent(t, done)
	require.Equal(t, second, event.JobID)
	require.Equal(t, JobSucceeded, event.State)
	require.Zero(t, overlapping.Load())
	require.Equal(t, []string{"media-0", "media-1"}, mem.Fetched())
}

func TestCompletionMessage(t *testing.T) {
	msg := completionMessage(&engine.Summary{Total: 3, Succeeded: 1, Failed: 1, Skipped: 1, BytesTransferred: 2_000_000})
	require.Equal(t, "Transferred 1 of 3 items (2.0 MB), 1 failed, 1 skipped", msg)
}
