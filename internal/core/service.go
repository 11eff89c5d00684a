package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"

	"PhotoTransfer/pkg/device"
	"PhotoTransfer/pkg/engine"
)

// JobTypeTransfer is the job type of every transfer started through the service
const JobTypeTransfer = "transfer"

// Options configures a Service
type Options struct {
	CacheSize int
	Throttle  ThrottleConfig
	Logger    log.Interface
}

// Service is the application facade the adapters (desktop shell, CLI, HTTP)
// talk to. It owns the device registry, the media cache, the job manager and
// the transfer engine for its whole lifetime.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	backend  device.Backend
	registry *Registry
	cache    *MediaCache
	jobs     *JobManager
	engine   *engine.Engine
	logger   log.Interface
}

// NewService wires a service around backend
func NewService(backend device.Backend, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Log
	}
	throttle := opts.Throttle
	if throttle.MinInterval <= 0 {
		throttle = DefaultThrottleConfig()
	}

	cache, err := NewMediaCache(backend, opts.CacheSize, logger)
	if err != nil {
		return nil, err
	}
	registry := NewRegistry(backend, cache, logger)

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		ctx:      ctx,
		cancel:   cancel,
		backend:  backend,
		registry: registry,
		cache:    cache,
		jobs:     NewJobManagerWithThrottle(nil, throttle),
		engine:   engine.New(registry, cache, backend, logger),
		logger:   logger,
	}, nil
}

// Jobs exposes the job manager so adapters can subscribe and query jobs
func (s *Service) Jobs() *JobManager { return s.jobs }

// Registry exposes the device registry for subscriptions
func (s *Service) Registry() *Registry { return s.registry }

// CacheStats reports media cache counters
func (s *Service) CacheStats() CacheStats { return s.cache.Stats() }

// ScanDevices rescans the host for devices
func (s *Service) ScanDevices(ctx context.Context) []device.Device {
	s.logger.Debug("[Service] ScanDevices: scanning")
	return s.registry.Refresh(ctx)
}

// Devices returns the result of the last scan
func (s *Service) Devices() []device.Device {
	return s.registry.Devices()
}

// Connect confirms that id is a device of the last scan
func (s *Service) Connect(id string) (bool, error) {
	if _, err := s.registry.Lookup(id); err != nil {
		return false, err
	}
	s.logger.WithField("device", id).Info("[Service] Connect: device selected")
	return true, nil
}

// ListMedia returns the media of a device, enumerating it on first use
func (s *Service) ListMedia(ctx context.Context, id string) ([]device.MediaItem, error) {
	dev, err := s.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	return s.cache.GetOrPopulate(ctx, dev)
}

// RefreshMedia re-enumerates a device
func (s *Service) RefreshMedia(ctx context.Context, id string) ([]device.MediaItem, error) {
	dev, err := s.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	return s.cache.ForceRefresh(ctx, dev)
}

// Transfer runs a batch synchronously, publishing progress to sink
func (s *Service) Transfer(ctx context.Context, req engine.Request, sink engine.Sink) (*engine.Summary, error) {
	return s.engine.Run(ctx, req, sink)
}

// StartTransfer runs a batch in the background as a job and returns the job
// id. Progress is delivered to the job manager's emitters.
func (s *Service) StartTransfer(req engine.Request) (string, error) {
	if _, err := s.registry.Lookup(req.DeviceID); err != nil {
		return "", err
	}

	params := map[string]string{
		"deviceId":       req.DeviceID,
		"destination":    req.Destination,
		"items":          strconv.Itoa(len(req.ItemIDs)),
		"organizeByDate": strconv.FormatBool(req.OrganizeByDate),
	}
	message := fmt.Sprintf("Transferring %d items from %s", len(req.ItemIDs), req.DeviceID)
	jobID, jobCtx, err := s.jobs.StartJob(s.ctx, JobTypeTransfer, message, params)
	if err != nil {
		return "", err
	}

	go func() {
		sink := engine.SinkFunc(func(p engine.TransferProgress) {
			s.jobs.UpdateProgress(jobID, p, "")
		})
		summary, err := s.engine.Run(jobCtx, req, sink)
		switch {
		case err != nil && engine.IsCancelled(err):
			s.logger.WithField("job", jobID).Warn("[Service] StartTransfer: transfer canceled")
			s.jobs.finish(jobID, func(snap *JobSnapshot) {
				snap.State = JobCanceled
				snap.Message = "Transfer canceled"
			})
		case err != nil:
			s.logger.WithError(err).WithField("job", jobID).Error("[Service] StartTransfer: transfer failed")
			s.jobs.FailJob(jobID, err, errorCode(err))
		default:
			s.jobs.CompleteJob(jobID, completionMessage(summary))
		}
	}()

	return jobID, nil
}

// CancelTransfer stops a running transfer before its next item
func (s *Service) CancelTransfer(jobID string) error {
	return s.jobs.CancelJob(jobID)
}

// Close cancels running transfers and releases the service
func (s *Service) Close() {
	s.jobs.Shutdown()
	s.cancel()
}

func completionMessage(summary *engine.Summary) string {
	msg := fmt.Sprintf("Transferred %d of %d items (%s)", summary.Succeeded, summary.Total, humanize.Bytes(summary.BytesTransferred))
	if summary.Failed > 0 {
		msg += fmt.Sprintf(", %d failed", summary.Failed)
	}
	if summary.Skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", summary.Skipped)
	}
	return msg
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, device.ErrUnsupported):
		return "unsupported"
	default:
		return "transfer_failed"
	}
}
