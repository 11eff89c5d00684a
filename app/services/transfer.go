package services

import (
	"context"

	"github.com/apex/log"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"PhotoTransfer/internal/config"
	"PhotoTransfer/internal/core"
	"PhotoTransfer/pkg/engine"
)

// TransferService starts and cancels transfers and picks their destination
type TransferService struct {
	bridge
	svc    *core.Service
	config *config.Manager
	logger log.Interface

	chooseDirectory func(ctx context.Context, opts runtime.OpenDialogOptions) (string, error)
}

// NewTransferService creates a new TransferService and subscribes it to job
// updates
func NewTransferService(ctx context.Context, svc *core.Service, cfg *config.Manager, logger log.Interface) *TransferService {
	s := &TransferService{
		bridge:          newBridge(ctx),
		svc:             svc,
		config:          cfg,
		logger:          logger,
		chooseDirectory: runtime.OpenDirectoryDialog,
	}
	svc.Jobs().AddEmitter(s)
	return s
}

// EmitJobUpdate implements core.JobEventEmitter. The progress payload goes out
// on its own event so the progress view needs no job bookkeeping.
func (s *TransferService) EmitJobUpdate(event core.JobUpdateEvent) {
	progress := event.Progress
	progress.JobID = event.JobID
	s.send(EventTransferProgress, progress)
	s.send(EventJobUpdate, event)
}

// DefaultDestination returns the configured destination folder
func (s *TransferService) DefaultDestination() string {
	return s.config.Get().Destination
}

// ChooseDestination opens a folder picker. An empty path means the dialog was
// cancelled. A chosen folder becomes the default destination.
func (s *TransferService) ChooseDestination() (string, error) {
	path, err := s.chooseDirectory(s.ctx, runtime.OpenDialogOptions{
		Title:            "Select Destination Folder",
		DefaultDirectory: s.DefaultDestination(),
	})
	if err != nil {
		s.logger.WithError(err).Error("[TransferService] ChooseDestination: dialog failed")
		return "", err
	}
	if path == "" {
		return "", nil
	}
	if err := s.config.SetDestination(path); err != nil {
		s.logger.WithError(err).Warn("[TransferService] ChooseDestination: failed to store destination")
	}
	return path, nil
}

// StartTransfer copies the given items of a device in the background and
// returns the job id. An empty destination uses the configured one.
func (s *TransferService) StartTransfer(deviceID string, itemIDs []string, destination string) (string, error) {
	cfg := s.config.Get()
	if destination == "" {
		destination = cfg.Destination
	}
	s.logger.WithFields(log.Fields{
		"device":      deviceID,
		"items":       len(itemIDs),
		"destination": destination,
	}).Info("[TransferService] StartTransfer: starting")

	return s.svc.StartTransfer(engine.Request{
		DeviceID:       deviceID,
		ItemIDs:        itemIDs,
		Destination:    destination,
		OrganizeByDate: cfg.OrganizeByDate,
	})
}

// CancelTransfer stops the running transfer before its next item
func (s *TransferService) CancelTransfer(jobID string) error {
	return s.svc.CancelTransfer(jobID)
}

// GetActiveTransfer returns the running transfer, or nil
func (s *TransferService) GetActiveTransfer() *core.JobSnapshot {
	return s.svc.Jobs().GetActiveJob()
}
