package services

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"

	"PhotoTransfer/internal/backend"
	"PhotoTransfer/internal/config"
)

// PrereqService reports which discovery tools are installed
type PrereqService struct {
	bridge
	runner backend.Runner
	config *config.Manager
	logger log.Interface

	mu   sync.Mutex
	last *backend.PrereqReport
}

// NewPrereqService creates a new PrereqService
func NewPrereqService(ctx context.Context, runner backend.Runner, cfg *config.Manager, logger log.Interface) *PrereqService {
	return &PrereqService{
		bridge: newBridge(ctx),
		runner: runner,
		config: cfg,
		logger: logger,
	}
}

// GetPrereqReport returns the last report, checking first if there is none
func (s *PrereqService) GetPrereqReport() backend.PrereqReport {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last != nil {
		return *last
	}
	return s.RefreshNow()
}

// RefreshNow re-runs every check and emits the report
func (s *PrereqService) RefreshNow() backend.PrereqReport {
	report := backend.CheckPrereqs(s.runner, s.config.Get().Destination)
	s.logger.WithField("status", report.OverallStatus).Debug("[PrereqService] RefreshNow: checks done")

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
	s.send(EventPrereqReport, report)
	return report
}

// Poll refreshes the report every interval until ctx ends
func (s *PrereqService) Poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RefreshNow()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("[PrereqService] Poll: context cancelled, stopping polling")
			return
		case <-ticker.C:
			s.RefreshNow()
		}
	}
}
