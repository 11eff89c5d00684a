package services

import (
	"github.com/apex/log"

	"PhotoTransfer/internal/platform"
)

type SystemService struct {
	logger     log.Interface
	openFolder func(path string) error
}

func NewSystemService(logger log.Interface) *SystemService {
	return &SystemService{
		logger:     logger,
		openFolder: platform.OpenFolder,
	}
}

// OpenFolder reveals path in the file manager; "~" is expanded
func (s *SystemService) OpenFolder(path string) error {
	s.logger.WithField("path", path).Info("[SystemService] OpenFolder")
	if err := s.openFolder(path); err != nil {
		s.logger.WithError(err).Error("[SystemService] OpenFolder: failed")
		return err
	}
	return nil
}

// GetDefaultDestination returns the platform default transfer folder
func (s *SystemService) GetDefaultDestination() string {
	return platform.DefaultDestination()
}
