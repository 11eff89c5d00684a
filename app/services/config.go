package services

import (
	"github.com/apex/log"

	"PhotoTransfer/internal/config"
)

// ConfigService exposes the settings file to the frontend
type ConfigService struct {
	manager *config.Manager
	logger  log.Interface
}

// NewConfigService creates a new ConfigService
func NewConfigService(manager *config.Manager, logger log.Interface) *ConfigService {
	return &ConfigService{manager: manager, logger: logger}
}

// GetConfig returns the current configuration
func (s *ConfigService) GetConfig() config.Config {
	return s.manager.Get()
}

// SaveConfig validates cfg and writes it to disk
func (s *ConfigService) SaveConfig(cfg config.Config) error {
	s.logger.WithField("path", s.manager.Path()).Info("[ConfigService] SaveConfig: saving")
	return s.manager.Save(&cfg)
}

// SetOrganizeByDate toggles YYYY/MM/DD folders for new transfers
func (s *ConfigService) SetOrganizeByDate(enabled bool) error {
	cfg := s.manager.Get()
	cfg.OrganizeByDate = enabled
	return s.manager.Save(&cfg)
}

// SetRememberSettings toggles whether a chosen destination is persisted
func (s *ConfigService) SetRememberSettings(enabled bool) error {
	cfg := s.manager.Get()
	cfg.RememberSettings = enabled
	return s.manager.Save(&cfg)
}
