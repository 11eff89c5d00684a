package services

import (
	"context"

	"github.com/apex/log"

	"PhotoTransfer/internal/core"
	"PhotoTransfer/pkg/device"
)

// DeviceService exposes discovery and media listing to the frontend
type DeviceService struct {
	bridge
	svc    *core.Service
	logger log.Interface
}

// NewDeviceService creates a new DeviceService. Device list changes are
// forwarded as devices-changed events.
func NewDeviceService(ctx context.Context, svc *core.Service, logger log.Interface) *DeviceService {
	s := &DeviceService{
		bridge: newBridge(ctx),
		svc:    svc,
		logger: logger,
	}
	svc.Registry().Subscribe(s.devicesChanged)
	return s
}

// ScanDevices rescans the host and returns the devices found
func (s *DeviceService) ScanDevices() []device.Device {
	s.logger.Debug("[DeviceService] ScanDevices: scanning for devices")
	return s.svc.ScanDevices(s.ctx)
}

// GetDevices returns the devices of the last scan
func (s *DeviceService) GetDevices() []device.Device {
	return s.svc.Devices()
}

// ConnectDevice selects a device of the last scan
func (s *DeviceService) ConnectDevice(id string) (bool, error) {
	return s.svc.Connect(id)
}

// GetMediaItems lists the photos and videos of a device
func (s *DeviceService) GetMediaItems(id string) ([]device.MediaItem, error) {
	items, err := s.svc.ListMedia(s.ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("device", id).Error("[DeviceService] GetMediaItems: listing failed")
		return nil, err
	}
	return items, nil
}

// RefreshMedia re-reads the media of a device, bypassing the cache
func (s *DeviceService) RefreshMedia(id string) ([]device.MediaItem, error) {
	return s.svc.RefreshMedia(s.ctx, id)
}

func (s *DeviceService) devicesChanged(devices []device.Device) {
	s.logger.WithField("count", len(devices)).Debug("[DeviceService] devicesChanged: emitting")
	s.send(EventDevicesChanged, devices)
}
