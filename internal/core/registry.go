package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/samber/lo"

	"PhotoTransfer/pkg/device"
)

// Discoverer finds the devices attached to the host
type Discoverer interface {
	Discover(ctx context.Context) ([]device.Device, error)
}

// DeviceListener is told about every scan whose device set differs from the
// previous one.
type DeviceListener func(devices []device.Device)

// Registry holds the devices found by the last scan
type Registry struct {
	mu        sync.Mutex
	devices   []device.Device
	scanned   bool
	source    Discoverer
	cache     *MediaCache
	listeners []DeviceListener
	logger    log.Interface
}

// NewRegistry creates a registry that prunes cache on every scan
func NewRegistry(source Discoverer, cache *MediaCache, logger log.Interface) *Registry {
	if logger == nil {
		logger = log.Log
	}
	return &Registry{
		source: source,
		cache:  cache,
		logger: logger,
	}
}

// Subscribe registers fn for device set changes
func (r *Registry) Subscribe(fn DeviceListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Refresh rescans the host and replaces the device list. Listings of devices
// that disappeared are dropped from the cache in the same critical section.
// Refresh never fails; discovery problems are logged and yield fewer devices.
func (r *Registry) Refresh(ctx context.Context) []device.Device {
	found, err := r.source.Discover(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("[Registry] Refresh: discovery failed")
	}
	if found == nil {
		found = []device.Device{}
	}

	ids := lo.SliceToMap(found, func(d device.Device) (string, struct{}) { return d.ID, struct{}{} })

	r.mu.Lock()
	oldIDs := lo.Map(r.devices, func(d device.Device, _ int) string { return d.ID })
	var pruned []string
	if r.cache != nil {
		pruned = r.cache.retain(ids)
	}
	changed := !r.scanned || !sameIDs(oldIDs, ids)
	r.devices = found
	r.scanned = true
	listeners := append([]DeviceListener(nil), r.listeners...)
	snapshot := cloneDevices(found)
	r.mu.Unlock()

	r.logger.WithFields(log.Fields{"devices": len(found), "pruned": len(pruned)}).Info("[Registry] Refresh: scan complete")

	if changed {
		for _, fn := range listeners {
			fn(cloneDevices(snapshot))
		}
	}
	return snapshot
}

// Lookup returns the device with id from the last scan
func (r *Registry) Lookup(id string) (device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return device.Device{}, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
}

// Devices returns the devices of the last scan
func (r *Registry) Devices() []device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneDevices(r.devices)
}

func sameIDs(old []string, current map[string]struct{}) bool {
	if len(old) != len(current) {
		return false
	}
	for _, id := range old {
		if _, ok := current[id]; !ok {
			return false
		}
	}
	return true
}

func cloneDevices(devices []device.Device) []device.Device {
	out := make([]device.Device, len(devices))
	copy(out, devices)
	return out
}
