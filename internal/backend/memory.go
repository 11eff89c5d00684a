package backend

import (
	"context"
	"fmt"
	"os"
	"sync"

	"PhotoTransfer/pkg/device"
	"PhotoTransfer/pkg/engine"
)

// Memory is an in-memory backend for tests. Devices and listings can be
// swapped at any time to simulate hot-plugging.
type Memory struct {
	mu             sync.Mutex
	name           string
	devices        []device.Device
	items          map[string][]device.MediaItem
	enumerateErr   map[string]error
	fetchErr       map[string]error
	discoverCalls  int
	enumerateCalls map[string]int
	fetched        []string

	// BeforeEnumerateReturn runs after the listing is taken but before
	// Enumerate returns, outside the backend lock.
	BeforeEnumerateReturn func(dev device.Device)
	// BeforeFetch runs at the start of every Fetch, outside the backend lock
	BeforeFetch func(item device.MediaItem)
}

// NewMemory creates an empty in-memory backend called name
func NewMemory(name string) *Memory {
	return &Memory{
		name:           name,
		items:          make(map[string][]device.MediaItem),
		enumerateErr:   make(map[string]error),
		fetchErr:       make(map[string]error),
		enumerateCalls: make(map[string]int),
	}
}

func (m *Memory) Name() string { return m.name }

// SetDevices replaces what Discover reports
func (m *Memory) SetDevices(devices ...device.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append([]device.Device(nil), devices...)
}

// SetItems replaces the listing of a device
func (m *Memory) SetItems(deviceID string, items ...device.MediaItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[deviceID] = append([]device.MediaItem{}, items...)
}

// FailEnumerate makes Enumerate of deviceID return err (nil clears it)
func (m *Memory) FailEnumerate(deviceID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enumerateErr[deviceID] = err
}

// FailFetch makes Fetch of itemID return err (nil clears it)
func (m *Memory) FailFetch(itemID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr[itemID] = err
}

// DiscoverCalls returns how often Discover ran
func (m *Memory) DiscoverCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discoverCalls
}

// EnumerateCalls returns how often Enumerate ran for deviceID
func (m *Memory) EnumerateCalls(deviceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enumerateCalls[deviceID]
}

// Fetched returns the item ids passed to Fetch, in call order
func (m *Memory) Fetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetched...)
}

func (m *Memory) Discover(ctx context.Context) ([]device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoverCalls++
	out := make([]device.Device, len(m.devices))
	for i, d := range m.devices {
		if d.Locator.Backend == "" {
			d.Locator.Backend = m.name
		}
		out[i] = d
	}
	return out, nil
}

func (m *Memory) Enumerate(ctx context.Context, dev device.Device) ([]device.MediaItem, error) {
	m.mu.Lock()
	m.enumerateCalls[dev.ID]++
	err := m.enumerateErr[dev.ID]
	items := append([]device.MediaItem{}, m.items[dev.ID]...)
	hook := m.BeforeEnumerateReturn
	m.mu.Unlock()

	if hook != nil {
		hook(dev)
	}
	if err != nil {
		return nil, err
	}
	if !dev.Type.Valid() {
		return []device.MediaItem{}, nil
	}
	return items, nil
}

// Fetch writes the item name as file content
func (m *Memory) Fetch(ctx context.Context, dev device.Device, item device.MediaItem, destPath string) error {
	m.mu.Lock()
	m.fetched = append(m.fetched, item.ID)
	err := m.fetchErr[item.ID]
	hook := m.BeforeFetch
	m.mu.Unlock()

	if hook != nil {
		hook(item)
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", item.Name, err)
	}
	return engine.AtomicWrite(destPath, func(tmp string) error {
		return os.WriteFile(tmp, []byte(item.Name), 0o644)
	})
}
