package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"PhotoTransfer/internal/backend"
	"PhotoTransfer/pkg/device"
)

type discoverFunc func(ctx context.Context) ([]device.Device, error)

func (f discoverFunc) Discover(ctx context.Context) ([]device.Device, error) { return f(ctx) }

func newTestRegistry(t *testing.T) (*backend.Memory, *MediaCache, *Registry) {
	t.Helper()
	mem := backend.NewMemory("mem")
	cache, err := NewMediaCache(mem, 0, nil)
	require.NoError(t, err)
	return mem, cache, NewRegistry(mem, cache, nil)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	_, _, registry := newTestRegistry(t)
	registry.Refresh(context.Background())

	_, err := registry.Lookup("adb-404")
	require.ErrorIs(t, err, device.ErrDeviceNotFound)
	require.Contains(t, err.Error(), "adb-404")
}

func TestRegistry_RefreshPrunesRemovedDevices(t *testing.T) {
	mem, cache, registry := newTestRegistry(t)
	ctx := context.Background()
	mem.SetDevices(newAndroid("adb-1"), newAndroid("adb-2"))
	mem.SetItems("adb-1", photo("media-0", "IMG_1.jpg", 10))

	require.Len(t, registry.Refresh(ctx), 2)
	dev, err := registry.Lookup("adb-1")
	require.NoError(t, err)
	_, err = cache.GetOrPopulate(ctx, dev)
	require.NoError(t, err)

	// unplug
	mem.SetDevices(newAndroid("adb-2"))
	registry.Refresh(ctx)
	_, ok := cache.Cached("adb-1")
	require.False(t, ok)
	_, err = registry.Lookup("adb-1")
	require.ErrorIs(t, err, device.ErrDeviceNotFound)

	// plug back in: the listing is read from the device again
	mem.SetDevices(newAndroid("adb-1"), newAndroid("adb-2"))
	registry.Refresh(ctx)
	dev, err = registry.Lookup("adb-1")
	require.NoError(t, err)
	_, err = cache.GetOrPopulate(ctx, dev)
	require.NoError(t, err)
	require.Equal(t, 2, mem.EnumerateCalls("adb-1"))
}

func TestRegistry_PruneDuringEnumerationIsNotCommitted(t *testing.T) {
	mem, cache, registry := newTestRegistry(t)
	ctx := context.Background()
	mem.SetDevices(newAndroid("adb-1"))
	mem.SetItems("adb-1", photo("media-0", "IMG_1.jpg", 10))
	registry.Refresh(ctx)
	dev, err := registry.Lookup("adb-1")
	require.NoError(t, err)

	// the device is unplugged while its listing is being read
	mem.BeforeEnumerateReturn = func(device.Device) {
		mem.SetDevices()
		registry.Refresh(ctx)
	}
	items, err := cache.GetOrPopulate(ctx, dev)
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, ok := cache.Cached("adb-1")
	require.False(t, ok)
	require.Zero(t, cache.Stats().Entries)
}

func TestRegistry_ListenersFireOnChange(t *testing.T) {
	mem, _, registry := newTestRegistry(t)
	ctx := context.Background()

	var mu sync.Mutex
	var notified [][]device.Device
	registry.Subscribe(func(devices []device.Device) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, devices)
	})

	registry.Refresh(ctx) // first scan always reports, even when empty
	registry.Refresh(ctx)
	mem.SetDevices(newAndroid("adb-1"))
	registry.Refresh(ctx)
	registry.Refresh(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notified, 2)
	require.Empty(t, notified[0])
	require.Len(t, notified[1], 1)
	require.Equal(t, "adb-1", notified[1][0].ID)
}

func TestRegistry_DiscoveryErrorYieldsDevicesFound(t *testing.T) {
	source := discoverFunc(func(ctx context.Context) ([]device.Device, error) {
		return []device.Device{newAndroid("adb-1")}, errors.New("ios probe failed")
	})
	registry := NewRegistry(source, nil, nil)

	devices := registry.Refresh(context.Background())
	require.Len(t, devices, 1)
	require.Len(t, registry.Devices(), 1)
}

func TestRegistry_DevicesReturnsCopy(t *testing.T) {
	mem, _, registry := newTestRegistry(t)
	mem.SetDevices(newAndroid("adb-1"))
	registry.Refresh(context.Background())

	devices := registry.Devices()
	devices[0].Name = "renamed"
	require.Equal(t, "Phone adb-1", registry.Devices()[0].Name)
}
