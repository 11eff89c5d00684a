package backend

import (
	"context"
	"fmt"
	"os"
	"time"

	"PhotoTransfer/pkg/device"
	"PhotoTransfer/pkg/engine"
)

// DemoBackend offers one Android and one iOS device with generated camera
// rolls. Transfers write small placeholder files. It lets the UI be tried
// without a phone attached.
type DemoBackend struct {
	now func() time.Time
}

// NewDemoBackend creates the demo backend
func NewDemoBackend() *DemoBackend {
	return &DemoBackend{now: time.Now}
}

func (b *DemoBackend) Name() string { return "demo" }

func (b *DemoBackend) Discover(ctx context.Context) ([]device.Device, error) {
	return []device.Device{
		{ID: "demo-0", Name: "Demo Android", Type: device.TypeAndroid, Manufacturer: "Demo", StorageUsed: 48 << 30, StorageTotal: 128 << 30, PhotoCount: 20, Connected: true},
		{ID: "demo-1", Name: "Demo iPhone", Type: device.TypeIOS, Manufacturer: "Apple", StorageUsed: 96 << 30, StorageTotal: 256 << 30, PhotoCount: 15, Connected: true},
	}, nil
}

// Enumerate generates 20 Android items (every fifth a video) or 15 iOS items
// (every fourth a video), dated one hour apart going back from now.
func (b *DemoBackend) Enumerate(ctx context.Context, dev device.Device) ([]device.MediaItem, error) {
	now := b.now()
	var items []device.MediaItem
	switch dev.Type {
	case device.TypeAndroid:
		for i := 0; i < 20; i++ {
			name := fmt.Sprintf("IMG_%04d.jpg", 1000+i)
			if i%5 == 0 {
				name = fmt.Sprintf("VID_%04d.mp4", 1000+i)
			}
			items = append(items, device.MediaItem{
				ID:       fmt.Sprintf("demo-%d", i),
				Name:     name,
				Type:     device.ClassifyName(name),
				Size:     3_500_000 + uint64(i)*500_000,
				Date:     device.FormatDate(now.Add(-time.Duration(i) * time.Hour)),
				FullPath: "/DCIM/Camera/" + name,
			})
		}
	case device.TypeIOS:
		for i := 0; i < 15; i++ {
			name := fmt.Sprintf("IMG_%04d.HEIC", 5000+i)
			if i%4 == 0 {
				name = fmt.Sprintf("IMG_%04d.MOV", 5000+i)
			}
			items = append(items, device.MediaItem{
				ID:       fmt.Sprintf("ios-demo-%d", i),
				Name:     name,
				Type:     device.ClassifyName(name),
				Size:     4_000_000 + uint64(i)*800_000,
				Date:     device.FormatDate(now.Add(-time.Duration(i) * time.Hour)),
				FullPath: "/DCIM/100APPLE/" + name,
			})
		}
	default:
		items = []device.MediaItem{}
	}
	return items, nil
}

func (b *DemoBackend) Fetch(ctx context.Context, dev device.Device, item device.MediaItem, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return engine.AtomicWrite(destPath, func(tmp string) error {
		content := fmt.Sprintf("demo %s from %s (%d bytes on device)\n", item.Name, dev.Name, item.Size)
		return os.WriteFile(tmp, []byte(content), 0o644)
	})
}
