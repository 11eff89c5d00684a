package backend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/go-plist"

	"PhotoTransfer/pkg/device"
	"PhotoTransfer/pkg/engine"
)

// IOSBackend reaches iPhones and iPads through libimobiledevice and ifuse.
// The device filesystem is only mounted while it is being read.
type IOSBackend struct {
	runner       Runner
	logger       log.Interface
	goos         string
	mountBase    string
	dirTimeout   time.Duration
	stallTimeout time.Duration
	verify       bool
}

// NewIOSBackend creates the iOS backend
func NewIOSBackend(runner Runner, logger log.Interface, verify bool) *IOSBackend {
	if logger == nil {
		logger = log.Log
	}
	return &IOSBackend{
		runner:       runner,
		logger:       logger,
		goos:         runtime.GOOS,
		mountBase:    os.TempDir(),
		dirTimeout:   DirReadTimeout,
		stallTimeout: engine.StallTimeout,
		verify:       verify,
	}
}

func (b *IOSBackend) Name() string { return "ios" }

// Discover lists UDIDs with `idevice_id -l` and asks each device its name
// and storage
func (b *IOSBackend) Discover(ctx context.Context) ([]device.Device, error) {
	if b.goos != "linux" && b.goos != "darwin" {
		return nil, nil
	}
	if !hasTool(b.runner, "idevice_id") {
		return nil, nil
	}
	out, err := b.runner.Run(ctx, "idevice_id", "-l")
	if err != nil {
		return nil, err
	}

	var devices []device.Device
	for _, line := range lines(out) {
		udid := strings.TrimSpace(line)
		if udid == "" {
			continue
		}
		dev := device.Device{
			ID:           "ios-" + udid,
			Name:         "iPhone/iPad",
			Type:         device.TypeIOS,
			Manufacturer: "Apple",
			Connected:    true,
			Locator:      device.Locator{Backend: b.Name(), Serial: udid},
		}
		b.describe(ctx, &dev)
		devices = append(devices, dev)
	}
	return devices, nil
}

// lockdownInfo is the subset of `ideviceinfo -x` output used for a device
type lockdownInfo struct {
	DeviceName     string `plist:"DeviceName"`
	ProductType    string `plist:"ProductType"`
	ProductVersion string `plist:"ProductVersion"`
}

// diskUsageInfo is the com.apple.disk_usage lockdown domain
type diskUsageInfo struct {
	TotalDataCapacity  uint64 `plist:"TotalDataCapacity"`
	TotalDataAvailable uint64 `plist:"TotalDataAvailable"`
}

// describe fills name and storage from lockdown. A locked or untrusted
// device refuses the queries; it keeps the generic name.
func (b *IOSBackend) describe(ctx context.Context, dev *device.Device) {
	udid := dev.Locator.Serial
	var info lockdownInfo
	if err := b.queryPlist(ctx, &info, "ideviceinfo", "-u", udid, "-x"); err != nil {
		b.logger.WithError(err).WithField("udid", udid).Debug("[iOS] Discover: ideviceinfo failed")
		return
	}
	if info.DeviceName != "" {
		dev.Name = info.DeviceName
	}

	var usage diskUsageInfo
	if err := b.queryPlist(ctx, &usage, "ideviceinfo", "-u", udid, "-q", "com.apple.disk_usage", "-x"); err != nil {
		b.logger.WithError(err).WithField("udid", udid).Debug("[iOS] Discover: disk usage query failed")
		return
	}
	dev.StorageTotal = usage.TotalDataCapacity
	if usage.TotalDataCapacity >= usage.TotalDataAvailable {
		dev.StorageUsed = usage.TotalDataCapacity - usage.TotalDataAvailable
	}
}

func (b *IOSBackend) queryPlist(ctx context.Context, v interface{}, name string, args ...string) error {
	out, err := b.runner.Run(ctx, name, args...)
	if err != nil {
		return err
	}
	if err := plist.NewDecoder(bytes.NewReader(out)).Decode(v); err != nil {
		return fmt.Errorf("failed to parse %s output: %w", name, err)
	}
	return nil
}

func (b *IOSBackend) udid(dev device.Device) string {
	if dev.Locator.Serial != "" {
		return dev.Locator.Serial
	}
	return strings.TrimPrefix(dev.ID, "ios-")
}

func (b *IOSBackend) mount(ctx context.Context, dev device.Device, purpose string, fn func(root string) error) error {
	udid := b.udid(dev)
	dir := filepath.Join(b.mountBase, fmt.Sprintf("ios-%s-%s", purpose, udid))
	return fuseMount(ctx, b.runner, b.logger, dir, []string{"ifuse", "-u", udid, dir}, fn)
}

// Enumerate mounts the device, walks DCIM and unmounts again. Item paths are
// stored relative to the mount root.
func (b *IOSBackend) Enumerate(ctx context.Context, dev device.Device) ([]device.MediaItem, error) {
	if dev.Type != device.TypeIOS {
		return []device.MediaItem{}, nil
	}
	if !hasTool(b.runner, "ifuse") {
		return nil, fmt.Errorf("%w: ifuse is not installed", device.ErrUnsupported)
	}

	var items []device.MediaItem
	err := b.mount(ctx, dev, "mount", func(root string) error {
		files, err := walkMedia(ctx, root, filepath.Join(root, "DCIM"), b.dirTimeout)
		if err != nil {
			if os.IsNotExist(err) {
				items = []device.MediaItem{}
				return nil
			}
			return err
		}
		items = itemsFromFiles("ios", files, func(f mediaFile) string { return f.rel })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Fetch copies directly when the item path is reachable (the device is
// mounted by the system), otherwise mounts the device for this one copy.
func (b *IOSBackend) Fetch(ctx context.Context, dev device.Device, item device.MediaItem, destPath string) error {
	opts := engine.CopyOptions{StallTimeout: b.stallTimeout, Verify: b.verify}
	if filepath.IsAbs(item.FullPath) {
		if _, err := os.Stat(item.FullPath); err == nil {
			_, err := engine.CopyFile(ctx, item.FullPath, destPath, opts)
			return err
		}
	}
	if !hasTool(b.runner, "ifuse") {
		return fmt.Errorf("%w: ifuse is not installed", device.ErrUnsupported)
	}
	return b.mount(ctx, dev, "transfer", func(root string) error {
		opts.ConnChecker = func() error {
			_, err := os.Stat(root)
			return err
		}
		_, err := engine.CopyFile(ctx, filepath.Join(root, filepath.FromSlash(item.FullPath)), destPath, opts)
		return err
	})
}
