package backend

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"

	"PhotoTransfer/pkg/device"
	"PhotoTransfer/pkg/engine"
)

const (
	// ADBListTimeout bounds the find over the camera folders
	ADBListTimeout = 5 * time.Minute
	// ADBPullTimeout is the timeout for adb pull operations
	ADBPullTimeout = 30 * time.Minute
	// ADBMediaRoot is where Android keeps camera and screenshot folders
	ADBMediaRoot = "/sdcard/DCIM"
)

// ADBBackend reaches Android phones with USB debugging enabled through adb
type ADBBackend struct {
	runner Runner
	logger log.Interface
	root   string
}

// NewADBBackend creates the adb backend
func NewADBBackend(runner Runner, logger log.Interface) *ADBBackend {
	if logger == nil {
		logger = log.Log
	}
	return &ADBBackend{runner: runner, logger: logger, root: ADBMediaRoot}
}

func (b *ADBBackend) Name() string { return "adb" }

// Discover parses `adb devices -l`. Unauthorized and offline devices are
// ignored.
func (b *ADBBackend) Discover(ctx context.Context) ([]device.Device, error) {
	if !hasTool(b.runner, "adb") {
		return nil, nil
	}
	out, err := b.runner.Run(ctx, "adb", "devices", "-l")
	if err != nil {
		return nil, err
	}

	var devices []device.Device
	for _, line := range lines(out) {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[1] != "device" {
			continue
		}
		serial := fields[0]
		name := "Android Device"
		for _, f := range fields[2:] {
			if model, ok := strings.CutPrefix(f, "model:"); ok {
				name = strings.ReplaceAll(model, "_", " ")
			}
		}
		devices = append(devices, device.Device{
			ID:           "adb-" + serial,
			Name:         name,
			Type:         device.TypeAndroid,
			Manufacturer: b.manufacturer(ctx, serial),
			Connected:    true,
			Locator:      device.Locator{Backend: b.Name(), Serial: serial},
		})
	}
	return devices, nil
}

func (b *ADBBackend) manufacturer(ctx context.Context, serial string) string {
	out, err := b.runner.Run(ctx, "adb", "-s", serial, "shell", "getprop", "ro.product.manufacturer")
	if err != nil {
		return "Unknown"
	}
	if m := strings.TrimSpace(string(out)); m != "" {
		return m
	}
	return "Unknown"
}

// Enumerate runs one find over DCIM that prints size, mtime and path per file
func (b *ADBBackend) Enumerate(ctx context.Context, dev device.Device) ([]device.MediaItem, error) {
	if dev.Type != device.TypeAndroid || dev.Locator.Serial == "" {
		return []device.MediaItem{}, nil
	}
	out, err := longRunner(b.runner, ADBListTimeout).Run(ctx, "adb", "-s", dev.Locator.Serial, "shell",
		"find", b.root, "-type", "f", "-exec", "stat", "-c", "'%s|%Y|%n'", "{}", "+", "2>/dev/null")
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("adb find on %s: %w", dev.Locator.Serial, err)
	}
	return parseADBListing(string(out), b.root), nil
}

// parseADBListing reads "size|mtime|path" lines
func parseADBListing(out, root string) []device.MediaItem {
	items := []device.MediaItem{}
	for _, line := range lines([]byte(out)) {
		parts := strings.SplitN(strings.TrimSpace(line), "|", 3)
		if len(parts) != 3 {
			continue
		}
		phonePath := parts[2]
		rel := "DCIM/" + strings.TrimPrefix(strings.TrimPrefix(phonePath, root), "/")
		name := path.Base(phonePath)
		if engine.ShouldSkip(rel) || !device.IsMediaName(name) {
			continue
		}
		size, _ := strconv.ParseUint(parts[0], 10, 64)
		mtime, _ := strconv.ParseInt(parts[1], 10, 64)
		items = append(items, device.MediaItem{
			ID:       fmt.Sprintf("media-%d", len(items)),
			Name:     name,
			Type:     device.ClassifyName(name),
			Size:     size,
			Date:     device.FormatDate(time.Unix(mtime, 0)),
			FullPath: phonePath,
		})
	}
	return items
}

// Fetch runs `adb pull` into a temporary file. A partial file never reaches
// destPath.
func (b *ADBBackend) Fetch(ctx context.Context, dev device.Device, item device.MediaItem, destPath string) error {
	if dev.Locator.Serial == "" {
		return fmt.Errorf("%w: device %s has no adb serial", device.ErrUnsupported, dev.ID)
	}
	pull := longRunner(b.runner, ADBPullTimeout)
	return engine.AtomicWrite(destPath, func(tmp string) error {
		if _, err := pull.Run(ctx, "adb", "-s", dev.Locator.Serial, "pull", item.FullPath, tmp); err != nil {
			if !b.connected(dev.Locator.Serial) {
				return fmt.Errorf("connection lost during adb pull: device disconnected")
			}
			return fmt.Errorf("adb pull failed: %w", err)
		}
		return nil
	})
}

// connected checks that serial is still listed by adb
func (b *ADBBackend) connected(serial string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := b.runner.Run(ctx, "adb", "devices")
	if err != nil {
		return false
	}
	for _, line := range lines(out) {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == serial && fields[1] == "device" {
			return true
		}
	}
	return false
}
