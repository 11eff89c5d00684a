package backend

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/apex/log"

	"PhotoTransfer/pkg/device"
)

const wpdQuery = "Get-CimInstance -ClassName Win32_PnPEntity | " +
	"Where-Object { $_.Name -match 'MTP|Apple|Android|iPhone|iPad|Phone' } | " +
	"Select-Object -ExpandProperty Name"

// WPDBackend lists portable devices on Windows by scraping the PnP device
// names. Reading media needs the WPD COM API, which it does not implement.
type WPDBackend struct {
	runner Runner
	logger log.Interface
	goos   string
}

// NewWPDBackend creates the Windows portable device backend
func NewWPDBackend(runner Runner, logger log.Interface) *WPDBackend {
	if logger == nil {
		logger = log.Log
	}
	return &WPDBackend{runner: runner, logger: logger, goos: runtime.GOOS}
}

func (b *WPDBackend) Name() string { return "wpd" }

func (b *WPDBackend) Discover(ctx context.Context) ([]device.Device, error) {
	if b.goos != "windows" || !hasTool(b.runner, "powershell") {
		return nil, nil
	}
	out, err := b.runner.Run(ctx, "powershell", "-NoProfile", "-Command", wpdQuery)
	if err != nil {
		return nil, err
	}
	return parseWPDNames(string(out)), nil
}

func parseWPDNames(out string) []device.Device {
	var devices []device.Device
	for _, line := range lines([]byte(out)) {
		name := strings.TrimSpace(line)
		lower := strings.ToLower(name)
		typ, manufacturer := device.TypeAndroid, "Unknown"
		if strings.Contains(lower, "apple") || strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad") {
			typ, manufacturer = device.TypeIOS, "Apple"
		}
		devices = append(devices, device.Device{
			ID:           fmt.Sprintf("wpd-%d", len(devices)),
			Name:         name,
			Type:         typ,
			Manufacturer: manufacturer,
			Connected:    true,
		})
	}
	return devices
}

func (b *WPDBackend) Enumerate(ctx context.Context, dev device.Device) ([]device.MediaItem, error) {
	b.logger.WithField("device", dev.ID).Debug("[WPD] Enumerate: media listing not available for portable devices")
	return []device.MediaItem{}, nil
}

func (b *WPDBackend) Fetch(ctx context.Context, dev device.Device, item device.MediaItem, destPath string) error {
	return fmt.Errorf("%w: portable device transfer on Windows", device.ErrUnsupported)
}
