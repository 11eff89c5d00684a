package backend

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"

	"PhotoTransfer/pkg/device"
	"PhotoTransfer/pkg/engine"
)

// MTPBackend talks to an unmounted MTP device with the libmtp command line
// tools. It is a fallback for hosts where GVFS did not claim the phone.
type MTPBackend struct {
	runner Runner
	logger log.Interface
	goos   string
}

// NewMTPBackend creates the libmtp backend
func NewMTPBackend(runner Runner, logger log.Interface) *MTPBackend {
	if logger == nil {
		logger = log.Log
	}
	return &MTPBackend{runner: runner, logger: logger, goos: runtime.GOOS}
}

func (b *MTPBackend) Name() string { return "mtp" }

// Discover parses `mtp-detect`. libmtp only ever reports the first device in
// a form worth parsing, so at most one device (mtp-0) is returned.
func (b *MTPBackend) Discover(ctx context.Context) ([]device.Device, error) {
	if b.goos != "linux" || !hasTool(b.runner, "mtp-detect") {
		return nil, nil
	}
	out, err := b.runner.Run(ctx, "mtp-detect")
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return parseMTPDetect(string(out)), nil
}

func parseMTPDetect(out string) []device.Device {
	if !strings.Contains(out, "LIBMTP") || strings.Contains(out, "No devices") {
		return nil
	}
	name, manufacturer := "Android Device", "Unknown"
	for _, line := range strings.Split(out, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), ":")
		if !found || strings.TrimSpace(value) == "" {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Manufacturer":
			manufacturer = strings.TrimSpace(value)
		case "Model":
			name = strings.TrimSpace(value)
		}
	}
	return []device.Device{{
		ID:           "mtp-0",
		Name:         name,
		Type:         device.TypeAndroid,
		Manufacturer: manufacturer,
		Connected:    true,
	}}
}

// Enumerate parses `mtp-files`, keeping photos and videos
func (b *MTPBackend) Enumerate(ctx context.Context, dev device.Device) ([]device.MediaItem, error) {
	if dev.Type != device.TypeAndroid || !hasTool(b.runner, "mtp-files") {
		return []device.MediaItem{}, nil
	}
	out, err := longRunner(b.runner, 5*time.Minute).Run(ctx, "mtp-files")
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return parseMTPFiles(string(out), time.Now()), nil
}

// parseMTPFiles reads blocks of the form
//
//	File ID: 12
//	   Filename: IMG_1.jpg
//	   File size 2345678 (0x...) bytes
func parseMTPFiles(out string, now time.Time) []device.MediaItem {
	items := []device.MediaItem{}
	var id, name string
	var size uint64
	flush := func() {
		if id != "" && name != "" && device.IsMediaName(name) && !engine.ShouldSkip(name) {
			items = append(items, device.MediaItem{
				ID:       fmt.Sprintf("media-%d", len(items)),
				Name:     name,
				Type:     device.ClassifyName(name),
				Size:     size,
				Date:     device.FormatDate(now),
				FullPath: id,
			})
		}
		id, name, size = "", "", 0
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "File ID:"):
			flush()
			id = strings.TrimSpace(strings.TrimPrefix(line, "File ID:"))
		case strings.HasPrefix(line, "Filename:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "Filename:"))
		case strings.HasPrefix(line, "File size"):
			fields := strings.Fields(strings.TrimPrefix(line, "File size"))
			if len(fields) > 0 {
				size, _ = strconv.ParseUint(fields[0], 10, 64)
			}
		}
	}
	flush()
	return items
}

// Fetch pulls the file by its MTP object id with `mtp-getfile`
func (b *MTPBackend) Fetch(ctx context.Context, dev device.Device, item device.MediaItem, destPath string) error {
	if !hasTool(b.runner, "mtp-getfile") {
		return fmt.Errorf("%w: mtp-getfile is not installed", device.ErrUnsupported)
	}
	pull := longRunner(b.runner, 30*time.Minute)
	return engine.AtomicWrite(destPath, func(tmp string) error {
		if _, err := pull.Run(ctx, "mtp-getfile", item.FullPath, tmp); err != nil {
			return fmt.Errorf("mtp-getfile %s: %w", item.Name, err)
		}
		return nil
	})
}
