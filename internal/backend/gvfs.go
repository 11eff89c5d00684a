package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/apex/log"

	"PhotoTransfer/pkg/device"
	"PhotoTransfer/pkg/engine"
)

// GVFSBackend reaches Android phones (and PTP cameras) that GNOME's GVFS has
// mounted below /run/user/<uid>/gvfs.
type GVFSBackend struct {
	runner       Runner
	logger       log.Interface
	gvfsRoot     string
	goos         string
	dirTimeout   time.Duration
	stallTimeout time.Duration
	verify       bool
}

// GVFSOption configures a GVFSBackend
type GVFSOption func(*GVFSBackend)

// WithGVFSRoot overrides the GVFS mount directory
func WithGVFSRoot(dir string) GVFSOption {
	return func(b *GVFSBackend) { b.gvfsRoot = dir }
}

// WithVerify makes every copy compare source and destination hashes
func WithVerify(verify bool) GVFSOption {
	return func(b *GVFSBackend) { b.verify = verify }
}

// WithStallTimeout sets how long a copy may go without progress
func WithStallTimeout(d time.Duration) GVFSOption {
	return func(b *GVFSBackend) { b.stallTimeout = d }
}

// NewGVFSBackend creates the GVFS backend
func NewGVFSBackend(runner Runner, logger log.Interface, opts ...GVFSOption) *GVFSBackend {
	if logger == nil {
		logger = log.Log
	}
	b := &GVFSBackend{
		runner:       runner,
		logger:       logger,
		gvfsRoot:     GVFSRoot(),
		goos:         runtime.GOOS,
		dirTimeout:   DirReadTimeout,
		stallTimeout: engine.StallTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GVFSRoot is the directory GVFS mounts devices under for the current user
func GVFSRoot() string {
	return filepath.Join("/run/user", fmt.Sprintf("%d", os.Getuid()), "gvfs")
}

func (b *GVFSBackend) Name() string { return "gvfs" }

var mountPrefix = regexp.MustCompile(`^\s*Mount\(\d+\):\s*`)

// Discover lists GVFS mounts reported by `gio mount -l` and, for mounts gio
// did not report, the mtp:/gphoto2: directories below the GVFS root.
func (b *GVFSBackend) Discover(ctx context.Context) ([]device.Device, error) {
	if b.goos != "linux" {
		return nil, nil
	}

	var devices []device.Device
	seenMount := make(map[string]bool)
	add := func(name, mount string) {
		if seenMount[mount] {
			return
		}
		seenMount[mount] = true
		devices = append(devices, device.Device{
			ID:           fmt.Sprintf("mtp-%d", len(devices)),
			Name:         name,
			Type:         device.TypeAndroid,
			Manufacturer: "Unknown",
			Connected:    true,
			Locator:      device.Locator{Backend: b.Name(), MountPoint: mount},
		})
	}

	var gioErr error
	if hasTool(b.runner, "gio") {
		out, err := b.runner.Run(ctx, "gio", "mount", "-l")
		if err != nil {
			gioErr = err
		}
		for _, line := range lines(out) {
			uri := extractURI(line)
			if uri == "" {
				continue
			}
			name := "Android Device"
			if before, _, found := strings.Cut(line, "->"); found {
				if n := strings.TrimSpace(mountPrefix.ReplaceAllString(before, "")); n != "" {
					name = n
				}
			}
			add(name, b.mountDir(uri))
		}
	}

	entries, err := os.ReadDir(b.gvfsRoot)
	if err == nil {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, entry := range entries {
			n := entry.Name()
			if !entry.IsDir() || !(strings.HasPrefix(n, "mtp:") || strings.HasPrefix(n, "gphoto2:")) {
				continue
			}
			add(hostName(n), filepath.Join(b.gvfsRoot, n))
		}
	}

	return devices, gioErr
}

// extractURI returns the mtp:// or gphoto2:// URI in a gio output line
func extractURI(line string) string {
	for _, scheme := range []string{"mtp://", "gphoto2://"} {
		if idx := strings.Index(line, scheme); idx >= 0 {
			fields := strings.Fields(line[idx:])
			if len(fields) > 0 {
				return fields[0]
			}
		}
	}
	return ""
}

// mountDir maps a GVFS URI to its FUSE directory, mtp://Host/ becoming
// <root>/mtp:host=Host. The URI is kept when no such directory exists.
func (b *GVFSBackend) mountDir(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	host := strings.TrimSuffix(rest, "/")
	dir := filepath.Join(b.gvfsRoot, scheme+":host="+host)
	if _, err := os.Stat(dir); err == nil {
		return dir
	}
	return uri
}

// hostName turns "mtp:host=Google_Pixel_7_1234" into "Google Pixel 7 1234"
func hostName(dir string) string {
	_, host, found := strings.Cut(dir, "host=")
	if !found {
		return dir
	}
	return strings.ReplaceAll(host, "_", " ")
}

// Enumerate walks every DCIM folder of the mount
func (b *GVFSBackend) Enumerate(ctx context.Context, dev device.Device) ([]device.MediaItem, error) {
	if dev.Type != device.TypeAndroid {
		return []device.MediaItem{}, nil
	}
	root := dev.Locator.MountPoint
	if root == "" {
		return []device.MediaItem{}, nil
	}
	if strings.Contains(root, "://") {
		return b.enumerateGio(ctx, dev, root)
	}
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("mount %s not accessible: %w", root, err)
	}

	var files []mediaFile
	for _, dcim := range findDCIM(ctx, root, b.dirTimeout) {
		found, err := walkMedia(ctx, root, dcim, b.dirTimeout)
		if err != nil {
			b.logger.WithError(err).WithField("dir", dcim).Warn("[GVFS] Enumerate: failed to read DCIM")
			continue
		}
		files = append(files, found...)
	}
	b.logger.WithFields(log.Fields{"device": dev.ID, "files": len(files)}).Debug("[GVFS] Enumerate: walked mount")
	return itemsFromFiles("media", files, func(f mediaFile) string { return f.path }), nil
}

// enumerateGio lists the DCIM folder of a mount that has no FUSE directory.
// `gio list -l` prints "name<TAB>size<TAB>(type)" per entry.
func (b *GVFSBackend) enumerateGio(ctx context.Context, dev device.Device, uri string) ([]device.MediaItem, error) {
	dcim := strings.TrimSuffix(uri, "/") + "/DCIM"
	out, err := b.runner.Run(ctx, "gio", "list", "-l", dcim)
	if err != nil {
		return nil, fmt.Errorf("gio list %s: %w", dcim, err)
	}
	items := []device.MediaItem{}
	now := device.FormatDate(time.Now())
	for _, line := range lines(out) {
		fields := strings.Split(line, "\t")
		name := strings.TrimSpace(fields[0])
		if name == "" || engine.ShouldSkip("DCIM/"+name) || !device.IsMediaName(name) {
			continue
		}
		if len(fields) > 2 && strings.Contains(fields[2], "directory") {
			continue
		}
		var size uint64
		if len(fields) > 1 {
			fmt.Sscanf(strings.TrimSpace(fields[1]), "%d", &size)
		}
		items = append(items, device.MediaItem{
			ID:       fmt.Sprintf("media-%d", len(items)),
			Name:     name,
			Type:     device.ClassifyName(name),
			Size:     size,
			Date:     now,
			FullPath: dcim + "/" + name,
		})
	}
	b.logger.WithFields(log.Fields{"device": dev.ID, "files": len(items)}).Debug("[GVFS] enumerateGio: listed DCIM")
	return items, nil
}

// Fetch copies from the FUSE mount with stall detection, falling back to
// `gio copy` when the direct read fails.
func (b *GVFSBackend) Fetch(ctx context.Context, dev device.Device, item device.MediaItem, destPath string) error {
	root := dev.Locator.MountPoint
	checker := func() error {
		if root == "" || strings.Contains(root, "://") {
			return nil
		}
		_, err := os.Stat(root)
		return err
	}

	_, err := engine.CopyFile(ctx, item.FullPath, destPath, engine.CopyOptions{
		StallTimeout: b.stallTimeout,
		Verify:       b.verify,
		ConnChecker:  checker,
	})
	if err == nil || ctx.Err() != nil || !hasTool(b.runner, "gio") {
		return err
	}

	b.logger.WithError(err).WithField("item", item.Name).Warn("[GVFS] Fetch: direct copy failed, trying gio copy")
	pull := longRunner(b.runner, 30*time.Minute)
	return engine.AtomicWrite(destPath, func(tmp string) error {
		if _, gerr := pull.Run(ctx, "gio", "copy", item.FullPath, tmp); gerr != nil {
			return fmt.Errorf("gio copy failed after direct copy error (%v): %w", err, gerr)
		}
		return nil
	})
}
