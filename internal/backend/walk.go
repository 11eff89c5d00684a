package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"PhotoTransfer/pkg/device"
	"PhotoTransfer/pkg/engine"
)

// DirReadTimeout is the timeout for reading a single directory (important for MTP)
const DirReadTimeout = 60 * time.Second

type mediaFile struct {
	path    string
	rel     string // relative to the walk root, slash separated
	size    int64
	modTime time.Time
	kind    device.MediaType
}

type dirEntryResult struct {
	entries []os.DirEntry
	err     error
}

// readDirTimeout reads a directory, giving up after timeout. A hung MTP or
// FUSE mount otherwise blocks the caller forever.
func readDirTimeout(ctx context.Context, dir string, timeout time.Duration) ([]os.DirEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan dirEntryResult, 1)
	go func() {
		entries, err := os.ReadDir(dir)
		result <- dirEntryResult{entries: entries, err: err}
	}()

	select {
	case r := <-result:
		return r.entries, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("reading %s: %w", dir, ctx.Err())
	}
}

// walkMedia collects the photo and video files below dir, skipping
// thumbnails, caches and other non-media files. Unreadable subdirectories are
// skipped; only a failure to read dir itself is returned.
func walkMedia(ctx context.Context, root, dir string, timeout time.Duration) ([]mediaFile, error) {
	var files []mediaFile
	var walk func(current string, top bool) error
	walk = func(current string, top bool) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := readDirTimeout(ctx, current, timeout)
		if err != nil {
			if top {
				return err
			}
			return nil
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, entry := range entries {
			full := filepath.Join(current, entry.Name())
			rel, relErr := engine.NormalizePhonePath(full, root)
			if relErr != nil {
				rel = entry.Name()
			}
			if entry.IsDir() {
				if engine.ShouldSkip(rel + "/x") {
					continue
				}
				if err := walk(full, false); err != nil {
					return err
				}
				continue
			}
			if engine.ShouldSkip(rel) {
				continue
			}
			kind := device.ClassifyName(entry.Name())
			if !device.IsMediaName(entry.Name()) {
				sniffed, ok := device.ClassifyFile(full)
				if !ok {
					continue
				}
				kind = sniffed
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			files = append(files, mediaFile{path: full, rel: rel, size: info.Size(), modTime: info.ModTime(), kind: kind})
		}
		return nil
	}
	if err := walk(dir, true); err != nil {
		return nil, err
	}
	return files, nil
}

// findDCIM returns the DCIM directories directly below root or below one of
// its storage folders ("Internal shared storage", "SD card").
func findDCIM(ctx context.Context, root string, timeout time.Duration) []string {
	var dirs []string
	if info, err := os.Stat(filepath.Join(root, "DCIM")); err == nil && info.IsDir() {
		dirs = append(dirs, filepath.Join(root, "DCIM"))
	}
	entries, err := readDirTimeout(ctx, root, timeout)
	if err != nil {
		return dirs
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "DCIM" {
			continue
		}
		candidate := filepath.Join(root, entry.Name(), "DCIM")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			dirs = append(dirs, candidate)
		}
	}
	return dirs
}

// itemsFromFiles numbers files in order, producing ids prefix-0, prefix-1, ...
func itemsFromFiles(prefix string, files []mediaFile, fullPath func(mediaFile) string) []device.MediaItem {
	items := make([]device.MediaItem, 0, len(files))
	for i, f := range files {
		items = append(items, device.MediaItem{
			ID:       fmt.Sprintf("%s-%d", prefix, i),
			Name:     filepath.Base(f.path),
			Type:     f.kind,
			Size:     uint64(f.size),
			Date:     device.FormatDate(f.modTime),
			FullPath: fullPath(f),
		})
	}
	return items
}
