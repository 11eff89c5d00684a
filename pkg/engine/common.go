package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// StallTimeout is the duration to wait for bytes before considering a transfer stalled
	StallTimeout = 30 * time.Second
	// BufferSize for copying
	BufferSize = 64 * 1024
	// HashChunkSize is the read size used while hashing
	HashChunkSize = 1024 * 1024
	// ProgressUpdateInterval is how often byte counts are reported during a single copy
	ProgressUpdateInterval = 2 * time.Second
)

// storagePrefixes are the top level folders MTP exposes per storage
var storagePrefixes = []string{
	"Internal shared storage/",
	"Internal storage/",
	"Phone/",
	"SD card/",
	"Card/",
}

// ShouldSkip reports whether a file found under a device's DCIM tree is not a
// user photo or video: metadata, thumbnails, caches and partial downloads.
func ShouldSkip(phonePath string) bool {
	phonePath = filepath.ToSlash(phonePath)
	base := strings.ToLower(filepath.Base(phonePath))
	lower := strings.ToLower(phonePath)

	switch base {
	case ".nomedia", ".ds_store", "thumbs.db", ".thumbdata", "desktop.ini":
		return true
	}
	if strings.HasPrefix(base, "._") || strings.HasPrefix(base, ".trashed-") || strings.HasPrefix(base, ".pending-") {
		return true
	}
	if strings.HasPrefix(base, "thumb_") || strings.HasSuffix(base, ".cache.jpg") || strings.HasSuffix(base, ".temp.mp4") {
		return true
	}

	switch strings.TrimPrefix(filepath.Ext(base), ".") {
	case "tmp", "partial", "part", "crdownload", "download", "cache", "exo",
		"db", "db-wal", "db-shm", "journal", "log", "aae", "plist":
		return true
	}

	for _, dir := range []string{"/.thumbnails/", "/thumbnails/", "/cache/", "/.trash/", "/.trashed/"} {
		if strings.Contains("/"+lower, dir) {
			return true
		}
	}
	return false
}

// NormalizePhonePath returns the path of sourcePath relative to sourceRoot with
// the MTP storage folder stripped, so "Internal shared storage/DCIM/x.jpg"
// becomes "DCIM/x.jpg".
func NormalizePhonePath(sourcePath, sourceRoot string) (string, error) {
	relPath, err := filepath.Rel(sourceRoot, sourcePath)
	if err != nil {
		return "", err
	}
	relPath = filepath.ToSlash(relPath)
	for _, prefix := range storagePrefixes {
		if strings.HasPrefix(relPath, prefix) {
			return strings.TrimPrefix(relPath, prefix), nil
		}
	}
	return relPath, nil
}

// HashFile returns the hex encoded SHA-256 digest of the file at path. The file
// is streamed in HashChunkSize reads.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	hash := sha256.New()
	buf := make([]byte, HashChunkSize)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			hash.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
