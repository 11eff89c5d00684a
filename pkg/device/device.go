// Package device holds the data model shared by the discovery backends, the
// media cache and the transfer engine.
package device

import (
	"context"
	"time"
)

// Type is the platform family of a device
type Type string

const (
	TypeAndroid Type = "android"
	TypeIOS     Type = "ios"
)

// Valid reports whether t is a known device type
func (t Type) Valid() bool {
	return t == TypeAndroid || t == TypeIOS
}

// Locator carries the backend-private data needed to reach a device again.
// It is never serialized.
type Locator struct {
	Backend    string // name of the backend that discovered the device
	MountPoint string // GVFS mount directory or URI
	Serial     string // adb serial or iOS UDID
	USBBus     int
	USBAddress int
}

// Device is a phone-like device attached to the host
type Device struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Type         Type    `json:"type"`
	Manufacturer string  `json:"manufacturer"`
	StorageUsed  uint64  `json:"storageUsed"`
	StorageTotal uint64  `json:"storageTotal"`
	PhotoCount   uint32  `json:"photoCount"`
	Connected    bool    `json:"connected"`
	Locator      Locator `json:"-"`
}

// MediaType distinguishes photos from videos
type MediaType string

const (
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
)

// MediaItem is one media file on a device. Its ID is only meaningful together
// with the ID of the device it was listed from.
type MediaItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      MediaType `json:"type"`
	Size      uint64    `json:"size"`
	Date      string    `json:"date"`
	Thumbnail *string   `json:"thumbnail,omitempty"`
	FullPath  string    `json:"-"`
}

// Time parses Date as RFC 3339, keeping the offset the timestamp was written in.
func (m MediaItem) Time() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, m.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDate renders t the way MediaItem.Date expects it
func FormatDate(t time.Time) string {
	return t.Format(time.RFC3339)
}

// Backend discovers devices, lists their media and copies single files off them.
type Backend interface {
	// Name identifies the backend; it is recorded in Locator.Backend of every
	// device the backend discovers.
	Name() string
	// Discover lists the devices currently reachable. It is best effort: a
	// missing tool or unsupported OS yields an empty list.
	Discover(ctx context.Context) ([]Device, error)
	// Enumerate lists the media files of dev. Unknown device types yield an
	// empty list.
	Enumerate(ctx context.Context, dev Device) ([]MediaItem, error)
	// Fetch copies item to destPath, creating missing parent directories. The
	// file at destPath is either complete or absent.
	Fetch(ctx context.Context, dev Device, item MediaItem, destPath string) error
}
