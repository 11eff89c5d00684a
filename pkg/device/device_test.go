package device

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeviceJSONHidesLocator(t *testing.T) {
	req := require.New(t)

	dev := Device{
		ID:           "mtp-0",
		Name:         "Pixel 7",
		Type:         TypeAndroid,
		Manufacturer: "Google",
		StorageTotal: 128,
		Connected:    true,
		Locator:      Locator{Backend: "gvfs", MountPoint: "/run/user/1000/gvfs/mtp:host=Google_Pixel_7"},
	}
	data, err := json.Marshal(dev)
	req.NoError(err)

	var fields map[string]any
	req.NoError(json.Unmarshal(data, &fields))
	req.Equal("android", fields["type"])
	req.Contains(fields, "storageUsed")
	req.Contains(fields, "photoCount")
	req.NotContains(fields, "Locator")
	req.NotContains(string(data), "gvfs")
}

func TestMediaItemJSONOmitsFullPath(t *testing.T) {
	req := require.New(t)

	item := MediaItem{ID: "media-0", Name: "IMG_1000.jpg", Type: MediaPhoto, Size: 10, Date: "2024-01-15T10:00:00Z", FullPath: "/secret/DCIM/IMG_1000.jpg"}
	data, err := json.Marshal(item)
	req.NoError(err)
	req.NotContains(string(data), "secret")
	req.NotContains(string(data), "thumbnail")
}

func TestMediaItemTimeKeepsOffset(t *testing.T) {
	req := require.New(t)

	ts, ok := MediaItem{Date: "2024-01-15T23:30:00-05:00"}.Time()
	req.True(ok)
	req.Equal(15, ts.Day())

	_, ok = MediaItem{Date: "yesterday"}.Time()
	req.False(ok)
}

func TestClassifyName(t *testing.T) {
	tests := []struct {
		name     string
		expected MediaType
	}{
		{"VID_1000.mp4", MediaVideo},
		{"IMG_5000.MOV", MediaVideo},
		{"IMG_5000.HEIC", MediaPhoto},
		{"IMG_1000.jpg", MediaPhoto},
		{"notes.txt", MediaPhoto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, ClassifyName(tt.name))
		})
	}
}

func TestClassifyFileSniffsUnknownExtension(t *testing.T) {
	req := require.New(t)

	dir := t.TempDir()
	png := filepath.Join(dir, "picture.bin")
	// PNG signature followed by an IHDR chunk header
	req.NoError(os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00"), 0o644))

	mt, ok := ClassifyFile(png)
	req.True(ok)
	req.Equal(MediaPhoto, mt)

	txt := filepath.Join(dir, "notes.bin")
	req.NoError(os.WriteFile(txt, []byte("just some text"), 0o644))
	_, ok = ClassifyFile(txt)
	req.False(ok)
}
