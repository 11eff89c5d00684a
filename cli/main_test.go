package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"PhotoTransfer/internal/config"
	"PhotoTransfer/pkg/device"
)

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	cfg.Destination = "/from/file"

	v := viper.New()
	applyOverrides(cfg, v)
	require.Equal(t, "/from/file", cfg.Destination)
	require.False(t, cfg.Demo)

	v.Set("destination", "/from/flag")
	v.Set("backends", []string{"adb,usb", " demo "})
	v.Set("demo", true)
	v.Set("organize_by_date", true)
	applyOverrides(cfg, v)
	require.Equal(t, "/from/flag", cfg.Destination)
	require.Equal(t, []string{"adb", "usb", "demo"}, cfg.Backends)
	require.True(t, cfg.Demo)
	require.True(t, cfg.OrganizeByDate)
	require.NoError(t, cfg.Validate())
}

func TestApplyOverridesFromEnv(t *testing.T) {
	t.Setenv("PHOTOTRANSFER_DEVICE_TYPE", "ios")

	v := viper.New()
	v.SetEnvPrefix("phototransfer")
	v.AutomaticEnv()

	cfg := config.Default()
	applyOverrides(cfg, v)
	require.Equal(t, "ios", cfg.DeviceType)
}

func TestFilterMedia(t *testing.T) {
	items := []device.MediaItem{
		{ID: "media-0", Type: device.MediaPhoto, Size: 10},
		{ID: "media-1", Type: device.MediaVideo, Size: 20},
		{ID: "media-2", Type: device.MediaPhoto, Size: 5},
	}
	require.Len(t, filterMedia(items, ""), 3)
	require.Len(t, filterMedia(items, "video"), 1)
	require.Equal(t, uint64(15), totalSize(filterMedia(items, "photo")))
}

func TestStorageColumns(t *testing.T) {
	require.Equal(t, "-", storage(device.Device{}))
	require.Equal(t, "1.0 GB / 4.0 GB", storage(device.Device{StorageUsed: 1e9, StorageTotal: 4e9}))
	require.Equal(t, "-", photoCount(device.Device{}))
	require.Equal(t, "12", photoCount(device.Device{PhotoCount: 12}))
}
