package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/require"

	"PhotoTransfer/pkg/device"
)

const gioMountOutput = `Drive(0): Samsung SSD 970
  Type: GProxyDrive (GProxyVolumeMonitorUDisks2)
Mount(0): Pixel 7 -> mtp://Google_Pixel_7_28161FDH2000J0/
  Type: GProxyShadowMount (GProxyVolumeMonitorMTP)
Mount(1): Canon EOS -> gphoto2://Canon_Inc._Canon_Digital_Camera/
Mount(2): data -> file:///mnt/data
`

func TestGVFSDiscoverParsesGioMounts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "mtp:host=Google_Pixel_7_28161FDH2000J0"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "mtp:host=Other_Phone"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "smb-share:server=nas"), 0o755))

	r := newFakeRunner("gio").on("gio mount -l", gioMountOutput)
	b := NewGVFSBackend(r, nil, WithGVFSRoot(root))
	b.goos = "linux"

	devices, err := b.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 3)

	require.Equal(t, "mtp-0", devices[0].ID)
	require.Equal(t, "Pixel 7", devices[0].Name)
	require.Equal(t, filepath.Join(root, "mtp:host=Google_Pixel_7_28161FDH2000J0"), devices[0].Locator.MountPoint)

	require.Equal(t, "Canon EOS", devices[1].Name)
	require.Equal(t, "gphoto2://Canon_Inc._Canon_Digital_Camera/", devices[1].Locator.MountPoint)

	require.Equal(t, "mtp-2", devices[2].ID)
	require.Equal(t, "Other Phone", devices[2].Name)
	for _, d := range devices {
		require.Equal(t, device.TypeAndroid, d.Type)
		require.True(t, d.Connected)
	}
}

func TestGVFSDiscoverOffLinux(t *testing.T) {
	r := newFakeRunner("gio")
	b := NewGVFSBackend(r, nil, WithGVFSRoot(t.TempDir()))
	b.goos = "darwin"
	devices, err := b.Discover(context.Background())
	require.NoError(t, err)
	require.Empty(t, devices)
	require.Empty(t, r.Calls())
}

func TestGVFSEnumerateWalksDCIM(t *testing.T) {
	mount := t.TempDir()
	camera := filepath.Join(mount, "Internal shared storage", "DCIM", "Camera")
	require.NoError(t, os.MkdirAll(filepath.Join(camera, ".thumbnails"), 0o755))
	write := func(path, content string) {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write(filepath.Join(camera, "IMG_1.jpg"), "one")
	write(filepath.Join(camera, "VID_2.mp4"), "two!")
	write(filepath.Join(camera, ".nomedia"), "")
	write(filepath.Join(camera, "notes.txt"), "plain text")
	write(filepath.Join(camera, ".thumbnails", "IMG_1.jpg"), "thumb")

	b := NewGVFSBackend(newFakeRunner(), nil)
	dev := device.Device{ID: "mtp-0", Type: device.TypeAndroid, Locator: device.Locator{MountPoint: mount}}
	items, err := b.Enumerate(context.Background(), dev)
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.Equal(t, "media-0", items[0].ID)
	require.Equal(t, "IMG_1.jpg", items[0].Name)
	require.Equal(t, device.MediaPhoto, items[0].Type)
	require.Equal(t, uint64(3), items[0].Size)
	require.Equal(t, filepath.Join(camera, "IMG_1.jpg"), items[0].FullPath)

	require.Equal(t, "VID_2.mp4", items[1].Name)
	require.Equal(t, device.MediaVideo, items[1].Type)
}

func TestGVFSEnumerateIgnoresIOS(t *testing.T) {
	b := NewGVFSBackend(newFakeRunner(), nil)
	items, err := b.Enumerate(context.Background(), device.Device{Type: device.TypeIOS, Locator: device.Locator{MountPoint: "/x"}})
	require.NoError(t, err)
	require.NotNil(t, items)
	require.Empty(t, items)
}

func TestGVFSEnumerateGio(t *testing.T) {
	uri := "gphoto2://Canon/"
	r := newFakeRunner("gio").on("gio list -l gphoto2://Canon/DCIM",
		"IMG_0001.JPG\t2048\t(regular)\n100CANON\t0\t(directory)\nTHUMB_1.tmp\t10\t(regular)\n")
	b := NewGVFSBackend(r, nil)
	items, err := b.Enumerate(context.Background(), device.Device{ID: "mtp-1", Type: device.TypeAndroid, Locator: device.Locator{MountPoint: uri}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "IMG_0001.JPG", items[0].Name)
	require.Equal(t, uint64(2048), items[0].Size)
	require.Equal(t, "gphoto2://Canon/DCIM/IMG_0001.JPG", items[0].FullPath)
}

func TestGVFSFetchCopiesFromMount(t *testing.T) {
	mount := t.TempDir()
	src := filepath.Join(mount, "IMG_1.jpg")
	require.NoError(t, os.WriteFile(src, []byte("pixels"), 0o644))

	b := NewGVFSBackend(newFakeRunner(), nil, WithVerify(true), WithStallTimeout(time.Second))
	dst := filepath.Join(t.TempDir(), "out", "IMG_1.jpg")
	dev := device.Device{ID: "mtp-0", Type: device.TypeAndroid, Locator: device.Locator{MountPoint: mount}}
	require.NoError(t, b.Fetch(context.Background(), dev, device.MediaItem{Name: "IMG_1.jpg", FullPath: src}, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "pixels", string(data))
}

const mtpDetectOutput = `libmtp version: 1.1.19

Listing raw device(s)
Device 0 (VID=04e8 and PID=6860) is a Samsung Galaxy models (MTP).
   Found 1 device(s):
   Samsung: Galaxy models (MTP) (04e8:6860) @ bus 1, dev 5
Attempting to connect device(s)
LIBMTP_Get_First_Device: Listing raw device(s)
MTP-specific device properties:
   Manufacturer: samsung
   Model: SM-G991B
   Device version: G991BXXU5CVLL
`

func TestParseMTPDetect(t *testing.T) {
	devices := parseMTPDetect(mtpDetectOutput)
	require.Len(t, devices, 1)
	require.Equal(t, "mtp-0", devices[0].ID)
	require.Equal(t, "SM-G991B", devices[0].Name)
	require.Equal(t, "samsung", devices[0].Manufacturer)
	require.Equal(t, device.TypeAndroid, devices[0].Type)

	require.Empty(t, parseMTPDetect("libmtp version: 1.1.19\nNo raw devices found.\n"))
	require.Empty(t, parseMTPDetect("LIBMTP_Get_First_Device: No devices have been found\n"))
}

const mtpFilesOutput = `File ID: 17
   Filename: IMG_20240115_101500.jpg
   File size 2345678 (0x000000000023CACE) bytes
   Parent ID: 4
File ID: 18
   Filename: .nomedia
   File size 0 (0x0000000000000000) bytes
File ID: 19
   Filename: VID_20240116.mp4
   File size 9000000 (0x0000000000895440) bytes
File ID: 20
   Filename: recording.m4a
   File size 100 (0x0000000000000064) bytes
`

func TestParseMTPFiles(t *testing.T) {
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	items := parseMTPFiles(mtpFilesOutput, now)
	require.Len(t, items, 2)

	require.Equal(t, "media-0", items[0].ID)
	require.Equal(t, "IMG_20240115_101500.jpg", items[0].Name)
	require.Equal(t, uint64(2345678), items[0].Size)
	require.Equal(t, "17", items[0].FullPath)
	require.Equal(t, device.FormatDate(now), items[0].Date)

	require.Equal(t, "media-1", items[1].ID)
	require.Equal(t, device.MediaVideo, items[1].Type)
	require.Equal(t, "19", items[1].FullPath)
}

func TestMTPFetchUsesObjectID(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "IMG_1.jpg")
	r := newFakeRunner("mtp-getfile")
	r.onRun = func(cmd string) {
		// mtp-getfile <id> <tmp>: create the file it was asked for
		fields := strings.Fields(cmd)
		if len(fields) == 3 && fields[0] == "mtp-getfile" {
			os.WriteFile(fields[2], []byte("from phone"), 0o644)
			r.on(cmd, "")
		}
	}
	b := NewMTPBackend(r, nil)
	err := b.Fetch(context.Background(), device.Device{ID: "mtp-0"}, device.MediaItem{Name: "IMG_1.jpg", FullPath: "17"}, dst)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "from phone", string(data))
	require.Contains(t, r.Calls()[0], "mtp-getfile 17 ")
}

const adbDevicesOutput = `List of devices attached
R58N12ABCDE            device usb:1-1 product:o1sxeea model:SM_G991B device:o1s transport_id:3
emulator-5554          offline
ZY22FFF                unauthorized usb:1-2 transport_id:4
`

func TestADBDiscover(t *testing.T) {
	r := newFakeRunner("adb").
		on("adb devices -l", adbDevicesOutput).
		on("adb -s R58N12ABCDE shell getprop ro.product.manufacturer", "samsung\n")
	devices, err := NewADBBackend(r, nil).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "adb-R58N12ABCDE", devices[0].ID)
	require.Equal(t, "SM G991B", devices[0].Name)
	require.Equal(t, "samsung", devices[0].Manufacturer)
	require.Equal(t, "R58N12ABCDE", devices[0].Locator.Serial)
	require.Equal(t, "adb", devices[0].Locator.Backend)
}

func TestADBDiscoverWithoutTool(t *testing.T) {
	r := newFakeRunner()
	devices, err := NewADBBackend(r, nil).Discover(context.Background())
	require.NoError(t, err)
	require.Empty(t, devices)
	require.Empty(t, r.Calls())
}

func TestParseADBListing(t *testing.T) {
	out := "2048|1705313700|/sdcard/DCIM/Camera/IMG_1.jpg\n" +
		"0|1705313700|/sdcard/DCIM/Camera/.nomedia\n" +
		"99|1705313700|/sdcard/DCIM/.thumbnails/123.jpg\n" +
		"garbage line\n" +
		"4096|1705400100|/sdcard/DCIM/Camera/VID_2.mp4\n"
	items := parseADBListing(out, ADBMediaRoot)
	require.Len(t, items, 2)
	require.Equal(t, "media-0", items[0].ID)
	require.Equal(t, "IMG_1.jpg", items[0].Name)
	require.Equal(t, uint64(2048), items[0].Size)
	require.Equal(t, "/sdcard/DCIM/Camera/IMG_1.jpg", items[0].FullPath)
	ts, ok := items[0].Time()
	require.True(t, ok)
	require.Equal(t, int64(1705313700), ts.Unix())
	require.Equal(t, device.MediaVideo, items[1].Type)
}

func TestADBFetchRequiresSerial(t *testing.T) {
	err := NewADBBackend(newFakeRunner("adb"), nil).Fetch(context.Background(), device.Device{ID: "x"}, device.MediaItem{}, filepath.Join(t.TempDir(), "a"))
	require.ErrorIs(t, err, device.ErrUnsupported)
}

const lockdownPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>DeviceName</key>
	<string>Ana's iPhone</string>
	<key>ProductType</key>
	<string>iPhone14,5</string>
	<key>ProductVersion</key>
	<string>17.4.1</string>
</dict>
</plist>
`

const diskUsagePlist = `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
	<key>TotalDataAvailable</key>
	<integer>40000000000</integer>
	<key>TotalDataCapacity</key>
	<integer>120000000000</integer>
</dict>
</plist>
`

func TestIOSDiscover(t *testing.T) {
	r := newFakeRunner("idevice_id", "ideviceinfo").
		on("idevice_id -l", "00008110-001A2B3C4D5E\n00008030-FFFF\n").
		on("ideviceinfo -u 00008110-001A2B3C4D5E -x", lockdownPlist).
		on("ideviceinfo -u 00008110-001A2B3C4D5E -q com.apple.disk_usage -x", diskUsagePlist).
		fail("ideviceinfo -u 00008030-FFFF -x", os.ErrPermission)
	b := NewIOSBackend(r, nil, false)
	b.goos = "linux"

	devices, err := b.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	require.Equal(t, "ios-00008110-001A2B3C4D5E", devices[0].ID)
	require.Equal(t, "Ana's iPhone", devices[0].Name)
	require.Equal(t, device.TypeIOS, devices[0].Type)
	require.Equal(t, "Apple", devices[0].Manufacturer)
	require.Equal(t, uint64(120000000000), devices[0].StorageTotal)
	require.Equal(t, uint64(80000000000), devices[0].StorageUsed)

	require.Equal(t, "iPhone/iPad", devices[1].Name)
	require.Zero(t, devices[1].StorageTotal)
}

func TestIOSDiscoverBadPlist(t *testing.T) {
	r := newFakeRunner("idevice_id", "ideviceinfo").
		on("idevice_id -l", "ABC\n").
		on("ideviceinfo -u ABC -x", "ERROR: Could not connect to lockdownd\n")
	b := NewIOSBackend(r, nil, false)
	b.goos = "linux"

	devices, err := b.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "iPhone/iPad", devices[0].Name)
}

func TestIOSEnumerateUnmountsOnError(t *testing.T) {
	base := t.TempDir()
	udid := "ABC"
	dir := filepath.Join(base, "ios-mount-"+udid)
	unmountName, unmountArgs := unmountCommand(dir)

	r := newFakeRunner("ifuse").
		on("ifuse -u ABC "+dir, "").
		on(joinCmd(unmountName, unmountArgs), "")
	b := NewIOSBackend(r, nil, false)
	b.mountBase = base
	b.dirTimeout = time.Second

	// DCIM is missing in the (empty) mount point: an empty listing, not an error
	items, err := b.Enumerate(context.Background(), device.Device{ID: "ios-ABC", Type: device.TypeIOS, Locator: device.Locator{Serial: udid}})
	require.NoError(t, err)
	require.Empty(t, items)

	calls := r.Calls()
	require.Equal(t, []string{"ifuse -u ABC " + dir, joinCmd(unmountName, unmountArgs)}, calls)
	_, statErr := os.Stat(dir)
	require.True(t, os.IsNotExist(statErr))
}

func TestFuseMountReleasesWhenCallbackFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mnt")
	unmountName, unmountArgs := unmountCommand(dir)
	r := newFakeRunner().on("mount-it", "").on(joinCmd(unmountName, unmountArgs), "")

	err := fuseMount(context.Background(), r, log.Log, dir, []string{"mount-it"}, func(root string) error {
		return os.ErrDeadlineExceeded
	})
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	require.Equal(t, []string{"mount-it", joinCmd(unmountName, unmountArgs)}, r.Calls())
}

func TestFuseMountFailureSkipsUnmount(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mnt")
	r := newFakeRunner().fail("mount-it", os.ErrPermission)
	called := false
	err := fuseMount(context.Background(), r, log.Log, dir, []string{"mount-it"}, func(string) error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.False(t, called)
	require.Len(t, r.Calls(), 1)
}

func TestParseWPDNames(t *testing.T) {
	devices := parseWPDNames("Galaxy S21\r\nApple iPhone\r\n\r\n")
	require.Len(t, devices, 2)
	require.Equal(t, "wpd-0", devices[0].ID)
	require.Equal(t, device.TypeAndroid, devices[0].Type)
	require.Equal(t, "wpd-1", devices[1].ID)
	require.Equal(t, device.TypeIOS, devices[1].Type)
	require.Equal(t, "Apple", devices[1].Manufacturer)
}

func TestWPDOnlyOnWindows(t *testing.T) {
	r := newFakeRunner("powershell")
	b := NewWPDBackend(r, nil)
	b.goos = "linux"
	devices, err := b.Discover(context.Background())
	require.NoError(t, err)
	require.Empty(t, devices)
	require.Empty(t, r.Calls())
}

func TestPhoneFromDescriptor(t *testing.T) {
	d, ok := phoneFromDescriptor(0x04e8, 0x6860, 1, 5)
	require.True(t, ok)
	require.Equal(t, "usb-04e8-6860", d.ID)
	require.Equal(t, "Samsung Device", d.Name)
	require.Equal(t, device.TypeAndroid, d.Type)
	require.Equal(t, 5, d.Locator.USBAddress)

	d, ok = phoneFromDescriptor(0x05ac, 0x12a8, 2, 3)
	require.True(t, ok)
	require.Equal(t, device.TypeIOS, d.Type)

	_, ok = phoneFromDescriptor(0x046d, 0xc52b, 1, 2)
	require.False(t, ok)
}

func TestDemoBackend(t *testing.T) {
	b := NewDemoBackend()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	devices, err := b.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	android, err := b.Enumerate(context.Background(), devices[0])
	require.NoError(t, err)
	require.Len(t, android, 20)
	require.Equal(t, "VID_1000.mp4", android[0].Name)
	require.Equal(t, device.MediaVideo, android[0].Type)
	require.Equal(t, "IMG_1001.jpg", android[1].Name)

	ios, err := b.Enumerate(context.Background(), devices[1])
	require.NoError(t, err)
	require.Len(t, ios, 15)
	require.Equal(t, "ios-demo-1", ios[1].ID)
	require.Equal(t, "IMG_5001.HEIC", ios[1].Name)

	dst := filepath.Join(t.TempDir(), "IMG_1001.jpg")
	require.NoError(t, b.Fetch(context.Background(), devices[0], android[1], dst))
	require.FileExists(t, dst)
}
