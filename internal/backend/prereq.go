package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/disk"
)

// minFreeSpace is the free space below which the destination check warns
const minFreeSpace = 1 << 30

var diskUsage = disk.Usage

// Check statuses
const (
	StatusOK   = "ok"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// PrereqCheck represents a single prerequisite check
type PrereqCheck struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Status           string   `json:"status"` // "ok", "warn", "fail"
	Details          string   `json:"details"`
	RemediationSteps []string `json:"remediationSteps,omitempty"`
	Links            []string `json:"links,omitempty"`
}

// PrereqReport contains all prerequisite checks
type PrereqReport struct {
	OverallStatus string        `json:"overallStatus"`
	OS            string        `json:"os"`
	Checks        []PrereqCheck `json:"checks"`
	Timestamp     time.Time     `json:"timestamp"`
}

type toolCheck struct {
	id, name    string
	tools       []string
	platforms   []string
	remediation []string
	links       []string
}

var toolChecks = []toolCheck{
	{
		id: "gvfs", name: "GVFS / gio (Android over MTP)", tools: []string{"gio"}, platforms: []string{"linux"},
		remediation: []string{"Install gvfs-backends (Debian/Ubuntu) or gvfs-mtp (Fedora/Arch)", "Unlock the phone and choose 'File transfer' in the USB notification"},
	},
	{
		id: "mtp_tools", name: "libmtp tools", tools: []string{"mtp-detect", "mtp-files", "mtp-getfile"}, platforms: []string{"linux"},
		remediation: []string{"Install mtp-tools (Debian/Ubuntu: sudo apt install mtp-tools)"},
	},
	{
		id: "adb", name: "Android Debug Bridge (ADB)", tools: []string{"adb"}, platforms: []string{"linux", "darwin", "windows"},
		remediation: []string{"Install Android platform-tools", "Enable USB debugging in the phone's developer options"},
		links:       []string{"https://developer.android.com/tools/releases/platform-tools"},
	},
	{
		id: "libimobiledevice", name: "libimobiledevice (iOS detection)", tools: []string{"idevice_id", "ideviceinfo"}, platforms: []string{"linux", "darwin"},
		remediation: []string{"Install libimobiledevice-utils (Linux) or `brew install libimobiledevice` (macOS)", "Tap 'Trust' on the device when asked"},
		links:       []string{"https://libimobiledevice.org"},
	},
	{
		id: "ifuse", name: "ifuse (iOS file access)", tools: []string{"ifuse"}, platforms: []string{"linux", "darwin"},
		remediation: []string{"Install ifuse (Linux) or macFUSE plus ifuse (macOS)"},
	},
	{
		id: "fuse_unmount", name: "FUSE unmount tool", tools: []string{unmountTool()}, platforms: []string{"linux", "darwin"},
		remediation: []string{"Install fuse3 (provides fusermount)"},
	},
	{
		id: "powershell", name: "PowerShell (portable device listing)", tools: []string{"powershell"}, platforms: []string{"windows"},
		remediation: []string{"PowerShell ships with Windows; make sure it is on PATH"},
	},
}

func unmountTool() string {
	name, _ := unmountCommand("")
	return name
}

// CheckPrereqs reports which device tools are installed and whether dest is
// writable. Only checks relevant to the running OS are included.
func CheckPrereqs(r Runner, dest string) PrereqReport {
	return checkPrereqs(r, runtime.GOOS, dest)
}

func checkPrereqs(r Runner, goos, dest string) PrereqReport {
	report := PrereqReport{OS: goos, Checks: []PrereqCheck{}, Timestamp: time.Now()}

	for _, tc := range toolChecks {
		if !lo.Contains(tc.platforms, goos) {
			continue
		}
		check := PrereqCheck{ID: tc.id, Name: tc.name, Status: StatusOK, Links: tc.links}
		var missing []string
		for _, tool := range tc.tools {
			if _, err := r.LookPath(tool); err != nil {
				missing = append(missing, tool)
			}
		}
		if len(missing) == 0 {
			check.Details = "installed"
		} else {
			check.Status = StatusWarn
			check.Details = fmt.Sprintf("not found on PATH: %v", missing)
			check.RemediationSteps = tc.remediation
		}
		report.Checks = append(report.Checks, check)
	}

	if dest != "" {
		check := checkDestination(dest)
		report.Checks = append(report.Checks, check)
		if check.Status == StatusOK {
			report.Checks = append(report.Checks, checkDiskSpace(dest))
		}
	}

	report.OverallStatus = StatusOK
	usable := false
	for _, c := range report.Checks {
		switch {
		case c.Status == StatusFail:
			report.OverallStatus = StatusFail
		case c.Status == StatusWarn && report.OverallStatus == StatusOK:
			report.OverallStatus = StatusWarn
		}
		if c.Status == StatusOK && c.ID != "destination_write" && c.ID != "disk_space" && c.ID != "fuse_unmount" {
			usable = true
		}
	}
	if !usable {
		report.OverallStatus = StatusFail
	}
	return report
}

func checkDestination(dest string) PrereqCheck {
	check := PrereqCheck{ID: "destination_write", Name: "Destination Write Access", Status: StatusOK}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		check.Status = StatusFail
		check.Details = fmt.Sprintf("cannot create %s: %v", dest, err)
		check.RemediationSteps = []string{"Choose a destination folder you can write to"}
		return check
	}
	probe, err := os.CreateTemp(dest, ".write-test-")
	if err != nil {
		check.Status = StatusFail
		check.Details = fmt.Sprintf("cannot write to %s: %v", dest, err)
		check.RemediationSteps = []string{"Check the folder permissions", "Choose a different destination folder"}
		return check
	}
	probe.Close()
	os.Remove(probe.Name())
	check.Details = fmt.Sprintf("%s is writable", filepath.Clean(dest))
	return check
}

func checkDiskSpace(dest string) PrereqCheck {
	check := PrereqCheck{ID: "disk_space", Name: "Disk Space", Status: StatusOK}
	usage, err := diskUsage(dest)
	if err != nil {
		check.Status = StatusWarn
		check.Details = "Could not check disk space: " + err.Error()
		check.RemediationSteps = []string{"Check the free space of the destination drive manually"}
		return check
	}
	check.Details = fmt.Sprintf("%s free of %s", humanize.Bytes(usage.Free), humanize.Bytes(usage.Total))
	if usage.Free < minFreeSpace {
		check.Status = StatusWarn
		check.RemediationSteps = []string{
			"Free up space on the destination drive (at least 1 GB recommended)",
			"Choose a destination folder on a different drive",
		}
	}
	return check
}
