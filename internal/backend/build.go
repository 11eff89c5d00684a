package backend

import (
	"fmt"
	"time"

	"github.com/apex/log"

	"PhotoTransfer/pkg/device"
)

// Names of the backends that can be enabled from configuration
const (
	NameGVFS = "gvfs"
	NameMTP  = "mtp"
	NameADB  = "adb"
	NameIOS  = "ios"
	NameWPD  = "wpd"
	NameUSB  = "usb"
	NameDemo = "demo"
)

// DefaultBackends is the probe set used when none is configured
var DefaultBackends = []string{NameGVFS, NameADB, NameIOS, NameWPD, NameMTP, NameUSB}

// fallbacks only run when every primary probe came back empty
var fallbackBackends = map[string]bool{NameMTP: true, NameUSB: true}

// WatchPaths are the directories where device mounts appear on this host
func WatchPaths() []string {
	return []string{GVFSRoot()}
}

// BuildOptions configures Build
type BuildOptions struct {
	Backends       []string
	DeviceType     string // "auto", "android" or "ios"
	Demo           bool
	Verify         bool
	CommandTimeout time.Duration
	StallTimeout   time.Duration
	Runner         Runner
	Logger         log.Interface
}

// Build assembles the composite backend for the enabled probes
func Build(opts BuildOptions) (*Composite, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Log
	}
	runner := opts.Runner
	if runner == nil {
		runner = NewExecRunner(opts.CommandTimeout)
	}
	names := opts.Backends
	if len(names) == 0 {
		names = DefaultBackends
	}

	var primary, fallback []device.Backend
	if opts.Demo {
		primary = append(primary, NewDemoBackend())
	}
	for _, name := range names {
		b, err := newBackend(name, runner, logger, opts)
		if err != nil {
			return nil, err
		}
		if !wantsType(name, opts.DeviceType) {
			logger.WithField("backend", name).Debug("[Backend] Build: skipped for device type")
			continue
		}
		if fallbackBackends[name] {
			fallback = append(fallback, b)
		} else {
			primary = append(primary, b)
		}
	}
	return NewComposite(logger, primary, fallback...), nil
}

func newBackend(name string, runner Runner, logger log.Interface, opts BuildOptions) (device.Backend, error) {
	switch name {
	case NameGVFS:
		gopts := []GVFSOption{WithVerify(opts.Verify)}
		if opts.StallTimeout > 0 {
			gopts = append(gopts, WithStallTimeout(opts.StallTimeout))
		}
		return NewGVFSBackend(runner, logger, gopts...), nil
	case NameMTP:
		return NewMTPBackend(runner, logger), nil
	case NameADB:
		return NewADBBackend(runner, logger), nil
	case NameIOS:
		return NewIOSBackend(runner, logger, opts.Verify), nil
	case NameWPD:
		return NewWPDBackend(runner, logger), nil
	case NameUSB:
		return NewUSBBackend(logger), nil
	case NameDemo:
		return NewDemoBackend(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}

func wantsType(name, deviceType string) bool {
	switch deviceType {
	case string(device.TypeAndroid):
		return name != NameIOS
	case string(device.TypeIOS):
		return name != NameGVFS && name != NameMTP && name != NameADB
	}
	return true
}
