package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"PhotoTransfer/pkg/device"
)

// Composite merges several backends into one. Discovery runs every probe
// concurrently and merges the results in registration order; the first
// device seen with a given id wins. Fallback probes only run when the
// primary probes found nothing. Enumerate and Fetch are routed to the
// backend that discovered the device.
type Composite struct {
	primary   []device.Backend
	fallbacks []device.Backend
	byName    map[string]device.Backend
	logger    log.Interface
}

// NewComposite creates a composite over primary probes and fallback probes
func NewComposite(logger log.Interface, primary []device.Backend, fallbacks ...device.Backend) *Composite {
	if logger == nil {
		logger = log.Log
	}
	c := &Composite{
		primary:   primary,
		fallbacks: fallbacks,
		byName:    make(map[string]device.Backend),
		logger:    logger,
	}
	for _, b := range append(append([]device.Backend{}, primary...), fallbacks...) {
		if _, dup := c.byName[b.Name()]; !dup {
			c.byName[b.Name()] = b
		}
	}
	return c
}

func (c *Composite) Name() string { return "composite" }

// Discover never returns an error; failing probes are logged and contribute
// no devices.
func (c *Composite) Discover(ctx context.Context) ([]device.Device, error) {
	devices := c.discover(ctx, c.primary)
	if len(devices) == 0 && len(c.fallbacks) > 0 {
		c.logger.Debug("[Composite] Discover: no devices from primary probes, trying fallbacks")
		devices = c.discover(ctx, c.fallbacks)
	}
	return devices, nil
}

func (c *Composite) discover(ctx context.Context, probes []device.Backend) []device.Device {
	results := make([][]device.Device, len(probes))
	var (
		mu   sync.Mutex
		errs *multierror.Error
		g    errgroup.Group
	)

	for i, probe := range probes {
		i, probe := i, probe
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("probe panicked: %v", r)
				}
				if err != nil {
					mu.Lock()
					errs = multierror.Append(errs, fmt.Errorf("%s: %w", probe.Name(), err))
					mu.Unlock()
				}
			}()
			found, err := probe.Discover(ctx)
			results[i] = found
			return err
		})
	}
	_ = g.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		c.logger.WithError(err).Debug("[Composite] Discover: some probes failed")
	}

	seen := make(map[string]struct{})
	merged := []device.Device{}
	for i, found := range results {
		for _, d := range found {
			if _, dup := seen[d.ID]; dup {
				continue
			}
			seen[d.ID] = struct{}{}
			if d.Locator.Backend == "" {
				d.Locator.Backend = probes[i].Name()
			}
			merged = append(merged, d)
		}
	}
	return merged
}

// Enumerate returns an empty listing for unknown device types or owners
func (c *Composite) Enumerate(ctx context.Context, dev device.Device) ([]device.MediaItem, error) {
	owner, ok := c.byName[dev.Locator.Backend]
	if !ok || !dev.Type.Valid() {
		c.logger.WithField("device", dev.ID).Debug("[Composite] Enumerate: no backend for device")
		return []device.MediaItem{}, nil
	}
	return owner.Enumerate(ctx, dev)
}

func (c *Composite) Fetch(ctx context.Context, dev device.Device, item device.MediaItem, destPath string) error {
	owner, ok := c.byName[dev.Locator.Backend]
	if !ok {
		return fmt.Errorf("%w: no backend for device %s", device.ErrUnsupported, dev.ID)
	}
	return owner.Fetch(ctx, dev, item, destPath)
}

// Backends lists the registered backend names, primaries first
func (c *Composite) Backends() []string {
	names := make([]string, 0, len(c.primary)+len(c.fallbacks))
	for _, b := range c.primary {
		names = append(names, b.Name())
	}
	for _, b := range c.fallbacks {
		names = append(names, b.Name())
	}
	return names
}
