package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/samber/lo"

	"PhotoTransfer/internal/platform"
	"PhotoTransfer/pkg/device"
)

// DeviceLookup resolves a device id against the last scan
type DeviceLookup interface {
	Lookup(id string) (device.Device, error)
}

// MediaSource returns the cached media listing of a device, enumerating it
// first when nothing is cached yet.
type MediaSource interface {
	GetOrPopulate(ctx context.Context, dev device.Device) ([]device.MediaItem, error)
}

// Fetcher copies one item off a device
type Fetcher interface {
	Fetch(ctx context.Context, dev device.Device, item device.MediaItem, destPath string) error
}

// Request describes one transfer batch
type Request struct {
	DeviceID       string   `json:"deviceId"`
	ItemIDs        []string `json:"itemIds"`
	Destination    string   `json:"destination"`
	OrganizeByDate bool     `json:"organizeByDate"`
}

// Summary is the result of a finished batch
type Summary struct {
	DeviceID         string        `json:"deviceId"`
	Total            int           `json:"total"`
	Succeeded        int           `json:"succeeded"`
	Failed           int           `json:"failed"`
	Skipped          int           `json:"skipped"`
	BytesTransferred uint64        `json:"bytesTransferred"`
	BytesTotal       uint64        `json:"bytesTotal"`
	Elapsed          time.Duration `json:"elapsed"`
	Cancelled        bool          `json:"cancelled"`
	Outcomes         []ItemOutcome `json:"outcomes"`
}

// Engine copies batches of media items off a device, one item at a time
type Engine struct {
	devices DeviceLookup
	media   MediaSource
	fetcher Fetcher
	logger  log.Interface
	now     func() time.Time
}

// New creates a transfer engine
func New(devices DeviceLookup, media MediaSource, fetcher Fetcher, logger log.Interface) *Engine {
	if logger == nil {
		logger = log.Log
	}
	return &Engine{
		devices: devices,
		media:   media,
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
}

// Run transfers the requested items of one device to req.Destination.
//
// Items are resolved against the device's cached listing and processed in
// listing order. Unknown ids are reported as skipped. A failing item is logged
// and the batch continues. The last event always has status complete (or
// cancelled when ctx ends early) and counts only successfully copied bytes.
func (e *Engine) Run(ctx context.Context, req Request, sink Sink) (*Summary, error) {
	if sink == nil {
		sink = Discard
	}
	start := e.now()
	summary := &Summary{DeviceID: req.DeviceID, Outcomes: []ItemOutcome{}}

	if len(req.ItemIDs) == 0 {
		sink.Publish(TransferProgress{DeviceID: req.DeviceID, Status: StatusComplete})
		return summary, nil
	}

	dest, err := platform.ExpandHome(req.Destination)
	if err != nil {
		return nil, fmt.Errorf("failed to expand destination %q: %w", req.Destination, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination %q: %w", dest, err)
	}

	dev, err := e.devices.Lookup(req.DeviceID)
	if err != nil {
		return nil, err
	}
	listing, err := e.media.GetOrPopulate(ctx, dev)
	if err != nil {
		return nil, fmt.Errorf("failed to list media of %s: %w", dev.ID, err)
	}

	items, missing := resolveItems(listing, req.ItemIDs)
	summary.Total = len(items)
	summary.BytesTotal = lo.SumBy(items, func(it device.MediaItem) uint64 { return it.Size })

	progress := TransferProgress{
		DeviceID:   dev.ID,
		Total:      summary.Total,
		BytesTotal: summary.BytesTotal,
		Status:     StatusTransferring,
	}

	for _, id := range missing {
		e.logger.WithFields(log.Fields{"device": dev.ID, "item": id}).Warn("[Engine] Run: item not in media listing, skipping")
		outcome := ItemOutcome{ItemID: id, Status: OutcomeSkipped, Error: device.ErrItemNotFound.Error()}
		summary.record(outcome)
		progress.Skipped = summary.Skipped
		progress.Item = &outcome
		sink.Publish(progress)
	}
	progress.Item = nil

	processed := 0
	for i, item := range items {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		progress.Current = i + 1
		progress.CurrentFile = item.Name
		progress.BytesTransferred = summary.BytesTransferred
		progress.Speed = speed(summary.BytesTransferred, e.now().Sub(start))
		progress.Item = nil
		sink.Publish(progress)

		target := organizeAt(dest, item, req.OrganizeByDate, e.now())
		outcome := ItemOutcome{ItemID: item.ID, Name: item.Name, Status: OutcomeTransferred}
		if err := e.fetcher.Fetch(ctx, dev, item, target); err != nil {
			e.logger.WithError(err).WithFields(log.Fields{"device": dev.ID, "item": item.ID, "name": item.Name}).Error("[Engine] Run: transfer failed")
			outcome.Status = OutcomeFailed
			outcome.Error = err.Error()
		} else {
			summary.BytesTransferred += item.Size
		}
		summary.record(outcome)
		processed++

		progress.BytesTransferred = summary.BytesTransferred
		progress.Succeeded = summary.Succeeded
		progress.Failed = summary.Failed
		progress.Speed = speed(summary.BytesTransferred, e.now().Sub(start))
		progress.Item = &outcome
		sink.Publish(progress)
	}
	summary.Elapsed = e.now().Sub(start)
	final := progress
	final.Item = nil
	final.CurrentFile = ""
	final.BytesTransferred = summary.BytesTransferred
	final.Speed = speed(summary.BytesTransferred, summary.Elapsed)
	final.Succeeded, final.Failed, final.Skipped = summary.Succeeded, summary.Failed, summary.Skipped
	if summary.Cancelled {
		final.Status = StatusCancelled
		final.Current = processed
	} else {
		final.Status = StatusComplete
		final.Current = summary.Total
	}
	sink.Publish(final)

	e.logger.WithFields(log.Fields{
		"device":    dev.ID,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
		"bytes":     summary.BytesTransferred,
		"cancelled": summary.Cancelled,
	}).Info("[Engine] Run: batch finished")

	if summary.Cancelled {
		return summary, fmt.Errorf("transfer interrupted after %d of %d items: %w", processed, summary.Total, context.Cause(ctx))
	}
	return summary, nil
}

// IsCancelled reports whether err ended a batch early because its context ended
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Summary) record(o ItemOutcome) {
	switch o.Status {
	case OutcomeTransferred:
		s.Succeeded++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
	s.Outcomes = append(s.Outcomes, o)
}

// resolveItems picks the requested ids out of listing, keeping listing order.
// missing holds the requested ids that are not in the listing, each once.
func resolveItems(listing []device.MediaItem, ids []string) (items []device.MediaItem, missing []string) {
	wanted := lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} })
	items = lo.Filter(listing, func(it device.MediaItem, _ int) bool {
		_, ok := wanted[it.ID]
		return ok
	})
	known := lo.SliceToMap(items, func(it device.MediaItem) (string, struct{}) { return it.ID, struct{}{} })
	missing = lo.Filter(lo.Uniq(ids), func(id string, _ int) bool {
		_, ok := known[id]
		return !ok
	})
	return items, missing
}

func speed(bytes uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) / elapsed.Seconds()
}
