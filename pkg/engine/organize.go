package engine

import (
	"fmt"
	"path/filepath"
	"time"

	"PhotoTransfer/pkg/device"
)

// Organize returns the destination path of item below base. With byDate the
// file goes to base/YYYY/MM/DD/name, using the calendar date of the item's
// timestamp in the offset it was recorded in, or today's local date when the
// timestamp cannot be parsed.
func Organize(base string, item device.MediaItem, byDate bool) string {
	return organizeAt(base, item, byDate, time.Now())
}

func organizeAt(base string, item device.MediaItem, byDate bool, now time.Time) string {
	name := filepath.Base(filepath.FromSlash(item.Name))
	if !byDate {
		return filepath.Join(base, name)
	}

	ts, ok := item.Time()
	if !ok {
		ts = now.Local()
	}
	return filepath.Join(base,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", int(ts.Month())),
		fmt.Sprintf("%02d", ts.Day()),
		name)
}
