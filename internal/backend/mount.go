package backend

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/apex/log"
)

// unmountTimeout bounds the release of a mount so cleanup cannot hang
const unmountTimeout = 15 * time.Second

// fuseMount mounts a FUSE filesystem at dir for the duration of fn. The mount
// is released and dir removed on every exit path, including a panic in fn.
func fuseMount(ctx context.Context, r Runner, logger log.Interface, dir string, mountCmd []string, fn func(root string) error) (err error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create mount point %s: %w", dir, err)
	}
	if _, err := r.Run(ctx, mountCmd[0], mountCmd[1:]...); err != nil {
		os.Remove(dir)
		return fmt.Errorf("failed to mount %s: %w", dir, err)
	}
	logger.WithField("dir", dir).Debug("[Mount] fuseMount: mounted")

	defer func() {
		// release with a fresh context: ctx may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), unmountTimeout)
		defer cancel()
		name, args := unmountCommand(dir)
		if _, uerr := r.Run(releaseCtx, name, args...); uerr != nil {
			logger.WithError(uerr).WithField("dir", dir).Warn("[Mount] fuseMount: unmount failed")
		} else {
			logger.WithField("dir", dir).Debug("[Mount] fuseMount: unmounted")
		}
		if rerr := os.Remove(dir); rerr != nil && !os.IsNotExist(rerr) {
			logger.WithError(rerr).WithField("dir", dir).Debug("[Mount] fuseMount: mount point not removed")
		}
	}()

	return fn(dir)
}

func unmountCommand(dir string) (string, []string) {
	if runtime.GOOS == "darwin" {
		return "umount", []string{dir}
	}
	return "fusermount", []string{"-u", dir}
}
