package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ConnectionChecker is a function that checks if the connection is still alive
// Returns error if connection is dead, nil if connection is alive
type ConnectionChecker func() error

// CopyOptions tunes CopyFile
type CopyOptions struct {
	StallTimeout time.Duration     // zero means StallTimeout
	Verify       bool              // compare SHA-256 of source and copy before committing
	ConnChecker  ConnectionChecker // optional liveness probe of the device mount
	Progress     chan<- int64      // optional byte counts, dropped when full
}

// CopyFile copies src to dst through a temporary sibling of dst that is
// renamed into place only after the copy (and the optional verification)
// succeeded. It returns the number of bytes copied.
func CopyFile(ctx context.Context, src, dst string, opts CopyOptions) (int64, error) {
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = StallTimeout
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	var copied int64
	err = AtomicWrite(dst, func(tmpPath string) error {
		out, err := os.Create(tmpPath)
		if err != nil {
			return fmt.Errorf("failed to create dest: %w", err)
		}
		copied, err = copyWithTimeout(ctx, in, out, opts.StallTimeout, opts.Progress, opts.ConnChecker)
		if err != nil {
			out.Close()
			return err
		}
		if err := out.Sync(); err != nil {
			out.Close()
			return fmt.Errorf("failed to sync dest: %w", err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("failed to close dest: %w", err)
		}
		if opts.Verify {
			return verifyCopy(src, tmpPath)
		}
		return nil
	})
	return copied, err
}

// AtomicWrite creates the parent directories of dst, hands fn a temporary path
// on the same filesystem and renames it to dst when fn succeeds. Nothing is
// left at dst when fn fails.
func AtomicWrite(dst string, fn func(tmpPath string) error) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dest dir: %w", err)
	}
	tmpDir, err := os.MkdirTemp(dir, ".phototransfer-")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, filepath.Base(dst))
	if err := fn(tmpPath); err != nil {
		return err
	}
	if _, err := os.Stat(tmpPath); err != nil {
		return fmt.Errorf("no file was written for %s: %w", filepath.Base(dst), err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(dst), err)
	}
	return nil
}

func verifyCopy(src, dst string) error {
	srcHash, err := HashFile(src)
	if err != nil {
		return fmt.Errorf("failed to hash source: %w", err)
	}
	dstHash, err := HashFile(dst)
	if err != nil {
		return fmt.Errorf("failed to hash dest: %w", err)
	}
	if srcHash != dstHash {
		return fmt.Errorf("hash mismatch: source=%s, dest=%s", srcHash, dstHash)
	}
	return nil
}

// copyWithTimeout copies data with stall detection and progress reporting.
// The copy is aborted when ctx is cancelled, when no byte arrived for timeout
// or when connChecker reports the device gone.
func copyWithTimeout(ctx context.Context, src io.Reader, dst io.Writer, timeout time.Duration, progressChan chan<- int64, connChecker ConnectionChecker) (int64, error) {
	copyCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	prog := &progressTracker{lastTime: time.Now()}

	done := make(chan struct{})
	go func() {
		stallTicker := time.NewTicker(time.Second)
		progressTicker := time.NewTicker(ProgressUpdateInterval)
		connTicker := time.NewTicker(10 * time.Second)
		defer stallTicker.Stop()
		defer progressTicker.Stop()
		defer connTicker.Stop()
		for {
			select {
			case <-copyCtx.Done():
				return
			case <-done:
				return
			case <-connTicker.C:
				if connChecker != nil {
					if err := connChecker(); err != nil {
						cancel(fmt.Errorf("connection lost during copy: %w", err))
						return
					}
				}
			case <-stallTicker.C:
				if idle := prog.idle(); idle > timeout {
					cancel(fmt.Errorf("copy stalled: no progress for %v", idle.Round(time.Second)))
					return
				}
			case <-progressTicker.C:
				sendProgress(progressChan, prog.total())
			}
		}
	}()

	n, err := io.CopyBuffer(dst, &progressReader{Reader: src, progress: prog, ctx: copyCtx}, make([]byte, BufferSize))
	close(done)
	sendProgress(progressChan, n)

	if cause := context.Cause(copyCtx); cause != nil && copyCtx.Err() != nil {
		return n, cause
	}
	return n, err
}

func sendProgress(ch chan<- int64, n int64) {
	if ch == nil {
		return
	}
	select {
	case ch <- n:
	default:
	}
}

// progressTracker tracks copy progress for stall detection and reporting
type progressTracker struct {
	sync.Mutex
	lastTime time.Time
	bytes    int64
}

func (p *progressTracker) add(n int) {
	p.Lock()
	p.bytes += int64(n)
	p.lastTime = time.Now()
	p.Unlock()
}

func (p *progressTracker) idle() time.Duration {
	p.Lock()
	defer p.Unlock()
	return time.Since(p.lastTime)
}

func (p *progressTracker) total() int64 {
	p.Lock()
	defer p.Unlock()
	return p.bytes
}

// progressReader wraps a Reader to track progress
type progressReader struct {
	io.Reader
	progress *progressTracker
	ctx      context.Context
}

func (pr *progressReader) Read(p []byte) (int, error) {
	if err := pr.ctx.Err(); err != nil {
		return 0, context.Cause(pr.ctx)
	}
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.progress.add(n)
	}
	return n, err
}
