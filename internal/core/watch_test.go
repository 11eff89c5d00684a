package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/require"
)

func TestWatch_RescansOnMountChange(t *testing.T) {
	mem, _, registry := newTestRegistry(t)
	gvfs := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- watchRegistry(ctx, registry, WatchOptions{
			Paths:    []string{gvfs, filepath.Join(gvfs, "missing")},
			Debounce: 20 * time.Millisecond,
		}, log.Log)
	}()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	mem.SetDevices(newAndroid("mtp-0"))
	require.NoError(t, os.Mkdir(filepath.Join(gvfs, "mtp:host=Pixel"), 0o755))

	require.Eventually(t, func() bool {
		return len(registry.Devices()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errc)
}

func TestWatch_PollsOnInterval(t *testing.T) {
	mem, _, registry := newTestRegistry(t)
	_, svc := newTestService(t)
	svc.registry = registry

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Watch(ctx, WatchOptions{Interval: 10 * time.Millisecond})

	require.Eventually(t, func() bool {
		return mem.DiscoverCalls() >= 3
	}, 5*time.Second, 10*time.Millisecond)
}
