package services

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Event names the frontend subscribes to
const (
	EventDevicesChanged   = "devices-changed"
	EventTransferProgress = "transfer-progress"
	EventJobUpdate        = "job:update"
	EventPrereqReport     = "PrereqReport"
	EventLogLine          = "LogLine"
)

// emitFunc has the signature of runtime.EventsEmit
type emitFunc func(ctx context.Context, eventName string, optionalData ...interface{})

// bridge carries the Wails context every bound service emits events on. The
// context is only usable after OnStartup; events sent before that are dropped.
type bridge struct {
	ctx   context.Context
	emit  emitFunc
	ready bool
}

func newBridge(ctx context.Context) bridge {
	return bridge{ctx: ctx, emit: runtime.EventsEmit}
}

// SetContext updates the service context
func (b *bridge) SetContext(ctx context.Context) {
	b.ctx = ctx
	b.ready = true
}

func (b *bridge) send(name string, data interface{}) {
	if !b.ready {
		return
	}
	b.emit(b.ctx, name, data)
}
