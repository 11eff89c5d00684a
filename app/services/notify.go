package services

import (
	"fmt"

	"github.com/apex/log"
	"github.com/gen2brain/beeep"

	"PhotoTransfer/internal/config"
	"PhotoTransfer/internal/core"
)

// Notifier raises a desktop notification when a transfer job ends
type Notifier struct {
	config *config.Manager
	logger log.Interface
	alert  func(title, message string) error
}

// NewNotifier subscribes a Notifier to job updates
func NewNotifier(svc *core.Service, cfg *config.Manager, logger log.Interface) *Notifier {
	n := &Notifier{
		config: cfg,
		logger: logger,
		alert: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
	svc.Jobs().AddEmitter(n)
	return n
}

// EmitJobUpdate implements core.JobEventEmitter
func (n *Notifier) EmitJobUpdate(event core.JobUpdateEvent) {
	if event.LogLine != "" || !n.config.Get().Notifications {
		return
	}
	var title, msg string
	p := event.Progress
	switch event.State {
	case core.JobSucceeded:
		title = "Transfer complete"
		msg = fmt.Sprintf("%d of %d items copied", p.Succeeded, p.Total)
		if p.Failed > 0 {
			msg += fmt.Sprintf(", %d failed", p.Failed)
		}
	case core.JobFailed:
		title = "Transfer failed"
		msg = event.Message
	case core.JobCanceled:
		title = "Transfer cancelled"
		msg = fmt.Sprintf("%d of %d items copied", p.Succeeded, p.Total)
	default:
		return
	}
	if err := n.alert(title, msg); err != nil {
		n.logger.WithError(err).Debug("[Notifier] EmitJobUpdate: notification failed")
	}
}
