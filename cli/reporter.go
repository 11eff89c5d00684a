package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"PhotoTransfer/pkg/engine"
)

var (
	colorOK   = color.New(color.FgGreen).SprintFunc()
	colorWarn = color.New(color.FgYellow).SprintFunc()
	colorFail = color.New(color.FgRed, color.Bold).SprintFunc()
	colorDim  = color.New(color.Faint).SprintFunc()
)

// ConsoleReporter draws a progress bar for a running transfer and prints a
// summary once it ends. Without a bar, as when output is piped, it prints a
// line per copied item instead.
type ConsoleReporter struct {
	out      io.Writer
	showBar  bool
	progress *mpb.Progress
	bar      *mpb.Bar

	mu       sync.Mutex
	file     string
	problems []engine.ItemOutcome
}

func NewConsoleReporter(out io.Writer, showBar bool) *ConsoleReporter {
	return &ConsoleReporter{
		out:      out,
		showBar:  showBar,
		progress: mpb.New(
			mpb.WithOutput(out),
			mpb.WithWidth(60),
			mpb.WithRefreshRate(180*time.Millisecond),
		),
	}
}

// Publish implements engine.Sink
func (r *ConsoleReporter) Publish(p engine.TransferProgress) {
	if !r.showBar && p.Item != nil && p.Item.Status == engine.OutcomeTransferred {
		fmt.Fprintf(r.out, "[%d/%d] %s\n", p.Current, p.Total, p.Item.Name)
	}
	if r.showBar && r.bar == nil && p.Total > 0 {
		r.bar = r.progress.AddBar(int64(p.Total),
			mpb.PrependDecorators(
				decor.Name(p.DeviceID+" ", decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Percentage(decor.WC{W: 5}),
				decor.Name(" "),
				decor.Any(r.currentFile),
			),
		)
	}

	r.mu.Lock()
	r.file = p.CurrentFile
	if p.Item != nil && p.Item.Status != engine.OutcomeTransferred {
		r.problems = append(r.problems, *p.Item)
	}
	r.mu.Unlock()

	if r.bar == nil {
		return
	}
	r.bar.SetCurrent(int64(p.Current))
	switch p.Status {
	case engine.StatusComplete:
		r.bar.SetTotal(-1, true)
	case engine.StatusCancelled:
		r.bar.Abort(false)
	}
}

func (r *ConsoleReporter) currentFile(decor.Statistics) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file
}

// Finish waits for the bar to settle and prints the outcome of the batch
func (r *ConsoleReporter) Finish(summary *engine.Summary, err error) {
	if r.bar != nil && !r.bar.Completed() {
		r.bar.Abort(false)
	}
	r.progress.Wait()

	r.mu.Lock()
	problems := r.problems
	r.mu.Unlock()
	for _, o := range problems {
		label := colorWarn("skipped")
		if o.Status == engine.OutcomeFailed {
			label = colorFail("failed")
		}
		name := o.Name
		if name == "" {
			name = o.ItemID
		}
		fmt.Fprintf(r.out, "  %s %s %s\n", label, name, colorDim(o.Error))
	}

	if summary != nil {
		fmt.Fprintf(r.out, "%s %d of %d items (%s in %s)\n",
			colorOK("Transferred"),
			summary.Succeeded, summary.Total,
			humanize.Bytes(summary.BytesTransferred),
			summary.Elapsed.Round(time.Millisecond))
	}
	switch {
	case err != nil && engine.IsCancelled(err):
		fmt.Fprintln(r.out, colorWarn("Transfer cancelled"))
	case err != nil:
		fmt.Fprintf(r.out, "%s %v\n", colorFail("Transfer failed:"), err)
	}
}

// JSONEvent is the structured event format for machine-readable output
type JSONEvent struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// JSONErrorData contains error information in structured form
type JSONErrorData struct {
	Message string `json:"message"`
}

// JSONReporter outputs machine-readable JSON lines for scripting/automation
type JSONReporter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func NewJSONReporter(out io.Writer) *JSONReporter {
	return &JSONReporter{
		encoder: json.NewEncoder(out),
	}
}

func (r *JSONReporter) emit(eventType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoder.Encode(JSONEvent{
		Type:      eventType,
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Data:      data,
	})
}

// Publish implements engine.Sink. Item outcomes get an event of their own so
// scripts can follow failures without diffing counters.
func (r *JSONReporter) Publish(p engine.TransferProgress) {
	if p.Item != nil {
		r.emit("item", p.Item)
	}
	r.emit("progress", p)
}

func (r *JSONReporter) ReportError(err error) {
	r.emit("error", JSONErrorData{Message: err.Error()})
}

// Emit writes any other result, such as a device list
func (r *JSONReporter) Emit(eventType string, data interface{}) {
	r.emit(eventType, data)
}

// Finish emits the summary, if any, and a completion event
func (r *JSONReporter) Finish(summary *engine.Summary, err error) {
	if summary != nil {
		r.emit("summary", summary)
	}
	if err != nil {
		r.ReportError(err)
		r.EmitComplete(false, err.Error())
		return
	}
	r.EmitComplete(true, "Transfer complete")
}

// EmitComplete emits a completion event
func (r *JSONReporter) EmitComplete(success bool, message string) {
	r.emit("complete", map[string]interface{}{
		"success": success,
		"message": message,
	})
}
