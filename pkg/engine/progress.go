package engine

import "sync"

// Status is the phase a transfer reports
type Status string

const (
	StatusTransferring Status = "transferring"
	StatusComplete     Status = "complete"
	StatusCancelled    Status = "cancelled"
)

// OutcomeStatus is the result of a single requested item
type OutcomeStatus string

const (
	OutcomeTransferred OutcomeStatus = "transferred"
	OutcomeFailed      OutcomeStatus = "failed"
	OutcomeSkipped     OutcomeStatus = "skipped"
)

// ItemOutcome records what happened to one requested item id
type ItemOutcome struct {
	ItemID string        `json:"itemId"`
	Name   string        `json:"name,omitempty"`
	Status OutcomeStatus `json:"status"`
	Error  string        `json:"error,omitempty"`
}

// TransferProgress is published before every item, after every item and once
// more when the batch ends.
type TransferProgress struct {
	JobID            string       `json:"jobId,omitempty"`
	DeviceID         string       `json:"deviceId"`
	Current          int          `json:"current"`
	Total            int          `json:"total"`
	CurrentFile      string       `json:"currentFile"`
	BytesTransferred uint64       `json:"bytesTransferred"`
	BytesTotal       uint64       `json:"bytesTotal"`
	Speed            float64      `json:"speed"` // bytes per second
	Status           Status       `json:"status"`
	Succeeded        int          `json:"succeeded"`
	Failed           int          `json:"failed"`
	Skipped          int          `json:"skipped"`
	Item             *ItemOutcome `json:"item,omitempty"`
}

// Terminal reports whether p is the last event of a batch
func (p TransferProgress) Terminal() bool {
	return p.Status == StatusComplete || p.Status == StatusCancelled
}

// Sink receives progress events. Publish must not block the engine.
type Sink interface {
	Publish(p TransferProgress)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(p TransferProgress)

func (f SinkFunc) Publish(p TransferProgress) { f(p) }

// Discard drops every event
var Discard Sink = SinkFunc(func(TransferProgress) {})

// MultiSink fans events out to several sinks
type MultiSink []Sink

func (m MultiSink) Publish(p TransferProgress) {
	for _, s := range m {
		if s != nil {
			s.Publish(p)
		}
	}
}

// ChannelSink forwards events to a bounded channel and never blocks. When
// the channel is full a routine event is dropped, while a terminal event
// evicts the oldest queued event and is offered once more.
type ChannelSink struct {
	ch      chan TransferProgress
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	dropped int
}

// NewChannelSink creates a sink whose channel holds up to size events
func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 1
	}
	return &ChannelSink{
		ch:   make(chan TransferProgress, size),
		done: make(chan struct{}),
	}
}

// Events is the channel the UI reads from
func (s *ChannelSink) Events() <-chan TransferProgress {
	return s.ch
}

func (s *ChannelSink) Publish(p TransferProgress) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.ch <- p:
		return
	default:
	}

	if !p.Terminal() {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		return
	}

	// make room for the terminal event by discarding the oldest one
	select {
	case <-s.ch:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	default:
	}
	select {
	case s.ch <- p:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Dropped returns how many events were discarded
func (s *ChannelSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops accepting events. The channel itself is left open so that a
// concurrent Publish can never panic.
func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.done) })
}
