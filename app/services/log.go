package services

import (
	"sync"
	"time"

	"github.com/apex/log"
)

// maxLogEntries bounds the in-memory log kept for the log view
const maxLogEntries = 500

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time  `json:"timestamp"`
	Level     string     `json:"level"`
	Message   string     `json:"message"`
	Fields    log.Fields `json:"fields,omitempty"`
}

// LogService is an apex/log handler that keeps recent entries for the
// frontend and forwards each one as a LogLine event
type LogService struct {
	bridge
	mu   sync.Mutex
	logs []LogEntry
}

// NewLogService creates a new LogService
func NewLogService() *LogService {
	return &LogService{bridge: newBridge(nil)}
}

// HandleLog implements log.Handler
func (s *LogService) HandleLog(e *log.Entry) error {
	entry := LogEntry{
		Timestamp: e.Timestamp,
		Level:     e.Level.String(),
		Message:   e.Message,
		Fields:    e.Fields,
	}

	s.mu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogEntries {
		s.logs = s.logs[len(s.logs)-maxLogEntries:]
	}
	s.mu.Unlock()

	s.send(EventLogLine, entry)
	return nil
}

// GetRecentLogs returns up to limit of the newest log entries
func (s *LogService) GetRecentLogs(limit int) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if limit > 0 && len(s.logs) > limit {
		start = len(s.logs) - limit
	}
	return append([]LogEntry(nil), s.logs[start:]...)
}
