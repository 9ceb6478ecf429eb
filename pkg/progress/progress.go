package progress

import (
	"fmt"
	"sync"

	"igengage/pkg/engagement"
	"igengage/pkg/logger"
	"igengage/pkg/storage"
)

const (
	okMark   = " ✔"
	failMark = " ❌"
)

// Reporter receives one human-readable line per completed username
type Reporter interface {
	Report(line string)
}

// FormatLine builds "<completed>/<total> → <username>" followed by the outcome
func FormatLine(completed, total int, result engagement.Result) string {
	line := fmt.Sprintf("%d/%d → %s", completed, total, result.Username)
	if result.OK() {
		return line + okMark
	}
	return fmt.Sprintf("%s%s (%s)", line, failMark, result.Error)
}

// Tracker counts completions and forwards formatted lines to a Reporter.
// Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	reporter  Reporter
	total     int
	completed int
	failed    int
}

// NewTracker tracks a run of total usernames
func NewTracker(total int, reporter Reporter) *Tracker {
	if reporter == nil {
		reporter = Discard{}
	}
	return &Tracker{reporter: reporter, total: total}
}

// Complete records result and reports its progress line
func (t *Tracker) Complete(result engagement.Result) string {
	t.mu.Lock()
	t.completed++
	if !result.OK() {
		t.failed++
	}
	line := FormatLine(t.completed, t.total, result)
	t.mu.Unlock()

	t.reporter.Report(line)
	return line
}

// Counts returns completed and failed so far
func (t *Tracker) Counts() (completed, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, t.failed
}

// Log reports lines through the structured logger
type Log struct {
	logger logger.Logger
}

// NewLog creates a logger-backed reporter
func NewLog(log logger.Logger) *Log {
	return &Log{logger: logger.OrDefault(log)}
}

func (l *Log) Report(line string) {
	l.logger.Info(line)
}

// StatusFile keeps the latest line in a file, replaced atomically
type StatusFile struct {
	mu     sync.Mutex
	path   string
	logger logger.Logger
}

// NewStatusFile writes status lines to path
func NewStatusFile(path string, log logger.Logger) *StatusFile {
	return &StatusFile{path: path, logger: logger.OrDefault(log)}
}

func (s *StatusFile) Report(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := storage.WriteFileAtomic(s.path, []byte(line+"\n")); err != nil {
		s.logger.WithError(err).Warn("failed to update status file")
	}
}

// Multi fans a line out to several reporters
type Multi []Reporter

func (m Multi) Report(line string) {
	for _, r := range m {
		if r != nil {
			r.Report(line)
		}
	}
}

// Discard drops every line
type Discard struct{}

func (Discard) Report(string) {}
