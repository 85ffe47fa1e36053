package servicing

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LogEntry is a single forwarded log record: UTC timestamp, integer log
// level, target/module strings, and an optional file+line location.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     int       `json:"level"`
	Target    string    `json:"target"`
	Module    string    `json:"module"`
	File      string    `json:"file,omitempty"`
	Line      int       `json:"line,omitempty"`
	Message   string    `json:"message"`
}

// LogForwarder is the process-wide current-sink slot: a servicing
// request installs a channel into it for the duration of its run.
// Installing while a sink already exists is an error; clearing is
// idempotent. The slot's occupied state is what guarantees at most one
// in-flight servicing request owns the log stream.
type LogForwarder struct {
	mu   sync.Mutex
	sink chan<- LogEntry
}

// NewLogForwarder returns an empty forwarder.
func NewLogForwarder() *LogForwarder {
	return &LogForwarder{}
}

// Install sets sink as the current log destination. Returns an error if
// a sink is already installed.
func (f *LogForwarder) Install(sink chan<- LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sink != nil {
		return errAlreadyInstalled
	}
	f.sink = sink
	return nil
}

var errAlreadyInstalled = &sinkAlreadyInstalledError{}

type sinkAlreadyInstalledError struct{}

func (*sinkAlreadyInstalledError) Error() string { return "log forwarder sink already installed" }

// Clear detaches the current sink. Idempotent: clearing an empty
// forwarder is a no-op.
func (f *LogForwarder) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = nil
}

// Forward routes a single log record to the installed sink, if any. A
// call with no sink installed is silently dropped -- this happens
// whenever a worker logs outside the scope of a servicing request (e.g.
// during startup) and is not itself an error condition.
func (f *LogForwarder) Forward(entry LogEntry) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink == nil {
		return
	}
	select {
	case sink <- entry:
	default:
		log.Warn("log forwarder channel full, dropping log entry")
	}
}

// Hook adapts LogForwarder into a logrus.Hook so a worker's ordinary
// log.WithFields(...).Info(...) calls are transparently captured and
// forwarded for the duration of a servicing request, without the worker
// code needing to know about streaming at all.
type Hook struct {
	Forwarder *LogForwarder
	Target    string
}

func (h *Hook) Levels() []log.Level {
	return log.AllLevels
}

func (h *Hook) Fire(entry *log.Entry) error {
	file, _ := entry.Data["file"].(string)
	line, _ := entry.Data["line"].(int)
	module, _ := entry.Data["module"].(string)
	h.Forwarder.Forward(LogEntry{
		Timestamp: entry.Time.UTC(),
		Level:     levelToInt(entry.Level),
		Target:    h.Target,
		Module:    module,
		File:      file,
		Line:      line,
		Message:   entry.Message,
	})
	return nil
}

// levelToInt maps logrus's level ordering onto a stable integer scale for
// wire transmission (lower is more severe, matching logrus's own Level
// type), so a client doesn't need logrus's Go type to interpret it.
func levelToInt(l log.Level) int {
	return int(l)
}
