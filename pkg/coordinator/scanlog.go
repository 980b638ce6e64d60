package coordinator

import (
	"sync"
	"time"

	"github.com/urlsentry/urlsentry/pkg/verdict"
)

// LogEntry records one scan attempt, success or failure.
type LogEntry struct {
	ScanID   string              `json:"scan_id"`
	URL      string              `json:"url"`
	Threat   *verdict.ThreatData `json:"threat,omitempty"`
	Duration time.Duration       `json:"duration"`
	Time     time.Time           `json:"timestamp"`
	Error    string              `json:"error,omitempty"`
}

// scanLog is a fixed-capacity append-only ring. When full, the oldest entry
// is overwritten first.
type scanLog struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

func newScanLog(capacity int) *scanLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &scanLog{entries: make([]LogEntry, capacity)}
}

func (l *scanLog) append(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = e
	l.next++
	if l.next == len(l.entries) {
		l.next = 0
		l.full = true
	}
}

// snapshot returns the retained entries in chronological order.
func (l *scanLog) snapshot() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		out := make([]LogEntry, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]LogEntry, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

func (l *scanLog) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next = 0
	l.full = false
	for i := range l.entries {
		l.entries[i] = LogEntry{}
	}
}
