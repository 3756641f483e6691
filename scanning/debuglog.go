package scanning

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultDebugCapacity = 256

// DebugEntry is one recorded state transition or scan outcome.
type DebugEntry struct {
	At      time.Time
	Message string
}

// DebugLog is a fixed-capacity ring buffer of diagnostic entries. It is
// auxiliary: nothing in the scan pipeline depends on it. It also
// implements io.Writer so a zerolog logger can tee into it.
type DebugLog struct {
	mu      sync.Mutex
	entries []DebugEntry
	next    int
	full    bool
}

func NewDebugLog(capacity int) *DebugLog {
	if capacity <= 0 {
		capacity = defaultDebugCapacity
	}
	return &DebugLog{entries: make([]DebugEntry, capacity)}
}

// Record appends a formatted entry, overwriting the oldest when full.
func (d *DebugLog) Record(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[d.next] = DebugEntry{At: time.Now(), Message: fmt.Sprintf(format, args...)}
	d.next++
	if d.next == len(d.entries) {
		d.next = 0
		d.full = true
	}
}

// Entries returns a copy of the buffer, oldest first.
func (d *DebugLog) Entries() []DebugEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.full {
		out := make([]DebugEntry, d.next)
		copy(out, d.entries[:d.next])
		return out
	}
	out := make([]DebugEntry, 0, len(d.entries))
	out = append(out, d.entries[d.next:]...)
	out = append(out, d.entries[:d.next]...)
	return out
}

// Len reports how many entries are currently held.
func (d *DebugLog) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full {
		return len(d.entries)
	}
	return d.next
}

// Write lets the buffer act as a log sink.
func (d *DebugLog) Write(p []byte) (int, error) {
	d.Record("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
