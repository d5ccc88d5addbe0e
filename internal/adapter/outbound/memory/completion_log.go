package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
	"github.com/Sentinel-Gate/sessiontrack/internal/port/outbound"
)

const defaultRecentCap = 1000

// CompletionLog implements session.CompletionHandler writing one JSON line
// per completed session to stdout or a file.
// Also keeps a bounded in-memory ring buffer for recent record queries.
type CompletionLog struct {
	encoder *json.Encoder
	writer  io.Writer
	mu      sync.Mutex
	now     func() time.Time
	// recent is a bounded ring buffer of the most recent records.
	recent []outbound.CompletedSession
	cap    int
}

// resolveCapacity returns the first positive capacity value, or defaultRecentCap.
func resolveCapacity(capacity ...int) int {
	if len(capacity) > 0 && capacity[0] > 0 {
		return capacity[0]
	}
	return defaultRecentCap
}

// NewCompletionLog creates a completion log writing to stdout.
// An optional capacity parameter sets the ring buffer size (default 1000).
func NewCompletionLog(capacity ...int) *CompletionLog {
	return NewCompletionLogWithWriter(os.Stdout, capacity...)
}

// NewCompletionLogWithWriter creates a completion log writing to w.
// A nil writer keeps records in memory only.
func NewCompletionLogWithWriter(w io.Writer, capacity ...int) *CompletionLog {
	size := resolveCapacity(capacity...)
	l := &CompletionLog{
		writer: w,
		now:    time.Now,
		recent: make([]outbound.CompletedSession, 0, size),
		cap:    size,
	}
	if w != nil {
		l.encoder = json.NewEncoder(w)
	}
	return l
}

// OnSessionComplete records s.
func (l *CompletionLog) OnSessionComplete(ctx context.Context, s session.Session) error {
	rec := outbound.NewCompletedSession(s, l.now())

	l.mu.Lock()
	defer l.mu.Unlock()

	// Keep the record even if the write fails so it can still be queried.
	if len(l.recent) >= l.cap {
		copy(l.recent, l.recent[1:])
		l.recent[len(l.recent)-1] = rec
	} else {
		l.recent = append(l.recent, rec)
	}

	if l.encoder == nil {
		return nil
	}
	return l.encoder.Encode(rec)
}

// Recent returns the n most recent records, newest first.
func (l *CompletionLog) Recent(ctx context.Context, n int) ([]outbound.CompletedSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := len(l.recent)
	if n <= 0 || n > total {
		n = total
	}
	if n == 0 {
		return nil, nil
	}
	result := make([]outbound.CompletedSession, n)
	for i := 0; i < n; i++ {
		result[i] = l.recent[total-1-i]
	}
	return result, nil
}

// Close releases resources.
func (l *CompletionLog) Close() error {
	// Close file if it's not stdout/stderr
	if f, ok := l.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// Compile-time interface verification.
var (
	_ session.CompletionHandler  = (*CompletionLog)(nil)
	_ outbound.CompletionHistory = (*CompletionLog)(nil)
)
