// Package history provides the append-only execution journal.
//
// The journal is newline-delimited JSON, one record per line. Records are
// never rewritten: a schedule's last run is simply the newest entry carrying
// its id. Appends are serialized and flushed whole so a concurrent reader
// never observes a partial line.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shoma-dev/toolsched/internal/domain"
)

// Entry is a single immutable journal record
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	ScheduleID string    `json:"scheduleId"`
	Tool       string    `json:"tool"`
	Status     string    `json:"status"`
}

// Journal status vocabulary. The set is open; these are the statuses the
// engine itself writes.
const (
	StatusStarted           = "started"
	StatusCatchupStarted    = "catchup-started"
	StatusCatchupSuccess    = "catchup-success"
	StatusCatchupFailure    = "catchup-failure"
	StatusCatchupSkipped    = "catchup-skipped-running"
	StatusWakeMissed        = "wake-missed"
	StatusRateLimitDetected = "rate-limit-detected"
	StatusCancelled         = "cancelled"
)

// CompletedStatus formats the terminal completed status with the elapsed
// duration, e.g. "completed_in_12m30s"
func CompletedStatus(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	total := int(elapsed.Round(time.Second) / time.Second)
	return fmt.Sprintf("completed_in_%dm%ds", total/60, total%60)
}

// Log is the JSONL journal on disk
type Log struct {
	path string
	mu   sync.Mutex
}

// New creates a Log backed by the given file path. The file is created on
// first append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the journal file location
func (l *Log) Path() string { return l.path }

// Append writes one record and flushes it before returning
func (l *Log) Append(scheduleID string, tool domain.Tool, status string) error {
	return l.AppendEntry(Entry{
		Timestamp:  time.Now().UTC().Truncate(time.Second),
		ScheduleID: scheduleID,
		Tool:       string(tool),
		Status:     status,
	})
}

// AppendEntry writes a fully-formed record. Exposed for tests and for
// callers that need to control the timestamp.
func (l *Log) AppendEntry(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening history log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing history entry: %w", err)
	}
	return f.Sync()
}

// LatestByID scans the full journal once and returns the newest entry
// timestamp per schedule id. Malformed lines are skipped.
func (l *Log) LatestByID() (map[string]time.Time, error) {
	latest := make(map[string]time.Time)
	err := l.scan(func(e Entry) {
		if existing, ok := latest[e.ScheduleID]; !ok || e.Timestamp.After(existing) {
			latest[e.ScheduleID] = e.Timestamp
		}
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

// Recent returns up to limit entries for one schedule, most recent first
func (l *Log) Recent(scheduleID string, limit int) ([]Entry, error) {
	var entries []Entry
	err := l.scan(func(e Entry) {
		if e.ScheduleID == scheduleID {
			entries = append(entries, e)
		}
	})
	if err != nil {
		return nil, err
	}

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	// newest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (l *Log) scan(fn func(Entry)) error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // partial or corrupt line, best-effort recovery
		}
		fn(e)
	}
	return scanner.Err()
}
