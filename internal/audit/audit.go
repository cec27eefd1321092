// Package audit appends structured JSONL records of security-relevant
// daemon events: authentication attempts, reloads, refresh ticks, and
// restart-guard trips.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Operations recorded by the daemon.
const (
	OpLogin       = "session.login"
	OpUnlock      = "session.unlock"
	OpPrompt      = "session.prompt"
	OpReload      = "cache.reload"
	OpRefresh     = "refresh.tick"
	OpGuardTrip   = "guard.trip"
	OpDaemonStart = "daemon.start"
	OpDaemonStop  = "daemon.stop"
)

// Record is one audit line.
type Record struct {
	Timestamp time.Time `json:"ts"`
	Operation string    `json:"op"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail,omitempty"`
}

// Logger appends records to a single file. A nil *Logger is valid and
// discards everything, so callers never guard their call sites.
type Logger struct {
	mu   sync.Mutex
	path string
}

// NewLogger returns a logger writing to path. The parent directory is
// created on first write, not here.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

// Log appends one record. Failures are returned but callers generally treat
// auditing as best-effort.
func (l *Logger) Log(op string, success bool, detail string) error {
	if l == nil {
		return nil
	}
	rec := Record{
		Timestamp: time.Now().UTC(),
		Operation: op,
		Success:   success,
		Detail:    detail,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("audit: create directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write: %w", err)
	}
	return nil
}
