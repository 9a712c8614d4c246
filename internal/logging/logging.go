// Package logging provides the client-side log facility: a timestamped debug
// file plus an in-memory ring buffer that backs the getLogs/clearLogs
// operations.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dlbridge/dlbridge/internal/config"
)

// Level classifies a log entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is a single recorded log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

const ringCapacity = 1000

var (
	mu      sync.Mutex
	ring    []Entry
	logFile *os.File
	fileErr bool
)

func openFile() {
	if logFile != nil || fileErr {
		return
	}
	dir := config.GetBridgeDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		fileErr = true
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "dlbridge.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		fileErr = true
		return
	}
	logFile = f
}

func log(level Level, format string, args ...any) {
	entry := Entry{
		Time:    time.Now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	}

	mu.Lock()
	defer mu.Unlock()

	ring = append(ring, entry)
	if len(ring) > ringCapacity {
		ring = ring[len(ring)-ringCapacity:]
	}

	openFile()
	if logFile != nil {
		fmt.Fprintf(logFile, "[%s] %s %s\n",
			entry.Time.Format("2006-01-02 15:04:05"), level, entry.Message)
	}
}

// Debug writes a debug-level log line.
func Debug(format string, args ...any) { log(LevelDebug, format, args...) }

// Info writes an info-level log line.
func Info(format string, args ...any) { log(LevelInfo, format, args...) }

// Warn writes a warn-level log line.
func Warn(format string, args ...any) { log(LevelWarn, format, args...) }

// Error writes an error-level log line.
func Error(format string, args ...any) { log(LevelError, format, args...) }

// Recent returns up to limit most recent entries, oldest first.
// limit <= 0 returns everything in the ring.
func Recent(limit int) []Entry {
	mu.Lock()
	defer mu.Unlock()

	src := ring
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// Clear drops all buffered entries. The log file is left untouched.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	ring = nil
}
