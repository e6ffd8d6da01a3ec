// Package logging provides leveled logging and state-transition tracing for levertask.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr and a rotating session log file
//   - A TransitionLogger for structured JSONL traces of trial state changes
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace is a custom slog level below Debug for per-tick detail
// (every lever sample, every timer check).
const LevelTrace = slog.LevelDebug - 4

// TransitionsFile is the JSONL file written by TransitionLogger.
const TransitionsFile = "transitions.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace", "warn", "error" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing text records to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// RotationConfig configures the rotating session log file.
type RotationConfig struct {
	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int `json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `json:"max_age_days" yaml:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `json:"compress" yaml:"compress"`
}

// DefaultRotation returns the rotation settings used when none are configured.
func DefaultRotation() RotationConfig {
	return RotationConfig{MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30, Compress: true}
}

// NewRotatingFile returns a writer that appends to path and rotates it.
// The file is opened lazily on first write.
func NewRotatingFile(path string, rc RotationConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rc.MaxSizeMB,
		MaxBackups: rc.MaxBackups,
		MaxAge:     rc.MaxAgeDays,
		Compress:   rc.Compress,
	}
}

// NewSessionLogger creates a logger writing to stderr and, when path is
// non-empty, to a rotating file as well. The returned closer releases the file.
func NewSessionLogger(level string, stderr io.Writer, path string, rc RotationConfig) (*slog.Logger, io.Closer) {
	if path == "" {
		return NewLogger(level, stderr), nopCloser{}
	}
	rotator := NewRotatingFile(path, rc)
	return NewLogger(level, io.MultiWriter(stderr, rotator)), rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// TransitionLogger appends trial machine transitions to transitions.jsonl.
// Methods on a nil *TransitionLogger do nothing, so callers never check.
type TransitionLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewTransitionLogger opens dir/transitions.jsonl for append when level is
// debug or trace. It returns nil at info and above, or when the file cannot
// be opened.
func NewTransitionLogger(dir string, level string) *TransitionLogger {
	if ParseLevel(level) >= slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, TransitionsFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &TransitionLogger{file: f}
}

// Transition is one state change of the trial machine.
type Transition struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Trial  int    `json:"trial"`
	Reason string `json:"reason,omitempty"`
}

// LogTransition writes a transition record.
func (tl *TransitionLogger) LogTransition(tr Transition) {
	tl.Log(map[string]any{
		"event":  "transition",
		"from":   tr.From,
		"to":     tr.To,
		"trial":  tr.Trial,
		"reason": tr.Reason,
	})
}

// Log appends event plus a "time" field as one line. event itself is left untouched.
func (tl *TransitionLogger) Log(event map[string]any) {
	if tl == nil {
		return
	}

	entry := maps.Clone(event)
	if entry == nil {
		entry = make(map[string]any, 1)
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return
	}
	_, _ = tl.file.Write(data)
}

// Close releases the file; later Log calls are dropped.
func (tl *TransitionLogger) Close() {
	if tl == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file != nil {
		tl.file.Close()
		tl.file = nil
	}
}
