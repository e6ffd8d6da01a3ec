package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/levertask/internal/sanitize"
)

// Kind names one of the four session files.
type Kind string

const (
	KindTrialRecord  Kind = "TrialRecord"
	KindBehavior     Kind = "bhv_data"
	KindSessionInfo  Kind = "session_info"
	KindLeverReading Kind = "lever_reading"
)

// Kinds lists the session files in write order.
var Kinds = []Kind{KindTrialRecord, KindBehavior, KindSessionInfo, KindLeverReading}

// postfixLayout is the timestamp suffix of every session file name.
const postfixLayout = "01-02-2006_15-04-05"

// FileName returns <date>_<animal1>_<animal2>_<kind>_<MM-DD-YYYY_HH-MM-SS>.json.
func FileName(s *Session, kind Kind) string {
	return fmt.Sprintf("%s_%s_%s_%s_%s.json",
		sanitize.FileComponent(s.Info.ExperimentDate),
		sanitize.FileComponent(s.Info.Animal1Name),
		sanitize.FileComponent(s.Info.Animal2Name),
		kind,
		s.StartedAt.Format(postfixLayout))
}

// JSONExporter writes the four session files into Dir, each a flat JSON
// array of field-named records.
type JSONExporter struct {
	Dir string
}

// NewJSONExporter creates an exporter writing into dir.
func NewJSONExporter(dir string) *JSONExporter {
	return &JSONExporter{Dir: dir}
}

// WriteSession implements Writer. Every file is attempted; failures are joined.
func (e *JSONExporter) WriteSession(ctx context.Context, s *Session) error {
	if err := os.MkdirAll(e.Dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	var errs []error
	for _, kind := range Kinds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := e.writeKind(s, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Paths returns the files WriteSession writes for s.
func (e *JSONExporter) Paths(s *Session) []string {
	paths := make([]string, len(Kinds))
	for i, kind := range Kinds {
		paths[i] = filepath.Join(e.Dir, FileName(s, kind))
	}
	return paths
}

func (e *JSONExporter) writeKind(s *Session, kind Kind) (string, error) {
	var v any
	switch kind {
	case KindTrialRecord:
		v = nonNil(s.Trials)
	case KindBehavior:
		v = nonNil(s.Events)
	case KindSessionInfo:
		// A single-element array keeps every file the same shape.
		v = []any{s.Info}
	case KindLeverReading:
		v = nonNil(s.Readouts)
	default:
		return "", fmt.Errorf("unknown session file kind %q", kind)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling %s: %w", kind, err)
	}

	path := filepath.Join(e.Dir, FileName(s, kind))
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("writing %s: %w", kind, err)
	}
	return path, nil
}

// nonNil turns a nil slice into an empty one so it encodes as [].
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// writeFileAtomic writes via temp file + rename.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		// Clean up temp file on rename failure.
		os.Remove(tmp)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
