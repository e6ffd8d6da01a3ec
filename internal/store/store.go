// Package store persists recorded sessions: JSON files for analysis and a
// SQLite archive for listing and re-export.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/levertask/internal/eventlog"
	"github.com/nvandessel/levertask/internal/models"
)

// ErrNotFound is returned when an archived session does not exist.
var ErrNotFound = errors.New("session not found")

// Session is everything recorded in one session.
type Session struct {
	// ID identifies the session in the archive. Writers that need one assign it.
	ID string `json:"id"`

	// StartedAt is the wall-clock time the session began. It names the output files.
	StartedAt time.Time `json:"started_at"`

	Info     models.SessionInfo     `json:"session_info"`
	Trials   []models.TrialRecord   `json:"trial_records"`
	Events   []models.BehaviorEvent `json:"behavior_events"`
	Readouts []models.LeverReadout  `json:"lever_readouts"`
}

// NewSession combines session metadata with a snapshot of the event log.
func NewSession(info models.SessionInfo, startedAt time.Time, snap eventlog.Snapshot) *Session {
	return &Session{
		StartedAt: startedAt,
		Info:      info,
		Trials:    snap.Trials,
		Events:    snap.Events,
		Readouts:  snap.Readouts,
	}
}

// Summary describes an archived session without its records.
type Summary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	Animal1    string    `json:"animal1"`
	Animal2    string    `json:"animal2"`
	TaskType   int       `json:"task_type"`
	TrialCount int       `json:"trial_count"`
}

// Writer persists a finished session.
type Writer interface {
	WriteSession(ctx context.Context, s *Session) error
}

// MultiWriter writes a session to every writer.
type MultiWriter []Writer

// WriteSession attempts every writer, even after a failure, and joins the
// errors. Nothing is retried.
func (m MultiWriter) WriteSession(ctx context.Context, s *Session) error {
	var errs []error
	for _, w := range m {
		if w == nil {
			continue
		}
		if err := w.WriteSession(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
