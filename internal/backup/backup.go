// Package backup snapshots the session archive into compressed, checksummed
// files and restores archives from them.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/levertask/internal/store"
)

// Archive is the part of the session archive a backup reads and restores.
type Archive interface {
	ListSessions(ctx context.Context) ([]store.Summary, error)
	LoadSession(ctx context.Context, id string) (*store.Session, error)
	WriteSession(ctx context.Context, s *store.Session) error
	DeleteSession(ctx context.Context, id string) error
}

// Snapshot is the payload of a backup file.
type Snapshot struct {
	CreatedAt time.Time        `json:"created_at"`
	Sessions  []*store.Session `json:"sessions"`
}

// TrialCount returns the number of trials across all sessions.
func (s *Snapshot) TrialCount() int {
	n := 0
	for _, sess := range s.Sessions {
		n += len(sess.Trials)
	}
	return n
}

// DefaultDir returns the default backup directory (~/.levertask/backups/).
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".levertask", "backups"), nil
}

// Backup writes every archived session to a backup file at path.
func Backup(ctx context.Context, a Archive, path string) (*Snapshot, error) {
	summaries, err := a.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	snap := &Snapshot{
		CreatedAt: time.Now().UTC(),
		Sessions:  make([]*store.Session, 0, len(summaries)),
	}
	for _, sum := range summaries {
		sess, err := a.LoadSession(ctx, sum.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", sum.ID, err)
		}
		snap.Sessions = append(snap.Sessions, sess)
	}

	if err := Write(path, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RestoreMode controls how restore handles sessions already archived.
type RestoreMode string

const (
	// RestoreMerge skips sessions that already exist (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace overwrites sessions that already exist.
	RestoreReplace RestoreMode = "replace"
)

// RestoreResult counts what a restore did.
type RestoreResult struct {
	Restored int `json:"restored"`
	Skipped  int `json:"skipped"`
	Replaced int `json:"replaced"`
}

// Restore writes the sessions in the backup at path into the archive.
func Restore(ctx context.Context, a Archive, path string, mode RestoreMode) (*RestoreResult, error) {
	if mode == "" {
		mode = RestoreMerge
	}
	if mode != RestoreMerge && mode != RestoreReplace {
		return nil, fmt.Errorf("unknown restore mode %q", mode)
	}

	snap, err := Read(path)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	for _, sess := range snap.Sessions {
		if sess.ID == "" {
			return nil, fmt.Errorf("backup holds a session without an id")
		}

		_, err := a.LoadSession(ctx, sess.ID)
		exists := err == nil
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to check session %s: %w", sess.ID, err)
		}

		if exists {
			if mode == RestoreMerge {
				result.Skipped++
				continue
			}
			if err := a.DeleteSession(ctx, sess.ID); err != nil {
				return nil, fmt.Errorf("failed to replace session %s: %w", sess.ID, err)
			}
			result.Replaced++
		} else {
			result.Restored++
		}

		if err := a.WriteSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to restore session %s: %w", sess.ID, err)
		}
	}
	return result, nil
}

// GeneratePath returns a timestamped backup file name in dir.
func GeneratePath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s%s", filePrefix, now.Format("20060102-150405"), fileExt))
}
