package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/levertask/internal/models"
)

// SQLiteStore archives sessions in a SQLite database.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// OpenSQLite opens (creating if needed) the archive at dbPath.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// WriteSession implements Writer. The session is written in one transaction;
// a session without an ID is given a new UUID. Writing an ID that is already
// archived replaces the stored copy, so a retried save never duplicates.
func (s *SQLiteStore) WriteSession(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sess.ID); err != nil {
		return fmt.Errorf("failed to clear session %s: %w", sess.ID, err)
	}

	info := sess.Info
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (
			id, started_at, animal1_name, animal2_name, experiment_date,
			task_type, tasktype_block, tasktype_random, tasktype_blocklength,
			large_reward_volume, small_reward_volume, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StartedAt.UTC().Format(time.RFC3339Nano), info.Animal1Name, info.Animal2Name, info.ExperimentDate,
		int(info.TaskType), info.TaskTypeBlock, info.TaskTypeRandom, info.TaskTypeBlockLength,
		info.LargeRewardVolume, info.SmallRewardVolume, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}

	trialStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trial_records (session_id, trial_number, first_pull_id, rewarded, task_type, trial_start_timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trial insert: %w", err)
	}
	defer trialStmt.Close()
	for _, r := range sess.Trials {
		if _, err := trialStmt.ExecContext(ctx, sess.ID, r.TrialNumber, r.FirstPullID, r.Rewarded, int(r.TaskType), r.TrialStartTimestamp); err != nil {
			return fmt.Errorf("failed to insert trial %d: %w", r.TrialNumber, err)
		}
	}

	eventStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO behavior_events (session_id, seq, trial_number, timepoint, event_code)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer eventStmt.Close()
	for i, ev := range sess.Events {
		if _, err := eventStmt.ExecContext(ctx, sess.ID, i, ev.TrialNumber, ev.Timepoint, int(ev.EventCode)); err != nil {
			return fmt.Errorf("failed to insert behavior event %d: %w", i, err)
		}
	}

	readoutStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lever_readouts (session_id, seq, trial_number, timepoint, strain_gauge, potentiometer, lever_id, pull_or_release)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare readout insert: %w", err)
	}
	defer readoutStmt.Close()
	for i, r := range sess.Readouts {
		if _, err := readoutStmt.ExecContext(ctx, sess.ID, i, r.TrialNumber, r.Timepoint, r.StrainGauge, r.Potentiometer, r.LeverID, r.PullOrRelease); err != nil {
			return fmt.Errorf("failed to insert lever readout %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session %s: %w", sess.ID, err)
	}
	return nil
}

// ListSessions returns archived sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.started_at, s.animal1_name, s.animal2_name, s.task_type,
		       (SELECT COUNT(*) FROM trial_records t WHERE t.session_id = s.id)
		FROM sessions s
		ORDER BY s.started_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var started string
		if err := rows.Scan(&sum.ID, &started, &sum.Animal1, &sum.Animal2, &sum.TaskType, &sum.TrialCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.StartedAt = parseTime(started)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// LoadSession reads a whole session back. It returns ErrNotFound for an unknown id.
func (s *SQLiteStore) LoadSession(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := &Session{ID: id}
	var started string
	var taskType int
	err := s.db.QueryRowContext(ctx, `
		SELECT started_at, animal1_name, animal2_name, experiment_date, task_type,
		       tasktype_block, tasktype_random, tasktype_blocklength,
		       large_reward_volume, small_reward_volume
		FROM sessions WHERE id = ?`, id).Scan(
		&started, &sess.Info.Animal1Name, &sess.Info.Animal2Name, &sess.Info.ExperimentDate, &taskType,
		&sess.Info.TaskTypeBlock, &sess.Info.TaskTypeRandom, &sess.Info.TaskTypeBlockLength,
		&sess.Info.LargeRewardVolume, &sess.Info.SmallRewardVolume)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	sess.StartedAt = parseTime(started)
	sess.Info.TaskType = models.TaskType(taskType)

	if sess.Trials, err = s.loadTrials(ctx, id); err != nil {
		return nil, err
	}
	if sess.Events, err = s.loadEvents(ctx, id); err != nil {
		return nil, err
	}
	if sess.Readouts, err = s.loadReadouts(ctx, id); err != nil {
		return nil, err
	}
	return sess, nil
}

// DeleteSession removes a session and its records.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) loadTrials(ctx context.Context, id string) ([]models.TrialRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trial_number, first_pull_id, rewarded, task_type, trial_start_timestamp
		FROM trial_records WHERE session_id = ? ORDER BY trial_number`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query trial records: %w", err)
	}
	defer rows.Close()

	out := make([]models.TrialRecord, 0)
	for rows.Next() {
		var r models.TrialRecord
		var task int
		if err := rows.Scan(&r.TrialNumber, &r.FirstPullID, &r.Rewarded, &task, &r.TrialStartTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trial record: %w", err)
		}
		r.TaskType = models.TaskType(task)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadEvents(ctx context.Context, id string) ([]models.BehaviorEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trial_number, timepoint, event_code
		FROM behavior_events WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query behavior events: %w", err)
	}
	defer rows.Close()

	out := make([]models.BehaviorEvent, 0)
	for rows.Next() {
		var ev models.BehaviorEvent
		var code int
		if err := rows.Scan(&ev.TrialNumber, &ev.Timepoint, &code); err != nil {
			return nil, fmt.Errorf("failed to scan behavior event: %w", err)
		}
		ev.EventCode = models.EventCode(code)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadReadouts(ctx context.Context, id string) ([]models.LeverReadout, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trial_number, timepoint, strain_gauge, potentiometer, lever_id, pull_or_release
		FROM lever_readouts WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query lever readouts: %w", err)
	}
	defer rows.Close()

	out := make([]models.LeverReadout, 0)
	for rows.Next() {
		var r models.LeverReadout
		if err := rows.Scan(&r.TrialNumber, &r.Timepoint, &r.StrainGauge, &r.Potentiometer, &r.LeverID, &r.PullOrRelease); err != nil {
			return nil, fmt.Errorf("failed to scan lever readout: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// parseTime parses a stored RFC 3339 timestamp, returning the zero time on failure.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
