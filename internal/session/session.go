// Package session runs one experiment session: it wires the trial machine to
// the rig, drives it from a single goroutine, enforces session limits and
// persists the recorded data at teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/levertask/internal/eventlog"
	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/logging"
	"github.com/nvandessel/levertask/internal/models"
	"github.com/nvandessel/levertask/internal/store"
	"github.com/nvandessel/levertask/internal/trial"
)

// Driver is called before every tick with the tick time. Simulated animals
// use it to move the levers.
type Driver interface {
	Drive(now time.Time)
}

// Options configures a Session.
type Options struct {
	Trial trial.Config

	Levers hardware.LeverService
	Pumps  hardware.PumpService
	Audio  hardware.AudioService // nil for a silent rig

	// CuePaths are loaded at setup when Audio is set. Cues that fail to load
	// are logged and stay silent.
	CuePaths trial.CuePaths

	// Info is the session metadata; ExperimentDate is filled at setup when empty.
	// TaskType follows the machine's active task type as trials run.
	Info models.SessionInfo

	// ID identifies the session in the archive. Setup assigns a UUID when
	// empty; checkpoints carry it so a recovered save replaces a partial one.
	ID string

	// MaxTrials and MaxDuration end the session at the next trial boundary.
	// Zero disables a limit.
	MaxTrials   int
	MaxDuration time.Duration

	// Writer persists the session at teardown. Nil disables saving.
	Writer store.Writer

	// CheckpointDir, when set, receives a checkpoint after every recorded
	// trial. It is removed after a successful save.
	CheckpointDir string

	Driver      Driver
	Logger      *slog.Logger
	Transitions *logging.TransitionLogger

	// Clock replaces time.Now.
	Clock func() time.Time
}

// Summary describes a finished or running session.
type Summary struct {
	StartedAt      time.Time     `json:"started_at"`
	Elapsed        time.Duration `json:"elapsed"`
	Trials         int           `json:"trials"`
	RewardedTrials int           `json:"rewarded_trials"`
	Deliveries     int           `json:"deliveries"`
	Events         int           `json:"behavior_events"`
	Readouts       int           `json:"lever_readouts"`
	TickErrors     int           `json:"tick_errors"`
	Saved          bool          `json:"saved"`
}

// Session is an Experiment over the trial machine.
type Session struct {
	opts   Options
	log    *eventlog.Log
	logger *slog.Logger
	now    func() time.Time

	machine    *trial.Machine
	lastTrials int

	// mu guards the fields below. They are written only by the goroutine
	// driving the session and read by monitor handlers.
	mu         sync.RWMutex
	id         string
	info       models.SessionInfo
	startedAt  time.Time
	setUp      bool
	tickErrors int
	saved      bool
	status     trial.Status
}

// New creates a session. The event log exists from the start so observers
// can subscribe before Setup.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Session{
		opts:   opts,
		log:    eventlog.New(),
		logger: logger,
		now:    now,
		id:     opts.ID,
		info:   opts.Info,
	}
}

// Log returns the session's event log.
func (s *Session) Log() *eventlog.Log {
	return s.log
}

// Setup implements Experiment.
func (s *Session) Setup(ctx context.Context) error {
	if s.setUp {
		return errors.New("session already set up")
	}

	var cues trial.Cues
	if s.opts.Audio != nil {
		var err error
		cues, err = trial.LoadCues(s.opts.Audio, s.opts.CuePaths)
		if err != nil {
			s.logger.Warn("some audio cues failed to load", "error", err)
		}
	}

	m, err := trial.New(s.opts.Trial, trial.Deps{
		Levers:      s.opts.Levers,
		Pumps:       s.opts.Pumps,
		Audio:       s.opts.Audio,
		Cues:        cues,
		Log:         s.log,
		Logger:      s.logger,
		Transitions: s.opts.Transitions,
	}, trial.WithClock(s.now))
	if err != nil {
		return err
	}

	start := s.now()
	s.mu.Lock()
	s.machine = m
	s.startedAt = start
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.info.ExperimentDate == "" {
		s.info.ExperimentDate = start.Format("2006-01-02")
	}
	s.setUp = true
	s.mu.Unlock()
	s.publishStatus()

	s.logger.Info("session started",
		"id", s.id,
		"animal1", s.info.Animal1Name,
		"animal2", s.info.Animal2Name,
		"task_type", s.opts.Trial.Schedule.Initial.String(),
		"max_trials", s.opts.MaxTrials,
		"max_duration", s.opts.MaxDuration)
	return nil
}

// Tick implements Experiment. Event-log rejections are logged and counted;
// the returned error is ErrComplete once a limit is reached at a trial
// boundary.
func (s *Session) Tick(ctx context.Context) error {
	if !s.setUp {
		return errors.New("session not set up")
	}

	if s.opts.Driver != nil {
		s.opts.Driver.Drive(s.now())
	}

	if err := s.machine.Tick(); err != nil {
		s.mu.Lock()
		s.tickErrors++
		s.mu.Unlock()
		s.logger.Error("trial bookkeeping error", "trial", s.machine.TrialNumber(), "error", err)
	}
	s.publishStatus()

	if n := s.log.TrialCount(); n != s.lastTrials {
		s.lastTrials = n
		s.checkpoint()
	}

	if s.machine.Idle() {
		if s.opts.MaxTrials > 0 && s.lastTrials >= s.opts.MaxTrials {
			s.logger.Info("trial limit reached", "trials", s.lastTrials)
			return ErrComplete
		}
		if s.opts.MaxDuration > 0 && s.now().Sub(s.startedAt) >= s.opts.MaxDuration {
			s.logger.Info("session duration reached", "elapsed", s.now().Sub(s.startedAt))
			return ErrComplete
		}
	}
	return nil
}

// Teardown implements Experiment. Every writer is attempted; failures are
// joined and returned once.
func (s *Session) Teardown(ctx context.Context) error {
	defer s.opts.Transitions.Close()
	if !s.setUp {
		return nil
	}

	rec := s.Record()
	for _, v := range store.ValidateSession(rec) {
		s.logger.Warn("session data inconsistency", "issue", v.String())
	}

	if s.opts.Writer == nil {
		s.logger.Info("session not saved", "trials", len(rec.Trials))
		return nil
	}

	if err := s.opts.Writer.WriteSession(ctx, rec); err != nil {
		s.logger.Error("saving session failed", "error", err)
		return fmt.Errorf("saving session: %w", err)
	}
	s.mu.Lock()
	s.saved = true
	s.mu.Unlock()
	s.logger.Info("session saved", "id", rec.ID, "trials", len(rec.Trials))

	if s.opts.CheckpointDir != "" {
		if err := RemoveCheckpoint(s.opts.CheckpointDir); err != nil {
			s.logger.Warn("removing checkpoint failed", "error", err)
		}
	}
	return nil
}

// Record returns the session as recorded so far. Safe for concurrent use.
func (s *Session) Record() *store.Session {
	s.mu.RLock()
	id, info, started := s.id, s.info, s.startedAt
	s.mu.RUnlock()

	rec := store.NewSession(info, started, s.log.Snapshot())
	rec.ID = id
	return rec
}

// Status returns the trial machine's status as of the last tick. Safe for
// concurrent use.
func (s *Session) Status() trial.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Summary returns counts over the recorded data. Safe for concurrent use.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	sum := Summary{
		StartedAt:  s.startedAt,
		TickErrors: s.tickErrors,
		Saved:      s.saved,
	}
	setUp := s.setUp
	s.mu.RUnlock()

	if setUp {
		sum.Elapsed = s.now().Sub(sum.StartedAt)
	}
	snap := s.log.Snapshot()
	sum.Trials = len(snap.Trials)
	sum.Events = len(snap.Events)
	sum.Readouts = len(snap.Readouts)
	for _, r := range snap.Trials {
		if r.Rewarded > 0 {
			sum.RewardedTrials++
		}
		sum.Deliveries += r.Rewarded
	}
	return sum
}

func (s *Session) publishStatus() {
	st := s.machine.Status()
	s.mu.Lock()
	s.status = st
	s.info.TaskType = s.machine.TaskType()
	s.mu.Unlock()
}

func (s *Session) checkpoint() {
	if s.opts.CheckpointDir == "" || s.opts.Writer == nil {
		return
	}
	if err := SaveCheckpoint(s.opts.CheckpointDir, s.Record()); err != nil {
		s.logger.Warn("writing checkpoint failed", "error", err)
	}
}
