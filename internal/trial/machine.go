// Package trial runs the trial state machine of the two-lever task.
//
// A Machine is ticked once per loop iteration. Each tick it reads both lever
// channels (channel 0 first), feeds them through normalization and pull
// detection, and advances the trial:
//
//	WaitingForPull ──release──▶ DeliveringReward ──end event──▶ Finalizing
//	      ▲                                                         │
//	      └────────────────────── record appended ◀─────────────────┘
//
// Delivery delays are cooperative: the machine never sleeps, it compares the
// tick time against the time of the previous delivery step. Each configured
// delay is therefore a minimum, and events keep their relative order no
// matter how irregular the ticks are.
package trial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/levertask/internal/constants"
	"github.com/nvandessel/levertask/internal/eventlog"
	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/lever"
	"github.com/nvandessel/levertask/internal/logging"
	"github.com/nvandessel/levertask/internal/models"
	"github.com/nvandessel/levertask/internal/reward"
)

// State is a trial state.
type State int

const (
	StateWaitingForPull State = iota
	StateDeliveringReward
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateWaitingForPull:
		return "waiting_for_pull"
	case StateDeliveringReward:
		return "delivering_reward"
	case StateFinalizing:
		return "finalizing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// deliveryStep is the position inside StateDeliveringReward.
type deliveryStep int

const (
	stepFirstPump deliveryStep = iota
	stepSecondPump
	stepTrialEnd
)

// Deps are the collaborators a Machine drives.
type Deps struct {
	Levers hardware.LeverService
	Pumps  hardware.PumpService
	Log    *eventlog.Log

	// Audio may be nil for a silent rig.
	Audio hardware.AudioService
	Cues  Cues

	// Cue defaults to a TimeoutCue using Config.TrialTimeout.
	Cue CueStep

	Logger      *slog.Logger
	Transitions *logging.TransitionLogger
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now, for tests and replays.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.nowFunc = now
	}
}

// WithScheduler replaces the seeded task scheduler.
func WithScheduler(s *reward.Scheduler) Option {
	return func(m *Machine) {
		m.scheduler = s
	}
}

// Machine is the trial state machine. It is not safe for concurrent use;
// one goroutine owns it and calls Tick.
type Machine struct {
	cfg       Config
	deps      Deps
	policy    reward.Policy
	scheduler *reward.Scheduler
	detectors [constants.NumChannels]*lever.Detector
	nowFunc   func() time.Time

	state State
	entry bool

	trialNumber int
	trialOpen   bool
	firstPull   int
	taskType    models.TaskType
	juice2Delay time.Duration
	leverPulled [constants.NumChannels]bool
	rewarded    [constants.NumPumps]int

	sessionStarted bool
	sessionStart   time.Time
	trialStart     time.Time
	trialStartSecs float64

	delivery   deliveryStep
	stepAnchor time.Time
}

// New creates a machine in StateWaitingForPull with the new-trial entry flag set.
// The configuration is validated here; a bad pull threshold is an operator
// error and the machine refuses to start.
func New(cfg Config, deps Deps, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trial config: %w", err)
	}
	if deps.Levers == nil || deps.Pumps == nil || deps.Log == nil {
		return nil, errors.New("trial machine needs lever, pump and log services")
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Cue == nil {
		deps.Cue = &TimeoutCue{Timeout: cfg.TrialTimeout}
	}

	m := &Machine{
		cfg:       cfg,
		deps:      deps,
		policy:    reward.NewPolicy(cfg.Volumes),
		scheduler: reward.NewScheduler(cfg.Schedule, cfg.Seed),
		nowFunc:   time.Now,
		state:     StateWaitingForPull,
		entry:     true,
		firstPull: -1,
		taskType:  cfg.Schedule.Initial,
	}
	for i, ch := range cfg.Channels {
		d, err := lever.NewDetector(ch.Thresholds)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		m.detectors[i] = d
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Tick runs one loop iteration. Errors come from the event log rejecting an
// append; they indicate a bookkeeping bug and never stop the machine.
func (m *Machine) Tick() error {
	now := m.nowFunc()
	var errs []error

	if m.state == StateWaitingForPull && m.entry {
		m.setupTrial(now)
	}

	for ch := 0; ch < constants.NumChannels; ch++ {
		if err := m.pollChannel(ch, now); err != nil {
			errs = append(errs, err)
		}
	}

	switch m.state {
	case StateWaitingForPull:
		m.tickCue(now)
	case StateDeliveringReward:
		for {
			fired, err := m.advanceDelivery(now)
			if err != nil {
				errs = append(errs, err)
			}
			if !fired || m.state != StateDeliveringReward {
				break
			}
		}
	case StateFinalizing:
		if err := m.finalize(); err != nil {
			errs = append(errs, err)
		}
	default:
		panic(fmt.Sprintf("trial: unreachable state %d", int(m.state)))
	}

	m.deps.Pumps.SubmitCommands()
	return errors.Join(errs...)
}

// setupTrial runs once on entry to a new trial.
func (m *Machine) setupTrial(now time.Time) {
	if !m.sessionStarted {
		m.sessionStart = now
		m.sessionStarted = true
	}

	m.taskType = m.scheduler.Next(m.trialNumber)
	m.juice2Delay = m.cfg.Timing.Juice2Delay(m.taskType)

	m.trialOpen = false
	m.firstPull = -1
	m.leverPulled = [constants.NumChannels]bool{}
	m.rewarded = [constants.NumPumps]int{}

	if b, ok := m.deps.Cues.Start[m.taskType]; ok && m.deps.Audio != nil {
		m.deps.Audio.PlayBoth(b, constants.CueGain)
	}

	if m.cfg.AllowAutomatedRun {
		m.deps.Pumps.RunDispenseProgram(m.deps.Pumps.IthPump(1))
	}

	m.deps.Cue.Start(now)
	m.entry = false

	m.deps.Logger.Debug("new trial set up",
		"next_trial", m.trialNumber+1,
		"task_type", m.taskType.String(),
		"juice2_delay", m.juice2Delay)
}

// pollChannel reads, normalizes and detects one channel. A missing reading
// skips the channel for this tick.
func (m *Machine) pollChannel(ch int, now time.Time) error {
	cc := m.cfg.Channels[ch]
	st, ok := m.deps.Levers.GetState(cc.Handle)
	if !ok {
		return nil
	}

	pos := cc.Calibration.Normalize(st.PotentiometerReading)
	ev := m.detectors[ch].Detect(pos)
	m.deps.Logger.Log(context.Background(), logging.LevelTrace, "lever sample", "channel", ch, "raw", st.PotentiometerReading, "position", pos)

	switch {
	case ev.Pulled:
		return m.onPull(ch, st, now)
	case ev.Released:
		return m.onRelease(ch, st, now)
	}
	return nil
}

func (m *Machine) onPull(ch int, st hardware.LeverState, now time.Time) error {
	if m.state != StateWaitingForPull {
		// The trial is already being rewarded; keep the raw record only.
		return m.appendReadout(ch, st, models.ReadoutPull, now)
	}

	var errs []error
	if !m.trialOpen {
		m.trialNumber++
		m.trialOpen = true
		m.firstPull = ch
		m.trialStart = now
		m.trialStartSecs = now.Sub(m.sessionStart).Seconds()
		errs = append(errs, m.appendEvent(models.EventTrialStart, now))
		m.deps.Logger.Info("trial started",
			"trial", m.trialNumber,
			"first_pull", ch+1,
			"task_type", m.taskType.String())
	}

	errs = append(errs,
		m.appendEvent(models.PulledEventCode(ch), now),
		m.appendReadout(ch, st, models.ReadoutPull, now))
	m.leverPulled[ch] = true

	m.dispatch(ch)
	return errors.Join(errs...)
}

func (m *Machine) onRelease(ch int, st hardware.LeverState, now time.Time) error {
	err := m.appendReadout(ch, st, models.ReadoutRelease, now)
	if m.state == StateWaitingForPull && m.trialOpen && m.leverPulled[ch] {
		m.transition(StateDeliveringReward, now, fmt.Sprintf("lever %d released", ch+1))
	}
	return err
}

// dispatch sets both pumps' desired volumes for a pull and plays the reward cue.
func (m *Machine) dispatch(puller int) {
	a, ok := m.policy.Dispatch(m.taskType, puller)
	if !ok {
		m.deps.Logger.Debug("no reward for task", "task_type", m.taskType.String(), "channel", puller)
		return
	}

	if b, ok := m.deps.Cues.Reward[a.Cue]; ok && m.deps.Audio != nil {
		m.deps.Audio.PlayBoth(b, constants.CueGain)
	}

	for _, pump := range []int{a.PullerPump, a.OtherPump} {
		h := m.deps.Pumps.IthPump(pump)
		desired := m.deps.Pumps.ReadDesiredPumpState(h)
		m.deps.Pumps.SetDispensedVolume(h, a.VolumeFor(pump), desired.VolumeUnits)
	}

	m.deps.Logger.Debug("reward dispatched",
		"trial", m.trialNumber,
		"puller", puller+1,
		"puller_volume", a.PullerVolume,
		"other_volume", a.OtherVolume,
		"cue", a.Cue.String())
}

// tickCue advances the cue/delay step. On completion the trial is rewarded
// if one is open; otherwise the countdown restarts.
func (m *Machine) tickCue(now time.Time) {
	if !m.deps.Cue.Tick(now) {
		return
	}
	if m.trialOpen {
		m.transition(StateDeliveringReward, now, "cue finished")
		return
	}
	m.deps.Logger.Warn("cue finished without a pull, restarting", "next_trial", m.trialNumber+1)
	m.deps.Transitions.Log(map[string]any{"event": "cue_restart", "next_trial": m.trialNumber + 1})
	m.deps.Cue.Start(now)
}

// advanceDelivery fires at most one delivery step whose minimum delay has
// elapsed. It reports whether a step fired.
func (m *Machine) advanceDelivery(now time.Time) (bool, error) {
	elapsed := now.Sub(m.stepAnchor)

	switch m.delivery {
	case stepFirstPump:
		if !m.taskType.Rewarded() {
			// Neutral trials skip straight to the end wait.
			m.delivery = stepTrialEnd
			return true, nil
		}
		if elapsed < m.cfg.Timing.Juice1Delay {
			return false, nil
		}
		err := m.deliver(m.firstPull, now)
		if m.cfg.DeliveryMode == constants.DeliverySimultaneous {
			err = errors.Join(err, m.deliver(reward.OtherIndex(m.firstPull), now))
			m.delivery = stepTrialEnd
		} else {
			m.delivery = stepSecondPump
		}
		m.stepAnchor = now
		return true, err

	case stepSecondPump:
		if elapsed < m.juice2Delay {
			return false, nil
		}
		err := m.deliver(reward.OtherIndex(m.firstPull), now)
		m.delivery = stepTrialEnd
		m.stepAnchor = now
		return true, err

	case stepTrialEnd:
		if elapsed < m.cfg.Timing.AfterDelivery {
			return false, nil
		}
		err := m.appendEvent(models.EventTrialEnd, now)
		m.transition(StateFinalizing, now, "delivery complete")
		return true, err
	}
	return false, nil
}

// deliver runs one pump's dispense program and records it.
func (m *Machine) deliver(pump int, now time.Time) error {
	h := m.deps.Pumps.IthPump(pump)
	m.deps.Pumps.RunDispenseProgram(h)
	m.deps.Pumps.SubmitCommands()
	m.rewarded[pump] = 1

	m.deps.Logger.Info("reward delivered",
		"trial", m.trialNumber,
		"pump", pump+1,
		"volume", m.deps.Pumps.ReadDesiredPumpState(h).Volume)
	return m.appendEvent(models.DeliveryEventCode(pump), now)
}

// finalize appends the trial record and arms the next trial.
func (m *Machine) finalize() error {
	rec := models.TrialRecord{
		TrialNumber:         m.trialNumber,
		FirstPullID:         m.firstPull + 1,
		Rewarded:            m.rewarded[0] + m.rewarded[1],
		TaskType:            m.taskType,
		TrialStartTimestamp: m.trialStartSecs,
	}
	err := m.deps.Log.AppendTrial(rec)

	m.deps.Logger.Info("trial finished",
		"trial", rec.TrialNumber,
		"rewarded", rec.Rewarded,
		"task_type", rec.TaskType.String())

	m.trialOpen = false
	m.transition(StateWaitingForPull, m.nowFunc(), "trial recorded")
	m.entry = true
	return err
}

func (m *Machine) transition(to State, now time.Time, reason string) {
	from := m.state
	m.state = to
	if to == StateDeliveringReward {
		m.delivery = stepFirstPump
		m.stepAnchor = now
	}

	m.deps.Logger.Debug("state transition", "from", from.String(), "to", to.String(), "trial", m.trialNumber, "reason", reason)
	m.deps.Transitions.LogTransition(logging.Transition{
		From:   from.String(),
		To:     to.String(),
		Trial:  m.trialNumber,
		Reason: reason,
	})
}

// trialTime is seconds since the current trial started (0 before the first trial).
func (m *Machine) trialTime(now time.Time) float64 {
	if m.trialNumber == 0 {
		return 0
	}
	return now.Sub(m.trialStart).Seconds()
}

func (m *Machine) appendEvent(code models.EventCode, now time.Time) error {
	ev := models.BehaviorEvent{
		TrialNumber: m.trialNumber,
		Timepoint:   m.trialTime(now),
		EventCode:   code,
	}
	if err := m.deps.Log.AppendEvent(ev); err != nil {
		m.deps.Logger.Error("behavior event rejected", "trial", ev.TrialNumber, "code", int(code), "error", err)
		return err
	}
	return nil
}

func (m *Machine) appendReadout(ch int, st hardware.LeverState, pullOrRelease int, now time.Time) error {
	r := models.LeverReadout{
		TrialNumber:   m.trialNumber,
		Timepoint:     m.trialTime(now),
		StrainGauge:   st.StrainGauge,
		Potentiometer: st.PotentiometerReading,
		LeverID:       ch + 1,
		PullOrRelease: pullOrRelease,
	}
	if err := m.deps.Log.AppendReadout(r); err != nil {
		m.deps.Logger.Error("lever readout rejected", "trial", r.TrialNumber, "lever", r.LeverID, "error", err)
		return err
	}
	return nil
}

// Status is a point-in-time view of the machine for monitoring.
type Status struct {
	State        string                         `json:"state"`
	TrialNumber  int                            `json:"trial_number"`
	TrialOpen    bool                           `json:"trial_open"`
	TaskType     string                         `json:"task_type"`
	FirstPull    int                            `json:"first_pull_id,omitempty"`
	Phases       [constants.NumChannels]string  `json:"lever_phases"`
	Positions    [constants.NumChannels]float64 `json:"lever_positions"`
	SessionStart time.Time                      `json:"session_start,omitzero"`
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// TrialNumber returns the number of the last opened trial (0 before the first pull).
func (m *Machine) TrialNumber() int { return m.trialNumber }

// TaskType returns the task type of the current trial.
func (m *Machine) TaskType() models.TaskType { return m.taskType }

// SessionStart returns when the first trial was set up, and whether that happened.
func (m *Machine) SessionStart() (time.Time, bool) { return m.sessionStart, m.sessionStarted }

// Idle reports whether the machine sits at a trial boundary: waiting for a
// pull with no trial open. Sessions stop only here.
func (m *Machine) Idle() bool {
	return m.state == StateWaitingForPull && !m.trialOpen
}

// Status returns a snapshot for monitoring.
func (m *Machine) Status() Status {
	st := Status{
		State:       m.state.String(),
		TrialNumber: m.trialNumber,
		TrialOpen:   m.trialOpen,
		TaskType:    m.taskType.String(),
	}
	if m.trialOpen {
		st.FirstPull = m.firstPull + 1
	}
	if m.sessionStarted {
		st.SessionStart = m.sessionStart
	}
	for i, d := range m.detectors {
		st.Phases[i] = d.Phase().String()
		st.Positions[i] = d.LastPosition()
	}
	return st
}

// SetThresholds replaces one channel's pull thresholds between ticks. The
// previous thresholds stay in effect if the new ones are invalid.
func (m *Machine) SetThresholds(ch int, t lever.Thresholds) error {
	if ch < 0 || ch >= constants.NumChannels {
		return fmt.Errorf("channel %d out of range", ch)
	}
	if err := m.detectors[ch].SetThresholds(t); err != nil {
		return err
	}
	m.cfg.Channels[ch].Thresholds = t
	return nil
}
