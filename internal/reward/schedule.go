package reward

import (
	"math/rand/v2"

	"github.com/nvandessel/levertask/internal/models"
)

// ScheduleConfig controls how the task type evolves across trials.
type ScheduleConfig struct {
	// Initial is the task type of the first block (or the fallback when
	// neither block nor random mode is enabled).
	Initial models.TaskType `json:"initial" yaml:"initial"`

	// Block toggles competitive/dilemma every BlockLength trials.
	Block bool `json:"block" yaml:"block"`

	// Random draws competitive or dilemma independently at every trial.
	Random bool `json:"random" yaml:"random"`

	// BlockLength is the block size in trials.
	BlockLength int `json:"block_length" yaml:"block_length"`
}

// IntNer is the random source used for task draws.
type IntNer interface {
	IntN(n int) int
}

// Scheduler picks the task type at the start of each trial.
type Scheduler struct {
	cfg     ScheduleConfig
	current models.TaskType
	rng     IntNer
}

// NewScheduler creates a scheduler seeded for reproducible random draws.
func NewScheduler(cfg ScheduleConfig, seed uint64) *Scheduler {
	return NewSchedulerWithSource(cfg, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// NewSchedulerWithSource creates a scheduler drawing from rng.
func NewSchedulerWithSource(cfg ScheduleConfig, rng IntNer) *Scheduler {
	return &Scheduler{cfg: cfg, current: cfg.Initial, rng: rng}
}

// Current returns the task type chosen by the last call to Next.
func (s *Scheduler) Current() models.TaskType {
	return s.current
}

// Next returns the task type for the trial that follows completedTrials
// finished trials.
//
// Random mode draws first; block mode then toggles on every block boundary
// (completedTrials a positive multiple of BlockLength). With both flags set
// the draw is followed by the toggle, which keeps the block cadence visible.
func (s *Scheduler) Next(completedTrials int) models.TaskType {
	if s.cfg.Random {
		s.current = models.TaskType(s.rng.IntN(2) + 1)
	}
	if s.cfg.Block && s.cfg.BlockLength > 0 && completedTrials > 0 && completedTrials%s.cfg.BlockLength == 0 {
		s.current = s.current.Toggle()
	}
	return s.current
}
