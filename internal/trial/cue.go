package trial

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/models"
	"github.com/nvandessel/levertask/internal/reward"
)

// CueStep is the cue/delay step ticked while the machine waits for a pull.
// Start is called once when a new trial is set up; Tick reports completion.
type CueStep interface {
	Start(now time.Time)
	Tick(now time.Time) (finished bool)
}

// TimeoutCue finishes once Timeout has elapsed since Start. A zero Timeout
// never finishes.
type TimeoutCue struct {
	Timeout time.Duration
	started time.Time
}

// Start implements CueStep.
func (c *TimeoutCue) Start(now time.Time) {
	c.started = now
}

// Tick implements CueStep.
func (c *TimeoutCue) Tick(now time.Time) bool {
	if c.Timeout <= 0 {
		return false
	}
	return now.Sub(c.started) >= c.Timeout
}

// CuePaths locates the sound files for each cue. Empty paths disable a cue.
type CuePaths struct {
	StartCompetitive string
	StartDilemma     string
	LargeReward      string
	SmallReward      string
}

// DefaultCuePaths returns the conventional file layout under dir/sounds.
// Reward cues are named after the lever-1 animal.
func DefaultCuePaths(dir, animal1 string) CuePaths {
	sounds := filepath.Join(dir, "sounds")
	return CuePaths{
		StartCompetitive: filepath.Join(sounds, "start_trial_beep_task1.wav"),
		StartDilemma:     filepath.Join(sounds, "start_trial_beep_task2.wav"),
		LargeReward:      filepath.Join(sounds, animal1+"_large_juice_beep_1.wav"),
		SmallReward:      filepath.Join(sounds, animal1+"_small_juice_beep_1.wav"),
	}
}

// Cues holds loaded audio buffers. Missing entries are silent.
type Cues struct {
	Start  map[models.TaskType]hardware.BufferHandle
	Reward map[reward.Cue]hardware.BufferHandle
}

// LoadCues loads every configured cue. Cues that fail to load are left out
// and their errors are joined into the returned error; the rest stay usable.
func LoadCues(audio hardware.AudioService, p CuePaths) (Cues, error) {
	cues := Cues{
		Start:  make(map[models.TaskType]hardware.BufferHandle),
		Reward: make(map[reward.Cue]hardware.BufferHandle),
	}
	if audio == nil {
		return cues, nil
	}

	var errs []error
	load := func(path string, set func(hardware.BufferHandle)) {
		if path == "" {
			return
		}
		b, err := audio.LoadBuffer(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("loading cue: %w", err))
			return
		}
		set(b)
	}

	load(p.StartCompetitive, func(b hardware.BufferHandle) { cues.Start[models.TaskCompetitive] = b })
	load(p.StartDilemma, func(b hardware.BufferHandle) { cues.Start[models.TaskDilemma] = b })
	load(p.LargeReward, func(b hardware.BufferHandle) { cues.Reward[reward.CueLargeReward] = b })
	load(p.SmallReward, func(b hardware.BufferHandle) { cues.Reward[reward.CueSmallReward] = b })

	return cues, errors.Join(errs...)
}
