package simulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/models"
	"github.com/nvandessel/levertask/internal/session"
	"github.com/nvandessel/levertask/internal/store"
	"github.com/nvandessel/levertask/internal/trial"
)

const (
	defaultTickInterval = 10 * time.Millisecond
	defaultMaxTicks     = 100000
)

// Runner executes scenarios on the simulated rig with a fake clock.
type Runner struct {
	t   *testing.T
	dir string
}

// NewRunner creates a runner writing session files into a temp directory,
// with HOME sandboxed so nothing touches user data.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return &Runner{t: t, dir: dir}
}

// Run executes the scenario to completion and returns what it recorded.
func (r *Runner) Run(sc Scenario) Result {
	r.t.Helper()
	ctx := context.Background()

	cfg := trial.DefaultConfig()
	if sc.Config != nil {
		cfg = *sc.Config
	}
	tick := sc.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}
	maxTicks := sc.MaxTicks
	if maxTicks <= 0 {
		maxTicks = defaultMaxTicks
	}
	now := sc.Start
	if now.IsZero() {
		now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	}
	clock := func() time.Time { return now }

	levers := hardware.NewSimLever()
	pumps := hardware.NewSimPump(2, hardware.PumpState{VolumeUnits: hardware.VolumeMilliliters})
	audio := hardware.NewSimAudio()

	var driver session.Driver
	if sc.Script != nil {
		driver = NewScriptDriver(levers, cfg.Channels, sc.Script)
	} else {
		d, err := NewAnimalDriver(levers, cfg.Channels, sc.Seed, sc.Animals...)
		if err != nil {
			r.t.Fatalf("Run %s: %v", sc.Name, err)
		}
		driver = d
	}

	exporter := store.NewJSONExporter(r.dir)
	s := session.New(session.Options{
		Trial:    cfg,
		Levers:   levers,
		Pumps:    pumps,
		Audio:    audio,
		CuePaths: trial.DefaultCuePaths(r.dir, "animal1"),
		Info: models.SessionInfo{
			Animal1Name:         "animal1",
			Animal2Name:         "animal2",
			TaskType:            cfg.Schedule.Initial,
			TaskTypeBlock:       flag(cfg.Schedule.Block),
			TaskTypeRandom:      flag(cfg.Schedule.Random),
			TaskTypeBlockLength: cfg.Schedule.BlockLength,
			LargeRewardVolume:   cfg.Volumes.Large,
			SmallRewardVolume:   cfg.Volumes.Small,
		},
		MaxTrials:     sc.MaxTrials,
		MaxDuration:   sc.Duration,
		Writer:        exporter,
		CheckpointDir: r.dir,
		Driver:        driver,
		Clock:         clock,
	})

	if err := s.Setup(ctx); err != nil {
		r.t.Fatalf("Run %s: setup: %v", sc.Name, err)
	}

	res := Result{Name: sc.Name}
	for res.Ticks < maxTicks {
		now = now.Add(tick)
		res.Ticks++
		err := s.Tick(ctx)
		if errors.Is(err, session.ErrComplete) {
			res.Complete = true
			break
		}
		if err != nil {
			r.t.Fatalf("Run %s: tick %d: %v", sc.Name, res.Ticks, err)
		}
	}

	if err := s.Teardown(ctx); err != nil {
		r.t.Fatalf("Run %s: teardown: %v", sc.Name, err)
	}

	res.Record = s.Record()
	res.Summary = s.Summary()
	res.Pumps = pumps.Submitted()
	res.Plays = audio.Plays()
	res.Files = exporter.Paths(res.Record)
	return res
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
