package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/levertask/internal/constants"
	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/models"
	"github.com/nvandessel/levertask/internal/trial"
)

func fixedTask(task models.TaskType) *trial.Config {
	cfg := trial.DefaultConfig()
	cfg.Schedule.Initial = task
	cfg.Schedule.Block = false
	return &cfg
}

// pullOnce pulls channel ch past the rising edge at 1s and releases it at 1.3s.
func pullOnce(ch int) *Script {
	return &Script{Steps: []Step{
		{At: time.Second, Channel: ch, Position: 0.5},
		{At: 1300 * time.Millisecond, Channel: ch, Position: 0.2},
	}}
}

// volumes returns the last volume set on each pump.
func volumes(r Result) map[int]float64 {
	out := make(map[int]float64)
	for _, c := range r.Pumps {
		if c.Kind == hardware.CmdSetVolume {
			out[c.Pump] = c.Volume
		}
	}
	return out
}

func codes(r Result, trialNumber int) []models.EventCode {
	var out []models.EventCode
	for _, ev := range r.Record.Events {
		if ev.TrialNumber == trialNumber {
			out = append(out, ev.EventCode)
		}
	}
	return out
}

func TestE2E_PullThenRelease(t *testing.T) {
	r := NewRunner(t)
	result := r.Run(Scenario{
		Name:      "pull-release",
		Config:    fixedTask(models.TaskCompetitive),
		Script:    pullOnce(0),
		MaxTrials: 1,
	})
	require.True(t, result.Complete)

	assert.Equal(t, []models.EventCode{
		models.EventTrialStart,
		models.EventLever1Pulled,
		models.EventPump1Delivery,
		models.EventPump2Delivery,
		models.EventTrialEnd,
	}, codes(result, 1))

	require.Len(t, result.Record.Readouts, 2)
	pull, release := result.Record.Readouts[0], result.Record.Readouts[1]
	assert.Equal(t, 1, pull.LeverID)
	assert.Equal(t, models.ReadoutPull, pull.PullOrRelease)
	assert.Equal(t, 1, release.LeverID)
	assert.Equal(t, models.ReadoutRelease, release.PullOrRelease)
	assert.Less(t, pull.Timepoint, release.Timepoint)

	AssertConsistent(t, result)
	AssertFilesWritten(t, result)
}

func TestE2E_CompetitiveLever1First(t *testing.T) {
	r := NewRunner(t)
	result := r.Run(Scenario{
		Name:      "competitive",
		Config:    fixedTask(models.TaskCompetitive),
		Script:    pullOnce(0),
		MaxTrials: 1,
	})

	v := volumes(result)
	assert.Equal(t, constants.DefaultLargeRewardVolume, v[0])
	assert.Equal(t, constants.DefaultSmallRewardVolume, v[1])

	runs := result.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, 0, runs[0].Pump)
	assert.Equal(t, 1, runs[1].Pump)
	AssertEveryTrialRewarded(t, result, 2)
}

func TestE2E_DilemmaLever2First(t *testing.T) {
	r := NewRunner(t)
	result := r.Run(Scenario{
		Name:      "dilemma",
		Config:    fixedTask(models.TaskDilemma),
		Script:    pullOnce(1),
		MaxTrials: 1,
	})

	v := volumes(result)
	assert.Equal(t, constants.DefaultSmallRewardVolume, v[1])
	assert.Equal(t, constants.DefaultLargeRewardVolume, v[0])

	runs := result.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[0].Pump, "the first puller's pump runs first")
	assert.Equal(t, 0, runs[1].Pump)

	require.Len(t, result.Record.Trials, 1)
	assert.Equal(t, 2, result.Record.Trials[0].FirstPullID)
	assert.Equal(t, models.TaskDilemma, result.Record.Trials[0].TaskType)
}

func TestE2E_BlockToggle(t *testing.T) {
	cfg := trial.DefaultConfig()
	cfg.Schedule.Initial = models.TaskCompetitive
	cfg.Schedule.Block = true
	cfg.Schedule.BlockLength = 15

	r := NewRunner(t)
	result := r.Run(Scenario{
		Name:         "block-15",
		Config:       &cfg,
		Animals:      DefaultAnimals(),
		Seed:         3,
		TickInterval: 20 * time.Millisecond,
		MaxTrials:    31,
	})
	require.True(t, result.Complete)
	AssertTrialCount(t, result, 31)

	var want []models.TaskType
	for n := 1; n <= 31; n++ {
		switch {
		case n <= 15:
			want = append(want, models.TaskCompetitive)
		case n <= 30:
			want = append(want, models.TaskDilemma)
		default:
			want = append(want, models.TaskCompetitive)
		}
	}
	AssertTaskTypes(t, result, want...)
	AssertConsistent(t, result)
}

func TestE2E_FullSession(t *testing.T) {
	r := NewRunner(t)
	result := r.Run(Scenario{
		Name:         "full",
		Animals:      DefaultAnimals(),
		Seed:         11,
		TickInterval: 20 * time.Millisecond,
		MaxTrials:    10,
	})
	require.True(t, result.Complete)

	AssertTrialCount(t, result, 10)
	AssertConsistent(t, result)
	AssertRewardsMatchPumps(t, result, 0)
	AssertEveryTrialRewarded(t, result, 2)
	AssertFilesWritten(t, result)

	for i, rec := range result.Record.Trials {
		assert.Equal(t, i+1, rec.TrialNumber)
		c := codes(result, rec.TrialNumber)
		require.NotEmpty(t, c)
		assert.Equal(t, models.EventTrialStart, c[0])
		assert.Equal(t, models.EventTrialEnd, c[len(c)-1])
	}

	assert.Equal(t, 10, result.Summary.Trials)
	assert.Equal(t, 20, result.Summary.Deliveries)
	assert.True(t, result.Summary.Saved)
	assert.NotEmpty(t, result.Plays, "start cues play on the simulated audio")
}

func TestE2E_AutomatedRun(t *testing.T) {
	cfg := fixedTask(models.TaskCompetitive)
	cfg.AllowAutomatedRun = true

	r := NewRunner(t)
	result := r.Run(Scenario{
		Name:         "automated",
		Config:       cfg,
		Animals:      DefaultAnimals(),
		Seed:         5,
		TickInterval: 20 * time.Millisecond,
		MaxTrials:    3,
	})
	require.True(t, result.Complete)
	// Each trial runs pump 2 once on setup; the session stops at the
	// boundary after trial 3, before another trial is set up.
	AssertRewardsMatchPumps(t, result, 3)
}

func TestE2E_DurationLimit(t *testing.T) {
	r := NewRunner(t)
	result := r.Run(Scenario{
		Name:         "duration",
		Animals:      DefaultAnimals(),
		Seed:         9,
		TickInterval: 20 * time.Millisecond,
		Duration:     time.Minute,
	})
	require.True(t, result.Complete)
	assert.GreaterOrEqual(t, result.Summary.Elapsed, time.Minute)
	assert.NotEmpty(t, result.Record.Trials)
	AssertConsistent(t, result)
}

func randomTasks(seed uint64) *trial.Config {
	cfg := trial.DefaultConfig()
	cfg.Schedule.Random = true
	cfg.Seed = seed
	return &cfg
}

func TestE2E_SameSeedSameSession(t *testing.T) {
	sc := Scenario{
		Name:         "seeded",
		Config:       randomTasks(4),
		Animals:      DefaultAnimals(),
		Seed:         21,
		TickInterval: 20 * time.Millisecond,
		MaxTrials:    5,
	}
	a := NewRunner(t).Run(sc)
	b := NewRunner(t).Run(sc)
	assert.Equal(t, a.Record.Trials, b.Record.Trials)
	assert.Equal(t, a.Record.Events, b.Record.Events)
	assert.Equal(t, a.Record.Readouts, b.Record.Readouts)
}
