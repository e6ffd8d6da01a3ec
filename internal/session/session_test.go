package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/lever"
	"github.com/nvandessel/levertask/internal/models"
	"github.com/nvandessel/levertask/internal/store"
	"github.com/nvandessel/levertask/internal/trial"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// cycleDriver pulls lever 0 for 200ms once every period.
type cycleDriver struct {
	levers *hardware.SimLever
	start  time.Time
	period time.Duration
}

func (d *cycleDriver) Drive(now time.Time) {
	phase := now.Sub(d.start) % d.period
	pos := 0.0
	if phase >= time.Second && phase < 1200*time.Millisecond {
		pos = 1
	}
	d.levers.Set(0, hardware.LeverState{PotentiometerReading: pos})
}

type failingWriter struct{ err error }

func (f failingWriter) WriteSession(context.Context, *store.Session) error { return f.err }

func testOptions(clock *fakeClock) (Options, *hardware.SimLever) {
	cfg := trial.DefaultConfig()
	for i := range cfg.Channels {
		cfg.Channels[i].Handle = hardware.LeverHandle(i)
		cfg.Channels[i].Calibration = lever.Calibration{Min: 0, Max: 1}
	}
	cfg.Schedule.Initial = models.TaskCompetitive
	cfg.Schedule.Block = false
	cfg.TrialTimeout = 0

	levers := hardware.NewSimLever()
	levers.Set(0, hardware.LeverState{})
	levers.Set(1, hardware.LeverState{})

	return Options{
		Trial:  cfg,
		Levers: levers,
		Pumps:  hardware.NewSimPump(2, hardware.PumpState{VolumeUnits: hardware.VolumeMilliliters}),
		Info: models.SessionInfo{
			Animal1Name: "Hooke",
			Animal2Name: "Kanga",
			TaskType:    models.TaskCompetitive,
		},
		Driver: &cycleDriver{levers: levers, start: clock.now, period: 10 * time.Second},
		Clock:  clock.Now,
	}, levers
}

// runUntilComplete ticks every 100ms of fake time until Tick reports ErrComplete.
func runUntilComplete(t *testing.T, s *Session, clock *fakeClock, maxTicks int) int {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= maxTicks; i++ {
		clock.now = clock.now.Add(100 * time.Millisecond)
		err := s.Tick(ctx)
		if errors.Is(err, ErrComplete) {
			return i
		}
		require.NoError(t, err)
	}
	t.Fatalf("session did not complete within %d ticks", maxTicks)
	return 0
}

func TestSession_MaxTrials(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
	opts, _ := testOptions(clock)
	opts.MaxTrials = 2
	dir := t.TempDir()
	opts.Writer = store.NewJSONExporter(dir)
	opts.CheckpointDir = dir

	s := New(opts)
	ctx := context.Background()
	require.NoError(t, s.Setup(ctx))

	runUntilComplete(t, s, clock, 1000)
	assert.Equal(t, 2, s.Log().TrialCount())

	// A checkpoint exists while the session runs.
	cp, err := LoadCheckpoint(dir)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Len(t, cp.Trials, 2)

	require.NoError(t, s.Teardown(ctx))

	rec := s.Record()
	assert.Empty(t, store.ValidateSession(rec))
	assert.Equal(t, "2026-03-04", rec.Info.ExperimentDate)
	for _, p := range store.NewJSONExporter(dir).Paths(rec) {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
	_, err = os.Stat(CheckpointPath(dir))
	assert.True(t, os.IsNotExist(err), "checkpoint removed after save")

	sum := s.Summary()
	assert.Equal(t, 2, sum.Trials)
	assert.Equal(t, 2, sum.RewardedTrials)
	assert.Equal(t, 4, sum.Deliveries)
	assert.True(t, sum.Saved)
	assert.Zero(t, sum.TickErrors)
}

func TestSession_DurationStopsAtTrialBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
	opts, _ := testOptions(clock)
	opts.MaxDuration = 2 * time.Second

	s := New(opts)
	require.NoError(t, s.Setup(context.Background()))

	runUntilComplete(t, s, clock, 1000)

	// The first trial opens at 1s and is still delivering at 2s; the session
	// ends only once it is recorded.
	assert.Equal(t, 1, s.Log().TrialCount())
	assert.True(t, s.Summary().Elapsed > 8*time.Second)
}

func TestSession_DurationWithoutTrials(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
	opts, _ := testOptions(clock)
	opts.Driver = nil
	opts.MaxDuration = 3 * time.Second

	s := New(opts)
	require.NoError(t, s.Setup(context.Background()))

	ticks := runUntilComplete(t, s, clock, 1000)
	assert.Equal(t, 30, ticks)
	assert.Zero(t, s.Log().TrialCount())
}

func TestSession_TeardownWithoutWriter(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
	opts, _ := testOptions(clock)

	s := New(opts)
	ctx := context.Background()
	require.NoError(t, s.Setup(ctx))
	require.NoError(t, s.Tick(ctx))
	require.NoError(t, s.Teardown(ctx))
	assert.False(t, s.Summary().Saved)
}

func TestSession_TeardownReportsWriterError(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
	opts, _ := testOptions(clock)
	opts.MaxTrials = 1
	dir := t.TempDir()
	errDisk := errors.New("disk full")
	opts.Writer = failingWriter{err: errDisk}
	opts.CheckpointDir = dir

	s := New(opts)
	ctx := context.Background()
	require.NoError(t, s.Setup(ctx))
	runUntilComplete(t, s, clock, 1000)

	err := s.Teardown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDisk)
	assert.False(t, s.Summary().Saved)

	// The checkpoint survives a failed save.
	cp, err := LoadCheckpoint(dir)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Len(t, cp.Trials, 1)
}

func TestSession_SetupRejectsBadConfig(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	opts, _ := testOptions(clock)
	opts.Trial.Channels[0].Thresholds = lever.Thresholds{RisingEdge: 0.1, FallingEdge: 0.2}

	s := New(opts)
	err := s.Setup(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, lever.ErrInvalidThresholds)
	assert.Error(t, s.Tick(context.Background()))
	assert.NoError(t, s.Teardown(context.Background()))
}

func TestSession_MissingCuesAreLogged(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	opts, _ := testOptions(clock)
	opts.CuePaths = trial.DefaultCuePaths("/rig", "Hooke")
	opts.Audio = hardware.NewSimAudio(opts.CuePaths.LargeReward)

	s := New(opts)
	require.NoError(t, s.Setup(context.Background()))
}

func TestSession_Status(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
	opts, levers := testOptions(clock)
	opts.Driver = nil

	s := New(opts)
	ctx := context.Background()
	require.NoError(t, s.Setup(ctx))
	levers.Set(1, hardware.LeverState{PotentiometerReading: 0.9})
	clock.now = clock.now.Add(100 * time.Millisecond)
	require.NoError(t, s.Tick(ctx))

	st := s.Status()
	assert.Equal(t, 1, st.TrialNumber)
	assert.Equal(t, 2, st.FirstPull)
	assert.Equal(t, "waiting_for_pull", st.State)
}

func TestSession_ConcurrentReadersDuringRun(t *testing.T) {
	opts, _ := testOptions(&fakeClock{now: time.Now()})
	opts.Clock = nil
	opts.Driver = nil
	opts.MaxDuration = 30 * time.Millisecond
	s := New(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- NewRunner(time.Millisecond, nil).Run(ctx, s) }()

	polls := 0
	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			assert.Positive(t, polls)
			assert.NotEmpty(t, s.Record().ID)
			assert.Positive(t, s.Summary().Elapsed)
			return
		default:
			_ = s.Summary()
			_ = s.Status()
			_ = s.Record()
			polls++
		}
	}
}

func TestSession_RecoveredSaveReplacesPartialArchive(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	opts, _ := testOptions(clock)
	opts.MaxTrials = 1
	ctx := context.Background()

	archive, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	// The JSON exporter fails because its directory is a regular file; the
	// archive write succeeds.
	notADir := filepath.Join(t.TempDir(), "sessions")
	require.NoError(t, os.WriteFile(notADir, nil, 0644))
	cpDir := t.TempDir()
	opts.Writer = store.MultiWriter{store.NewJSONExporter(notADir), archive}
	opts.CheckpointDir = cpDir

	s := New(opts)
	require.NoError(t, s.Setup(ctx))
	runUntilComplete(t, s, clock, 1000)
	require.Error(t, s.Teardown(ctx))

	cp, err := LoadCheckpoint(cpDir)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.NotEmpty(t, cp.ID)
	assert.Equal(t, s.Record().ID, cp.ID)

	require.NoError(t, archive.WriteSession(ctx, cp))

	list, err := archive.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, cp.ID, list[0].ID)
	assert.Equal(t, 1, list[0].TrialCount)
}

func TestSession_PresetID(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	opts, _ := testOptions(clock)
	opts.ID = "rig-a-0001"

	s := New(opts)
	require.NoError(t, s.Setup(context.Background()))
	assert.Equal(t, "rig-a-0001", s.Record().ID)
}

func TestSession_RecordsActiveTaskType(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
	opts, _ := testOptions(clock)
	opts.Trial.Schedule.Block = true
	opts.Trial.Schedule.BlockLength = 1
	opts.MaxTrials = 2

	s := New(opts)
	require.NoError(t, s.Setup(context.Background()))
	runUntilComplete(t, s, clock, 2000)

	rec := s.Record()
	require.Len(t, rec.Trials, 2)
	assert.Equal(t, models.TaskCompetitive, rec.Trials[0].TaskType)
	assert.Equal(t, models.TaskDilemma, rec.Trials[1].TaskType)
	assert.Equal(t, models.TaskDilemma, rec.Info.TaskType)
}

func TestSession_KeepsConfiguredExperimentDate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
	opts, _ := testOptions(clock)
	opts.Info.ExperimentDate = "20230802"

	s := New(opts)
	require.NoError(t, s.Setup(context.Background()))

	rec := s.Record()
	assert.Equal(t, "20230802", rec.Info.ExperimentDate)
	assert.True(t, strings.HasPrefix(store.FileName(rec, store.KindTrialRecord), "20230802_Hooke_Kanga_"))
}
