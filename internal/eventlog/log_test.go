package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/levertask/internal/models"
)

func ev(trial int, tp float64, code models.EventCode) models.BehaviorEvent {
	return models.BehaviorEvent{TrialNumber: trial, Timepoint: tp, EventCode: code}
}

func appendTrial(t *testing.T, l *Log, n int) {
	t.Helper()
	require.NoError(t, l.AppendEvent(ev(n, 0, models.EventTrialStart)))
	require.NoError(t, l.AppendEvent(ev(n, 0, models.EventLever1Pulled)))
	require.NoError(t, l.AppendReadout(models.LeverReadout{TrialNumber: n, LeverID: 1, PullOrRelease: models.ReadoutPull}))
	require.NoError(t, l.AppendEvent(ev(n, 0.5, models.EventPump1Delivery)))
	require.NoError(t, l.AppendEvent(ev(n, 2.0, models.EventPump2Delivery)))
	require.NoError(t, l.AppendEvent(ev(n, 7.5, models.EventTrialEnd)))
	require.NoError(t, l.AppendTrial(models.TrialRecord{TrialNumber: n, FirstPullID: 1, Rewarded: 2}))
}

func TestLog_FullTrial(t *testing.T) {
	l := New()
	appendTrial(t, l, 1)
	appendTrial(t, l, 2)

	snap := l.Snapshot()
	assert.Len(t, snap.Trials, 2)
	assert.Len(t, snap.Events, 10)
	assert.Len(t, snap.Readouts, 2)
	assert.Equal(t, 2, l.TrialCount())
	assert.Equal(t, 2, l.CurrentTrial())
}

func TestLog_RejectsOutOfOrder(t *testing.T) {
	tests := []struct {
		name string
		run  func(l *Log) error
	}{
		{"event before any start", func(l *Log) error {
			return l.AppendEvent(ev(1, 0, models.EventLever1Pulled))
		}},
		{"start with non-increasing number", func(l *Log) error {
			appendTrialNoT(l, 3)
			return l.AppendEvent(ev(3, 0, models.EventTrialStart))
		}},
		{"start before previous ended", func(l *Log) error {
			_ = l.AppendEvent(ev(1, 0, models.EventTrialStart))
			return l.AppendEvent(ev(2, 0, models.EventTrialStart))
		}},
		{"event after end", func(l *Log) error {
			_ = l.AppendEvent(ev(1, 0, models.EventTrialStart))
			_ = l.AppendEvent(ev(1, 1, models.EventTrialEnd))
			return l.AppendEvent(ev(1, 2, models.EventPump1Delivery))
		}},
		{"timepoint goes backwards", func(l *Log) error {
			_ = l.AppendEvent(ev(1, 0, models.EventTrialStart))
			_ = l.AppendEvent(ev(1, 1.0, models.EventPump1Delivery))
			return l.AppendEvent(ev(1, 0.5, models.EventPump2Delivery))
		}},
		{"record before end", func(l *Log) error {
			_ = l.AppendEvent(ev(1, 0, models.EventTrialStart))
			return l.AppendTrial(models.TrialRecord{TrialNumber: 1})
		}},
		{"record twice", func(l *Log) error {
			appendTrialNoT(l, 1)
			return l.AppendTrial(models.TrialRecord{TrialNumber: 1})
		}},
		{"readout for another trial", func(l *Log) error {
			return l.AppendReadout(models.LeverReadout{TrialNumber: 4})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(New())
			assert.ErrorIs(t, err, ErrOutOfOrder)
		})
	}
}

func appendTrialNoT(l *Log, n int) {
	_ = l.AppendEvent(ev(n, 0, models.EventTrialStart))
	_ = l.AppendEvent(ev(n, 1, models.EventTrialEnd))
	_ = l.AppendTrial(models.TrialRecord{TrialNumber: n})
}

func TestLog_RejectedAppendLeavesLogUntouched(t *testing.T) {
	l := New()
	require.NoError(t, l.AppendEvent(ev(1, 0, models.EventTrialStart)))
	require.Error(t, l.AppendEvent(ev(2, 0, models.EventLever2Pulled)))
	assert.Len(t, l.Snapshot().Events, 1)
}

func TestLog_ReadoutBeforeFirstTrial(t *testing.T) {
	l := New()
	require.NoError(t, l.AppendReadout(models.LeverReadout{TrialNumber: 0, LeverID: 2}))
	assert.Len(t, l.Snapshot().Readouts, 1)
}

func TestLog_SnapshotIsACopy(t *testing.T) {
	l := New()
	appendTrial(t, l, 1)
	snap := l.Snapshot()
	snap.Events[0].EventCode = 77
	assert.Equal(t, models.EventTrialStart, l.Snapshot().Events[0].EventCode)
}

func TestLog_Subscribe(t *testing.T) {
	l := New()
	ch, cancel := l.Subscribe(16)

	appendTrial(t, l, 1)

	var kinds []EntryKind
	for i := 0; i < 7; i++ {
		e := <-ch
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, KindBehaviorEvent, kinds[0])
	assert.Equal(t, KindLeverReadout, kinds[2])
	assert.Equal(t, KindTrialRecord, kinds[6])

	cancel()
	cancel() // idempotent
	_, open := <-ch
	assert.False(t, open)
}

func TestLog_SlowSubscriberDoesNotBlock(t *testing.T) {
	l := New()
	_, cancel := l.Subscribe(1)
	defer cancel()

	appendTrial(t, l, 1)
	assert.Len(t, l.Snapshot().Events, 5)
}
