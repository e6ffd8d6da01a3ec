// Package eventlog holds the append-only behavioral record of a session:
// trial records, behavior events and lever readouts.
//
// The log enforces the session's ordering rules at append time. Trial numbers
// only grow; a trial's start event (code 0) precedes every other event of that
// trial and its end event (code 9) is the last one. Appends that would break
// those rules are rejected with ErrOutOfOrder and leave the log untouched.
//
// All public methods are safe for concurrent use, so a monitor can read
// snapshots and subscribe while the trial loop appends.
package eventlog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nvandessel/levertask/internal/models"
)

// ErrOutOfOrder is returned when an append would violate the log's ordering rules.
var ErrOutOfOrder = errors.New("event out of order")

// EntryKind tags what an Entry carries.
type EntryKind string

const (
	KindBehaviorEvent EntryKind = "behavior_event"
	KindLeverReadout  EntryKind = "lever_readout"
	KindTrialRecord   EntryKind = "trial_record"
)

// Entry is a single appended record, as delivered to subscribers.
type Entry struct {
	Kind    EntryKind             `json:"kind"`
	Event   *models.BehaviorEvent `json:"event,omitempty"`
	Readout *models.LeverReadout  `json:"readout,omitempty"`
	Trial   *models.TrialRecord   `json:"trial,omitempty"`
}

// Snapshot is a point-in-time copy of the three collections.
type Snapshot struct {
	Trials   []models.TrialRecord   `json:"trials"`
	Events   []models.BehaviorEvent `json:"events"`
	Readouts []models.LeverReadout  `json:"readouts"`
}

// Log is the session event log.
type Log struct {
	mu       sync.RWMutex
	trials   []models.TrialRecord
	events   []models.BehaviorEvent
	readouts []models.LeverReadout

	// currentTrial is the number of the last trial that emitted a start event.
	currentTrial int
	// ended is true once the current trial emitted its end event.
	ended bool
	// lastTimepoint is the timepoint of the current trial's latest event.
	lastTimepoint float64

	subs   map[int]chan Entry
	nextID int
}

// New creates an empty log.
func New() *Log {
	return &Log{
		trials:   make([]models.TrialRecord, 0),
		events:   make([]models.BehaviorEvent, 0),
		readouts: make([]models.LeverReadout, 0),
		subs:     make(map[int]chan Entry),
	}
}

// AppendEvent appends a behavior event.
func (l *Log) AppendEvent(ev models.BehaviorEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.EventCode == models.EventTrialStart {
		if ev.TrialNumber <= l.currentTrial {
			return fmt.Errorf("%w: trial %d started after trial %d", ErrOutOfOrder, ev.TrialNumber, l.currentTrial)
		}
		if l.currentTrial > 0 && !l.ended {
			return fmt.Errorf("%w: trial %d started before trial %d ended", ErrOutOfOrder, ev.TrialNumber, l.currentTrial)
		}
		l.currentTrial = ev.TrialNumber
		l.ended = false
		l.lastTimepoint = ev.Timepoint
	} else {
		if ev.TrialNumber != l.currentTrial || l.currentTrial == 0 {
			return fmt.Errorf("%w: event %d for trial %d, current trial is %d", ErrOutOfOrder, ev.EventCode, ev.TrialNumber, l.currentTrial)
		}
		if l.ended {
			return fmt.Errorf("%w: event %d after end of trial %d", ErrOutOfOrder, ev.EventCode, ev.TrialNumber)
		}
		if ev.Timepoint < l.lastTimepoint {
			return fmt.Errorf("%w: timepoint %.6f before %.6f in trial %d", ErrOutOfOrder, ev.Timepoint, l.lastTimepoint, ev.TrialNumber)
		}
		l.lastTimepoint = ev.Timepoint
		if ev.EventCode == models.EventTrialEnd {
			l.ended = true
		}
	}

	l.events = append(l.events, ev)
	l.publish(Entry{Kind: KindBehaviorEvent, Event: &ev})
	return nil
}

// AppendReadout appends a lever readout. Readouts may be recorded before the
// first trial (trial number 0) and between a trial's end and its record.
func (l *Log) AppendReadout(r models.LeverReadout) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.TrialNumber != l.currentTrial {
		return fmt.Errorf("%w: readout for trial %d, current trial is %d", ErrOutOfOrder, r.TrialNumber, l.currentTrial)
	}

	l.readouts = append(l.readouts, r)
	l.publish(Entry{Kind: KindLeverReadout, Readout: &r})
	return nil
}

// AppendTrial appends the record of the current trial. The trial must have
// ended and must not have been recorded already.
func (l *Log) AppendTrial(rec models.TrialRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.TrialNumber != l.currentTrial || l.currentTrial == 0 {
		return fmt.Errorf("%w: record for trial %d, current trial is %d", ErrOutOfOrder, rec.TrialNumber, l.currentTrial)
	}
	if !l.ended {
		return fmt.Errorf("%w: record for trial %d before its end event", ErrOutOfOrder, rec.TrialNumber)
	}
	if n := len(l.trials); n > 0 && l.trials[n-1].TrialNumber >= rec.TrialNumber {
		return fmt.Errorf("%w: trial %d already recorded", ErrOutOfOrder, rec.TrialNumber)
	}

	l.trials = append(l.trials, rec)
	l.publish(Entry{Kind: KindTrialRecord, Trial: &rec})
	return nil
}

// Snapshot returns copies of all collections.
func (l *Log) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Snapshot{
		Trials:   append([]models.TrialRecord(nil), l.trials...),
		Events:   append([]models.BehaviorEvent(nil), l.events...),
		Readouts: append([]models.LeverReadout(nil), l.readouts...),
	}
}

// TrialCount returns the number of recorded trials.
func (l *Log) TrialCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trials)
}

// CurrentTrial returns the number of the most recently started trial (0 before any).
func (l *Log) CurrentTrial() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.currentTrial
}

// Subscribe registers a listener for appended entries. Delivery is
// best-effort: when the buffer is full the entry is dropped for that
// subscriber. The returned cancel func unregisters and closes the channel.
func (l *Log) Subscribe(buffer int) (<-chan Entry, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	ch := make(chan Entry, buffer)
	l.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// publish fans an entry out to subscribers. Caller holds l.mu.
func (l *Log) publish(e Entry) {
	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
