package store

import (
	"fmt"

	"github.com/nvandessel/levertask/internal/models"
)

// ValidationError describes a consistency issue in a recorded session.
type ValidationError struct {
	TrialNumber int    `json:"trial_number"`
	Collection  string `json:"collection"` // "trial_records", "behavior_events", "lever_readouts"
	Issue       string `json:"issue"`
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	return fmt.Sprintf("trial %d: %s: %s", e.TrialNumber, e.Collection, e.Issue)
}

// ValidateSession checks a session's records for consistency:
//   - trial records strictly increasing by trial number
//   - each recorded trial has exactly one start (code 0) event first and one
//     end (code 9) event last
//   - event timepoints non-decreasing within a trial
//   - readouts carry lever id 1 or 2 and a pull/release flag
//
// It returns nil for a consistent session.
func ValidateSession(s *Session) []ValidationError {
	var errs []ValidationError
	add := func(trial int, coll, format string, args ...any) {
		errs = append(errs, ValidationError{TrialNumber: trial, Collection: coll, Issue: fmt.Sprintf(format, args...)})
	}

	for i, r := range s.Trials {
		if i > 0 && r.TrialNumber <= s.Trials[i-1].TrialNumber {
			add(r.TrialNumber, "trial_records", "trial number not increasing after %d", s.Trials[i-1].TrialNumber)
		}
		if r.FirstPullID != 1 && r.FirstPullID != 2 {
			add(r.TrialNumber, "trial_records", "first_pull_id %d", r.FirstPullID)
		}
		if r.Rewarded < 0 || r.Rewarded > 2 {
			add(r.TrialNumber, "trial_records", "rewarded %d out of range", r.Rewarded)
		}
	}

	byTrial := make(map[int][]models.BehaviorEvent)
	for _, ev := range s.Events {
		byTrial[ev.TrialNumber] = append(byTrial[ev.TrialNumber], ev)
	}
	for _, r := range s.Trials {
		evs := byTrial[r.TrialNumber]
		if len(evs) == 0 {
			add(r.TrialNumber, "behavior_events", "no events for recorded trial")
			continue
		}
		if evs[0].EventCode != models.EventTrialStart {
			add(r.TrialNumber, "behavior_events", "first event is %d, want %d", evs[0].EventCode, models.EventTrialStart)
		}
		if last := evs[len(evs)-1]; last.EventCode != models.EventTrialEnd {
			add(r.TrialNumber, "behavior_events", "last event is %d, want %d", last.EventCode, models.EventTrialEnd)
		}
		starts, ends := 0, 0
		for j, ev := range evs {
			switch ev.EventCode {
			case models.EventTrialStart:
				starts++
			case models.EventTrialEnd:
				ends++
			}
			if j > 0 && ev.Timepoint < evs[j-1].Timepoint {
				add(r.TrialNumber, "behavior_events", "timepoint %.3f before %.3f", ev.Timepoint, evs[j-1].Timepoint)
			}
		}
		if starts != 1 || ends != 1 {
			add(r.TrialNumber, "behavior_events", "%d start and %d end events", starts, ends)
		}
	}

	for _, rd := range s.Readouts {
		if rd.LeverID != 1 && rd.LeverID != 2 {
			add(rd.TrialNumber, "lever_readouts", "lever_id %d", rd.LeverID)
		}
		if rd.PullOrRelease != models.ReadoutPull && rd.PullOrRelease != models.ReadoutRelease {
			add(rd.TrialNumber, "lever_readouts", "pull_or_release %d", rd.PullOrRelease)
		}
	}

	return errs
}
