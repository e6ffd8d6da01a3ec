// Package lever turns raw lever potentiometer readings into discrete pull and
// release events.
//
// A reading flows through Normalize (raw counts to [0,1]) and then through a
// per-channel Detector, a hysteresis edge detector: a pull is confirmed when the
// position reaches the rising edge, and a release when it falls back to the
// falling edge. The band between the two edges absorbs sensor noise.
package lever

import (
	"errors"
	"fmt"
)

// ErrInvalidThresholds is returned when a detector's edges do not form a
// hysteresis band (falling edge must be strictly below the rising edge, both in [0,1]).
var ErrInvalidThresholds = errors.New("invalid pull thresholds")

// Phase is the detector phase.
type Phase int

const (
	// PhaseIdle means the lever is released and the detector is armed for a pull.
	PhaseIdle Phase = iota

	// PhasePulled means a pull was confirmed and the detector waits for a release.
	PhasePulled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePulled:
		return "pulled"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Thresholds configures one detector.
type Thresholds struct {
	RisingEdge  float64 `json:"rising_edge" yaml:"rising_edge"`
	FallingEdge float64 `json:"falling_edge" yaml:"falling_edge"`
}

// Validate checks the hysteresis precondition. A misconfigured band is an
// operator error; it is reported, never clamped.
func (t Thresholds) Validate() error {
	if t.RisingEdge < 0 || t.RisingEdge > 1 || t.FallingEdge < 0 || t.FallingEdge > 1 {
		return fmt.Errorf("%w: edges must be in [0,1], got rising=%v falling=%v",
			ErrInvalidThresholds, t.RisingEdge, t.FallingEdge)
	}
	if t.FallingEdge >= t.RisingEdge {
		return fmt.Errorf("%w: falling edge %v must be below rising edge %v",
			ErrInvalidThresholds, t.FallingEdge, t.RisingEdge)
	}
	return nil
}

// PullEvent is the result of one detector step. At most one flag is set.
type PullEvent struct {
	Pulled   bool
	Released bool
}

// State is the detector state carried between steps.
type State struct {
	Phase        Phase
	LastPosition float64
}

// Step is the pure detector transition: (state, position) -> (state', event).
// The thresholds must already be valid.
func Step(t Thresholds, s State, position float64) (State, PullEvent) {
	var ev PullEvent
	switch s.Phase {
	case PhaseIdle:
		if position >= t.RisingEdge {
			s.Phase = PhasePulled
			ev.Pulled = true
		}
	case PhasePulled:
		if position <= t.FallingEdge {
			s.Phase = PhaseIdle
			ev.Released = true
		}
	}
	s.LastPosition = position
	return s, ev
}

// Detector is a stateful pull detector for one lever channel.
// The zero value is inert: it never reports events until configured with
// valid thresholds through NewDetector or SetThresholds.
type Detector struct {
	thresholds Thresholds
	state      State
	valid      bool
}

// NewDetector creates a detector in the idle phase.
func NewDetector(t Thresholds) (*Detector, error) {
	d := &Detector{}
	if err := d.SetThresholds(t); err != nil {
		return nil, err
	}
	return d, nil
}

// SetThresholds replaces the detector's edges, keeping its phase.
// Invalid edges are rejected and the previous configuration stays in effect.
func (d *Detector) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	d.thresholds = t
	d.valid = true
	return nil
}

// Thresholds returns the detector's current edges.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// Detect feeds one normalized position sample to the detector.
func (d *Detector) Detect(position float64) PullEvent {
	if !d.valid {
		d.state.LastPosition = position
		return PullEvent{}
	}
	var ev PullEvent
	d.state, ev = Step(d.thresholds, d.state, position)
	return ev
}

// Phase returns the current detector phase.
func (d *Detector) Phase() Phase {
	return d.state.Phase
}

// LastPosition returns the most recent position fed to Detect.
func (d *Detector) LastPosition() float64 {
	return d.state.LastPosition
}

// Reset returns the detector to the idle phase.
func (d *Detector) Reset() {
	d.state = State{}
}
