package simulation

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/levertask/internal/constants"
	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/trial"
)

// Step sets one channel's normalized position At a time after the first tick.
type Step struct {
	At       time.Duration `yaml:"at" json:"at"`
	Channel  int           `yaml:"channel" json:"channel"`
	Position float64       `yaml:"position" json:"position"`
}

// Script is a recorded sequence of lever positions.
//
// Example file:
//
//	steps:
//	  - {at: 1s, channel: 0, position: 0.9}
//	  - {at: 1.2s, channel: 0, position: 0}
type Script struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// LoadScript reads a YAML script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks channels and positions.
func (s *Script) Validate() error {
	for i, st := range s.Steps {
		if st.Channel < 0 || st.Channel >= constants.NumChannels {
			return fmt.Errorf("step %d: channel %d out of range", i, st.Channel)
		}
		if st.Position < 0 || st.Position > 1 {
			return fmt.Errorf("step %d: position %.3f outside [0,1]", i, st.Position)
		}
		if st.At < 0 {
			return fmt.Errorf("step %d: negative offset %s", i, st.At)
		}
	}
	return nil
}

// Length is the offset of the last step.
func (s *Script) Length() time.Duration {
	var end time.Duration
	for _, st := range s.Steps {
		end = max(end, st.At)
	}
	return end
}

// ScriptDriver replays a Script. It implements session.Driver.
type ScriptDriver struct {
	w     leverWriter
	steps []Step
	next  int
	start time.Time
	pos   [constants.NumChannels]float64
}

// NewScriptDriver creates a driver replaying s through the channel calibrations.
func NewScriptDriver(levers *hardware.SimLever, channels [constants.NumChannels]trial.ChannelConfig, s *Script) *ScriptDriver {
	steps := slices.Clone(s.Steps)
	slices.SortStableFunc(steps, func(a, b Step) int {
		return cmp.Compare(a.At, b.At)
	})
	d := &ScriptDriver{w: leverWriter{levers: levers, channels: channels}, steps: steps}
	d.w.write(d.pos)
	return d
}

// Drive implements session.Driver.
func (d *ScriptDriver) Drive(now time.Time) {
	if d.start.IsZero() {
		d.start = now
	}
	elapsed := now.Sub(d.start)
	for d.next < len(d.steps) && d.steps[d.next].At <= elapsed {
		st := d.steps[d.next]
		d.pos[st.Channel] = st.Position
		d.next++
	}
	d.w.write(d.pos)
}

// Done reports whether every step has been applied.
func (d *ScriptDriver) Done() bool {
	return d.next >= len(d.steps)
}
