package simulation

import (
	"time"

	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/session"
	"github.com/nvandessel/levertask/internal/store"
	"github.com/nvandessel/levertask/internal/trial"
)

// Scenario describes one simulated session.
type Scenario struct {
	Name string

	// Config is the trial configuration; nil uses trial.DefaultConfig().
	Config *trial.Config

	// Animals drive the levers unless Script is set.
	Animals []Animal
	Script  *Script
	Seed    uint64

	// TickInterval is the fake time between ticks; 0 means 10ms.
	TickInterval time.Duration

	// MaxTrials and Duration are the session limits. MaxTicks bounds the
	// run when neither limit is reached; 0 means 100000.
	MaxTrials int
	Duration  time.Duration
	MaxTicks  int

	// Start is the fake wall-clock start; zero uses a fixed date.
	Start time.Time
}

// Result is what a simulated session produced.
type Result struct {
	Name    string
	Record  *store.Session
	Summary session.Summary
	Pumps   []hardware.PumpCommand
	Plays   []hardware.Play
	Ticks   int

	// Complete is false when MaxTicks ran out before a session limit.
	Complete bool

	// Files are the JSON files written at teardown.
	Files []string
}

// Runs returns the pump run commands in order.
func (r Result) Runs() []hardware.PumpCommand {
	var runs []hardware.PumpCommand
	for _, c := range r.Pumps {
		if c.Kind == hardware.CmdRun {
			runs = append(runs, c)
		}
	}
	return runs
}
