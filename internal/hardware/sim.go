package hardware

import (
	"fmt"
	"sync"
)

// SimLever is an in-memory lever service. Readings are set by the caller.
type SimLever struct {
	mu       sync.Mutex
	readings map[LeverHandle]LeverState
}

// NewSimLever creates a lever service with no readings (every GetState misses).
func NewSimLever() *SimLever {
	return &SimLever{readings: make(map[LeverHandle]LeverState)}
}

// Set stores the reading returned for h.
func (s *SimLever) Set(h LeverHandle, st LeverState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[h] = st
}

// Disconnect removes the reading for h.
func (s *SimLever) Disconnect(h LeverHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.readings, h)
}

// GetState implements LeverService.
func (s *SimLever) GetState(h LeverHandle) (LeverState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.readings[h]
	return st, ok
}

// PumpCommandKind names a queued pump command.
type PumpCommandKind string

const (
	CmdSetVolume PumpCommandKind = "set_volume"
	CmdRun       PumpCommandKind = "run"
)

// PumpCommand is one command sent to a simulated pump.
type PumpCommand struct {
	Kind   PumpCommandKind
	Pump   int
	Volume float64
	Units  VolumeUnits
}

// SimPump is an in-memory pump service that records submitted commands.
type SimPump struct {
	mu        sync.Mutex
	desired   []PumpState
	queued    []PumpCommand
	submitted []PumpCommand
}

// NewSimPump creates n pumps with the given default state.
func NewSimPump(n int, initial PumpState) *SimPump {
	s := &SimPump{desired: make([]PumpState, n)}
	for i := range s.desired {
		s.desired[i] = initial
		s.desired[i].Address = i
	}
	return s
}

// NumInitializedPumps implements PumpService.
func (s *SimPump) NumInitializedPumps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.desired)
}

// IthPump implements PumpService.
func (s *SimPump) IthPump(i int) PumpHandle {
	return PumpHandle{Index: i}
}

// ReadDesiredPumpState implements PumpService. Unknown handles read as zero.
func (s *SimPump) ReadDesiredPumpState(h PumpHandle) PumpState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.Index < 0 || h.Index >= len(s.desired) {
		return PumpState{}
	}
	return s.desired[h.Index]
}

// SetDispensedVolume implements PumpService.
func (s *SimPump) SetDispensedVolume(h PumpHandle, volume float64, units VolumeUnits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.Index < 0 || h.Index >= len(s.desired) {
		return
	}
	s.desired[h.Index].Volume = volume
	s.desired[h.Index].VolumeUnits = units
	s.queued = append(s.queued, PumpCommand{Kind: CmdSetVolume, Pump: h.Index, Volume: volume, Units: units})
}

// RunDispenseProgram implements PumpService.
func (s *SimPump) RunDispenseProgram(h PumpHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.Index < 0 || h.Index >= len(s.desired) {
		return
	}
	st := s.desired[h.Index]
	s.queued = append(s.queued, PumpCommand{Kind: CmdRun, Pump: h.Index, Volume: st.Volume, Units: st.VolumeUnits})
}

// SubmitCommands implements PumpService.
func (s *SimPump) SubmitCommands() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, s.queued...)
	s.queued = s.queued[:0]
}

// Submitted returns a copy of every command flushed so far.
func (s *SimPump) Submitted() []PumpCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PumpCommand(nil), s.submitted...)
}

// Runs returns the submitted run commands in order.
func (s *SimPump) Runs() []PumpCommand {
	var runs []PumpCommand
	for _, c := range s.Submitted() {
		if c.Kind == CmdRun {
			runs = append(runs, c)
		}
	}
	return runs
}

// Play records one audio playback.
type Play struct {
	Buffer  BufferHandle
	Path    string
	Channel int // -1 for both channels
	Gain    float64
}

// SimAudio records playbacks instead of producing sound.
type SimAudio struct {
	mu      sync.Mutex
	paths   []string
	plays   []Play
	missing map[string]bool
}

// NewSimAudio creates a recorder. Paths listed in missing fail to load.
func NewSimAudio(missing ...string) *SimAudio {
	m := make(map[string]bool, len(missing))
	for _, p := range missing {
		m[p] = true
	}
	return &SimAudio{missing: m}
}

// LoadBuffer implements AudioService.
func (s *SimAudio) LoadBuffer(path string) (BufferHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing[path] {
		return 0, fmt.Errorf("reading audio buffer %s: file not found", path)
	}
	s.paths = append(s.paths, path)
	return BufferHandle(len(s.paths) - 1), nil
}

// PlayBoth implements AudioService.
func (s *SimAudio) PlayBoth(b BufferHandle, gain float64) {
	s.record(b, -1, gain)
}

// PlayOnChannel implements AudioService.
func (s *SimAudio) PlayOnChannel(b BufferHandle, channel int, gain float64) {
	s.record(b, channel, gain)
}

func (s *SimAudio) record(b BufferHandle, channel int, gain float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Play{Buffer: b, Channel: channel, Gain: gain}
	if int(b) >= 0 && int(b) < len(s.paths) {
		p.Path = s.paths[b]
	}
	s.plays = append(s.plays, p)
}

// Plays returns a copy of recorded playbacks.
func (s *SimAudio) Plays() []Play {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Play(nil), s.plays...)
}
