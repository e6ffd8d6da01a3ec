package simulation

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nvandessel/levertask/internal/constants"
	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/trial"
)

// minInterval bounds how soon an animal pulls again after a release.
const minInterval = 250 * time.Millisecond

// Animal models one subject working a lever channel. Pull bouts arrive with
// exponentially distributed gaps around MeanInterval and last Hold.
type Animal struct {
	Name         string
	Channel      int
	MeanInterval time.Duration
	Hold         time.Duration

	// Strength is the normalized position reached while pulling; 0 means 0.9.
	Strength float64
}

// DefaultAnimals returns two animals on channels 0 and 1 with slightly
// different tempos.
func DefaultAnimals() []Animal {
	return []Animal{
		{Name: "animal1", Channel: 0, MeanInterval: 4 * time.Second, Hold: 300 * time.Millisecond},
		{Name: "animal2", Channel: 1, MeanInterval: 5 * time.Second, Hold: 400 * time.Millisecond},
	}
}

func (a Animal) validate() error {
	if a.Channel < 0 || a.Channel >= constants.NumChannels {
		return fmt.Errorf("animal %q: channel %d out of range", a.Name, a.Channel)
	}
	if a.MeanInterval <= 0 || a.Hold <= 0 {
		return fmt.Errorf("animal %q: interval and hold must be positive", a.Name)
	}
	if a.Strength < 0 || a.Strength > 1 {
		return fmt.Errorf("animal %q: strength %.2f outside [0,1]", a.Name, a.Strength)
	}
	return nil
}

type animalState struct {
	Animal
	pulling   bool
	nextPull  time.Time
	releaseAt time.Time
	pulls     int
}

// AnimalDriver moves the simulated levers on behalf of a set of animals.
// It implements session.Driver.
type AnimalDriver struct {
	w       leverWriter
	rng     *rand.Rand
	animals []*animalState
	started bool
}

// NewAnimalDriver creates a driver writing to levers through the channel
// calibrations. The same seed replays the same pulls.
func NewAnimalDriver(levers *hardware.SimLever, channels [constants.NumChannels]trial.ChannelConfig, seed uint64, animals ...Animal) (*AnimalDriver, error) {
	d := &AnimalDriver{
		w:   leverWriter{levers: levers, channels: channels},
		rng: rand.New(rand.NewPCG(seed, seed^0x5eed)),
	}
	for _, a := range animals {
		if err := a.validate(); err != nil {
			return nil, err
		}
		if a.Strength == 0 {
			a.Strength = 0.9
		}
		d.animals = append(d.animals, &animalState{Animal: a})
	}
	// Levers read at rest before the first tick.
	d.w.write([constants.NumChannels]float64{})
	return d, nil
}

// Drive implements session.Driver.
func (d *AnimalDriver) Drive(now time.Time) {
	if !d.started {
		for _, a := range d.animals {
			a.nextPull = now.Add(d.gap(a.MeanInterval))
		}
		d.started = true
	}

	var pos [constants.NumChannels]float64
	for _, a := range d.animals {
		switch {
		case a.pulling && !now.Before(a.releaseAt):
			a.pulling = false
			a.nextPull = now.Add(d.gap(a.MeanInterval))
		case !a.pulling && !now.Before(a.nextPull):
			a.pulling = true
			a.pulls++
			a.releaseAt = now.Add(a.Hold)
		}
		if a.pulling {
			pos[a.Channel] = max(pos[a.Channel], a.Strength)
		}
	}
	d.w.write(pos)
}

// Pulls returns how many pull bouts each animal has started, by name.
func (d *AnimalDriver) Pulls() map[string]int {
	out := make(map[string]int, len(d.animals))
	for _, a := range d.animals {
		out[a.Name] += a.pulls
	}
	return out
}

func (d *AnimalDriver) gap(mean time.Duration) time.Duration {
	g := time.Duration(d.rng.ExpFloat64() * float64(mean))
	return max(g, minInterval)
}
