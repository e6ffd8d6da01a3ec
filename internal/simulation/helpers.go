package simulation

import (
	"github.com/nvandessel/levertask/internal/constants"
	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/trial"
)

// strainPerUnit scales a normalized position into a strain gauge reading.
const strainPerUnit = 100.0

// leverWriter turns normalized channel positions into raw lever readings.
type leverWriter struct {
	levers   *hardware.SimLever
	channels [constants.NumChannels]trial.ChannelConfig
}

// write sets every handle the channels read. When two channels share a
// handle (one lever pulled in two directions) the channel pulled furthest
// wins; a lever at rest reads the first channel's zero position.
func (w leverWriter) write(pos [constants.NumChannels]float64) {
	type pick struct {
		ch  int
		pos float64
	}
	picks := make(map[hardware.LeverHandle]pick, constants.NumChannels)
	var order []hardware.LeverHandle
	for ch, cfg := range w.channels {
		p, seen := picks[cfg.Handle]
		if !seen {
			order = append(order, cfg.Handle)
			picks[cfg.Handle] = pick{ch: ch, pos: pos[ch]}
			continue
		}
		if pos[ch] > p.pos {
			picks[cfg.Handle] = pick{ch: ch, pos: pos[ch]}
		}
	}

	for _, h := range order {
		p := picks[h]
		cal := w.channels[p.ch].Calibration
		w.levers.Set(h, hardware.LeverState{
			PotentiometerReading: cal.Raw(p.pos),
			StrainGauge:          p.pos * strainPerUnit,
		})
	}
}
