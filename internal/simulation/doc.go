// Package simulation stands in for the animals and the rig so a session can
// run without hardware.
//
// A Driver moves the simulated levers every tick, either from stochastic
// Animal models or from a replayed Script. The levers are written as raw
// potentiometer counts through each channel's calibration, so the real
// normalizer and pull detector see the same readings they would on the rig.
//
// Runner executes whole sessions on a fake clock for end-to-end tests. Each
// run gets its own output directory via t.TempDir():
//
//	func TestDilemmaSession(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:      "dilemma",
//	        Animals:   simulation.DefaultAnimals(),
//	        MaxTrials: 10,
//	    })
//	    simulation.AssertConsistent(t, result)
//	    simulation.AssertTrialCount(t, result, 10)
//	}
package simulation
