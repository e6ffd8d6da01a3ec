// Package constants provides named constants used throughout the levertask codebase.
// This centralizes the rig defaults so config, trial and tests agree on them.
package constants

import "time"

// Rig geometry. One physical lever is read as two one-directional channels.
const (
	// NumChannels is the number of lever channels (one per subject).
	NumChannels = 2

	// NumPumps is the number of reward pumps. Channel i maps to pump i.
	NumPumps = 2
)

// Pull detection thresholds, in normalized lever position.
const (
	// DefaultRisingEdge is the position at or above which a pull is confirmed.
	DefaultRisingEdge = 0.45

	// DefaultFallingEdge is the position at or below which a release is confirmed.
	// Must stay below DefaultRisingEdge so the detector has a hysteresis band.
	DefaultFallingEdge = 0.25
)

// Default potentiometer calibration per channel (raw ADC counts).
const (
	DefaultChannel0Min = 27.7e3
	DefaultChannel0Max = 32.2e3
	DefaultChannel1Min = 32.2e3
	DefaultChannel1Max = 36.7e3
)

// Reward volumes in millilitres.
const (
	DefaultLargeRewardVolume = 0.150
	DefaultSmallRewardVolume = 0.020
)

// Delivery timing.
const (
	// DefaultJuice1Delay is the time from the confirmed release to the first delivery.
	DefaultJuice1Delay = 500 * time.Millisecond

	// DefaultJuice2DelayCompetitive is the gap between deliveries in competitive trials.
	DefaultJuice2DelayCompetitive = 1500 * time.Millisecond

	// DefaultJuice2DelayDilemma is the gap between deliveries in dilemma trials.
	DefaultJuice2DelayDilemma = 750 * time.Millisecond

	// DefaultAfterDelivery is the time from the second delivery to the trial end event.
	DefaultAfterDelivery = 5500 * time.Millisecond
)

// Session scheduling.
const (
	// DefaultBlockLength is the number of trials per task-type block.
	DefaultBlockLength = 15

	// DefaultTrialTimeout bounds how long the cue step waits for a pull before restarting.
	DefaultTrialTimeout = time.Hour

	// DefaultSessionDuration caps a session's wall-clock length.
	DefaultSessionDuration = time.Hour

	// DefaultMaxTrials caps the number of trials in a session.
	DefaultMaxTrials = 500

	// DefaultTickRate is the loop frequency in ticks per second.
	DefaultTickRate = 60
)

// Audio.
const (
	// CueGain is the playback gain for all cues.
	CueGain = 0.5
)
