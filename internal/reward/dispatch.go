// Package reward decides how much each animal's pump dispenses after a pull
// and which task type is active for each trial.
package reward

import (
	"github.com/nvandessel/levertask/internal/constants"
	"github.com/nvandessel/levertask/internal/models"
)

// Cue identifies the reward cue played when a pull is dispatched. Cues are
// named after what the lever-1 animal receives.
type Cue int

const (
	CueNone Cue = iota
	CueLargeReward
	CueSmallReward
)

func (c Cue) String() string {
	switch c {
	case CueLargeReward:
		return "large"
	case CueSmallReward:
		return "small"
	}
	return "none"
}

// Volumes are the two reward sizes, in the pumps' volume units.
type Volumes struct {
	Large float64 `json:"large" yaml:"large"`
	Small float64 `json:"small" yaml:"small"`
}

// Assignment is the outcome of dispatching one pull.
type Assignment struct {
	PullerPump   int
	PullerVolume float64
	OtherPump    int
	OtherVolume  float64
	Cue          Cue
}

// VolumeFor returns the volume assigned to a pump index.
func (a Assignment) VolumeFor(pump int) float64 {
	if pump == a.PullerPump {
		return a.PullerVolume
	}
	return a.OtherVolume
}

// Policy maps (task type, puller) to pump volumes.
type Policy struct {
	Volumes Volumes
}

// NewPolicy creates a dispatch policy with the given reward sizes.
func NewPolicy(v Volumes) Policy {
	return Policy{Volumes: v}
}

// Dispatch returns the reward assignment for a pull on channel puller.
// It reports false for task types that carry no reward and for channels
// outside the two-lever rig; no pump volume should be touched then.
//
// Competitive: the puller's pump gets the large volume, the other the small one.
// Dilemma: the mirror image, the non-puller is paid the large volume.
func (p Policy) Dispatch(task models.TaskType, puller int) (Assignment, bool) {
	if puller < 0 || puller >= constants.NumPumps {
		return Assignment{}, false
	}

	a := Assignment{
		PullerPump: puller,
		OtherPump:  OtherIndex(puller),
	}

	// Lever-1's animal sits on channel 0; the cue announces its share.
	a.Cue = CueSmallReward
	switch task {
	case models.TaskCompetitive:
		a.PullerVolume = p.Volumes.Large
		a.OtherVolume = p.Volumes.Small
		if puller == 0 {
			a.Cue = CueLargeReward
		}
	case models.TaskDilemma:
		a.PullerVolume = p.Volumes.Small
		a.OtherVolume = p.Volumes.Large
		if puller == 1 {
			a.Cue = CueLargeReward
		}
	default:
		return Assignment{}, false
	}
	return a, true
}

// OtherIndex returns the index of the other lever or pump in the two-channel rig.
func OtherIndex(i int) int {
	return 1 - i
}
