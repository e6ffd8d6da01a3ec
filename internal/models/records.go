package models

// EventCode identifies a behavioral event in the session log.
type EventCode int

const (
	EventTrialStart    EventCode = 0
	EventLever1Pulled  EventCode = 1
	EventLever2Pulled  EventCode = 2
	EventPump1Delivery EventCode = 3
	EventPump2Delivery EventCode = 4
	EventTrialEnd      EventCode = 9
)

// PulledEventCode returns the lever-pulled code for a 0-based channel.
func PulledEventCode(channel int) EventCode {
	return EventCode(channel + 1)
}

// DeliveryEventCode returns the pump-delivered code for a 0-based pump index.
func DeliveryEventCode(pump int) EventCode {
	return EventCode(pump + 3)
}

// PullOrRelease values stored on LeverReadout.
const (
	ReadoutRelease = 0
	ReadoutPull    = 1
)

// TrialRecord summarizes one completed trial.
type TrialRecord struct {
	TrialNumber int `json:"trial_number"`

	// FirstPullID is the 1-based id of the lever that opened the trial.
	FirstPullID int `json:"first_pull_id"`

	// Rewarded counts the pumps that delivered during the trial (0..2).
	Rewarded int      `json:"rewarded"`
	TaskType TaskType `json:"task_type"`

	// TrialStartTimestamp is seconds since session start.
	TrialStartTimestamp float64 `json:"trial_start_timestamp"`
}

// BehaviorEvent is one timestamped behavioral event.
type BehaviorEvent struct {
	TrialNumber int `json:"trial_number"`

	// Timepoint is seconds since the start of the trial.
	Timepoint float64   `json:"timepoint"`
	EventCode EventCode `json:"event_code"`
}

// LeverReadout captures the raw sensor values at a detected pull or release.
type LeverReadout struct {
	TrialNumber   int     `json:"trial_number"`
	Timepoint     float64 `json:"timepoint"`
	StrainGauge   float64 `json:"strain_gauge"`
	Potentiometer float64 `json:"potentiometer"`
	LeverID       int     `json:"lever_id"`
	PullOrRelease int     `json:"pull_or_release"`
}

// SessionInfo is static session metadata, written once at shutdown.
type SessionInfo struct {
	Animal1Name         string   `json:"animal1_name"`
	Animal2Name         string   `json:"animal2_name"`
	ExperimentDate      string   `json:"experiment_date"`
	TaskType            TaskType `json:"task_type"`
	TaskTypeBlock       int      `json:"tasktype_block"`
	TaskTypeRandom      int      `json:"tasktype_random"`
	TaskTypeBlockLength int      `json:"tasktype_blocklength"`
	LargeRewardVolume   float64  `json:"large_reward_volume"`
	SmallRewardVolume   float64  `json:"small_reward_volume"`
}
