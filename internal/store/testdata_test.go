package store

import (
	"time"

	"github.com/nvandessel/levertask/internal/models"
)

// sampleSession returns a consistent two-trial session.
func sampleSession() *Session {
	return &Session{
		StartedAt: time.Date(2026, 3, 4, 10, 15, 30, 0, time.UTC),
		Info: models.SessionInfo{
			Animal1Name:         "Hooke",
			Animal2Name:         "Kanga",
			ExperimentDate:      "2026-03-04",
			TaskType:            models.TaskDilemma,
			TaskTypeBlock:       1,
			TaskTypeBlockLength: 15,
			LargeRewardVolume:   0.150,
			SmallRewardVolume:   0.020,
		},
		Trials: []models.TrialRecord{
			{TrialNumber: 1, FirstPullID: 1, Rewarded: 2, TaskType: models.TaskDilemma, TrialStartTimestamp: 1.5},
			{TrialNumber: 2, FirstPullID: 2, Rewarded: 2, TaskType: models.TaskDilemma, TrialStartTimestamp: 12.25},
		},
		Events: []models.BehaviorEvent{
			{TrialNumber: 1, Timepoint: 0, EventCode: models.EventTrialStart},
			{TrialNumber: 1, Timepoint: 0, EventCode: models.EventLever1Pulled},
			{TrialNumber: 1, Timepoint: 0.6, EventCode: models.EventPump1Delivery},
			{TrialNumber: 1, Timepoint: 1.35, EventCode: models.EventPump2Delivery},
			{TrialNumber: 1, Timepoint: 6.85, EventCode: models.EventTrialEnd},
			{TrialNumber: 2, Timepoint: 0, EventCode: models.EventTrialStart},
			{TrialNumber: 2, Timepoint: 0, EventCode: models.EventLever2Pulled},
			{TrialNumber: 2, Timepoint: 0.55, EventCode: models.EventPump2Delivery},
			{TrialNumber: 2, Timepoint: 1.3, EventCode: models.EventPump1Delivery},
			{TrialNumber: 2, Timepoint: 6.8, EventCode: models.EventTrialEnd},
		},
		Readouts: []models.LeverReadout{
			{TrialNumber: 1, Timepoint: 0, StrainGauge: 512, Potentiometer: 29000, LeverID: 1, PullOrRelease: models.ReadoutPull},
			{TrialNumber: 1, Timepoint: 0.1, StrainGauge: 500, Potentiometer: 31800, LeverID: 1, PullOrRelease: models.ReadoutRelease},
			{TrialNumber: 2, Timepoint: 0, StrainGauge: 520, Potentiometer: 35000, LeverID: 2, PullOrRelease: models.ReadoutPull},
			{TrialNumber: 2, Timepoint: 0.05, StrainGauge: 498, Potentiometer: 32500, LeverID: 2, PullOrRelease: models.ReadoutRelease},
		},
	}
}
