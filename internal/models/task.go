package models

import "fmt"

// TaskType is the reward-allocation rule active for a trial.
// The numeric values are persisted and must not change.
type TaskType int

const (
	TaskNeutral     TaskType = 0 // no reward, neutral cue
	TaskCompetitive TaskType = 1 // puller gets the large reward
	TaskDilemma     TaskType = 2 // puller gets the small reward
)

// Valid returns true if t is one of the known task types.
func (t TaskType) Valid() bool {
	switch t {
	case TaskNeutral, TaskCompetitive, TaskDilemma:
		return true
	}
	return false
}

// Rewarded reports whether trials of this type dispatch rewards.
func (t TaskType) Rewarded() bool {
	return t == TaskCompetitive || t == TaskDilemma
}

// Toggle swaps competitive and dilemma. Other values are returned unchanged.
func (t TaskType) Toggle() TaskType {
	switch t {
	case TaskCompetitive:
		return TaskDilemma
	case TaskDilemma:
		return TaskCompetitive
	}
	return t
}

func (t TaskType) String() string {
	switch t {
	case TaskNeutral:
		return "neutral"
	case TaskCompetitive:
		return "competitive"
	case TaskDilemma:
		return "dilemma"
	}
	return fmt.Sprintf("task(%d)", int(t))
}
