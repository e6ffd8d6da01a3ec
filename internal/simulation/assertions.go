package simulation

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/nvandessel/levertask/internal/models"
	"github.com/nvandessel/levertask/internal/store"
)

// AssertConsistent asserts that the recorded session passes
// store.ValidateSession.
func AssertConsistent(t *testing.T, result Result) {
	t.Helper()
	for _, v := range store.ValidateSession(result.Record) {
		t.Errorf("AssertConsistent: %s: %s", result.Name, v)
	}
}

// AssertTrialCount asserts the number of recorded trials.
func AssertTrialCount(t *testing.T, result Result, want int) {
	t.Helper()
	if got := len(result.Record.Trials); got != want {
		t.Errorf("AssertTrialCount: %s: %d trials, want %d", result.Name, got, want)
	}
}

// AssertRewardsMatchPumps asserts that every rewarded count adds up to the
// pump runs submitted, allowing extra runs from automated pump runs.
func AssertRewardsMatchPumps(t *testing.T, result Result, automated int) {
	t.Helper()
	rewarded := 0
	for _, r := range result.Record.Trials {
		rewarded += r.Rewarded
	}
	if runs := len(result.Runs()); runs != rewarded+automated {
		t.Errorf("AssertRewardsMatchPumps: %s: %d pump runs, want %d rewarded + %d automated", result.Name, runs, rewarded, automated)
	}
}

// AssertTaskTypes asserts the task type of each trial in order.
func AssertTaskTypes(t *testing.T, result Result, want ...models.TaskType) {
	t.Helper()
	if len(result.Record.Trials) < len(want) {
		t.Fatalf("AssertTaskTypes: %s: %d trials, want at least %d", result.Name, len(result.Record.Trials), len(want))
	}
	for i, task := range want {
		if got := result.Record.Trials[i].TaskType; got != task {
			t.Errorf("AssertTaskTypes: %s: trial %d is %s, want %s", result.Name, i+1, got, task)
		}
	}
}

// AssertEveryTrialRewarded asserts that each trial delivered want rewards.
func AssertEveryTrialRewarded(t *testing.T, result Result, want int) {
	t.Helper()
	for _, r := range result.Record.Trials {
		if r.Rewarded != want {
			t.Errorf("AssertEveryTrialRewarded: %s: trial %d rewarded %d, want %d", result.Name, r.TrialNumber, r.Rewarded, want)
		}
	}
}

// AssertFilesWritten asserts that the four session files exist and each
// holds a JSON array.
func AssertFilesWritten(t *testing.T, result Result) {
	t.Helper()
	for _, path := range result.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("AssertFilesWritten: %s: %v", result.Name, err)
			continue
		}
		var rows []json.RawMessage
		if err := json.Unmarshal(data, &rows); err != nil {
			t.Errorf("AssertFilesWritten: %s: %s is not a JSON array: %v", result.Name, path, err)
		}
	}
}
