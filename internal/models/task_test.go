package models

import "testing"

func TestTaskType_Toggle(t *testing.T) {
	tests := []struct {
		name string
		in   TaskType
		want TaskType
	}{
		{"competitive to dilemma", TaskCompetitive, TaskDilemma},
		{"dilemma to competitive", TaskDilemma, TaskCompetitive},
		{"neutral unchanged", TaskNeutral, TaskNeutral},
		{"unknown unchanged", TaskType(7), TaskType(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Toggle(); got != tt.want {
				t.Errorf("Toggle(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTaskType_Rewarded(t *testing.T) {
	if TaskNeutral.Rewarded() {
		t.Error("neutral task should not be rewarded")
	}
	if !TaskCompetitive.Rewarded() || !TaskDilemma.Rewarded() {
		t.Error("competitive and dilemma tasks should be rewarded")
	}
	if TaskType(5).Valid() {
		t.Error("TaskType(5) should be invalid")
	}
}

func TestEventCodes(t *testing.T) {
	if PulledEventCode(0) != EventLever1Pulled || PulledEventCode(1) != EventLever2Pulled {
		t.Error("pulled event codes do not match lever ids")
	}
	if DeliveryEventCode(0) != EventPump1Delivery || DeliveryEventCode(1) != EventPump2Delivery {
		t.Error("delivery event codes do not match pump ids")
	}
}
