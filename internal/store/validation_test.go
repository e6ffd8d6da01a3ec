package store

import (
	"strings"
	"testing"

	"github.com/nvandessel/levertask/internal/models"
)

func TestValidateSession_Consistent(t *testing.T) {
	if errs := ValidateSession(sampleSession()); len(errs) != 0 {
		t.Errorf("expected no validation errors, got %v", errs)
	}
}

func TestValidateSession_Issues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Session)
		want   string
	}{
		{
			name:   "trial numbers not increasing",
			mutate: func(s *Session) { s.Trials[1].TrialNumber = 1 },
			want:   "not increasing",
		},
		{
			name:   "missing end event",
			mutate: func(s *Session) { s.Events = s.Events[:9] },
			want:   "last event",
		},
		{
			name:   "start event not first",
			mutate: func(s *Session) { s.Events[0], s.Events[1] = s.Events[1], s.Events[0] },
			want:   "first event",
		},
		{
			name:   "timepoint goes backwards",
			mutate: func(s *Session) { s.Events[3].Timepoint = 0.1 },
			want:   "before",
		},
		{
			name:   "recorded trial without events",
			mutate: func(s *Session) { s.Events = s.Events[:5] },
			want:   "no events",
		},
		{
			name:   "bad lever id",
			mutate: func(s *Session) { s.Readouts[0].LeverID = 3 },
			want:   "lever_id",
		},
		{
			name: "duplicate start event",
			mutate: func(s *Session) {
				s.Events[1].EventCode = models.EventTrialStart
			},
			want: "start and",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleSession()
			tt.mutate(s)
			errs := ValidateSession(s)
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, e := range errs {
				if strings.Contains(e.String(), tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error mentioning %q, got %v", tt.want, errs)
			}
		})
	}
}
