package simulation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/trial"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScript(t *testing.T) {
	path := writeScript(t, `
steps:
  - {at: 1s, channel: 0, position: 0.9}
  - {at: 1.5s, channel: 0, position: 0}
  - {at: 3s, channel: 1, position: 0.7}
`)
	s, err := LoadScript(path)
	require.NoError(t, err)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, Step{At: 1500 * time.Millisecond, Channel: 0, Position: 0}, s.Steps[1])
	assert.Equal(t, 3*time.Second, s.Length())
}

func TestLoadScript_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "steps: [\n"},
		{"channel", "steps:\n  - {at: 1s, channel: 3, position: 0.5}\n"},
		{"position", "steps:\n  - {at: 1s, channel: 0, position: 1.5}\n"},
		{"offset", "steps:\n  - {at: -1s, channel: 0, position: 0.5}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScript(writeScript(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestScriptDriver_Replays(t *testing.T) {
	cfg := trial.DefaultConfig()
	levers := hardware.NewSimLever()
	// Out of order on purpose; the driver sorts by offset.
	d := NewScriptDriver(levers, cfg.Channels, &Script{Steps: []Step{
		{At: 2 * time.Second, Channel: 0, Position: 0},
		{At: time.Second, Channel: 0, Position: 0.6},
	}})
	assert.Equal(t, [2]float64{0, 0}, positions(t, levers, cfg))

	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	d.Drive(start)
	assert.Equal(t, 0.0, positions(t, levers, cfg)[0])

	d.Drive(start.Add(time.Second))
	assert.InDelta(t, 0.6, positions(t, levers, cfg)[0], 1e-9)
	assert.False(t, d.Done())

	d.Drive(start.Add(2500 * time.Millisecond))
	assert.Equal(t, 0.0, positions(t, levers, cfg)[0])
	assert.True(t, d.Done())
}
