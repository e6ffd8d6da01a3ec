// Package hardware defines the narrow service interfaces the trial loop uses
// to reach the rig: lever sensors, reward pumps, audio and serial port
// discovery. Real transports live behind these interfaces; the Sim* types in
// this package stand in for them in dry runs and tests.
package hardware

// LeverHandle identifies a physical lever on the lever service.
type LeverHandle int

// LeverState is one reading from a lever.
type LeverState struct {
	PotentiometerReading float64 `json:"potentiometer_reading"`
	StrainGauge          float64 `json:"strain_gauge"`
}

// LeverService reads lever hardware.
type LeverService interface {
	// GetState returns the latest reading, or false when no data is available
	// (disconnected lever, no sample yet).
	GetState(h LeverHandle) (LeverState, bool)
}

// PumpHandle identifies one pump on the pump service.
type PumpHandle struct {
	Index int
}

// VolumeUnits are the pump's dispensed-volume units.
type VolumeUnits string

const (
	VolumeMilliliters VolumeUnits = "mL"
	VolumeMicroliters VolumeUnits = "uL"
)

// RateUnits are the pump's flow-rate units.
type RateUnits string

const (
	RateMillilitersPerMinute RateUnits = "mL/min"
	RateMillilitersPerHour   RateUnits = "mL/hr"
)

// PumpState is a pump's desired (not yet confirmed) configuration.
type PumpState struct {
	Volume      float64     `json:"volume"`
	VolumeUnits VolumeUnits `json:"volume_units"`
	Address     int         `json:"address"`
	Rate        int         `json:"rate"`
	RateUnits   RateUnits   `json:"rate_units"`
}

// PumpService drives the reward pumps. Commands are queued and reach the
// hardware on SubmitCommands.
type PumpService interface {
	NumInitializedPumps() int
	IthPump(i int) PumpHandle
	ReadDesiredPumpState(h PumpHandle) PumpState
	SetDispensedVolume(h PumpHandle, volume float64, units VolumeUnits)
	RunDispenseProgram(h PumpHandle)
	SubmitCommands()
}

// BufferHandle identifies a loaded audio buffer.
type BufferHandle int

// AudioService plays cue sounds. Playback is fire-and-forget.
type AudioService interface {
	LoadBuffer(path string) (BufferHandle, error)
	PlayBoth(b BufferHandle, gain float64)
	PlayOnChannel(b BufferHandle, channel int, gain float64)
}

// PortDescriptor describes a serial port found by a scan.
type PortDescriptor struct {
	Port        string `json:"port"`
	Description string `json:"description,omitempty"`
}

// PortScanner lists candidate serial ports on demand.
type PortScanner interface {
	EnumeratePorts() ([]PortDescriptor, error)
}
