package constants

// DeliveryMode selects how the two pumps are sequenced after a pull.
type DeliveryMode string

const (
	// DeliverySequential runs the puller's pump, waits juice2_delay, then runs the other pump.
	DeliverySequential DeliveryMode = "sequential"

	// DeliverySimultaneous runs both pumps in the same tick after juice1_delay.
	DeliverySimultaneous DeliveryMode = "simultaneous"
)

// Valid returns true if the mode is a recognized value.
func (m DeliveryMode) Valid() bool {
	switch m {
	case DeliverySequential, DeliverySimultaneous:
		return true
	}
	return false
}

// String returns the string representation of the mode.
func (m DeliveryMode) String() string {
	return string(m)
}
