package trial

import (
	"errors"
	"fmt"
	"time"

	"github.com/nvandessel/levertask/internal/constants"
	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/lever"
	"github.com/nvandessel/levertask/internal/models"
	"github.com/nvandessel/levertask/internal/reward"
)

// ChannelConfig wires one lever channel to its hardware and detector.
type ChannelConfig struct {
	// Handle is the physical lever read for this channel. Both channels may
	// read the same lever when it is pulled in two directions.
	Handle      hardware.LeverHandle
	Calibration lever.Calibration
	Thresholds  lever.Thresholds
}

// Timing holds the delivery delays. Each delay is a minimum measured from
// the previous delivery step.
type Timing struct {
	Juice1Delay            time.Duration
	Juice2DelayCompetitive time.Duration
	Juice2DelayDilemma     time.Duration
	AfterDelivery          time.Duration
}

// Juice2Delay returns the inter-delivery gap for a task type.
func (t Timing) Juice2Delay(task models.TaskType) time.Duration {
	if task == models.TaskDilemma {
		return t.Juice2DelayDilemma
	}
	return t.Juice2DelayCompetitive
}

// Config is everything the machine needs at trial zero.
type Config struct {
	Channels     [constants.NumChannels]ChannelConfig
	Schedule     reward.ScheduleConfig
	Volumes      reward.Volumes
	Timing       Timing
	DeliveryMode constants.DeliveryMode

	// TrialTimeout restarts the cue step when no pull arrives in time. Zero waits forever.
	TrialTimeout time.Duration

	// AllowAutomatedRun runs pump 2's program on entry to every new trial.
	AllowAutomatedRun bool

	// Seed makes random task draws reproducible.
	Seed uint64
}

// DefaultConfig returns the rig defaults.
func DefaultConfig() Config {
	th := lever.Thresholds{RisingEdge: constants.DefaultRisingEdge, FallingEdge: constants.DefaultFallingEdge}
	return Config{
		Channels: [constants.NumChannels]ChannelConfig{
			{
				Handle:      0,
				Calibration: lever.Calibration{Min: constants.DefaultChannel0Min, Max: constants.DefaultChannel0Max, Invert: true},
				Thresholds:  th,
			},
			{
				Handle:      0,
				Calibration: lever.Calibration{Min: constants.DefaultChannel1Min, Max: constants.DefaultChannel1Max},
				Thresholds:  th,
			},
		},
		Schedule: reward.ScheduleConfig{
			Initial:     models.TaskDilemma,
			Block:       true,
			BlockLength: constants.DefaultBlockLength,
		},
		Volumes: reward.Volumes{
			Large: constants.DefaultLargeRewardVolume,
			Small: constants.DefaultSmallRewardVolume,
		},
		Timing: Timing{
			Juice1Delay:            constants.DefaultJuice1Delay,
			Juice2DelayCompetitive: constants.DefaultJuice2DelayCompetitive,
			Juice2DelayDilemma:     constants.DefaultJuice2DelayDilemma,
			AfterDelivery:          constants.DefaultAfterDelivery,
		},
		DeliveryMode: constants.DeliverySequential,
		TrialTimeout: constants.DefaultTrialTimeout,
	}
}

// Validate checks the configuration before a session starts.
func (c Config) Validate() error {
	var errs []error
	for i, ch := range c.Channels {
		if err := ch.Thresholds.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", i, err))
		}
	}
	if !c.Schedule.Initial.Valid() {
		errs = append(errs, fmt.Errorf("unknown initial task type %d", c.Schedule.Initial))
	}
	if (c.Schedule.Block || c.Schedule.Random) && c.Schedule.BlockLength <= 0 {
		errs = append(errs, fmt.Errorf("block length must be positive, got %d", c.Schedule.BlockLength))
	}
	if c.Volumes.Large < 0 || c.Volumes.Small < 0 {
		errs = append(errs, fmt.Errorf("reward volumes must be non-negative"))
	}
	t := c.Timing
	if t.Juice1Delay < 0 || t.Juice2DelayCompetitive < 0 || t.Juice2DelayDilemma < 0 || t.AfterDelivery < 0 {
		errs = append(errs, fmt.Errorf("delivery delays must be non-negative"))
	}
	if c.TrialTimeout < 0 {
		errs = append(errs, fmt.Errorf("trial timeout must be non-negative"))
	}
	if !c.DeliveryMode.Valid() {
		errs = append(errs, fmt.Errorf("unknown delivery mode %q", c.DeliveryMode))
	}
	return errors.Join(errs...)
}
