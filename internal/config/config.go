// Package config provides unified configuration loading for levertask.
// It supports loading from YAML files, .env files and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/levertask/internal/backup"
	"github.com/nvandessel/levertask/internal/constants"
	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/lever"
	"github.com/nvandessel/levertask/internal/logging"
	"github.com/nvandessel/levertask/internal/models"
	"github.com/nvandessel/levertask/internal/reward"
	"github.com/nvandessel/levertask/internal/sanitize"
	"github.com/nvandessel/levertask/internal/trial"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEVERTASK_"

// ExperimentConfig contains all levertask configuration settings.
type ExperimentConfig struct {
	// Session names the animals and controls the session loop.
	Session SessionConfig `json:"session" yaml:"session"`

	// Task controls the task-type schedule and delivery.
	Task TaskConfig `json:"task" yaml:"task"`

	// Reward sets volumes and delivery delays.
	Reward RewardConfig `json:"reward" yaml:"reward"`

	// Levers calibrates the two lever channels, channel 0 first.
	Levers []LeverConfig `json:"levers" yaml:"levers"`

	// Storage controls where session data is written.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging contains settings for operational and transition logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Monitor configures the live HTTP monitor.
	Monitor MonitorConfig `json:"monitor" yaml:"monitor"`

	// Backup configures archive backups.
	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// SessionConfig describes one session.
type SessionConfig struct {
	Animal1 string `json:"animal1" yaml:"animal1"`
	Animal2 string `json:"animal2" yaml:"animal2"`

	// ExperimentDate is recorded in session_info and leads every output file
	// name. Empty means the session's start date.
	ExperimentDate string `json:"experiment_date,omitempty" yaml:"experiment_date,omitempty"`

	// ResourceDir holds the sounds/ directory.
	ResourceDir string `json:"resource_dir" yaml:"resource_dir"`

	// MaxTrials stops the session at the first trial boundary after this many
	// trials. Zero disables the limit.
	MaxTrials int `json:"max_trials" yaml:"max_trials"`

	// Duration stops the session at the first trial boundary after this long.
	// Zero disables the limit.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// TickRate is the loop frequency in ticks per second.
	TickRate int `json:"tick_rate" yaml:"tick_rate"`

	// Seed seeds random task draws. Zero picks a seed from the clock.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// TaskConfig selects the task types.
type TaskConfig struct {
	// Type is the task type of the first block: 0 neutral, 1 competitive, 2 dilemma.
	Type        models.TaskType `json:"type" yaml:"type"`
	Block       bool            `json:"block" yaml:"block"`
	Random      bool            `json:"random" yaml:"random"`
	BlockLength int             `json:"block_length" yaml:"block_length"`

	// DeliveryMode is "sequential" (default) or "simultaneous".
	DeliveryMode constants.DeliveryMode `json:"delivery_mode" yaml:"delivery_mode"`

	// TrialTimeout restarts the cue step when no pull arrives. Zero waits forever.
	TrialTimeout time.Duration `json:"trial_timeout" yaml:"trial_timeout"`

	// AllowAutomatedRun runs pump 2 on entry to every trial.
	AllowAutomatedRun bool `json:"allow_automated_run" yaml:"allow_automated_run"`
}

// RewardConfig sets reward volumes (mL) and delivery delays.
type RewardConfig struct {
	LargeVolume            float64       `json:"large_volume" yaml:"large_volume"`
	SmallVolume            float64       `json:"small_volume" yaml:"small_volume"`
	Juice1Delay            time.Duration `json:"juice1_delay" yaml:"juice1_delay"`
	Juice2DelayCompetitive time.Duration `json:"juice2_delay_competitive" yaml:"juice2_delay_competitive"`
	Juice2DelayDilemma     time.Duration `json:"juice2_delay_dilemma" yaml:"juice2_delay_dilemma"`
	AfterDelivery          time.Duration `json:"after_delivery" yaml:"after_delivery"`
}

// LeverConfig calibrates one lever channel.
type LeverConfig struct {
	// Handle is the physical lever the channel reads.
	Handle      int     `json:"handle" yaml:"handle"`
	Min         float64 `json:"min" yaml:"min"`
	Max         float64 `json:"max" yaml:"max"`
	Invert      bool    `json:"invert" yaml:"invert"`
	RisingEdge  float64 `json:"rising_edge" yaml:"rising_edge"`
	FallingEdge float64 `json:"falling_edge" yaml:"falling_edge"`
}

// StorageConfig controls persistence.
type StorageConfig struct {
	// SaveData disables every writer when false.
	SaveData bool `json:"save_data" yaml:"save_data"`

	// OutputDir receives the JSON session files.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// DBPath is the SQLite archive. Empty disables archiving.
	DBPath string `json:"db_path" yaml:"db_path"`
}

// LoggingConfig configures levertask's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", "trace", "warn" or "error".
	// "debug" enables transition logging to transitions.jsonl in the output directory.
	Level string `json:"level" yaml:"level"`

	// File additionally writes the log to a rotating file. Empty disables it.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	MaxSizeMB  int  `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool `json:"compress" yaml:"compress"`
}

// Rotation returns the file rotation settings.
func (c LoggingConfig) Rotation() logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// MonitorConfig configures the live monitor.
type MonitorConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr is the listen address; port 0 picks a free port.
	Addr string `json:"addr" yaml:"addr"`

	// RateLimit is requests per second allowed per client; 0 disables limiting.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`
	Burst     int     `json:"burst" yaml:"burst"`
}

// BackupConfig configures archive backups.
type BackupConfig struct {
	// Dir receives backups. Empty means ~/.levertask/backups.
	Dir string `json:"dir" yaml:"dir"`

	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

// RetentionConfig limits how many backups are kept. Every set limit applies.
type RetentionConfig struct {
	MaxCount     int    `json:"max_count" yaml:"max_count"`
	MaxAge       string `json:"max_age" yaml:"max_age"`               // e.g. "30d", "72h"
	MaxTotalSize string `json:"max_total_size" yaml:"max_total_size"` // e.g. "500MB"
}

// Policy returns the retention policy for the configured limits. With no
// limits set it keeps the newest 10 backups.
func (c RetentionConfig) Policy() (backup.RetentionPolicy, error) {
	var policies backup.CompositePolicy
	if c.MaxCount > 0 {
		policies = append(policies, backup.CountPolicy{Keep: c.MaxCount})
	}
	if c.MaxAge != "" {
		d, err := backup.ParseDuration(c.MaxAge)
		if err != nil {
			return nil, err
		}
		policies = append(policies, backup.AgePolicy{MaxAge: d})
	}
	if c.MaxTotalSize != "" {
		n, err := backup.ParseSize(c.MaxTotalSize)
		if err != nil {
			return nil, err
		}
		policies = append(policies, backup.SizePolicy{MaxBytes: n})
	}

	switch len(policies) {
	case 0:
		return backup.CountPolicy{Keep: 10}, nil
	case 1:
		return policies[0], nil
	}
	return policies, nil
}

// BackupDir returns the configured backup directory or the default one.
func (c *ExperimentConfig) BackupDir() (string, error) {
	if c.Backup.Dir != "" {
		return c.Backup.Dir, nil
	}
	return backup.DefaultDir()
}

// Default returns an ExperimentConfig with the rig defaults.
func Default() *ExperimentConfig {
	rot := logging.DefaultRotation()
	return &ExperimentConfig{
		Session: SessionConfig{
			Animal1:     "animal1",
			Animal2:     "animal2",
			ResourceDir: ".",
			MaxTrials:   constants.DefaultMaxTrials,
			Duration:    constants.DefaultSessionDuration,
			TickRate:    constants.DefaultTickRate,
		},
		Task: TaskConfig{
			Type:         models.TaskDilemma,
			Block:        true,
			BlockLength:  constants.DefaultBlockLength,
			DeliveryMode: constants.DeliverySequential,
			TrialTimeout: constants.DefaultTrialTimeout,
		},
		Reward: RewardConfig{
			LargeVolume:            constants.DefaultLargeRewardVolume,
			SmallVolume:            constants.DefaultSmallRewardVolume,
			Juice1Delay:            constants.DefaultJuice1Delay,
			Juice2DelayCompetitive: constants.DefaultJuice2DelayCompetitive,
			Juice2DelayDilemma:     constants.DefaultJuice2DelayDilemma,
			AfterDelivery:          constants.DefaultAfterDelivery,
		},
		Levers: []LeverConfig{
			{
				Min:         constants.DefaultChannel0Min,
				Max:         constants.DefaultChannel0Max,
				Invert:      true,
				RisingEdge:  constants.DefaultRisingEdge,
				FallingEdge: constants.DefaultFallingEdge,
			},
			{
				Min:         constants.DefaultChannel1Min,
				Max:         constants.DefaultChannel1Max,
				RisingEdge:  constants.DefaultRisingEdge,
				FallingEdge: constants.DefaultFallingEdge,
			},
		},
		Storage: StorageConfig{
			SaveData:  true,
			OutputDir: "data",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  rot.MaxSizeMB,
			MaxBackups: rot.MaxBackups,
			MaxAgeDays: rot.MaxAgeDays,
			Compress:   rot.Compress,
		},
		Monitor: MonitorConfig{
			Addr:      "127.0.0.1:8765",
			RateLimit: 20,
			Burst:     40,
		},
		Backup: BackupConfig{
			Retention: RetentionConfig{MaxCount: 10},
		},
	}
}

// DefaultPath returns ~/.levertask/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".levertask", "config.yaml"), nil
}

// Load loads configuration from path (or the default location when path is
// empty), .env files and environment variables.
// Order: defaults -> YAML file -> .env (never overriding set vars) -> environment variables
func Load(path string) (*ExperimentConfig, error) {
	config := Default()

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	} else if defPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(defPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(defPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := LoadDotEnv(dotEnvPaths(path)...); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
// Missing keys keep their defaults.
func LoadFromFile(path string) (*ExperimentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Storage.OutputDir = expandEnvVars(config.Storage.OutputDir)
	config.Storage.DBPath = expandEnvVars(config.Storage.DBPath)
	config.Session.ResourceDir = expandEnvVars(config.Session.ResourceDir)
	config.Backup.Dir = expandEnvVars(config.Backup.Dir)

	return config, nil
}

// dotEnvPaths lists the .env candidates: the working directory, then the
// config file's directory.
func dotEnvPaths(configPath string) []string {
	paths := []string{".env"}
	if configPath != "" {
		paths = append(paths, filepath.Join(filepath.Dir(configPath), ".env"))
	}

	seen := make(map[string]struct{}, len(paths))
	uniq := make([]string, 0, len(paths))
	for _, p := range paths {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		uniq = append(uniq, p)
	}
	return uniq
}

// LoadDotEnv loads each existing .env file. Variables already set in the
// environment are left alone. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Validate checks that the configuration is valid. Every failure wraps ErrInvalid.
func (c *ExperimentConfig) Validate() error {
	if sanitize.Name(c.Session.Animal1) == "" || sanitize.Name(c.Session.Animal2) == "" {
		return fmt.Errorf("%w: both animal names are required", ErrInvalid)
	}
	if c.Session.TickRate <= 0 {
		return fmt.Errorf("%w: tick_rate must be positive, got %d", ErrInvalid, c.Session.TickRate)
	}
	if c.Session.MaxTrials < 0 {
		return fmt.Errorf("%w: max_trials must be non-negative, got %d", ErrInvalid, c.Session.MaxTrials)
	}
	if c.Session.Duration < 0 {
		return fmt.Errorf("%w: duration must be non-negative, got %v", ErrInvalid, c.Session.Duration)
	}
	if len(c.Levers) != constants.NumChannels {
		return fmt.Errorf("%w: expected %d levers, got %d", ErrInvalid, constants.NumChannels, len(c.Levers))
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: invalid log level: %s (valid: info, debug, trace, warn, error, or empty for default)", ErrInvalid, c.Logging.Level)
	}

	if c.Monitor.Enabled && c.Monitor.Addr == "" {
		return fmt.Errorf("%w: monitor.addr is required when the monitor is enabled", ErrInvalid)
	}
	if c.Monitor.RateLimit < 0 || c.Monitor.Burst < 0 {
		return fmt.Errorf("%w: monitor.rate_limit and monitor.burst must be non-negative", ErrInvalid)
	}
	if c.Backup.Retention.MaxCount < 0 {
		return fmt.Errorf("%w: backup.retention.max_count must be non-negative", ErrInvalid)
	}
	if _, err := c.Backup.Retention.Policy(); err != nil {
		return fmt.Errorf("%w: backup.retention: %w", ErrInvalid, err)
	}

	if err := c.TrialConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// TrialConfig converts the file settings into the trial machine's config.
// Levers beyond the expected two are ignored; Validate reports them.
func (c *ExperimentConfig) TrialConfig() trial.Config {
	tc := trial.Config{
		Schedule: reward.ScheduleConfig{
			Initial:     c.Task.Type,
			Block:       c.Task.Block,
			Random:      c.Task.Random,
			BlockLength: c.Task.BlockLength,
		},
		Volumes: reward.Volumes{
			Large: c.Reward.LargeVolume,
			Small: c.Reward.SmallVolume,
		},
		Timing: trial.Timing{
			Juice1Delay:            c.Reward.Juice1Delay,
			Juice2DelayCompetitive: c.Reward.Juice2DelayCompetitive,
			Juice2DelayDilemma:     c.Reward.Juice2DelayDilemma,
			AfterDelivery:          c.Reward.AfterDelivery,
		},
		DeliveryMode:      c.Task.DeliveryMode,
		TrialTimeout:      c.Task.TrialTimeout,
		AllowAutomatedRun: c.Task.AllowAutomatedRun,
		Seed:              c.Session.Seed,
	}
	for i := 0; i < constants.NumChannels && i < len(c.Levers); i++ {
		l := c.Levers[i]
		tc.Channels[i] = trial.ChannelConfig{
			Handle:      hardware.LeverHandle(l.Handle),
			Calibration: lever.Calibration{Min: l.Min, Max: l.Max, Invert: l.Invert},
			Thresholds:  lever.Thresholds{RisingEdge: l.RisingEdge, FallingEdge: l.FallingEdge},
		}
	}
	return tc
}

// SessionInfo returns the session metadata record for a session started at start.
func (c *ExperimentConfig) SessionInfo(start time.Time) models.SessionInfo {
	return models.SessionInfo{
		Animal1Name:         sanitize.Name(c.Session.Animal1),
		Animal2Name:         sanitize.Name(c.Session.Animal2),
		ExperimentDate:      c.experimentDate(start),
		TaskType:            c.Task.Type,
		TaskTypeBlock:       boolToInt(c.Task.Block),
		TaskTypeRandom:      boolToInt(c.Task.Random),
		TaskTypeBlockLength: c.Task.BlockLength,
		LargeRewardVolume:   c.Reward.LargeVolume,
		SmallRewardVolume:   c.Reward.SmallVolume,
	}
}

func (c *ExperimentConfig) experimentDate(start time.Time) string {
	if d := sanitize.Name(c.Session.ExperimentDate); d != "" {
		return d
	}
	return start.Format("2006-01-02")
}

// CuePaths returns the sound files for the configured resource directory.
func (c *ExperimentConfig) CuePaths() trial.CuePaths {
	return trial.DefaultCuePaths(c.Session.ResourceDir, sanitize.FileComponent(c.Session.Animal1))
}

// TickInterval returns the time between ticks.
func (c *ExperimentConfig) TickInterval() time.Duration {
	if c.Session.TickRate <= 0 {
		return time.Second / constants.DefaultTickRate
	}
	return time.Second / time.Duration(c.Session.TickRate)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// applyEnvOverrides applies environment variable overrides to the config.
// Malformed numeric values are reported rather than silently ignored.
func applyEnvOverrides(config *ExperimentConfig) error {
	env := func(name string) string {
		return os.Getenv(EnvPrefix + name)
	}
	var errs []error

	if v := env("ANIMAL1"); v != "" {
		config.Session.Animal1 = v
	}
	if v := env("ANIMAL2"); v != "" {
		config.Session.Animal2 = v
	}
	if v := env("EXPERIMENT_DATE"); v != "" {
		config.Session.ExperimentDate = v
	}
	if v := env("RESOURCE_DIR"); v != "" {
		config.Session.ResourceDir = v
	}
	if v := env("MAX_TRIALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Session.MaxTrials = n
		} else {
			errs = append(errs, fmt.Errorf("%sMAX_TRIALS: %w", EnvPrefix, err))
		}
	}
	if v := env("DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Session.Duration = d
		} else {
			errs = append(errs, fmt.Errorf("%sDURATION: %w", EnvPrefix, err))
		}
	}
	if v := env("SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Session.Seed = n
		} else {
			errs = append(errs, fmt.Errorf("%sSEED: %w", EnvPrefix, err))
		}
	}

	if v := env("TASK_TYPE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Task.Type = models.TaskType(n)
		} else {
			errs = append(errs, fmt.Errorf("%sTASK_TYPE: %w", EnvPrefix, err))
		}
	}
	if v := env("DELIVERY_MODE"); v != "" {
		config.Task.DeliveryMode = constants.DeliveryMode(v)
	}

	if v := env("SAVE_DATA"); v != "" {
		config.Storage.SaveData = v == "true" || v == "1"
	}
	if v := env("OUTPUT_DIR"); v != "" {
		config.Storage.OutputDir = v
	}
	if v := env("DB_PATH"); v != "" {
		config.Storage.DBPath = v
	}

	if v := env("BACKUP_DIR"); v != "" {
		config.Backup.Dir = v
	}

	if v := env("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := env("LOG_FILE"); v != "" {
		config.Logging.File = v
	}

	if v := env("MONITOR_ADDR"); v != "" {
		config.Monitor.Addr = v
		config.Monitor.Enabled = true
	}

	return errors.Join(errs...)
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
