package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath               string `yaml:"db_path"`
	StatusDir            string `yaml:"status_dir"`
	SwarmName            string `yaml:"swarm_name"`
	BackgroundIntervalMS int    `yaml:"background_interval_ms"`
	HealthIntervalMS     int    `yaml:"health_interval_ms"`
	RebalanceIntervalMS  int    `yaml:"rebalance_interval_ms"`
	TaskTimeoutMS        int    `yaml:"task_timeout_ms"`
	MaxRetries           int    `yaml:"max_retries"`
	MemoryMaxEntries     int    `yaml:"memory_max_entries"`
	BreakerThreshold     int    `yaml:"breaker_threshold"`
	BreakerResetMS       int    `yaml:"breaker_reset_ms"`
	VerificationEnabled  bool   `yaml:"verification_enabled"`
	VerifyFocus          string `yaml:"verify_focus"`
	TaskCommand          string `yaml:"task_command"`
}

// CoordinatorSettings are effective runtime values with defaults applied.
type CoordinatorSettings struct {
	SwarmName           string
	StatusDir           string
	BackgroundInterval  time.Duration
	HealthInterval      time.Duration
	RebalanceInterval   time.Duration
	TaskTimeout         time.Duration
	MaxRetries          int
	MemoryMaxEntries    int
	BreakerThreshold    int
	BreakerReset        time.Duration
	VerificationEnabled bool
	VerifyFocus         string
	TaskCommand         string
}

const (
	defaultBackgroundIntervalMS = 250
	defaultHealthIntervalMS     = 5000
	defaultRebalanceIntervalMS  = 10000
	defaultTaskTimeoutMS        = 300000
	defaultMaxRetries           = 3
	defaultMemoryMaxEntries     = 10000
	defaultBreakerThreshold     = 3
	defaultBreakerResetMS       = 30000
)

// EffectiveCoordinatorSettings returns validated settings with defaults.
// Invalid or missing config values fall back to safe defaults.
func EffectiveCoordinatorSettings() CoordinatorSettings {
	cfg := CoordinatorSettings{
		SwarmName:          "claude-flow",
		StatusDir:          filepath.Join(DataDir(), "swarm-status"),
		BackgroundInterval: defaultBackgroundIntervalMS * time.Millisecond,
		HealthInterval:     defaultHealthIntervalMS * time.Millisecond,
		RebalanceInterval:  defaultRebalanceIntervalMS * time.Millisecond,
		TaskTimeout:        defaultTaskTimeoutMS * time.Millisecond,
		MaxRetries:         defaultMaxRetries,
		MemoryMaxEntries:   defaultMemoryMaxEntries,
		BreakerThreshold:   defaultBreakerThreshold,
		BreakerReset:       defaultBreakerResetMS * time.Millisecond,
		VerifyFocus:        "general",
		TaskCommand:        `echo "completed: $CLAUDE_FLOW_TASK_DESCRIPTION"`,
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	if s.SwarmName != "" {
		cfg.SwarmName = s.SwarmName
	}
	if s.StatusDir != "" {
		cfg.StatusDir = s.StatusDir
	}
	if s.BackgroundIntervalMS > 0 {
		cfg.BackgroundInterval = time.Duration(s.BackgroundIntervalMS) * time.Millisecond
	}
	if s.HealthIntervalMS > 0 {
		cfg.HealthInterval = time.Duration(s.HealthIntervalMS) * time.Millisecond
	}
	if s.RebalanceIntervalMS > 0 {
		cfg.RebalanceInterval = time.Duration(s.RebalanceIntervalMS) * time.Millisecond
	}
	if s.TaskTimeoutMS > 0 {
		cfg.TaskTimeout = time.Duration(s.TaskTimeoutMS) * time.Millisecond
	}
	if s.MaxRetries > 0 {
		cfg.MaxRetries = s.MaxRetries
	}
	if s.MemoryMaxEntries > 0 {
		cfg.MemoryMaxEntries = s.MemoryMaxEntries
	}
	if s.BreakerThreshold > 0 {
		cfg.BreakerThreshold = s.BreakerThreshold
	}
	if s.BreakerResetMS > 0 {
		cfg.BreakerReset = time.Duration(s.BreakerResetMS) * time.Millisecond
	}
	if s.VerifyFocus != "" {
		cfg.VerifyFocus = s.VerifyFocus
	}
	if s.TaskCommand != "" {
		cfg.TaskCommand = s.TaskCommand
	}
	cfg.VerificationEnabled = s.VerificationEnabled
	if os.Getenv("CLAUDE_FLOW_VERIFICATION") == "1" {
		cfg.VerificationEnabled = true
	}
	return cfg
}

var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error
)

// LoadSettings reads config.yaml once per process. A missing file yields
// zero-valued settings, not an error.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return
			}
			settingsErr = err
			return
		}
		settingsErr = yaml.Unmarshal(data, &settings)
	})
	return settings, settingsErr
}
