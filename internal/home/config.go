package home

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigYAML = `# planloop configuration
logging:
  level: INFO
safe_modes:
  update:
    dry_run: false
    no_plan_edit: false
    strict: false
lock:
  timeout_seconds: 30
deadlock:
  threshold: 10
`

// SafeModeDefaults are the advisory update restrictions from config,
// overridable per call with the update command's flags.
type SafeModeDefaults struct {
	DryRun     bool `yaml:"dry_run" json:"dry_run"`
	NoPlanEdit bool `yaml:"no_plan_edit" json:"no_plan_edit"`
	Strict     bool `yaml:"strict" json:"strict"`
}

// Config is the parsed config.yml.
type Config struct {
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	SafeModes struct {
		Update SafeModeDefaults `yaml:"update"`
	} `yaml:"safe_modes"`
	Lock struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"lock"`
	Deadlock struct {
		Threshold int `yaml:"threshold"`
	} `yaml:"deadlock"`
}

// DefaultConfig returns the config used when config.yml is absent.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Logging.Level = "INFO"
	cfg.Lock.TimeoutSeconds = 30
	cfg.Deadlock.Threshold = 10
	return cfg
}

// LoadConfig reads <home>/config.yml, falling back to defaults for any value
// the file does not set. A missing file is not an error.
func LoadConfig(homeDir string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(filepath.Join(homeDir, ConfigFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Lock.TimeoutSeconds <= 0 {
		cfg.Lock.TimeoutSeconds = 30
	}
	if cfg.Deadlock.Threshold <= 0 {
		cfg.Deadlock.Threshold = 10
	}
	return cfg, nil
}

// LockTimeout returns the configured lock acquisition timeout.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Lock.TimeoutSeconds) * time.Second
}
