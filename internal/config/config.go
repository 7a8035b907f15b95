// Package config loads roster's configuration.
// Values come from built-in defaults, then an optional yaml file, then environment variables.
// Command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/robby/roster/internal/bridge"
	"github.com/robby/roster/internal/logging"
	"github.com/robby/roster/internal/remote"
	"github.com/robby/roster/internal/session"
)

// Config is the complete application configuration.
type Config struct {
	Remote  remote.Config  `yaml:"remote"`
	Session session.Config `yaml:"session"`
	Log     logging.Config `yaml:"log"`

	// OutputDir is where CSV exports are written.
	OutputDir string `yaml:"output_dir" env:"ROSTER_OUTPUT_DIR"`
	// QueueSize is the bridge's job queue capacity, at least bridge.MinQueueSize.
	QueueSize int `yaml:"queue_size" env:"ROSTER_QUEUE_SIZE"`
	// PollInterval is how often the UI polls pending replies.
	PollInterval time.Duration `yaml:"poll_interval" env:"ROSTER_POLL_INTERVAL"`
}

// Default returns the configuration used when nothing else is supplied.
func Default() Config {
	return Config{
		Remote:       remote.DefaultConfig(),
		Session:      session.DefaultConfig(),
		Log:          logging.DefaultConfig(),
		OutputDir:    ".",
		QueueSize:    bridge.MinQueueSize,
		PollInterval: 100 * time.Millisecond,
	}
}

// Load builds a Config from defaults, the yaml file at path (skipped when path is
// empty or the file does not exist) and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// No file is fine; defaults and env still apply.
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration can start a bridge.
func (c Config) Validate() error {
	var problems []string

	if c.Remote.APIID == 0 {
		problems = append(problems, "remote.api_id is required (ROSTER_API_ID)")
	}
	if c.Remote.APIHash == "" {
		problems = append(problems, "remote.api_hash is required (ROSTER_API_HASH)")
	}
	if c.Remote.Endpoint == "" {
		problems = append(problems, "remote.endpoint is required")
	}
	if c.QueueSize < bridge.MinQueueSize {
		problems = append(problems, fmt.Sprintf("queue_size must be at least %d", bridge.MinQueueSize))
	}
	switch c.Session.Backend {
	case "file":
		if c.Session.Path == "" {
			problems = append(problems, "session.path is required for the file backend")
		}
	case "keyring":
	default:
		problems = append(problems, fmt.Sprintf("unknown session backend %q", c.Session.Backend))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
