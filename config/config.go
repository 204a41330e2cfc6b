// Package config holds the RAL process configuration, read from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	BackendPOSIX = "posix"
	BackendCMSIS = "cmsis"
)

const (
	defaultTickHz         = 1000
	defaultPollIntervalMs = 100
	defaultMaxTimers      = 1000
	defaultPriorityMax    = 99
	defaultLogLevel       = "info"
)

type Config struct {
	// Backend names the backend the binary was built for. Init rejects a
	// mismatch instead of silently running the other one.
	Backend  string `yaml:"backend"`
	TickHz   uint32 `yaml:"tick_hz"`
	LogLevel string `yaml:"log_level"`

	POSIX POSIX `yaml:"posix"`
	CMSIS CMSIS `yaml:"cmsis"`
}

type POSIX struct {
	TimerEngine    string `yaml:"timer_engine"` // "", "timerfd" or "heap"
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	MaxTimers      int    `yaml:"max_timers"`
	PriorityMin    int    `yaml:"priority_min"`
	PriorityMax    int    `yaml:"priority_max"`
	LockGraph      bool   `yaml:"lock_graph"`
}

type CMSIS struct {
	Library     string   `yaml:"library"`
	SearchDirs  []string `yaml:"search_dirs"`
	StartKernel bool     `yaml:"start_kernel"`
}

// EmbeddedConfigLookup resolves a named built-in profile. Tests may
// replace it.
var EmbeddedConfigLookup = func(profile string) ([]byte, bool) {
	b, ok := embeddedConfigs[profile]
	return b, ok
}

// Default returns the normalised built-in defaults.
func Default() Config {
	var c Config
	c.Normalise()
	return c
}

// Load reads path. A path of the form "@name" selects an embedded profile.
func Load(path string) (Config, error) {
	if name, ok := strings.CutPrefix(path, "@"); ok {
		raw, found := EmbeddedConfigLookup(name)
		if !found {
			return Config{}, errors.New("no embedded config profile: " + name)
		}
		return Parse(raw)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML, rejects unknown keys, and applies defaults.
func Parse(raw []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	c.Normalise()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Normalise fills zero fields with defaults.
func (c *Config) Normalise() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.TickHz == 0 {
		c.TickHz = defaultTickHz
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.POSIX.PollIntervalMs <= 0 {
		c.POSIX.PollIntervalMs = defaultPollIntervalMs
	}
	if c.POSIX.MaxTimers <= 0 {
		c.POSIX.MaxTimers = defaultMaxTimers
	}
	if c.POSIX.PriorityMin == 0 && c.POSIX.PriorityMax == 0 {
		c.POSIX.PriorityMax = defaultPriorityMax
	}
}

func (c Config) Validate() error {
	switch c.Backend {
	case "", BackendPOSIX, BackendCMSIS:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.POSIX.TimerEngine {
	case "", "timerfd", "heap":
	default:
		return fmt.Errorf("unknown posix.timer_engine %q", c.POSIX.TimerEngine)
	}
	if c.POSIX.PriorityMin > c.POSIX.PriorityMax {
		return errors.New("posix.priority_min above posix.priority_max")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
