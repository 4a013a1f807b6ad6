// Package runconfig loads the engine's runtime configuration: a JSON file
// with defaults, overlaid by CHRONOSIM_* environment variables.
package runconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chronosim/chronosim/internal/config"
	"github.com/chronosim/chronosim/notify"
)

// Duration is a time.Duration that decodes from JSON strings like "90s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case float64:
		// Bare numbers are seconds.
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
}

type SimulatedGeneration struct {
	Mode  string   `json:"mode"`
	Fixed Duration `json:"fixed,omitempty"`
}

type Store struct {
	Backend string `json:"backend"`
	Path    string `json:"path,omitempty"`
	Addr    string `json:"addr,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
}

type Config struct {
	AgentID             string              `json:"agentId,omitempty"`
	MaxIterations       int                 `json:"maxIterations"`
	FormatRetries       int                 `json:"formatRetries"`
	Verbosity           string              `json:"verbosity"`
	PolicyFile          string              `json:"policyFile,omitempty"`
	WaitTimeout         Duration            `json:"waitTimeout"`
	SimulatedGeneration SimulatedGeneration `json:"simulatedGeneration"`
	MaxPromptTokens     int                 `json:"maxPromptTokens,omitempty"`
	Store               Store               `json:"store"`
	EventBuffer         int                 `json:"eventBuffer"`
}

func Default() Config {
	return Config{
		MaxIterations: 80,
		FormatRetries: 3,
		Verbosity:     string(notify.LevelMedium),
		WaitTimeout:   Duration(10 * time.Minute),
		SimulatedGeneration: SimulatedGeneration{
			Mode:  "fixed",
			Fixed: Duration(30 * time.Second),
		},
		Store:       Store{Backend: "none"},
		EventBuffer: 256,
	}
}

// Load reads a config file and applies the environment overlay. A missing
// file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return cfg, fmt.Errorf("resolve config path: %w", err)
		}
		data, err := os.ReadFile(absPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults apply.
		case err != nil:
			return cfg, fmt.Errorf("read config file %q: %w", absPath, err)
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("decode config file %q: %w", absPath, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.AgentID = config.Getenv("CHRONOSIM_AGENT_ID", c.AgentID)
	c.MaxIterations = config.GetInt("CHRONOSIM_MAX_ITERATIONS", c.MaxIterations)
	c.FormatRetries = config.GetInt("CHRONOSIM_FORMAT_RETRIES", c.FormatRetries)
	c.Verbosity = config.Getenv("CHRONOSIM_VERBOSITY", c.Verbosity)
	c.PolicyFile = config.Getenv("CHRONOSIM_POLICY_FILE", c.PolicyFile)
	c.WaitTimeout = Duration(config.GetDuration("CHRONOSIM_WAIT_TIMEOUT", c.WaitTimeout.Std()))
	c.SimulatedGeneration.Mode = config.Getenv("CHRONOSIM_SIMGEN_MODE", c.SimulatedGeneration.Mode)
	c.SimulatedGeneration.Fixed = Duration(config.GetDuration("CHRONOSIM_SIMGEN_FIXED", c.SimulatedGeneration.Fixed.Std()))
	c.MaxPromptTokens = config.GetInt("CHRONOSIM_MAX_PROMPT_TOKENS", c.MaxPromptTokens)
	c.Store.Backend = config.Getenv("CHRONOSIM_STORE_BACKEND", c.Store.Backend)
	c.Store.Path = config.Getenv("CHRONOSIM_STORE_PATH", c.Store.Path)
	c.Store.Addr = config.Getenv("CHRONOSIM_STORE_ADDR", c.Store.Addr)
	c.Store.Prefix = config.Getenv("CHRONOSIM_STORE_PREFIX", c.Store.Prefix)
	c.EventBuffer = config.GetInt("CHRONOSIM_EVENT_BUFFER", c.EventBuffer)
}

func (c *Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("maxIterations must be positive, got %d", c.MaxIterations)
	}
	if c.FormatRetries <= 0 {
		return fmt.Errorf("formatRetries must be positive, got %d", c.FormatRetries)
	}
	if _, err := notify.ParseLevel(c.Verbosity); err != nil {
		return err
	}
	switch c.SimulatedGeneration.Mode {
	case "", "off", "fixed", "measured":
	default:
		return fmt.Errorf("unknown simulated generation mode %q", c.SimulatedGeneration.Mode)
	}
	if c.SimulatedGeneration.Mode == "fixed" && c.SimulatedGeneration.Fixed <= 0 {
		return fmt.Errorf("fixed simulated generation requires a positive duration")
	}
	switch c.Store.Backend {
	case "", "none", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("sqlite store requires a path")
	}
	if c.Store.Backend == "redis" && c.Store.Addr == "" {
		return fmt.Errorf("redis store requires an addr")
	}
	return nil
}
