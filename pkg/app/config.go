// Package app assembles the tour robot service: the robot bridge, the
// orchestrator, the journal and the operator screen.
package app

import (
	"fmt"

	"github.com/teslashibe/go-temi/internal/config"
	"github.com/teslashibe/go-temi/pkg/tour"
)

// Config holds all configuration for the service.
// Flag parsing is done in cmd/temi/main.go; this struct is data only.
type Config struct {
	config.Config

	// Debug forces debug logging regardless of LogLevel.
	Debug bool
}

// DefaultConfig returns the configuration read from the environment.
func DefaultConfig() Config {
	return Config{Config: config.Load()}
}

// LoadFileConfig reads configuration from a file with environment
// overrides.
func LoadFileConfig(path string) (Config, error) {
	c, err := config.LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Config{Config: c}, nil
}

// Validate checks that the configuration can start the service.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return &ConfigError{Field: "HTTPPort", Message: "http port is required"}
	}
	mode, err := tour.ParseMode(c.Behavior.Mode)
	if err != nil {
		return &ConfigError{Field: "Behavior.Mode", Message: err.Error()}
	}
	if !mode.Implemented() {
		return &ConfigError{Field: "Behavior.Mode", Message: fmt.Sprintf("mode %s is not implemented", mode)}
	}
	if c.Timing.Tick <= 0 || c.Timing.Poll <= 0 {
		return &ConfigError{Field: "Timing", Message: "tick and poll intervals must be positive"}
	}
	if c.Dialogue.ThinkingMin > c.Dialogue.ThinkingMax {
		return &ConfigError{Field: "Dialogue", Message: "thinking_min must not exceed thinking_max"}
	}
	if c.Interrupt.MaxAttempts < 1 {
		return &ConfigError{Field: "Interrupt.MaxAttempts", Message: "max_attempts must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
