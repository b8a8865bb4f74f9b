// Package config loads go-temi tunables from the environment and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the orchestrator reads at startup.
type Config struct {
	LogLevel    string
	HTTPPort    string
	JournalPath string
	PosesFile   string

	Behavior   BehaviorConfig
	Timing     TimingConfig
	Perception PerceptionConfig
	Interrupt  InterruptConfig
	Greet      GreetConfig
	Dialogue   DialogueConfig
	OpenAI     OpenAIConfig
}

// TimingConfig controls the cooperative scheduling cadence.
type TimingConfig struct {
	Tick           time.Duration
	Poll           time.Duration
	SampleInterval time.Duration
}

// PerceptionConfig holds the empirical distance and angle thresholds.
type PerceptionConfig struct {
	CloseDistance    float64
	MidRangeDistance float64
	AngleDeadZone    float64
	LateralFar       float64
	LateralMidRange  float64
	LateralClose     float64
	DepthThreshold   float64
}

// InterruptConfig holds escalation timing and the restart bound.
type InterruptConfig struct {
	Delay         time.Duration
	MaxAttempts   int
	WarningWindow time.Duration
	IdleWindow    time.Duration
}

// GreetConfig holds greet loop windows.
type GreetConfig struct {
	Window   time.Duration
	Absence  time.Duration
	Cooldown time.Duration
}

// DialogueConfig holds the artificial thinking delay bounds.
type DialogueConfig struct {
	ThinkingMin time.Duration
	ThinkingMax time.Duration
}

// OpenAIConfig configures the remote completion service.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Load reads configuration from environment variables only.
func Load() Config {
	return load(newViper())
}

// LoadFile reads configuration from a file, with environment overrides.
func LoadFile(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return load(v), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("http_port", "8080")
	v.SetDefault("journal_path", "temi-journal.db")
	v.SetDefault("poses_file", "")

	setBehaviorDefaults(v)

	v.SetDefault("timing.tick", 100*time.Millisecond)
	v.SetDefault("timing.poll", time.Second)
	v.SetDefault("timing.sample_interval", 500*time.Millisecond)

	v.SetDefault("perception.close_distance", 1.0)
	v.SetDefault("perception.midrange_distance", 1.5)
	v.SetDefault("perception.angle_dead_zone", 0.1)
	v.SetDefault("perception.lateral_far", 0.07)
	v.SetDefault("perception.lateral_midrange", 0.12)
	v.SetDefault("perception.lateral_close", 0.17)
	v.SetDefault("perception.depth_threshold", 0.01)

	v.SetDefault("interrupt.delay", 10*time.Second)
	v.SetDefault("interrupt.max_attempts", 6)
	v.SetDefault("interrupt.warning_window", 10*time.Second)
	v.SetDefault("interrupt.idle_window", 10*time.Second)

	v.SetDefault("greet.window", 10*time.Second)
	v.SetDefault("greet.absence", 5*time.Second)
	v.SetDefault("greet.cooldown", 5*time.Second)

	v.SetDefault("dialogue.thinking_min", 7*time.Second)
	v.SetDefault("dialogue.thinking_max", 15*time.Second)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")

	// Map envs
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("http_port", "PORT")
	v.BindEnv("journal_path", "TEMI_JOURNAL_PATH")
	v.BindEnv("poses_file", "TEMI_POSES_FILE")
	v.BindEnv("interrupt.delay", "TEMI_INTERRUPT_DELAY")
	v.BindEnv("interrupt.max_attempts", "TEMI_MAX_ATTEMPTS")
	v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("openai.model", "OPENAI_MODEL")

	return v
}

func load(v *viper.Viper) Config {
	var c Config
	c.LogLevel = v.GetString("log_level")
	c.HTTPPort = toString(v.Get("http_port"))
	c.JournalPath = v.GetString("journal_path")
	c.PosesFile = v.GetString("poses_file")

	c.Behavior = loadBehavior(v)

	c.Timing.Tick = v.GetDuration("timing.tick")
	c.Timing.Poll = v.GetDuration("timing.poll")
	c.Timing.SampleInterval = v.GetDuration("timing.sample_interval")

	c.Perception.CloseDistance = v.GetFloat64("perception.close_distance")
	c.Perception.MidRangeDistance = v.GetFloat64("perception.midrange_distance")
	c.Perception.AngleDeadZone = v.GetFloat64("perception.angle_dead_zone")
	c.Perception.LateralFar = v.GetFloat64("perception.lateral_far")
	c.Perception.LateralMidRange = v.GetFloat64("perception.lateral_midrange")
	c.Perception.LateralClose = v.GetFloat64("perception.lateral_close")
	c.Perception.DepthThreshold = v.GetFloat64("perception.depth_threshold")

	c.Interrupt.Delay = v.GetDuration("interrupt.delay")
	c.Interrupt.MaxAttempts = v.GetInt("interrupt.max_attempts")
	c.Interrupt.WarningWindow = v.GetDuration("interrupt.warning_window")
	c.Interrupt.IdleWindow = v.GetDuration("interrupt.idle_window")

	c.Greet.Window = v.GetDuration("greet.window")
	c.Greet.Absence = v.GetDuration("greet.absence")
	c.Greet.Cooldown = v.GetDuration("greet.cooldown")

	c.Dialogue.ThinkingMin = v.GetDuration("dialogue.thinking_min")
	c.Dialogue.ThinkingMax = v.GetDuration("dialogue.thinking_max")

	c.OpenAI.APIKey = v.GetString("openai.api_key")
	c.OpenAI.BaseURL = v.GetString("openai.base_url")
	c.OpenAI.Model = v.GetString("openai.model")

	return c
}

func toString(v any) string { return fmt.Sprint(v) }
