package config

import (
	"time"

	"github.com/spf13/viper"
)

// BehaviorConfig selects what the robot does once it is connected.
type BehaviorConfig struct {
	// Mode names the tour mode, for example "null", "talk" or "tour".
	Mode string
	// ItineraryFile is a YAML tour itinerary. Empty uses the built-in one.
	ItineraryFile string
	GreetMode     bool
	// PreventIdleReset keeps an unattended robot from being restarted.
	PreventIdleReset bool
	EngageDelay      time.Duration
	// StaticDir holds the operator screen assets.
	StaticDir string
}

func setBehaviorDefaults(v *viper.Viper) {
	v.SetDefault("behavior.mode", "null")
	v.SetDefault("behavior.itinerary_file", "")
	v.SetDefault("behavior.greet_mode", false)
	v.SetDefault("behavior.prevent_idle_reset", false)
	v.SetDefault("behavior.engage_delay", time.Second)
	v.SetDefault("behavior.static_dir", "")

	v.BindEnv("behavior.mode", "TEMI_MODE")
	v.BindEnv("behavior.itinerary_file", "TEMI_ITINERARY_FILE")
	v.BindEnv("behavior.greet_mode", "TEMI_GREET_MODE")
	v.BindEnv("behavior.prevent_idle_reset", "TEMI_PREVENT_IDLE_RESET")
	v.BindEnv("behavior.static_dir", "TEMI_STATIC_DIR")
}

func loadBehavior(v *viper.Viper) BehaviorConfig {
	return BehaviorConfig{
		Mode:             v.GetString("behavior.mode"),
		ItineraryFile:    v.GetString("behavior.itinerary_file"),
		GreetMode:        v.GetBool("behavior.greet_mode"),
		PreventIdleReset: v.GetBool("behavior.prevent_idle_reset"),
		EngageDelay:      v.GetDuration("behavior.engage_delay"),
		StaticDir:        v.GetString("behavior.static_dir"),
	}
}
