// temi runs the tour robot service. The robot connects to /ws/robot and the
// operator screen is served on the same port.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/teslashibe/go-temi/internal/log"
	"github.com/teslashibe/go-temi/pkg/app"
)

func main() {
	_ = godotenv.Load()

	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	log.Init(level)
	logger := log.Component("main")

	a, err := app.New(cfg, log.L())
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if err := a.Init(); err != nil {
		logger.Error("initialization failed", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
}

// parseFlags parses command line flags and returns configuration.
func parseFlags() (app.Config, error) {
	configFile := flag.String("config", "", "YAML config file (environment variables still override)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	mode := flag.String("mode", "", "Tour mode: null, talk, tour, constraint_follow")
	port := flag.String("port", "", "HTTP port (overrides PORT)")
	itinerary := flag.String("itinerary", "", "Tour itinerary YAML file")
	poses := flag.String("poses", "", "Patrol pose YAML file")
	greet := flag.Bool("greet", false, "Start with greet mode on")
	flag.Parse()

	cfg := app.DefaultConfig()
	if *configFile != "" {
		loaded, err := app.LoadFileConfig(*configFile)
		if err != nil {
			return app.Config{}, err
		}
		cfg = loaded
	}

	cfg.Debug = *debug
	if *mode != "" {
		cfg.Behavior.Mode = *mode
	}
	if *port != "" {
		cfg.HTTPPort = *port
	}
	if *itinerary != "" {
		cfg.Behavior.ItineraryFile = *itinerary
	}
	if *poses != "" {
		cfg.PosesFile = *poses
	}
	if *greet {
		cfg.Behavior.GreetMode = true
	}
	return cfg, nil
}
