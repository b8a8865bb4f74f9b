package interrupt

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-temi/pkg/wait"
)

// Messages are the spoken warnings, one per cause.
type Messages struct {
	DeviceMoved  string
	UserMissing  string
	UserTooClose string
}

// For returns the warning for a cause, or "" for CauseNone.
func (m Messages) For(c Cause) string {
	switch c {
	case CauseDeviceMoved:
		return m.DeviceMoved
	case CauseUserMissing:
		return m.UserMissing
	case CauseUserTooClose:
		return m.UserTooClose
	default:
		return ""
	}
}

// DefaultMessages returns the stock warnings.
func DefaultMessages() Messages {
	return Messages{
		DeviceMoved:  "Hey, do not touch me.",
		UserMissing:  "Sorry, I am unable to see you. Please come closer and I will start the tour again.",
		UserTooClose: "Hey, you are too close.",
	}
}

// Config holds monitor configuration.
type Config struct {
	// Escalation
	TriggerDelay time.Duration // Stage 1 after this long, stage 2 after half as long again
	Tilt         int           // Head tilt applied on escalation, degrees

	// Recovery
	MaxAttempts   int           // Failed re-engagements before a full restart
	WarningWindow time.Duration // Wait between spoken warnings
	IdleWindow    time.Duration // Wait between idle attempts with nobody present

	Messages Messages

	// Waiter paces every wait. Attach the telemetry signal for prompt wakeups.
	Waiter *wait.Waiter

	// OnEvent observes escalations, warnings and restarts.
	OnEvent func(Event)

	Logger *slog.Logger
}

// Option is a functional option for configuring the monitor.
type Option func(*Config)

// WithTriggerDelay sets the stage 1 delay.
func WithTriggerDelay(d time.Duration) Option {
	return func(c *Config) { c.TriggerDelay = d }
}

// WithMaxAttempts sets the attempt bound that forces a restart.
func WithMaxAttempts(n int) Option {
	return func(c *Config) { c.MaxAttempts = n }
}

// WithWarningWindow sets the wait between spoken warnings.
func WithWarningWindow(d time.Duration) Option {
	return func(c *Config) { c.WarningWindow = d }
}

// WithIdleWindow sets the wait between idle attempts.
func WithIdleWindow(d time.Duration) Option {
	return func(c *Config) { c.IdleWindow = d }
}

// WithMessages replaces the spoken warnings.
func WithMessages(m Messages) Option {
	return func(c *Config) { c.Messages = m }
}

// WithWaiter sets the waiter used for all polling.
func WithWaiter(w *wait.Waiter) Option {
	return func(c *Config) { c.Waiter = w }
}

// WithEventHook sets the event observer.
func WithEventHook(fn func(Event)) Option {
	return func(c *Config) { c.OnEvent = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() *Config {
	return &Config{
		TriggerDelay:  10 * time.Second,
		Tilt:          20,
		MaxAttempts:   6,
		WarningWindow: 10 * time.Second,
		IdleWindow:    10 * time.Second,
		Messages:      DefaultMessages(),
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.TriggerDelay <= 0 {
		return errors.New("interrupt: trigger delay must be positive")
	}
	if c.MaxAttempts < 1 {
		return errors.New("interrupt: max attempts must be at least 1")
	}
	if c.WarningWindow <= 0 || c.IdleWindow <= 0 {
		return errors.New("interrupt: warning and idle windows must be positive")
	}
	return nil
}
