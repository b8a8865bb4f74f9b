// Package greet runs the proactive greeting behavior: notice someone,
// greet them with a fresh phrase, stay with them while they linger, and
// let go once they leave.
package greet

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-temi/pkg/metrics"
	"github.com/teslashibe/go-temi/pkg/perception"
	"github.com/teslashibe/go-temi/pkg/robot"
	"github.com/teslashibe/go-temi/pkg/wait"
)

// DefaultGreetings are the stock greeting phrases.
var DefaultGreetings = []string{
	"Hello! How can I assist you today?",
	"Hi there! What can I do for you?",
	"Good day! How may I help you?",
	"Hey! Need any assistance?",
	"Welcome! What can I help you with?",
}

// Ranger provides the latest distance classification.
type Ranger interface {
	Range() perception.DistanceBucket
}

// Speaker speaks a single request and waits for it.
type Speaker interface {
	Say(ctx context.Context, text string, opts robot.SpeakOptions) error
}

// Config configures a Loop.
type Config struct {
	Greetings []string
	// DetectionDelay debounces a fresh detection before engaging.
	DetectionDelay time.Duration
	// Window bounds one engagement.
	Window time.Duration
	// Absence is how long a vanished user has to come back.
	Absence time.Duration
	// Cooldown follows every disengagement.
	Cooldown time.Duration
	Tilt     int

	Rand   *rand.Rand
	Waiter *wait.Waiter
	// OnChange is called whenever an observable flag changes.
	OnChange func()
	Logger   *slog.Logger
}

// DefaultConfig returns the tuned greet defaults.
func DefaultConfig() Config {
	return Config{
		Greetings:      DefaultGreetings,
		DetectionDelay: time.Second,
		Window:         10 * time.Second,
		Absence:        5 * time.Second,
		Cooldown:       5 * time.Second,
		Tilt:           60,
	}
}

// Loop is the greet behavior.
type Loop struct {
	cfg     Config
	robot   robot.Robot
	ranges  Ranger
	speaker Speaker
	pool    *Pool
	waiter  *wait.Waiter
	logger  *slog.Logger

	greetMode atomic.Bool
	engaged   atomic.Bool
	idleFace  atomic.Bool
}

// New creates a Loop. Greet mode starts enabled.
func New(r robot.Robot, ranges Ranger, speaker Speaker, cfg Config) *Loop {
	if len(cfg.Greetings) == 0 {
		cfg.Greetings = DefaultGreetings
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1))
	}
	if cfg.Waiter == nil {
		cfg.Waiter = wait.New(wait.WithSignal(r.Signal()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &Loop{
		cfg:     cfg,
		robot:   r,
		ranges:  ranges,
		speaker: speaker,
		pool:    NewPool(len(cfg.Greetings), cfg.Rand),
		waiter:  cfg.Waiter,
		logger:  cfg.Logger.With("component", "greet.Loop"),
	}
	l.greetMode.Store(true)
	return l
}

// GreetMode reports whether greeting is enabled.
func (l *Loop) GreetMode() bool { return l.greetMode.Load() }

// SetGreetMode enables or disables greeting.
func (l *Loop) SetGreetMode(on bool) {
	if l.greetMode.Swap(on) != on {
		l.logger.Info("greet mode changed", "enabled", on)
		l.changed()
	}
}

// Engaged reports whether a detection is currently being greeted.
func (l *Loop) Engaged() bool { return l.engaged.Load() }

// IdleFaceActive reports whether the idle face should stay hidden.
func (l *Loop) IdleFaceActive() bool { return l.idleFace.Load() }

// Present reports whether anyone is sensed.
func (l *Loop) Present() bool { return l.ranges.Range() != perception.Missing }

func (l *Loop) changed() {
	if l.cfg.OnChange != nil {
		l.cfg.OnChange()
	}
}

func (l *Loop) setEngaged(v bool) {
	a := l.engaged.Swap(v) != v
	b := l.idleFace.Swap(v) != v
	if a || b {
		l.changed()
	}
}

func (l *Loop) wanted() bool { return l.Present() && l.GreetMode() }

// Run greets until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("greet loop started", "greetings", len(l.cfg.Greetings))
	for {
		if l.wanted() {
			if err := l.engage(ctx); err != nil {
				return err
			}
		}
		l.setEngaged(false)

		if !l.GreetMode() {
			l.stop(ctx)
			if err := l.robot.Tilt(ctx, l.cfg.Tilt); err != nil {
				l.logger.Warn("tilt failed", "error", err)
			}
			if err := l.waiter.While(ctx, func() bool { return !l.GreetMode() }); err != nil {
				return err
			}
		}

		if err := l.waiter.Tick(ctx); err != nil {
			return err
		}
	}
}

// engage runs one greeting from detection to disengagement.
func (l *Loop) engage(ctx context.Context) error {
	missing := func() bool { return !l.Present() }
	if _, err := l.waiter.Until(ctx, missing, l.cfg.DetectionDelay); err != nil {
		return err
	}
	if !l.wanted() {
		return nil
	}

	l.stop(ctx)
	choice := l.pool.Draw()
	if err := l.robot.Follow(ctx); err != nil {
		l.logger.Warn("follow failed", "error", err)
	}
	l.setEngaged(true)

	greeting := l.cfg.Greetings[choice]
	l.logger.Info("greeting", "index", choice, "text", greeting)
	metrics.Greetings.Inc()
	if err := l.speaker.Say(ctx, greeting, robot.DefaultSpeakOptions()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("greeting failed", "error", err)
	}

	ticks := int(l.cfg.Window / l.waiter.TickInterval())
	near := false
	for i := 0; ; i++ {
		if i > ticks {
			l.logger.Debug("engagement window elapsed")
			return l.disengage(ctx)
		}

		switch {
		case !l.wanted():
			if _, err := l.waiter.Until(ctx, l.Present, l.cfg.Absence); err != nil {
				return err
			}
			if !l.wanted() {
				l.logger.Debug("user left")
				return l.disengage(ctx)
			}
		case l.ranges.Range() == perception.Close && !near:
			l.stop(ctx)
			if err := l.robot.Tilt(ctx, l.cfg.Tilt); err != nil {
				l.logger.Warn("tilt failed", "error", err)
			}
			near = true
		case l.ranges.Range() != perception.Close && near:
			if err := l.robot.Follow(ctx); err != nil {
				l.logger.Warn("follow failed", "error", err)
			}
			near = false
		}

		if err := l.waiter.Tick(ctx); err != nil {
			return err
		}
	}
}

func (l *Loop) disengage(ctx context.Context) error {
	l.setEngaged(false)
	return wait.Sleep(ctx, l.cfg.Cooldown)
}

func (l *Loop) stop(ctx context.Context) {
	if err := l.robot.Stop(ctx); err != nil {
		l.logger.Warn("stop failed", "error", err)
	}
}
