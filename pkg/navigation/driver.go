// Package navigation drives the robot to named locations and poses with
// interrupt-aware retry, and hosts the patrol and constraint-follow behaviors.
package navigation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-temi/pkg/interrupt"
	"github.com/teslashibe/go-temi/pkg/metrics"
	"github.com/teslashibe/go-temi/pkg/robot"
	"github.com/teslashibe/go-temi/pkg/speech"
	"github.com/teslashibe/go-temi/pkg/wait"
)

// Target is a named location or an explicit pose.
type Target struct {
	Location  string      `json:"location,omitempty"`
	Backwards bool        `json:"backwards,omitempty"`
	Pose      *robot.Pose `json:"pose,omitempty"`
	Speed     float64     `json:"speed,omitempty"`
}

// Location targets a location saved on the robot.
func Location(name string, backwards bool) Target {
	return Target{Location: name, Backwards: backwards}
}

// AtPose targets an explicit pose.
func AtPose(p robot.Pose, speed float64) Target {
	return Target{Pose: &p, Speed: speed}
}

func (t Target) String() string {
	if t.Pose != nil {
		return fmt.Sprintf("pose(%.2f,%.2f,%.2f)", t.Pose.X, t.Pose.Y, t.Pose.Yaw)
	}
	return t.Location
}

// Outcome is how a GoTo call ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeAborted
)

func (o Outcome) String() string {
	if o == OutcomeAborted {
		return "aborted"
	}
	return "completed"
}

// Gate is the slice of the interrupt monitor navigation depends on.
type Gate interface {
	Arm(c interrupt.Conditions)
	Disarm()
	Holds(c interrupt.Conditions) bool
	TakeGoToResume() bool
}

// Speaker starts backgrounded speech.
type Speaker interface {
	Start(ctx context.Context, text string, conds interrupt.Conditions) *speech.Task
}

// GoOptions tunes a single GoTo call.
type GoOptions struct {
	// SpeakBefore is spoken in the background while driving.
	SpeakBefore string
	Conditions  interrupt.Conditions
}

// Config configures a Driver.
type Config struct {
	DefaultSpeed float64
	Waiter       *wait.Waiter
	// OnGoing is called whenever the going observable changes.
	OnGoing func(going bool)
	// OnOutcome observes every finished GoTo.
	OnOutcome func(t Target, o Outcome)
	Logger    *slog.Logger
}

// DefaultConfig returns the default driver configuration.
func DefaultConfig() Config {
	return Config{DefaultSpeed: 0.5}
}

// Driver issues navigation commands and waits for them to settle.
type Driver struct {
	cfg     Config
	robot   robot.Robot
	gate    Gate
	speaker Speaker
	waiter  *wait.Waiter
	logger  *slog.Logger

	going atomic.Int32
}

// NewDriver creates a Driver.
func NewDriver(r robot.Robot, gate Gate, speaker Speaker, cfg Config) *Driver {
	if cfg.Waiter == nil {
		cfg.Waiter = wait.New(wait.WithSignal(r.Signal()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultSpeed <= 0 {
		cfg.DefaultSpeed = 0.5
	}
	return &Driver{
		cfg:     cfg,
		robot:   r,
		gate:    gate,
		speaker: speaker,
		waiter:  cfg.Waiter,
		logger:  cfg.Logger.With("component", "navigation.Driver"),
	}
}

// Going reports whether a GoTo call is in progress.
func (d *Driver) Going() bool {
	return d.going.Load() > 0
}

func (d *Driver) enter() {
	if d.going.Add(1) == 1 && d.cfg.OnGoing != nil {
		d.cfg.OnGoing(true)
	}
}

func (d *Driver) exit() {
	if d.going.Add(-1) == 0 && d.cfg.OnGoing != nil {
		d.cfg.OnGoing(false)
	}
}

// GoTo drives to target and returns once it settles. A resume request seen
// after the wait, or an interrupt observed during it, re-issues the same
// target once. An abort with neither ends the call with OutcomeAborted.
// The armed conditions are cleared on return.
func (d *Driver) GoTo(ctx context.Context, target Target, opts GoOptions) (Outcome, error) {
	d.enter()
	defer d.exit()

	conds := opts.Conditions
	d.gate.Arm(conds)
	defer d.gate.Disarm()

	var task *speech.Task
	if opts.SpeakBefore != "" && d.speaker != nil {
		task = d.speaker.Start(ctx, opts.SpeakBefore, conds)
	}

	outcome, err := d.drive(ctx, target, conds)
	if err != nil {
		return outcome, err
	}

	if task != nil {
		if err := task.Wait(ctx); err != nil {
			return outcome, err
		}
	}

	metrics.NavigationOutcomes.WithLabelValues(outcome.String()).Inc()
	if d.cfg.OnOutcome != nil {
		d.cfg.OnOutcome(target, outcome)
	}
	return outcome, nil
}

func (d *Driver) drive(ctx context.Context, target Target, conds interrupt.Conditions) (Outcome, error) {
	held := func() bool { return d.gate.Holds(conds) }

	issued := false
	attempt := 0
	for {
		if !issued {
			if err := d.waiter.While(ctx, held); err != nil {
				return OutcomeAborted, err
			}
			if attempt > 0 {
				metrics.NavigationReissues.Inc()
			}
			attempt++
			d.logger.Info("navigating", "target", target.String(), "attempt", attempt)
			// Only a replay request raised while this leg is under way counts.
			d.gate.TakeGoToResume()
			if err := d.issue(ctx, target); err != nil {
				if ctx.Err() != nil {
					return OutcomeAborted, ctx.Err()
				}
				d.logger.Warn("navigation command failed", "target", target.String(), "error", err)
				return OutcomeAborted, nil
			}
			issued = true
		}

		if err := d.waiter.Tick(ctx); err != nil {
			return OutcomeAborted, err
		}

		interrupted := false
		unsettled := func() bool {
			h := held()
			if h {
				interrupted = true
			}
			return !d.robot.GoalStatus().Terminal() || h
		}
		if err := d.waiter.While(ctx, unsettled); err != nil {
			return OutcomeAborted, err
		}

		resume := d.gate.TakeGoToResume() && conds.Any()
		status := d.robot.GoalStatus()
		switch {
		case resume:
			d.logger.Info("resuming navigation", "target", target.String(), "status", string(status))
			issued = false
		case status == robot.GoalComplete:
			d.checkArrival(target)
			return OutcomeCompleted, nil
		case interrupted && conds.Any():
			d.logger.Info("re-issuing interrupted navigation", "target", target.String())
			issued = false
		default:
			d.logger.Warn("navigation aborted", "target", target.String())
			return OutcomeAborted, nil
		}
	}
}

func (d *Driver) issue(ctx context.Context, t Target) error {
	if t.Pose != nil {
		speed := t.Speed
		if speed <= 0 {
			speed = d.cfg.DefaultSpeed
		}
		return d.robot.GoToPose(ctx, *t.Pose, speed)
	}
	return d.robot.GoTo(ctx, t.Location, t.Backwards)
}

func (d *Driver) checkArrival(t Target) {
	if t.Pose == nil {
		return
	}
	if !NewPositionChecker(*t.Pose).Close(d.robot.Position()) {
		d.logger.Debug("arrived off target", "target", t.String(), "position", d.robot.Position())
	}
}

// Turn rotates by degrees and waits for the movement to finish.
func (d *Driver) Turn(ctx context.Context, degrees int, speed float64) (robot.MovementStatus, error) {
	if err := d.robot.TurnBy(ctx, degrees, speed); err != nil {
		return robot.MovementAbort, err
	}
	if err := d.waiter.Tick(ctx); err != nil {
		return robot.MovementAbort, err
	}
	unsettled := func() bool { return !d.robot.MovementStatus().Terminal() }
	if err := d.waiter.While(ctx, unsettled); err != nil {
		return robot.MovementAbort, err
	}
	return d.robot.MovementStatus(), nil
}
