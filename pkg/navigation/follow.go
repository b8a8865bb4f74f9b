package navigation

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/teslashibe/go-temi/pkg/perception"
	"github.com/teslashibe/go-temi/pkg/robot"
	"github.com/teslashibe/go-temi/pkg/wait"
)

// Ranger provides the latest distance classification.
type Ranger interface {
	Range() perception.DistanceBucket
}

// FollowConfig configures a Follower. Headings are degrees.
type FollowConfig struct {
	DefaultHeading float64
	Boundary       float64
	// AngleDivisor scales the user's bearing down to a turn.
	AngleDivisor float64
	MinTurn      float64
	Speed        float64

	LostTurn  int
	LostSpeed float64

	// ReturnThreshold is the heading error tolerated when idle.
	ReturnThreshold float64

	Waiter *wait.Waiter
	Logger *slog.Logger
}

// DefaultFollowConfig returns the tuned follow defaults.
func DefaultFollowConfig() FollowConfig {
	return FollowConfig{
		DefaultHeading:  270,
		Boundary:        90,
		AngleDivisor:    1.70,
		MinTurn:         0.1,
		Speed:           1.0,
		LostTurn:        45,
		LostSpeed:       0.1,
		ReturnThreshold: 2.0,
	}
}

// Follower turns in place to keep a user in view without leaving a heading
// window around DefaultHeading.
type Follower struct {
	cfg    FollowConfig
	robot  robot.Robot
	ranges Ranger
	driver *Driver
	waiter *wait.Waiter
	logger *slog.Logger

	mu       sync.Mutex
	lostSide perception.AngleBucket
}

// NewFollower creates a Follower that turns through driver.
func NewFollower(r robot.Robot, ranges Ranger, driver *Driver, cfg FollowConfig) *Follower {
	if cfg.AngleDivisor == 0 {
		cfg.AngleDivisor = 1.70
	}
	if cfg.Waiter == nil {
		cfg.Waiter = wait.New(wait.WithSignal(r.Signal()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Follower{
		cfg:      cfg,
		robot:    r,
		ranges:   ranges,
		driver:   driver,
		waiter:   cfg.Waiter,
		logger:   cfg.Logger.With("component", "navigation.Follower"),
		lostSide: perception.Gone,
	}
}

// Run steps the follower every tick until ctx is cancelled.
func (f *Follower) Run(ctx context.Context) error {
	for {
		if err := f.Step(ctx); err != nil {
			return err
		}
		if err := f.waiter.Tick(ctx); err != nil {
			return err
		}
	}
}

// Heading returns the robot heading in degrees on the follow scale.
func (f *Follower) Heading() float64 {
	return 180 + math.Round(degrees(f.robot.Yaw()))
}

// Step makes at most one turn. It does nothing while the robot is misused.
func (f *Follower) Step(ctx context.Context) error {
	if robot.Misused(f.robot) {
		return nil
	}

	heading := f.Heading()
	status := f.robot.DetectionStatus()
	detected := status == robot.DetectionDetected
	lost := status == robot.DetectionLost

	var turn float64
	if detected {
		rel := math.Round(degrees(f.robot.Detection().Angle)) / f.cfg.AngleDivisor
		turn = math.Trunc(rel)
		f.mu.Lock()
		switch {
		case rel > 0:
			f.lostSide = perception.Left
		case rel < 0:
			f.lostSide = perception.Right
		}
		f.mu.Unlock()
	}

	adjusted := f.Clamp(heading, turn)
	switch {
	case math.Abs(adjusted) > f.cfg.MinTurn && f.ranges.Range() != perception.Close:
		return f.turn(ctx, int(adjusted), f.cfg.Speed)

	case lost && f.withinWindow(heading):
		f.mu.Lock()
		side := f.lostSide
		f.lostSide = perception.Gone
		f.mu.Unlock()
		switch side {
		case perception.Left:
			return f.turn(ctx, f.cfg.LostTurn, f.cfg.LostSpeed)
		case perception.Right:
			return f.turn(ctx, -f.cfg.LostTurn, f.cfg.LostSpeed)
		}

	case !detected && !lost:
		if math.Abs(f.cfg.DefaultHeading-heading) > f.cfg.ReturnThreshold {
			return f.turn(ctx, int(DirectedAngle(f.cfg.DefaultHeading, heading)), f.cfg.Speed)
		}
	}
	return nil
}

func (f *Follower) turn(ctx context.Context, deg int, speed float64) error {
	f.logger.Debug("follow turn", "degrees", deg)
	status, err := f.driver.Turn(ctx, deg, speed)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("turn failed", "error", err)
		return nil
	}
	if status == robot.MovementAbort {
		f.logger.Debug("turn aborted", "degrees", deg)
	}
	return nil
}

func (f *Follower) withinWindow(heading float64) bool {
	return heading < f.cfg.DefaultHeading+f.cfg.Boundary && heading > f.cfg.DefaultHeading-f.cfg.Boundary
}

// Clamp limits a turn so the resulting heading stays inside the window.
// When it would leave the window, the turn stops one degree inside the
// nearer bound.
func (f *Follower) Clamp(heading, turn float64) float64 {
	lo := normalizeDegrees(f.cfg.DefaultHeading - f.cfg.Boundary)
	hi := normalizeDegrees(f.cfg.DefaultHeading + f.cfg.Boundary)
	next := normalizeDegrees(heading + turn)

	if lo < hi && next >= lo && next <= hi {
		return turn
	}
	if lo > hi && (next >= lo || next <= hi) {
		return turn
	}

	toHi := DirectedAngle(hi, heading)
	toLo := DirectedAngle(lo, heading)
	if math.Abs(toHi) < math.Abs(toLo) {
		return toHi - 1
	}
	return toLo + 1
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
