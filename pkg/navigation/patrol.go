package navigation

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/teslashibe/go-temi/pkg/robot"
	"github.com/teslashibe/go-temi/pkg/wait"
)

// Presence is what the patrol needs to know about people nearby.
type Presence interface {
	// GreetMode reports whether proactive greeting is enabled.
	GreetMode() bool
	// Engaged reports whether a valid detection is being greeted.
	Engaged() bool
	// Present reports whether a person is currently sensed.
	Present() bool
}

// PatrolConfig configures a Patrol.
type PatrolConfig struct {
	Poses Poses
	Speed float64
	// Dwell is how long to wait at each pose for someone to show up.
	Dwell  time.Duration
	Rand   *rand.Rand
	Waiter *wait.Waiter
	Logger *slog.Logger
}

// DefaultPatrolConfig returns the default patrol configuration.
func DefaultPatrolConfig() PatrolConfig {
	return PatrolConfig{
		Poses: DefaultPoses(),
		Speed: 0.5,
		Dwell: 5 * time.Second,
	}
}

// Patrol roams between poses while greet mode is on and nobody is engaged.
type Patrol struct {
	cfg      PatrolConfig
	robot    robot.Robot
	presence Presence
	waiter   *wait.Waiter
	logger   *slog.Logger

	mu      sync.Mutex
	current int
}

// NewPatrol creates a Patrol starting at a random pose.
func NewPatrol(r robot.Robot, presence Presence, cfg PatrolConfig) *Patrol {
	if len(cfg.Poses) < 2 {
		cfg.Poses = DefaultPoses()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	if cfg.Waiter == nil {
		cfg.Waiter = wait.New(wait.WithSignal(r.Signal()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Patrol{
		cfg:      cfg,
		robot:    r,
		presence: presence,
		waiter:   cfg.Waiter,
		logger:   cfg.Logger.With("component", "navigation.Patrol"),
		current:  cfg.Rand.IntN(len(cfg.Poses)),
	}
}

// Current returns the index of the pose being patrolled to.
func (p *Patrol) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// nextIndex picks a random pose index different from the current one.
func (p *Patrol) nextIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.cfg.Rand.IntN(len(p.cfg.Poses) - 1)
	if n >= p.current {
		n++
	}
	p.current = n
	return n
}

func (p *Patrol) roaming() bool {
	return p.presence.GreetMode() && !p.presence.Engaged()
}

// Run patrols until ctx is cancelled.
func (p *Patrol) Run(ctx context.Context) error {
	p.logger.Debug("patrol started", "poses", len(p.cfg.Poses))
	for {
		if err := p.waiter.Tick(ctx); err != nil {
			return err
		}
		for p.roaming() {
			if _, err := p.Leg(ctx); err != nil {
				return err
			}
			if err := p.waiter.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Leg drives to the current pose, dwells there, and advances to a new pose
// when the leg completed.
func (p *Patrol) Leg(ctx context.Context) (robot.GoalStatus, error) {
	pose := p.cfg.Poses[p.Current()]
	if err := p.robot.GoToPose(ctx, pose, p.cfg.Speed); err != nil {
		p.logger.Warn("patrol command failed", "error", err)
		return robot.GoalAbort, wait.Sleep(ctx, p.cfg.Dwell)
	}

	settling := func() bool {
		return !p.robot.GoalStatus().Terminal() && !p.presence.Engaged()
	}
	if err := p.waiter.While(ctx, settling); err != nil {
		return "", err
	}

	status := p.robot.GoalStatus()
	if status != robot.GoalAbort && !p.presence.Engaged() {
		someone := func() bool { return p.presence.Present() && p.presence.GreetMode() }
		if _, err := p.waiter.Until(ctx, someone, p.cfg.Dwell); err != nil {
			return status, err
		}
	}

	if status == robot.GoalComplete {
		next := p.nextIndex()
		p.logger.Debug("patrol leg complete", "next", next+1)
	}
	return status, nil
}
