// Package interrupt watches for unsafe or degraded interaction conditions and
// escalates them into a robot-wide interrupted mode.
//
// Callers arm the conditions they care about before speaking or navigating.
// While an armed condition holds for the trigger delay the monitor stops the
// robot, and after half as long again it asks speech and navigation to replay
// their current step once the condition clears. While interrupted it speaks a
// warning per cause; repeated failures to re-engage force a full restart
// through the Restarter.
package interrupt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-temi/pkg/metrics"
	"github.com/teslashibe/go-temi/pkg/perception"
	"github.com/teslashibe/go-temi/pkg/robot"
	"github.com/teslashibe/go-temi/pkg/wait"
)

// Conditions selects which triggers are armed.
type Conditions struct {
	UserMissing  bool `json:"user_missing"`
	UserTooClose bool `json:"user_too_close"`
	DeviceMoved  bool `json:"device_moved"`
}

// All arms every condition.
var All = Conditions{UserMissing: true, UserTooClose: true, DeviceMoved: true}

// Any reports whether at least one condition is set.
func (c Conditions) Any() bool {
	return c.UserMissing || c.UserTooClose || c.DeviceMoved
}

// Cause names the condition currently holding.
type Cause string

const (
	CauseNone         Cause = ""
	CauseDeviceMoved  Cause = "device_moved"
	CauseUserMissing  Cause = "user_missing"
	CauseUserTooClose Cause = "user_too_close"
)

// RangeSource provides the latest distance classification.
type RangeSource interface {
	Range() perception.DistanceBucket
}

// Restarter tears down and relaunches the supervised tour.
type Restarter interface {
	Restart(ctx context.Context) error
}

// RestarterFunc adapts a function to Restarter.
type RestarterFunc func(ctx context.Context) error

// Restart calls f.
func (f RestarterFunc) Restart(ctx context.Context) error { return f(ctx) }

// EventKind classifies monitor events.
type EventKind string

const (
	EventEscalated EventKind = "escalated"
	EventWarning   EventKind = "warning"
	EventRestart   EventKind = "restart"
)

// Event describes a monitor transition.
type Event struct {
	Kind     EventKind `json:"kind"`
	Stage    int       `json:"stage,omitempty"`
	Cause    Cause     `json:"cause,omitempty"`
	Attempts int       `json:"attempts"`
	Time     time.Time `json:"time"`
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Armed            Conditions `json:"armed"`
	Triggered        bool       `json:"triggered"`
	TalkNow          bool       `json:"talk_now"`
	Attempts         int        `json:"attempts"`
	SpeechResume     bool       `json:"speech_resume"`
	GoToResume       bool       `json:"goto_resume"`
	PreventIdleReset bool       `json:"prevent_idle_reset"`
	Escalations      uint64     `json:"escalations"`
	Restarts         uint64     `json:"restarts"`
}

// Monitor owns the interrupt flags and the attempt counter.
type Monitor struct {
	cfg    *Config
	robot  robot.Robot
	ranges RangeSource
	waiter *wait.Waiter
	logger *slog.Logger

	mu               sync.Mutex
	restarter        Restarter
	armed            Conditions
	triggered        bool
	talkNow          bool
	speechResume     bool
	goToResume       bool
	preventIdleReset bool
	attempts         int
	escalations      uint64
	restarts         uint64
}

// New creates a Monitor.
func New(r robot.Robot, ranges RangeSource, opts ...Option) (*Monitor, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Waiter == nil {
		cfg.Waiter = wait.New(wait.WithSignal(r.Signal()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Monitor{
		cfg:    cfg,
		robot:  r,
		ranges: ranges,
		waiter: cfg.Waiter,
		logger: cfg.Logger.With("component", "interrupt.Monitor"),
	}, nil
}

// SetRestarter sets the target of full restarts.
func (m *Monitor) SetRestarter(r Restarter) {
	m.mu.Lock()
	m.restarter = r
	m.mu.Unlock()
}

// Arm replaces the armed conditions.
func (m *Monitor) Arm(c Conditions) {
	m.mu.Lock()
	m.armed = c
	m.mu.Unlock()
}

// Disarm clears every armed condition.
func (m *Monitor) Disarm() { m.Arm(Conditions{}) }

// Armed returns the armed conditions.
func (m *Monitor) Armed() Conditions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Triggered reports whether the robot is in interrupted mode.
func (m *Monitor) Triggered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggered
}

// Holds reports whether a caller that enabled conditions c must keep
// waiting because the robot is interrupted.
func (m *Monitor) Holds(c Conditions) bool {
	return c.Any() && m.Triggered()
}

// RequestResume asks speech and navigation to replay their current step.
func (m *Monitor) RequestResume() {
	m.mu.Lock()
	m.speechResume = true
	m.goToResume = true
	m.mu.Unlock()
}

// SpeechResumePending reports whether a sentence replay is requested.
func (m *Monitor) SpeechResumePending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speechResume
}

// TakeSpeechResume clears and returns the sentence replay request.
func (m *Monitor) TakeSpeechResume() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.speechResume
	m.speechResume = false
	return v
}

// TakeGoToResume clears and returns the navigation replay request.
func (m *Monitor) TakeGoToResume() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.goToResume
	m.goToResume = false
	return v
}

// SetPreventIdleReset suspends the idle restart branch.
func (m *Monitor) SetPreventIdleReset(v bool) {
	m.mu.Lock()
	m.preventIdleReset = v
	m.mu.Unlock()
}

func (m *Monitor) idleResetPrevented() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preventIdleReset
}

// Attempts returns the current attempt count.
func (m *Monitor) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Escalations returns the number of escalated episodes so far.
func (m *Monitor) Escalations() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escalations
}

// Reset returns flags, resume requests and the attempt counter to their
// initial values. The idle-reset guard is left alone.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.armed = Conditions{}
	m.triggered = false
	m.talkNow = false
	m.speechResume = false
	m.goToResume = false
	m.attempts = 0
	m.mu.Unlock()
	metrics.InterruptAttempts.Set(0)
}

// Status returns a snapshot of the monitor.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Armed:            m.armed,
		Triggered:        m.triggered,
		TalkNow:          m.talkNow,
		Attempts:         m.attempts,
		SpeechResume:     m.speechResume,
		GoToResume:       m.goToResume,
		PreventIdleReset: m.preventIdleReset,
		Escalations:      m.escalations,
		Restarts:         m.restarts,
	}
}

// Cause returns the armed condition that currently holds, checked in the
// order device moved, user missing, user too close.
func (m *Monitor) Cause() Cause {
	armed := m.Armed()
	switch {
	case armed.DeviceMoved && robot.Misused(m.robot):
		return CauseDeviceMoved
	case armed.UserMissing && m.ranges.Range() == perception.Missing:
		return CauseUserMissing
	case armed.UserTooClose && m.ranges.Range() == perception.Close:
		return CauseUserTooClose
	default:
		return CauseNone
	}
}

// Evaluate reports whether the combined trigger holds.
func (m *Monitor) Evaluate() bool {
	return m.Cause() != CauseNone
}

// Run watches the trigger and drives warnings until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("interrupt monitor started",
		"trigger_delay", m.cfg.TriggerDelay,
		"max_attempts", m.cfg.MaxAttempts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.watch(gctx) })
	g.Go(func() error { return m.warn(gctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watch escalates a held trigger once per continuous episode.
func (m *Monitor) watch(ctx context.Context) error {
	cleared := func() bool { return !m.Evaluate() }

	for {
		if !m.Evaluate() {
			m.mu.Lock()
			m.triggered = false
			m.talkNow = false
			m.mu.Unlock()
			if err := m.waiter.Tick(ctx); err != nil {
				return err
			}
			continue
		}

		ok, err := m.waiter.Until(ctx, cleared, m.cfg.TriggerDelay)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := m.escalate(ctx, 1); err != nil {
			return err
		}

		ok, err = m.waiter.Until(ctx, cleared, m.cfg.TriggerDelay/2)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := m.escalate(ctx, 2); err != nil {
			return err
		}

		if err := m.waiter.While(ctx, m.Evaluate); err != nil {
			return err
		}
	}
}

func (m *Monitor) escalate(ctx context.Context, stage int) error {
	cause := m.Cause()

	m.mu.Lock()
	m.triggered = true
	if stage == 1 {
		m.escalations++
	} else {
		m.speechResume = true
		m.goToResume = true
		m.talkNow = true
	}
	attempts := m.attempts
	m.mu.Unlock()

	m.logger.Warn("interrupt escalated", "stage", stage, "cause", string(cause))
	metrics.InterruptEscalations.WithLabelValues(stageLabel(stage)).Inc()
	m.emit(Event{Kind: EventEscalated, Stage: stage, Cause: cause, Attempts: attempts})

	if err := m.robot.Stop(ctx); err != nil {
		m.logger.Warn("stop failed", "error", err)
	}
	if err := m.waiter.Tick(ctx); err != nil {
		return err
	}
	if err := m.robot.Tilt(ctx, m.cfg.Tilt); err != nil {
		m.logger.Warn("tilt failed", "error", err)
	}
	return nil
}

// warn speaks warnings while interrupted and counts failed re-engagements,
// including plain idling with nobody present.
func (m *Monitor) warn(ctx context.Context) error {
	for {
		m.setAttempts(0)

		for m.Triggered() {
			if m.shouldTalk() {
				cause := m.Cause()
				if msg := m.cfg.Messages.For(cause); msg != "" {
					if err := m.robot.Speak(ctx, msg, robot.DefaultSpeakOptions()); err != nil {
						m.logger.Warn("warning speech failed", "cause", string(cause), "error", err)
					}
					metrics.InterruptWarnings.WithLabelValues(string(cause)).Inc()
					m.emit(Event{Kind: EventWarning, Cause: cause, Attempts: m.Attempts()})
				}
				if cause == CauseUserMissing {
					if err := m.countAttempt(ctx); err != nil {
						return err
					}
				}
				if _, err := m.waiter.Until(ctx, func() bool { return !m.Triggered() }, m.cfg.WarningWindow); err != nil {
					return err
				}
			}
			if err := m.waiter.Tick(ctx); err != nil {
				return err
			}
		}

		for m.idleWithoutUser() {
			if err := m.countAttempt(ctx); err != nil {
				return err
			}
			resumed := func() bool { return !m.idleWithoutUser() }
			if _, err := m.waiter.Until(ctx, resumed, m.cfg.IdleWindow); err != nil {
				return err
			}
		}

		if err := m.waiter.Tick(ctx); err != nil {
			return err
		}
	}
}

func (m *Monitor) idleWithoutUser() bool {
	return !m.Triggered() && m.ranges.Range() == perception.Missing && !m.idleResetPrevented()
}

func (m *Monitor) shouldTalk() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.talkNow
}

func (m *Monitor) setAttempts(n int) {
	m.mu.Lock()
	m.attempts = n
	m.mu.Unlock()
	metrics.InterruptAttempts.Set(float64(n))
}

// countAttempt bumps the counter and restarts once it reaches the bound.
func (m *Monitor) countAttempt(ctx context.Context) error {
	m.mu.Lock()
	m.attempts++
	n := m.attempts
	m.mu.Unlock()
	metrics.InterruptAttempts.Set(float64(n))

	m.logger.Debug("re-engagement attempt", "attempt", n, "max_attempts", m.cfg.MaxAttempts)
	if n < m.cfg.MaxAttempts {
		return nil
	}
	return m.restart(ctx, n)
}

func (m *Monitor) restart(ctx context.Context, attempts int) error {
	m.logger.Warn("restarting tour", "attempts", attempts)
	metrics.Restarts.Inc()
	m.emit(Event{Kind: EventRestart, Attempts: attempts})

	m.Reset()
	m.mu.Lock()
	m.restarts++
	restarter := m.restarter
	m.mu.Unlock()

	if restarter == nil {
		return nil
	}
	if err := restarter.Restart(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Error("restart failed", "error", err)
	}
	return nil
}

func (m *Monitor) emit(e Event) {
	if m.cfg.OnEvent == nil {
		return
	}
	e.Time = time.Now()
	m.cfg.OnEvent(e)
}

func stageLabel(stage int) string {
	if stage == 1 {
		return "stop"
	}
	return "resume"
}
