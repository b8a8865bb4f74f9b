// Package wait provides the cooperative wait helpers every polling loop in
// go-temi is built on.
//
// All waits are advisory: a timeout is a retry window, never an error. The
// only error a wait returns is the context's, when the caller is cancelled.
//
// Waits poll at a fixed cadence. When a Signal is attached, a waiter also
// re-checks its condition as soon as the Signal is notified, so a state change
// is observed without waiting out the rest of the poll interval.
package wait

import (
	"context"
	"time"
)

// Default cadences.
const (
	DefaultTick = 100 * time.Millisecond
	DefaultPoll = time.Second
)

// Condition is a predicate re-evaluated on every poll.
type Condition func() bool

// Waiter runs waits at a configured cadence.
type Waiter struct {
	tick   time.Duration
	poll   time.Duration
	signal *Signal
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithTick sets the scheduling unit used by Tick and While.
func WithTick(d time.Duration) Option {
	return func(w *Waiter) { w.tick = d }
}

// WithPoll sets the polling cadence used by Until.
func WithPoll(d time.Duration) Option {
	return func(w *Waiter) { w.poll = d }
}

// WithSignal wakes waits early whenever s is notified.
func WithSignal(s *Signal) Option {
	return func(w *Waiter) { w.signal = s }
}

// New creates a Waiter with the default cadences.
func New(opts ...Option) *Waiter {
	w := &Waiter{tick: DefaultTick, poll: DefaultPoll}
	for _, opt := range opts {
		opt(w)
	}
	if w.tick <= 0 {
		w.tick = DefaultTick
	}
	if w.poll <= 0 {
		w.poll = DefaultPoll
	}
	return w
}

// TickInterval returns the configured tick.
func (w *Waiter) TickInterval() time.Duration { return w.tick }

// PollInterval returns the configured poll cadence.
func (w *Waiter) PollInterval() time.Duration { return w.poll }

// Signal returns the attached signal, or nil.
func (w *Waiter) Signal() *Signal { return w.signal }

// Tick yields for one scheduling unit.
func (w *Waiter) Tick(ctx context.Context) error {
	return Sleep(ctx, w.tick)
}

// Until polls cond once per poll interval for up to timeout.
// It returns true as soon as cond holds, and false once timeout elapses
// with cond still false.
func (w *Waiter) Until(ctx context.Context, cond Condition, timeout time.Duration) (bool, error) {
	if cond() {
		return true, nil
	}
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		step := w.poll
		if remaining < step {
			step = remaining
		}
		if err := w.pause(ctx, step); err != nil {
			return false, err
		}
		if cond() {
			return true, nil
		}
	}
}

// While blocks as long as cond holds, re-checking every tick.
// It returns immediately when cond is false at entry. There is no timeout.
func (w *Waiter) While(ctx context.Context, cond Condition) error {
	for cond() {
		if err := w.pause(ctx, w.tick); err != nil {
			return err
		}
	}
	return nil
}

// pause sleeps for d, returning early when the signal fires.
func (w *Waiter) pause(ctx context.Context, d time.Duration) error {
	changed := w.signal.Changed()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	case <-changed:
	}
	return nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
