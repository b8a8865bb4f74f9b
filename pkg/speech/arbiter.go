// Package speech arbitrates spoken output against the interrupt state.
//
// Text is split into sentences and spoken one at a time. Gated speech blocks
// the caller until every sentence has been spoken; backgrounded speech runs
// as a Task, and only one Task may be active at a time. When an interrupt
// with armed conditions holds, the current sentence waits, and once a resume
// is requested the same sentence is spoken again before moving on.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-temi/pkg/interrupt"
	"github.com/teslashibe/go-temi/pkg/metrics"
	"github.com/teslashibe/go-temi/pkg/robot"
	"github.com/teslashibe/go-temi/pkg/wait"
)

// Mode selects how Speak relates to the caller.
type Mode int

const (
	// Gated blocks until every sentence is spoken.
	Gated Mode = iota
	// Backgrounded returns immediately and speaks in a Task.
	Backgrounded
)

func (m Mode) String() string {
	if m == Backgrounded {
		return "backgrounded"
	}
	return "gated"
}

// ErrEmpty is returned when the text contains no sentence.
var ErrEmpty = errors.New("speech: nothing to say")

// Gate is the slice of the interrupt monitor speech depends on.
type Gate interface {
	Arm(c interrupt.Conditions)
	Disarm()
	Armed() interrupt.Conditions
	Holds(c interrupt.Conditions) bool
	SpeechResumePending() bool
	TakeSpeechResume() bool
}

// Config configures an Arbiter.
type Config struct {
	Options robot.SpeakOptions
	Waiter  *wait.Waiter
	// OnTalking is called whenever the talking observable changes.
	OnTalking func(talking bool)
	Logger    *slog.Logger
}

// DefaultConfig returns the default arbiter configuration.
func DefaultConfig() Config {
	return Config{Options: robot.DefaultSpeakOptions()}
}

// Arbiter speaks through the robot, honoring interrupts.
type Arbiter struct {
	cfg    Config
	robot  robot.Robot
	gate   Gate
	waiter *wait.Waiter
	logger *slog.Logger

	talking atomic.Int32

	mu   sync.Mutex
	task *Task
}

// New creates an Arbiter.
func New(r robot.Robot, gate Gate, cfg Config) *Arbiter {
	if cfg.Waiter == nil {
		cfg.Waiter = wait.New(wait.WithSignal(r.Signal()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Arbiter{
		cfg:    cfg,
		robot:  r,
		gate:   gate,
		waiter: cfg.Waiter,
		logger: cfg.Logger.With("component", "speech.Arbiter"),
	}
}

// Talking reports whether any speech call is in progress.
func (a *Arbiter) Talking() bool {
	return a.talking.Load() > 0
}

func (a *Arbiter) enter() {
	if a.talking.Add(1) == 1 && a.cfg.OnTalking != nil {
		a.cfg.OnTalking(true)
	}
}

func (a *Arbiter) exit() {
	if a.talking.Add(-1) == 0 && a.cfg.OnTalking != nil {
		a.cfg.OnTalking(false)
	}
}

// Speak speaks text in the given mode with conds armed. In Backgrounded mode
// it returns as soon as the task is started, or does nothing when another
// task is already active.
func (a *Arbiter) Speak(ctx context.Context, text string, mode Mode, conds interrupt.Conditions) error {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return ErrEmpty
	}

	if mode == Backgrounded {
		a.start(ctx, sentences, conds)
		return nil
	}

	a.enter()
	defer a.exit()

	a.gate.Arm(conds)
	defer a.gate.Disarm()
	return a.speakAll(ctx, sentences, mode, conds)
}

// Start speaks text in a background Task. It returns nil when another task
// is already active.
func (a *Arbiter) Start(ctx context.Context, text string, conds interrupt.Conditions) *Task {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	return a.start(ctx, sentences, conds)
}

func (a *Arbiter) start(ctx context.Context, sentences []string, conds interrupt.Conditions) *Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.task != nil && a.task.Active() {
		a.logger.Debug("background speech already active", "task_id", a.task.ID)
		return nil
	}

	tctx, cancel := context.WithCancel(ctx)
	task := newTask(cancel)
	a.task = task

	// A task that arms conditions itself disarms them when it ends, unless
	// someone re-armed in the meantime.
	owned := conds.Any() && a.gate.Armed() != conds
	if owned {
		a.gate.Arm(conds)
	}
	a.enter()
	go func() {
		defer a.exit()
		defer cancel()
		err := a.speakAll(tctx, sentences, Backgrounded, conds)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("background speech ended", "task_id", task.ID, "error", err)
		}
		if owned && a.gate.Armed() == conds {
			a.gate.Disarm()
		}
		task.finish(err)
	}()
	return task
}

// Task returns the current background task, or nil.
func (a *Arbiter) Task() *Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.task
}

// TaskActive reports whether background speech is running.
func (a *Arbiter) TaskActive() bool {
	t := a.Task()
	return t != nil && t.Active()
}

// CancelTask cancels the background task, if any.
func (a *Arbiter) CancelTask() {
	if t := a.Task(); t != nil {
		t.Cancel()
	}
}

func (a *Arbiter) speakAll(ctx context.Context, sentences []string, mode Mode, conds interrupt.Conditions) error {
	for _, s := range sentences {
		if err := a.speakSentence(ctx, s, mode, conds); err != nil {
			return err
		}
	}
	return nil
}

// speakSentence speaks s until it completes without a pending resume.
func (a *Arbiter) speakSentence(ctx context.Context, s string, mode Mode, conds interrupt.Conditions) error {
	blocked := func() bool {
		return !a.robot.TTSStatus().Done() || a.gate.Holds(conds)
	}

	for {
		a.gate.TakeSpeechResume()

		if err := a.robot.Speak(ctx, s, a.cfg.Options); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("speak failed", "sentence", s, "error", err)
			return nil
		}
		metrics.SentencesSpoken.WithLabelValues(mode.String()).Inc()

		if err := a.waiter.While(ctx, blocked); err != nil {
			return err
		}
		if !conds.Any() || !a.gate.SpeechResumePending() {
			return nil
		}
		metrics.SentenceRepeats.Inc()
		a.logger.Debug("repeating sentence after interrupt", "sentence", s)
	}
}

// Say speaks text once as a single request and waits for it to finish.
// Interrupts are ignored.
func (a *Arbiter) Say(ctx context.Context, text string, opts robot.SpeakOptions) error {
	if text == "" {
		return ErrEmpty
	}
	a.enter()
	defer a.exit()

	if err := a.robot.Speak(ctx, text, opts); err != nil {
		return err
	}
	metrics.SentencesSpoken.WithLabelValues("basic").Inc()
	return a.waiter.While(ctx, func() bool { return !a.robot.TTSStatus().Done() })
}

// Force re-issues text until the robot reports that speech started, then
// waits for it to finish.
func (a *Arbiter) Force(ctx context.Context, text string) error {
	if text == "" {
		return ErrEmpty
	}
	a.enter()
	defer a.exit()

	accepted := func() bool {
		s := a.robot.TTSStatus()
		return s == robot.TTSStarted || s.Done()
	}
	for {
		if err := a.robot.Speak(ctx, text, a.cfg.Options); err != nil {
			a.logger.Warn("forced speak failed", "error", err)
		}
		if err := a.waiter.Tick(ctx); err != nil {
			return err
		}
		if accepted() {
			break
		}
	}
	metrics.SentencesSpoken.WithLabelValues("forced").Inc()
	return a.waiter.While(ctx, func() bool { return !a.robot.TTSStatus().Done() })
}
