// Package tour supervises every interaction behavior as one cancellable
// unit.
//
// The Orchestrator owns the long-lived components (perception tracker,
// interrupt monitor, speech arbiter, navigation driver and dialogue flow)
// and a restartable subtree that runs the behavior of the selected Mode.
// The interrupt monitor lives outside the subtree and restarts it through
// Restart after repeated re-engagement failures; every in-flight task of
// the old subtree has returned before the new one starts.
package tour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-temi/pkg/completion"
	"github.com/teslashibe/go-temi/pkg/dialogue"
	"github.com/teslashibe/go-temi/pkg/greet"
	"github.com/teslashibe/go-temi/pkg/interrupt"
	"github.com/teslashibe/go-temi/pkg/journal"
	"github.com/teslashibe/go-temi/pkg/metrics"
	"github.com/teslashibe/go-temi/pkg/navigation"
	"github.com/teslashibe/go-temi/pkg/perception"
	"github.com/teslashibe/go-temi/pkg/robot"
	"github.com/teslashibe/go-temi/pkg/speech"
	"github.com/teslashibe/go-temi/pkg/wait"
)

const (
	lineEnjoy     = "Enjoy the rest of your visit."
	lineStepBack  = "Please step back so I can return to my post."
	lineSkipStop  = "I cannot reach the next stop, let's move on."
	defaultEngage = time.Second
)

// Config configures an Orchestrator.
type Config struct {
	Mode      Mode
	Itinerary Itinerary
	// Poses replaces the patrol and named pose table when set.
	Poses navigation.Poses
	// EngageDelay debounces a visitor before talk and tour modes engage.
	EngageDelay time.Duration
	// PreventIdleReset stops the monitor from restarting an unattended
	// robot.
	PreventIdleReset bool

	Waiter     *wait.Waiter
	Perception perception.Config
	Interrupt  []interrupt.Option
	Speech     speech.Config
	Navigation navigation.Config
	Patrol     navigation.PatrolConfig
	Follow     navigation.FollowConfig
	Greet      greet.Config
	Dialogue   dialogue.Config

	// Journal records restarts, escalations, exchanges and navigation
	// outcomes. It may be nil.
	Journal journal.Recorder
	// OnChange is called with every distinct Observables value.
	OnChange func(Observables)
	Logger   *slog.Logger
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeNull,
		Itinerary:   DefaultItinerary(),
		EngageDelay: defaultEngage,
		Perception:  perception.DefaultConfig(),
		Speech:      speech.DefaultConfig(),
		Navigation:  navigation.DefaultConfig(),
		Patrol:      navigation.DefaultPatrolConfig(),
		Follow:      navigation.DefaultFollowConfig(),
		Greet:       greet.DefaultConfig(),
		Dialogue:    dialogue.DefaultConfig(),
	}
}

// Orchestrator runs and restarts the interaction behaviors.
type Orchestrator struct {
	cfg     Config
	robot   robot.Robot
	tracker *perception.Tracker
	monitor *interrupt.Monitor
	arbiter *speech.Arbiter
	driver  *navigation.Driver
	flow    *dialogue.Flow
	poses   navigation.Poses
	waiter  *wait.Waiter
	logger  *slog.Logger

	greetMode atomic.Bool

	mu       sync.Mutex
	parent   context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	loop     *greet.Loop
	mode     Mode
	state    State
	runID    string
	screen   map[*screenTask]struct{}
	restarts int

	pubMu sync.Mutex
	last  Observables
}

// New builds an Orchestrator and its components. provider may be nil, in
// which case questions go unanswered.
func New(r robot.Robot, provider completion.Provider, cfg Config) (*Orchestrator, error) {
	if !cfg.Mode.Implemented() {
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, cfg.Mode)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Waiter == nil {
		cfg.Waiter = wait.New(wait.WithSignal(r.Signal()))
	}
	if cfg.EngageDelay <= 0 {
		cfg.EngageDelay = defaultEngage
	}
	poses := cfg.Poses
	if len(poses) == 0 {
		poses = cfg.Patrol.Poses
	}
	if len(poses) == 0 {
		poses = navigation.DefaultPoses()
	}

	o := &Orchestrator{
		cfg:    cfg,
		robot:  r,
		poses:  poses,
		waiter: cfg.Waiter,
		logger: cfg.Logger.With("component", "tour.Orchestrator"),
		mode:   cfg.Mode,
		screen: make(map[*screenTask]struct{}),
	}
	o.greetMode.Store(true)

	pcfg := cfg.Perception
	if pcfg.Logger == nil {
		pcfg.Logger = cfg.Logger
	}
	o.tracker = perception.NewTracker(r, pcfg)

	opts := append([]interrupt.Option{
		interrupt.WithWaiter(cfg.Waiter),
		interrupt.WithLogger(cfg.Logger),
		interrupt.WithEventHook(o.onInterrupt),
	}, cfg.Interrupt...)
	monitor, err := interrupt.New(r, o.tracker, opts...)
	if err != nil {
		return nil, fmt.Errorf("create interrupt monitor: %w", err)
	}
	monitor.SetPreventIdleReset(cfg.PreventIdleReset)
	monitor.SetRestarter(o)
	o.monitor = monitor

	scfg := cfg.Speech
	scfg.Waiter = cfg.Waiter
	scfg.Logger = cfg.Logger
	onTalking := scfg.OnTalking
	scfg.OnTalking = func(v bool) {
		if onTalking != nil {
			onTalking(v)
		}
		o.publish()
	}
	o.arbiter = speech.New(r, monitor, scfg)

	ncfg := cfg.Navigation
	ncfg.Waiter = cfg.Waiter
	ncfg.Logger = cfg.Logger
	onGoing, onOutcome := ncfg.OnGoing, ncfg.OnOutcome
	ncfg.OnGoing = func(v bool) {
		if onGoing != nil {
			onGoing(v)
		}
		o.publish()
	}
	ncfg.OnOutcome = func(t navigation.Target, out navigation.Outcome) {
		if onOutcome != nil {
			onOutcome(t, out)
		}
		o.record(journal.Entry{Kind: journal.KindNavigation, Subject: t.String(), Outcome: out.String()})
	}
	o.driver = navigation.NewDriver(r, monitor, o.arbiter, ncfg)

	dcfg := cfg.Dialogue
	dcfg.Waiter = cfg.Waiter
	dcfg.Logger = cfg.Logger
	onChange, onExchange := dcfg.OnChange, dcfg.OnExchange
	dcfg.OnChange = func() {
		if onChange != nil {
			onChange()
		}
		o.publish()
	}
	dcfg.OnExchange = func(e dialogue.Exchange) {
		if onExchange != nil {
			onExchange(e)
		}
		o.recordExchange(e)
	}
	o.flow = dialogue.New(r, o.arbiter, o.driver, o.tracker, provider, dcfg)

	return o, nil
}

// Tracker returns the perception tracker.
func (o *Orchestrator) Tracker() *perception.Tracker { return o.tracker }

// Monitor returns the interrupt monitor.
func (o *Orchestrator) Monitor() *interrupt.Monitor { return o.monitor }

// Poses returns the named pose table.
func (o *Orchestrator) Poses() navigation.Poses { return o.poses }

// Run runs the long-lived components and the behavior subtree until ctx is
// cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started", "mode", o.Mode().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.tracker.Run(gctx) })
	g.Go(func() error { return o.monitor.Run(gctx) })
	g.Go(func() error { return o.watch(gctx) })
	g.Go(func() error { return o.Start(gctx) })

	err := g.Wait()
	o.Stop()
	o.logger.Info("orchestrator stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start launches the behavior subtree of the current mode.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.cancel != nil || o.state == StateTesting {
		o.mu.Unlock()
		return ErrRunning
	}
	mode := o.mode
	if !mode.Implemented() {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotImplemented, mode)
	}
	if mode == ModeTour {
		if err := o.cfg.Itinerary.Validate(); err != nil {
			o.mu.Unlock()
			return err
		}
	}

	sub, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	loop := o.newGreetLoop()
	from := o.state

	o.parent = ctx
	o.cancel = cancel
	o.done = done
	o.loop = loop
	o.runID = uuid.NewString()
	o.state = StateRunning
	runID := o.runID
	o.mu.Unlock()

	o.logger.Info("behavior started", "mode", mode.String(), "run_id", runID)
	go func() {
		defer close(done)
		if err := o.runMode(sub, mode, loop); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("behavior ended", "mode", mode.String(), "error", err)
		}
	}()

	o.transition(from, StateRunning)
	return nil
}

// Stop cancels the behavior subtree and every action started from the
// screen, and waits for all of them to return. Stopping a stopped
// orchestrator only cancels screen actions.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	from := o.state
	o.cancel, o.done, o.loop = nil, nil, nil
	if cancel != nil {
		o.state = StateStopped
	}
	o.mu.Unlock()

	screen := o.cancelScreen(false)
	if cancel == nil {
		waitAll(screen)
		return
	}

	cancel()
	o.arbiter.CancelTask()
	<-done
	waitAll(screen)

	o.monitor.Disarm()
	if err := o.robot.Stop(context.Background()); err != nil {
		o.logger.Warn("stop failed", "error", err)
	}
	o.transition(from, StateStopped)
}

// Restart stops the subtree and starts it again under the context it was
// first started with. It does nothing while stopped.
func (o *Orchestrator) Restart(ctx context.Context) error {
	o.mu.Lock()
	parent, running := o.parent, o.cancel != nil
	o.mu.Unlock()
	if !running {
		o.logger.Debug("restart skipped, not running")
		return nil
	}
	if parent == nil || parent.Err() != nil {
		parent = ctx
	}

	o.logger.Warn("restarting behavior")
	o.Stop()
	if err := o.Start(parent); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	o.mu.Lock()
	o.restarts++
	o.mu.Unlock()
	return nil
}

var _ interrupt.Restarter = (*Orchestrator)(nil)

// Restarts returns how many times the subtree was restarted.
func (o *Orchestrator) Restarts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.restarts
}

// Running reports whether the behavior subtree is running.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancel != nil
}

// Mode returns the selected mode.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SetMode selects a new mode, restarting the subtree if it is running.
func (o *Orchestrator) SetMode(ctx context.Context, m Mode) error {
	if !m.Implemented() {
		return fmt.Errorf("%w: %s", ErrNotImplemented, m)
	}
	o.mu.Lock()
	prev := o.mode
	o.mode = m
	running := o.cancel != nil
	o.mu.Unlock()
	if prev == m {
		return nil
	}

	o.logger.Info("mode changed", "from", prev.String(), "to", m.String())
	o.record(journal.Entry{Kind: journal.KindState, Subject: "mode", Outcome: m.String(), Detail: prev.String()})
	o.publish()
	if !running {
		return nil
	}
	return o.Restart(ctx)
}

// GreetMode reports whether proactive greeting is enabled.
func (o *Orchestrator) GreetMode() bool { return o.greetMode.Load() }

// SetGreetMode enables or disables proactive greeting. The setting
// survives restarts.
func (o *Orchestrator) SetGreetMode(on bool) {
	o.greetMode.Store(on)
	o.mu.Lock()
	loop := o.loop
	o.mu.Unlock()
	if loop != nil {
		loop.SetGreetMode(on)
	}
	o.publish()
}

func (o *Orchestrator) newGreetLoop() *greet.Loop {
	gcfg := o.cfg.Greet
	gcfg.Waiter = o.waiter
	gcfg.Logger = o.cfg.Logger
	onChange := gcfg.OnChange
	gcfg.OnChange = func() {
		if onChange != nil {
			onChange()
		}
		o.publish()
	}
	loop := greet.New(o.robot, o.tracker, o.arbiter, gcfg)
	loop.SetGreetMode(o.greetMode.Load())
	return loop
}

// runMode runs one mode until ctx is cancelled or a task fails.
func (o *Orchestrator) runMode(ctx context.Context, mode Mode, loop *greet.Loop) error {
	g, ctx := errgroup.WithContext(ctx)
	switch mode {
	case ModeNull:
		pcfg := o.cfg.Patrol
		pcfg.Poses = o.poses
		pcfg.Waiter = o.waiter
		pcfg.Logger = o.cfg.Logger
		patrol := navigation.NewPatrol(o.robot, loop, pcfg)
		g.Go(func() error { return loop.Run(ctx) })
		g.Go(func() error { return patrol.Run(ctx) })
	case ModeTalk:
		g.Go(func() error { return o.talk(ctx) })
	case ModeTour:
		g.Go(func() error { return o.tour(ctx) })
	case ModeConstraintFollow:
		fcfg := o.cfg.Follow
		fcfg.Waiter = o.waiter
		fcfg.Logger = o.cfg.Logger
		follower := navigation.NewFollower(o.robot, o.tracker, o.driver, fcfg)
		g.Go(func() error { return follower.Run(ctx) })
	default:
		return fmt.Errorf("%w: %s", ErrNotImplemented, mode)
	}
	return g.Wait()
}

// engage blocks until a visitor has stayed for EngageDelay.
func (o *Orchestrator) engage(ctx context.Context) error {
	for {
		if err := o.waiter.While(ctx, func() bool { return !o.tracker.Present() }); err != nil {
			return err
		}
		left, err := o.waiter.Until(ctx, func() bool { return !o.tracker.Present() }, o.cfg.EngageDelay)
		if err != nil {
			return err
		}
		if !left {
			return nil
		}
	}
}

// leave blocks until nobody is sensed.
func (o *Orchestrator) leave(ctx context.Context) error {
	return o.waiter.While(ctx, o.tracker.Present)
}

// talk offers an open question to every visitor.
func (o *Orchestrator) talk(ctx context.Context) error {
	for {
		if err := o.engage(ctx); err != nil {
			return err
		}
		if _, err := o.flow.AskOpenQuestion(ctx, dialogue.OpenQuestion()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn("question failed", "error", err)
		}
		if err := o.flow.WaitUntilUserLeaves(ctx, lineEnjoy, lineStepBack); err != nil {
			return err
		}
		if err := o.leave(ctx); err != nil {
			return err
		}
	}
}

// tour walks each visitor through the itinerary.
func (o *Orchestrator) tour(ctx context.Context) error {
	it := o.cfg.Itinerary
	for {
		if err := o.engage(ctx); err != nil {
			return err
		}
		o.logger.Info("tour starting", "stops", len(it.Stops))
		if err := o.speak(ctx, it.Welcome, interrupt.All); err != nil {
			return err
		}

		for i, stop := range it.Stops {
			if err := o.visit(ctx, i, stop); err != nil {
				return err
			}
		}

		if err := o.speak(ctx, it.Farewell, interrupt.Conditions{}); err != nil {
			return err
		}
		if err := o.flow.WaitUntilUserLeaves(ctx, lineEnjoy, lineStepBack); err != nil {
			return err
		}
		if err := o.leave(ctx); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) visit(ctx context.Context, i int, stop Stop) error {
	logger := o.logger.With("stop", i+1, "location", stop.Location)
	outcome, err := o.driver.GoTo(ctx, navigation.Location(stop.Location, false), navigation.GoOptions{
		SpeakBefore: stop.Lead,
		Conditions:  interrupt.All,
	})
	if err != nil {
		return err
	}
	if outcome == navigation.OutcomeAborted {
		logger.Warn("stop unreachable")
		return o.speak(ctx, lineSkipStop, interrupt.Conditions{})
	}

	if err := o.speak(ctx, stop.Script, interrupt.All); err != nil {
		return err
	}
	if !stop.Questions {
		return nil
	}
	if _, err := o.flow.AskOpenQuestion(ctx, dialogue.TourQuestion(stop.Script)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("question break failed", "error", err)
	}
	return nil
}

// speak speaks text gated. Empty text is skipped and only cancellation is
// returned.
func (o *Orchestrator) speak(ctx context.Context, text string, conds interrupt.Conditions) error {
	if text == "" {
		return nil
	}
	if err := o.arbiter.Speak(ctx, text, speech.Gated, conds); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.logger.Warn("speak failed", "error", err)
	}
	return nil
}

// Rehearse drives the itinerary once without a visitor: no interrupts are
// armed and question breaks are skipped. The orchestrator must be stopped.
func (o *Orchestrator) Rehearse(ctx context.Context) error {
	if err := o.cfg.Itinerary.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	if o.cancel != nil || o.state == StateTesting {
		o.mu.Unlock()
		return ErrRunning
	}
	from := o.state
	o.state = StateTesting
	o.mu.Unlock()
	o.transition(from, StateTesting)

	defer func() {
		o.mu.Lock()
		o.state = from
		o.mu.Unlock()
		o.transition(StateTesting, from)
	}()

	for i, stop := range o.cfg.Itinerary.Stops {
		outcome, err := o.driver.GoTo(ctx, navigation.Location(stop.Location, false), navigation.GoOptions{SpeakBefore: stop.Lead})
		if err != nil {
			return err
		}
		if outcome == navigation.OutcomeAborted {
			return fmt.Errorf("tour: stop %d (%s) unreachable", i+1, stop.Location)
		}
		if err := o.speak(ctx, stop.Script, interrupt.Conditions{}); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) transition(from, to State) {
	if from == to {
		return
	}
	metrics.StateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	o.record(journal.Entry{Kind: journal.KindState, Subject: "state", Outcome: to.String(), Detail: from.String()})
	o.publish()
}

func (o *Orchestrator) onInterrupt(e interrupt.Event) {
	switch e.Kind {
	case interrupt.EventEscalated:
		o.record(journal.Entry{
			Kind:    journal.KindEscalation,
			Subject: string(e.Cause),
			Outcome: fmt.Sprintf("stage %d", e.Stage),
		})
	case interrupt.EventRestart:
		o.record(journal.Entry{
			Kind:    journal.KindRestart,
			Outcome: "restart",
			Detail:  fmt.Sprintf("%d attempts", e.Attempts),
		})
	}
	o.publish()
}

func (o *Orchestrator) recordExchange(e dialogue.Exchange) {
	kind := journal.KindQuestion
	if e.Kind == "location" {
		kind = journal.KindLocation
	}
	o.record(journal.Entry{Kind: kind, Subject: e.Question, Outcome: string(e.Outcome), Detail: e.Answer})
}

func (o *Orchestrator) record(e journal.Entry) {
	if o.cfg.Journal == nil {
		return
	}
	o.mu.Lock()
	e.RunID = o.runID
	o.mu.Unlock()
	if _, err := o.cfg.Journal.Record(context.Background(), e); err != nil {
		o.logger.Warn("journal write failed", "kind", string(e.Kind), "error", err)
	}
}
