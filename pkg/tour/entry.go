package tour

import (
	"context"
	"time"

	"github.com/teslashibe/go-temi/pkg/dialogue"
	"github.com/teslashibe/go-temi/pkg/interrupt"
	"github.com/teslashibe/go-temi/pkg/navigation"
	"github.com/teslashibe/go-temi/pkg/speech"
)

// Observables returns the current flag set.
func (o *Orchestrator) Observables() Observables {
	o.mu.Lock()
	loop, state, mode, runID := o.loop, o.state, o.mode, o.runID
	o.mu.Unlock()

	status := o.monitor.Status()
	obs := Observables{
		Talking:          o.arbiter.Talking(),
		Going:            o.driver.Going(),
		Listening:        o.flow.Listening(),
		Thinking:         o.flow.Thinking(),
		GreetMode:        o.greetMode.Load(),
		CompletionFailed: o.flow.CompletionFailed(),
		DetectionBucket:  o.tracker.Range(),
		State:            state,
		Mode:             mode,
		Attempts:         status.Attempts,
		Triggered:        status.Triggered,
		RunID:            runID,
	}
	if loop != nil {
		obs.IdleFaceActive = loop.IdleFaceActive()
	}
	return obs
}

// publish hands the flag set to OnChange when it differs from the last one
// published.
func (o *Orchestrator) publish() {
	obs := o.Observables()

	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	if obs == o.last {
		return
	}
	o.last = obs
	if o.cfg.OnChange != nil {
		o.cfg.OnChange(obs)
	}
}

// watch publishes on every telemetry update and once per tick for the
// flags nothing reports.
func (o *Orchestrator) watch(ctx context.Context) error {
	signal := o.robot.Signal()
	ticker := time.NewTicker(o.waiter.TickInterval())
	defer ticker.Stop()

	for {
		changed := signal.Changed()
		o.publish()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-ticker.C:
		}
	}
}

// screenTask is an action started from the screen. Stop cancels it along
// with the behavior subtree.
type screenTask struct {
	cancel   context.CancelFunc
	done     chan struct{}
	question bool
}

// track registers a screen action and returns its context and the func
// that ends it. A new question replaces the one in flight.
func (o *Orchestrator) track(ctx context.Context, question bool) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	t := &screenTask{cancel: cancel, done: make(chan struct{}), question: question}

	o.mu.Lock()
	if question {
		for other := range o.screen {
			if other.question {
				other.cancel()
			}
		}
	}
	o.screen[t] = struct{}{}
	o.mu.Unlock()

	return ctx, func() {
		cancel()
		o.mu.Lock()
		delete(o.screen, t)
		o.mu.Unlock()
		close(t.done)
	}
}

// cancelScreen cancels screen actions, only questions when questions is
// set, and returns their done channels.
func (o *Orchestrator) cancelScreen(questions bool) []chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	var done []chan struct{}
	for t := range o.screen {
		if questions && !t.question {
			continue
		}
		t.cancel()
		done = append(done, t.done)
	}
	return done
}

func waitAll(done []chan struct{}) {
	for _, d := range done {
		<-d
	}
}

// SpeakForUI speaks text for the screen without arming interrupts. With
// cancelQuestion set, a question asked from the screen is abandoned first.
func (o *Orchestrator) SpeakForUI(ctx context.Context, text string, cancelQuestion bool) error {
	if cancelQuestion {
		o.cancelScreen(true)
	}
	ctx, end := o.track(ctx, false)
	defer end()
	return o.arbiter.Speak(ctx, text, speech.Gated, interrupt.Conditions{})
}

// AskOpenQuestionUI runs an open question started from the screen. info is
// what the screen shows and is handed to the model as reference.
func (o *Orchestrator) AskOpenQuestionUI(ctx context.Context, info string) (dialogue.Answer, error) {
	opts := dialogue.OpenQuestion()
	if info != "" {
		opts = dialogue.TourQuestion(info)
		opts.Prompt = dialogue.OpenQuestionPrompt
	}

	ctx, end := o.track(ctx, true)
	defer end()
	return o.flow.AskOpenQuestion(ctx, opts)
}

// QueryNamedLocation offers to walk the visitor to a saved location.
func (o *Orchestrator) QueryNamedLocation(ctx context.Context, name string) (dialogue.Outcome, error) {
	ctx, end := o.track(ctx, false)
	defer end()
	return o.flow.QueryLocation(ctx, name)
}

// GoToPose drives to the pose with the given 1-based id and tilts to its
// head angle on arrival.
func (o *Orchestrator) GoToPose(ctx context.Context, id int) (navigation.Outcome, error) {
	pose, err := o.poses.ByID(id)
	if err != nil {
		return navigation.OutcomeAborted, err
	}
	ctx, end := o.track(ctx, false)
	defer end()
	outcome, err := o.driver.GoTo(ctx, navigation.AtPose(pose, 0), navigation.GoOptions{})
	if err != nil {
		return outcome, err
	}
	if outcome == navigation.OutcomeCompleted {
		if err := o.robot.Tilt(ctx, pose.Tilt); err != nil {
			o.logger.Warn("tilt failed", "error", err)
		}
	}
	return outcome, nil
}
