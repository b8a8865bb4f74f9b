// Package dialogue runs the robot's spoken exchanges: open questions
// answered by a remote model, yes/no confirmations, and offers to walk a
// visitor to a named location.
//
// Every exchange is built from the same steps. The robot speaks through the
// speech arbiter, opens a recognition session, waits for it to detach, and
// classifies the transcript against the Confirm and Reject lexicons.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-temi/pkg/completion"
	"github.com/teslashibe/go-temi/pkg/interrupt"
	"github.com/teslashibe/go-temi/pkg/metrics"
	"github.com/teslashibe/go-temi/pkg/navigation"
	"github.com/teslashibe/go-temi/pkg/perception"
	"github.com/teslashibe/go-temi/pkg/robot"
	"github.com/teslashibe/go-temi/pkg/speech"
	"github.com/teslashibe/go-temi/pkg/wait"
)

// ErrCompletionFailed is returned when the remote model could not answer.
var ErrCompletionFailed = errors.New("dialogue: completion failed")

// Outcome is how an exchange ended.
type Outcome string

const (
	OutcomeAnswered   Outcome = "answered"
	OutcomeNoQuestion Outcome = "no_question"
	OutcomeUnanswered Outcome = "unanswered"
	OutcomeFailed     Outcome = "failed"
	OutcomeConfirmed  Outcome = "confirmed"
	OutcomeRejected   Outcome = "rejected"
	OutcomeIgnored    Outcome = "ignored"
)

// Lines spoken by the flow.
const (
	TourQuestionPrompt  = "Does anyone have a question?"
	OpenQuestionPrompt  = "What is your Question? Say no to cancel."
	readBackFormat      = "Did you say: %s? Please just say yes or no."
	lineContinue        = "All good, I will continue on."
	lineAllGood         = "All good"
	lineRetry           = "Sorry, let's try this again."
	lineThinking        = "Great, let me think for a moment."
	lineNotUnderstood   = "Sorry, I did not understand you."
	lineHearingIssue    = "Sorry, I had an issue with hearing you."
	lineUnknownQuestion = "Sorry, I do not actually know that question."
	lineThankYou        = "Thank you"
	locationFormat      = "You have selected %s. Would you like me to bring you there? Please just say yes or no."
	lineLocationDecline = "All good, just touch the screen when you are done and are looking to exit."
	lineLocationGo      = "Ok, I will show you to it now."
	lineLocationArrived = "We have made it to the location, if you need further help feel free to browse through my options."
)

// DefaultSystemPrompt is the persona used for free-standing questions.
const DefaultSystemPrompt = "You are an assistant embedded in a robot. Respond as sassy and snarky as possible to user queries, but keep the ascetic like that of a robot. Ensure to keep responses very short so that it is not above 100 words."

const tourSystemPrompt = "You are a robot who is currently giving out a tour and have just finished explaining details at a location and are asking the tour participants if they have any questions. Make your responses sarcastic and make comments about how you dislike humans and find them to be inferior to robot kinds, but keep the ascetic like that of a robot. Ensure to keep responses very short so that it is not above 100 words and never ask the user if the would like to ask another question. This is the script you have just said and should use as reference: "

// Speaker is the slice of the speech arbiter the flow uses.
type Speaker interface {
	Speak(ctx context.Context, text string, mode speech.Mode, conds interrupt.Conditions) error
	Force(ctx context.Context, text string) error
}

// Navigator drives the robot to a target.
type Navigator interface {
	GoTo(ctx context.Context, target navigation.Target, opts navigation.GoOptions) (navigation.Outcome, error)
}

// Presence reports where the user is.
type Presence interface {
	Range() perception.DistanceBucket
	Bearing() perception.AngleBucket
}

// Exchange describes one finished exchange.
type Exchange struct {
	Kind     string
	Question string
	Answer   string
	Outcome  Outcome
}

// AskOpts configures AskOpenQuestion.
type AskOpts struct {
	// Prompt is spoken to invite a question.
	Prompt string
	// Declined is spoken when the visitor has no question.
	Declined string
	// System is the system prompt sent with the question.
	System string
	// UseCompletion sends confirmed questions to the remote model.
	UseCompletion bool
}

// TourQuestion returns the options for the question break after a tour
// stop. The stop's script is passed to the model as reference.
func TourQuestion(script string) AskOpts {
	if script == "" {
		script = "none"
	}
	return AskOpts{
		Prompt:        TourQuestionPrompt,
		Declined:      lineContinue,
		System:        tourSystemPrompt + script,
		UseCompletion: true,
	}
}

// OpenQuestion returns the options for a question asked from the screen.
func OpenQuestion() AskOpts {
	return AskOpts{
		Prompt:        OpenQuestionPrompt,
		Declined:      lineAllGood,
		System:        DefaultSystemPrompt,
		UseCompletion: true,
	}
}

// Answer is the result of AskOpenQuestion.
type Answer struct {
	Question string
	Reply    string
	Outcome  Outcome
}

// ConfirmOpts configures Confirm.
type ConfirmOpts struct {
	Question      string
	Rejected      string
	RejectedDelay time.Duration
	Confirmed     string
	NotUnderstood string
	// Ignored is forced out when the visitor leaves without answering.
	Ignored string
	// OnConfirm runs after the confirmed line.
	OnConfirm func(ctx context.Context) error
}

// Config configures a Flow.
type Config struct {
	// Conditions are armed while the flow speaks.
	Conditions interrupt.Conditions

	ThinkingMin time.Duration
	ThinkingMax time.Duration
	// ExitTimeout bounds WaitUntilUserLeaves.
	ExitTimeout time.Duration
	ArrivalTilt int

	Rand   *rand.Rand
	Waiter *wait.Waiter
	// OnChange is called whenever Listening or Thinking changes.
	OnChange func()
	// OnExchange is called when an exchange finishes.
	OnExchange func(Exchange)
	Logger     *slog.Logger
}

// DefaultConfig returns the tuned dialogue defaults.
func DefaultConfig() Config {
	return Config{
		ThinkingMin: 7 * time.Second,
		ThinkingMax: 15 * time.Second,
		ExitTimeout: 50 * time.Second,
		ArrivalTilt: 60,
	}
}

// Flow runs dialogue exchanges. Exchanges are meant to run one at a time.
type Flow struct {
	cfg      Config
	robot    robot.Robot
	speaker  Speaker
	nav      Navigator
	presence Presence
	provider completion.Provider
	waiter   *wait.Waiter
	logger   *slog.Logger

	randMu sync.Mutex

	listening atomic.Bool
	thinking  atomic.Bool
	failed    atomic.Bool
}

// New creates a Flow. provider may be nil, in which case questions go
// unanswered.
func New(r robot.Robot, speaker Speaker, nav Navigator, presence Presence, provider completion.Provider, cfg Config) *Flow {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 2))
	}
	if cfg.Waiter == nil {
		cfg.Waiter = wait.New(wait.WithSignal(r.Signal()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Flow{
		cfg:      cfg,
		robot:    r,
		speaker:  speaker,
		nav:      nav,
		presence: presence,
		provider: provider,
		waiter:   cfg.Waiter,
		logger:   cfg.Logger.With("component", "dialogue.Flow"),
	}
}

// Listening reports whether a recognition session is open.
func (f *Flow) Listening() bool { return f.listening.Load() }

// Thinking reports whether the flow is waiting on the remote model.
func (f *Flow) Thinking() bool { return f.thinking.Load() }

// CompletionFailed reports whether the last remote request failed.
func (f *Flow) CompletionFailed() bool { return f.failed.Load() }

func (f *Flow) set(flag *atomic.Bool, v bool) {
	if flag.Swap(v) != v && f.cfg.OnChange != nil {
		f.cfg.OnChange()
	}
}

func (f *Flow) finish(kind, question, answer string, outcome Outcome) {
	metrics.DialogueOutcomes.WithLabelValues(string(outcome)).Inc()
	f.logger.Info("exchange finished", "kind", kind, "outcome", outcome)
	if f.cfg.OnExchange != nil {
		f.cfg.OnExchange(Exchange{Kind: kind, Question: question, Answer: answer, Outcome: outcome})
	}
}

// say speaks text gated under the flow's conditions. Only cancellation is
// returned; speech failures are logged.
func (f *Flow) say(ctx context.Context, text string) error {
	if err := f.speaker.Speak(ctx, text, speech.Gated, f.cfg.Conditions); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("speak failed", "error", err)
	}
	return nil
}

// Listen opens a recognition session and waits for it to detach. It
// reports false when the session produced no transcript.
func (f *Flow) Listen(ctx context.Context) (string, bool, error) {
	f.set(&f.listening, true)
	defer f.set(&f.listening, false)

	before := f.robot.LastTranscript().Seq
	if err := f.robot.WakeUp(ctx); err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		f.logger.Warn("wake up failed", "error", err)
		return "", false, nil
	}
	if err := f.waiter.Tick(ctx); err != nil {
		return "", false, err
	}
	if err := f.waiter.While(ctx, f.robot.ConversationAttached); err != nil {
		return "", false, err
	}

	t := f.robot.LastTranscript()
	if t.Seq == before {
		return "", false, nil
	}
	f.logger.Debug("heard", "text", t.Text)
	return t.Text, true, nil
}

// AskOpenQuestion invites a question, confirms it by reading it back, and
// answers it.
func (f *Flow) AskOpenQuestion(ctx context.Context, opts AskOpts) (Answer, error) {
	if opts.Prompt == "" {
		opts.Prompt = OpenQuestionPrompt
	}
	if opts.Declined == "" {
		opts.Declined = lineAllGood
	}

	for {
		if err := f.say(ctx, opts.Prompt); err != nil {
			return Answer{}, err
		}
		text, heard, err := f.Listen(ctx)
		if err != nil {
			return Answer{}, err
		}

		switch {
		case !heard:
			if err := f.say(ctx, lineContinue); err != nil {
				return Answer{}, err
			}
			f.finish("question", "", "", OutcomeNoQuestion)
			return Answer{Outcome: OutcomeNoQuestion}, nil
		case strings.TrimSpace(text) == "":
			if err := f.say(ctx, lineHearingIssue); err != nil {
				return Answer{}, err
			}
			continue
		case Reject.Match(text):
			if err := f.say(ctx, opts.Declined); err != nil {
				return Answer{}, err
			}
			f.finish("question", "", "", OutcomeNoQuestion)
			return Answer{Outcome: OutcomeNoQuestion}, nil
		}

		confirmed, err := f.readBack(ctx, text)
		if err != nil {
			return Answer{}, err
		}
		if !confirmed {
			if err := f.say(ctx, lineRetry); err != nil {
				return Answer{}, err
			}
			continue
		}

		if err := f.say(ctx, lineThinking); err != nil {
			return Answer{}, err
		}
		return f.answer(ctx, opts, text)
	}
}

// readBack asks the visitor to confirm text and listens until they say yes
// or no.
func (f *Flow) readBack(ctx context.Context, text string) (bool, error) {
	if err := f.say(ctx, fmt.Sprintf(readBackFormat, text)); err != nil {
		return false, err
	}
	for {
		reply, _, err := f.Listen(ctx)
		if err != nil {
			return false, err
		}
		switch {
		case Reject.Match(reply):
			return false, nil
		case Confirm.Match(reply):
			return true, nil
		}
		if err := f.say(ctx, lineNotUnderstood); err != nil {
			return false, err
		}
	}
}

func (f *Flow) answer(ctx context.Context, opts AskOpts, question string) (Answer, error) {
	if !opts.UseCompletion || f.provider == nil {
		if err := f.say(ctx, lineUnknownQuestion); err != nil {
			return Answer{}, err
		}
		f.finish("question", question, "", OutcomeUnanswered)
		return Answer{Question: question, Outcome: OutcomeUnanswered}, nil
	}

	f.failed.Store(false)
	f.set(&f.thinking, true)
	reply, err := f.complete(ctx, opts.System, question)
	f.set(&f.thinking, false)

	if err != nil {
		if ctx.Err() != nil {
			return Answer{}, ctx.Err()
		}
		f.failed.Store(true)
		f.logger.Error("completion failed", "error", err)
		f.finish("question", question, "", OutcomeFailed)
		return Answer{Question: question, Outcome: OutcomeFailed}, fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}

	if err := f.say(ctx, reply); err != nil {
		return Answer{}, err
	}
	f.finish("question", question, reply, OutcomeAnswered)
	return Answer{Question: question, Reply: reply, Outcome: OutcomeAnswered}, nil
}

// complete requests a reply and holds it for at least the thinking delay.
func (f *Flow) complete(ctx context.Context, system, question string) (string, error) {
	type result struct {
		resp *completion.Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := f.provider.Complete(ctx, system, question)
		ch <- result{resp, err}
	}()

	if err := wait.Sleep(ctx, f.thinkingDelay()); err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		if strings.TrimSpace(r.resp.Content) == "" {
			return "", completion.ErrEmptyResponse
		}
		return r.resp.Content, nil
	}
}

// thinkingDelay draws uniformly from [ThinkingMin, ThinkingMax].
func (f *Flow) thinkingDelay() time.Duration {
	span := f.cfg.ThinkingMax - f.cfg.ThinkingMin
	if span <= 0 {
		return f.cfg.ThinkingMin
	}
	f.randMu.Lock()
	defer f.randMu.Unlock()
	return f.cfg.ThinkingMin + time.Duration(f.cfg.Rand.Int64N(int64(span)+1))
}

// Confirm asks a yes/no question for as long as the visitor is around.
func (f *Flow) Confirm(ctx context.Context, opts ConfirmOpts) (Outcome, error) {
	outcome := OutcomeIgnored
ask:
	for f.presence.Bearing() != perception.Gone {
		if err := f.say(ctx, opts.Question); err != nil {
			return "", err
		}
		for {
			text, heard, err := f.Listen(ctx)
			if err != nil {
				return "", err
			}
			switch {
			case heard && Reject.Match(text):
				if err := f.say(ctx, opts.Rejected); err != nil {
					return "", err
				}
				if err := wait.Sleep(ctx, opts.RejectedDelay); err != nil {
					return "", err
				}
				outcome = OutcomeRejected
				break ask
			case heard && Confirm.Match(text):
				if err := f.say(ctx, opts.Confirmed); err != nil {
					return "", err
				}
				if opts.OnConfirm != nil {
					if err := opts.OnConfirm(ctx); err != nil {
						return "", err
					}
				}
				outcome = OutcomeConfirmed
				break ask
			case f.presence.Range() != perception.Missing:
				if err := f.say(ctx, opts.NotUnderstood); err != nil {
					return "", err
				}
			default:
				if err := f.speaker.Force(ctx, opts.Ignored); err != nil && ctx.Err() != nil {
					return "", ctx.Err()
				}
				continue ask
			}
		}
	}
	f.finish("confirm", opts.Question, "", outcome)
	return outcome, nil
}

// WaitUntilUserLeaves thanks a visitor who steps back after being too close.
// A visitor who is not close hears notClose; a close one hears near, and
// once they step away within ExitTimeout the robot thanks them.
func (f *Flow) WaitUntilUserLeaves(ctx context.Context, notClose, near string) error {
	isClose := func() bool { return f.presence.Range() == perception.Close }
	if !isClose() {
		return f.say(ctx, notClose)
	}
	if err := f.say(ctx, near); err != nil {
		return err
	}
	left, err := f.waiter.Until(ctx, func() bool { return !isClose() }, f.cfg.ExitTimeout)
	if err != nil {
		return err
	}
	if left {
		return f.say(ctx, lineThankYou)
	}
	return nil
}

// QueryLocation offers to walk the visitor to a named location.
func (f *Flow) QueryLocation(ctx context.Context, name string) (Outcome, error) {
	question := fmt.Sprintf(locationFormat, name)
	for {
		if err := f.say(ctx, question); err != nil {
			return "", err
		}
		text, heard, err := f.Listen(ctx)
		if err != nil {
			return "", err
		}

		switch {
		case !heard || Reject.Match(text):
			if err := f.say(ctx, lineLocationDecline); err != nil {
				return "", err
			}
			f.finish("location", name, "", OutcomeRejected)
			return OutcomeRejected, nil
		case Confirm.Match(text):
			if err := f.say(ctx, lineLocationGo); err != nil {
				return "", err
			}
			return f.escort(ctx, name)
		}
		if err := f.say(ctx, lineNotUnderstood); err != nil {
			return "", err
		}
	}
}

func (f *Flow) escort(ctx context.Context, name string) (Outcome, error) {
	got, err := f.nav.GoTo(ctx, navigation.Location(name, true), navigation.GoOptions{Conditions: f.cfg.Conditions})
	if err != nil {
		return "", err
	}
	if err := f.robot.Tilt(ctx, f.cfg.ArrivalTilt); err != nil {
		f.logger.Warn("tilt failed", "error", err)
	}
	if got != navigation.OutcomeCompleted {
		f.logger.Warn("could not reach location", "location", name, "outcome", got)
		f.finish("location", name, got.String(), OutcomeFailed)
		return OutcomeFailed, nil
	}
	if err := f.say(ctx, lineLocationArrived); err != nil {
		return "", err
	}
	f.finish("location", name, got.String(), OutcomeConfirmed)
	return OutcomeConfirmed, nil
}
