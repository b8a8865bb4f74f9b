package dialogue

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-temi/pkg/completion"
	"github.com/teslashibe/go-temi/pkg/interrupt"
	"github.com/teslashibe/go-temi/pkg/navigation"
	"github.com/teslashibe/go-temi/pkg/perception"
	"github.com/teslashibe/go-temi/pkg/robot"
	"github.com/teslashibe/go-temi/pkg/speech"
	"github.com/teslashibe/go-temi/pkg/wait"
)

func TestMatchPhrase(t *testing.T) {
	tests := []struct {
		transcript, phrase string
		want               bool
	}{
		{"yes sure thing", "Sure", true},
		{"I am definitely not able", "not able", true},
		{"able not to", "not able", false},
		{"Count me in!", "count me in", true},
		{"count on me to be in", "count me in", true},
		{"I know", "No", false},
		{"nope", "No", false},
		{"I can't.", "Can't", true},
		{"I’m ready", "I'm ready", true},
		{"", "yes", false},
		{"yes", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchPhrase(tt.transcript, tt.phrase), "%q in %q", tt.phrase, tt.transcript)
	}
}

func TestLexicons(t *testing.T) {
	assert.True(t, MatchAny("yes sure thing", []string{"Sure"}))
	assert.False(t, MatchAny("maybe later", []string{"Sure", "Yes"}))
	assert.False(t, MatchAny("   ", Confirm))

	for _, s := range []string{"Yes please", "Okay!", "sounds good to me", "let's go"} {
		assert.True(t, Confirm.Match(s), s)
		assert.False(t, Reject.Match(s), s)
	}
	for _, s := range []string{"no", "No thanks.", "I'm busy right now", "sorry"} {
		assert.True(t, Reject.Match(s), s)
	}
	assert.False(t, Confirm.Match("banana"))
	assert.False(t, Reject.Match("banana"))
}

func TestExtractName(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"My name is John", "John", true},
		{"i am Bob", "Bob", true},
		{"It's Tom", "Tom", true},
		{"This is Sarah speaking", "Sarah", true},
		{"call me Ishmael", "Ishmael", true},
		{"小明", "小明", true},
		{" 小明 ", "小明", true},
		{"ok", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractName(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

type rig struct {
	mock      *robot.Mock
	tracker   *perception.Tracker
	provider  *completion.Mock
	flow      *Flow
	mu        sync.Mutex
	exchanges []Exchange
}

func newRig(t *testing.T, adjust func(*Config)) *rig {
	t.Helper()
	mock := robot.NewMock()
	waiter := wait.New(
		wait.WithTick(time.Millisecond),
		wait.WithPoll(time.Millisecond),
		wait.WithSignal(mock.Signal()),
	)
	tracker := perception.NewTracker(mock, perception.DefaultConfig())
	monitor, err := interrupt.New(mock, tracker, interrupt.WithWaiter(waiter))
	require.NoError(t, err)

	scfg := speech.DefaultConfig()
	scfg.Waiter = waiter
	arbiter := speech.New(mock, monitor, scfg)

	dcfg := navigation.DefaultConfig()
	dcfg.Waiter = waiter
	driver := navigation.NewDriver(mock, monitor, arbiter, dcfg)

	r := &rig{mock: mock, tracker: tracker, provider: completion.NewMock()}

	cfg := DefaultConfig()
	cfg.ThinkingMin = time.Millisecond
	cfg.ThinkingMax = 3 * time.Millisecond
	cfg.ExitTimeout = time.Second
	cfg.Rand = rand.New(rand.NewPCG(5, 6))
	cfg.Waiter = waiter
	cfg.OnExchange = func(e Exchange) {
		r.mu.Lock()
		r.exchanges = append(r.exchanges, e)
		r.mu.Unlock()
	}
	if adjust != nil {
		adjust(&cfg)
	}
	r.flow = New(mock, arbiter, driver, tracker, r.provider, cfg)
	return r
}

func (r *rig) spoken(text string) int {
	n := 0
	for _, s := range r.mock.Spoken() {
		if s == text {
			n++
		}
	}
	return n
}

func (r *rig) lastExchange() Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.exchanges) == 0 {
		return Exchange{}
	}
	return r.exchanges[len(r.exchanges)-1]
}

func TestAskOpenQuestionAnswered(t *testing.T) {
	r := newRig(t, nil)
	r.mock.QueueTranscripts("what is the tallest building", "yes")

	ans, err := r.flow.AskOpenQuestion(context.Background(), OpenQuestion())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, ans.Outcome)
	assert.Equal(t, "what is the tallest building", ans.Question)
	assert.Equal(t, "Mock response", ans.Reply)

	spoken := r.mock.Spoken()
	assert.Equal(t, "What is your Question?", spoken[0])
	assert.Contains(t, spoken, "Did you say: what is the tallest building?")
	assert.Contains(t, spoken, "Great, let me think for a moment.")
	assert.Equal(t, "Mock response", spoken[len(spoken)-1])

	call := r.provider.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, DefaultSystemPrompt, call.System)
	assert.Equal(t, "what is the tallest building", call.User)

	assert.False(t, r.flow.Thinking())
	assert.False(t, r.flow.Listening())
	assert.False(t, r.flow.CompletionFailed())
	assert.Equal(t, OutcomeAnswered, r.lastExchange().Outcome)
}

func TestAskOpenQuestionDeclined(t *testing.T) {
	r := newRig(t, nil)
	r.mock.QueueTranscripts("no")

	ans, err := r.flow.AskOpenQuestion(context.Background(), OpenQuestion())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoQuestion, ans.Outcome)
	assert.Equal(t, 1, r.spoken("All good"))
	assert.Equal(t, 0, r.provider.CallCount("Complete"))
}

func TestAskOpenQuestionNothingHeard(t *testing.T) {
	r := newRig(t, nil)

	ans, err := r.flow.AskOpenQuestion(context.Background(), TourQuestion(""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoQuestion, ans.Outcome)
	assert.Equal(t, []string{"Does anyone have a question?", "All good, I will continue on."}, r.mock.Spoken())
}

func TestAskOpenQuestionBlankTranscriptReprompts(t *testing.T) {
	r := newRig(t, nil)
	r.mock.QueueTranscripts(" ", "no")

	ans, err := r.flow.AskOpenQuestion(context.Background(), OpenQuestion())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoQuestion, ans.Outcome)
	assert.Equal(t, 1, r.spoken("Sorry, I had an issue with hearing you."))
	assert.Equal(t, 2, r.spoken("What is your Question?"))
}

func TestAskOpenQuestionReadBackRejected(t *testing.T) {
	r := newRig(t, nil)
	r.mock.QueueTranscripts("where is the lab", "no", "where is the lab", "yes")

	ans, err := r.flow.AskOpenQuestion(context.Background(), OpenQuestion())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, ans.Outcome)
	assert.Equal(t, 1, r.spoken("Sorry, let's try this again."))
	assert.Equal(t, 2, r.spoken("Did you say: where is the lab?"))
	assert.Equal(t, 1, r.provider.CallCount("Complete"))
}

func TestAskOpenQuestionNotUnderstood(t *testing.T) {
	r := newRig(t, nil)
	r.mock.QueueTranscripts("where is the lab", "banana", "yes")

	ans, err := r.flow.AskOpenQuestion(context.Background(), OpenQuestion())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, ans.Outcome)
	assert.Equal(t, 1, r.spoken("Sorry, I did not understand you."))
	assert.Equal(t, 1, r.spoken("Did you say: where is the lab?"), "read-back is not repeated")
}

func TestAskOpenQuestionWithoutCompletion(t *testing.T) {
	r := newRig(t, nil)
	r.mock.QueueTranscripts("where is the lab", "yes")

	opts := OpenQuestion()
	opts.UseCompletion = false
	ans, err := r.flow.AskOpenQuestion(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnanswered, ans.Outcome)
	assert.Equal(t, 1, r.spoken("Sorry, I do not actually know that question."))
	assert.Equal(t, 0, r.provider.CallCount("Complete"))
}

func TestAskOpenQuestionCompletionFailure(t *testing.T) {
	r := newRig(t, nil)
	r.flow.provider = completion.WithError(errors.New("503"))
	r.mock.QueueTranscripts("where is the lab", "yes")

	ans, err := r.flow.AskOpenQuestion(context.Background(), OpenQuestion())
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.Equal(t, OutcomeFailed, ans.Outcome)
	assert.True(t, r.flow.CompletionFailed())
	assert.False(t, r.flow.Thinking())

	spoken := r.mock.Spoken()
	assert.Equal(t, "Great, let me think for a moment.", spoken[len(spoken)-1], "nothing spoken after the failure")
}

func TestTourQuestionCarriesScript(t *testing.T) {
	opts := TourQuestion("This is the lobby.")
	assert.True(t, strings.HasSuffix(opts.System, "This is the lobby."))
	assert.Equal(t, TourQuestionPrompt, opts.Prompt)
	assert.True(t, opts.UseCompletion)

	assert.True(t, strings.HasSuffix(TourQuestion("").System, "none"))
}

func TestThinkingDelayBounds(t *testing.T) {
	r := newRig(t, func(c *Config) {
		c.ThinkingMin = 7 * time.Second
		c.ThinkingMax = 15 * time.Second
	})
	for i := 0; i < 1000; i++ {
		d := r.flow.thinkingDelay()
		require.GreaterOrEqual(t, d, 7*time.Second)
		require.LessOrEqual(t, d, 15*time.Second)
	}

	r.flow.cfg.ThinkingMax = time.Second
	assert.Equal(t, 7*time.Second, r.flow.thinkingDelay())
}

func TestListenReportsListening(t *testing.T) {
	r := newRig(t, nil)
	var during bool
	r.mock.WakeUpFunc = func(ctx context.Context) error {
		during = r.flow.Listening()
		r.mock.SetConversationAttached(true)
		go func() {
			time.Sleep(5 * time.Millisecond)
			r.mock.PushTranscript("hello there")
			r.mock.SetConversationAttached(false)
		}()
		return nil
	}

	text, heard, err := r.flow.Listen(context.Background())
	require.NoError(t, err)
	assert.True(t, heard)
	assert.Equal(t, "hello there", text)
	assert.True(t, during)
	assert.False(t, r.flow.Listening())
}

func TestListenSessionAttachesLate(t *testing.T) {
	r := newRig(t, nil)
	r.mock.WakeUpFunc = func(ctx context.Context) error {
		go func() {
			time.Sleep(20 * time.Millisecond)
			r.mock.SetConversationAttached(true)
			time.Sleep(20 * time.Millisecond)
			r.mock.PushTranscript("where is the cafe")
			r.mock.SetConversationAttached(false)
		}()
		return nil
	}

	text, heard, err := r.flow.Listen(context.Background())
	require.NoError(t, err)
	assert.True(t, heard)
	assert.Equal(t, "where is the cafe", text)
}

func TestListenWakeUpFailure(t *testing.T) {
	r := newRig(t, nil)
	r.mock.WakeUpFunc = func(ctx context.Context) error { return errors.New("busy") }

	_, heard, err := r.flow.Listen(context.Background())
	require.NoError(t, err)
	assert.False(t, heard)
}

func confirmOpts(confirmed *bool) ConfirmOpts {
	return ConfirmOpts{
		Question:      "Would you like to join?",
		Rejected:      "Maybe next time.",
		RejectedDelay: time.Millisecond,
		Confirmed:     "Wonderful.",
		NotUnderstood: "Sorry, I did not understand you.",
		Ignored:       "Goodbye then.",
		OnConfirm: func(ctx context.Context) error {
			*confirmed = true
			return nil
		},
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name        string
		transcripts []string
		want        Outcome
		wantLine    string
	}{
		{"yes", []string{"sure"}, OutcomeConfirmed, "Wonderful."},
		{"no", []string{"no thanks"}, OutcomeRejected, "Maybe next time."},
		{"unclear then yes", []string{"banana", "okay"}, OutcomeConfirmed, "Sorry, I did not understand you."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, nil)
			r.tracker.Step(perception.Sample{Detected: true, Distance: 2.0})
			r.mock.QueueTranscripts(tt.transcripts...)

			confirmed := false
			got, err := r.flow.Confirm(context.Background(), confirmOpts(&confirmed))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want == OutcomeConfirmed, confirmed)
			assert.Contains(t, r.mock.Spoken(), tt.wantLine)
		})
	}
}

func TestConfirmNobodyThere(t *testing.T) {
	r := newRig(t, nil)
	confirmed := false

	got, err := r.flow.Confirm(context.Background(), confirmOpts(&confirmed))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, got)
	assert.Empty(t, r.mock.Spoken())
}

func TestConfirmVisitorWalksAway(t *testing.T) {
	r := newRig(t, nil)
	r.tracker.Step(perception.Sample{Detected: true, Distance: 2.0})
	r.mock.WakeUpFunc = func(ctx context.Context) error {
		r.tracker.Step(perception.Sample{Detected: false})
		r.mock.SetConversationAttached(false)
		return nil
	}
	confirmed := false

	got, err := r.flow.Confirm(context.Background(), confirmOpts(&confirmed))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, got)
	assert.Equal(t, []string{"Would you like to join?", "Goodbye then."}, r.mock.Spoken())
}

func TestWaitUntilUserLeaves(t *testing.T) {
	t.Run("not close", func(t *testing.T) {
		r := newRig(t, nil)
		r.tracker.Step(perception.Sample{Detected: true, Distance: 2.0})

		require.NoError(t, r.flow.WaitUntilUserLeaves(context.Background(), "Enjoy.", "Please step back."))
		assert.Equal(t, []string{"Enjoy."}, r.mock.Spoken())
	})

	t.Run("steps back", func(t *testing.T) {
		r := newRig(t, nil)
		r.tracker.Step(perception.Sample{Detected: true, Distance: 0.5})
		go func() {
			time.Sleep(10 * time.Millisecond)
			r.tracker.Step(perception.Sample{Detected: true, Distance: 2.0})
		}()

		require.NoError(t, r.flow.WaitUntilUserLeaves(context.Background(), "Enjoy.", "Please step back."))
		assert.Equal(t, []string{"Please step back.", "Thank you"}, r.mock.Spoken())
	})

	t.Run("stays close", func(t *testing.T) {
		r := newRig(t, func(c *Config) { c.ExitTimeout = 20 * time.Millisecond })
		r.tracker.Step(perception.Sample{Detected: true, Distance: 0.5})

		require.NoError(t, r.flow.WaitUntilUserLeaves(context.Background(), "Enjoy.", "Please step back."))
		assert.Equal(t, []string{"Please step back."}, r.mock.Spoken())
	})
}

func TestQueryLocation(t *testing.T) {
	r := newRig(t, nil)
	r.mock.QueueTranscripts("hmm", "yes")

	got, err := r.flow.QueryLocation(context.Background(), "robotics lab")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, got)

	calls := r.mock.CallsTo("GoTo")
	require.Len(t, calls, 1)
	assert.Equal(t, "robotics lab", calls[0].Args[0])
	assert.Equal(t, true, calls[0].Args[1])

	tilts := r.mock.CallsTo("Tilt")
	require.NotEmpty(t, tilts)
	assert.Equal(t, 60, tilts[len(tilts)-1].Args[0])

	spoken := r.mock.Spoken()
	assert.Equal(t, "You have selected robotics lab.", spoken[0])
	assert.Equal(t, 1, r.spoken("Sorry, I did not understand you."))
	assert.Equal(t, 1, r.spoken("Ok, I will show you to it now."))
	assert.Equal(t, lineLocationArrived, spoken[len(spoken)-1])

	e := r.lastExchange()
	assert.Equal(t, "location", e.Kind)
	assert.Equal(t, "robotics lab", e.Question)
	assert.Equal(t, OutcomeConfirmed, e.Outcome)
}

func TestQueryLocationDeclined(t *testing.T) {
	for _, transcripts := range [][]string{{"no"}, nil} {
		r := newRig(t, nil)
		r.mock.QueueTranscripts(transcripts...)

		got, err := r.flow.QueryLocation(context.Background(), "cafe")
		require.NoError(t, err)
		assert.Equal(t, OutcomeRejected, got)
		assert.Equal(t, 0, r.mock.CallCount("GoTo"))
		assert.True(t, slices.Contains(r.mock.Spoken(), lineLocationDecline))
	}
}

func TestQueryLocationUnreachable(t *testing.T) {
	r := newRig(t, nil)
	r.mock.QueueTranscripts("yes")
	r.mock.GoToFunc = func(ctx context.Context, location string, backwards bool) error {
		r.mock.SetGoalStatus(robot.GoalAbort)
		return nil
	}

	got, err := r.flow.QueryLocation(context.Background(), "cafe")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, got)
	assert.Equal(t, 0, r.spoken(lineLocationArrived))
}

func TestDialogueCancelled(t *testing.T) {
	r := newRig(t, nil)
	r.mock.WakeUpFunc = func(ctx context.Context) error {
		r.mock.SetConversationAttached(true)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.flow.AskOpenQuestion(ctx, OpenQuestion())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
