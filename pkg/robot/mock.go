package robot

import (
	"context"
	"sync"
	"time"
)

// Mock implements Robot for testing. Telemetry lives in the embedded State,
// so tests drive the robot's view of the world with the State setters.
//
// Unless overridden, commands complete instantly: Speak ends in TTSCompleted,
// GoTo and GoToPose end in GoalComplete, TurnBy ends in MovementComplete,
// and WakeUp delivers the next queued transcript.
type Mock struct {
	*State

	// SpeakFunc is called when Speak is invoked.
	SpeakFunc func(ctx context.Context, text string, opts SpeakOptions) error

	// GoToFunc is called when GoTo is invoked.
	GoToFunc func(ctx context.Context, location string, backwards bool) error

	// GoToPoseFunc is called when GoToPose is invoked.
	GoToPoseFunc func(ctx context.Context, pose Pose, speed float64) error

	// TurnByFunc is called when TurnBy is invoked.
	TurnByFunc func(ctx context.Context, degrees int, speed float64) error

	// StopFunc is called when Stop is invoked.
	StopFunc func(ctx context.Context) error

	// TiltFunc is called when Tilt is invoked.
	TiltFunc func(ctx context.Context, degrees int) error

	// FollowFunc is called when Follow is invoked.
	FollowFunc func(ctx context.Context) error

	// WakeUpFunc is called when WakeUp is invoked.
	WakeUpFunc func(ctx context.Context) error

	mu          sync.Mutex
	calls       []MockCall
	transcripts []string
}

// MockCall records a command invocation.
type MockCall struct {
	Method string
	Args   []any
	Time   time.Time
}

// NewMock creates a mock robot whose commands complete immediately.
func NewMock() *Mock {
	m := &Mock{State: NewState()}
	m.SpeakFunc = func(ctx context.Context, text string, opts SpeakOptions) error {
		m.SetTTSStatus(TTSStarted)
		m.SetTTSStatus(TTSCompleted)
		return nil
	}
	m.GoToFunc = func(ctx context.Context, location string, backwards bool) error {
		m.SetGoalStatus(GoalComplete)
		return nil
	}
	m.GoToPoseFunc = func(ctx context.Context, pose Pose, speed float64) error {
		m.SetPosition(pose)
		m.SetGoalStatus(GoalComplete)
		return nil
	}
	m.TurnByFunc = func(ctx context.Context, degrees int, speed float64) error {
		m.SetMovementStatus(MovementComplete)
		return nil
	}
	m.StopFunc = func(ctx context.Context) error {
		if !m.GoalStatus().Terminal() {
			m.SetGoalStatus(GoalAbort)
		}
		if !m.MovementStatus().Terminal() {
			m.SetMovementStatus(MovementAbort)
		}
		return nil
	}
	m.WakeUpFunc = func(ctx context.Context) error {
		m.SetConversationAttached(true)
		if text, ok := m.nextTranscript(); ok {
			m.PushTranscript(text)
		}
		m.SetConversationAttached(false)
		return nil
	}
	return m
}

// QueueTranscripts appends transcripts that successive WakeUp calls deliver
// in order. Once the queue is empty, WakeUp delivers nothing.
func (m *Mock) QueueTranscripts(texts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts = append(m.transcripts, texts...)
}

func (m *Mock) nextTranscript() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.transcripts) == 0 {
		return "", false
	}
	text := m.transcripts[0]
	m.transcripts = m.transcripts[1:]
	return text, true
}

// Speak resets the TTS status and calls SpeakFunc.
func (m *Mock) Speak(ctx context.Context, text string, opts SpeakOptions) error {
	m.record("Speak", text, opts)
	m.SetTTSStatus(TTSPending)
	if m.SpeakFunc != nil {
		return m.SpeakFunc(ctx, text, opts)
	}
	return nil
}

// GoTo resets the goal status and calls GoToFunc.
func (m *Mock) GoTo(ctx context.Context, location string, backwards bool) error {
	m.record("GoTo", location, backwards)
	m.SetGoalStatus(GoalPending)
	if m.GoToFunc != nil {
		return m.GoToFunc(ctx, location, backwards)
	}
	return nil
}

// GoToPose resets the goal status and calls GoToPoseFunc.
func (m *Mock) GoToPose(ctx context.Context, pose Pose, speed float64) error {
	m.record("GoToPose", pose, speed)
	m.SetGoalStatus(GoalPending)
	if m.GoToPoseFunc != nil {
		return m.GoToPoseFunc(ctx, pose, speed)
	}
	return nil
}

// TurnBy resets the movement status and calls TurnByFunc.
func (m *Mock) TurnBy(ctx context.Context, degrees int, speed float64) error {
	m.record("TurnBy", degrees, speed)
	m.SetMovementStatus(MovementPending)
	if m.TurnByFunc != nil {
		return m.TurnByFunc(ctx, degrees, speed)
	}
	return nil
}

// Stop calls StopFunc.
func (m *Mock) Stop(ctx context.Context) error {
	m.record("Stop")
	if m.StopFunc != nil {
		return m.StopFunc(ctx)
	}
	return nil
}

// Tilt calls TiltFunc.
func (m *Mock) Tilt(ctx context.Context, degrees int) error {
	m.record("Tilt", degrees)
	if m.TiltFunc != nil {
		return m.TiltFunc(ctx, degrees)
	}
	return nil
}

// Follow calls FollowFunc.
func (m *Mock) Follow(ctx context.Context) error {
	m.record("Follow")
	if m.FollowFunc != nil {
		return m.FollowFunc(ctx)
	}
	return nil
}

// WakeUp marks the session attached and calls WakeUpFunc. Without a
// WakeUpFunc the session detaches straight away.
func (m *Mock) WakeUp(ctx context.Context) error {
	m.record("WakeUp")
	m.SetConversationAttached(true)
	if m.WakeUpFunc == nil {
		m.SetConversationAttached(false)
		return nil
	}
	if err := m.WakeUpFunc(ctx); err != nil {
		m.SetConversationAttached(false)
		return err
	}
	return nil
}

// FinishConversation detaches any open recognition session.
func (m *Mock) FinishConversation(ctx context.Context) error {
	m.record("FinishConversation")
	m.SetConversationAttached(false)
	return nil
}

func (m *Mock) record(method string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Args: args, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of calls to a method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// CallsTo returns the recorded calls to a method, in order.
func (m *Mock) CallsTo(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []MockCall
	for _, c := range m.calls {
		if c.Method == method {
			result = append(result, c)
		}
	}
	return result
}

// Spoken returns the text of every Speak call, in order.
func (m *Mock) Spoken() []string {
	var texts []string
	for _, c := range m.CallsTo("Speak") {
		texts = append(texts, c.Args[0].(string))
	}
	return texts
}

// Reset clears recorded calls and queued transcripts.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.transcripts = nil
}

var _ Robot = (*Mock)(nil)
