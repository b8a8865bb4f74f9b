package robot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStateDefaults(t *testing.T) {
	s := NewState()
	assert.Equal(t, TTSCompleted, s.TTSStatus())
	assert.Equal(t, DetectionIdle, s.DetectionStatus())
	assert.True(t, s.MovementStatus().Terminal())
	assert.True(t, s.GoalStatus().Terminal())
	assert.False(t, Misused(s))
}

func TestStateWriteNotifiesSignal(t *testing.T) {
	s := NewState()
	changed := s.Signal().Changed()

	s.SetLifted(true)

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("write did not notify the signal")
	}
	assert.True(t, Misused(s))
	assert.False(t, s.Snapshot().LastUpdate.IsZero())
}

func TestPushTranscriptBumpsSeq(t *testing.T) {
	s := NewState()
	s.PushTranscript("hello")
	s.PushTranscript("again")

	tr := s.LastTranscript()
	assert.Equal(t, "again", tr.Text)
	assert.Equal(t, uint64(2), tr.Seq)
}

func TestSetPositionUpdatesYaw(t *testing.T) {
	s := NewState()
	s.SetPosition(Pose{X: 1, Y: 2, Yaw: 0.5})
	assert.InDelta(t, 0.5, s.Yaw(), 1e-9)
}

func TestTerminalStatuses(t *testing.T) {
	tests := []struct {
		goal GoalStatus
		want bool
	}{
		{GoalPending, false},
		{GoalGoing, false},
		{GoalReposing, false},
		{GoalComplete, true},
		{GoalAbort, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.goal), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.goal.Terminal())
		})
	}
	assert.False(t, MovementObstacle.Terminal())
	assert.True(t, MovementAbort.Terminal())
}

func TestMockDefaultsComplete(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	require.NoError(t, m.Speak(ctx, "hi", DefaultSpeakOptions()))
	assert.Equal(t, TTSCompleted, m.TTSStatus())

	require.NoError(t, m.GoTo(ctx, "lobby", false))
	assert.Equal(t, GoalComplete, m.GoalStatus())

	pose := Pose{X: 1, Y: -2, Yaw: 0.3, Tilt: 20}
	require.NoError(t, m.GoToPose(ctx, pose, 0.5))
	assert.Equal(t, pose, m.Position())

	require.NoError(t, m.TurnBy(ctx, 45, 1))
	assert.Equal(t, MovementComplete, m.MovementStatus())

	assert.Equal(t, 1, m.CallCount("Speak"))
	assert.Equal(t, []string{"hi"}, m.Spoken())
	assert.Len(t, m.Calls(), 4)
}

func TestMockStopAbortsOutstandingGoal(t *testing.T) {
	m := NewMock()
	m.GoToFunc = func(ctx context.Context, location string, backwards bool) error {
		m.SetGoalStatus(GoalGoing)
		return nil
	}

	require.NoError(t, m.GoTo(context.Background(), "lobby", true))
	assert.Equal(t, GoalGoing, m.GoalStatus())

	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, GoalAbort, m.GoalStatus())

	calls := m.CallsTo("GoTo")
	require.Len(t, calls, 1)
	assert.Equal(t, []any{"lobby", true}, calls[0].Args)
}

func TestMockWakeUpDeliversQueuedTranscripts(t *testing.T) {
	m := NewMock()
	m.QueueTranscripts("yes", "no")
	ctx := context.Background()

	require.NoError(t, m.WakeUp(ctx))
	assert.Equal(t, "yes", m.LastTranscript().Text)
	assert.False(t, m.ConversationAttached())

	require.NoError(t, m.WakeUp(ctx))
	assert.Equal(t, "no", m.LastTranscript().Text)

	before := m.LastTranscript().Seq
	require.NoError(t, m.WakeUp(ctx))
	assert.Equal(t, before, m.LastTranscript().Seq, "empty queue delivers nothing")

	m.Reset()
	assert.Empty(t, m.Calls())
}
