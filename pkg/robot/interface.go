// Package robot defines the capability interface go-temi consumes from the
// robot: motion commands, speech and recognition, and telemetry.
//
// Implementations are expected to reset the matching status cell when a
// command is issued: Speak resets TTSStatus to TTSPending, GoTo and GoToPose
// reset GoalStatus to GoalPending, TurnBy resets MovementStatus to
// MovementPending, and WakeUp marks ConversationAttached until the session
// reports itself detached. Callers rely on this to wait for the completion of the
// command they just issued rather than a previous one.
package robot

import (
	"context"

	"github.com/teslashibe/go-temi/pkg/wait"
)

// MotionController drives the base and the head tilt.
type MotionController interface {
	GoTo(ctx context.Context, location string, backwards bool) error
	GoToPose(ctx context.Context, pose Pose, speed float64) error
	TurnBy(ctx context.Context, degrees int, speed float64) error
	Stop(ctx context.Context) error
	Tilt(ctx context.Context, degrees int) error
	// Follow engages the robot's constrained "stay near" behavior.
	Follow(ctx context.Context) error
}

// SpeechController speaks and opens recognition sessions.
type SpeechController interface {
	Speak(ctx context.Context, text string, opts SpeakOptions) error
	// WakeUp opens a recognition session. The session reports itself
	// through ConversationAttached and delivers its result as a Transcript.
	WakeUp(ctx context.Context) error
	FinishConversation(ctx context.Context) error
}

// Telemetry exposes the latest value of every robot status stream.
type Telemetry interface {
	TTSStatus() TTSStatus
	DetectionStatus() DetectionStatus
	Detection() Detection
	MovementStatus() MovementStatus
	GoalStatus() GoalStatus
	Lifted() bool
	Dragged() bool
	Yaw() float64
	Position() Pose
	ConversationAttached() bool
	LastTranscript() Transcript
	// Signal fires on every telemetry update.
	Signal() *wait.Signal
}

// Robot is the full capability set.
type Robot interface {
	MotionController
	SpeechController
	Telemetry
}

// Misused reports whether the robot is being lifted or dragged.
func Misused(t Telemetry) bool {
	return t.Lifted() || t.Dragged()
}
