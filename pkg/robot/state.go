package robot

import (
	"sync"
	"time"

	"github.com/teslashibe/go-temi/pkg/wait"
)

// State stores the latest value of each telemetry stream. Writers replace
// values; readers see whatever was written last. Every write fires the
// attached Signal.
type State struct {
	mu sync.RWMutex

	tts        TTSStatus
	detection  DetectionStatus
	data       Detection
	movement   MovementStatus
	goal       GoalStatus
	lifted     bool
	dragged    bool
	yaw        float64
	position   Pose
	attached   bool
	transcript Transcript
	lastUpdate time.Time
	signal     *wait.Signal
}

// Snapshot is a point-in-time copy of State for serialization.
type Snapshot struct {
	TTS                  TTSStatus       `json:"tts"`
	DetectionStatus      DetectionStatus `json:"detection_status"`
	Detection            Detection       `json:"detection"`
	Movement             MovementStatus  `json:"movement"`
	Goal                 GoalStatus      `json:"goal"`
	Lifted               bool            `json:"lifted"`
	Dragged              bool            `json:"dragged"`
	Yaw                  float64         `json:"yaw"`
	Position             Pose            `json:"position"`
	ConversationAttached bool            `json:"conversation_attached"`
	LastUpdate           time.Time       `json:"last_update"`
}

// NewState creates a State in its idle configuration.
func NewState() *State {
	return &State{
		tts:       TTSCompleted,
		detection: DetectionIdle,
		movement:  MovementComplete,
		goal:      GoalComplete,
		signal:    wait.NewSignal(),
	}
}

func (s *State) update(fn func()) {
	s.mu.Lock()
	fn()
	s.lastUpdate = time.Now()
	s.mu.Unlock()
	s.signal.Notify()
}

// Signal fires on every write.
func (s *State) Signal() *wait.Signal { return s.signal }

// TTSStatus returns the latest TTS status.
func (s *State) TTSStatus() TTSStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tts
}

// SetTTSStatus records a TTS status update.
func (s *State) SetTTSStatus(v TTSStatus) { s.update(func() { s.tts = v }) }

// DetectionStatus returns the latest detection status.
func (s *State) DetectionStatus() DetectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detection
}

// SetDetectionStatus records a detection status update.
func (s *State) SetDetectionStatus(v DetectionStatus) { s.update(func() { s.detection = v }) }

// Detection returns the latest detection data.
func (s *State) Detection() Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// SetDetection records detection data.
func (s *State) SetDetection(v Detection) { s.update(func() { s.data = v }) }

// MovementStatus returns the latest movement status.
func (s *State) MovementStatus() MovementStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movement
}

// SetMovementStatus records a movement status update.
func (s *State) SetMovementStatus(v MovementStatus) { s.update(func() { s.movement = v }) }

// GoalStatus returns the latest navigation goal status.
func (s *State) GoalStatus() GoalStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.goal
}

// SetGoalStatus records a navigation goal status update.
func (s *State) SetGoalStatus(v GoalStatus) { s.update(func() { s.goal = v }) }

// Lifted reports whether the robot is lifted.
func (s *State) Lifted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lifted
}

// SetLifted records the lifted flag.
func (s *State) SetLifted(v bool) { s.update(func() { s.lifted = v }) }

// Dragged reports whether the robot is being dragged.
func (s *State) Dragged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dragged
}

// SetDragged records the dragged flag.
func (s *State) SetDragged(v bool) { s.update(func() { s.dragged = v }) }

// Yaw returns the current body yaw in radians.
func (s *State) Yaw() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.yaw
}

// SetYaw records the body yaw.
func (s *State) SetYaw(v float64) { s.update(func() { s.yaw = v }) }

// Position returns the current map position.
func (s *State) Position() Pose {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

// SetPosition records the map position. Yaw follows the position's yaw.
func (s *State) SetPosition(v Pose) {
	s.update(func() {
		s.position = v
		s.yaw = v.Yaw
	})
}

// ConversationAttached reports whether a recognition session is open.
func (s *State) ConversationAttached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attached
}

// SetConversationAttached records the recognition session state.
func (s *State) SetConversationAttached(v bool) { s.update(func() { s.attached = v }) }

// LastTranscript returns the most recent final transcript.
func (s *State) LastTranscript() Transcript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript
}

// PushTranscript records a final transcript and bumps its sequence.
func (s *State) PushTranscript(text string) {
	s.update(func() {
		s.transcript = Transcript{Text: text, Seq: s.transcript.Seq + 1}
	})
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		TTS:                  s.tts,
		DetectionStatus:      s.detection,
		Detection:            s.data,
		Movement:             s.movement,
		Goal:                 s.goal,
		Lifted:               s.lifted,
		Dragged:              s.dragged,
		Yaw:                  s.yaw,
		Position:             s.position,
		ConversationAttached: s.attached,
		LastUpdate:           s.lastUpdate,
	}
}

var _ Telemetry = (*State)(nil)
