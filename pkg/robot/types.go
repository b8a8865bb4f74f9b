package robot

// Pose is a map position with a head tilt.
type Pose struct {
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Yaw  float64 `json:"yaw" yaml:"yaw"`
	Tilt int     `json:"tilt" yaml:"tilt"`
}

// TTSStatus is the state of the most recent text-to-speech request.
type TTSStatus string

const (
	TTSPending    TTSStatus = "pending"
	TTSStarted    TTSStatus = "started"
	TTSCompleted  TTSStatus = "completed"
	TTSError      TTSStatus = "error"
	TTSNotAllowed TTSStatus = "not_allowed"
)

// Done reports whether the request has finished, successfully or not.
func (s TTSStatus) Done() bool {
	return s == TTSCompleted || s == TTSError || s == TTSNotAllowed
}

// DetectionStatus reports whether a person is currently sensed.
type DetectionStatus string

const (
	DetectionIdle     DetectionStatus = "idle"
	DetectionLost     DetectionStatus = "lost"
	DetectionDetected DetectionStatus = "detected"
)

// Detection is the latest angle and distance of the sensed person.
// Angle is in radians, positive to the robot's left. Distance is in meters.
type Detection struct {
	Angle    float64 `json:"angle"`
	Distance float64 `json:"distance"`
}

// MovementStatus tracks turn and joystick style movements.
type MovementStatus string

const (
	MovementPending     MovementStatus = "pending"
	MovementStart       MovementStatus = "start"
	MovementGoing       MovementStatus = "going"
	MovementObstacle    MovementStatus = "obstacle"
	MovementCalculating MovementStatus = "calculating"
	MovementComplete    MovementStatus = "complete"
	MovementAbort       MovementStatus = "abort"
)

// Terminal reports whether the movement has finished one way or another.
func (s MovementStatus) Terminal() bool {
	return s == MovementComplete || s == MovementAbort
}

// GoalStatus tracks navigation to a location or pose.
type GoalStatus string

const (
	GoalPending     GoalStatus = "pending"
	GoalStart       GoalStatus = "start"
	GoalCalculating GoalStatus = "calculating"
	GoalGoing       GoalStatus = "going"
	GoalReposing    GoalStatus = "reposing"
	GoalComplete    GoalStatus = "complete"
	GoalAbort       GoalStatus = "abort"
)

// Terminal reports whether the goal has completed or aborted.
func (s GoalStatus) Terminal() bool {
	return s == GoalComplete || s == GoalAbort
}

// SpeakOptions tunes a single speech request.
type SpeakOptions struct {
	BufferMS int  `json:"buffer_ms"`
	ShowFace bool `json:"show_face"`
}

// DefaultSpeakOptions mirrors the robot app defaults.
func DefaultSpeakOptions() SpeakOptions {
	return SpeakOptions{BufferMS: 100, ShowFace: true}
}

// Transcript is a final recognition result. Seq increases with every result
// so a listener can tell a fresh transcript from a stale one.
type Transcript struct {
	Text string `json:"text"`
	Seq  uint64 `json:"seq"`
}
