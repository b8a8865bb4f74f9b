package tour

import "github.com/teslashibe/go-temi/pkg/perception"

// Observables is the flag set exposed to the screen. It is comparable so
// the orchestrator can publish only real changes.
type Observables struct {
	Talking          bool                      `json:"is_talking"`
	Going            bool                      `json:"is_going"`
	Listening        bool                      `json:"is_listening"`
	Thinking         bool                      `json:"is_thinking"`
	GreetMode        bool                      `json:"is_greet_mode"`
	IdleFaceActive   bool                      `json:"is_idle_face_active"`
	CompletionFailed bool                      `json:"completion_failed"`
	DetectionBucket  perception.DistanceBucket `json:"detection_bucket"`
	State            State                     `json:"state"`
	Mode             Mode                      `json:"mode"`
	Attempts         int                       `json:"attempts"`
	Triggered        bool                      `json:"triggered"`
	RunID            string                    `json:"run_id,omitempty"`
}
