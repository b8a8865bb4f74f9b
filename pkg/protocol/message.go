// Package protocol defines the WebSocket message types exchanged between the
// robot app and the go-temi server.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Robot → Server telemetry
	TypeTTS          MessageType = "tts"          // Text-to-speech status
	TypeDetection    MessageType = "detection"    // Person detection status and data
	TypeMovement     MessageType = "movement"     // Turn/joystick movement status
	TypeGoal         MessageType = "goal"         // Navigation goal status
	TypeMisuse       MessageType = "misuse"       // Lifted / dragged
	TypePosition     MessageType = "position"     // Map position and yaw
	TypeConversation MessageType = "conversation" // Recognition session attached/detached
	TypeAskResult    MessageType = "ask_result"   // Final recognition transcript

	// Server → Robot commands
	TypeGoTo               MessageType = "goto"
	TypeGoToPose           MessageType = "goto_pose"
	TypeTurn               MessageType = "turn"
	TypeStop               MessageType = "stop"
	TypeTilt               MessageType = "tilt"
	TypeFollow             MessageType = "follow"
	TypeSpeak              MessageType = "speak"
	TypeWakeUp             MessageType = "wake_up"
	TypeFinishConversation MessageType = "finish_conversation"

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Robot → Server Message Types
// =============================================================================

// StatusData carries a single status string (tts, movement, goal).
type StatusData struct {
	Status string `json:"status"`
}

// DetectionData carries the detection status and, when detected, the
// person's angle (radians, + = left) and distance (meters).
type DetectionData struct {
	Status   string  `json:"status"`
	Angle    float64 `json:"angle"`
	Distance float64 `json:"distance"`
}

// MisuseData reports external forces on the robot.
type MisuseData struct {
	Lifted  bool `json:"lifted"`
	Dragged bool `json:"dragged"`
}

// PositionData is the robot's map position.
type PositionData struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Yaw  float64 `json:"yaw"`
	Tilt int     `json:"tilt"`
}

// ConversationData reports whether a recognition session is attached.
type ConversationData struct {
	Attached bool `json:"attached"`
}

// AskResultData is a final recognition transcript.
type AskResultData struct {
	Text string `json:"text"`
}

// =============================================================================
// Server → Robot Message Types
// =============================================================================

// GoToCommand navigates to a named location.
type GoToCommand struct {
	Location  string `json:"location"`
	Backwards bool   `json:"backwards,omitempty"`
}

// GoToPoseCommand navigates to an explicit pose.
type GoToPoseCommand struct {
	Pose  PositionData `json:"pose"`
	Speed float64      `json:"speed"`
}

// TurnCommand turns the body by a number of degrees.
type TurnCommand struct {
	Degrees int     `json:"degrees"`
	Speed   float64 `json:"speed"`
}

// TiltCommand tilts the head to an absolute angle in degrees.
type TiltCommand struct {
	Degrees int `json:"degrees"`
}

// SpeakCommand requests text-to-speech on the robot.
type SpeakCommand struct {
	Text     string `json:"text"`
	BufferMS int    `json:"buffer_ms,omitempty"`
	ShowFace bool   `json:"show_face"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
