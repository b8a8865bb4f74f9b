package protocol

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewStatusMessage creates a tts, movement or goal status message
func NewStatusMessage(msgType MessageType, status string) (*Message, error) {
	return NewMessage(msgType, StatusData{Status: status})
}

// NewDetectionMessage creates a detection message
func NewDetectionMessage(status string, angle, distance float64) (*Message, error) {
	return NewMessage(TypeDetection, DetectionData{
		Status:   status,
		Angle:    angle,
		Distance: distance,
	})
}

// NewGoToMessage creates a named-location navigation command
func NewGoToMessage(location string, backwards bool) (*Message, error) {
	return NewMessage(TypeGoTo, GoToCommand{Location: location, Backwards: backwards})
}

// NewGoToPoseMessage creates a pose navigation command
func NewGoToPoseMessage(pose PositionData, speed float64) (*Message, error) {
	return NewMessage(TypeGoToPose, GoToPoseCommand{Pose: pose, Speed: speed})
}

// NewTurnMessage creates a turn command
func NewTurnMessage(degrees int, speed float64) (*Message, error) {
	return NewMessage(TypeTurn, TurnCommand{Degrees: degrees, Speed: speed})
}

// NewTiltMessage creates a head tilt command
func NewTiltMessage(degrees int) (*Message, error) {
	return NewMessage(TypeTilt, TiltCommand{Degrees: degrees})
}

// NewSpeakMessage creates a text-to-speech command
func NewSpeakMessage(text string, bufferMS int, showFace bool) (*Message, error) {
	return NewMessage(TypeSpeak, SpeakCommand{
		Text:     text,
		BufferMS: bufferMS,
		ShowFace: showFace,
	})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetStatusData extracts a status payload from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetDetectionData extracts detection data from a message
func (m *Message) GetDetectionData() (*DetectionData, error) {
	var data DetectionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetMisuseData extracts misuse flags from a message
func (m *Message) GetMisuseData() (*MisuseData, error) {
	var data MisuseData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPositionData extracts a position from a message
func (m *Message) GetPositionData() (*PositionData, error) {
	var data PositionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetConversationData extracts the recognition session state from a message
func (m *Message) GetConversationData() (*ConversationData, error) {
	var data ConversationData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAskResultData extracts a transcript from a message
func (m *Message) GetAskResultData() (*AskResultData, error) {
	var data AskResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSpeakCommand extracts a speak command from a message
func (m *Message) GetSpeakCommand() (*SpeakCommand, error) {
	var data SpeakCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetGoToCommand extracts a navigation command from a message
func (m *Message) GetGoToCommand() (*GoToCommand, error) {
	var data GoToCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
