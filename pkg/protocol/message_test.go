package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "detection message",
			msgType: TypeDetection,
			data:    DetectionData{Status: "detected", Angle: 0.2, Distance: 1.2},
			wantErr: false,
		},
		{
			name:    "goto command",
			msgType: TypeGoTo,
			data:    GoToCommand{Location: "lobby"},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypeStop,
			data:    nil,
			wantErr: false,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeSpeak,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestDetectionMessage(t *testing.T) {
	msg, err := NewDetectionMessage("detected", -0.3, 1.4)
	if err != nil {
		t.Fatalf("NewDetectionMessage() error = %v", err)
	}

	bytes, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(bytes)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeDetection {
		t.Errorf("Type = %v, want %v", parsed.Type, TypeDetection)
	}

	data, err := parsed.GetDetectionData()
	if err != nil {
		t.Fatalf("GetDetectionData() error = %v", err)
	}
	if data.Status != "detected" || data.Angle != -0.3 || data.Distance != 1.4 {
		t.Errorf("detection = %+v", data)
	}
}

func TestStatusMessage(t *testing.T) {
	for _, typ := range []MessageType{TypeTTS, TypeMovement, TypeGoal} {
		t.Run(string(typ), func(t *testing.T) {
			msg, err := NewStatusMessage(typ, "complete")
			if err != nil {
				t.Fatalf("NewStatusMessage() error = %v", err)
			}
			data, err := msg.GetStatusData()
			if err != nil {
				t.Fatalf("GetStatusData() error = %v", err)
			}
			if data.Status != "complete" {
				t.Errorf("Status = %v, want complete", data.Status)
			}
		})
	}
}

func TestSpeakMessage(t *testing.T) {
	msg, err := NewSpeakMessage("Hello there.", 100, true)
	if err != nil {
		t.Fatalf("NewSpeakMessage() error = %v", err)
	}
	cmd, err := msg.GetSpeakCommand()
	if err != nil {
		t.Fatalf("GetSpeakCommand() error = %v", err)
	}
	if cmd.Text != "Hello there." || cmd.BufferMS != 100 || !cmd.ShowFace {
		t.Errorf("speak = %+v", cmd)
	}
}

func TestGoToMessage(t *testing.T) {
	msg, err := NewGoToMessage("home base", true)
	if err != nil {
		t.Fatalf("NewGoToMessage() error = %v", err)
	}
	cmd, err := msg.GetGoToCommand()
	if err != nil {
		t.Fatalf("GetGoToCommand() error = %v", err)
	}
	if cmd.Location != "home base" || !cmd.Backwards {
		t.Errorf("goto = %+v", cmd)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	if pingMsg.Type != TypePing {
		t.Errorf("Type = %v, want %v", pingMsg.Type, TypePing)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}
	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingMsg.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestParseInvalidMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "invalid json",
			input:   "not json",
			wantErr: true,
		},
		{
			name:    "missing type",
			input:   "{}",
			wantErr: true,
		},
		{
			name:    "valid message",
			input:   `{"type":"ping","ts":1234567890}`,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageJSON(t *testing.T) {
	msg, _ := NewTurnMessage(45, 1)

	bytes, _ := msg.Bytes()

	var parsed map[string]interface{}
	if err := json.Unmarshal(bytes, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal as map: %v", err)
	}

	if parsed["type"] != "turn" {
		t.Errorf("type = %v, want turn", parsed["type"])
	}
	if _, ok := parsed["ts"]; !ok {
		t.Error("ts field should be present")
	}
	data, ok := parsed["data"].(map[string]interface{})
	if !ok {
		t.Fatal("data field should be an object")
	}
	if data["degrees"] != float64(45) {
		t.Errorf("degrees = %v, want 45", data["degrees"])
	}
}

func BenchmarkParseMessage(b *testing.B) {
	msg, _ := NewDetectionMessage("detected", 0.1, 1.2)
	bytes, _ := msg.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseMessage(bytes)
	}
}
