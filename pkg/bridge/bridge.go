// Package bridge connects the robot app to go-temi over a WebSocket.
//
// The robot app dials /ws/robot (or /ws/robot/:id) and streams telemetry as
// protocol messages. The Bridge folds that telemetry into a robot.State and
// implements robot.Robot by sending commands back over the same socket. The
// most recently connected robot is the active one.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-temi/pkg/protocol"
	"github.com/teslashibe/go-temi/pkg/robot"
)

// ErrNotConnected is returned by commands issued while no robot is connected.
var ErrNotConnected = errors.New("bridge: robot not connected")

// RobotConnection represents a connected robot
type RobotConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send sends a message to the robot
func (r *RobotConnection) Send(msg *protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return r.Conn.WriteMessage(websocket.TextMessage, data)
}

func (r *RobotConnection) touch() {
	r.mu.Lock()
	r.LastSeen = time.Now()
	r.mu.Unlock()
}

// Bridge owns the robot connection and its telemetry.
type Bridge struct {
	*robot.State

	logger *slog.Logger

	mu     sync.RWMutex
	robots map[string]*RobotConnection
	active string

	// Stats
	messagesReceived  atomic.Uint64
	messagesSent      atomic.Uint64
	telemetryReceived atomic.Uint64
	parseErrors       atomic.Uint64
}

// New creates a Bridge. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		State:  robot.NewState(),
		logger: logger.With("component", "bridge.Bridge"),
		robots: make(map[string]*RobotConnection),
	}
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (b *Bridge) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/robot", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/robot", websocket.New(b.handleRobot))
	app.Get("/ws/robot/:id", websocket.New(b.handleRobot))
}

// handleRobot handles a robot WebSocket connection
func (b *Bridge) handleRobot(c *websocket.Conn) {
	robotID := c.Params("id")
	if robotID == "" {
		robotID = uuid.NewString()
	}

	conn := &RobotConnection{
		ID:        robotID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	b.mu.Lock()
	b.robots[robotID] = conn
	b.active = robotID
	count := len(b.robots)
	b.mu.Unlock()

	b.logger.Info("robot connected", "robot_id", robotID, "total", count)

	defer func() {
		b.mu.Lock()
		delete(b.robots, robotID)
		if b.active == robotID {
			b.active = ""
			for id := range b.robots {
				b.active = id
				break
			}
		}
		count := len(b.robots)
		b.mu.Unlock()

		b.logger.Info("robot disconnected", "robot_id", robotID, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			b.logger.Debug("robot read ended", "robot_id", robotID, "error", err)
			return
		}

		conn.touch()
		b.messagesReceived.Add(1)
		b.handleMessage(robotID, data)
	}
}

// handleMessage folds one telemetry message into the state.
func (b *Bridge) handleMessage(robotID string, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		b.parseErrors.Add(1)
		b.logger.Warn("parse error", "robot_id", robotID, "error", err)
		return
	}

	if err := b.apply(msg); err != nil {
		b.parseErrors.Add(1)
		b.logger.Warn("bad payload", "robot_id", robotID, "type", msg.Type, "error", err)
		return
	}

	if msg.Type == protocol.TypePing {
		if err := b.sendPong(robotID, msg.Timestamp); err != nil {
			b.logger.Debug("pong failed", "robot_id", robotID, "error", err)
		}
	}
}

func (b *Bridge) apply(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeTTS:
		d, err := msg.GetStatusData()
		if err != nil {
			return err
		}
		b.SetTTSStatus(robot.TTSStatus(d.Status))

	case protocol.TypeDetection:
		d, err := msg.GetDetectionData()
		if err != nil {
			return err
		}
		b.SetDetection(robot.Detection{Angle: d.Angle, Distance: d.Distance})
		b.SetDetectionStatus(robot.DetectionStatus(d.Status))

	case protocol.TypeMovement:
		d, err := msg.GetStatusData()
		if err != nil {
			return err
		}
		b.SetMovementStatus(robot.MovementStatus(d.Status))

	case protocol.TypeGoal:
		d, err := msg.GetStatusData()
		if err != nil {
			return err
		}
		b.SetGoalStatus(robot.GoalStatus(d.Status))

	case protocol.TypeMisuse:
		d, err := msg.GetMisuseData()
		if err != nil {
			return err
		}
		b.SetLifted(d.Lifted)
		b.SetDragged(d.Dragged)

	case protocol.TypePosition:
		d, err := msg.GetPositionData()
		if err != nil {
			return err
		}
		b.SetPosition(robot.Pose{X: d.X, Y: d.Y, Yaw: d.Yaw, Tilt: d.Tilt})

	case protocol.TypeConversation:
		d, err := msg.GetConversationData()
		if err != nil {
			return err
		}
		b.SetConversationAttached(d.Attached)

	case protocol.TypeAskResult:
		d, err := msg.GetAskResultData()
		if err != nil {
			return err
		}
		b.PushTranscript(d.Text)

	default:
		return nil
	}
	b.telemetryReceived.Add(1)
	return nil
}

// sendToActive sends a message to the active robot
func (b *Bridge) sendToActive(msg *protocol.Message) error {
	b.mu.RLock()
	conn, ok := b.robots[b.active]
	b.mu.RUnlock()

	if !ok {
		return ErrNotConnected
	}

	b.messagesSent.Add(1)
	return conn.Send(msg)
}

func (b *Bridge) send(msg *protocol.Message, err error) error {
	if err != nil {
		return err
	}
	return b.sendToActive(msg)
}

func (b *Bridge) sendPong(robotID string, pingTS int64) error {
	msg, err := protocol.NewPongMessage("", pingTS, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	b.mu.RLock()
	conn, ok := b.robots[robotID]
	b.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	b.messagesSent.Add(1)
	return conn.Send(msg)
}

// GoTo sends a named-location navigation command.
func (b *Bridge) GoTo(ctx context.Context, location string, backwards bool) error {
	b.SetGoalStatus(robot.GoalPending)
	return b.send(protocol.NewGoToMessage(location, backwards))
}

// GoToPose sends a pose navigation command.
func (b *Bridge) GoToPose(ctx context.Context, pose robot.Pose, speed float64) error {
	b.SetGoalStatus(robot.GoalPending)
	return b.send(protocol.NewGoToPoseMessage(protocol.PositionData{
		X: pose.X, Y: pose.Y, Yaw: pose.Yaw, Tilt: pose.Tilt,
	}, speed))
}

// TurnBy sends a relative turn command.
func (b *Bridge) TurnBy(ctx context.Context, degrees int, speed float64) error {
	b.SetMovementStatus(robot.MovementPending)
	return b.send(protocol.NewTurnMessage(degrees, speed))
}

// Stop halts all motion.
func (b *Bridge) Stop(ctx context.Context) error {
	return b.send(protocol.NewMessage(protocol.TypeStop, nil))
}

// Tilt sets the head tilt.
func (b *Bridge) Tilt(ctx context.Context, degrees int) error {
	return b.send(protocol.NewTiltMessage(degrees))
}

// Follow engages the robot's constrained follow behavior.
func (b *Bridge) Follow(ctx context.Context) error {
	return b.send(protocol.NewMessage(protocol.TypeFollow, nil))
}

// Speak sends a text-to-speech request.
func (b *Bridge) Speak(ctx context.Context, text string, opts robot.SpeakOptions) error {
	b.SetTTSStatus(robot.TTSPending)
	return b.send(protocol.NewSpeakMessage(text, opts.BufferMS, opts.ShowFace))
}

// WakeUp opens a recognition session on the robot. The session counts as
// attached from the moment the command is sent.
func (b *Bridge) WakeUp(ctx context.Context) error {
	b.SetConversationAttached(true)
	if err := b.send(protocol.NewMessage(protocol.TypeWakeUp, nil)); err != nil {
		b.SetConversationAttached(false)
		return err
	}
	return nil
}

// FinishConversation closes the recognition session.
func (b *Bridge) FinishConversation(ctx context.Context) error {
	return b.send(protocol.NewMessage(protocol.TypeFinishConversation, nil))
}

// Connected reports whether any robot is connected.
func (b *Bridge) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active != ""
}

// RobotCount returns the number of connected robots
func (b *Bridge) RobotCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.robots)
}

// Stats contains bridge statistics
type Stats struct {
	RobotCount        int    `json:"robot_count"`
	ActiveRobot       string `json:"active_robot"`
	MessagesReceived  uint64 `json:"messages_received"`
	MessagesSent      uint64 `json:"messages_sent"`
	TelemetryReceived uint64 `json:"telemetry_received"`
	ParseErrors       uint64 `json:"parse_errors"`
}

// GetStats returns bridge statistics
func (b *Bridge) GetStats() Stats {
	b.mu.RLock()
	count := len(b.robots)
	active := b.active
	b.mu.RUnlock()

	return Stats{
		RobotCount:        count,
		ActiveRobot:       active,
		MessagesReceived:  b.messagesReceived.Load(),
		MessagesSent:      b.messagesSent.Load(),
		TelemetryReceived: b.telemetryReceived.Load(),
		ParseErrors:       b.parseErrors.Load(),
	}
}

// RobotInfo contains info about a connected robot
type RobotInfo struct {
	ID        string    `json:"id"`
	Active    bool      `json:"active"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetRobotInfos returns info about all connected robots
func (b *Bridge) GetRobotInfos() []RobotInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	infos := make([]RobotInfo, 0, len(b.robots))
	for _, r := range b.robots {
		r.mu.Lock()
		infos = append(infos, RobotInfo{
			ID:        r.ID,
			Active:    r.ID == b.active,
			Connected: r.Connected,
			LastSeen:  r.LastSeen,
		})
		r.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for robot inspection
func (b *Bridge) RegisterAPIRoutes(api fiber.Router) {
	robots := api.Group("/robots")

	robots.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"robots": b.GetRobotInfos(),
			"count":  b.RobotCount(),
		})
	})

	robots.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(b.GetStats())
	})

	robots.Get("/telemetry", func(c *fiber.Ctx) error {
		return c.JSON(b.Snapshot())
	})
}

var _ robot.Robot = (*Bridge)(nil)
