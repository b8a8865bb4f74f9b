package navigation

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-temi/pkg/perception"
	"github.com/teslashibe/go-temi/pkg/robot"
)

type fakePresence struct {
	greet   atomic.Bool
	engaged atomic.Bool
	present atomic.Bool
}

func (p *fakePresence) GreetMode() bool { return p.greet.Load() }
func (p *fakePresence) Engaged() bool   { return p.engaged.Load() }
func (p *fakePresence) Present() bool   { return p.present.Load() }

func newTestPatrol(rig *testRig, presence Presence) *Patrol {
	cfg := DefaultPatrolConfig()
	cfg.Dwell = 5 * time.Millisecond
	cfg.Rand = rand.New(rand.NewPCG(1, 2))
	cfg.Waiter = rig.waiter
	return NewPatrol(rig.mock, presence, cfg)
}

func TestPosesByID(t *testing.T) {
	poses := DefaultPoses()

	for id := 1; id <= 4; id++ {
		p, err := poses.ByID(id)
		require.NoError(t, err)
		assert.Equal(t, poses[id-1], p)
		assert.Equal(t, 20, p.Tilt)
	}

	for _, id := range []int{0, 5, -1} {
		_, err := poses.ByID(id)
		assert.ErrorIs(t, err, ErrUnknownPose)
	}
}

func TestParsePoses(t *testing.T) {
	data := []byte(`
poses:
  - {x: 1.5, y: -2.0, yaw: 0.3, tilt: 10}
  - x: 0.0
    y: 4.25
    yaw: -1.0
    tilt: 20
`)
	poses, err := ParsePoses(data)
	require.NoError(t, err)
	require.Len(t, poses, 2)
	assert.Equal(t, robot.Pose{X: 1.5, Y: -2.0, Yaw: 0.3, Tilt: 10}, poses[0])
	assert.Equal(t, 4.25, poses[1].Y)

	_, err = ParsePoses([]byte("poses:\n  - {x: 1}\n"))
	assert.Error(t, err, "one pose cannot be patrolled")

	_, err = ParsePoses([]byte("poses: [oops"))
	assert.Error(t, err)
}

func TestLoadPoses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poses.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poses:\n  - {x: 1}\n  - {x: 2}\n  - {x: 3}\n"), 0o644))

	poses, err := LoadPoses(path)
	require.NoError(t, err)
	assert.Len(t, poses, 3)

	_, err = LoadPoses(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPositionChecker(t *testing.T) {
	target := robot.Pose{X: 1.0, Y: 2.0, Yaw: 3.1}
	c := NewPositionChecker(target)

	assert.True(t, c.Close(robot.Pose{X: 1.05, Y: 1.95, Yaw: 0}), "yaw ignored by default")
	assert.False(t, c.Close(robot.Pose{X: 1.2, Y: 2.0}))
	assert.False(t, c.Close(robot.Pose{X: 1.0, Y: 2.15}))

	c.CheckYaw = true
	assert.True(t, c.Close(robot.Pose{X: 1.0, Y: 2.0, Yaw: -3.15}), "wraps across pi")
	assert.False(t, c.Close(robot.Pose{X: 1.0, Y: 2.0, Yaw: 0}))

	c.Target.Yaw = 0.05
	assert.True(t, c.Close(robot.Pose{X: 1.0, Y: 2.0, Yaw: -0.03}), "wraps across zero")
}

func TestDirectedAngle(t *testing.T) {
	tests := []struct {
		a1, a2, want float64
	}{
		{270, 270, 0},
		{270, 180, 90},
		{10, 350, 20},
		{350, 10, -20},
		{270, 90, 180},
		{90, 270, 180},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DirectedAngle(tt.a1, tt.a2), "%v from %v", tt.a1, tt.a2)
	}
}

func TestPatrolNextIndexNeverRepeats(t *testing.T) {
	rig := newRig(t)
	p := newTestPatrol(rig, &fakePresence{})

	seen := map[int]bool{}
	prev := p.Current()
	for i := 0; i < 200; i++ {
		next := p.nextIndex()
		assert.NotEqual(t, prev, next)
		assert.True(t, next >= 0 && next < 4)
		seen[next] = true
		prev = next
	}
	assert.Len(t, seen, 4)
}

func TestPatrolLegAdvancesOnComplete(t *testing.T) {
	rig := newRig(t)
	presence := &fakePresence{}
	presence.greet.Store(true)
	p := newTestPatrol(rig, presence)

	start := p.Current()
	status, err := p.Leg(context.Background())
	require.NoError(t, err)
	assert.Equal(t, robot.GoalComplete, status)
	assert.NotEqual(t, start, p.Current())

	calls := rig.mock.CallsTo("GoToPose")
	require.Len(t, calls, 1)
	assert.Equal(t, DefaultPoses()[start], calls[0].Args[0])
}

func TestPatrolLegStaysOnAbort(t *testing.T) {
	rig := newRig(t)
	rig.mock.GoToPoseFunc = func(ctx context.Context, pose robot.Pose, speed float64) error {
		rig.mock.SetGoalStatus(robot.GoalAbort)
		return nil
	}
	p := newTestPatrol(rig, &fakePresence{})

	start := p.Current()
	status, err := p.Leg(context.Background())
	require.NoError(t, err)
	assert.Equal(t, robot.GoalAbort, status)
	assert.Equal(t, start, p.Current())
}

func TestPatrolStopsWhenEngaged(t *testing.T) {
	rig := newRig(t)
	presence := &fakePresence{}
	presence.greet.Store(true)
	p := newTestPatrol(rig, presence)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return rig.mock.CallCount("GoToPose") >= 3 }, 2*time.Second, time.Millisecond)
	presence.engaged.Store(true)
	time.Sleep(30 * time.Millisecond)

	n := rig.mock.CallCount("GoToPose")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, rig.mock.CallCount("GoToPose"))
}

func newTestFollower(rig *testRig) *Follower {
	cfg := DefaultFollowConfig()
	cfg.Waiter = rig.waiter
	return NewFollower(rig.mock, rig.tracker, rig.driver, cfg)
}

// headingYaw returns the yaw that reads as the given follow heading.
func headingYaw(heading float64) float64 {
	return (heading - 180) * math.Pi / 180
}

func TestFollowerClamp(t *testing.T) {
	f := newTestFollower(newRig(t))

	tests := []struct {
		name          string
		heading, turn float64
		want          float64
	}{
		{"inside", 270, 30, 30},
		{"up to bound", 300, 60, 60},
		{"past upper bound", 350, 20, 9},
		{"past lower bound", 200, -30, -19},
		{"outside pulls back", 90, 0, 91},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Clamp(tt.heading, tt.turn))
		})
	}
}

func TestFollowerTurnsTowardUser(t *testing.T) {
	rig := newRig(t)
	f := newTestFollower(rig)

	rig.mock.SetYaw(headingYaw(270))
	rig.mock.SetDetectionStatus(robot.DetectionDetected)
	rig.mock.SetDetection(robot.Detection{Angle: 30 * math.Pi / 180, Distance: 2.0})

	require.NoError(t, f.Step(context.Background()))

	calls := rig.mock.CallsTo("TurnBy")
	require.Len(t, calls, 1)
	assert.Equal(t, 17, calls[0].Args[0])
	assert.Equal(t, 1.0, calls[0].Args[1])
}

func TestFollowerHoldsWhenUserClose(t *testing.T) {
	rig := newRig(t)
	f := newTestFollower(rig)

	rig.mock.SetYaw(headingYaw(270))
	rig.mock.SetDetectionStatus(robot.DetectionDetected)
	rig.mock.SetDetection(robot.Detection{Angle: 0.5, Distance: 0.5})
	rig.tracker.Step(perception.Sample{Detected: true, Angle: 0.5, Distance: 0.5})

	require.NoError(t, f.Step(context.Background()))
	assert.Equal(t, 0, rig.mock.CallCount("TurnBy"))
}

func TestFollowerSearchesLostSide(t *testing.T) {
	rig := newRig(t)
	f := newTestFollower(rig)

	rig.mock.SetYaw(headingYaw(270))
	rig.mock.SetDetectionStatus(robot.DetectionDetected)
	rig.mock.SetDetection(robot.Detection{Angle: -0.4, Distance: 2.0})
	require.NoError(t, f.Step(context.Background()))

	rig.mock.SetDetectionStatus(robot.DetectionLost)
	require.NoError(t, f.Step(context.Background()))
	require.NoError(t, f.Step(context.Background()), "search turn happens once")

	calls := rig.mock.CallsTo("TurnBy")
	require.Len(t, calls, 2)
	assert.Equal(t, -45, calls[1].Args[0])
	assert.Equal(t, 0.1, calls[1].Args[1])
}

func TestFollowerReturnsToDefaultHeading(t *testing.T) {
	rig := newRig(t)
	f := newTestFollower(rig)

	rig.mock.SetYaw(headingYaw(180))
	rig.mock.SetDetectionStatus(robot.DetectionIdle)

	require.NoError(t, f.Step(context.Background()))

	calls := rig.mock.CallsTo("TurnBy")
	require.Len(t, calls, 1)
	assert.Equal(t, 90, calls[0].Args[0])
}

func TestFollowerIdleWhenMisused(t *testing.T) {
	rig := newRig(t)
	f := newTestFollower(rig)

	rig.mock.SetYaw(headingYaw(180))
	rig.mock.SetDetectionStatus(robot.DetectionIdle)
	rig.mock.SetLifted(true)

	require.NoError(t, f.Step(context.Background()))
	assert.Equal(t, 0, rig.mock.CallCount("TurnBy"))
}
