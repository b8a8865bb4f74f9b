package navigation

import (
	"math"

	"github.com/teslashibe/go-temi/pkg/robot"
)

// PositionChecker decides whether the robot is at a target pose.
type PositionChecker struct {
	Target       robot.Pose
	XThreshold   float64
	YThreshold   float64
	YawThreshold float64
	CheckYaw     bool
}

// NewPositionChecker returns a checker with 0.1 thresholds and yaw checking off.
func NewPositionChecker(target robot.Pose) PositionChecker {
	return PositionChecker{
		Target:       target,
		XThreshold:   0.1,
		YThreshold:   0.1,
		YawThreshold: 0.1,
	}
}

// Close reports whether current is within the thresholds of the target.
func (c PositionChecker) Close(current robot.Pose) bool {
	if math.Abs(current.X-c.Target.X) > c.XThreshold {
		return false
	}
	if math.Abs(current.Y-c.Target.Y) > c.YThreshold {
		return false
	}
	return !c.CheckYaw || yawClose(current.Yaw, c.Target.Yaw, c.YawThreshold)
}

// yawClose compares two headings in radians with wrap-around at 2π.
func yawClose(current, target, threshold float64) bool {
	cur := normalizeRadians(current)
	lo := normalizeRadians(target - threshold)
	hi := normalizeRadians(target + threshold)
	if lo < hi {
		return cur >= lo && cur <= hi
	}
	return cur >= lo || cur <= hi
}

func normalizeRadians(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// normalizeDegrees maps an angle into [0, 360).
func normalizeDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// DirectedAngle returns the signed turn from a2 to a1 in (-180, 180].
func DirectedAngle(a1, a2 float64) float64 {
	d := a1 - a2
	if d > 180 {
		d -= 360
	}
	if d <= -180 {
		d += 360
	}
	return d
}
