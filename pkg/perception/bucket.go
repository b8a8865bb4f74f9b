// Package perception turns the robot's raw detection stream into discrete
// distance, bearing and motion classifications.
package perception

// DistanceBucket classifies how far the tracked person is.
type DistanceBucket int

const (
	Missing DistanceBucket = iota
	Close
	MidRange
	Far
)

func (b DistanceBucket) String() string {
	switch b {
	case Close:
		return "close"
	case MidRange:
		return "midrange"
	case Far:
		return "far"
	default:
		return "missing"
	}
}

// MarshalText encodes the bucket by name.
func (b DistanceBucket) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// AngleBucket classifies which side of the robot the person is on.
type AngleBucket int

const (
	Gone AngleBucket = iota
	Left
	Middle
	Right
)

func (b AngleBucket) String() string {
	switch b {
	case Left:
		return "left"
	case Middle:
		return "middle"
	case Right:
		return "right"
	default:
		return "gone"
	}
}

// MarshalText encodes the bucket by name.
func (b AngleBucket) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// LateralMotion is sideways movement between two samples.
type LateralMotion int

const (
	LateralNone LateralMotion = iota
	Lefter
	Righter
)

func (m LateralMotion) String() string {
	switch m {
	case Lefter:
		return "lefter"
	case Righter:
		return "righter"
	default:
		return "nowhere"
	}
}

// MarshalText encodes the motion by name.
func (m LateralMotion) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// DepthMotion is movement toward or away from the robot between two samples.
type DepthMotion int

const (
	DepthNone DepthMotion = iota
	Closer
	Further
)

func (m DepthMotion) String() string {
	switch m {
	case Closer:
		return "closer"
	case Further:
		return "further"
	default:
		return "nowhere"
	}
}

// MarshalText encodes the motion by name.
func (m DepthMotion) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Thresholds are the empirically chosen classification boundaries.
// Distances are meters, angles radians.
type Thresholds struct {
	CloseDistance    float64 `json:"close_distance"`
	MidRangeDistance float64 `json:"midrange_distance"`
	AngleDeadZone    float64 `json:"angle_dead_zone"`

	// Minimum angle change that counts as lateral motion, per distance bucket.
	// Nearer people sweep larger angles for the same step.
	LateralFar      float64 `json:"lateral_far"`
	LateralMidRange float64 `json:"lateral_midrange"`
	LateralClose    float64 `json:"lateral_close"`

	DepthThreshold float64 `json:"depth_threshold"`
}

// DefaultThresholds returns the tuned defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CloseDistance:    1.0,
		MidRangeDistance: 1.5,
		AngleDeadZone:    0.1,
		LateralFar:       0.07,
		LateralMidRange:  0.12,
		LateralClose:     0.17,
		DepthThreshold:   0.01,
	}
}

// Range classifies a distance. Boundary values fall in the farther bucket.
func (t Thresholds) Range(detected bool, distance float64) DistanceBucket {
	switch {
	case !detected:
		return Missing
	case distance < t.CloseDistance:
		return Close
	case distance < t.MidRangeDistance:
		return MidRange
	default:
		return Far
	}
}

// Bearing classifies an angle. Positive angles are to the robot's left.
func (t Thresholds) Bearing(detected bool, angle float64) AngleBucket {
	switch {
	case !detected:
		return Gone
	case angle > t.AngleDeadZone:
		return Left
	case angle < -t.AngleDeadZone:
		return Right
	default:
		return Middle
	}
}

// lateralThreshold returns the angle step for the given range, or false
// when no lateral motion can be derived.
func (t Thresholds) lateralThreshold(r DistanceBucket) (float64, bool) {
	switch r {
	case Far:
		return t.LateralFar, true
	case MidRange:
		return t.LateralMidRange, true
	case Close:
		return t.LateralClose, true
	default:
		return 0, false
	}
}

// Lateral derives sideways motion from an angle change observed at range r.
func (t Thresholds) Lateral(r DistanceBucket, angleDelta float64) LateralMotion {
	step, ok := t.lateralThreshold(r)
	switch {
	case !ok:
		return LateralNone
	case angleDelta > step:
		return Lefter
	case angleDelta < -step:
		return Righter
	default:
		return LateralNone
	}
}

// Depth derives approach or retreat from a distance change.
func (t Thresholds) Depth(distanceDelta float64) DepthMotion {
	switch {
	case distanceDelta > t.DepthThreshold:
		return Further
	case distanceDelta < -t.DepthThreshold:
		return Closer
	default:
		return DepthNone
	}
}
