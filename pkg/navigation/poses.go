package navigation

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-temi/pkg/robot"
)

// ErrUnknownPose is returned for a pose id outside the table.
var ErrUnknownPose = errors.New("navigation: unknown pose")

// Poses is the patrol and named-pose table. Ids are 1-based.
type Poses []robot.Pose

// DefaultPoses returns the stock lab patrol points.
func DefaultPoses() Poses {
	return Poses{
		{X: 1.009653, Y: 0.078262, Yaw: -1.504654, Tilt: 20},
		{X: 0.830383, Y: -7.916466, Yaw: 1.604749, Tilt: 20},
		{X: 1.769055, Y: -5.273465, Yaw: 3.116918, Tilt: 20},
		{X: 1.916642, Y: -2.222844, Yaw: 0.041969, Tilt: 20},
	}
}

// ByID returns the pose with the given 1-based id.
func (p Poses) ByID(id int) (robot.Pose, error) {
	if id < 1 || id > len(p) {
		return robot.Pose{}, fmt.Errorf("%w: %d", ErrUnknownPose, id)
	}
	return p[id-1], nil
}

type poseFile struct {
	Poses []robot.Pose `yaml:"poses"`
}

// LoadPoses reads a pose table from a YAML file of the form
//
//	poses:
//	  - {x: 1.0, y: 0.0, yaw: -1.5, tilt: 20}
func LoadPoses(path string) (Poses, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read poses %s: %w", path, err)
	}
	return ParsePoses(data)
}

// ParsePoses parses a YAML pose table.
func ParsePoses(data []byte) (Poses, error) {
	var f poseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid poses: %w", err)
	}
	if len(f.Poses) < 2 {
		return nil, errors.New("navigation: pose table needs at least two poses")
	}
	return Poses(f.Poses), nil
}
