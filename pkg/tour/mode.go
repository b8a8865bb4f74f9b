package tour

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotImplemented is returned when a declared mode has no behavior.
	ErrNotImplemented = errors.New("tour: mode not implemented")
	// ErrUnknownMode is returned by ParseMode for unrecognized names.
	ErrUnknownMode = errors.New("tour: unknown mode")
	// ErrRunning is returned when starting an orchestrator that is running.
	ErrRunning = errors.New("tour: already running")
	// ErrEmptyItinerary is returned when a tour has no stops.
	ErrEmptyItinerary = errors.New("tour: itinerary has no stops")
)

// Mode selects the behavior the orchestrator supervises.
type Mode int

const (
	// ModeNull greets and patrols.
	ModeNull Mode = iota
	// ModeTalk offers an open question to whoever walks up.
	ModeTalk
	// ModeTour walks visitors through the itinerary.
	ModeTour
	// ModeConstraintFollow turns in place to keep the user in view.
	ModeConstraintFollow
	ModeDistance
	ModeAngle
	ModeTestMovement
	ModeDetectionLogic
	ModeTest
)

var modeNames = [...]string{
	ModeNull:             "null",
	ModeTalk:             "talk",
	ModeTour:             "tour",
	ModeConstraintFollow: "constraint_follow",
	ModeDistance:         "distance",
	ModeAngle:            "angle",
	ModeTestMovement:     "test_movement",
	ModeDetectionLogic:   "detection_logic",
	ModeTest:             "test",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// Implemented reports whether the mode has a behavior.
func (m Mode) Implemented() bool {
	switch m {
	case ModeNull, ModeTalk, ModeTour, ModeConstraintFollow:
		return true
	}
	return false
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode parses a mode name. Names are case-insensitive and the empty
// string is ModeNull.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeNull, nil
	}
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return ModeNull, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// State is the lifecycle state of the orchestrator.
type State int

const (
	StateIdle State = iota
	StateRunning
	// StateTesting is held while an itinerary rehearsal runs.
	StateTesting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateTesting:
		return "testing"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
