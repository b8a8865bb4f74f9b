package tour

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Stop is one location on the tour.
type Stop struct {
	// Location is a location name saved on the robot.
	Location string `yaml:"location" json:"location"`
	// Lead is spoken in the background while driving to the stop.
	Lead string `yaml:"lead" json:"lead,omitempty"`
	// Script is spoken on arrival and handed to the model as reference
	// during the question break.
	Script string `yaml:"script" json:"script,omitempty"`
	// Questions opens a question break after the script.
	Questions bool `yaml:"questions" json:"questions"`
}

// Itinerary is the ordered list of tour stops.
type Itinerary struct {
	Welcome  string `yaml:"welcome" json:"welcome,omitempty"`
	Stops    []Stop `yaml:"stops" json:"stops"`
	Farewell string `yaml:"farewell" json:"farewell,omitempty"`
}

// DefaultItinerary is a single-stop tour of the home base.
func DefaultItinerary() Itinerary {
	return Itinerary{
		Welcome: "Hello, welcome to the tour. Please follow me.",
		Stops: []Stop{{
			Location:  "home base",
			Lead:      "Follow me, we are heading to our first stop.",
			Script:    "This is where I rest between tours.",
			Questions: true,
		}},
		Farewell: "That is the end of the tour. Thank you for visiting.",
	}
}

// Validate reports whether the itinerary can be toured.
func (it Itinerary) Validate() error {
	if len(it.Stops) == 0 {
		return ErrEmptyItinerary
	}
	for i, s := range it.Stops {
		if strings.TrimSpace(s.Location) == "" {
			return fmt.Errorf("tour: stop %d has no location", i+1)
		}
	}
	return nil
}

// ParseItinerary decodes a YAML itinerary.
func ParseItinerary(data []byte) (Itinerary, error) {
	var it Itinerary
	if err := yaml.Unmarshal(data, &it); err != nil {
		return Itinerary{}, fmt.Errorf("parse itinerary: %w", err)
	}
	if err := it.Validate(); err != nil {
		return Itinerary{}, err
	}
	return it, nil
}

// LoadItinerary reads a YAML itinerary file.
func LoadItinerary(path string) (Itinerary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Itinerary{}, fmt.Errorf("read itinerary %s: %w", path, err)
	}
	return ParseItinerary(data)
}
