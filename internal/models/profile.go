package models

import "time"

// MaxStepNameLen bounds Step.Name.
const MaxStepNameLen = 31

// Fan modes.
const (
	FanOff    = 0
	FanOn     = 1
	FanCyclic = 2
)

// Step is one phase of a smoking profile. Index in Profile.Steps is its identity.
type Step struct {
	Name        string        `json:"name"`
	SetpointC   float64       `json:"tSet"`
	MeatTargetC float64       `json:"tMeat"`
	MinDuration time.Duration `json:"-"`
	PowerMode   int           `json:"powerMode"`
	Smoke       int           `json:"smokePwm"`
	FanMode     int           `json:"fanMode"`
	FanOn       time.Duration `json:"-"`
	FanOff      time.Duration `json:"-"`
	UseMeatTemp bool          `json:"useMeatTemp"`
}

// Profile is an ordered, immutable list of steps.
type Profile struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// TotalPlanned is the sum of the step minimum durations.
func (p Profile) TotalPlanned() time.Duration {
	var total time.Duration
	for _, s := range p.Steps {
		total += s.MinDuration
	}
	return total
}

// Len reports the number of steps.
func (p Profile) Len() int { return len(p.Steps) }
