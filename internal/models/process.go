package models

import (
	"fmt"
	"time"
)

// ProcessState is the phase of the smoking process.
type ProcessState int

const (
	StateIdle ProcessState = iota
	StateRunningAuto
	StateRunningManual
	StatePauseDoor
	StatePauseSensor
	StatePauseOverheat
	StateSoftResume
)

var processStateNames = [...]string{
	StateIdle:          "IDLE",
	StateRunningAuto:   "RUNNING_AUTO",
	StateRunningManual: "RUNNING_MANUAL",
	StatePauseDoor:     "PAUSE_DOOR",
	StatePauseSensor:   "PAUSE_SENSOR",
	StatePauseOverheat: "PAUSE_OVERHEAT",
	StateSoftResume:    "SOFT_RESUME",
}

func (s ProcessState) String() string {
	if s < 0 || int(s) >= len(processStateNames) {
		return "UNKNOWN"
	}
	return processStateNames[s]
}

// ParseProcessState is the inverse of String.
func ParseProcessState(name string) (ProcessState, bool) {
	for i, n := range processStateNames {
		if n == name {
			return ProcessState(i), true
		}
	}
	return StateIdle, false
}

// Running reports whether the process is actively executing.
func (s ProcessState) Running() bool {
	return s == StateRunningAuto || s == StateRunningManual
}

// MarshalText renders the state by name in JSON.
func (s ProcessState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ProcessState) UnmarshalText(b []byte) error {
	st, ok := ParseProcessState(string(b))
	if !ok {
		return fmt.Errorf("unknown process state %q", b)
	}
	*s = st
	return nil
}

// RunMode selects automatic (profile) or manual control.
type RunMode int

const (
	ModeAuto RunMode = iota
	ModeManual
)

func (m RunMode) String() string {
	if m == ModeManual {
		return "MANUAL"
	}
	return "AUTO"
}

// RunningState maps a mode to its RUNNING_* state.
func (m RunMode) RunningState() ProcessState {
	if m == ModeManual {
		return StateRunningManual
	}
	return StateRunningAuto
}

// ProcessStats are aggregated counters for the current profile run.
type ProcessStats struct {
	TotalRunTime      time.Duration `json:"total_run_time"`
	ActiveHeatingTime time.Duration `json:"active_heating_time"`
	StepChanges       int           `json:"step_changes"`
	PauseCount        int           `json:"pause_count"`
	AvgTempC          float64       `json:"avg_temp_c"`
	StepCount         int           `json:"step_count"`
	TotalPlanned      time.Duration `json:"total_planned"`
	LastUpdate        time.Time     `json:"last_update"`

	samples int
}

// AddSample folds a chamber reading into the running average.
func (s *ProcessStats) AddSample(tempC float64) {
	s.samples++
	s.AvgTempC += (tempC - s.AvgTempC) / float64(s.samples)
}

// Faults are the latched error flags.
type Faults struct {
	Sensor   bool `json:"sensor"`
	Overheat bool `json:"overheat"`
	Profile  bool `json:"profile"`
	Storage  bool `json:"storage"`
}

// Any reports whether any flag is set.
func (f Faults) Any() bool { return f.Sensor || f.Overheat || f.Profile || f.Storage }

// Outputs is the commanded actuator state.
type Outputs struct {
	HeaterStages int  `json:"heater_stages"` // 0..3
	FanOn        bool `json:"fan_on"`
	SmokePWM     int  `json:"smoke_pwm"`
}

// Off is the all-outputs-off command.
var Off = Outputs{}

// ManualSettings are the operator values for RUNNING_MANUAL.
type ManualSettings struct {
	SetpointC float64 `json:"tset"`
	PowerMode int     `json:"power"`
	Smoke     int     `json:"smoke"`
	FanMode   int     `json:"fan"`
}

// ProcessSnapshot is a consistent copy of the process state group.
type ProcessSnapshot struct {
	State       ProcessState  `json:"state"`
	LastMode    RunMode       `json:"last_mode"`
	SetpointC   float64       `json:"tset_c"`
	ChamberC    float64       `json:"chamber_c"`
	MeatC       float64       `json:"meat_c"`
	PowerMode   int           `json:"power_mode"`
	Smoke       int           `json:"smoke"`
	FanMode     int           `json:"fan_mode"`
	DoorOpen    bool          `json:"door_open"`
	Faults      Faults        `json:"faults"`
	ProfileName string        `json:"profile"`
	StepIndex   int           `json:"step_index"`
	StepName    string        `json:"step_name,omitempty"`
	StepElapsed time.Duration `json:"step_elapsed"`
	Stats       ProcessStats  `json:"stats"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
