package state

import (
	"errors"
	"fmt"
	"time"

	"smokehouse/internal/logger"
	"smokehouse/internal/models"

	"github.com/google/uuid"
)

// Command errors.
var (
	ErrNotIdle         = errors.New("process is not idle")
	ErrNoProfile       = errors.New("no profile loaded")
	ErrOverheatLatched = errors.New("overheat fault is latched")
	ErrSensorFault     = errors.New("sensor fault is active")
	ErrNotResumable    = errors.New("process cannot be resumed from this state")
	ErrDoorOpen        = errors.New("door is open")
)

const eventBuffer = 64

// Actuators drives the heater, fan and smoke outputs.
type Actuators interface {
	Apply(out models.Outputs) error
}

// HeaterController decides how many heater stages to drive.
type HeaterController interface {
	Stages(chamberC, setpointC float64, powerMode int) int
}

// process is the state group. Guarded by Machine.stateMu.
type process struct {
	state    models.ProcessState
	lastMode models.RunMode

	setpointC float64
	chamberC  float64
	meatC     float64
	powerMode int
	smoke     int
	fanMode   int
	fanOn     time.Duration
	fanOff    time.Duration

	doorOpen bool
	faults   models.Faults

	profile     models.Profile
	step        int
	stepElapsed time.Duration
	manual      models.ManualSettings

	lastTick      time.Time
	lastStages    int
	fanPhaseOn    bool
	fanPhaseStart time.Time

	stats models.ProcessStats
}

// Machine owns the shared process state, split in three independently
// locked groups: process state, actuator outputs and heater enable.
// No method holds more than one of the locks at a time.
type Machine struct {
	stateMu  *TimedMutex
	outputMu *TimedMutex
	heaterMu *TimedMutex

	proc          process
	outputs       models.Outputs
	heaterEnabled bool

	actuators Actuators
	heater    HeaterController
	events    chan models.ProcessEvent
	log       *logger.Logger
}

// NewMachine builds the three locks. An error here leaves the controller
// without any safe mode of operation and should abort start-up.
func NewMachine(lockTimeout time.Duration, act Actuators, heater HeaterController, log *logger.Logger) (*Machine, error) {
	if log == nil {
		log = logger.Nop()
	}
	stateMu, err := NewTimedMutex("state", lockTimeout, log)
	if err != nil {
		return nil, err
	}
	outputMu, err := NewTimedMutex("output", lockTimeout, log)
	if err != nil {
		return nil, err
	}
	heaterMu, err := NewTimedMutex("heater", lockTimeout, log)
	if err != nil {
		return nil, err
	}
	if heater == nil {
		heater = NewHysteresis(1.5)
	}
	return &Machine{
		stateMu:   stateMu,
		outputMu:  outputMu,
		heaterMu:  heaterMu,
		proc:      process{state: models.StateIdle, powerMode: 1},
		actuators: act,
		heater:    heater,
		events:    make(chan models.ProcessEvent, eventBuffer),
		log:       log,
	}, nil
}

// Events delivers process events. Events are dropped when nobody drains it.
func (m *Machine) Events() <-chan models.ProcessEvent { return m.events }

func (m *Machine) emit(typ, desc string, meta map[string]any) {
	ev := models.ProcessEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	}
	select {
	case m.events <- ev:
	default:
		m.log.Warnw("process_event_dropped", "type", typ)
	}
}

// withState runs fn under the state lock.
func (m *Machine) withState(fn func(p *process)) error {
	release, err := m.stateMu.Acquire(0)
	if err != nil {
		return err
	}
	defer release()
	fn(&m.proc)
	return nil
}

// Snapshot copies the process state group.
func (m *Machine) Snapshot() (models.ProcessSnapshot, error) {
	var snap models.ProcessSnapshot
	err := m.withState(func(p *process) {
		snap = models.ProcessSnapshot{
			State:       p.state,
			LastMode:    p.lastMode,
			SetpointC:   p.setpointC,
			ChamberC:    p.chamberC,
			MeatC:       p.meatC,
			PowerMode:   p.powerMode,
			Smoke:       p.smoke,
			FanMode:     p.fanMode,
			DoorOpen:    p.doorOpen,
			Faults:      p.faults,
			ProfileName: p.profile.Name,
			StepIndex:   p.step,
			StepElapsed: p.stepElapsed,
			Stats:       p.stats,
			UpdatedAt:   p.stats.LastUpdate,
		}
		if p.step < len(p.profile.Steps) {
			snap.StepName = p.profile.Steps[p.step].Name
		}
	})
	return snap, err
}

// Profile returns the active profile.
func (m *Machine) Profile() (models.Profile, error) {
	var prof models.Profile
	err := m.withState(func(p *process) { prof = p.profile })
	return prof, err
}

// ---- outputs and heater groups ----

// AllOutputsOff forces every actuator off.
func (m *Machine) AllOutputsOff() error {
	return m.setOutputs(models.Off)
}

// Outputs returns the last commanded actuator state.
func (m *Machine) Outputs() (models.Outputs, error) {
	release, err := m.outputMu.Acquire(0)
	if err != nil {
		return models.Outputs{}, err
	}
	defer release()
	return m.outputs, nil
}

func (m *Machine) setOutputs(out models.Outputs) error {
	release, err := m.outputMu.Acquire(0)
	if err != nil {
		return err
	}
	defer release()
	m.outputs = out
	if m.actuators == nil {
		return nil
	}
	if err := m.actuators.Apply(out); err != nil {
		return fmt.Errorf("apply outputs: %w", err)
	}
	return nil
}

// EnableHeater re-arms heater control.
func (m *Machine) EnableHeater() error { return m.setHeater(true) }

// DisableHeater blocks heater output until re-enabled.
func (m *Machine) DisableHeater() error { return m.setHeater(false) }

// HeaterEnabled reports the heater-enable group.
func (m *Machine) HeaterEnabled() (bool, error) {
	release, err := m.heaterMu.Acquire(0)
	if err != nil {
		return false, err
	}
	defer release()
	return m.heaterEnabled, nil
}

func (m *Machine) setHeater(on bool) error {
	release, err := m.heaterMu.Acquire(0)
	if err != nil {
		return err
	}
	defer release()
	m.heaterEnabled = on
	return nil
}

// shutdown turns outputs off and disarms the heater, outside the state lock.
func (m *Machine) shutdown() {
	if err := m.AllOutputsOff(); err != nil {
		m.log.Warnw("outputs_off_failed", "err", err)
	}
	if err := m.DisableHeater(); err != nil {
		m.log.Warnw("heater_disable_failed", "err", err)
	}
}
