package state

import (
	"smokehouse/internal/models"
)

// Start begins a run from IDLE.
func (m *Machine) Start(mode models.RunMode) error {
	var cmdErr error
	err := m.withState(func(p *process) {
		switch {
		case p.faults.Overheat:
			cmdErr = ErrOverheatLatched
		case p.faults.Sensor:
			cmdErr = ErrSensorFault
		case p.state != models.StateIdle:
			cmdErr = ErrNotIdle
		case p.doorOpen:
			cmdErr = ErrDoorOpen
		case mode == models.ModeAuto && len(p.profile.Steps) == 0:
			cmdErr = ErrNoProfile
		default:
			p.state = mode.RunningState()
			p.lastMode = mode
			p.step = 0
			p.stepElapsed = 0
			p.fanPhaseOn = true
			p.fanPhaseStart = p.lastTick
			if mode == models.ModeAuto {
				p.applyStep(p.profile.Steps[0])
			} else {
				p.applyManual()
			}
		}
	})
	if err != nil {
		return err
	}
	if cmdErr != nil {
		return cmdErr
	}
	if err := m.EnableHeater(); err != nil {
		m.log.Warnw("heater_enable_failed", "err", err)
	}
	m.log.Infow("process_started", "mode", mode.String())
	m.emit(models.EventStart, "process started", map[string]any{"mode": mode.String()})
	return nil
}

// Stop returns to IDLE from any state. Latched faults stay latched.
func (m *Machine) Stop() error {
	var from models.ProcessState
	if err := m.withState(func(p *process) {
		from = p.state
		p.state = models.StateIdle
	}); err != nil {
		return err
	}
	m.shutdown()
	m.log.Infow("process_stopped", "from", from.String())
	m.emit(models.EventStop, "process stopped", map[string]any{"from": from.String()})
	return nil
}

// Resume leaves PAUSE_SENSOR once the sensor fault has cleared. With the
// door open the process waits in PAUSE_DOOR for the close edge instead.
func (m *Machine) Resume() error {
	var cmdErr error
	var toDoor bool
	err := m.withState(func(p *process) {
		switch {
		case p.state != models.StatePauseSensor:
			cmdErr = ErrNotResumable
		case p.faults.Sensor:
			cmdErr = ErrSensorFault
		case p.doorOpen:
			p.state = models.StatePauseDoor
			toDoor = true
		default:
			p.state = models.StateSoftResume
		}
	})
	if err != nil {
		return err
	}
	if cmdErr != nil {
		return cmdErr
	}
	if toDoor {
		m.log.Infow("resume_waiting_for_door")
		m.emit(models.EventPause, "resume deferred, door open", map[string]any{"reason": "door"})
		return nil
	}
	m.emit(models.EventResume, "operator resume", nil)
	return nil
}

// ApplyProfile replaces the active profile and resets statistics.
func (m *Machine) ApplyProfile(prof models.Profile) error {
	if len(prof.Steps) == 0 {
		m.SetProfileError()
		return ErrNoProfile
	}
	var cmdErr error
	err := m.withState(func(p *process) {
		if p.state != models.StateIdle {
			cmdErr = ErrNotIdle
			return
		}
		p.profile = prof
		p.step = 0
		p.stepElapsed = 0
		p.faults.Profile = false
		p.stats = models.ProcessStats{
			StepCount:    len(prof.Steps),
			TotalPlanned: prof.TotalPlanned(),
		}
	})
	if err != nil {
		return err
	}
	if cmdErr != nil {
		return cmdErr
	}
	m.emit(models.EventProfile, "profile loaded", map[string]any{
		"name":  prof.Name,
		"steps": len(prof.Steps),
	})
	return nil
}

// SetManual stores the values used by RUNNING_MANUAL.
func (m *Machine) SetManual(s models.ManualSettings) error {
	return m.withState(func(p *process) {
		p.manual = s
		if p.state == models.StateRunningManual {
			p.applyManual()
		}
	})
}

// SetProfileError latches the profile-error flag.
func (m *Machine) SetProfileError() {
	if err := m.withState(func(p *process) { p.faults.Profile = true }); err != nil {
		m.log.Warnw("profile_error_not_recorded", "err", err)
		return
	}
	m.emit(models.EventFault, "profile error", nil)
}

// SetStorageError records whether storage is unavailable.
func (m *Machine) SetStorageError(failed bool) {
	if err := m.withState(func(p *process) { p.faults.Storage = failed }); err != nil {
		m.log.Warnw("storage_error_not_recorded", "err", err)
		return
	}
	if failed {
		m.emit(models.EventStorage, "storage unavailable", nil)
	}
}

// ---- sensor-driven transitions ----

// CommitChamber stores an accepted chamber reading.
func (m *Machine) CommitChamber(tempC float64) error {
	return m.withState(func(p *process) { p.chamberC = tempC })
}

// CommitMeat stores an accepted meat reading.
func (m *Machine) CommitMeat(tempC float64) error {
	return m.withState(func(p *process) { p.meatC = tempC })
}

// RaiseSensorFault sets the sensor-error flag and pauses a running process.
func (m *Machine) RaiseSensorFault() (bool, error) {
	var paused, raised bool
	err := m.withState(func(p *process) {
		raised = !p.faults.Sensor
		p.faults.Sensor = true
		if p.state.Running() {
			p.state = models.StatePauseSensor
			p.stats.PauseCount++
			paused = true
		}
	})
	if err != nil {
		return false, err
	}
	if paused {
		m.shutdown()
		m.emit(models.EventPause, "sensor fault", map[string]any{"reason": "sensor"})
	} else if raised {
		m.emit(models.EventFault, "sensor fault", nil)
	}
	return paused, nil
}

// ClearSensorFault clears the sensor-error flag. It never resumes the process.
func (m *Machine) ClearSensorFault() (bool, error) {
	var cleared bool
	err := m.withState(func(p *process) {
		cleared = p.faults.Sensor
		p.faults.Sensor = false
	})
	return cleared, err
}

// LatchOverheat latches the overheat flag and forces PAUSE_OVERHEAT.
// It reports whether the flag was newly set.
func (m *Machine) LatchOverheat(tempC float64) (bool, error) {
	var latched, forced bool
	err := m.withState(func(p *process) {
		latched = !p.faults.Overheat
		p.faults.Overheat = true
		if p.state != models.StatePauseOverheat {
			if p.state.Running() {
				p.stats.PauseCount++
			}
			p.state = models.StatePauseOverheat
			forced = true
		}
	})
	if err != nil {
		return false, err
	}
	if forced {
		m.shutdown()
	}
	if latched {
		m.emit(models.EventFault, "overheat", map[string]any{"chamber_c": tempC})
	}
	return latched, nil
}

// ---- door transitions (state group only; callers own the side effects) ----

// DoorOpened records an open edge and reports whether the process paused.
func (m *Machine) DoorOpened() (bool, error) {
	var paused bool
	err := m.withState(func(p *process) {
		p.doorOpen = true
		if p.state.Running() {
			p.state = models.StatePauseDoor
			p.stats.PauseCount++
			paused = true
		}
	})
	if err == nil && paused {
		m.emit(models.EventPause, "door opened", map[string]any{"reason": "door"})
	}
	return paused, err
}

// DoorClosed records a close edge and reports whether the process entered SOFT_RESUME.
func (m *Machine) DoorClosed() (bool, error) {
	var resumed bool
	err := m.withState(func(p *process) {
		p.doorOpen = false
		if p.state == models.StatePauseDoor {
			p.state = models.StateSoftResume
			resumed = true
		}
	})
	if err == nil && resumed {
		m.emit(models.EventResume, "door closed", nil)
	}
	return resumed, err
}

func (p *process) applyStep(s models.Step) {
	p.setpointC = s.SetpointC
	p.powerMode = s.PowerMode
	p.smoke = s.Smoke
	p.fanMode = s.FanMode
	p.fanOn = s.FanOn
	p.fanOff = s.FanOff
}

func (p *process) applyManual() {
	p.setpointC = p.manual.SetpointC
	p.powerMode = p.manual.PowerMode
	p.smoke = p.manual.Smoke
	p.fanMode = p.manual.FanMode
}
