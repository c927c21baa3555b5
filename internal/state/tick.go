package state

import (
	"time"

	"smokehouse/internal/models"
)

type tickResult struct {
	out         models.Outputs
	softResumed bool
	finished    bool
	stepChanged bool
	step        int
	stepName    string
}

// Tick advances the process by one control cycle and drives the outputs.
// A lock timeout skips the cycle; the next tick re-evaluates everything.
func (m *Machine) Tick(now time.Time) error {
	heaterOn, err := m.HeaterEnabled()
	if err != nil {
		return err
	}

	var res tickResult
	if err := m.withState(func(p *process) { res = m.advance(p, now, heaterOn) }); err != nil {
		return err
	}

	if res.softResumed {
		if err := m.EnableHeater(); err != nil {
			m.log.Warnw("heater_enable_failed", "err", err)
		}
		m.log.Infow("process_soft_resumed")
	}
	if res.stepChanged {
		m.log.Infow("process_step_changed", "step", res.step, "name", res.stepName)
		m.emit(models.EventStep, "step changed", map[string]any{"step": res.step, "name": res.stepName})
	}
	if res.finished {
		m.shutdown()
		m.log.Infow("process_finished")
		m.emit(models.EventDone, "profile finished", nil)
		return nil
	}
	return m.setOutputs(res.out)
}

func (m *Machine) advance(p *process, now time.Time, heaterOn bool) tickResult {
	var res tickResult

	var dt time.Duration
	if !p.lastTick.IsZero() && now.After(p.lastTick) {
		dt = now.Sub(p.lastTick)
	}
	p.lastTick = now

	if p.state == models.StateSoftResume {
		p.state = p.lastMode.RunningState()
		res.softResumed = true
	}
	if !p.state.Running() {
		p.stats.LastUpdate = now
		return res
	}

	p.stats.TotalRunTime += dt
	if p.heating() {
		p.stats.ActiveHeatingTime += dt
	}
	p.stats.AddSample(p.chamberC)
	p.stats.LastUpdate = now

	if p.state == models.StateRunningAuto {
		p.stepElapsed += dt
		if p.stepDone() {
			p.step++
			p.stats.StepChanges++
			p.stepElapsed = 0
			if p.step >= len(p.profile.Steps) {
				p.state = models.StateIdle
				res.finished = true
				return res
			}
			p.applyStep(p.profile.Steps[p.step])
			res.stepChanged = true
			res.step = p.step
			res.stepName = p.profile.Steps[p.step].Name
		}
	}

	if heaterOn {
		res.out.HeaterStages = m.heater.Stages(p.chamberC, p.setpointC, p.powerMode)
	}
	p.lastStages = res.out.HeaterStages
	res.out.FanOn = p.fanOutput(now)
	res.out.SmokePWM = p.smoke
	return res
}

func (p *process) heating() bool { return p.lastStages > 0 }

func (p *process) stepDone() bool {
	if p.step >= len(p.profile.Steps) {
		return true
	}
	s := p.profile.Steps[p.step]
	if p.stepElapsed < s.MinDuration {
		return false
	}
	return !s.UseMeatTemp || p.meatC >= s.MeatTargetC
}

func (p *process) fanOutput(now time.Time) bool {
	switch p.fanMode {
	case models.FanOff:
		return false
	case models.FanCyclic:
		on, off := max(p.fanOn, time.Second), max(p.fanOff, time.Second)
		if p.fanPhaseStart.IsZero() {
			p.fanPhaseStart = now
			p.fanPhaseOn = true
		}
		phase := off
		if p.fanPhaseOn {
			phase = on
		}
		if now.Sub(p.fanPhaseStart) >= phase {
			p.fanPhaseOn = !p.fanPhaseOn
			p.fanPhaseStart = now
		}
		return p.fanPhaseOn
	default:
		return true
	}
}
