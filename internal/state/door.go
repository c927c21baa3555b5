package state

import (
	"time"

	"smokehouse/internal/logger"
)

// DoorInput reads the raw door switch.
type DoorInput interface {
	IsOpen() bool
}

// Indicator sounds an audible pattern of n beeps.
type Indicator interface {
	Beep(n int, on, off time.Duration)
}

// DoorMonitor debounces the door switch and pauses or resumes the machine
// on edges. Poll is called from a single task.
type DoorMonitor struct {
	m        *Machine
	input    DoorInput
	buzzer   Indicator
	debounce time.Duration
	log      *logger.Logger

	stable    bool
	candidate bool
	since     time.Time
}

func NewDoorMonitor(m *Machine, input DoorInput, buzzer Indicator, debounce time.Duration, log *logger.Logger) *DoorMonitor {
	if log == nil {
		log = logger.Nop()
	}
	return &DoorMonitor{m: m, input: input, buzzer: buzzer, debounce: debounce, log: log}
}

// Open reports the debounced door state.
func (d *DoorMonitor) Open() bool { return d.stable }

// Poll samples the input and acts on a debounced edge.
func (d *DoorMonitor) Poll(now time.Time) {
	raw := d.input.IsOpen()
	if raw != d.candidate || d.since.IsZero() {
		d.candidate = raw
		d.since = now
	}
	if d.candidate == d.stable || now.Sub(d.since) < d.debounce {
		return
	}

	if d.candidate {
		d.onOpen()
	} else {
		d.onClose()
	}
}

func (d *DoorMonitor) onOpen() {
	paused, err := d.m.DoorOpened()
	if err != nil {
		// edge is retried on the next poll
		return
	}
	d.stable = true
	d.log.Infow("door_opened", "paused", paused)
	if !paused {
		return
	}
	if err := d.m.AllOutputsOff(); err != nil {
		d.log.Warnw("door_outputs_off_failed", "err", err)
	}
	if err := d.m.DisableHeater(); err != nil {
		d.log.Warnw("door_heater_disable_failed", "err", err)
	}
	if d.buzzer != nil {
		d.buzzer.Beep(2, 100*time.Millisecond, 100*time.Millisecond)
	}
}

func (d *DoorMonitor) onClose() {
	resumed, err := d.m.DoorClosed()
	if err != nil {
		return
	}
	d.stable = false
	d.log.Infow("door_closed", "soft_resume", resumed)
	if resumed {
		if err := d.m.EnableHeater(); err != nil {
			d.log.Warnw("door_heater_enable_failed", "err", err)
		}
	}
}
