package state

// Hysteresis is an on/off heater controller with a lower switching band.
// Power mode selects how many of the three heater stages are driven.
type Hysteresis struct {
	band float64
	on   bool
}

// NewHysteresis returns a controller that switches on below setpoint-band.
func NewHysteresis(bandC float64) *Hysteresis {
	if bandC < 0 {
		bandC = -bandC
	}
	return &Hysteresis{band: bandC}
}

func (h *Hysteresis) Stages(chamberC, setpointC float64, powerMode int) int {
	switch {
	case chamberC >= setpointC:
		h.on = false
	case chamberC <= setpointC-h.band:
		h.on = true
	}
	if !h.on {
		return 0
	}
	return min(max(powerMode, 1), 3)
}
