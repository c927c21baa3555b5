// Package sim models the smoker hardware so the daemon runs on a host
// without the controller board.
package sim

import (
	"math"
	"sync"
	"time"

	"smokehouse/internal/logger"
	"smokehouse/internal/models"
	"smokehouse/internal/sensor"
)

// ----------- Thermal model constants -----------
const (
	AmbientC          = 20.0  // outside air °C
	HeatPerStageCPerS = 0.12  // °C per second per driven heater stage
	LossPerS          = 0.004 // Newton cooling coefficient, 1/s
	FanLossFactor     = 1.4   // extra loss with the fan running
	DoorLossFactor    = 5.0   // extra loss with the door open
	MeatCouplingPerS  = 0.002 // meat follows chamber, 1/s
	maxSubstep        = time.Second
	probeResolutionC  = 0.0625 // 12-bit one-wire probe
)

// Probe indices on the simulated bus.
const (
	ChamberProbe = 0
	MeatProbe    = 1
)

// Smoker is a lumped thermal model of the chamber and the meat. It stands in
// for the one-wire bus, door switch, actuator drivers, buzzer, watchdog and
// network link.
type Smoker struct {
	mu  sync.Mutex
	now func() time.Time
	log *logger.Logger

	chamberC float64
	meatC    float64
	last     time.Time

	outputs   models.Outputs
	doorOpen  bool
	connected bool

	probes       int
	disconnected map[int]bool
	latched      []float64
	converted    bool

	beeps int
	feeds int
}

// NewSmoker starts the chamber and meat at ambient with two probes attached.
func NewSmoker(log *logger.Logger) *Smoker {
	if log == nil {
		log = logger.Nop()
	}
	return &Smoker{
		now:          time.Now,
		log:          log,
		chamberC:     AmbientC,
		meatC:        AmbientC,
		connected:    true,
		probes:       2,
		disconnected: make(map[int]bool),
	}
}

// SetClock replaces time.Now, for tests.
func (s *Smoker) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	s.last = time.Time{}
}

// advanceLocked integrates the model up to the current time.
func (s *Smoker) advanceLocked() {
	now := s.now()
	if s.last.IsZero() {
		s.last = now
		return
	}
	elapsed := now.Sub(s.last)
	s.last = now
	for elapsed > 0 {
		dt := min(elapsed, maxSubstep)
		elapsed -= dt
		s.stepLocked(dt.Seconds())
	}
}

func (s *Smoker) stepLocked(dt float64) {
	loss := LossPerS
	if s.outputs.FanOn {
		loss *= FanLossFactor
	}
	if s.doorOpen {
		loss *= DoorLossFactor
	}
	heat := float64(s.outputs.HeaterStages) * HeatPerStageCPerS
	s.chamberC += (heat - loss*(s.chamberC-AmbientC)) * dt
	s.meatC += MeatCouplingPerS * (s.chamberC - s.meatC) * dt
}

// Temperatures returns the true model temperatures.
func (s *Smoker) Temperatures() (chamberC, meatC float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked()
	return s.chamberC, s.meatC
}

// SetTemperatures overrides the model state.
func (s *Smoker) SetTemperatures(chamberC, meatC float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked()
	s.chamberC, s.meatC = chamberC, meatC
}

// ---- actuators ----

// Apply drives the simulated heater, fan and smoke generator.
func (s *Smoker) Apply(out models.Outputs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked()
	s.outputs = out
	return nil
}

// Outputs returns the last applied actuator state.
func (s *Smoker) Outputs() models.Outputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs
}

// ---- one-wire bus ----

func (s *Smoker) DeviceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probes
}

// SetProbeCount changes how many devices the bus enumerates.
func (s *Smoker) SetProbeCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes = n
}

// Disconnect makes probe i read as disconnected until reconnected.
func (s *Smoker) Disconnect(i int, off bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected[i] = off
}

// RequestConversion latches the current temperatures, quantised to the
// probe resolution.
func (s *Smoker) RequestConversion() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked()
	s.latched = s.latched[:0]
	for i := 0; i < s.probes; i++ {
		var t float64
		switch i {
		case ChamberProbe:
			t = s.chamberC
		case MeatProbe:
			t = s.meatC
		default:
			t = AmbientC
		}
		s.latched = append(s.latched, quantise(t))
	}
	s.converted = true
	return nil
}

// ReadTempC returns the last conversion of probe i. Before the first
// conversion a probe reports its power-on value.
func (s *Smoker) ReadTempC(i int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= s.probes || s.disconnected[i] {
		return sensor.Disconnected
	}
	if !s.converted || i >= len(s.latched) {
		return sensor.PowerOnReset
	}
	return s.latched[i]
}

func quantise(t float64) float64 {
	return math.Round(t/probeResolutionC) * probeResolutionC
}

// ---- door, buzzer, watchdog, network ----

func (s *Smoker) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doorOpen
}

// SetDoor opens or closes the simulated door.
func (s *Smoker) SetDoor(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked()
	s.doorOpen = open
}

// Beep logs the pattern instead of sounding it.
func (s *Smoker) Beep(n int, on, off time.Duration) {
	s.mu.Lock()
	s.beeps += n
	s.mu.Unlock()
	s.log.Infow("buzzer", "beeps", n, "on", on.String(), "off", off.String())
}

// Beeps returns the total number of beeps sounded.
func (s *Smoker) Beeps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beeps
}

func (s *Smoker) Feed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds++
}

// Feeds returns how often the watchdog was fed.
func (s *Smoker) Feeds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds
}

func (s *Smoker) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SetConnected toggles the simulated station link.
func (s *Smoker) SetConnected(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = up
}
