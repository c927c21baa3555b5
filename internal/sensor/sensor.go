package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"smokehouse/internal/logger"
	"smokehouse/internal/models"
)

// Sentinel values reported by the probes.
const (
	Disconnected = -127.0
	PowerOnReset = 85.0
	Saturated    = 127.0
)

var (
	ErrTooFewSensors = errors.New("at least two sensors are required")
	ErrBadIndex      = errors.New("sensor index out of range")
)

// Bus is the one-wire temperature bus.
type Bus interface {
	DeviceCount() int
	// RequestConversion starts a conversion on every device and returns at once.
	RequestConversion() error
	ReadTempC(index int) float64
}

// Sink receives accepted readings and fault transitions. *state.Machine
// satisfies it.
type Sink interface {
	CommitChamber(tempC float64) error
	CommitMeat(tempC float64) error
	RaiseSensorFault() (bool, error)
	ClearSensorFault() (bool, error)
	LatchOverheat(tempC float64) (bool, error)
}

// AssignmentStore persists sensor roles. *configstore.Store satisfies it.
type AssignmentStore interface {
	SensorAssignment(ctx context.Context) (models.SensorAssignment, bool, error)
	SaveSensorAssignment(ctx context.Context, a models.SensorAssignment) error
}

// Indicator sounds n beeps.
type Indicator interface {
	Beep(n int, on, off time.Duration)
}

// Options tune acquisition.
type Options struct {
	RequestInterval time.Duration
	ConversionTime  time.Duration
	ErrorThreshold  int
	MinValidC       float64
	MaxValidC       float64
	OverheatC       float64
	Defaults        models.SensorAssignment
}

// Phase is the acquisition cycle position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRequested
	PhaseReady
	PhaseRead
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseRequested:
		return "CONVERSION_REQUESTED"
	case PhaseReady:
		return "CONVERSION_READY"
	case PhaseRead:
		return "READ"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// cachedReading is the last accepted value of one channel.
type cachedReading struct {
	value    float64
	at       time.Time
	valid    bool
	failures int
}

// Subsystem schedules conversions without blocking, then filters and caches
// readings and escalates faults. Poll runs on the control task; the operator
// calls may come from any goroutine.
type Subsystem struct {
	mu sync.Mutex

	bus    Bus
	sink   Sink
	store  AssignmentStore
	buzzer Indicator
	opts   Options
	log    *logger.Logger

	lastRequest time.Time
	readyAt     time.Time
	phase       Phase

	chamber  cachedReading
	meat     cachedReading
	errCount int

	assign     models.SensorAssignment
	identified bool
	overheat   bool
}

func New(bus Bus, sink Sink, store AssignmentStore, buzzer Indicator, opts Options, log *logger.Logger) *Subsystem {
	if log == nil {
		log = logger.Nop()
	}
	if opts.ErrorThreshold < 1 {
		opts.ErrorThreshold = 1
	}
	return &Subsystem{
		bus:     bus,
		sink:    sink,
		store:   store,
		buzzer:  buzzer,
		opts:    opts,
		log:     log,
		chamber: cachedReading{value: 25},
		meat:    cachedReading{value: 25},
		assign:  opts.Defaults,
	}
}

// Valid reports whether t can be a real probe reading.
func (s *Subsystem) Valid(t float64) bool {
	return !math.IsNaN(t) &&
		t != Disconnected &&
		t != PowerOnReset &&
		t != Saturated &&
		t >= s.opts.MinValidC &&
		t <= s.opts.MaxValidC
}

// Poll advances the acquisition cycle. It never waits for a conversion.
func (s *Subsystem) Poll(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.request(now)
	if s.readyAt.IsZero() {
		return
	}
	if now.Before(s.readyAt) {
		s.phase = PhaseRequested
		return
	}
	s.phase = PhaseReady
	s.readyAt = time.Time{}
	s.read(ctx, now)
	s.phase = PhaseRead
}

func (s *Subsystem) request(now time.Time) {
	if !s.lastRequest.IsZero() && now.Sub(s.lastRequest) < s.opts.RequestInterval {
		return
	}
	if err := s.bus.RequestConversion(); err != nil {
		s.log.Warnw("temp_request_failed", "err", err)
		return
	}
	s.lastRequest = now
	s.readyAt = now.Add(s.opts.ConversionTime)
	s.phase = PhaseRequested
}

// readProbe reads one device, retrying once on the power-on-reset value.
func (s *Subsystem) readProbe(index int) float64 {
	t := s.bus.ReadTempC(index)
	if t == PowerOnReset {
		t = s.bus.ReadTempC(index)
	}
	return t
}

func (s *Subsystem) read(ctx context.Context, now time.Time) {
	if !s.identified {
		if err := s.identify(ctx); err != nil {
			s.log.Warnw("sensors_not_identified_using_defaults", "err", err)
			s.assign = s.opts.Defaults
		}
	}

	tChamber := s.readProbe(s.assign.Chamber)
	tMeat := s.readProbe(s.assign.Meat)

	s.acceptChamber(tChamber, now)
	s.acceptMeat(tMeat, now)
	s.checkOverheat()
}

func (s *Subsystem) acceptChamber(t float64, now time.Time) {
	if !s.Valid(t) {
		s.errCount++
		s.chamber.failures++
		if s.errCount >= s.opts.ErrorThreshold {
			paused, err := s.sink.RaiseSensorFault()
			if err != nil {
				s.log.Warnw("sensor_fault_not_recorded", "err", err)
			} else if paused {
				s.log.Errorw("sensor_error_pausing", "failures", s.errCount)
			}
		}
		if s.chamber.valid {
			if err := s.sink.CommitChamber(s.chamber.value); err != nil {
				s.log.Warnw("chamber_commit_skipped", "err", err)
			}
			s.log.Warnw("using_cached_chamber_temp", "temp_c", s.chamber.value, "raw", t)
		}
		return
	}

	s.errCount = 0
	s.chamber = cachedReading{value: t, at: now, valid: true}
	if err := s.sink.CommitChamber(t); err != nil {
		s.log.Warnw("chamber_commit_skipped", "err", err)
	}
	cleared, err := s.sink.ClearSensorFault()
	if err != nil {
		s.log.Warnw("sensor_fault_clear_skipped", "err", err)
	} else if cleared {
		s.log.Infow("sensor_recovered", "temp_c", t)
	}
}

func (s *Subsystem) acceptMeat(t float64, now time.Time) {
	if !s.Valid(t) {
		s.meat.failures++
		if s.meat.valid {
			if err := s.sink.CommitMeat(s.meat.value); err != nil {
				s.log.Warnw("meat_commit_skipped", "err", err)
			}
		}
		return
	}
	s.meat = cachedReading{value: t, at: now, valid: true}
	if err := s.sink.CommitMeat(t); err != nil {
		s.log.Warnw("meat_commit_skipped", "err", err)
	}
}

// checkOverheat runs against the value that was committed this cycle.
func (s *Subsystem) checkOverheat() {
	if !s.chamber.valid || s.chamber.value <= s.opts.OverheatC {
		return
	}
	latched, err := s.sink.LatchOverheat(s.chamber.value)
	if err != nil {
		s.log.Warnw("overheat_not_recorded", "err", err)
		return
	}
	if latched {
		s.log.Errorw("overheat_detected", "temp_c", s.chamber.value, "limit_c", s.opts.OverheatC)
	}
}

// ForceRead makes the next Poll request a conversion regardless of the interval.
func (s *Subsystem) ForceRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRequest = time.Time{}
	s.readyAt = time.Time{}
	s.phase = PhaseIdle
}

// CacheAge is the age of the last accepted chamber reading, or -1 when there
// is none.
func (s *Subsystem) CacheAge(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.chamber.valid {
		return -1
	}
	return now.Sub(s.chamber.at)
}

// Phase returns the acquisition cycle position.
func (s *Subsystem) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ErrorCount returns the consecutive chamber failures.
func (s *Subsystem) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errCount
}

// Assignment returns the current role mapping and whether it was identified.
func (s *Subsystem) Assignment() (models.SensorAssignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assign, s.identified
}
