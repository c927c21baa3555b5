package sensor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smokehouse/internal/models"
)

// identify loads the persisted roles or, on first run, assigns and persists
// the default ones. It needs at least two devices on the bus.
func (s *Subsystem) identify(ctx context.Context) error {
	if s.identified {
		return nil
	}
	count := s.bus.DeviceCount()
	s.log.Infow("identifying_sensors", "count", count)
	if count < 2 {
		return ErrTooFewSensors
	}

	if a, found, err := s.store.SensorAssignment(ctx); err != nil {
		s.log.Warnw("sensor_assignment_load_failed", "err", err)
	} else if found && a.Chamber < count && a.Meat < count {
		s.assign = a
		s.identified = true
		s.log.Infow("sensor_assignment_loaded", "chamber", a.Chamber, "meat", a.Meat)
		return nil
	}

	return s.assignDefaults(ctx)
}

func (s *Subsystem) assignDefaults(ctx context.Context) error {
	a := s.opts.Defaults
	if err := s.store.SaveSensorAssignment(ctx, a); err != nil {
		// the roles still apply for this boot
		s.log.Warnw("sensor_assignment_save_failed", "err", err)
	}
	s.assign = a
	s.identified = true
	s.log.Infow("sensor_assigned", "chamber", a.Chamber, "meat", a.Meat)
	s.beep(3, 200*time.Millisecond, 100*time.Millisecond)
	return nil
}

// Reassign maps the roles to new physical indices and persists them.
func (s *Subsystem) Reassign(ctx context.Context, chamber, meat int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chamber == meat {
		s.log.Errorw("sensor_reassign_rejected_same_index", "index", chamber)
		return fmt.Errorf("reassign %d/%d: %w", chamber, meat, models.ErrSameSensor)
	}
	count := s.bus.DeviceCount()
	if chamber < 0 || meat < 0 || chamber >= count || meat >= count {
		return fmt.Errorf("reassign %d/%d of %d: %w", chamber, meat, count, ErrBadIndex)
	}
	a := models.SensorAssignment{Chamber: chamber, Meat: meat}
	if err := s.store.SaveSensorAssignment(ctx, a); err != nil {
		return fmt.Errorf("persist assignment: %w", err)
	}
	s.assign = a
	s.identified = true
	s.log.Infow("sensors_reassigned", "chamber", chamber, "meat", meat)
	s.beep(2, 100*time.Millisecond, 100*time.Millisecond)
	return nil
}

// AutoDetect discards the current roles and assigns the defaults again.
func (s *Subsystem) AutoDetect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus.DeviceCount() < 2 {
		s.log.Errorw("sensor_autodetect_needs_two")
		return ErrTooFewSensors
	}
	s.identified = false
	return s.assignDefaults(ctx)
}

func (s *Subsystem) beep(n int, on, off time.Duration) {
	if s.buzzer != nil {
		s.buzzer.Beep(n, on, off)
	}
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func ageSeconds(c cachedReading, now time.Time) int64 {
	if !c.valid {
		return 0
	}
	return int64(now.Sub(c.at) / time.Second)
}

// Diagnostics is a multi-line status suitable for a display or the log.
func (s *Subsystem) Diagnostics(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "Chamber: %.1f C (sensor: %d, age: %ds, valid: %t)\n",
		s.chamber.value, s.assign.Chamber, ageSeconds(s.chamber, now), s.chamber.valid)
	fmt.Fprintf(&b, "Meat: %.1f C (sensor: %d, age: %ds, valid: %t)\n",
		s.meat.value, s.assign.Meat, ageSeconds(s.meat, now), s.meat.valid)
	fmt.Fprintf(&b, "Error count: %d, Identified: %s", s.errCount, yesNo(s.identified))
	return b.String()
}

// AssignmentInfo describes the role mapping.
func (s *Subsystem) AssignmentInfo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("Sensor Assignments:\n  Chamber: Sensor %d\n  Meat: Sensor %d\n  Total sensors: %d\n  Identified: %s",
		s.assign.Chamber, s.assign.Meat, s.bus.DeviceCount(), yesNo(s.identified))
}
