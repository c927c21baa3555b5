package service

import (
	"context"
	"errors"
	"time"

	"smokehouse/internal/models"
	"smokehouse/internal/repository"
	"smokehouse/internal/state"
)

type MonitoringService struct {
	machine   Machine
	stateRepo repository.StateRepo
	sensors   Sensors
	volume    Volume
	now       func() time.Time
}

func NewMonitoringService(machine Machine, stateRepo repository.StateRepo, sensors Sensors, volume Volume) *MonitoringService {
	return &MonitoringService{machine: machine, stateRepo: stateRepo, sensors: sensors, volume: volume, now: time.Now}
}

// GetState returns the live snapshot. When the state lock is contended it
// falls back to the last persisted snapshot, then to an IDLE baseline.
func (s *MonitoringService) GetState(ctx context.Context) (models.ProcessSnapshot, error) {
	snap, err := s.machine.Snapshot()
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, state.ErrLockTimeout) {
		return models.ProcessSnapshot{}, err
	}

	stored, found, lerr := s.stateRepo.Load(ctx)
	if lerr != nil {
		return models.ProcessSnapshot{}, lerr
	}
	if !found {
		return s.baselineState(), nil
	}
	stored.UpdatedAt = toUTC(stored.UpdatedAt)
	return stored, nil
}

// Diagnostics gathers sensor, actuator and flash status.
func (s *MonitoringService) Diagnostics(_ context.Context) (Diagnostics, error) {
	now := s.now()
	d := Diagnostics{At: now.UTC()}
	if s.sensors != nil {
		d.Sensors = s.sensors.Diagnostics(now)
		d.Assignment = s.sensors.AssignmentInfo()
	}
	if s.volume != nil {
		d.Flash = s.volume.Info()
	}
	out, err := s.machine.Outputs()
	if err != nil {
		return d, err
	}
	d.Outputs = out
	return d, nil
}

// baselineState is the snapshot reported before anything was persisted.
func (s *MonitoringService) baselineState() models.ProcessSnapshot {
	return models.ProcessSnapshot{
		State:     models.StateIdle,
		PowerMode: 1,
		UpdatedAt: s.now().UTC(),
	}
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
