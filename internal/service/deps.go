package service

import (
	"context"
	"time"

	"smokehouse/internal/flash"
	"smokehouse/internal/models"
)

// Machine is the subset of *state.Machine the services drive.
type Machine interface {
	Start(mode models.RunMode) error
	Stop() error
	Resume() error
	SetManual(s models.ManualSettings) error
	Snapshot() (models.ProcessSnapshot, error)
	Outputs() (models.Outputs, error)
	Tick(now time.Time) error
	Events() <-chan models.ProcessEvent
	SetStorageError(failed bool)
}

// Sensors is the subset of *sensor.Subsystem the services use.
type Sensors interface {
	Poll(ctx context.Context, now time.Time)
	Diagnostics(now time.Time) string
	AssignmentInfo() string
	Reassign(ctx context.Context, chamber, meat int) error
	AutoDetect(ctx context.Context) error
	ForceRead()
}

// DoorPoller is satisfied by *state.DoorMonitor.
type DoorPoller interface {
	Poll(now time.Time)
}

// Settings is the subset of *configstore.Store the services use.
type Settings interface {
	Auth(ctx context.Context) (user, pass string, err error)
	SaveManualSettings(ctx context.Context, m models.ManualSettings) error
}

// Volume is the subset of *flash.Manager the services use.
type Volume interface {
	Unmount()
	Remount(format bool) error
	Info() flash.Info
}
