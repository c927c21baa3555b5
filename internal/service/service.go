package service

import (
	"context"
	"time"

	"smokehouse/internal/config"
	"smokehouse/internal/flash"
	"smokehouse/internal/logger"
	"smokehouse/internal/models"
	"smokehouse/internal/repository"
	"smokehouse/internal/storage"
)

type Authorization interface {
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (string, error)
}

// Process exposes the operator commands of the state machine.
type Process interface {
	Start(ctx context.Context, mode models.RunMode) error
	Stop(ctx context.Context) error
	Resume(ctx context.Context) error
	SetManual(ctx context.Context, s models.ManualSettings) error
}

// Monitoring exposes read-only process state and diagnostics.
type Monitoring interface {
	GetState(ctx context.Context) (models.ProcessSnapshot, error)
	Diagnostics(ctx context.Context) (Diagnostics, error)
}

// EventLog exposes the append-only event log with filtering.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.ProcessEvent, error)
	Tail(ctx context.Context, n int64) ([]byte, error)
}

// Profiles lists, inspects, saves and activates smoking profiles.
type Profiles interface {
	List(ctx context.Context, source string) ([]string, error)
	Get(ctx context.Context, name string) ([]storage.StepData, error)
	Save(ctx context.Context, name string, steps []storage.StepData) error
	Select(ctx context.Context, path string) (models.Profile, error)
}

// Maintenance covers backups, sensor roles and storage recovery.
type Maintenance interface {
	ListBackups(ctx context.Context) ([]string, error)
	WriteBackup(ctx context.Context) (string, error)
	RestoreBackup(ctx context.Context, name string) (models.BackupRecord, error)
	AssignSensors(ctx context.Context, a models.SensorAssignment) error
	AutoDetectSensors(ctx context.Context) error
	Remount(ctx context.Context, format bool) (flash.Info, error)
}

// Controller runs the periodic control tick. Stop via context cancellation.
type Controller interface {
	Run(ctx context.Context, tick time.Duration)
}

type Service struct {
	Authorization
	Process
	Monitoring
	EventLog
	Profiles
	Maintenance
	Controller
}

// Deps are the collaborators the services are built from.
type Deps struct {
	Repos    *repository.Repository
	Machine  Machine
	Sensors  Sensors
	Door     DoorPoller
	Settings Settings
	Store    *storage.Store
	LogFile  *storage.LogFile
	Volume   Volume
	Auth     AuthConfig
	Limits   config.Limits

	SnapshotInterval time.Duration
	Log              *logger.Logger
}

func NewService(d Deps) *Service {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Service{
		Authorization: NewAuthService(d.Settings, d.Auth),
		Process:       NewProcessService(d.Machine, d.Settings, d.Limits, d.Log),
		Monitoring:    NewMonitoringService(d.Machine, d.Repos.StateRepo, d.Sensors, d.Volume),
		EventLog:      NewEventLogService(d.Repos.EventRepo, d.LogFile),
		Profiles:      NewProfileService(d.Store),
		Maintenance:   NewMaintenanceService(d.Store, d.Sensors, d.Volume, d.Machine, d.Log),
		Controller:    NewControllerService(d.Machine, d.Sensors, d.Door, d.Repos.StateRepo, d.SnapshotInterval, d.Log),
	}
}
