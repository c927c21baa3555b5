package service

import (
	"context"

	"smokehouse/internal/flash"
	"smokehouse/internal/logger"
	"smokehouse/internal/models"
	"smokehouse/internal/storage"
)

// MaintenanceService covers backups, sensor roles and flash recovery.
type MaintenanceService struct {
	store   *storage.Store
	sensors Sensors
	volume  Volume
	machine Machine
	log     *logger.Logger
}

func NewMaintenanceService(store *storage.Store, sensors Sensors, volume Volume, machine Machine, log *logger.Logger) *MaintenanceService {
	return &MaintenanceService{store: store, sensors: sensors, volume: volume, machine: machine, log: log}
}

func (s *MaintenanceService) ListBackups(ctx context.Context) ([]string, error) {
	return s.store.ListBackups(ctx)
}

func (s *MaintenanceService) WriteBackup(ctx context.Context) (string, error) {
	return s.store.WriteBackup(ctx)
}

func (s *MaintenanceService) RestoreBackup(ctx context.Context, name string) (models.BackupRecord, error) {
	return s.store.RestoreBackup(ctx, name)
}

func (s *MaintenanceService) AssignSensors(ctx context.Context, a models.SensorAssignment) error {
	if err := s.sensors.Reassign(ctx, a.Chamber, a.Meat); err != nil {
		return err
	}
	s.sensors.ForceRead()
	return nil
}

func (s *MaintenanceService) AutoDetectSensors(ctx context.Context) error {
	if err := s.sensors.AutoDetect(ctx); err != nil {
		return err
	}
	s.sensors.ForceRead()
	return nil
}

// Remount unmounts the flash filesystem and mounts it again through the
// manager's recovery path, optionally formatting it.
func (s *MaintenanceService) Remount(_ context.Context, format bool) (flash.Info, error) {
	s.log.Infow("flash_remount_requested", "format", format)
	s.volume.Unmount()
	err := s.volume.Remount(format)
	s.machine.SetStorageError(err != nil)
	return s.volume.Info(), err
}
