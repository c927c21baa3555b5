package service

import (
	"context"
	"fmt"

	"smokehouse/internal/config"
	"smokehouse/internal/logger"
	"smokehouse/internal/models"
)

// ProcessService forwards operator commands to the state machine.
type ProcessService struct {
	machine  Machine
	settings Settings
	limits   config.Limits
	log      *logger.Logger
}

func NewProcessService(machine Machine, settings Settings, limits config.Limits, log *logger.Logger) *ProcessService {
	return &ProcessService{machine: machine, settings: settings, limits: limits, log: log}
}

func (s *ProcessService) Start(_ context.Context, mode models.RunMode) error {
	return s.machine.Start(mode)
}

func (s *ProcessService) Stop(_ context.Context) error {
	return s.machine.Stop()
}

func (s *ProcessService) Resume(_ context.Context) error {
	return s.machine.Resume()
}

// SetManual clamps and persists the manual-mode values first, so a restart
// picks up what the running process uses.
func (s *ProcessService) SetManual(ctx context.Context, m models.ManualSettings) error {
	m = s.clamp(m)
	if err := s.settings.SaveManualSettings(ctx, m); err != nil {
		return fmt.Errorf("persist manual settings: %w", err)
	}
	if err := s.machine.SetManual(m); err != nil {
		return err
	}
	s.log.Infow("manual_settings_updated",
		"setpoint_c", m.SetpointC, "power", m.PowerMode, "smoke", m.Smoke, "fan", m.FanMode)
	return nil
}

func (s *ProcessService) clamp(m models.ManualSettings) models.ManualSettings {
	l := s.limits
	m.SetpointC = min(max(m.SetpointC, l.MinSetC), l.MaxSetC)
	m.PowerMode = min(max(m.PowerMode, l.MinPower), l.MaxPower)
	m.Smoke = min(max(m.Smoke, l.MinSmoke), l.MaxSmoke)
	m.FanMode = min(max(m.FanMode, 0), l.MaxFanMode)
	return m
}
