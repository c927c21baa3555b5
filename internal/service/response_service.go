package service

import (
	"time"

	"smokehouse/internal/flash"
	"smokehouse/internal/models"
)

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "START", "STOP", "PAUSE", "RESUME", "STEP", "FAULT", "PROFILE", "DONE", "STORAGE"
}

// Diagnostics is the operator-facing status summary.
type Diagnostics struct {
	Sensors    string         `json:"sensors"`
	Assignment string         `json:"assignment"`
	Outputs    models.Outputs `json:"outputs"`
	Flash      flash.Info     `json:"flash"`
	At         time.Time      `json:"at"`
}
