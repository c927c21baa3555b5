package models

import "time"

// Process event types.
const (
	EventStart   = "START"
	EventStop    = "STOP"
	EventPause   = "PAUSE"
	EventResume  = "RESUME"
	EventStep    = "STEP"
	EventFault   = "FAULT"
	EventProfile = "PROFILE"
	EventDone    = "DONE"
	EventStorage = "STORAGE"
)

// EventTypes lists every event type, for filter validation.
var EventTypes = []string{
	EventStart, EventStop, EventPause, EventResume, EventStep,
	EventFault, EventProfile, EventDone, EventStorage,
}

// ProcessEvent is a single log entry.
type ProcessEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
