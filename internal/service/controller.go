package service

import (
	"context"
	"errors"
	"time"

	"smokehouse/internal/logger"
	"smokehouse/internal/models"
	"smokehouse/internal/repository"
	"smokehouse/internal/state"
)

// ControllerService drives the cooperative control loop: sensor polling,
// door debounce, the state machine tick and periodic snapshot persistence.
type ControllerService struct {
	machine   Machine
	sensors   Sensors
	door      DoorPoller
	stateRepo repository.StateRepo

	snapshotEvery time.Duration
	lastSnapshot  time.Time
	log           *logger.Logger
}

func NewControllerService(machine Machine, sensors Sensors, door DoorPoller, stateRepo repository.StateRepo, snapshotEvery time.Duration, log *logger.Logger) *ControllerService {
	if log == nil {
		log = logger.Nop()
	}
	return &ControllerService{
		machine:       machine,
		sensors:       sensors,
		door:          door,
		stateRepo:     stateRepo,
		snapshotEvery: snapshotEvery,
		log:           log,
	}
}

// Run ticks until ctx is cancelled, then persists a final snapshot.
func (c *ControllerService) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	c.log.Infow("controller_started", "tick", tick.String())
	for {
		select {
		case <-ctx.Done():
			c.saveSnapshot(context.WithoutCancel(ctx))
			c.log.Infow("controller_stopped")
			return
		case now := <-ticker.C:
			c.Step(ctx, now)
		}
	}
}

// Step runs a single control cycle.
func (c *ControllerService) Step(ctx context.Context, now time.Time) {
	if c.sensors != nil {
		c.sensors.Poll(ctx, now)
	}
	if c.door != nil {
		c.door.Poll(now)
	}
	if err := c.machine.Tick(now); err != nil {
		if errors.Is(err, state.ErrLockTimeout) {
			c.log.Debugw("tick_skipped", "err", err)
		} else {
			c.log.Warnw("tick_failed", "err", err)
		}
	}

	if c.snapshotEvery > 0 && now.Sub(c.lastSnapshot) >= c.snapshotEvery {
		c.saveSnapshot(ctx)
		c.lastSnapshot = now
	}
}

func (c *ControllerService) saveSnapshot(ctx context.Context) {
	if c.stateRepo == nil {
		return
	}
	snap, err := c.machine.Snapshot()
	if err != nil {
		return
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	if err := c.stateRepo.Save(ctx, snap); err != nil {
		c.log.Warnw("snapshot_save_failed", "err", err)
	}
}

// Recorder drains machine events into the event log.
type Recorder struct {
	events   <-chan models.ProcessEvent
	eventLog repository.EventRepo
	log      *logger.Logger
}

func NewRecorder(events <-chan models.ProcessEvent, eventLog repository.EventRepo, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{events: events, eventLog: eventLog, log: log}
}

// Run appends events until ctx is cancelled, then flushes what is buffered.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx))
			return
		case ev := <-r.events:
			r.record(ctx, ev)
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	for {
		select {
		case ev := <-r.events:
			r.record(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev models.ProcessEvent) {
	r.log.Infow("process_event", "type", ev.Type, "description", ev.Description)
	if err := r.eventLog.Append(ctx, ev); err != nil {
		r.log.Errorw("event_append_failed", "type", ev.Type, "err", err)
	}
}
