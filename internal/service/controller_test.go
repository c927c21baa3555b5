package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"smokehouse/internal/logger"
	"smokehouse/internal/models"
	"smokehouse/internal/state"
)

func TestControllerService_StepPollsAndTicks(t *testing.T) {
	t.Parallel()

	m := newFakeMachine()
	sensors := &fakeSensors{}
	door := &fakeDoor{}
	repo := &fakeStateRepo{}
	c := NewControllerService(m, sensors, door, repo, 10*time.Second, logger.Nop())

	t0 := time.Unix(1_000, 0)
	c.Step(context.Background(), t0)
	c.Step(context.Background(), t0.Add(time.Second))
	c.Step(context.Background(), t0.Add(11*time.Second))

	if sensors.polls != 3 || door.polls != 3 || m.tickCount() != 3 {
		t.Fatalf("polls=%d door=%d ticks=%d", sensors.polls, door.polls, m.tickCount())
	}
	// first cycle and the one after the interval elapsed
	if got := repo.saveCount(); got != 2 {
		t.Fatalf("snapshots saved = %d, want 2", got)
	}
}

func TestControllerService_SkippedTickKeepsRunning(t *testing.T) {
	t.Parallel()

	m := newFakeMachine()
	m.tickErr = state.ErrLockTimeout
	c := NewControllerService(m, nil, nil, nil, 0, logger.Nop())

	c.Step(context.Background(), time.Unix(1, 0))
	m.tickErr = errors.New("apply outputs: relay stuck")
	c.Step(context.Background(), time.Unix(2, 0))

	if m.tickCount() != 2 {
		t.Fatalf("ticks = %d, want 2", m.tickCount())
	}
}

func TestControllerService_RunSavesOnShutdown(t *testing.T) {
	t.Parallel()

	m := newFakeMachine()
	m.snap = models.ProcessSnapshot{State: models.StateRunningAuto}
	repo := &fakeStateRepo{}
	c := NewControllerService(m, &fakeSensors{}, &fakeDoor{}, repo, time.Hour, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.tickCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if m.tickCount() < 3 {
		t.Fatalf("ticks = %d, want >= 3", m.tickCount())
	}
	// one periodic save on the first tick plus the shutdown save
	if got := repo.saveCount(); got != 2 {
		t.Fatalf("snapshots saved = %d, want 2", got)
	}
	if repo.saved[1].UpdatedAt.IsZero() {
		t.Fatalf("shutdown snapshot has zero UpdatedAt")
	}
}

func TestRecorder_AppendsAndFlushes(t *testing.T) {
	t.Parallel()

	events := make(chan models.ProcessEvent, 4)
	repo := &fakeEventRepo{}
	r := NewRecorder(events, repo, logger.Nop())

	events <- models.ProcessEvent{Type: models.EventStart}
	events <- models.ProcessEvent{Type: models.EventStop}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	if len(repo.appended) != 2 {
		t.Fatalf("appended = %d, want 2", len(repo.appended))
	}
	if repo.appended[0].Type != models.EventStart || repo.appended[1].Type != models.EventStop {
		t.Fatalf("order = %v, %v", repo.appended[0].Type, repo.appended[1].Type)
	}
}
