package service

import (
	"context"
	"sync"
	"time"

	"smokehouse/internal/flash"
	"smokehouse/internal/models"
)

type fakeMachine struct {
	mu sync.Mutex

	snap        models.ProcessSnapshot
	snapErr     error
	outputs     models.Outputs
	tickErr     error
	cmdErr      error
	manual      []models.ManualSettings
	started     []models.RunMode
	stops       int
	resumes     int
	ticks       []time.Time
	storageErrs []bool
	events      chan models.ProcessEvent
}

func newFakeMachine() *fakeMachine {
	return &fakeMachine{events: make(chan models.ProcessEvent, 8)}
}

func (f *fakeMachine) Start(mode models.RunMode) error {
	f.started = append(f.started, mode)
	return f.cmdErr
}
func (f *fakeMachine) Stop() error   { f.stops++; return f.cmdErr }
func (f *fakeMachine) Resume() error { f.resumes++; return f.cmdErr }
func (f *fakeMachine) SetManual(s models.ManualSettings) error {
	f.manual = append(f.manual, s)
	return f.cmdErr
}
func (f *fakeMachine) Snapshot() (models.ProcessSnapshot, error) { return f.snap, f.snapErr }
func (f *fakeMachine) Outputs() (models.Outputs, error)          { return f.outputs, nil }
func (f *fakeMachine) Tick(now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, now)
	return f.tickErr
}
func (f *fakeMachine) tickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ticks)
}
func (f *fakeMachine) Events() <-chan models.ProcessEvent { return f.events }
func (f *fakeMachine) SetStorageError(failed bool)        { f.storageErrs = append(f.storageErrs, failed) }

type fakeSensors struct {
	polls      int
	forced     int
	reassigned []models.SensorAssignment
	detects    int
	err        error
}

func (f *fakeSensors) Poll(context.Context, time.Time)  { f.polls++ }
func (f *fakeSensors) Diagnostics(time.Time) string     { return "2 sensors" }
func (f *fakeSensors) AssignmentInfo() string           { return "chamber=0 meat=1" }
func (f *fakeSensors) ForceRead()                       { f.forced++ }
func (f *fakeSensors) AutoDetect(context.Context) error { f.detects++; return f.err }
func (f *fakeSensors) Reassign(_ context.Context, ch, meat int) error {
	if f.err != nil {
		return f.err
	}
	f.reassigned = append(f.reassigned, models.SensorAssignment{Chamber: ch, Meat: meat})
	return nil
}

type fakeDoor struct{ polls int }

func (f *fakeDoor) Poll(time.Time) { f.polls++ }

type fakeVolume struct {
	unmounts   int
	remountErr error
	formats    []bool
}

func (f *fakeVolume) Unmount() { f.unmounts++ }
func (f *fakeVolume) Remount(format bool) error {
	f.formats = append(f.formats, format)
	return f.remountErr
}
func (f *fakeVolume) Info() flash.Info {
	return flash.Info{Label: "extfs", Ready: f.remountErr == nil, StorageError: f.remountErr != nil}
}

type fakeStateRepo struct {
	mu      sync.Mutex
	stored  models.ProcessSnapshot
	found   bool
	loadErr error
	saved   []models.ProcessSnapshot
}

func (f *fakeStateRepo) Load(context.Context) (models.ProcessSnapshot, bool, error) {
	return f.stored, f.found, f.loadErr
}

func (f *fakeStateRepo) Save(_ context.Context, s models.ProcessSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, s)
	return nil
}

func (f *fakeStateRepo) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeSettings struct {
	saved []models.ManualSettings
	err   error
}

func (f *fakeSettings) Auth(context.Context) (string, string, error) { return "admin", "admin", nil }
func (f *fakeSettings) SaveManualSettings(_ context.Context, m models.ManualSettings) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, m)
	return nil
}
