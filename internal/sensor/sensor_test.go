package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"smokehouse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	devices  int
	requests int
	reqErr   error
	// queued readings per index; the last one repeats
	temps map[int][]float64
	reads map[int]int
}

func newFakeBus(devices int) *fakeBus {
	return &fakeBus{devices: devices, temps: map[int][]float64{}, reads: map[int]int{}}
}

func (b *fakeBus) DeviceCount() int { return b.devices }

func (b *fakeBus) RequestConversion() error {
	b.requests++
	return b.reqErr
}

func (b *fakeBus) ReadTempC(i int) float64 {
	b.reads[i]++
	q := b.temps[i]
	if len(q) == 0 {
		return Disconnected
	}
	t := q[0]
	if len(q) > 1 {
		b.temps[i] = q[1:]
	}
	return t
}

type fakeSink struct {
	chamber, meat float64
	sensorFault   bool
	overheat      bool
	raises        int
	pauses        int
	running       bool
}

func (f *fakeSink) CommitChamber(t float64) error { f.chamber = t; return nil }
func (f *fakeSink) CommitMeat(t float64) error    { f.meat = t; return nil }
func (f *fakeSink) RaiseSensorFault() (bool, error) {
	f.raises++
	f.sensorFault = true
	if f.running {
		f.running = false
		f.pauses++
		return true, nil
	}
	return false, nil
}
func (f *fakeSink) ClearSensorFault() (bool, error) {
	was := f.sensorFault
	f.sensorFault = false
	return was, nil
}
func (f *fakeSink) LatchOverheat(float64) (bool, error) {
	was := f.overheat
	f.overheat = true
	return !was, nil
}

type memAssignments struct {
	a     models.SensorAssignment
	found bool
	saves int
}

func (m *memAssignments) SensorAssignment(context.Context) (models.SensorAssignment, bool, error) {
	return m.a, m.found, nil
}

func (m *memAssignments) SaveSensorAssignment(_ context.Context, a models.SensorAssignment) error {
	if a.Chamber == a.Meat {
		return errors.New("same")
	}
	m.a, m.found = a, true
	m.saves++
	return nil
}

type countingBuzzer struct{ patterns []int }

func (b *countingBuzzer) Beep(n int, _, _ time.Duration) { b.patterns = append(b.patterns, n) }

var testOpts = Options{
	RequestInterval: 2 * time.Second,
	ConversionTime:  750 * time.Millisecond,
	ErrorThreshold:  3,
	MinValidC:       -20,
	MaxValidC:       200,
	OverheatC:       150,
	Defaults:        models.SensorAssignment{Chamber: 0, Meat: 1},
}

type harness struct {
	s      *Subsystem
	bus    *fakeBus
	sink   *fakeSink
	store  *memAssignments
	buzzer *countingBuzzer
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		bus:    newFakeBus(2),
		sink:   &fakeSink{},
		store:  &memAssignments{},
		buzzer: &countingBuzzer{},
		now:    time.Unix(1000, 0),
	}
	h.s = New(h.bus, h.sink, h.store, h.buzzer, testOpts, nil)
	return h
}

// cycle runs one full request/read cycle.
func (h *harness) cycle() {
	ctx := context.Background()
	h.s.Poll(ctx, h.now)
	h.now = h.now.Add(testOpts.ConversionTime)
	h.s.Poll(ctx, h.now)
	h.now = h.now.Add(testOpts.RequestInterval)
}

func TestPoll_NeverReadsBeforeConversionCompletes(t *testing.T) {
	h := newHarness(t)
	h.bus.temps[0] = []float64{60}
	h.bus.temps[1] = []float64{40}
	ctx := context.Background()

	h.s.Poll(ctx, h.now)
	assert.Equal(t, 1, h.bus.requests)
	assert.Equal(t, PhaseRequested, h.s.Phase())

	h.s.Poll(ctx, h.now.Add(500*time.Millisecond))
	assert.Equal(t, 0, h.bus.reads[0])
	assert.Equal(t, 1, h.bus.requests, "no second request inside the interval")

	h.s.Poll(ctx, h.now.Add(750*time.Millisecond))
	assert.Equal(t, 1, h.bus.reads[0])
	assert.Equal(t, PhaseRead, h.s.Phase())
	assert.Equal(t, 60.0, h.sink.chamber)
	assert.Equal(t, 40.0, h.sink.meat)

	// nothing pending, nothing read
	h.s.Poll(ctx, h.now.Add(time.Second))
	assert.Equal(t, 1, h.bus.reads[0])
}

func TestPoll_PowerOnResetRetriedOnce(t *testing.T) {
	h := newHarness(t)
	h.bus.temps[0] = []float64{PowerOnReset, 64.5}
	h.bus.temps[1] = []float64{PowerOnReset, PowerOnReset, 50}

	h.cycle()
	assert.Equal(t, 2, h.bus.reads[0])
	assert.Equal(t, 64.5, h.sink.chamber)
	assert.Equal(t, 2, h.bus.reads[1], "exactly one retry")
	assert.Equal(t, 0.0, h.sink.meat, "85 twice is rejected")
}

func TestValid(t *testing.T) {
	s := New(newFakeBus(2), &fakeSink{}, &memAssignments{}, nil, testOpts, nil)
	tests := []struct {
		temp float64
		want bool
	}{
		{Disconnected, false},
		{PowerOnReset, false},
		{Saturated, false},
		{-20.5, false},
		{200.1, false},
		{-20, true},
		{84.9, true},
		{200, true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, s.Valid(tc.temp), "temp %v", tc.temp)
	}
}

func TestInvalidReadings_SubstituteCacheThenPauseOnce(t *testing.T) {
	h := newHarness(t)
	h.sink.running = true
	h.bus.temps[0] = []float64{70, Disconnected}
	h.bus.temps[1] = []float64{55, Disconnected}

	h.cycle()
	require.Equal(t, 70.0, h.sink.chamber)

	h.sink.chamber = 0
	h.cycle()
	assert.Equal(t, 70.0, h.sink.chamber, "cached value substituted")
	assert.Equal(t, 55.0, h.sink.meat)
	assert.False(t, h.sink.sensorFault)

	h.cycle()
	h.cycle()
	assert.True(t, h.sink.sensorFault)
	assert.Equal(t, 1, h.sink.pauses)

	h.cycle()
	assert.Equal(t, 1, h.sink.pauses, "paused exactly once")
}

func TestValidReadingClearsFaultWithoutResume(t *testing.T) {
	h := newHarness(t)
	h.sink.running = true
	h.bus.temps[0] = []float64{Disconnected, Disconnected, Disconnected, 66}
	h.bus.temps[1] = []float64{50}

	for i := 0; i < 3; i++ {
		h.cycle()
	}
	require.True(t, h.sink.sensorFault)
	require.False(t, h.sink.running)

	h.cycle()
	assert.False(t, h.sink.sensorFault)
	assert.False(t, h.sink.running)
	assert.Equal(t, 0, h.s.ErrorCount())
}

func TestOverheatLatchedOncePerEdge(t *testing.T) {
	h := newHarness(t)
	h.bus.temps[0] = []float64{151, 152, 90}
	h.bus.temps[1] = []float64{60}

	h.cycle()
	assert.True(t, h.sink.overheat)
	h.cycle()
	h.cycle()
	assert.True(t, h.sink.overheat, "in-range reading does not clear")
}

func TestIdentify_FirstRunPersistsDefaultsAndBeeps(t *testing.T) {
	h := newHarness(t)
	h.bus.temps[0] = []float64{60}
	h.bus.temps[1] = []float64{40}

	h.cycle()
	a, ok := h.s.Assignment()
	assert.True(t, ok)
	assert.Equal(t, models.SensorAssignment{Chamber: 0, Meat: 1}, a)
	assert.Equal(t, 1, h.store.saves)
	assert.Equal(t, []int{3}, h.buzzer.patterns)

	h.cycle()
	assert.Equal(t, 1, h.store.saves, "identification runs once")
}

func TestIdentify_LoadsPersistedAssignment(t *testing.T) {
	h := newHarness(t)
	h.store.a, h.store.found = models.SensorAssignment{Chamber: 1, Meat: 0}, true
	h.bus.temps[0] = []float64{40}
	h.bus.temps[1] = []float64{60}

	h.cycle()
	assert.Equal(t, 60.0, h.sink.chamber)
	assert.Equal(t, 40.0, h.sink.meat)
	assert.Equal(t, 0, h.store.saves)
	assert.Empty(t, h.buzzer.patterns)
}

func TestIdentify_SingleSensorUsesDefaultsUnidentified(t *testing.T) {
	h := newHarness(t)
	h.bus.devices = 1
	h.bus.temps[0] = []float64{60}

	h.cycle()
	_, ok := h.s.Assignment()
	assert.False(t, ok)
	assert.Equal(t, 60.0, h.sink.chamber)
	assert.Equal(t, 0, h.store.saves)
}

func TestReassign(t *testing.T) {
	h := newHarness(t)
	h.bus.devices = 3
	ctx := context.Background()

	assert.ErrorIs(t, h.s.Reassign(ctx, 1, 1), models.ErrSameSensor)
	assert.ErrorIs(t, h.s.Reassign(ctx, -1, 1), ErrBadIndex)
	assert.ErrorIs(t, h.s.Reassign(ctx, 0, 3), ErrBadIndex)
	assert.Equal(t, 0, h.store.saves)

	require.NoError(t, h.s.Reassign(ctx, 2, 0))
	assert.Equal(t, models.SensorAssignment{Chamber: 2, Meat: 0}, h.store.a)
	assert.Equal(t, []int{2}, h.buzzer.patterns)
	assert.Contains(t, h.s.AssignmentInfo(), "Chamber: Sensor 2")
	assert.Contains(t, h.s.AssignmentInfo(), "Total sensors: 3")
}

func TestAutoDetect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.s.Reassign(ctx, 1, 0))

	require.NoError(t, h.s.AutoDetect(ctx))
	a, ok := h.s.Assignment()
	assert.True(t, ok)
	assert.Equal(t, testOpts.Defaults, a)

	h.bus.devices = 1
	assert.ErrorIs(t, h.s.AutoDetect(ctx), ErrTooFewSensors)
}

func TestForceReadAndCacheAge(t *testing.T) {
	h := newHarness(t)
	h.bus.temps[0] = []float64{60}
	h.bus.temps[1] = []float64{40}
	ctx := context.Background()

	assert.Equal(t, time.Duration(-1), h.s.CacheAge(h.now))

	h.s.Poll(ctx, h.now)
	h.s.Poll(ctx, h.now.Add(time.Second))
	assert.Equal(t, 5*time.Second, h.s.CacheAge(h.now.Add(6*time.Second)))

	h.s.ForceRead()
	h.s.Poll(ctx, h.now.Add(1100*time.Millisecond))
	assert.Equal(t, 2, h.bus.requests, "forced request ignores the interval")

	diag := h.s.Diagnostics(h.now.Add(6 * time.Second))
	assert.Contains(t, diag, "Chamber: 60.0 C (sensor: 0, age: 5s, valid: true)")
	assert.Contains(t, diag, "Identified: YES")
}

func TestRequestFailureSchedulesNothing(t *testing.T) {
	h := newHarness(t)
	h.bus.reqErr = errors.New("bus short")
	h.s.Poll(context.Background(), h.now)
	h.s.Poll(context.Background(), h.now.Add(time.Second))
	assert.Equal(t, 0, h.bus.reads[0])
}
