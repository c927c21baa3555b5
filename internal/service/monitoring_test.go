package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"smokehouse/internal/models"
	"smokehouse/internal/state"
)

func TestMonitoringService_GetState(t *testing.T) {
	t.Parallel()

	type testCase struct {
		name       string
		snapErr    error
		repo       *fakeStateRepo
		assertFunc func(t *testing.T, got models.ProcessSnapshot, err error)
	}

	now := time.Now()

	cases := []testCase{
		{
			name: "returns live snapshot",
			repo: &fakeStateRepo{},
			assertFunc: func(t *testing.T, got models.ProcessSnapshot, err error) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.State != models.StateRunningManual || got.SetpointC != 80 {
					t.Errorf("unexpected snapshot: %+v", got)
				}
			},
		},
		{
			name:    "propagates non-timeout machine error",
			snapErr: errors.New("boom"),
			repo:    &fakeStateRepo{},
			assertFunc: func(t *testing.T, _ models.ProcessSnapshot, err error) {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
			},
		},
		{
			name:    "propagates repository error on fallback",
			snapErr: state.ErrLockTimeout,
			repo:    &fakeStateRepo{loadErr: errors.New("db down")},
			assertFunc: func(t *testing.T, _ models.ProcessSnapshot, err error) {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
			},
		},
		{
			name:    "returns baseline when nothing persisted",
			snapErr: state.ErrLockTimeout,
			repo:    &fakeStateRepo{},
			assertFunc: func(t *testing.T, got models.ProcessSnapshot, err error) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.State != models.StateIdle {
					t.Errorf("baseline State: want IDLE, got %v", got.State)
				}
				if got.PowerMode != 1 {
					t.Errorf("baseline PowerMode: want 1, got %d", got.PowerMode)
				}
				if got.UpdatedAt.Location() != time.UTC {
					t.Errorf("baseline UpdatedAt must be UTC, got %v", got.UpdatedAt.Location())
				}
				assertWithin(t, got.UpdatedAt, time.Since(now)+200*time.Millisecond)
			},
		},
		{
			name:    "normalizes persisted UpdatedAt to UTC",
			snapErr: state.ErrLockTimeout,
			repo: &fakeStateRepo{found: true, stored: models.ProcessSnapshot{
				State:     models.StatePauseDoor,
				ChamberC:  64.5,
				UpdatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", -3*3600)),
			}},
			assertFunc: func(t *testing.T, got models.ProcessSnapshot, err error) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.State != models.StatePauseDoor || got.ChamberC != 64.5 {
					t.Errorf("unexpected snapshot: %+v", got)
				}
				wantUTC := time.Date(2025, 1, 2, 6, 4, 5, 0, time.UTC)
				if !got.UpdatedAt.Equal(wantUTC) || got.UpdatedAt.Location() != time.UTC {
					t.Errorf("UpdatedAt: want %v, got %v", wantUTC, got.UpdatedAt)
				}
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			m := newFakeMachine()
			m.snap = models.ProcessSnapshot{State: models.StateRunningManual, SetpointC: 80}
			m.snapErr = tc.snapErr

			svc := NewMonitoringService(m, tc.repo, &fakeSensors{}, &fakeVolume{})

			got, err := svc.GetState(ctx)
			tc.assertFunc(t, got, err)
		})
	}
}

func TestMonitoringService_Diagnostics(t *testing.T) {
	t.Parallel()

	m := newFakeMachine()
	m.outputs = models.Outputs{HeaterStages: 2, FanOn: true}
	svc := NewMonitoringService(m, &fakeStateRepo{}, &fakeSensors{}, &fakeVolume{})

	d, err := svc.Diagnostics(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Sensors != "2 sensors" || d.Assignment != "chamber=0 meat=1" {
		t.Errorf("sensor fields: %+v", d)
	}
	if d.Outputs.HeaterStages != 2 || !d.Outputs.FanOn {
		t.Errorf("outputs: %+v", d.Outputs)
	}
	if d.Flash.Label != "extfs" || !d.Flash.Ready {
		t.Errorf("flash: %+v", d.Flash)
	}
}

func TestToUTC(t *testing.T) {
	t.Parallel()

	t.Run("zero time is preserved", func(t *testing.T) {
		t.Parallel()
		var z time.Time
		if got := toUTC(z); !got.IsZero() {
			t.Fatalf("expected zero time, got %v", got)
		}
	})

	t.Run("non-zero converted to UTC", func(t *testing.T) {
		t.Parallel()
		local := time.Date(2025, 2, 3, 10, 0, 0, 0, time.FixedZone("Z+2", 2*3600))
		got := toUTC(local)
		want := time.Date(2025, 2, 3, 8, 0, 0, 0, time.UTC)
		if got.Location() != time.UTC {
			t.Fatalf("expected UTC location, got %v", got.Location())
		}
		if !got.Equal(want) {
			t.Fatalf("want %v, got %v", want, got)
		}
	})
}

// assertWithin checks that got is within dur of now.
func assertWithin(t *testing.T, got time.Time, dur time.Duration) {
	t.Helper()
	if got.IsZero() {
		t.Fatalf("time is zero")
	}
	diff := time.Since(got)
	if diff < 0 {
		diff = -diff
	}
	if diff > dur {
		t.Fatalf("time %v not within %v of now; diff=%v", got, dur, diff)
	}
}
