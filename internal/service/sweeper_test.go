package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestSweeper(now time.Time) (*Sweeper, *scheduleFixture) {
	f := newScheduleFixture(now)
	sweeper := NewSweeper(f.svc, zerolog.Nop(), SweeperConfig{Interval: time.Hour, Limit: 10})
	return sweeper, f
}

func TestSweeper_StartStop(t *testing.T) {
	sweeper, _ := newTestSweeper(time.Now())

	sweeper.Start(context.Background())
	if !sweeper.IsRunning() {
		t.Fatal("expected sweeper to be running")
	}

	// A second Start is a no-op rather than a second loop.
	sweeper.Start(context.Background())

	sweeper.Stop()
	if sweeper.IsRunning() {
		t.Error("expected sweeper to be stopped")
	}

	// A second Stop must not block or panic.
	sweeper.Stop()
}

func TestSweeper_InitialSweepOnStart(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 1, 0, 0, time.UTC)
	sweeper, f := newTestSweeper(now)
	sp := f.seedDue(t, now, nil)

	sweeper.Start(context.Background())
	defer sweeper.Stop()

	// The startup sweep picks up payments that came due while the
	// service was down.
	deadline := time.After(time.Second)
	for {
		got, err := f.schedules.GetByID(context.Background(), sp.ID)
		if err != nil {
			t.Fatalf("failed to load schedule: %v", err)
		}
		if got.TotalExecutions == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("startup sweep did not execute the due payment")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSweeper_SweepNow(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 1, 0, 0, time.UTC)
	sweeper, f := newTestSweeper(now)
	f.seedDue(t, now, nil)

	summary := sweeper.SweepNow(context.Background())
	if summary.Executed != 1 || summary.Succeeded != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	// Nothing left to do on a second manual sweep.
	summary = sweeper.SweepNow(context.Background())
	if summary.Executed != 0 {
		t.Errorf("expected idle sweep, got %+v", summary)
	}
}

func TestDefaultSweeperConfig(t *testing.T) {
	cfg := DefaultSweeperConfig()
	if cfg.Interval != time.Minute || cfg.Limit != 100 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}
