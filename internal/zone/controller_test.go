package zone

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/PaweMed/weathermap-sprinkler/internal/relay"
	"github.com/PaweMed/weathermap-sprinkler/internal/store"
)

func newTestController(t *testing.T) (*Controller, *relay.FakeDriver, *store.MemStore) {
	t.Helper()
	driver := relay.NewFakeDriver()
	st := store.NewMemStore()
	c := NewController(8, driver, st, zap.NewNop().Sugar())
	return c, driver, st
}

func TestStartupFailClosed(t *testing.T) {
	_, driver, _ := newTestController(t)

	if len(driver.Sets) != 8 {
		t.Fatalf("expected 8 initial sets, got %d", len(driver.Sets))
	}
	for _, s := range driver.Sets {
		if s.On {
			t.Errorf("zone %d driven high at startup", s.Channel)
		}
	}
}

func TestStartStop(t *testing.T) {
	c, driver, _ := newTestController(t)
	now := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)

	if err := c.Start(2, 600*time.Second, now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.IsOpen(2) {
		t.Error("zone 2 should be open")
	}
	if !driver.States[2] {
		t.Error("relay 2 should be driven high")
	}

	snap := c.Snapshot(now)
	if snap[2].TimeLeft != 600 {
		t.Errorf("expected 600s left, got %d", snap[2].TimeLeft)
	}

	if err := c.Stop(2); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.IsOpen(2) || driver.States[2] {
		t.Error("zone 2 should be closed")
	}

	// Stop is idempotent.
	if err := c.Stop(2); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestStartOverwritesDeadline(t *testing.T) {
	c, _, _ := newTestController(t)
	now := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)

	c.Start(1, 600*time.Second, now)
	c.Start(1, 60*time.Second, now.Add(10*time.Second))

	// Last writer wins: no additive stacking.
	snap := c.Snapshot(now.Add(10 * time.Second))
	if snap[1].TimeLeft != 60 {
		t.Errorf("expected 60s left after overwrite, got %d", snap[1].TimeLeft)
	}
}

func TestInvalidZone(t *testing.T) {
	c, _, _ := newTestController(t)
	now := time.Now()

	for _, id := range []int{-1, 8, 100} {
		if err := c.Start(id, time.Minute, now); !errors.Is(err, ErrInvalidZone) {
			t.Errorf("Start(%d): expected ErrInvalidZone, got %v", id, err)
		}
		if err := c.Stop(id); !errors.Is(err, ErrInvalidZone) {
			t.Errorf("Stop(%d): expected ErrInvalidZone, got %v", id, err)
		}
		if err := c.Toggle(id, now); !errors.Is(err, ErrInvalidZone) {
			t.Errorf("Toggle(%d): expected ErrInvalidZone, got %v", id, err)
		}
	}

	if err := c.Start(0, 0, now); !errors.Is(err, ErrBadDuration) {
		t.Errorf("expected ErrBadDuration, got %v", err)
	}
}

func TestSweepClosesExpired(t *testing.T) {
	c, driver, _ := newTestController(t)
	start := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)

	c.Start(2, 600*time.Second, start)

	// Simulated second-granularity ticks: the zone must be closed within
	// one tick of the deadline passing, with no further calls.
	var closed []int
	for s := 1; s <= 601; s++ {
		closed = append(closed, c.Sweep(start.Add(time.Duration(s)*time.Second))...)
	}

	if len(closed) != 1 || closed[0] != 2 {
		t.Fatalf("expected sweep to close zone 2 once, got %v", closed)
	}
	if c.IsOpen(2) || driver.States[2] {
		t.Error("zone 2 should be closed after 601s")
	}
}

func TestToggleManualDuration(t *testing.T) {
	c, _, _ := newTestController(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := c.Toggle(3, now); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	snap := c.Snapshot(now)
	if got := snap[3].TimeLeft; got != int(DefaultManualDuration.Seconds()) {
		t.Errorf("manual start should use default duration, got %ds", got)
	}

	if err := c.Toggle(3, now); err != nil {
		t.Fatalf("Toggle off: %v", err)
	}
	if c.IsOpen(3) {
		t.Error("second toggle should close the zone")
	}
}

func TestNamesPersistAndReload(t *testing.T) {
	c, _, st := newTestController(t)

	names := c.Names()
	if names[0] != "Zone 1" || names[7] != "Zone 8" {
		t.Errorf("unexpected default names: %v", names)
	}

	c.SetNames([]string{"Front lawn", "Back lawn", ""})
	names = c.Names()
	if names[0] != "Front lawn" || names[1] != "Back lawn" {
		t.Errorf("names not applied: %v", names)
	}
	if names[2] != "Zone 3" {
		t.Errorf("empty name should fall back to default, got %q", names[2])
	}

	// A new controller over the same store sees the saved names.
	c2 := NewController(8, relay.NewFakeDriver(), st, zap.NewNop().Sugar())
	if got := c2.Names()[0]; got != "Front lawn" {
		t.Errorf("reloaded name = %q, want Front lawn", got)
	}
}

func TestCloseAll(t *testing.T) {
	c, driver, _ := newTestController(t)
	now := time.Now()

	c.Start(0, time.Minute, now)
	c.Start(5, time.Minute, now)
	c.CloseAll()

	for i := 0; i < 8; i++ {
		if c.IsOpen(i) || driver.States[i] {
			t.Errorf("zone %d still open after CloseAll", i)
		}
	}
}
