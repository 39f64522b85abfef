package gateway

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/PaweMed/weathermap-sprinkler/internal/logbuf"
	"github.com/PaweMed/weathermap-sprinkler/internal/program"
	"github.com/PaweMed/weathermap-sprinkler/internal/rain"
	"github.com/PaweMed/weathermap-sprinkler/internal/relay"
	"github.com/PaweMed/weathermap-sprinkler/internal/settings"
	"github.com/PaweMed/weathermap-sprinkler/internal/store"
	"github.com/PaweMed/weathermap-sprinkler/internal/weather"
	"github.com/PaweMed/weathermap-sprinkler/internal/zone"
)

var testStart = time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	log := zap.NewNop().Sugar()
	st := store.NewMemStore()

	zones := zone.NewController(8, relay.NewFakeDriver(), st, log)
	hist := rain.NewHistory(st, log, testStart)
	ws := weather.NewService(weather.NewClient("", ""), hist, time.UTC, log, nil, false, time.Hour)
	events := logbuf.NewBuffer(st, log)
	sched := program.NewScheduler(zones, ws, st, events, nil, log, nil)
	sm := settings.NewManager(st, log, settings.Defaults())

	return New(zones, sched, ws, events, sm, log, testStart)
}

func entities(b Broadcast) map[Entity]bool {
	m := make(map[Entity]bool)
	for _, e := range b.Entities {
		m[e] = true
	}
	return m
}

func TestDueCadence(t *testing.T) {
	g := newTestGateway(t)

	// First check: both timers have never fired.
	b := g.Due(testStart)
	if !b.Status {
		t.Error("first check should publish status")
	}
	if len(b.Entities) != int(entityCount) {
		t.Errorf("first check should publish all %d entities, got %d", entityCount, len(b.Entities))
	}

	// One second later nothing is due.
	b = g.Due(testStart.Add(time.Second))
	if b.Status || len(b.Entities) != 0 {
		t.Errorf("nothing should be due after 1s, got %+v", b)
	}

	// A mutation goes out on the very next check, ahead of the snapshot
	// interval.
	if err := g.ToggleZone(3, testStart.Add(2*time.Second)); err != nil {
		t.Fatalf("ToggleZone: %v", err)
	}
	b = g.Due(testStart.Add(2 * time.Second))
	if b.Status {
		t.Error("status not due yet")
	}
	if len(b.Entities) != 1 || b.Entities[0] != EntityZones {
		t.Errorf("expected only zones dirty, got %v", b.Entities)
	}

	// Dirty set is consumed.
	b = g.Due(testStart.Add(3 * time.Second))
	if len(b.Entities) != 0 {
		t.Errorf("dirty set should be empty, got %v", b.Entities)
	}

	// Status cadence.
	b = g.Due(testStart.Add(StatusInterval))
	if !b.Status {
		t.Error("status due after its interval")
	}

	// Full snapshot cadence, which also swallows pending dirty marks.
	g.MarkDirty(EntityLogs)
	b = g.Due(testStart.Add(SnapshotInterval))
	if len(b.Entities) != int(entityCount) {
		t.Errorf("expected full snapshot, got %v", b.Entities)
	}
	b = g.Due(testStart.Add(SnapshotInterval + time.Second))
	if len(b.Entities) != 0 {
		t.Errorf("dirty mark should have been swallowed by the snapshot, got %v", b.Entities)
	}
}

func TestRefreshMarksEverything(t *testing.T) {
	g := newTestGateway(t)
	g.Due(testStart) // drain the initial broadcast

	g.Refresh()
	b := g.Due(testStart.Add(time.Second))
	if len(b.Entities) != int(entityCount) {
		t.Errorf("refresh should queue all entities, got %v", b.Entities)
	}
}

func TestZoneMutations(t *testing.T) {
	g := newTestGateway(t)
	now := testStart

	// Non-positive duration falls back to the manual default.
	if err := g.StartZone(0, 0, now); err != nil {
		t.Fatalf("StartZone: %v", err)
	}
	snap := g.Zones(now)
	if !snap[0].Active || snap[0].TimeLeft != int(zone.DefaultManualDuration.Seconds()) {
		t.Errorf("zone 0 = %+v, want active with manual duration", snap[0])
	}

	if err := g.StartZone(1, 30*time.Minute, now); err != nil {
		t.Fatalf("StartZone: %v", err)
	}
	if got := g.Zones(now)[1].TimeLeft; got != 1800 {
		t.Errorf("zone 1 time left = %d, want 1800", got)
	}

	if err := g.StopZone(0, now); err != nil {
		t.Fatalf("StopZone: %v", err)
	}
	if g.Zones(now)[0].Active {
		t.Error("zone 0 should be stopped")
	}

	if err := g.StartZone(99, 0, now); err == nil {
		t.Error("expected error for invalid zone")
	}

	g.SetZoneNames([]string{"Front lawn", "Back lawn"})
	names := g.ZoneNames()
	if names[0] != "Front lawn" || names[2] != "Zone 3" {
		t.Errorf("names = %v", names)
	}
}

func TestProgramMutations(t *testing.T) {
	g := newTestGateway(t)

	recs := []program.Record{
		{Zone: 0, Time: "06:00", Duration: 10, Days: program.AllDays, Active: true},
		{Zone: 1, Time: "20:30", Duration: 15, Days: program.AllDays, Active: false},
	}
	if err := g.ImportPrograms(recs); err != nil {
		t.Fatalf("ImportPrograms: %v", err)
	}
	if got := g.Programs(); len(got) != 2 || got[1].Time != "20:30" {
		t.Errorf("programs = %+v", got)
	}

	active := true
	if err := g.EditProgram(1, program.Patch{Active: &active}); err != nil {
		t.Fatalf("EditProgram: %v", err)
	}
	if !g.Programs()[1].Active {
		t.Error("program 1 should be active after patch")
	}

	if err := g.RemoveProgram(0); err != nil {
		t.Fatalf("RemoveProgram: %v", err)
	}
	if len(g.Programs()) != 1 {
		t.Errorf("expected 1 program, got %d", len(g.Programs()))
	}

	g.ClearPrograms()
	if len(g.Programs()) != 0 {
		t.Error("expected no programs after clear")
	}
}

func TestManualCommandsAudited(t *testing.T) {
	g := newTestGateway(t)
	g.Due(testStart) // drain the initial broadcast

	if err := g.ToggleZone(3, testStart); err != nil {
		t.Fatalf("ToggleZone: %v", err)
	}
	logs := g.Logs()
	if len(logs) != 1 || !strings.Contains(logs[0], "Manual: zone 4 started for 10 min") {
		t.Errorf("logs = %v, want manual start entry", logs)
	}

	// The action shows up on both the zones and the logs documents.
	got := entities(g.Due(testStart.Add(time.Second)))
	if !got[EntityZones] || !got[EntityLogs] {
		t.Errorf("due entities = %v, want zones and logs", got)
	}

	if err := g.StopZone(3, testStart.Add(time.Minute)); err != nil {
		t.Fatalf("StopZone: %v", err)
	}
	logs = g.Logs()
	if !strings.Contains(logs[len(logs)-1], "Manual: zone 4 stopped") {
		t.Errorf("logs = %v, want manual stop entry", logs)
	}

	if err := g.StartZone(1, 5*time.Minute, testStart.Add(2*time.Minute)); err != nil {
		t.Fatalf("StartZone: %v", err)
	}
	logs = g.Logs()
	if !strings.Contains(logs[len(logs)-1], "Manual: zone 2 started for 5 min") {
		t.Errorf("logs = %v, want manual start entry with duration", logs)
	}
}

func TestReplaceSettingsAppliesHook(t *testing.T) {
	g := newTestGateway(t)

	var applied *settings.Settings
	g.SetApply(func(s settings.Settings) { applied = &s })

	s := settings.Defaults()
	s.OWMAPIKey = "secret-key"
	g.ReplaceSettings(s)

	// Round-trip the public projection: the blank key must keep the
	// stored secret.
	eff := g.ReplaceSettings(g.SettingsPublic())
	if eff.OWMAPIKey != "secret-key" {
		t.Errorf("api key = %q, want preserved secret", eff.OWMAPIKey)
	}
	if applied == nil || applied.OWMAPIKey != "secret-key" {
		t.Errorf("apply hook got %+v", applied)
	}
	if g.SettingsPublic().OWMAPIKey != "" {
		t.Error("public projection must blank the api key")
	}
}

func TestStatusDocument(t *testing.T) {
	g := newTestGateway(t)
	now := testStart.Add(90 * time.Second)

	st := g.Status(now)
	if !st.Online {
		t.Error("status should report online")
	}
	if st.UptimeSeconds != 90 {
		t.Errorf("uptime = %d, want 90", st.UptimeSeconds)
	}
	if st.Time != "2025-06-02 06:01:30" {
		t.Errorf("time = %q", st.Time)
	}
}
