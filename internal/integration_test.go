package internal

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/PaweMed/weathermap-sprinkler/internal/gateway"
	"github.com/PaweMed/weathermap-sprinkler/internal/logbuf"
	"github.com/PaweMed/weathermap-sprinkler/internal/mqtt"
	"github.com/PaweMed/weathermap-sprinkler/internal/program"
	"github.com/PaweMed/weathermap-sprinkler/internal/rain"
	"github.com/PaweMed/weathermap-sprinkler/internal/relay"
	"github.com/PaweMed/weathermap-sprinkler/internal/settings"
	"github.com/PaweMed/weathermap-sprinkler/internal/store"
	"github.com/PaweMed/weathermap-sprinkler/internal/weather"
	"github.com/PaweMed/weathermap-sprinkler/internal/zone"
)

type rig struct {
	driver *relay.FakeDriver
	hist   *rain.History
	zones  *zone.Controller
	sched  *program.Scheduler
	events *logbuf.Buffer
	gw     *gateway.Gateway
	bridge *mqtt.Bridge
	pub    *mqtt.FakePublisher
}

// Monday.
var start = time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)

func newRig(t *testing.T) *rig {
	t.Helper()
	log := zap.NewNop().Sugar()
	st := store.NewMemStore()

	driver := relay.NewFakeDriver()
	zones := zone.NewController(8, driver, st, log)
	hist := rain.NewHistory(st, log, start)
	ws := weather.NewService(weather.NewClient("", ""), hist, time.UTC, log, nil, false, time.Hour)
	events := logbuf.NewBuffer(st, log)
	sched := program.NewScheduler(zones, ws, st, events, nil, log, nil)
	sm := settings.NewManager(st, log, settings.Defaults())
	gw := gateway.New(zones, sched, ws, events, sm, log, start)

	pub := mqtt.NewFakePublisher()
	bridge := mqtt.NewBridge(pub, gw, "sprinkler", log, nil)
	if err := bridge.SubscribeCommands(); err != nil {
		t.Fatalf("SubscribeCommands: %v", err)
	}
	return &rig{driver: driver, hist: hist, zones: zones, sched: sched, events: events, gw: gw, bridge: bridge, pub: pub}
}

// tick runs one pass of the main loop and the sync goroutine at now.
func (r *rig) tick(now time.Time) {
	if closed := r.zones.Sweep(now); len(closed) > 0 {
		r.gw.MarkDirty(gateway.EntityZones)
	}
	res := r.sched.Tick(now)
	if res.Fired > 0 {
		r.gw.MarkDirty(gateway.EntityZones, gateway.EntityPrograms, gateway.EntityLogs)
	}

drain:
	for {
		select {
		case cmd := <-r.bridge.Commands():
			cmd.Run(now)
		default:
			break drain
		}
	}

	r.bridge.PublishDue(now)
}

// TestIntegrationScheduledWatering drives a full day segment through the
// main loop: a command starts one zone by hand, a program fires another on
// schedule, and both close on their deadlines with the state mirrored to
// retained topics.
func TestIntegrationScheduledWatering(t *testing.T) {
	r := newRig(t)

	if err := r.gw.ImportPrograms([]program.Record{
		{Zone: 0, Time: "06:05", Duration: 10, Days: program.AllDays, Active: true},
	}); err != nil {
		t.Fatalf("ImportPrograms: %v", err)
	}

	r.pub.Inject("sprinkler/cmd/zones/5/toggle", nil)

	// Minute ticks from 06:00 to 06:30.
	for m := 0; m <= 30; m++ {
		r.tick(start.Add(time.Duration(m) * time.Minute))
	}

	// The manual zone ran its default 10 minutes, the program zone its
	// scheduled 10. Everything is closed by 06:30.
	for id, on := range r.driver.States {
		if on {
			t.Errorf("zone %d still driven high at 06:30", id)
		}
	}

	var found bool
	for _, e := range r.events.Entries() {
		if strings.Contains(e, "Auto: zone 1 started for 10 min") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing start event, logs = %v", r.events.Entries())
	}

	// The program must not fire again today.
	fired := 0
	for _, rec := range r.sched.List() {
		if rec.LastFiredOn != 0 {
			fired++
		}
	}
	if fired != 1 {
		t.Errorf("expected exactly one fired program, got %d", fired)
	}

	// Retained zones document reflects the final state.
	raws := r.pub.MessagesOn("sprinkler/zones")
	if len(raws) == 0 {
		t.Fatal("no zones snapshots published")
	}
	var zonesDoc []zone.Status
	if err := json.Unmarshal(raws[len(raws)-1], &zonesDoc); err != nil {
		t.Fatalf("unmarshal zones: %v", err)
	}
	for _, z := range zonesDoc {
		if z.Active {
			t.Errorf("zone %d active in final snapshot", z.ID)
		}
	}
}

// TestIntegrationRainSkipThenRecover covers the cancel-and-retry contract:
// heavy recent rain cancels the morning run without consuming the day, and
// once the rain ages out of the six hour window the same program fires.
func TestIntegrationRainSkipThenRecover(t *testing.T) {
	r := newRig(t)

	r.hist.Add(6.0, start)

	if err := r.gw.ImportPrograms([]program.Record{
		{Zone: 2, Time: "06:05", Duration: 10, Days: program.AllDays, Active: true},
	}); err != nil {
		t.Fatalf("ImportPrograms: %v", err)
	}

	r.tick(start.Add(5 * time.Minute))
	if r.zones.IsOpen(2) {
		t.Fatal("zone 2 must stay closed under heavy rain")
	}
	if r.sched.List()[0].LastFiredOn != 0 {
		t.Fatal("a weather skip must not consume the day")
	}

	var cancelled bool
	for _, e := range r.events.Entries() {
		if strings.Contains(e, "Watering cancelled for zone 3") {
			cancelled = true
		}
	}
	if !cancelled {
		t.Errorf("missing cancel event, logs = %v", r.events.Entries())
	}

	// Seven hours later the 06:00 rain is outside the window.
	later := start.Add(7 * time.Hour)
	r.tick(later)
	if !r.zones.IsOpen(2) {
		t.Fatal("zone 2 should fire once the rain ages out")
	}
	if r.sched.List()[0].LastFiredOn == 0 {
		t.Error("firing must set the day marker")
	}
}
