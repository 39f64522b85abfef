// Package gateway is the shared entry point for both transports. HTTP
// handlers and MQTT command callbacks mutate the controller only through it,
// and it tracks which entity documents need rebroadcasting so the push
// transport can coalesce instead of publishing on every change.
package gateway

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PaweMed/weathermap-sprinkler/internal/logbuf"
	"github.com/PaweMed/weathermap-sprinkler/internal/program"
	"github.com/PaweMed/weathermap-sprinkler/internal/settings"
	"github.com/PaweMed/weathermap-sprinkler/internal/weather"
	"github.com/PaweMed/weathermap-sprinkler/internal/zone"
)

// Entity names one broadcastable state document.
type Entity int

const (
	EntityZones Entity = iota
	EntityPrograms
	EntityWeather
	EntityRain
	EntityPercent
	EntityLogs
	EntitySettings

	entityCount
)

// String returns the topic suffix for the entity.
func (e Entity) String() string {
	switch e {
	case EntityZones:
		return "zones"
	case EntityPrograms:
		return "programs"
	case EntityWeather:
		return "weather"
	case EntityRain:
		return "rain-history"
	case EntityPercent:
		return "watering-percent"
	case EntityLogs:
		return "logs"
	case EntitySettings:
		return "settings/public"
	}
	return "unknown"
}

const (
	// StatusInterval is the cadence of the cheap per-zone status and
	// global status publishes.
	StatusInterval = 10 * time.Second
	// SnapshotInterval is the cadence of the full entity snapshots; dirty
	// entities go out earlier, on the next broadcast check.
	SnapshotInterval = 15 * time.Second
)

// RainSample is the wire form of one rainfall measurement.
type RainSample struct {
	Time int64   `json:"time"`
	Rain float64 `json:"rain"`
}

// DeviceStatus is the global/status document.
type DeviceStatus struct {
	Online        bool   `json:"online"`
	Time          string `json:"time"`
	UptimeSeconds int    `json:"uptime_seconds"`
}

// Broadcast is what a single check decided to publish.
type Broadcast struct {
	Status   bool
	Entities []Entity
}

// Gateway fronts every stateful component. All methods are safe for
// concurrent use; the components carry their own locks and the dirty set has
// its own.
type Gateway struct {
	zones    *zone.Controller
	programs *program.Scheduler
	weather  *weather.Service
	logs     *logbuf.Buffer
	settings *settings.Manager
	log      *zap.SugaredLogger

	// apply re-wires the weather service and the push transport after a
	// settings replacement. Set by main before the transports start.
	apply   func(settings.Settings)
	metrics Metrics

	mu           sync.Mutex
	dirty        map[Entity]bool
	lastStatus   time.Time
	lastSnapshot time.Time
	started      time.Time
}

// New creates a gateway over the given components. started anchors the
// uptime counter.
func New(zones *zone.Controller, programs *program.Scheduler, ws *weather.Service, logs *logbuf.Buffer, sm *settings.Manager, log *zap.SugaredLogger, started time.Time) *Gateway {
	return &Gateway{
		zones:    zones,
		programs: programs,
		weather:  ws,
		logs:     logs,
		settings: sm,
		log:      log,
		dirty:    make(map[Entity]bool),
		started:  started,
	}
}

// SetApply installs the settings re-application hook.
func (g *Gateway) SetApply(fn func(settings.Settings)) {
	g.apply = fn
}

// Metrics is the hook the observability layer uses to count zone commands.
// May be nil.
type Metrics interface {
	ZoneStarted(id int)
	ZoneStopped(id int)
}

// SetMetrics installs the zone command counters.
func (g *Gateway) SetMetrics(m Metrics) {
	g.metrics = m
}

func (g *Gateway) countZone(id int, started bool) {
	if g.metrics == nil {
		return
	}
	if started {
		g.metrics.ZoneStarted(id)
	} else {
		g.metrics.ZoneStopped(id)
	}
}

// MarkDirty queues the entity for the next broadcast check.
func (g *Gateway) MarkDirty(entities ...Entity) {
	g.mu.Lock()
	for _, e := range entities {
		g.dirty[e] = true
	}
	g.mu.Unlock()
}

// Refresh queues every entity, answering an explicit refresh command from
// either transport.
func (g *Gateway) Refresh() {
	g.mu.Lock()
	for e := Entity(0); e < entityCount; e++ {
		g.dirty[e] = true
	}
	g.mu.Unlock()
}

// Due decides what to publish at this check. Status documents go on their
// own cadence; full snapshots go when dirty or when the snapshot interval
// elapses, whichever is sooner.
func (g *Gateway) Due(now time.Time) Broadcast {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b Broadcast
	if now.Sub(g.lastStatus) >= StatusInterval {
		b.Status = true
		g.lastStatus = now
	}

	if now.Sub(g.lastSnapshot) >= SnapshotInterval {
		g.lastSnapshot = now
		for e := Entity(0); e < entityCount; e++ {
			b.Entities = append(b.Entities, e)
			delete(g.dirty, e)
		}
		return b
	}

	if len(g.dirty) > 0 {
		for e := range g.dirty {
			b.Entities = append(b.Entities, e)
		}
		sort.Slice(b.Entities, func(i, j int) bool { return b.Entities[i] < b.Entities[j] })
		g.dirty = make(map[Entity]bool)
	}
	return b
}

// Views. Each returns the marshalable document for one entity.

func (g *Gateway) Zones(now time.Time) []zone.Status {
	return g.zones.Snapshot(now)
}

func (g *Gateway) ZoneNames() []string {
	return g.zones.Names()
}

func (g *Gateway) Programs() []program.Record {
	return g.programs.List()
}

func (g *Gateway) Weather() weather.Snapshot {
	return g.weather.Snapshot()
}

func (g *Gateway) RainHistory(now time.Time) []RainSample {
	samples := g.weather.RainSamples(now)
	out := make([]RainSample, len(samples))
	for i, s := range samples {
		out[i] = RainSample{Time: s.Time.Unix(), Rain: s.Millimeters}
	}
	return out
}

func (g *Gateway) WateringPercent(now time.Time) weather.Decision {
	return g.weather.Decision(now)
}

func (g *Gateway) Logs() []string {
	return g.logs.Entries()
}

func (g *Gateway) SettingsPublic() settings.Settings {
	return g.settings.Public()
}

// Status builds the global/status document.
func (g *Gateway) Status(now time.Time) DeviceStatus {
	return DeviceStatus{
		Online:        true,
		Time:          now.Format("2006-01-02 15:04:05"),
		UptimeSeconds: int(now.Sub(g.started).Seconds()),
	}
}

// Mutations. Every successful mutation marks the affected entity dirty.
// Manual zone commands additionally land in the event log, so the logs
// document audits by-hand actions next to the scheduler's.

func (g *Gateway) audit(now time.Time, text string) {
	g.logs.Add(now, text)
	g.MarkDirty(EntityLogs)
}

// ToggleZone flips one zone, using the manual duration on the way up.
func (g *Gateway) ToggleZone(id int, now time.Time) error {
	if err := g.zones.Toggle(id, now); err != nil {
		return err
	}
	opened := g.zones.IsOpen(id)
	g.countZone(id, opened)
	if opened {
		g.audit(now, fmt.Sprintf("Manual: zone %d started for %d min", id+1, int(zone.DefaultManualDuration.Minutes())))
	} else {
		g.audit(now, fmt.Sprintf("Manual: zone %d stopped", id+1))
	}
	g.MarkDirty(EntityZones)
	return nil
}

// StartZone opens a zone for d; a non-positive d means the manual default.
func (g *Gateway) StartZone(id int, d time.Duration, now time.Time) error {
	if d <= 0 {
		d = zone.DefaultManualDuration
	}
	if err := g.zones.Start(id, d, now); err != nil {
		return err
	}
	g.countZone(id, true)
	g.audit(now, fmt.Sprintf("Manual: zone %d started for %d min", id+1, int(d.Minutes())))
	g.MarkDirty(EntityZones)
	return nil
}

// StopZone closes a zone.
func (g *Gateway) StopZone(id int, now time.Time) error {
	if err := g.zones.Stop(id); err != nil {
		return err
	}
	g.countZone(id, false)
	g.audit(now, fmt.Sprintf("Manual: zone %d stopped", id+1))
	g.MarkDirty(EntityZones)
	return nil
}

// SetZoneNames replaces the name set.
func (g *Gateway) SetZoneNames(names []string) {
	g.zones.SetNames(names)
	g.MarkDirty(EntityZones)
}

// AddProgram appends a program.
func (g *Gateway) AddProgram(r program.Record) error {
	if err := g.programs.Add(r); err != nil {
		return err
	}
	g.MarkDirty(EntityPrograms)
	return nil
}

// EditProgram patches the program at idx.
func (g *Gateway) EditProgram(idx int, p program.Patch) error {
	if err := g.programs.Edit(idx, p); err != nil {
		return err
	}
	g.MarkDirty(EntityPrograms)
	return nil
}

// RemoveProgram deletes the program at idx.
func (g *Gateway) RemoveProgram(idx int) error {
	if err := g.programs.Remove(idx); err != nil {
		return err
	}
	g.MarkDirty(EntityPrograms)
	return nil
}

// ClearPrograms removes every program.
func (g *Gateway) ClearPrograms() {
	g.programs.Clear()
	g.MarkDirty(EntityPrograms)
}

// ImportPrograms replaces the whole set.
func (g *Gateway) ImportPrograms(recs []program.Record) error {
	if err := g.programs.Import(recs); err != nil {
		return err
	}
	g.MarkDirty(EntityPrograms)
	return nil
}

// ClearLogs empties the event buffer.
func (g *Gateway) ClearLogs() {
	g.logs.Clear()
	g.MarkDirty(EntityLogs)
}

// ReplaceSettings swaps in new settings (secret-preserving, see the
// manager), re-applies auto mode and the runtime hooks, and returns the
// effective settings.
func (g *Gateway) ReplaceSettings(s settings.Settings) settings.Settings {
	eff := g.settings.Replace(s)
	g.programs.SetAutoMode(eff.AutoMode)
	if g.apply != nil {
		g.apply(eff)
	}
	g.log.Infow("settings replaced",
		"weather_enabled", eff.WeatherEnabled,
		"weather_interval_min", eff.WeatherIntervalMin,
		"mqtt_enabled", eff.MQTTEnabled,
		"auto_mode", eff.AutoMode)
	g.MarkDirty(EntitySettings)
	return eff
}
