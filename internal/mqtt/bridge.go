package mqtt

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PaweMed/weathermap-sprinkler/internal/gateway"
	"github.com/PaweMed/weathermap-sprinkler/internal/program"
	"github.com/PaweMed/weathermap-sprinkler/internal/settings"
)

// Metrics is the hook the observability layer uses to count transport
// activity. May be nil.
type Metrics interface {
	MQTTPublished()
}

// commandQueueSize bounds inbound commands waiting for the main loop. A full
// queue drops the command with a log line rather than blocking the network
// goroutine.
const commandQueueSize = 32

// Bridge binds one broker connection to the gateway under a topic base.
type Bridge struct {
	pub     Publisher
	gw      *gateway.Gateway
	base    string
	log     *zap.SugaredLogger
	metrics Metrics

	commands chan Command
}

// NewBridge creates a bridge publishing under base.
func NewBridge(pub Publisher, gw *gateway.Gateway, base string, log *zap.SugaredLogger, metrics Metrics) *Bridge {
	return &Bridge{
		pub:      pub,
		gw:       gw,
		base:     base,
		log:      log,
		metrics:  metrics,
		commands: make(chan Command, commandQueueSize),
	}
}

// Commands is drained by the main loop.
func (b *Bridge) Commands() <-chan Command {
	return b.commands
}

// WillTopic returns the topic the broker should mark offline on.
func WillTopic(base string) string {
	return base + "/global/status"
}

// WillPayload is the retained last-will document.
func WillPayload() []byte {
	return []byte(`{"online":false}`)
}

// SubscribeCommands registers the inbound command filters.
func (b *Bridge) SubscribeCommands() error {
	if err := b.pub.Subscribe(b.base+"/cmd/#", b.handle); err != nil {
		return err
	}
	return b.pub.Subscribe(b.base+"/global/refresh", b.handle)
}

// handle parses an inbound message into a queued command. It runs on the
// network goroutine and must not touch state.
func (b *Bridge) handle(topic string, payload []byte) {
	rel := strings.TrimPrefix(topic, b.base+"/")

	cmd, ok := b.parse(rel, payload)
	if !ok {
		b.log.Warnw("unrecognized command topic", "topic", topic)
		return
	}

	select {
	case b.commands <- cmd:
	default:
		b.log.Warnw("command queue full, dropping", "command", cmd.Name)
	}
}

func (b *Bridge) parse(rel string, payload []byte) (Command, bool) {
	parts := strings.Split(rel, "/")

	if rel == "global/refresh" {
		return Command{Name: "refresh", Run: func(time.Time) { b.gw.Refresh() }}, true
	}
	if len(parts) < 2 || parts[0] != "cmd" {
		return Command{}, false
	}
	parts = parts[1:]

	switch parts[0] {
	case "zones":
		if len(parts) != 3 {
			return Command{}, false
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			return Command{}, false
		}
		switch parts[2] {
		case "toggle":
			return Command{Name: "zone-toggle", Run: func(now time.Time) {
				b.logErr("zone-toggle", b.gw.ToggleZone(id, now))
			}}, true
		case "start":
			secs, _ := strconv.Atoi(strings.TrimSpace(string(payload)))
			return Command{Name: "zone-start", Run: func(now time.Time) {
				b.logErr("zone-start", b.gw.StartZone(id, time.Duration(secs)*time.Second, now))
			}}, true
		case "stop":
			return Command{Name: "zone-stop", Run: func(now time.Time) {
				b.logErr("zone-stop", b.gw.StopZone(id, now))
			}}, true
		}

	case "zones-names":
		if len(parts) == 2 && parts[1] == "set" {
			var names []string
			if err := json.Unmarshal(payload, &names); err != nil {
				b.log.Warnw("bad zones-names payload", "error", err)
				return Command{}, false
			}
			return Command{Name: "zones-names", Run: func(time.Time) {
				b.gw.SetZoneNames(names)
			}}, true
		}

	case "programs":
		switch {
		case len(parts) == 2 && parts[1] == "import":
			var recs []program.Record
			if err := json.Unmarshal(payload, &recs); err != nil {
				b.log.Warnw("bad programs import payload", "error", err)
				return Command{}, false
			}
			return Command{Name: "programs-import", Run: func(time.Time) {
				b.logErr("programs-import", b.gw.ImportPrograms(recs))
			}}, true

		case len(parts) == 3 && parts[1] == "edit":
			idx, err := strconv.Atoi(parts[2])
			if err != nil {
				return Command{}, false
			}
			var patch program.Patch
			if err := json.Unmarshal(payload, &patch); err != nil {
				b.log.Warnw("bad program edit payload", "error", err)
				return Command{}, false
			}
			return Command{Name: "program-edit", Run: func(time.Time) {
				b.logErr("program-edit", b.gw.EditProgram(idx, patch))
			}}, true

		case len(parts) == 3 && parts[1] == "delete":
			idx, err := strconv.Atoi(parts[2])
			if err != nil {
				return Command{}, false
			}
			return Command{Name: "program-delete", Run: func(time.Time) {
				b.logErr("program-delete", b.gw.RemoveProgram(idx))
			}}, true
		}

	case "logs":
		if len(parts) == 2 && parts[1] == "clear" {
			return Command{Name: "logs-clear", Run: func(time.Time) { b.gw.ClearLogs() }}, true
		}

	case "settings":
		if len(parts) == 2 && parts[1] == "set" {
			var s settings.Settings
			if err := json.Unmarshal(payload, &s); err != nil {
				b.log.Warnw("bad settings payload", "error", err)
				return Command{}, false
			}
			return Command{Name: "settings-set", Run: func(time.Time) {
				b.gw.ReplaceSettings(s)
			}}, true
		}
	}
	return Command{}, false
}

func (b *Bridge) logErr(name string, err error) {
	if err != nil {
		b.log.Warnw("command failed", "command", name, "error", err)
	}
}

// PublishDue asks the gateway what is due and publishes it. Runs on the
// syncer goroutine, never the main loop.
func (b *Bridge) PublishDue(now time.Time) {
	due := b.gw.Due(now)
	if due.Status {
		b.publishStatus(now)
	}
	for _, e := range due.Entities {
		b.publishEntity(e, now)
	}
}

// PublishAll publishes every entity and the status documents. Used on
// startup so retained topics are fresh immediately.
func (b *Bridge) PublishAll(now time.Time) {
	b.publishStatus(now)
	for e := gateway.EntityZones; e <= gateway.EntitySettings; e++ {
		b.publishEntity(e, now)
	}
}

func (b *Bridge) publishStatus(now time.Time) {
	b.publishJSON(b.base+"/global/status", b.gw.Status(now))
	for _, z := range b.gw.Zones(now) {
		prefix := b.base + "/zones/" + strconv.Itoa(z.ID)
		state := "0"
		if z.Active {
			state = "1"
		}
		b.publishRaw(prefix+"/status", []byte(state))
		b.publishRaw(prefix+"/remaining", []byte(strconv.Itoa(z.TimeLeft)))
	}
}

func (b *Bridge) publishEntity(e gateway.Entity, now time.Time) {
	topic := b.base + "/" + e.String()
	switch e {
	case gateway.EntityZones:
		b.publishJSON(topic, b.gw.Zones(now))
	case gateway.EntityPrograms:
		b.publishJSON(topic, b.gw.Programs())
	case gateway.EntityWeather:
		b.publishJSON(topic, b.gw.Weather())
	case gateway.EntityRain:
		b.publishJSON(topic, b.gw.RainHistory(now))
	case gateway.EntityPercent:
		b.publishJSON(topic, b.gw.WateringPercent(now))
	case gateway.EntityLogs:
		b.publishJSON(topic, b.gw.Logs())
	case gateway.EntitySettings:
		b.publishJSON(topic, b.gw.SettingsPublic())
	}
}

func (b *Bridge) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.log.Errorw("marshal snapshot", "topic", topic, "error", err)
		return
	}
	b.publishRaw(topic, payload)
}

// All state documents are retained so a late subscriber sees current state
// without waiting a cadence.
func (b *Bridge) publishRaw(topic string, payload []byte) {
	if err := b.pub.Publish(topic, payload, true); err != nil {
		b.log.Errorw("publish failed", "topic", topic, "error", err)
		return
	}
	if b.metrics != nil {
		b.metrics.MQTTPublished()
	}
}

// Run publishes on every tick until the channel closes. The caller owns the
// ticker.
func (b *Bridge) Run(tick <-chan time.Time) {
	for now := range tick {
		b.PublishDue(now)
	}
}
