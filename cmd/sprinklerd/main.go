// Command sprinklerd drives the irrigation relays, runs the watering
// schedule against the weather and serves state over MQTT and HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/PaweMed/weathermap-sprinkler/internal/gateway"
	"github.com/PaweMed/weathermap-sprinkler/internal/logbuf"
	"github.com/PaweMed/weathermap-sprinkler/internal/mqtt"
	"github.com/PaweMed/weathermap-sprinkler/internal/notify"
	"github.com/PaweMed/weathermap-sprinkler/internal/observability"
	"github.com/PaweMed/weathermap-sprinkler/internal/program"
	"github.com/PaweMed/weathermap-sprinkler/internal/rain"
	"github.com/PaweMed/weathermap-sprinkler/internal/relay"
	"github.com/PaweMed/weathermap-sprinkler/internal/settings"
	"github.com/PaweMed/weathermap-sprinkler/internal/store"
	"github.com/PaweMed/weathermap-sprinkler/internal/weather"
	"github.com/PaweMed/weathermap-sprinkler/internal/web"
	"github.com/PaweMed/weathermap-sprinkler/internal/zone"
)

func main() {
	configPath := flag.String("config", "", "bootstrap YAML config file (optional)")
	dataDir := flag.String("data", "/var/lib/sprinklerd", "state directory")
	httpAddr := flag.String("http", ":8080", "HTTP API address (empty to disable)")
	tick := flag.Duration("tick", time.Second, "main loop tick interval")
	debug := flag.Bool("debug", false, "verbose logging")

	flag.Parse()

	var cfg zap.Config
	if *debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if err := run(*configPath, *dataDir, *httpAddr, *tick, log); err != nil {
		log.Fatalw("fatal", "error", err)
	}
}

func run(configPath, dataDir, httpAddr string, tick time.Duration, log *zap.SugaredLogger) error {
	st, err := store.NewFileStore(dataDir)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	seed := settings.Defaults()
	if configPath != "" {
		seed, err = settings.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("bootstrap config: %w", err)
		}
	}
	sm := settings.NewManager(st, log, seed)
	cfg := sm.Get()

	loc := locationOrUTC(cfg.Timezone, log)
	now := time.Now()

	driver, err := relay.NewRealDriver(relay.DefaultPins)
	if err != nil {
		return fmt.Errorf("init relays: %w", err)
	}
	defer driver.Close()

	metrics := observability.NewMetrics()
	zones := zone.NewController(len(relay.DefaultPins), driver, st, log)
	defer zones.CloseAll()

	hist := rain.NewHistory(st, log, now)
	owm := weather.NewClient(cfg.OWMAPIKey, cfg.OWMLocation)
	ws := weather.NewService(owm, hist, loc, log, metrics,
		cfg.WeatherEnabled, time.Duration(cfg.WeatherIntervalMin)*time.Minute)

	events := logbuf.NewBuffer(st, log)
	sched := program.NewScheduler(zones, ws, st, events, notify.Nop{}, log, metrics)
	sched.SetAutoMode(cfg.AutoMode)

	gw := gateway.New(zones, sched, ws, events, sm, log, now)
	gw.SetMetrics(metrics)
	gw.SetApply(func(s settings.Settings) {
		ws.Apply(s.OWMAPIKey, s.OWMLocation, s.WeatherEnabled,
			time.Duration(s.WeatherIntervalMin)*time.Minute,
			locationOrUTC(s.Timezone, log))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	weatherTicker := time.NewTicker(10 * time.Second)
	defer weatherTicker.Stop()
	go ws.Run(ctx, weatherTicker.C)

	var bridge *mqtt.Bridge
	if cfg.MQTTEnabled && cfg.MQTTBroker != "" {
		base := cfg.MQTTTopicBase
		pub, err := mqtt.NewRealPublisher(mqtt.Config{
			Broker:      cfg.MQTTBroker,
			Port:        cfg.MQTTPort,
			User:        cfg.MQTTUser,
			Pass:        cfg.MQTTPass,
			ClientID:    cfg.MQTTClientID,
			WillTopic:   mqtt.WillTopic(base),
			WillPayload: mqtt.WillPayload(),
		}, log, metrics.SetMQTTConnected)
		if err != nil {
			// The daemon still waters without a broker.
			log.Errorw("mqtt unavailable, continuing without push transport", "error", err)
		} else {
			defer pub.Close()
			bridge = mqtt.NewBridge(pub, gw, base, log, metrics)
			if err := bridge.SubscribeCommands(); err != nil {
				log.Errorw("subscribe commands", "error", err)
			}
			bridge.PublishAll(time.Now())

			syncTicker := time.NewTicker(time.Second)
			defer syncTicker.Stop()
			go bridge.Run(syncTicker.C)
		}
	}

	if httpAddr != "" {
		srv := web.New(httpAddr, gw, log, metrics.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("http server", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infow("http api listening", "addr", httpAddr)
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var commands <-chan mqtt.Command
	if bridge != nil {
		commands = bridge.Commands()
	}

	log.Infow("started",
		"zones", zones.Count(),
		"weather_enabled", cfg.WeatherEnabled,
		"mqtt_enabled", bridge != nil,
		"timezone", cfg.Timezone)
	events.Add(time.Now().In(loc), "Controller started")

	runLoop(gw, zones, sched, commands, log, func() time.Time { return time.Now().In(loc) }, ticker.C, sigCh)
	return nil
}

// runLoop owns zone and program state. Each tick sweeps expired zones first
// so a due deadline can never be starved by scheduling work, then evaluates
// the programs, then drains any queued transport commands.
func runLoop(gw *gateway.Gateway, zones *zone.Controller, sched *program.Scheduler, commands <-chan mqtt.Command, log *zap.SugaredLogger, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) {
	for {
		select {
		case s := <-sig:
			log.Infow("shutting down", "signal", s.String())
			return

		case cmd := <-commands:
			cmd.Run(now())

		case <-tick:
			t := now()
			if closed := zones.Sweep(t); len(closed) > 0 {
				log.Infow("zones auto-stopped", "zones", closed)
				gw.MarkDirty(gateway.EntityZones)
			}
			res := sched.Tick(t)
			if res.Fired > 0 {
				gw.MarkDirty(gateway.EntityZones, gateway.EntityPrograms, gateway.EntityLogs)
			}
			if res.Skipped > 0 {
				gw.MarkDirty(gateway.EntityLogs)
			}
		}
	}
}

func locationOrUTC(name string, log *zap.SugaredLogger) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warnw("unknown timezone, using UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}
