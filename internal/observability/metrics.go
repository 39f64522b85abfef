// Package observability exposes operational counters on the pull transport.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the controller's prometheus collectors. It satisfies the
// metric hooks of the scheduler and the weather service.
type Metrics struct {
	registry *prometheus.Registry

	zoneStarts         *prometheus.CounterVec
	zoneStops          *prometheus.CounterVec
	programFires       prometheus.Counter
	programSkips       prometheus.Counter
	weatherFetchErrors *prometheus.CounterVec
	mqttPublishes      prometheus.Counter
	mqttConnected      prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		zoneStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sprinkler_zone_starts_total",
			Help: "Total zone start commands executed, by zone.",
		}, []string{"zone"}),
		zoneStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sprinkler_zone_stops_total",
			Help: "Total zone stop commands executed, by zone.",
		}, []string{"zone"}),
		programFires: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sprinkler_program_fires_total",
			Help: "Total scheduled program runs started.",
		}),
		programSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sprinkler_program_weather_skips_total",
			Help: "Total scheduled runs cancelled by the weather decision.",
		}),
		weatherFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sprinkler_weather_fetch_errors_total",
			Help: "Total failed weather API fetches, by kind.",
		}, []string{"kind"}),
		mqttPublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sprinkler_mqtt_publishes_total",
			Help: "Total MQTT messages published.",
		}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sprinkler_mqtt_connected",
			Help: "Whether the MQTT connection is currently up.",
		}),
	}

	m.registry.MustRegister(
		m.zoneStarts,
		m.zoneStops,
		m.programFires,
		m.programSkips,
		m.weatherFetchErrors,
		m.mqttPublishes,
		m.mqttConnected,
	)
	return m
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ZoneStarted counts a zone start.
func (m *Metrics) ZoneStarted(id int) {
	m.zoneStarts.WithLabelValues(strconv.Itoa(id)).Inc()
}

// ZoneStopped counts a zone stop.
func (m *Metrics) ZoneStopped(id int) {
	m.zoneStops.WithLabelValues(strconv.Itoa(id)).Inc()
}

// ProgramFired counts a scheduled run.
func (m *Metrics) ProgramFired() { m.programFires.Inc() }

// ProgramSkipped counts a weather cancellation.
func (m *Metrics) ProgramSkipped() { m.programSkips.Inc() }

// WeatherFetchError counts a failed fetch of the given kind.
func (m *Metrics) WeatherFetchError(kind string) {
	m.weatherFetchErrors.WithLabelValues(kind).Inc()
}

// MQTTPublished counts an outbound publish.
func (m *Metrics) MQTTPublished() { m.mqttPublishes.Inc() }

// SetMQTTConnected records the connection state.
func (m *Metrics) SetMQTTConnected(up bool) {
	if up {
		m.mqttConnected.Set(1)
	} else {
		m.mqttConnected.Set(0)
	}
}
