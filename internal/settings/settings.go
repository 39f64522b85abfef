// Package settings holds the runtime-mutable configuration: weather fetch
// parameters, push transport connection, notification credentials, timezone
// and auto mode. A bootstrap YAML file seeds the first run; afterwards the
// persisted copy wins and both transports can replace the public fields
// without a restart.
package settings

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/PaweMed/weathermap-sprinkler/internal/store"
)

const settingsKey = "settings"

// Settings is the full configuration record, credentials included.
type Settings struct {
	OWMAPIKey   string `json:"owmApiKey" yaml:"owm_api_key"`
	OWMLocation string `json:"owmLocation" yaml:"owm_location"`

	WeatherEnabled     bool `json:"enableWeatherApi" yaml:"weather_enabled"`
	WeatherIntervalMin int  `json:"weatherIntervalMin" yaml:"weather_interval_min"`

	MQTTEnabled   bool   `json:"enableMqtt" yaml:"mqtt_enabled"`
	MQTTBroker    string `json:"mqttServer" yaml:"mqtt_broker"`
	MQTTPort      int    `json:"mqttPort" yaml:"mqtt_port"`
	MQTTUser      string `json:"mqttUser" yaml:"mqtt_user"`
	MQTTPass      string `json:"mqttPass" yaml:"mqtt_pass"`
	MQTTClientID  string `json:"mqttClientId" yaml:"mqtt_client_id"`
	MQTTTopicBase string `json:"mqttTopicBase" yaml:"mqtt_topic_base"`

	PushoverUser  string `json:"pushoverUser" yaml:"pushover_user"`
	PushoverToken string `json:"pushoverToken" yaml:"pushover_token"`

	Timezone string `json:"timezone" yaml:"timezone"`
	AutoMode bool   `json:"autoMode" yaml:"auto_mode"`
}

// Defaults returns the first-boot configuration.
func Defaults() Settings {
	return Settings{
		OWMLocation:        "Szczecin,PL",
		WeatherEnabled:     true,
		WeatherIntervalMin: 60,
		MQTTPort:           1883,
		MQTTTopicBase:      "sprinkler",
		Timezone:           "Europe/Warsaw",
		AutoMode:           true,
	}
}

// Public returns a projection safe to expose on any transport: every
// credential field is blanked.
func (s Settings) Public() Settings {
	s.OWMAPIKey = ""
	s.MQTTPass = ""
	s.PushoverUser = ""
	s.PushoverToken = ""
	return s
}

// LoadFile reads a bootstrap YAML file over the defaults.
func LoadFile(path string) (Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse config: %w", err)
	}
	return s, nil
}

// Manager keeps the active settings behind a mutex and persists every
// replacement.
type Manager struct {
	mu  sync.RWMutex
	st  store.Store
	log *zap.SugaredLogger
	cur Settings
}

// NewManager loads persisted settings, falling back to seed (bootstrap file
// or defaults) on first run.
func NewManager(st store.Store, log *zap.SugaredLogger, seed Settings) *Manager {
	m := &Manager{st: st, log: log, cur: seed}

	var saved Settings
	err := st.Load(settingsKey, &saved)
	if errors.Is(err, store.ErrNotFound) {
		if err := st.Save(settingsKey, seed); err != nil {
			log.Errorw("save initial settings", "error", err)
		}
		return m
	}
	if err != nil {
		log.Errorw("load settings", "error", err)
		return m
	}
	m.cur = saved
	return m
}

// Get returns the full settings, credentials included. Callers exposing them
// must go through Public.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Public returns the censored projection.
func (m *Manager) Public() Settings {
	return m.Get().Public()
}

// Replace swaps in the new settings and persists them. An empty credential
// field keeps the previous value, so round-tripping the public projection
// through a transport cannot wipe secrets.
func (m *Manager) Replace(s Settings) Settings {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.OWMAPIKey == "" {
		s.OWMAPIKey = m.cur.OWMAPIKey
	}
	if s.MQTTPass == "" {
		s.MQTTPass = m.cur.MQTTPass
	}
	if s.PushoverUser == "" {
		s.PushoverUser = m.cur.PushoverUser
	}
	if s.PushoverToken == "" {
		s.PushoverToken = m.cur.PushoverToken
	}

	m.cur = s
	if err := m.st.Save(settingsKey, s); err != nil {
		m.log.Errorw("save settings", "error", err)
	}
	return s
}
