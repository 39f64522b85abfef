// Package weather refreshes atmospheric readings from OpenWeatherMap on an
// interval, feeds the rain history, and computes the watering adjustment.
// The fetch loop runs on its own goroutine so a stalled HTTP call can never
// delay the zone-deadline sweep.
package weather

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PaweMed/weathermap-sprinkler/internal/rain"
)

// retryInterval is used instead of the configured interval while a fetch
// kind has never succeeded, so a fresh boot converges quickly.
const retryInterval = time.Minute

// MinInterval clamps the configurable refresh interval.
const MinInterval = 5 * time.Minute

// Snapshot is the last known weather state. Zero values are valid before the
// first successful fetch; consumers must tolerate them.
type Snapshot struct {
	Temp        float64 `json:"temp"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Wind        float64 `json:"wind"`
	WindDeg     float64 `json:"wind_deg"`
	Clouds      float64 `json:"clouds"`
	Visibility  int     `json:"visibility"`
	Description string  `json:"weather_desc"`
	Icon        string  `json:"icon"`
	Rain1h      float64 `json:"rain"`

	Rain1hForecast      float64 `json:"rain_1h_forecast"`
	Rain6hForecast      float64 `json:"rain_6h_forecast"`
	TempMin             float64 `json:"temp_min"`
	TempMax             float64 `json:"temp_max"`
	TempMinTomorrow     float64 `json:"temp_min_tomorrow"`
	TempMaxTomorrow     float64 `json:"temp_max_tomorrow"`
	HumidityTomorrowMax float64 `json:"humidity_tomorrow_max"`

	Sunrise string `json:"sunrise"`
	Sunset  string `json:"sunset"`

	LastCurrentFetch  time.Time `json:"-"`
	LastForecastFetch time.Time `json:"-"`
}

// FetchErrors is the hook the metrics layer uses to count failed fetches.
type FetchErrors interface {
	WeatherFetchError(kind string)
}

// Service owns the snapshot and the fetch schedule. Current and forecast
// fetches are due independently; a failure keeps the previous snapshot
// intact and comes back early until the first success.
type Service struct {
	mu   sync.RWMutex
	snap Snapshot

	client   *Client
	rain     *rain.History
	loc      *time.Location
	log      *zap.SugaredLogger
	metrics  FetchErrors
	enabled  bool
	interval time.Duration

	currentDue  time.Time
	forecastDue time.Time
	okCurrent   bool
	okForecast  bool
}

// NewService creates the fetch service. metrics may be nil.
func NewService(client *Client, hist *rain.History, loc *time.Location, log *zap.SugaredLogger, metrics FetchErrors, enabled bool, interval time.Duration) *Service {
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Service{
		client:   client,
		rain:     hist,
		loc:      loc,
		log:      log,
		metrics:  metrics,
		enabled:  enabled,
		interval: interval,
	}
}

// Apply replaces the fetch configuration at runtime (settings change) and
// makes both fetches due immediately.
func (s *Service) Apply(apiKey, location string, enabled bool, interval time.Duration, loc *time.Location) {
	if interval < MinInterval {
		interval = MinInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = NewClient(apiKey, location)
	s.enabled = enabled
	s.interval = interval
	s.loc = loc
	s.currentDue = time.Time{}
	s.forecastDue = time.Time{}
	s.okCurrent = false
	s.okForecast = false
}

// Run drives Tick from the given tick channel until the context is done.
func (s *Service) Run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick:
			s.Tick(now)
		}
	}
}

// Tick performs whichever fetches are due at now.
func (s *Service) Tick(now time.Time) {
	s.mu.RLock()
	enabled := s.enabled
	client := s.client
	loc := s.loc
	currentDue := s.currentDue
	forecastDue := s.forecastDue
	s.mu.RUnlock()

	if !enabled || !client.Configured() {
		return
	}

	if !now.Before(currentDue) {
		s.fetchCurrent(client, loc, now)
	}
	if !now.Before(forecastDue) {
		s.fetchForecast(client, loc, now)
	}
}

func (s *Service) nextDue(now time.Time, succeededEver bool) time.Time {
	if !succeededEver {
		return now.Add(retryInterval)
	}
	return now.Add(s.interval)
}

func (s *Service) fetchCurrent(client *Client, loc *time.Location, now time.Time) {
	cur, err := client.FetchCurrent(loc)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.log.Warnw("current weather fetch failed", "error", err)
		if s.metrics != nil {
			s.metrics.WeatherFetchError("current")
		}
		s.currentDue = s.nextDue(now, s.okCurrent)
		return
	}

	s.snap.Temp = cur.Temp
	s.snap.FeelsLike = cur.FeelsLike
	s.snap.TempMin = cur.TempMin
	s.snap.TempMax = cur.TempMax
	s.snap.Humidity = cur.Humidity
	s.snap.Pressure = cur.Pressure
	s.snap.Wind = cur.Wind
	s.snap.WindDeg = cur.WindDeg
	s.snap.Clouds = cur.Clouds
	s.snap.Visibility = cur.VisibilityK
	s.snap.Description = cur.Description
	s.snap.Icon = cur.Icon
	s.snap.Rain1h = cur.Rain1h
	s.snap.Sunrise = cur.Sunrise
	s.snap.Sunset = cur.Sunset
	s.snap.LastCurrentFetch = now

	s.okCurrent = true
	s.currentDue = now.Add(s.interval)

	// Every successful current fetch feeds the rolling rain window.
	s.rain.Add(cur.Rain1h, now.In(loc))

	s.log.Infow("weather updated",
		"temp", cur.Temp, "humidity", cur.Humidity, "rain_1h", cur.Rain1h)
}

func (s *Service) fetchForecast(client *Client, loc *time.Location, now time.Time) {
	f, err := client.FetchForecast(loc, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.log.Warnw("forecast fetch failed", "error", err)
		if s.metrics != nil {
			s.metrics.WeatherFetchError("forecast")
		}
		s.forecastDue = s.nextDue(now, s.okForecast)
		return
	}

	s.snap.Rain1hForecast = f.Rain1h
	s.snap.Rain6hForecast = f.Rain6h
	s.snap.TempMinTomorrow = f.TempMinTomorrow
	s.snap.TempMaxTomorrow = f.TempMaxTomorrow
	s.snap.HumidityTomorrowMax = f.HumidityTomorrowMax
	s.snap.LastForecastFetch = now

	s.okForecast = true
	s.forecastDue = now.Add(s.interval)
}

// Snapshot returns a copy of the last known weather state.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Decision computes the current watering adjustment from the rolling rain
// sum and the live snapshot.
func (s *Service) Decision(now time.Time) Decision {
	snap := s.Snapshot()
	return Decide(s.rain.Sum(now), snap.Temp, snap.Humidity)
}

// RainSamples exposes the rolling rain window for the sync gateway.
func (s *Service) RainSamples(now time.Time) []rain.Sample {
	return s.rain.Samples(now)
}
