package weather

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the OpenWeatherMap API root.
const DefaultBaseURL = "http://api.openweathermap.org"

// Client fetches current conditions and forecast from OpenWeatherMap.
// The location string is geocoded once and the coordinates cached.
type Client struct {
	// BaseURL is overridable for tests.
	BaseURL  string
	apiKey   string
	location string
	http     *http.Client

	lat, lon    float64
	coordsValid bool
}

// NewClient creates an OWM client for the given API key and location query
// (e.g. "Szczecin,PL").
func NewClient(apiKey, location string) *Client {
	return &Client{
		BaseURL:  DefaultBaseURL,
		apiKey:   apiKey,
		location: location,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether the client has enough settings to fetch.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.location != ""
}

func (c *Client) get(path string, query url.Values, v any) error {
	u := c.BaseURL + path + "?" + query.Encode()
	resp, err := c.http.Get(u)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) resolveCoords() error {
	if c.coordsValid {
		return nil
	}

	q := url.Values{}
	q.Set("q", c.location)
	q.Set("limit", "1")
	q.Set("appid", c.apiKey)

	var results []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if err := c.get("/geo/1.0/direct", q, &results); err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("geocode %q: no results", c.location)
	}

	c.lat = results[0].Lat
	c.lon = results[0].Lon
	c.coordsValid = true
	return nil
}

func (c *Client) coordQuery() url.Values {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", c.lat))
	q.Set("lon", fmt.Sprintf("%.6f", c.lon))
	q.Set("units", "metric")
	q.Set("appid", c.apiKey)
	return q
}

// owmCurrent is the subset of the /data/2.5/weather response we use.
type owmCurrent struct {
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Humidity  float64 `json:"humidity"`
		Pressure  float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Visibility float64 `json:"visibility"`
	Rain       struct {
		OneH float64 `json:"1h"`
	} `json:"rain"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Sys struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
}

// Current holds one fetch of current conditions.
type Current struct {
	Temp        float64
	FeelsLike   float64
	TempMin     float64
	TempMax     float64
	Humidity    float64
	Pressure    float64
	Wind        float64
	WindDeg     float64
	Clouds      float64
	VisibilityK int
	Description string
	Icon        string
	Rain1h      float64
	Sunrise     string
	Sunset      string
}

// FetchCurrent retrieves current conditions, geocoding first if needed.
// Sunrise and sunset are formatted as local HH:MM in loc.
func (c *Client) FetchCurrent(loc *time.Location) (Current, error) {
	if err := c.resolveCoords(); err != nil {
		return Current{}, err
	}

	var raw owmCurrent
	if err := c.get("/data/2.5/weather", c.coordQuery(), &raw); err != nil {
		return Current{}, err
	}

	cur := Current{
		Temp:        raw.Main.Temp,
		FeelsLike:   raw.Main.FeelsLike,
		TempMin:     raw.Main.TempMin,
		TempMax:     raw.Main.TempMax,
		Humidity:    raw.Main.Humidity,
		Pressure:    raw.Main.Pressure,
		Wind:        raw.Wind.Speed,
		WindDeg:     raw.Wind.Deg,
		Clouds:      raw.Clouds.All,
		VisibilityK: int(raw.Visibility / 1000),
		Rain1h:      raw.Rain.OneH,
	}
	if len(raw.Weather) > 0 {
		cur.Description = raw.Weather[0].Description
		cur.Icon = raw.Weather[0].Icon
	}
	if raw.Sys.Sunrise != 0 {
		cur.Sunrise = time.Unix(raw.Sys.Sunrise, 0).In(loc).Format("15:04")
	}
	if raw.Sys.Sunset != 0 {
		cur.Sunset = time.Unix(raw.Sys.Sunset, 0).In(loc).Format("15:04")
	}
	return cur, nil
}

// owmForecast is the subset of the /data/2.5/forecast response we use
// (3-hour buckets).
type owmForecast struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			TempMin  float64 `json:"temp_min"`
			TempMax  float64 `json:"temp_max"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Rain struct {
			ThreeH float64 `json:"3h"`
		} `json:"rain"`
	} `json:"list"`
}

// Forecast holds the aggregated short-term outlook.
type Forecast struct {
	Rain1h              float64
	Rain6h              float64
	TempMinTomorrow     float64
	TempMaxTomorrow     float64
	HumidityTomorrowMax float64
}

// FetchForecast retrieves the 3-hourly forecast and aggregates it: the next
// hour's rain is the first 3 h bucket averaged, the next 6 hours are the
// first two buckets summed, and tomorrow's extremes come from the entries
// falling on tomorrow's local calendar day.
func (c *Client) FetchForecast(loc *time.Location, now time.Time) (Forecast, error) {
	if err := c.resolveCoords(); err != nil {
		return Forecast{}, err
	}

	var raw owmForecast
	if err := c.get("/data/2.5/forecast", c.coordQuery(), &raw); err != nil {
		return Forecast{}, err
	}

	var f Forecast
	if len(raw.List) >= 2 {
		f.Rain1h = raw.List[0].Rain.ThreeH / 3.0
		f.Rain6h = raw.List[0].Rain.ThreeH + raw.List[1].Rain.ThreeH
	}

	tomorrow := now.In(loc).AddDate(0, 0, 1)
	minT, maxT := 1000.0, -1000.0
	var maxH float64
	for _, e := range raw.List {
		et := time.Unix(e.Dt, 0).In(loc)
		if et.Year() != tomorrow.Year() || et.YearDay() != tomorrow.YearDay() {
			continue
		}
		if e.Main.TempMin < minT {
			minT = e.Main.TempMin
		}
		if e.Main.TempMax > maxT {
			maxT = e.Main.TempMax
		}
		if e.Main.Humidity > maxH {
			maxH = e.Main.Humidity
		}
	}
	if minT < 1000.0 {
		f.TempMinTomorrow = minT
	}
	if maxT > -1000.0 {
		f.TempMaxTomorrow = maxT
	}
	f.HumidityTomorrowMax = maxH
	return f, nil
}
