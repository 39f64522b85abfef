package weather

import "fmt"

// Decision is the weather adjustment applied to a program's nominal watering
// duration, with the inputs that produced it for auditability.
type Decision struct {
	Percent     int     `json:"percent"`
	Rain6h      float64 `json:"rain_6h"`
	TempNow     float64 `json:"temp_now"`
	HumidityNow float64 `json:"humidity_now"`
	Explain     string  `json:"explain"`
}

// Decide maps the rolling 6 h rainfall plus current temperature and humidity
// to a percentage multiplier. The rules are not mutually exclusive; they are
// evaluated in this exact order and the first match wins:
//
//	rain6h >= 5.0 mm                 ->   0% (cancel)
//	rain6h >= 2.0 mm                 ->  40%
//	temp > 27°C and humidity < 50%   -> 120% (boost)
//	rain6h < 2.0 mm, humidity > 70%  ->  80% (reduce)
//	otherwise                        -> 100%
//
// Identical inputs always yield the identical decision.
func Decide(rain6h, tempNow, humidityNow float64) Decision {
	d := Decision{
		Rain6h:      rain6h,
		TempNow:     tempNow,
		HumidityNow: humidityNow,
	}

	switch {
	case rain6h >= 5.0:
		d.Percent = 0
		d.Explain = fmt.Sprintf("%.1f mm rain in the last 6h, watering cancelled", rain6h)
	case rain6h >= 2.0:
		d.Percent = 40
		d.Explain = fmt.Sprintf("%.1f mm rain in the last 6h, watering reduced to 40%%", rain6h)
	case tempNow > 27.0 && humidityNow < 50.0:
		d.Percent = 120
		d.Explain = fmt.Sprintf("hot and dry (%.1f°C, %.0f%% humidity), watering boosted to 120%%", tempNow, humidityNow)
	case humidityNow > 70.0:
		d.Percent = 80
		d.Explain = fmt.Sprintf("high humidity (%.0f%%), watering reduced to 80%%", humidityNow)
	default:
		d.Percent = 100
		d.Explain = "normal conditions, full watering"
	}
	return d
}
