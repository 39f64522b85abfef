package weather

import "testing"

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		rain6h   float64
		temp     float64
		humidity float64
		want     int
	}{
		{"heavy rain cancels", 6.0, 20, 60, 0},
		{"exactly 5mm cancels", 5.0, 20, 60, 0},
		{"moderate rain reduces", 3.0, 20, 60, 40},
		{"exactly 2mm reduces", 2.0, 20, 60, 40},
		{"hot and dry boosts", 0, 30, 40, 120},
		{"humid reduces", 0, 20, 75, 80},
		{"exactly 75 humid reduces", 0.5, 15, 75, 80},
		{"normal full", 1.0, 20, 60, 100},
		{"boundary temp 27 not boosted", 0, 27, 40, 100},
		{"boundary humidity 50 not boosted", 0, 30, 50, 100},
		{"boundary humidity 70 not reduced", 0, 20, 70, 100},
		// Rain rules win over the temperature rule.
		{"rain beats hot and dry", 5.5, 30, 40, 0},
		{"moderate rain beats hot and dry", 2.5, 30, 40, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.rain6h, tt.temp, tt.humidity)
			if got.Percent != tt.want {
				t.Errorf("Decide(%v, %v, %v).Percent = %d, want %d",
					tt.rain6h, tt.temp, tt.humidity, got.Percent, tt.want)
			}
			if got.Explain == "" {
				t.Error("explanation must not be empty")
			}
			if got.Rain6h != tt.rain6h || got.TempNow != tt.temp || got.HumidityNow != tt.humidity {
				t.Error("decision must echo its inputs")
			}
		})
	}
}

func TestDecideDeterministic(t *testing.T) {
	a := Decide(1.0, 28.5, 45.0)
	b := Decide(1.0, 28.5, 45.0)
	if a != b {
		t.Errorf("identical inputs gave different decisions: %+v vs %+v", a, b)
	}
}
