package program

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDaySet(t *testing.T) {
	s := NewDaySet(1, 3, 5)

	if !s.Contains(time.Monday) || !s.Contains(time.Wednesday) || !s.Contains(time.Friday) {
		t.Error("expected Mon/Wed/Fri in set")
	}
	if s.Contains(time.Sunday) || s.Contains(time.Tuesday) {
		t.Error("unexpected days in set")
	}

	got := s.Days()
	want := []int{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("Days() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Days() = %v, want %v", got, want)
		}
	}
}

func TestDaySetJSON(t *testing.T) {
	s := NewDaySet(0, 6)
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != "[0,6]" {
		t.Errorf("Marshal = %s, want [0,6]", data)
	}

	var back DaySet
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != s {
		t.Errorf("round trip mismatch: %v != %v", back, s)
	}

	// Out-of-range days are dropped, not fatal.
	if err := json.Unmarshal([]byte("[1,9,-2]"), &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != NewDaySet(1) {
		t.Errorf("expected only day 1, got %v", back.Days())
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"06:00", 360, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"garbage", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeOfDay(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDayKey(t *testing.T) {
	a := DayKeyFor(time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC))
	b := DayKeyFor(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	if a == b {
		t.Error("midnight boundary must change the day key")
	}

	// Same day-of-year in different years must differ.
	c := DayKeyFor(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	d := DayKeyFor(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	if c == d {
		t.Error("same yday across years must differ")
	}
}

func TestFromRecordDefaults(t *testing.T) {
	p, ok := fromRecord(Record{Zone: 99, Time: "garbage", Duration: -5}, 8)
	if ok {
		t.Error("malformed record should report not ok")
	}
	if p.Zone != 0 {
		t.Errorf("zone = %d, want default 0", p.Zone)
	}
	if p.TimeOfDay() != "06:00" {
		t.Errorf("time = %s, want default 06:00", p.TimeOfDay())
	}
	if p.DurationMinutes != 10 {
		t.Errorf("duration = %d, want default 10", p.DurationMinutes)
	}
	if p.Days != AllDays {
		t.Errorf("days = %v, want all days", p.Days.Days())
	}
}
