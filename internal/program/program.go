// Package program holds the recurring watering schedules and the tick-driven
// scheduler that fires them through the weather decision.
package program

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MaxPrograms bounds the program collection.
const MaxPrograms = 32

// ErrInvalidProgram is returned for a program index out of range.
var ErrInvalidProgram = errors.New("program: invalid program id")

// ErrTooMany is returned when adding past the fixed maximum.
var ErrTooMany = errors.New("program: maximum program count reached")

// DaySet is a set of weekdays, bit n = weekday n with 0 = Sunday, matching
// local wall-clock weekday numbering.
type DaySet uint8

// NewDaySet builds a set from weekday numbers; out-of-range values are
// ignored.
func NewDaySet(days ...int) DaySet {
	var s DaySet
	for _, d := range days {
		if d >= 0 && d <= 6 {
			s |= 1 << uint(d)
		}
	}
	return s
}

// AllDays is the every-day set.
var AllDays = NewDaySet(0, 1, 2, 3, 4, 5, 6)

// Contains reports whether the weekday is in the set.
func (s DaySet) Contains(w time.Weekday) bool {
	return s&(1<<uint(w)) != 0
}

// Days returns the set as sorted weekday numbers.
func (s DaySet) Days() []int {
	out := []int{}
	for d := 0; d <= 6; d++ {
		if s&(1<<uint(d)) != 0 {
			out = append(out, d)
		}
	}
	return out
}

// MarshalJSON encodes the set as a list of weekday numbers.
func (s DaySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Days())
}

// UnmarshalJSON decodes a list of weekday numbers.
func (s *DaySet) UnmarshalJSON(data []byte) error {
	var days []int
	if err := json.Unmarshal(data, &days); err != nil {
		return err
	}
	*s = NewDaySet(days...)
	return nil
}

// DayKey identifies one local calendar day unambiguously (year*1000 + yday),
// so the once-per-day guard survives midnight, DST shifts and clock jumps.
type DayKey int

// DayKeyFor returns the key for t's calendar day.
func DayKeyFor(t time.Time) DayKey {
	return DayKey(t.Year()*1000 + t.YearDay())
}

// Program is one recurring schedule rule targeting a single zone.
type Program struct {
	Zone            int
	StartMinutes    int // minutes after local midnight
	DurationMinutes int
	Days            DaySet
	Active          bool
	LastFired       DayKey // 0 = never
}

// TimeOfDay formats the start time as HH:MM.
func (p Program) TimeOfDay() string {
	return fmt.Sprintf("%02d:%02d", p.StartMinutes/60, p.StartMinutes%60)
}

// ParseTimeOfDay converts "HH:MM" to minutes after midnight.
func ParseTimeOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("parse time %q: out of range", s)
	}
	return h*60 + m, nil
}

// Record is the wire and persistence form of a Program.
type Record struct {
	Zone        int    `json:"zone"`
	Time        string `json:"time"`
	Duration    int    `json:"duration"`
	Days        DaySet `json:"days"`
	Active      bool   `json:"active"`
	LastFiredOn int    `json:"last_fired_on,omitempty"`
}

// Patch is a partial program update; nil fields are left unchanged.
type Patch struct {
	Zone     *int    `json:"zone"`
	Time     *string `json:"time"`
	Duration *int    `json:"duration"`
	Days     *DaySet `json:"days"`
	Active   *bool   `json:"active"`
}

// Defaults substituted for malformed persisted fields; a bad record must
// never crash the scheduler on load.
const (
	defaultTime     = "06:00"
	defaultDuration = 10
)

// fromRecord builds a Program from a Record substituting defaults for
// malformed fields, and reports whether all fields were valid for zoneCount
// channels.
func fromRecord(r Record, zoneCount int) (Program, bool) {
	ok := true

	p := Program{
		Zone:            r.Zone,
		DurationMinutes: r.Duration,
		Days:            r.Days,
		Active:          r.Active,
		LastFired:       DayKey(r.LastFiredOn),
	}
	if p.Zone < 0 || p.Zone >= zoneCount {
		p.Zone = 0
		ok = false
	}
	mins, err := ParseTimeOfDay(r.Time)
	if err != nil {
		mins, _ = ParseTimeOfDay(defaultTime)
		ok = false
	}
	p.StartMinutes = mins
	if p.DurationMinutes <= 0 {
		p.DurationMinutes = defaultDuration
		ok = false
	}
	if p.Days == 0 {
		p.Days = AllDays
		ok = false
	}
	return p, ok
}

func toRecord(p Program) Record {
	return Record{
		Zone:        p.Zone,
		Time:        p.TimeOfDay(),
		Duration:    p.DurationMinutes,
		Days:        p.Days,
		Active:      p.Active,
		LastFiredOn: int(p.LastFired),
	}
}
