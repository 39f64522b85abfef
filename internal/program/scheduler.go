package program

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PaweMed/weathermap-sprinkler/internal/logbuf"
	"github.com/PaweMed/weathermap-sprinkler/internal/notify"
	"github.com/PaweMed/weathermap-sprinkler/internal/store"
	"github.com/PaweMed/weathermap-sprinkler/internal/weather"
	"github.com/PaweMed/weathermap-sprinkler/internal/zone"
)

const programsKey = "programs"

// DecisionSource supplies the current watering adjustment.
type DecisionSource interface {
	Decision(now time.Time) weather.Decision
}

// Metrics is the hook the observability layer uses to count scheduler
// outcomes. May be nil.
type Metrics interface {
	ProgramFired()
	ProgramSkipped()
}

// TickResult reports what a scheduler pass changed.
type TickResult struct {
	Fired   int
	Skipped int
}

// Scheduler owns the program collection and is the only writer of the
// last-fired markers. Every mutation is persisted immediately.
type Scheduler struct {
	mu       sync.RWMutex
	programs []Program

	zones    *zone.Controller
	decide   DecisionSource
	st       store.Store
	events   *logbuf.Buffer
	notifier notify.Notifier
	log      *zap.SugaredLogger
	metrics  Metrics

	// autoMode gates the weather adjustment; with it off every program
	// runs at its nominal duration.
	autoMode bool
}

// NewScheduler loads persisted programs. A malformed record gets defaults
// substituted and is kept; it never aborts the load.
func NewScheduler(zones *zone.Controller, decide DecisionSource, st store.Store, events *logbuf.Buffer, notifier notify.Notifier, log *zap.SugaredLogger, metrics Metrics) *Scheduler {
	s := &Scheduler{
		zones:    zones,
		decide:   decide,
		st:       st,
		events:   events,
		notifier: notifier,
		log:      log,
		metrics:  metrics,
		autoMode: true,
	}
	s.load()
	return s
}

func (s *Scheduler) load() {
	var recs []Record
	err := s.st.Load(programsKey, &recs)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Errorw("load programs", "error", err)
		return
	}
	for _, r := range recs {
		if len(s.programs) >= MaxPrograms {
			break
		}
		p, ok := fromRecord(r, s.zones.Count())
		if !ok {
			s.log.Warnw("malformed persisted program, defaults substituted", "record", r)
		}
		s.programs = append(s.programs, p)
	}
}

// save is called with s.mu held.
func (s *Scheduler) save() {
	recs := make([]Record, len(s.programs))
	for i, p := range s.programs {
		recs[i] = toRecord(p)
	}
	if err := s.st.Save(programsKey, recs); err != nil {
		s.log.Errorw("save programs", "error", err)
	}
}

// SetAutoMode toggles whether weather adjusts program durations.
func (s *Scheduler) SetAutoMode(on bool) {
	s.mu.Lock()
	s.autoMode = on
	s.mu.Unlock()
}

// List returns all programs in their wire form.
func (s *Scheduler) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]Record, len(s.programs))
	for i, p := range s.programs {
		recs[i] = toRecord(p)
	}
	return recs
}

// Add appends a new program from its wire form.
func (s *Scheduler) Add(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.programs) >= MaxPrograms {
		return ErrTooMany
	}
	p, ok := fromRecord(r, s.zones.Count())
	if !ok {
		return fmt.Errorf("program: malformed record")
	}
	p.LastFired = 0
	s.programs = append(s.programs, p)
	s.save()
	return nil
}

// Edit applies a partial patch to the program at idx.
func (s *Scheduler) Edit(idx int, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.programs) {
		return ErrInvalidProgram
	}
	p := &s.programs[idx]

	if patch.Zone != nil {
		if *patch.Zone < 0 || *patch.Zone >= s.zones.Count() {
			return zone.ErrInvalidZone
		}
		p.Zone = *patch.Zone
	}
	if patch.Time != nil {
		mins, err := ParseTimeOfDay(*patch.Time)
		if err != nil {
			return err
		}
		p.StartMinutes = mins
	}
	if patch.Duration != nil {
		if *patch.Duration <= 0 {
			return fmt.Errorf("program: duration must be positive")
		}
		p.DurationMinutes = *patch.Duration
	}
	if patch.Days != nil {
		p.Days = *patch.Days
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	s.save()
	return nil
}

// Remove deletes the program at idx.
func (s *Scheduler) Remove(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.programs) {
		return ErrInvalidProgram
	}
	s.programs = append(s.programs[:idx], s.programs[idx+1:]...)
	s.save()
	return nil
}

// Clear removes every program.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.programs = nil
	s.save()
}

// Import replaces the whole set. Importing the same set twice yields the
// same result as importing it once.
func (s *Scheduler) Import(recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(recs) > MaxPrograms {
		recs = recs[:MaxPrograms]
	}
	programs := make([]Program, 0, len(recs))
	for _, r := range recs {
		p, ok := fromRecord(r, s.zones.Count())
		if !ok {
			s.log.Warnw("malformed imported program, defaults substituted", "record", r)
		}
		programs = append(programs, p)
	}
	s.programs = programs
	s.save()
	return nil
}

// Tick evaluates every program against the local time. The fire condition is
// now >= the scheduled minute (a delayed tick cannot silently skip a fire),
// guarded by the calendar-day key which is set in the same pass. A zero
// percent decision logs the skip and leaves the key unset, so the program
// stays eligible for later ticks of the same day.
func (s *Scheduler) Tick(now time.Time) TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res TickResult
	today := DayKeyFor(now)
	weekday := now.Weekday()
	nowMins := now.Hour()*60 + now.Minute()

	for i := range s.programs {
		p := &s.programs[i]
		if !p.Active {
			continue
		}
		if !p.Days.Contains(weekday) {
			continue
		}
		if nowMins < p.StartMinutes {
			continue
		}
		if p.LastFired == today {
			continue
		}

		dec := weather.Decision{Percent: 100, Explain: "auto mode off, full watering"}
		if s.autoMode && s.decide != nil {
			dec = s.decide.Decision(now)
		}

		if dec.Percent == 0 {
			// Intentionally leave LastFired unset: the program may
			// still run today if conditions improve.
			res.Skipped++
			s.log.Infow("program skipped by weather",
				"program", i, "zone", p.Zone,
				"base_minutes", p.DurationMinutes,
				"percent", dec.Percent,
				"rain_6h", dec.Rain6h, "temp", dec.TempNow, "humidity", dec.HumidityNow)
			s.event(now, fmt.Sprintf("Watering cancelled for zone %d: %s", p.Zone+1, dec.Explain))
			if s.metrics != nil {
				s.metrics.ProgramSkipped()
			}
			continue
		}

		scaled := time.Duration(p.DurationMinutes) * time.Minute * time.Duration(dec.Percent) / 100
		if err := s.zones.Start(p.Zone, scaled, now); err != nil {
			s.log.Errorw("program start failed", "program", i, "zone", p.Zone, "error", err)
			continue
		}
		p.LastFired = today
		res.Fired++

		s.log.Infow("program fired",
			"program", i, "zone", p.Zone,
			"base_minutes", p.DurationMinutes,
			"percent", dec.Percent,
			"scaled", scaled,
			"rain_6h", dec.Rain6h, "temp", dec.TempNow, "humidity", dec.HumidityNow)
		switch {
		case dec.Percent == 100:
			s.event(now, fmt.Sprintf("Auto: zone %d started for %d min", p.Zone+1, int(scaled.Minutes())))
		default:
			s.event(now, fmt.Sprintf("Auto: zone %d started for %d min (%d%%: %s)",
				p.Zone+1, int(scaled.Minutes()), dec.Percent, dec.Explain))
		}
		if s.metrics != nil {
			s.metrics.ProgramFired()
		}
	}

	if res.Fired > 0 {
		s.save()
	}
	return res
}

func (s *Scheduler) event(now time.Time, text string) {
	if s.events != nil {
		s.events.Add(now, text)
	}
	if s.notifier != nil {
		if err := s.notifier.Send(text); err != nil {
			s.log.Warnw("notification failed", "error", err)
		}
	}
}
