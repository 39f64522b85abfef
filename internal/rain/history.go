// Package rain keeps a rolling window of rainfall samples so the watering
// decision can ask "how much rain fell in the last 6 hours". Samples are
// coalesced per calendar hour and written through to the store on every
// mutation, so the window survives a restart.
package rain

import (
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PaweMed/weathermap-sprinkler/internal/store"
)

// Window is the trailing period a sample stays relevant.
const Window = 6 * time.Hour

// MaxSamples bounds the stored history: one coalesced bucket per hour of the
// window.
const MaxSamples = 6

const historyKey = "rain-history"

// Sample is one rainfall measurement.
type Sample struct {
	Time        time.Time
	Millimeters float64
}

type persistedSample struct {
	Time int64   `json:"time"`
	Rain float64 `json:"rain"`
}

// History is a bounded rolling store of rain samples.
type History struct {
	mu      sync.RWMutex
	st      store.Store
	log     *zap.SugaredLogger
	samples []Sample
}

// NewHistory loads any persisted window from the store.
func NewHistory(st store.Store, log *zap.SugaredLogger, now time.Time) *History {
	h := &History{st: st, log: log}
	h.load(now)
	return h
}

func (h *History) load(now time.Time) {
	var recs []persistedSample
	err := h.st.Load(historyKey, &recs)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		h.log.Errorw("load rain history", "error", err)
		return
	}
	for _, r := range recs {
		h.samples = append(h.samples, Sample{
			Time:        time.Unix(r.Time, 0).In(now.Location()),
			Millimeters: r.Rain,
		})
	}
	h.pruneLocked(now)
}

// save is called with h.mu held.
func (h *History) save() {
	recs := make([]persistedSample, len(h.samples))
	for i, s := range h.samples {
		// Round to 0.1 mm to keep the persisted document stable.
		recs[i] = persistedSample{
			Time: s.Time.Unix(),
			Rain: math.Round(s.Millimeters*10) / 10,
		}
	}
	if err := h.st.Save(historyKey, recs); err != nil {
		h.log.Errorw("save rain history", "error", err)
	}
}

func sameHour(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay() && a.Hour() == b.Hour()
}

// pruneLocked drops samples older than the window. Called with h.mu held.
func (h *History) pruneLocked(now time.Time) {
	kept := h.samples[:0]
	for _, s := range h.samples {
		if now.Sub(s.Time) <= Window {
			kept = append(kept, s)
		}
	}
	h.samples = kept
}

// Add records rainfall at now. A sample landing in the same calendar hour as
// the newest stored sample is summed into it instead of appended; when the
// window is full the oldest sample is evicted.
func (h *History) Add(mm float64, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.samples); n > 0 && sameHour(h.samples[n-1].Time, now) {
		h.samples[n-1].Millimeters += mm
		h.samples[n-1].Time = now
	} else {
		if len(h.samples) >= MaxSamples {
			h.samples = h.samples[1:]
		}
		h.samples = append(h.samples, Sample{Time: now, Millimeters: mm})
	}

	h.pruneLocked(now)
	h.save()
}

// Sum returns total rainfall over the trailing window, never counting a
// sample older than the window regardless of what Add calls happened.
func (h *History) Sum(now time.Time) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pruneLocked(now)
	var sum float64
	for _, s := range h.samples {
		sum += s.Millimeters
	}
	return sum
}

// Samples returns the current window, oldest first.
func (h *History) Samples(now time.Time) []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pruneLocked(now)
	out := make([]Sample, len(h.samples))
	copy(out, h.samples)
	return out
}
