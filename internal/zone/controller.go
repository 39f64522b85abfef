// Package zone holds the per-channel valve state machine. It owns which zones
// are open and their auto-stop deadlines, and is the only component that
// touches the relay driver.
package zone

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PaweMed/weathermap-sprinkler/internal/relay"
	"github.com/PaweMed/weathermap-sprinkler/internal/store"
)

// ErrInvalidZone is returned for a channel id outside 0..count-1.
var ErrInvalidZone = errors.New("zone: invalid zone id")

// ErrBadDuration is returned for a non-positive watering duration.
var ErrBadDuration = errors.New("zone: duration must be positive")

// DefaultManualDuration is used by Toggle when switching a zone on by hand,
// as opposed to a program-driven start which always carries its own duration.
const DefaultManualDuration = 10 * time.Minute

const namesKey = "zones-names"

// Status is a point-in-time view of one zone.
type Status struct {
	ID       int    `json:"id"`
	Active   bool   `json:"active"`
	TimeLeft int    `json:"time_left"`
	Name     string `json:"name"`
}

type state struct {
	open  bool
	until time.Time
	name  string
}

// Controller keeps zone state behind a mutex. Mutation happens only through
// Start/Stop/Toggle/Sweep; the sync gateway and HTTP handlers read snapshots.
type Controller struct {
	mu     sync.RWMutex
	driver relay.Driver
	st     store.Store
	log    *zap.SugaredLogger
	zones  []state
}

// NewController creates a controller with every zone closed. The relay lines
// are driven low immediately: a restart must fail closed because all
// deadlines are lost with the process.
func NewController(count int, driver relay.Driver, st store.Store, log *zap.SugaredLogger) *Controller {
	c := &Controller{
		driver: driver,
		st:     st,
		log:    log,
		zones:  make([]state, count),
	}
	for i := range c.zones {
		c.zones[i].name = fmt.Sprintf("Zone %d", i+1)
		if err := driver.Set(i, false); err != nil {
			log.Errorw("close zone on startup", "zone", i, "error", err)
		}
	}
	c.loadNames()
	return c
}

func (c *Controller) loadNames() {
	var names []string
	err := c.st.Load(namesKey, &names)
	if errors.Is(err, store.ErrNotFound) {
		c.saveNames()
		return
	}
	if err != nil {
		c.log.Errorw("load zone names", "error", err)
		return
	}
	for i := range c.zones {
		if i < len(names) && names[i] != "" {
			c.zones[i].name = names[i]
		}
	}
}

// saveNames is called with c.mu held or before the controller is shared.
func (c *Controller) saveNames() {
	names := make([]string, len(c.zones))
	for i := range c.zones {
		names[i] = c.zones[i].name
	}
	if err := c.st.Save(namesKey, names); err != nil {
		c.log.Errorw("save zone names", "error", err)
	}
}

// Count returns the fixed number of channels.
func (c *Controller) Count() int {
	return len(c.zones)
}

// Start opens the zone and arms its auto-stop deadline at now+d. Calling
// Start on an already-open zone overwrites the deadline; durations never
// stack.
func (c *Controller) Start(id int, d time.Duration, now time.Time) error {
	if id < 0 || id >= len(c.zones) {
		return ErrInvalidZone
	}
	if d <= 0 {
		return ErrBadDuration
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.driver.Set(id, true); err != nil {
		return fmt.Errorf("drive zone %d: %w", id, err)
	}
	c.zones[id].open = true
	c.zones[id].until = now.Add(d)
	c.log.Infow("zone started", "zone", id, "duration", d)
	return nil
}

// Stop closes the zone and clears its deadline. Stopping a closed zone is a
// no-op.
func (c *Controller) Stop(id int) error {
	if id < 0 || id >= len(c.zones) {
		return ErrInvalidZone
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked(id)
}

func (c *Controller) stopLocked(id int) error {
	if err := c.driver.Set(id, false); err != nil {
		// Log and fall through: the in-memory state must still read
		// closed so the sweep retries the output next tick.
		c.log.Errorw("drive zone low", "zone", id, "error", err)
	}
	if c.zones[id].open {
		c.log.Infow("zone stopped", "zone", id)
	}
	c.zones[id].open = false
	c.zones[id].until = time.Time{}
	return nil
}

// Toggle stops an open zone, or starts a closed one with the fixed manual
// duration. Program-driven starts go through Start directly.
func (c *Controller) Toggle(id int, now time.Time) error {
	if id < 0 || id >= len(c.zones) {
		return ErrInvalidZone
	}

	c.mu.RLock()
	open := c.zones[id].open
	c.mu.RUnlock()

	if open {
		return c.Stop(id)
	}
	return c.Start(id, DefaultManualDuration, now)
}

// Sweep force-stops every open zone whose deadline has passed and returns the
// ids it closed. It runs unconditionally every tick; nothing may starve it.
func (c *Controller) Sweep(now time.Time) []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var closed []int
	for id := range c.zones {
		if c.zones[id].open && now.After(c.zones[id].until) {
			c.stopLocked(id)
			closed = append(closed, id)
		}
	}
	return closed
}

// Snapshot returns the state of every zone. TimeLeft is whole seconds,
// clamped at zero.
func (c *Controller) Snapshot(now time.Time) []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Status, len(c.zones))
	for i, z := range c.zones {
		s := Status{ID: i, Active: z.open, Name: z.name}
		if z.open {
			left := int(z.until.Sub(now).Seconds())
			if left < 0 {
				left = 0
			}
			s.TimeLeft = left
		}
		out[i] = s
	}
	return out
}

// IsOpen reports whether the zone is currently open.
func (c *Controller) IsOpen(id int) bool {
	if id < 0 || id >= len(c.zones) {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.zones[id].open
}

// Names returns all zone names in channel order.
func (c *Controller) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.zones))
	for i := range c.zones {
		names[i] = c.zones[i].name
	}
	return names
}

// SetNames replaces the whole name set and persists it. Missing or empty
// entries fall back to the "Zone n" default.
func (c *Controller) SetNames(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.zones {
		if i < len(names) && names[i] != "" {
			c.zones[i].name = names[i]
		} else {
			c.zones[i].name = fmt.Sprintf("Zone %d", i+1)
		}
	}
	c.saveNames()
}

// CloseAll stops every zone. Called on shutdown.
func (c *Controller) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.zones {
		c.stopLocked(id)
	}
}
