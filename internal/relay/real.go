//go:build linux

package relay

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealDriver drives relay outputs on actual hardware using the Linux GPIO
// character device.
type RealDriver struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewRealDriver requests one output line per pin, all driven low, so every
// valve starts closed regardless of how the process previously exited.
func NewRealDriver(pins []int) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	d := &RealDriver{chip: chip}
	for i, pin := range pins {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("request zone %d pin %d: %w", i, pin, err)
		}
		d.lines = append(d.lines, line)
	}
	return d, nil
}

// Set drives the channel's output line.
func (d *RealDriver) Set(channel int, on bool) error {
	if channel < 0 || channel >= len(d.lines) {
		return fmt.Errorf("set: channel %d out of range", channel)
	}
	v := 0
	if on {
		v = 1
	}
	if err := d.lines[channel].SetValue(v); err != nil {
		return fmt.Errorf("set zone %d: %w", channel, err)
	}
	return nil
}

// Close drives every line low before releasing it so the relays cannot be
// left energized across a restart.
func (d *RealDriver) Close() error {
	var errs []error
	for i, line := range d.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear zone %d: %w", i, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close zone %d: %w", i, err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
