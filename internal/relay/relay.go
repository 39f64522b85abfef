// Package relay drives the irrigation valve relay outputs with hardware
// abstraction. The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package relay

// Driver sets relay output lines.
type Driver interface {
	// Set drives the output for the given channel high (open valve) or
	// low (closed valve).
	Set(channel int, on bool) error

	// Close drives every output low and releases GPIO resources.
	// The controller must be able to call this at any time and end up
	// with all valves closed.
	Close() error
}

// DefaultPins is the BCM pin assignment for the 8-channel relay board,
// one output line per zone.
var DefaultPins = []int{13, 12, 14, 27, 26, 25, 33, 32}
