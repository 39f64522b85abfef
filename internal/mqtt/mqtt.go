// Package mqtt is the push transport: retained state documents out, command
// topics in. Inbound messages never mutate state directly; they are parsed
// into commands and queued for the main loop.
package mqtt

import "time"

// Publisher is the broker connection. The real implementation wraps paho;
// tests use the fake.
type Publisher interface {
	// Publish sends a payload. Returns error if publishing fails
	// (must not crash the process).
	Publish(topic string, payload []byte, retained bool) error

	// Subscribe registers a callback for a topic filter. The callback
	// runs on the client's network goroutine and must not block.
	Subscribe(filter string, cb func(topic string, payload []byte)) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// Command is an inbound mutation waiting for the main loop. Run executes it
// against the gateway with the loop's clock.
type Command struct {
	Name string
	Run  func(now time.Time)
}
