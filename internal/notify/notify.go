// Package notify is the boundary for outbound push notifications. Delivery
// itself (Pushover or similar) lives outside this core; components only see
// the Notifier interface.
package notify

import "sync"

// Notifier sends a short human-readable message to the device owner.
type Notifier interface {
	Send(msg string) error
}

// Nop discards all messages. Used when no delivery backend is configured.
type Nop struct{}

// Send discards the message.
func (Nop) Send(msg string) error { return nil }

// Fake records messages for test assertions.
type Fake struct {
	mu sync.Mutex

	// Messages contains every sent message in order.
	Messages []string

	// SendError, if set, will be returned by Send.
	SendError error
}

// Send records the message.
func (f *Fake) Send(msg string) error {
	if f.SendError != nil {
		return f.SendError
	}
	f.mu.Lock()
	f.Messages = append(f.Messages, msg)
	f.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded messages.
func (f *Fake) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Messages))
	copy(out, f.Messages)
	return out
}
