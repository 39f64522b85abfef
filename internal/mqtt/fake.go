package mqtt

import (
	"strings"
	"sync"
)

// Message is one recorded publish.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// FakePublisher records publishes and lets tests inject inbound messages.
type FakePublisher struct {
	mu       sync.Mutex
	messages []Message
	subs     []subscription

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Connected controls the return value of IsConnected.
	Connected bool

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a connected FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

// Publish records the message.
func (f *FakePublisher) Publish(topic string, payload []byte, retained bool) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.mu.Lock()
	f.messages = append(f.messages, Message{Topic: topic, Payload: payload, Retained: retained})
	f.mu.Unlock()
	return nil
}

// Subscribe records the filter for Inject to match against.
func (f *FakePublisher) Subscribe(filter string, cb func(topic string, payload []byte)) error {
	f.mu.Lock()
	f.subs = append(f.subs, subscription{filter: filter, cb: cb})
	f.mu.Unlock()
	return nil
}

// Inject delivers an inbound message to every matching subscription.
func (f *FakePublisher) Inject(topic string, payload []byte) {
	f.mu.Lock()
	subs := make([]subscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, s := range subs {
		if filterMatches(s.filter, topic) {
			s.cb(topic, payload)
		}
	}
}

// filterMatches supports exact filters and a trailing multi-level wildcard,
// which is all the bridge uses.
func filterMatches(filter, topic string) bool {
	if prefix, ok := strings.CutSuffix(filter, "#"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return filter == topic
}

// Messages returns a copy of everything published so far.
func (f *FakePublisher) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.messages))
	copy(out, f.messages)
	return out
}

// MessagesOn returns the payloads published to one topic, oldest first.
func (f *FakePublisher) MessagesOn(topic string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, m := range f.messages {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	f.messages = nil
	f.mu.Unlock()
}

// IsConnected reports whether the fake is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}
