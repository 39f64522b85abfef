package relay

// FakeDriver records output states for test assertions.
type FakeDriver struct {
	// States holds the last driven level per channel.
	States map[int]bool

	// Sets records every Set call in order.
	Sets []Set

	// SetError, if set, will be returned by the Set method.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// Set records a single Set call.
type Set struct {
	Channel int
	On      bool
}

// NewFakeDriver creates a FakeDriver for testing.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{States: make(map[int]bool)}
}

// Set records the output state.
func (f *FakeDriver) Set(channel int, on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.States[channel] = on
	f.Sets = append(f.Sets, Set{Channel: channel, On: on})
	return nil
}

// Close drives all recorded channels low and marks the driver closed.
func (f *FakeDriver) Close() error {
	for ch := range f.States {
		f.States[ch] = false
	}
	f.Closed = true
	return nil
}

// Reset clears recorded state.
func (f *FakeDriver) Reset() {
	f.States = make(map[int]bool)
	f.Sets = nil
	f.SetError = nil
	f.Closed = false
}
