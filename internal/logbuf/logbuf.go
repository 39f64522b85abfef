// Package logbuf keeps the bounded, user-visible event log: a fixed-capacity
// FIFO of timestamped lines, persisted on every change so it survives a
// restart. Not to be confused with the structured process log.
package logbuf

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PaweMed/weathermap-sprinkler/internal/store"
)

// Capacity is the maximum number of retained entries; the oldest entry is
// evicted first when full.
const Capacity = 50

const logsKey = "logs"

// Buffer is a fixed-capacity FIFO of log lines.
type Buffer struct {
	mu      sync.RWMutex
	st      store.Store
	log     *zap.SugaredLogger
	entries []string
}

// NewBuffer loads any persisted entries from the store.
func NewBuffer(st store.Store, log *zap.SugaredLogger) *Buffer {
	b := &Buffer{st: st, log: log}

	var entries []string
	err := st.Load(logsKey, &entries)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Errorw("load logs", "error", err)
	}
	if len(entries) > Capacity {
		entries = entries[len(entries)-Capacity:]
	}
	b.entries = entries
	return b
}

// save is called with b.mu held.
func (b *Buffer) save() {
	if err := b.st.Save(logsKey, b.entries); err != nil {
		b.log.Errorw("save logs", "error", err)
	}
}

// Add appends a line stamped with the local time, evicting the oldest entry
// when the buffer is full.
func (b *Buffer) Add(now time.Time, text string) {
	entry := now.Format("2006-01-02 15:04:05") + " – " + text

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= Capacity {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, entry)
	b.save()
}

// Entries returns all retained lines, oldest first.
func (b *Buffer) Entries() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, len(b.entries))
	copy(out, b.entries)
	return out
}

// Clear removes every entry.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = nil
	b.save()
}
