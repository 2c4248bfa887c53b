// Package cooldown suppresses repeated alerts for the same place
package cooldown

import (
	"context"
	"sync"
	"time"
)

// Entry is the last alert recorded for a kind
type Entry struct {
	Region string
	Item   string
	At     time.Time
}

// Store remembers one entry per alert kind.
//
// Allow reports whether an alert for (region, item) may be sent at now. It is
// refused only when the stored entry has the same pair and is younger than
// window. An allowed call replaces the stored entry. A window <= 0 always allows.
type Store interface {
	Allow(ctx context.Context, kind, region, item string, window time.Duration, now time.Time) (bool, error)
	Last(ctx context.Context, kind string) (Entry, bool, error)
}

// decide applies the cooldown rule to a stored entry
func decide(prev Entry, found bool, region, item string, window time.Duration, now time.Time) bool {
	if window <= 0 || !found {
		return true
	}
	if prev.Region != region || prev.Item != item {
		return true
	}
	return now.Sub(prev.At) >= window
}

// Memory is an in-process Store
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemory creates an empty in-process store
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Allow(_ context.Context, kind, region, item string, window time.Duration, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, found := m.entries[kind]
	if !decide(prev, found, region, item, window, now) {
		return false, nil
	}
	m.entries[kind] = Entry{Region: region, Item: item, At: now}
	return true, nil
}

func (m *Memory) Last(_ context.Context, kind string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[kind]
	return e, ok, nil
}
