// Package location keeps the last position reported by the phone or a watch
package location

import (
	"fmt"
	"sync"
	"time"

	"github.com/ngmaloney/dive-relay/internal/geo"
)

// Fix is a reported position
type Fix struct {
	Point  geo.Point `json:"point"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// Tracker holds the last-known location. The zero value is not usable; use NewTracker.
type Tracker struct {
	mu       sync.RWMutex
	last     *Fix
	fallback geo.Point
	now      func() time.Time
}

// NewTracker creates a tracker that falls back to the given point.
// An invalid fallback is replaced by geo.DefaultPoint.
func NewTracker(fallback geo.Point) *Tracker {
	if !fallback.Valid() || fallback == (geo.Point{}) {
		fallback = geo.DefaultPoint
	}
	return &Tracker{fallback: fallback, now: time.Now}
}

// Update records a new position
func (t *Tracker) Update(p geo.Point, source string) error {
	if !p.Valid() {
		return fmt.Errorf("invalid location %.6f,%.6f", p.Lat, p.Lon)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = &Fix{Point: p, Source: source, At: t.now()}
	return nil
}

// Last returns the last reported position, if any
func (t *Tracker) Last() (geo.Point, bool) {
	f, ok := t.LastFix()
	return f.Point, ok
}

// LastFix returns the last reported position with its source and time
func (t *Tracker) LastFix() (Fix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return Fix{}, false
	}
	return *t.last, true
}

// CurrentOrDefault returns the last position or the fallback
func (t *Tracker) CurrentOrDefault() geo.Point {
	if p, ok := t.Last(); ok {
		return p
	}
	return t.fallback
}
