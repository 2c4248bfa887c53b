// Package heartrate forwards heart-rate readings from watches to the phone application layer
package heartrate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Reading is one heart-rate sample
type Reading struct {
	NodeID string    `json:"node_id"`
	BPM    int       `json:"bpm"`
	At     time.Time `json:"at"`
}

// ErrInvalid is returned for payloads without a usable bpm
var ErrInvalid = errors.New("heartrate: invalid reading")

// Parse reads a watch payload: either a bare number ("72") or {"bpm": 72, "timestamp": ...}.
// timestamp may be epoch milliseconds or RFC 3339; when absent, received is used.
func Parse(nodeID, data string, received time.Time) (Reading, error) {
	data = strings.TrimSpace(data)
	if !gjson.Valid(data) {
		return Reading{}, fmt.Errorf("%w: %q", ErrInvalid, data)
	}

	r := Reading{NodeID: nodeID, At: received}
	doc := gjson.Parse(data)
	var bpm gjson.Result
	switch {
	case doc.Type == gjson.Number, doc.Type == gjson.String:
		bpm = doc
	case doc.IsObject():
		bpm = doc.Get("bpm")
		if !bpm.Exists() {
			bpm = doc.Get("heart_rate")
		}
		if ts := doc.Get("timestamp"); ts.Exists() {
			if at, ok := parseTimestamp(ts); ok {
				r.At = at
			}
		}
	}

	v := bpm.Float()
	if !bpm.Exists() || v <= 0 || v > 300 || math.IsNaN(v) {
		return Reading{}, fmt.Errorf("%w: %q", ErrInvalid, data)
	}
	r.BPM = int(math.Round(v))
	return r, nil
}

func parseTimestamp(ts gjson.Result) (time.Time, bool) {
	switch ts.Type {
	case gjson.Number:
		ms := ts.Int()
		if ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(ms), true
	case gjson.String:
		t, err := time.Parse(time.RFC3339, ts.String())
		return t, err == nil
	}
	return time.Time{}, false
}

// Sink receives readings
type Sink interface {
	Record(ctx context.Context, r Reading) error
}

// Multi fans a reading out to every sink and joins their errors
type Multi []Sink

func (m Multi) Record(ctx context.Context, r Reading) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
