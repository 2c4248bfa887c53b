package models

import (
	"strings"
	"time"
)

// TideDay is one day of BADA tide predictions. Each PTime entry looks like "07:06 (81) ▲+54".
type TideDay struct {
	Date  string `json:"pThisDate"`
	Name  string `json:"pName"`
	Mul   string `json:"pMul"`
	Sun   string `json:"pSun"`
	Moon  string `json:"pMoon"`
	PTime [4]string
}

// TideEvent is a parsed PTime entry
type TideEvent struct {
	Raw  string
	Time time.Time
	High bool
}

// highTideMark is the marker BADA uses for high water
const highTideMark = "▲"

// ParseTideEvent parses the leading HH:mm of raw and places it on the day of ref.
// ok is false for blank or malformed entries.
func ParseTideEvent(raw string, ref time.Time) (TideEvent, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TideEvent{}, false
	}
	timePart := strings.Fields(raw)[0]
	t, err := time.Parse("15:04", timePart)
	if err != nil {
		return TideEvent{}, false
	}
	at := time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour(), t.Minute(), 0, 0, ref.Location())
	return TideEvent{
		Raw:  raw,
		Time: at,
		High: strings.Contains(raw, highTideMark),
	}, true
}

// Events returns the parsed PTime entries of the day placed on ref's date
func (d TideDay) Events(ref time.Time) []TideEvent {
	var events []TideEvent
	for _, raw := range d.PTime {
		if ev, ok := ParseTideEvent(raw, ref); ok {
			events = append(events, ev)
		}
	}
	return events
}
