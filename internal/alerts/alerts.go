// Package alerts checks hazard conditions around the diver and pushes warnings to the watch
package alerts

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/watch"
)

// Alert kinds, also used as cooldown keys and API path segments
const (
	KindWeather  = "weather"
	KindTide     = "tide"
	KindTyphoon  = "typhoon"
	KindSlope    = "slope"
	KindAccident = "accident"
)

// Watch paths of the alert messages
const (
	PathWeatherAlert  = "/weather_alert"
	PathTideAlert     = "/tide_alert"
	PathTyphoonAlert  = "/typhoon_alert"
	PathSlopeAlert    = "/slope_alert"
	PathAccidentAlert = "/alert_accident"
)

// ErrNoRegion is returned by region-based checks when the location cannot be geocoded
var ErrNoRegion = errors.New("alerts: empty region")

// Result describes one check. Sent is true when the payload was handed to the watch
// channel and Delivered counts the watches that accepted it. Reason explains a skip.
type Result struct {
	Kind      string `json:"kind"`
	Sent      bool   `json:"sent"`
	Delivered int    `json:"delivered"`
	DryRun    bool   `json:"dry_run,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Checker is implemented by every alert manager
type Checker interface {
	Kind() string
	Check(ctx context.Context, p geo.Point) (Result, error)
	SendTest(ctx context.Context) (Result, error)
}

// Seoul is the zone used for clock-based rules and timestamps
var Seoul = loadSeoul()

func loadSeoul() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// formatDouble prints whole numbers with one decimal ("34.0") and others as short as possible ("2.5")
func formatDouble(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func skipped(kind, reason string) Result {
	return Result{Kind: kind, Reason: reason}
}

// deliver sends v on path. No connected watch is a skip, not a failure.
func deliver(ctx context.Context, sender watch.Sender, kind, path string, v any) (Result, error) {
	n, err := watch.SendJSON(ctx, sender, path, v)
	switch {
	case errors.Is(err, watch.ErrNoWatch):
		return Result{Kind: kind, Reason: "no connected watch", Payload: v}, nil
	case err != nil:
		return Result{Kind: kind, Payload: v}, err
	}
	return Result{Kind: kind, Sent: true, Delivered: n, Payload: v}, nil
}

// Registry looks up checkers by kind
type Registry map[string]Checker

// NewRegistry indexes the given checkers; nil entries are skipped
func NewRegistry(checkers ...Checker) Registry {
	r := make(Registry, len(checkers))
	for _, c := range checkers {
		if c != nil {
			r[c.Kind()] = c
		}
	}
	return r
}

// Kinds returns the registered kinds in the fixed alert order
func (r Registry) Kinds() []string {
	var out []string
	for _, k := range []string{KindWeather, KindTide, KindTyphoon, KindSlope, KindAccident} {
		if _, ok := r[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
