// Package geocoding turns coordinates into Korean administrative regions
package geocoding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/logging"
)

// ErrNotFound is returned when no resolver knows the location
var ErrNotFound = errors.New("geocoding: region not found")

// Region is the administrative area containing a point, most general first
type Region struct {
	AdminArea   string // 시/도, e.g. "부산광역시"
	Locality    string // 시/군/구, e.g. "해운대구"
	SubLocality string // 읍/면/동, e.g. "우동"
}

// Key joins the non-empty parts with a space ("부산광역시 해운대구 우동")
func (r Region) Key() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.AdminArea, r.Locality, r.SubLocality} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// IsZero reports whether no part is known
func (r Region) IsZero() bool {
	return r.Key() == ""
}

// Candidates returns lookup keys from most to least specific: the full key,
// then the single parts from the smallest area up
func (r Region) Candidates() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range []string{r.Key(), r.SubLocality, r.Locality, r.AdminArea} {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Resolver converts coordinates to a Region
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) (Region, error)
}

// ChainResolver tries each resolver in order and returns the first hit
type ChainResolver struct {
	resolvers []Resolver
	logger    *zap.Logger
}

// NewChainResolver creates a resolver that falls through the given resolvers. Nil entries are skipped.
func NewChainResolver(logger *zap.Logger, resolvers ...Resolver) *ChainResolver {
	c := &ChainResolver{logger: logging.OrNop(logger).Named("geocoder")}
	for _, r := range resolvers {
		if r != nil {
			c.resolvers = append(c.resolvers, r)
		}
	}
	return c
}

// Resolve returns the first non-empty region
func (c *ChainResolver) Resolve(ctx context.Context, lat, lon float64) (Region, error) {
	var errs []error
	for _, r := range c.resolvers {
		region, err := r.Resolve(ctx, lat, lon)
		if err == nil && !region.IsZero() {
			return region, nil
		}
		if err != nil {
			c.logger.Warn("resolver failed", zap.String("resolver", fmt.Sprintf("%T", r)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return Region{}, ErrNotFound
	}
	return Region{}, errors.Join(append([]error{ErrNotFound}, errs...)...)
}
