package alerts

import (
	"context"

	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/geocoding"
)

// resolveRegion geocodes p. Failures are logged and yield an empty region.
func resolveRegion(ctx context.Context, resolver geocoding.Resolver, p geo.Point, logger *zap.Logger) geocoding.Region {
	if resolver == nil {
		return geocoding.Region{}
	}
	region, err := resolver.Resolve(ctx, p.Lat, p.Lon)
	if err != nil {
		logger.Warn("geocoder failed", zap.Float64("lat", p.Lat), zap.Float64("lon", p.Lon), zap.Error(err))
		return geocoding.Region{}
	}
	return region
}

// firstMatch queries each candidate key of region until one returns rows
func firstMatch[T any](region geocoding.Region, query func(string) []T) (string, []T) {
	for _, key := range region.Candidates() {
		if rows := query(key); len(rows) > 0 {
			return key, rows
		}
	}
	return "", nil
}
