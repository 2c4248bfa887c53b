// Package bada wraps the BADA marine-data API (weather, tide and fishing points)
package bada

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ngmaloney/dive-relay/internal/models"
)

// ErrNoData is returned when the API answered but had nothing for the location
var ErrNoData = errors.New("bada: no data")

// WeatherClient defines the weather endpoints used by the relay and the weather alert
type WeatherClient interface {
	// FetchBaseWeather retrieves the current weather at a location
	FetchBaseWeather(ctx context.Context, lat, lon float64) (*models.CurrentWeather, error)

	// FetchWeather retrieves weather, sea forecast and water temperature as one summary
	FetchWeather(ctx context.Context, lat, lon float64) (*models.WeatherSummary, error)
}

// TideClient defines the tide endpoint
type TideClient interface {
	// FetchTide retrieves daily tide predictions, today first
	FetchTide(ctx context.Context, lat, lon float64) ([]json.RawMessage, error)
}

// PointClient defines the fishing point endpoint
type PointClient interface {
	// FetchFishingPoints retrieves fishing points around a location
	FetchFishingPoints(ctx context.Context, lat, lon float64) (*models.FishingPoints, error)
}
