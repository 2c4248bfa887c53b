package bada

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ngmaloney/dive-relay/internal/models"
)

// FetchBaseWeather retrieves the first entry of the current weather list.
// An empty weather list is reported as ErrNoData.
func (c *Client) FetchBaseWeather(ctx context.Context, lat, lon float64) (*models.CurrentWeather, error) {
	body, err := c.get(ctx, "current", lat, lon)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("failed to decode current weather: invalid JSON")
	}

	first := gjson.GetBytes(body, "weather.0")
	if !first.Exists() {
		return nil, ErrNoData
	}

	return &models.CurrentWeather{
		Sky:        first.Get("sky").String(),
		Temp:       first.Get("temp").String(),
		Humidity:   first.Get("humidity").String(),
		WindSpeed:  first.Get("windspd").String(),
		Rain:       first.Get("rain").String(),
		WindDir:    first.Get("winddir").String(),
		WaveHeight: first.Get("pago").String(),
	}, nil
}

// FetchSeaTemp retrieves the nearest water temperature observation
func (c *Client) FetchSeaTemp(ctx context.Context, lat, lon float64) (*models.SeaTemp, error) {
	body, err := c.get(ctx, "temp", lat, lon)
	if err != nil {
		return nil, err
	}
	first, err := firstElement(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sea temperature: %w", err)
	}
	return &models.SeaTemp{ObservedWaterTemp: first.Get("obs_wt").String()}, nil
}

// FetchSeaWeather retrieves the first marine forecast period
func (c *Client) FetchSeaWeather(ctx context.Context, lat, lon float64) (*models.SeaForecast, error) {
	body, err := c.get(ctx, "forecast", lat, lon)
	if err != nil {
		return nil, err
	}
	first, err := firstElement(stripInvisible(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode sea forecast: %w", err)
	}
	return &models.SeaForecast{
		WaveHeight: first.Get("waveHt").String(),
		WaveDir:    first.Get("waveDir").String(),
	}, nil
}

// FetchWeather fetches current weather, sea forecast and water temperature concurrently.
// Only the current weather is required; missing sea data leaves those fields empty.
// A failed current-weather request cancels the sea requests. ErrNoData is returned
// only when none of the three has data.
func (c *Client) FetchWeather(ctx context.Context, lat, lon float64) (*models.WeatherSummary, error) {
	var (
		base *models.CurrentWeather
		sea  *models.SeaForecast
		temp *models.SeaTemp
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		base, err = c.FetchBaseWeather(gctx, lat, lon)
		if errors.Is(err, ErrNoData) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		if sea, err = c.FetchSeaWeather(gctx, lat, lon); err != nil && gctx.Err() == nil {
			c.logger.Warn("sea forecast unavailable", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if temp, err = c.FetchSeaTemp(gctx, lat, lon); err != nil && gctx.Err() == nil {
			c.logger.Warn("sea temperature unavailable", zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if base == nil {
		if sea == nil && temp == nil {
			return nil, ErrNoData
		}
		return models.NewWeatherSummary(models.CurrentWeather{}, sea, temp), nil
	}
	return models.NewWeatherSummary(*base, sea, temp), nil
}

// firstElement returns the first element of a JSON array body
func firstElement(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.New("invalid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return gjson.Result{}, fmt.Errorf("expected array, got %s", root.Type)
	}
	first := root.Get("0")
	if !first.Exists() {
		return gjson.Result{}, ErrNoData
	}
	return first, nil
}
