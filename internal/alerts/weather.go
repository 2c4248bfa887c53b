package alerts

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/bada"
	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/logging"
	"github.com/ngmaloney/dive-relay/internal/models"
	"github.com/ngmaloney/dive-relay/internal/watch"
)

// Weather thresholds
const (
	HeatTempC     = 33.0
	ColdTempC     = -5.0
	HighWaveM     = 2.0
	StrongWindMPS = 10.0
)

const weatherTitle = "기상 경고"

// WeatherAlert is the /weather_alert payload
type WeatherAlert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// WeatherManager warns about heat, cold, high waves, strong wind and rain
type WeatherManager struct {
	client bada.WeatherClient
	sender watch.Sender
	logger *zap.Logger
}

func NewWeatherManager(client bada.WeatherClient, sender watch.Sender, logger *zap.Logger) *WeatherManager {
	return &WeatherManager{
		client: client,
		sender: sender,
		logger: logging.OrNop(logger).Named("weather"),
	}
}

func (m *WeatherManager) Kind() string { return KindWeather }

// WeatherWarnings returns one line per exceeded threshold, in a fixed order
func WeatherWarnings(cur models.CurrentWeather) []string {
	temp := models.ParseNumber(cur.Temp)
	wave := models.ParseNumber(cur.WaveHeight)
	wind := models.ParseNumber(cur.WindSpeed)

	var warnings []string
	if temp >= HeatTempC {
		warnings = append(warnings, "폭염 주의 (기온 "+formatDouble(temp)+"℃)")
	}
	if temp <= ColdTempC {
		warnings = append(warnings, "한파 주의 (기온 "+formatDouble(temp)+"℃)")
	}
	if wave >= HighWaveM {
		warnings = append(warnings, "높은 파고 주의 ("+formatDouble(wave)+"m)")
	}
	if wind >= StrongWindMPS {
		warnings = append(warnings, "강풍 주의 (풍속 "+formatDouble(wind)+"m/s)")
	}
	if strings.Contains(cur.Sky, "비") {
		warnings = append(warnings, "강수 주의")
	}
	return warnings
}

// Check fetches the current weather at p and sends the warnings, if any
func (m *WeatherManager) Check(ctx context.Context, p geo.Point) (Result, error) {
	cur, err := m.client.FetchBaseWeather(ctx, p.Lat, p.Lon)
	if errors.Is(err, bada.ErrNoData) {
		return skipped(KindWeather, "no weather data"), nil
	}
	if err != nil {
		return Result{Kind: KindWeather}, err
	}

	warnings := WeatherWarnings(*cur)
	if len(warnings) == 0 {
		m.logger.Debug("no weather warning", zap.String("temp", cur.Temp), zap.String("sky", cur.Sky))
		return skipped(KindWeather, "no threshold exceeded"), nil
	}
	return m.send(ctx, WeatherAlert{Title: weatherTitle, Message: strings.Join(warnings, "\n")})
}

// SendTest sends a fixed heat and wind warning
func (m *WeatherManager) SendTest(ctx context.Context) (Result, error) {
	return m.send(ctx, WeatherAlert{Title: weatherTitle, Message: "폭염 주의 (기온 34℃)\n강풍 주의 (풍속 11m/s)"})
}

func (m *WeatherManager) send(ctx context.Context, alert WeatherAlert) (Result, error) {
	res, err := deliver(ctx, m.sender, KindWeather, PathWeatherAlert, alert)
	if res.Sent {
		m.logger.Info("weather alert sent", zap.String("message", alert.Message), zap.Int("nodes", res.Delivered))
	}
	return res, err
}
