package alerts

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/datagokr"
	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/logging"
	"github.com/ngmaloney/dive-relay/internal/models"
	"github.com/ngmaloney/dive-relay/internal/watch"
)

// DefaultTyphoonRadiusKm is the alert radius around the diver
const DefaultTyphoonRadiusKm = 300.0

// TyphoonAlert is the /typhoon_alert payload
type TyphoonAlert struct {
	Typhoon  string  `json:"typhoon"`
	Distance float64 `json:"distance"`
}

// TyphoonManager warns when the nearest typhoon advisory position is inside the radius
type TyphoonManager struct {
	client       datagokr.TyphoonClient
	sender       watch.Sender
	logger       *zap.Logger
	radiusKm     float64
	lookbackDays int
}

// NewTyphoonManager creates a manager. Zero radius or lookback use the defaults.
func NewTyphoonManager(client datagokr.TyphoonClient, sender watch.Sender, radiusKm float64, lookbackDays int, logger *zap.Logger) *TyphoonManager {
	if radiusKm <= 0 {
		radiusKm = DefaultTyphoonRadiusKm
	}
	if lookbackDays <= 0 {
		lookbackDays = 60
	}
	return &TyphoonManager{
		client:       client,
		sender:       sender,
		logger:       logging.OrNop(logger).Named("typhoon"),
		radiusKm:     radiusKm,
		lookbackDays: lookbackDays,
	}
}

func (m *TyphoonManager) Kind() string { return KindTyphoon }

// Nearest returns the valid position closest to p and its distance
func Nearest(positions []models.TyphoonPosition, p geo.Point) (models.TyphoonPosition, float64, bool) {
	var (
		nearest models.TyphoonPosition
		best    = math.Inf(1)
		found   bool
	)
	for _, pos := range positions {
		if !pos.Valid {
			continue
		}
		km := geo.HaversineKm(p.Lat, p.Lon, pos.Lat, pos.Lon)
		if km < best {
			nearest, best, found = pos, km, true
		}
	}
	return nearest, best, found
}

// Check fetches recent advisories and alerts on the nearest one within the radius
func (m *TyphoonManager) Check(ctx context.Context, p geo.Point) (Result, error) {
	m.logger.Debug("check start", zap.Float64("lat", p.Lat), zap.Float64("lon", p.Lon))

	positions, err := m.client.FetchRecent(ctx, m.lookbackDays)
	if err != nil {
		return Result{Kind: KindTyphoon}, err
	}
	if len(positions) == 0 {
		return skipped(KindTyphoon, "no typhoon advisories"), nil
	}

	nearest, km, ok := Nearest(positions, p)
	if !ok {
		m.logger.Debug("no valid typhoon coordinates", zap.Int("advisories", len(positions)))
		return skipped(KindTyphoon, "no valid typhoon coordinates"), nil
	}
	m.logger.Debug("nearest typhoon", zap.String("name", nearest.Name), zap.Float64("km", km))

	if km > m.radiusKm {
		return skipped(KindTyphoon, "nearest typhoon outside radius"), nil
	}
	return m.send(ctx, TyphoonAlert{Typhoon: nearest.Name, Distance: km})
}

// SendTest sends a fixed alert without calling the API
func (m *TyphoonManager) SendTest(ctx context.Context) (Result, error) {
	return m.send(ctx, TyphoonAlert{Typhoon: "태풍 테스트 알림", Distance: 123.4})
}

func (m *TyphoonManager) send(ctx context.Context, alert TyphoonAlert) (Result, error) {
	res, err := deliver(ctx, m.sender, KindTyphoon, PathTyphoonAlert, alert)
	if res.Sent {
		m.logger.Info("typhoon alert sent", zap.String("typhoon", alert.Typhoon), zap.Float64("km", alert.Distance), zap.Int("nodes", res.Delivered))
	}
	return res, err
}
