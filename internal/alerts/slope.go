package alerts

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/coastal"
	"github.com/ngmaloney/dive-relay/internal/cooldown"
	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/geocoding"
	"github.com/ngmaloney/dive-relay/internal/logging"
	"github.com/ngmaloney/dive-relay/internal/watch"
)

const slopeTitle = "급경사지 위험 알림"

// SlopeOptions tunes the slope check
type SlopeOptions struct {
	Threshold float64
	Cooldown  time.Duration
}

// DefaultSlopeOptions alerts on 30° or steeper with a two hour cooldown
var DefaultSlopeOptions = SlopeOptions{Threshold: 30.0, Cooldown: 120 * time.Minute}

// SlopeAlert is the /slope_alert payload
type SlopeAlert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// SlopeManager warns about the steepest surveyed slope in the diver's district
type SlopeManager struct {
	repo     *coastal.SlopeRepo
	resolver geocoding.Resolver
	cooldown cooldown.Store
	sender   watch.Sender
	opts     SlopeOptions
	logger   *zap.Logger
	now      func() time.Time
}

func NewSlopeManager(repo *coastal.SlopeRepo, resolver geocoding.Resolver, store cooldown.Store, sender watch.Sender, opts SlopeOptions, logger *zap.Logger) *SlopeManager {
	return &SlopeManager{
		repo:     repo,
		resolver: resolver,
		cooldown: store,
		sender:   sender,
		opts:     opts,
		logger:   logging.OrNop(logger).Named("slope"),
		now:      time.Now,
	}
}

func (m *SlopeManager) Kind() string { return KindSlope }

// SlopeMessage formats the alert text
func SlopeMessage(region, spot string, gradient float64) string {
	return fmt.Sprintf("%s · %s (경사도 %.1f°)\n안전에 주의하세요.", region, spot, gradient)
}

// Check finds the steepest spot of the region containing p
func (m *SlopeManager) Check(ctx context.Context, p geo.Point) (Result, error) {
	if err := m.repo.EnsureLoaded(); err != nil {
		return Result{Kind: KindSlope}, err
	}

	region := resolveRegion(ctx, m.resolver, p, m.logger)
	display := region.Key()
	if display == "" {
		m.logger.Warn("empty region", zap.Float64("lat", p.Lat), zap.Float64("lon", p.Lon))
		return skipped(KindSlope, ErrNoRegion.Error()), nil
	}

	key, rows := firstMatch(region, m.repo.QueryByRegion)
	if len(rows) == 0 {
		m.logger.Debug("no slope rows", zap.String("region", display))
		return skipped(KindSlope, "no slope rows for "+display), nil
	}

	top, _ := coastal.Steepest(rows)
	m.logger.Debug("steepest spot",
		zap.String("region", display), zap.String("matched", key),
		zap.String("spot", top.Station), zap.Float64("gradient", top.Gradient))

	if top.Gradient < m.opts.Threshold {
		return skipped(KindSlope, fmt.Sprintf("below threshold %.1f < %.1f", top.Gradient, m.opts.Threshold)), nil
	}

	ok, err := m.cooldown.Allow(ctx, KindSlope, display, top.Station, m.opts.Cooldown, m.now())
	if err != nil {
		return Result{Kind: KindSlope}, err
	}
	if !ok {
		m.logger.Debug("cooldown active", zap.String("region", display), zap.String("spot", top.Station))
		return skipped(KindSlope, "cooldown active"), nil
	}

	return m.send(ctx, SlopeAlert{Title: slopeTitle, Message: SlopeMessage(display, top.Station, top.Gradient)})
}

// SendTest sends a fixed alert for 갈남해수욕장
func (m *SlopeManager) SendTest(ctx context.Context) (Result, error) {
	return m.send(ctx, SlopeAlert{Title: slopeTitle, Message: SlopeMessage("삼척시", "갈남해수욕장", 45.0)})
}

func (m *SlopeManager) send(ctx context.Context, alert SlopeAlert) (Result, error) {
	res, err := deliver(ctx, m.sender, KindSlope, PathSlopeAlert, alert)
	if res.Sent {
		m.logger.Info("slope alert sent", zap.String("message", alert.Message), zap.Int("nodes", res.Delivered))
	}
	return res, err
}
