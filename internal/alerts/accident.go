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

const timestampLayout = "2006-01-02 15:04:05"

// AccidentOptions tunes the accident check. Region, when set, replaces reverse geocoding.
type AccidentOptions struct {
	Threshold int
	Cooldown  time.Duration
	DryRun    bool
	Region    string
}

// DefaultAccidentOptions alerts on 10 or more accidents with a two hour cooldown
var DefaultAccidentOptions = AccidentOptions{Threshold: 10, Cooldown: 120 * time.Minute}

// AccidentTestOptions fills the test payload. Zero values take the defaults
// (테스트 지역, 갯바위, 12 accidents); DryRun defaults to true.
type AccidentTestOptions struct {
	Region    string
	PlaceType string
	Accidents int
	DryRun    *bool
}

// AccidentAlert is the /alert_accident payload
type AccidentAlert struct {
	Type      string `json:"type"`
	Region    string `json:"region"`
	PlaceType string `json:"place_se"`
	Accidents int    `json:"accidents"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// AccidentManager warns about the most accident-prone place type in the diver's region
type AccidentManager struct {
	repo     *coastal.AccidentRepo
	resolver geocoding.Resolver
	cooldown cooldown.Store
	sender   watch.Sender
	opts     AccidentOptions
	logger   *zap.Logger
	now      func() time.Time
}

func NewAccidentManager(repo *coastal.AccidentRepo, resolver geocoding.Resolver, store cooldown.Store, sender watch.Sender, opts AccidentOptions, logger *zap.Logger) *AccidentManager {
	return &AccidentManager{
		repo:     repo,
		resolver: resolver,
		cooldown: store,
		sender:   sender,
		opts:     opts,
		logger:   logging.OrNop(logger).Named("accident"),
		now:      time.Now,
	}
}

func (m *AccidentManager) Kind() string { return KindAccident }

// Options returns the configured defaults
func (m *AccidentManager) Options() AccidentOptions { return m.opts }

// AccidentMessage formats the alert text, e.g. "⚠️ 갯바위는 위험한 지역입니다"
func AccidentMessage(placeType string) string {
	return "⚠️ " + withTopicParticle(placeType) + " 위험한 지역입니다"
}

// Check runs CheckWith using the configured options
func (m *AccidentManager) Check(ctx context.Context, p geo.Point) (Result, error) {
	return m.CheckWith(ctx, p, m.opts)
}

// CheckWith sums accidents per place type in the region of p and alerts on the top type
func (m *AccidentManager) CheckWith(ctx context.Context, p geo.Point, opts AccidentOptions) (Result, error) {
	m.logger.Debug("check",
		zap.Int("threshold", opts.Threshold), zap.Duration("cooldown", opts.Cooldown), zap.Bool("dry_run", opts.DryRun))

	if err := m.repo.EnsureLoaded(); err != nil {
		return Result{Kind: KindAccident}, err
	}

	region := geocoding.Region{AdminArea: opts.Region}
	if opts.Region == "" {
		region = resolveRegion(ctx, m.resolver, p, m.logger)
	}
	display := region.Key()
	if display == "" {
		m.logger.Warn("empty region", zap.Float64("lat", p.Lat), zap.Float64("lon", p.Lon))
		return skipped(KindAccident, ErrNoRegion.Error()), nil
	}

	_, byType := firstMatch(region, func(key string) []coastal.TypeTotal {
		return m.repo.QueryByRegion(key, "").Summary.ByType
	})
	if len(byType) == 0 {
		m.logger.Debug("no accident rows", zap.String("region", display))
		return skipped(KindAccident, "no accident rows for "+display), nil
	}

	var top coastal.TypeTotal
	for _, t := range byType {
		if t.Accidents > top.Accidents {
			top = t
		}
	}
	m.logger.Debug("top place type", zap.String("region", display), zap.String("type", top.PlaceType), zap.Int("accidents", top.Accidents))

	if top.Accidents < opts.Threshold {
		return skipped(KindAccident, fmt.Sprintf("below threshold %d < %d", top.Accidents, opts.Threshold)), nil
	}

	ok, err := m.cooldown.Allow(ctx, KindAccident, display, top.PlaceType, opts.Cooldown, m.now())
	if err != nil {
		return Result{Kind: KindAccident}, err
	}
	if !ok {
		m.logger.Debug("cooldown active", zap.String("region", display), zap.String("type", top.PlaceType))
		return skipped(KindAccident, "cooldown active"), nil
	}

	alert := m.payload("accident", display, top.PlaceType, top.Accidents, AccidentMessage(top.PlaceType))
	return m.send(ctx, alert, opts.DryRun)
}

// SendTest sends the default test payload in dry-run mode
func (m *AccidentManager) SendTest(ctx context.Context) (Result, error) {
	return m.SendTestWith(ctx, AccidentTestOptions{})
}

// SendTestWith sends a test payload without touching the dataset
func (m *AccidentManager) SendTestWith(ctx context.Context, opts AccidentTestOptions) (Result, error) {
	region, placeType, accidents, dryRun := "테스트 지역", "갯바위", 12, true
	if opts.Region != "" {
		region = opts.Region
	}
	if opts.PlaceType != "" {
		placeType = opts.PlaceType
	}
	if opts.Accidents != 0 {
		accidents = opts.Accidents
	}
	if opts.DryRun != nil {
		dryRun = *opts.DryRun
	}
	alert := m.payload("accident_test", region, placeType, accidents,
		"테스트 사고 알림 - "+withTopicParticle(placeType)+" 위험 주의")
	return m.send(ctx, alert, dryRun)
}

func (m *AccidentManager) payload(kind, region, placeType string, accidents int, message string) AccidentAlert {
	return AccidentAlert{
		Type:      kind,
		Region:    region,
		PlaceType: placeType,
		Accidents: accidents,
		Message:   message,
		Timestamp: m.now().In(Seoul).Format(timestampLayout),
	}
}

func (m *AccidentManager) send(ctx context.Context, alert AccidentAlert, dryRun bool) (Result, error) {
	if dryRun {
		m.logger.Info("DRYRUN would send", zap.Any("payload", alert))
		return Result{Kind: KindAccident, DryRun: true, Payload: alert}, nil
	}
	res, err := deliver(ctx, m.sender, KindAccident, PathAccidentAlert, alert)
	if res.Sent {
		m.logger.Info("accident alert sent", zap.String("region", alert.Region), zap.String("type", alert.PlaceType), zap.Int("nodes", res.Delivered))
	}
	return res, err
}
