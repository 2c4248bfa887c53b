package alerts

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/bada"
	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/logging"
	"github.com/ngmaloney/dive-relay/internal/watch"
)

// HighTideWindow is how far ahead a high tide triggers a warning
const HighTideWindow = 60 * time.Minute

// TideAlert is the /tide_alert payload
type TideAlert struct {
	Message string `json:"tide_alert"`
}

// TideManager warns when high water is within the next hour
type TideManager struct {
	client bada.TideClient
	sender watch.Sender
	logger *zap.Logger
	now    func() time.Time
}

func NewTideManager(client bada.TideClient, sender watch.Sender, logger *zap.Logger) *TideManager {
	return &TideManager{
		client: client,
		sender: sender,
		logger: logging.OrNop(logger).Named("tide"),
		now:    time.Now,
	}
}

func (m *TideManager) Kind() string { return KindTide }

// Check sends one alert per high tide of today that is 0 to 60 minutes away
func (m *TideManager) Check(ctx context.Context, p geo.Point) (Result, error) {
	days, err := m.client.FetchTide(ctx, p.Lat, p.Lon)
	if err != nil {
		return Result{Kind: KindTide}, err
	}
	if len(days) == 0 {
		return skipped(KindTide, "no tide data"), nil
	}

	now := m.now().In(Seoul)
	today := bada.ParseTideDay(days[0])

	res := skipped(KindTide, "no high tide within the hour")
	var sent []TideAlert
	for _, ev := range today.Events(now) {
		minutes := int64(ev.Time.Sub(now) / time.Minute)
		if !ev.High || minutes < 0 || minutes > int64(HighTideWindow/time.Minute) {
			continue
		}
		alert := TideAlert{Message: "만조 임박: " + ev.Raw}
		r, err := deliver(ctx, m.sender, KindTide, PathTideAlert, alert)
		if err != nil {
			return res, err
		}
		if !r.Sent {
			return r, nil
		}
		m.logger.Info("tide alert sent", zap.String("tide", ev.Raw), zap.Int64("minutes", minutes), zap.Int("nodes", r.Delivered))
		sent = append(sent, alert)
		res = Result{Kind: KindTide, Sent: true, Delivered: r.Delivered}
	}
	if len(sent) > 0 {
		res.Payload = sent
	}
	return res, nil
}

// SendTest sends a fixed high-tide warning
func (m *TideManager) SendTest(ctx context.Context) (Result, error) {
	return deliver(ctx, m.sender, KindTide, PathTideAlert, TideAlert{Message: "테스트 물때 알림 - 만조 임박"})
}
