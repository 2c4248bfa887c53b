// Package relay answers watch requests by path and forwards watch data to the phone layer
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/bada"
	"github.com/ngmaloney/dive-relay/internal/datagokr"
	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/geocoding"
	"github.com/ngmaloney/dive-relay/internal/heartrate"
	"github.com/ngmaloney/dive-relay/internal/location"
	"github.com/ngmaloney/dive-relay/internal/logging"
	"github.com/ngmaloney/dive-relay/internal/watch"
)

// Watch message paths
const (
	PathRequestLocation   = "/request_location"
	PathRequestWeather    = "/request_weather"
	PathRequestTide       = "/request_tide"
	PathRequestPoint      = "/request_point"
	PathRequestAir        = "/request_air"
	PathRequestHeartRate  = "/request_heart_rate"
	PathResponseLocation  = "/response_location"
	PathResponseWeather   = "/response_weather"
	PathResponseTide      = "/response_tide"
	PathResponsePoint     = "/response_point"
	PathResponseAir       = "/response_air"
	PathResponseHeartRate = "/response_heart_rate"
	PathUpdateLocation    = "/update_location"
)

// Deps are the collaborators of a Relay. Nil clients make their requests go unanswered.
type Deps struct {
	Sender    watch.Sender
	Tracker   *location.Tracker
	Weather   bada.WeatherClient
	Tides     bada.TideClient
	Points    bada.PointClient
	Air       datagokr.AirClient
	Geocoder  geocoding.Resolver
	HeartRate heartrate.Sink
	Logger    *zap.Logger
}

// Relay implements watch.Handler
type Relay struct {
	Deps
	logger *zap.Logger
	now    func() time.Time
}

// New creates a relay
func New(d Deps) *Relay {
	return &Relay{
		Deps:   d,
		logger: logging.OrNop(d.Logger).Named("relay"),
		now:    time.Now,
	}
}

// NodeConnected asks the new watch for a heart-rate reading
func (r *Relay) NodeConnected(ctx context.Context, node watch.NodeInfo) {
	r.reply(ctx, PathRequestHeartRate, []byte("request"))
}

// HandleMessage dispatches a watch message on its path
func (r *Relay) HandleMessage(ctx context.Context, node watch.NodeInfo, msg watch.Message) {
	log := r.logger.With(zap.String("node", node.ID), zap.String("path", msg.Path))
	log.Debug("message received")

	var err error
	switch msg.Path {
	case PathRequestLocation:
		err = r.handleLocation(ctx)
	case PathRequestWeather:
		err = r.handleWeather(ctx)
	case PathRequestTide:
		err = r.handleTide(ctx)
	case PathRequestPoint:
		err = r.handlePoint(ctx)
	case PathRequestAir:
		err = r.handleAir(ctx)
	case PathResponseHeartRate:
		err = r.handleHeartRate(ctx, node, msg.Data)
	case PathUpdateLocation:
		err = r.handleUpdateLocation(node, msg.Data)
	default:
		log.Info("unknown path", zap.String("data", msg.Data))
		return
	}
	if err != nil {
		log.Warn("request not answered", zap.Error(err))
	}
}

var errNoClient = errors.New("no client configured")

func (r *Relay) handleLocation(ctx context.Context) error {
	p, ok := r.Tracker.Last()
	if !ok {
		return errors.New("location unavailable")
	}
	return r.replyJSON(ctx, PathResponseLocation, p)
}

func (r *Relay) handleWeather(ctx context.Context) error {
	if r.Weather == nil {
		return errNoClient
	}
	p := r.Tracker.CurrentOrDefault()
	summary, err := r.Weather.FetchWeather(ctx, p.Lat, p.Lon)
	if err != nil {
		return err
	}
	return r.replyJSON(ctx, PathResponseWeather, summary)
}

func (r *Relay) handleTide(ctx context.Context) error {
	if r.Tides == nil {
		return errNoClient
	}
	p := r.Tracker.CurrentOrDefault()
	days, err := r.Tides.FetchTide(ctx, p.Lat, p.Lon)
	if err != nil {
		return err
	}
	if days == nil {
		days = []json.RawMessage{}
	}
	return r.replyJSON(ctx, PathResponseTide, map[string]any{"tides": days})
}

func (r *Relay) handlePoint(ctx context.Context) error {
	if r.Points == nil {
		return errNoClient
	}
	p := r.Tracker.CurrentOrDefault()
	points, err := r.Points.FetchFishingPoints(ctx, p.Lat, p.Lon)
	if err != nil {
		return err
	}
	return r.replyJSON(ctx, PathResponsePoint, points)
}

func (r *Relay) handleAir(ctx context.Context) error {
	if r.Air == nil {
		return errNoClient
	}
	adminArea := ""
	if r.Geocoder != nil {
		p := r.Tracker.CurrentOrDefault()
		region, err := r.Geocoder.Resolve(ctx, p.Lat, p.Lon)
		if err != nil {
			r.logger.Warn("reverse geocoding failed, using default province", zap.Error(err))
		}
		adminArea = region.AdminArea
	}
	summary, err := r.Air.AirQualitySummary(ctx, adminArea)
	if err != nil {
		return err
	}
	return r.replyJSON(ctx, PathResponseAir, summary)
}

func (r *Relay) handleHeartRate(ctx context.Context, node watch.NodeInfo, data string) error {
	reading, err := heartrate.Parse(node.ID, data, r.now())
	if err != nil {
		return err
	}
	r.logger.Info("heart rate received", zap.String("node", node.ID), zap.Int("bpm", reading.BPM))
	if r.HeartRate == nil {
		return nil
	}
	return r.HeartRate.Record(ctx, reading)
}

func (r *Relay) handleUpdateLocation(node watch.NodeInfo, data string) error {
	lat, okLat := coordinate(gjson.Get(data, "lat"))
	lon, okLon := coordinate(gjson.Get(data, "lon"))
	if !okLat || !okLon {
		return fmt.Errorf("location payload without numeric lat/lon: %q", data)
	}
	return r.Tracker.Update(geo.Point{Lat: lat, Lon: lon}, "watch:"+node.ID)
}

// coordinate accepts JSON numbers and numeric strings only
func coordinate(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil
	}
	return 0, false
}

func (r *Relay) replyJSON(ctx context.Context, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	r.reply(ctx, path, data)
	return nil
}

func (r *Relay) reply(ctx context.Context, path string, data []byte) {
	n, err := r.Sender.Send(ctx, path, data)
	if err != nil {
		r.logger.Warn("reply failed", zap.String("path", path), zap.Error(err))
		return
	}
	r.logger.Debug("reply sent", zap.String("path", path), zap.Int("nodes", n))
}
