package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/alerts"
	"github.com/ngmaloney/dive-relay/internal/bada"
	"github.com/ngmaloney/dive-relay/internal/coastal"
	"github.com/ngmaloney/dive-relay/internal/config"
	"github.com/ngmaloney/dive-relay/internal/cooldown"
	"github.com/ngmaloney/dive-relay/internal/database"
	"github.com/ngmaloney/dive-relay/internal/datagokr"
	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/geocoding"
	"github.com/ngmaloney/dive-relay/internal/heartrate"
	"github.com/ngmaloney/dive-relay/internal/location"
	"github.com/ngmaloney/dive-relay/internal/relay"
	"github.com/ngmaloney/dive-relay/internal/server"
	"github.com/ngmaloney/dive-relay/internal/watch"
	"github.com/ngmaloney/dive-relay/internal/worker"
)

// app is the fully wired relay
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db    *sql.DB
	redis *redis.Client

	hub       *watch.Hub
	tracker   *location.Tracker
	bada      *bada.Client
	air       *datagokr.AirKoreaClient
	typhoons  *datagokr.KMATyphoonClient
	geocoder  geocoding.Resolver
	accidents *coastal.AccidentRepo
	slopes    *coastal.SlopeRepo
	heartRate *heartrate.SQLiteRecorder

	registry  alerts.Registry
	accident  *alerts.AccidentManager
	scheduler *worker.Scheduler
	relay     *relay.Relay
}

// newApp opens storage and builds every component from cfg
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.db = db

	if cfg.RedisAddr != "" {
		client, err := database.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.redis = client
		logger.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	}

	// Cooldowns and heart-rate fan-out prefer Redis when it is configured
	var store cooldown.Store = cooldown.NewSQLite(db)
	a.heartRate = heartrate.NewSQLiteRecorder(db)
	sinks := heartrate.Multi{a.heartRate}
	if a.redis != nil {
		store = cooldown.NewRedis(a.redis)
		sinks = append(sinks, heartrate.NewRedisPublisher(a.redis))
	}

	a.tracker = location.NewTracker(geo.Point{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon})
	a.hub = watch.NewHub(logger)

	a.bada = bada.NewClient(cfg.BadaBaseURL, cfg.BadaServiceKey, logger)
	a.air = datagokr.NewAirKoreaClient(cfg.AirKoreaBaseURL, cfg.AirKoreaServiceKey, logger)
	a.typhoons = datagokr.NewTyphoonClient(cfg.TyphoonBaseURL, cfg.DataGoKrServiceKey, logger)
	a.geocoder = newGeocoder(cfg, logger)

	a.accidents = coastal.NewAccidentRepo(cfg.AccidentCSV, logger)
	a.slopes = coastal.NewSlopeRepo(cfg.SlopeCSV, logger)

	a.accident = alerts.NewAccidentManager(a.accidents, a.geocoder, store, a.hub, alerts.AccidentOptions{
		Threshold: cfg.AccidentThreshold,
		Cooldown:  cfg.AccidentCooldown,
		DryRun:    cfg.AccidentDryRun,
		Region:    cfg.AccidentRegion,
	}, logger)
	weather := alerts.NewWeatherManager(a.bada, a.hub, logger)
	tide := alerts.NewTideManager(a.bada, a.hub, logger)
	typhoon := alerts.NewTyphoonManager(a.typhoons, a.hub, cfg.TyphoonRadiusKm, cfg.TyphoonLookback, logger)
	slope := alerts.NewSlopeManager(a.slopes, a.geocoder, store, a.hub, alerts.SlopeOptions{
		Threshold: cfg.SlopeThreshold,
		Cooldown:  cfg.SlopeCooldown,
	}, logger)
	a.registry = alerts.NewRegistry(weather, tide, typhoon, slope, a.accident)

	a.scheduler = worker.New(a.tracker, cfg.RetryDelay, logger)
	jobs := []worker.Job{
		worker.CheckerJob(weather, cfg.WeatherInterval),
		worker.CheckerJob(tide, cfg.TideInterval),
		worker.CheckerJob(typhoon, cfg.TyphoonInterval),
		worker.CheckerJob(slope, cfg.SlopeInterval),
		worker.AccidentJob(a.accident, cfg.AccidentInterval, a.accident.Options()),
	}
	for _, job := range jobs {
		if err := a.scheduler.Add(job); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.relay = relay.New(relay.Deps{
		Sender:    a.hub,
		Tracker:   a.tracker,
		Weather:   a.bada,
		Tides:     a.bada,
		Points:    a.bada,
		Air:       a.air,
		Geocoder:  a.geocoder,
		HeartRate: sinks,
		Logger:    logger,
	})
	a.hub.SetHandler(a.relay)

	return a, nil
}

// newGeocoder puts the offline shapefile lookup in front of Nominatim
func newGeocoder(cfg *config.Config, logger *zap.Logger) geocoding.Resolver {
	var resolvers []geocoding.Resolver
	if cfg.RegionShapefile != "" {
		shape, err := geocoding.LoadShapefile(cfg.RegionShapefile, geocoding.DefaultShapeFields)
		if err != nil {
			logger.Warn("region shapefile unavailable, using Nominatim only",
				zap.String("path", cfg.RegionShapefile), zap.Error(err))
		} else {
			resolvers = append(resolvers, shape)
		}
	}
	if cfg.NominatimURL != "" {
		resolvers = append(resolvers, geocoding.NewNominatimResolver(cfg.NominatimURL))
	}
	return geocoding.NewChainResolver(logger, resolvers...)
}

// server builds the HTTP API over the app
func (a *app) server() *server.Server {
	return server.New(server.Deps{
		Hub:        a.hub,
		Tracker:    a.tracker,
		Weather:    a.bada,
		Tides:      a.bada,
		Points:     a.bada,
		Air:        a.air,
		Typhoons:   a.typhoons,
		Geocoder:   a.geocoder,
		Accidents:  a.accidents,
		Slopes:     a.slopes,
		Alerts:     a.registry,
		Accident:   a.accident,
		Scheduler:  a.scheduler,
		HeartRates: a.heartRate,
		Logger:     a.logger,
	})
}

// datasetWatcher reloads the CSV datasets on change
func (a *app) datasetWatcher() *coastal.Watcher {
	return coastal.NewWatcher(a.logger, a.accidents, a.slopes)
}

// locate pins the tracker to an explicit position for one-shot commands
func (a *app) locate(lat, lon float64, set bool) error {
	if !set {
		return nil
	}
	if err := a.tracker.Update(geo.Point{Lat: lat, Lon: lon}, "cli"); err != nil {
		return fmt.Errorf("invalid location: %w", err)
	}
	return nil
}

// Close releases connections in reverse order of opening
func (a *app) Close() error {
	var errs []error
	if a.hub != nil {
		a.hub.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
