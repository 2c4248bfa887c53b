// Package config loads dive-relay settings from the environment and an optional .env file
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the relay
type Config struct {
	// HTTP
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// BADA marine API (weather, tide, fishing points)
	BadaBaseURL    string `env:"BADA_BASE_URL" envDefault:"https://www.badatime.com/DIVE"`
	BadaServiceKey string `env:"BADA_SERVICE_KEY"`

	// data.go.kr services
	AirKoreaServiceKey string `env:"AIRKOREA_SERVICE_KEY"`
	DataGoKrServiceKey string `env:"DATA_GO_KR_SERVICE_KEY"`
	AirKoreaBaseURL    string `env:"AIRKOREA_BASE_URL" envDefault:"https://apis.data.go.kr"`
	TyphoonBaseURL     string `env:"TYPHOON_BASE_URL" envDefault:"http://apis.data.go.kr"`

	// Storage
	DBPath        string `env:"DB_PATH" envDefault:"data/dive-relay.db"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Static datasets
	AccidentCSV     string `env:"ACCIDENT_CSV" envDefault:"data/coastal_accidents.csv"`
	SlopeCSV        string `env:"SLOPE_CSV" envDefault:"data/coastal_slopes.csv"`
	WatchDatasets   bool   `env:"WATCH_DATASETS" envDefault:"true"`
	RegionShapefile string `env:"REGION_SHAPEFILE"`
	NominatimURL    string `env:"NOMINATIM_URL" envDefault:"https://nominatim.openstreetmap.org"`

	// Default location used until a device reports one
	DefaultLat float64 `env:"DEFAULT_LAT" envDefault:"37.5665"`
	DefaultLon float64 `env:"DEFAULT_LON" envDefault:"126.9780"`

	// Worker schedule
	WeatherInterval  time.Duration `env:"WEATHER_INTERVAL" envDefault:"30m"`
	TideInterval     time.Duration `env:"TIDE_INTERVAL" envDefault:"15m"`
	TyphoonInterval  time.Duration `env:"TYPHOON_INTERVAL" envDefault:"1h"`
	SlopeInterval    time.Duration `env:"SLOPE_INTERVAL" envDefault:"30m"`
	AccidentInterval time.Duration `env:"ACCIDENT_INTERVAL" envDefault:"1h"`
	RetryDelay       time.Duration `env:"RETRY_DELAY" envDefault:"30s"`

	// Alert thresholds
	AccidentThreshold int           `env:"ACCIDENT_THRESHOLD" envDefault:"10"`
	AccidentCooldown  time.Duration `env:"ACCIDENT_COOLDOWN" envDefault:"120m"`
	AccidentDryRun    bool          `env:"ACCIDENT_DRY_RUN" envDefault:"true"`
	AccidentRegion    string        `env:"ACCIDENT_REGION"` // fixed region, checked without a device fix
	SlopeThreshold    float64       `env:"SLOPE_THRESHOLD" envDefault:"30"`
	SlopeCooldown     time.Duration `env:"SLOPE_COOLDOWN" envDefault:"120m"`
	TyphoonRadiusKm   float64       `env:"TYPHOON_RADIUS_KM" envDefault:"300"`
	TyphoonLookback   int           `env:"TYPHOON_LOOKBACK_DAYS" envDefault:"60"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file (missing files are ignored) and parses the environment
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the relay cannot run with
func (c *Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"WEATHER_INTERVAL":  c.WeatherInterval,
		"TIDE_INTERVAL":     c.TideInterval,
		"TYPHOON_INTERVAL":  c.TyphoonInterval,
		"SLOPE_INTERVAL":    c.SlopeInterval,
		"ACCIDENT_INTERVAL": c.AccidentInterval,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.DefaultLat < -90 || c.DefaultLat > 90 || c.DefaultLon < -180 || c.DefaultLon > 180 {
		errs = append(errs, fmt.Errorf("default location %.4f,%.4f out of range", c.DefaultLat, c.DefaultLon))
	}
	if c.TyphoonLookback <= 0 {
		errs = append(errs, errors.New("TYPHOON_LOOKBACK_DAYS must be positive"))
	}
	return errors.Join(errs...)
}
