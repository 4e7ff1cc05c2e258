package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`

	DatabasePath string `envconfig:"DATABASE_PATH" default:"towerguard.db" validate:"required"`

	// Cache settings. An empty CACHE_DIR keeps entries in memory only.
	CacheEnabled        bool          `envconfig:"CACHE_ENABLED" default:"true"`
	CacheDir            string        `envconfig:"CACHE_DIR"`
	CacheTTLNDVI        time.Duration `envconfig:"CACHE_TTL_NDVI" default:"24h" validate:"gt=0"`
	CacheTTLRainfall    time.Duration `envconfig:"CACHE_TTL_RAINFALL" default:"24h" validate:"gt=0"`
	CacheTTLTemperature time.Duration `envconfig:"CACHE_TTL_TEMPERATURE" default:"24h" validate:"gt=0"`
	CacheTTLSoil        time.Duration `envconfig:"CACHE_TTL_SOIL" default:"720h" validate:"gt=0"`

	// Fetch retry policy shared by every provider.
	FetchTimeout           time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s" validate:"gt=0"`
	FetchMaxAttempts       int           `envconfig:"FETCH_MAX_ATTEMPTS" default:"3" validate:"min=1,max=10"`
	FetchBaseDelay         time.Duration `envconfig:"FETCH_BASE_DELAY" default:"1s" validate:"gte=0"`
	FetchBackoffMultiplier float64       `envconfig:"FETCH_BACKOFF_MULTIPLIER" default:"2.0" validate:"gte=1"`

	// NASA POWER climatology (rainfall and temperature).
	NASAPowerURL       string `envconfig:"NASA_POWER_URL" default:"https://power.larc.nasa.gov/api/temporal/climatology/point" validate:"url"`
	NASAPowerAPIKey    string `envconfig:"NASA_POWER_API_KEY"`
	NASAPowerCommunity string `envconfig:"NASA_POWER_COMMUNITY" default:"AG" validate:"oneof=AG RE SB"`
	NASAPowerStartYear int    `envconfig:"NASA_POWER_START_YEAR" default:"1981" validate:"min=1981"`
	NASAPowerEndYear   int    `envconfig:"NASA_POWER_END_YEAR" default:"2010" validate:"gtefield=NASAPowerStartYear"`

	SoilGridsURL string `envconfig:"SOILGRIDS_URL" default:"https://rest.isric.org/soilgrids/v2.0/properties/query" validate:"url"`

	// Vegetation-index provider. Disabled unless a service credential is set.
	NDVIEnabled bool   `envconfig:"NDVI_ENABLED" default:"false"`
	NDVIURL     string `envconfig:"NDVI_URL" validate:"omitempty,url"`
	NDVIToken   string `envconfig:"NDVI_TOKEN"`

	// FixturesDir overrides the bundled provider snapshots.
	FixturesDir string `envconfig:"FIXTURES_DIR"`

	ScoringStrategy string `envconfig:"SCORING_STRATEGY" default:"rules" validate:"oneof=rules model"`
	ModelPath       string `envconfig:"MODEL_PATH"`

	// Kafka publication is enabled when KAFKA_BROKERS is set.
	KafkaBrokers          []string `envconfig:"KAFKA_BROKERS"`
	KafkaFeaturesTopic    string   `envconfig:"KAFKA_FEATURES_TOPIC" default:"site-features"`
	KafkaPredictionsTopic string   `envconfig:"KAFKA_PREDICTIONS_TOPIC" default:"site-predictions"`

	EnrichInterval   time.Duration `envconfig:"ENRICH_INTERVAL" default:"24h" validate:"gt=0"`
	EnrichWindowDays int           `envconfig:"ENRICH_WINDOW_DAYS" default:"30" validate:"min=1,max=3660"`

	BoundsMinLat float64 `envconfig:"BOUNDS_MIN_LAT" default:"-5" validate:"gte=-90,lte=90"`
	BoundsMaxLat float64 `envconfig:"BOUNDS_MAX_LAT" default:"5" validate:"gte=-90,lte=90,gtfield=BoundsMinLat"`
	BoundsMinLon float64 `envconfig:"BOUNDS_MIN_LON" default:"33" validate:"gte=-180,lte=180"`
	BoundsMaxLon float64 `envconfig:"BOUNDS_MAX_LON" default:"42" validate:"gte=-180,lte=180,gtfield=BoundsMinLon"`
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first if present; it never
// overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.KafkaBrokers = sharedcfg.ParseBrokers(strings.Join(cfg.KafkaBrokers, ","))

	if err := validator.New().Struct(cfg); err != nil {
		return nil, describe(err)
	}

	if len(cfg.KafkaBrokers) > 0 {
		if cfg.KafkaFeaturesTopic == "" {
			return nil, errors.New("KAFKA_FEATURES_TOPIC is required when KAFKA_BROKERS is set")
		}
		if cfg.KafkaPredictionsTopic == "" {
			return nil, errors.New("KAFKA_PREDICTIONS_TOPIC is required when KAFKA_BROKERS is set")
		}
	}
	if cfg.NDVIEnabled && cfg.NDVIURL == "" {
		return nil, errors.New("NDVI_ENABLED is true but NDVI_URL is not set")
	}
	if cfg.NDVIEnabled && cfg.NDVIToken == "" {
		return nil, errors.New("NDVI_ENABLED is true but NDVI_TOKEN is not set")
	}

	return &cfg, nil
}

// KafkaEnabled reports whether records are published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// describe rewrites validator errors so they name the environment variable.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("invalid %s: failed %q check (value %v)", envName(fe.StructField()), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func envName(field string) string {
	f, ok := reflect.TypeOf(Config{}).FieldByName(field)
	if !ok {
		return field
	}
	if tag := f.Tag.Get("envconfig"); tag != "" {
		return tag
	}
	return field
}
