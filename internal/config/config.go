package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-history-etl/internal/weather"
	"github.com/i474232898/weather-history-etl/internal/weather/providers"
)

type AppConfig struct {
	Location weather.Location `yaml:"location"`

	// Interval configuration consumed by the resolver.
	AnchorYear int    `yaml:"anchor_year" validate:"gte=1940"`
	SpanYears  int    `yaml:"span_years" validate:"gte=1"`
	Direction  string `yaml:"direction"`

	ArchiveURL            string        `yaml:"archive_url" validate:"required,url"`
	GeocodingURL          string        `yaml:"geocoding_url" validate:"required,url"`
	GoogleGeocodingAPIKey string        `yaml:"-"`
	HTTPTimeout           time.Duration `yaml:"http_timeout" validate:"gt=0"`
	RequestsPerSecond     float64       `yaml:"requests_per_second" validate:"gte=0"`

	Store StoreConfig `yaml:"store"`

	ExportCSVPath string `yaml:"export_csv_path" validate:"required"`

	// ScheduleAt is the daily run time (HH:MM, UTC) used by `serve`.
	ScheduleAt string `yaml:"schedule_at" validate:"required,datetime=15:04"`
	RunOnStart bool   `yaml:"run_on_start"`

	Port     string `yaml:"port" validate:"required,numeric"`
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=sqlite postgres memory"`
	Path        string `yaml:"path" validate:"required_if=Driver sqlite"`
	PostgresDSN string `yaml:"-" validate:"required_if=Driver postgres"`
}

// RedisConfig enables the geocode cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"-"`
	DB       int           `yaml:"db" validate:"gte=0"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// KafkaConfig enables run events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" validate:"required_with=Brokers"`
}

// Default mirrors the pipeline's historical defaults: five years of Lisbon
// weather starting in 2015.
func Default() *AppConfig {
	return &AppConfig{
		Location: weather.Location{
			City:     "Lisbon",
			Country:  "PT",
			Timezone: "Europe/Lisbon",
		},
		AnchorYear:        2015,
		SpanYears:         5,
		Direction:         string(weather.Forward),
		ArchiveURL:        providers.DefaultArchiveURL,
		GeocodingURL:      providers.DefaultGeocodingURL,
		HTTPTimeout:       10 * time.Second,
		RequestsPerSecond: 2,
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "data/weather.db",
		},
		ExportCSVPath: "data/exported_csvs/weather_daily.csv",
		ScheduleAt:    "03:00",
		Port:          "8080",
		LogLevel:      "info",
		Redis: RedisConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			Topic: "weather.ingest.completed",
		},
	}
}

// Load reads configuration from an optional YAML file (WEATHER_CONFIG_FILE)
// and the environment, environment winning, on top of Default.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	cfg := Default()

	if path := os.Getenv("WEATHER_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &weather.ConfigError{Field: path, Reason: fmt.Sprintf("failed to parse YAML: %v", err)}
	}
	return nil
}

func applyEnv(cfg *AppConfig) error {
	var err error

	cfg.Location.City = getenvDefault("WEATHER_CITY", cfg.Location.City)
	cfg.Location.Country = getenvDefault("WEATHER_COUNTRY", cfg.Location.Country)
	cfg.Location.Timezone = getenvDefault("WEATHER_TIMEZONE", cfg.Location.Timezone)

	if cfg.AnchorYear, err = getenvInt("WEATHER_ANCHOR_YEAR", cfg.AnchorYear); err != nil {
		return err
	}
	if cfg.SpanYears, err = getenvInt("WEATHER_SPAN_YEARS", cfg.SpanYears); err != nil {
		return err
	}
	cfg.Direction = getenvDefault("WEATHER_DIRECTION", cfg.Direction)

	cfg.ArchiveURL = getenvDefault("WEATHER_ARCHIVE_URL", cfg.ArchiveURL)
	cfg.GeocodingURL = getenvDefault("WEATHER_GEOCODING_URL", cfg.GeocodingURL)
	cfg.GoogleGeocodingAPIKey = getenvDefault("GOOGLE_GEOCODING_API_KEY", cfg.GoogleGeocodingAPIKey)
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return err
	}
	if cfg.RequestsPerSecond, err = getenvFloat("WEATHER_REQUESTS_PER_SECOND", cfg.RequestsPerSecond); err != nil {
		return err
	}

	cfg.Store.Driver = getenvDefault("STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.Path = getenvDefault("DB_PATH", cfg.Store.Path)
	cfg.Store.PostgresDSN = getenvDefault("DATABASE_URL", cfg.Store.PostgresDSN)

	cfg.ExportCSVPath = getenvDefault("EXPORT_CSV_PATH", cfg.ExportCSVPath)
	cfg.ScheduleAt = getenvDefault("SCHEDULE_AT", cfg.ScheduleAt)
	if cfg.RunOnStart, err = getenvBool("RUN_ON_START", cfg.RunOnStart); err != nil {
		return err
	}
	cfg.Port = getenvDefault("PORT", cfg.Port)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.Redis.Addr = getenvDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("REDIS_PASSWORD", cfg.Redis.Password)
	if cfg.Redis.DB, err = getenvInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}
	if cfg.Redis.TTL, err = getenvDuration("GEOCODE_CACHE_TTL", cfg.Redis.TTL); err != nil {
		return err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.Topic = getenvDefault("KAFKA_TOPIC", cfg.Kafka.Topic)
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks every field and normalizes the direction token.
func (c *AppConfig) Validate() error {
	dir, err := weather.ParseDirection(c.Direction)
	if err != nil {
		return err
	}
	c.Direction = string(dir)

	if strings.TrimSpace(c.Location.City) == "" {
		return &weather.ConfigError{Field: "location.city", Reason: "must not be empty"}
	}
	if strings.TrimSpace(c.Location.Country) == "" {
		return &weather.ConfigError{Field: "location.country", Reason: "must not be empty"}
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "AppConfig.")
			return &weather.ConfigError{Field: field, Reason: fmt.Sprintf("failed %q validation (value %v)", tagWithParam(fe), fe.Value())}
		}
		return &weather.ConfigError{Reason: err.Error()}
	}
	return nil
}

// RunRequest builds the explicit run configuration for the pipeline.
func (c *AppConfig) RunRequest() weather.RunRequest {
	return weather.RunRequest{
		Location:   c.Location,
		AnchorYear: c.AnchorYear,
		SpanYears:  c.SpanYears,
		Direction:  weather.Direction(c.Direction),
	}
}

func tagWithParam(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, &weather.ConfigError{Field: key, Reason: fmt.Sprintf("invalid integer %q", v)}
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, &weather.ConfigError{Field: key, Reason: fmt.Sprintf("invalid number %q", v)}
	}
	return f, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, &weather.ConfigError{Field: key, Reason: fmt.Sprintf("invalid boolean %q", v)}
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, &weather.ConfigError{Field: key, Reason: fmt.Sprintf("invalid duration %q", v)}
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
