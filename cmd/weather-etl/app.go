package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/i474232898/weather-history-etl/internal/config"
	"github.com/i474232898/weather-history-etl/internal/events"
	"github.com/i474232898/weather-history-etl/internal/metrics"
	"github.com/i474232898/weather-history-etl/internal/store"
	"github.com/i474232898/weather-history-etl/internal/weather"
	"github.com/i474232898/weather-history-etl/internal/weather/providers"
)

// application holds the wired pipeline and everything that must be closed
// on exit.
type application struct {
	cfg      *config.AppConfig
	logger   *slog.Logger
	store    weather.Store
	service  *weather.Service
	registry *prometheus.Registry
	closers  []func() error
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func openStore(ctx context.Context, cfg config.StoreConfig) (weather.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return store.OpenPostgres(ctx, cfg.PostgresDSN)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.OpenSQLite(ctx, cfg.Path)
	}
}

func newApplication(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*application, error) {
	app := &application{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	app.store = st
	app.closers = append(app.closers, st.Close)

	// Shared HTTP client and limiter for outbound Open-Meteo calls.
	httpCfg := providers.HTTPClientConfig{
		Client:  &http.Client{Timeout: cfg.HTTPTimeout},
		Backoff: providers.DefaultBackoff,
		Limiter: providers.NewLimiter(cfg.RequestsPerSecond, 1),
	}

	var geocoder weather.Geocoder
	if cfg.GoogleGeocodingAPIKey != "" {
		geocoder = providers.NewGoogleGeocoder(cfg.GoogleGeocodingAPIKey)
	} else {
		geocoder = providers.NewOpenMeteoGeocoder(httpCfg, cfg.GeocodingURL)
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.closers = append(app.closers, rdb.Close)
		geocoder = providers.NewCachedGeocoder(geocoder, rdb, cfg.Redis.TTL, logger)
	}

	opts := []weather.Option{
		weather.WithLogger(logger),
		weather.WithRecorder(metrics.NewPipeline(app.registry)),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		app.closers = append(app.closers, producer.Close)
		opts = append(opts, weather.WithPublisher(producer))
	}

	archive := providers.NewOpenMeteoArchive(httpCfg, cfg.ArchiveURL)
	app.service = weather.NewService(st, geocoder, archive, opts...)
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error during shutdown", "error", err)
		}
	}
}
